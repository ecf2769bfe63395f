package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/Jim-purch/jim-resume/internal/adapter/report"
	"github.com/Jim-purch/jim-resume/internal/config"
	"github.com/Jim-purch/jim-resume/internal/domain"
	"github.com/Jim-purch/jim-resume/internal/port"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DecisionState tracks one notification through its lifecycle:
// PENDING -> EVALUATED -> {SUPPRESSED, DISPATCHING -> {SENT, FAILED}}.
type DecisionState string

const (
	StatePending     DecisionState = "PENDING"
	StateEvaluated   DecisionState = "EVALUATED"
	StateSuppressed  DecisionState = "SUPPRESSED"
	StateDispatching DecisionState = "DISPATCHING"
	StateSent        DecisionState = "SENT"
	StateFailed      DecisionState = "FAILED"
)

// Trigger classes, in evaluation priority order.
const (
	TriggerForced      = "forced"
	TriggerUpdates     = "updates"
	TriggerSignificant = "significant-update"
	TriggerHighValue   = "high-value"
)

// Decision is the dispatcher's verdict for one run.
type Decision struct {
	State        DecisionState
	TriggerClass string
	Repos        []string
	Fingerprint  string
}

// Dispatcher decides whether a run's report crosses the configured
// thresholds and, if so, fans it out to every configured channel.
// Dispatch is best-effort; the persisted report is the durable guarantee.
type Dispatcher struct {
	store    port.Store
	channels []port.Channel
	cfg      config.Config

	nowFunc func() time.Time
	newID   func() string
}

// NewDispatcher wires the dispatcher. channels may be empty, in which
// case every decision short-circuits to no events.
func NewDispatcher(store port.Store, channels []port.Channel, cfg config.Config) *Dispatcher {
	return &Dispatcher{
		store:    store,
		channels: channels,
		cfg:      cfg,
		nowFunc:  time.Now,
		newID:    uuid.NewString,
	}
}

// SetNowFunc injects the clock used for cooldown checks.
func (d *Dispatcher) SetNowFunc(f func() time.Time) {
	if f != nil {
		d.nowFunc = f
	}
}

// Evaluate applies the trigger conditions and the cooldown suppression
// check. It returns nil when nothing warrants a notification.
func (d *Dispatcher) Evaluate(ctx context.Context, rep *domain.Report, forced bool) (*Decision, error) {
	decision := &Decision{State: StatePending}

	affected := rep.Delta.Affected()

	significant := 0
	highValue := false
	for _, c := range rep.Delta.Changed {
		switch c.Reason {
		case domain.ChangeHighValue:
			highValue = true
			significant++
		case domain.ChangeSignificant, domain.ChangeBucketShift:
			significant++
		}
	}

	th := d.cfg.Thresholds
	switch {
	case forced:
		decision.TriggerClass = TriggerForced
	case len(affected) > 0 && len(affected) >= th.MinUpdatesForNotification:
		decision.TriggerClass = TriggerUpdates
	case significant >= th.MinSignificantUpdates && significant > 0:
		decision.TriggerClass = TriggerSignificant
	case highValue:
		decision.TriggerClass = TriggerHighValue
	default:
		return nil, nil
	}

	decision.Repos = append([]string(nil), affected...)
	sort.Strings(decision.Repos)
	decision.Fingerprint = fingerprint(decision.TriggerClass, decision.Repos)
	decision.State = StateEvaluated

	// An equivalent notification already sent inside the cooldown window
	// suppresses this one; repeated runs over unchanged data must not
	// storm the channels.
	since := d.nowFunc().Add(-d.cfg.Notifications.Cooldown.Std())
	events, err := d.store.EventsSince(ctx, since)
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		if ev.Fingerprint == decision.Fingerprint && ev.Outcome == domain.EventSent {
			decision.State = StateSuppressed
			break
		}
	}

	return decision, nil
}

// Dispatch executes the decision: suppressed decisions are recorded
// without sending, evaluated ones fan out to every channel concurrently.
// Each channel is attempted independently with its own timeout; one
// failure never blocks another and never fails the run.
func (d *Dispatcher) Dispatch(ctx context.Context, rep *domain.Report, decision *Decision) ([]*domain.NotificationEvent, error) {
	if decision == nil || len(d.channels) == 0 {
		return nil, nil
	}

	now := d.nowFunc()
	summary := fmt.Sprintf("%s: %d repos (%s)", decision.TriggerClass, len(decision.Repos), strings.Join(decision.Repos, ", "))

	if decision.State == StateSuppressed {
		events := make([]*domain.NotificationEvent, 0, len(d.channels))
		for _, ch := range d.channels {
			events = append(events, &domain.NotificationEvent{
				ID:           d.newID(),
				Channel:      ch.Name(),
				TriggerClass: decision.TriggerClass,
				Fingerprint:  decision.Fingerprint,
				Summary:      summary,
				DispatchedAt: now,
				Outcome:      domain.EventSuppressed,
			})
		}
		if err := d.store.SaveEvents(ctx, events); err != nil {
			return events, err
		}
		return events, nil
	}

	decision.State = StateDispatching
	notification := d.buildNotification(rep)

	events := make([]*domain.NotificationEvent, len(d.channels))
	g, gctx := errgroup.WithContext(ctx)
	for i, ch := range d.channels {
		i, ch := i, ch
		g.Go(func() error {
			sendCtx, cancel := context.WithTimeout(gctx, d.cfg.Notifications.ChannelTimeout.Std())
			defer cancel()

			ev := &domain.NotificationEvent{
				ID:           d.newID(),
				Channel:      ch.Name(),
				TriggerClass: decision.TriggerClass,
				Fingerprint:  decision.Fingerprint,
				Summary:      summary,
				DispatchedAt: now,
			}
			if err := ch.Send(sendCtx, notification); err != nil {
				log.Printf("❌ channel %s failed: %v", ch.Name(), err)
				ev.Outcome = domain.EventFailed
				ev.Error = err.Error()
			} else {
				ev.Outcome = domain.EventSent
			}
			events[i] = ev
			// channel failures are recorded, not propagated
			return nil
		})
	}
	_ = g.Wait()

	decision.State = StateFailed
	for _, ev := range events {
		if ev.Outcome == domain.EventSent {
			decision.State = StateSent
			break
		}
	}

	if err := d.store.SaveEvents(ctx, events); err != nil {
		return events, err
	}
	return events, nil
}

func (d *Dispatcher) buildNotification(rep *domain.Report) *domain.Notification {
	changed := len(rep.Delta.Added) + len(rep.Delta.Changed)
	return &domain.Notification{
		Subject:  fmt.Sprintf("Portfolio update report - %d projects changed", changed),
		Body:     report.RenderText(rep),
		Markdown: report.RenderMarkdown(rep),
		HTML:     report.RenderHTML(rep),
		Report:   rep,
	}
}

// fingerprint identifies an equivalent notification: same trigger class
// over the same repository set.
func fingerprint(class string, repos []string) string {
	h := sha256.Sum256([]byte(class + "|" + strings.Join(repos, ",")))
	return hex.EncodeToString(h[:])
}
