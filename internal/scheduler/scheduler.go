// Package scheduler drives recurring analysis runs. Each cadence keeps
// its own next-fire time; the loop sleeps until the nearest one, runs the
// due cadences, then recomputes. All timing goes through an injected
// clock so catch-up and backoff behavior is testable without real waits.
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/Jim-purch/jim-resume/internal/common"
	"github.com/Jim-purch/jim-resume/internal/config"
	"github.com/Jim-purch/jim-resume/internal/domain"
	"github.com/Jim-purch/jim-resume/internal/port"

	"github.com/robfig/cron/v3"
)

// State is the scheduler's coarse lifecycle:
// IDLE -> RUNNING -> {IDLE, FAILED-BACKOFF}.
type State string

const (
	StateIdle          State = "IDLE"
	StateRunning       State = "RUNNING"
	StateFailedBackoff State = "FAILED-BACKOFF"
)

type cadence struct {
	name        string
	sched       cron.Schedule
	forceNotify bool
	next        time.Time
}

// Scheduler owns the recurring control loop.
type Scheduler struct {
	runner port.Runner
	store  port.Store
	clock  port.Clock
	cfg    config.Config
	notify bool

	cadences []*cadence
	state    State
	backoff  time.Duration
}

// New parses the cadence specs and builds the scheduler. A malformed
// cron spec is a configuration error.
func New(runner port.Runner, store port.Store, clock port.Clock, cfg config.Config, notify bool) (*Scheduler, error) {
	if clock == nil {
		clock = RealClock{}
	}

	s := &Scheduler{
		runner:  runner,
		store:   store,
		clock:   clock,
		cfg:     cfg,
		notify:  notify,
		state:   StateIdle,
		backoff: cfg.Schedule.InitialBackoff.Std(),
	}

	for _, cc := range cfg.Schedule.Cadences {
		sched, err := cron.ParseStandard(cc.Spec)
		if err != nil {
			return nil, common.WrapError(common.ErrCodeConfiguration, "invalid cadence spec "+cc.Name, err)
		}
		s.cadences = append(s.cadences, &cadence{
			name:        cc.Name,
			sched:       sched,
			forceNotify: cc.ForceNotify,
		})
	}

	return s, nil
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State { return s.state }

// Run is the long-lived loop. It returns only when the context is
// cancelled; stopping between runs never corrupts the schedule state.
func (s *Scheduler) Run(ctx context.Context) error {
	state, err := s.store.ScheduleState(ctx)
	if err != nil {
		return err
	}
	if state.RunInProgress {
		// a previous process died mid-run; the flag is stale
		log.Printf("⚠️ clearing stale run-in-progress flag")
		state.RunInProgress = false
	}

	now := s.clock.Now()
	s.restoreNextFires(state, now)
	if err := s.persistNextFires(ctx); err != nil {
		return err
	}

	log.Printf("🚀 scheduler started with %d cadences", len(s.cadences))

	for {
		now = s.clock.Now()

		due := s.due(now)
		if len(due) == 0 {
			wait := s.nearest(now).Sub(now)
			select {
			case <-ctx.Done():
				log.Printf("👋 scheduler stopping")
				return ctx.Err()
			case <-s.clock.After(wait):
			}
			continue
		}

		// The loop serializes runs: any cadence becoming due while a run
		// executes is picked up on the next iteration, deferred rather
		// than dropped.
		if err := s.runDue(ctx, due); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if s.shouldBackoff(err) {
				s.state = StateFailedBackoff
				// the run is over; operators must not read the whole
				// backoff window as an in-flight run
				s.markInProgress(ctx, false)
				wait := s.nextBackoff()
				log.Printf("⏰ run failed (%v), retrying in %s", err, wait)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-s.clock.After(wait):
				}
				// next-fire unchanged: the overdue run retries
				continue
			}
			// configuration errors are surfaced, never retried; the
			// cadence advances so the loop does not spin
			log.Printf("❌ run failed permanently: %v", err)
		}

		s.state = StateIdle
		s.backoff = s.cfg.Schedule.InitialBackoff.Std()
		s.advance(due)
		if err := s.persistNextFires(ctx); err != nil {
			return err
		}
	}
}

// restoreNextFires merges persisted next-fire times with the cadence
// table. A persisted time in the past stays due, which makes exactly one
// catch-up run happen after downtime; a cadence never seen before fires
// at its next future occurrence.
func (s *Scheduler) restoreNextFires(state *domain.ScheduleState, now time.Time) {
	for _, c := range s.cadences {
		if t, ok := state.NextFire[c.name]; ok && !t.IsZero() {
			c.next = t
			continue
		}
		c.next = c.sched.Next(now)
	}
}

func (s *Scheduler) due(now time.Time) []*cadence {
	var due []*cadence
	for _, c := range s.cadences {
		if !c.next.After(now) {
			due = append(due, c)
		}
	}
	return due
}

func (s *Scheduler) nearest(now time.Time) time.Time {
	nearest := s.cadences[0].next
	for _, c := range s.cadences[1:] {
		if c.next.Before(nearest) {
			nearest = c.next
		}
	}
	return nearest
}

// runDue executes one run covering every due cadence. Cadences that fire
// the same morning share a single run; firing one never resets another.
func (s *Scheduler) runDue(ctx context.Context, due []*cadence) error {
	force := false
	names := make([]string, 0, len(due))
	for _, c := range due {
		names = append(names, c.name)
		if c.forceNotify {
			force = true
		}
	}
	log.Printf("⏰ running cadences %v", names)

	s.state = StateRunning
	s.markInProgress(ctx, true)

	_, err := s.runner.RunOnce(ctx, port.RunOptions{
		Notify:        s.notify,
		ForceDispatch: force,
	})
	return err
}

// advance recomputes the fired cadences' next occurrences after the
// current instant. Overdue intervals collapse into the single catch-up
// run that just executed; missed occurrences are never replayed.
func (s *Scheduler) advance(fired []*cadence) {
	now := s.clock.Now()
	for _, c := range fired {
		c.next = c.sched.Next(now)
	}
}

// shouldBackoff: transient upstream and persistence failures are retried
// with bounded exponential backoff; configuration errors are not.
func (s *Scheduler) shouldBackoff(err error) bool {
	return !common.IsConfiguration(err)
}

func (s *Scheduler) nextBackoff() time.Duration {
	wait := s.backoff
	limit := s.cfg.Schedule.MaxBackoff.Std()
	s.backoff *= 2
	if s.backoff > limit {
		s.backoff = limit
	}
	if wait > limit {
		wait = limit
	}
	return wait
}

func (s *Scheduler) persistNextFires(ctx context.Context) error {
	state, err := s.store.ScheduleState(ctx)
	if err != nil {
		return err
	}
	if state.NextFire == nil {
		state.NextFire = map[string]time.Time{}
	}
	for _, c := range s.cadences {
		state.NextFire[c.name] = c.next
	}
	state.RunInProgress = false
	state.UpdatedAt = s.clock.Now()
	return s.store.SaveScheduleState(ctx, state)
}

// markInProgress persists the overlap-guard flag; failures here are
// logged, not fatal, since the run itself rewrites the state on commit.
func (s *Scheduler) markInProgress(ctx context.Context, v bool) {
	state, err := s.store.ScheduleState(ctx)
	if err != nil {
		log.Printf("⚠️ cannot load state for in-progress flag: %v", err)
		return
	}
	state.RunInProgress = v
	if err := s.store.SaveScheduleState(ctx, state); err != nil {
		log.Printf("⚠️ cannot persist in-progress flag: %v", err)
	}
}

// RealClock is the wall-clock implementation of port.Clock.
type RealClock struct{}

func (RealClock) Now() time.Time                         { return time.Now() }
func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
