// Package service orchestrates a full analysis run: refresh the
// repository cache, score the batch, compile and persist the report,
// then hand it to the notification dispatcher.
package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Jim-purch/jim-resume/internal/adapter/report"
	"github.com/Jim-purch/jim-resume/internal/adapter/scoring"
	"github.com/Jim-purch/jim-resume/internal/config"
	"github.com/Jim-purch/jim-resume/internal/domain"
	"github.com/Jim-purch/jim-resume/internal/port"
)

// MonitorService implements port.Runner.
type MonitorService struct {
	source     port.MetadataSource
	store      port.Store
	engine     *scoring.Engine
	dispatcher *Dispatcher
	cfg        config.Config

	nowFunc func() time.Time
}

// NewMonitorService wires a run pipeline from its collaborators.
func NewMonitorService(
	source port.MetadataSource,
	store port.Store,
	engine *scoring.Engine,
	dispatcher *Dispatcher,
	cfg config.Config,
) *MonitorService {
	return &MonitorService{
		source:     source,
		store:      store,
		engine:     engine,
		dispatcher: dispatcher,
		cfg:        cfg,
		nowFunc:    time.Now,
	}
}

// SetNowFunc injects the clock stamped onto reports and schedule state.
func (m *MonitorService) SetNowFunc(f func() time.Time) {
	if f != nil {
		m.nowFunc = f
	}
}

// RunOnce executes one analysis run end to end. The report and schedule
// state are committed atomically before any notification goes out, so an
// interrupted run never persists a partial report and a delivery failure
// never loses analysis history.
func (m *MonitorService) RunOnce(ctx context.Context, opts port.RunOptions) (*domain.Report, error) {
	if m.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.RunTimeout.Std())
		defer cancel()
	}

	log.Printf("📥 fetching repositories for %q...", m.cfg.GitHub.Username)

	fetchCtx := ctx
	if m.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, m.cfg.FetchTimeout.Std())
		defer cancel()
	}
	repos, err := m.source.ListRepositories(fetchCtx, m.cfg.GitHub.Username)
	if err != nil {
		m.recordFailure(ctx, fmt.Sprintf("metadata fetch failed: %v", err))
		return nil, err
	}
	log.Printf("✅ fetched %d repositories", len(repos))

	if err := m.store.ReplaceRepositories(ctx, repos); err != nil {
		m.recordFailure(ctx, fmt.Sprintf("cache refresh failed: %v", err))
		return nil, err
	}

	// scoring reads back from the cache, so the report always reflects
	// what was durably recorded for this run
	cached, err := m.store.Repositories(ctx)
	if err != nil {
		m.recordFailure(ctx, fmt.Sprintf("cache read failed: %v", err))
		return nil, err
	}

	kept := scoring.Filter(cached, m.cfg.Filter)
	log.Printf("🔍 %d repositories after filtering", len(kept))

	// A single malformed repository is excluded with a recorded reason
	// rather than aborting the whole run.
	entries := make([]domain.ReportEntry, 0, len(kept))
	var skipped []domain.SkippedRepo
	for _, repo := range kept {
		analysis, err := m.engine.Score(repo)
		if err != nil {
			log.Printf("❌ scoring %s failed: %v", repo.FullName, err)
			skipped = append(skipped, domain.SkippedRepo{FullName: repo.FullName, Reason: err.Error()})
			continue
		}
		entries = append(entries, domain.ReportEntry{Repo: *repo, Analysis: analysis})
	}

	prior, err := m.store.LatestReport(ctx)
	if err != nil {
		m.recordFailure(ctx, fmt.Sprintf("prior report load failed: %v", err))
		return nil, err
	}

	now := m.nowFunc()
	rep := report.Compile(entries, prior, m.cfg, now)
	if len(skipped) > 0 {
		rep.Outcome = domain.OutcomePartial
		rep.OutcomeReason = fmt.Sprintf("%d repositories skipped", len(skipped))
		rep.Skipped = skipped
	}

	state, err := m.store.ScheduleState(ctx)
	if err != nil {
		return nil, err
	}
	state.RecordAttempt(now, rep.Outcome, rep.OutcomeReason)
	state.RunInProgress = false

	if err := m.store.CommitRun(ctx, rep, state); err != nil {
		return nil, err
	}
	log.Printf("💾 report %s committed (%d entries, outcome %s)", rep.RunID, len(rep.Entries), rep.Outcome)

	if opts.Notify {
		decision, err := m.dispatcher.Evaluate(ctx, rep, opts.ForceDispatch)
		if err != nil {
			// suppression lookup failures degrade to not notifying; the
			// report itself is already durable
			log.Printf("⚠️ notification evaluation failed: %v", err)
			return rep, nil
		}
		if decision == nil {
			log.Printf("📭 no notification trigger met")
			return rep, nil
		}
		events, err := m.dispatcher.Dispatch(ctx, rep, decision)
		if err != nil {
			log.Printf("⚠️ recording notification events failed: %v", err)
		}
		log.Printf("📲 dispatch %s: %d events", decision.State, len(events))
	} else {
		log.Printf("📭 notification dispatch suppressed (dry-run)")
	}

	return rep, nil
}

// recordFailure makes a best-effort note of a failed attempt so operators
// can observe missed runs even when the run itself produced nothing.
func (m *MonitorService) recordFailure(ctx context.Context, reason string) {
	state, err := m.store.ScheduleState(ctx)
	if err != nil {
		log.Printf("⚠️ cannot load schedule state to record failure: %v", err)
		return
	}
	state.RecordAttempt(m.nowFunc(), domain.OutcomeFailed, reason)
	state.RunInProgress = false
	if err := m.store.SaveScheduleState(ctx, state); err != nil {
		log.Printf("⚠️ cannot record failed attempt: %v", err)
	}
}
