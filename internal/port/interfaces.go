package port

import (
	"context"
	"time"

	"github.com/Jim-purch/jim-resume/internal/domain"
)

// MetadataSource lists the owner's repositories with their attributes.
// Implementations are expected to surface rate-limit exhaustion as a
// retryable error rather than a fatal one.
type MetadataSource interface {
	ListRepositories(ctx context.Context, owner string) ([]*domain.Repository, error)
}

// Channel delivers a notification to one configured destination.
type Channel interface {
	Name() string
	Send(ctx context.Context, n *domain.Notification) error
}

// Store is the durable home of everything that must survive a restart:
// the repository cache, the report history, the schedule bookkeeping and
// the notification event log.
type Store interface {
	// ReplaceRepositories swaps the whole cached inventory for the given
	// batch. Snapshots are never partially mutated.
	ReplaceRepositories(ctx context.Context, repos []*domain.Repository) error
	Repositories(ctx context.Context) ([]*domain.Repository, error)

	// CommitRun persists the report and the schedule state together;
	// either both land or neither does.
	CommitRun(ctx context.Context, report *domain.Report, state *domain.ScheduleState) error
	LatestReport(ctx context.Context) (*domain.Report, error)

	SaveEvents(ctx context.Context, events []*domain.NotificationEvent) error
	EventsSince(ctx context.Context, since time.Time) ([]*domain.NotificationEvent, error)

	ScheduleState(ctx context.Context) (*domain.ScheduleState, error)
	SaveScheduleState(ctx context.Context, state *domain.ScheduleState) error
}

// RunOptions tune a single run. Notify false is the dry-run mode: the
// report is still computed and persisted, dispatch is skipped entirely.
// ForceDispatch bypasses threshold evaluation (the weekly full report).
type RunOptions struct {
	Notify        bool
	ForceDispatch bool
}

// Runner executes one full analysis run.
type Runner interface {
	RunOnce(ctx context.Context, opts RunOptions) (*domain.Report, error)
}

// Clock abstracts wall time so scheduler behavior is testable without
// real waits.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}
