package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Jim-purch/jim-resume/internal/config"
	"github.com/Jim-purch/jim-resume/internal/domain"
	"github.com/Jim-purch/jim-resume/internal/port"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Mock implementations for testing

type MockStore struct {
	mock.Mock
}

func (m *MockStore) ReplaceRepositories(ctx context.Context, repos []*domain.Repository) error {
	args := m.Called(ctx, repos)
	return args.Error(0)
}

func (m *MockStore) Repositories(ctx context.Context) ([]*domain.Repository, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Repository), args.Error(1)
}

func (m *MockStore) CommitRun(ctx context.Context, report *domain.Report, state *domain.ScheduleState) error {
	args := m.Called(ctx, report, state)
	return args.Error(0)
}

func (m *MockStore) LatestReport(ctx context.Context) (*domain.Report, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Report), args.Error(1)
}

func (m *MockStore) SaveEvents(ctx context.Context, events []*domain.NotificationEvent) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

func (m *MockStore) EventsSince(ctx context.Context, since time.Time) ([]*domain.NotificationEvent, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.NotificationEvent), args.Error(1)
}

func (m *MockStore) ScheduleState(ctx context.Context) (*domain.ScheduleState, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ScheduleState), args.Error(1)
}

func (m *MockStore) SaveScheduleState(ctx context.Context, state *domain.ScheduleState) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}

// stubChannel records every notification it is handed.
type stubChannel struct {
	name string
	err  error

	mu   sync.Mutex
	sent []*domain.Notification
}

func (c *stubChannel) Name() string { return c.name }

func (c *stubChannel) Send(ctx context.Context, n *domain.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, n)
	return nil
}

func (c *stubChannel) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

var dispatchNow = time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)

func reportWithDelta(added []string, changed []domain.ChangedRepo) *domain.Report {
	return &domain.Report{
		RunID:       "run-20250615-090000",
		GeneratedAt: dispatchNow,
		Outcome:     domain.OutcomeSuccess,
		Delta: domain.Delta{
			Added:   added,
			Changed: changed,
		},
	}
}

func newTestDispatcher(store *MockStore, channels ...*stubChannel) *Dispatcher {
	ports := make([]port.Channel, 0, len(channels))
	for _, ch := range channels {
		ports = append(ports, ch)
	}
	d := NewDispatcher(store, ports, config.Default())
	d.SetNowFunc(func() time.Time { return dispatchNow })
	return d
}

func TestEvaluate_NoTrigger(t *testing.T) {
	store := new(MockStore)
	d := newTestDispatcher(store, &stubChannel{name: "webhook"})

	decision, err := d.Evaluate(context.Background(), reportWithDelta(nil, nil), false)

	require.NoError(t, err)
	assert.Nil(t, decision)
	store.AssertNotCalled(t, "EventsSince", mock.Anything, mock.Anything)
}

func TestEvaluate_UpdatesTrigger(t *testing.T) {
	store := new(MockStore)
	store.On("EventsSince", mock.Anything, mock.Anything).Return([]*domain.NotificationEvent{}, nil)

	d := newTestDispatcher(store, &stubChannel{name: "webhook"})
	rep := reportWithDelta([]string{"octo/b", "octo/a"}, nil)

	decision, err := d.Evaluate(context.Background(), rep, false)

	require.NoError(t, err)
	require.NotNil(t, decision)
	assert.Equal(t, StateEvaluated, decision.State)
	assert.Equal(t, TriggerUpdates, decision.TriggerClass)
	assert.Equal(t, []string{"octo/a", "octo/b"}, decision.Repos)
	assert.NotEmpty(t, decision.Fingerprint)

	// the cooldown lookup starts at now minus the configured window
	expectedSince := dispatchNow.Add(-config.Default().Notifications.Cooldown.Std())
	store.AssertCalled(t, "EventsSince", mock.Anything, expectedSince)
}

func TestEvaluate_SignificantTrigger(t *testing.T) {
	store := new(MockStore)
	store.On("EventsSince", mock.Anything, mock.Anything).Return([]*domain.NotificationEvent{}, nil)

	cfg := config.Default()
	cfg.Thresholds.MinUpdatesForNotification = 10 // updates trigger out of reach

	d := NewDispatcher(store, []port.Channel{&stubChannel{name: "email"}}, cfg)
	d.SetNowFunc(func() time.Time { return dispatchNow })

	rep := reportWithDelta(nil, []domain.ChangedRepo{
		{FullName: "octo/x", PrevScore: 0.4, NewScore: 0.6, Reason: domain.ChangeSignificant},
	})

	decision, err := d.Evaluate(context.Background(), rep, false)

	require.NoError(t, err)
	require.NotNil(t, decision)
	assert.Equal(t, TriggerSignificant, decision.TriggerClass)
}

func TestEvaluate_Forced(t *testing.T) {
	store := new(MockStore)
	store.On("EventsSince", mock.Anything, mock.Anything).Return([]*domain.NotificationEvent{}, nil)

	d := newTestDispatcher(store, &stubChannel{name: "webhook"})

	decision, err := d.Evaluate(context.Background(), reportWithDelta(nil, nil), true)

	require.NoError(t, err)
	require.NotNil(t, decision)
	assert.Equal(t, TriggerForced, decision.TriggerClass)
	assert.Equal(t, StateEvaluated, decision.State)
}

func TestDispatch_FanOutAndFailureIsolation(t *testing.T) {
	store := new(MockStore)
	var saved []*domain.NotificationEvent
	store.On("SaveEvents", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		saved = args.Get(1).([]*domain.NotificationEvent)
	}).Return(nil)

	good := &stubChannel{name: "webhook"}
	bad := &stubChannel{name: "email", err: assert.AnError}
	d := newTestDispatcher(store, good, bad)

	rep := reportWithDelta([]string{"octo/a"}, nil)
	decision := &Decision{
		State:        StateEvaluated,
		TriggerClass: TriggerUpdates,
		Repos:        []string{"octo/a"},
		Fingerprint:  fingerprint(TriggerUpdates, []string{"octo/a"}),
	}

	events, err := d.Dispatch(context.Background(), rep, decision)

	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, StateSent, decision.State)
	assert.Equal(t, 1, good.sentCount())

	outcomes := map[string]domain.EventOutcome{}
	for _, ev := range events {
		outcomes[ev.Channel] = ev.Outcome
		assert.NotEmpty(t, ev.ID)
		assert.Equal(t, decision.Fingerprint, ev.Fingerprint)
		assert.Equal(t, dispatchNow, ev.DispatchedAt)
	}
	assert.Equal(t, domain.EventSent, outcomes["webhook"])
	assert.Equal(t, domain.EventFailed, outcomes["email"])
	assert.Equal(t, events, saved)
}

func TestDispatch_AllChannelsFail(t *testing.T) {
	store := new(MockStore)
	store.On("SaveEvents", mock.Anything, mock.Anything).Return(nil)

	bad := &stubChannel{name: "webhook", err: assert.AnError}
	d := newTestDispatcher(store, bad)

	decision := &Decision{
		State:        StateEvaluated,
		TriggerClass: TriggerUpdates,
		Repos:        []string{"octo/a"},
		Fingerprint:  fingerprint(TriggerUpdates, []string{"octo/a"}),
	}

	events, err := d.Dispatch(context.Background(), reportWithDelta([]string{"octo/a"}, nil), decision)

	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, StateFailed, decision.State)
	assert.Equal(t, domain.EventFailed, events[0].Outcome)
	assert.NotEmpty(t, events[0].Error)
}

func TestDispatch_CooldownSuppressesRepeat(t *testing.T) {
	store := new(MockStore)
	store.On("EventsSince", mock.Anything, mock.Anything).Return([]*domain.NotificationEvent{}, nil).Once()

	var saved [][]*domain.NotificationEvent
	store.On("SaveEvents", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		saved = append(saved, args.Get(1).([]*domain.NotificationEvent))
	}).Return(nil)

	channel := &stubChannel{name: "webhook"}
	d := newTestDispatcher(store, channel)
	rep := reportWithDelta([]string{"octo/a"}, nil)

	// first run: evaluated and sent
	first, err := d.Evaluate(context.Background(), rep, false)
	require.NoError(t, err)
	require.Equal(t, StateEvaluated, first.State)

	firstEvents, err := d.Dispatch(context.Background(), rep, first)
	require.NoError(t, err)
	require.Equal(t, StateSent, first.State)
	assert.Equal(t, 1, channel.sentCount())

	// second identical run inside the cooldown window: suppressed
	store.On("EventsSince", mock.Anything, mock.Anything).Return(firstEvents, nil)

	second, err := d.Evaluate(context.Background(), rep, false)
	require.NoError(t, err)
	require.Equal(t, StateSuppressed, second.State)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)

	secondEvents, err := d.Dispatch(context.Background(), rep, second)
	require.NoError(t, err)
	require.Len(t, secondEvents, 1)
	assert.Equal(t, domain.EventSuppressed, secondEvents[0].Outcome)

	// exactly one real send across both runs
	assert.Equal(t, 1, channel.sentCount())
	require.Len(t, saved, 2)
}

func TestDispatch_SuppressedDecisionSkipsChannels(t *testing.T) {
	store := new(MockStore)
	store.On("SaveEvents", mock.Anything, mock.Anything).Return(nil)

	channel := &stubChannel{name: "email"}
	d := newTestDispatcher(store, channel)

	decision := &Decision{
		State:        StateSuppressed,
		TriggerClass: TriggerUpdates,
		Repos:        []string{"octo/a"},
		Fingerprint:  "fp",
	}

	events, err := d.Dispatch(context.Background(), reportWithDelta([]string{"octo/a"}, nil), decision)

	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventSuppressed, events[0].Outcome)
	assert.Zero(t, channel.sentCount())
}

func TestDispatch_NoChannels(t *testing.T) {
	store := new(MockStore)
	d := NewDispatcher(store, nil, config.Default())

	events, err := d.Dispatch(context.Background(), reportWithDelta([]string{"octo/a"}, nil), &Decision{State: StateEvaluated})

	assert.NoError(t, err)
	assert.Nil(t, events)
	store.AssertNotCalled(t, "SaveEvents", mock.Anything, mock.Anything)
}

func TestFingerprint_Stable(t *testing.T) {
	a := fingerprint(TriggerUpdates, []string{"octo/a", "octo/b"})
	b := fingerprint(TriggerUpdates, []string{"octo/a", "octo/b"})
	c := fingerprint(TriggerForced, []string{"octo/a", "octo/b"})
	e := fingerprint(TriggerUpdates, []string{"octo/a"})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, e)
}
