// Package repository is the durable home of everything that must survive
// a restart: the repository cache, report history, schedule state and
// notification event log. All failures here carry the persistence error
// code; a run whose results cannot be written is never reported as
// successful.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Jim-purch/jim-resume/internal/common"
	"github.com/Jim-purch/jim-resume/internal/domain"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// scheduleStateID pins the bookkeeping to a single row.
const scheduleStateID = 1

// reportRecord stores a compiled report as an opaque JSON payload keyed
// by run ID. Reports are immutable; rows are only ever inserted.
type reportRecord struct {
	RunID       string    `gorm:"primaryKey"`
	GeneratedAt time.Time `gorm:"index"`
	Payload     []byte    `gorm:"type:jsonb"`
}

func (reportRecord) TableName() string { return "reports" }

// PostgresStore implements port.Store on gorm/postgres.
type PostgresStore struct {
	db *gorm.DB
}

// NewPostgresStore connects and migrates the schema.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, common.WrapError(common.ErrCodePersistence, "connect database", err)
	}
	return NewStoreWithDB(db)
}

// NewStoreWithDB wraps an existing gorm handle (tests inject sqlmock here).
func NewStoreWithDB(db *gorm.DB) (*PostgresStore, error) {
	err := db.AutoMigrate(
		&domain.Repository{},
		&reportRecord{},
		&domain.NotificationEvent{},
		&domain.ScheduleState{},
	)
	if err != nil {
		return nil, common.WrapError(common.ErrCodePersistence, "migrate schema", err)
	}
	return &PostgresStore{db: db}, nil
}

// ReplaceRepositories swaps the entire cached inventory for the batch in
// one transaction. Snapshots are owned by the store and replaced
// wholesale; there is no partial mutation path.
func (s *PostgresStore) ReplaceRepositories(ctx context.Context, repos []*domain.Repository) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&domain.Repository{}).Error; err != nil {
			return err
		}
		if len(repos) == 0 {
			return nil
		}
		return tx.CreateInBatches(repos, 100).Error
	})
	if err != nil {
		return common.WrapError(common.ErrCodePersistence, "replace repository cache", err)
	}
	return nil
}

// Repositories returns the cached inventory ordered by name.
func (s *PostgresStore) Repositories(ctx context.Context) ([]*domain.Repository, error) {
	var repos []*domain.Repository
	err := s.db.WithContext(ctx).Order("full_name asc").Find(&repos).Error
	if err != nil {
		return nil, common.WrapError(common.ErrCodePersistence, "load repository cache", err)
	}
	return repos, nil
}

// CommitRun writes the report and the schedule state in one transaction:
// either both land or neither does, so an interrupted run never leaves a
// partial report behind.
func (s *PostgresStore) CommitRun(ctx context.Context, report *domain.Report, state *domain.ScheduleState) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return common.WrapError(common.ErrCodePersistence, "encode report", err)
	}

	record := &reportRecord{
		RunID:       report.RunID,
		GeneratedAt: report.GeneratedAt,
		Payload:     payload,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			return err
		}
		return saveState(tx, state)
	})
	if err != nil {
		return common.WrapError(common.ErrCodePersistence, "commit run", err)
	}
	return nil
}

// LatestReport returns the most recent report, or nil when none exists.
func (s *PostgresStore) LatestReport(ctx context.Context) (*domain.Report, error) {
	var record reportRecord
	err := s.db.WithContext(ctx).Order("generated_at desc").First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, common.WrapError(common.ErrCodePersistence, "load latest report", err)
	}

	var report domain.Report
	if err := json.Unmarshal(record.Payload, &report); err != nil {
		return nil, common.WrapError(common.ErrCodePersistence, "decode report "+record.RunID, err)
	}
	return &report, nil
}

// SaveEvents appends dispatch outcomes to the notification event log.
func (s *PostgresStore) SaveEvents(ctx context.Context, events []*domain.NotificationEvent) error {
	if len(events) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(events).Error; err != nil {
		return common.WrapError(common.ErrCodePersistence, "save notification events", err)
	}
	return nil
}

// EventsSince returns events dispatched at or after the given time,
// newest first. The dispatcher uses this for cooldown suppression.
func (s *PostgresStore) EventsSince(ctx context.Context, since time.Time) ([]*domain.NotificationEvent, error) {
	var events []*domain.NotificationEvent
	err := s.db.WithContext(ctx).
		Where("dispatched_at >= ?", since).
		Order("dispatched_at desc").
		Find(&events).Error
	if err != nil {
		return nil, common.WrapError(common.ErrCodePersistence, "load notification events", err)
	}
	return events, nil
}

// ScheduleState loads the single bookkeeping row, or a fresh zero state
// when none has been written yet.
func (s *PostgresStore) ScheduleState(ctx context.Context) (*domain.ScheduleState, error) {
	var state domain.ScheduleState
	err := s.db.WithContext(ctx).First(&state, scheduleStateID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &domain.ScheduleState{ID: scheduleStateID, NextFire: map[string]time.Time{}}, nil
	}
	if err != nil {
		return nil, common.WrapError(common.ErrCodePersistence, "load schedule state", err)
	}
	if state.NextFire == nil {
		state.NextFire = map[string]time.Time{}
	}
	return &state, nil
}

// SaveScheduleState upserts the bookkeeping row.
func (s *PostgresStore) SaveScheduleState(ctx context.Context, state *domain.ScheduleState) error {
	if err := saveState(s.db.WithContext(ctx), state); err != nil {
		return common.WrapError(common.ErrCodePersistence, "save schedule state", err)
	}
	return nil
}

func saveState(db *gorm.DB, state *domain.ScheduleState) error {
	state.ID = scheduleStateID
	return db.Save(state).Error
}
