package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/callinsights/transcribe-orchestrator/internal/store/model"
	"gorm.io/gorm"
)

// BatchJob tracks the per-item status rows of batch jobs.
type BatchJob interface {
	// Create writes one PENDING row per item. The row set is fixed from here on.
	Create(ctx context.Context, jobID string, items []string, owner string, ttl time.Duration) (*model.BatchJob, error)
	// Advance moves a single (jobID, itemID) row to state and bumps its
	// last_update. Missing rows are never created and rows in a terminal
	// state are left untouched (ErrTerminalState).
	Advance(ctx context.Context, jobID, itemID string, state model.BatchJobState) error
	Get(ctx context.Context, jobID string) (*model.BatchJob, error)
	// ListActive returns the owner's rows updated at or after since, newest first.
	ListActive(ctx context.Context, owner string, since time.Time) ([]model.BatchJobItem, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	CountByState(ctx context.Context) (map[model.BatchJobState]int64, error)
}

type BatchJobStore struct {
	db *gorm.DB
}

var _ BatchJob = (*BatchJobStore)(nil)

func NewBatchJobStore(db *gorm.DB) *BatchJobStore {
	return &BatchJobStore{db: db}
}

func (s *BatchJobStore) Create(ctx context.Context, jobID string, items []string, owner string, ttl time.Duration) (*model.BatchJob, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("batch job %q has no items", jobID)
	}

	now := time.Now().UTC()
	rows := make([]model.BatchJobItem, 0, len(items))
	for _, item := range items {
		rows = append(rows, model.BatchJobItem{
			JobID:      jobID,
			ItemID:     item,
			Owner:      owner,
			State:      model.BatchJobStatePending,
			LastUpdate: now,
			ExpiresAt:  now.Add(ttl),
		})
	}

	if err := s.getDB(ctx).Create(&rows).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("creating batch job %q: %w", jobID, err)
	}

	return model.NewBatchJob(jobID, rows), nil
}

func (s *BatchJobStore) Advance(ctx context.Context, jobID, itemID string, state model.BatchJobState) error {
	if !state.Valid() {
		return fmt.Errorf("invalid batch item state %q", state)
	}

	result := s.getDB(ctx).Model(&model.BatchJobItem{}).
		Where("job_id = ? AND item_id = ?", jobID, itemID).
		Where("state NOT IN ?", []model.BatchJobState{model.BatchJobStateCompleted, model.BatchJobStateFailed}).
		Updates(map[string]any{
			"state":       state,
			"last_update": time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("advancing batch item %s/%s: %w", jobID, itemID, result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := s.getDB(ctx).Model(&model.BatchJobItem{}).
		Where("job_id = ? AND item_id = ?", jobID, itemID).
		Count(&count).Error; err != nil {
		return fmt.Errorf("reading batch item %s/%s: %w", jobID, itemID, err)
	}
	if count > 0 {
		return ErrTerminalState
	}
	return ErrRecordNotFound
}

func (s *BatchJobStore) Get(ctx context.Context, jobID string) (*model.BatchJob, error) {
	rows, err := s.List(ctx,
		NewBatchJobQueryFilter().ByJobID(jobID),
		NewBatchJobQueryOptions().WithSortOrder(SortByItemID),
	)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrRecordNotFound
	}
	return model.NewBatchJob(jobID, rows), nil
}

func (s *BatchJobStore) ListActive(ctx context.Context, owner string, since time.Time) ([]model.BatchJobItem, error) {
	return s.List(ctx,
		NewBatchJobQueryFilter().ByOwner(owner).UpdatedSince(since.UTC()),
		NewBatchJobQueryOptions().WithSortOrder(SortByLastUpdateDesc),
	)
}

func (s *BatchJobStore) List(ctx context.Context, filter *BatchJobQueryFilter, opts *BatchJobQueryOptions) ([]model.BatchJobItem, error) {
	var rows []model.BatchJobItem
	tx := s.getDB(ctx)

	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}
	if opts != nil {
		for _, fn := range opts.QueryFn {
			tx = fn(tx)
		}
	}

	if err := tx.Model(&model.BatchJobItem{}).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing batch items: %w", err)
	}
	return rows, nil
}

func (s *BatchJobStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := s.getDB(ctx).Where("expires_at <= ?", now.UTC()).Delete(&model.BatchJobItem{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting expired batch items: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *BatchJobStore) CountByState(ctx context.Context) (map[model.BatchJobState]int64, error) {
	var rows []struct {
		State model.BatchJobState
		Total int64
	}
	err := s.getDB(ctx).Model(&model.BatchJobItem{}).
		Select("state, COUNT(*) AS total").
		Group("state").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("counting batch items: %w", err)
	}

	counts := make(map[model.BatchJobState]int64, len(rows))
	for _, r := range rows {
		counts[r.State] = r.Total
	}
	return counts, nil
}

func (s *BatchJobStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db.WithContext(ctx)
}
