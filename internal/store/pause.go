package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/callinsights/transcribe-orchestrator/internal/store/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Pause persists workflows waiting for an external job.
type Pause interface {
	// Save inserts the record. It never overwrites a live record for the same
	// job name and returns ErrDuplicateKey instead.
	Save(ctx context.Context, p model.PausedWorkflow) error
	// Take reads and deletes the record in a single statement. Only one of
	// several concurrent callers gets the record, the others get
	// ErrRecordNotFound.
	Take(ctx context.Context, jobName string) (*model.PausedWorkflow, error)
	CountByPurpose(ctx context.Context) (map[string]int64, error)
}

type PauseStore struct {
	db *gorm.DB
}

var _ Pause = (*PauseStore)(nil)

func NewPauseStore(db *gorm.DB) *PauseStore {
	return &PauseStore{db: db}
}

func (s *PauseStore) Save(ctx context.Context, p model.PausedWorkflow) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if err := s.getDB(ctx).Create(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("saving pause record %q: %w", p.JobName, err)
	}
	return nil
}

func (s *PauseStore) Take(ctx context.Context, jobName string) (*model.PausedWorkflow, error) {
	var taken []model.PausedWorkflow
	result := s.getDB(ctx).
		Clauses(clause.Returning{}).
		Where("job_name = ?", jobName).
		Delete(&taken)
	if result.Error != nil {
		return nil, fmt.Errorf("taking pause record %q: %w", jobName, result.Error)
	}
	if result.RowsAffected == 0 || len(taken) == 0 {
		return nil, ErrRecordNotFound
	}
	return &taken[0], nil
}

func (s *PauseStore) CountByPurpose(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Purpose string
		Total   int64
	}
	err := s.getDB(ctx).Model(&model.PausedWorkflow{}).
		Select("purpose, COUNT(*) AS total").
		Group("purpose").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("counting pause records: %w", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Purpose] = r.Total
	}
	return counts, nil
}

func (s *PauseStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db.WithContext(ctx)
}
