package store

import (
	"context"

	"github.com/callinsights/transcribe-orchestrator/internal/store/model"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type Store interface {
	NewTransactionContext(ctx context.Context) (context.Context, error)
	Pause() Pause
	BatchJob() BatchJob
	InitialMigration() error
	Statistics(ctx context.Context) (model.Statistics, error)
	Close() error
}

type DataStore struct {
	db       *gorm.DB
	log      logrus.FieldLogger
	pause    Pause
	batchJob BatchJob
}

func NewStore(db *gorm.DB) Store {
	return &DataStore{
		db:       db,
		log:      logrus.New().WithField("pkg", "store"),
		pause:    NewPauseStore(db),
		batchJob: NewBatchJobStore(db),
	}
}

func (s *DataStore) NewTransactionContext(ctx context.Context) (context.Context, error) {
	return newTransactionContext(ctx, s.db, s.log)
}

func (s *DataStore) Pause() Pause {
	return s.pause
}

func (s *DataStore) BatchJob() BatchJob {
	return s.batchJob
}

func (s *DataStore) InitialMigration() error {
	return s.db.AutoMigrate(&model.PausedWorkflow{}, &model.BatchJobItem{})
}

// Statistics reads both tables inside one transaction so the numbers come
// from the same snapshot.
func (s *DataStore) Statistics(ctx context.Context) (model.Statistics, error) {
	ctx, err := s.NewTransactionContext(ctx)
	if err != nil {
		return model.Statistics{}, err
	}
	defer func() {
		_, _ = Rollback(ctx)
	}()

	byPurpose, err := s.pause.CountByPurpose(ctx)
	if err != nil {
		return model.Statistics{}, err
	}
	byState, err := s.batchJob.CountByState(ctx)
	if err != nil {
		return model.Statistics{}, err
	}

	stats := model.Statistics{
		PausedByPurpose:   byPurpose,
		BatchItemsByState: byState,
	}
	for _, n := range byPurpose {
		stats.PausedWorkflows += n
	}
	return stats, nil
}

func (s *DataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
