package dynamo

import (
	"context"

	"github.com/callinsights/transcribe-orchestrator/internal/store"
	"github.com/callinsights/transcribe-orchestrator/internal/store/model"
)

// Store bundles the DynamoDB backed stores behind store.Store. DynamoDB has
// no multi-statement transactions here: every store call is its own
// conditional write.
type Store struct {
	pause    *PauseStore
	batchJob *BatchJobStore
}

var _ store.Store = (*Store)(nil)

func NewStore(api API, pauseTable, statusTable, ownerIndex string) *Store {
	return &Store{
		pause:    NewPauseStore(api, pauseTable),
		batchJob: NewBatchJobStore(api, statusTable, ownerIndex),
	}
}

func (s *Store) NewTransactionContext(ctx context.Context) (context.Context, error) {
	return ctx, nil
}

func (s *Store) Pause() store.Pause {
	return s.pause
}

func (s *Store) BatchJob() store.BatchJob {
	return s.batchJob
}

// InitialMigration is a no-op, tables are provisioned outside the service.
func (s *Store) InitialMigration() error {
	return nil
}

func (s *Store) Statistics(ctx context.Context) (model.Statistics, error) {
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

func (s *Store) Close() error {
	return nil
}
