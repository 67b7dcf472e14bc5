package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/callinsights/transcribe-orchestrator/internal/jobname"
	"github.com/callinsights/transcribe-orchestrator/internal/store"
	"github.com/callinsights/transcribe-orchestrator/internal/store/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// PauseRegistry holds the workflows of one purpose waiting for their runner
// job. Callers must Save before submitting the job so that no notification
// can arrive for an unregistered job name.
type PauseRegistry struct {
	store   store.Pause
	purpose string
	log     *zap.SugaredLogger
}

func NewPauseRegistry(s store.Pause, purpose string, log *zap.SugaredLogger) *PauseRegistry {
	return &PauseRegistry{store: s, purpose: purpose, log: log.Named("pause_registry")}
}

func (r *PauseRegistry) Purpose() string {
	return r.purpose
}

func (r *PauseRegistry) Save(ctx context.Context, jobName, resumeToken string, pauseCtx map[string]any) error {
	if !jobname.MatchesPurpose(jobName, r.purpose) {
		return fmt.Errorf("%w: %s", ErrForeignJob, jobName)
	}

	err := r.store.Save(ctx, model.PausedWorkflow{
		JobName:     jobName,
		ResumeToken: resumeToken,
		Purpose:     r.purpose,
		Context:     datatypes.JSONMap(pauseCtx),
	})
	if err != nil {
		return fmt.Errorf("registering pause of job %s: %w", jobName, err)
	}

	r.log.Debugw("workflow paused", "job_name", jobName, "has_token", resumeToken != "")
	return nil
}

// Take removes and returns the pause record of jobName. Job names of other
// purposes get ErrForeignJob without touching the store; a missing record
// gets ErrStaleNotification.
func (r *PauseRegistry) Take(ctx context.Context, jobName string) (*model.PausedWorkflow, error) {
	if !jobname.MatchesPurpose(jobName, r.purpose) {
		return nil, ErrForeignJob
	}

	p, err := r.store.Take(ctx, jobName)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, ErrStaleNotification
		}
		return nil, fmt.Errorf("taking pause of job %s: %w", jobName, err)
	}
	return p, nil
}
