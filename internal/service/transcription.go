package service

import (
	"context"
	"errors"
	"maps"

	"github.com/callinsights/transcribe-orchestrator/internal/store/model"
	"go.uber.org/zap"
)

type StartRequest struct {
	// ResumeToken unblocks the waiting workflow. Queue-driven items have none.
	ResumeToken  string
	InputRef     string
	MediaURI     string
	MediaFormat  string
	LanguageCode string
	Final        bool
	// Context is handed back on resumption.
	Context map[string]any
}

// TranscriptionService starts jobs whose completion resumes a paused
// workflow.
type TranscriptionService struct {
	submitter *IdempotentSubmitter
	registry  *PauseRegistry
	log       *zap.SugaredLogger
}

func NewTranscriptionService(submitter *IdempotentSubmitter, registry *PauseRegistry, log *zap.SugaredLogger) *TranscriptionService {
	return &TranscriptionService{submitter: submitter, registry: registry, log: log.Named("transcription_service")}
}

// Start registers the pause record and then submits the job. A short-circuit
// registers nothing. If the runner refuses the job the record is taken back
// and the runner error is returned unchanged.
func (s *TranscriptionService) Start(ctx context.Context, req StartRequest) (*SubmitResult, error) {
	sub := SubmitRequest{
		InputRef:     req.InputRef,
		MediaURI:     req.MediaURI,
		MediaFormat:  req.MediaFormat,
		LanguageCode: req.LanguageCode,
		Final:        req.Final,
	}
	if req.InputRef == "" {
		return nil, NewErrInvalidRequest("input reference is required")
	}

	result, err := s.submitter.ShortCircuit(ctx, sub)
	if err != nil || result != nil {
		return result, err
	}

	sub.JobName = s.submitter.NewJobName(req.InputRef)
	bucket, key := s.submitter.OutputLocation(req.InputRef)

	pauseCtx := make(map[string]any, len(req.Context)+3)
	maps.Copy(pauseCtx, req.Context)
	pauseCtx[model.ContextInputRef] = req.InputRef
	pauseCtx[model.ContextOutputBucket] = bucket
	pauseCtx[model.ContextOutputKey] = key

	if err := s.registry.Save(ctx, sub.JobName, req.ResumeToken, pauseCtx); err != nil {
		return nil, err
	}

	result, err = s.submitter.Launch(ctx, sub)
	if err != nil {
		var auditErr *ErrSettingsAudit
		if !errors.As(err, &auditErr) {
			// no job, so no notification will ever take the record
			if _, takeErr := s.registry.Take(ctx, sub.JobName); takeErr != nil {
				s.log.Errorw("failed to remove pause record of refused job", "job_name", sub.JobName, "error", takeErr)
			}
		}
		return result, err
	}
	return result, nil
}
