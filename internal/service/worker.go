package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/callinsights/transcribe-orchestrator/internal/store"
	"github.com/callinsights/transcribe-orchestrator/internal/store/model"
	"github.com/callinsights/transcribe-orchestrator/internal/transcribe"
	"github.com/callinsights/transcribe-orchestrator/pkg/metrics"
	"go.uber.org/zap"
)

// TranscriptionWorker starts the job of each queued batch item.
type TranscriptionWorker struct {
	transcriptions  *TranscriptionService
	tracker         store.BatchJob
	defaultLanguage string
	log             *zap.SugaredLogger
}

func NewTranscriptionWorker(transcriptions *TranscriptionService, tracker store.BatchJob, defaultLanguage string, log *zap.SugaredLogger) *TranscriptionWorker {
	return &TranscriptionWorker{
		transcriptions:  transcriptions,
		tracker:         tracker,
		defaultLanguage: defaultLanguage,
		log:             log.Named("transcription_worker"),
	}
}

// Handle processes one queue message. An error leaves the message on the
// queue for redelivery.
func (w *TranscriptionWorker) Handle(ctx context.Context, body string) error {
	var msg WorkMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		// redelivery cannot fix a malformed body
		w.log.Errorw("dropping malformed work message", "error", err)
		return nil
	}

	for _, rec := range msg.Records {
		if err := w.handleRecord(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (w *TranscriptionWorker) handleRecord(ctx context.Context, rec WorkRecord) error {
	if rec.SID == "" || rec.WavURL == "" {
		w.log.Errorw("dropping incomplete work record", "batch_job_id", rec.JobID, "sid", rec.SID)
		return nil
	}

	// The row goes IN_PROGRESS before the job exists, so a notification
	// racing the submission always lands after it.
	tracked := rec.JobID != ""
	if tracked {
		err := w.tracker.Advance(ctx, rec.JobID, rec.SID, model.BatchJobStateInProgress)
		switch {
		case err == nil:
		case errors.Is(err, store.ErrTerminalState):
			w.log.Infow("batch item already final, skipping", "batch_job_id", rec.JobID, "item_id", rec.SID)
			return nil
		case errors.Is(err, store.ErrRecordNotFound):
			w.log.Warnw("batch item no longer tracked", "batch_job_id", rec.JobID, "item_id", rec.SID)
			tracked = false
		default:
			metrics.IncreaseBatchItemUpdateFailuresMetric(metrics.ComponentWorker, string(model.BatchJobStateInProgress))
			return fmt.Errorf("marking %s/%s in progress: %w", rec.JobID, rec.SID, err)
		}
	}

	result, err := w.transcriptions.Start(ctx, StartRequest{
		InputRef:     rec.SID,
		MediaURI:     rec.WavURL,
		LanguageCode: transcribe.Locale(rec.Language, w.defaultLanguage),
		Final:        rec.SkipIfExists,
		Context: map[string]any{
			model.ContextBatchJobID: rec.JobID,
			model.ContextItemID:     rec.SID,
			model.ContextOwner:      rec.Owner,
		},
	})
	if err != nil {
		var auditErr *ErrSettingsAudit
		if !errors.As(err, &auditErr) {
			return fmt.Errorf("starting transcription of %s: %w", rec.SID, err)
		}
		// the job runs anyway, a redelivery would submit it twice
		w.log.Errorw("job started without settings audit", "job_name", auditErr.JobName, "error", err)
	}

	if !tracked || !result.ShortCircuited {
		return nil
	}
	err = w.tracker.Advance(ctx, rec.JobID, rec.SID, model.BatchJobStateCompleted)
	switch {
	case err == nil, errors.Is(err, store.ErrTerminalState):
	case errors.Is(err, store.ErrRecordNotFound):
		w.log.Warnw("batch item no longer tracked", "batch_job_id", rec.JobID, "item_id", rec.SID)
	default:
		// nothing was submitted, but a redelivery would only short-circuit again
		metrics.IncreaseBatchItemUpdateFailuresMetric(metrics.ComponentWorker, string(model.BatchJobStateCompleted))
		w.log.Errorw("failed to complete short-circuited batch item", "batch_job_id", rec.JobID, "item_id", rec.SID, "error", err)
	}
	return nil
}
