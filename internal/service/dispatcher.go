package service

import (
	"context"
	"errors"
	"maps"

	"github.com/callinsights/transcribe-orchestrator/internal/store"
	"github.com/callinsights/transcribe-orchestrator/internal/store/model"
	"github.com/callinsights/transcribe-orchestrator/internal/transcribe"
	"github.com/callinsights/transcribe-orchestrator/internal/workflow"
	"github.com/callinsights/transcribe-orchestrator/pkg/metrics"
	"go.uber.org/zap"
)

type Outcome string

const (
	OutcomeIgnored        Outcome = "IGNORED"
	OutcomeStale          Outcome = "IGNORED_STALE"
	OutcomeResumedSuccess Outcome = "RESUMED_SUCCESS"
	OutcomeResumedFailure Outcome = "RESUMED_FAILURE"
)

const defaultFailureReason = "transcription job failed"

// ResumptionDispatcher turns runner notifications into workflow signals.
// A notification resumes at most one workflow: the pause record is taken
// before anything else happens and nothing else guards against duplicates.
type ResumptionDispatcher struct {
	registry *PauseRegistry
	runner   JobRunner
	signaler WorkflowSignaler
	tracker  store.BatchJob
	log      *zap.SugaredLogger
}

func NewResumptionDispatcher(registry *PauseRegistry, runner JobRunner, signaler WorkflowSignaler, tracker store.BatchJob, log *zap.SugaredLogger) *ResumptionDispatcher {
	return &ResumptionDispatcher{
		registry: registry,
		runner:   runner,
		signaler: signaler,
		tracker:  tracker,
		log:      log.Named("dispatcher"),
	}
}

// Dispatch handles one notification. Stale and foreign notifications are not
// errors. A failed signal is returned as is and never retried here: a
// redelivery of the notification finds no record.
func (d *ResumptionDispatcher) Dispatch(ctx context.Context, n Notification) (Outcome, error) {
	outcome, err := d.dispatch(ctx, n)
	if err != nil {
		metrics.IncreaseNotificationsTotalMetric(metrics.NotificationError)
	} else {
		metrics.IncreaseNotificationsTotalMetric(outcomeLabel(outcome))
	}
	return outcome, err
}

// HandleMessage dispatches one event read from the notification queue.
// Events that cannot be parsed are dropped.
func (d *ResumptionDispatcher) HandleMessage(ctx context.Context, body string) error {
	n, err := ParseNotification([]byte(body))
	if err != nil {
		d.log.Errorw("dropping malformed notification", "error", err)
		return nil
	}
	_, err = d.Dispatch(ctx, n)
	return err
}

func (d *ResumptionDispatcher) dispatch(ctx context.Context, n Notification) (Outcome, error) {
	if !n.succeeded() && !n.failed() {
		d.log.Debugw("ignoring non terminal notification", "job_name", n.JobName, "status", n.Status)
		return OutcomeIgnored, nil
	}

	paused, err := d.registry.Take(ctx, n.JobName)
	switch {
	case errors.Is(err, ErrForeignJob):
		d.log.Debugw("ignoring notification of another purpose", "job_name", n.JobName)
		return OutcomeIgnored, nil
	case errors.Is(err, ErrStaleNotification):
		d.log.Warnw("no paused workflow for job, already resumed or unknown", "job_name", n.JobName, "status", n.Status)
		return OutcomeStale, nil
	case err != nil:
		return "", err
	}

	if n.succeeded() {
		return d.resumeSuccess(ctx, n, paused)
	}
	return d.resumeFailure(ctx, paused, d.failureReason(ctx, n))
}

func (d *ResumptionDispatcher) resumeSuccess(ctx context.Context, n Notification, paused *model.PausedWorkflow) (Outcome, error) {
	output := make(map[string]any, len(paused.Context)+4)
	maps.Copy(output, paused.Context)
	output["job_name"] = n.JobName
	if n.OutputLocation != "" {
		output["transcript_uri"] = n.OutputLocation
	}

	// the job succeeded either way, a failed read only costs the language
	job, err := d.runner.Describe(ctx, n.JobName)
	if err != nil {
		d.log.Warnw("job result unreadable, resuming without language", "job_name", n.JobName, "error", err)
	} else {
		output[model.ContextLocale] = job.LanguageCode
		code, ok := transcribe.ShortCode(job.LanguageCode)
		if !ok {
			d.log.Warnw("unknown language, passing it through", "job_name", n.JobName, "language", job.LanguageCode)
		}
		output[model.ContextLanguageCode] = code
		if job.TranscriptURI != "" {
			output["transcript_uri"] = job.TranscriptURI
		}
	}

	signalErr := d.signal(ctx, paused, func(token string) error {
		return d.signaler.Succeed(ctx, token, output)
	})
	d.advanceBatchItem(ctx, paused, model.BatchJobStateCompleted)
	if signalErr != nil {
		return "", signalErr
	}

	d.log.Infow("workflow resumed", "job_name", n.JobName, "language_code", output[model.ContextLanguageCode])
	return OutcomeResumedSuccess, nil
}

func (d *ResumptionDispatcher) resumeFailure(ctx context.Context, paused *model.PausedWorkflow, reason string) (Outcome, error) {
	signalErr := d.signal(ctx, paused, func(token string) error {
		return d.signaler.Fail(ctx, token, reason)
	})
	d.advanceBatchItem(ctx, paused, model.BatchJobStateFailed)
	if signalErr != nil {
		return "", signalErr
	}

	d.log.Infow("workflow resumed with failure", "job_name", paused.JobName, "reason", reason)
	return OutcomeResumedFailure, nil
}

// signal sends the workflow signal first: the pause record is already gone
// and nothing else can resume the workflow. Queue-driven records carry no
// token and are not signalled.
func (d *ResumptionDispatcher) signal(ctx context.Context, paused *model.PausedWorkflow, send func(token string) error) error {
	if paused.ResumeToken == "" {
		return nil
	}
	if err := send(paused.ResumeToken); err != nil {
		d.logSignalError(paused.JobName, err)
		return err
	}
	return nil
}

func (d *ResumptionDispatcher) failureReason(ctx context.Context, n Notification) string {
	if n.FailureReason != "" {
		return n.FailureReason
	}
	job, err := d.runner.Describe(ctx, n.JobName)
	if err != nil || job.FailureReason == "" {
		return defaultFailureReason
	}
	return job.FailureReason
}

// advanceBatchItem records the job outcome on its batch row. Failures are
// logged and counted only: the workflow has been signalled already.
func (d *ResumptionDispatcher) advanceBatchItem(ctx context.Context, paused *model.PausedWorkflow, state model.BatchJobState) {
	jobID := paused.ContextString(model.ContextBatchJobID)
	if jobID == "" {
		return
	}
	itemID := paused.ContextString(model.ContextItemID)

	err := d.tracker.Advance(ctx, jobID, itemID, state)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrRecordNotFound):
		d.log.Warnw("batch item no longer tracked", "batch_job_id", jobID, "item_id", itemID)
	case errors.Is(err, store.ErrTerminalState):
		d.log.Warnw("batch item already final", "batch_job_id", jobID, "item_id", itemID, "state", state)
	default:
		metrics.IncreaseBatchItemUpdateFailuresMetric(metrics.ComponentDispatcher, string(state))
		d.log.Errorw("failed to advance batch item", "batch_job_id", jobID, "item_id", itemID, "state", state, "error", err)
	}
}

func (d *ResumptionDispatcher) logSignalError(jobName string, err error) {
	if workflow.IsTokenRejected(err) {
		d.log.Errorw("workflow engine rejected the resume token", "job_name", jobName, "error", err)
		return
	}
	d.log.Errorw("failed to signal workflow", "job_name", jobName, "error", err)
}

func outcomeLabel(o Outcome) string {
	switch o {
	case OutcomeStale:
		return metrics.NotificationStale
	case OutcomeResumedSuccess:
		return metrics.NotificationResumedSuccess
	case OutcomeResumedFailure:
		return metrics.NotificationResumedFailure
	default:
		return metrics.NotificationIgnored
	}
}
