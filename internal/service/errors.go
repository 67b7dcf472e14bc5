package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/callinsights/transcribe-orchestrator/internal/queue"
)

// ErrStaleNotification marks a notification whose pause record was already
// taken or never existed. It is never reported to the notification source.
var ErrStaleNotification = errors.New("stale notification")

// ErrForeignJob marks a job name issued for another purpose.
var ErrForeignJob = errors.New("job belongs to another purpose")

type ErrValidation struct {
	error
	IDs []string
}

func NewErrValidation(ids []string) *ErrValidation {
	return &ErrValidation{error: fmt.Errorf("invalid call_ids: [%s]", strings.Join(ids, ", ")), IDs: ids}
}

func NewErrInvalidRequest(message string) *ErrValidation {
	return &ErrValidation{error: fmt.Errorf("bad request: %s", message)}
}

type ErrAccessDenied struct {
	error
}

func NewErrAccessDenied(message string) *ErrAccessDenied {
	return &ErrAccessDenied{fmt.Errorf("access denied: %s", message)}
}

type ErrConfiguration struct {
	error
}

func NewErrConfiguration(err error) *ErrConfiguration {
	return &ErrConfiguration{fmt.Errorf("configuration error: %w", err)}
}

func (e *ErrConfiguration) Unwrap() error {
	return errors.Unwrap(e.error)
}

// ErrExternalService is a transport or server failure of a collaborator. The
// caller decides whether to retry the whole request.
type ErrExternalService struct {
	error
	Service string
}

func NewErrExternalService(service string, err error) *ErrExternalService {
	return &ErrExternalService{error: fmt.Errorf("%s failed: %w", service, err), Service: service}
}

func (e *ErrExternalService) Unwrap() error {
	return errors.Unwrap(e.error)
}

// ErrPartialPublish lists the batch items that could not be queued. The other
// items are queued and their tracker rows are kept.
type ErrPartialPublish struct {
	error
	Failed []queue.Failure
}

func NewErrPartialPublish(jobID string, failed []queue.Failure) *ErrPartialPublish {
	keys := make([]string, 0, len(failed))
	for _, f := range failed {
		keys = append(keys, f.Key)
	}
	return &ErrPartialPublish{
		error:  fmt.Errorf("batch job %s: failed to queue %d item(s): [%s]", jobID, len(failed), strings.Join(keys, ", ")),
		Failed: failed,
	}
}

type ErrResourceNotFound struct {
	error
}

func NewErrResourceNotFound(id string, resourceType string) *ErrResourceNotFound {
	return &ErrResourceNotFound{fmt.Errorf("%s %s not found", resourceType, id)}
}

func NewErrBatchJobNotFound(id string) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "batch job")
}

type ErrBatchJobAccessForbidden struct {
	error
}

func NewErrBatchJobAccessForbidden(id, username string) *ErrBatchJobAccessForbidden {
	return &ErrBatchJobAccessForbidden{fmt.Errorf("user %s is not the owner of batch job %s", username, id)}
}

// ErrSettingsAudit means the job was accepted by the runner but its settings
// could not be recorded in the unit metadata.
type ErrSettingsAudit struct {
	error
	JobName string
}

func NewErrSettingsAudit(jobName string, err error) *ErrSettingsAudit {
	return &ErrSettingsAudit{error: fmt.Errorf("recording settings of job %s: %w", jobName, err), JobName: jobName}
}

func (e *ErrSettingsAudit) Unwrap() error {
	return errors.Unwrap(e.error)
}
