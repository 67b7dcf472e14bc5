package model

import (
	"time"

	"gorm.io/datatypes"
)

// Keys of the pause context written by the submission side and read back on
// resumption.
const (
	ContextInputRef     = "input_ref"
	ContextOutputBucket = "output_bucket"
	ContextOutputKey    = "output_key"
	ContextBatchJobID   = "batch_job_id"
	ContextItemID       = "item_id"
	ContextOwner        = "owner"
	ContextLanguageCode = "language_code"
	ContextLocale       = "locale"
)

// PausedWorkflow is a workflow invocation blocked on an external job. The row
// lives from submission until the first notification for JobName.
type PausedWorkflow struct {
	JobName     string            `gorm:"primaryKey;column:job_name"`
	ResumeToken string            `gorm:"column:resume_token"`
	Purpose     string            `gorm:"column:purpose;not null;index"`
	Context     datatypes.JSONMap `gorm:"column:context"`
	CreatedAt   time.Time         `gorm:"column:created_at;not null"`
}

func (PausedWorkflow) TableName() string {
	return "paused_workflows"
}

// ContextString returns the string stored under key in the pause context.
func (p PausedWorkflow) ContextString(key string) string {
	if p.Context == nil {
		return ""
	}
	v, ok := p.Context[key].(string)
	if !ok {
		return ""
	}
	return v
}
