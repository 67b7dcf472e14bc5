// Package v1alpha1 holds the wire types of the orchestrator HTTP API.
package v1alpha1

import "time"

type BatchJobStatus string

const (
	BatchJobStatusPending    BatchJobStatus = "PENDING"
	BatchJobStatusInProgress BatchJobStatus = "IN_PROGRESS"
	BatchJobStatusCompleted  BatchJobStatus = "COMPLETED"
	BatchJobStatusFailed     BatchJobStatus = "FAILED"
)

type CreateBatchJobRequest struct {
	CallIds []string `json:"call_ids" validate:"required,min=1,max=1000,dive,call_id"`
}

type CreateBatchJobResponse struct {
	JobId   string         `json:"job_id"`
	CallIds []string       `json:"call_ids"`
	Status  BatchJobStatus `json:"status"`
}

type BatchJobItem struct {
	JobId      string         `json:"job_id"`
	CallId     string         `json:"call_id"`
	Status     BatchJobStatus `json:"status"`
	LastUpdate time.Time      `json:"last_update"`
}

type BatchJob struct {
	JobId      string                 `json:"job_id"`
	Owner      string                 `json:"owner"`
	Done       bool                   `json:"done"`
	Counts     map[BatchJobStatus]int `json:"counts"`
	LastUpdate time.Time              `json:"last_update"`
	Items      []BatchJobItem         `json:"items"`
}

type BatchJobItemList []BatchJobItem

type NotificationResponse struct {
	Outcome string `json:"outcome"`
}

type Error struct {
	Message    string   `json:"message"`
	RequestId  *string  `json:"request_id,omitempty"`
	InvalidIds []string `json:"invalid_ids,omitempty"`
	FailedIds  []string `json:"failed_ids,omitempty"`
	JobId      *string  `json:"job_id,omitempty"`
}
