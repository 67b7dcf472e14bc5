package service

import (
	"encoding/json"
	"fmt"
	"strings"
)

const transcribeStateChange = "Transcribe Job State Change"

// Notification is a terminal state reported by the runner for one job.
type Notification struct {
	JobName        string `json:"job_name" validate:"required,job_name"`
	Status         string `json:"status" validate:"required"`
	OutputLocation string `json:"output_location,omitempty"`
	FailureReason  string `json:"failure_reason,omitempty"`
}

type stateChangeEvent struct {
	DetailType string `json:"detail-type"`
	Detail     struct {
		TranscriptionJobName   string `json:"TranscriptionJobName"`
		TranscriptionJobStatus string `json:"TranscriptionJobStatus"`
		FailureReason          string `json:"FailureReason"`
	} `json:"detail"`
}

// ParseNotification accepts the runner's state change event or the flat
// {job_name, status, output_location} form.
func ParseNotification(body []byte) (Notification, error) {
	var event stateChangeEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return Notification{}, NewErrInvalidRequest(fmt.Sprintf("malformed notification: %s", err))
	}
	if event.DetailType == transcribeStateChange || event.Detail.TranscriptionJobName != "" {
		return Notification{
			JobName:       event.Detail.TranscriptionJobName,
			Status:        event.Detail.TranscriptionJobStatus,
			FailureReason: event.Detail.FailureReason,
		}, nil
	}

	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return Notification{}, NewErrInvalidRequest(fmt.Sprintf("malformed notification: %s", err))
	}
	if n.JobName == "" {
		return Notification{}, NewErrInvalidRequest("notification has no job name")
	}
	return n, nil
}

func (n Notification) succeeded() bool {
	switch strings.ToUpper(n.Status) {
	case "COMPLETED", "SUCCESS", "SUCCEEDED":
		return true
	}
	return false
}

func (n Notification) failed() bool {
	return strings.ToUpper(n.Status) == "FAILED"
}
