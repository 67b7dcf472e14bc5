package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/callinsights/transcribe-orchestrator/internal/queue"
	"github.com/callinsights/transcribe-orchestrator/internal/search"
	"github.com/callinsights/transcribe-orchestrator/pkg/metrics"
	"go.uber.org/zap"
)

// WorkRecord is one unit of work as carried on the work queue.
type WorkRecord struct {
	search.CallMetadata
	JobID        string `json:"on_request_job_id"`
	Owner        string `json:"on_request_job_user"`
	SkipIfExists bool   `json:"skip_if_exists"`
}

type WorkMessage struct {
	Records []WorkRecord `json:"Records"`
}

type AudioLocation struct {
	Bucket string
	Prefix string
}

// WavURL is the recording of the call with the given filename prefix.
func (a AudioLocation) WavURL(filenamePrefix string) string {
	prefix := strings.Trim(a.Prefix, "/")
	if prefix == "" {
		return fmt.Sprintf("s3://%s/%s.wav", a.Bucket, filenamePrefix)
	}
	return fmt.Sprintf("s3://%s/%s/%s.wav", a.Bucket, prefix, filenamePrefix)
}

type BatchJobPublisher struct {
	queue        QueueSender
	audio        AudioLocation
	skipIfExists bool
	log          *zap.SugaredLogger
}

func NewBatchJobPublisher(q QueueSender, audio AudioLocation, skipIfExists bool, log *zap.SugaredLogger) *BatchJobPublisher {
	return &BatchJobPublisher{queue: q, audio: audio, skipIfExists: skipIfExists, log: log.Named("batch_publisher")}
}

// Publish queues one message per item. Items are sent independently: the
// error, if any, is an *ErrPartialPublish naming the items left out while the
// others stay queued.
func (p *BatchJobPublisher) Publish(ctx context.Context, jobID, owner string, items []string, calls []search.CallMetadata) error {
	byID := make(map[string]search.CallMetadata, len(calls))
	for _, c := range calls {
		byID[c.SID] = c
	}

	var failed []queue.Failure
	messages := make([]queue.Message, 0, len(items))
	for _, id := range items {
		call, found := byID[id]
		if !found {
			failed = append(failed, queue.Failure{Key: id, Reason: "call metadata not found"})
			continue
		}
		call.WavURL = p.audio.WavURL(call.FilenamePrefix)

		body, err := json.Marshal(WorkMessage{Records: []WorkRecord{{
			CallMetadata: call,
			JobID:        jobID,
			Owner:        owner,
			SkipIfExists: p.skipIfExists,
		}}})
		if err != nil {
			failed = append(failed, queue.Failure{Key: id, Reason: err.Error()})
			continue
		}
		messages = append(messages, queue.Message{Key: id, Body: string(body)})
	}

	sendFailures := p.queue.Send(ctx, messages)
	failed = append(failed, sendFailures...)

	metrics.AddBatchItemsPublishedMetric(metrics.PublishOK, len(messages)-len(sendFailures))
	metrics.AddBatchItemsPublishedMetric(metrics.PublishFailed, len(failed))

	if len(failed) > 0 {
		p.log.Errorw("batch job partially published", "batch_job_id", jobID, "failed", len(failed), "total", len(items))
		return NewErrPartialPublish(jobID, failed)
	}
	p.log.Infow("batch job published", "batch_job_id", jobID, "items", len(items))
	return nil
}
