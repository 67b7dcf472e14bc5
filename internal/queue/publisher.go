package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"
)

// maxBatchEntries is the SQS limit for SendMessageBatch.
const maxBatchEntries = 10

type Message struct {
	// Key identifies the message to the caller, e.g. the item id.
	Key  string
	Body string
}

type Failure struct {
	Key    string
	Reason string
}

type Publisher struct {
	api      API
	queueURL string
}

func NewPublisher(api API, queueURL string) *Publisher {
	return &Publisher{api: api, queueURL: queueURL}
}

// Send enqueues every message, ten per call. A failed call or a rejected
// entry only fails the messages concerned; the rest are still sent. Send
// reports failures by key and never retries.
func (p *Publisher) Send(ctx context.Context, messages []Message) []Failure {
	var failures []Failure
	for start := 0; start < len(messages); start += maxBatchEntries {
		end := min(start+maxBatchEntries, len(messages))
		failures = append(failures, p.sendChunk(ctx, messages[start:end])...)
	}
	return failures
}

func (p *Publisher) sendChunk(ctx context.Context, chunk []Message) []Failure {
	// entry ids only need to be unique within one call
	entries := make([]types.SendMessageBatchRequestEntry, 0, len(chunk))
	byID := make(map[string]string, len(chunk))
	for i, m := range chunk {
		id := strconv.Itoa(i)
		byID[id] = m.Key
		entries = append(entries, types.SendMessageBatchRequestEntry{
			Id:          aws.String(id),
			MessageBody: aws.String(m.Body),
		})
	}

	out, err := p.api.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
		QueueUrl: aws.String(p.queueURL),
		Entries:  entries,
	})
	if err != nil {
		reason := callFailureReason(err)
		failures := make([]Failure, 0, len(chunk))
		for _, m := range chunk {
			failures = append(failures, Failure{Key: m.Key, Reason: reason})
		}
		return failures
	}

	failures := make([]Failure, 0, len(out.Failed))
	for _, f := range out.Failed {
		failures = append(failures, Failure{
			Key:    byID[aws.ToString(f.Id)],
			Reason: fmt.Sprintf("%s: %s", aws.ToString(f.Code), aws.ToString(f.Message)),
		})
	}
	return failures
}

func callFailureReason(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("%s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage())
	}
	return err.Error()
}
