package service

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/callinsights/transcribe-orchestrator/internal/artifact"
	"github.com/callinsights/transcribe-orchestrator/internal/queue"
	"github.com/callinsights/transcribe-orchestrator/internal/search"
	"github.com/callinsights/transcribe-orchestrator/internal/transcribe"
	"github.com/callinsights/transcribe-orchestrator/internal/workflow"
)

// JobRunner is the external job runner.
type JobRunner interface {
	Submit(ctx context.Context, p transcribe.Params) (string, error)
	Describe(ctx context.Context, jobName string) (*transcribe.Job, error)
	Settings() transcribe.Settings
}

type ArtifactStore interface {
	Exists(ctx context.Context, bucket, key string) (bool, error)
	ReadJSON(ctx context.Context, bucket, key string) (map[string]any, error)
	WriteJSON(ctx context.Context, bucket, key string, doc map[string]any) error
}

type WorkflowSignaler interface {
	Succeed(ctx context.Context, token string, output map[string]any) error
	Fail(ctx context.Context, token, reason string) error
}

type QueueSender interface {
	Send(ctx context.Context, messages []queue.Message) []queue.Failure
}

// SearchIndex is the call index as seen by one caller.
type SearchIndex interface {
	ValidateUserAccess(ctx context.Context, accessIndex string, groups []string) (bool, error)
	InvalidIDs(ctx context.Context, index string, ids []string, restriction map[string]any) ([]string, error)
	CallMetadata(ctx context.Context, index string, ids []string) ([]search.CallMetadata, error)
}

// SearchFactory builds a SearchIndex acting with the caller's credentials.
type SearchFactory func(creds aws.Credentials) (SearchIndex, error)

var (
	_ JobRunner        = (*transcribe.Runner)(nil)
	_ ArtifactStore    = (*artifact.Store)(nil)
	_ WorkflowSignaler = (*workflow.Signaler)(nil)
	_ QueueSender      = (*queue.Publisher)(nil)
	_ SearchIndex      = (*search.Client)(nil)
)
