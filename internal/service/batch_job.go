package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/callinsights/transcribe-orchestrator/internal/auth"
	"github.com/callinsights/transcribe-orchestrator/internal/jobname"
	"github.com/callinsights/transcribe-orchestrator/internal/search"
	"github.com/callinsights/transcribe-orchestrator/internal/store"
	"github.com/callinsights/transcribe-orchestrator/internal/store/model"
	"github.com/callinsights/transcribe-orchestrator/pkg/metrics"
	"github.com/thoas/go-funk"
	"go.uber.org/zap"
)

type BatchJobServiceConfig struct {
	Index       string
	AccessIndex string
	TTL         time.Duration
}

type BatchJobService struct {
	tracker   store.BatchJob
	publisher *BatchJobPublisher
	newSearch SearchFactory
	cfg       BatchJobServiceConfig
	log       *zap.SugaredLogger
	now       func() time.Time
}

func NewBatchJobService(tracker store.BatchJob, publisher *BatchJobPublisher, newSearch SearchFactory, cfg BatchJobServiceConfig, log *zap.SugaredLogger) *BatchJobService {
	return &BatchJobService{
		tracker:   tracker,
		publisher: publisher,
		newSearch: newSearch,
		cfg:       cfg,
		log:       log.Named("batch_job_service"),
		now:       time.Now,
	}
}

type BatchJobCreated struct {
	JobID string
	Items []string
}

// Create validates ids against the call index with the caller's credentials,
// tracks one PENDING row per id and queues the items. Nothing is written when
// validation fails. A publish failure comes back as *ErrPartialPublish along
// with the created job.
func (s *BatchJobService) Create(ctx context.Context, user auth.User, creds aws.Credentials, ids []string) (*BatchJobCreated, error) {
	if len(ids) == 0 {
		return nil, NewErrInvalidRequest("call_ids must not be empty")
	}
	if dups := duplicates(ids); len(dups) > 0 {
		return nil, NewErrInvalidRequest(fmt.Sprintf("duplicate call_ids: %v", dups))
	}
	if !creds.HasKeys() {
		return nil, NewErrAccessDenied("caller credentials are required")
	}

	index, err := s.newSearch(creds)
	if err != nil {
		return nil, classifySearchError(err)
	}

	allowed, err := index.ValidateUserAccess(ctx, s.cfg.AccessIndex, user.Groups)
	if err != nil {
		return nil, classifySearchError(err)
	}
	if !allowed {
		return nil, NewErrAccessDenied(fmt.Sprintf("user %s has no access to call transcription", user.Username))
	}

	invalid, err := index.InvalidIDs(ctx, s.cfg.Index, ids, search.AccessRestriction(user.Groups))
	if err != nil {
		return nil, classifySearchError(err)
	}
	if len(invalid) > 0 {
		s.log.Infow("rejected batch request", "user", user.Username, "invalid_ids", invalid)
		return nil, NewErrValidation(invalid)
	}

	calls, err := index.CallMetadata(ctx, s.cfg.Index, ids)
	if err != nil {
		return nil, classifySearchError(err)
	}

	jobID := jobname.NewBatchJobID(s.now())
	if _, err := s.tracker.Create(ctx, jobID, ids, user.Username, s.cfg.TTL); err != nil {
		return nil, NewErrExternalService("status store", err)
	}
	metrics.UniqueRequestersPerWeek.Add(user.Username)
	s.log.Infow("batch job created", "batch_job_id", jobID, "user", user.Username, "items", len(ids))

	created := &BatchJobCreated{JobID: jobID, Items: ids}
	if err := s.publisher.Publish(ctx, jobID, user.Username, ids, calls); err != nil {
		return created, err
	}
	return created, nil
}

func (s *BatchJobService) Get(ctx context.Context, user auth.User, jobID string) (*model.BatchJob, error) {
	job, err := s.tracker.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrBatchJobNotFound(jobID)
		}
		return nil, NewErrExternalService("status store", err)
	}
	if job.Owner != user.Username {
		return nil, NewErrBatchJobAccessForbidden(jobID, user.Username)
	}
	return job, nil
}

// ListActive returns the caller's items updated since, newest first.
func (s *BatchJobService) ListActive(ctx context.Context, user auth.User, since time.Time) ([]model.BatchJobItem, error) {
	items, err := s.tracker.ListActive(ctx, user.Username, since)
	if err != nil {
		return nil, NewErrExternalService("status store", err)
	}
	return items, nil
}

func classifySearchError(err error) error {
	switch {
	case errors.Is(err, search.ErrAccessDenied), errors.Is(err, search.ErrMissingCredentials):
		return NewErrAccessDenied(err.Error())
	default:
		return NewErrExternalService("search index", err)
	}
}

func duplicates(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	var dups []string
	for _, id := range ids {
		if _, ok := seen[id]; ok && !funk.ContainsString(dups, id) {
			dups = append(dups, id)
		}
		seen[id] = struct{}{}
	}
	return dups
}
