package service

import (
	"context"
	"fmt"
	"time"

	"github.com/callinsights/transcribe-orchestrator/internal/jobname"
	"github.com/callinsights/transcribe-orchestrator/internal/transcribe"
	"github.com/callinsights/transcribe-orchestrator/pkg/metrics"
	"go.uber.org/zap"
)

// settingsField is where the submission settings land in the unit metadata.
const settingsField = "transcribe_settings"

type SubmitterConfig struct {
	Purpose        string
	OutputBucket   string
	OutputPrefix   string
	MetadataBucket string
	MetadataPrefix string
}

type SubmitRequest struct {
	InputRef     string
	JobName      string
	MediaURI     string
	MediaFormat  string
	LanguageCode string
	// Final lets an existing output artifact stand in for a new job.
	Final bool
}

type SubmitResult struct {
	ShortCircuited bool
	JobHandle      string
	OutputBucket   string
	OutputKey      string
}

type IdempotentSubmitter struct {
	runner    JobRunner
	artifacts ArtifactStore
	cfg       SubmitterConfig
	log       *zap.SugaredLogger
}

func NewIdempotentSubmitter(runner JobRunner, artifacts ArtifactStore, cfg SubmitterConfig, log *zap.SugaredLogger) *IdempotentSubmitter {
	return &IdempotentSubmitter{
		runner:    runner,
		artifacts: artifacts,
		cfg:       cfg,
		log:       log.Named("submitter"),
	}
}

func (s *IdempotentSubmitter) Purpose() string {
	return s.cfg.Purpose
}

func (s *IdempotentSubmitter) NewJobName(inputRef string) string {
	return jobname.New(s.cfg.Purpose, inputRef)
}

// OutputLocation is where the runner writes the result for inputRef.
func (s *IdempotentSubmitter) OutputLocation(inputRef string) (bucket, key string) {
	return s.cfg.OutputBucket, jobname.OutputKey(s.cfg.OutputPrefix, s.cfg.Purpose, inputRef)
}

// Submit short-circuits when allowed and otherwise launches a new job.
func (s *IdempotentSubmitter) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	result, err := s.ShortCircuit(ctx, req)
	if err != nil || result != nil {
		return result, err
	}
	return s.Launch(ctx, req)
}

// ShortCircuit returns the PASS result when req is final and its artifact
// already exists, and nil when a job has to be launched. A failed existence
// check is an error, never a "does not exist".
func (s *IdempotentSubmitter) ShortCircuit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if !req.Final {
		return nil, nil
	}

	bucket, key := s.OutputLocation(req.InputRef)
	exists, err := s.artifacts.Exists(ctx, bucket, key)
	if err != nil {
		metrics.IncreaseSubmissionsTotalMetric(metrics.SubmissionFailed)
		return nil, NewErrExternalService("artifact store", fmt.Errorf("checking s3://%s/%s: %w", bucket, key, err))
	}
	if !exists {
		return nil, nil
	}

	metrics.IncreaseSubmissionsTotalMetric(metrics.SubmissionShortCircuited)
	s.log.Infow("output already exists, skipping submission", "input_ref", req.InputRef, "bucket", bucket, "key", key)
	return &SubmitResult{
		ShortCircuited: true,
		JobHandle:      jobname.PassHandle,
		OutputBucket:   bucket,
		OutputKey:      key,
	}, nil
}

// Launch submits req to the runner without looking for an existing artifact.
// Runner errors are returned unchanged. When the runner accepted the job but
// its settings could not be recorded, Launch returns both the result and an
// *ErrSettingsAudit.
func (s *IdempotentSubmitter) Launch(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	bucket, key := s.OutputLocation(req.InputRef)
	if req.JobName == "" {
		req.JobName = s.NewJobName(req.InputRef)
	}

	params := transcribe.Params{
		JobName:      req.JobName,
		MediaURI:     req.MediaURI,
		MediaFormat:  req.MediaFormat,
		LanguageCode: req.LanguageCode,
		OutputBucket: bucket,
		OutputKey:    key,
	}
	handle, err := s.runner.Submit(ctx, params)
	if err != nil {
		metrics.IncreaseSubmissionsTotalMetric(metrics.SubmissionFailed)
		s.log.Errorw("runner refused the job", "job_name", req.JobName, "error", err)
		return nil, err
	}
	metrics.IncreaseSubmissionsTotalMetric(metrics.SubmissionSubmitted)

	result := &SubmitResult{JobHandle: handle, OutputBucket: bucket, OutputKey: key}
	if err := s.recordSettings(ctx, req.InputRef, params); err != nil {
		return result, NewErrSettingsAudit(handle, err)
	}

	s.log.Infow("job submitted", "job_name", handle, "input_ref", req.InputRef)
	return result, nil
}

func (s *IdempotentSubmitter) recordSettings(ctx context.Context, inputRef string, params transcribe.Params) error {
	key := jobname.MetadataKey(s.cfg.MetadataPrefix, s.cfg.Purpose, inputRef)

	doc, err := s.artifacts.ReadJSON(ctx, s.cfg.MetadataBucket, key)
	if err != nil {
		return err
	}

	audit := params.Audit(s.runner.Settings())
	audit["submitted_at"] = time.Now().UTC().Format(time.RFC3339)
	doc[settingsField] = audit

	return s.artifacts.WriteJSON(ctx, s.cfg.MetadataBucket, key, doc)
}
