package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/callinsights/transcribe-orchestrator/internal/artifact"
	"github.com/callinsights/transcribe-orchestrator/internal/awsclient"
	"github.com/callinsights/transcribe-orchestrator/internal/config"
	"github.com/callinsights/transcribe-orchestrator/internal/queue"
	"github.com/callinsights/transcribe-orchestrator/internal/search"
	"github.com/callinsights/transcribe-orchestrator/internal/service"
	"github.com/callinsights/transcribe-orchestrator/internal/store"
	"github.com/callinsights/transcribe-orchestrator/internal/store/dynamo"
	"github.com/callinsights/transcribe-orchestrator/internal/transcribe"
	"github.com/callinsights/transcribe-orchestrator/internal/workflow"
	"github.com/callinsights/transcribe-orchestrator/pkg/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const storeBackendDynamoDB = "dynamodb"

// components holds everything both binaries build from the configuration.
type components struct {
	cfg     *config.Config
	clients *awsclient.Clients
	store   store.Store

	registry      *service.PauseRegistry
	dispatcher    *service.ResumptionDispatcher
	submitter     *service.IdempotentSubmitter
	batchJobSrv   *service.BatchJobService
	transcription *service.TranscriptionService
	worker        *service.TranscriptionWorker
}

func initLogging(cfg *config.Config) func() {
	logLvl, err := zap.ParseAtomicLevel(cfg.Service.LogLevel)
	if err != nil {
		logLvl = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	logger, err := log.InitLog(logLvl, cfg.Service.LogFormat)
	if err != nil {
		logger, _ = log.InitLog(logLvl, log.FormatConsole)
		logger.Sugar().Warnw("falling back to console logging", "error", err)
	}
	undo := zap.ReplaceGlobals(logger)

	return func() {
		_ = logger.Sync()
		undo()
	}
}

func newStore(cfg *config.Config, clients *awsclient.Clients) (store.Store, error) {
	if cfg.Service.StoreBackend == storeBackendDynamoDB {
		zap.S().Named("store").Infow("using dynamodb store", "pause_table", cfg.AWS.PauseTable, "status_table", cfg.AWS.StatusTable)
		return dynamo.NewStore(clients.DynamoDB, cfg.AWS.PauseTable, cfg.AWS.StatusTable, cfg.AWS.OwnerIndex), nil
	}

	zap.S().Named("store").Info("initializing data store")
	db, err := store.InitDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing data store: %w", err)
	}

	s := store.NewStore(db)
	if err := s.InitialMigration(); err != nil {
		return nil, fmt.Errorf("running initial migration: %w", err)
	}
	return s, nil
}

func newComponents(ctx context.Context, cfg *config.Config) (*components, error) {
	awsCfg, err := awsclient.LoadConfig(ctx, cfg)
	if err != nil {
		return nil, service.NewErrConfiguration(fmt.Errorf("loading aws configuration: %w", err))
	}
	clients := awsclient.New(awsCfg)

	s, err := newStore(cfg, clients)
	if err != nil {
		return nil, err
	}

	artifacts, err := artifact.New(
		artifact.WithEndpoint(cfg.S3.Endpoint),
		artifact.WithRegion(cfg.AWS.Region),
		artifact.WithCredentials(cfg.S3.AccessKey, cfg.S3.SecretKey, ""),
		artifact.WithSSL(cfg.S3.UseSSL),
	)
	if err != nil {
		_ = s.Close()
		return nil, service.NewErrConfiguration(fmt.Errorf("creating artifact store: %w", err))
	}

	logger := zap.S()
	runner := transcribe.NewRunner(clients.Transcribe, transcribe.Settings{
		DataAccessRoleArn:     cfg.AWS.DataAccessRoleArn,
		MaxSpeakerLabels:      cfg.AWS.MaxSpeakerLabels,
		ChannelIdentification: cfg.AWS.ChannelIdentification,
	})
	signaler := workflow.NewSignaler(clients.SFN)

	c := &components{cfg: cfg, clients: clients, store: s}
	c.registry = service.NewPauseRegistry(s.Pause(), cfg.Service.Purpose, logger)
	c.dispatcher = service.NewResumptionDispatcher(c.registry, runner, signaler, s.BatchJob(), logger)
	c.submitter = service.NewIdempotentSubmitter(runner, artifacts, service.SubmitterConfig{
		Purpose:        cfg.Service.Purpose,
		OutputBucket:   cfg.AWS.OutputBucket,
		OutputPrefix:   cfg.AWS.OutputPrefix,
		MetadataBucket: cfg.AWS.MetadataBucket,
		MetadataPrefix: cfg.AWS.ExtraMetadataPrefix,
	}, logger)
	c.transcription = service.NewTranscriptionService(c.submitter, c.registry, logger)
	c.worker = service.NewTranscriptionWorker(c.transcription, s.BatchJob(), cfg.AWS.DefaultLanguageCode, logger)

	publisher := service.NewBatchJobPublisher(
		queue.NewPublisher(clients.SQS, cfg.AWS.WorkQueueURL),
		service.AudioLocation{Bucket: cfg.AWS.AudioSourceBucket, Prefix: cfg.AWS.AudioSourcePrefix},
		cfg.Service.BatchSkipIfDone,
		logger,
	)
	c.batchJobSrv = service.NewBatchJobService(s.BatchJob(), publisher, newSearchFactory(cfg), service.BatchJobServiceConfig{
		Index:       cfg.Search.Index,
		AccessIndex: cfg.Search.AccessIndex,
		TTL:         time.Duration(cfg.Service.DaysToExpire) * 24 * time.Hour,
	}, logger)

	return c, nil
}

// newSearchFactory signs every search request with the caller's credentials.
func newSearchFactory(cfg *config.Config) service.SearchFactory {
	return func(creds aws.Credentials) (service.SearchIndex, error) {
		c, err := search.NewClient(cfg.Search.Host, cfg.Search.UseSSL, search.SignedAuth(creds, cfg.AWS.Region), zap.S())
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

func newListener(address string) (net.Listener, error) {
	if address == "" {
		address = "localhost:0"
	}
	return net.Listen("tcp", address)
}
