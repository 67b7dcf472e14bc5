// Package awsclient builds the AWS service clients shared by the binaries.
package awsclient

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/transcribe"
	"github.com/callinsights/transcribe-orchestrator/internal/config"
)

type Clients struct {
	DynamoDB   *dynamodb.Client
	SQS        *sqs.Client
	Transcribe *transcribe.Client
	SFN        *sfn.Client
}

// LoadConfig resolves the service's own AWS configuration. Explicit keys in
// cfg take precedence over the default credential chain; an endpoint
// override points every client at a local emulator.
func LoadConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWS.Region),
	}
	if cfg.AWS.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWS.AccessKeyID, cfg.AWS.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}
	if cfg.AWS.Endpoint != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.AWS.Endpoint)
	}
	return awsCfg, nil
}

func New(awsCfg aws.Config) *Clients {
	return &Clients{
		DynamoDB:   dynamodb.NewFromConfig(awsCfg),
		SQS:        sqs.NewFromConfig(awsCfg),
		Transcribe: transcribe.NewFromConfig(awsCfg),
		SFN:        sfn.NewFromConfig(awsCfg),
	}
}
