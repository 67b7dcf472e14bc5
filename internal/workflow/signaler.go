// Package workflow unblocks paused Step Functions executions through their
// task tokens.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/aws/aws-sdk-go-v2/service/sfn/types"
)

const (
	failureError  = "TranscriptionFailed"
	maxCauseBytes = 32768
)

type API interface {
	SendTaskSuccess(ctx context.Context, params *sfn.SendTaskSuccessInput, optFns ...func(*sfn.Options)) (*sfn.SendTaskSuccessOutput, error)
	SendTaskFailure(ctx context.Context, params *sfn.SendTaskFailureInput, optFns ...func(*sfn.Options)) (*sfn.SendTaskFailureOutput, error)
}

var _ API = (*sfn.Client)(nil)

type Signaler struct {
	api API
}

func NewSignaler(api API) *Signaler {
	return &Signaler{api: api}
}

// Succeed hands output to the execution waiting on token.
func (s *Signaler) Succeed(ctx context.Context, token string, output map[string]any) error {
	body, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("encoding task output: %w", err)
	}
	_, err = s.api.SendTaskSuccess(ctx, &sfn.SendTaskSuccessInput{
		TaskToken: aws.String(token),
		Output:    aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("signaling task success: %w", err)
	}
	return nil
}

// Fail fails the execution waiting on token with reason as its cause.
func (s *Signaler) Fail(ctx context.Context, token, reason string) error {
	if len(reason) > maxCauseBytes {
		reason = reason[:maxCauseBytes]
	}
	_, err := s.api.SendTaskFailure(ctx, &sfn.SendTaskFailureInput{
		TaskToken: aws.String(token),
		Error:     aws.String(failureError),
		Cause:     aws.String(reason),
	})
	if err != nil {
		return fmt.Errorf("signaling task failure: %w", err)
	}
	return nil
}

// IsTokenRejected reports whether the engine refused the token because it is
// unknown, malformed or expired.
func IsTokenRejected(err error) bool {
	var (
		invalid  *types.InvalidToken
		missing  *types.TaskDoesNotExist
		timedOut *types.TaskTimedOut
	)
	return errors.As(err, &invalid) || errors.As(err, &missing) || errors.As(err, &timedOut)
}
