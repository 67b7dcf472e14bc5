package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/callinsights/transcribe-orchestrator/internal/store"
	"github.com/callinsights/transcribe-orchestrator/internal/store/model"
)

const (
	maxBatchWrite     = 25
	maxWriteAttempts  = 5
	unprocessedPause  = 100 * time.Millisecond
	statusAttribute   = "#status"
	statusAttrPayload = "status"
)

type batchItem struct {
	JobID      string `dynamodbav:"jobId"`
	CallID     string `dynamodbav:"callId"`
	Status     string `dynamodbav:"status"`
	UserID     string `dynamodbav:"userId"`
	LastUpdate int64  `dynamodbav:"lastUpdate"`
	ExpireAt   int64  `dynamodbav:"expireAt"`
}

func (i batchItem) toModel() model.BatchJobItem {
	return model.BatchJobItem{
		JobID:      i.JobID,
		ItemID:     i.CallID,
		Owner:      i.UserID,
		State:      model.BatchJobState(i.Status),
		LastUpdate: time.Unix(i.LastUpdate, 0).UTC(),
		ExpiresAt:  time.Unix(i.ExpireAt, 0).UTC(),
	}
}

// BatchJobStore uses the status table layout: jobId hash key, callId range
// key, lastUpdate as epoch seconds and expireAt as the table TTL attribute.
// ownerIndex is a global index keyed by (userId, lastUpdate).
type BatchJobStore struct {
	api        API
	table      string
	ownerIndex string
}

var _ store.BatchJob = (*BatchJobStore)(nil)

func NewBatchJobStore(api API, table, ownerIndex string) *BatchJobStore {
	return &BatchJobStore{api: api, table: table, ownerIndex: ownerIndex}
}

func (s *BatchJobStore) Create(ctx context.Context, jobID string, items []string, owner string, ttl time.Duration) (*model.BatchJob, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("batch job %q has no items", jobID)
	}

	now := time.Now().UTC()
	rows := make([]model.BatchJobItem, 0, len(items))
	requests := make([]types.WriteRequest, 0, len(items))
	for _, id := range items {
		row := batchItem{
			JobID:      jobID,
			CallID:     id,
			Status:     string(model.BatchJobStatePending),
			UserID:     owner,
			LastUpdate: now.Unix(),
			ExpireAt:   now.Add(ttl).Unix(),
		}
		av, err := attributevalue.MarshalMap(row)
		if err != nil {
			return nil, fmt.Errorf("encoding batch item %s/%s: %w", jobID, id, err)
		}
		requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: av}})
		rows = append(rows, row.toModel())
	}

	for start := 0; start < len(requests); start += maxBatchWrite {
		end := min(start+maxBatchWrite, len(requests))
		if err := s.write(ctx, requests[start:end]); err != nil {
			return nil, fmt.Errorf("creating batch job %q: %w", jobID, err)
		}
	}

	return model.NewBatchJob(jobID, rows), nil
}

func (s *BatchJobStore) write(ctx context.Context, requests []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{s.table: requests}
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		out, err := s.api.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return err
		}
		if len(out.UnprocessedItems[s.table]) == 0 {
			return nil
		}
		pending = out.UnprocessedItems

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(unprocessedPause * time.Duration(attempt+1)):
		}
	}
	return fmt.Errorf("%d items left unprocessed", len(pending[s.table]))
}

func (s *BatchJobStore) Advance(ctx context.Context, jobID, itemID string, state model.BatchJobState) error {
	if !state.Valid() {
		return fmt.Errorf("invalid batch item state %q", state)
	}

	_, err := s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"jobId":  &types.AttributeValueMemberS{Value: jobID},
			"callId": &types.AttributeValueMemberS{Value: itemID},
		},
		UpdateExpression:         aws.String("SET #status = :status, lastUpdate = :now"),
		ConditionExpression:      aws.String("attribute_exists(jobId) AND NOT #status IN (:completed, :failed)"),
		ExpressionAttributeNames: map[string]string{statusAttribute: statusAttrPayload},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status":    &types.AttributeValueMemberS{Value: string(state)},
			":now":       &types.AttributeValueMemberN{Value: strconv.FormatInt(time.Now().UTC().Unix(), 10)},
			":completed": &types.AttributeValueMemberS{Value: string(model.BatchJobStateCompleted)},
			":failed":    &types.AttributeValueMemberS{Value: string(model.BatchJobStateFailed)},
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			// the old item only comes back when the row exists
			if len(ccf.Item) > 0 {
				return store.ErrTerminalState
			}
			return store.ErrRecordNotFound
		}
		return fmt.Errorf("advancing batch item %s/%s: %w", jobID, itemID, err)
	}
	return nil
}

func (s *BatchJobStore) Get(ctx context.Context, jobID string) (*model.BatchJob, error) {
	rows, err := s.query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("jobId = :jobId"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":jobId": &types.AttributeValueMemberS{Value: jobID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("reading batch job %q: %w", jobID, err)
	}
	if len(rows) == 0 {
		return nil, store.ErrRecordNotFound
	}
	return model.NewBatchJob(jobID, rows), nil
}

func (s *BatchJobStore) ListActive(ctx context.Context, owner string, since time.Time) ([]model.BatchJobItem, error) {
	rows, err := s.query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		IndexName:              aws.String(s.ownerIndex),
		KeyConditionExpression: aws.String("userId = :owner AND lastUpdate >= :since"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":owner": &types.AttributeValueMemberS{Value: owner},
			":since": &types.AttributeValueMemberN{Value: strconv.FormatInt(since.UTC().Unix(), 10)},
		},
		ScanIndexForward: aws.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("listing batch items of %q: %w", owner, err)
	}
	return rows, nil
}

// DeleteExpired is a no-op: the table TTL on expireAt reclaims rows.
func (s *BatchJobStore) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (s *BatchJobStore) CountByState(ctx context.Context) (map[model.BatchJobState]int64, error) {
	counts := map[model.BatchJobState]int64{}
	p := dynamodb.NewScanPaginator(s.api, &dynamodb.ScanInput{
		TableName:                aws.String(s.table),
		ProjectionExpression:     aws.String(statusAttribute),
		ExpressionAttributeNames: map[string]string{statusAttribute: statusAttrPayload},
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("counting batch items: %w", err)
		}
		var items []batchItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("decoding batch items: %w", err)
		}
		for _, i := range items {
			counts[model.BatchJobState(i.Status)]++
		}
	}
	return counts, nil
}

func (s *BatchJobStore) query(ctx context.Context, in *dynamodb.QueryInput) ([]model.BatchJobItem, error) {
	var rows []model.BatchJobItem
	p := dynamodb.NewQueryPaginator(s.api, in)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		var items []batchItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, err
		}
		for _, i := range items {
			rows = append(rows, i.toModel())
		}
	}
	return rows, nil
}
