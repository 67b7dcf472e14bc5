package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/callinsights/transcribe-orchestrator/internal/store"
	"github.com/callinsights/transcribe-orchestrator/internal/store/model"
)

type pauseItem struct {
	JobName     string         `dynamodbav:"jobName"`
	ResumeToken string         `dynamodbav:"resumeToken,omitempty"`
	Purpose     string         `dynamodbav:"purpose"`
	Context     map[string]any `dynamodbav:"context,omitempty"`
	CreatedAt   int64          `dynamodbav:"createdAt"`
}

// PauseStore keeps one item per job name in a table keyed by jobName.
type PauseStore struct {
	api   API
	table string
}

var _ store.Pause = (*PauseStore)(nil)

func NewPauseStore(api API, table string) *PauseStore {
	return &PauseStore{api: api, table: table}
}

func (s *PauseStore) Save(ctx context.Context, p model.PausedWorkflow) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	item, err := attributevalue.MarshalMap(pauseItem{
		JobName:     p.JobName,
		ResumeToken: p.ResumeToken,
		Purpose:     p.Purpose,
		Context:     p.Context,
		CreatedAt:   p.CreatedAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("encoding pause record %q: %w", p.JobName, err)
	}

	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(jobName)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return store.ErrDuplicateKey
		}
		return fmt.Errorf("saving pause record %q: %w", p.JobName, err)
	}
	return nil
}

// Take relies on DeleteItem returning the old image: the delete is the read.
func (s *PauseStore) Take(ctx context.Context, jobName string) (*model.PausedWorkflow, error) {
	out, err := s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(s.table),
		Key:          map[string]types.AttributeValue{"jobName": &types.AttributeValueMemberS{Value: jobName}},
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return nil, fmt.Errorf("taking pause record %q: %w", jobName, err)
	}
	if len(out.Attributes) == 0 {
		return nil, store.ErrRecordNotFound
	}

	var item pauseItem
	if err := attributevalue.UnmarshalMap(out.Attributes, &item); err != nil {
		return nil, fmt.Errorf("decoding pause record %q: %w", jobName, err)
	}
	return &model.PausedWorkflow{
		JobName:     item.JobName,
		ResumeToken: item.ResumeToken,
		Purpose:     item.Purpose,
		Context:     item.Context,
		CreatedAt:   time.Unix(item.CreatedAt, 0).UTC(),
	}, nil
}

func (s *PauseStore) CountByPurpose(ctx context.Context) (map[string]int64, error) {
	counts := map[string]int64{}
	p := dynamodb.NewScanPaginator(s.api, &dynamodb.ScanInput{
		TableName:            aws.String(s.table),
		ProjectionExpression: aws.String("purpose"),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("counting pause records: %w", err)
		}
		var items []pauseItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("decoding pause records: %w", err)
		}
		for _, i := range items {
			counts[i.Purpose]++
		}
	}
	return counts, nil
}
