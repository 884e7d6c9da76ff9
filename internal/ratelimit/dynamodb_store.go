package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// DynamoStore keeps counters as rows of the shared state table, incremented
// with UpdateItem ADD and expired through the table's ttl attribute.
type DynamoStore struct {
	api       dynamodbAPI
	tableName string
}

func NewDynamoStore(api dynamodbAPI, tableName string) (*DynamoStore, error) {
	if api == nil {
		return nil, errors.New("ratelimit: dynamodb api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("ratelimit: table name must not be empty")
	}
	return &DynamoStore{api: api, tableName: tableName}, nil
}

func counterKey(subject string, windowStart time.Time) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: "RATE#" + subject},
		"SK": &types.AttributeValueMemberS{Value: "WIN#" + strconv.FormatInt(windowStart.Unix(), 10)},
	}
}

func (s *DynamoStore) Count(ctx context.Context, subject string, windowStart time.Time) (int, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            counterKey(subject, windowStart),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return 0, fmt.Errorf("ratelimit: dynamodb get: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return 0, nil
	}
	return countAttr(out.Item)
}

func (s *DynamoStore) Increment(ctx context.Context, subject string, windowStart time.Time, ttl time.Duration) (int, error) {
	expires := time.Now().Add(ttl).Unix()
	out, err := s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.tableName),
		Key:              counterKey(subject, windowStart),
		UpdateExpression: aws.String("ADD #count :one SET #ttl = if_not_exists(#ttl, :ttl)"),
		ExpressionAttributeNames: map[string]string{
			"#count": "count",
			"#ttl":   "ttl",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
			":ttl": &types.AttributeValueMemberN{Value: strconv.FormatInt(expires, 10)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("ratelimit: dynamodb update: %w", err)
	}
	if out == nil || len(out.Attributes) == 0 {
		return 0, errors.New("ratelimit: dynamodb update returned no attributes")
	}
	return countAttr(out.Attributes)
}

func countAttr(item map[string]types.AttributeValue) (int, error) {
	n, ok := item["count"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, errors.New("ratelimit: counter attribute missing or not a number")
	}
	v, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("ratelimit: parse counter: %w", err)
	}
	return v, nil
}
