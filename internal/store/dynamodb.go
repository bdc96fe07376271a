package store

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/telhawk-systems/trailhawk/internal/models"
)

// PutItemAPI is the subset of the DynamoDB client used by DynamoDBStore.
type PutItemAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoDBStore writes records to a DynamoDB table with hash key eventID, range
// key eventTime and TTL attribute ttl.
type DynamoDBStore struct {
	client PutItemAPI
	table  string
}

// NewDynamoDBStore creates a store writing to table.
func NewDynamoDBStore(client PutItemAPI, table string) (*DynamoDBStore, error) {
	if client == nil {
		return nil, fmt.Errorf("dynamodb client is nil")
	}
	if table == "" {
		return nil, fmt.Errorf("dynamodb table name is required")
	}
	return &DynamoDBStore{client: client, table: table}, nil
}

// Name implements Store.
func (s *DynamoDBStore) Name() string { return "dynamodb" }

// Put implements Store. The write is an unconditional upsert.
func (s *DynamoDBStore) Put(ctx context.Context, record *models.PersistenceRecord) (Response, error) {
	if err := validate(record); err != nil {
		return Response{}, err
	}

	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return Response{}, fmt.Errorf("marshal item: %w", err)
	}

	out, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:    aws.String(s.table),
		Item:         item,
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return Response{}, fmt.Errorf("put item %s: %w", record.EventID, err)
	}

	return Response{
		Backend:  s.Name(),
		Target:   s.table,
		Key:      record.Key(),
		Replaced: out != nil && len(out.Attributes) > 0,
	}, nil
}
