package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"user-notifier/internal/model"
)

// DynamoDBAPI is the subset of the DynamoDB client used by DynamoStore.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

var ErrTableNameRequired = errors.New("dynamodb table name is required")

// DynamoStore keeps one item per user in a table whose partition key is "userId".
type DynamoStore struct {
	client DynamoDBAPI
	table  string
}

func NewDynamoStore(client DynamoDBAPI, table string) (*DynamoStore, error) {
	if table == "" {
		return nil, ErrTableNameRequired
	}
	return &DynamoStore{client: client, table: table}, nil
}

// NewDynamoStoreFromConfig builds the SDK client from a loaded AWS config.
func NewDynamoStoreFromConfig(cfg aws.Config, table string) (*DynamoStore, error) {
	return NewDynamoStore(dynamodb.NewFromConfig(cfg), table)
}

func (s *DynamoStore) Get(ctx context.Context, userID string) (*model.UserPreferences, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"userId": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb get %q: %w", userID, err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}

	var prefs model.UserPreferences
	if err := attributevalue.UnmarshalMap(out.Item, &prefs); err != nil {
		return nil, fmt.Errorf("decode preferences %q: %w", userID, err)
	}
	return &prefs, nil
}

func (s *DynamoStore) Put(ctx context.Context, prefs *model.UserPreferences) error {
	if err := validate(prefs); err != nil {
		return err
	}

	item, err := attributevalue.MarshalMap(prefs)
	if err != nil {
		return fmt.Errorf("encode preferences %q: %w", prefs.UserID, err)
	}

	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("dynamodb put %q: %w", prefs.UserID, err)
	}
	return nil
}
