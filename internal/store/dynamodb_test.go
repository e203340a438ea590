package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"user-notifier/internal/model"
	"user-notifier/internal/store"
)

type MockDynamoDB struct {
	mock.Mock
}

func (m *MockDynamoDB) GetItem(ctx context.Context, params *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dynamodb.GetItemOutput), args.Error(1)
}

func (m *MockDynamoDB) PutItem(ctx context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dynamodb.PutItemOutput), args.Error(1)
}

func TestNewDynamoStore_RequiresTable(t *testing.T) {
	t.Parallel()

	s, err := store.NewDynamoStore(new(MockDynamoDB), "")
	assert.Nil(t, s)
	assert.ErrorIs(t, err, store.ErrTableNameRequired)
}

func TestDynamoStore_Get(t *testing.T) {
	t.Parallel()

	t.Run("decodes item", func(t *testing.T) {
		t.Parallel()

		client := new(MockDynamoDB)
		defer client.AssertExpectations(t)

		client.On("GetItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.GetItemInput) bool {
			key, ok := in.Key["userId"].(*types.AttributeValueMemberS)
			return *in.TableName == "prefs" && ok && key.Value == "u1"
		})).Return(&dynamodb.GetItemOutput{
			Item: map[string]types.AttributeValue{
				"userId": &types.AttributeValueMemberS{Value: "u1"},
				"email":  &types.AttributeValueMemberS{Value: "a@b.com"},
				"phone":  &types.AttributeValueMemberS{Value: "+1555"},
				"settings": &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
					"email":    &types.AttributeValueMemberBOOL{Value: true},
					"sms":      &types.AttributeValueMemberBOOL{Value: true},
					"whatsapp": &types.AttributeValueMemberBOOL{Value: false},
				}},
			},
		}, nil)

		s, err := store.NewDynamoStore(client, "prefs")
		require.NoError(t, err)

		prefs, err := s.Get(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, &model.UserPreferences{
			UserID:        "u1",
			Email:         "a@b.com",
			Phone:         "+1555",
			Subscriptions: model.Subscriptions{Email: true, SMS: true},
		}, prefs)
	})

	t.Run("missing item", func(t *testing.T) {
		t.Parallel()

		client := new(MockDynamoDB)
		defer client.AssertExpectations(t)
		client.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{}, nil)

		s, err := store.NewDynamoStore(client, "prefs")
		require.NoError(t, err)

		prefs, err := s.Get(context.Background(), "u2")
		assert.Nil(t, prefs)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("client error", func(t *testing.T) {
		t.Parallel()

		client := new(MockDynamoDB)
		defer client.AssertExpectations(t)
		boom := errors.New("throttled")
		client.On("GetItem", mock.Anything, mock.Anything).Return(nil, boom)

		s, err := store.NewDynamoStore(client, "prefs")
		require.NoError(t, err)

		_, err = s.Get(context.Background(), "u3")
		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, store.ErrNotFound)
	})
}

func TestDynamoStore_Put(t *testing.T) {
	t.Parallel()

	client := new(MockDynamoDB)
	defer client.AssertExpectations(t)

	client.On("PutItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.PutItemInput) bool {
		id, ok := in.Item["userId"].(*types.AttributeValueMemberS)
		settings, hasSettings := in.Item["settings"].(*types.AttributeValueMemberM)
		return *in.TableName == "prefs" && ok && id.Value == "u1" && hasSettings && len(settings.Value) == 3
	})).Return(&dynamodb.PutItemOutput{}, nil)

	s, err := store.NewDynamoStore(client, "prefs")
	require.NoError(t, err)

	err = s.Put(context.Background(), &model.UserPreferences{
		UserID:        "u1",
		Email:         "a@b.com",
		Subscriptions: model.Subscriptions{Email: true},
	})
	require.NoError(t, err)
}
