package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/example/commerce-core/internal/apperr"
	"github.com/example/commerce-core/internal/domain/session"
)

// DynamoSessionStore implements session.Store on DynamoDB. The table is
// keyed by session id with a GSI on user_id for per-user listing.
type DynamoSessionStore struct {
	client    *dynamodb.Client
	tableName string
	userIndex string
}

// dynamoSession is the DynamoDB item structure.
type dynamoSession struct {
	ID          string `dynamodbav:"id"`
	UserID      string `dynamodbav:"user_id"`
	CreatedAt   string `dynamodbav:"created_at"`
	ExpiresAt   string `dynamodbav:"expires_at"`
	LoggedOutAt string `dynamodbav:"logged_out_at,omitempty"`
	UserAgent   string `dynamodbav:"user_agent,omitempty"`
	IPAddress   string `dynamodbav:"ip_address,omitempty"`
}

func NewDynamoSessionStore(client *dynamodb.Client, tableName, userIndex string) *DynamoSessionStore {
	return &DynamoSessionStore{
		client:    client,
		tableName: tableName,
		userIndex: userIndex,
	}
}

func (ds *DynamoSessionStore) Insert(ctx context.Context, s *session.Session) error {
	av, err := attributevalue.MarshalMap(toDynamoSession(s))
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	_, err = ds.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(ds.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		return fmt.Errorf("failed to put session: %w", err)
	}
	return nil
}

func (ds *DynamoSessionStore) Get(ctx context.Context, sessionID string) (*session.Session, error) {
	out, err := ds.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(ds.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: sessionID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if out.Item == nil {
		return nil, apperr.New(apperr.KindNotFound, "session not found")
	}

	var item dynamoSession
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return fromDynamoSession(&item)
}

// MarkLoggedOut uses a conditional update so only the first logout stamps
// the timestamp; a repeat logout falls through to returning the record
// unchanged.
func (ds *DynamoSessionStore) MarkLoggedOut(ctx context.Context, sessionID string, at time.Time) (*session.Session, error) {
	_, err := ds.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(ds.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: sessionID},
		},
		UpdateExpression:    aws.String("SET logged_out_at = :at"),
		ConditionExpression: aws.String("attribute_exists(id) AND attribute_not_exists(logged_out_at)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":at": &types.AttributeValueMemberS{Value: at.Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if !errors.As(err, &ccf) {
			return nil, fmt.Errorf("failed to update session: %w", err)
		}
	}
	return ds.Get(ctx, sessionID)
}

func (ds *DynamoSessionStore) ListByUser(ctx context.Context, userID string) ([]*session.Session, error) {
	out, err := ds.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(ds.tableName),
		IndexName:              aws.String(ds.userIndex),
		KeyConditionExpression: aws.String("user_id = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}

	sessions := make([]*session.Session, 0, len(out.Items))
	for _, raw := range out.Items {
		var item dynamoSession
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal session: %w", err)
		}
		s, err := fromDynamoSession(&item)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

func toDynamoSession(s *session.Session) *dynamoSession {
	item := &dynamoSession{
		ID:        s.ID,
		UserID:    s.UserID,
		CreatedAt: s.CreatedAt.Format(time.RFC3339Nano),
		ExpiresAt: s.ExpiresAt.Format(time.RFC3339Nano),
		UserAgent: s.UserAgent,
		IPAddress: s.IPAddress,
	}
	if s.LoggedOutAt != nil {
		item.LoggedOutAt = s.LoggedOutAt.Format(time.RFC3339Nano)
	}
	return item
}

func fromDynamoSession(item *dynamoSession) (*session.Session, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, item.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("bad created_at on session %s: %w", item.ID, err)
	}
	expiresAt, err := time.Parse(time.RFC3339Nano, item.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("bad expires_at on session %s: %w", item.ID, err)
	}

	s := &session.Session{
		ID:        item.ID,
		UserID:    item.UserID,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
		UserAgent: item.UserAgent,
		IPAddress: item.IPAddress,
	}
	if item.LoggedOutAt != "" {
		loggedOutAt, err := time.Parse(time.RFC3339Nano, item.LoggedOutAt)
		if err != nil {
			return nil, fmt.Errorf("bad logged_out_at on session %s: %w", item.ID, err)
		}
		s.LoggedOutAt = &loggedOutAt
	}
	return s, nil
}
