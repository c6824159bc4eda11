package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/n3m01726/cloudcaddy-sub000/internal/model"
)

// NotificationStore holds app-created notifications and drained vendor change entries.
// Rows are keyed by (user_id, id) where id is a UUIDv7, so sort key order is insertion order.
type NotificationStore struct {
	db        DynamoDBAPI
	tableName string
	now       func() time.Time

	// In-memory fallback
	rows map[string][]model.Notification
	mu   sync.RWMutex
}

// NewNotificationStore creates a NotificationStore. A nil db selects the in-memory fallback.
func NewNotificationStore(db DynamoDBAPI, tableName string) *NotificationStore {
	return &NotificationStore{
		db:        db,
		tableName: tableName,
		now:       time.Now,
		rows:      make(map[string][]model.Notification),
	}
}

// Create appends an app notification, filling ID, Source and CreatedAt.
func (s *NotificationStore) Create(ctx context.Context, n *model.Notification) error {
	n.Source = model.SourceApp
	n.CreatedAt = s.now().UTC()
	return s.put(ctx, n)
}

// Record appends a vendor-derived notification. Source, Provider and CreatedAt are kept;
// a zero CreatedAt is set to now.
func (s *NotificationStore) Record(ctx context.Context, n *model.Notification) error {
	if n.Source == "" {
		return fmt.Errorf("source is required")
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}
	n.IsRead = false
	return s.put(ctx, n)
}

func (s *NotificationStore) put(ctx context.Context, n *model.Notification) error {
	if n.UserID == "" {
		return fmt.Errorf("user id is required")
	}
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("failed to generate notification id: %w", err)
	}
	n.ID = id.String()

	if s.db == nil {
		s.mu.Lock()
		s.rows[n.UserID] = append(s.rows[n.UserID], *n)
		s.mu.Unlock()
		return nil
	}

	item, err := attributevalue.MarshalMap(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if _, err := s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("failed to save notification: %w", err)
	}
	return nil
}

// List returns the user's notifications, newest first. limit <= 0 means no limit.
func (s *NotificationStore) List(ctx context.Context, userID string, includeRead bool, limit int) ([]model.Notification, error) {
	out := []model.Notification{}

	if s.db == nil {
		s.mu.RLock()
		for _, n := range s.rows[userID] {
			if includeRead || !n.IsRead {
				out = append(out, n)
			}
		}
		s.mu.RUnlock()
		sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
		if limit > 0 && len(out) > limit {
			out = out[:limit]
		}
		return out, nil
	}

	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("user_id = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": stringAttr(userID),
		},
		ScanIndexForward: aws.Bool(false),
	}
	if !includeRead {
		input.FilterExpression = aws.String("is_read = :f")
		input.ExpressionAttributeValues[":f"] = &types.AttributeValueMemberBOOL{Value: false}
	}

	p := dynamodb.NewQueryPaginator(s.db, input)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query notifications: %w", err)
		}
		var items []model.Notification
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal notifications: %w", err)
		}
		out = append(out, items...)
		if limit > 0 && len(out) >= limit {
			out = out[:limit]
			break
		}
	}
	return out, nil
}

// MarkRead flags one notification as read.
func (s *NotificationStore) MarkRead(ctx context.Context, userID, id string) error {
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i := range s.rows[userID] {
			if s.rows[userID][i].ID == id {
				s.rows[userID][i].IsRead = true
				return nil
			}
		}
		return ErrNotFound
	}

	_, err := s.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"user_id": stringAttr(userID),
			"id":      stringAttr(id),
		},
		ConditionExpression: aws.String("attribute_exists(user_id)"),
		UpdateExpression:    aws.String("SET is_read = :t"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t": &types.AttributeValueMemberBOOL{Value: true},
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return nil
}

// MarkAllRead flags every unread notification and returns how many changed.
func (s *NotificationStore) MarkAllRead(ctx context.Context, userID string) (int, error) {
	unread, err := s.List(ctx, userID, false, 0)
	if err != nil {
		return 0, err
	}
	for _, n := range unread {
		if err := s.MarkRead(ctx, userID, n.ID); err != nil && err != ErrNotFound {
			return 0, err
		}
	}
	return len(unread), nil
}

// UnreadCount counts unread notifications.
func (s *NotificationStore) UnreadCount(ctx context.Context, userID string) (int, error) {
	if s.db == nil {
		unread, _ := s.List(ctx, userID, false, 0)
		return len(unread), nil
	}

	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("user_id = :uid"),
		FilterExpression:       aws.String("is_read = :f"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": stringAttr(userID),
			":f":   &types.AttributeValueMemberBOOL{Value: false},
		},
		Select: types.SelectCount,
	}
	count := 0
	p := dynamodb.NewQueryPaginator(s.db, input)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to count notifications: %w", err)
		}
		count += int(page.Count)
	}
	return count, nil
}
