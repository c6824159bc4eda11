package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/n3m01726/cloudcaddy-sub000/internal/model"
)

// MetadataUpdate lists the fields to change. Nil fields are left untouched.
type MetadataUpdate struct {
	CustomName  *string
	Description *string
	Starred     *bool
	Color       *string
	Tags        []string
	TagColors   map[string]string
}

// MetadataStore keeps local tags, names and favorites per (user, cloud type, file id).
type MetadataStore struct {
	db        DynamoDBAPI
	tableName string
	now       func() time.Time

	// In-memory fallback
	rows map[string]model.FileMetadata
	mu   sync.RWMutex
}

// NewMetadataStore creates a MetadataStore. A nil db selects the in-memory fallback.
func NewMetadataStore(db DynamoDBAPI, tableName string) *MetadataStore {
	return &MetadataStore{
		db:        db,
		tableName: tableName,
		now:       time.Now,
		rows:      make(map[string]model.FileMetadata),
	}
}

func (s *MetadataStore) key(userID, cloudType, fileID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"user_id": stringAttr(userID),
		"sk":      stringAttr(model.MetadataKey(cloudType, fileID)),
	}
}

// NormalizeTags trims, drops empties and removes duplicates while keeping first-seen order.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func applyUpdate(m *model.FileMetadata, u MetadataUpdate) {
	if u.CustomName != nil {
		m.CustomName = *u.CustomName
	}
	if u.Description != nil {
		m.Description = *u.Description
	}
	if u.Starred != nil {
		m.Starred = *u.Starred
	}
	if u.Color != nil {
		m.Color = *u.Color
	}
	if u.Tags != nil {
		m.Tags = NormalizeTags(u.Tags)
	}
	if u.TagColors != nil {
		m.TagColors = u.TagColors
	}
	if m.Tags == nil {
		m.Tags = []string{}
	}
}

// Get returns one row or ErrNotFound.
func (s *MetadataStore) Get(ctx context.Context, userID, cloudType, fileID string) (*model.FileMetadata, error) {
	if s.db == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		m, ok := s.rows[userID+"|"+model.MetadataKey(cloudType, fileID)]
		if !ok {
			return nil, ErrNotFound
		}
		return &m, nil
	}

	out, err := s.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.key(userID, cloudType, fileID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get file metadata: %w", err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}
	var m model.FileMetadata
	if err := attributevalue.UnmarshalMap(out.Item, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal file metadata: %w", err)
	}
	return &m, nil
}

// Upsert applies u to the row, creating it if absent.
func (s *MetadataStore) Upsert(ctx context.Context, userID, cloudType, fileID string, u MetadataUpdate) (*model.FileMetadata, error) {
	existing, err := s.Get(ctx, userID, cloudType, fileID)
	if err != nil && err != ErrNotFound {
		return nil, err
	}
	m := model.FileMetadata{
		UserID:    userID,
		SortKey:   model.MetadataKey(cloudType, fileID),
		FileID:    fileID,
		CloudType: cloudType,
	}
	if existing != nil {
		m = *existing
	}
	applyUpdate(&m, u)
	m.UpdatedAt = s.now()

	if s.db == nil {
		s.mu.Lock()
		s.rows[userID+"|"+m.SortKey] = m
		s.mu.Unlock()
		return &m, nil
	}

	item, err := attributevalue.MarshalMap(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal file metadata: %w", err)
	}
	if _, err := s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	}); err != nil {
		return nil, fmt.Errorf("failed to save file metadata: %w", err)
	}
	return &m, nil
}

// AddTags merges tags into the row's tag set, creating the row if absent.
func (s *MetadataStore) AddTags(ctx context.Context, userID, cloudType, fileID string, tags []string, colors map[string]string) (*model.FileMetadata, error) {
	existing, err := s.Get(ctx, userID, cloudType, fileID)
	if err != nil && err != ErrNotFound {
		return nil, err
	}
	merged := []string{}
	mergedColors := map[string]string{}
	if existing != nil {
		merged = append(merged, existing.Tags...)
		for k, v := range existing.TagColors {
			mergedColors[k] = v
		}
	}
	for k, v := range colors {
		mergedColors[k] = v
	}
	return s.Upsert(ctx, userID, cloudType, fileID, MetadataUpdate{
		Tags:      append(merged, tags...),
		TagColors: mergedColors,
	})
}

// ListForUser returns every metadata row of the user.
func (s *MetadataStore) ListForUser(ctx context.Context, userID string) ([]model.FileMetadata, error) {
	return s.query(ctx, userID, false)
}

// ListStarred returns the user's starred rows.
func (s *MetadataStore) ListStarred(ctx context.Context, userID string) ([]model.FileMetadata, error) {
	return s.query(ctx, userID, true)
}

func (s *MetadataStore) query(ctx context.Context, userID string, starredOnly bool) ([]model.FileMetadata, error) {
	rows := []model.FileMetadata{}

	if s.db == nil {
		s.mu.RLock()
		for _, m := range s.rows {
			if m.UserID == userID && (!starredOnly || m.Starred) {
				rows = append(rows, m)
			}
		}
		s.mu.RUnlock()
		sort.Slice(rows, func(i, j int) bool { return rows[i].SortKey < rows[j].SortKey })
		return rows, nil
	}

	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("user_id = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": stringAttr(userID),
		},
	}
	if starredOnly {
		input.FilterExpression = aws.String("starred = :t")
		input.ExpressionAttributeValues[":t"] = &types.AttributeValueMemberBOOL{Value: true}
	}

	p := dynamodb.NewQueryPaginator(s.db, input)
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query file metadata: %w", err)
		}
		var page []model.FileMetadata
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("failed to unmarshal file metadata: %w", err)
		}
		rows = append(rows, page...)
	}
	return rows, nil
}

// Delete removes a row. Deleting a missing row returns ErrNotFound.
func (s *MetadataStore) Delete(ctx context.Context, userID, cloudType, fileID string) error {
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		k := userID + "|" + model.MetadataKey(cloudType, fileID)
		if _, ok := s.rows[k]; !ok {
			return ErrNotFound
		}
		delete(s.rows, k)
		return nil
	}

	_, err := s.db.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.tableName),
		Key:                 s.key(userID, cloudType, fileID),
		ConditionExpression: aws.String("attribute_exists(user_id)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete file metadata: %w", err)
	}
	return nil
}
