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
	"github.com/n3m01726/cloudcaddy-sub000/internal/crypto"
	"github.com/n3m01726/cloudcaddy-sub000/internal/model"
)

// AccountStore is the credential store. Tokens are encrypted before they are written.
type AccountStore struct {
	db        DynamoDBAPI
	tableName string
	encryptor crypto.Encryptor
	now       func() time.Time

	// In-memory fallback
	accounts map[string]model.CloudAccount
	mu       sync.RWMutex
}

// NewAccountStore creates an AccountStore. A nil db selects the in-memory fallback.
func NewAccountStore(db DynamoDBAPI, tableName string, encryptor crypto.Encryptor) *AccountStore {
	return &AccountStore{
		db:        db,
		tableName: tableName,
		encryptor: encryptor,
		now:       time.Now,
		accounts:  make(map[string]model.CloudAccount),
	}
}

func accountKey(userID, provider string) string {
	return userID + "|" + provider
}

func (s *AccountStore) key(userID, provider string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"user_id":  stringAttr(userID),
		"provider": stringAttr(provider),
	}
}

func (s *AccountStore) seal(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", nil
	}
	return s.encryptor.Encrypt(ctx, token)
}

func (s *AccountStore) open(ctx context.Context, a *model.CloudAccount) error {
	if a.AccessToken != "" {
		plain, err := s.encryptor.Decrypt(ctx, a.AccessToken)
		if err != nil {
			return fmt.Errorf("failed to decrypt access token: %w", err)
		}
		a.AccessToken = plain
	}
	if a.RefreshToken != "" {
		plain, err := s.encryptor.Decrypt(ctx, a.RefreshToken)
		if err != nil {
			return fmt.Errorf("failed to decrypt refresh token: %w", err)
		}
		a.RefreshToken = plain
	}
	return nil
}

// ListAccounts returns the user's accounts ordered by provider name.
func (s *AccountStore) ListAccounts(ctx context.Context, userID string) ([]model.CloudAccount, error) {
	var accounts []model.CloudAccount

	if s.db == nil {
		s.mu.RLock()
		for _, a := range s.accounts {
			if a.UserID == userID {
				accounts = append(accounts, a)
			}
		}
		s.mu.RUnlock()
	} else {
		out, err := s.db.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			KeyConditionExpression: aws.String("user_id = :uid"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":uid": stringAttr(userID),
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to query accounts: %w", err)
		}
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &accounts); err != nil {
			return nil, fmt.Errorf("failed to unmarshal accounts: %w", err)
		}
	}

	for i := range accounts {
		if err := s.open(ctx, &accounts[i]); err != nil {
			return nil, err
		}
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Provider < accounts[j].Provider })
	return accounts, nil
}

// GetAccount returns the account for (userID, provider) or ErrNotFound.
func (s *AccountStore) GetAccount(ctx context.Context, userID, provider string) (*model.CloudAccount, error) {
	var account model.CloudAccount

	if s.db == nil {
		s.mu.RLock()
		a, ok := s.accounts[accountKey(userID, provider)]
		s.mu.RUnlock()
		if !ok {
			return nil, ErrNotFound
		}
		account = a
	} else {
		out, err := s.db.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: aws.String(s.tableName),
			Key:       s.key(userID, provider),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get account: %w", err)
		}
		if out.Item == nil {
			return nil, ErrNotFound
		}
		if err := attributevalue.UnmarshalMap(out.Item, &account); err != nil {
			return nil, fmt.Errorf("failed to unmarshal account: %w", err)
		}
	}

	if err := s.open(ctx, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// SaveAccount creates or replaces the account row for (UserID, Provider).
func (s *AccountStore) SaveAccount(ctx context.Context, account model.CloudAccount) error {
	if account.UserID == "" || account.Provider == "" {
		return fmt.Errorf("user id and provider are required")
	}
	now := s.now()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now

	var err error
	if account.AccessToken, err = s.seal(ctx, account.AccessToken); err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}
	if account.RefreshToken, err = s.seal(ctx, account.RefreshToken); err != nil {
		return fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	if s.db == nil {
		s.mu.Lock()
		s.accounts[accountKey(account.UserID, account.Provider)] = account
		s.mu.Unlock()
		return nil
	}

	item, err := attributevalue.MarshalMap(account)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}
	_, err = s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to save account to DynamoDB: %w", err)
	}
	return nil
}

// UpdateTokens writes refreshed credentials. Concurrent refreshes are last-writer-wins.
func (s *AccountStore) UpdateTokens(ctx context.Context, userID, provider, accessToken, refreshToken string, expiresAt time.Time) error {
	encAccess, err := s.seal(ctx, accessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}
	encRefresh, err := s.seal(ctx, refreshToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt refresh token: %w", err)
	}
	now := s.now()

	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		a, ok := s.accounts[accountKey(userID, provider)]
		if !ok {
			return ErrNotFound
		}
		a.AccessToken = encAccess
		a.RefreshToken = encRefresh
		a.ExpiresAt = &expiresAt
		a.UpdatedAt = now
		s.accounts[accountKey(userID, provider)] = a
		return nil
	}

	_, err = s.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.tableName),
		Key:                 s.key(userID, provider),
		ConditionExpression: aws.String("attribute_exists(user_id)"),
		UpdateExpression:    aws.String("SET access_token = :at, refresh_token = :rt, expires_at = :exp, updated_at = :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":at":  stringAttr(encAccess),
			":rt":  stringAttr(encRefresh),
			":exp": stringAttr(expiresAt.UTC().Format(time.RFC3339Nano)),
			":now": stringAttr(now.UTC().Format(time.RFC3339Nano)),
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to update tokens: %w", err)
	}
	return nil
}

// UpdateChangeCursor stores the vendor change cursor used by the notification feed.
func (s *AccountStore) UpdateChangeCursor(ctx context.Context, userID, provider, cursor string) error {
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		a, ok := s.accounts[accountKey(userID, provider)]
		if !ok {
			return ErrNotFound
		}
		a.ChangeCursor = cursor
		s.accounts[accountKey(userID, provider)] = a
		return nil
	}

	_, err := s.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.tableName),
		Key:                 s.key(userID, provider),
		ConditionExpression: aws.String("attribute_exists(user_id)"),
		UpdateExpression:    aws.String("SET change_cursor = :c"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":c": stringAttr(cursor),
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to update change cursor: %w", err)
	}
	return nil
}

// DeleteAccount disconnects a provider.
func (s *AccountStore) DeleteAccount(ctx context.Context, userID, provider string) error {
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.accounts[accountKey(userID, provider)]; !ok {
			return ErrNotFound
		}
		delete(s.accounts, accountKey(userID, provider))
		return nil
	}

	_, err := s.db.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.tableName),
		Key:                 s.key(userID, provider),
		ConditionExpression: aws.String("attribute_exists(user_id)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return nil
}
