package handler_test

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/golang-jwt/jwt/v5"
	"github.com/n3m01726/cloudcaddy-sub000/internal/adapter"
	"github.com/n3m01726/cloudcaddy-sub000/internal/adapter/memory"
	"github.com/n3m01726/cloudcaddy-sub000/internal/auth"
	"github.com/n3m01726/cloudcaddy-sub000/internal/crypto"
	"github.com/n3m01726/cloudcaddy-sub000/internal/handler"
	"github.com/n3m01726/cloudcaddy-sub000/internal/model"
	"github.com/n3m01726/cloudcaddy-sub000/internal/preview"
	"github.com/n3m01726/cloudcaddy-sub000/internal/service"
	"github.com/n3m01726/cloudcaddy-sub000/internal/store"
	"github.com/sirupsen/logrus/hooks/test"
)

const testUserID = "test-user-123"

func makeToken(userID string) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(1 * time.Hour).Unix(),
	})
	signed, _ := token.SignedString([]byte(testJWTSecret))
	return signed
}

func makeRequest(method, path, body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: method,
		Path:       path,
		Body:       body,
		Headers: map[string]string{
			"Authorization": "Bearer " + makeToken(testUserID),
			"Content-Type":  "application/json",
		},
		PathParameters:        map[string]string{},
		QueryStringParameters: map[string]string{},
	}
}

type testEnv struct {
	mem           *memory.Provider
	accounts      *store.AccountStore
	files         *handler.FileHandler
	batch         *handler.BatchHandler
	notifications *handler.NotificationHandler
	accountsH     *handler.AccountHandler
}

// newTestEnv wires the handlers over memory-backed Google Drive and Dropbox vendors,
// connecting the given providers for testUserID.
func newTestEnv(t *testing.T, connected ...adapter.ProviderName) *testEnv {
	t.Helper()
	logger, _ := test.NewNullLogger()

	mem := memory.NewProvider(false)
	registry := adapter.NewRegistry()
	registry.Register(adapter.GoogleDrive, mem.Constructor(adapter.GoogleDrive))
	registry.Register(adapter.Dropbox, mem.Constructor(adapter.Dropbox))

	accounts := store.NewAccountStore(nil, "accounts", crypto.NewMockEncryptor())
	metadata := store.NewMetadataStore(nil, "metadata")
	notifications := store.NewNotificationStore(nil, "notifications")

	exp := time.Now().Add(time.Hour)
	for _, p := range connected {
		err := accounts.SaveAccount(context.Background(), model.CloudAccount{
			UserID:       testUserID,
			Provider:     string(p),
			AccessToken:  "token-" + string(p),
			RefreshToken: "refresh-" + string(p),
			ExpiresAt:    &exp,
		})
		if err != nil {
			t.Fatalf("SaveAccount failed: %v", err)
		}
	}

	guard := auth.NewRefreshGuard(accounts, nil, logger)
	opts := service.Options{Concurrency: 2}

	return &testEnv{
		mem:      mem,
		accounts: accounts,
		files: handler.NewFileHandler(
			service.NewFileService(registry, guard, metadata, opts, logger),
			preview.NewRenderer(), testJWTSecret, logger),
		batch: handler.NewBatchHandler(
			service.NewBatchService(registry, guard, metadata, opts, logger),
			testJWTSecret, logger),
		notifications: handler.NewNotificationHandler(
			service.NewNotificationService(registry, guard, notifications, accounts, nil, 0, opts, logger),
			testJWTSecret, logger),
		accountsH: handler.NewAccountHandler(accounts, registry, testJWTSecret, logger),
	}
}

func (e *testEnv) vendor(p adapter.ProviderName) *memory.MemoryAdapter {
	return e.mem.Adapter(p, testUserID)
}
