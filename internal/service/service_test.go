package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/n3m01726/cloudcaddy-sub000/internal/adapter"
	"github.com/n3m01726/cloudcaddy-sub000/internal/adapter/memory"
	"github.com/n3m01726/cloudcaddy-sub000/internal/auth"
	"github.com/n3m01726/cloudcaddy-sub000/internal/crypto"
	"github.com/n3m01726/cloudcaddy-sub000/internal/model"
	"github.com/n3m01726/cloudcaddy-sub000/internal/store"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

const userID = "user-1"

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	registry      *adapter.Registry
	mem           *memory.Provider
	accounts      *store.AccountStore
	metadata      *store.MetadataStore
	notifications *store.NotificationStore
	guard         *auth.RefreshGuard
}

// newFixture registers memory-backed Google Drive and Dropbox vendors and connects
// the given providers for userID.
func newFixture(t *testing.T, connected ...adapter.ProviderName) *fixture {
	t.Helper()
	f := &fixture{
		registry:      adapter.NewRegistry(),
		mem:           memory.NewProvider(false),
		accounts:      store.NewAccountStore(nil, "accounts", crypto.NewMockEncryptor()),
		metadata:      store.NewMetadataStore(nil, "metadata"),
		notifications: store.NewNotificationStore(nil, "notifications"),
	}
	f.registry.Register(adapter.GoogleDrive, f.mem.Constructor(adapter.GoogleDrive))
	f.registry.Register(adapter.Dropbox, f.mem.Constructor(adapter.Dropbox))

	exp := time.Now().Add(time.Hour)
	for _, p := range connected {
		require.NoError(t, f.accounts.SaveAccount(context.Background(), model.CloudAccount{
			UserID:       userID,
			Provider:     string(p),
			AccessToken:  "token-" + string(p),
			RefreshToken: "refresh-" + string(p),
			ExpiresAt:    &exp,
		}))
	}

	logger, _ := test.NewNullLogger()
	f.guard = auth.NewRefreshGuard(f.accounts, nil, logger)
	return f
}

// vendor returns the memory adapter standing in for provider, with a fixed clock.
func (f *fixture) vendor(p adapter.ProviderName) *memory.MemoryAdapter {
	return f.mem.Adapter(p, userID).WithClock(func() time.Time { return baseTime })
}

func ids(files []adapter.FileRecord) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.ID)
	}
	return out
}
