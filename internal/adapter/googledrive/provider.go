package googledrive

import (
	"context"
	"fmt"
	"time"

	"github.com/n3m01726/cloudcaddy-sub000/internal/adapter"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
)

// Config holds what every Drive adapter built by NewConstructor shares.
type Config struct {
	// BaseURL is the public origin used for proxy preview URLs.
	BaseURL string
	// Timeout bounds every outbound Drive call.
	Timeout time.Duration
	// Options are appended to the Drive client options. Tests use it to set the endpoint.
	Options []option.ClientOption
}

// NewConstructor returns a registry constructor for Google Drive.
// The access token is used as is; the refresh guard keeps it fresh.
func NewConstructor(cfg Config) adapter.Constructor {
	return func(ctx context.Context, creds adapter.Credentials) (adapter.StorageAdapter, error) {
		if creds.AccessToken == "" {
			return nil, fmt.Errorf("google drive access token is required")
		}
		ts := oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: creds.AccessToken,
			TokenType:   "Bearer",
		})
		client := oauth2.NewClient(context.Background(), ts)
		client.Timeout = cfg.Timeout

		storage, err := NewDriveAdapter(ctx, client, cfg.BaseURL, creds.UserID, cfg.Options...)
		if err != nil {
			return nil, fmt.Errorf("failed to create drive adapter: %w", err)
		}
		return storage, nil
	}
}
