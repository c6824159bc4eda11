package dropbox

import (
	"context"
	"fmt"
	"time"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"
	"github.com/n3m01726/cloudcaddy-sub000/internal/adapter"
	"golang.org/x/oauth2"
)

// Config holds the app credentials and call settings shared by every Dropbox adapter.
type Config struct {
	AppKey    string
	AppSecret string
	BaseURL   string
	Timeout   time.Duration
}

// OAuthConfig returns the oauth2 configuration for the Dropbox app.
func (c Config) OAuthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.AppKey,
		ClientSecret: c.AppSecret,
		Endpoint:     dropbox.OAuthEndpoint(""),
	}
}

// NewConstructor returns a registry constructor for Dropbox. The HTTP client refreshes
// the access token on demand from the refresh token, so no outside refresh is needed.
func NewConstructor(cfg Config) adapter.Constructor {
	return func(ctx context.Context, creds adapter.Credentials) (adapter.StorageAdapter, error) {
		if creds.AccessToken == "" && creds.RefreshToken == "" {
			return nil, fmt.Errorf("dropbox credentials are required")
		}
		tok := &oauth2.Token{
			AccessToken:  creds.AccessToken,
			RefreshToken: creds.RefreshToken,
			Expiry:       creds.Expiry,
			TokenType:    "Bearer",
		}
		httpClient := oauth2.NewClient(context.Background(), cfg.OAuthConfig().TokenSource(context.Background(), tok))
		httpClient.Timeout = cfg.Timeout

		client := files.New(dropbox.Config{
			Token:    creds.AccessToken,
			LogLevel: dropbox.LogOff,
			Client:   httpClient,
		})
		return NewDropboxAdapter(client, cfg.BaseURL, creds.UserID), nil
	}
}
