package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/n3m01726/cloudcaddy-sub000/internal/model"
	"github.com/sirupsen/logrus"
)

// DefaultRefreshWindow is how close to expiry a token gets refreshed.
const DefaultRefreshWindow = 5 * time.Minute

// AccountRepository is the part of the account store the guard needs.
type AccountRepository interface {
	ListAccounts(ctx context.Context, userID string) ([]model.CloudAccount, error)
	UpdateTokens(ctx context.Context, userID, provider, accessToken, refreshToken string, expiresAt time.Time) error
}

// RefreshGuard refreshes soon-to-expire access tokens before a request touches any adapter.
// Vendors without a registered refresher manage their own tokens and are left alone.
type RefreshGuard struct {
	accounts   AccountRepository
	refreshers map[string]TokenRefresher
	window     time.Duration
	now        func() time.Time
	log        logrus.FieldLogger
}

// NewRefreshGuard creates a guard. refreshers is keyed by provider name.
func NewRefreshGuard(accounts AccountRepository, refreshers map[string]TokenRefresher, log logrus.FieldLogger) *RefreshGuard {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RefreshGuard{
		accounts:   accounts,
		refreshers: refreshers,
		window:     DefaultRefreshWindow,
		now:        time.Now,
		log:        log,
	}
}

// WithClock replaces the time source.
func (g *RefreshGuard) WithClock(now func() time.Time) *RefreshGuard {
	g.now = now
	return g
}

// NeedsRefresh reports whether an account's token is missing an expiry or expires within the window.
func (g *RefreshGuard) NeedsRefresh(a model.CloudAccount) bool {
	if a.ExpiresAt == nil || a.ExpiresAt.IsZero() {
		return true
	}
	return a.ExpiresAt.Before(g.now().Add(g.window))
}

// Ensure loads the user's accounts and refreshes the ones that need it.
// Refresh failures are logged and the stale credential is returned.
func (g *RefreshGuard) Ensure(ctx context.Context, userID string) ([]model.CloudAccount, error) {
	accounts, err := g.accounts.ListAccounts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cloud accounts: %w", err)
	}
	for i := range accounts {
		accounts[i] = g.refresh(ctx, accounts[i])
	}
	return accounts, nil
}

func (g *RefreshGuard) refresh(ctx context.Context, a model.CloudAccount) model.CloudAccount {
	refresher, ok := g.refreshers[a.Provider]
	if !ok || !g.NeedsRefresh(a) {
		return a
	}

	entry := g.log.WithFields(logrus.Fields{"user_id": a.UserID, "provider": a.Provider})
	tok, err := refresher.Refresh(ctx, a.RefreshToken)
	if err != nil {
		entry.WithError(err).Warn("token refresh failed, using stored credential")
		return a
	}

	refreshToken := tok.RefreshToken
	if refreshToken == "" {
		refreshToken = a.RefreshToken
	}
	expiry := tok.Expiry
	if expiry.IsZero() {
		expiry = g.now().Add(time.Hour)
	}

	// Last writer wins when two requests refresh concurrently.
	if err := g.accounts.UpdateTokens(ctx, a.UserID, a.Provider, tok.AccessToken, refreshToken, expiry); err != nil {
		entry.WithError(err).Warn("failed to persist refreshed token")
	}

	a.AccessToken = tok.AccessToken
	a.RefreshToken = refreshToken
	a.ExpiresAt = &expiry
	entry.Debug("refreshed access token")
	return a
}
