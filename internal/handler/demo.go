package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/n3m01726/cloudcaddy-sub000/internal/adapter"
	"github.com/n3m01726/cloudcaddy-sub000/internal/model"
	"github.com/sirupsen/logrus"
)

const sessionTTL = 24 * time.Hour

const welcomeNote = `# Welcome to CloudCaddy

This demo account is connected to two in-memory clouds.

- Browse both clouds from one list
- Star and tag files
- Copy files from one cloud to the other
`

// AccountSaver persists a connected account.
type AccountSaver interface {
	SaveAccount(ctx context.Context, account model.CloudAccount) error
}

// DemoHandler signs in throwaway demo users. It is only routed in DEV_MODE,
// where every vendor name is backed by the memory adapter.
type DemoHandler struct {
	accounts  AccountSaver
	registry  *adapter.Registry
	providers []adapter.ProviderName
	jwtSecret string
	log       logrus.FieldLogger
}

// NewDemoHandler creates a DemoHandler that connects each of providers for new users.
func NewDemoHandler(accounts AccountSaver, registry *adapter.Registry, providers []adapter.ProviderName, jwtSecret string, log logrus.FieldLogger) *DemoHandler {
	return &DemoHandler{accounts: accounts, registry: registry, providers: providers, jwtSecret: jwtSecret, log: log}
}

// IssueToken signs a session JWT for userID.
func IssueToken(userID, jwtSecret string, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(ttl).Unix(),
	})
	signed, err := token.SignedString([]byte(jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Login handles GET /auth/demo-login.
func (h *DemoHandler) Login(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID := fmt.Sprintf("demo-user-%s", uuid.New().String())
	expiry := time.Now().Add(sessionTTL)

	for i, p := range h.providers {
		err := h.accounts.SaveAccount(ctx, model.CloudAccount{
			UserID:       userID,
			Provider:     string(p),
			Email:        "demo@cloudcaddy.local",
			AccessToken:  "demo-access-token",
			RefreshToken: "demo-refresh-token",
			ExpiresAt:    &expiry,
		})
		if err != nil {
			return failure(h.log, "demo login", err), nil
		}
		if i > 0 {
			continue
		}
		storage, err := h.registry.Create(ctx, p, adapter.Credentials{UserID: userID, AccessToken: "demo-access-token"})
		if err != nil {
			return failure(h.log, "demo login", err), nil
		}
		if _, err := storage.UploadFile(ctx, []byte(welcomeNote), "Welcome.md", adapter.UploadOptions{MimeType: "text/markdown"}); err != nil {
			return failure(h.log, "demo login", err), nil
		}
	}

	token, err := IssueToken(userID, h.jwtSecret, sessionTTL)
	if err != nil {
		return failure(h.log, "demo login", err), nil
	}
	h.log.WithField("user_id", userID).Info("demo user signed in")

	resp := jsonResponse(http.StatusOK, map[string]string{"userId": userID, "token": token})
	resp.Headers["Set-Cookie"] = fmt.Sprintf("session_token=%s; Path=/; HttpOnly; SameSite=Lax; Max-Age=%d", token, int(sessionTTL.Seconds()))
	return resp, nil
}
