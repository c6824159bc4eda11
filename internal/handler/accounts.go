package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/n3m01726/cloudcaddy-sub000/internal/adapter"
	"github.com/n3m01726/cloudcaddy-sub000/internal/model"
	"github.com/sirupsen/logrus"
)

// AccountRepository is the subset of the account store used by AccountHandler.
type AccountRepository interface {
	ListAccounts(ctx context.Context, userID string) ([]model.CloudAccount, error)
	DeleteAccount(ctx context.Context, userID, provider string) error
}

// AccountHandler lists and disconnects cloud accounts.
type AccountHandler struct {
	accounts  AccountRepository
	registry  *adapter.Registry
	jwtSecret string
	log       logrus.FieldLogger
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accounts AccountRepository, registry *adapter.Registry, jwtSecret string, log logrus.FieldLogger) *AccountHandler {
	return &AccountHandler{accounts: accounts, registry: registry, jwtSecret: jwtSecret, log: log}
}

// List handles GET /accounts. Tokens never leave the store.
func (h *AccountHandler) List(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, denied := authenticate(req, h.jwtSecret)
	if denied != nil {
		return *denied, nil
	}
	accounts, err := h.accounts.ListAccounts(ctx, userID)
	if err != nil {
		return failure(h.log, "list accounts", err), nil
	}
	if accounts == nil {
		accounts = []model.CloudAccount{}
	}
	return jsonResponse(http.StatusOK, map[string]any{"accounts": accounts}), nil
}

// Disconnect handles DELETE /accounts/{provider}.
func (h *AccountHandler) Disconnect(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, denied := authenticate(req, h.jwtSecret)
	if denied != nil {
		return *denied, nil
	}
	provider := req.PathParameters["provider"]
	if !h.registry.IsSupported(provider) {
		return failure(h.log, "disconnect", fmt.Errorf("%w: %s", adapter.ErrUnsupportedProvider, provider)), nil
	}
	if err := h.accounts.DeleteAccount(ctx, userID, provider); err != nil {
		return failure(h.log, "disconnect", err), nil
	}
	h.log.WithFields(logrus.Fields{"user_id": userID, "provider": provider}).Info("account disconnected")
	return jsonResponse(http.StatusOK, map[string]any{"success": true}), nil
}

// Providers handles GET /providers. It needs no session.
func (h *AccountHandler) Providers(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return jsonResponse(http.StatusOK, map[string]any{"providers": h.registry.ListSupported()}), nil
}
