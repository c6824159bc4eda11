package handler_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/golang-jwt/jwt/v5"
	"github.com/n3m01726/cloudcaddy-sub000/internal/adapter"
	"github.com/n3m01726/cloudcaddy-sub000/internal/handler"
	"github.com/n3m01726/cloudcaddy-sub000/internal/service"
	"github.com/n3m01726/cloudcaddy-sub000/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestGetUserID(t *testing.T) {
	valid := makeToken(testUserID)
	tests := []struct {
		name    string
		headers map[string]string
		want    string
		wantErr bool
	}{
		{name: "bearer header", headers: map[string]string{"Authorization": "Bearer " + valid}, want: testUserID},
		{name: "lowercase header", headers: map[string]string{"authorization": "Bearer " + valid}, want: testUserID},
		{name: "session cookie", headers: map[string]string{"Cookie": "theme=dark; session_token=" + valid + "; Path=/"}, want: testUserID},
		{name: "no token", headers: map[string]string{}, wantErr: true},
		{name: "malformed token", headers: map[string]string{"Authorization": "Bearer invalid-jwt-token"}, wantErr: true},
		{
			name: "expired token",
			headers: map[string]string{"Authorization": "Bearer " + signToken(t, jwt.MapClaims{
				"sub": testUserID,
				"exp": time.Now().Add(-time.Hour).Unix(),
			}, testJWTSecret)},
			wantErr: true,
		},
		{
			name: "other signing secret",
			headers: map[string]string{"Authorization": "Bearer " + signToken(t, jwt.MapClaims{
				"sub": testUserID,
				"exp": time.Now().Add(time.Hour).Unix(),
			}, "someone-else")},
			wantErr: true,
		},
		{
			name: "missing subject",
			headers: map[string]string{"Authorization": "Bearer " + signToken(t, jwt.MapClaims{
				"exp": time.Now().Add(time.Hour).Unix(),
			}, testJWTSecret)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			userID, err := handler.GetUserID(events.APIGatewayProxyRequest{Headers: tt.headers}, testJWTSecret)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, userID)
		})
	}
}

func TestHandlers_RejectMissingSession(t *testing.T) {
	env := newTestEnv(t, adapter.GoogleDrive)
	req := makeRequest("GET", "/notifications/unread-count", "")
	req.Headers = map[string]string{"Authorization": "Bearer expired-or-forged"}

	resp, err := env.notifications.UnreadCount(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Headers["Content-Type"])

	var body map[string]string
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
	assert.Len(t, body, 1)
	assert.True(t, strings.HasPrefix(body["error"], "unauthorized: "), body["error"])
}

func TestHandlers_DecodeRequestBody(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	payload := `{"type":"info","message":"sent through a binary-safe gateway"}`

	encoded := makeRequest("POST", "/notifications", base64.StdEncoding.EncodeToString([]byte(payload)))
	encoded.IsBase64Encoded = true
	resp, err := env.notifications.Create(ctx, encoded)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode, resp.Body)
	assert.Contains(t, resp.Body, "sent through a binary-safe gateway")

	tests := []struct {
		name    string
		body    string
		base64  bool
		wantMsg string
	}{
		{name: "broken base64", body: "not*base64", base64: true, wantMsg: "body is not valid base64"},
		{name: "empty body", body: "", wantMsg: "request body is required"},
		{name: "invalid json", body: "{", wantMsg: "invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := makeRequest("POST", "/notifications", tt.body)
			req.IsBase64Encoded = tt.base64
			resp, err := env.notifications.Create(ctx, req)
			require.NoError(t, err)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Contains(t, resp.Body, tt.wantMsg)
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unsupported provider", fmt.Errorf("%w: onedrive", adapter.ErrUnsupportedProvider), http.StatusBadRequest},
		{"invalid argument", fmt.Errorf("%w: name is required", service.ErrInvalidArgument), http.StatusBadRequest},
		{"not connected", fmt.Errorf("%w: dropbox", adapter.ErrNotConnected), http.StatusNotFound},
		{"store not found", store.ErrNotFound, http.StatusNotFound},
		{"vendor 404", &adapter.ProviderError{Provider: adapter.Dropbox, StatusCode: http.StatusNotFound, Err: errors.New("x")}, http.StatusNotFound},
		{"vendor 403", &adapter.ProviderError{Provider: adapter.GoogleDrive, StatusCode: http.StatusForbidden, Err: errors.New("x")}, http.StatusForbidden},
		{"vendor 503", &adapter.ProviderError{Provider: adapter.GoogleDrive, StatusCode: http.StatusServiceUnavailable, Err: errors.New("x")}, http.StatusBadGateway},
		{"vendor without status", &adapter.ProviderError{Provider: adapter.Dropbox, Err: errors.New("x")}, http.StatusBadGateway},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, handler.StatusFor(tt.err))
		})
	}
}
