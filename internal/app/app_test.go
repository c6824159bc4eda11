package app

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/n3m01726/cloudcaddy-sub000/internal/config"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDevApp(t *testing.T) *App {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")
	logger, _ := test.NewNullLogger()
	application, err := NewApp(context.Background(), config.Config{
		DevMode:                true,
		FrontendURL:            "http://localhost:3000",
		VendorCallTimeout:      5 * time.Second,
		NotificationCacheTTL:   time.Minute,
		AggregationConcurrency: 2,
	}, logger)
	require.NoError(t, err)
	return application
}

func get(path string, headers map[string]string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{HTTPMethod: http.MethodGet, Path: path, Headers: headers}
}

func TestHandleRequest_Providers(t *testing.T) {
	application := newDevApp(t)

	resp, err := application.HandleRequest(context.Background(), get("/api/providers", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"providers":["dropbox","google_drive","memory"]}`, resp.Body)
	assert.Equal(t, "http://localhost:3000", resp.Headers["Access-Control-Allow-Origin"])
}

func TestHandleRequest_PreflightAndNotFound(t *testing.T) {
	application := newDevApp(t)
	ctx := context.Background()

	resp, _ := application.HandleRequest(ctx, events.APIGatewayProxyRequest{HTTPMethod: http.MethodOptions, Path: "/api/files"})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "true", resp.Headers["Access-Control-Allow-Credentials"])

	resp, _ = application.HandleRequest(ctx, get("/api/nothing/here", nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = application.HandleRequest(ctx, events.APIGatewayProxyRequest{HTTPMethod: http.MethodPut, Path: "/api/files"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleRequest_DemoSession(t *testing.T) {
	application := newDevApp(t)
	ctx := context.Background()

	login, err := application.HandleRequest(ctx, get("/api/auth/demo-login", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, login.StatusCode, login.Body)
	var session struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal([]byte(login.Body), &session))

	auth := map[string]string{"Authorization": "Bearer " + session.Token}
	list, err := application.HandleRequest(ctx, get("/api/files", auth))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, list.StatusCode, list.Body)

	var result struct {
		Files []struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			Provider string `json:"provider"`
		} `json:"files"`
	}
	require.NoError(t, json.Unmarshal([]byte(list.Body), &result))
	require.Len(t, result.Files, 1)
	assert.Equal(t, "Welcome.md", result.Files[0].Name)

	file := result.Files[0]
	meta, err := application.HandleRequest(ctx, get("/api/files/"+file.Provider+"/"+file.ID, auth))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, meta.StatusCode, meta.Body)

	req := get("/api/files/proxy/"+file.Provider+"/"+file.ID, auth)
	req.QueryStringParameters = map[string]string{"render": "html"}
	page, err := application.HandleRequest(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Contains(t, page.Body, `<h1 id="welcome-to-cloudcaddy">`)
}

func TestHandleRequest_OriginVerify(t *testing.T) {
	application := newDevApp(t)
	application.originSecret = "cf-secret"
	ctx := context.Background()

	resp, _ := application.HandleRequest(ctx, get("/api/providers", nil))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = application.HandleRequest(ctx, get("/api/providers", map[string]string{"x-origin-verify": "cf-secret"}))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouteMatch(t *testing.T) {
	r := newRoute(http.MethodPost, "/notifications/{id}/read", nil)

	params, ok := r.match(http.MethodPost, splitPath("/notifications/abc/read"))
	require.True(t, ok)
	assert.Equal(t, map[string]string{"id": "abc"}, params)

	_, ok = r.match(http.MethodGet, splitPath("/notifications/abc/read"))
	assert.False(t, ok)
	_, ok = r.match(http.MethodPost, splitPath("/notifications/read-all"))
	assert.False(t, ok)
}

func TestNewLogger(t *testing.T) {
	log := NewLogger("debug", true)
	assert.Equal(t, "debug", log.GetLevel().String())
	assert.Equal(t, "info", NewLogger("loud", false).GetLevel().String())
}

func TestRefreshersFor(t *testing.T) {
	prod := refreshersFor(config.Config{GoogleClientID: "client-id"}, "client-secret")
	assert.Contains(t, prod, "google_drive")
	assert.NotContains(t, prod, "dropbox")
	assert.Len(t, prod, 1)

	assert.Empty(t, refreshersFor(config.Config{DevMode: true}, ""))
}
