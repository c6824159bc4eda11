package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/n3m01726/cloudcaddy-sub000/internal/adapter"
	"github.com/n3m01726/cloudcaddy-sub000/internal/handler"
	"github.com/n3m01726/cloudcaddy-sub000/internal/service"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDemoHandler_Login(t *testing.T) {
	env := newTestEnv(t)
	logger, _ := test.NewNullLogger()
	registry := adapter.NewRegistry()
	registry.Register(adapter.GoogleDrive, env.mem.Constructor(adapter.GoogleDrive))
	registry.Register(adapter.Dropbox, env.mem.Constructor(adapter.Dropbox))

	demo := handler.NewDemoHandler(env.accounts, registry, []adapter.ProviderName{adapter.GoogleDrive, adapter.Dropbox}, testJWTSecret, logger)
	resp, err := demo.Login(context.Background(), makeRequest("GET", "/auth/demo-login", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.Body)

	var body struct {
		UserID string `json:"userId"`
		Token  string `json:"token"`
	}
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
	assert.True(t, strings.HasPrefix(body.UserID, "demo-user-"))
	assert.Contains(t, resp.Headers["Set-Cookie"], "session_token="+body.Token)

	list := makeRequest("GET", "/files", "")
	list.Headers = map[string]string{"Cookie": "session_token=" + body.Token}
	listResp, err := env.files.List(context.Background(), list)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, listResp.StatusCode)

	var result service.ListResult
	require.NoError(t, json.Unmarshal([]byte(listResp.Body), &result))
	require.Len(t, result.Files, 1)
	assert.Equal(t, "Welcome.md", result.Files[0].Name)
	assert.Empty(t, result.Errors)
}

func TestIssueToken_RoundTrip(t *testing.T) {
	token, err := handler.IssueToken("u-1", testJWTSecret, time.Minute)
	require.NoError(t, err)

	req := makeRequest("GET", "/", "")
	req.Headers = map[string]string{"Authorization": "Bearer " + token}
	userID, err := handler.GetUserID(req, testJWTSecret)
	require.NoError(t, err)
	assert.Equal(t, "u-1", userID)
}
