package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/n3m01726/cloudcaddy-sub000/internal/adapter"
	"github.com/n3m01726/cloudcaddy-sub000/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchHandler_DeletePartialFailure(t *testing.T) {
	env := newTestEnv(t, adapter.GoogleDrive)
	a := env.vendor(adapter.GoogleDrive).Seed("a.txt", []byte("a"), "")
	b := env.vendor(adapter.GoogleDrive).Seed("b.txt", []byte("b"), "")

	body, _ := json.Marshal(map[string]any{
		"provider": "google_drive",
		"fileIds":  []string{a.ID, "missing", b.ID},
	})
	resp, err := env.batch.Delete(context.Background(), makeRequest("POST", "/batch/delete", string(body)))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.Body)

	var result service.DeleteResult
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &result))
	assert.Equal(t, []string{a.ID, b.ID}, result.Deleted)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "missing", result.Errors[0].FileID)
}

func TestBatchHandler_CrossVendorCopy(t *testing.T) {
	env := newTestEnv(t, adapter.GoogleDrive, adapter.Dropbox)
	src := env.vendor(adapter.GoogleDrive).Seed("x.txt", []byte("payload"), "")

	body, _ := json.Marshal(map[string]any{
		"sourceProvider": "google_drive",
		"destProvider":   "dropbox",
		"fileIds":        []string{src.ID},
	})
	resp, err := env.batch.Copy(context.Background(), makeRequest("POST", "/batch/copy", string(body)))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.Body)

	var result service.CopyResult
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &result))
	require.Len(t, result.Copied, 1)
	assert.Equal(t, adapter.Dropbox, result.Copied[0].Provider)
	assert.Empty(t, result.Errors)
}

func TestBatchHandler_CreateFolderAndMove(t *testing.T) {
	env := newTestEnv(t, adapter.Dropbox)
	f := env.vendor(adapter.Dropbox).Seed("f.txt", []byte("f"), "")

	body, _ := json.Marshal(map[string]any{
		"provider":   "dropbox",
		"folderName": "Archive",
		"fileIds":    []string{f.ID},
	})
	resp, err := env.batch.CreateFolderAndMove(context.Background(), makeRequest("POST", "/batch/create-folder-and-move", string(body)))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.Body)

	var result service.FolderMoveResult
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &result))
	require.NotNil(t, result.Folder)
	assert.Equal(t, "Archive", result.Folder.Name)
	assert.Len(t, result.MovedFiles, 1)
}

func TestBatchHandler_TagRequiresTags(t *testing.T) {
	env := newTestEnv(t, adapter.GoogleDrive)
	body := `{"provider":"google_drive","fileIds":["a"],"tags":[" "]}`

	resp, err := env.batch.Tag(context.Background(), makeRequest("POST", "/batch/tag", body))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBatchHandler_MoveNotConnected(t *testing.T) {
	env := newTestEnv(t, adapter.GoogleDrive)
	body := `{"provider":"dropbox","fileIds":["a"],"destFolderId":"/dest"}`

	resp, err := env.batch.Move(context.Background(), makeRequest("POST", "/batch/move", body))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
