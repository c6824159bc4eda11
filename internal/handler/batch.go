package handler

import (
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/n3m01726/cloudcaddy-sub000/internal/service"
	"github.com/sirupsen/logrus"
)

// BatchHandler exposes BatchService. Partial failures come back with 200 and an errors list.
type BatchHandler struct {
	batch     *service.BatchService
	jwtSecret string
	log       logrus.FieldLogger
}

// NewBatchHandler creates a new BatchHandler.
func NewBatchHandler(batch *service.BatchService, jwtSecret string, log logrus.FieldLogger) *BatchHandler {
	return &BatchHandler{batch: batch, jwtSecret: jwtSecret, log: log}
}

// CreateFolderAndMove handles POST /batch/create-folder-and-move.
func (h *BatchHandler) CreateFolderAndMove(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, denied := authenticate(req, h.jwtSecret)
	if denied != nil {
		return *denied, nil
	}
	var payload struct {
		Provider   string   `json:"provider"`
		FolderName string   `json:"folderName"`
		ParentID   string   `json:"parentId"`
		FileIDs    []string `json:"fileIds"`
	}
	if err := decodeBody(req, &payload); err != nil {
		return failure(h.log, "create folder and move", err), nil
	}
	result, err := h.batch.CreateFolderAndMove(ctx, userID, payload.Provider, payload.FolderName, payload.ParentID, payload.FileIDs)
	if err != nil {
		return failure(h.log, "create folder and move", err), nil
	}
	return jsonResponse(http.StatusOK, result), nil
}

// Move handles POST /batch/move.
func (h *BatchHandler) Move(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, denied := authenticate(req, h.jwtSecret)
	if denied != nil {
		return *denied, nil
	}
	var payload struct {
		Provider     string   `json:"provider"`
		FileIDs      []string `json:"fileIds"`
		DestFolderID string   `json:"destFolderId"`
	}
	if err := decodeBody(req, &payload); err != nil {
		return failure(h.log, "batch move", err), nil
	}
	result, err := h.batch.MoveFiles(ctx, userID, payload.Provider, payload.FileIDs, payload.DestFolderID)
	if err != nil {
		return failure(h.log, "batch move", err), nil
	}
	return jsonResponse(http.StatusOK, result), nil
}

// Copy handles POST /batch/copy. destProvider may differ from sourceProvider.
func (h *BatchHandler) Copy(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, denied := authenticate(req, h.jwtSecret)
	if denied != nil {
		return *denied, nil
	}
	var payload struct {
		SourceProvider string   `json:"sourceProvider"`
		DestProvider   string   `json:"destProvider"`
		FileIDs        []string `json:"fileIds"`
		DestFolderID   string   `json:"destFolderId"`
	}
	if err := decodeBody(req, &payload); err != nil {
		return failure(h.log, "batch copy", err), nil
	}
	result, err := h.batch.CopyFiles(ctx, userID, service.CopyRequest{
		SourceProvider: payload.SourceProvider,
		DestProvider:   payload.DestProvider,
		FileIDs:        payload.FileIDs,
		DestFolderID:   payload.DestFolderID,
	})
	if err != nil {
		return failure(h.log, "batch copy", err), nil
	}
	return jsonResponse(http.StatusOK, result), nil
}

// Delete handles POST /batch/delete.
func (h *BatchHandler) Delete(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, denied := authenticate(req, h.jwtSecret)
	if denied != nil {
		return *denied, nil
	}
	var payload struct {
		Provider string   `json:"provider"`
		FileIDs  []string `json:"fileIds"`
	}
	if err := decodeBody(req, &payload); err != nil {
		return failure(h.log, "batch delete", err), nil
	}
	result, err := h.batch.DeleteFiles(ctx, userID, payload.Provider, payload.FileIDs)
	if err != nil {
		return failure(h.log, "batch delete", err), nil
	}
	return jsonResponse(http.StatusOK, result), nil
}

// Tag handles POST /batch/tag.
func (h *BatchHandler) Tag(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, denied := authenticate(req, h.jwtSecret)
	if denied != nil {
		return *denied, nil
	}
	var payload struct {
		Provider  string            `json:"provider"`
		FileIDs   []string          `json:"fileIds"`
		Tags      []string          `json:"tags"`
		TagColors map[string]string `json:"tagColors"`
	}
	if err := decodeBody(req, &payload); err != nil {
		return failure(h.log, "batch tag", err), nil
	}
	result, err := h.batch.TagFiles(ctx, userID, payload.Provider, payload.FileIDs, payload.Tags, payload.TagColors)
	if err != nil {
		return failure(h.log, "batch tag", err), nil
	}
	return jsonResponse(http.StatusOK, result), nil
}
