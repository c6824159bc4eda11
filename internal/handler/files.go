package handler

import (
	"context"
	"mime"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/n3m01726/cloudcaddy-sub000/internal/adapter"
	"github.com/n3m01726/cloudcaddy-sub000/internal/preview"
	"github.com/n3m01726/cloudcaddy-sub000/internal/service"
	"github.com/n3m01726/cloudcaddy-sub000/internal/store"
	"github.com/sirupsen/logrus"
)

// FileHandler exposes FileService over API Gateway.
type FileHandler struct {
	files     *service.FileService
	renderer  *preview.Renderer
	jwtSecret string
	log       logrus.FieldLogger
}

// NewFileHandler creates a new FileHandler.
func NewFileHandler(files *service.FileService, renderer *preview.Renderer, jwtSecret string, log logrus.FieldLogger) *FileHandler {
	return &FileHandler{files: files, renderer: renderer, jwtSecret: jwtSecret, log: log}
}

// List handles GET /files?provider=&folderId=.
func (h *FileHandler) List(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, denied := authenticate(req, h.jwtSecret)
	if denied != nil {
		return *denied, nil
	}
	q := req.QueryStringParameters
	result, err := h.files.List(ctx, userID, q["provider"], q["folderId"])
	if err != nil {
		return failure(h.log, "list files", err), nil
	}
	return jsonResponse(http.StatusOK, result), nil
}

// Search handles GET /files/search?q=&provider=&pageSize=.
func (h *FileHandler) Search(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, denied := authenticate(req, h.jwtSecret)
	if denied != nil {
		return *denied, nil
	}
	q := req.QueryStringParameters
	result, err := h.files.Search(ctx, userID, q["provider"], q["q"], queryInt(req, "pageSize"))
	if err != nil {
		return failure(h.log, "search", err), nil
	}
	return jsonResponse(http.StatusOK, result), nil
}

// Starred handles GET /files/starred.
func (h *FileHandler) Starred(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, denied := authenticate(req, h.jwtSecret)
	if denied != nil {
		return *denied, nil
	}
	files, err := h.files.Starred(ctx, userID)
	if err != nil {
		return failure(h.log, "list starred", err), nil
	}
	return jsonResponse(http.StatusOK, map[string]any{"files": files}), nil
}

// GetMetadata handles GET /files/{provider}/{fileId}.
func (h *FileHandler) GetMetadata(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, denied := authenticate(req, h.jwtSecret)
	if denied != nil {
		return *denied, nil
	}
	p := req.PathParameters
	file, err := h.files.GetMetadata(ctx, userID, p["provider"], p["fileId"])
	if err != nil {
		return failure(h.log, "get metadata", err), nil
	}
	return jsonResponse(http.StatusOK, file), nil
}

// Preview handles GET /files/{provider}/{fileId}/preview.
func (h *FileHandler) Preview(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, denied := authenticate(req, h.jwtSecret)
	if denied != nil {
		return *denied, nil
	}
	p := req.PathParameters
	file, err := h.files.Preview(ctx, userID, p["provider"], p["fileId"])
	if err != nil {
		return failure(h.log, "preview", err), nil
	}
	return jsonResponse(http.StatusOK, file), nil
}

// FolderInfo handles GET /folders/{provider}?folderId=.
func (h *FileHandler) FolderInfo(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, denied := authenticate(req, h.jwtSecret)
	if denied != nil {
		return *denied, nil
	}
	folder, err := h.files.FolderInfo(ctx, userID, req.PathParameters["provider"], req.QueryStringParameters["folderId"])
	if err != nil {
		return failure(h.log, "get folder info", err), nil
	}
	return jsonResponse(http.StatusOK, folder), nil
}

// Proxy handles GET /files/proxy/{provider}/{fileId}. It streams the file bytes so the
// browser never needs vendor credentials. ?render=html renders Markdown files.
func (h *FileHandler) Proxy(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, denied := h.proxyUser(req)
	if denied != nil {
		return *denied, nil
	}
	p := req.PathParameters
	content, file, err := h.files.Download(ctx, userID, p["provider"], p["fileId"])
	if err != nil {
		return failure(h.log, "download", err), nil
	}

	if req.QueryStringParameters["render"] == "html" && preview.IsMarkdown(file.Name, file.MimeType) && len(content) <= preview.MaxMarkdownSize {
		page, err := h.renderer.RenderPage(file.Name, content)
		if err != nil {
			return failure(h.log, "render preview", err), nil
		}
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusOK,
			Body:       string(page),
			Headers: map[string]string{
				"Content-Type":            "text/html; charset=utf-8",
				"Content-Security-Policy": "default-src 'none'; style-src 'unsafe-inline'",
			},
		}, nil
	}

	disposition := "inline"
	if queryBool(req, "download") {
		disposition = "attachment"
	}
	return binaryResponse(content, file.MimeType, map[string]string{
		"Content-Disposition": mime.FormatMediaType(disposition, map[string]string{"filename": file.Name}),
		"Cache-Control":       "private, max-age=60",
	}), nil
}

// Thumbnail handles GET /files/proxy/{provider}/{fileId}/thumbnail.
func (h *FileHandler) Thumbnail(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, denied := h.proxyUser(req)
	if denied != nil {
		return *denied, nil
	}
	p := req.PathParameters
	content, contentType, err := h.files.Thumbnail(ctx, userID, p["provider"], p["fileId"])
	if err != nil {
		return failure(h.log, "thumbnail", err), nil
	}
	return binaryResponse(content, contentType, map[string]string{
		"Cache-Control": "private, max-age=3600",
	}), nil
}

// proxyUser authenticates a proxy request. Proxy URLs carry the owner's userId;
// it must match the session.
func (h *FileHandler) proxyUser(req events.APIGatewayProxyRequest) (string, *events.APIGatewayProxyResponse) {
	userID, denied := authenticate(req, h.jwtSecret)
	if denied != nil {
		return "", denied
	}
	if owner := req.QueryStringParameters["userId"]; owner != "" && owner != userID {
		resp := errorResponse(http.StatusForbidden, "file belongs to another user")
		return "", &resp
	}
	return userID, nil
}

type uploadRequest struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	FolderID string `json:"folderId"`
	Content  []byte `json:"content"` // base64 in JSON
}

// Upload handles POST /files/{provider}/upload.
func (h *FileHandler) Upload(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, denied := authenticate(req, h.jwtSecret)
	if denied != nil {
		return *denied, nil
	}
	var payload uploadRequest
	if err := decodeBody(req, &payload); err != nil {
		return failure(h.log, "upload", err), nil
	}
	file, err := h.files.Upload(ctx, userID, req.PathParameters["provider"], payload.Content, payload.Name, adapter.UploadOptions{
		MimeType: payload.MimeType,
		FolderID: payload.FolderID,
	})
	if err != nil {
		return failure(h.log, "upload", err), nil
	}
	return jsonResponse(http.StatusCreated, file), nil
}

// CreateFolder handles POST /folders/{provider}.
func (h *FileHandler) CreateFolder(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, denied := authenticate(req, h.jwtSecret)
	if denied != nil {
		return *denied, nil
	}
	var payload struct {
		Name     string `json:"name"`
		ParentID string `json:"parentId"`
	}
	if err := decodeBody(req, &payload); err != nil {
		return failure(h.log, "create folder", err), nil
	}
	folder, err := h.files.CreateFolder(ctx, userID, req.PathParameters["provider"], payload.Name, payload.ParentID)
	if err != nil {
		return failure(h.log, "create folder", err), nil
	}
	return jsonResponse(http.StatusCreated, folder), nil
}

// Move handles POST /files/{provider}/{fileId}/move.
func (h *FileHandler) Move(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, denied := authenticate(req, h.jwtSecret)
	if denied != nil {
		return *denied, nil
	}
	var payload struct {
		NewParentID string `json:"newParentId"`
		OldParentID string `json:"oldParentId"`
	}
	if err := decodeBody(req, &payload); err != nil {
		return failure(h.log, "move", err), nil
	}
	p := req.PathParameters
	file, err := h.files.Move(ctx, userID, p["provider"], p["fileId"], payload.NewParentID, payload.OldParentID)
	if err != nil {
		return failure(h.log, "move", err), nil
	}
	return jsonResponse(http.StatusOK, file), nil
}

// Copy handles POST /files/{provider}/{fileId}/copy.
func (h *FileHandler) Copy(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, denied := authenticate(req, h.jwtSecret)
	if denied != nil {
		return *denied, nil
	}
	var payload struct {
		NewParentID string `json:"newParentId"`
		NewName     string `json:"newName"`
	}
	if err := decodeBody(req, &payload); err != nil {
		return failure(h.log, "copy", err), nil
	}
	p := req.PathParameters
	file, err := h.files.Copy(ctx, userID, p["provider"], p["fileId"], payload.NewParentID, payload.NewName)
	if err != nil {
		return failure(h.log, "copy", err), nil
	}
	return jsonResponse(http.StatusCreated, file), nil
}

// Delete handles DELETE /files/{provider}/{fileId}.
func (h *FileHandler) Delete(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, denied := authenticate(req, h.jwtSecret)
	if denied != nil {
		return *denied, nil
	}
	p := req.PathParameters
	if _, err := h.files.Delete(ctx, userID, p["provider"], p["fileId"]); err != nil {
		return failure(h.log, "delete", err), nil
	}
	return jsonResponse(http.StatusOK, map[string]any{"success": true}), nil
}

type metadataRequest struct {
	CustomName  *string           `json:"customName"`
	Description *string           `json:"description"`
	Starred     *bool             `json:"starred"`
	Color       *string           `json:"color"`
	Tags        []string          `json:"tags"`
	TagColors   map[string]string `json:"tagColors"`
}

// UpdateMetadata handles PATCH /files/{provider}/{fileId}/metadata.
func (h *FileHandler) UpdateMetadata(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, denied := authenticate(req, h.jwtSecret)
	if denied != nil {
		return *denied, nil
	}
	var payload metadataRequest
	if err := decodeBody(req, &payload); err != nil {
		return failure(h.log, "update metadata", err), nil
	}
	p := req.PathParameters
	meta, err := h.files.UpdateMetadata(ctx, userID, p["provider"], p["fileId"], store.MetadataUpdate{
		CustomName:  payload.CustomName,
		Description: payload.Description,
		Starred:     payload.Starred,
		Color:       payload.Color,
		Tags:        payload.Tags,
		TagColors:   payload.TagColors,
	})
	if err != nil {
		return failure(h.log, "update metadata", err), nil
	}
	return jsonResponse(http.StatusOK, meta), nil
}

// ToggleStar handles POST /files/{provider}/{fileId}/star.
func (h *FileHandler) ToggleStar(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, denied := authenticate(req, h.jwtSecret)
	if denied != nil {
		return *denied, nil
	}
	p := req.PathParameters
	meta, err := h.files.ToggleStar(ctx, userID, p["provider"], p["fileId"])
	if err != nil {
		return failure(h.log, "toggle star", err), nil
	}
	return jsonResponse(http.StatusOK, meta), nil
}
