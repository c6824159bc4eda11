package handler

import (
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/n3m01726/cloudcaddy-sub000/internal/service"
	"github.com/sirupsen/logrus"
)

// NotificationHandler serves the unified notification feed.
type NotificationHandler struct {
	notifications *service.NotificationService
	jwtSecret     string
	log           logrus.FieldLogger
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(notifications *service.NotificationService, jwtSecret string, log logrus.FieldLogger) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, jwtSecret: jwtSecret, log: log}
}

// Feed handles GET /notifications?source=&includeRead=&limit=.
func (h *NotificationHandler) Feed(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, denied := authenticate(req, h.jwtSecret)
	if denied != nil {
		return *denied, nil
	}
	feed, err := h.notifications.Feed(ctx, userID, service.FeedOptions{
		Source:      req.QueryStringParameters["source"],
		IncludeRead: queryBool(req, "includeRead"),
		Limit:       queryInt(req, "limit"),
	})
	if err != nil {
		return failure(h.log, "notification feed", err), nil
	}
	return jsonResponse(http.StatusOK, map[string]any{"notifications": feed}), nil
}

// Create handles POST /notifications.
func (h *NotificationHandler) Create(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, denied := authenticate(req, h.jwtSecret)
	if denied != nil {
		return *denied, nil
	}
	var payload struct {
		Type     string            `json:"type"`
		Message  string            `json:"message"`
		Metadata map[string]string `json:"metadata"`
	}
	if err := decodeBody(req, &payload); err != nil {
		return failure(h.log, "create notification", err), nil
	}
	n, err := h.notifications.Create(ctx, userID, payload.Type, payload.Message, payload.Metadata)
	if err != nil {
		return failure(h.log, "create notification", err), nil
	}
	return jsonResponse(http.StatusCreated, n), nil
}

// MarkRead handles POST /notifications/{id}/read.
func (h *NotificationHandler) MarkRead(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, denied := authenticate(req, h.jwtSecret)
	if denied != nil {
		return *denied, nil
	}
	if err := h.notifications.MarkRead(ctx, userID, req.PathParameters["id"]); err != nil {
		return failure(h.log, "mark read", err), nil
	}
	return jsonResponse(http.StatusOK, map[string]any{"success": true}), nil
}

// MarkAllRead handles POST /notifications/read-all.
func (h *NotificationHandler) MarkAllRead(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, denied := authenticate(req, h.jwtSecret)
	if denied != nil {
		return *denied, nil
	}
	n, err := h.notifications.MarkAllRead(ctx, userID)
	if err != nil {
		return failure(h.log, "mark all read", err), nil
	}
	return jsonResponse(http.StatusOK, map[string]any{"updated": n}), nil
}

// UnreadCount handles GET /notifications/unread-count.
func (h *NotificationHandler) UnreadCount(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, denied := authenticate(req, h.jwtSecret)
	if denied != nil {
		return *denied, nil
	}
	n, err := h.notifications.UnreadCount(ctx, userID)
	if err != nil {
		return failure(h.log, "unread count", err), nil
	}
	return jsonResponse(http.StatusOK, map[string]any{"count": n}), nil
}
