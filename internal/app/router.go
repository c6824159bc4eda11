package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/sirupsen/logrus"
)

type handlerFunc func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

// route matches a method and a slash-separated pattern; "{name}" segments become path parameters.
type route struct {
	method   string
	segments []string
	handle   handlerFunc
}

func newRoute(method, pattern string, h handlerFunc) route {
	return route{method: method, segments: splitPath(pattern), handle: h}
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// match returns the path parameters when parts fit the pattern.
func (r route) match(method string, parts []string) (map[string]string, bool) {
	if r.method != method || len(r.segments) != len(parts) {
		return nil, false
	}
	params := map[string]string{}
	for i, seg := range r.segments {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			if parts[i] == "" {
				return nil, false
			}
			params[seg[1:len(seg)-1]] = parts[i]
			continue
		}
		if seg != parts[i] {
			return nil, false
		}
	}
	return params, true
}

// buildRoutes lists every endpoint. Literal routes come before parameterized ones of the same shape.
func (app *App) buildRoutes() []route {
	f, b, n, a := app.fileHandler, app.batchHandler, app.notificationHandler, app.accountHandler
	routes := []route{
		newRoute(http.MethodGet, "/providers", a.Providers),
		newRoute(http.MethodGet, "/accounts", a.List),
		newRoute(http.MethodDelete, "/accounts/{provider}", a.Disconnect),

		newRoute(http.MethodGet, "/files", f.List),
		newRoute(http.MethodGet, "/files/search", f.Search),
		newRoute(http.MethodGet, "/files/starred", f.Starred),
		newRoute(http.MethodGet, "/files/proxy/{provider}/{fileId}", f.Proxy),
		newRoute(http.MethodGet, "/files/proxy/{provider}/{fileId}/thumbnail", f.Thumbnail),
		newRoute(http.MethodPost, "/files/{provider}/upload", f.Upload),
		newRoute(http.MethodGet, "/files/{provider}/{fileId}", f.GetMetadata),
		newRoute(http.MethodDelete, "/files/{provider}/{fileId}", f.Delete),
		newRoute(http.MethodGet, "/files/{provider}/{fileId}/preview", f.Preview),
		newRoute(http.MethodPost, "/files/{provider}/{fileId}/move", f.Move),
		newRoute(http.MethodPost, "/files/{provider}/{fileId}/copy", f.Copy),
		newRoute(http.MethodPatch, "/files/{provider}/{fileId}/metadata", f.UpdateMetadata),
		newRoute(http.MethodPost, "/files/{provider}/{fileId}/star", f.ToggleStar),
		newRoute(http.MethodGet, "/folders/{provider}", f.FolderInfo),
		newRoute(http.MethodPost, "/folders/{provider}", f.CreateFolder),

		newRoute(http.MethodPost, "/batch/create-folder-and-move", b.CreateFolderAndMove),
		newRoute(http.MethodPost, "/batch/move", b.Move),
		newRoute(http.MethodPost, "/batch/copy", b.Copy),
		newRoute(http.MethodPost, "/batch/delete", b.Delete),
		newRoute(http.MethodPost, "/batch/tag", b.Tag),

		newRoute(http.MethodGet, "/notifications", n.Feed),
		newRoute(http.MethodPost, "/notifications", n.Create),
		newRoute(http.MethodGet, "/notifications/unread-count", n.UnreadCount),
		newRoute(http.MethodPost, "/notifications/read-all", n.MarkAllRead),
		newRoute(http.MethodPost, "/notifications/{id}/read", n.MarkRead),
	}
	if app.demoHandler != nil {
		routes = append(routes, newRoute(http.MethodGet, "/auth/demo-login", app.demoHandler.Login))
	}
	return routes
}

// HandleRequest routes API Gateway requests to the appropriate handler.
func (app *App) HandleRequest(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	method := req.HTTPMethod
	// Strip /api prefix if present (for CloudFront proxying)
	path := strings.TrimPrefix(req.Path, "/api")

	log := app.log.WithFields(logrus.Fields{"method": method, "path": path})
	log.Debug("request")

	if method == http.MethodOptions {
		return app.withCORS(events.APIGatewayProxyResponse{StatusCode: http.StatusNoContent}), nil
	}

	// Only CloudFront knows the origin secret. DEV_MODE has none.
	if app.originSecret != "" && headerValue(req.Headers, "X-Origin-Verify") != app.originSecret {
		log.Warn("Security Block: Missing or invalid X-Origin-Verify header")
		return app.withCORS(jsonError(http.StatusForbidden, "Forbidden: Access denied")), nil
	}

	parts := splitPath(path)
	for _, r := range app.routes {
		params, ok := r.match(method, parts)
		if !ok {
			continue
		}
		if req.PathParameters == nil {
			req.PathParameters = make(map[string]string)
		}
		for k, v := range params {
			req.PathParameters[k] = v
		}
		if req.QueryStringParameters == nil {
			req.QueryStringParameters = make(map[string]string)
		}
		resp, err := r.handle(ctx, req)
		if err != nil {
			log.WithError(err).Error("Handler error")
			return app.withCORS(jsonError(http.StatusInternalServerError, "Internal Server Error")), nil
		}
		return app.withCORS(resp), nil
	}

	return app.withCORS(jsonError(http.StatusNotFound, fmt.Sprintf("Not Found: %s %s", method, path))), nil
}

func (app *App) withCORS(resp events.APIGatewayProxyResponse) events.APIGatewayProxyResponse {
	resp.Headers = app.corsHeaders(resp.Headers)
	return resp
}

func jsonError(status int, message string) events.APIGatewayProxyResponse {
	body, _ := json.Marshal(map[string]string{"error": message})
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Body:       string(body),
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
