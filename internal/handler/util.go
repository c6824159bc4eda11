package handler

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/golang-jwt/jwt/v5"
	"github.com/n3m01726/cloudcaddy-sub000/internal/adapter"
	"github.com/n3m01726/cloudcaddy-sub000/internal/service"
	"github.com/n3m01726/cloudcaddy-sub000/internal/store"
	"github.com/sirupsen/logrus"
)

// errUnauthorized marks a request without a valid session.
var errUnauthorized = errors.New("unauthorized")

// GetUserID extracts the user ID from the Authorization header or session cookie.
func GetUserID(req events.APIGatewayProxyRequest, jwtSecret string) (string, error) {
	// 1. Check Authorization Header (Bearer <token>)
	tokenString := ""
	authHeader := header(req, "Authorization")
	if authHeader != "" && strings.HasPrefix(authHeader, "Bearer ") {
		tokenString = strings.TrimPrefix(authHeader, "Bearer ")
	}

	// 2. Check Cookie
	if tokenString == "" {
		// Cookie format: session_token=xxx; ...
		cookies := header(req, "Cookie")
		if cookies != "" {
			for _, part := range strings.Split(cookies, ";") {
				part = strings.TrimSpace(part)
				if strings.HasPrefix(part, "session_token=") {
					tokenString = strings.TrimPrefix(part, "session_token=")
					break
				}
			}
		}
	}

	if tokenString == "" {
		return "", fmt.Errorf("no authorization token found")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid token: %v", err)
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		if sub, ok := claims["sub"].(string); ok && sub != "" {
			return sub, nil
		}
	}

	return "", fmt.Errorf("invalid token claims")
}

// header is a case-insensitive header lookup.
func header(req events.APIGatewayProxyRequest, name string) string {
	for k, v := range req.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// authenticate resolves the caller or returns a 401 response.
func authenticate(req events.APIGatewayProxyRequest, jwtSecret string) (string, *events.APIGatewayProxyResponse) {
	userID, err := GetUserID(req, jwtSecret)
	if err != nil {
		resp := errorResponse(http.StatusUnauthorized, fmt.Sprintf("%v: %v", errUnauthorized, err))
		return "", &resp
	}
	return userID, nil
}

// jsonResponse serializes v with the given status.
func jsonResponse(status int, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		return errorResponse(http.StatusInternalServerError, "failed to encode response")
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Body:       string(body),
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

func errorResponse(status int, message string) events.APIGatewayProxyResponse {
	body, _ := json.Marshal(map[string]string{"error": message})
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Body:       string(body),
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

// binaryResponse returns raw bytes base64-encoded, as API Gateway expects.
func binaryResponse(content []byte, contentType string, headers map[string]string) events.APIGatewayProxyResponse {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := map[string]string{"Content-Type": contentType}
	for k, v := range headers {
		h[k] = v
	}
	return events.APIGatewayProxyResponse{
		StatusCode:      http.StatusOK,
		Body:            base64.StdEncoding.EncodeToString(content),
		IsBase64Encoded: true,
		Headers:         h,
	}
}

// StatusFor maps a service error to an HTTP status.
func StatusFor(err error) int {
	var pErr *adapter.ProviderError
	switch {
	case errors.Is(err, errUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, adapter.ErrUnsupportedProvider), errors.Is(err, service.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, adapter.ErrNotConnected), errors.Is(err, adapter.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &pErr):
		if pErr.StatusCode >= http.StatusInternalServerError {
			return http.StatusBadGateway
		}
		if pErr.StatusCode >= http.StatusBadRequest {
			return pErr.StatusCode
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// failure logs err and converts it into an error response.
func failure(log logrus.FieldLogger, op string, err error) events.APIGatewayProxyResponse {
	status := StatusFor(err)
	entry := log.WithField("operation", op).WithError(err)
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
		return errorResponse(status, fmt.Sprintf("%s failed", op))
	}
	entry.Warn("request rejected")
	return errorResponse(status, err.Error())
}

// decodeBody unmarshals the request body into v.
func decodeBody(req events.APIGatewayProxyRequest, v any) error {
	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return fmt.Errorf("%w: body is not valid base64", service.ErrInvalidArgument)
		}
		body = decoded
	}
	if len(body) == 0 {
		return fmt.Errorf("%w: request body is required", service.ErrInvalidArgument)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: invalid request body", service.ErrInvalidArgument)
	}
	return nil
}

// queryInt reads a positive integer query parameter, or 0.
func queryInt(req events.APIGatewayProxyRequest, name string) int {
	n, err := strconv.Atoi(req.QueryStringParameters[name])
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func queryBool(req events.APIGatewayProxyRequest, name string) bool {
	b, _ := strconv.ParseBool(req.QueryStringParameters[name])
	return b
}
