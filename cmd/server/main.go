package main

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/gin-gonic/gin"
	"github.com/n3m01726/cloudcaddy-sub000/internal/app"
	"github.com/n3m01726/cloudcaddy-sub000/internal/config"
	"github.com/n3m01726/cloudcaddy-sub000/internal/middleware"
	"golang.org/x/time/rate"
)

func main() {
	cfg := config.Load()
	log := app.NewLogger(cfg.LogLevel, false)

	application, err := app.NewApp(context.Background(), cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize application")
	}

	if !cfg.DevMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.NewRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst).Handler())
	router.NoRoute(bridge(application))

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Infof("Starting local server on :%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info("Shutdown signal received, stopping server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("server shutdown failed")
	}
}

// bridge converts each HTTP request into an API Gateway event for the shared router.
func bridge(application *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
			return
		}

		headers := make(map[string]string)
		for k, v := range c.Request.Header {
			headers[k] = v[0]
		}
		queryParams := make(map[string]string)
		for k, v := range c.Request.URL.Query() {
			queryParams[k] = v[0]
		}

		req := events.APIGatewayProxyRequest{
			Path:                  c.Request.URL.Path,
			HTTPMethod:            c.Request.Method,
			Headers:               headers,
			QueryStringParameters: queryParams,
			Body:                  string(body),
		}

		resp, err := application.HandleRequest(c.Request.Context(), req)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		for k, v := range resp.Headers {
			c.Header(k, v)
		}
		payload := []byte(resp.Body)
		if resp.IsBase64Encoded {
			if payload, err = base64.StdEncoding.DecodeString(resp.Body); err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "invalid response encoding"})
				return
			}
		}
		c.Data(resp.StatusCode, resp.Headers["Content-Type"], payload)
	}
}
