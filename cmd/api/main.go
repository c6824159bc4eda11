package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/n3m01726/cloudcaddy-sub000/internal/app"
	"github.com/n3m01726/cloudcaddy-sub000/internal/config"
)

func main() {
	cfg := config.Load()
	log := app.NewLogger(cfg.LogLevel, true)

	application, err := app.NewApp(context.Background(), cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize application")
	}
	lambda.Start(application.HandleRequest)
}
