package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"

	"shopping-agent/internal/app"
	"shopping-agent/internal/config"
	"shopping-agent/internal/logx"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load()
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to load configuration")
	}
	logx.Init(logx.Options{Production: cfg.Env().IsProduction(), Level: cfg.LogLevel})

	// ---- Wiring ----
	a, err := app.New(ctx, cfg)
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to wire service")
	}
	defer a.Close()

	// The function URL must use the RESPONSE_STREAM invoke mode.
	lambda.Start(a.Handler.HandleLambda)
}
