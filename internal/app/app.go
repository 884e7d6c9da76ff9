// Package app wires configuration into a ready handler. Both entry points
// share it so the Lambda and the dev server run the same stack.
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"shopping-agent/handler"
	"shopping-agent/internal/config"
	"shopping-agent/internal/integrations/openai"
	"shopping-agent/internal/integrations/paramstore"
	"shopping-agent/internal/integrations/productsearch"
	"shopping-agent/internal/logx"
	"shopping-agent/internal/ratelimit"
	"shopping-agent/internal/repository"
	"shopping-agent/internal/usecase"
)

// App is the assembled service. Close releases connections opened while
// wiring.
type App struct {
	Handler *handler.Handler
	closers []func() error
}

func (a *App) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			logx.Warn().Err(err).Msg("close failed")
		}
	}
}

// New builds the handler and its dependencies from cfg.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("app: load AWS config: %w", err)
	}
	a := &App{}

	dynamo := awsdynamodb.NewFromConfig(awsCfg)
	store, err := repository.New(dynamo, cfg.StateTable)
	if err != nil {
		return nil, fmt.Errorf("app: create repository: %w", err)
	}

	secrets, err := newSecrets(awsCfg, cfg.ParamPrefix)
	if err != nil {
		return nil, err
	}

	llm, err := openai.NewClient(tokenSource(cfg.OpenAIAPIKey, secrets), openai.WithBaseURL(cfg.OpenAIBaseURL))
	if err != nil {
		return nil, fmt.Errorf("app: create OpenAI client: %w", err)
	}

	search, err := productsearch.NewClient(tokenSource(cfg.SearchAPIKey, secrets),
		productsearch.WithBaseURL(cfg.SearchBaseURL),
		productsearch.WithHost(cfg.SearchHost),
		productsearch.WithAffiliateTag(cfg.AffiliateTag),
	)
	if err != nil {
		return nil, fmt.Errorf("app: create search client: %w", err)
	}

	counters, err := a.rateStore(ctx, cfg, dynamo)
	if err != nil {
		a.Close()
		return nil, err
	}
	limiter, err := ratelimit.NewLimiter(counters, ratelimit.Config{
		UserLimit:  cfg.RateLimit.UserLimit,
		GuestLimit: cfg.RateLimit.GuestLimit,
		Window:     cfg.RateLimit.Window,
		Disabled:   cfg.RateLimit.Disabled,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("app: create rate limiter: %w", err)
	}

	svc, err := usecase.NewSearchService(llm, search, store, limiter, usecase.Options{
		Model:           cfg.OpenAIModel,
		MaxLoops:        cfg.Agent.MaxLoops,
		MaxContextItems: cfg.Agent.MaxContextItems,
		MaxQueryLength:  cfg.Agent.MaxQueryLength,
		ToolTimeout:     cfg.Agent.ToolTimeout,
		DefaultLocale:   cfg.DefaultLocale,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("app: create search service: %w", err)
	}

	h, err := handler.NewHandler(svc)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("app: create handler: %w", err)
	}
	a.Handler = h

	logx.Info().
		Str("environment", cfg.Env().String()).
		Str("model", cfg.OpenAIModel).
		Str("rate_limit_backend", cfg.RateLimit.Backend).
		Int("max_loops", cfg.Agent.MaxLoops).
		Msg("service wired")
	return a, nil
}

func (a *App) rateStore(ctx context.Context, cfg config.Config, dynamo *awsdynamodb.Client) (ratelimit.Store, error) {
	if strings.EqualFold(cfg.RateLimit.Backend, "redis") {
		rdb, err := cfg.Redis.NewRedisClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("app: connect redis: %w", err)
		}
		a.closers = append(a.closers, rdb.Close)
		s, err := ratelimit.NewRedisStore(rdb)
		if err != nil {
			return nil, fmt.Errorf("app: create redis rate store: %w", err)
		}
		return s, nil
	}
	s, err := ratelimit.NewDynamoStore(dynamo, cfg.StateTable)
	if err != nil {
		return nil, fmt.Errorf("app: create dynamodb rate store: %w", err)
	}
	return s, nil
}

func newSecrets(awsCfg aws.Config, prefix string) (*paramstore.Secrets, error) {
	ssm, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return nil, fmt.Errorf("app: create SSM client: %w", err)
	}
	secrets, err := paramstore.NewSecrets(ssm, prefix)
	if err != nil {
		return nil, fmt.Errorf("app: create secrets: %w", err)
	}
	return secrets, nil
}

// tokenSource prefers a key supplied in the environment over Parameter
// Store, for local runs.
func tokenSource(envKey string, secrets *paramstore.Secrets) openai.TokenSource {
	if strings.TrimSpace(envKey) != "" {
		return paramstore.Static(envKey)
	}
	return secrets
}
