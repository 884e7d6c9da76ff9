package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds every tunable of the service, sourced from environment
// variables. Secrets are resolved separately through Parameter Store.
type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL"`
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8080"`

	StateTable  string `envconfig:"STATE_TABLE" required:"true"`
	ParamPrefix string `envconfig:"PARAM_PREFIX" required:"true"`

	OpenAIModel   string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL"`
	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY"`

	SearchBaseURL string `envconfig:"SEARCH_BASE_URL" default:"https://real-time-amazon-data.p.rapidapi.com"`
	SearchAPIKey  string `envconfig:"SEARCH_API_KEY"`
	SearchHost    string `envconfig:"SEARCH_API_HOST" default:"real-time-amazon-data.p.rapidapi.com"`
	AffiliateTag  string `envconfig:"AFFILIATE_TAG"`
	DefaultLocale string `envconfig:"DEFAULT_LOCALE" default:"en-US"`

	Agent     AgentConfig
	RateLimit RateLimitConfig
	Redis     RedisConfig
}

// AgentConfig bounds the agent loop.
type AgentConfig struct {
	MaxLoops        int           `envconfig:"AGENT_MAX_LOOPS" default:"3"`
	MaxContextItems int           `envconfig:"AGENT_MAX_CONTEXT_ITEMS" default:"20"`
	MaxQueryLength  int           `envconfig:"AGENT_MAX_QUERY_LENGTH" default:"500"`
	ToolTimeout     time.Duration `envconfig:"AGENT_TOOL_TIMEOUT" default:"20s"`
}

// RateLimitConfig configures the shared search quota.
type RateLimitConfig struct {
	Backend    string        `envconfig:"RATE_LIMIT_BACKEND" default:"dynamodb"`
	UserLimit  int           `envconfig:"RATE_LIMIT_USER" default:"30"`
	GuestLimit int           `envconfig:"RATE_LIMIT_GUEST" default:"5"`
	Window     time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"24h"`
	Disabled   bool          `envconfig:"RATE_LIMIT_DISABLED" default:"false"`
}

// RedisConfig is only required when the rate limit backend is redis.
type RedisConfig struct {
	URL          string `split_words:"true"`
	ReadTimeout  int    `split_words:"true" default:"3"`
	WriteTimeout int    `split_words:"true" default:"3"`
	DialTimeout  int    `split_words:"true" default:"5"`
}

// Load reads the configuration from the environment and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: process env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints envconfig cannot express.
func (c Config) Validate() error {
	if c.Agent.MaxLoops <= 0 {
		return errors.New("config: AGENT_MAX_LOOPS must be positive")
	}
	if c.RateLimit.UserLimit <= 0 || c.RateLimit.GuestLimit <= 0 {
		return errors.New("config: rate limits must be positive")
	}
	if c.RateLimit.Window < time.Minute {
		return errors.New("config: RATE_LIMIT_WINDOW must be at least 1m")
	}
	switch strings.ToLower(c.RateLimit.Backend) {
	case "dynamodb":
	case "redis":
		if strings.TrimSpace(c.Redis.URL) == "" {
			return errors.New("config: REDIS_URL is required for the redis rate limit backend")
		}
	default:
		return fmt.Errorf("config: unknown RATE_LIMIT_BACKEND %q", c.RateLimit.Backend)
	}
	return nil
}

// Env returns the parsed deployment environment.
func (c Config) Env() Environment {
	return ParseEnvironment(c.Environment)
}
