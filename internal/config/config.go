package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/dig"

	"github.com/vtuber-plan/purifly/internal/provider/openai"
)

// Config represents the gateway configuration.
type Config struct {
	Server   ServerConfig
	CORS     CORSConfig
	OpenAI   openai.Config
	Echo     EchoConfig
	Retry    RetryConfig
	Cache    CacheConfig
	Health   HealthConfig
	Pipeline PipelineConfig
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int `env:"SERVER_PORT"          envDefault:"8080"`
	ReadTimeout  int `env:"SERVER_READ_TIMEOUT"  envDefault:"30"`
	WriteTimeout int `env:"SERVER_WRITE_TIMEOUT" envDefault:"300"`
}

// CORSConfig contains CORS policy settings.
type CORSConfig struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS"   envSeparator:"," envDefault:"*"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS"   envSeparator:"," envDefault:"GET,POST,PUT,DELETE,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS"   envSeparator:"," envDefault:"Content-Type,Authorization"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS"                  envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE"                            envDefault:"86400"`
}

// EchoConfig controls the in-process echo provider.
type EchoConfig struct {
	Enabled bool `env:"ECHO_ENABLED" envDefault:"true"`
}

// RetryConfig contains the resilience executor's retry and timeout policy.
type RetryConfig struct {
	MaxAttempts     uint          `env:"RETRY_MAX_ATTEMPTS"     envDefault:"3"`
	InitialInterval time.Duration `env:"RETRY_INITIAL_INTERVAL" envDefault:"100ms"`
	Multiplier      float64       `env:"RETRY_MULTIPLIER"       envDefault:"2.0"`
	MaxInterval     time.Duration `env:"RETRY_MAX_INTERVAL"     envDefault:"5s"`
	MaxElapsedTime  time.Duration `env:"RETRY_MAX_ELAPSED"      envDefault:"30s"`
	AttemptTimeout  time.Duration `env:"RETRY_ATTEMPT_TIMEOUT"  envDefault:"10s"`
}

// CacheConfig contains response cache settings. Backend selects the
// in-process LRU ("memory") or a shared Redis instance ("redis").
type CacheConfig struct {
	Backend     string        `env:"CACHE_BACKEND"      envDefault:"memory"`
	MaxEntries  int           `env:"CACHE_MAX_ENTRIES"  envDefault:"1024"`
	DefaultTTL  time.Duration `env:"CACHE_DEFAULT_TTL"  envDefault:"1h"`
	RedisAddr   string        `env:"CACHE_REDIS_ADDR"   envDefault:"localhost:6379"`
	RedisPrefix string        `env:"CACHE_REDIS_PREFIX" envDefault:"purifly"`
}

// HealthConfig contains the registry's health transition thresholds.
type HealthConfig struct {
	DegradedThreshold    int           `env:"HEALTH_DEGRADED_THRESHOLD"    envDefault:"3"`
	UnavailableThreshold int           `env:"HEALTH_UNAVAILABLE_THRESHOLD" envDefault:"2"`
	FailureWindow        time.Duration `env:"HEALTH_FAILURE_WINDOW"        envDefault:"1m"`
}

// PipelineConfig contains gateway-level bounds.
type PipelineConfig struct {
	MaxFallbacks  int `env:"PIPELINE_MAX_FALLBACKS"   envDefault:"1"`
	ReorderWindow int `env:"PIPELINE_REORDER_WINDOW"  envDefault:"32"`
}

// DepConfig is used for dependency injection with dig.
type DepConfig struct {
	dig.Out
	*ServerConfig
	*CORSConfig
	*openai.Config
	*EchoConfig
	*RetryConfig
	*CacheConfig
	*HealthConfig
	*PipelineConfig
}

// Load loads environment files and parses configuration.
func Load() *Config {
	for _, file := range []string{".env"} {
		_ = godotenv.Load(file)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		panic(err)
	}

	return &cfg
}

// ParseDependenciesConfig returns pointers to sub-configs for dependency injection.
func ParseDependenciesConfig(cfg *Config) DepConfig {
	return DepConfig{
		dig.Out{},
		&cfg.Server,
		&cfg.CORS,
		&cfg.OpenAI,
		&cfg.Echo,
		&cfg.Retry,
		&cfg.Cache,
		&cfg.Health,
		&cfg.Pipeline,
	}
}
