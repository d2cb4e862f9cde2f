package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Catalog sources
const (
	CatalogSourceFile     = "file"
	CatalogSourcePostgres = "postgres"
)

// Usage sinks
const (
	UsageSinkMemory   = "memory"
	UsageSinkPostgres = "postgres"
)

// Health stores
const (
	HealthStoreMemory = "memory"
	HealthStoreRedis  = "redis"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Catalog       CatalogConfig
	Usage         UsageConfig
	Health        HealthConfig
	Routing       RoutingConfig
	Providers     ProvidersConfig
	Auth          AuthConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	TLS             struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// RedisConfig holds the shared health store connection
type RedisConfig struct {
	URL string
}

// CatalogConfig selects where public models are read from
type CatalogConfig struct {
	Source   string // file or postgres
	Path     string // YAML catalog when Source is file
	CacheTTL time.Duration
}

// UsageConfig selects where usage events are written
type UsageConfig struct {
	Sink string // memory or postgres
}

// HealthConfig configures the variant health tracker
type HealthConfig struct {
	Store         string // memory or redis
	WindowMinutes int
}

// RoutingConfig holds dispatch and routing defaults
type RoutingConfig struct {
	DefaultStrategy  string
	MaxFallbacks     int
	AttemptTimeout   time.Duration
	RateLimitBackoff time.Duration
}

// ProvidersConfig holds LLM provider configurations
type ProvidersConfig struct {
	OpenAI    OpenAIConfig
	Anthropic AnthropicConfig
	Mock      MockConfig
}

// OpenAIConfig holds OpenAI provider configuration
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// AnthropicConfig holds Anthropic provider configuration
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// MockConfig controls the built-in deterministic provider
type MockConfig struct {
	Enabled bool
}

// AuthConfig holds the static API key table
type AuthConfig struct {
	APIKeys []APIKeyConfig
}

// APIKeyConfig maps one API key to its tenant and project
type APIKeyConfig struct {
	Key       string
	TenantID  string
	ProjectID string
	Tags      []string
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or text
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	apiKeys, err := parseAPIKeys(getEnv("API_KEYS", ""))
	if err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			TLS: struct {
				Enabled  bool
				CertFile string
				KeyFile  string
			}{
				Enabled:  getEnvAsBool("TLS_ENABLED", false),
				CertFile: getEnv("TLS_CERT_FILE", "certs/cert.pem"),
				KeyFile:  getEnv("TLS_KEY_FILE", "certs/key.pem"),
			},
		},
		Database: loadDatabaseConfig(),
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		Catalog: CatalogConfig{
			Source:   getEnv("CATALOG_SOURCE", CatalogSourceFile),
			Path:     getEnv("CATALOG_PATH", "catalog.yaml"),
			CacheTTL: getEnvAsDuration("CATALOG_CACHE_TTL", 30*time.Second),
		},
		Usage: UsageConfig{
			Sink: getEnv("USAGE_SINK", UsageSinkMemory),
		},
		Health: HealthConfig{
			Store:         getEnv("HEALTH_STORE", HealthStoreMemory),
			WindowMinutes: getEnvAsInt("HEALTH_WINDOW_MINUTES", 5),
		},
		Routing: RoutingConfig{
			DefaultStrategy:  getEnv("ROUTING_DEFAULT_STRATEGY", "reliability"),
			MaxFallbacks:     getEnvAsInt("ROUTING_MAX_FALLBACKS", 2),
			AttemptTimeout:   getEnvAsDuration("ROUTING_ATTEMPT_TIMEOUT", 30*time.Second),
			RateLimitBackoff: getEnvAsDuration("ROUTING_RATE_LIMIT_BACKOFF", 200*time.Millisecond),
		},
		Providers: ProvidersConfig{
			OpenAI: OpenAIConfig{
				APIKey:  getEnv("OPENAI_API_KEY", ""),
				BaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
				Timeout: getEnvAsDuration("OPENAI_TIMEOUT", 60*time.Second),
			},
			Anthropic: AnthropicConfig{
				APIKey:  getEnv("ANTHROPIC_API_KEY", ""),
				BaseURL: getEnv("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
				Timeout: getEnvAsDuration("ANTHROPIC_TIMEOUT", 60*time.Second),
			},
			Mock: MockConfig{
				Enabled: getEnvAsBool("MOCK_PROVIDER_ENABLED", true),
			},
		},
		Auth: AuthConfig{
			APIKeys: apiKeys,
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	switch c.Catalog.Source {
	case CatalogSourceFile:
		if c.Catalog.Path == "" {
			return fmt.Errorf("catalog path is required when CATALOG_SOURCE=file")
		}
	case CatalogSourcePostgres:
	default:
		return fmt.Errorf("unknown catalog source: %q", c.Catalog.Source)
	}

	switch c.Usage.Sink {
	case UsageSinkMemory, UsageSinkPostgres:
	default:
		return fmt.Errorf("unknown usage sink: %q", c.Usage.Sink)
	}

	// Database validation (DATABASE_URL or DB_* vars) only when something persists to it
	if c.NeedsDatabase() {
		if c.Database.ConnectionString == "" && c.Database.Host == "" {
			return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
		}
		if c.Database.ConnectionString == "" {
			if c.Database.User == "" {
				return fmt.Errorf("database user is required")
			}
			if c.Database.Database == "" {
				return fmt.Errorf("database name is required")
			}
		}
	}

	switch c.Health.Store {
	case HealthStoreMemory:
	case HealthStoreRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("redis url is required when HEALTH_STORE=redis")
		}
	default:
		return fmt.Errorf("unknown health store: %q", c.Health.Store)
	}

	if c.Routing.MaxFallbacks < 0 {
		return fmt.Errorf("routing max fallbacks must be >= 0")
	}
	switch c.Routing.DefaultStrategy {
	case "cost", "latency", "reliability", "quality":
	default:
		return fmt.Errorf("unknown routing strategy: %q", c.Routing.DefaultStrategy)
	}

	// Provider validation (at least one real provider API key required in production)
	if c.IsProduction() {
		if c.Providers.OpenAI.APIKey == "" && c.Providers.Anthropic.APIKey == "" {
			return fmt.Errorf("at least one LLM provider must be configured in production")
		}
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// NeedsDatabase reports whether the catalog or the usage sink is backed by Postgres
func (c *Config) NeedsDatabase() bool {
	return c.Catalog.Source == CatalogSourcePostgres || c.Usage.Sink == UsageSinkPostgres
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars
func loadDatabaseConfig() DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", ""),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "gateway"),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "gateway"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// parseAPIKeys parses comma-separated key:tenant:project[:tag|tag] entries
func parseAPIKeys(raw string) ([]APIKeyConfig, error) {
	var keys []APIKeyConfig
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		parts := strings.Split(entry, ":")
		if len(parts) < 3 || len(parts) > 4 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
			return nil, fmt.Errorf("invalid API_KEYS entry: expected key:tenant:project[:tags]")
		}

		key := APIKeyConfig{Key: parts[0], TenantID: parts[1], ProjectID: parts[2]}
		if len(parts) == 4 && parts[3] != "" {
			key.Tags = strings.Split(parts[3], "|")
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
