package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig      `yaml:"app"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Logger   LoggerConfig   `yaml:"logger"`
	Auth     AuthConfig     `yaml:"auth"`
	Mailbox  MailboxConfig  `yaml:"mailbox"`
	LLM      LLMConfig      `yaml:"llm"`
	Worker   WorkerConfig   `yaml:"worker"`
	Routing  RoutingConfig  `yaml:"routing"`
	Events   EventsConfig   `yaml:"events"`
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string `yaml:"name"`
	Env                   string `yaml:"env"`
	Host                  string `yaml:"host"`
	Port                  string `yaml:"port"`
	Version               string `yaml:"version"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	MaxConns       int32  `yaml:"max_conns"`
	MinConns       int32  `yaml:"min_conns"`
	RunMigrations  bool   `yaml:"run_migrations"`
	ConnMaxIdleSec int32  `yaml:"conn_max_idle_seconds"`
	ConnMaxLifeSec int32  `yaml:"conn_max_life_seconds"`
}

// RedisConfig holds Redis connection values. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"` // json | console
}

// AuthConfig defines operator authentication parameters.
type AuthConfig struct {
	JWTSecret             string `yaml:"jwt_secret"`
	AccessTokenTTLMinutes int    `yaml:"access_token_ttl_minutes"`
	BcryptCost            int    `yaml:"bcrypt_cost"`
}

// MailboxConfig selects and configures the mailbox gateway.
type MailboxConfig struct {
	Provider          string        `yaml:"provider"` // graph | memory
	GraphBaseURL      string        `yaml:"graph_base_url"`
	AccessToken       string        `yaml:"access_token"`
	TargetMailbox     string        `yaml:"target_mailbox"`
	ComplaintsFolder  string        `yaml:"complaints_folder"`
	ResolutionsFolder string        `yaml:"resolutions_folder"`
	FetchLimit        int           `yaml:"fetch_limit"`
	HTTPTimeout       time.Duration `yaml:"http_timeout"`
}

// LLMConfig configures the OpenAI-compatible collaborators.
type LLMConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	EmbeddingModel string `yaml:"embedding_model"`
	SimilarCases   int    `yaml:"similar_cases"`
}

// WorkerConfig tunes the polling engine.
type WorkerConfig struct {
	PollInterval          time.Duration `yaml:"poll_interval"`
	Concurrency           int           `yaml:"concurrency"`
	CallTimeout           time.Duration `yaml:"call_timeout"`
	BatchSize             int           `yaml:"batch_size"`
	MaxExtractionAttempts int           `yaml:"max_extraction_attempts"`
	MaxResolutionAttempts int           `yaml:"max_resolution_attempts"`
	MaxDispatchAttempts   int           `yaml:"max_dispatch_attempts"`
	BackoffBase           time.Duration `yaml:"backoff_base"`
	BackoffMax            time.Duration `yaml:"backoff_max"`
	AutoResolveStrategy   string        `yaml:"auto_resolve_strategy"`
	Locker                string        `yaml:"locker"` // memory | redis
	LockTTL               time.Duration `yaml:"lock_ttl"`
	DiscardCacheTTL       time.Duration `yaml:"discard_cache_ttl"`
}

// RoutingConfig maps origin stations to Base Ops mailboxes.
type RoutingConfig struct {
	CXMailbox       string            `yaml:"cx_mailbox"`
	FallbackMailbox string            `yaml:"fallback_mailbox"`
	Stations        map[string]string `yaml:"stations"`
}

// EventsConfig selects an external sink for lifecycle events.
type EventsConfig struct {
	Sink         string   `yaml:"sink"` // none | kafka | redis
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
	RedisStream  string   `yaml:"redis_stream"`
}

// Default returns the baseline configuration before file and env overlays.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:                  "complaint-service",
			Env:                   "development",
			Host:                  "0.0.0.0",
			Port:                  "8080",
			Version:               "dev",
			RequestTimeoutSeconds: 30,
		},
		Postgres: PostgresConfig{
			MaxConns:       10,
			MinConns:       2,
			RunMigrations:  true,
			ConnMaxIdleSec: 30,
			ConnMaxLifeSec: 300,
		},
		Logger: LoggerConfig{Level: "info", Encoding: "json"},
		Auth: AuthConfig{
			JWTSecret:             "dev-secret",
			AccessTokenTTLMinutes: 60,
			BcryptCost:            12,
		},
		Mailbox: MailboxConfig{
			Provider:          "memory",
			GraphBaseURL:      "https://graph.microsoft.com/v1.0",
			ComplaintsFolder:  "Complaints",
			ResolutionsFolder: "Resolutions",
			FetchLimit:        10,
			HTTPTimeout:       30 * time.Second,
		},
		LLM: LLMConfig{
			Model:          "gpt-4o-mini",
			EmbeddingModel: "text-embedding-3-small",
			SimilarCases:   3,
		},
		Worker: WorkerConfig{
			PollInterval:          60 * time.Second,
			Concurrency:           1,
			CallTimeout:           45 * time.Second,
			BatchSize:             25,
			MaxExtractionAttempts: 5,
			MaxResolutionAttempts: 3,
			MaxDispatchAttempts:   5,
			BackoffBase:           time.Minute,
			BackoffMax:            time.Hour,
			AutoResolveStrategy:   "none",
			Locker:                "memory",
			LockTTL:               2 * time.Minute,
			DiscardCacheTTL:       7 * 24 * time.Hour,
		},
		Routing: RoutingConfig{
			Stations: map[string]string{
				"DEL": "del.ops@airline.example",
				"BOM": "bom.ops@airline.example",
				"BLR": "blr.ops@airline.example",
				"HYD": "hyd.ops@airline.example",
				"CCU": "ccu.ops@airline.example",
			},
		},
		Events: EventsConfig{
			Sink:        "none",
			KafkaTopic:  "complaint-lifecycle",
			RedisStream: "complaint-lifecycle",
		},
	}
}

// Load reads configuration: defaults, then the optional YAML file named by
// CONFIG_FILE (or path when non-empty), then environment variables.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.overlayEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func (c *Config) overlayEnv() error {
	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", strconv.Itoa(c.Redis.DB)))
	if err != nil {
		return fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	c.App.Name = getEnv("APP_NAME", c.App.Name)
	c.App.Env = getEnv("APP_ENV", c.App.Env)
	c.App.Host = getEnv("APP_HOST", c.App.Host)
	c.App.Port = getEnv("APP_PORT", c.App.Port)
	c.App.Version = getEnv("APP_VERSION", c.App.Version)
	c.App.RequestTimeoutSeconds = getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", c.App.RequestTimeoutSeconds)

	c.Postgres.DSN = getEnv("POSTGRES_DSN", c.Postgres.DSN)
	c.Postgres.MaxConns = int32(getEnvAsInt("POSTGRES_MAX_CONNS", int(c.Postgres.MaxConns)))
	c.Postgres.MinConns = int32(getEnvAsInt("POSTGRES_MIN_CONNS", int(c.Postgres.MinConns)))
	c.Postgres.RunMigrations = getEnvAsBool("POSTGRES_RUN_MIGRATIONS", c.Postgres.RunMigrations)
	c.Postgres.ConnMaxIdleSec = int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", int(c.Postgres.ConnMaxIdleSec)))
	c.Postgres.ConnMaxLifeSec = int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", int(c.Postgres.ConnMaxLifeSec)))

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = redisDB

	c.Logger.Level = getEnv("LOG_LEVEL", c.Logger.Level)
	c.Logger.Encoding = getEnv("LOG_ENCODING", c.Logger.Encoding)

	c.Auth.JWTSecret = getEnv("AUTH_JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.AccessTokenTTLMinutes = getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", c.Auth.AccessTokenTTLMinutes)
	c.Auth.BcryptCost = getEnvAsInt("AUTH_BCRYPT_COST", c.Auth.BcryptCost)

	c.Mailbox.Provider = getEnv("MAILBOX_PROVIDER", c.Mailbox.Provider)
	c.Mailbox.GraphBaseURL = getEnv("MAILBOX_GRAPH_BASE_URL", c.Mailbox.GraphBaseURL)
	c.Mailbox.AccessToken = getEnv("MAILBOX_ACCESS_TOKEN", c.Mailbox.AccessToken)
	c.Mailbox.TargetMailbox = getEnv("MAILBOX_TARGET", c.Mailbox.TargetMailbox)
	c.Mailbox.ComplaintsFolder = getEnv("MAILBOX_COMPLAINTS_FOLDER", c.Mailbox.ComplaintsFolder)
	c.Mailbox.ResolutionsFolder = getEnv("MAILBOX_RESOLUTIONS_FOLDER", c.Mailbox.ResolutionsFolder)
	c.Mailbox.FetchLimit = getEnvAsInt("MAILBOX_FETCH_LIMIT", c.Mailbox.FetchLimit)
	c.Mailbox.HTTPTimeout = getEnvAsDuration("MAILBOX_HTTP_TIMEOUT", c.Mailbox.HTTPTimeout)

	c.LLM.APIKey = getEnv("OPENAI_API_KEY", c.LLM.APIKey)
	c.LLM.BaseURL = getEnv("OPENAI_BASE_URL", c.LLM.BaseURL)
	c.LLM.Model = getEnv("LLM_MODEL", c.LLM.Model)
	c.LLM.EmbeddingModel = getEnv("LLM_EMBEDDING_MODEL", c.LLM.EmbeddingModel)
	c.LLM.SimilarCases = getEnvAsInt("LLM_SIMILAR_CASES", c.LLM.SimilarCases)

	c.Worker.PollInterval = getEnvAsDuration("WORKER_POLL_INTERVAL", c.Worker.PollInterval)
	c.Worker.Concurrency = getEnvAsInt("WORKER_CONCURRENCY", c.Worker.Concurrency)
	c.Worker.CallTimeout = getEnvAsDuration("WORKER_CALL_TIMEOUT", c.Worker.CallTimeout)
	c.Worker.BatchSize = getEnvAsInt("WORKER_BATCH_SIZE", c.Worker.BatchSize)
	c.Worker.MaxExtractionAttempts = getEnvAsInt("WORKER_MAX_EXTRACTION_ATTEMPTS", c.Worker.MaxExtractionAttempts)
	c.Worker.MaxResolutionAttempts = getEnvAsInt("WORKER_MAX_RESOLUTION_ATTEMPTS", c.Worker.MaxResolutionAttempts)
	c.Worker.MaxDispatchAttempts = getEnvAsInt("WORKER_MAX_DISPATCH_ATTEMPTS", c.Worker.MaxDispatchAttempts)
	c.Worker.BackoffBase = getEnvAsDuration("WORKER_BACKOFF_BASE", c.Worker.BackoffBase)
	c.Worker.BackoffMax = getEnvAsDuration("WORKER_BACKOFF_MAX", c.Worker.BackoffMax)
	c.Worker.AutoResolveStrategy = getEnv("AUTO_RESOLVE_STRATEGY", c.Worker.AutoResolveStrategy)
	c.Worker.Locker = getEnv("WORKER_LOCKER", c.Worker.Locker)
	c.Worker.LockTTL = getEnvAsDuration("WORKER_LOCK_TTL", c.Worker.LockTTL)
	c.Worker.DiscardCacheTTL = getEnvAsDuration("WORKER_DISCARD_CACHE_TTL", c.Worker.DiscardCacheTTL)

	c.Routing.CXMailbox = getEnv("ROUTING_CX_MAILBOX", c.Routing.CXMailbox)
	c.Routing.FallbackMailbox = getEnv("ROUTING_FALLBACK_MAILBOX", c.Routing.FallbackMailbox)
	if raw := os.Getenv("ROUTING_STATIONS"); raw != "" {
		stations, err := parseStations(raw)
		if err != nil {
			return err
		}
		c.Routing.Stations = stations
	}

	c.Events.Sink = getEnv("EVENTS_SINK", c.Events.Sink)
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		c.Events.KafkaBrokers = splitList(raw)
	}
	c.Events.KafkaTopic = getEnv("KAFKA_TOPIC", c.Events.KafkaTopic)
	c.Events.RedisStream = getEnv("EVENTS_REDIS_STREAM", c.Events.RedisStream)

	return nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Mailbox.Provider {
	case "memory":
	case "graph":
		if c.Mailbox.TargetMailbox == "" {
			return errors.New("MAILBOX_TARGET required for graph provider")
		}
	default:
		return fmt.Errorf("unknown mailbox provider %q", c.Mailbox.Provider)
	}

	switch c.Worker.Locker {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown locker %q", c.Worker.Locker)
	}

	switch c.Events.Sink {
	case "none", "":
	case "kafka":
		if len(c.Events.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS required for kafka sink")
		}
	case "redis":
	default:
		return fmt.Errorf("unknown events sink %q", c.Events.Sink)
	}

	if c.App.Env == "production" && (c.Auth.JWTSecret == "" || c.Auth.JWTSecret == Default().Auth.JWTSecret) {
		return errors.New("AUTH_JWT_SECRET must be set in production")
	}
	if c.Worker.PollInterval <= 0 {
		return errors.New("worker poll interval must be positive")
	}
	if c.Worker.Concurrency < 1 {
		c.Worker.Concurrency = 1
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// MailboxFor resolves the Base Ops mailbox for an origin station.
func (r RoutingConfig) MailboxFor(station string) string {
	if mailbox, ok := r.Stations[strings.ToUpper(strings.TrimSpace(station))]; ok && mailbox != "" {
		return mailbox
	}
	return r.FallbackMailbox
}

// parseStations reads "DEL=ops-del@x,BOM=ops-bom@x".
func parseStations(raw string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range splitList(raw) {
		code, mailbox, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(code) == "" || strings.TrimSpace(mailbox) == "" {
			return nil, fmt.Errorf("invalid ROUTING_STATIONS entry %q", pair)
		}
		out[strings.ToUpper(strings.TrimSpace(code))] = strings.TrimSpace(mailbox)
	}
	return out, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}
