package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" validate:"required"`
	Store      StoreConfig      `mapstructure:"store" validate:"required"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher" validate:"required"`
	Auth       AuthConfig       `mapstructure:"auth"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Executor   ExecutorConfig   `mapstructure:"executor" validate:"required"`
	Client     ClientConfig     `mapstructure:"client"`
}

// ServerConfig contains the HTTP server settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host" validate:"required"`
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// Store drivers.
const (
	DriverFSQueue  = "fsqueue"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// StoreConfig selects and configures the task store.
type StoreConfig struct {
	Driver string `mapstructure:"driver" validate:"required,oneof=fsqueue sqlite postgres memory"`
	// Dir is the root of the queue directory for the fsqueue driver.
	Dir    string `mapstructure:"dir" validate:"required_if=Driver fsqueue"`
	// DSN is a file path for sqlite or a connection URL for postgres.
	DSN    string `mapstructure:"dsn" validate:"required_if=Driver sqlite,required_if=Driver postgres"`
}

// DispatcherConfig controls the polling worker.
type DispatcherConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	PollInterval   time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	BatchSize      int           `mapstructure:"batch_size" validate:"gt=0,lte=1000"`
	StrandedPolicy string        `mapstructure:"stranded_policy" validate:"required,oneof=leave fail"`
}

// AuthConfig lists the accepted credentials.
type AuthConfig struct {
	APIKeys      []string `mapstructure:"api_keys" validate:"dive,min=16"`
	APIKeyHashes []string `mapstructure:"api_key_hashes" validate:"dive,startswith=$2"`
	TokenSecret  string   `mapstructure:"token_secret" validate:"omitempty,min=32"`
	// AllowedIPs restricts clients by address or CIDR. Empty allows all.
	AllowedIPs   []string `mapstructure:"allowed_ips" validate:"dive,cidr|ip"`
}

// HasCredentials reports whether any credential source is configured.
func (a AuthConfig) HasCredentials() bool {
	return len(a.APIKeys) > 0 || len(a.APIKeyHashes) > 0 || a.TokenSecret != ""
}

// RateLimitConfig bounds requests per credential.
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute" validate:"gt=0"`
}

// Executor kinds.
const (
	ExecutorCommand = "command"
	ExecutorGemini  = "gemini"
	ExecutorEcho    = "echo"
)

// ExecutorConfig selects how claimed tasks are executed.
type ExecutorConfig struct {
	Kind    string        `mapstructure:"kind" validate:"required,oneof=command gemini echo"`
	Command string        `mapstructure:"command" validate:"required_if=Kind command"`
	Args    []string      `mapstructure:"args"`
	// Timeout bounds one execution; zero means no limit.
	Timeout time.Duration `mapstructure:"timeout" validate:"gte=0"`
	Gemini  GeminiConfig  `mapstructure:"gemini"`
}

// GeminiConfig contains the settings for the gemini executor.
type GeminiConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	Model      string        `mapstructure:"model" validate:"required"`
	MaxRetries int           `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	// RetryDelay is the base of the exponential backoff between attempts.
	RetryDelay time.Duration `mapstructure:"retry_delay" validate:"gt=0"`
}

// ClientConfig is used by the CLI client commands.
type ClientConfig struct {
	ServerURL string        `mapstructure:"server_url" validate:"required,url"`
	APIKey    string        `mapstructure:"api_key"`
	// Token is a bearer token, used instead of APIKey when set.
	Token     string        `mapstructure:"token"`
	Timeout   time.Duration `mapstructure:"timeout" validate:"gt=0"`
}
