package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. GOALQ_SERVER_PORT.
const EnvPrefix = "GOALQ"

// LoadOptions tells Load where to look besides the environment.
type LoadOptions struct {
	// ConfigFile is an explicit YAML config path. When empty,
	// $HOME/.goalq/config.yaml and ./config.yaml are tried.
	ConfigFile string
	// EnvFile is a dotenv file loaded into the process environment
	// before reading variables. Missing files are ignored.
	EnvFile string
}

// Load configuration from defaults, an optional config file and environment
// variables. Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load(opts LoadOptions) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", opts.EnvFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".goalq"))
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// An explicit file that cannot be read is an error; an absent default one is not.
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the struct tags and the few cross-field rules tags cannot express.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if c.Executor.Kind == ExecutorGemini && c.Executor.Gemini.APIKey == "" {
		return errors.New("config validation failed: executor.gemini.api_key is required for the gemini executor")
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("store.driver", DriverFSQueue)
	v.SetDefault("store.dir", filepath.Join(home, ".goalq", "queue"))
	v.SetDefault("store.dsn", "")

	v.SetDefault("dispatcher.enabled", true)
	v.SetDefault("dispatcher.poll_interval", "1s")
	v.SetDefault("dispatcher.batch_size", 16)
	v.SetDefault("dispatcher.stranded_policy", "leave")

	v.SetDefault("auth.api_keys", []string{})
	v.SetDefault("auth.api_key_hashes", []string{})
	v.SetDefault("auth.token_secret", "")
	v.SetDefault("auth.allowed_ips", []string{})

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_minute", 60)

	v.SetDefault("executor.kind", ExecutorCommand)
	v.SetDefault("executor.command", "goalq-agent")
	v.SetDefault("executor.args", []string{})
	v.SetDefault("executor.timeout", "30m")
	v.SetDefault("executor.gemini.api_key", "")
	v.SetDefault("executor.gemini.model", "gemini-2.0-flash")
	v.SetDefault("executor.gemini.max_retries", 3)
	v.SetDefault("executor.gemini.retry_delay", "2s")

	v.SetDefault("client.server_url", "http://127.0.0.1:8080")
	v.SetDefault("client.api_key", "")
	v.SetDefault("client.token", "")
	v.SetDefault("client.timeout", "30s")
}
