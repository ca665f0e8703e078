package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	customvalidator "github.com/spounge-ai/persistor/pkg/validator"
)

// EnvConfigPath names the environment variable holding the config file path.
const EnvConfigPath = "PERSISTOR_CONFIG_PATH"

type Config struct {
	Address        string         `mapstructure:"address"  validate:"required,bus_address"`
	Log            LogConfig      `mapstructure:"log"`
	Backend        BackendConfig  `mapstructure:"backend"  validate:"required"`
	Endpoint       EndpointConfig `mapstructure:"endpoint"`
	Health         HealthConfig   `mapstructure:"health"`
	Server         ServerConfig   `mapstructure:"server"`
	ServiceVersion string
	BuildCommit    string
}

type LogConfig struct {
	Level  string `mapstructure:"level"  validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// EndpointConfig sizes the request worker pool and batched-find cursors.
type EndpointConfig struct {
	MinWorkers    int           `mapstructure:"min_workers"    validate:"gte=1"`
	MaxWorkers    int           `mapstructure:"max_workers"    validate:"gtefield=MinWorkers"`
	QueueDepth    int           `mapstructure:"queue_depth"    validate:"gte=0"`
	CursorTimeout time.Duration `mapstructure:"cursor_timeout" validate:"gt=0"`
}

type HealthConfig struct {
	Interval time.Duration `mapstructure:"interval" validate:"gte=0"`
}

func setDefaults(vip *viper.Viper) {
	vip.SetDefault("address", "test.persistor")
	vip.SetDefault("log.level", "info")
	vip.SetDefault("log.format", "text")

	vip.SetDefault("backend.type", BackendMongo)
	vip.SetDefault("backend.db_name", "default_db")
	vip.SetDefault("backend.host", "localhost")
	vip.SetDefault("backend.port", 27017)
	vip.SetDefault("backend.username", "")
	vip.SetDefault("backend.password", "")
	vip.SetDefault("backend.uri", "")
	vip.SetDefault("backend.pool_size", 10)
	vip.SetDefault("backend.connect_timeout", "10s")
	vip.SetDefault("backend.sslmode", "disable")
	vip.SetDefault("backend.circuit_breaker.enabled", false)
	vip.SetDefault("backend.circuit_breaker.max_failures", 5)
	vip.SetDefault("backend.circuit_breaker.reset_timeout", "30s")

	vip.SetDefault("endpoint.min_workers", 4)
	vip.SetDefault("endpoint.max_workers", 64)
	vip.SetDefault("endpoint.queue_depth", 256)
	vip.SetDefault("endpoint.cursor_timeout", "10s")

	vip.SetDefault("health.interval", "15s")

	vip.SetDefault("server.enabled", true)
	vip.SetDefault("server.port", 50053)
	vip.SetDefault("server.mode", "development")
	vip.SetDefault("server.tls.enabled", false)
	vip.SetDefault("server.tls.cert_file", "")
	vip.SetDefault("server.tls.key_file", "")
	vip.SetDefault("server.tls.client_ca_file", "")
	vip.SetDefault("server.tls.client_auth", "")
	vip.SetDefault("server.rate_limiter.enabled", false)
	vip.SetDefault("server.rate_limiter.rate", 100)
	vip.SetDefault("server.rate_limiter.burst", 200)
}

// Load reads the config file at path (or ./configs/config.yaml, ./config.yaml),
// applies PERSISTOR_* environment overrides and validates the result.
// A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	vip := viper.New()
	if path != "" {
		vip.SetConfigFile(path)
	} else {
		vip.SetConfigName("config")
		vip.AddConfigPath("./configs")
		vip.AddConfigPath(".")
	}

	vip.SetConfigType("yaml")
	vip.SetEnvPrefix("PERSISTOR")
	vip.AutomaticEnv()
	vip.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(vip)

	if err := vip.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := customvalidator.RegisterCustomValidators(validate); err != nil {
		return nil, fmt.Errorf("failed to register custom validators: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	cfg.ServiceVersion = getenv("PERSISTOR_SERVICE_VERSION", "unknown")
	cfg.BuildCommit = getenv("PERSISTOR_BUILD_COMMIT", "unknown")

	return &cfg, nil
}

// getenv returns an environment variable or a default value.
func getenv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
