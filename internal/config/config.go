package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/tender-scout/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig                  `yaml:"store" mapstructure:"store"`
	Scrape  ScrapeConfig                 `yaml:"scrape" mapstructure:"scrape"`
	Sources map[string]SourceCredentials `yaml:"sources" mapstructure:"sources"`
	Profile model.Profile                `yaml:"profile" mapstructure:"profile"`
	Server  ServerConfig                 `yaml:"server" mapstructure:"server"`
	Log     LogConfig                    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// SourceCredentials holds login credentials for one listing site.
type SourceCredentials struct {
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
}

// ScrapeConfig configures site-facing behavior shared across sources.
type ScrapeConfig struct {
	NavigationTimeoutSecs int  `yaml:"navigation_timeout_secs" mapstructure:"navigation_timeout_secs"`
	MaxRetries            int  `yaml:"max_retries" mapstructure:"max_retries"`
	Headless              bool `yaml:"headless" mapstructure:"headless"`
}

// NavigationTimeout returns the per-operation network timeout.
func (c ScrapeConfig) NavigationTimeout() time.Duration {
	return time.Duration(c.NavigationTimeoutSecs) * time.Second
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Credentials returns the credentials configured for a source. A missing or
// blank entry is a ConfigurationError-class condition; callers wrap it.
func (c *Config) Credentials(source string) (SourceCredentials, error) {
	creds, ok := c.Sources[source]
	if !ok {
		return SourceCredentials{}, eris.Errorf("config: no credentials for source %q", source)
	}
	return creds, nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TENDERSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "tender-scout.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("scrape.navigation_timeout_secs", 30)
	v.SetDefault("scrape.max_retries", 3)
	v.SetDefault("scrape.headless", true)
	v.SetDefault("profile.max_pages", 20)
	v.SetDefault("profile.request_delay", "2s")
	v.SetDefault("profile.checkpoint_interval", 25)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
