// Package config loads the service configuration from file and environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Engine      EngineConfig      `mapstructure:"engine"`
	Store       StoreConfig       `mapstructure:"store"`
	SMTP        SMTPConfig        `mapstructure:"smtp"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

type ServerConfig struct {
	Listen    string `mapstructure:"listen"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

type EngineConfig struct {
	CycleSeconds        int `mapstructure:"cycle_seconds"`
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"`
	PollAttempts        int `mapstructure:"poll_attempts"`
	LeaseMinutes        int `mapstructure:"lease_minutes"`
}

func (e EngineConfig) CycleInterval() time.Duration {
	return time.Duration(e.CycleSeconds) * time.Second
}

func (e EngineConfig) PollInterval() time.Duration {
	return time.Duration(e.PollIntervalSeconds) * time.Second
}

func (e EngineConfig) LeaseTTL() time.Duration {
	return time.Duration(e.LeaseMinutes) * time.Minute
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type CredentialsConfig struct {
	// Key is the hex-encoded 32-byte key that seals cluster secrets.
	Key string `mapstructure:"key"`
}

type LoggingConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Dir        string `mapstructure:"dir"`
	File       string `mapstructure:"file"`
	Level      string `mapstructure:"level"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// Load reads the configuration. An explicit path wins; otherwise the usual
// locations are searched. Environment variables with the VIRTWARDEN_ prefix
// override file values (VIRTWARDEN_SERVER_JWT_SECRET, ...).
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.listen", ":8181")
	v.SetDefault("engine.cycle_seconds", 60)
	v.SetDefault("engine.poll_interval_seconds", 5)
	v.SetDefault("engine.poll_attempts", 60)
	v.SetDefault("engine.lease_minutes", 10)
	v.SetDefault("store.path", defaultStorePath())
	v.SetDefault("smtp.port", 587)
	v.SetDefault("logging.enabled", false)
	v.SetDefault("logging.dir", "logs")
	v.SetDefault("logging.file", "virtwarden.log")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.max_size", 50)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("virtwarden")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/virtwarden")
	}

	v.SetEnvPrefix("VIRTWARDEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No config file is fine; defaults and environment apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	return &cfg, nil
}

// ValidateServe checks the fields the serve command cannot run without.
func (c *Config) ValidateServe() error {
	if len(c.Server.JWTSecret) < 32 {
		return fmt.Errorf("server.jwt_secret must be at least 32 bytes")
	}
	if c.Credentials.Key == "" {
		return fmt.Errorf("credentials.key is required")
	}
	return nil
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "virtwarden.db"
	}
	return filepath.Join(home, ".local", "share", "virtwarden", "virtwarden.db")
}
