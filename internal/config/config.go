package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the whole service configuration
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"db"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Collaborators CollaboratorsConfig `mapstructure:"collaborators"`
	Session       SessionConfig       `mapstructure:"session"`
	Log           LogConfig           `mapstructure:"log"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// DatabaseConfig selects postgres when URL is set, sqlite at Path otherwise.
type DatabaseConfig struct {
	URL  string `mapstructure:"url"`
	Path string `mapstructure:"path"`
}

type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret"`
	MasterSecret  string        `mapstructure:"master_secret"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	AdminUsername string        `mapstructure:"admin_username"`
	AdminPassword string        `mapstructure:"admin_password"`
}

// CollaboratorsConfig points at the external webhooks.
type CollaboratorsConfig struct {
	ExtractionURL string        `mapstructure:"extraction_url"`
	SolveURL      string        `mapstructure:"solve_url"`
	ImportURL     string        `mapstructure:"import_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type SessionConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadDotEnv loads the first .env found in the working directory or its parents.
func LoadDotEnv() {
	for _, p := range []string{".env", "../.env", "../../.env"} {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			return
		}
	}
}

// Load reads defaults, then the optional config file, then WIZARD_* environment
// variables, later sources winning.
func Load(path string) (*Config, error) {
	LoadDotEnv()

	v := viper.New()

	v.SetDefault("server.port", 8000)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.cors.allow_origins", []string{"http://localhost:5173", "http://localhost:3000"})

	v.SetDefault("db.url", "")
	v.SetDefault("db.path", "wizard.db")

	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("auth.admin_username", "admin")
	v.SetDefault("auth.admin_password", "admin123")

	v.SetDefault("collaborators.timeout", "120s")

	v.SetDefault("session.ttl", "2h")
	v.SetDefault("session.sweep_interval", "5m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("WIZARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only sees keys viper already knows about.
	for _, key := range []string{
		"auth.jwt_secret", "auth.master_secret",
		"collaborators.extraction_url", "collaborators.solve_url", "collaborators.import_url",
	} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port must be between 1 and 65535")
	}
	if c.Auth.MasterSecret == "" {
		return fmt.Errorf("config: auth.master_secret is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("config: auth.jwt_secret is required")
	}
	if c.Collaborators.ExtractionURL == "" || c.Collaborators.SolveURL == "" || c.Collaborators.ImportURL == "" {
		return fmt.Errorf("config: collaborators.extraction_url, solve_url and import_url are required")
	}
	if c.Collaborators.Timeout <= 0 {
		return fmt.Errorf("config: collaborators.timeout must be positive")
	}
	if c.Session.SweepInterval <= 0 {
		return fmt.Errorf("config: session.sweep_interval must be positive")
	}
	return nil
}
