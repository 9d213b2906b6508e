package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port                string        `mapstructure:"API_PORT"`
	Env                 string        `mapstructure:"ENV"`
	LogLevel            string        `mapstructure:"LOG_LEVEL"`
	MongoURI            string        `mapstructure:"MONGO_URI"`
	MongoDatabase       string        `mapstructure:"MONGO_DATABASE"`
	JWTSecret           string        `mapstructure:"JWT_SECRET"`
	JWTTTL              time.Duration `mapstructure:"JWT_TTL"`
	CORSOrigins         []string      `mapstructure:"CORS_ORIGINS"`
	RedisURL            string        `mapstructure:"REDIS_URL"`
	GeminiAPIKey        string        `mapstructure:"GEMINI_API_KEY"`
	GeminiModel         string        `mapstructure:"GEMINI_MODEL"`
	TextbeltAPIKey      string        `mapstructure:"TEXTBELT_API_KEY"`
	MLServiceURL        string        `mapstructure:"ML_SERVICE_URL"`
	ClinicTimezone      string        `mapstructure:"CLINIC_TIMEZONE"`
	CancellationWindow  time.Duration `mapstructure:"CANCELLATION_WINDOW"`
	ConsultationMinutes int           `mapstructure:"DEFAULT_CONSULTATION_MINUTES"`
	JobsEnabled         bool          `mapstructure:"JOBS_ENABLED"`
}

var keys = []string{
	"API_PORT", "ENV", "LOG_LEVEL", "MONGO_URI", "MONGO_DATABASE", "JWT_SECRET", "JWT_TTL",
	"CORS_ORIGINS", "REDIS_URL", "GEMINI_API_KEY", "GEMINI_MODEL", "TEXTBELT_API_KEY",
	"ML_SERVICE_URL", "CLINIC_TIMEZONE", "CANCELLATION_WINDOW", "DEFAULT_CONSULTATION_MINUTES", "JOBS_ENABLED",
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("API_PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("MONGO_DATABASE", "carebridge")
	v.SetDefault("JWT_TTL", "24h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("GEMINI_MODEL", "gemini-1.5-flash")
	v.SetDefault("CLINIC_TIMEZONE", "UTC")
	v.SetDefault("CANCELLATION_WINDOW", "24h")
	v.SetDefault("DEFAULT_CONSULTATION_MINUTES", 15)
	v.SetDefault("JOBS_ENABLED", true)

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(cfg.CORSOrigins[i])
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the settings the server cannot start without.
func (c *Config) Validate() error {
	if c.MongoURI == "" {
		return errors.New("MONGO_URI is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if _, err := time.LoadLocation(c.ClinicTimezone); err != nil {
		return fmt.Errorf("CLINIC_TIMEZONE %q: %w", c.ClinicTimezone, err)
	}
	if c.ConsultationMinutes <= 0 {
		return fmt.Errorf("DEFAULT_CONSULTATION_MINUTES must be positive, got %d", c.ConsultationMinutes)
	}
	if c.CancellationWindow < 0 {
		return fmt.Errorf("CANCELLATION_WINDOW must not be negative")
	}
	if c.MLServiceURL != "" {
		u, err := url.Parse(c.MLServiceURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("ML_SERVICE_URL %q must be an http(s) URL", c.MLServiceURL)
		}
	}
	return nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Location returns the clinic time zone. Validate has already checked it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
