package config

import (
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

type AppConfig struct {
	Host string `validate:"omitempty,hostname|ip"`
	Port string `validate:"required,numeric"`

	// Provider endpoint and locale. TZ is the offset in minutes the provider
	// uses to bucket days (360 = UTC-6).
	ProviderBaseURL  string `validate:"required,url"`
	ProviderLanguage string `validate:"required"`
	ProviderTZ       int

	// Pacing before every provider call.
	ProviderDelay       time.Duration `validate:"gte=0"`
	ProviderMinInterval time.Duration `validate:"gte=0"`

	ProviderMaxRetries int           `validate:"gte=0"`
	HTTPTimeout        time.Duration `validate:"gt=0"`

	// SessionRefreshInterval controls how often the provider session cookie is
	// refreshed (0 = never).
	SessionRefreshInterval time.Duration `validate:"gte=0"`

	LogLevel  string
	LogFormat string `validate:"oneof=json console"`
}

// Addr returns the listen address.
func (c *AppConfig) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

var defaults = map[string]any{
	"host":                     "0.0.0.0",
	"port":                     "5001",
	"provider_base_url":        "https://trends.google.com",
	"provider_language":        "en-US",
	"provider_tz":              360,
	"provider_delay":           "1s",
	"provider_min_interval":    "0s",
	"provider_max_retries":     0,
	"http_timeout":             "30s",
	"session_refresh_interval": "30m",
	"log_level":                "info",
	"log_format":               "json",
}

var validate = validator.New()

// Load reads configuration from .env, the environment and an optional
// CONFIG_FILE, with sensible defaults. Environment wins over the file.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}

	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file := v.GetString("config_file"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*AppConfig, error) {
	cfg := &AppConfig{
		Host:               v.GetString("host"),
		Port:               v.GetString("port"),
		ProviderBaseURL:    strings.TrimRight(v.GetString("provider_base_url"), "/"),
		ProviderLanguage:   v.GetString("provider_language"),
		ProviderTZ:         v.GetInt("provider_tz"),
		ProviderMaxRetries: v.GetInt("provider_max_retries"),
		LogLevel:           v.GetString("log_level"),
		LogFormat:          strings.ToLower(v.GetString("log_format")),
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"provider_delay", &cfg.ProviderDelay},
		{"provider_min_interval", &cfg.ProviderMinInterval},
		{"http_timeout", &cfg.HTTPTimeout},
		{"session_refresh_interval", &cfg.SessionRefreshInterval},
	}
	for _, d := range durations {
		// GetDuration would turn an unparseable value into 0.
		parsed, err := cast.ToDurationE(v.Get(d.key))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", strings.ToUpper(d.key), err)
		}
		*d.dst = parsed
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
