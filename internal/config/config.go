package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds everything the server needs at startup.  Values come from
// defaults, an optional YAML file named by CONFIG_FILE, and the environment,
// in increasing order of precedence.
type Config struct {
	Port        string `mapstructure:"port"`
	ServerLabel string `mapstructure:"server_label"`

	DBDriver      string `mapstructure:"db_driver"`
	DatabaseURL   string `mapstructure:"database_url"`
	NotifyChannel string `mapstructure:"notify_channel"`
	HistoryLimit  int    `mapstructure:"history_limit"`

	ModelBaseURL     string        `mapstructure:"model_base_url"`
	ModelAPIKey      string        `mapstructure:"model_api_key"`
	ModelName        string        `mapstructure:"model_name"`
	ModelTimeout     time.Duration `mapstructure:"model_timeout"`
	ModelTemperature float32       `mapstructure:"model_temperature"`
	ModelTopP        float32       `mapstructure:"model_top_p"`
	ModelMaxTokens   int           `mapstructure:"model_max_tokens"`

	LogLevel    string   `mapstructure:"log_level"`
	LogPretty   bool     `mapstructure:"log_pretty"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

var defaults = map[string]any{
	"port":              "8000",
	"server_label":      "medchat-proxy",
	"db_driver":         DriverSQLite,
	"database_url":      "medical_chatbot.db",
	"notify_channel":    "conversation_updates",
	"history_limit":     20,
	"model_base_url":    "http://localhost:11434/v1",
	"model_api_key":     "ollama",
	"model_name":        "phi3:mini",
	"model_timeout":     "120s",
	"model_temperature": 0.7,
	"model_top_p":       0.9,
	"model_max_tokens":  500,
	"log_level":         "info",
	"log_pretty":        false,
	"cors_origins":      []string{"*"},
}

// Load reads the configuration and validates it.
func Load() (Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	_ = v.BindEnv("config_file")

	if file := v.GetString("config_file"); file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	// Comma separated lists from the environment arrive as one element.
	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = splitList(cfg.CORSOrigins[0])
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	switch c.DBDriver {
	case DriverSQLite, DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.DBDriver))
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		errs = append(errs, errors.New("DATABASE_URL must be set"))
	}
	if c.HistoryLimit <= 0 {
		errs = append(errs, fmt.Errorf("HISTORY_LIMIT must be positive, got %d", c.HistoryLimit))
	}
	if strings.TrimSpace(c.ModelName) == "" {
		errs = append(errs, errors.New("MODEL_NAME must be set"))
	}
	if c.ModelTimeout <= 0 {
		errs = append(errs, fmt.Errorf("MODEL_TIMEOUT must be positive, got %s", c.ModelTimeout))
	}
	if c.ModelTemperature < 0 || c.ModelTemperature > 2 {
		errs = append(errs, fmt.Errorf("MODEL_TEMPERATURE must be within [0, 2], got %v", c.ModelTemperature))
	}
	if c.ModelTopP <= 0 || c.ModelTopP > 1 {
		errs = append(errs, fmt.Errorf("MODEL_TOP_P must be within (0, 1], got %v", c.ModelTopP))
	}
	if c.ModelMaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("MODEL_MAX_TOKENS must be positive, got %d", c.ModelMaxTokens))
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
