// Package config loads the relay configuration from config.yaml and RELAY_
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/gmfloripa/patrol-relay/internal/domain"
)

// DefaultPath is the config file read when no path is given.
const DefaultPath = "config.yaml"

// EnvPrefix prefixes every environment override. A double underscore
// separates nesting levels: RELAY_UNA__LOGIN sets una.login.
const EnvPrefix = "RELAY_"

type Config struct {
	Server     ServerConfig      `koanf:"server"`
	Log        LogConfig         `koanf:"log"`
	UNA        UNAConfig         `koanf:"una"`
	Tracing    TracingConfig     `koanf:"tracing"`
	Telemetry  TelemetryConfig   `koanf:"telemetry"`
	Directory  DirectoryConfig   `koanf:"directory"`
	Report     ReportConfig      `koanf:"report"`
	Recipients []RecipientConfig `koanf:"recipients" validate:"dive"`
}

type ServerConfig struct {
	Port           int           `koanf:"port" validate:"min=1,max=65535"`
	RequestTimeout time.Duration `koanf:"request_timeout" validate:"gt=0"`
	MaxUploadBytes int64         `koanf:"max_upload_bytes" validate:"gt=0"`
}

type LogConfig struct {
	Level string `koanf:"level" validate:"oneof=debug info warn error"`
}

type UNAConfig struct {
	BaseURL    string           `koanf:"base_url" validate:"required,url"`
	Login      string           `koanf:"login" validate:"required"`
	Password   string           `koanf:"password" validate:"required"`
	Timeout    time.Duration    `koanf:"timeout" validate:"gt=0"`
	TokenCache TokenCacheConfig `koanf:"token_cache"`
}

// TokenCacheConfig selects how session tokens are reused. "none" logs in
// for every relay call.
type TokenCacheConfig struct {
	Mode          string        `koanf:"mode" validate:"oneof=none memory redis"`
	TTL           time.Duration `koanf:"ttl" validate:"gt=0"`
	RedisAddr     string        `koanf:"redis_addr" validate:"required_if=Mode redis"`
	RedisPassword string        `koanf:"redis_password"`
	RedisDB       int           `koanf:"redis_db" validate:"min=0"`
}

type TracingConfig struct {
	// RedactHeaders lists header names masked in trace entries. Empty
	// records every header verbatim.
	RedactHeaders []string `koanf:"redact_headers"`
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

type DirectoryConfig struct {
	BaseURL string        `koanf:"base_url" validate:"omitempty,url"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

type ReportConfig struct {
	From     string     `koanf:"from" validate:"required"`
	To       []string   `koanf:"to" validate:"min=1,dive,email"`
	Timezone string     `koanf:"timezone"`
	SMTP     SMTPConfig `koanf:"smtp"`
}

type SMTPConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port" validate:"omitempty,min=1,max=65535"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
}

type RecipientConfig struct {
	ID     string `koanf:"id" validate:"required"`
	Name   string `koanf:"name" validate:"required"`
	Number string `koanf:"number"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

var defaults = map[string]any{
	"server.port":             8080,
	"server.request_timeout":  "5m",
	"server.max_upload_bytes": 32 << 20,
	"log.level":               "info",
	"una.base_url":            "https://consultor.saas.digitro.cloud",
	"una.timeout":             "30s",
	"una.token_cache.mode":    "none",
	"una.token_cache.ttl":     "10m",
	"telemetry.service_name":  "patrol-relay",
	"directory.base_url":      "https://janus-intranet-service-795622576125.southamerica-east1.run.app",
	"directory.timeout":       "15s",
	"report.from":             "Mulher Amiga <noreply@inovacao.digitro.com>",
	"report.to":               []string{"ncs@digitro.com"},
	"report.timezone":         "America/Sao_Paulo",
	"report.smtp.port":        587,
}

// Load reads path (missing is fine), then RELAY_ environment variables, then
// fills defaults. ${VAR} references in secrets are expanded.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	for key, val := range defaults {
		if !k.Exists(key) {
			if err := k.Set(key, val); err != nil {
				return nil, fmt.Errorf("set default %s: %w", key, err)
			}
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.UNA.Login = substituteEnvVars(cfg.UNA.Login)
	cfg.UNA.Password = substituteEnvVars(cfg.UNA.Password)
	cfg.UNA.TokenCache.RedisPassword = substituteEnvVars(cfg.UNA.TokenCache.RedisPassword)
	cfg.Directory.APIKey = substituteEnvVars(cfg.Directory.APIKey)
	cfg.Report.SMTP.Username = substituteEnvVars(cfg.Report.SMTP.Username)
	cfg.Report.SMTP.Password = substituteEnvVars(cfg.Report.SMTP.Password)

	if len(cfg.Recipients) == 0 {
		for _, rc := range domain.DefaultRecipients() {
			cfg.Recipients = append(cfg.Recipients, RecipientConfig{ID: rc.ID, Name: rc.Name, Number: rc.Code})
		}
	}

	return &cfg, nil
}

// Validate checks the fields a running relay needs.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Roster(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Roster builds the recipient roster.
func (c *Config) Roster() (*domain.Roster, error) {
	recipients := make([]domain.Recipient, len(c.Recipients))
	for i, rc := range c.Recipients {
		recipients[i] = domain.Recipient{ID: rc.ID, Name: rc.Name, Code: rc.Number}
	}
	return domain.NewRoster(recipients)
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
