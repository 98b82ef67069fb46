package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath     = "CONFIG_PATH"
	EnvDBConnection   = "DB_CONNECTION"
	EnvJWTSecret      = "JWT_SECRET"
	EnvJWTExpiry      = "JWT_EXPIRY"
	EnvGatewaySecret  = "GATEWAY_SECRET"
	EnvEmailAPIKey    = "EMAIL_API_KEY"
	EnvAnalysisAPIKey = "ANALYSIS_API_KEY"
	EnvSchedulerToken = "SCHEDULER_TOKEN"
)

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// JWTConfig holds JWT secret and expiry settings.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// GatewayConfig holds payment gateway credentials and endpoints.
type GatewayConfig struct {
	BaseURL     string `yaml:"base-url"`
	MerchantID  string `yaml:"merchant-id"`
	Secret      string `yaml:"secret"`
	RedirectURL string `yaml:"redirect-url"`
}

// EmailConfig holds transactional email API settings.
type EmailConfig struct {
	BaseURL   string `yaml:"base-url"`
	APIKey    string `yaml:"api-key"`
	FromName  string `yaml:"from-name"`
	FromEmail string `yaml:"from-email"`
}

// AnalysisConfig holds LLM analysis API settings.
type AnalysisConfig struct {
	BaseURL string `yaml:"base-url"`
	APIKey  string `yaml:"api-key"`
	Model   string `yaml:"model"`
}

// ReconcileConfig holds reconciliation sweep settings.
type ReconcileConfig struct {
	GraceWindow    time.Duration `yaml:"grace-window"`
	InterCallDelay time.Duration `yaml:"inter-call-delay"`
	SchedulerToken string        `yaml:"scheduler-token"`
}

// LoadDatabaseDSN reads the database DSN from the YAML config file.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}

	// fileConfig maps the YAML fields needed for DSN resolution.
	type fileConfig struct {
		DatabaseDSN string `yaml:"database-dsn"`
		Database    struct {
			DSN string `yaml:"dsn"`
		} `yaml:"database"`
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("read config file: %w", err)
	}

	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return "", fmt.Errorf("parse config file: %w", errUnmarshal)
	}

	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// defaultJWTExpiry is used when the config omits or invalidates JWT expiry.
const defaultJWTExpiry = 30 * 24 * time.Hour

// LoadJWTConfig loads JWT settings from the YAML config file.
func LoadJWTConfig(configPath string) (JWTConfig, error) {
	// fileConfig maps the YAML fields needed for JWT settings.
	type fileConfig struct {
		JWT JWTConfig `yaml:"jwt"`
	}

	result := JWTConfig{Expiry: defaultJWTExpiry}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.JWT
		}
	}

	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		result.Secret = secret
	}
	if expiryRaw := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); expiryRaw != "" {
		if expiry, errParse := time.ParseDuration(expiryRaw); errParse == nil && expiry > 0 {
			result.Expiry = expiry
		}
	}

	if result.Expiry <= 0 {
		result.Expiry = defaultJWTExpiry
	}
	return result, nil
}

// LoadGatewayConfig loads payment gateway settings from the YAML config file.
func LoadGatewayConfig(configPath string) (GatewayConfig, error) {
	// fileConfig maps the YAML fields needed for gateway settings.
	type fileConfig struct {
		Gateway GatewayConfig `yaml:"gateway"`
	}

	var result GatewayConfig
	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.Gateway
		}
	}

	if secret := strings.TrimSpace(os.Getenv(EnvGatewaySecret)); secret != "" {
		result.Secret = secret
	}
	return result, nil
}

// LoadEmailConfig loads email API settings from the YAML config file.
func LoadEmailConfig(configPath string) (EmailConfig, error) {
	// fileConfig maps the YAML fields needed for email settings.
	type fileConfig struct {
		Email EmailConfig `yaml:"email"`
	}

	var result EmailConfig
	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.Email
		}
	}

	if key := strings.TrimSpace(os.Getenv(EnvEmailAPIKey)); key != "" {
		result.APIKey = key
	}
	return result, nil
}

// LoadAnalysisConfig loads LLM analysis settings from the YAML config file.
func LoadAnalysisConfig(configPath string) (AnalysisConfig, error) {
	// fileConfig maps the YAML fields needed for analysis settings.
	type fileConfig struct {
		Analysis AnalysisConfig `yaml:"analysis"`
	}

	var result AnalysisConfig
	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.Analysis
		}
	}

	if key := strings.TrimSpace(os.Getenv(EnvAnalysisAPIKey)); key != "" {
		result.APIKey = key
	}
	return result, nil
}

// Reconciliation defaults applied when the config omits or invalidates values.
const (
	defaultGraceWindow    = 15 * time.Minute
	defaultInterCallDelay = 500 * time.Millisecond
)

// LoadReconcileConfig loads reconciliation settings from the YAML config file.
func LoadReconcileConfig(configPath string) (ReconcileConfig, error) {
	// fileConfig maps the YAML fields needed for reconcile settings.
	type fileConfig struct {
		Reconcile ReconcileConfig `yaml:"reconcile"`
	}

	result := ReconcileConfig{GraceWindow: defaultGraceWindow, InterCallDelay: defaultInterCallDelay}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil && cfg.Reconcile != (ReconcileConfig{}) {
			result = cfg.Reconcile
		}
	}

	if token := strings.TrimSpace(os.Getenv(EnvSchedulerToken)); token != "" {
		result.SchedulerToken = token
	}

	if result.GraceWindow <= 0 {
		result.GraceWindow = defaultGraceWindow
	}
	if result.InterCallDelay <= 0 {
		result.InterCallDelay = defaultInterCallDelay
	}
	return result, nil
}
