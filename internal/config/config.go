// ABOUTME: Configuration loading and parsing for embed-gateway
// ABOUTME: YAML or TOML files with environment variable expansion, duration parsing, and validation

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/2389/embed-gateway/internal/guesttoken"
)

// Defaults applied when a field is left empty.
const (
	DefaultHTTPAddr        = "0.0.0.0:8080"
	DefaultBaseURL         = "https://api.app.preset.io/"
	DefaultTimeout         = 7 * time.Second
	DefaultShutdownTimeout = 5 * time.Second
	DefaultPrivateKeyPath  = "keys/embedded-example-private-key.pem"
)

// Config represents the complete embed-gateway configuration. It is loaded
// once at startup and treated as read-only afterwards.
type Config struct {
	Server      ServerConfig      `yaml:"server" toml:"server"`
	Upstream    UpstreamConfig    `yaml:"upstream" toml:"upstream"`
	Credentials CredentialsConfig `yaml:"credentials" toml:"credentials"`
	Embed       EmbedConfig       `yaml:"embed" toml:"embed"`
	Keys        KeysConfig        `yaml:"keys" toml:"keys"`
	Logging     LoggingConfig     `yaml:"logging" toml:"logging"`
}

// ServerConfig holds the HTTP listener configuration
type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr" toml:"http_addr" validate:"required"`
	ShutdownTimeout time.Duration `yaml:"-" toml:"-"`

	// Raw string value for unmarshaling
	ShutdownTimeoutRaw string `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// UpstreamConfig holds the remote API location and per-call timeout
type UpstreamConfig struct {
	BaseURL string        `yaml:"base_url" toml:"base_url" validate:"required,url"`
	Timeout time.Duration `yaml:"-" toml:"-"`

	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// CredentialsConfig holds the long-lived API identity. Presence is checked
// at issuance time so local-only deployments can omit it.
type CredentialsConfig struct {
	APIToken  string `yaml:"api_token" toml:"api_token"`
	APISecret string `yaml:"api_secret" toml:"api_secret"`
}

// EmbedConfig describes the dashboard being embedded
type EmbedConfig struct {
	DashboardID    string               `yaml:"dashboard_id" toml:"dashboard_id"`
	SupersetDomain string               `yaml:"superset_domain" toml:"superset_domain" validate:"omitempty,url"`
	Team           string               `yaml:"team" toml:"team"`
	WorkspaceSlug  string               `yaml:"workspace_slug" toml:"workspace_slug"`
	GuestUser      guesttoken.User      `yaml:"guest_user" toml:"guest_user"`
	RLS            []guesttoken.RLSRule `yaml:"rls" toml:"rls" validate:"dive"`
}

// KeysConfig locates the local signing key
type KeysConfig struct {
	PrivateKeyPath string `yaml:"private_key_path" toml:"private_key_path"`
	KeyID          string `yaml:"key_id" toml:"key_id"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" toml:"format" validate:"omitempty,oneof=text json"`
}

// APICredentials returns the API identity used by the remote exchange.
func (c *Config) APICredentials() guesttoken.Credentials {
	return guesttoken.Credentials{APIKey: c.Credentials.APIToken, APISecret: c.Credentials.APISecret}
}

// Target returns the dashboard target for issued tokens.
func (c *Config) Target() guesttoken.Target {
	return guesttoken.Target{
		DashboardID:   c.Embed.DashboardID,
		Team:          c.Embed.Team,
		WorkspaceSlug: c.Embed.WorkspaceSlug,
		User:          c.Embed.GuestUser,
	}
}

// Default returns a Config with every default applied and no credentials.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expandedData, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// LoadOrEnv loads path if it exists. Otherwise it builds a Config from
// defaults and the process environment (API_TOKEN, API_SECRET,
// DASHBOARD_ID, SUPERSET_DOMAIN, PRESET_TEAM, WORKSPACE_SLUG, KEY_ID).
func LoadOrEnv(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("checking config file: %w", err)
		}
	}

	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// FromEnv returns a default Config populated from environment variables.
func FromEnv() *Config {
	cfg := Default()
	cfg.Credentials.APIToken = os.Getenv("API_TOKEN")
	cfg.Credentials.APISecret = os.Getenv("API_SECRET")
	cfg.Embed.DashboardID = os.Getenv("DASHBOARD_ID")
	cfg.Embed.SupersetDomain = os.Getenv("SUPERSET_DOMAIN")
	cfg.Embed.Team = os.Getenv("PRESET_TEAM")
	cfg.Embed.WorkspaceSlug = os.Getenv("WORKSPACE_SLUG")
	cfg.Keys.KeyID = os.Getenv("KEY_ID")
	if v := os.Getenv("PRESET_BASE_URL"); v != "" {
		cfg.Upstream.BaseURL = v
	}
	return cfg
}

// envVarPattern matches ${VAR_NAME}
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func applyDefaults(cfg *Config) {
	if cfg.Server.HTTPAddr == "" {
		cfg.Server.HTTPAddr = DefaultHTTPAddr
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Upstream.BaseURL == "" {
		cfg.Upstream.BaseURL = DefaultBaseURL
	}
	if cfg.Upstream.Timeout == 0 {
		cfg.Upstream.Timeout = DefaultTimeout
	}
	if cfg.Keys.PrivateKeyPath == "" {
		cfg.Keys.PrivateKeyPath = DefaultPrivateKeyPath
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Server.ShutdownTimeoutRaw != "" {
		cfg.Server.ShutdownTimeout, err = time.ParseDuration(cfg.Server.ShutdownTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing shutdown_timeout %q: %w", cfg.Server.ShutdownTimeoutRaw, err)
		}
	}

	if cfg.Upstream.TimeoutRaw != "" {
		cfg.Upstream.Timeout, err = time.ParseDuration(cfg.Upstream.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing timeout %q: %w", cfg.Upstream.TimeoutRaw, err)
		}
	}

	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks that all configuration fields are well formed.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return fieldError(ve[0])
		}
		return err
	}

	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("upstream.timeout must be positive")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive")
	}
	for i, rule := range c.Embed.RLS {
		if strings.TrimSpace(rule.Clause) == "" {
			return fmt.Errorf("embed.rls[%d].clause is required", i)
		}
	}

	return nil
}

// fieldError turns a validator failure into "section.field ..." wording.
func fieldError(fe validator.FieldError) error {
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", field)
	case "url":
		return fmt.Errorf("%s is not a valid URL: %q", field, fe.Value())
	case "oneof":
		return fmt.Errorf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	default:
		return fmt.Errorf("%s is invalid (%s)", field, fe.Tag())
	}
}
