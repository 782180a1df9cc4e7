package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/hitseq/packages/auth"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every key when reading overrides from the
// environment, e.g. HITSEQ_TARGET or HITSEQ_AUTH_TOKEN.
const EnvPrefix = "HITSEQ"

// Config represents the hitseq configuration
type Config struct {
	Target          string            `mapstructure:"target"`
	BasePath        string            `mapstructure:"base_path"`
	Timeout         time.Duration     `mapstructure:"timeout"`
	FollowRedirects bool              `mapstructure:"follow_redirects"`
	MaxRedirects    int               `mapstructure:"max_redirects"`
	ValidateSSL     bool              `mapstructure:"validate_ssl"`
	Proxy           string            `mapstructure:"proxy"`
	Headers         map[string]string `mapstructure:"headers"`    // Default headers for all requests
	RateLimit       float64           `mapstructure:"rate_limit"` // requests per second, 0 disables
	RateBurst       int               `mapstructure:"rate_burst"`
	Sequences       int               `mapstructure:"sequences"`
	Concurrency     int               `mapstructure:"concurrency"`
	Dictionary      string            `mapstructure:"dictionary"`
	Variables       map[string]any    `mapstructure:"variables"` // seeded into every run
	StatusPolicy    string            `mapstructure:"status_policy"`
	History         string            `mapstructure:"history"`
	Output          string            `mapstructure:"output"`
	NoColor         bool              `mapstructure:"no_color"`
	Auth            AuthConfig        `mapstructure:"auth"`
}

// AuthConfig selects the token source for auth fragments. At most one of
// Token, Command or OAuth2 should be set.
type AuthConfig struct {
	Header          string             `mapstructure:"header"`
	Token           string             `mapstructure:"token"`
	Command         string             `mapstructure:"command"`
	RefreshInterval time.Duration      `mapstructure:"refresh_interval"`
	OAuth2          *auth.OAuth2Config `mapstructure:"oauth2"`
}

// Status policies understood by StatusPolicy.
const (
	StatusPolicy2xx = "2xx"
	StatusPolicyAny = "any"
)

// ConfigFilenames contains the possible config file names
var ConfigFilenames = []string{
	"hitseq.yaml",
	".hitseq.yaml",
	"hitseq.yml",
	".hitseq.yml",
	"hitseq.json",
}

// LoadConfig loads configuration from the specified path or searches the
// current directory for a config file. Environment variables override both.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = FindConfig(".")
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if path != "" {
		vars, err := readVariables(path)
		if err != nil {
			return nil, err
		}
		if vars != nil {
			cfg.Variables = vars
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readVariables decodes the variables section of a config file with its key
// case intact. Viper folds keys to lower case, but variable names are matched
// exactly when rendering.
func readVariables(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var doc struct {
		Variables map[string]any `yaml:"variables"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding variables in %s: %w", path, err)
	}
	return doc.Variables, nil
}

// FindConfig returns the first config file found in dir, or "".
func FindConfig(dir string) string {
	for _, filename := range ConfigFilenames {
		configPath := filepath.Join(dir, filename)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
	}
	return ""
}

// Validate reports settings that cannot be used to build a run.
func (c *Config) Validate() error {
	switch c.StatusPolicy {
	case StatusPolicy2xx, StatusPolicyAny:
	default:
		return fmt.Errorf("invalid status_policy %q (use %q or %q)", c.StatusPolicy, StatusPolicy2xx, StatusPolicyAny)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("invalid timeout %s", c.Timeout)
	}
	if c.Sequences < 1 {
		return fmt.Errorf("sequences must be at least 1, got %d", c.Sequences)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}

	sources := 0
	if c.Auth.Token != "" {
		sources++
	}
	if c.Auth.Command != "" {
		sources++
	}
	if c.Auth.OAuth2 != nil && c.Auth.OAuth2.TokenURL != "" {
		sources++
	}
	if sources > 1 {
		return fmt.Errorf("auth: only one of token, command or oauth2 may be set")
	}
	return nil
}

// AuthEnabled reports whether any token source is configured.
func (c *Config) AuthEnabled() bool {
	return c.Auth.Token != "" || c.Auth.Command != "" ||
		(c.Auth.OAuth2 != nil && c.Auth.OAuth2.TokenURL != "")
}
