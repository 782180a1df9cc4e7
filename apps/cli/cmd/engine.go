package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/hitseq/packages/auth"
	"github.com/abdul-hamid-achik/hitseq/packages/core/config"
	"github.com/abdul-hamid-achik/hitseq/packages/core/template"
	"github.com/abdul-hamid-achik/hitseq/packages/dictionary"
	"github.com/abdul-hamid-achik/hitseq/packages/http"
	"github.com/spf13/cobra"
)

// Flags shared by every command that renders requests.
var (
	targetFlag       string
	basePathFlag     string
	dictionaryFlag   string
	tokenFlag        string
	tokenCommandFlag string
	authHeaderFlag   string
	setFlags         []string
)

func addEngineFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&targetFlag, "target", "", "Base URL requests are sent to, overriding the Host header (env: HITSEQ_TARGET)")
	cmd.Flags().StringVar(&basePathFlag, "base-path", "", "Replace the grammar's API base path (env: HITSEQ_BASE_PATH)")
	cmd.Flags().StringVarP(&dictionaryFlag, "dictionary", "d", "", "Dictionary file with custom payloads and fuzz values (env: HITSEQ_DICTIONARY)")
	cmd.Flags().StringVar(&tokenFlag, "token", "", "Static auth header value, e.g. \"Bearer abc\" (env: HITSEQ_AUTH_TOKEN)")
	cmd.Flags().StringVar(&tokenCommandFlag, "token-command", "", "Command whose last output line is the auth header value (env: HITSEQ_AUTH_COMMAND)")
	cmd.Flags().StringVar(&authHeaderFlag, "auth-header", "", "Header name written by auth fragments (default Authorization)")
	cmd.Flags().StringArrayVar(&setFlags, "set", nil, "Seed a variable before the first request (name=value, repeatable)")
}

// loadConfig reads the config file and environment, then applies the flags
// the user set explicitly on cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(configFlag)
	if err != nil {
		return nil, withExitCode(ExitConfigError, err)
	}

	flags := cmd.Flags()
	changed := func(name string) bool {
		f := flags.Lookup(name)
		return f != nil && f.Changed
	}

	if changed("target") {
		cfg.Target = targetFlag
	}
	if changed("base-path") {
		cfg.BasePath = basePathFlag
	}
	if changed("dictionary") {
		cfg.Dictionary = dictionaryFlag
	}
	if changed("token") {
		cfg.Auth.Token = tokenFlag
		cfg.Auth.Command = ""
		cfg.Auth.OAuth2 = nil
	}
	if changed("token-command") {
		cfg.Auth.Command = tokenCommandFlag
		cfg.Auth.Token = ""
		cfg.Auth.OAuth2 = nil
	}
	if changed("auth-header") {
		cfg.Auth.Header = authHeaderFlag
	}
	if changed("set") {
		vars, err := parseAssignments(setFlags)
		if err != nil {
			return nil, withExitCode(ExitUsageError, err)
		}
		if cfg.Variables == nil {
			cfg.Variables = make(map[string]any)
		}
		for k, v := range vars {
			cfg.Variables[k] = v
		}
	}

	applyRunOverrides(cfg, changed)

	if err := cfg.Validate(); err != nil {
		return nil, withExitCode(ExitConfigError, err)
	}
	if cfg.Target != "" {
		if err := http.ValidateURL(cfg.Target); err != nil {
			return nil, withExitCode(ExitConfigError, fmt.Errorf("invalid target: %w", err))
		}
	}
	return cfg, nil
}

func parseAssignments(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --set %q (use name=value)", pair)
		}
		out[name] = value
	}
	return out, nil
}

// buildRenderer wires the dictionary and token collaborators described by cfg.
func buildRenderer(cfg *config.Config) (*template.Renderer, error) {
	opts := []template.Option{template.WithAuthHeader(cfg.Auth.Header)}

	if cfg.Dictionary != "" {
		dict, err := dictionary.Load(cfg.Dictionary)
		if err != nil {
			return nil, withExitCode(ExitParseError, err)
		}
		opts = append(opts, template.WithPayloads(dict), template.WithFuzzValues(dict))
	}

	if cfg.BasePath != "" {
		opts = append(opts, template.WithBasePath(cfg.BasePath))
	}

	if cfg.AuthEnabled() {
		tokens, err := buildTokens(cfg)
		if err != nil {
			return nil, withExitCode(ExitConfigError, err)
		}
		opts = append(opts, template.WithTokens(tokens))
	}

	return template.NewRenderer(opts...), nil
}

func buildTokens(cfg *config.Config) (*auth.Tokens, error) {
	tokens := auth.NewTokens()

	switch {
	case cfg.Auth.Token != "":
		tokens.Register(auth.DefaultTag, auth.Static(cfg.Auth.Token))
	case cfg.Auth.Command != "":
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		tokens.Register(auth.DefaultTag, auth.NewCommand(cfg.Auth.Command, cfg.Auth.RefreshInterval, wd))
	case cfg.Auth.OAuth2 != nil:
		src, err := auth.NewOAuth2(cfg.Auth.OAuth2)
		if err != nil {
			return nil, err
		}
		tokens.Register(auth.DefaultTag, src)
	}

	return tokens, nil
}

func buildClient(cfg *config.Config) *http.Client {
	return http.NewClient(
		http.WithTarget(cfg.Target),
		http.WithTimeout(cfg.Timeout),
		http.WithFollowRedirects(cfg.FollowRedirects),
		http.WithMaxRedirects(cfg.MaxRedirects),
		http.WithValidateSSL(cfg.ValidateSSL),
		http.WithProxy(cfg.Proxy),
		http.WithDefaultHeaders(cfg.Headers),
		http.WithRateLimit(cfg.RateLimit, cfg.RateBurst),
	)
}

// Environment variable helpers for flag defaults
func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}

func parseTimeout(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		// Bare numbers are milliseconds.
		ms, convErr := strconv.Atoi(s)
		if convErr != nil {
			return 0, fmt.Errorf("invalid timeout value %q: %w (use format like 30s, 1m, 500ms)", s, err)
		}
		d = time.Duration(ms) * time.Millisecond
	}
	return d, nil
}
