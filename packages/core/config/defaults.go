package config

import (
	"time"

	"github.com/abdul-hamid-achik/hitseq/packages/auth"
	"github.com/abdul-hamid-achik/hitseq/packages/core/sequencer"
	"github.com/abdul-hamid-achik/hitseq/packages/core/template"
	"github.com/spf13/viper"
)

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Timeout:         30 * time.Second,
		FollowRedirects: true,
		MaxRedirects:    10,
		ValidateSSL:     true,
		RateBurst:       1,
		Sequences:       1,
		Concurrency:     sequencer.DefaultConcurrency,
		StatusPolicy:    StatusPolicy2xx,
		Output:          "console",
		Auth: AuthConfig{
			Header:          template.DefaultAuthHeader,
			RefreshInterval: auth.DefaultRefreshInterval,
		},
	}
}

// setDefaults registers every scalar key so environment overrides resolve
// even when no config file mentions them.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("target", d.Target)
	v.SetDefault("base_path", d.BasePath)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("follow_redirects", d.FollowRedirects)
	v.SetDefault("max_redirects", d.MaxRedirects)
	v.SetDefault("validate_ssl", d.ValidateSSL)
	v.SetDefault("proxy", d.Proxy)
	v.SetDefault("rate_limit", d.RateLimit)
	v.SetDefault("rate_burst", d.RateBurst)
	v.SetDefault("sequences", d.Sequences)
	v.SetDefault("concurrency", d.Concurrency)
	v.SetDefault("dictionary", d.Dictionary)
	v.SetDefault("status_policy", d.StatusPolicy)
	v.SetDefault("history", d.History)
	v.SetDefault("output", d.Output)
	v.SetDefault("no_color", d.NoColor)
	v.SetDefault("auth.header", d.Auth.Header)
	v.SetDefault("auth.token", d.Auth.Token)
	v.SetDefault("auth.command", d.Auth.Command)
	v.SetDefault("auth.refresh_interval", d.Auth.RefreshInterval)
}

// StatusAccepted returns the sequencer status policy for c.
func (c *Config) StatusAccepted() func(int) bool {
	if c.StatusPolicy == StatusPolicyAny {
		return nil
	}
	return sequencer.Accept2xx
}
