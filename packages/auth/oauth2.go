package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// GrantType represents the OAuth2 grant type
type GrantType string

const (
	// ClientCredentials is the client_credentials grant type
	ClientCredentials GrantType = "client_credentials"
	// Password is the password (resource owner) grant type
	Password GrantType = "password"
)

// OAuth2Config holds OAuth2 configuration
type OAuth2Config struct {
	TokenURL     string    `mapstructure:"token_url"`
	ClientID     string    `mapstructure:"client_id"`
	ClientSecret string    `mapstructure:"client_secret"`
	Scopes       []string  `mapstructure:"scopes"`
	Username     string    `mapstructure:"username"`
	Password     string    `mapstructure:"password"`
	GrantType    GrantType `mapstructure:"grant_type"`
}

// OAuth2 fetches access tokens and refreshes them once they expire. Fetches
// run under the caller's context, so a cancelled run stops waiting on the
// token endpoint.
type OAuth2 struct {
	config *OAuth2Config
	fetch  func(ctx context.Context) (*oauth2.Token, error)

	mu    sync.Mutex
	token *oauth2.Token
}

func NewOAuth2(cfg *OAuth2Config) (*OAuth2, error) {
	if cfg == nil || cfg.TokenURL == "" {
		return nil, fmt.Errorf("oauth2 requires a token url")
	}

	p := &OAuth2{config: cfg}

	switch cfg.GrantType {
	case ClientCredentials, "":
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		p.fetch = cc.Token
	case Password:
		if cfg.Username == "" {
			return nil, fmt.Errorf("oauth2 password grant requires a username")
		}
		oc := &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		}
		p.fetch = func(ctx context.Context) (*oauth2.Token, error) {
			return oc.PasswordCredentialsToken(ctx, cfg.Username, cfg.Password)
		}
	default:
		return nil, fmt.Errorf("unsupported OAuth2 grant type: %s", cfg.GrantType)
	}

	return p, nil
}

// Token returns "<type> <access token>", fetching a new token when the
// cached one has expired.
func (p *OAuth2) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.token.Valid() {
		tok, err := p.fetch(ctx)
		if err != nil {
			return "", fmt.Errorf("token request failed: %w", err)
		}
		p.token = tok
	}
	return p.token.Type() + " " + p.token.AccessToken, nil
}

func (p *OAuth2) String() string {
	return fmt.Sprintf("oauth2(%s %s scopes=%s)", p.config.GrantType, p.config.TokenURL, strings.Join(p.config.Scopes, ","))
}
