package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokens_CurrentToken(t *testing.T) {
	tokens := NewTokens()
	tokens.Register("admin", Static("Bearer admin-token"))

	tok, err := tokens.CurrentToken(context.Background(), "admin")
	require.NoError(t, err)
	assert.Equal(t, "Bearer admin-token", tok)

	_, err = tokens.CurrentToken(context.Background(), "authentication_token_tag")
	assert.Error(t, err)

	tokens.Register(DefaultTag, Static("Bearer fallback"))
	tok, err = tokens.CurrentToken(context.Background(), "authentication_token_tag")
	require.NoError(t, err)
	assert.Equal(t, "Bearer fallback", tok)
	assert.Equal(t, 2, tokens.Len())
}

func TestStatic_Empty(t *testing.T) {
	_, err := Static("").Token(context.Background())
	assert.Error(t, err)
}

func tokenServer(t *testing.T, calls *atomic.Int32, grant string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, grant, r.PostForm.Get("grant_type"))
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "client", user)
		assert.Equal(t, "secret", pass)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token": "tok-123", "token_type": "bearer", "expires_in": 3600}`))
	}))
}

func TestOAuth2_ClientCredentials(t *testing.T) {
	var calls atomic.Int32
	server := tokenServer(t, &calls, "client_credentials")
	defer server.Close()

	p, err := NewOAuth2(&OAuth2Config{
		TokenURL:     server.URL,
		ClientID:     "client",
		ClientSecret: "secret",
		Scopes:       []string{"stores:write"},
		GrantType:    ClientCredentials,
	})
	require.NoError(t, err)

	tok, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-123", tok)

	_, err = p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestOAuth2_Password(t *testing.T) {
	var calls atomic.Int32
	server := tokenServer(t, &calls, "password")
	defer server.Close()

	p, err := NewOAuth2(&OAuth2Config{
		TokenURL:     server.URL,
		ClientID:     "client",
		ClientSecret: "secret",
		Username:     "alice",
		Password:     "pw",
		GrantType:    Password,
	})
	require.NoError(t, err)

	tok, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-123", tok)
}

func TestOAuth2_InvalidConfig(t *testing.T) {
	_, err := NewOAuth2(&OAuth2Config{})
	assert.Error(t, err)

	_, err = NewOAuth2(&OAuth2Config{TokenURL: "http://x", GrantType: "implicit"})
	assert.Error(t, err)

	_, err = NewOAuth2(&OAuth2Config{TokenURL: "http://x", GrantType: Password})
	assert.Error(t, err)
}

func TestCommand_RefreshInterval(t *testing.T) {
	dir := t.TempDir()
	counter := filepath.Join(dir, "count")

	c := NewCommand(`echo x >> `+counter+`; echo "{'user1':{}}"; echo "Authorization: Bearer v$(wc -l < `+counter+` | tr -d ' ')"`, time.Minute, dir)
	now := time.Now()
	c.now = func() time.Time { return now }

	tok, err := c.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer v1", tok)

	tok, err = c.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer v1", tok)

	now = now.Add(2 * time.Minute)
	tok, err = c.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer v2", tok)
}

func TestCommand_Failure(t *testing.T) {
	_, err := NewCommand("exit 3", 0, "").Token(context.Background())
	assert.Error(t, err)

	_, err = NewCommand("true", 0, "").Token(context.Background())
	assert.Error(t, err)
}

func TestOAuth2_HonorsContext(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	for _, grant := range []GrantType{ClientCredentials, Password} {
		t.Run(string(grant), func(t *testing.T) {
			p, err := NewOAuth2(&OAuth2Config{
				TokenURL:     server.URL,
				ClientID:     "client",
				ClientSecret: "secret",
				Username:     "alice",
				GrantType:    grant,
			})
			require.NoError(t, err)

			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()

			start := time.Now()
			_, err = p.Token(ctx)
			require.Error(t, err)
			assert.ErrorIs(t, err, context.DeadlineExceeded)
			assert.Less(t, time.Since(start), 2*time.Second)
		})
	}
}
