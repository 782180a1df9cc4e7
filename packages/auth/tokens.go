package auth

import (
	"context"
	"fmt"
	"sync"
)

// DefaultTag is used for tags without their own source.
const DefaultTag = "*"

// Source produces the credential value written after the auth header name,
// for example "Bearer eyJ...".
type Source interface {
	Token(ctx context.Context) (string, error)
}

// Tokens maps auth tags to sources. It is safe for concurrent use so that
// parallel sequences can share it.
type Tokens struct {
	mu      sync.RWMutex
	sources map[string]Source
}

func NewTokens() *Tokens {
	return &Tokens{
		sources: make(map[string]Source),
	}
}

// Register binds tag to src. Registering DefaultTag covers every tag.
func (t *Tokens) Register(tag string, src Source) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sources[tag] = src
}

func (t *Tokens) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sources)
}

// CurrentToken asks the source registered for tag for a fresh value.
func (t *Tokens) CurrentToken(ctx context.Context, tag string) (string, error) {
	t.mu.RLock()
	src, ok := t.sources[tag]
	if !ok {
		src, ok = t.sources[DefaultTag]
	}
	t.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("no token source for tag %q", tag)
	}
	return src.Token(ctx)
}

// Static always returns the same value.
type Static string

func (s Static) Token(ctx context.Context) (string, error) {
	if s == "" {
		return "", fmt.Errorf("empty static token")
	}
	return string(s), nil
}
