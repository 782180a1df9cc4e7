package template

import (
	"bytes"
	"context"
	"fmt"
)

// DefaultAuthHeader is the header written for AuthToken fragments.
const DefaultAuthHeader = "Authorization"

// Values resolves dynamic variables to wire text.
type Values interface {
	String(name string) (string, error)
}

// PayloadSource supplies custom payload values keyed by pointer path.
type PayloadSource interface {
	Lookup(path string) ([]byte, bool)
}

// TokenProvider supplies the current credential for a tag.
type TokenProvider interface {
	CurrentToken(ctx context.Context, tag string) (string, error)
}

// FuzzSource may replace the seed of a Fuzzable fragment.
type FuzzSource interface {
	Value(kind FuzzKind, seed string) (string, bool)
}

type Renderer struct {
	payloads   PayloadSource
	tokens     TokenProvider
	fuzz       FuzzSource
	basePath   *string
	authHeader string
}

type Option func(*Renderer)

func NewRenderer(opts ...Option) *Renderer {
	r := &Renderer{
		authHeader: DefaultAuthHeader,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func WithPayloads(p PayloadSource) Option {
	return func(r *Renderer) {
		r.payloads = p
	}
}

func WithTokens(t TokenProvider) Option {
	return func(r *Renderer) {
		r.tokens = t
	}
}

func WithFuzzValues(f FuzzSource) Option {
	return func(r *Renderer) {
		r.fuzz = f
	}
}

// WithBasePath replaces the path of every BasePath fragment.
func WithBasePath(path string) Option {
	return func(r *Renderer) {
		r.basePath = &path
	}
}

func WithAuthHeader(name string) Option {
	return func(r *Renderer) {
		if name != "" {
			r.authHeader = name
		}
	}
}

// Render concatenates the output of every fragment in order. On error nothing
// is returned and the request must not be sent.
func (r *Renderer) Render(ctx context.Context, t Template, values Values) ([]byte, error) {
	var buf bytes.Buffer

	for i, f := range t.fragments {
		switch frag := f.(type) {
		case Static:
			buf.WriteString(frag.Text)

		case BasePath:
			if r.basePath != nil {
				buf.WriteString(*r.basePath)
			} else {
				buf.WriteString(frag.Path)
			}

		case Fuzzable:
			value := frag.Seed
			if r.fuzz != nil {
				if v, ok := r.fuzz.Value(frag.FuzzKind, frag.Seed); ok {
					value = v
				}
			}
			buf.WriteString(quote(value, frag.Quoted))

		case CustomPayload:
			if r.payloads == nil {
				return nil, &MissingCustomPayloadError{Path: frag.Path, Position: i}
			}
			value, ok := r.payloads.Lookup(frag.Path)
			if !ok {
				return nil, &MissingCustomPayloadError{Path: frag.Path, Position: i}
			}
			buf.WriteString(quote(string(value), frag.Quoted))

		case DynamicRef:
			if values == nil {
				return nil, &MissingDependencyError{Variable: frag.Variable, Position: i}
			}
			value, err := values.String(frag.Variable)
			if err != nil {
				return nil, &MissingDependencyError{Variable: frag.Variable, Position: i, Err: err}
			}
			buf.WriteString(quote(value, frag.Quoted))

		case AuthToken:
			// No token collaborator means the API is called unauthenticated.
			if r.tokens == nil {
				continue
			}
			token, err := r.tokens.CurrentToken(ctx, frag.Tag)
			if err != nil {
				return nil, &AuthTokenError{Tag: frag.Tag, Position: i, Err: err}
			}
			fmt.Fprintf(&buf, "%s: %s\r\n", r.authHeader, token)

		default:
			return nil, fmt.Errorf("fragment %d: unsupported fragment %T", i, f)
		}
	}

	return buf.Bytes(), nil
}

func quote(s string, quoted bool) string {
	if !quoted {
		return s
	}
	return `"` + s + `"`
}
