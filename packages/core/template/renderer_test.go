package template

import (
	"context"
	"errors"
	"testing"

	"github.com/abdul-hamid-achik/hitseq/packages/core/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapPayloads map[string]string

func (m mapPayloads) Lookup(path string) ([]byte, bool) {
	v, ok := m[path]
	return []byte(v), ok
}

type fixedTokens struct {
	token string
	err   error
}

func (f fixedTokens) CurrentToken(ctx context.Context, tag string) (string, error) {
	return f.token, f.err
}

type overrideFuzz map[FuzzKind]string

func (o overrideFuzz) Value(kind FuzzKind, seed string) (string, bool) {
	v, ok := o[kind]
	return v, ok
}

func orderTemplate() Template {
	return New(
		Static{Text: "POST "},
		BasePath{Path: "/api"},
		Static{Text: "/stores/"},
		DynamicRef{Variable: "_stores_post_id"},
		Static{Text: "/order HTTP/1.1\r\n"},
		Static{Text: "Host: localhost:8888\r\n"},
		AuthToken{Tag: "authentication_token_tag"},
		Static{Text: "\r\n"},
		Static{Text: `{"storeId":`},
		Fuzzable{FuzzKind: FuzzInt, Seed: "1"},
		Static{Text: `,"bagType":`},
		Fuzzable{FuzzKind: FuzzString, Seed: "fuzzstring", Quoted: true},
		Static{Text: `,"intro":`},
		CustomPayload{Path: "/storeProperties/intro", Quoted: true},
		Static{Text: "}"},
	)
}

func TestRender_Order(t *testing.T) {
	reg := registry.New()
	reg.Set("_stores_post_id", "abc123")

	r := NewRenderer(
		WithPayloads(mapPayloads{"/storeProperties/intro": "hello"}),
		WithTokens(fixedTokens{token: "Bearer t0k"}),
	)

	out, err := r.Render(context.Background(), orderTemplate(), reg)
	require.NoError(t, err)

	expected := "POST /api/stores/abc123/order HTTP/1.1\r\n" +
		"Host: localhost:8888\r\n" +
		"Authorization: Bearer t0k\r\n" +
		"\r\n" +
		`{"storeId":1,"bagType":"fuzzstring","intro":"hello"}`
	assert.Equal(t, expected, string(out))
}

func TestRender_MissingDependency(t *testing.T) {
	r := NewRenderer(WithPayloads(mapPayloads{"/storeProperties/intro": "hello"}))

	out, err := r.Render(context.Background(), orderTemplate(), registry.New())
	require.Error(t, err)
	assert.Nil(t, out)

	var missing *MissingDependencyError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "_stores_post_id", missing.Variable)
	assert.Equal(t, 3, missing.Position)
	assert.ErrorIs(t, err, registry.ErrUnresolved)
}

func TestRender_MissingCustomPayload(t *testing.T) {
	reg := registry.New()
	reg.Set("_stores_post_id", "abc123")

	_, err := NewRenderer().Render(context.Background(), orderTemplate(), reg)

	var missing *MissingCustomPayloadError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "/storeProperties/intro", missing.Path)
	assert.Equal(t, 13, missing.Position)
}

func TestRender_AuthTokenFailure(t *testing.T) {
	tmpl := New(Static{Text: "GET / HTTP/1.1\r\n"}, AuthToken{Tag: "t"}, Static{Text: "\r\n"})
	r := NewRenderer(WithTokens(fixedTokens{err: errors.New("refresh failed")}))

	_, err := r.Render(context.Background(), tmpl, registry.New())

	var authErr *AuthTokenError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "t", authErr.Tag)
	assert.Contains(t, err.Error(), "refresh failed")
}

func TestRender_WithoutTokenProvider(t *testing.T) {
	tmpl := New(Static{Text: "GET / HTTP/1.1\r\n"}, AuthToken{Tag: "t"}, Static{Text: "\r\n"})

	out, err := NewRenderer().Render(context.Background(), tmpl, nil)
	require.NoError(t, err)
	assert.Equal(t, "GET / HTTP/1.1\r\n\r\n", string(out))
}

func TestRender_Quoting(t *testing.T) {
	reg := registry.New()
	reg.Set("id", "x")

	tests := []struct {
		name     string
		fragment Fragment
		expected string
	}{
		{name: "dynamic unquoted", fragment: DynamicRef{Variable: "id"}, expected: "x"},
		{name: "dynamic quoted", fragment: DynamicRef{Variable: "id", Quoted: true}, expected: `"x"`},
		{name: "fuzzable bool", fragment: Fuzzable{FuzzKind: FuzzBool, Seed: "true"}, expected: "true"},
		{name: "fuzzable object", fragment: Fuzzable{FuzzKind: FuzzObject, Seed: `{ "fuzz": false }`}, expected: `{ "fuzz": false }`},
		{name: "payload unquoted", fragment: CustomPayload{Path: "/tags"}, expected: `["a"]`},
	}

	r := NewRenderer(WithPayloads(mapPayloads{"/tags": `["a"]`}))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := r.Render(context.Background(), New(tt.fragment), reg)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(out))
		})
	}
}

func TestRender_Overrides(t *testing.T) {
	tmpl := New(
		BasePath{Path: "/api"},
		Static{Text: "?n="},
		Fuzzable{FuzzKind: FuzzInt, Seed: "1"},
		Static{Text: "&s="},
		Fuzzable{FuzzKind: FuzzString, Seed: "fuzzstring"},
	)
	r := NewRenderer(WithBasePath("/v2"), WithFuzzValues(overrideFuzz{FuzzInt: "7"}))

	out, err := r.Render(context.Background(), tmpl, nil)
	require.NoError(t, err)
	assert.Equal(t, "/v2?n=7&s=fuzzstring", string(out))
}

func TestRender_CustomAuthHeader(t *testing.T) {
	tmpl := New(AuthToken{Tag: "api"})
	r := NewRenderer(WithTokens(fixedTokens{token: "secret"}), WithAuthHeader("X-Api-Key"))

	out, err := r.Render(context.Background(), tmpl, nil)
	require.NoError(t, err)
	assert.Equal(t, "X-Api-Key: secret\r\n", string(out))
}

func TestTemplate_References(t *testing.T) {
	tmpl := New(
		DynamicRef{Variable: "a"},
		Static{Text: "/"},
		DynamicRef{Variable: "b"},
		DynamicRef{Variable: "a"},
		CustomPayload{Path: "/p"},
	)

	assert.Equal(t, []string{"a", "b"}, tmpl.References())
	assert.Equal(t, []string{"/p"}, tmpl.CustomPayloads())
	assert.Equal(t, 5, tmpl.Len())
}

func TestTemplate_Immutable(t *testing.T) {
	frags := []Fragment{Static{Text: "a"}}
	tmpl := New(frags...)
	frags[0] = Static{Text: "b"}

	got := tmpl.Fragments()
	got[0] = Static{Text: "c"}

	assert.Equal(t, Static{Text: "a"}, tmpl.Fragments()[0])
}

func TestParseFuzzKind(t *testing.T) {
	kind, err := ParseFuzzKind("datetime")
	require.NoError(t, err)
	assert.Equal(t, FuzzString, kind)

	kind, err = ParseFuzzKind("number")
	require.NoError(t, err)
	assert.Equal(t, FuzzInt, kind)

	_, err = ParseFuzzKind("blob")
	assert.Error(t, err)
}
