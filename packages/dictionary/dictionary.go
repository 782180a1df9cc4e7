package dictionary

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/abdul-hamid-achik/hitseq/packages/core/template"
	"gopkg.in/yaml.v3"
)

// Dictionary holds externally authored values: custom payloads keyed by
// pointer path and replacement values for fuzzable fragments. In
// deterministic mode the first listed value is always used.
type Dictionary struct {
	CustomPayload  map[string][]any `yaml:"custom_payload"`
	FuzzableString []string         `yaml:"fuzzable_string"`
	FuzzableInt    []string         `yaml:"fuzzable_int"`
	FuzzableBool   []string         `yaml:"fuzzable_bool"`
	FuzzableObject []any            `yaml:"fuzzable_object"`
}

func New() *Dictionary {
	return &Dictionary{CustomPayload: make(map[string][]any)}
}

// Load reads a YAML or JSON dictionary file.
func Load(path string) (*Dictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dictionary: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Dictionary, error) {
	d := New()
	if err := yaml.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("parsing dictionary: %w", err)
	}
	if d.CustomPayload == nil {
		d.CustomPayload = make(map[string][]any)
	}
	return d, nil
}

// SetPayload replaces the values for path.
func (d *Dictionary) SetPayload(path string, values ...any) {
	d.CustomPayload[path] = values
}

// Lookup returns the first value for path. Strings are returned raw,
// structured values as JSON.
func (d *Dictionary) Lookup(path string) ([]byte, bool) {
	values, ok := d.CustomPayload[path]
	if !ok || len(values) == 0 {
		return nil, false
	}
	out, err := encode(values[0])
	if err != nil {
		return nil, false
	}
	return out, true
}

// Value returns the dictionary's replacement for a fuzzable kind.
func (d *Dictionary) Value(kind template.FuzzKind, seed string) (string, bool) {
	switch kind {
	case template.FuzzString:
		return first(d.FuzzableString)
	case template.FuzzInt:
		return first(d.FuzzableInt)
	case template.FuzzBool:
		return first(d.FuzzableBool)
	case template.FuzzObject:
		if len(d.FuzzableObject) == 0 {
			return "", false
		}
		out, err := encode(d.FuzzableObject[0])
		if err != nil {
			return "", false
		}
		return string(out), true
	}
	return "", false
}

func first(values []string) (string, bool) {
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}

func encode(v any) ([]byte, error) {
	switch val := v.(type) {
	case string:
		return []byte(val), nil
	case nil:
		return []byte("null"), nil
	}
	return json.Marshal(normalize(v))
}

// normalize turns yaml's map[string]any / map[any]any into JSON-encodable values.
func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalize(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	default:
		return v
	}
}
