package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// ErrUnresolved is matched by every UnresolvedError.
var ErrUnresolved = errors.New("unresolved dynamic variable")

// UnresolvedError reports a read of a variable that has no value yet.
type UnresolvedError struct {
	Name string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("dynamic variable %q is unresolved", e.Name)
}

func (e *UnresolvedError) Is(target error) bool {
	return target == ErrUnresolved
}

// Registry maps dynamic variable names to their latest value. A Registry
// belongs to a single sequence run and is not safe for concurrent use.
type Registry struct {
	declared map[string]struct{}
	values   map[string]any
}

func New() *Registry {
	return &Registry{
		declared: make(map[string]struct{}),
		values:   make(map[string]any),
	}
}

// Declare records a variable without giving it a value.
func (r *Registry) Declare(name string) {
	r.declared[name] = struct{}{}
}

// Set overwrites the current value of name.
func (r *Registry) Set(name string, value any) {
	r.declared[name] = struct{}{}
	r.values[name] = value
}

// Seed sets every entry of vars.
func (r *Registry) Seed(vars map[string]any) {
	for k, v := range vars {
		r.Set(k, v)
	}
}

func (r *Registry) Get(name string) (any, error) {
	v, ok := r.values[name]
	if !ok {
		return nil, &UnresolvedError{Name: name}
	}
	return v, nil
}

func (r *Registry) Lookup(name string) (any, bool) {
	v, ok := r.values[name]
	return v, ok
}

func (r *Registry) IsSet(name string) bool {
	_, ok := r.values[name]
	return ok
}

// String returns the value of name rendered as text.
func (r *Registry) String(name string) (string, error) {
	v, err := r.Get(name)
	if err != nil {
		return "", err
	}
	return Stringify(v)
}

// Names returns every declared variable in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.declared))
	for name := range r.declared {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot copies the variables that currently hold a value.
func (r *Registry) Snapshot() map[string]any {
	out := make(map[string]any, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

func (r *Registry) Len() int {
	return len(r.values)
}

// Stringify converts a stored value to the text placed on the wire.
// Structured values are encoded as JSON.
func Stringify(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case []byte:
		return string(val), nil
	case fmt.Stringer:
		return val.String(), nil
	case bool:
		return strconv.FormatBool(val), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case nil:
		return "", fmt.Errorf("nil value")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding value: %w", err)
	}
	return string(data), nil
}
