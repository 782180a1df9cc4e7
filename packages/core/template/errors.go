package template

import "fmt"

// MissingDependencyError is returned when a DynamicRef names a variable that
// has no value yet.
type MissingDependencyError struct {
	Variable string
	Position int
	Err      error
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("missing dependency %q at fragment %d", e.Variable, e.Position)
}

func (e *MissingDependencyError) Unwrap() error {
	return e.Err
}

// MissingCustomPayloadError is returned when no payload exists for a path.
type MissingCustomPayloadError struct {
	Path     string
	Position int
}

func (e *MissingCustomPayloadError) Error() string {
	return fmt.Sprintf("missing custom payload %q at fragment %d", e.Path, e.Position)
}

// AuthTokenError wraps a failure of the token collaborator.
type AuthTokenError struct {
	Tag      string
	Position int
	Err      error
}

func (e *AuthTokenError) Error() string {
	return fmt.Sprintf("auth token %q at fragment %d: %v", e.Tag, e.Position, e.Err)
}

func (e *AuthTokenError) Unwrap() error {
	return e.Err
}
