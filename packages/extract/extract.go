package extract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Source selects where a rule looks for its value.
type Source string

const (
	SourceBody   Source = "body"
	SourceHeader Source = "header"
)

// Rule maps a response field to the dynamic variable it writes.
type Rule struct {
	Variable string
	Path     string
	Source   Source
}

// Result maps variable names to extracted values. Rules that did not match
// are missing keys.
type Result map[string]string

// BodyParseError reports a non-empty body that is not valid JSON. It is
// recoverable: header rules still run and the error alone never fails a
// request.
type BodyParseError struct {
	Snippet string
}

func (e *BodyParseError) Error() string {
	return fmt.Sprintf("response body is not valid JSON: %q", e.Snippet)
}

// ErrNoDynamicObjects is matched by every NoDynamicObjectsError.
var ErrNoDynamicObjects = errors.New("no dynamic objects extracted")

// NoDynamicObjectsError reports that none of the declared variables could be
// extracted from a response.
type NoDynamicObjectsError struct {
	Variables []string
	Cause     error
}

func (e *NoDynamicObjectsError) Error() string {
	msg := fmt.Sprintf("none of the expected dynamic objects were present in the response (%s)", strings.Join(e.Variables, ", "))
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *NoDynamicObjectsError) Is(target error) bool {
	return target == ErrNoDynamicObjects
}

type Extractor struct {
	headers  map[string]string
	bodyJSON gjson.Result
	parseErr *BodyParseError
}

func NewExtractor(body []byte, headers map[string]string) *Extractor {
	e := &Extractor{
		headers: headers,
	}
	if len(body) == 0 {
		return e
	}
	if !gjson.ValidBytes(body) {
		e.parseErr = &BodyParseError{Snippet: snippet(body, 64)}
		return e
	}
	e.bodyJSON = gjson.ParseBytes(body)
	return e
}

// ParseError returns the body parse failure, if any.
func (e *Extractor) ParseError() *BodyParseError {
	return e.parseErr
}

// Extract returns the value for rule, or false when it is absent.
func (e *Extractor) Extract(rule Rule) (string, bool) {
	switch rule.Source {
	case SourceHeader:
		return e.extractFromHeader(rule.Path)
	case SourceBody, "":
		return e.extractFromBody(rule.Path)
	default:
		return "", false
	}
}

func (e *Extractor) extractFromBody(path string) (string, bool) {
	if !e.bodyJSON.Exists() {
		return "", false
	}

	result := e.bodyJSON
	if p := ToGJSONPath(path); p != "" {
		result = e.bodyJSON.Get(p)
	}
	if !result.Exists() || result.Type == gjson.Null {
		return "", false
	}

	value := result.String()
	if value == "" {
		return "", false
	}
	return value, true
}

func (e *Extractor) extractFromHeader(name string) (string, bool) {
	for k, v := range e.headers {
		if strings.EqualFold(k, name) && v != "" {
			return v, true
		}
	}
	return "", false
}

// ExtractAll applies every rule. The result holds the rules that matched;
// the returned error is the recoverable body parse failure, if any.
func (e *Extractor) ExtractAll(rules []Rule) (Result, error) {
	results := make(Result)
	for _, r := range rules {
		if value, ok := e.Extract(r); ok {
			results[r.Variable] = value
		}
	}
	if e.parseErr != nil {
		return results, e.parseErr
	}
	return results, nil
}

// Apply extracts rules from a response. parseErr is recoverable. err is a
// NoDynamicObjectsError when rules were declared and none matched.
func Apply(rules []Rule, body []byte, headers map[string]string) (result Result, parseErr *BodyParseError, err error) {
	e := NewExtractor(body, headers)
	result, _ = e.ExtractAll(rules)
	parseErr = e.ParseError()

	if len(rules) > 0 && len(result) == 0 {
		vars := make([]string, 0, len(rules))
		for _, r := range rules {
			vars = append(vars, r.Variable)
		}
		noObjects := &NoDynamicObjectsError{Variables: vars}
		if parseErr != nil {
			noObjects.Cause = parseErr
		}
		return result, parseErr, noObjects
	}

	return result, parseErr, nil
}

// ToGJSONPath converts a JSON pointer such as "/items/0/id" to the gjson
// path "items.0.id". Paths that are not pointers are returned unchanged.
func ToGJSONPath(path string) string {
	if path == "" || path == "/" {
		return ""
	}
	if !strings.HasPrefix(path, "/") {
		return path
	}

	tokens := strings.Split(path[1:], "/")
	for i, tok := range tokens {
		tok = strings.ReplaceAll(tok, "~1", "/")
		tok = strings.ReplaceAll(tok, "~0", "~")
		tok = strings.TrimSuffix(strings.TrimPrefix(tok, "["), "]")
		tokens[i] = escapeGJSON(tok)
	}
	return strings.Join(tokens, ".")
}

func escapeGJSON(tok string) string {
	var b strings.Builder
	for _, r := range tok {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\', '!', '=', '<', '>', '%':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func snippet(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n]) + "..."
}
