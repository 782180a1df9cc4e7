package grammar

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/abdul-hamid-achik/hitseq/packages/core/request"
	"github.com/abdul-hamid-achik/hitseq/packages/core/template"
	"github.com/abdul-hamid-achik/hitseq/packages/extract"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON string

var schemaLoader = gojsonschema.NewStringLoader(schemaJSON)

// Schema returns the JSON schema grammar documents are validated against.
func Schema() string {
	return schemaJSON
}

// File is a parsed grammar document.
type File struct {
	Path      string    `yaml:"-"`
	Variables []string  `yaml:"variables"`
	Requests  []Request `yaml:"requests"`
}

type Request struct {
	Endpoint  string     `yaml:"endpoint"`
	Method    string     `yaml:"method"`
	Fragments []Fragment `yaml:"fragments"`
	PostSend  *PostSend  `yaml:"post_send"`
}

type PostSend struct {
	Rules []Rule `yaml:"rules"`
}

type Rule struct {
	Variable string `yaml:"variable"`
	Path     string `yaml:"path"`
	Source   string `yaml:"source"`
}

// Fragment has exactly one field set.
type Fragment struct {
	Static        *string        `yaml:"static"`
	BasePath      *string        `yaml:"basepath"`
	Auth          *string        `yaml:"auth"`
	Fuzzable      *Fuzzable      `yaml:"fuzzable"`
	CustomPayload *CustomPayload `yaml:"custom_payload"`
	Dynamic       *Dynamic       `yaml:"dynamic"`
}

// Fuzzable keeps the seed as a node so its source text reaches the wire
// unchanged: 1.50 stays 1.50.
type Fuzzable struct {
	Kind   string    `yaml:"kind"`
	Seed   yaml.Node `yaml:"seed"`
	Quoted bool      `yaml:"quoted"`
}

type CustomPayload struct {
	Path   string `yaml:"path"`
	Quoted bool   `yaml:"quoted"`
}

type Dynamic struct {
	Variable string `yaml:"variable"`
	Quoted   bool   `yaml:"quoted"`
}

// ValidationError lists schema violations of a grammar document.
type ValidationError struct {
	Path   string
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid grammar %s:\n  %s", e.Path, strings.Join(e.Errors, "\n  "))
}

func ParseFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading grammar: %w", err)
	}
	f, err := Parse(data, path)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Parse validates data against the grammar schema and decodes it.
func Parse(data []byte, name string) (*File, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing grammar %s: %w", name, err)
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(normalize(doc)))
	if err != nil {
		return nil, fmt.Errorf("validating grammar %s: %w", name, err)
	}
	if !result.Valid() {
		verr := &ValidationError{Path: name}
		for _, e := range result.Errors() {
			verr.Errors = append(verr.Errors, e.String())
		}
		return nil, verr
	}

	f := &File{Path: name}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("decoding grammar %s: %w", name, err)
	}
	return f, nil
}

// Compile builds the request collection described by f, in file order.
func (f *File) Compile() (*request.Collection, error) {
	coll := request.NewCollection()
	if err := coll.Declare(f.Variables...); err != nil {
		return nil, fmt.Errorf("variables: %w", err)
	}

	for i, r := range f.Requests {
		id := request.ID{Endpoint: r.Endpoint, Method: strings.ToUpper(r.Method)}

		fragments := make([]template.Fragment, 0, len(r.Fragments))
		for j, frag := range r.Fragments {
			tf, err := frag.compile()
			if err != nil {
				return nil, fmt.Errorf("request %d (%s) fragment %d: %w", i+1, id.Key(), j, err)
			}
			fragments = append(fragments, tf)
		}

		var opts []request.Option
		if r.PostSend != nil {
			rules := make([]extract.Rule, 0, len(r.PostSend.Rules))
			for _, rule := range r.PostSend.Rules {
				source := extract.SourceBody
				if rule.Source != "" {
					source = extract.Source(rule.Source)
				}
				rules = append(rules, extract.Rule{
					Variable: rule.Variable,
					Path:     rule.Path,
					Source:   source,
				})
			}
			opts = append(opts, request.WithPostSend(rules...))
		}

		d, err := request.NewDescriptor(id, fragments, opts...)
		if err != nil {
			return nil, fmt.Errorf("request %d: %w", i+1, err)
		}
		if err := coll.Add(d); err != nil {
			return nil, fmt.Errorf("request %d: %w", i+1, err)
		}
	}

	return coll, nil
}

func (f Fragment) compile() (template.Fragment, error) {
	switch {
	case f.Static != nil:
		return template.Static{Text: *f.Static}, nil
	case f.BasePath != nil:
		return template.BasePath{Path: *f.BasePath}, nil
	case f.Auth != nil:
		return template.AuthToken{Tag: *f.Auth}, nil
	case f.Fuzzable != nil:
		kind, err := template.ParseFuzzKind(f.Fuzzable.Kind)
		if err != nil {
			return nil, err
		}
		return template.Fuzzable{
			FuzzKind: kind,
			Seed:     f.Fuzzable.Seed.Value,
			Quoted:   f.Fuzzable.Quoted,
		}, nil
	case f.CustomPayload != nil:
		return template.CustomPayload{Path: f.CustomPayload.Path, Quoted: f.CustomPayload.Quoted}, nil
	case f.Dynamic != nil:
		return template.DynamicRef{Variable: f.Dynamic.Variable, Quoted: f.Dynamic.Quoted}, nil
	default:
		return nil, fmt.Errorf("empty fragment")
	}
}

// LoadCollection parses, validates and compiles a grammar file.
func LoadCollection(path string) (*File, *request.Collection, error) {
	f, err := ParseFile(path)
	if err != nil {
		return nil, nil, err
	}
	coll, err := f.Compile()
	if err != nil {
		return nil, nil, fmt.Errorf("compiling %s: %w", path, err)
	}
	return f, coll, nil
}

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
