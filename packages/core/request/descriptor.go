package request

import (
	"fmt"
	"strings"

	"github.com/abdul-hamid-achik/hitseq/packages/core/template"
	"github.com/abdul-hamid-achik/hitseq/packages/extract"
)

// ID identifies a request by endpoint and method.
type ID struct {
	Endpoint string
	Method   string
}

// Key returns "METHOD endpoint", used for diagnostics and deduplication.
func (id ID) Key() string {
	return strings.ToUpper(id.Method) + " " + id.Endpoint
}

func (id ID) String() string {
	return id.Key()
}

// PostSend describes what happens after a response arrives: which fields to
// extract and which dynamic variables they write.
type PostSend struct {
	Rules []extract.Rule
}

// Descriptor binds a template to its post-send extraction. It is immutable
// once constructed.
type Descriptor struct {
	id       ID
	template template.Template
	postSend *PostSend
}

type Option func(*Descriptor)

// WithPostSend declares extraction rules; each rule's variable is written by
// this descriptor.
func WithPostSend(rules ...extract.Rule) Option {
	return func(d *Descriptor) {
		cp := make([]extract.Rule, len(rules))
		copy(cp, rules)
		d.postSend = &PostSend{Rules: cp}
	}
}

func NewDescriptor(id ID, fragments []template.Fragment, opts ...Option) (*Descriptor, error) {
	if id.Endpoint == "" || id.Method == "" {
		return nil, fmt.Errorf("request id needs both endpoint and method, got %q", id.Key())
	}

	d := &Descriptor{
		id:       id,
		template: template.New(fragments...),
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.postSend != nil {
		seen := make(map[string]bool)
		for _, r := range d.postSend.Rules {
			if r.Variable == "" {
				return nil, fmt.Errorf("%s: extraction rule for %q has no variable", id.Key(), r.Path)
			}
			if seen[r.Variable] {
				return nil, fmt.Errorf("%s: variable %q is written twice", id.Key(), r.Variable)
			}
			seen[r.Variable] = true
		}
	}

	return d, nil
}

func (d *Descriptor) ID() ID {
	return d.id
}

func (d *Descriptor) Template() template.Template {
	return d.template
}

// Rules returns a copy of the extraction rules, or nil without post-send.
func (d *Descriptor) Rules() []extract.Rule {
	if d.postSend == nil {
		return nil
	}
	cp := make([]extract.Rule, len(d.postSend.Rules))
	copy(cp, d.postSend.Rules)
	return cp
}

func (d *Descriptor) HasPostSend() bool {
	return d.postSend != nil && len(d.postSend.Rules) > 0
}

// Writes lists the dynamic variables this descriptor produces.
func (d *Descriptor) Writes() []string {
	if d.postSend == nil {
		return nil
	}
	vars := make([]string, 0, len(d.postSend.Rules))
	for _, r := range d.postSend.Rules {
		vars = append(vars, r.Variable)
	}
	return vars
}

// Reads lists the dynamic variables this descriptor's template references.
func (d *Descriptor) Reads() []string {
	return d.template.References()
}
