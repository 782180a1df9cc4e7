package template

import "fmt"

// Kind identifies a fragment variant.
type Kind int

const (
	KindStatic Kind = iota
	KindBasePath
	KindFuzzable
	KindCustomPayload
	KindDynamic
	KindAuthToken
)

func (k Kind) String() string {
	switch k {
	case KindStatic:
		return "static"
	case KindBasePath:
		return "basepath"
	case KindFuzzable:
		return "fuzzable"
	case KindCustomPayload:
		return "custom_payload"
	case KindDynamic:
		return "dynamic"
	case KindAuthToken:
		return "auth"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// FuzzKind is the value type of a Fuzzable fragment.
type FuzzKind string

const (
	FuzzInt    FuzzKind = "int"
	FuzzBool   FuzzKind = "bool"
	FuzzString FuzzKind = "string"
	FuzzObject FuzzKind = "object"
)

// ParseFuzzKind maps a grammar kind name to a FuzzKind. Kinds that only
// differ in the values a fuzzer would pick (number, datetime, uuid) are
// rendered like strings or ints.
func ParseFuzzKind(s string) (FuzzKind, error) {
	switch s {
	case "int", "integer", "number":
		return FuzzInt, nil
	case "bool", "boolean":
		return FuzzBool, nil
	case "string", "datetime", "date", "uuid":
		return FuzzString, nil
	case "object":
		return FuzzObject, nil
	default:
		return "", fmt.Errorf("unknown fuzzable kind %q", s)
	}
}

// Fragment is one typed unit of a request template. The set of variants is
// closed: Static, BasePath, Fuzzable, CustomPayload, DynamicRef, AuthToken.
type Fragment interface {
	Kind() Kind
	fragment()
}

// Static emits its text verbatim.
type Static struct {
	Text string
}

// BasePath emits the API base path. A renderer configured with a base path
// replaces the declared one.
type BasePath struct {
	Path string
}

// Fuzzable emits a representative value of Kind. Seed is used unless a fuzz
// value source overrides it.
type Fuzzable struct {
	FuzzKind FuzzKind
	Seed     string
	Quoted   bool
}

// CustomPayload emits an externally authored value keyed by Path.
type CustomPayload struct {
	Path   string
	Quoted bool
}

// DynamicRef emits the current value of a dynamic variable.
type DynamicRef struct {
	Variable string
	Quoted   bool
}

// AuthToken emits the credential header for Tag.
type AuthToken struct {
	Tag string
}

func (Static) Kind() Kind        { return KindStatic }
func (BasePath) Kind() Kind      { return KindBasePath }
func (Fuzzable) Kind() Kind      { return KindFuzzable }
func (CustomPayload) Kind() Kind { return KindCustomPayload }
func (DynamicRef) Kind() Kind    { return KindDynamic }
func (AuthToken) Kind() Kind     { return KindAuthToken }

func (Static) fragment()        {}
func (BasePath) fragment()      {}
func (Fuzzable) fragment()      {}
func (CustomPayload) fragment() {}
func (DynamicRef) fragment()    {}
func (AuthToken) fragment()     {}

// Template is an ordered, immutable list of fragments.
type Template struct {
	fragments []Fragment
}

func New(fragments ...Fragment) Template {
	cp := make([]Fragment, len(fragments))
	copy(cp, fragments)
	return Template{fragments: cp}
}

// Fragments returns a copy of the fragment list.
func (t Template) Fragments() []Fragment {
	cp := make([]Fragment, len(t.fragments))
	copy(cp, t.fragments)
	return cp
}

func (t Template) Len() int {
	return len(t.fragments)
}

// References lists the dynamic variables read by the template, in order of
// first appearance.
func (t Template) References() []string {
	var names []string
	seen := make(map[string]bool)
	for _, f := range t.fragments {
		if ref, ok := f.(DynamicRef); ok && !seen[ref.Variable] {
			seen[ref.Variable] = true
			names = append(names, ref.Variable)
		}
	}
	return names
}

// CustomPayloads lists the payload paths used by the template.
func (t Template) CustomPayloads() []string {
	var paths []string
	for _, f := range t.fragments {
		if cp, ok := f.(CustomPayload); ok {
			paths = append(paths, cp.Path)
		}
	}
	return paths
}
