package request

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrSealed    = errors.New("request collection is sealed")
	ErrDuplicate = errors.New("duplicate request")
)

// Collection is an ordered list of descriptors. It is append-only until
// sealed and read-only afterwards.
type Collection struct {
	mu          sync.RWMutex
	descriptors []*Descriptor
	keys        map[string]bool
	declared    map[string]bool
	sealed      bool
}

func NewCollection() *Collection {
	return &Collection{
		keys:     make(map[string]bool),
		declared: make(map[string]bool),
	}
}

func (c *Collection) Add(d *Descriptor) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sealed {
		return ErrSealed
	}
	if d == nil {
		return fmt.Errorf("nil descriptor")
	}
	key := d.ID().Key()
	if c.keys[key] {
		return fmt.Errorf("%w: %s", ErrDuplicate, key)
	}
	c.keys[key] = true
	c.descriptors = append(c.descriptors, d)
	return nil
}

// Declare records the dynamic variables the collection is expected to use.
// Once any name is declared, Lint reports reads and writes of undeclared
// variables.
func (c *Collection) Declare(names ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sealed {
		return ErrSealed
	}
	for _, name := range names {
		if name == "" {
			return fmt.Errorf("empty variable name")
		}
		c.declared[name] = true
	}
	return nil
}

// Declared returns the declared variables in sorted order.
func (c *Collection) Declared() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.declared))
	for name := range c.declared {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Seal forbids further additions. Sealing twice is harmless.
func (c *Collection) Seal() {
	c.mu.Lock()
	c.sealed = true
	c.mu.Unlock()
}

func (c *Collection) Sealed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sealed
}

func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.descriptors)
}

func (c *Collection) At(i int) *Descriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.descriptors[i]
}

// All returns the descriptors in declared order.
func (c *Collection) All() []*Descriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cp := make([]*Descriptor, len(c.descriptors))
	copy(cp, c.descriptors)
	return cp
}

// Issue is an ordering problem found by Lint.
type Issue struct {
	Index    int
	Request  ID
	Variable string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("#%d %s: %s", i.Index+1, i.Request.Key(), i.Message)
}

// Lint reports readers positioned before every writer of their variable,
// variables that are read but never written and, when the collection has
// declared variables, reads or writes of names outside that set. Order is
// never changed: the collection executes exactly as declared.
func (c *Collection) Lint() []Issue {
	descriptors := c.All()
	declared := c.Declared()
	known := make(map[string]bool, len(declared))
	for _, name := range declared {
		known[name] = true
	}
	undeclared := func(i int, d *Descriptor, v, verb string) Issue {
		return Issue{
			Index:    i,
			Request:  d.ID(),
			Variable: v,
			Message:  fmt.Sprintf("%s %q which is not declared", verb, v),
		}
	}

	writers := make(map[string]int)
	for i, d := range descriptors {
		for _, v := range d.Writes() {
			if _, ok := writers[v]; !ok {
				writers[v] = i
			}
		}
	}

	var issues []Issue
	for i, d := range descriptors {
		if len(known) > 0 {
			for _, v := range d.Writes() {
				if !known[v] {
					issues = append(issues, undeclared(i, d, v, "writes"))
				}
			}
		}
		for _, v := range d.Reads() {
			if len(known) > 0 && !known[v] {
				issues = append(issues, undeclared(i, d, v, "reads"))
			}
			first, ok := writers[v]
			switch {
			case !ok:
				issues = append(issues, Issue{
					Index:    i,
					Request:  d.ID(),
					Variable: v,
					Message:  fmt.Sprintf("reads %q which no request writes", v),
				})
			case first >= i:
				issues = append(issues, Issue{
					Index:    i,
					Request:  d.ID(),
					Variable: v,
					Message:  fmt.Sprintf("reads %q before its writer %s", v, descriptors[first].ID().Key()),
				})
			}
		}
	}
	return issues
}
