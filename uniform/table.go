// Package uniform holds the ordered set of named scalar parameters bound into
// an effect program.
//
// A Table separates structural state (the names, their count and order) from
// value state. Replacing the set with Set is structural and requires the
// program text to be regenerated and recompiled. Changing a value with
// SetValue is not: values are looked up by name when a frame is dispatched,
// so a compiled pipeline picks up the new value on its next draw.
package uniform

import (
	"sync"

	"golang.org/x/text/unicode/norm"
)

// Descriptor describes one scalar parameter.
type Descriptor struct {
	// Name is the identifier used in generated shader text and in the
	// binding table. Unique within a set.
	Name string

	// Value is the current value bound at draw time.
	Value float32

	// Default is the value restored by Table.Reset.
	Default float32
}

// Table is the uniform binding table of a node.
//
// Table is safe for concurrent use. Value writes and structural writes share
// a lock that is never held while a program is compiled.
type Table struct {
	mu      sync.RWMutex
	descs   []Descriptor
	index   map[string]int
	version uint64
}

// NewTable creates a table holding descs. It fails like Set.
func NewTable(descs []Descriptor) (*Table, error) {
	t := &Table{index: map[string]int{}}
	if err := t.Set(descs); err != nil {
		return nil, err
	}
	return t, nil
}

// Normalize returns the canonical (NFC) form of a uniform name.
func Normalize(name string) string {
	return norm.NFC.String(name)
}

// Set replaces the whole set. It is always a structural change and bumps
// Version. On error the previous set is left untouched.
func (t *Table) Set(descs []Descriptor) error {
	next := make([]Descriptor, len(descs))
	index := make(map[string]int, len(descs))
	for i, d := range descs {
		d.Name = Normalize(d.Name)
		if d.Name == "" {
			return ErrEmptyName
		}
		if first, ok := index[d.Name]; ok {
			return &DuplicateNameError{Name: d.Name, First: first, Index: i}
		}
		index[d.Name] = i
		next[i] = d
	}

	t.mu.Lock()
	t.descs = next
	t.index = index
	t.version++
	t.mu.Unlock()
	return nil
}

// SetValue updates the current value of an existing uniform. It never
// changes Version.
func (t *Table) SetValue(name string, v float32) error {
	name = Normalize(name)
	t.mu.Lock()
	defer t.mu.Unlock()
	i, ok := t.index[name]
	if !ok {
		return &UnknownUniformError{Name: name}
	}
	t.descs[i].Value = v
	return nil
}

// Reset restores the default value of an existing uniform.
func (t *Table) Reset(name string) error {
	name = Normalize(name)
	t.mu.Lock()
	defer t.mu.Unlock()
	i, ok := t.index[name]
	if !ok {
		return &UnknownUniformError{Name: name}
	}
	t.descs[i].Value = t.descs[i].Default
	return nil
}

// Value returns the current value of name.
func (t *Table) Value(name string) (float32, bool) {
	name = Normalize(name)
	t.mu.RLock()
	defer t.mu.RUnlock()
	i, ok := t.index[name]
	if !ok {
		return 0, false
	}
	return t.descs[i].Value, true
}

// Descriptors returns a copy of the ordered set.
func (t *Table) Descriptors() []Descriptor {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Descriptor, len(t.descs))
	copy(out, t.descs)
	return out
}

// Names returns the ordered uniform names.
func (t *Table) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, len(t.descs))
	for i, d := range t.descs {
		names[i] = d.Name
	}
	return names
}

// Len returns the number of uniforms in the set.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.descs)
}

// Version returns a counter bumped by every successful Set.
func (t *Table) Version() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.version
}

// Gather appends the current values for names to dst, in order, and returns
// the extended slice. Names missing from the set contribute 0; this happens
// when a pipeline compiled against an older set is still being drawn while
// its replacement builds.
func (t *Table) Gather(dst []float32, names []string) []float32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, name := range names {
		var v float32
		if i, ok := t.index[name]; ok {
			v = t.descs[i].Value
		}
		dst = append(dst, v)
	}
	return dst
}
