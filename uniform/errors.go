package uniform

import "errors"

// ErrEmptyName is returned when a descriptor has an empty name.
var ErrEmptyName = errors.New("uniform: empty name")

// DuplicateNameError is returned by Table.Set when two descriptors share a
// name. Names are compared after NFC normalization.
type DuplicateNameError struct {
	Name  string
	First int // index of the first occurrence
	Index int // index of the duplicate
}

func (e *DuplicateNameError) Error() string {
	return "uniform: duplicate name " + quote(e.Name)
}

// UnknownUniformError is returned by value operations on a name that is not
// part of the current set.
type UnknownUniformError struct {
	Name string
}

func (e *UnknownUniformError) Error() string {
	return "uniform: unknown uniform " + quote(e.Name)
}

func quote(s string) string { return `"` + s + `"` }
