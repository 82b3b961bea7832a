package shadergen

import "fmt"

// TemplateError reports a uniform name that cannot be embedded into the
// effect template. It is detected before any compilation is attempted.
type TemplateError struct {
	Name   string
	Reason string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("shadergen: uniform %q: %s", e.Name, e.Reason)
}
