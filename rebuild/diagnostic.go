package rebuild

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/fxnode/pipeline"
	"github.com/gogpu/fxnode/shadergen"
)

// Diagnostic describes why the last rebuild did not produce an active
// pipeline.
type Diagnostic struct {
	// Message is the embedder or compiler message, unmodified.
	Message string

	// Fragment is the offending line of program text, when known.
	Fragment string

	// Line and Column locate the error in the generated program text.
	Line   int
	Column int

	// UserLine is Line mapped back to the user's code, 0 when the error
	// lies outside it.
	UserLine int

	// Err is the underlying error.
	Err error
}

// String formats the diagnostic as console text.
func (d Diagnostic) String() string {
	var b strings.Builder
	switch {
	case d.UserLine > 0:
		fmt.Fprintf(&b, "line %d: ", d.UserLine)
	case d.Line > 0:
		fmt.Fprintf(&b, "generated line %d: ", d.Line)
	}
	b.WriteString(d.Message)
	if d.Fragment != "" {
		b.WriteString("\n    ")
		b.WriteString(d.Fragment)
	}
	return b.String()
}

// diagnose converts an embed or build failure into a Diagnostic.
func diagnose(err error, gen shadergen.Generated) Diagnostic {
	d := Diagnostic{Message: err.Error(), Err: err}

	var ce *pipeline.CompileError
	if errors.As(err, &ce) {
		d.Message = ce.Message
		d.Line = ce.Line
		d.Column = ce.Column
		d.Fragment = ce.Fragment
		if ce.Stage == "fragment" {
			d.UserLine = gen.UserLine(ce.Line)
		}
		return d
	}

	var te *shadergen.TemplateError
	if errors.As(err, &te) {
		d.Message = fmt.Sprintf("uniform %q %s", te.Name, te.Reason)
	}
	return d
}
