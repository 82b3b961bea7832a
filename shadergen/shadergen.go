// Package shadergen embeds a user-authored WGSL fragment and a set of uniform
// names into a complete effect program.
//
// In template mode the fragment is the body of the fs_main entry point. It
// sees the builtin aliases listed in [Builtins], one f32 alias per uniform,
// and a mutable pix initialised to the input sample; whatever pix holds when
// the fragment ends is written to the output. In raw mode the fragment is
// the whole program and is passed through untouched.
//
// Generation is pure text composition. Whether the fragment compiles is
// decided later by the pipeline builder.
package shadergen

import (
	_ "embed"
	"strings"
	"text/template"

	"golang.org/x/text/unicode/norm"
)

//go:embed templates/effect.wgsl.tmpl
var templateText string

var tmpl = template.Must(template.New("effect").Parse(templateText))

// Source is the user-authored part of an effect.
type Source struct {
	Code string
	Raw  bool
}

// Generated is a complete program produced by Generate.
type Generated struct {
	Text string

	// CodeLine is the 1-based line of Text on which the user fragment
	// starts. It is 1 in raw mode.
	CodeLine int

	// Uniforms are the uniform names in parameter-struct order. Raw programs
	// that read uniforms declare FxParams with the same layout themselves;
	// their names are passed through unchecked.
	Uniforms []string

	Raw bool
}

// UserLine maps a line of Text back to the corresponding line of the user
// fragment. It returns 0 for lines that belong to the template.
func (g Generated) UserLine(line int) int {
	if g.Raw {
		return line
	}
	last := strings.Count(g.Text, "\n") - footerLines
	if line < g.CodeLine || line > last {
		return 0
	}
	return line - g.CodeLine + 1
}

// footerLines is the number of lines the footer adds after the fragment.
var footerLines = strings.Count(execute("footer", nil), "\n")

// Generate produces the program text for src with the given uniform names.
// The same inputs always yield byte-identical text.
func Generate(src Source, names []string) (Generated, error) {
	uniforms := make([]string, len(names))
	for i, name := range names {
		uniforms[i] = norm.NFC.String(name)
	}
	if src.Raw {
		return Generated{Text: src.Code, CodeLine: 1, Uniforms: uniforms, Raw: true}, nil
	}

	for _, name := range uniforms {
		if reason := checkName(name); reason != "" {
			return Generated{}, &TemplateError{Name: name, Reason: reason}
		}
	}

	header := execute("header", struct{ Uniforms []string }{uniforms})
	code := norm.NFC.String(src.Code)
	if !strings.HasSuffix(code, "\n") {
		code += "\n"
	}

	var b strings.Builder
	b.Grow(len(header) + len(code) + 32)
	b.WriteString(header)
	b.WriteString(code)
	b.WriteString(execute("footer", nil))

	return Generated{
		Text:     b.String(),
		CodeLine: strings.Count(header, "\n") + 1,
		Uniforms: uniforms,
	}, nil
}

// execute runs one of the embedded templates. The templates only range over
// string slices, so a failure is a bug in the embedded text.
func execute(name string, data any) string {
	var b strings.Builder
	if err := tmpl.ExecuteTemplate(&b, name, data); err != nil {
		panic("shadergen: " + err.Error())
	}
	return b.String()
}
