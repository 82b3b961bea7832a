package shadergen

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestGenerateDeterministic(t *testing.T) {
	src := Source{Code: "pix = vec4<f32>(pow(input.rgb, vec3<f32>(gamma)), input.a);"}
	names := []string{"gamma", "gain"}

	a, err := Generate(src, names)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	b, err := Generate(src, names)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if a.Text != b.Text {
		t.Error("Generate produced different text for identical inputs")
	}
	if diff := cmp.Diff(names, a.Uniforms); diff != "" {
		t.Errorf("Uniforms mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerateTemplate(t *testing.T) {
	g, err := Generate(Source{Code: "pix = input;"}, []string{"gamma"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for _, want := range []string{
		"gamma: f32,",
		"let gamma: f32 = fx_params.gamma;",
		"fn fs_main(",
		"var pix: vec4<f32> = input;",
		"return pix;",
	} {
		if !strings.Contains(g.Text, want) {
			t.Errorf("generated text is missing %q", want)
		}
	}
	if !strings.HasSuffix(g.Text, "}\n") {
		t.Errorf("generated text does not end with the closing brace: %q", g.Text[len(g.Text)-16:])
	}
}

func TestGenerateCodeLine(t *testing.T) {
	code := "let k = 2.0;\npix = input * k;"
	g, err := Generate(Source{Code: code}, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	lines := strings.Split(g.Text, "\n")
	if got := lines[g.CodeLine-1]; got != "let k = 2.0;" {
		t.Errorf("line %d = %q, want the first fragment line", g.CodeLine, got)
	}
	if got := g.UserLine(g.CodeLine + 1); got != 2 {
		t.Errorf("UserLine(CodeLine+1) = %d, want 2", got)
	}
	if got := g.UserLine(g.CodeLine - 1); got != 0 {
		t.Errorf("UserLine in header = %d, want 0", got)
	}
	if got := g.UserLine(g.CodeLine + 2); got != 0 {
		t.Errorf("UserLine in footer = %d, want 0", got)
	}
}

func TestGenerateRaw(t *testing.T) {
	code := "@fragment fn main() -> @location(0) vec4<f32> { return vec4<f32>(1.0); }"
	g, err := Generate(Source{Code: code, Raw: true}, []string{"gain", "__own"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if g.Text != code {
		t.Errorf("raw text = %q, want verbatim", g.Text)
	}
	if diff := cmp.Diff([]string{"gain", "__own"}, g.Uniforms); diff != "" {
		t.Errorf("raw Uniforms mismatch (-want +got):\n%s", diff)
	}
	if g.UserLine(3) != 3 {
		t.Errorf("raw UserLine(3) = %d", g.UserLine(3))
	}
}

func TestGenerateRejectsNames(t *testing.T) {
	tests := []struct {
		name string
	}{
		{"input"},
		{"pix"},
		{"uv"},
		{"__hidden"},
		{"fx_params"},
		{"FxParams"},
		{"fs_main"},
		{"1st"},
		{"with space"},
		{"let"},
		{"f32"},
		{"_"},
		{""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Generate(Source{Code: "pix = input;"}, []string{"ok", tt.name})
			var te *TemplateError
			if !errors.As(err, &te) {
				t.Fatalf("Generate error = %v, want *TemplateError", err)
			}
			if te.Name != tt.name {
				t.Errorf("TemplateError.Name = %q, want %q", te.Name, tt.name)
			}
		})
	}
}

func TestGenerateAcceptsNames(t *testing.T) {
	for _, name := range []string{"gamma", "_gain", "mix2", "caf\u00e9", "fx", "pix2"} {
		if _, err := Generate(Source{Code: "pix = input;"}, []string{name}); err != nil {
			t.Errorf("Generate(%q): %v", name, err)
		}
	}
}

func TestGenerateNormalizesNames(t *testing.T) {
	g, err := Generate(Source{Code: "pix = input;"}, []string{"cafe\u0301"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if g.Uniforms[0] != "caf\u00e9" {
		t.Errorf("Uniforms[0] = %q, want NFC form", g.Uniforms[0])
	}
}
