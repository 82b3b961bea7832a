package shadergen

import (
	"strings"
	"unicode"
)

// Builtins lists the aliases the template declares ahead of the user
// fragment, in declaration order.
var Builtins = []string{"w", "h", "wu", "hv", "uv", "u", "v", "xy", "pi", "input", "pix"}

// Identifiers used by the template itself. Names with a reserved prefix are
// rejected as a whole so the template can grow without breaking effects.
var (
	reservedPrefixes = []string{"__", "fx_", "Fx"}
	reservedNames    = []string{"fs_main", "vs_main"}
)

// WGSL keywords and predeclared type names that would shadow or break the
// generated declarations.
var wgslReserved = map[string]bool{
	"alias": true, "break": true, "case": true, "const": true, "const_assert": true,
	"continue": true, "continuing": true, "default": true, "diagnostic": true,
	"discard": true, "else": true, "enable": true, "false": true, "fn": true,
	"for": true, "if": true, "let": true, "loop": true, "override": true,
	"requires": true, "return": true, "struct": true, "switch": true, "true": true,
	"var": true, "while": true,

	"bool": true, "f16": true, "f32": true, "i32": true, "u32": true,
	"vec2": true, "vec3": true, "vec4": true, "mat2x2": true, "mat3x3": true,
	"mat4x4": true, "array": true, "atomic": true, "ptr": true, "sampler": true,
	"texture_2d": true,
}

// checkName reports why name cannot be used as a uniform identifier, or ""
// when it can.
func checkName(name string) string {
	if !validIdent(name) {
		return "not a valid WGSL identifier"
	}
	if name == "_" {
		return "the single underscore is not an identifier"
	}
	for _, p := range reservedPrefixes {
		if strings.HasPrefix(name, p) {
			return "uses the reserved prefix " + p
		}
	}
	for _, b := range Builtins {
		if name == b {
			return "collides with a builtin alias"
		}
	}
	for _, r := range reservedNames {
		if name == r {
			return "collides with a template identifier"
		}
	}
	if wgslReserved[name] {
		return "is a WGSL keyword or type name"
	}
	return ""
}

func validIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', unicode.IsLetter(r):
		case i > 0 && (unicode.IsDigit(r) || unicode.In(r, unicode.Mn, unicode.Mc)):
		default:
			return false
		}
	}
	return true
}
