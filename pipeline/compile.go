// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package pipeline

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gogpu/naga"
)

// CompileError reports a shader the compiler rejected. Message is the
// compiler's own text, unmodified. Line and Column are 1-based positions in
// the compiled text, or 0 when the compiler did not report one.
type CompileError struct {
	Stage    string // "fragment" or "vertex"
	Label    string
	Message  string
	Line     int
	Column   int
	Fragment string // offending source line, if Line is known

	Err error
}

func (e *CompileError) Error() string {
	var b strings.Builder
	b.WriteString("pipeline: compile ")
	b.WriteString(e.Stage)
	if e.Label != "" {
		b.WriteString(" ")
		b.WriteString(strconv.Quote(e.Label))
	}
	if e.Line > 0 {
		fmt.Fprintf(&b, " at %d:%d", e.Line, e.Column)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	return b.String()
}

func (e *CompileError) Unwrap() error { return e.Err }

// Position formats seen in compiler messages, most specific first.
var positionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)line\s+(\d+)(?:\s*,?\s*col(?:umn)?\s+(\d+))?`),
	regexp.MustCompile(`(\d+):(\d+)`),
}

// parsePosition extracts a line and column from a compiler message.
func parsePosition(msg string) (line, col int) {
	for _, re := range positionPatterns {
		m := re.FindStringSubmatch(msg)
		if m == nil {
			continue
		}
		line, _ = strconv.Atoi(m[1])
		if len(m) > 2 && m[2] != "" {
			col, _ = strconv.Atoi(m[2])
		}
		return line, col
	}
	return 0, 0
}

// sourceLine returns the 1-based line n of src, trimmed, or "".
func sourceLine(src string, n int) string {
	if n <= 0 {
		return ""
	}
	lines := strings.Split(src, "\n")
	if n > len(lines) {
		return ""
	}
	return strings.TrimSpace(lines[n-1])
}

// compileSPIRV compiles WGSL source to SPIR-V words. Compiler rejections
// are returned as *CompileError.
func compileSPIRV(stage, label, src string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(src)
	if err != nil {
		msg := err.Error()
		line, col := parsePosition(msg)
		return nil, &CompileError{
			Stage:    stage,
			Label:    label,
			Message:  msg,
			Line:     line,
			Column:   col,
			Fragment: sourceLine(src, line),
			Err:      err,
		}
	}

	// SPIR-V is little-endian 32-bit words
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return words, nil
}

// Validate compiles a complete WGSL program without a device. It returns
// nil or a *CompileError.
func Validate(wgsl string) error {
	_, err := compileSPIRV("fragment", "", wgsl)
	return err
}
