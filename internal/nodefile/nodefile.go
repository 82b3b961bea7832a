// Package nodefile loads effect node definitions from HCL files.
//
// A file holds one or more effect blocks:
//
//	effect "grade" {
//	  code = "pix = vec4<f32>(pow(input.rgb, vec3<f32>(gamma)), input.a);"
//
//	  uniform "gamma" {
//	    value   = 1 / 2.2
//	    default = 1
//	  }
//	}
//
// Numeric attributes are expressions evaluated with the variables pi and tau
// and the functions abs, ceil, floor, log, max, min and pow.
package nodefile

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"

	"github.com/gogpu/fxnode"
	"github.com/gogpu/fxnode/uniform"
)

// ErrNoEffects is returned for a file without effect blocks.
var ErrNoEffects = errors.New("nodefile: no effect blocks")

// Effect is one decoded effect block.
type Effect struct {
	Name        string
	Code        string
	Raw         bool
	VertexStage string
	Uniforms    []uniform.Descriptor
}

// Options returns the node options that create a node for e.
func (e Effect) Options() []fxnode.NodeOption {
	opts := []fxnode.NodeOption{
		fxnode.WithName(e.Name),
		fxnode.WithUniforms(e.Uniforms...),
		fxnode.WithVertexStage(e.VertexStage),
	}
	if e.Raw {
		return append(opts, fxnode.WithRawCode(e.Code))
	}
	return append(opts, fxnode.WithCode(e.Code))
}

type hclFile struct {
	Effects []*hclEffect `hcl:"effect,block"`
}

type hclEffect struct {
	Name        string        `hcl:"name,label"`
	Code        *string       `hcl:"code,optional"`
	Preset      *string       `hcl:"preset,optional"`
	Raw         bool          `hcl:"raw,optional"`
	VertexStage string        `hcl:"vertex_stage,optional"`
	Uniforms    []*hclUniform `hcl:"uniform,block"`
}

type hclUniform struct {
	Name    string   `hcl:"name,label"`
	Value   *float64 `hcl:"value,optional"`
	Default *float64 `hcl:"default,optional"`
}

var presets = map[string]string{
	"passthrough":   fxnode.Passthrough,
	"luma_to_alpha": fxnode.LumaToAlpha,
	"ignore_alpha":  fxnode.IgnoreAlpha,
	"premultiply":   fxnode.Premultiply,
}

// EvalContext returns the context numeric expressions are evaluated in.
func EvalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"pi":  cty.NumberFloatVal(math.Pi),
			"tau": cty.NumberFloatVal(2 * math.Pi),
		},
		Functions: map[string]function.Function{
			"abs":   stdlib.AbsoluteFunc,
			"ceil":  stdlib.CeilFunc,
			"floor": stdlib.FloorFunc,
			"log":   stdlib.LogFunc,
			"max":   stdlib.MaxFunc,
			"min":   stdlib.MinFunc,
			"pow":   stdlib.PowFunc,
		},
	}
}

// Load reads and decodes the file at path.
func Load(path string) ([]Effect, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("nodefile: %w", err)
	}
	return Parse(src, path)
}

// Parse decodes src. filename is used in diagnostics only.
func Parse(src []byte, filename string) ([]Effect, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("nodefile: failed to parse %s: %w", filename, diags)
	}

	var parsed hclFile
	diags = gohcl.DecodeBody(file.Body, EvalContext(), &parsed)
	if diags.HasErrors() {
		return nil, fmt.Errorf("nodefile: failed to decode %s: %w", filename, diags)
	}
	if len(parsed.Effects) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoEffects, filename)
	}

	seen := make(map[string]bool, len(parsed.Effects))
	effects := make([]Effect, 0, len(parsed.Effects))
	for _, pe := range parsed.Effects {
		if seen[pe.Name] {
			return nil, fmt.Errorf("nodefile: %s: duplicate effect %q", filename, pe.Name)
		}
		seen[pe.Name] = true

		e, err := pe.effect()
		if err != nil {
			return nil, fmt.Errorf("nodefile: %s: effect %q: %w", filename, pe.Name, err)
		}
		effects = append(effects, e)
	}
	return effects, nil
}

func (pe *hclEffect) effect() (Effect, error) {
	e := Effect{
		Name:        pe.Name,
		Code:        fxnode.Passthrough,
		Raw:         pe.Raw,
		VertexStage: pe.VertexStage,
	}
	switch {
	case pe.Code != nil && pe.Preset != nil:
		return Effect{}, errors.New("code and preset are mutually exclusive")
	case pe.Code != nil:
		e.Code = *pe.Code
	case pe.Preset != nil:
		code, ok := presets[*pe.Preset]
		if !ok {
			return Effect{}, fmt.Errorf("unknown preset %q", *pe.Preset)
		}
		if pe.Raw {
			return Effect{}, errors.New("a preset cannot be raw")
		}
		e.Code = code
	}

	for _, pu := range pe.Uniforms {
		d := uniform.Descriptor{Name: pu.Name}
		switch {
		case pu.Value != nil && pu.Default != nil:
			d.Value, d.Default = float32(*pu.Value), float32(*pu.Default)
		case pu.Value != nil:
			d.Value, d.Default = float32(*pu.Value), float32(*pu.Value)
		case pu.Default != nil:
			d.Value, d.Default = float32(*pu.Default), float32(*pu.Default)
		}
		e.Uniforms = append(e.Uniforms, d)
	}
	// Duplicate uniform names.
	if _, err := uniform.NewTable(e.Uniforms); err != nil {
		return Effect{}, err
	}
	return e, nil
}
