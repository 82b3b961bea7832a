// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package pipeline

import (
	"sync/atomic"

	"github.com/gogpu/wgpu/hal"
)

var nextID atomic.Uint64

// Pipeline is a compiled effect program ready to draw.
//
// A Pipeline is reference counted. It is returned by Builder.Build holding
// one reference owned by the caller. Every Retain or successful TryRetain
// must be paired with a Release; the hal objects are destroyed when the
// last reference is released.
type Pipeline struct {
	id          uint64
	label       string
	source      string
	uniforms    []string
	vertexStage string
	fallback    bool

	refs atomic.Int64

	device   hal.Device
	fragment hal.ShaderModule
	render   hal.RenderPipeline
	layout   hal.BindGroupLayout // shared, owned by the Builder
}

// ID identifies the pipeline. IDs are unique within the process.
func (p *Pipeline) ID() uint64 { return p.id }

// Label returns the label the pipeline was built with.
func (p *Pipeline) Label() string { return p.label }

// Source returns the compiled fragment program text.
func (p *Pipeline) Source() string { return p.source }

// Uniforms returns the uniform names in parameter-struct order. Values are
// packed in this order at draw time.
func (p *Pipeline) Uniforms() []string { return p.uniforms }

// VertexStage returns the vertex stage name, "" for the default stage.
func (p *Pipeline) VertexStage() string { return p.vertexStage }

// IsFallback reports whether p was built from FallbackSource.
func (p *Pipeline) IsFallback() bool { return p.fallback }

// RenderPipeline returns the hal render pipeline. Valid while a reference
// is held.
func (p *Pipeline) RenderPipeline() hal.RenderPipeline { return p.render }

// BindGroupLayout returns the layout of bind group 0.
func (p *Pipeline) BindGroupLayout() hal.BindGroupLayout { return p.layout }

// Retain adds a reference. The caller must already hold one.
func (p *Pipeline) Retain() {
	if p.refs.Add(1) <= 1 {
		panic("pipeline: Retain on a released pipeline")
	}
}

// TryRetain adds a reference unless the pipeline has already been released.
// It is used by readers that reach a pipeline through a shared slot and do
// not yet hold a reference.
func (p *Pipeline) TryRetain() bool {
	for {
		n := p.refs.Load()
		if n <= 0 {
			return false
		}
		if p.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Release drops a reference and destroys the hal objects when it was the
// last one.
func (p *Pipeline) Release() {
	n := p.refs.Add(-1)
	switch {
	case n > 0:
		return
	case n < 0:
		panic("pipeline: Release of a released pipeline")
	}
	if p.render != nil {
		p.device.DestroyRenderPipeline(p.render)
		p.render = nil
	}
	if p.fragment != nil {
		p.device.DestroyShaderModule(p.fragment)
		p.fragment = nil
	}
}

// Released reports whether the last reference has been dropped.
func (p *Pipeline) Released() bool { return p.refs.Load() <= 0 }
