// Package pipeline turns generated WGSL effect programs into hal render
// pipelines.
//
// Every pipeline shares one bind group layout:
//
//	binding 0: uniform buffer (resolution, texel size, user uniforms)
//	binding 1: texture_2d<f32> input frame
//	binding 2: filtering sampler
//
// and renders a full-screen triangle into a single RGBA8Unorm target. The
// fragment entry point is always fs_main.
package pipeline

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/fxnode/internal/cache"
)

// DefaultVertexSource is the built-in full-screen vertex stage.
//
//go:embed shaders/fullscreen.wgsl
var DefaultVertexSource string

const (
	// FragmentEntry is the fragment entry point every program must define.
	FragmentEntry = "fs_main"

	// DefaultVertexEntry is the entry point of DefaultVertexSource.
	DefaultVertexEntry = "vs_main"

	// TargetFormat is the colour format pipelines render into.
	TargetFormat = gputypes.TextureFormatRGBA8Unorm
)

var (
	// ErrUnknownVertexStage is returned by Build for a vertex stage name that
	// was never registered.
	ErrUnknownVertexStage = errors.New("pipeline: unknown vertex stage")

	// ErrVertexStageExists is returned when a vertex stage name is
	// registered twice.
	ErrVertexStageExists = errors.New("pipeline: vertex stage already registered")

	// ErrClosed is returned by Build after Close.
	ErrClosed = errors.New("pipeline: builder closed")
)

// Descriptor describes one pipeline to build.
type Descriptor struct {
	Label string

	// Fragment is the complete WGSL program holding the fs_main entry point.
	Fragment string

	// VertexStage names a stage registered with RegisterVertexStage. Empty
	// selects the default full-screen stage.
	VertexStage string

	// Uniforms are the uniform names in parameter-struct order.
	Uniforms []string

	// Fallback marks the error-indicator program. Fallback pipelines always
	// use the default vertex stage.
	Fallback bool
}

type vertexStage struct {
	source string
	entry  string
	module hal.ShaderModule
}

// Builder compiles effect programs on one device.
//
// Builder is safe for concurrent use. Compilation runs without holding the
// builder lock; only the shared layouts and vertex modules are guarded.
type Builder struct {
	device hal.Device
	logger *slog.Logger

	// modules caches fragment SPIR-V by program text.
	modules *cache.Cache[string, []uint32]

	mu         sync.Mutex
	closed     bool
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	stages     map[string]*vertexStage
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithLogger sets the logger used for build timings.
func WithLogger(l *slog.Logger) BuilderOption {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithCompileCacheSize sets how many compiled fragment programs are kept.
// Edits that return to a recent program text skip the compiler.
func WithCompileCacheSize(n int) BuilderOption {
	return func(b *Builder) {
		b.modules = cache.New[string, []uint32](n)
	}
}

// NewBuilder creates a builder for device.
func NewBuilder(device hal.Device, opts ...BuilderOption) *Builder {
	b := &Builder{
		device:  device,
		logger:  slog.New(nopHandler{}),
		modules: cache.New[string, []uint32](cache.DefaultCapacity),
		stages: map[string]*vertexStage{
			"": {source: DefaultVertexSource, entry: DefaultVertexEntry},
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// RegisterVertexStage makes a custom vertex stage available under name. The
// stage must output the FxVertexOutput layout: a position builtin and the
// uv coordinate at location 0. It is compiled on first use.
func (b *Builder) RegisterVertexStage(name, wgsl, entry string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name is the default stage", ErrVertexStageExists)
	}
	if entry == "" {
		entry = DefaultVertexEntry
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.stages[name]; ok {
		return fmt.Errorf("%w: %q", ErrVertexStageExists, name)
	}
	b.stages[name] = &vertexStage{source: wgsl, entry: entry}
	return nil
}

// Build compiles desc into a new pipeline holding one reference. It never
// touches previously built pipelines.
//
// A fragment the compiler rejects yields a *CompileError, as does a custom
// vertex stage that fails to compile.
func (b *Builder) Build(desc Descriptor) (*Pipeline, error) {
	start := time.Now()

	stageName := desc.VertexStage
	if desc.Fallback {
		stageName = ""
	}
	vs, err := b.vertexStage(stageName)
	if err != nil {
		return nil, err
	}

	words, cached := b.modules.Get(desc.Fragment)
	if !cached {
		words, err = compileSPIRV("fragment", desc.Label, desc.Fragment)
		if err != nil {
			return nil, err
		}
		b.modules.Set(desc.Fragment, words)
	}
	fragment, err := b.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  desc.Label + "_fragment",
		Source: hal.ShaderSource{SPIRV: words},
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: create fragment module: %w", err)
	}

	layout, pipeLayout, err := b.layouts()
	if err != nil {
		b.device.DestroyShaderModule(fragment)
		return nil, err
	}

	render, err := b.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: pipeLayout,
		Vertex: hal.VertexState{
			Module:     vs.module,
			EntryPoint: vs.entry,
		},
		Fragment: &hal.FragmentState{
			Module:     fragment,
			EntryPoint: FragmentEntry,
			Targets: []gputypes.ColorTargetState{
				{
					Format:    TargetFormat,
					WriteMask: gputypes.ColorWriteMaskAll,
				},
			},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		b.device.DestroyShaderModule(fragment)
		return nil, fmt.Errorf("pipeline: create render pipeline: %w", err)
	}

	p := &Pipeline{
		id:          nextID.Add(1),
		label:       desc.Label,
		source:      desc.Fragment,
		uniforms:    append([]string(nil), desc.Uniforms...),
		vertexStage: stageName,
		fallback:    desc.Fallback,
		device:      b.device,
		fragment:    fragment,
		render:      render,
		layout:      layout,
	}
	p.refs.Store(1)

	b.logger.Debug("pipeline: built",
		slog.String("label", desc.Label),
		slog.Uint64("id", p.id),
		slog.Bool("fallback", desc.Fallback),
		slog.Bool("cached", cached),
		slog.Duration("elapsed", time.Since(start)))
	return p, nil
}

// vertexStage returns the named stage, compiling its module on first use.
func (b *Builder) vertexStage(name string) (*vertexStage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	vs, ok := b.stages[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVertexStage, name)
	}
	if vs.module != nil {
		return vs, nil
	}

	label := "fx_vertex"
	if name != "" {
		label += "_" + name
	}
	words, err := compileSPIRV("vertex", label, vs.source)
	if err != nil {
		return nil, err
	}
	module, err := b.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{SPIRV: words},
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: create vertex module %q: %w", name, err)
	}
	vs.module = module
	return vs, nil
}

// layouts returns the shared bind group and pipeline layouts, creating them
// on first use.
func (b *Builder) layouts() (hal.BindGroupLayout, hal.PipelineLayout, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, nil, ErrClosed
	}
	if b.pipeLayout != nil {
		return b.bindLayout, b.pipeLayout, nil
	}

	bindLayout, err := b.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "fx_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
			{
				Binding:    1,
				Visibility: gputypes.ShaderStageFragment,
				Texture: &gputypes.TextureBindingLayout{
					SampleType:    gputypes.TextureSampleTypeFloat,
					ViewDimension: gputypes.TextureViewDimension2D,
				},
			},
			{
				Binding:    2,
				Visibility: gputypes.ShaderStageFragment,
				Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
			},
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("pipeline: create bind group layout: %w", err)
	}

	pipeLayout, err := b.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "fx_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{bindLayout},
	})
	if err != nil {
		b.device.DestroyBindGroupLayout(bindLayout)
		return nil, nil, fmt.Errorf("pipeline: create pipeline layout: %w", err)
	}

	b.bindLayout = bindLayout
	b.pipeLayout = pipeLayout
	return bindLayout, pipeLayout, nil
}

// Close destroys the shared layouts and vertex modules. Pipelines built by
// b must be released first.
func (b *Builder) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.modules.Clear()
	for _, vs := range b.stages {
		if vs.module != nil {
			b.device.DestroyShaderModule(vs.module)
			vs.module = nil
		}
	}
	if b.pipeLayout != nil {
		b.device.DestroyPipelineLayout(b.pipeLayout)
		b.pipeLayout = nil
	}
	if b.bindLayout != nil {
		b.device.DestroyBindGroupLayout(b.bindLayout)
		b.bindLayout = nil
	}
}

// CacheStats reports compile cache usage.
type CacheStats struct {
	Entries int
	Hits    uint64
	Misses  uint64
}

// CacheStats returns compile cache usage.
func (b *Builder) CacheStats() CacheStats {
	s := b.modules.Stats()
	return CacheStats{Entries: s.Len, Hits: s.Hits, Misses: s.Misses}
}
