// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package fxnode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/fxnode/rebuild"
	"github.com/gogpu/fxnode/render"
	"github.com/gogpu/fxnode/shadergen"
	"github.com/gogpu/fxnode/uniform"
)

// Node is a live effect node: one input frame in, one output frame out.
//
// Setters may be called from any goroutine while OnUpstreamFrameReady runs
// on the render path. Structural setters (code, raw flag, uniform set,
// vertex stage) rebuild the pipeline synchronously on the calling goroutine;
// the render path keeps drawing the previous pipeline until the new one is
// published.
type Node struct {
	name       string
	dispatcher render.Dispatcher
	machine    *rebuild.Machine
	uniforms   *uniform.Table
	logger     *slog.Logger
	onStale    func()

	// mu orders structural edits. It is held while a request is derived
	// and sequenced, never while it builds.
	mu          sync.Mutex
	closed      bool
	source      shadergen.Source
	vertexStage string

	dirty    atomic.Uint64 // bumped on every invalidation
	rendered atomic.Uint64 // value of dirty at the last successful render
}

// New creates a node and builds its initial program.
//
// A rejected initial program is not an error: the node starts Degraded and
// reports the diagnostic through Console. New fails for an invalid initial
// uniform set and when the fallback program cannot be built.
func New(builder rebuild.Builder, dispatcher render.Dispatcher, opts ...NodeOption) (*Node, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	table, err := uniform.NewTable(o.uniforms)
	if err != nil {
		return nil, err
	}

	logger := o.logger
	if logger == nil {
		logger = Logger()
	}
	logger = logger.With(slog.String("node", o.name))

	n := &Node{
		name:        o.name,
		dispatcher:  dispatcher,
		uniforms:    table,
		logger:      logger,
		onStale:     o.onStale,
		source:      shadergen.Source{Code: o.code, Raw: o.raw},
		vertexStage: o.vertexStage,
	}
	n.machine = rebuild.New(builder,
		rebuild.WithLogger(logger),
		rebuild.WithConsoleCallback(o.onConsole),
		rebuild.WithFatalHandler(o.onFatal),
		rebuild.WithPublishHook(func(rebuild.Snapshot) { n.invalidate() }),
	)

	if err := n.rebuild(func() error { return nil }); err != nil {
		_ = n.machine.Close()
		return nil, err
	}
	return n, nil
}

// rebuild applies edit and rebuilds with the resulting state. An edit error
// aborts without a rebuild.
func (n *Node) rebuild(edit func() error) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrClosed
	}
	if err := edit(); err != nil {
		n.mu.Unlock()
		return err
	}
	pending := n.machine.Begin(rebuild.Request{
		Label:       n.name,
		Source:      n.source,
		Uniforms:    n.uniforms.Names(),
		VertexStage: n.vertexStage,
	})
	n.mu.Unlock()

	_, err := pending.Run()
	if errors.Is(err, rebuild.ErrClosed) {
		return ErrClosed
	}
	return err
}

// invalidate marks the output stale and raises the stale hook.
func (n *Node) invalidate() {
	n.dirty.Add(1)
	if n.onStale != nil {
		n.onStale()
	}
}

// OnUpstreamFrameReady renders frame through the published pipeline at
// width x height. Zero width and height keep the input size.
//
// Uniform values are read when the frame is dispatched, so the output
// reflects every NotifyUniformValueChanged that returned before the call.
// A node whose program was rejected still renders: the output is the
// fallback colour.
func (n *Node) OnUpstreamFrameReady(ctx context.Context, frame *render.Frame, width, height int) (*render.Frame, error) {
	gen := n.dirty.Load()

	p, err := n.machine.Acquire()
	switch {
	case errors.Is(err, rebuild.ErrClosed):
		return nil, ErrClosed
	case err != nil:
		return nil, ErrNotRenderable
	}
	defer p.Release()

	values := n.uniforms.Gather(nil, p.Uniforms())
	out, err := n.dispatcher.Dispatch(ctx, p, frame, render.Params{
		Width:    width,
		Height:   height,
		Uniforms: values,
	})
	if err != nil {
		return nil, fmt.Errorf("fxnode: %s: dispatch: %w", n.name, err)
	}
	n.rendered.Store(gen)
	return out, nil
}

// NotifyCodeChanged replaces the effect code, keeping the raw flag.
func (n *Node) NotifyCodeChanged(code string) error {
	return n.rebuild(func() error {
		n.source.Code = code
		return nil
	})
}

// NotifyRawCodeChanged replaces the effect code and the raw flag together.
func (n *Node) NotifyRawCodeChanged(code string, raw bool) error {
	return n.rebuild(func() error {
		n.source = shadergen.Source{Code: code, Raw: raw}
		return nil
	})
}

// NotifyUniformsChanged replaces the uniform set. A set with a duplicate
// name fails with *uniform.DuplicateNameError and changes nothing.
func (n *Node) NotifyUniformsChanged(descs []uniform.Descriptor) error {
	return n.rebuild(func() error {
		return n.uniforms.Set(descs)
	})
}

// NotifyUniformValueChanged sets the value of an existing uniform. It never
// rebuilds; the next render samples the new value.
func (n *Node) NotifyUniformValueChanged(name string, value float32) error {
	if err := n.uniforms.SetValue(name, value); err != nil {
		return err
	}
	n.invalidate()
	return nil
}

// ResetUniform restores the default value of an existing uniform.
func (n *Node) ResetUniform(name string) error {
	if err := n.uniforms.Reset(name); err != nil {
		return err
	}
	n.invalidate()
	return nil
}

// SetVertexStage selects a registered vertex stage, "" for the default.
func (n *Node) SetVertexStage(name string) error {
	return n.rebuild(func() error {
		n.vertexStage = name
		return nil
	})
}

// Console returns the text of the current diagnostic.
func (n *Node) Console() (string, bool) { return n.machine.Console() }

// State returns the rebuild state.
func (n *Node) State() rebuild.State { return n.machine.Snapshot().State }

// Snapshot returns a consistent view of the rebuild state.
func (n *Node) Snapshot() rebuild.Snapshot { return n.machine.Snapshot() }

// NeedsRender reports whether a rebuild or value change happened since the
// last successful render.
func (n *Node) NeedsRender() bool { return n.dirty.Load() != n.rendered.Load() }

// GeneratedSource returns the program text of the published request.
func (n *Node) GeneratedSource() string { return n.machine.Snapshot().Generated.Text }

// Uniforms returns a copy of the uniform set with current values.
func (n *Node) Uniforms() []uniform.Descriptor { return n.uniforms.Descriptors() }

// Name returns the node name.
func (n *Node) Name() string { return n.name }

// Close releases the node's pipelines. Renders in flight finish normally.
func (n *Node) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrClosed
	}
	n.closed = true
	n.mu.Unlock()

	if err := n.machine.Close(); err != nil && !errors.Is(err, rebuild.ErrClosed) {
		return err
	}
	n.logger.Debug("fxnode: closed")
	return nil
}
