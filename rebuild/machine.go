// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package rebuild keeps an effect node renderable while its program is
// edited.
//
// A Machine turns every structural change into a new pipeline and publishes
// it through an atomic slot. When the user program is rejected the machine
// publishes a fallback pipeline and a diagnostic instead, so the render path
// always has something to draw. Only a failure of the fallback itself is
// fatal.
//
// Every Rebuild takes a sequence number. A build publishes only if no newer
// Rebuild was requested in the meantime; stale results are released without
// being reported.
package rebuild

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/fxnode/pipeline"
	"github.com/gogpu/fxnode/shadergen"
)

// Builder builds pipelines. *pipeline.Builder implements it.
type Builder interface {
	Build(desc pipeline.Descriptor) (*pipeline.Pipeline, error)
}

// Request is one structural change.
type Request struct {
	// Label names the pipeline in logs and hal object labels.
	Label string

	Source shadergen.Source

	// Uniforms are the uniform names in order.
	Uniforms []string

	// VertexStage selects a registered vertex stage, "" for the default.
	VertexStage string
}

// Snapshot is a consistent view of a machine.
type Snapshot struct {
	State State

	// Seq is the sequence number of the published request, 0 before the
	// first publication.
	Seq uint64

	// PipelineID is the ID of the published pipeline, 0 when none.
	PipelineID uint64

	// Generated is the program text of the published request.
	Generated shadergen.Generated

	// Diagnostic is set in the Degraded state and after a fatal fallback
	// failure.
	Diagnostic *Diagnostic
}

// Machine is the fault-tolerant rebuild state machine of one node.
//
// Rebuild may be called from any goroutine; Acquire may run concurrently
// with it. Builds run without holding the machine lock.
type Machine struct {
	builder Builder
	logger  *slog.Logger

	onConsole func(string)
	onPublish func(Snapshot)
	onFatal   func(error)

	requested atomic.Uint64
	slot      atomic.Pointer[pipeline.Pipeline] // holds one reference

	mu        sync.Mutex
	closed    bool
	state     State
	published uint64
	generated shadergen.Generated
	diag      *Diagnostic

	fallbackMu     sync.Mutex
	fallback       *pipeline.Pipeline // holds one reference
	fallbackClosed bool
}

// New creates a machine in the Building state. Nothing is renderable until
// the first Rebuild completes.
func New(builder Builder, opts ...Option) *Machine {
	m := &Machine{
		builder: builder,
		logger:  slog.New(nopHandler{}),
		state:   Building,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Rebuild embeds and builds req and publishes the outcome. It is
// Begin(req).Run().
//
// User errors never fail Rebuild: a rejected program publishes the fallback
// and a diagnostic. The returned error is ErrClosed or a
// *FatalFallbackError. The returned snapshot is the machine state after the
// call, which is not req's outcome if a newer request superseded it.
func (m *Machine) Rebuild(req Request) (Snapshot, error) {
	return m.Begin(req).Run()
}

// Pending is a structural change that has been ordered but not built.
type Pending struct {
	m   *Machine
	seq uint64
	req Request
}

// Begin orders req after every request begun before it. Callers that derive
// req from shared state call Begin while holding the lock guarding that
// state, so request order matches the order of the edits, and Run after
// releasing it.
func (m *Machine) Begin(req Request) *Pending {
	return &Pending{m: m, seq: m.requested.Add(1), req: req}
}

// Seq returns the request sequence number.
func (p *Pending) Seq() uint64 { return p.seq }

// Run builds the request and publishes the outcome; see Rebuild.
func (p *Pending) Run() (Snapshot, error) {
	return p.m.run(p.seq, p.req)
}

func (m *Machine) run(seq uint64, req Request) (Snapshot, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Snapshot{}, ErrClosed
	}
	if seq == m.requested.Load() {
		m.state = Building
	}
	m.mu.Unlock()

	gen, err := shadergen.Generate(req.Source, req.Uniforms)
	if err == nil {
		var p *pipeline.Pipeline
		p, err = m.builder.Build(pipeline.Descriptor{
			Label:       req.Label,
			Fragment:    gen.Text,
			VertexStage: req.VertexStage,
			Uniforms:    gen.Uniforms,
		})
		if err == nil {
			return m.publish(seq, p, gen, nil), nil
		}
	}

	diag := diagnose(err, gen)
	fb, fbErr := m.fallbackPipeline(req.Label)
	if fbErr != nil {
		return m.fail(seq, req.Label, gen, diag, fbErr)
	}
	return m.publish(seq, fb, gen, &diag), nil
}

// publish swaps p into the slot if seq is still the latest request. The
// slot takes over the caller's reference to p.
func (m *Machine) publish(seq uint64, p *pipeline.Pipeline, gen shadergen.Generated, diag *Diagnostic) Snapshot {
	m.mu.Lock()
	if m.closed || seq != m.requested.Load() {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		p.Release()
		m.logger.Debug("rebuild: discarded stale build",
			slog.Uint64("seq", seq), slog.Uint64("pipeline", p.ID()))
		return snap
	}

	old := m.slot.Swap(p)
	m.published = seq
	m.generated = gen
	m.diag = diag
	if diag == nil {
		m.state = Active
	} else {
		m.state = Degraded
	}
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if old != nil {
		old.Release()
	}

	if diag != nil {
		m.logger.Warn("rebuild: program rejected, fallback published",
			slog.String("label", p.Label()), slog.String("diagnostic", diag.String()))
		if m.onConsole != nil {
			m.onConsole(diag.String())
		}
	} else {
		m.logger.Debug("rebuild: published",
			slog.String("label", p.Label()), slog.Uint64("seq", seq), slog.Uint64("pipeline", p.ID()))
	}
	if m.onPublish != nil {
		m.onPublish(snap)
	}
	return snap
}

// fail handles a fallback build failure for request seq.
func (m *Machine) fail(seq uint64, label string, gen shadergen.Generated, diag Diagnostic, cause error) (Snapshot, error) {
	m.mu.Lock()
	if m.closed || seq != m.requested.Load() {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap, nil
	}
	old := m.slot.Swap(nil)
	m.published = seq
	m.generated = gen
	m.diag = &diag
	m.state = Idle
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if old != nil {
		old.Release()
	}

	err := &FatalFallbackError{Label: label + "_fallback", Diagnostic: diag, Err: cause}
	m.logger.Error("rebuild: fallback pipeline failed", slog.String("label", label), slog.Any("error", err))
	if m.onConsole != nil {
		m.onConsole(diag.String())
	}
	if m.onFatal != nil {
		m.onFatal(err)
	}
	if m.onPublish != nil {
		m.onPublish(snap)
	}
	return snap, err
}

// fallbackPipeline returns a new reference to the cached fallback pipeline,
// building it on first use. Failures are not cached.
func (m *Machine) fallbackPipeline(label string) (*pipeline.Pipeline, error) {
	m.fallbackMu.Lock()
	defer m.fallbackMu.Unlock()
	if m.fallbackClosed {
		return nil, ErrClosed
	}
	if m.fallback == nil {
		fb, err := m.builder.Build(pipeline.Descriptor{
			Label:    label + "_fallback",
			Fragment: pipeline.FallbackSource,
			Fallback: true,
		})
		if err != nil {
			return nil, err
		}
		m.fallback = fb
	}
	m.fallback.Retain()
	return m.fallback, nil
}

// Acquire returns the published pipeline with a reference the caller must
// release. It never observes a pipeline that is being built or destroyed.
func (m *Machine) Acquire() (*pipeline.Pipeline, error) {
	for {
		p := m.slot.Load()
		if p == nil {
			m.mu.Lock()
			closed := m.closed
			m.mu.Unlock()
			if closed {
				return nil, ErrClosed
			}
			return nil, ErrNoPipeline
		}
		if p.TryRetain() {
			return p, nil
		}
		// p was swapped out and released between Load and TryRetain.
	}
}

// Snapshot returns the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() Snapshot {
	s := Snapshot{
		State:     m.state,
		Seq:       m.published,
		Generated: m.generated,
	}
	if p := m.slot.Load(); p != nil {
		s.PipelineID = p.ID()
	}
	if m.diag != nil {
		d := *m.diag
		s.Diagnostic = &d
	}
	return s
}

// Console returns the text of the stored diagnostic.
func (m *Machine) Console() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.diag == nil {
		return "", false
	}
	return m.diag.String(), true
}

// Close releases the published and fallback pipelines and leaves the
// machine Idle. Renders holding a reference finish normally.
func (m *Machine) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.closed = true
	m.state = Idle
	old := m.slot.Swap(nil)
	m.mu.Unlock()

	if old != nil {
		old.Release()
	}
	m.fallbackMu.Lock()
	m.fallbackClosed = true
	if m.fallback != nil {
		m.fallback.Release()
		m.fallback = nil
	}
	m.fallbackMu.Unlock()
	return nil
}

// IsFatal reports whether err is a *FatalFallbackError.
func IsFatal(err error) bool {
	var fe *FatalFallbackError
	return errors.As(err, &fe)
}
