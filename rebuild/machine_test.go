package rebuild

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/fxnode/pipeline"
	"github.com/gogpu/fxnode/shadergen"
)

func newTestBuilder(t *testing.T) *pipeline.Builder {
	t.Helper()
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	b := pipeline.NewBuilder(openDev.Device)
	t.Cleanup(func() {
		b.Close()
		openDev.Device.Destroy()
		instance.Destroy()
	})
	return b
}

// newMachine creates a machine that is closed when the test ends.
func newMachine(t *testing.T, b Builder, opts ...Option) *Machine {
	t.Helper()
	m := New(b, opts...)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func request(code string, uniforms ...string) Request {
	return Request{Label: "test", Source: shadergen.Source{Code: code}, Uniforms: uniforms}
}

// noFallbackBuilder rejects the fallback program.
type noFallbackBuilder struct{ Builder }

func (b noFallbackBuilder) Build(desc pipeline.Descriptor) (*pipeline.Pipeline, error) {
	if desc.Fallback {
		return nil, errors.New("fallback disabled")
	}
	return b.Builder.Build(desc)
}

// gateBuilder blocks builds whose program contains marker until gate is
// closed.
type gateBuilder struct {
	Builder
	marker  string
	entered chan struct{}
	gate    chan struct{}
}

func (b *gateBuilder) Build(desc pipeline.Descriptor) (*pipeline.Pipeline, error) {
	if !desc.Fallback && strings.Contains(desc.Fragment, b.marker) {
		b.entered <- struct{}{}
		<-b.gate
	}
	return b.Builder.Build(desc)
}

// countingBuilder counts fallback builds.
type countingBuilder struct {
	Builder
	fallbacks atomic.Int32
}

func (b *countingBuilder) Build(desc pipeline.Descriptor) (*pipeline.Pipeline, error) {
	if desc.Fallback {
		b.fallbacks.Add(1)
	}
	return b.Builder.Build(desc)
}

func TestInitialState(t *testing.T) {
	m := newMachine(t, newTestBuilder(t))
	if got := m.Snapshot().State; got != Building {
		t.Errorf("initial State = %v, want building", got)
	}
	if _, err := m.Acquire(); !errors.Is(err, ErrNoPipeline) {
		t.Errorf("Acquire before first build error = %v, want ErrNoPipeline", err)
	}
}

func TestRebuildActive(t *testing.T) {
	var published atomic.Int32
	m := newMachine(t, newTestBuilder(t), WithPublishHook(func(Snapshot) { published.Add(1) }))

	snap, err := m.Rebuild(request("pix = input;"))
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if snap.State != Active {
		t.Fatalf("State = %v, want active", snap.State)
	}
	if snap.Diagnostic != nil {
		t.Errorf("Diagnostic = %+v, want nil", snap.Diagnostic)
	}
	if _, ok := m.Console(); ok {
		t.Error("Console() reports a diagnostic after a successful build")
	}
	if published.Load() != 1 {
		t.Errorf("publish hook fired %d times, want 1", published.Load())
	}

	p, err := m.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer p.Release()
	if p.IsFallback() {
		t.Error("Active machine published the fallback")
	}
	if p.ID() != snap.PipelineID {
		t.Errorf("Acquire() ID = %d, snapshot PipelineID = %d", p.ID(), snap.PipelineID)
	}
}

func TestRebuildDegraded(t *testing.T) {
	var console []string
	m := newMachine(t, newTestBuilder(t), WithConsoleCallback(func(s string) { console = append(console, s) }))

	snap, err := m.Rebuild(request("pix = ;"))
	if err != nil {
		t.Fatalf("Rebuild returned a user error: %v", err)
	}
	if snap.State != Degraded {
		t.Fatalf("State = %v, want degraded", snap.State)
	}
	if snap.Diagnostic == nil || snap.Diagnostic.Message == "" {
		t.Fatalf("Diagnostic = %+v, want non-empty", snap.Diagnostic)
	}
	if len(console) != 1 {
		t.Fatalf("console callback fired %d times, want 1", len(console))
	}
	text, ok := m.Console()
	if !ok || text != console[0] {
		t.Errorf("Console() = %q, %v; callback got %q", text, ok, console[0])
	}

	p, err := m.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer p.Release()
	if !p.IsFallback() {
		t.Error("Degraded machine did not publish the fallback")
	}
}

func TestRebuildRecovers(t *testing.T) {
	m := newMachine(t, newTestBuilder(t))
	if _, err := m.Rebuild(request("pix = ;")); err != nil {
		t.Fatal(err)
	}
	snap, err := m.Rebuild(request("pix = input;"))
	if err != nil {
		t.Fatal(err)
	}
	if snap.State != Active || snap.Diagnostic != nil {
		t.Errorf("after fix: State = %v, Diagnostic = %+v", snap.State, snap.Diagnostic)
	}
	if _, ok := m.Console(); ok {
		t.Error("diagnostic not cleared")
	}
}

func TestRebuildTemplateError(t *testing.T) {
	m := newMachine(t, newTestBuilder(t))
	snap, err := m.Rebuild(request("pix = input;", "input"))
	if err != nil {
		t.Fatal(err)
	}
	if snap.State != Degraded {
		t.Fatalf("State = %v, want degraded", snap.State)
	}
	var te *shadergen.TemplateError
	if !errors.As(snap.Diagnostic.Err, &te) {
		t.Errorf("Diagnostic.Err = %v, want *shadergen.TemplateError", snap.Diagnostic.Err)
	}
}

func TestRebuildUnknownVertexStage(t *testing.T) {
	m := newMachine(t, newTestBuilder(t))
	req := request("pix = input;")
	req.VertexStage = "nope"
	snap, err := m.Rebuild(req)
	if err != nil {
		t.Fatal(err)
	}
	if snap.State != Degraded || !errors.Is(snap.Diagnostic.Err, pipeline.ErrUnknownVertexStage) {
		t.Errorf("State = %v, Diagnostic = %+v", snap.State, snap.Diagnostic)
	}
}

func TestFatalFallback(t *testing.T) {
	var fatal []error
	var console int
	m := newMachine(t, noFallbackBuilder{newTestBuilder(t)},
		WithFatalHandler(func(err error) { fatal = append(fatal, err) }),
		WithConsoleCallback(func(string) { console++ }))

	if _, err := m.Rebuild(request("pix = input;")); err != nil {
		t.Fatal(err)
	}
	snap, err := m.Rebuild(request("pix = ;"))
	var fe *FatalFallbackError
	if !errors.As(err, &fe) {
		t.Fatalf("Rebuild error = %v, want *FatalFallbackError", err)
	}
	if !IsFatal(err) {
		t.Error("IsFatal() = false")
	}
	if snap.State != Idle {
		t.Errorf("State = %v, want idle", snap.State)
	}
	if len(fatal) != 1 || console != 1 {
		t.Errorf("fatal handler fired %d times, console %d times; want 1, 1", len(fatal), console)
	}
	if _, err := m.Acquire(); !errors.Is(err, ErrNoPipeline) {
		t.Errorf("Acquire after fatal error = %v, want ErrNoPipeline", err)
	}

	// A later good edit brings the node back.
	snap, err = m.Rebuild(request("pix = input;"))
	if err != nil || snap.State != Active {
		t.Errorf("recovery: State = %v, err = %v", snap.State, err)
	}
}

func TestFallbackCached(t *testing.T) {
	b := &countingBuilder{Builder: newTestBuilder(t)}
	m := newMachine(t, b)
	for _, code := range []string{"pix = ;", "pix = input;", "pix = ;;;", "pix = ("} {
		if _, err := m.Rebuild(request(code)); err != nil {
			t.Fatal(err)
		}
	}
	if n := b.fallbacks.Load(); n != 1 {
		t.Errorf("fallback built %d times, want 1", n)
	}
}

func TestSupersededPipelineReleased(t *testing.T) {
	m := newMachine(t, newTestBuilder(t))
	if _, err := m.Rebuild(request("pix = input;")); err != nil {
		t.Fatal(err)
	}
	first, err := m.Acquire()
	if err != nil {
		t.Fatal(err)
	}

	if _, err := m.Rebuild(request("pix = input * 0.5;")); err != nil {
		t.Fatal(err)
	}
	if first.Released() {
		t.Fatal("superseded pipeline released while a render holds it")
	}
	first.Release()
	if !first.Released() {
		t.Error("superseded pipeline not released after the render finished")
	}
}

func TestStaleBuildDiscarded(t *testing.T) {
	gate := &gateBuilder{
		Builder: newTestBuilder(t),
		marker:  "// first",
		entered: make(chan struct{}),
		gate:    make(chan struct{}),
	}
	var console atomic.Int32
	m := newMachine(t, gate, WithConsoleCallback(func(string) { console.Add(1) }))

	type result struct {
		snap Snapshot
		err  error
	}
	done := make(chan result)
	go func() {
		// Rejected program: a stale result must not report its diagnostic.
		snap, err := m.Rebuild(request("pix = ; // first"))
		done <- result{snap, err}
	}()
	<-gate.entered

	second, err := m.Rebuild(request("pix = input; // second"))
	if err != nil {
		t.Fatal(err)
	}
	if second.State != Active {
		t.Fatalf("second State = %v, want active", second.State)
	}

	close(gate.gate)
	first := <-done
	if first.err != nil {
		t.Fatalf("stale Rebuild error: %v", first.err)
	}

	snap := m.Snapshot()
	if snap.State != Active || snap.Seq != second.Seq {
		t.Errorf("after stale completion: State = %v, Seq = %d; want active, %d", snap.State, snap.Seq, second.Seq)
	}
	if console.Load() != 0 {
		t.Errorf("stale diagnostic reported %d times", console.Load())
	}
	p, err := m.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	defer p.Release()
	if !strings.Contains(p.Source(), "// second") {
		t.Error("stale build overwrote the newer one")
	}
}

func TestConcurrentAcquireDuringRebuild(t *testing.T) {
	m := newMachine(t, newTestBuilder(t))
	if _, err := m.Rebuild(request("pix = input;")); err != nil {
		t.Fatal(err)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				p, err := m.Acquire()
				if err != nil {
					t.Errorf("Acquire: %v", err)
					return
				}
				if p.Released() || p.RenderPipeline() == nil {
					t.Error("Acquire returned a destroyed pipeline")
				}
				p.Release()
			}
		}()
	}

	codes := []string{"pix = input;", "pix = ;", "pix = input * 2.0;"}
	for i := 0; i < 30; i++ {
		if _, err := m.Rebuild(request(codes[i%len(codes)])); err != nil {
			t.Errorf("Rebuild: %v", err)
		}
	}
	close(stop)
	wg.Wait()
}

func TestClose(t *testing.T) {
	m := New(newTestBuilder(t))
	if _, err := m.Rebuild(request("pix = input;")); err != nil {
		t.Fatal(err)
	}
	p, err := m.Acquire()
	if err != nil {
		t.Fatal(err)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := m.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("second Close error = %v, want ErrClosed", err)
	}
	if _, err := m.Acquire(); !errors.Is(err, ErrClosed) {
		t.Errorf("Acquire after Close error = %v, want ErrClosed", err)
	}
	if _, err := m.Rebuild(request("pix = input;")); !errors.Is(err, ErrClosed) {
		t.Errorf("Rebuild after Close error = %v, want ErrClosed", err)
	}
	if m.Snapshot().State != Idle {
		t.Errorf("State after Close = %v, want idle", m.Snapshot().State)
	}
	if p.Released() {
		t.Fatal("Close destroyed a pipeline still held by a render")
	}
	p.Release()
	if !p.Released() {
		t.Error("pipeline leaked after Close")
	}
}

func TestDiagnosticString(t *testing.T) {
	tests := []struct {
		d    Diagnostic
		want string
	}{
		{Diagnostic{Message: "boom"}, "boom"},
		{Diagnostic{Message: "boom", Line: 30, UserLine: 2, Fragment: "pix = ;"}, "line 2: boom\n    pix = ;"},
		{Diagnostic{Message: "boom", Line: 4}, "generated line 4: boom"},
	}
	for _, tt := range tests {
		if got := tt.d.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestBeginOrdersRequests(t *testing.T) {
	m := newMachine(t, newTestBuilder(t))
	first := m.Begin(request("pix = input; // first"))
	second := m.Begin(request("pix = input; // second"))
	if first.Seq() >= second.Seq() {
		t.Fatalf("Seq() not increasing: %d, %d", first.Seq(), second.Seq())
	}

	if _, err := second.Run(); err != nil {
		t.Fatal(err)
	}
	snap, err := first.Run()
	if err != nil {
		t.Fatal(err)
	}
	if snap.Seq != second.Seq() {
		t.Errorf("published Seq = %d, want %d", snap.Seq, second.Seq())
	}
	if !strings.Contains(snap.Generated.Text, "// second") {
		t.Error("the earlier request overwrote the later one")
	}
}
