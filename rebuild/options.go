package rebuild

import (
	"context"
	"log/slog"
)

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the logger. By default the machine logs nothing.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithConsoleCallback sets a function called with the console text of every
// new diagnostic. It is called once per failed rebuild that is published,
// never for superseded ones, and never while the machine lock is held.
func WithConsoleCallback(fn func(text string)) Option {
	return func(m *Machine) { m.onConsole = fn }
}

// WithPublishHook sets a function called after every publication, Active or
// Degraded, and after a fatal fallback failure. Nodes use it to mark their
// output stale.
func WithPublishHook(fn func(Snapshot)) Option {
	return func(m *Machine) { m.onPublish = fn }
}

// WithFatalHandler sets a function called with every *FatalFallbackError.
func WithFatalHandler(fn func(error)) Option {
	return func(m *Machine) { m.onFatal = fn }
}

type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }
