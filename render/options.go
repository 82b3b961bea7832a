package render

import (
	"context"
	"log/slog"
	"time"
)

// Option configures device opening and dispatch.
type Option func(*config)

type config struct {
	logger  *slog.Logger
	timeout time.Duration
}

func newConfig(opts []Option) config {
	c := config{
		logger:  slog.New(nopHandler{}),
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithLogger sets the logger. By default nothing is logged.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTimeout bounds how long a dispatch waits for the GPU when its context
// has no deadline. The default is 5 seconds.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.timeout = d
		}
	}
}

type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }
