package fxnode

import (
	"log/slog"

	"github.com/gogpu/fxnode/uniform"
)

// NodeOption configures a Node during creation.
//
// Example:
//
//	node, err := fxnode.New(builder, disp,
//	    fxnode.WithName("grade"),
//	    fxnode.WithCode(fxnode.Premultiply),
//	    fxnode.WithConsoleCallback(func(text string) { log.Print(text) }),
//	)
type NodeOption func(*nodeOptions)

// nodeOptions holds optional configuration for Node creation.
type nodeOptions struct {
	name        string
	code        string
	raw         bool
	uniforms    []uniform.Descriptor
	vertexStage string
	onConsole   func(string)
	onStale     func()
	onFatal     func(error)
	logger      *slog.Logger
}

// defaultOptions returns the default node options: a passthrough effect
// with no uniforms.
func defaultOptions() nodeOptions {
	return nodeOptions{
		name: "fx",
		code: Passthrough,
	}
}

// WithName sets the node name used in log records and pipeline labels.
func WithName(name string) NodeOption {
	return func(o *nodeOptions) {
		if name != "" {
			o.name = name
		}
	}
}

// WithCode sets the initial effect fragment.
func WithCode(code string) NodeOption {
	return func(o *nodeOptions) {
		o.code = code
		o.raw = false
	}
}

// WithRawCode sets an initial complete WGSL program. It must define the
// fs_main entry point.
func WithRawCode(code string) NodeOption {
	return func(o *nodeOptions) {
		o.code = code
		o.raw = true
	}
}

// WithUniforms sets the initial uniform set.
func WithUniforms(descs ...uniform.Descriptor) NodeOption {
	return func(o *nodeOptions) {
		o.uniforms = append([]uniform.Descriptor(nil), descs...)
	}
}

// WithVertexStage selects a vertex stage registered with the builder.
func WithVertexStage(name string) NodeOption {
	return func(o *nodeOptions) {
		o.vertexStage = name
	}
}

// WithConsoleCallback sets a function called once with the text of every
// new diagnostic.
func WithConsoleCallback(fn func(text string)) NodeOption {
	return func(o *nodeOptions) {
		o.onConsole = fn
	}
}

// WithStaleHook sets a function called whenever the node's output must be
// rendered again: after every rebuild and every uniform value change.
func WithStaleHook(fn func()) NodeOption {
	return func(o *nodeOptions) {
		o.onStale = fn
	}
}

// WithFatalHandler sets a function called when the fallback program itself
// fails to build.
func WithFatalHandler(fn func(error)) NodeOption {
	return func(o *nodeOptions) {
		o.onFatal = fn
	}
}

// WithLogger sets the node logger. Without it the node uses Logger().
func WithLogger(l *slog.Logger) NodeOption {
	return func(o *nodeOptions) {
		o.logger = l
	}
}
