package fxnode

import "errors"

var (
	// ErrClosed is returned by a closed node.
	ErrClosed = errors.New("fxnode: node closed")

	// ErrNotRenderable is returned by OnUpstreamFrameReady when the node has
	// no pipeline: before the first build completes, or after the fallback
	// program failed to build.
	ErrNotRenderable = errors.New("fxnode: no renderable pipeline")
)
