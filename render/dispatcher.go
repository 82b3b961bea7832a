package render

import (
	"context"
	"encoding/binary"

	"github.com/chewxy/math32"

	"github.com/gogpu/fxnode/pipeline"
)

// Params are the per-draw inputs of a dispatch.
type Params struct {
	// Width and Height are the output size. Zero takes the input size.
	Width, Height int

	// Uniforms are the uniform values in pipeline order.
	Uniforms []float32
}

// Dispatcher draws a pipeline over an input frame.
//
// Dispatch must not retain p after it returns; the caller holds the only
// reference it relies on.
type Dispatcher interface {
	Dispatch(ctx context.Context, p *pipeline.Pipeline, input *Frame, params Params) (*Frame, error)
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, p *pipeline.Pipeline, input *Frame, params Params) (*Frame, error)

// Dispatch calls f.
func (f DispatcherFunc) Dispatch(ctx context.Context, p *pipeline.Pipeline, input *Frame, params Params) (*Frame, error) {
	return f(ctx, p, input, params)
}

// ParamsHeaderSize is the byte size of the resolution and texel fields that
// precede the uniforms in the parameter block.
const ParamsHeaderSize = 16

// PackParams encodes the parameter block for an output of width x height.
func PackParams(width, height int, uniforms []float32) []byte {
	size := ParamsHeaderSize + 4*len(uniforms)
	size = (size + 15) &^ 15
	buf := make([]byte, size)

	w, h := float32(width), float32(height)
	var wu, hv float32
	if w > 0 {
		wu = 1 / w
	}
	if h > 0 {
		hv = 1 / h
	}
	for i, v := range [4]float32{w, h, wu, hv} {
		binary.LittleEndian.PutUint32(buf[i*4:], math32.Float32bits(v))
	}
	for i, v := range uniforms {
		binary.LittleEndian.PutUint32(buf[ParamsHeaderSize+i*4:], math32.Float32bits(v))
	}
	return buf
}
