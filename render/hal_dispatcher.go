// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/fxnode/pipeline"
)

// copyRowAlignment is the row pitch alignment of texture-to-buffer copies.
const copyRowAlignment = 256

// ErrInvalidSize is returned for a zero or negative frame size.
var ErrInvalidSize = errors.New("render: invalid frame size")

// texture is a 2D RGBA8 texture with its default view.
type texture struct {
	tex           hal.Texture
	view          hal.TextureView
	width, height uint32
}

// HALDispatcher draws effect pipelines on a hal device.
//
// Input and output textures are kept between dispatches and recreated only
// when the frame size changes. Dispatches are serialized.
type HALDispatcher struct {
	device hal.Device
	queue  hal.Queue
	cfg    config

	mu      sync.Mutex
	sampler hal.Sampler
	input   texture
	output  texture
}

var _ Dispatcher = (*HALDispatcher)(nil)

// NewHALDispatcher creates a dispatcher on d.
func NewHALDispatcher(d *Device, opts ...Option) *HALDispatcher {
	return &HALDispatcher{
		device: d.Device,
		queue:  d.Queue,
		cfg:    newConfig(opts),
	}
}

// Dispatch draws p over input and returns the rendered frame.
//
// The GPU wait is bounded by the context deadline, or by the configured
// timeout when the context has none.
func (d *HALDispatcher) Dispatch(ctx context.Context, p *pipeline.Pipeline, input *Frame, params Params) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if input.Width() <= 0 || input.Height() <= 0 {
		return nil, fmt.Errorf("%w: input %dx%d", ErrInvalidSize, input.Width(), input.Height())
	}
	width, height := params.Width, params.Height
	if width == 0 && height == 0 {
		width, height = input.Width(), input.Height()
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: output %dx%d", ErrInvalidSize, width, height)
	}
	w, h := uint32(width), uint32(height) //nolint:gosec // checked positive above

	d.mu.Lock()
	defer d.mu.Unlock()

	start := time.Now()
	if err := d.ensureResources(uint32(input.Width()), uint32(input.Height()), w, h); err != nil { //nolint:gosec // checked positive above
		return nil, err
	}

	d.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: d.input.tex, MipLevel: 0},
		input.tightPixels(),
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  d.input.width * 4,
			RowsPerImage: d.input.height,
		},
		&hal.Extent3D{Width: d.input.width, Height: d.input.height, DepthOrArrayLayers: 1},
	)

	paramData := PackParams(width, height, params.Uniforms)
	paramBuf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "fx_params",
		Size:  uint64(len(paramData)),
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("render: create params buffer: %w", err)
	}
	defer d.device.DestroyBuffer(paramBuf)
	d.queue.WriteBuffer(paramBuf, 0, paramData)

	bindGroup, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "fx_bind",
		Layout: p.BindGroupLayout(),
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{
				Buffer: paramBuf.NativeHandle(), Offset: 0, Size: uint64(len(paramData)),
			}},
			{Binding: 1, Resource: gputypes.TextureViewBinding{
				TextureView: d.input.view.NativeHandle(),
			}},
			{Binding: 2, Resource: gputypes.SamplerBinding{
				Sampler: d.sampler.NativeHandle(),
			}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("render: create bind group: %w", err)
	}
	defer d.device.DestroyBindGroup(bindGroup)

	out, err := d.encodeAndReadback(ctx, p, bindGroup)
	if err != nil {
		return nil, err
	}
	d.cfg.logger.Debug("render: dispatched",
		slog.String("pipeline", p.Label()),
		slog.Int("width", width), slog.Int("height", height),
		slog.Duration("elapsed", time.Since(start)))
	return out, nil
}

// encodeAndReadback draws the full-screen triangle into the output texture,
// copies it to a staging buffer, submits, waits, and reads back pixels.
func (d *HALDispatcher) encodeAndReadback(ctx context.Context, p *pipeline.Pipeline, bindGroup hal.BindGroup) (*Frame, error) {
	w, h := d.output.width, d.output.height

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "fx_encoder"})
	if err != nil {
		return nil, fmt.Errorf("render: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("fx_dispatch"); err != nil {
		return nil, fmt.Errorf("render: begin encoding: %w", err)
	}

	rp := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "fx_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{
			{
				View:       d.output.view,
				LoadOp:     gputypes.LoadOpClear,
				StoreOp:    gputypes.StoreOpStore,
				ClearValue: gputypes.Color{R: 0, G: 0, B: 0, A: 0},
			},
		},
	})
	rp.SetPipeline(p.RenderPipeline())
	rp.SetBindGroup(0, bindGroup, nil)
	rp.Draw(3, 1, 0, 0)
	rp.End()

	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: d.output.tex,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageRenderAttachment,
			NewUsage: gputypes.TextureUsageCopySrc,
		},
	}})

	rowPitch := (w*4 + copyRowAlignment - 1) &^ (copyRowAlignment - 1)
	stagingSize := uint64(rowPitch) * uint64(h)
	staging, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "fx_staging",
		Size:  stagingSize,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		encoder.DiscardEncoding()
		return nil, fmt.Errorf("render: create staging buffer: %w", err)
	}
	defer d.device.DestroyBuffer(staging)

	encoder.CopyTextureToBuffer(d.output.tex, staging, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: rowPitch, RowsPerImage: h},
		TextureBase:  hal.ImageCopyTexture{Texture: d.output.tex, MipLevel: 0},
		Size:         hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	}})

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("render: end encoding: %w", err)
	}
	defer d.device.FreeCommandBuffer(cmdBuf)

	fence, err := d.device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("render: create fence: %w", err)
	}
	defer d.device.DestroyFence(fence)

	if err := d.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return nil, fmt.Errorf("render: submit: %w", err)
	}
	timeout := d.cfg.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	ok, err := d.device.Wait(fence, 1, timeout)
	if err != nil {
		return nil, fmt.Errorf("render: wait for GPU: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("render: wait for GPU: timed out after %v", timeout)
	}

	readback := make([]byte, stagingSize)
	if err := d.queue.ReadBuffer(staging, 0, readback); err != nil {
		return nil, fmt.Errorf("render: readback: %w", err)
	}

	out := NewFrame(int(w), int(h))
	rowBytes := int(w) * 4
	for y := 0; y < int(h); y++ {
		copy(out.img.Pix[y*out.img.Stride:y*out.img.Stride+rowBytes], readback[y*int(rowPitch):])
	}
	return out, nil
}

// ensureResources creates the sampler and sizes the input and output
// textures.
func (d *HALDispatcher) ensureResources(inW, inH, outW, outH uint32) error {
	if d.sampler == nil {
		sampler, err := d.device.CreateSampler(&hal.SamplerDescriptor{
			Label:        "fx_input_sampler",
			AddressModeU: gputypes.AddressModeClampToEdge,
			AddressModeV: gputypes.AddressModeClampToEdge,
			AddressModeW: gputypes.AddressModeClampToEdge,
			MagFilter:    gputypes.FilterModeLinear,
			MinFilter:    gputypes.FilterModeLinear,
			MipmapFilter: gputypes.FilterModeLinear,
		})
		if err != nil {
			return fmt.Errorf("render: create sampler: %w", err)
		}
		d.sampler = sampler
	}
	if err := d.ensureTexture(&d.input, "fx_input", inW, inH,
		gputypes.TextureUsageTextureBinding|gputypes.TextureUsageCopyDst); err != nil {
		return err
	}
	return d.ensureTexture(&d.output, "fx_output", outW, outH,
		gputypes.TextureUsageRenderAttachment|gputypes.TextureUsageCopySrc)
}

func (d *HALDispatcher) ensureTexture(t *texture, label string, w, h uint32, usage gputypes.TextureUsage) error {
	if t.tex != nil && t.width == w && t.height == h {
		return nil
	}
	d.destroyTexture(t)

	tex, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label:         label,
		Size:          hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        pipeline.TargetFormat,
		Usage:         usage,
	})
	if err != nil {
		return fmt.Errorf("render: create %s texture: %w", label, err)
	}
	view, err := d.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         label + "_view",
		Format:        pipeline.TargetFormat,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		d.device.DestroyTexture(tex)
		return fmt.Errorf("render: create %s view: %w", label, err)
	}
	*t = texture{tex: tex, view: view, width: w, height: h}
	return nil
}

func (d *HALDispatcher) destroyTexture(t *texture) {
	if t.view != nil {
		d.device.DestroyTextureView(t.view)
	}
	if t.tex != nil {
		d.device.DestroyTexture(t.tex)
	}
	*t = texture{}
}

// Size returns the current output texture size.
func (d *HALDispatcher) Size() (uint32, uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.output.width, d.output.height
}

// Close releases the dispatcher's textures and sampler. The device is not
// touched.
func (d *HALDispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyTexture(&d.input)
	d.destroyTexture(&d.output)
	if d.sampler != nil {
		d.device.DestroySampler(d.sampler)
		d.sampler = nil
	}
}
