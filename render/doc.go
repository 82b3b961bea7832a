// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package render moves frames through compiled effect pipelines.
//
// # Frames
//
// A Frame is a CPU-backed RGBA image. Effect nodes receive their upstream
// frame as a Frame and return a new Frame holding the output.
//
// # Devices
//
// The preferred setup receives the GPU device from the host application
// through a DeviceHandle, so effect pipelines share resources with the rest
// of the graph. OpenDevice creates a standalone device for tools and tests.
//
// # Dispatch
//
// A Dispatcher draws one pipeline over one input frame. HALDispatcher does
// this on a hal device: it uploads the frame into a sampled texture, packs
// the parameter block, draws a full-screen triangle into an RGBA8 target and
// reads the result back.
//
// The parameter block matches the FxParams struct of generated programs:
//
//	offset 0   resolution (vec2<f32>)
//	offset 8   texel size (vec2<f32>)
//	offset 16  one f32 per uniform, in pipeline order
//
// padded to a multiple of 16 bytes.
package render
