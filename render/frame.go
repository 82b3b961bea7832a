// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package render

import (
	"image"
	"image/color"

	"github.com/gogpu/gputypes"
	"golang.org/x/image/draw"
)

// Frame is a CPU-backed RGBA frame.
type Frame struct {
	img *image.RGBA
}

// NewFrame creates a transparent frame.
func NewFrame(width, height int) *Frame {
	return &Frame{img: image.NewRGBA(image.Rect(0, 0, width, height))}
}

// NewFrameFromRGBA wraps img without copying.
func NewFrameFromRGBA(img *image.RGBA) *Frame {
	return &Frame{img: img}
}

// NewFrameFromImage copies any image into a new frame whose origin is (0,0).
func NewFrameFromImage(src image.Image) *Frame {
	if rgba, ok := src.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return NewFrameFromRGBA(rgba)
	}
	b := src.Bounds()
	f := NewFrame(b.Dx(), b.Dy())
	draw.Draw(f.img, f.img.Bounds(), src, b.Min, draw.Src)
	return f
}

// Width returns the frame width in pixels.
func (f *Frame) Width() int { return f.img.Bounds().Dx() }

// Height returns the frame height in pixels.
func (f *Frame) Height() int { return f.img.Bounds().Dy() }

// Format returns the pixel format (RGBA8).
func (f *Frame) Format() gputypes.TextureFormat { return gputypes.TextureFormatRGBA8Unorm }

// Pixels returns the pixel data, 4 bytes per pixel.
func (f *Frame) Pixels() []byte { return f.img.Pix }

// Stride returns the number of bytes per row.
func (f *Frame) Stride() int { return f.img.Stride }

// Image returns the underlying image. It shares memory with the frame.
func (f *Frame) Image() *image.RGBA { return f.img }

// At returns the pixel at (x, y).
func (f *Frame) At(x, y int) color.RGBA { return f.img.RGBAAt(x, y) }

// Set sets the pixel at (x, y).
func (f *Frame) Set(x, y int, c color.RGBA) { f.img.SetRGBA(x, y, c) }

// Fill sets every pixel to c.
func (f *Frame) Fill(c color.RGBA) {
	draw.Draw(f.img, f.img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
}

// Resized returns f scaled to width x height with bilinear filtering, or f
// itself when the size already matches.
func (f *Frame) Resized(width, height int) *Frame {
	if f.Width() == width && f.Height() == height {
		return f
	}
	out := NewFrame(width, height)
	draw.BiLinear.Scale(out.img, out.img.Bounds(), f.img, f.img.Bounds(), draw.Src, nil)
	return out
}

// Clone returns a deep copy of f.
func (f *Frame) Clone() *Frame {
	out := NewFrame(f.Width(), f.Height())
	draw.Draw(out.img, out.img.Bounds(), f.img, f.img.Bounds().Min, draw.Src)
	return out
}

// tightPixels returns the pixel rows packed without padding.
func (f *Frame) tightPixels() []byte {
	rowBytes := f.Width() * 4
	if f.img.Stride == rowBytes {
		return f.img.Pix[:rowBytes*f.Height()]
	}
	out := make([]byte, rowBytes*f.Height())
	for y := 0; y < f.Height(); y++ {
		copy(out[y*rowBytes:], f.img.Pix[y*f.img.Stride:y*f.img.Stride+rowBytes])
	}
	return out
}
