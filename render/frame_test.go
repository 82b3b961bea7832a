// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package render

import (
	"image"
	"image/color"
	"testing"

	"github.com/gogpu/gputypes"
)

func TestNewFrame(t *testing.T) {
	tests := []struct {
		name   string
		width  int
		height int
	}{
		{"small", 4, 4},
		{"wide", 64, 8},
		{"tall", 8, 64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFrame(tt.width, tt.height)
			if f.Width() != tt.width || f.Height() != tt.height {
				t.Errorf("size = %dx%d, want %dx%d", f.Width(), f.Height(), tt.width, tt.height)
			}
			if f.Format() != gputypes.TextureFormatRGBA8Unorm {
				t.Errorf("Format() = %v, want RGBA8Unorm", f.Format())
			}
			if f.Stride() != tt.width*4 {
				t.Errorf("Stride() = %d, want %d", f.Stride(), tt.width*4)
			}
		})
	}
}

func TestFrameFill(t *testing.T) {
	f := NewFrame(3, 2)
	red := color.RGBA{R: 255, A: 255}
	f.Fill(red)
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			if got := f.At(x, y); got != red {
				t.Fatalf("At(%d,%d) = %v, want %v", x, y, got, red)
			}
		}
	}
}

func TestNewFrameFromImage(t *testing.T) {
	src := image.NewNRGBA(image.Rect(10, 10, 14, 12))
	src.Set(10, 10, color.NRGBA{G: 255, A: 255})

	f := NewFrameFromImage(src)
	if f.Width() != 4 || f.Height() != 2 {
		t.Fatalf("size = %dx%d, want 4x2", f.Width(), f.Height())
	}
	if got := f.At(0, 0); got != (color.RGBA{G: 255, A: 255}) {
		t.Errorf("At(0,0) = %v", got)
	}

	rgba := image.NewRGBA(image.Rect(0, 0, 2, 2))
	if NewFrameFromImage(rgba).Image() != rgba {
		t.Error("an RGBA image at the origin should be wrapped, not copied")
	}
}

func TestFrameResized(t *testing.T) {
	f := NewFrame(4, 4)
	f.Fill(color.RGBA{B: 255, A: 255})

	if f.Resized(4, 4) != f {
		t.Error("Resized to the same size should return the frame itself")
	}
	r := f.Resized(8, 2)
	if r.Width() != 8 || r.Height() != 2 {
		t.Fatalf("Resized size = %dx%d", r.Width(), r.Height())
	}
	if got := r.At(3, 1); got != (color.RGBA{B: 255, A: 255}) {
		t.Errorf("Resized pixel = %v, want flat blue", got)
	}
}

func TestFrameClone(t *testing.T) {
	f := NewFrame(2, 2)
	f.Set(1, 1, color.RGBA{R: 9, A: 255})
	c := f.Clone()
	f.Set(1, 1, color.RGBA{})
	if got := c.At(1, 1); got != (color.RGBA{R: 9, A: 255}) {
		t.Errorf("clone shares memory with the original: %v", got)
	}
}

func TestTightPixels(t *testing.T) {
	base := image.NewRGBA(image.Rect(0, 0, 4, 2))
	for i := range base.Pix {
		base.Pix[i] = byte(i)
	}
	sub := base.SubImage(image.Rect(0, 0, 2, 2)).(*image.RGBA)

	got := NewFrameFromRGBA(sub).tightPixels()
	want := append(append([]byte{}, base.Pix[0:8]...), base.Pix[16:24]...)
	if string(got) != string(want) {
		t.Errorf("tightPixels = %v, want %v", got, want)
	}
}
