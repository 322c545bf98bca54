// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package scene

import (
	"fmt"
	"math"
)

// Extend is how an image is sampled outside its bounds.
type Extend uint8

const (
	// ExtendPad repeats the edge texels.
	ExtendPad Extend = iota
	// ExtendRepeat tiles the image.
	ExtendRepeat
	// ExtendReflect tiles the image, mirroring every other copy.
	ExtendReflect
)

func (e Extend) String() string {
	switch e {
	case ExtendPad:
		return "pad"
	case ExtendRepeat:
		return "repeat"
	case ExtendReflect:
		return "reflect"
	default:
		return fmt.Sprintf("Extend(%d)", uint8(e))
	}
}

// Wrap maps texel index i onto [0, n). n must be positive.
func (e Extend) Wrap(i, n int32) int32 {
	switch e {
	case ExtendRepeat:
		i %= n
		if i < 0 {
			i += n
		}
		return i
	case ExtendReflect:
		period := 2 * n
		i %= period
		if i < 0 {
			i += period
		}
		if i >= n {
			i = period - 1 - i
		}
		return i
	default:
		return min(max(i, 0), n-1)
	}
}

// ImageBrush paints with one of the images bound when a scene is rendered.
type ImageBrush struct {
	// Slot indexes the bound images.
	Slot uint32

	// Width and Height are the size of the image box in brush space. The
	// whole image is stretched over [0, Width) x [0, Height).
	Width, Height float32

	XExtend, YExtend Extend

	// Alpha multiplies every texel.
	Alpha float32
}

// NewImageBrush returns an opaque, padded brush for slot drawn at w x h.
func NewImageBrush(slot uint32, w, h float32) ImageBrush {
	return ImageBrush{Slot: slot, Width: w, Height: h, Alpha: 1}
}

// WithAlpha returns b with its alpha set.
func (b ImageBrush) WithAlpha(alpha float32) ImageBrush {
	b.Alpha = alpha
	return b
}

// WithExtend returns b with its edge modes set.
func (b ImageBrush) WithExtend(x, y Extend) ImageBrush {
	b.XExtend, b.YExtend = x, y
	return b
}

// ImageFill is the paint of a path filled with an image.
type ImageFill struct {
	ImageBrush

	// Inverse maps device space to the image box.
	Inverse Affine
}

func (f *ImageFill) validate() error {
	if f.XExtend > ExtendReflect || f.YExtend > ExtendReflect {
		return fmt.Errorf("unknown extend %v/%v", f.XExtend, f.YExtend)
	}
	if !finite(f.Width) || !finite(f.Height) || f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("image box %vx%v", f.Width, f.Height)
	}
	if !finite(f.Alpha) || f.Alpha < 0 || f.Alpha > 1 {
		return fmt.Errorf("alpha %v outside [0, 1]", f.Alpha)
	}
	if !f.Inverse.finite() {
		return fmt.Errorf("non-finite inverse %v", f.Inverse)
	}
	return nil
}

// Determinant returns a*d - b*c.
func (t Affine) Determinant() float32 {
	return t[0]*t[3] - t[1]*t[2]
}

// Invert returns the inverse of t. It reports false when t is singular.
func (t Affine) Invert() (Affine, bool) {
	det := t.Determinant()
	if det == 0 || !finite(det) {
		return Affine{}, false
	}
	inv := 1 / det
	a, b, c, d, e, f := t[0], t[1], t[2], t[3], t[4], t[5]
	out := Affine{
		d * inv,
		-b * inv,
		-c * inv,
		a * inv,
		(c*f - d*e) * inv,
		(b*e - a*f) * inv,
	}
	return out, out.finite()
}

func (t Affine) finite() bool {
	for _, v := range t {
		if !finite(v) {
			return false
		}
	}
	return true
}

func finite(v float32) bool {
	return !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0)
}
