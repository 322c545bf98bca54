// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package scene

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"slices"
)

// FillRule selects how winding numbers map to coverage.
type FillRule uint32

const (
	// FillNonZero uses the non-zero winding rule.
	FillNonZero FillRule = 0
	// FillEvenOdd uses the even-odd rule.
	FillEvenOdd FillRule = 1
)

// String returns a human-readable name for the fill rule.
func (r FillRule) String() string {
	if r == FillEvenOdd {
		return "EvenOdd"
	}
	return "NonZero"
}

// Affine is the transform [a b c d e f]:
//
//	x' = a*x + c*y + e
//	y' = b*x + d*y + f
type Affine [6]float32

// Identity is the identity transform.
var Identity = Affine{1, 0, 0, 1, 0, 0}

// Translate returns a translation.
func Translate(dx, dy float32) Affine {
	return Affine{1, 0, 0, 1, dx, dy}
}

// Scale returns a scale about the origin.
func Scale(sx, sy float32) Affine {
	return Affine{sx, 0, 0, sy, 0, 0}
}

// Apply transforms a point.
func (t Affine) Apply(x, y float32) (float32, float32) {
	return t[0]*x + t[2]*y + t[4], t[1]*x + t[3]*y + t[5]
}

// Mul returns the transform applying o first, then t.
func (t Affine) Mul(o Affine) Affine {
	return Affine{
		t[0]*o[0] + t[2]*o[1],
		t[1]*o[0] + t[3]*o[1],
		t[0]*o[2] + t[2]*o[3],
		t[1]*o[2] + t[3]*o[3],
		t[0]*o[4] + t[2]*o[5] + t[4],
		t[1]*o[4] + t[3]*o[5] + t[5],
	}
}

// Rect is an axis-aligned box; Max is exclusive.
type Rect struct {
	MinX, MinY, MaxX, MaxY float32
}

// Empty reports whether r contains no area.
func (r Rect) Empty() bool {
	return !(r.MaxX > r.MinX) || !(r.MaxY > r.MinY)
}

func (r Rect) union(x, y float32) Rect {
	return Rect{min(r.MinX, x), min(r.MinY, y), max(r.MaxX, x), max(r.MaxY, y)}
}

func (r Rect) finite() bool {
	return finite(r.MinX) && finite(r.MinY) && finite(r.MaxX) && finite(r.MaxY)
}

// emptyRect is the bbox of a path with no points.
var emptyRect = Rect{
	MinX: float32(math.Inf(1)), MinY: float32(math.Inf(1)),
	MaxX: float32(math.Inf(-1)), MaxY: float32(math.Inf(-1)),
}

// Path is the per-path table entry.
type Path struct {
	// BBox is the device-space bounds of the transformed segments.
	BBox  Rect
	Fill  FillRule
	Color color.RGBA // premultiplied

	// Image, when set, paints the path instead of Color.
	Image *ImageFill
}

// PackedColor returns the color as r | g<<8 | b<<16 | a<<24.
func (p Path) PackedColor() uint32 {
	c := p.Color
	return uint32(c.R) | uint32(c.G)<<8 | uint32(c.B)<<16 | uint32(c.A)<<24
}

// Scene is an encoded, flattened scene. The zero value is an empty scene.
type Scene struct {
	PathTags   []byte
	PathData   []float32
	Transforms []Affine
	Paths      []Path
}

// Clone returns a deep copy of s.
func (s *Scene) Clone() *Scene {
	if s == nil {
		return nil
	}
	out := &Scene{
		PathTags:   slices.Clone(s.PathTags),
		PathData:   slices.Clone(s.PathData),
		Transforms: slices.Clone(s.Transforms),
		Paths:      slices.Clone(s.Paths),
	}
	for i, p := range out.Paths {
		if p.Image != nil {
			img := *p.Image
			out.Paths[i].Image = &img
		}
	}
	return out
}

// NumImages returns the number of image slots the scene reads: one more
// than the highest slot used, or zero.
func (s *Scene) NumImages() uint32 {
	if s == nil {
		return 0
	}
	var n uint32
	for _, p := range s.Paths {
		if p.Image != nil {
			n = max(n, p.Image.Slot+1)
		}
	}
	return n
}

// IsEmpty reports whether the scene draws nothing.
func (s *Scene) IsEmpty() bool {
	return s == nil || len(s.Paths) == 0
}

// Segments returns the number of line segments.
func (s *Scene) Segments() int {
	n := 0
	for _, t := range s.PathTags {
		if IsSegment(t) {
			n++
		}
	}
	return n
}

// ErrMalformed reports a scene whose streams disagree with each other.
var ErrMalformed = errors.New("scene: malformed")

// Validate checks that the tag stream, path data, transforms and path table
// describe each other consistently and that all coordinates are finite.
func (s *Scene) Validate() error {
	if s == nil {
		return nil
	}
	var words, transforms, paths uint64
	for i, t := range s.PathTags {
		switch {
		case t == TagNop:
		case t == TagPath:
			paths++
		case t == TagTransform:
			transforms++
		case t&^TagSubpathEnd == TagLineToF32:
			words += 2
			if t&TagSubpathEnd != 0 {
				words += 2
			}
		default:
			return fmt.Errorf("%w: unsupported tag %#x at %d", ErrMalformed, t, i)
		}
	}
	// Each subpath advances by its own length: the skipped start point of
	// the next subpath stands in for its own start point.
	if words != uint64(len(s.PathData)) {
		return fmt.Errorf("%w: tags consume %d path words, have %d", ErrMalformed, words, len(s.PathData))
	}
	if transforms != uint64(len(s.Transforms)) {
		return fmt.Errorf("%w: %d transform tags, %d transforms", ErrMalformed, transforms, len(s.Transforms))
	}
	if paths != uint64(len(s.Paths)) {
		return fmt.Errorf("%w: %d path tags, %d paths", ErrMalformed, paths, len(s.Paths))
	}
	for i, v := range s.PathData {
		if !finite(v) {
			return fmt.Errorf("%w: non-finite coordinate at word %d", ErrMalformed, i)
		}
	}
	for i, t := range s.Transforms {
		if !t.finite() {
			return fmt.Errorf("%w: non-finite transform %d", ErrMalformed, i)
		}
	}
	for i, p := range s.Paths {
		if !p.BBox.finite() && p.BBox != emptyRect {
			return fmt.Errorf("%w: path %d has non-finite bbox %+v", ErrMalformed, i, p.BBox)
		}
		if p.Image != nil {
			if err := p.Image.validate(); err != nil {
				return fmt.Errorf("%w: path %d image: %w", ErrMalformed, i, err)
			}
		}
	}
	return nil
}
