// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package scene

import "image/color"

// Builder accumulates filled paths into a Scene.
//
// Coordinates are in user space and mapped to device space by the current
// transform. A path is built with MoveTo, LineTo and Close and committed by
// Fill. Subpaths are closed implicitly.
//
//	b := scene.NewBuilder()
//	b.Rect(10, 10, 100, 50)
//	b.Fill(scene.FillNonZero, color.RGBA{R: 255, A: 255})
//	sc := b.Finish()
type Builder struct {
	scene Scene

	transform Affine // applies from the next path on
	encoded   Affine // last transform written to the stream
	hasXform  bool

	pathTransform Affine

	// current path
	tags     []byte
	data     []float32
	bbox     Rect
	segments int

	// current subpath
	start    [2]float32
	last     [2]float32
	open     bool // start point has been seen
	pending  bool // start point not yet written to data
	subLines int
}

// NewBuilder creates a builder with the identity transform.
func NewBuilder() *Builder {
	b := &Builder{transform: Identity}
	b.resetPath()
	return b
}

// SetTransform sets the transform used by paths started after this call.
// A path keeps the transform it was started with.
func (b *Builder) SetTransform(t Affine) {
	b.transform = t
}

// Transform returns the transform set by SetTransform.
func (b *Builder) Transform() Affine {
	return b.transform
}

// MoveTo starts a new subpath at (x, y).
func (b *Builder) MoveTo(x, y float32) {
	b.endSubpath()
	b.start = [2]float32{x, y}
	b.last = b.start
	b.open = true
	b.pending = true
}

// LineTo adds a line from the current point. Without a current point it
// acts as MoveTo.
func (b *Builder) LineTo(x, y float32) {
	if !b.open {
		b.MoveTo(x, y)
		return
	}
	p := [2]float32{x, y}
	if p == b.last {
		return
	}
	if b.pending {
		b.pushPoint(b.start)
		b.pending = false
	}
	b.tags = append(b.tags, TagLineToF32)
	b.pushPoint(p)
	b.last = p
	b.subLines++
	b.segments++
}

// Close closes the current subpath back to its start point.
func (b *Builder) Close() {
	b.endSubpath()
}

// Rect adds a closed rectangle subpath.
func (b *Builder) Rect(x, y, w, h float32) {
	b.MoveTo(x, y)
	b.LineTo(x+w, y)
	b.LineTo(x+w, y+h)
	b.LineTo(x, y+h)
	b.Close()
}

// Polygon adds a closed subpath through pts.
func (b *Builder) Polygon(pts ...[2]float32) {
	if len(pts) == 0 {
		return
	}
	b.MoveTo(pts[0][0], pts[0][1])
	for _, p := range pts[1:] {
		b.LineTo(p[0], p[1])
	}
	b.Close()
}

// Fill commits the current path with the given rule and color. A path
// without segments is dropped.
func (b *Builder) Fill(rule FillRule, c color.Color) {
	b.commit(rule, c, nil)
}

// FillImage commits the current path painted with img. brush maps the image
// box to user space; the path's transform then maps it to device space.
// A path whose combined transform is singular is dropped.
func (b *Builder) FillImage(rule FillRule, img ImageBrush, brush Affine) {
	b.endSubpath()
	if b.segments == 0 {
		b.resetPath()
		return
	}
	inv, ok := b.pathTransform.Mul(brush).Invert()
	if !ok {
		b.resetPath()
		return
	}
	b.commit(rule, color.RGBA{}, &ImageFill{ImageBrush: img, Inverse: inv})
}

// DrawImage fills the image box of img, mapped by t and then the current
// transform. An unfilled path under construction is discarded.
func (b *Builder) DrawImage(img ImageBrush, t Affine) {
	b.resetPath()
	saved := b.transform
	b.transform = saved.Mul(t)
	b.Rect(0, 0, img.Width, img.Height)
	b.FillImage(FillNonZero, img, Identity)
	b.transform = saved
}

func (b *Builder) commit(rule FillRule, c color.Color, img *ImageFill) {
	b.endSubpath()
	if b.segments == 0 {
		b.resetPath()
		return
	}

	s := &b.scene
	if !b.hasXform || b.encoded != b.pathTransform {
		s.PathTags = append(s.PathTags, TagTransform)
		s.Transforms = append(s.Transforms, b.pathTransform)
		b.encoded = b.pathTransform
		b.hasXform = true
	}
	s.PathTags = append(s.PathTags, b.tags...)
	s.PathTags = append(s.PathTags, TagPath)
	s.PathData = append(s.PathData, b.data...)

	r, g, bl, a := c.RGBA()
	s.Paths = append(s.Paths, Path{
		BBox:  b.bbox,
		Fill:  rule,
		Color: color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(bl >> 8), A: uint8(a >> 8)},
		Image: img,
	})
	b.resetPath()
}

// Finish returns the scene and resets the builder. The transform is kept.
func (b *Builder) Finish() *Scene {
	b.resetPath()
	s := b.scene
	b.scene = Scene{}
	b.hasXform = false
	return &s
}

func (b *Builder) endSubpath() {
	if b.open && b.subLines > 0 {
		if b.last != b.start {
			b.LineTo(b.start[0], b.start[1])
		}
		b.tags[len(b.tags)-1] |= TagSubpathEnd
	}
	b.open = false
	b.pending = false
	b.subLines = 0
}

func (b *Builder) pushPoint(p [2]float32) {
	if len(b.data) == 0 {
		b.pathTransform = b.transform
	}
	b.data = append(b.data, p[0], p[1])
	x, y := b.pathTransform.Apply(p[0], p[1])
	b.bbox = b.bbox.union(x, y)
}

func (b *Builder) resetPath() {
	b.tags = b.tags[:0]
	b.data = b.data[:0]
	b.bbox = emptyRect
	b.segments = 0
	b.open = false
	b.pending = false
	b.subLines = 0
}
