// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cpu

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/gogpu/vgraph/render"
	"github.com/gogpu/vgraph/scene"
)

// ErrSegmentOverflow reports a path_coarse run that produced more pieces
// than the segment buffer holds.
var ErrSegmentOverflow = errors.New("segment capacity exceeded")

// pathRecord is the decoded path table entry.
type pathRecord struct {
	x0, y0, x1, y1 uint32 // tile bbox, half-open
	tileBase     uint32
	color        uint32
	fill         scene.FillRule
	image        uint32 // image record index+1, 0 for a solid color
}

func loadPath(sc *Memory, cfg render.Config, ix uint32) pathRecord {
	w := sc.Words[cfg.PathBase+ix*render.PathRecordWords:]
	return pathRecord{
		x0: w[0], y0: w[1], x1: w[2], y1: w[3],
		tileBase: w[4],
		color:    w[5],
		fill:     scene.FillRule(w[6]),
		image:    w[7],
	}
}

func (p pathRecord) width() uint32 { return p.x1 - p.x0 }

func (p pathRecord) empty() bool { return p.x1 <= p.x0 || p.y1 <= p.y0 }

// tile returns the tile index of column tx and row ty, which must lie in
// the bbox.
func (p pathRecord) tile(tx, ty uint32) uint32 {
	return p.tileBase + (ty-p.y0)*p.width() + (tx - p.x0)
}

func loadTransform(sc *Memory, cfg render.Config, transIx uint32) scene.Affine {
	if transIx == 0 {
		return scene.Identity
	}
	var t scene.Affine
	base := cfg.TransformBase + 6*(transIx-1)
	for i := range t {
		t[i] = sc.F32(base + uint32(i))
	}
	return t
}

// fixed converts a device-space y to 16.16 fixed point. Every piece of every
// line evaluates shared points with the same inputs, so per-row deltas of a
// closed path cancel exactly.
func fixed(y float32) int64 {
	return int64(math.Round(float64(y) * render.FixedOne))
}

type coarseCtx struct {
	tiles    *Memory
	segments *Memory
	capacity uint32
}

// pathCoarse clips every line to the tiles of its path and appends the
// pieces to per-tile lists. Each piece adds its per-pixel-row winding to the
// tile to its right.
//
// Bindings: config, scene, tag_monoids, tiles, segments.
func pathCoarse(inv *Invocation) error {
	cfg, err := inv.config()
	if err != nil {
		return err
	}
	sc, monoids := inv.Bindings[1], inv.Bindings[2]
	cc := coarseCtx{tiles: inv.Bindings[3], segments: inv.Bindings[4], capacity: cfg.SegmentCapacity}

	inv.Exec.Run(inv.Groups(), func(g int) {
		lo := uint32(g) * render.PathCoarseWG
		hi := min(lo+render.PathCoarseWG, cfg.NumPathTags)
		for ix := lo; ix < hi; ix++ {
			word := sc.Words[cfg.PathTagBase+ix/4]
			tag := byte(word >> (8 * (ix % 4)))
			if !scene.IsSegment(tag) {
				continue
			}
			m := scene.LoadTagMonoid(monoids.Words[(ix/4)*scene.TagMonoidWords:]).
				Combine(scene.PrefixInWord(word, int(ix%4)))

			path := loadPath(sc, cfg, m.PathIx)
			if path.empty() {
				continue
			}
			t := loadTransform(sc, cfg, m.TransIx)
			off := cfg.PathDataBase + m.PathSegOffset
			x0, y0 := t.Apply(sc.F32(off), sc.F32(off+1))
			x1, y1 := t.Apply(sc.F32(off+2), sc.F32(off+3))
			cc.line(ix, path, x0, y0, x1, y1)
		}
	})
	if seg := cc.segments.Words; seg[1] != 0 {
		return fmt.Errorf("%w: %d pieces for %d slots", ErrSegmentOverflow, seg[0], cfg.SegmentCapacity)
	}
	return nil
}

// line emits the pieces of one line in device space.
func (cc *coarseCtx) line(key uint32, path pathRecord, x0, y0, x1, y1 float32) {
	if y0 == y1 {
		return
	}
	// Walk top to bottom; pieces are stored in the original direction.
	up := y0 > y1
	ax, ay, bx, by := x0, y0, x1, y1
	if up {
		ax, ay, bx, by = x1, y1, x0, y0
	}
	dxdy := (bx - ax) / (by - ay)
	xAt := func(y float32) float32 {
		if y <= ay {
			return ax
		}
		if y >= by {
			return bx
		}
		return ax + (y-ay)*dxdy
	}

	top := float32(path.y0 * render.TileHeight)
	bottom := float32(path.y1 * render.TileHeight)
	ya, yb := max(ay, top), min(by, bottom)
	if ya >= yb {
		return
	}

	left := float32(path.x0 * render.TileWidth)
	right := float32(path.x1 * render.TileWidth)
	rowLo := uint32(math.Floor(float64(ya) / render.TileHeight))
	for ty := rowLo; ty < path.y1; ty++ {
		ry0 := max(ya, float32(ty*render.TileHeight))
		ry1 := min(yb, float32((ty+1)*render.TileHeight))
		if ry0 >= ry1 {
			break
		}
		cc.row(key, path, ty, up, ry0, xAt(ry0), ry1, xAt(ry1), left, right)
	}
}

// row splits the part of a line within one tile row, from (px0, ry0) down to
// (px1, ry1), at column boundaries. The part left of the bbox becomes one
// vertical piece at the left edge of the first column; the part right of the
// bbox is dropped.
func (cc *coarseCtx) row(key uint32, path pathRecord, ty uint32, up bool,
	ry0, px0, ry1, px1, left, right float32) {
	dxdy := float32(0)
	if ry1 > ry0 {
		dxdy = (px1 - px0) / (ry1 - ry0)
	}
	yAt := func(x float32) float32 {
		if px1 == px0 {
			return ry0
		}
		return ry0 + (x-px0)/dxdy
	}

	type cut struct{ x, y float32 }
	pts := []cut{{px0, ry0}}
	xlo, xhi := min(px0, px1), max(px0, px1)
	step := float32(render.TileWidth)
	// Only boundaries in [left, right] matter.
	if px1 > px0 {
		first := math.Floor(float64(max(xlo, left-1))/render.TileWidth) + 1
		for b := float32(first) * step; b < xhi && b <= right; b += step {
			pts = append(pts, cut{b, yAt(b)})
		}
	} else if px1 < px0 {
		first := math.Ceil(float64(min(xhi, right+1))/render.TileWidth) - 1
		for b := float32(first) * step; b > xlo && b >= left; b -= step {
			pts = append(pts, cut{b, yAt(b)})
		}
	}
	pts = append(pts, cut{px1, ry1})

	var leftY0, leftY1 float32
	hasLeft := false
	for i := 0; i+1 < len(pts); i++ {
		a, b := pts[i], pts[i+1]
		if b.y <= a.y {
			continue
		}
		mid := 0.5 * (a.x + b.x)
		switch {
		case mid >= right:
			continue
		case mid < left:
			if !hasLeft {
				leftY0, hasLeft = a.y, true
			}
			leftY1 = b.y
			continue
		}
		tx := uint32(math.Floor(float64(mid) / render.TileWidth))
		cc.emit(key, path, tx, ty, up, a.x, a.y, b.x, b.y)
	}
	if hasLeft {
		cc.emit(key, path, path.x0, ty, up, left, leftY0, left, leftY1)
	}
}

// emit appends one piece, given top to bottom in device space, to tile
// (tx, ty) and adds its winding to the tile to the right.
func (cc *coarseCtx) emit(key uint32, path pathRecord, tx, ty uint32, up bool, x0, y0, x1, y1 float32) {
	tileIx := path.tile(tx, ty)
	ox := float32(tx * render.TileWidth)
	oy := float32(ty * render.TileHeight)

	seg := cc.segments.Words
	slot := atomic.AddUint32(&seg[0], 1) - 1
	if slot >= cc.capacity {
		atomic.StoreUint32(&seg[1], 1)
		return
	}
	lx0, ly0 := clamp16(x0-ox), clamp16(y0-oy)
	lx1, ly1 := clamp16(x1-ox), clamp16(y1-oy)
	if up {
		lx0, ly0, lx1, ly1 = lx1, ly1, lx0, ly0
	}
	rec := seg[render.SegmentHeaderWords+slot*render.SegmentWords:]
	rec[1] = key
	rec[2] = math.Float32bits(lx0)
	rec[3] = math.Float32bits(ly0)
	rec[4] = math.Float32bits(lx1)
	rec[5] = math.Float32bits(ly1)
	head := &cc.tiles.Words[tileIx*render.TileHeaderWords]
	rec[0] = atomic.SwapUint32(head, slot+1)

	if tx+1 >= path.x1 {
		return
	}
	next := cc.tiles.Words[(tileIx+1)*render.TileHeaderWords+1:]
	for py := uint32(0); py < render.TileHeight; py++ {
		rowTop := oy + float32(py)
		lo, hi := max(y0, rowTop), min(y1, rowTop+1)
		if lo >= hi {
			continue
		}
		d := fixed(hi) - fixed(lo)
		if up {
			d = -d
		}
		atomic.AddUint32(&next[py], uint32(int32(d)))
	}
}

func clamp16(v float32) float32 {
	return min(max(v, 0), render.TileWidth)
}
