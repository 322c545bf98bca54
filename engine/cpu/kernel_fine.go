// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cpu

import (
	"cmp"
	"math"
	"slices"

	"github.com/gogpu/vgraph/render"
	"github.com/gogpu/vgraph/scene"
)

// backdrop sums winding deltas across each path's tiles, one tile row per
// workgroup, in place.
//
// Bindings: config, scene, tiles.
func backdrop(inv *Invocation) error {
	cfg, err := inv.config()
	if err != nil {
		return err
	}
	sc, tiles := inv.Bindings[1], inv.Bindings[2]

	inv.Exec.Run(inv.Groups(), func(g int) {
		ty := uint32(g)
		for ix := range cfg.NumPaths {
			path := loadPath(sc, cfg, ix)
			if path.empty() || ty < path.y0 || ty >= path.y1 {
				continue
			}
			for tx := path.x0 + 1; tx < path.x1; tx++ {
				prev := tiles.Words[path.tile(tx-1, ty)*render.TileHeaderWords+1:]
				cur := tiles.Words[path.tile(tx, ty)*render.TileHeaderWords+1:]
				for py := range render.TileHeight {
					cur[py] += prev[py]
				}
			}
		}
	})
	return nil
}

type piece struct {
	key            uint32
	x0, y0, x1, y1 float32
}

func comparePieces(a, b piece) int {
	return cmp.Or(
		cmp.Compare(a.key, b.key),
		cmp.Compare(a.y0, b.y0),
		cmp.Compare(a.x0, b.x0),
		cmp.Compare(a.y1, b.y1),
		cmp.Compare(a.x1, b.x1),
	)
}

// fineTile is the per-workgroup scratch of the fine stage.
type fineTile struct {
	area   [render.TileHeight][render.TileWidth + 2]float32
	color  [render.TileHeight][render.TileWidth][4]float32
	pieces []piece
}

// fine rasterizes every path overlapping a tile in draw order and
// composites it over the base color. Image-filled paths sample the atlas.
//
// Bindings: config, scene, tiles, segments, image atlas, output.
func fine(inv *Invocation) error {
	cfg, err := inv.config()
	if err != nil {
		return err
	}
	sc, tiles, segments := inv.Bindings[1], inv.Bindings[2], inv.Bindings[3]
	atlas, out := inv.Bindings[4], inv.Bindings[5]
	cols := int(inv.Workgroups[0])

	paths := make([]pathRecord, cfg.NumPaths)
	images := make([]*imageRecord, cfg.NumPaths)
	for ix := range paths {
		paths[ix] = loadPath(sc, cfg, uint32(ix))
		if n := paths[ix].image; n != 0 {
			images[ix] = loadImage(sc, cfg, n-1)
		}
	}
	base := unpackColor(cfg.BaseColor)
	capacity := cfg.SegmentCapacity

	inv.Exec.Run(inv.Groups(), func(g int) {
		tx, ty := uint32(g%cols), uint32(g/cols)
		ft := &fineTile{}
		for py := range render.TileHeight {
			for px := range render.TileWidth {
				ft.color[py][px] = base
			}
		}

		for ix, path := range paths {
			if path.empty() || tx < path.x0 || tx >= path.x1 || ty < path.y0 || ty >= path.y1 {
				continue
			}
			tileIx := path.tile(tx, ty)
			header := tiles.Words[tileIx*render.TileHeaderWords:]

			ft.pieces = ft.pieces[:0]
			for next := header[0]; next != 0; {
				slot := next - 1
				if slot >= capacity {
					break
				}
				rec := segments.Words[render.SegmentHeaderWords+slot*render.SegmentWords:]
				ft.pieces = append(ft.pieces, piece{
					key: rec[1],
					x0:  math.Float32frombits(rec[2]), y0: math.Float32frombits(rec[3]),
					x1: math.Float32frombits(rec[4]), y1: math.Float32frombits(rec[5]),
				})
				next = rec[0]
			}
			slices.SortFunc(ft.pieces, comparePieces)

			ft.area = [render.TileHeight][render.TileWidth + 2]float32{}
			for _, p := range ft.pieces {
				accumulate(&ft.area, p)
			}
			src := unpackColor(path.color)
			img := images[ix]
			for py := range render.TileHeight {
				acc := float32(int32(header[1+py])) / render.FixedOne
				for px := range render.TileWidth {
					acc += ft.area[py][px]
					cov := coverage(acc, path.fill)
					if cov == 0 {
						continue
					}
					if img != nil {
						src = img.sample(atlas, tx*render.TileWidth+uint32(px), ty*render.TileHeight+uint32(py))
					}
					dst := &ft.color[py][px]
					keep := 1 - src[3]*cov
					for c := range dst {
						dst[c] = src[c]*cov + dst[c]*keep
					}
				}
			}
		}

		for py := range uint32(render.TileHeight) {
			y := ty*render.TileHeight + py
			if y >= cfg.TargetHeight {
				break
			}
			for px := range uint32(render.TileWidth) {
				x := tx*render.TileWidth + px
				if x >= cfg.TargetWidth {
					break
				}
				out.Words[y*cfg.TargetWidth+x] = packColor(ft.color[py][px])
			}
		}
	})
	return nil
}

// accumulate adds the signed area of one piece to the accumulation buffer.
// Summing a row left to right yields the coverage of each pixel.
func accumulate(area *[render.TileHeight][render.TileWidth + 2]float32, p piece) {
	x0, y0, x1, y1 := p.x0, p.y0, p.x1, p.y1
	if y0 == y1 {
		return
	}
	dir := float32(1)
	if y0 > y1 {
		dir = -1
		x0, y0, x1, y1 = x1, y1, x0, y0
	}
	dxdy := (x1 - x0) / (y1 - y0)
	x := x0
	if y0 < 0 {
		x -= y0 * dxdy
	}
	yLo := max(int(y0), 0)
	yHi := min(int(math.Ceil(float64(y1))), render.TileHeight)

	for y := yLo; y < yHi; y++ {
		row := &area[y]
		dy := min(float32(y+1), y1) - max(float32(y), y0)
		xnext := x + dxdy*dy
		d := dy * dir

		xa, xb := clamp16(min(x, xnext)), clamp16(max(x, xnext))
		xaFloor := float32(math.Floor(float64(xa)))
		xai := int(xaFloor)
		xbCeil := float32(math.Ceil(float64(xb)))
		xbi := int(xbCeil)

		if xbi <= xai+1 {
			xmf := 0.5*(xa+xb) - xaFloor
			row[xai] += d - d*xmf
			row[xai+1] += d * xmf
		} else {
			s := 1 / (xb - xa)
			xaf := xa - xaFloor
			a0 := 0.5 * s * (1 - xaf) * (1 - xaf)
			xbf := xb - xbCeil + 1
			am := 0.5 * s * xbf * xbf
			row[xai] += d * a0
			if xbi == xai+2 {
				row[xai+1] += d * (1 - a0 - am)
			} else {
				a1 := s * (1.5 - xaf)
				row[xai+1] += d * (a1 - a0)
				for xi := xai + 2; xi < xbi-1; xi++ {
					row[xi] += d * s
				}
				a2 := a1 + float32(xbi-xai-3)*s
				row[xbi-1] += d * (1 - a2 - am)
			}
			row[xbi] += d * am
		}
		x = xnext
	}
}

func coverage(acc float32, rule scene.FillRule) float32 {
	a := float32(math.Abs(float64(acc)))
	if rule == scene.FillEvenOdd {
		a = float32(math.Mod(float64(a), 2))
		if a > 1 {
			a = 2 - a
		}
		return a
	}
	return min(a, 1)
}

func unpackColor(c uint32) [4]float32 {
	return [4]float32{
		float32(c&0xff) / 255,
		float32(c>>8&0xff) / 255,
		float32(c>>16&0xff) / 255,
		float32(c>>24) / 255,
	}
}

func packColor(c [4]float32) uint32 {
	var out uint32
	for i, v := range c {
		out |= uint32(toU8(v)) << (8 * uint(i))
	}
	return out
}

func toU8(v float32) uint8 {
	return uint8(min(max(v*255+0.5, 0), 255))
}
