// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cpu

import (
	"fmt"
	"math"

	"github.com/gogpu/vgraph/render"
	"github.com/gogpu/vgraph/scene"
)

// imageBlit copies a source image into rows DstY.. of the atlas, one tile
// per workgroup.
//
// Bindings: config, source, atlas.
func imageBlit(inv *Invocation) error {
	cfg, err := render.ParseBlitConfig(inv.Bindings[0].Bytes())
	if err != nil {
		return err
	}
	src, dst := inv.Bindings[1], inv.Bindings[2]
	if cfg.SrcWidth > cfg.DstWidth ||
		uint64(cfg.SrcWidth)*uint64(cfg.SrcHeight) > uint64(len(src.Words)) ||
		uint64(cfg.DstY+cfg.SrcHeight)*uint64(cfg.DstWidth) > uint64(len(dst.Words)) {
		return fmt.Errorf("blit of %dx%d at row %d does not fit", cfg.SrcWidth, cfg.SrcHeight, cfg.DstY)
	}
	cols := int(inv.Workgroups[0])

	inv.Exec.Run(inv.Groups(), func(g int) {
		tx, ty := uint32(g%cols), uint32(g/cols)
		for py := range uint32(render.TileHeight) {
			y := ty*render.TileHeight + py
			if y >= cfg.SrcHeight {
				break
			}
			row := (cfg.DstY + y) * cfg.DstWidth
			for px := range uint32(render.TileWidth) {
				x := tx*render.TileWidth + px
				if x >= cfg.SrcWidth {
					break
				}
				dst.Words[row+x] = src.Words[y*cfg.SrcWidth+x]
			}
		}
	})
	return nil
}

// imageRecord is the decoded image record of an image-filled path.
type imageRecord struct {
	offset, stride   uint32
	width, height    uint32
	xExtend, yExtend scene.Extend
	alpha            float32
	toTexel          scene.Affine
}

func loadImage(sc *Memory, cfg render.Config, ix uint32) *imageRecord {
	base := cfg.ImageBase + ix*render.ImageRecordWords
	w := sc.Words[base:]
	r := &imageRecord{
		offset:  w[0],
		stride:  w[1],
		width:   w[2],
		height:  w[3],
		xExtend: scene.Extend(w[4] & 3),
		yExtend: scene.Extend(w[4] >> 2 & 3),
		alpha:   math.Float32frombits(w[5]),
	}
	for i := range r.toTexel {
		r.toTexel[i] = sc.F32(base + 6 + uint32(i))
	}
	return r
}

// sample returns the premultiplied color at the center of device pixel
// (x, y), nearest texel, scaled by the brush alpha.
func (r *imageRecord) sample(atlas *Memory, x, y uint32) [4]float32 {
	u, v := r.toTexel.Apply(float32(x)+0.5, float32(y)+0.5)
	tx := r.xExtend.Wrap(floorInt32(u), int32(r.width))
	ty := r.yExtend.Wrap(floorInt32(v), int32(r.height))
	c := unpackColor(atlas.Words[r.offset+uint32(ty)*r.stride+uint32(tx)])
	for i := range c {
		c[i] *= r.alpha
	}
	return c
}

func floorInt32(v float32) int32 {
	f := math.Floor(float64(v))
	return int32(min(max(f, math.MinInt32), math.MaxInt32))
}
