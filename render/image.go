// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"fmt"
	"math"

	"github.com/gogpu/vgraph/recording"
	"github.com/gogpu/vgraph/scan"
	"github.com/gogpu/vgraph/scene"
	"github.com/gogpu/vgraph/shaders"
)

// atlas packs the bound images into one image, stacked top to bottom in
// slot order.
type atlas struct {
	width, height uint32
	rows          []uint32 // first atlas row of each slot
}

func newAtlas(images []recording.ImageProxy) (atlas, error) {
	a := atlas{width: 1, rows: make([]uint32, len(images))}
	var height uint64
	for i, img := range images {
		if img.Width == 0 || img.Height == 0 {
			return atlas{}, fmt.Errorf("%w: image slot %d (%q) is empty", ErrInvalidParams, i, img.Label)
		}
		if img.Format != recording.FormatRGBA8 {
			return atlas{}, fmt.Errorf("%w: image slot %d has format %s", ErrInvalidParams, i, img.Format)
		}
		a.rows[i] = uint32(min(height, math.MaxUint32))
		a.width = max(a.width, img.Width)
		height += uint64(img.Height)
	}
	if a.width > MaxTargetSize || uint64(a.width)*height >= scan.Limit32 {
		return atlas{}, fmt.Errorf("%w: image atlas %dx%d is too large", ErrInvalidParams, a.width, height)
	}
	a.height = max(uint32(height), 1)
	return a, nil
}

// blit records the copy of every bound image into the atlas.
func (a atlas) blit(rec *recording.Recording, set *shaders.Set, images []recording.ImageProxy, dst recording.ImageProxy) {
	for i, img := range images {
		cfg := rec.UploadConfig("blit_config", BlitConfig{
			SrcWidth:  img.Width,
			SrcHeight: img.Height,
			DstY:      a.rows[i],
			DstWidth:  a.width,
		}.Bytes())
		rec.Dispatch(set.ImageBlit, [3]uint32{divCeil(img.Width, TileWidth), divCeil(img.Height, TileHeight), 1},
			[]recording.ResourceProxy{cfg, img, dst})
		rec.FreeBuffer(cfg)
	}
}

// imageRecords encodes one record per image-filled path, in path order.
func imageRecords(sc *scene.Scene, images []recording.ImageProxy, a atlas) []uint32 {
	var out []uint32
	for _, p := range sc.Paths {
		f := p.Image
		if f == nil {
			continue
		}
		img := images[f.Slot]
		toTexel := scene.Scale(float32(img.Width)/f.Width, float32(img.Height)/f.Height).Mul(f.Inverse)
		out = append(out,
			a.rows[f.Slot]*a.width,
			a.width,
			img.Width,
			img.Height,
			uint32(f.XExtend)|uint32(f.YExtend)<<2,
			math.Float32bits(f.Alpha),
		)
		for _, v := range toTexel {
			out = append(out, math.Float32bits(v))
		}
	}
	return out
}
