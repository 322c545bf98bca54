// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cpu

import "github.com/gogpu/vgraph/render"

// blur is a box blur over a (2r+1)x(2r+1) window clipped to the image,
// computed as a horizontal pass followed by a vertical pass.
//
// Bindings: config, source, output.
func blur(inv *Invocation) error {
	cfg, err := render.ParseBlurConfig(inv.Bindings[0].Bytes())
	if err != nil {
		return err
	}
	src, dst := inv.Bindings[1], inv.Bindings[2]
	w, h, r := int(cfg.Width), int(cfg.Height), int(cfg.Radius)

	tmp := make([][4]float32, w*h)
	inv.Exec.Run(h, func(y int) {
		row := src.Words[y*w : (y+1)*w]
		for x := range w {
			lo, hi := max(x-r, 0), min(x+r, w-1)
			var sum [4]float32
			for k := lo; k <= hi; k++ {
				p := row[k]
				for c := range sum {
					sum[c] += float32(p >> (8 * uint(c)) & 0xff)
				}
			}
			n := float32(hi - lo + 1)
			for c := range sum {
				tmp[y*w+x][c] = sum[c] / n
			}
		}
	})
	inv.Exec.Run(w, func(x int) {
		for y := range h {
			lo, hi := max(y-r, 0), min(y+r, h-1)
			var sum [4]float32
			for k := lo; k <= hi; k++ {
				for c := range sum {
					sum[c] += tmp[k*w+x][c]
				}
			}
			n := float32(hi - lo + 1)
			var px uint32
			for c := range sum {
				px |= uint32(min(sum[c]/n+0.5, 255)) << (8 * uint(c))
			}
			dst.Words[y*w+x] = px
		}
	})
	return nil
}
