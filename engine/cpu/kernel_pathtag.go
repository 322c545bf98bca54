// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cpu

import (
	"runtime"
	"sync/atomic"

	"github.com/gogpu/vgraph/render"
	"github.com/gogpu/vgraph/scan"
	"github.com/gogpu/vgraph/scene"
)

// pathtagReduce writes one TagMonoid aggregate per group of tag words.
//
// Bindings: config, scene, reduced.
func pathtagReduce(inv *Invocation) error {
	cfg, err := inv.config()
	if err != nil {
		return err
	}
	sc, reduced := inv.Bindings[1], inv.Bindings[2]
	nWords := cfg.NumPathTags / 4

	inv.Exec.Run(inv.Groups(), func(g int) {
		lo := uint32(g) * render.PathtagReduceWG
		hi := min(lo+render.PathtagReduceWG, nWords)
		var agg scene.TagMonoid
		for ix := lo; ix < hi; ix++ {
			agg = agg.Combine(scene.NewTagMonoid(sc.Words[cfg.PathTagBase+ix]))
		}
		agg.Put(reduced.Words[g*scene.TagMonoidWords:])
	})
	return nil
}

// pathtagScan resolves each group's prefix by lookback over the reduced
// aggregates, then writes the exclusive TagMonoid of every tag word.
//
// Bindings: config, scene, reduced, tag_monoids.
func pathtagScan(inv *Invocation) error {
	cfg, err := inv.config()
	if err != nil {
		return err
	}
	sc, reduced, out := inv.Bindings[1], inv.Bindings[2], inv.Bindings[3]
	nWords := cfg.NumPathTags / 4

	groups := inv.Groups()
	aggregates := make([]scene.TagMonoid, groups)
	for g := range aggregates {
		aggregates[g] = scene.LoadTagMonoid(reduced.Words[g*scene.TagMonoidWords:])
	}
	prefixes := scan.ResolveTiles[scene.TagMonoid](scene.TagMonoids{}, aggregates, inv.Exec)

	inv.Exec.Run(groups, func(g int) {
		lo := uint32(g) * render.PathtagReduceWG
		hi := min(lo+render.PathtagReduceWG, nWords)
		m := prefixes[g]
		for ix := lo; ix < hi; ix++ {
			m.Put(out.Words[ix*scene.TagMonoidWords:])
			m = m.Combine(scene.NewTagMonoid(sc.Words[cfg.PathTagBase+ix]))
		}
	})
	return nil
}

// prefixSum is the single-pass inclusive scan over u32 with decoupled
// lookback. Tile state lives in device memory as three words per tile:
// status, aggregate, inclusive prefix.
//
// Bindings: config, input, output, tile state.
func prefixSum(inv *Invocation) error {
	cfg, err := render.ParsePrefixConfig(inv.Bindings[0].Bytes())
	if err != nil {
		return err
	}
	in, out, state := inv.Bindings[1], inv.Bindings[2], inv.Bindings[3]
	const (
		notReady  = 0
		aggregate = 1
		prefix    = 2
	)

	inv.Exec.Run(inv.Groups(), func(g int) {
		lo := uint32(g) * cfg.TileWidth
		hi := min(lo+cfg.TileWidth, cfg.N)
		var acc uint32
		for i := lo; i < hi; i++ {
			acc += in.Words[i]
			out.Words[i] = acc
		}

		st := state.Words[3*g : 3*g+3]
		if g == 0 {
			atomic.StoreUint32(&st[2], acc)
			atomic.StoreUint32(&st[0], prefix)
			return
		}
		atomic.StoreUint32(&st[1], acc)
		atomic.StoreUint32(&st[0], aggregate)

		var exclusive uint32
		for j := g - 1; j >= 0; {
			p := state.Words[3*j : 3*j+3]
			switch atomic.LoadUint32(&p[0]) {
			case prefix:
				exclusive += atomic.LoadUint32(&p[2])
				j = -1
			case aggregate:
				exclusive += atomic.LoadUint32(&p[1])
				j--
			case notReady:
				runtime.Gosched()
			}
		}
		atomic.StoreUint32(&st[2], exclusive+acc)
		atomic.StoreUint32(&st[0], prefix)

		for i := lo; i < hi; i++ {
			out.Words[i] += exclusive
		}
	})
	return nil
}
