// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"encoding/binary"
	"errors"

	"github.com/gogpu/vgraph/recording"
	"github.com/gogpu/vgraph/scan"
	"github.com/gogpu/vgraph/shaders"
)

// PrefixPlan is the Recording for an inclusive prefix sum over u32 values.
type PrefixPlan struct {
	Recording *recording.Recording

	// Output receives len(values) inclusive sums.
	Output recording.BufferProxy

	// State holds the per-tile lookback records (status, aggregate, prefix).
	State recording.BufferProxy
}

// PrefixSum plans an inclusive prefix sum of values with the decoupled
// lookback stage. It fails with scan.ErrOverflow when the total does not fit.
func PrefixSum(values []uint32, set *shaders.Set) (*PrefixPlan, error) {
	if set == nil {
		return nil, errors.New("render: nil shader set")
	}
	if err := scan.CheckSum32(values); err != nil {
		return nil, err
	}
	n := uint32(len(values))
	nTiles := divCeil(n, PrefixTileWidth)

	data := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[4*i:], v)
	}

	rec := recording.New()
	cfg := rec.UploadConfig("prefix_config", PrefixConfig{N: n, TileWidth: PrefixTileWidth, NumTiles: nTiles}.Bytes())
	in := rec.Upload("prefix_input", data)
	out := rec.CreateBuffer("prefix_output", 4*uint64(n))
	state := rec.CreateBuffer("prefix_state", 4*PrefixStateWords*uint64(nTiles))
	rec.ZeroFill(state)
	rec.Dispatch(set.PrefixSum, [3]uint32{nTiles, 1, 1}, []recording.ResourceProxy{cfg, in, out, state})
	rec.FreeBuffer(in)
	rec.FreeBuffer(cfg)

	return &PrefixPlan{Recording: rec, Output: out, State: state}, nil
}

// DecodeU32 decodes little-endian u32 words.
func DecodeU32(b []byte) []uint32 {
	out := make([]uint32, len(b)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(b[4*i:])
	}
	return out
}
