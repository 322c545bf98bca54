// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package scan implements a single-pass parallel prefix scan using the
// decoupled-lookback protocol.
//
// The input is split into tiles of a fixed width. Each tile scans its own
// elements, publishes its aggregate, then walks backwards over the published
// state of its predecessors until it finds a resolved inclusive prefix,
// folding aggregates along the way. The resolved prefix is itself published
// so later tiles can stop early. Every element is read exactly once.
//
// Tiles are claimed in increasing order from an atomic ticket, so a tile only
// ever waits on tiles already owned by a running lane. That is the only
// inter-tile wait and it always terminates.
//
// The combine must be associative but need not be commutative. It is always
// applied left to right:
//
//	out[i] = m.Combine(...m.Combine(m.Combine(src[0], src[1]), src[2])..., src[i])
//
// Callers using a 32-bit accumulator must check the total first with
// CheckSum32; the scan itself never reports wraparound.
package scan
