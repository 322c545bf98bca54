// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package render plans compute work. It turns a flattened scene into a
// Recording that rasterizes it, without touching any device.
//
// The plan for a scene is six dispatches in a fixed order:
//
//	pathtag_reduce  one group per 1024 tags: per-group TagMonoid aggregates
//	pathtag_scan    one group per 1024 tags: lookback over the aggregates,
//	                then an exclusive TagMonoid per tag word
//	path_coarse     one group per 256 tags: clip lines to 16x16 tiles and
//	                append them to per-tile lists (tile buffer zero-filled)
//	backdrop        one group per tile row: carry winding across tiles
//	fine            one group per tile: coverage and compositing into the
//	                output image
//
// Every stage runs even for an empty scene, so the result is always a
// resolved image of the requested size.
//
// The buffer layouts shared with the kernels are defined in layout.go.
package render
