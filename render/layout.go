// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

// Tile geometry.
const (
	TileWidth  = 16
	TileHeight = 16
)

// Workgroup shapes.
const (
	// PathtagReduceWG is the number of tag words reduced by one group.
	PathtagReduceWG = 256

	// PathtagGroup is the number of tags handled by one reduce/scan group.
	PathtagGroup = 4 * PathtagReduceWG

	// PathCoarseWG is the number of tags walked by one path_coarse group.
	PathCoarseWG = 256

	// PrefixTileWidth is the element count per prefix_sum group.
	PrefixTileWidth = 256
)

// Record sizes, in 32-bit words unless noted.
const (
	// PathRecordWords: tile bbox x0, y0, x1, y1 (half-open), tile base,
	// packed premultiplied color, fill rule, image record index+1 (0 for a
	// solid color).
	PathRecordWords = 8

	// ImageRecordWords: atlas row offset in words, atlas stride, image
	// width, image height, x extend | y extend<<2, alpha as float bits, then
	// the six floats of the device-to-texel transform.
	ImageRecordWords = 12

	// TileHeaderWords: segment list head (index+1, 0 for empty) followed by
	// one signed 16.16 winding delta per pixel row.
	TileHeaderWords = 1 + TileHeight
	TileHeaderSize  = 4 * TileHeaderWords

	// SegmentHeaderWords: bump counter, overflow flag, two reserved words.
	SegmentHeaderWords = 4

	// SegmentWords: next (index+1), sort key, x0, y0, x1, y1 in
	// tile-local pixels.
	SegmentWords = 6
	SegmentSize  = 4 * SegmentWords

	// TagMonoidSize is the size of one encoded scene.TagMonoid in bytes.
	TagMonoidSize = 16

	// PrefixStateWords: status, aggregate, inclusive prefix per tile.
	PrefixStateWords = 3
)

// FixedOne is 1.0 in the 16.16 fixed point used for winding deltas.
const FixedOne = 1 << 16

// MaxTargetSize bounds either dimension of a render target.
const MaxTargetSize = 16384

func alignUp(n, to uint32) uint32 {
	return (n + to - 1) / to * to
}

func divCeil(n, d uint32) uint32 {
	return (n + d - 1) / d
}
