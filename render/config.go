// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"encoding/binary"
	"fmt"
)

// Config holds the pipeline constants shared by every stage.
//
// It is uploaded as a configuration block at binding 0 of each stage: 16
// consecutive little-endian u32 fields in this order.
type Config struct {
	// WidthInTiles is the number of tile columns in the render target.
	WidthInTiles uint32

	// HeightInTiles is the number of tile rows in the render target.
	HeightInTiles uint32

	// TargetWidth is the render target width in pixels.
	TargetWidth uint32

	// TargetHeight is the render target height in pixels.
	TargetHeight uint32

	// NumDrawObj is the number of draw objects. Every path is one fill.
	NumDrawObj uint32

	// NumPaths is the number of paths in the scene.
	NumPaths uint32

	// NumPathTags is the padded tag count, a multiple of PathtagGroup.
	NumPathTags uint32

	// NumTiles is the number of tile headers across all paths.
	NumTiles uint32

	// SegmentCapacity is the number of segment records allocated.
	SegmentCapacity uint32

	// PathTagBase is the offset (in u32 words) of path tags in the scene buffer.
	PathTagBase uint32

	// PathDataBase is the offset (in u32 words) of path data.
	PathDataBase uint32

	// TransformBase is the offset (in u32 words) of transforms.
	TransformBase uint32

	// PathBase is the offset (in u32 words) of path records.
	PathBase uint32

	// BaseColor is the premultiplied background, packed r | g<<8 | b<<16 | a<<24.
	BaseColor uint32

	// NumTransforms is the number of transforms.
	NumTransforms uint32

	// ImageBase is the offset (in u32 words) of image records.
	ImageBase uint32
}

// ConfigSize is the encoded size of Config in bytes.
const ConfigSize = 16 * 4

// Bytes encodes c.
func (c Config) Bytes() []byte {
	buf := make([]byte, ConfigSize)
	le := binary.LittleEndian
	le.PutUint32(buf[0:4], c.WidthInTiles)
	le.PutUint32(buf[4:8], c.HeightInTiles)
	le.PutUint32(buf[8:12], c.TargetWidth)
	le.PutUint32(buf[12:16], c.TargetHeight)
	le.PutUint32(buf[16:20], c.NumDrawObj)
	le.PutUint32(buf[20:24], c.NumPaths)
	le.PutUint32(buf[24:28], c.NumPathTags)
	le.PutUint32(buf[28:32], c.NumTiles)
	le.PutUint32(buf[32:36], c.SegmentCapacity)
	le.PutUint32(buf[36:40], c.PathTagBase)
	le.PutUint32(buf[40:44], c.PathDataBase)
	le.PutUint32(buf[44:48], c.TransformBase)
	le.PutUint32(buf[48:52], c.PathBase)
	le.PutUint32(buf[52:56], c.BaseColor)
	le.PutUint32(buf[56:60], c.NumTransforms)
	le.PutUint32(buf[60:64], c.ImageBase)
	return buf
}

// ParseConfig decodes a Config written by Bytes.
func ParseConfig(b []byte) (Config, error) {
	if len(b) < ConfigSize {
		return Config{}, fmt.Errorf("render: config is %d bytes, want %d", len(b), ConfigSize)
	}
	le := binary.LittleEndian
	return Config{
		WidthInTiles:    le.Uint32(b[0:4]),
		HeightInTiles:   le.Uint32(b[4:8]),
		TargetWidth:     le.Uint32(b[8:12]),
		TargetHeight:    le.Uint32(b[12:16]),
		NumDrawObj:      le.Uint32(b[16:20]),
		NumPaths:        le.Uint32(b[20:24]),
		NumPathTags:     le.Uint32(b[24:28]),
		NumTiles:        le.Uint32(b[28:32]),
		SegmentCapacity: le.Uint32(b[32:36]),
		PathTagBase:     le.Uint32(b[36:40]),
		PathDataBase:    le.Uint32(b[40:44]),
		TransformBase:   le.Uint32(b[44:48]),
		PathBase:        le.Uint32(b[48:52]),
		BaseColor:       le.Uint32(b[52:56]),
		NumTransforms:   le.Uint32(b[56:60]),
		ImageBase:       le.Uint32(b[60:64]),
	}, nil
}

// PrefixConfig is the configuration block of the prefix_sum stage.
type PrefixConfig struct {
	N         uint32
	TileWidth uint32
	NumTiles  uint32
}

// Bytes encodes c into 16 bytes.
func (c PrefixConfig) Bytes() []byte {
	buf := make([]byte, 16)
	le := binary.LittleEndian
	le.PutUint32(buf[0:4], c.N)
	le.PutUint32(buf[4:8], c.TileWidth)
	le.PutUint32(buf[8:12], c.NumTiles)
	return buf
}

// ParsePrefixConfig decodes a PrefixConfig.
func ParsePrefixConfig(b []byte) (PrefixConfig, error) {
	if len(b) < 12 {
		return PrefixConfig{}, fmt.Errorf("render: prefix config is %d bytes, want 16", len(b))
	}
	le := binary.LittleEndian
	return PrefixConfig{N: le.Uint32(b[0:4]), TileWidth: le.Uint32(b[4:8]), NumTiles: le.Uint32(b[8:12])}, nil
}

// BlurConfig is the configuration block of the blur stage.
type BlurConfig struct {
	Width  uint32
	Height uint32
	Radius uint32
}

// Bytes encodes c into 16 bytes.
func (c BlurConfig) Bytes() []byte {
	buf := make([]byte, 16)
	le := binary.LittleEndian
	le.PutUint32(buf[0:4], c.Width)
	le.PutUint32(buf[4:8], c.Height)
	le.PutUint32(buf[8:12], c.Radius)
	return buf
}

// BlitConfig is the configuration block of the image_blit stage: a source
// image copied into the atlas at row DstY.
type BlitConfig struct {
	SrcWidth  uint32
	SrcHeight uint32
	DstY      uint32
	DstWidth  uint32
}

// Bytes encodes c into 16 bytes.
func (c BlitConfig) Bytes() []byte {
	buf := make([]byte, 16)
	le := binary.LittleEndian
	le.PutUint32(buf[0:4], c.SrcWidth)
	le.PutUint32(buf[4:8], c.SrcHeight)
	le.PutUint32(buf[8:12], c.DstY)
	le.PutUint32(buf[12:16], c.DstWidth)
	return buf
}

// ParseBlitConfig decodes a BlitConfig.
func ParseBlitConfig(b []byte) (BlitConfig, error) {
	if len(b) < 16 {
		return BlitConfig{}, fmt.Errorf("render: blit config is %d bytes, want 16", len(b))
	}
	le := binary.LittleEndian
	return BlitConfig{
		SrcWidth:  le.Uint32(b[0:4]),
		SrcHeight: le.Uint32(b[4:8]),
		DstY:      le.Uint32(b[8:12]),
		DstWidth:  le.Uint32(b[12:16]),
	}, nil
}

// ParseBlurConfig decodes a BlurConfig.
func ParseBlurConfig(b []byte) (BlurConfig, error) {
	if len(b) < 12 {
		return BlurConfig{}, fmt.Errorf("render: blur config is %d bytes, want 16", len(b))
	}
	le := binary.LittleEndian
	return BlurConfig{Width: le.Uint32(b[0:4]), Height: le.Uint32(b[4:8]), Radius: le.Uint32(b[8:12])}, nil
}
