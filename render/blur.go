// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"errors"
	"fmt"

	"github.com/gogpu/vgraph/recording"
	"github.com/gogpu/vgraph/shaders"
)

// MaxBlurRadius bounds the box blur radius in pixels.
const MaxBlurRadius = 256

// BlurPlan is the Recording for a box blur of one image.
type BlurPlan struct {
	Recording *recording.Recording
	Output    recording.ImageProxy
}

// Blur plans a separable-equivalent box blur of src with the given radius.
// src must be bound by the caller, either as an external image or through an
// UploadImage in a Recording executed earlier on the same engine.
func Blur(src recording.ImageProxy, set *shaders.Set, radius uint32) (*BlurPlan, error) {
	if set == nil {
		return nil, errors.New("render: nil shader set")
	}
	if src.Width == 0 || src.Height == 0 {
		return nil, fmt.Errorf("%w: blur source %s is empty", ErrInvalidParams, src)
	}
	if radius > MaxBlurRadius {
		return nil, fmt.Errorf("%w: blur radius %d exceeds %d", ErrInvalidParams, radius, MaxBlurRadius)
	}

	rec := recording.New()
	cfg := rec.UploadConfig("blur_config", BlurConfig{Width: src.Width, Height: src.Height, Radius: radius}.Bytes())
	out := rec.CreateImage("blur_output", src.Width, src.Height, recording.FormatRGBA8)
	rec.Dispatch(set.Blur, [3]uint32{divCeil(src.Width, TileWidth), divCeil(src.Height, TileHeight), 1},
		[]recording.ResourceProxy{cfg, src, out})
	rec.FreeBuffer(cfg)
	return &BlurPlan{Recording: rec, Output: out}, nil
}
