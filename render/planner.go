// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image/color"
	"math"

	"github.com/gogpu/vgraph/engine"
	"github.com/gogpu/vgraph/internal/logging"
	"github.com/gogpu/vgraph/recording"
	"github.com/gogpu/vgraph/scan"
	"github.com/gogpu/vgraph/scene"
	"github.com/gogpu/vgraph/shaders"
)

var (
	// ErrInvalidParams reports an unusable render target.
	ErrInvalidParams = fmt.Errorf("render: invalid parameters: %w", engine.ErrValidation)

	// ErrInvalidScene reports a scene that cannot be encoded.
	ErrInvalidScene = fmt.Errorf("render: invalid scene: %w", engine.ErrValidation)
)

// Params describes the render target.
type Params struct {
	Width  uint32
	Height uint32

	// BaseColor is the premultiplied background the scene is composited on.
	BaseColor color.RGBA

	// Images are the RGBA8 images image brushes read, indexed by slot. The
	// caller binds them, typically as engine externals.
	Images []recording.ImageProxy
}

func (p Params) validate() error {
	if p.Width == 0 || p.Height == 0 {
		return fmt.Errorf("%w: target %dx%d is empty", ErrInvalidParams, p.Width, p.Height)
	}
	if p.Width > MaxTargetSize || p.Height > MaxTargetSize {
		return fmt.Errorf("%w: target %dx%d exceeds %d", ErrInvalidParams, p.Width, p.Height, MaxTargetSize)
	}
	if c := p.BaseColor; c.R > c.A || c.G > c.A || c.B > c.A {
		return fmt.Errorf("%w: base color %v is not premultiplied", ErrInvalidParams, c)
	}
	return nil
}

// Plan is the Recording for one scene together with its output image.
type Plan struct {
	Recording *recording.Recording
	Output    recording.ImageProxy
	Config    Config

	// Atlas is the image every bound image is copied into before fine.
	Atlas recording.ImageProxy
}

// Render plans the rasterization of sc into a p.Width x p.Height RGBA8 image.
// A nil scene renders the base color.
func Render(sc *scene.Scene, set *shaders.Set, p Params) (*Plan, error) {
	if set == nil {
		return nil, errors.New("render: nil shader set")
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	if sc == nil {
		sc = &scene.Scene{}
	}
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidScene, err)
	}
	if n := sc.NumImages(); n > uint32(len(p.Images)) {
		return nil, fmt.Errorf("%w: scene reads %d images, %d bound", ErrInvalidScene, n, len(p.Images))
	}
	atl, err := newAtlas(p.Images)
	if err != nil {
		return nil, err
	}

	tagWords := scene.PackTags(sc.PathTags)
	nTags := alignUp(max(uint32(len(sc.PathTags)), 1), PathtagGroup)
	tagWords = append(tagWords, make([]uint32, int(nTags/4)-len(tagWords))...)
	groups := nTags / PathtagGroup

	if err := checkTagTotals(tagWords); err != nil {
		return nil, err
	}

	cfg := Config{
		WidthInTiles:  divCeil(p.Width, TileWidth),
		HeightInTiles: divCeil(p.Height, TileHeight),
		TargetWidth:   p.Width,
		TargetHeight:  p.Height,
		NumDrawObj:    uint32(len(sc.Paths)),
		NumPaths:      uint32(len(sc.Paths)),
		NumPathTags:   nTags,
		NumTransforms: uint32(len(sc.Transforms)),
		BaseColor:     packColor(p.BaseColor),
	}

	records, nTiles, err := pathRecords(sc, cfg.WidthInTiles, cfg.HeightInTiles)
	if err != nil {
		return nil, err
	}
	cfg.NumTiles = nTiles

	segments := EstimateSegments(sc, cfg.WidthInTiles, cfg.HeightInTiles)
	if segments*SegmentWords+SegmentHeaderWords >= scan.Limit32 {
		return nil, fmt.Errorf("%w: %d segment slots", scan.ErrOverflow, segments)
	}
	cfg.SegmentCapacity = uint32(max(segments, 1))

	cfg.PathTagBase = 0
	cfg.PathDataBase = uint32(len(tagWords))
	cfg.TransformBase = cfg.PathDataBase + uint32(len(sc.PathData))
	cfg.PathBase = cfg.TransformBase + 6*uint32(len(sc.Transforms))
	cfg.ImageBase = cfg.PathBase + PathRecordWords*uint32(len(sc.Paths))
	images := imageRecords(sc, p.Images, atl)
	sceneWords := cfg.ImageBase + uint32(len(images))

	buf := make([]byte, 4*uint64(sceneWords))
	le := binary.LittleEndian
	w := 0
	put := func(v uint32) {
		le.PutUint32(buf[w:w+4], v)
		w += 4
	}
	for _, v := range tagWords {
		put(v)
	}
	for _, v := range sc.PathData {
		put(math.Float32bits(v))
	}
	for _, t := range sc.Transforms {
		for _, v := range t {
			put(math.Float32bits(v))
		}
	}
	for _, v := range records {
		put(v)
	}
	for _, v := range images {
		put(v)
	}

	rec := recording.New()
	config := rec.UploadConfig("config", cfg.Bytes())
	sceneBuf := rec.Upload("scene", buf)

	reduced := rec.CreateBuffer("reduced", uint64(groups)*TagMonoidSize)
	rec.Dispatch(set.PathtagReduce, [3]uint32{groups, 1, 1},
		[]recording.ResourceProxy{config, sceneBuf, reduced})

	tagMonoids := rec.CreateBuffer("tag_monoids", uint64(nTags/4)*TagMonoidSize)
	rec.Dispatch(set.PathtagScan, [3]uint32{groups, 1, 1},
		[]recording.ResourceProxy{config, sceneBuf, reduced, tagMonoids})
	rec.FreeBuffer(reduced)

	tiles := rec.CreateBuffer("tiles", uint64(max(nTiles, 1))*TileHeaderSize)
	rec.ZeroFill(tiles)
	segs := rec.CreateBuffer("segments", 4*SegmentHeaderWords+uint64(cfg.SegmentCapacity)*SegmentSize)
	rec.ZeroFill(segs)
	rec.Dispatch(set.PathCoarse, [3]uint32{divCeil(nTags, PathCoarseWG), 1, 1},
		[]recording.ResourceProxy{config, sceneBuf, tagMonoids, tiles, segs})
	rec.FreeBuffer(tagMonoids)

	rec.Dispatch(set.Backdrop, [3]uint32{cfg.HeightInTiles, 1, 1},
		[]recording.ResourceProxy{config, sceneBuf, tiles})

	atlasImg := rec.CreateImage("image_atlas", atl.width, atl.height, recording.FormatRGBA8)
	atl.blit(rec, set, p.Images, atlasImg)

	out := rec.CreateImage("output", p.Width, p.Height, recording.FormatRGBA8)
	rec.Dispatch(set.Fine, [3]uint32{cfg.WidthInTiles, cfg.HeightInTiles, 1},
		[]recording.ResourceProxy{config, sceneBuf, tiles, segs, atlasImg, out})
	rec.FreeBuffer(tiles)
	rec.FreeBuffer(segs)
	rec.FreeBuffer(sceneBuf)
	rec.FreeBuffer(config)
	rec.FreeImage(atlasImg)

	logging.Logger().Debug("render: planned scene",
		"paths", cfg.NumPaths, "tags", nTags, "tiles", nTiles, "images", len(p.Images),
		"segments", cfg.SegmentCapacity, "target", fmt.Sprintf("%dx%d", p.Width, p.Height))

	return &Plan{Recording: rec, Output: out, Config: cfg, Atlas: atlasImg}, nil
}

// checkTagTotals verifies that every TagMonoid field total fits a 32-bit
// accumulator before the scan runs.
func checkTagTotals(words []uint32) error {
	n := len(words) / PathtagReduceWG
	fields := [4][]uint32{}
	for i := range fields {
		fields[i] = make([]uint32, n)
	}
	for g := range n {
		var agg scene.TagMonoid
		for _, w := range words[g*PathtagReduceWG : (g+1)*PathtagReduceWG] {
			agg = agg.Combine(scene.NewTagMonoid(w))
		}
		fields[0][g] = agg.TransIx
		fields[1][g] = agg.PathSegIx
		fields[2][g] = agg.PathSegOffset
		fields[3][g] = agg.PathIx
	}
	for _, f := range fields {
		if err := scan.CheckSum32(f); err != nil {
			return err
		}
	}
	return nil
}

// pathRecords builds the path table and assigns each path a contiguous run
// of tile headers covering its bbox clipped to the target.
func pathRecords(sc *scene.Scene, widthInTiles, heightInTiles uint32) ([]uint32, uint32, error) {
	records := make([]uint32, 0, PathRecordWords*len(sc.Paths))
	var tileBase uint64
	var nImages uint32
	for _, p := range sc.Paths {
		var image uint32
		if p.Image != nil {
			nImages++
			image = nImages
		}
		var x0, y0, x1, y1 uint32
		if !p.BBox.Empty() {
			x0 = clampTile(floorDiv(p.BBox.MinX, TileWidth), widthInTiles)
			y0 = clampTile(floorDiv(p.BBox.MinY, TileHeight), heightInTiles)
			x1 = clampTile(ceilDiv(p.BBox.MaxX, TileWidth), widthInTiles)
			y1 = clampTile(ceilDiv(p.BBox.MaxY, TileHeight), heightInTiles)
			if x1 <= x0 || y1 <= y0 {
				x0, y0, x1, y1 = 0, 0, 0, 0
			}
		}
		records = append(records, x0, y0, x1, y1, uint32(tileBase), p.PackedColor(), uint32(p.Fill), image)
		tileBase += uint64(x1-x0) * uint64(y1-y0)
		if tileBase*TileHeaderWords >= scan.Limit32 {
			return nil, 0, fmt.Errorf("%w: %d tiles", scan.ErrOverflow, tileBase)
		}
	}
	return records, uint32(tileBase), nil
}

// EstimateSegments bounds the number of tile pieces path_coarse can emit.
// A line crossing r tile rows and c tile columns inside the grid splits into
// at most r+c-1 pieces, plus one projected piece per row for the part left of
// the path bbox.
func EstimateSegments(sc *scene.Scene, widthInTiles, heightInTiles uint32) uint64 {
	maxX := float32(widthInTiles * TileWidth)
	maxY := float32(heightInTiles * TileHeight)

	var total uint64
	var offset, transIx uint32
	for _, tag := range sc.PathTags {
		m := scene.NewTagMonoid(uint32(tag))
		if tag == scene.TagTransform {
			transIx++
		}
		if scene.IsSegment(tag) {
			t := scene.Identity
			if transIx > 0 {
				t = sc.Transforms[transIx-1]
			}
			d := sc.PathData[offset : offset+4]
			x0, y0 := t.Apply(d[0], d[1])
			x1, y1 := t.Apply(d[2], d[3])
			ya, yb := clampF(min(y0, y1), 0, maxY), clampF(max(y0, y1), 0, maxY)
			if ya < yb {
				xa, xb := clampF(min(x0, x1), 0, maxX), clampF(max(x0, x1), 0, maxX)
				rows := uint64(floorDiv(yb, TileHeight)-floorDiv(ya, TileHeight)) + 1
				cols := uint64(floorDiv(xb, TileWidth)-floorDiv(xa, TileWidth)) + 1
				total += 2*rows + cols
			}
		}
		offset += m.PathSegOffset
	}
	return total
}

func packColor(c color.RGBA) uint32 {
	return uint32(c.R) | uint32(c.G)<<8 | uint32(c.B)<<16 | uint32(c.A)<<24
}

func floorDiv(v float32, d int) int64 {
	return int64(math.Floor(float64(v) / float64(d)))
}

func ceilDiv(v float32, d int) int64 {
	return int64(math.Ceil(float64(v) / float64(d)))
}

func clampTile(v int64, limit uint32) uint32 {
	if v < 0 {
		return 0
	}
	if v > int64(limit) {
		return limit
	}
	return uint32(v)
}

func clampF(v, lo, hi float32) float32 {
	return min(max(v, lo), hi)
}
