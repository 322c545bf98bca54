package shaders

import (
	"fmt"

	"github.com/gogpu/vgraph/recording"
)

// Stage names of the standard pipeline.
const (
	StagePathtagReduce = "pathtag_reduce"
	StagePathtagScan   = "pathtag_scan"
	StagePathCoarse    = "path_coarse"
	StageBackdrop      = "backdrop"
	StageFine          = "fine"
	StagePrefixSum     = "prefix_sum"
	StageBlur          = "blur"
	StageImageBlit     = "image_blit"
)

// StageSpec is the declared shape of a stage.
type StageSpec struct {
	Name          string
	WorkgroupSize [3]uint32
	Layout        []BindType
}

// Stages returns the standard stages in registration order.
func Stages() []StageSpec {
	rgba := recording.FormatRGBA8
	return []StageSpec{
		// config, scene, reduced
		{StagePathtagReduce, [3]uint32{256, 1, 1}, []BindType{Config, ReadOnly, Buffer}},
		// config, scene, reduced, tag_monoids
		{StagePathtagScan, [3]uint32{256, 1, 1}, []BindType{Config, ReadOnly, ReadOnly, Buffer}},
		// config, scene, tag_monoids, tiles, segments
		{StagePathCoarse, [3]uint32{256, 1, 1}, []BindType{Config, ReadOnly, ReadOnly, Buffer, Buffer}},
		// config, scene, tiles
		{StageBackdrop, [3]uint32{256, 1, 1}, []BindType{Config, ReadOnly, Buffer}},
		// config, scene, tiles, segments, image atlas, output
		{StageFine, [3]uint32{16, 16, 1}, []BindType{Config, ReadOnly, ReadOnly, ReadOnly, ImageRead(rgba), Image(rgba)}},
		// config, input, output, tile state
		{StagePrefixSum, [3]uint32{256, 1, 1}, []BindType{Config, ReadOnly, Buffer, Buffer}},
		// config, source, output
		{StageBlur, [3]uint32{16, 16, 1}, []BindType{Config, ImageRead(rgba), Image(rgba)}},
		// config, source, atlas
		{StageImageBlit, [3]uint32{16, 16, 1}, []BindType{Config, ImageRead(rgba), Image(rgba)}},
	}
}

// Set holds the ids of the standard stages.
type Set struct {
	PathtagReduce recording.ShaderID
	PathtagScan   recording.ShaderID
	PathCoarse    recording.ShaderID
	Backdrop      recording.ShaderID
	Fine          recording.ShaderID
	PrefixSum     recording.ShaderID
	Blur          recording.ShaderID
	ImageBlit     recording.ShaderID
}

// NewSet registers every standard stage in reg. Sources are read from src;
// a nil src registers empty sources, which is enough for the CPU engine.
func NewSet(reg *Registry, src Source) (*Set, error) {
	ids := make(map[string]recording.ShaderID)
	for _, st := range Stages() {
		var wgsl string
		if src != nil {
			var err error
			if wgsl, err = src.Source(st.Name); err != nil {
				return nil, fmt.Errorf("shaders: source for %s: %w", st.Name, err)
			}
		}
		id, err := reg.Add(st.Name, wgsl, st.WorkgroupSize, st.Layout...)
		if err != nil {
			return nil, err
		}
		ids[st.Name] = id
	}
	return &Set{
		PathtagReduce: ids[StagePathtagReduce],
		PathtagScan:   ids[StagePathtagScan],
		PathCoarse:    ids[StagePathCoarse],
		Backdrop:      ids[StageBackdrop],
		Fine:          ids[StageFine],
		PrefixSum:     ids[StagePrefixSum],
		Blur:          ids[StageBlur],
		ImageBlit:     ids[StageImageBlit],
	}, nil
}
