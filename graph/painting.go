package graph

import (
	"fmt"
	"sync/atomic"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/vgraph/scene"
)

// EdgeMode is how a Painting is sampled outside its bounds when another
// scene draws it.
type EdgeMode = scene.Extend

const (
	EdgePad     = scene.ExtendPad
	EdgeRepeat  = scene.ExtendRepeat
	EdgeReflect = scene.ExtendReflect
)

// Descriptor describes a new Painting.
type Descriptor struct {
	Label string

	// Usage of the rendered texture; zero means engine.DefaultUsage. A
	// painting drawn by another one needs TextureBinding, and ReadPixels
	// needs CopySrc.
	Usage   gputypes.TextureUsage
	XExtend EdgeMode
	YExtend EdgeMode
}

// paintingShared is the state every handle of one Painting refers to.
type paintingShared struct {
	id      PaintingID
	gallery GalleryID
	desc    Descriptor
	refs    atomic.Int64
	reclaim *reclaimStack
}

// Painting is a handle to a cacheable sub-image. Its identity is its
// allocation, not its content. Each handle must be released exactly once;
// when the last one is, the id is queued for the owning Gallery's GC.
type Painting struct {
	shared   *paintingShared
	released atomic.Bool
}

// ID returns the painting's id.
func (p *Painting) ID() PaintingID { return p.shared.id }

// Gallery returns the id of the Gallery that created p.
func (p *Painting) Gallery() GalleryID { return p.shared.gallery }

// Label returns the descriptor label.
func (p *Painting) Label() string { return p.shared.desc.Label }

// Descriptor returns the descriptor p was created with.
func (p *Painting) Descriptor() Descriptor { return p.shared.desc }

// Clone returns a new handle to the same Painting. Cloning a released
// handle returns nil.
func (p *Painting) Clone() *Painting {
	if p.released.Load() {
		return nil
	}
	p.shared.refs.Add(1)
	return &Painting{shared: p.shared}
}

// Release drops this handle. Only the first call on a handle has an effect.
// Release never blocks.
func (p *Painting) Release() {
	if !p.released.CompareAndSwap(false, true) {
		return
	}
	if p.shared.refs.Add(-1) == 0 {
		p.shared.reclaim.push(p.shared.id)
	}
}

// Released reports whether this handle has been released.
func (p *Painting) Released() bool { return p.released.Load() }

func (p *Painting) String() string {
	return fmt.Sprintf("%v(%s)", p.shared.id, p.shared.desc.Label)
}
