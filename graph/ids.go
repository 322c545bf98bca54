package graph

import (
	"fmt"
	"sync/atomic"
)

// PaintingID identifies a Painting. Ids are process-wide, increase
// monotonically from zero and are never reused.
type PaintingID uint64

// GalleryID identifies a Gallery. Ids start at one.
type GalleryID uint64

var (
	nextPaintingID atomic.Uint64
	nextGalleryID  atomic.Uint64
)

func newPaintingID() PaintingID { return PaintingID(nextPaintingID.Add(1) - 1) }
func newGalleryID() GalleryID   { return GalleryID(nextGalleryID.Add(1)) }

func (id PaintingID) String() string { return fmt.Sprintf("#%d", uint64(id)) }
func (id GalleryID) String() string  { return fmt.Sprintf("#%d", uint64(id)) }

// Generation is a wrapping change counter.
type Generation uint32

// Nudge advances g, wrapping at 2^32.
func (g *Generation) Nudge() { *g++ }
