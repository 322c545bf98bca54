package graph

import (
	"errors"
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"github.com/gogpu/vgraph/engine"
	"github.com/gogpu/vgraph/internal/logging"
	"github.com/gogpu/vgraph/render"
	"github.com/gogpu/vgraph/scene"
)

var (
	// ErrForeignPainting reports a Painting used with a Gallery that did not
	// create it.
	ErrForeignPainting = engine.ErrOwnership

	// ErrPainterUsed is returned by a second terminal call on a Painter.
	ErrPainterUsed = errors.New("graph: painter already used")

	// ErrReleased reports a Painting handle used after Release.
	ErrReleased = fmt.Errorf("graph: painting handle released: %w", engine.ErrValidation)

	// ErrNoSource reports a render of a Painting that was never painted.
	ErrNoSource = fmt.Errorf("graph: painting has no source: %w", engine.ErrValidation)

	// ErrCycle reports a chain of blurs or canvases that leads back to itself.
	ErrCycle = fmt.Errorf("graph: dependency cycle: %w", engine.ErrValidation)
)

// SourceKind tags the variants of Source.
type SourceKind uint8

const (
	SourceImage SourceKind = iota + 1
	SourceScene
	SourceBlur
)

func (k SourceKind) String() string {
	switch k {
	case SourceImage:
		return "image"
	case SourceScene:
		return "scene"
	case SourceBlur:
		return "blur"
	default:
		return fmt.Sprintf("SourceKind(%d)", uint8(k))
	}
}

// OutputSize is the pixel size a scene is rendered at.
type OutputSize struct {
	Width  uint32
	Height uint32
}

// Source describes how a Painting's content is produced. Exactly the
// fields of Kind are set.
type Source struct {
	Kind SourceKind

	// SourceImage: premultiplied pixels with origin (0, 0).
	Image *image.RGBA

	// SourceScene: Paintings are handles held by the gallery entry, one per
	// image slot of Scene.
	Scene     *scene.Scene
	Size      OutputSize
	Paintings []*Painting

	// SourceBlur: a handle held by the gallery entry.
	From   *Painting
	Radius uint32
}

func (s *Source) release() {
	if s.From != nil {
		s.From.Release()
		s.From = nil
	}
	for _, p := range s.Paintings {
		p.Release()
	}
	s.Paintings = nil
}

type entry struct {
	source     Source
	desc       Descriptor
	generation Generation
}

// Gallery owns the content of a set of Paintings.
type Gallery struct {
	id         GalleryID
	label      string
	generation Generation
	paintings  map[PaintingID]*entry
	reclaim    *reclaimStack
}

// NewGallery creates an empty gallery.
func NewGallery(label string) *Gallery {
	return newGallery(newGalleryID(), label)
}

// NewAnonymousGallery creates a gallery labelled prefix followed by its id.
func NewAnonymousGallery(prefix string) *Gallery {
	id := newGalleryID()
	return newGallery(id, fmt.Sprintf("%s-%02d", prefix, uint64(id)))
}

func newGallery(id GalleryID, label string) *Gallery {
	return &Gallery{
		id:        id,
		label:     label,
		paintings: make(map[PaintingID]*entry),
		reclaim:   &reclaimStack{},
	}
}

// ID returns the gallery's id.
func (g *Gallery) ID() GalleryID { return g.id }

// Label returns the gallery's label.
func (g *Gallery) Label() string { return g.label }

// Generation returns the current generation.
func (g *Gallery) Generation() Generation { return g.generation }

// Len returns the number of painted Paintings.
func (g *Gallery) Len() int { return len(g.paintings) }

// Contains reports whether id has content in g.
func (g *Gallery) Contains(id PaintingID) bool {
	_, ok := g.paintings[id]
	return ok
}

// Source returns the content assigned to p.
func (g *Gallery) Source(p *Painting) (Source, bool) {
	if err := g.owns(p); err != nil {
		return Source{}, false
	}
	e, ok := g.paintings[p.ID()]
	if !ok {
		return Source{}, false
	}
	return e.source, true
}

func (g *Gallery) String() string {
	return fmt.Sprintf("%v(%s)", g.id, g.label)
}

// CreatePainting returns a new, unpainted handle owned by g.
func (g *Gallery) CreatePainting(desc Descriptor) *Painting {
	shared := &paintingShared{
		id:      newPaintingID(),
		gallery: g.id,
		desc:    desc,
		reclaim: g.reclaim,
	}
	shared.refs.Store(1)
	return &Painting{shared: shared}
}

func (g *Gallery) owns(p *Painting) error {
	if p == nil {
		return fmt.Errorf("%w: nil painting", engine.ErrValidation)
	}
	if p.shared.gallery != g.id {
		return fmt.Errorf("graph: painting %v of gallery %v used with %v: %w",
			p.ID(), p.shared.gallery, g, ErrForeignPainting)
	}
	if p.Released() {
		return fmt.Errorf("painting %v: %w", p.ID(), ErrReleased)
	}
	return nil
}

// Paint returns a Painter assigning the content of p. It fails without
// changing any state when p belongs to another Gallery.
func (g *Gallery) Paint(p *Painting) (*Painter, error) {
	if err := g.owns(p); err != nil {
		return nil, err
	}
	return &Painter{gallery: g, painting: p}, nil
}

// GC removes the content of every Painting whose last handle was released
// and returns how many were removed. Removing a blur releases its hold on
// the source, and removing a canvas releases the Paintings it draws, which
// may free them in the same call. The generation
// is bumped when anything was removed.
func (g *Gallery) GC() int {
	removed := 0
	for {
		ids := g.reclaim.drain()
		if len(ids) == 0 {
			break
		}
		for _, id := range ids {
			e, ok := g.paintings[id]
			if !ok {
				continue
			}
			delete(g.paintings, id)
			e.source.release()
			removed++
		}
	}
	if removed > 0 {
		g.generation.Nudge()
		logging.Logger().Debug("graph: gc", "gallery", g.label, "removed", removed, "generation", g.generation)
	}
	return removed
}

// Painter assigns the content of one Painting. Exactly one of AsImage,
// AsScene, AsCanvas and AsBlur may succeed.
type Painter struct {
	gallery  *Gallery
	painting *Painting
	used     bool
}

// AsImage assigns a static image. The pixels are copied and converted to
// premultiplied RGBA.
func (p *Painter) AsImage(img image.Image) error {
	if p.used {
		return ErrPainterUsed
	}
	if img == nil {
		return fmt.Errorf("%w: nil image", engine.ErrValidation)
	}
	b := img.Bounds()
	if b.Empty() {
		return fmt.Errorf("%w: empty image", engine.ErrValidation)
	}
	if b.Dx() > render.MaxTargetSize || b.Dy() > render.MaxTargetSize {
		return fmt.Errorf("%w: image %dx%d exceeds %d", engine.ErrValidation, b.Dx(), b.Dy(), render.MaxTargetSize)
	}
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return p.insert(Source{Kind: SourceImage, Image: rgba})
}

// AsScene assigns a copy of sc rendered at size. Image fills need bound
// Paintings, so a scene with any is rejected; build it on a Canvas instead.
func (p *Painter) AsScene(sc *scene.Scene, size OutputSize) error {
	if p.used {
		return ErrPainterUsed
	}
	if err := checkScene(sc, size, 0); err != nil {
		return err
	}
	return p.insert(Source{Kind: SourceScene, Scene: sc.Clone(), Size: size})
}

// AsCanvas finishes c and assigns its scene rendered at size. The gallery
// keeps its own handle to every Painting c draws until the content is
// replaced or collected; they must all belong to this Gallery. Once they
// do, c is finished and empty whether or not the scene is accepted.
func (p *Painter) AsCanvas(c *Canvas, size OutputSize) error {
	if p.used {
		return ErrPainterUsed
	}
	if c == nil {
		return fmt.Errorf("%w: nil canvas", engine.ErrValidation)
	}
	for _, dep := range c.paintings {
		if err := p.gallery.owns(dep); err != nil {
			return err
		}
	}
	sc, drawn := c.Finish(), c.paintings
	c.paintings = nil
	clear(c.slots)
	if err := checkScene(sc, size, len(drawn)); err != nil {
		return err
	}
	deps := make([]*Painting, 0, len(drawn))
	for _, dep := range drawn {
		h := dep.Clone()
		if h == nil {
			for _, d := range deps {
				d.Release()
			}
			return fmt.Errorf("painting %v: %w", dep.ID(), ErrReleased)
		}
		deps = append(deps, h)
	}
	return p.insert(Source{Kind: SourceScene, Scene: sc, Size: size, Paintings: deps})
}

// checkScene validates a scene drawing at most images bound Paintings.
func checkScene(sc *scene.Scene, size OutputSize, images int) error {
	if size.Width == 0 || size.Height == 0 {
		return fmt.Errorf("%w: output size %dx%d", engine.ErrValidation, size.Width, size.Height)
	}
	if err := sc.Validate(); err != nil {
		return fmt.Errorf("%w: %w", render.ErrInvalidScene, err)
	}
	if n := sc.NumImages(); int64(n) > int64(images) {
		return fmt.Errorf("%w: scene samples %d images, %d bound", render.ErrInvalidScene, n, images)
	}
	return nil
}

// AsBlur assigns a box blur of another Painting of the same Gallery. The
// gallery keeps its own handle to from until the content is replaced or
// collected.
func (p *Painter) AsBlur(from *Painting, radius uint32) error {
	if p.used {
		return ErrPainterUsed
	}
	if err := p.gallery.owns(from); err != nil {
		return err
	}
	if radius > render.MaxBlurRadius {
		return fmt.Errorf("%w: blur radius %d exceeds %d", render.ErrInvalidParams, radius, render.MaxBlurRadius)
	}
	return p.insert(Source{Kind: SourceBlur, From: from.Clone(), Radius: radius})
}

// insert fails when the handle was released after Paint, since its id may
// already have been collected.
func (p *Painter) insert(src Source) error {
	if p.painting.Released() {
		src.release()
		return fmt.Errorf("painting %v: %w", p.painting.ID(), ErrReleased)
	}
	p.used = true
	g := p.gallery
	id := p.painting.ID()
	if e, ok := g.paintings[id]; ok {
		e.source.release()
		e.source = src
		e.generation.Nudge()
	} else {
		g.paintings[id] = &entry{source: src, desc: p.painting.Descriptor()}
	}
	g.generation.Nudge()
	return nil
}
