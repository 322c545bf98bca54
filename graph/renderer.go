package graph

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gogpu/vgraph/engine"
	"github.com/gogpu/vgraph/internal/logging"
	"github.com/gogpu/vgraph/recording"
	"github.com/gogpu/vgraph/render"
	"github.com/gogpu/vgraph/shaders"
)

type cacheEntry struct {
	gallery    GalleryID
	texture    *engine.Texture
	view       engine.TextureView
	generation Generation
}

// Stats counts cache decisions of a Renderer.
type Stats struct {
	Hits   int
	Misses int
}

// RendererOption configures a Renderer.
type RendererOption func(*Renderer)

// WithBaseColor sets the premultiplied background scenes are rendered on.
func WithBaseColor(c color.RGBA) RendererOption {
	return func(r *Renderer) { r.base = c }
}

// Renderer renders Paintings on an engine and caches the results.
//
// An entry is reused only while it was recorded by the same Gallery at that
// Gallery's current generation. Anything else re-renders.
type Renderer struct {
	eng    engine.Engine
	set    *shaders.Set
	base   color.RGBA
	cache  map[PaintingID]*cacheEntry
	stats  Stats
	tracer trace.Tracer
}

// NewRenderer creates a Renderer. It does not take ownership of eng.
func NewRenderer(eng engine.Engine, set *shaders.Set, opts ...RendererOption) *Renderer {
	r := &Renderer{
		eng:    eng,
		set:    set,
		cache:  make(map[PaintingID]*cacheEntry),
		tracer: otel.Tracer("github.com/gogpu/vgraph/graph"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Stats returns the cache counters.
func (r *Renderer) Stats() Stats { return r.stats }

// Cached returns the size of the cache.
func (r *Renderer) Cached() int { return len(r.cache) }

// Render returns a texture holding the content of p, rendering it and any
// Paintings it blurs or draws when their cache entries are stale. The texture
// stays owned by the Renderer and is released when it is replaced.
func (r *Renderer) Render(ctx context.Context, g *Gallery, p *Painting) (*engine.Texture, error) {
	if err := g.owns(p); err != nil {
		return nil, err
	}
	ctx, span := r.tracer.Start(ctx, "graph.Render",
		trace.WithAttributes(
			attribute.Int64("painting", int64(p.ID())),
			attribute.String("gallery", g.label),
		),
	)
	defer span.End()

	tex, err := r.resolve(ctx, span, g, p.ID(), make(map[PaintingID]bool))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return tex, nil
}

func (r *Renderer) resolve(ctx context.Context, span trace.Span, g *Gallery, id PaintingID,
	visiting map[PaintingID]bool) (*engine.Texture, error) {
	log := logging.Logger()
	if ce, ok := r.cache[id]; ok && ce.gallery == g.id && ce.generation == g.generation && !ce.texture.Released() {
		r.stats.Hits++
		span.AddEvent("cache hit", trace.WithAttributes(attribute.Int64("painting", int64(id))))
		log.Debug("graph: cache hit", "painting", id, "generation", g.generation)
		return ce.texture, nil
	}
	if visiting[id] {
		return nil, fmt.Errorf("painting %v: %w", id, ErrCycle)
	}
	visiting[id] = true
	defer delete(visiting, id)

	e, ok := g.paintings[id]
	if !ok {
		return nil, fmt.Errorf("painting %v: %w", id, ErrNoSource)
	}

	req, err := r.plan(ctx, span, g, id, e, visiting)
	if err != nil {
		return nil, err
	}
	req.TargetUsage = e.desc.Usage
	sub, err := r.eng.Submit(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("graph: render %v: %w", id, err)
	}
	tex, err := sub.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("graph: render %v: %w", id, err)
	}
	if tex == nil {
		return nil, fmt.Errorf("%w: graph: render %v produced no texture", engine.ErrDevice, id)
	}

	if old, ok := r.cache[id]; ok {
		r.eng.Release(old.texture)
	}
	r.cache[id] = &cacheEntry{gallery: g.id, texture: tex, view: tex.View(), generation: g.generation}
	r.stats.Misses++
	span.AddEvent("rendered", trace.WithAttributes(
		attribute.Int64("painting", int64(id)),
		attribute.String("source", e.source.Kind.String()),
	))
	log.Debug("graph: rendered", "painting", id, "source", e.source.Kind,
		"generation", g.generation, "revision", e.generation)
	return tex, nil
}

// plan builds the request producing the content of e.
func (r *Renderer) plan(ctx context.Context, span trace.Span, g *Gallery, id PaintingID, e *entry,
	visiting map[PaintingID]bool) (engine.Request, error) {
	src := e.source
	switch src.Kind {
	case SourceImage:
		b := src.Image.Bounds()
		rec := recording.New()
		img := rec.UploadImage(fmt.Sprintf("painting %v", id), uint32(b.Dx()), uint32(b.Dy()),
			recording.FormatRGBA8, src.Image.Pix)
		return engine.Request{Recording: rec, Target: img}, nil

	case SourceScene:
		var (
			images []recording.ImageProxy
			exts   []engine.External
		)
		for _, dep := range src.Paintings {
			tex, err := r.resolve(ctx, span, g, dep.ID(), visiting)
			if err != nil {
				return engine.Request{}, err
			}
			in := recording.NewImageProxy(fmt.Sprintf("painting %v", dep.ID()), tex.Width, tex.Height, tex.Format)
			images = append(images, in)
			exts = append(exts, engine.External{Proxy: in, Texture: tex})
		}
		plan, err := render.Render(src.Scene, r.set, render.Params{
			Width:     src.Size.Width,
			Height:    src.Size.Height,
			BaseColor: r.base,
			Images:    images,
		})
		if err != nil {
			return engine.Request{}, fmt.Errorf("graph: plan %v: %w", id, err)
		}
		return engine.Request{Recording: plan.Recording, Target: plan.Output, Externals: exts}, nil

	case SourceBlur:
		from, err := r.resolve(ctx, span, g, src.From.ID(), visiting)
		if err != nil {
			return engine.Request{}, err
		}
		in := recording.NewImageProxy(fmt.Sprintf("painting %v", src.From.ID()), from.Width, from.Height, from.Format)
		plan, err := render.Blur(in, r.set, src.Radius)
		if err != nil {
			return engine.Request{}, fmt.Errorf("graph: plan %v: %w", id, err)
		}
		return engine.Request{
			Recording: plan.Recording,
			Target:    plan.Output,
			Externals: []engine.External{{Proxy: in, Texture: from}},
		}, nil
	}
	return engine.Request{}, fmt.Errorf("%w: painting %v has source %v", engine.ErrValidation, id, src.Kind)
}

// View returns the cached view of p, if its entry is current.
func (r *Renderer) View(g *Gallery, p *Painting) (engine.TextureView, bool) {
	if g.owns(p) != nil {
		return engine.TextureView{}, false
	}
	ce, ok := r.cache[p.ID()]
	if !ok || ce.gallery != g.id || ce.generation != g.generation {
		return engine.TextureView{}, false
	}
	return ce.view, true
}

// ReadPixels renders p and reads the result back to host memory.
func (r *Renderer) ReadPixels(ctx context.Context, g *Gallery, p *Painting) (*image.RGBA, error) {
	tex, err := r.Render(ctx, g, p)
	if err != nil {
		return nil, err
	}
	pix, err := r.eng.ReadImage(ctx, tex)
	if err != nil {
		return nil, fmt.Errorf("graph: read %v: %w", p.ID(), err)
	}
	w, h := int(tex.Width), int(tex.Height)
	if len(pix) != 4*w*h {
		return nil, fmt.Errorf("%w: graph: read %d bytes for %dx%d", engine.ErrDevice, len(pix), w, h)
	}
	return &image.RGBA{Pix: pix, Stride: 4 * w, Rect: image.Rect(0, 0, w, h)}, nil
}

// Prune drops the entries of g's Paintings that are no longer in g and
// returns how many were dropped. Call it after Gallery.GC.
func (r *Renderer) Prune(g *Gallery) int {
	n := 0
	for id, ce := range r.cache {
		if ce.gallery == g.id && !g.Contains(id) {
			r.eng.Release(ce.texture)
			delete(r.cache, id)
			n++
		}
	}
	return n
}

// Close releases every cached texture.
func (r *Renderer) Close() error {
	for _, ce := range r.cache {
		r.eng.Release(ce.texture)
	}
	clear(r.cache)
	return nil
}
