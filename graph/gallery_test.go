package graph

import (
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/vgraph/engine"
	"github.com/gogpu/vgraph/render"
	"github.com/gogpu/vgraph/scene"
)

func solidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func paintImage(t *testing.T, g *Gallery, p *Painting, img image.Image) {
	t.Helper()
	painter, err := g.Paint(p)
	if err != nil {
		t.Fatalf("Paint: %v", err)
	}
	if err := painter.AsImage(img); err != nil {
		t.Fatalf("AsImage: %v", err)
	}
}

// =============================================================================
// Identity Tests
// =============================================================================

func TestGallery_IDsIncrease(t *testing.T) {
	a := NewGallery("a")
	b := NewGallery("b")
	if a.ID() == 0 || b.ID() <= a.ID() {
		t.Errorf("gallery ids = %d, %d, want nonzero and increasing", a.ID(), b.ID())
	}

	p := a.CreatePainting(Descriptor{Label: "p"})
	q := b.CreatePainting(Descriptor{Label: "q"})
	if q.ID() <= p.ID() {
		t.Errorf("painting ids = %d, %d, want increasing", p.ID(), q.ID())
	}
	if p.Gallery() != a.ID() {
		t.Errorf("p.Gallery() = %v, want %v", p.Gallery(), a.ID())
	}
}

func TestGallery_AnonymousLabel(t *testing.T) {
	g := NewAnonymousGallery("tiles")
	want := "tiles-"
	if id := uint64(g.ID()); id < 10 {
		want += "0"
	}
	if got := g.Label(); len(got) < len(want) || got[:len(want)] != want {
		t.Errorf("Label() = %q, want prefix %q", got, want)
	}
}

func TestPainting_Descriptor(t *testing.T) {
	g := NewGallery("desc")
	desc := Descriptor{
		Label:   "icon",
		Usage:   gputypes.TextureUsageTextureBinding,
		XExtend: EdgeRepeat,
		YExtend: EdgeReflect,
	}
	p := g.CreatePainting(desc)
	if got := p.Descriptor(); got != desc {
		t.Errorf("Descriptor() = %+v, want %+v", got, desc)
	}
	if p.Label() != "icon" {
		t.Errorf("Label() = %q, want %q", p.Label(), "icon")
	}
}

func TestGeneration_Wraps(t *testing.T) {
	g := Generation(^uint32(0))
	g.Nudge()
	if g != 0 {
		t.Errorf("Nudge() at max = %d, want 0", g)
	}
}

// =============================================================================
// Paint Tests
// =============================================================================

func TestPaint_BumpsGeneration(t *testing.T) {
	g := NewGallery("gen")
	p := g.CreatePainting(Descriptor{})
	before := g.Generation()

	paintImage(t, g, p, solidImage(2, 2, color.RGBA{A: 255}))
	if g.Generation() == before {
		t.Error("generation unchanged after assignment")
	}
	if !g.Contains(p.ID()) {
		t.Error("painted id missing from gallery")
	}

	mid := g.Generation()
	paintImage(t, g, p, solidImage(3, 3, color.RGBA{A: 255}))
	if g.Generation() == mid {
		t.Error("generation unchanged after reassignment")
	}
	src, ok := g.Source(p)
	if !ok || src.Kind != SourceImage || src.Image.Bounds().Dx() != 3 {
		t.Errorf("Source() = %+v, %v, want the 3x3 image", src, ok)
	}
}

func TestPaint_ForeignGallery(t *testing.T) {
	a := NewGallery("a")
	b := NewGallery("b")
	p := a.CreatePainting(Descriptor{})
	genB := b.Generation()

	painter, err := b.Paint(p)
	if !errors.Is(err, ErrForeignPainting) || !errors.Is(err, engine.ErrOwnership) {
		t.Errorf("Paint error = %v, want ErrForeignPainting", err)
	}
	if painter != nil {
		t.Error("Paint returned a painter for a foreign painting")
	}
	if b.Generation() != genB || b.Len() != 0 {
		t.Errorf("gallery b changed: generation %d -> %d, len %d", genB, b.Generation(), b.Len())
	}
	if a.Len() != 0 {
		t.Errorf("gallery a len = %d, want 0", a.Len())
	}
}

func TestPainter_SingleUse(t *testing.T) {
	g := NewGallery("once")
	p := g.CreatePainting(Descriptor{})
	painter, err := g.Paint(p)
	if err != nil {
		t.Fatalf("Paint: %v", err)
	}
	if err := painter.AsScene(&scene.Scene{}, OutputSize{Width: 4, Height: 4}); err != nil {
		t.Fatalf("AsScene: %v", err)
	}
	gen := g.Generation()
	if err := painter.AsImage(solidImage(1, 1, color.RGBA{})); !errors.Is(err, ErrPainterUsed) {
		t.Errorf("second terminal error = %v, want ErrPainterUsed", err)
	}
	if g.Generation() != gen {
		t.Error("failed terminal call changed the generation")
	}
}

func TestPainter_Rejects(t *testing.T) {
	g := NewGallery("reject")
	other := NewGallery("other")
	p := g.CreatePainting(Descriptor{})
	foreign := other.CreatePainting(Descriptor{})
	released := g.CreatePainting(Descriptor{})
	released.Release()

	drawing := func(dep *Painting) *Canvas {
		c := NewCanvas()
		c.DrawPainting(dep, 4, 4, scene.Identity)
		return c
	}

	tests := []struct {
		name string
		call func(*Painter) error
		want error
	}{
		{"nil image", func(pt *Painter) error { return pt.AsImage(nil) }, engine.ErrValidation},
		{"empty image", func(pt *Painter) error { return pt.AsImage(image.NewRGBA(image.Rect(0, 0, 0, 5))) }, engine.ErrValidation},
		{"zero size", func(pt *Painter) error { return pt.AsScene(nil, OutputSize{Width: 0, Height: 8}) }, engine.ErrValidation},
		{"bad scene", func(pt *Painter) error {
			return pt.AsScene(&scene.Scene{PathTags: []byte{scene.TagPath}}, OutputSize{Width: 8, Height: 8})
		}, scene.ErrMalformed},
		{"foreign blur", func(pt *Painter) error { return pt.AsBlur(foreign, 1) }, ErrForeignPainting},
		{"image scene", func(pt *Painter) error {
			b := scene.NewBuilder()
			b.DrawImage(scene.NewImageBrush(0, 4, 4), scene.Identity)
			return pt.AsScene(b.Finish(), OutputSize{Width: 8, Height: 8})
		}, render.ErrInvalidScene},
		{"nil canvas", func(pt *Painter) error { return pt.AsCanvas(nil, OutputSize{Width: 8, Height: 8}) }, engine.ErrValidation},
		{"foreign canvas", func(pt *Painter) error {
			return pt.AsCanvas(drawing(foreign), OutputSize{Width: 8, Height: 8})
		}, ErrForeignPainting},
		{"released canvas", func(pt *Painter) error {
			return pt.AsCanvas(drawing(released), OutputSize{Width: 8, Height: 8})
		}, ErrReleased},
		{"nil canvas painting", func(pt *Painter) error {
			return pt.AsCanvas(drawing(nil), OutputSize{Width: 8, Height: 8})
		}, engine.ErrValidation},
		{"big radius", func(pt *Painter) error { return pt.AsBlur(p, 1000) }, engine.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			painter, err := g.Paint(p)
			if err != nil {
				t.Fatalf("Paint: %v", err)
			}
			if err := tt.call(painter); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			if g.Contains(p.ID()) {
				t.Error("rejected assignment stored a source")
			}
		})
	}
}

func TestAsScene_Copies(t *testing.T) {
	g := NewGallery("copy")
	p := g.CreatePainting(Descriptor{})
	b := scene.NewBuilder()
	b.Rect(0, 0, 4, 4)
	b.Fill(scene.FillNonZero, color.RGBA{R: 255, A: 255})
	sc := b.Finish()

	painter, err := g.Paint(p)
	if err != nil {
		t.Fatalf("Paint: %v", err)
	}
	if err := painter.AsScene(sc, OutputSize{Width: 8, Height: 8}); err != nil {
		t.Fatalf("AsScene: %v", err)
	}
	sc.PathData[0] = 99
	sc.Paths[0].Color = color.RGBA{G: 255, A: 255}

	src, _ := g.Source(p)
	if src.Scene == sc {
		t.Fatal("Source() shares the caller's scene")
	}
	if src.Scene.PathData[0] == 99 || src.Scene.Paths[0].Color.G != 0 {
		t.Error("caller's edit reached the stored scene")
	}
}

func TestCanvas_Slots(t *testing.T) {
	g := NewGallery("slots")
	a := g.CreatePainting(Descriptor{Label: "a", XExtend: EdgeRepeat, YExtend: EdgeReflect})
	b := g.CreatePainting(Descriptor{Label: "b"})

	c := NewCanvas()
	first := c.Image(a, 4, 4)
	if got := c.Image(b, 2, 2); got.Slot != 1 {
		t.Errorf("Image(b).Slot = %d, want 1", got.Slot)
	}
	again := c.Image(a, 8, 8)
	if first.Slot != 0 || again.Slot != 0 {
		t.Errorf("Image(a).Slot = %d, %d, want 0 both times", first.Slot, again.Slot)
	}
	if first.XExtend != scene.ExtendRepeat || first.YExtend != scene.ExtendReflect {
		t.Errorf("Image(a) extends = %v, %v, want repeat, reflect", first.XExtend, first.YExtend)
	}
	if got := c.Paintings(); len(got) != 2 || got[0] != a || got[1] != b {
		t.Errorf("Paintings() = %v, want [a b]", got)
	}
}

func TestAsCanvas_HoldsPaintings(t *testing.T) {
	g := NewGallery("canvas")
	icon := g.CreatePainting(Descriptor{Label: "icon"})
	paintImage(t, g, icon, solidImage(2, 2, color.RGBA{A: 255}))

	c := NewCanvas()
	c.DrawPainting(icon, 4, 4, scene.Identity)
	c.DrawPainting(icon, 4, 4, scene.Translate(4, 0))
	page := g.CreatePainting(Descriptor{Label: "page"})
	painter, err := g.Paint(page)
	if err != nil {
		t.Fatalf("Paint: %v", err)
	}
	if err := painter.AsCanvas(c, OutputSize{Width: 8, Height: 4}); err != nil {
		t.Fatalf("AsCanvas: %v", err)
	}
	if len(c.Paintings()) != 0 {
		t.Error("AsCanvas left the canvas holding paintings")
	}

	src, ok := g.Source(page)
	if !ok || len(src.Paintings) != 1 || src.Paintings[0].ID() != icon.ID() {
		t.Fatalf("Source() = %+v, want one painting", src)
	}
	if src.Paintings[0] == icon {
		t.Error("gallery holds the caller's handle")
	}
	if n := src.Scene.NumImages(); n != 1 {
		t.Errorf("NumImages() = %d, want 1", n)
	}

	icon.Release()
	if n := g.GC(); n != 0 {
		t.Errorf("GC() while the canvas holds icon = %d, want 0", n)
	}
	page.Release()
	if n := g.GC(); n != 2 {
		t.Errorf("GC() = %d, want 2", n)
	}
	if g.Len() != 0 {
		t.Errorf("Len() = %d, want 0", g.Len())
	}
}

func TestPaint_AfterRelease(t *testing.T) {
	g := NewGallery("released")
	p := g.CreatePainting(Descriptor{})
	p.Release()
	if _, err := g.Paint(p); !errors.Is(err, ErrReleased) {
		t.Errorf("Paint(released) error = %v, want ErrReleased", err)
	}
}

// =============================================================================
// Reclamation Tests
// =============================================================================

func TestGC_RemovesReleased(t *testing.T) {
	g := NewGallery("gc")
	p := g.CreatePainting(Descriptor{})
	paintImage(t, g, p, solidImage(1, 1, color.RGBA{A: 255}))

	p.Release()
	if !g.Contains(p.ID()) {
		t.Fatal("release removed the entry before GC")
	}
	gen := g.Generation()
	if n := g.GC(); n != 1 {
		t.Errorf("GC() = %d, want 1", n)
	}
	if g.Contains(p.ID()) {
		t.Error("released id still present after GC")
	}
	if g.Generation() == gen {
		t.Error("GC that removed an entry left the generation unchanged")
	}

	gen = g.Generation()
	if n := g.GC(); n != 0 {
		t.Errorf("second GC() = %d, want 0", n)
	}
	if g.Generation() != gen {
		t.Error("empty GC changed the generation")
	}
}

func TestGC_CloneKeepsAlive(t *testing.T) {
	g := NewGallery("clone")
	p := g.CreatePainting(Descriptor{})
	paintImage(t, g, p, solidImage(1, 1, color.RGBA{A: 255}))

	q := p.Clone()
	p.Release()
	p.Release()
	if n := g.GC(); n != 0 {
		t.Errorf("GC() with a live clone = %d, want 0", n)
	}
	if p.Clone() != nil {
		t.Error("Clone of a released handle returned a handle")
	}

	q.Release()
	if n := g.GC(); n != 1 {
		t.Errorf("GC() after last release = %d, want 1", n)
	}
}

func TestGC_Transitive(t *testing.T) {
	g := NewGallery("chain")
	src := g.CreatePainting(Descriptor{Label: "src"})
	paintImage(t, g, src, solidImage(4, 4, color.RGBA{A: 255}))

	blur := g.CreatePainting(Descriptor{Label: "blur"})
	painter, err := g.Paint(blur)
	if err != nil {
		t.Fatalf("Paint: %v", err)
	}
	if err := painter.AsBlur(src, 1); err != nil {
		t.Fatalf("AsBlur: %v", err)
	}

	src.Release()
	if n := g.GC(); n != 0 {
		t.Errorf("GC() while blur holds src = %d, want 0", n)
	}

	blur.Release()
	if n := g.GC(); n != 2 {
		t.Errorf("GC() = %d, want 2", n)
	}
	if g.Len() != 0 {
		t.Errorf("Len() = %d, want 0", g.Len())
	}
}

func TestGC_ConcurrentRelease(t *testing.T) {
	g := NewGallery("concurrent")
	const n = 200
	paintings := make([]*Painting, n)
	for i := range paintings {
		paintings[i] = g.CreatePainting(Descriptor{})
		paintImage(t, g, paintings[i], solidImage(1, 1, color.RGBA{}))
	}

	var wg sync.WaitGroup
	for _, p := range paintings {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Release()
		}()
	}
	wg.Wait()

	if got := g.GC(); got != n {
		t.Errorf("GC() = %d, want %d", got, n)
	}
}

func TestReclaimStack_DrainOrder(t *testing.T) {
	var s reclaimStack
	for i := range 5 {
		s.push(PaintingID(i))
	}
	got := s.drain()
	for i, id := range got {
		if id != PaintingID(i) {
			t.Errorf("drain()[%d] = %d, want %d", i, id, i)
		}
	}
	if len(got) != 5 {
		t.Errorf("len(drain()) = %d, want 5", len(got))
	}
	if rest := s.drain(); len(rest) != 0 {
		t.Errorf("second drain() = %v, want empty", rest)
	}
}
