// Package graph coordinates renders of many sub-images through reference
// counted Paintings and a generation-checked texture cache.
//
// A Gallery owns the content of its Paintings, keyed by id. A Painting is a
// handle carrying only its own id and the id of the Gallery that created it;
// it is usable with that Gallery alone. Content is assigned through a
// Painter, which takes exactly one terminal call:
//
//	p := g.CreatePainting(graph.Descriptor{Label: "badge"})
//	painter, err := g.Paint(p)
//	if err != nil {
//		return err
//	}
//	err = painter.AsScene(sc, graph.OutputSize{Width: 64, Height: 64})
//
// Every assignment bumps the Gallery's single generation counter, so any
// change invalidates every cached texture of that Gallery. A Renderer
// re-renders a Painting whenever its cache entry was recorded at an older
// generation, resolving blur sources and the Paintings a Canvas draws
// first. A Canvas is a scene builder whose image fills sample other
// Paintings of the same Gallery, sampled outside their bounds by the edge
// modes of their Descriptor:
//
//	c := graph.NewCanvas()
//	c.DrawPainting(badge, 16, 16, scene.Translate(4, 4))
//	err = painter.AsCanvas(c, graph.OutputSize{Width: 64, Height: 64})
//
// Releasing the last handle of a Painting never blocks: it pushes the id on
// a lock-free stack that Gallery.GC drains on the owning goroutine.
//
// Galleries and Renderers are not safe for concurrent use. Painting.Release
// and Painting.Clone may be called from any goroutine.
package graph
