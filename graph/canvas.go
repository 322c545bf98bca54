package graph

import (
	"slices"

	"github.com/gogpu/vgraph/scene"
)

// Canvas builds a scene that may draw other Paintings. Each distinct
// Painting drawn gets one image slot; Painter.AsCanvas binds the slots
// when the scene is assigned.
//
//	c := graph.NewCanvas()
//	c.DrawPainting(icon, 16, 16, scene.Translate(8, 8))
//	err := painter.AsCanvas(c, graph.OutputSize{Width: 64, Height: 64})
type Canvas struct {
	*scene.Builder
	paintings []*Painting
	slots     map[PaintingID]uint32
}

// NewCanvas returns an empty canvas.
func NewCanvas() *Canvas {
	return &Canvas{
		Builder: scene.NewBuilder(),
		slots:   make(map[PaintingID]uint32),
	}
}

// Image returns a brush sampling p stretched over a w by h box, using the
// edge modes of p's descriptor. Fill the current path with it through
// FillImage.
func (c *Canvas) Image(p *Painting, w, h float32) scene.ImageBrush {
	if p == nil {
		// Kept so AsCanvas reports it.
		c.paintings = append(c.paintings, nil)
		return scene.NewImageBrush(uint32(len(c.paintings)-1), w, h)
	}
	slot, ok := c.slots[p.ID()]
	if !ok {
		slot = uint32(len(c.paintings))
		c.slots[p.ID()] = slot
		c.paintings = append(c.paintings, p)
	}
	d := p.Descriptor()
	return scene.NewImageBrush(slot, w, h).WithExtend(d.XExtend, d.YExtend)
}

// DrawPainting draws p into the w by h box at the origin of t.
func (c *Canvas) DrawPainting(p *Painting, w, h float32, t scene.Affine) {
	c.DrawImage(c.Image(p, w, h), t)
}

// Paintings returns the drawn Paintings in slot order.
func (c *Canvas) Paintings() []*Painting { return slices.Clone(c.paintings) }
