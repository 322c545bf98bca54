// Package vgraph is the scheduling core of a compute-shader vector
// rasterizer.
//
// # Overview
//
// A flattened scene is planned into a Recording: an ordered list of uploads,
// zero-fills and compute dispatches over buffer and image proxies. An engine
// resolves the proxies to device memory and executes the Recording in order.
// A render graph caches the results of many such renders as Paintings and
// re-renders them when their Gallery changes.
//
// # Packages
//
//   - scan: decoupled-lookback inclusive scan over any ordered monoid
//   - scene: the flattened scene encoding and its path-tag monoid
//   - recording: resource proxies and commands
//   - shaders: stage registry, binding layouts, hot reload
//   - render: the planner turning scenes into Recordings
//   - engine, engine/cpu, engine/hal: execution engines
//   - graph: Gallery, Painting and the caching Renderer
//   - pipecache: on-disk pipeline cache
//
// # Quick Start
//
//	sys, err := vgraph.Open(ctx, vgraph.Config{Engine: "cpu"})
//	if err != nil {
//		return err
//	}
//	defer sys.Close()
//
//	g := graph.NewGallery("ui")
//	p := g.CreatePainting(graph.Descriptor{Label: "icon"})
//	painter, _ := g.Paint(p)
//	_ = painter.AsScene(sc, graph.OutputSize{Width: 64, Height: 64})
//	img, err := sys.Renderer.ReadPixels(ctx, g, p)
//
// # Logging
//
// vgraph produces no log output by default. Call SetLogger to enable it.
package vgraph
