// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package scene encodes flattened vector scenes into the linear streams the
// compute pipeline consumes.
//
// A scene is a sequence of filled paths made of line segments. It is stored as
//   - a tag stream, one byte per element, in the Vello path-tag encoding;
//   - path data, the float32 coordinates consumed by those tags;
//   - transforms, one affine per transform tag;
//   - a per-path table with the device-space bounding box, fill rule and
//     premultiplied color.
//
// Every subpath stores its start point first, then one end point per line.
// The last line of a subpath carries the subpath-end bit, which makes the
// running data offset skip to the next subpath's start point. The running
// offsets are produced by a prefix scan over TagMonoid.
//
// Curves are not represented; callers flatten them before encoding.
package scene
