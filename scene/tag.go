// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package scene

import "math/bits"

// Path tag bytes (Vello pathtag encoding).
const (
	// TagNop pads the tag stream; it consumes nothing.
	TagNop byte = 0x00

	// TagLineToF32 is a line to the next point; its start is the previous point.
	TagLineToF32 byte = 0x09

	// TagSubpathEnd is or-ed into the last segment tag of a subpath.
	TagSubpathEnd byte = 0x04

	// TagPath marks the end of a path and advances the path index.
	TagPath byte = 0x10

	// TagTransform advances the transform index.
	TagTransform byte = 0x20
)

// TagMonoidWords is the size of an encoded TagMonoid in 32-bit words.
const TagMonoidWords = 4

// TagMonoid counts what precedes a tag: transforms, segments, path-data
// words and completed paths.
type TagMonoid struct {
	TransIx       uint32
	PathSegIx     uint32
	PathSegOffset uint32
	PathIx        uint32
}

// NewTagMonoid returns the monoid of a word holding four tags, LSB first.
func NewTagMonoid(word uint32) TagMonoid {
	pointCount := word & 0x03030303
	// (pointCount * 7) sets bit 2 of every byte whose count is nonzero.
	pathSegIx := uint32(bits.OnesCount32((pointCount * 7) & 0x04040404))
	transIx := uint32(bits.OnesCount32(word & 0x20202020))

	// A subpath end also skips the next subpath's start point. The f32 bit
	// doubles the point count into words.
	nPoints := pointCount + ((word >> 2) & 0x01010101)
	a := nPoints + (nPoints & (((word >> 3) & 0x01010101) * 15))
	a += a >> 8
	a += a >> 16

	return TagMonoid{
		TransIx:       transIx,
		PathSegIx:     pathSegIx,
		PathSegOffset: a & 0xff,
		PathIx:        uint32(bits.OnesCount32(word & 0x10101010)),
	}
}

// Combine returns m followed by o.
func (m TagMonoid) Combine(o TagMonoid) TagMonoid {
	return TagMonoid{
		TransIx:       m.TransIx + o.TransIx,
		PathSegIx:     m.PathSegIx + o.PathSegIx,
		PathSegOffset: m.PathSegOffset + o.PathSegOffset,
		PathIx:        m.PathIx + o.PathIx,
	}
}

// Put writes m into dst[:TagMonoidWords].
func (m TagMonoid) Put(dst []uint32) {
	_ = dst[3]
	dst[0] = m.TransIx
	dst[1] = m.PathSegIx
	dst[2] = m.PathSegOffset
	dst[3] = m.PathIx
}

// LoadTagMonoid reads a TagMonoid written by Put.
func LoadTagMonoid(src []uint32) TagMonoid {
	_ = src[3]
	return TagMonoid{TransIx: src[0], PathSegIx: src[1], PathSegOffset: src[2], PathIx: src[3]}
}

// TagMonoids is the scan monoid over TagMonoid.
type TagMonoids struct{}

func (TagMonoids) Identity() TagMonoid              { return TagMonoid{} }
func (TagMonoids) Combine(a, b TagMonoid) TagMonoid { return a.Combine(b) }

// PrefixInWord returns the monoid of the first n tags of word (n in 0..3).
func PrefixInWord(word uint32, n int) TagMonoid {
	if n <= 0 {
		return TagMonoid{}
	}
	return NewTagMonoid(word & (1<<(8*uint(n)) - 1))
}

// PackTags packs tag bytes into words, four per word, LSB first.
//
//	word = tag0 | tag1<<8 | tag2<<16 | tag3<<24
func PackTags(tags []byte) []uint32 {
	words := make([]uint32, (len(tags)+3)/4)
	for i, tag := range tags {
		words[i/4] |= uint32(tag) << (uint(i%4) * 8)
	}
	return words
}

// IsSegment reports whether tag draws a line.
func IsSegment(tag byte) bool {
	return tag&0x03 != 0
}
