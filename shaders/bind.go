package shaders

import (
	"fmt"

	"github.com/gogpu/vgraph/recording"
)

// BindKind is the kind of resource a binding slot accepts.
type BindKind uint8

const (
	// KindConfig is a small read-only configuration block (a uniform).
	KindConfig BindKind = iota
	// KindReadOnly is a read-only storage buffer.
	KindReadOnly
	// KindBuffer is a read-write storage buffer.
	KindBuffer
	// KindImage is a writable image of a fixed format.
	KindImage
	// KindImageRead is a sampled, read-only image.
	KindImageRead
)

// BindType describes one binding slot.
type BindType struct {
	Kind   BindKind
	Format recording.ImageFormat // KindImage and KindImageRead only
}

// Binding slot constructors.
var (
	Config   = BindType{Kind: KindConfig}
	ReadOnly = BindType{Kind: KindReadOnly}
	Buffer   = BindType{Kind: KindBuffer}
)

// Image returns a writable image slot of format f.
func Image(f recording.ImageFormat) BindType {
	return BindType{Kind: KindImage, Format: f}
}

// ImageRead returns a read-only image slot of format f.
func ImageRead(f recording.ImageFormat) BindType {
	return BindType{Kind: KindImageRead, Format: f}
}

// IsImage reports whether the slot takes an image proxy.
func (b BindType) IsImage() bool {
	return b.Kind == KindImage || b.Kind == KindImageRead
}

// IsMutable reports whether the stage may write through the slot.
func (b BindType) IsMutable() bool {
	return b.Kind == KindBuffer || b.Kind == KindImage
}

// String returns a human-readable name for the slot.
func (b BindType) String() string {
	switch b.Kind {
	case KindConfig:
		return "Config"
	case KindReadOnly:
		return "BufReadOnly"
	case KindBuffer:
		return "Buffer"
	case KindImage:
		return fmt.Sprintf("Image(%s)", b.Format)
	case KindImageRead:
		return fmt.Sprintf("ImageRead(%s)", b.Format)
	default:
		return fmt.Sprintf("BindKind(%d)", uint8(b.Kind))
	}
}
