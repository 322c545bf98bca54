package recording

import (
	"fmt"
	"sync/atomic"
)

// ResourceID identifies a proxy. Ids come from a process-wide counter, so
// they are unique within any Recording and never reused.
type ResourceID uint64

var nextResourceID atomic.Uint64

func newResourceID() ResourceID {
	return ResourceID(nextResourceID.Add(1))
}

// ShaderID is a handle to a registered compute stage.
type ShaderID uint32

// ImageFormat is the pixel format of an image proxy.
type ImageFormat uint8

const (
	// FormatRGBA8 is 8-bit RGBA, premultiplied alpha.
	FormatRGBA8 ImageFormat = iota
	// FormatBGRA8 is 8-bit BGRA, premultiplied alpha.
	FormatBGRA8
)

// String returns a human-readable name for the format.
func (f ImageFormat) String() string {
	switch f {
	case FormatRGBA8:
		return "Rgba8"
	case FormatBGRA8:
		return "Bgra8"
	default:
		return fmt.Sprintf("ImageFormat(%d)", uint8(f))
	}
}

// BytesPerPixel returns the size of one pixel.
func (f ImageFormat) BytesPerPixel() int {
	return 4
}

// ResourceProxy is implemented by BufferProxy and ImageProxy only.
type ResourceProxy interface {
	ResourceID() ResourceID
	isResourceProxy()
}

// BufferProxy is a placeholder for a device buffer.
type BufferProxy struct {
	ID    ResourceID
	Size  uint64
	Label string
}

// NewBufferProxy returns a fresh buffer proxy.
func NewBufferProxy(label string, size uint64) BufferProxy {
	return BufferProxy{ID: newResourceID(), Size: size, Label: label}
}

func (b BufferProxy) ResourceID() ResourceID { return b.ID }
func (BufferProxy) isResourceProxy()         {}

// String implements fmt.Stringer.
func (b BufferProxy) String() string {
	return fmt.Sprintf("buffer#%d(%q, %d bytes)", b.ID, b.Label, b.Size)
}

// ImageProxy is a placeholder for a device image.
type ImageProxy struct {
	ID     ResourceID
	Width  uint32
	Height uint32
	Format ImageFormat
	Label  string
}

// NewImageProxy returns a fresh image proxy.
func NewImageProxy(label string, width, height uint32, format ImageFormat) ImageProxy {
	return ImageProxy{ID: newResourceID(), Width: width, Height: height, Format: format, Label: label}
}

func (i ImageProxy) ResourceID() ResourceID { return i.ID }
func (ImageProxy) isResourceProxy()         {}

// ByteSize returns the size of a tightly packed image of this shape.
func (i ImageProxy) ByteSize() uint64 {
	return uint64(i.Width) * uint64(i.Height) * uint64(i.Format.BytesPerPixel())
}

// String implements fmt.Stringer.
func (i ImageProxy) String() string {
	return fmt.Sprintf("image#%d(%q, %dx%d %s)", i.ID, i.Label, i.Width, i.Height, i.Format)
}
