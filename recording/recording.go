package recording

import (
	"fmt"
	"strings"
)

// Recording is an ordered list of commands. It holds no device state and may
// be executed any number of times.
//
// Thread safety: Recording is not safe for concurrent mutation.
type Recording struct {
	commands []Command
	proxies  []ResourceProxy
}

// New creates an empty Recording.
func New() *Recording {
	return &Recording{}
}

// CreateBuffer declares a buffer of size bytes. No command is recorded; the
// buffer is allocated when first used.
func (r *Recording) CreateBuffer(label string, size uint64) BufferProxy {
	b := NewBufferProxy(label, size)
	r.proxies = append(r.proxies, b)
	return b
}

// CreateImage declares an image. No command is recorded.
func (r *Recording) CreateImage(label string, width, height uint32, format ImageFormat) ImageProxy {
	img := NewImageProxy(label, width, height, format)
	r.proxies = append(r.proxies, img)
	return img
}

// Upload declares a buffer holding a copy of data.
func (r *Recording) Upload(label string, data []byte) BufferProxy {
	b := r.CreateBuffer(label, uint64(len(data)))
	r.commands = append(r.commands, Upload{Buffer: b, Data: clone(data)})
	return b
}

// UploadConfig declares a configuration buffer holding a copy of data.
func (r *Recording) UploadConfig(label string, data []byte) BufferProxy {
	b := r.CreateBuffer(label, uint64(len(data)))
	r.commands = append(r.commands, UploadConfig{Buffer: b, Data: clone(data)})
	return b
}

// UploadImage declares an image holding a copy of pixels, a tightly packed
// width*height*4 byte block.
func (r *Recording) UploadImage(label string, width, height uint32, format ImageFormat, pixels []byte) ImageProxy {
	img := r.CreateImage(label, width, height, format)
	r.commands = append(r.commands, UploadImage{Image: img, Data: clone(pixels)})
	return img
}

// ZeroFill clears b. Required before any stage that accumulates into b.
func (r *Recording) ZeroFill(b BufferProxy) {
	r.commands = append(r.commands, ZeroFill{Buffer: b})
}

// Dispatch appends a compute invocation.
func (r *Recording) Dispatch(shader ShaderID, workgroups [3]uint32, bindings []ResourceProxy) {
	r.commands = append(r.commands, Dispatch{
		Shader:     shader,
		Workgroups: workgroups,
		Bindings:   append([]ResourceProxy(nil), bindings...),
	})
}

// FreeBuffer releases b once every earlier command has run.
func (r *Recording) FreeBuffer(b BufferProxy) {
	r.commands = append(r.commands, FreeBuffer{Buffer: b})
}

// FreeImage releases img once every earlier command has run.
func (r *Recording) FreeImage(img ImageProxy) {
	r.commands = append(r.commands, FreeImage{Image: img})
}

// Commands returns the recorded commands in execution order.
// The slice is shared; callers must not modify it.
func (r *Recording) Commands() []Command {
	return r.commands
}

// Proxies returns every proxy declared through r, in declaration order.
func (r *Recording) Proxies() []ResourceProxy {
	return r.proxies
}

// Len returns the number of commands.
func (r *Recording) Len() int {
	return len(r.commands)
}

// Dispatches returns the dispatch commands in order.
func (r *Recording) Dispatches() []Dispatch {
	var out []Dispatch
	for _, c := range r.commands {
		if d, ok := c.(Dispatch); ok {
			out = append(out, d)
		}
	}
	return out
}

// String lists the commands one per line.
func (r *Recording) String() string {
	var sb strings.Builder
	for i, c := range r.commands {
		fmt.Fprintf(&sb, "%3d %s", i, c.Type())
		switch c := c.(type) {
		case Upload:
			fmt.Fprintf(&sb, " %s", c.Buffer)
		case UploadConfig:
			fmt.Fprintf(&sb, " %s", c.Buffer)
		case UploadImage:
			fmt.Fprintf(&sb, " %s", c.Image)
		case ZeroFill:
			fmt.Fprintf(&sb, " %s", c.Buffer)
		case Dispatch:
			fmt.Fprintf(&sb, " shader=%d wg=%v bindings=%d", c.Shader, c.Workgroups, len(c.Bindings))
		case FreeBuffer:
			fmt.Fprintf(&sb, " %s", c.Buffer)
		case FreeImage:
			fmt.Fprintf(&sb, " %s", c.Image)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func clone(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return append([]byte(nil), b...)
}
