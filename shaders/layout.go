package shaders

import "github.com/gogpu/gputypes"

// LayoutEntries converts a layout into bind group layout entries.
//
// Images are bound as storage buffers holding one packed RGBA word per
// pixel, so writable images map to read-write storage and readable images to
// read-only storage.
func LayoutEntries(layout []BindType) []gputypes.BindGroupLayoutEntry {
	entries := make([]gputypes.BindGroupLayoutEntry, len(layout))
	for i, b := range layout {
		buf := &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}
		switch b.Kind {
		case KindConfig:
			buf = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}
		case KindReadOnly, KindImageRead:
			buf = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}
		}
		entries[i] = gputypes.BindGroupLayoutEntry{
			Binding:    uint32(i),
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     buf,
		}
	}
	return entries
}
