// Package recording describes GPU work without touching a device.
//
// A Recording is an ordered list of commands: uploads, configuration
// uploads, image uploads, zero-fills and compute dispatches. Commands refer
// to buffers and images through proxies, which are plain values holding an
// id and a declared size or format. Nothing is allocated until an execution
// engine resolves the proxies, so a pipeline can be planned independently of
// when and where its memory lives.
//
// # Ordering
//
// Commands execute strictly in the order they were recorded. Dependencies
// between commands are implied by shared proxies; this package never
// reorders, merges or aliases anything.
//
// # Example
//
//	rec := recording.New()
//	cfg := rec.UploadConfig("config", cfgBytes)
//	in := rec.Upload("input", data)
//	out := rec.CreateBuffer("output", uint64(len(data)))
//	rec.ZeroFill(out)
//	rec.Dispatch(shaderID, [3]uint32{n, 1, 1}, []recording.ResourceProxy{cfg, in, out})
//
// Binding order must match the shader's declared layout. The engine checks
// this when it resolves the Recording; a mismatch is an error, never ignored.
package recording
