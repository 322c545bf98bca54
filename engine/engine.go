// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/vgraph/recording"
)

// Engine executes Recordings on a device.
//
// Thread safety: implementations are safe for concurrent use. Submissions
// execute in the order Submit was called.
type Engine interface {
	// Name returns the registered name of the engine.
	Name() string

	// Submit validates req and queues it for execution. Validation errors
	// are returned here; device errors surface through Submission.Wait.
	Submit(ctx context.Context, req Request) (*Submission, error)

	// ReadImage returns the pixels of tex, tightly packed.
	ReadImage(ctx context.Context, tex *Texture) ([]byte, error)

	// Release frees tex. Releasing a texture twice is a no-op.
	Release(tex *Texture)

	// Close releases every resource the engine still holds.
	Close() error
}

// External binds a texture produced by an earlier submission to an image
// proxy of the Recording. Externals are read-only.
type External struct {
	Proxy   recording.ImageProxy
	Texture *Texture
}

// Request is one unit of work for an engine.
type Request struct {
	Recording *recording.Recording

	// Target, when its ID is nonzero, is an image the engine keeps after the
	// Recording completes and returns as the submission's texture.
	Target recording.ImageProxy

	// TargetUsage restricts how the returned texture may be used. Zero means
	// DefaultUsage.
	TargetUsage gputypes.TextureUsage

	// Downloads are buffers copied back to the host on completion.
	Downloads []recording.BufferProxy

	Externals []External
}

// DefaultUsage is the usage of a target whose Request leaves it unset.
const DefaultUsage = gputypes.TextureUsageCopySrc |
	gputypes.TextureUsageTextureBinding |
	gputypes.TextureUsageStorageBinding

var nextTextureID atomic.Uint64

// Texture is a device image that outlives the Recording that produced it.
type Texture struct {
	ID     uint64
	Width  uint32
	Height uint32
	Format recording.ImageFormat
	Label  string

	// Usage is what the texture may be used for: CopySrc allows ReadImage,
	// TextureBinding allows binding it as an External.
	Usage gputypes.TextureUsage

	owner    Engine
	handle   any
	released atomic.Bool
}

// NewTexture wraps an engine-specific handle. A zero usage means
// DefaultUsage. For use by engine implementations.
func NewTexture(owner Engine, img recording.ImageProxy, usage gputypes.TextureUsage, handle any) *Texture {
	if usage == 0 {
		usage = DefaultUsage
	}
	return &Texture{
		ID:     nextTextureID.Add(1),
		Width:  img.Width,
		Height: img.Height,
		Format: img.Format,
		Label:  img.Label,
		Usage:  usage,
		owner:  owner,
		handle: handle,
	}
}

// CheckReadable reports whether tex may be read back to the host.
func CheckReadable(tex *Texture) error {
	if !tex.Usage.Contains(gputypes.TextureUsageCopySrc) {
		return fmt.Errorf("%w: texture %d usage %#x lacks CopySrc", ErrValidation, tex.ID, uint64(tex.Usage))
	}
	return nil
}

// Owner returns the engine that created t.
func (t *Texture) Owner() Engine { return t.owner }

// Handle returns the engine-specific resource.
func (t *Texture) Handle() any { return t.handle }

// MarkReleased flags t as released and reports whether this call did it.
func (t *Texture) MarkReleased() bool { return t.released.CompareAndSwap(false, true) }

// Released reports whether t has been released.
func (t *Texture) Released() bool { return t.released.Load() }

// View returns a sampling view of the whole texture.
func (t *Texture) View() TextureView {
	return TextureView{Texture: t, Width: t.Width, Height: t.Height}
}

// TextureView is a view of a Texture.
type TextureView struct {
	Texture *Texture
	Width   uint32
	Height  uint32
}

// Submission tracks one submitted Request.
type Submission struct {
	device gpucontext.Device
	done   chan struct{}
	once   sync.Once

	texture *Texture
	buffers map[recording.ResourceID][]byte
	err     error
}

// NewSubmission returns a pending submission progressed by polling device.
func NewSubmission(device gpucontext.Device) *Submission {
	return &Submission{device: device, done: make(chan struct{})}
}

// Complete resolves s. Only the first call has an effect.
func (s *Submission) Complete(tex *Texture, buffers map[recording.ResourceID][]byte, err error) {
	s.once.Do(func() {
		s.texture, s.buffers, s.err = tex, buffers, err
		close(s.done)
	})
}

// Done is closed once the submission completes.
func (s *Submission) Done() <-chan struct{} { return s.done }

// Wait polls the device until the submission completes or ctx ends.
// Cancelling ctx stops the wait only; the work itself is not interrupted.
func (s *Submission) Wait(ctx context.Context) (*Texture, error) {
	if err := BlockOn(ctx, s.device, s.done); err != nil {
		return nil, err
	}
	return s.texture, s.err
}

// Buffer returns the downloaded contents of b. Valid after Wait.
func (s *Submission) Buffer(b recording.BufferProxy) ([]byte, bool) {
	select {
	case <-s.done:
	default:
		return nil, false
	}
	data, ok := s.buffers[b.ID]
	return data, ok
}
