// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package hal

import (
	"fmt"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/gogpu/vgraph/engine"
	"github.com/gogpu/vgraph/internal/logging"
	"github.com/gogpu/vgraph/recording"
)

// deviceSize rounds a proxy size up to a whole number of words. Zero-size
// buffers are not allowed by every backend.
func deviceSize(size uint64) uint64 {
	return max((size+3)&^3, 4)
}

func pad(data []byte, size uint64) []byte {
	if uint64(len(data)) == size {
		return data
	}
	out := make([]byte, size)
	copy(out, data)
	return out
}

type copyOp struct {
	src, dst hal.Buffer
	size     uint64
}

// copyJob is a submitted command buffer of copies.
type copyJob struct {
	encoder hal.CommandEncoder
	cmdBuf  hal.CommandBuffer
	index   uint64
}

func (j *copyJob) release(device hal.Device) {
	device.FreeCommandBuffer(j.cmdBuf)
	j.encoder.Destroy()
}

// submitCopies encodes copies into one command buffer and submits it. The
// caller releases the job once its index has completed.
func (e *Engine) submitCopies(label string, copies []copyOp) (*copyJob, error) {
	encoder, err := e.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("hal: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		encoder.Destroy()
		return nil, fmt.Errorf("hal: begin encoding: %w", err)
	}
	for _, c := range copies {
		encoder.CopyBufferToBuffer(c.src, c.dst, []hal.BufferCopy{{SrcOffset: 0, DstOffset: 0, Size: c.size}})
	}
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		encoder.Destroy()
		return nil, fmt.Errorf("hal: end encoding: %w", err)
	}
	index, err := e.submit(cmdBuf)
	if err != nil {
		e.device.FreeCommandBuffer(cmdBuf)
		encoder.Destroy()
		return nil, err
	}
	return &copyJob{encoder: encoder, cmdBuf: cmdBuf, index: index}, nil
}

func (e *Engine) submit(cmdBuf hal.CommandBuffer) (uint64, error) {
	index, err := e.queue.Submit([]hal.CommandBuffer{cmdBuf})
	if err != nil {
		return 0, fmt.Errorf("hal: submit: %w", err)
	}
	return index, nil
}

// readBuffer copies the first size bytes of a mappable buffer to the host.
// Work writing buf must have completed.
func (e *Engine) readBuffer(buf hal.Buffer, size uint64) ([]byte, error) {
	m, err := e.device.MapBuffer(buf, 0, size)
	if err != nil {
		return nil, fmt.Errorf("hal: map buffer: %w", err)
	}
	out := make([]byte, size)
	copy(out, unsafe.Slice((*byte)(m.Ptr), size))
	if err := e.device.UnmapBuffer(buf); err != nil {
		return nil, fmt.Errorf("hal: unmap buffer: %w", err)
	}
	return out, nil
}

// targetBufferUsage maps the usage of a kept image onto its storage buffer.
// The buffer is always written by dispatches and host uploads.
func targetBufferUsage(u gputypes.TextureUsage) gputypes.BufferUsage {
	usage := gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst
	if u.Contains(gputypes.TextureUsageCopySrc) {
		usage |= gputypes.BufferUsageCopySrc
	}
	return usage
}

// batch is the device state of one submitted Request.
type batch struct {
	e     *Engine
	span  trace.Span
	res   *engine.Resolution
	pipes map[recording.ShaderID]*pipeline

	buffers  map[recording.ResourceID]hal.Buffer
	owned    []hal.Buffer
	groups   []hal.BindGroup
	cmdBufs  []hal.CommandBuffer
	encoders []hal.CommandEncoder
	staging  map[recording.ResourceID]hal.Buffer

	encoder hal.CommandEncoder
	// dirty holds buffers written by dispatches encoded since the last
	// flush. Host writes to them must wait for that work.
	dirty map[recording.ResourceID]bool

	target      recording.ResourceID
	targetUsage gputypes.TextureUsage

	index uint64
	kept  hal.Buffer
}

func (b *batch) buffer(p recording.ResourceProxy) (hal.Buffer, error) {
	id := p.ResourceID()
	if buf, ok := b.buffers[id]; ok {
		return buf, nil
	}
	var (
		label string
		size  uint64
		usage = gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc
	)
	switch p := p.(type) {
	case recording.BufferProxy:
		label, size = p.Label, p.Size
	case recording.ImageProxy:
		label, size = p.Label, p.ByteSize()
		if p.ID == b.target {
			usage = targetBufferUsage(b.targetUsage)
		}
	}
	buf, err := b.e.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  deviceSize(size),
		Usage: usage,
	})
	if err != nil {
		return nil, fmt.Errorf("hal: create buffer %q: %w", label, err)
	}
	b.buffers[id] = buf
	b.owned = append(b.owned, buf)
	return buf, nil
}

func (b *batch) configBuffer(p recording.BufferProxy) (hal.Buffer, error) {
	if buf, ok := b.buffers[p.ID]; ok {
		return buf, nil
	}
	buf, err := b.e.device.CreateBuffer(&hal.BufferDescriptor{
		Label: p.Label,
		Size:  deviceSize(p.Size),
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("hal: create config buffer %q: %w", p.Label, err)
	}
	b.buffers[p.ID] = buf
	b.owned = append(b.owned, buf)
	return buf, nil
}

func (b *batch) begin() error {
	encoder, err := b.e.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "vgraph"})
	if err != nil {
		return fmt.Errorf("hal: create command encoder: %w", err)
	}
	b.encoders = append(b.encoders, encoder)
	if err := encoder.BeginEncoding("vgraph"); err != nil {
		return fmt.Errorf("hal: begin encoding: %w", err)
	}
	b.encoder = encoder
	clear(b.dirty)
	return nil
}

func (b *batch) end() (hal.CommandBuffer, error) {
	cmdBuf, err := b.encoder.EndEncoding()
	b.encoder = nil
	if err != nil {
		return nil, fmt.Errorf("hal: end encoding: %w", err)
	}
	b.cmdBufs = append(b.cmdBufs, cmdBuf)
	return cmdBuf, nil
}

// flush submits the work encoded so far and waits for it, so that a
// following host write cannot overtake it.
func (b *batch) flush() error {
	cmdBuf, err := b.end()
	if err != nil {
		return err
	}
	index, err := b.e.submit(cmdBuf)
	if err != nil {
		return err
	}
	if err := b.e.poller.wait(index); err != nil {
		return err
	}
	b.span.AddEvent("flush")
	return b.begin()
}

func (b *batch) hostWrite(id recording.ResourceID) error {
	if b.dirty[id] {
		return b.flush()
	}
	return nil
}

// encode records every command of req and submits the result.
func (b *batch) encode(req engine.Request) error {
	e := b.e
	b.buffers = make(map[recording.ResourceID]hal.Buffer)
	b.dirty = make(map[recording.ResourceID]bool)
	b.target, b.targetUsage = req.Target.ID, req.TargetUsage
	if b.targetUsage == 0 {
		b.targetUsage = engine.DefaultUsage
	}
	for id, t := range b.res.Externals {
		b.buffers[id] = t.Handle().(*gpuImage).buf
	}
	if err := b.begin(); err != nil {
		return err
	}

	log := logging.Logger()
	for _, cmd := range req.Recording.Commands() {
		switch c := cmd.(type) {
		case recording.Upload:
			buf, err := b.buffer(c.Buffer)
			if err != nil {
				return err
			}
			if err := b.hostWrite(c.Buffer.ID); err != nil {
				return err
			}
			if err := e.queue.WriteBuffer(buf, 0, pad(c.Data, deviceSize(c.Buffer.Size))); err != nil {
				return fmt.Errorf("hal: upload %s: %w", c.Buffer, err)
			}
		case recording.UploadConfig:
			buf, err := b.configBuffer(c.Buffer)
			if err != nil {
				return err
			}
			if err := e.queue.WriteBuffer(buf, 0, pad(c.Data, deviceSize(c.Buffer.Size))); err != nil {
				return fmt.Errorf("hal: upload %s: %w", c.Buffer, err)
			}
		case recording.UploadImage:
			buf, err := b.buffer(c.Image)
			if err != nil {
				return err
			}
			if err := b.hostWrite(c.Image.ID); err != nil {
				return err
			}
			if err := e.queue.WriteBuffer(buf, 0, pad(c.Data, deviceSize(c.Image.ByteSize()))); err != nil {
				return fmt.Errorf("hal: upload %s: %w", c.Image, err)
			}
		case recording.ZeroFill:
			buf, err := b.buffer(c.Buffer)
			if err != nil {
				return err
			}
			if err := b.hostWrite(c.Buffer.ID); err != nil {
				return err
			}
			if err := e.queue.WriteBuffer(buf, 0, make([]byte, deviceSize(c.Buffer.Size))); err != nil {
				return fmt.Errorf("hal: zero %s: %w", c.Buffer, err)
			}
		case recording.FreeBuffer, recording.FreeImage:
			// Buffers are destroyed when the submission completes.
		case recording.Dispatch:
			if err := b.dispatch(c); err != nil {
				return err
			}
			log.Debug("hal: dispatch", "shader", b.res.Shaders[c.Shader].Name, "workgroups", c.Workgroups)
		}
	}

	// Kept and downloaded resources may be freed inside the Recording, so
	// they are resolved from the proxy map rather than live state.
	if req.Target.ID != 0 {
		buf, err := b.buffer(req.Target)
		if err != nil {
			return err
		}
		b.kept = buf
	}
	if len(req.Downloads) > 0 {
		b.staging = make(map[recording.ResourceID]hal.Buffer, len(req.Downloads))
		for _, d := range req.Downloads {
			src, err := b.buffer(d)
			if err != nil {
				return err
			}
			dst, err := e.device.CreateBuffer(&hal.BufferDescriptor{
				Label: "download_" + d.Label,
				Size:  deviceSize(d.Size),
				Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
			})
			if err != nil {
				return fmt.Errorf("hal: create staging buffer: %w", err)
			}
			b.staging[d.ID] = dst
			b.encoder.CopyBufferToBuffer(src, dst, []hal.BufferCopy{{SrcOffset: 0, DstOffset: 0, Size: deviceSize(d.Size)}})
		}
	}

	cmdBuf, err := b.end()
	if err != nil {
		return err
	}
	b.index, err = e.submit(cmdBuf)
	return err
}

func (b *batch) dispatch(d recording.Dispatch) error {
	sh := b.res.Shaders[d.Shader]
	p := b.pipes[d.Shader]

	entries := make([]gputypes.BindGroupEntry, len(d.Bindings))
	for i, proxy := range d.Bindings {
		buf, err := b.buffer(proxy)
		if err != nil {
			return err
		}
		entries[i] = gputypes.BindGroupEntry{
			Binding:  uint32(i),
			Resource: gputypes.BufferBinding{Buffer: buf.NativeHandle(), Offset: 0, Size: 0},
		}
		if sh.Layout[i].IsMutable() {
			b.dirty[proxy.ResourceID()] = true
		}
	}
	bg, err := b.e.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   sh.Name + "_bg",
		Layout:  p.bgLayout,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("hal: create bind group for %s: %w", sh.Name, err)
	}
	b.groups = append(b.groups, bg)

	pass := b.encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: sh.Name})
	pass.SetPipeline(p.compute)
	pass.SetBindGroup(0, bg, nil)
	pass.Dispatch(d.Workgroups[0], d.Workgroups[1], d.Workgroups[2])
	pass.End()

	b.span.AddEvent("dispatch", trace.WithAttributes(
		attribute.String("shader", sh.Name),
		attribute.Int("workgroups", int(d.Workgroups[0])*int(d.Workgroups[1])*int(d.Workgroups[2])),
	))
	return nil
}

// finish runs once the batch's submission has completed or failed.
func (b *batch) finish(req engine.Request, waitErr error) (
	tex *engine.Texture, buffers map[recording.ResourceID][]byte, err error) {
	e := b.e
	defer func() {
		if err != nil {
			b.kept = nil
		}
		b.release()
	}()

	if waitErr != nil {
		return nil, nil, fmt.Errorf("%w: %w", engine.ErrDevice, waitErr)
	}
	if len(b.staging) > 0 {
		buffers = make(map[recording.ResourceID][]byte, len(b.staging))
		for _, d := range req.Downloads {
			out, err := e.readBuffer(b.staging[d.ID], deviceSize(d.Size))
			if err != nil {
				return nil, nil, fmt.Errorf("%w: hal: download %s: %w", engine.ErrDevice, d, err)
			}
			buffers[d.ID] = out[:d.Size]
		}
	}
	if b.kept != nil {
		tex = engine.NewTexture(e, req.Target, b.targetUsage, &gpuImage{buf: b.kept, size: deviceSize(req.Target.ByteSize())})
		e.mu.Lock()
		e.textures[tex.ID] = tex
		e.mu.Unlock()
	}
	return tex, buffers, nil
}

func (b *batch) release() {
	device := b.e.device
	for _, bg := range b.groups {
		device.DestroyBindGroup(bg)
	}
	for _, buf := range b.owned {
		if buf != b.kept {
			device.DestroyBuffer(buf)
		}
	}
	for _, buf := range b.staging {
		device.DestroyBuffer(buf)
	}
	for _, cb := range b.cmdBufs {
		device.FreeCommandBuffer(cb)
	}
	for _, enc := range b.encoders {
		enc.Destroy()
	}
}

// abort releases a batch that was never submitted.
func (b *batch) abort() {
	if b.encoder != nil {
		b.encoder.DiscardEncoding()
		b.encoder = nil
	}
	b.kept = nil
	b.release()
}
