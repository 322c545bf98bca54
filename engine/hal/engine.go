// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package hal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gogpu/vgraph/engine"
	"github.com/gogpu/vgraph/internal/logging"
	"github.com/gogpu/vgraph/pipecache"
	"github.com/gogpu/vgraph/recording"
	"github.com/gogpu/vgraph/shaders"
)

// Name is the registered name of the engine.
const Name = "hal"

var errIncomplete = errors.New("hal: submission did not complete")

func init() {
	engine.Register(Name, func(reg *shaders.Registry, cfg engine.Config) (engine.Engine, error) {
		if cfg.Provider == nil {
			return nil, fmt.Errorf("%w: hal: no device provider", engine.ErrDevice)
		}
		return FromProvider(reg, cfg.Provider,
			WithSPIRV(cfg.SPIRV),
			WithPipelineCache(cfg.PipelineCacheDir),
			WithDeviceIdentity(cfg.Identity))
	})
}

// Option configures an Engine.
type Option func(*Engine)

// WithSPIRV compiles stages to SPIR-V with naga instead of handing WGSL to
// the device.
func WithSPIRV(enabled bool) Option {
	return func(e *Engine) { e.spirv = enabled }
}

// WithPipelineCache persists compiled SPIR-V under dir. It has no effect
// without WithSPIRV.
func WithPipelineCache(dir string) Option {
	return func(e *Engine) { e.cacheDir = dir }
}

// WithDeviceIdentity sets the identity pipeline cache entries are keyed by.
func WithDeviceIdentity(id pipecache.DeviceIdentity) Option {
	return func(e *Engine) { e.identity = id }
}

// halProvider is implemented by device providers that expose their HAL
// objects.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// FromProvider creates an engine on the HAL device behind provider.
func FromProvider(reg *shaders.Registry, provider gpucontext.DeviceProvider, opts ...Option) (*Engine, error) {
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("%w: hal: provider %T does not expose a HAL device", engine.ErrDevice, provider)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: hal: provider has no HAL device", engine.ErrDevice)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: hal: provider has no HAL queue", engine.ErrDevice)
	}
	return New(reg, device, queue, opts...), nil
}

// gpuImage is the device storage of an image: one packed word per pixel.
type gpuImage struct {
	buf  hal.Buffer
	size uint64
}

// Engine executes Recordings on a HAL device.
//
// Thread safety: Engine is safe for concurrent use.
type Engine struct {
	reg    *shaders.Registry
	device hal.Device
	queue  hal.Queue
	poller *poller
	tracer trace.Tracer

	spirv      bool
	cacheDir   string
	identity   pipecache.DeviceIdentity
	cacheKey   string
	spirvCache map[string]spirvEntry

	pipeMu    sync.Mutex
	pipelines map[recording.ShaderID]*pipeline
	retired   []*pipeline

	// submitMu keeps queue order equal to Submit order.
	submitMu sync.Mutex

	mu       sync.Mutex
	textures map[uint64]*engine.Texture
	closed   atomic.Bool
}

var _ engine.Engine = (*Engine)(nil)

// New creates an engine on device and queue. The engine does not take
// ownership of either.
func New(reg *shaders.Registry, device hal.Device, queue hal.Queue, opts ...Option) *Engine {
	e := &Engine{
		reg:       reg,
		device:    device,
		queue:     queue,
		poller:    &poller{device: device, queue: queue},
		tracer:    otel.Tracer("github.com/gogpu/vgraph/engine/hal"),
		pipelines: make(map[recording.ShaderID]*pipeline),
		textures:  make(map[uint64]*engine.Texture),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.cacheKey = pipecache.Key(e.identity)
	if e.spirv {
		e.loadSPIRVCache()
	}
	return e
}

// Name implements engine.Engine.
func (e *Engine) Name() string { return Name }

// Device returns the device polled by submissions.
func (e *Engine) Device() gpucontext.Device { return e.poller }

// Submit implements engine.Engine.
func (e *Engine) Submit(ctx context.Context, req engine.Request) (*engine.Submission, error) {
	if e.closed.Load() {
		return nil, engine.ErrClosed
	}
	for _, ext := range req.Externals {
		if ext.Texture != nil && ext.Texture.Owner() != engine.Engine(e) {
			return nil, fmt.Errorf("hal: external %s: %w", ext.Proxy, engine.ErrOwnership)
		}
	}
	res, err := engine.Validate(e.reg, req)
	if err != nil {
		return nil, err
	}

	pipes := make(map[recording.ShaderID]*pipeline, len(res.Shaders))
	for _, id := range shaderIDs(res.Shaders) {
		sh := res.Shaders[id]
		if sh.WGSL == "" {
			return nil, fmt.Errorf("%w: hal: shader %q has no source", engine.ErrValidation, sh.Name)
		}
		p, err := e.pipelineFor(sh)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", engine.ErrDevice, err)
		}
		pipes[id] = p
	}

	_, span := e.tracer.Start(ctx, "hal.Submit",
		trace.WithAttributes(
			attribute.Int("commands", req.Recording.Len()),
			attribute.Int("dispatches", len(req.Recording.Dispatches())),
		),
	)

	e.submitMu.Lock()
	defer e.submitMu.Unlock()
	if e.closed.Load() {
		span.End()
		return nil, engine.ErrClosed
	}

	sub := engine.NewSubmission(e.poller)
	b := &batch{e: e, span: span, res: res, pipes: pipes}
	if err := b.encode(req); err != nil {
		b.abort()
		err = fmt.Errorf("%w: %w", engine.ErrDevice, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return nil, err
	}
	e.poller.track(b.index, func(err error) {
		defer span.End()
		tex, buffers, err := b.finish(req, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		sub.Complete(tex, buffers, err)
	})
	return sub, nil
}

// ReadImage implements engine.Engine. The copy is queued behind earlier
// submissions and completes through polling.
func (e *Engine) ReadImage(ctx context.Context, tex *engine.Texture) ([]byte, error) {
	if err := e.check(tex); err != nil {
		return nil, err
	}
	if err := engine.CheckReadable(tex); err != nil {
		return nil, err
	}
	img := tex.Handle().(*gpuImage)

	e.submitMu.Lock()
	if e.closed.Load() {
		e.submitMu.Unlock()
		return nil, engine.ErrClosed
	}
	staging, err := e.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "readback_" + tex.Label,
		Size:  img.size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		e.submitMu.Unlock()
		return nil, fmt.Errorf("%w: hal: create staging buffer: %w", engine.ErrDevice, err)
	}
	job, err := e.submitCopies("readback", []copyOp{{src: img.buf, dst: staging, size: img.size}})
	if err != nil {
		e.device.DestroyBuffer(staging)
		e.submitMu.Unlock()
		return nil, fmt.Errorf("%w: %w", engine.ErrDevice, err)
	}

	n := uint64(tex.Width) * uint64(tex.Height) * uint64(tex.Format.BytesPerPixel())
	var (
		data    []byte
		readErr error
	)
	done := make(chan struct{})
	e.poller.track(job.index, func(err error) {
		defer close(done)
		defer e.device.DestroyBuffer(staging)
		defer job.release(e.device)
		if err != nil {
			readErr = fmt.Errorf("%w: hal: readback: %w", engine.ErrDevice, err)
			return
		}
		out, err := e.readBuffer(staging, img.size)
		if err != nil {
			readErr = fmt.Errorf("%w: hal: readback: %w", engine.ErrDevice, err)
			return
		}
		data = out[:n]
	})
	e.submitMu.Unlock()

	if err := engine.BlockOn(ctx, e.poller, done); err != nil {
		return nil, err
	}
	return data, readErr
}

func (e *Engine) check(tex *engine.Texture) error {
	if tex == nil {
		return fmt.Errorf("%w: nil texture", engine.ErrValidation)
	}
	if tex.Owner() != engine.Engine(e) {
		return fmt.Errorf("hal: texture %d: %w", tex.ID, engine.ErrOwnership)
	}
	if tex.Released() {
		return fmt.Errorf("%w: texture %d is released", engine.ErrValidation, tex.ID)
	}
	return nil
}

// Release implements engine.Engine. The buffer is destroyed once queued
// work that may read it has finished.
func (e *Engine) Release(tex *engine.Texture) {
	if tex == nil || tex.Owner() != engine.Engine(e) || !tex.MarkReleased() {
		return
	}
	e.mu.Lock()
	delete(e.textures, tex.ID)
	e.mu.Unlock()
	e.poller.Poll(true)
	e.device.DestroyBuffer(tex.Handle().(*gpuImage).buf)
}

// Live returns the number of textures not yet released.
func (e *Engine) Live() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.textures)
}

// Close waits for queued work, then destroys every texture and pipeline.
func (e *Engine) Close() error {
	e.submitMu.Lock()
	if !e.closed.CompareAndSwap(false, true) {
		e.submitMu.Unlock()
		return nil
	}
	e.submitMu.Unlock()

	e.poller.Destroy()

	e.mu.Lock()
	for _, t := range e.textures {
		t.MarkReleased()
		e.device.DestroyBuffer(t.Handle().(*gpuImage).buf)
	}
	clear(e.textures)
	e.mu.Unlock()

	e.pipeMu.Lock()
	for _, p := range e.pipelines {
		p.destroy(e.device)
	}
	for _, p := range e.retired {
		p.destroy(e.device)
	}
	clear(e.pipelines)
	e.retired = nil
	e.pipeMu.Unlock()

	logging.Logger().Debug("hal: engine closed")
	return nil
}
