// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cpu

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gogpu/vgraph/engine"
	"github.com/gogpu/vgraph/internal/logging"
	"github.com/gogpu/vgraph/internal/parallel"
	"github.com/gogpu/vgraph/recording"
	"github.com/gogpu/vgraph/shaders"
)

// Name is the registered name of the engine.
const Name = "cpu"

func init() {
	engine.Register(Name, func(reg *shaders.Registry, cfg engine.Config) (engine.Engine, error) {
		return New(reg, WithWorkers(cfg.Workers)), nil
	})
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers sets the number of workgroup lanes. Zero means GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(e *Engine) { e.workers = n }
}

// WithKernel adds or replaces the kernel run for the shader called name.
func WithKernel(name string, k Kernel) Option {
	return func(e *Engine) { e.kernels[name] = k }
}

// Engine executes Recordings on the CPU.
//
// Thread safety: Engine is safe for concurrent use.
type Engine struct {
	reg     *shaders.Registry
	device  *Device
	pool    *parallel.WorkerPool
	workers int
	kernels map[string]Kernel
	tracer  trace.Tracer

	mu       sync.Mutex
	textures map[uint64]*engine.Texture
	closed   atomic.Bool
}

var _ engine.Engine = (*Engine)(nil)

// New creates a CPU engine for the stages registered in reg.
func New(reg *shaders.Registry, opts ...Option) *Engine {
	e := &Engine{
		reg:      reg,
		device:   &Device{},
		kernels:  defaultKernels(),
		tracer:   otel.Tracer("github.com/gogpu/vgraph/engine/cpu"),
		textures: make(map[uint64]*engine.Texture),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.pool = parallel.NewWorkerPool(e.workers)
	return e
}

// Name implements engine.Engine.
func (e *Engine) Name() string { return Name }

// Device returns the device polled by submissions.
func (e *Engine) Device() *Device { return e.device }

// Submit implements engine.Engine.
func (e *Engine) Submit(ctx context.Context, req engine.Request) (*engine.Submission, error) {
	if e.closed.Load() {
		return nil, engine.ErrClosed
	}
	for _, ext := range req.Externals {
		if ext.Texture != nil && ext.Texture.Owner() != engine.Engine(e) {
			return nil, fmt.Errorf("cpu: external %s: %w", ext.Proxy, engine.ErrOwnership)
		}
	}
	res, err := engine.Validate(e.reg, req)
	if err != nil {
		return nil, err
	}
	for _, sh := range res.Shaders {
		if _, ok := e.kernels[sh.Name]; !ok {
			return nil, fmt.Errorf("%w: cpu: no kernel for shader %q", engine.ErrValidation, sh.Name)
		}
	}

	_, span := e.tracer.Start(ctx, "cpu.Submit",
		trace.WithAttributes(
			attribute.Int("commands", req.Recording.Len()),
			attribute.Int("dispatches", len(req.Recording.Dispatches())),
		),
	)
	sub := engine.NewSubmission(e.device)
	ok := e.device.enqueue(func() {
		defer span.End()
		tex, buffers, err := e.execute(span, req, res)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		sub.Complete(tex, buffers, err)
	})
	if !ok {
		span.End()
		return nil, engine.ErrClosed
	}
	return sub, nil
}

func (e *Engine) execute(span trace.Span, req engine.Request, res *engine.Resolution) (
	tex *engine.Texture, buffers map[recording.ResourceID][]byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			tex, buffers = nil, nil
			err = fmt.Errorf("%w: cpu: %v", engine.ErrDevice, r)
		}
	}()

	mem := make(map[recording.ResourceID]*Memory)
	for id, t := range res.Externals {
		mem[id] = t.Handle().(*Memory)
	}
	get := func(p recording.ResourceProxy) *Memory {
		id := p.ResourceID()
		if m, ok := mem[id]; ok {
			return m
		}
		var m *Memory
		switch p := p.(type) {
		case recording.BufferProxy:
			m = newBuffer(p)
		case recording.ImageProxy:
			m = newImage(p)
		}
		mem[id] = m
		return m
	}

	log := logging.Logger()
	for _, cmd := range req.Recording.Commands() {
		switch c := cmd.(type) {
		case recording.Upload:
			get(c.Buffer).Load(c.Data)
		case recording.UploadConfig:
			get(c.Buffer).Load(c.Data)
		case recording.UploadImage:
			get(c.Image).Load(c.Data)
		case recording.ZeroFill:
			clear(get(c.Buffer).Words)
		case recording.FreeBuffer:
			delete(mem, c.Buffer.ID)
		case recording.FreeImage:
			delete(mem, c.Image.ID)
		case recording.Dispatch:
			sh := res.Shaders[c.Shader]
			inv := &Invocation{
				Shader:     sh,
				Workgroups: c.Workgroups,
				Bindings:   make([]*Memory, len(c.Bindings)),
				Exec:       e.pool,
			}
			for i, b := range c.Bindings {
				inv.Bindings[i] = get(b)
			}
			span.AddEvent("dispatch", trace.WithAttributes(
				attribute.String("shader", sh.Name),
				attribute.Int("workgroups", inv.Groups()),
			))
			log.Debug("cpu: dispatch", "shader", sh.Name, "workgroups", c.Workgroups)
			if err := e.kernels[sh.Name](inv); err != nil {
				return nil, nil, fmt.Errorf("%w: cpu: %s: %w", engine.ErrDevice, sh.Name, err)
			}
		}
	}

	if req.Target.ID != 0 {
		tex = engine.NewTexture(e, req.Target, req.TargetUsage, get(req.Target))
		e.mu.Lock()
		e.textures[tex.ID] = tex
		e.mu.Unlock()
	}
	if len(req.Downloads) > 0 {
		buffers = make(map[recording.ResourceID][]byte, len(req.Downloads))
		for _, b := range req.Downloads {
			buffers[b.ID] = get(b).Bytes()
		}
	}
	return tex, buffers, nil
}

// ReadImage implements engine.Engine. The read is queued behind earlier
// submissions and completes through polling.
func (e *Engine) ReadImage(ctx context.Context, tex *engine.Texture) ([]byte, error) {
	if err := e.check(tex); err != nil {
		return nil, err
	}
	if err := engine.CheckReadable(tex); err != nil {
		return nil, err
	}
	var data []byte
	done := make(chan struct{})
	if !e.device.enqueue(func() {
		defer close(done)
		data = tex.Handle().(*Memory).Bytes()
	}) {
		return nil, engine.ErrClosed
	}
	if err := engine.BlockOn(ctx, e.device, done); err != nil {
		return nil, err
	}
	return data, nil
}

func (e *Engine) check(tex *engine.Texture) error {
	if tex == nil {
		return fmt.Errorf("%w: nil texture", engine.ErrValidation)
	}
	if tex.Owner() != engine.Engine(e) {
		return fmt.Errorf("cpu: texture %d: %w", tex.ID, engine.ErrOwnership)
	}
	if tex.Released() {
		return fmt.Errorf("%w: texture %d is released", engine.ErrValidation, tex.ID)
	}
	return nil
}

// Release implements engine.Engine.
func (e *Engine) Release(tex *engine.Texture) {
	if tex == nil || tex.Owner() != engine.Engine(e) || !tex.MarkReleased() {
		return
	}
	e.mu.Lock()
	delete(e.textures, tex.ID)
	e.mu.Unlock()
}

// Live returns the number of textures not yet released.
func (e *Engine) Live() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.textures)
}

// Close runs any queued work, then stops the worker pool.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.device.Destroy()
	e.pool.Close()
	e.mu.Lock()
	for _, t := range e.textures {
		t.MarkReleased()
	}
	clear(e.textures)
	e.mu.Unlock()
	return nil
}
