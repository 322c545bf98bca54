package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/vgraph/recording"
	"github.com/gogpu/vgraph/shaders"
)

// =============================================================================
// Helpers
// =============================================================================

func testRegistry(t *testing.T) (*shaders.Registry, recording.ShaderID) {
	t.Helper()
	reg := shaders.NewRegistry()
	id, err := reg.Add("copy", "", [3]uint32{64, 1, 1}, shaders.Config, shaders.ReadOnly, shaders.Buffer)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	return reg, id
}

type countingDevice struct {
	polls atomic.Int64
	after int64
	done  chan struct{}
}

func (d *countingDevice) Poll(wait bool) {
	if d.polls.Add(1) == d.after {
		close(d.done)
	}
}

func (d *countingDevice) Destroy() {}

var _ Poller = (*countingDevice)(nil)

// =============================================================================
// Validate Tests
// =============================================================================

func TestValidate_Accepts(t *testing.T) {
	reg, id := testRegistry(t)
	rec := recording.New()
	cfg := rec.UploadConfig("cfg", make([]byte, 16))
	in := rec.Upload("in", make([]byte, 64))
	out := rec.CreateBuffer("out", 64)
	rec.ZeroFill(out)
	rec.Dispatch(id, [3]uint32{1, 1, 1}, []recording.ResourceProxy{cfg, in, out})

	res, err := Validate(reg, Request{Recording: rec, Downloads: []recording.BufferProxy{out}})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(res.Buffers) != 3 {
		t.Errorf("len(Buffers) = %d, want 3", len(res.Buffers))
	}
	if sh, ok := res.Shaders[id]; !ok || sh.Name != "copy" {
		t.Errorf("Shaders[%d] = %v, %v; want copy", id, sh.Name, ok)
	}
}

func TestValidate_Rejects(t *testing.T) {
	reg, id := testRegistry(t)

	tests := []struct {
		name  string
		build func() Request
		want  error
	}{
		{
			name: "unknown shader",
			build: func() Request {
				rec := recording.New()
				rec.Dispatch(id+7, [3]uint32{1, 1, 1}, nil)
				return Request{Recording: rec}
			},
			want: shaders.ErrUnknownShader,
		},
		{
			name: "binding count",
			build: func() Request {
				rec := recording.New()
				cfg := rec.UploadConfig("cfg", make([]byte, 16))
				rec.Dispatch(id, [3]uint32{1, 1, 1}, []recording.ResourceProxy{cfg})
				return Request{Recording: rec}
			},
			want: ErrBindingLayout,
		},
		{
			name: "plain buffer in config slot",
			build: func() Request {
				rec := recording.New()
				a := rec.Upload("a", make([]byte, 16))
				b := rec.Upload("b", make([]byte, 16))
				c := rec.CreateBuffer("c", 16)
				rec.Dispatch(id, [3]uint32{1, 1, 1}, []recording.ResourceProxy{a, b, c})
				return Request{Recording: rec}
			},
			want: ErrBindingLayout,
		},
		{
			name: "image in buffer slot",
			build: func() Request {
				rec := recording.New()
				cfg := rec.UploadConfig("cfg", make([]byte, 16))
				img := rec.CreateImage("img", 4, 4, recording.FormatRGBA8)
				c := rec.CreateBuffer("c", 16)
				rec.Dispatch(id, [3]uint32{1, 1, 1}, []recording.ResourceProxy{cfg, img, c})
				return Request{Recording: rec}
			},
			want: ErrBindingLayout,
		},
		{
			name: "writable alias",
			build: func() Request {
				rec := recording.New()
				cfg := rec.UploadConfig("cfg", make([]byte, 16))
				c := rec.CreateBuffer("c", 16)
				rec.Dispatch(id, [3]uint32{1, 1, 1}, []recording.ResourceProxy{cfg, c, c})
				return Request{Recording: rec}
			},
			want: ErrBindingLayout,
		},
		{
			name: "use after free",
			build: func() Request {
				rec := recording.New()
				cfg := rec.UploadConfig("cfg", make([]byte, 16))
				in := rec.Upload("in", make([]byte, 16))
				c := rec.CreateBuffer("c", 16)
				rec.FreeBuffer(in)
				rec.Dispatch(id, [3]uint32{1, 1, 1}, []recording.ResourceProxy{cfg, in, c})
				return Request{Recording: rec}
			},
			want: ErrValidation,
		},
		{
			name: "undeclared proxy",
			build: func() Request {
				rec := recording.New()
				cfg := rec.UploadConfig("cfg", make([]byte, 16))
				stray := recording.NewBufferProxy("stray", 16)
				c := rec.CreateBuffer("c", 16)
				rec.Dispatch(id, [3]uint32{1, 1, 1}, []recording.ResourceProxy{cfg, stray, c})
				return Request{Recording: rec}
			},
			want: ErrValidation,
		},
		{
			name: "missing target",
			build: func() Request {
				return Request{
					Recording: recording.New(),
					Target:    recording.NewImageProxy("t", 1, 1, recording.FormatRGBA8),
				}
			},
			want: ErrValidation,
		},
		{
			name:  "nil recording",
			build: func() Request { return Request{} },
			want:  ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate(reg, tt.build())
			if !errors.Is(err, tt.want) {
				t.Errorf("Validate() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestValidate_BindingLayoutIsValidation(t *testing.T) {
	if !errors.Is(ErrBindingLayout, ErrValidation) {
		t.Error("ErrBindingLayout should wrap ErrValidation")
	}
}

func TestValidate_ExternalMustMatch(t *testing.T) {
	reg := shaders.NewRegistry()
	id, _ := reg.Add("blur", "", [3]uint32{16, 16, 1},
		shaders.Config, shaders.ImageRead(recording.FormatRGBA8), shaders.Image(recording.FormatRGBA8))

	src := recording.NewImageProxy("src", 8, 8, recording.FormatRGBA8)
	rec := recording.New()
	cfg := rec.UploadConfig("cfg", make([]byte, 16))
	out := rec.CreateImage("out", 8, 8, recording.FormatRGBA8)
	rec.Dispatch(id, [3]uint32{1, 1, 1}, []recording.ResourceProxy{cfg, src, out})

	good := NewTexture(nil, src, 0, nil)
	if _, err := Validate(reg, Request{Recording: rec, Target: out, Externals: []External{{src, good}}}); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	small := NewTexture(nil, recording.NewImageProxy("small", 4, 4, recording.FormatRGBA8), 0, nil)
	if _, err := Validate(reg, Request{Recording: rec, Externals: []External{{src, small}}}); !errors.Is(err, ErrValidation) {
		t.Errorf("mismatched external: error = %v, want ErrValidation", err)
	}

	good.MarkReleased()
	if _, err := Validate(reg, Request{Recording: rec, Externals: []External{{src, good}}}); !errors.Is(err, ErrValidation) {
		t.Errorf("released external: error = %v, want ErrValidation", err)
	}
}

func TestValidate_Usage(t *testing.T) {
	reg := shaders.NewRegistry()
	id, _ := reg.Add("blur", "", [3]uint32{16, 16, 1},
		shaders.Config, shaders.ImageRead(recording.FormatRGBA8), shaders.Image(recording.FormatRGBA8))

	src := recording.NewImageProxy("src", 8, 8, recording.FormatRGBA8)
	rec := recording.New()
	cfg := rec.UploadConfig("cfg", make([]byte, 16))
	out := rec.CreateImage("out", 8, 8, recording.FormatRGBA8)
	rec.Dispatch(id, [3]uint32{1, 1, 1}, []recording.ResourceProxy{cfg, src, out})

	copyOnly := NewTexture(nil, src, gputypes.TextureUsageCopySrc, nil)
	if _, err := Validate(reg, Request{Recording: rec, Externals: []External{{src, copyOnly}}}); !errors.Is(err, ErrValidation) {
		t.Errorf("external without TextureBinding: error = %v, want ErrValidation", err)
	}

	bindable := NewTexture(nil, src, gputypes.TextureUsageTextureBinding, nil)
	req := Request{Recording: rec, Target: out, Externals: []External{{src, bindable}}, TargetUsage: 1 << 40}
	if _, err := Validate(reg, req); !errors.Is(err, ErrValidation) {
		t.Errorf("unknown target usage bits: error = %v, want ErrValidation", err)
	}
	req.TargetUsage = gputypes.TextureUsageTextureBinding
	if _, err := Validate(reg, req); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestTexture_Usage(t *testing.T) {
	img := recording.NewImageProxy("img", 2, 2, recording.FormatRGBA8)
	if got := NewTexture(nil, img, 0, nil).Usage; got != DefaultUsage {
		t.Errorf("Usage = %#x, want DefaultUsage", uint64(got))
	}
	if err := CheckReadable(NewTexture(nil, img, 0, nil)); err != nil {
		t.Errorf("CheckReadable(default) = %v, want nil", err)
	}
	if err := CheckReadable(NewTexture(nil, img, gputypes.TextureUsageTextureBinding, nil)); !errors.Is(err, ErrValidation) {
		t.Errorf("CheckReadable(binding only) = %v, want ErrValidation", err)
	}
}

// =============================================================================
// Submission Tests
// =============================================================================

func TestBlockOn_PollsUntilDone(t *testing.T) {
	dev := &countingDevice{after: 5, done: make(chan struct{})}
	if err := BlockOn(context.Background(), dev, dev.done); err != nil {
		t.Fatalf("BlockOn: %v", err)
	}
	if got := dev.polls.Load(); got != 5 {
		t.Errorf("polls = %d, want 5", got)
	}
}

func TestBlockOn_Canceled(t *testing.T) {
	dev := &countingDevice{after: -1, done: make(chan struct{})}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := BlockOn(ctx, dev, dev.done); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("BlockOn() error = %v, want DeadlineExceeded", err)
	}
}

func TestBlockOn_NotPollable(t *testing.T) {
	// gpucontext.Device is satisfied by any value; one without Poll is only
	// waited on.
	type plainDevice struct{}
	done := make(chan struct{})
	go func() {
		time.Sleep(5 * time.Millisecond)
		close(done)
	}()
	if err := BlockOn(context.Background(), plainDevice{}, done); err != nil {
		t.Errorf("BlockOn() error = %v, want nil", err)
	}
}

func TestSubmission_CompleteOnce(t *testing.T) {
	s := NewSubmission(nil)
	b := recording.NewBufferProxy("b", 4)
	if _, ok := s.Buffer(b); ok {
		t.Error("Buffer() before completion should report false")
	}
	s.Complete(nil, map[recording.ResourceID][]byte{b.ID: {1, 2, 3, 4}}, nil)
	s.Complete(nil, nil, errors.New("late"))

	if _, err := s.Wait(context.Background()); err != nil {
		t.Errorf("Wait() error = %v, want nil", err)
	}
	if data, ok := s.Buffer(b); !ok || len(data) != 4 {
		t.Errorf("Buffer() = %v, %v; want 4 bytes", data, ok)
	}
}

// =============================================================================
// Registry Tests
// =============================================================================

func TestRegistry(t *testing.T) {
	const name = "test-engine"
	Register(name, func(*shaders.Registry, Config) (Engine, error) { return nil, errors.New("stub") })
	defer Unregister(name)

	if !IsRegistered(name) {
		t.Fatalf("IsRegistered(%q) = false", name)
	}
	if _, err := New(name, nil, Config{}); err == nil || err.Error() != "stub" {
		t.Errorf("New() error = %v, want stub", err)
	}
	if _, err := New("missing", nil, Config{}); err == nil {
		t.Error("New(missing) should fail")
	}

	defer func() {
		if recover() == nil {
			t.Error("duplicate Register should panic")
		}
	}()
	Register(name, func(*shaders.Registry, Config) (Engine, error) { return nil, nil })
}
