package cpu

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"testing"

	"github.com/gogpu/vgraph/engine"
	"github.com/gogpu/vgraph/recording"
	"github.com/gogpu/vgraph/render"
	"github.com/gogpu/vgraph/scan"
	"github.com/gogpu/vgraph/scene"
	"github.com/gogpu/vgraph/shaders"
)

// =============================================================================
// Helpers
// =============================================================================

func newTestEngine(t *testing.T) (*Engine, *shaders.Set) {
	t.Helper()
	reg := shaders.NewRegistry()
	set, err := shaders.NewSet(reg, nil)
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	e := New(reg, WithWorkers(4))
	t.Cleanup(func() { _ = e.Close() })
	return e, set
}

func renderScene(t *testing.T, e *Engine, set *shaders.Set, sc *scene.Scene, w, h uint32) []byte {
	t.Helper()
	plan, err := render.Render(sc, set, render.Params{Width: w, Height: h})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	ctx := context.Background()
	sub, err := e.Submit(ctx, engine.Request{Recording: plan.Recording, Target: plan.Output})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	tex, err := sub.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	defer e.Release(tex)
	pix, err := e.ReadImage(ctx, tex)
	if err != nil {
		t.Fatalf("ReadImage: %v", err)
	}
	if len(pix) != int(w*h*4) {
		t.Fatalf("len(pixels) = %d, want %d", len(pix), w*h*4)
	}
	return pix
}

func pixelAt(pix []byte, w, x, y int) [4]byte {
	i := 4 * (y*w + x)
	return [4]byte{pix[i], pix[i+1], pix[i+2], pix[i+3]}
}

// =============================================================================
// Prefix Sum Tests
// =============================================================================

func runPrefixSum(t *testing.T, e *Engine, set *shaders.Set, values []uint32) []uint32 {
	t.Helper()
	plan, err := render.PrefixSum(values, set)
	if err != nil {
		t.Fatalf("PrefixSum: %v", err)
	}
	ctx := context.Background()
	sub, err := e.Submit(ctx, engine.Request{
		Recording: plan.Recording,
		Downloads: []recording.BufferProxy{plan.Output, plan.State},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := sub.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	data, ok := sub.Buffer(plan.Output)
	if !ok {
		t.Fatal("output buffer not downloaded")
	}
	return render.DecodeU32(data)
}

func TestPrefixSum_Ramps(t *testing.T) {
	e, set := newTestEngine(t)

	tests := []struct {
		name  string
		remap func(v uint32) uint32
	}{
		{"identity", func(v uint32) uint32 { return v }},
		{"15 to 16", func(v uint32) uint32 {
			if v == 15 {
				return 16
			}
			return v
		}},
	}
	const n = 2_560_000
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := make([]uint32, n)
			for i := range values {
				values[i] = tt.remap(uint32(i % 32))
			}
			got := runPrefixSum(t, e, set, values)
			want := scan.Fold[uint32](scan.Sum32{}, values)
			if len(got) != n {
				t.Fatalf("len = %d, want %d", len(got), n)
			}
			for i := range want {
				if got[i] != want[i] {
					t.Fatalf("sum[%d] = %d, want %d", i, got[i], want[i])
				}
			}
		})
	}
}

func TestPrefixSum_StatePublished(t *testing.T) {
	e, set := newTestEngine(t)
	values := make([]uint32, 1000)
	for i := range values {
		values[i] = 1
	}
	plan, err := render.PrefixSum(values, set)
	if err != nil {
		t.Fatalf("PrefixSum: %v", err)
	}
	ctx := context.Background()
	sub, err := e.Submit(ctx, engine.Request{Recording: plan.Recording, Downloads: []recording.BufferProxy{plan.State}})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := sub.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	data, _ := sub.Buffer(plan.State)
	state := render.DecodeU32(data)
	for tile := range len(state) / 3 {
		if state[3*tile] != 2 {
			t.Errorf("tile %d status = %d, want 2 (prefix)", tile, state[3*tile])
		}
		want := uint32(min((tile+1)*256, 1000))
		if state[3*tile+2] != want {
			t.Errorf("tile %d prefix = %d, want %d", tile, state[3*tile+2], want)
		}
	}
}

func TestPrefixSum_Overflow(t *testing.T) {
	_, set := newTestEngine(t)
	values := []uint32{1 << 30, 1 << 30}
	if _, err := render.PrefixSum(values, set); !errors.Is(err, engine.ErrOverflow) {
		t.Errorf("PrefixSum() error = %v, want ErrOverflow", err)
	}
}

// =============================================================================
// Render Tests
// =============================================================================

func TestRender_EmptyScene(t *testing.T) {
	e, set := newTestEngine(t)
	pix := renderScene(t, e, set, &scene.Scene{}, 256, 256)
	for i, b := range pix {
		if b != 0 {
			t.Fatalf("pixel byte %d = %d, want 0", i, b)
		}
	}
}

func TestRender_Rect(t *testing.T) {
	e, set := newTestEngine(t)
	b := scene.NewBuilder()
	b.Rect(16, 16, 32, 32)
	b.Fill(scene.FillNonZero, color.RGBA{R: 255, A: 255})

	pix := renderScene(t, e, set, b.Finish(), 64, 64)
	red := [4]byte{255, 0, 0, 255}
	for y := range 64 {
		for x := range 64 {
			inside := x >= 16 && x < 48 && y >= 16 && y < 48
			got := pixelAt(pix, 64, x, y)
			want := [4]byte{}
			if inside {
				want = red
			}
			if got != want {
				t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, got, want)
			}
		}
	}
}

func TestRender_ClippedRect(t *testing.T) {
	e, set := newTestEngine(t)
	b := scene.NewBuilder()
	b.Rect(-20, -20, 40, 40)
	b.Fill(scene.FillNonZero, color.RGBA{G: 255, A: 255})

	pix := renderScene(t, e, set, b.Finish(), 32, 32)
	if got := pixelAt(pix, 32, 0, 0); got != [4]byte{0, 255, 0, 255} {
		t.Errorf("pixel (0,0) = %v, want green", got)
	}
	if got := pixelAt(pix, 32, 19, 19); got != [4]byte{0, 255, 0, 255} {
		t.Errorf("pixel (19,19) = %v, want green", got)
	}
	if got := pixelAt(pix, 32, 20, 5); got != [4]byte{} {
		t.Errorf("pixel (20,5) = %v, want transparent", got)
	}
}

func TestRender_EvenOddHole(t *testing.T) {
	e, set := newTestEngine(t)
	b := scene.NewBuilder()
	b.Rect(0, 0, 32, 32)
	b.Rect(8, 8, 16, 16)
	b.Fill(scene.FillEvenOdd, color.RGBA{B: 255, A: 255})
	b.Rect(40, 0, 24, 24)
	b.Rect(44, 4, 16, 16)
	b.Fill(scene.FillNonZero, color.RGBA{B: 255, A: 255})

	pix := renderScene(t, e, set, b.Finish(), 64, 32)
	blue := [4]byte{0, 0, 255, 255}
	tests := []struct {
		x, y int
		want [4]byte
	}{
		{2, 2, blue},
		{16, 16, [4]byte{}},
		{30, 30, blue},
		{50, 10, blue},
	}
	for _, tt := range tests {
		if got := pixelAt(pix, 64, tt.x, tt.y); got != tt.want {
			t.Errorf("pixel (%d,%d) = %v, want %v", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestRender_HalfCoverage(t *testing.T) {
	e, set := newTestEngine(t)
	b := scene.NewBuilder()
	b.Rect(0.5, 0, 1, 4)
	b.Fill(scene.FillNonZero, color.RGBA{R: 255, G: 255, B: 255, A: 255})

	pix := renderScene(t, e, set, b.Finish(), 16, 16)
	for _, x := range []int{0, 1} {
		got := pixelAt(pix, 16, x, 1)
		if got[3] < 126 || got[3] > 129 {
			t.Errorf("alpha at (%d,1) = %d, want about 128", x, got[3])
		}
	}
}

func TestRender_Deterministic(t *testing.T) {
	e, set := newTestEngine(t)
	build := func() *scene.Scene {
		b := scene.NewBuilder()
		for i := range 40 {
			f := float32(i)
			b.Polygon([2]float32{f * 3, 2}, [2]float32{200 - f, f * 5}, [2]float32{f * 4, 180 - f*2})
			b.Fill(scene.FillRule(i%2), color.RGBA{R: uint8(i * 5), G: 40, B: 90, A: 200})
		}
		return b.Finish()
	}
	first := renderScene(t, e, set, build(), 200, 180)
	second := renderScene(t, e, set, build(), 200, 180)
	if !bytes.Equal(first, second) {
		t.Error("two renders of the same scene differ")
	}
}

func TestRender_BaseColor(t *testing.T) {
	e, set := newTestEngine(t)
	plan, err := render.Render(nil, set, render.Params{Width: 20, Height: 3, BaseColor: color.RGBA{R: 10, G: 20, B: 30, A: 40}})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	ctx := context.Background()
	sub, err := e.Submit(ctx, engine.Request{Recording: plan.Recording, Target: plan.Output})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	tex, err := sub.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	pix, _ := e.ReadImage(ctx, tex)
	if got := pixelAt(pix, 20, 19, 2); got != [4]byte{10, 20, 30, 40} {
		t.Errorf("pixel = %v, want base color", got)
	}
}

func TestRender_SegmentOverflow(t *testing.T) {
	reg := shaders.NewRegistry()
	set, err := shaders.NewSet(reg, nil)
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	// Shrink the segment buffer seen by path_coarse to a single slot.
	e := New(reg, WithWorkers(2), WithKernel(shaders.StagePathCoarse, func(inv *Invocation) error {
		inv.Bindings[0].Words[8] = 1
		return pathCoarse(inv)
	}))
	defer e.Close()

	b := scene.NewBuilder()
	b.Rect(0, 0, 64, 64)
	b.Fill(scene.FillNonZero, color.RGBA{R: 255, A: 255})
	plan, err := render.Render(b.Finish(), set, render.Params{Width: 64, Height: 64})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	ctx := context.Background()
	sub, err := e.Submit(ctx, engine.Request{Recording: plan.Recording, Target: plan.Output})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	tex, err := sub.Wait(ctx)
	if !errors.Is(err, engine.ErrDevice) || !errors.Is(err, ErrSegmentOverflow) {
		t.Errorf("Wait() error = %v, want ErrDevice wrapping ErrSegmentOverflow", err)
	}
	if tex != nil {
		t.Error("failed submission returned a texture")
	}
	if e.Live() != 0 {
		t.Errorf("Live() = %d, want 0", e.Live())
	}
}

// =============================================================================
// Image Fill Tests
// =============================================================================

// uploadTexture returns a texture holding pixels, one packed RGBA per entry.
func uploadTexture(t *testing.T, e *Engine, w, h uint32, pixels [][4]byte) *engine.Texture {
	t.Helper()
	data := make([]byte, 0, 4*len(pixels))
	for _, p := range pixels {
		data = append(data, p[:]...)
	}
	rec := recording.New()
	img := rec.UploadImage("texture", w, h, recording.FormatRGBA8, data)
	sub, err := e.Submit(context.Background(), engine.Request{Recording: rec, Target: img})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	tex, err := sub.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	return tex
}

func renderWithImages(t *testing.T, e *Engine, set *shaders.Set, sc *scene.Scene, w, h uint32, texs ...*engine.Texture) []byte {
	t.Helper()
	var (
		images []recording.ImageProxy
		exts   []engine.External
	)
	for _, tex := range texs {
		p := recording.NewImageProxy(tex.Label, tex.Width, tex.Height, tex.Format)
		images = append(images, p)
		exts = append(exts, engine.External{Proxy: p, Texture: tex})
	}
	plan, err := render.Render(sc, set, render.Params{Width: w, Height: h, Images: images})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	ctx := context.Background()
	sub, err := e.Submit(ctx, engine.Request{Recording: plan.Recording, Target: plan.Output, Externals: exts})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	tex, err := sub.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	defer e.Release(tex)
	pix, err := e.ReadImage(ctx, tex)
	if err != nil {
		t.Fatalf("ReadImage: %v", err)
	}
	return pix
}

var (
	opaqueRed   = [4]byte{255, 0, 0, 255}
	opaqueGreen = [4]byte{0, 255, 0, 255}
	opaqueBlue  = [4]byte{0, 0, 255, 255}
	opaqueWhite = [4]byte{255, 255, 255, 255}
)

func TestRender_ImageFill(t *testing.T) {
	e, set := newTestEngine(t)
	tex := uploadTexture(t, e, 2, 2, [][4]byte{opaqueRed, opaqueGreen, opaqueBlue, opaqueWhite})
	defer e.Release(tex)

	b := scene.NewBuilder()
	b.DrawImage(scene.NewImageBrush(0, 8, 8), scene.Translate(4, 4))
	pix := renderWithImages(t, e, set, b.Finish(), 16, 16, tex)

	tests := []struct {
		x, y int
		want [4]byte
	}{
		{4, 4, opaqueRed},
		{7, 7, opaqueRed},
		{8, 4, opaqueGreen},
		{4, 8, opaqueBlue},
		{11, 11, opaqueWhite},
		{3, 3, [4]byte{}},
		{12, 12, [4]byte{}},
	}
	for _, tt := range tests {
		if got := pixelAt(pix, 16, tt.x, tt.y); got != tt.want {
			t.Errorf("pixel (%d,%d) = %v, want %v", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestRender_ImageExtend(t *testing.T) {
	e, set := newTestEngine(t)
	tex := uploadTexture(t, e, 2, 2, [][4]byte{opaqueRed, opaqueGreen, opaqueBlue, opaqueWhite})
	defer e.Release(tex)

	tests := []struct {
		extend   scene.Extend
		at2, at3 [4]byte
		below    [4]byte // pixel (0, 2), same mode on y
	}{
		{scene.ExtendPad, opaqueGreen, opaqueGreen, opaqueBlue},
		{scene.ExtendRepeat, opaqueRed, opaqueGreen, opaqueRed},
		{scene.ExtendReflect, opaqueGreen, opaqueRed, opaqueBlue},
	}
	for _, tt := range tests {
		t.Run(tt.extend.String(), func(t *testing.T) {
			// The image box is the 2x2 texel grid at the origin; the path
			// covers 8x8 pixels, so everything past (1, 1) is extended.
			b := scene.NewBuilder()
			b.Rect(0, 0, 8, 8)
			b.FillImage(scene.FillNonZero, scene.NewImageBrush(0, 2, 2).WithExtend(tt.extend, tt.extend), scene.Identity)
			pix := renderWithImages(t, e, set, b.Finish(), 8, 8, tex)

			if got := pixelAt(pix, 8, 2, 0); got != tt.at2 {
				t.Errorf("pixel (2,0) = %v, want %v", got, tt.at2)
			}
			if got := pixelAt(pix, 8, 3, 0); got != tt.at3 {
				t.Errorf("pixel (3,0) = %v, want %v", got, tt.at3)
			}
			if got := pixelAt(pix, 8, 0, 2); got != tt.below {
				t.Errorf("pixel (0,2) = %v, want %v", got, tt.below)
			}
		})
	}
}

func TestRender_ImageAlpha(t *testing.T) {
	e, set := newTestEngine(t)
	tex := uploadTexture(t, e, 1, 1, [][4]byte{opaqueRed})
	defer e.Release(tex)

	b := scene.NewBuilder()
	b.DrawImage(scene.NewImageBrush(0, 4, 4).WithAlpha(0.5), scene.Identity)
	pix := renderWithImages(t, e, set, b.Finish(), 4, 4, tex)
	if got := pixelAt(pix, 4, 1, 1); got != [4]byte{128, 0, 0, 128} {
		t.Errorf("pixel (1,1) = %v, want half red", got)
	}
}

type serialExec struct{}

func (serialExec) Run(n int, fn func(i int)) {
	for i := range n {
		fn(i)
	}
}

func TestImageBlit_OutOfBounds(t *testing.T) {
	cfg := render.BlitConfig{SrcWidth: 4, SrcHeight: 4, DstY: 2, DstWidth: 4}
	mem := &Memory{Words: make([]uint32, 4), Size: 16}
	mem.Load(cfg.Bytes())
	inv := &Invocation{
		Workgroups: [3]uint32{1, 1, 1},
		Bindings:   []*Memory{mem, {Words: make([]uint32, 16)}, {Words: make([]uint32, 16)}},
		Exec:       serialExec{},
	}
	if err := imageBlit(inv); err == nil {
		t.Error("imageBlit() past the atlas succeeded, want error")
	}
}

// =============================================================================
// Blur Tests
// =============================================================================

func TestBlur_External(t *testing.T) {
	e, set := newTestEngine(t)
	ctx := context.Background()

	rec := recording.New()
	pixels := make([]byte, 8*8*4)
	for i := 4 * (3*8 + 3); i < 4*(3*8+4); i++ {
		pixels[i] = 255
	}
	src := rec.UploadImage("dot", 8, 8, recording.FormatRGBA8, pixels)
	sub, err := e.Submit(ctx, engine.Request{Recording: rec, Target: src})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	srcTex, err := sub.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}

	ext := recording.NewImageProxy("src", 8, 8, recording.FormatRGBA8)
	plan, err := render.Blur(ext, set, 1)
	if err != nil {
		t.Fatalf("Blur: %v", err)
	}
	sub, err = e.Submit(ctx, engine.Request{
		Recording: plan.Recording,
		Target:    plan.Output,
		Externals: []engine.External{{Proxy: ext, Texture: srcTex}},
	})
	if err != nil {
		t.Fatalf("Submit blur: %v", err)
	}
	tex, err := sub.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait blur: %v", err)
	}
	out, _ := e.ReadImage(ctx, tex)
	// 255/9 rounded.
	if got := pixelAt(out, 8, 2, 2); got != [4]byte{28, 28, 28, 28} {
		t.Errorf("blurred pixel (2,2) = %v, want 28s", got)
	}
	if got := pixelAt(out, 8, 6, 6); got != [4]byte{} {
		t.Errorf("blurred pixel (6,6) = %v, want 0", got)
	}
}

// =============================================================================
// Validation and Lifecycle Tests
// =============================================================================

func TestSubmit_BindingMismatch(t *testing.T) {
	e, set := newTestEngine(t)
	rec := recording.New()
	cfg := rec.UploadConfig("cfg", make([]byte, 16))
	out := rec.CreateBuffer("out", 16)
	rec.Dispatch(set.PrefixSum, [3]uint32{1, 1, 1}, []recording.ResourceProxy{cfg, out})

	if _, err := e.Submit(context.Background(), engine.Request{Recording: rec}); !errors.Is(err, engine.ErrBindingLayout) {
		t.Errorf("Submit() error = %v, want ErrBindingLayout", err)
	}
	if e.Device().Pending() != 0 {
		t.Error("rejected recording should queue nothing")
	}
}

func TestSubmit_ForeignTexture(t *testing.T) {
	e, set := newTestEngine(t)
	other := New(shaders.NewRegistry())
	defer other.Close()

	rec := recording.New()
	img := rec.UploadImage("img", 1, 1, recording.FormatRGBA8, make([]byte, 4))
	sub, err := other.Submit(context.Background(), engine.Request{Recording: rec, Target: img})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	tex, err := sub.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}

	if _, err := e.ReadImage(context.Background(), tex); !errors.Is(err, engine.ErrOwnership) {
		t.Errorf("ReadImage() error = %v, want ErrOwnership", err)
	}
	ext := recording.NewImageProxy("ext", 1, 1, recording.FormatRGBA8)
	plan, _ := render.Blur(ext, set, 0)
	_, err = e.Submit(context.Background(), engine.Request{
		Recording: plan.Recording,
		Externals: []engine.External{{Proxy: ext, Texture: tex}},
	})
	if !errors.Is(err, engine.ErrOwnership) {
		t.Errorf("Submit() error = %v, want ErrOwnership", err)
	}
}

func TestDevice_PollRunsOneOp(t *testing.T) {
	d := &Device{}
	var ran []int
	for i := range 3 {
		d.enqueue(func() { ran = append(ran, i) })
	}
	d.Poll(false)
	if len(ran) != 1 || ran[0] != 0 {
		t.Errorf("after Poll(false) ran = %v, want [0]", ran)
	}
	d.Poll(true)
	if len(ran) != 3 || ran[2] != 2 {
		t.Errorf("after Poll(true) ran = %v, want [0 1 2]", ran)
	}
}

func TestEngine_ReleaseAndClose(t *testing.T) {
	e, _ := newTestEngine(t)
	rec := recording.New()
	img := rec.UploadImage("img", 2, 2, recording.FormatRGBA8, make([]byte, 16))
	sub, _ := e.Submit(context.Background(), engine.Request{Recording: rec, Target: img})
	tex, err := sub.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if e.Live() != 1 {
		t.Errorf("Live() = %d, want 1", e.Live())
	}
	e.Release(tex)
	e.Release(tex)
	if e.Live() != 0 {
		t.Errorf("Live() after Release = %d, want 0", e.Live())
	}
	if _, err := e.ReadImage(context.Background(), tex); !errors.Is(err, engine.ErrValidation) {
		t.Errorf("ReadImage(released) error = %v, want ErrValidation", err)
	}

	_ = e.Close()
	if _, err := e.Submit(context.Background(), engine.Request{Recording: rec, Target: img}); !errors.Is(err, engine.ErrClosed) {
		t.Errorf("Submit after Close error = %v, want ErrClosed", err)
	}
}

func TestRegistered(t *testing.T) {
	if !engine.IsRegistered(Name) {
		t.Fatalf("engine %q not registered", Name)
	}
	e, err := engine.New(Name, shaders.NewRegistry(), engine.Config{Workers: 2})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	defer e.Close()
	if e.Name() != Name {
		t.Errorf("Name() = %q, want %q", e.Name(), Name)
	}
}
