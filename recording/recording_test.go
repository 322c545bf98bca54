package recording

import (
	"strings"
	"testing"
)

func TestRecording_OrderIsRecordOrder(t *testing.T) {
	rec := New()
	cfg := rec.UploadConfig("config", []byte{1, 0, 0, 0})
	in := rec.Upload("input", []byte{1, 2, 3, 4, 5, 6, 7, 8})
	out := rec.CreateBuffer("output", 8)
	rec.ZeroFill(out)
	rec.Dispatch(3, [3]uint32{2, 1, 1}, []ResourceProxy{cfg, in, out})
	rec.FreeBuffer(in)

	want := []CommandType{CmdUploadConfig, CmdUpload, CmdZeroFill, CmdDispatch, CmdFreeBuffer}
	if rec.Len() != len(want) {
		t.Fatalf("Len() = %d, want %d", rec.Len(), len(want))
	}
	for i, c := range rec.Commands() {
		if c.Type() != want[i] {
			t.Errorf("command %d = %v, want %v", i, c.Type(), want[i])
		}
	}

	d := rec.Dispatches()
	if len(d) != 1 || d[0].Shader != 3 || d[0].Workgroups != [3]uint32{2, 1, 1} {
		t.Fatalf("Dispatches() = %+v", d)
	}
	if got := d[0].Bindings[2].ResourceID(); got != out.ID {
		t.Errorf("binding 2 = %d, want %d", got, out.ID)
	}
}

func TestRecording_ProxyIDsUnique(t *testing.T) {
	rec := New()
	seen := map[ResourceID]bool{}
	for range 100 {
		for _, p := range []ResourceProxy{
			rec.CreateBuffer("b", 4),
			rec.CreateImage("i", 2, 2, FormatRGBA8),
			rec.Upload("u", []byte{0}),
		} {
			if seen[p.ResourceID()] {
				t.Fatalf("duplicate id %d", p.ResourceID())
			}
			seen[p.ResourceID()] = true
		}
	}
	if len(rec.Proxies()) != 300 {
		t.Errorf("Proxies() = %d, want 300", len(rec.Proxies()))
	}
}

func TestRecording_UploadCopiesData(t *testing.T) {
	rec := New()
	data := []byte{9, 9, 9, 9}
	b := rec.Upload("x", data)
	data[0] = 0

	up := rec.Commands()[0].(Upload)
	if up.Data[0] != 9 {
		t.Error("Upload should keep its own copy of the data")
	}
	if b.Size != 4 {
		t.Errorf("Size = %d, want 4", b.Size)
	}

	empty := rec.Upload("empty", nil)
	if empty.Size != 0 || rec.Commands()[1].(Upload).Data == nil {
		t.Error("empty upload should record a zero-size, non-nil payload")
	}
}

func TestRecording_DispatchCopiesBindings(t *testing.T) {
	rec := New()
	a := rec.CreateBuffer("a", 4)
	b := rec.CreateBuffer("b", 4)
	bindings := []ResourceProxy{a}
	rec.Dispatch(0, [3]uint32{1, 1, 1}, bindings)
	bindings[0] = b

	if got := rec.Dispatches()[0].Bindings[0].ResourceID(); got != a.ID {
		t.Errorf("binding changed after Dispatch: got %d, want %d", got, a.ID)
	}
}

func TestImageProxy(t *testing.T) {
	img := NewImageProxy("out", 3, 5, FormatRGBA8)
	if img.ByteSize() != 60 {
		t.Errorf("ByteSize() = %d, want 60", img.ByteSize())
	}
	if !strings.Contains(img.String(), "3x5 Rgba8") {
		t.Errorf("String() = %q", img.String())
	}
	if FormatBGRA8.String() != "Bgra8" {
		t.Errorf("FormatBGRA8.String() = %q", FormatBGRA8.String())
	}
}

func TestCommandType_String(t *testing.T) {
	tests := []struct {
		c    CommandType
		want string
	}{
		{CmdUpload, "Upload"},
		{CmdUploadConfig, "UploadConfig"},
		{CmdDispatch, "Dispatch"},
		{CommandType(200), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.c.String(); got != tt.want {
			t.Errorf("CommandType(%d).String() = %q, want %q", tt.c, got, tt.want)
		}
	}
}

func TestRecording_String(t *testing.T) {
	rec := New()
	img := rec.UploadImage("src", 1, 1, FormatRGBA8, []byte{1, 2, 3, 4})
	rec.FreeImage(img)
	s := rec.String()
	if !strings.Contains(s, "UploadImage") || !strings.Contains(s, "FreeImage") {
		t.Errorf("String() = %q", s)
	}
}
