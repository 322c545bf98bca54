// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cpu

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/vgraph/recording"
	"github.com/gogpu/vgraph/render"
	"github.com/gogpu/vgraph/scan"
	"github.com/gogpu/vgraph/shaders"
)

// Memory is one device resource: a buffer, or an image stored as one packed
// pixel per word (r | g<<8 | b<<16 | a<<24 for Rgba8).
type Memory struct {
	Words []uint32

	// Size is the resource size in bytes.
	Size uint64

	// Width and Height are set for images.
	Width  uint32
	Height uint32
}

func newBuffer(b recording.BufferProxy) *Memory {
	return &Memory{Words: make([]uint32, (b.Size+3)/4), Size: b.Size}
}

func newImage(img recording.ImageProxy) *Memory {
	return &Memory{
		Words:  make([]uint32, uint64(img.Width)*uint64(img.Height)),
		Size:   img.ByteSize(),
		Width:  img.Width,
		Height: img.Height,
	}
}

// Load copies little-endian bytes into m.
func (m *Memory) Load(data []byte) {
	clear(m.Words)
	n := len(data) / 4
	for i := range n {
		m.Words[i] = binary.LittleEndian.Uint32(data[4*i:])
	}
	for k, b := range data[4*n:] {
		m.Words[n] |= uint32(b) << (8 * uint(k))
	}
}

// Bytes returns the contents of m as Size little-endian bytes.
func (m *Memory) Bytes() []byte {
	out := make([]byte, 4*len(m.Words))
	for i, w := range m.Words {
		binary.LittleEndian.PutUint32(out[4*i:], w)
	}
	return out[:m.Size]
}

// F32 reads word i as a float.
func (m *Memory) F32(i uint32) float32 {
	return math.Float32frombits(m.Words[i])
}

// Invocation is one dispatch as seen by a kernel.
type Invocation struct {
	Shader     shaders.Shader
	Workgroups [3]uint32

	// Bindings follow the shader layout.
	Bindings []*Memory

	// Exec runs workgroups; indices are claimed in increasing order.
	Exec scan.Executor
}

// Groups returns the total number of workgroups.
func (inv *Invocation) Groups() int {
	return int(inv.Workgroups[0]) * int(inv.Workgroups[1]) * int(inv.Workgroups[2])
}

func (inv *Invocation) config() (render.Config, error) {
	return render.ParseConfig(inv.Bindings[0].Bytes())
}

// Kernel executes a stage.
type Kernel func(inv *Invocation) error

func defaultKernels() map[string]Kernel {
	return map[string]Kernel{
		shaders.StagePathtagReduce: pathtagReduce,
		shaders.StagePathtagScan:   pathtagScan,
		shaders.StagePathCoarse:    pathCoarse,
		shaders.StageBackdrop:      backdrop,
		shaders.StageFine:          fine,
		shaders.StagePrefixSum:     prefixSum,
		shaders.StageBlur:          blur,
		shaders.StageImageBlit:     imageBlit,
	}
}
