// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package hal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/vgraph/internal/logging"
	"github.com/gogpu/vgraph/pipecache"
	"github.com/gogpu/vgraph/recording"
	"github.com/gogpu/vgraph/shaders"
)

// pipeline is the device state of one stage at one source version.
type pipeline struct {
	version  uint64
	module   hal.ShaderModule
	bgLayout hal.BindGroupLayout
	layout   hal.PipelineLayout
	compute  hal.ComputePipeline
}

func (p *pipeline) destroy(device hal.Device) {
	if p.compute != nil {
		device.DestroyComputePipeline(p.compute)
	}
	if p.layout != nil {
		device.DestroyPipelineLayout(p.layout)
	}
	if p.bgLayout != nil {
		device.DestroyBindGroupLayout(p.bgLayout)
	}
	if p.module != nil {
		device.DestroyShaderModule(p.module)
	}
}

// pipelineFor returns the pipeline for sh, building it when sh is new or
// its source changed. Superseded pipelines are kept until Close since
// in-flight submissions may still reference them.
func (e *Engine) pipelineFor(sh shaders.Shader) (*pipeline, error) {
	e.pipeMu.Lock()
	defer e.pipeMu.Unlock()

	if p, ok := e.pipelines[sh.ID]; ok {
		if p.version == sh.Version {
			return p, nil
		}
		e.retired = append(e.retired, p)
	}

	source := hal.ShaderSource{WGSL: sh.WGSL}
	if e.spirv {
		code, err := e.compileSPIRV(sh)
		if err != nil {
			return nil, err
		}
		source = hal.ShaderSource{SPIRV: code}
	}

	p := &pipeline{version: sh.Version}
	var err error
	p.module, err = e.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  sh.Name,
		Source: source,
	})
	if err != nil {
		return nil, fmt.Errorf("hal: create shader module for %s: %w", sh.Name, err)
	}

	entries := shaders.LayoutEntries(sh.Layout)
	p.bgLayout, err = e.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   sh.Name + "_bgl",
		Entries: entries,
	})
	if err != nil {
		p.destroy(e.device)
		return nil, fmt.Errorf("hal: create bind group layout for %s: %w", sh.Name, err)
	}

	p.layout, err = e.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            sh.Name + "_pl",
		BindGroupLayouts: []hal.BindGroupLayout{p.bgLayout},
	})
	if err != nil {
		p.destroy(e.device)
		return nil, fmt.Errorf("hal: create pipeline layout for %s: %w", sh.Name, err)
	}

	p.compute, err = e.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  sh.Name,
		Layout: p.layout,
		Compute: hal.ComputeState{
			Module:     p.module,
			EntryPoint: "main",
		},
	})
	if err != nil {
		p.destroy(e.device)
		return nil, fmt.Errorf("hal: create compute pipeline for %s: %w", sh.Name, err)
	}

	e.pipelines[sh.ID] = p
	logging.Logger().Debug("hal: pipeline created",
		"stage", sh.Name,
		"version", sh.Version,
		"bindings", len(entries),
		"spirv", e.spirv)
	return p, nil
}

// spirvEntry is one cached module: the hash of the WGSL it came from and
// the SPIR-V words.
type spirvEntry struct {
	hash uint64
	code []uint32
}

func sourceHash(wgsl string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(wgsl))
	return h.Sum64()
}

func (e *Engine) compileSPIRV(sh shaders.Shader) ([]uint32, error) {
	hash := sourceHash(sh.WGSL)
	if ent, ok := e.spirvCache[sh.Name]; ok && ent.hash == hash {
		return ent.code, nil
	}

	spirvBytes, err := naga.Compile(sh.WGSL)
	if err != nil {
		return nil, fmt.Errorf("hal: compile %s: %w", sh.Name, err)
	}
	// SPIR-V is little-endian 32-bit words.
	code := make([]uint32, len(spirvBytes)/4)
	for i := range code {
		code[i] = binary.LittleEndian.Uint32(spirvBytes[4*i:])
	}
	e.spirvCache[sh.Name] = spirvEntry{hash: hash, code: code}

	if e.cacheDir != "" {
		if err := pipecache.Store(e.cacheDir, e.cacheKey, encodeSPIRVCache(e.spirvCache)); err != nil {
			logging.Logger().Warn("hal: pipeline cache not saved", "error", err)
		}
	}
	return code, nil
}

// The cache blob is a sequence of records:
//
//	u32 name length, name, u64 source hash, u32 word count, words
func encodeSPIRVCache(cache map[string]spirvEntry) []byte {
	names := make([]string, 0, len(cache))
	for name := range cache {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf []byte
	le := binary.LittleEndian
	for _, name := range names {
		ent := cache[name]
		buf = le.AppendUint32(buf, uint32(len(name)))
		buf = append(buf, name...)
		buf = le.AppendUint64(buf, ent.hash)
		buf = le.AppendUint32(buf, uint32(len(ent.code)))
		for _, w := range ent.code {
			buf = le.AppendUint32(buf, w)
		}
	}
	return buf
}

var errCorruptCache = errors.New("hal: corrupt pipeline cache")

func decodeSPIRVCache(b []byte) (map[string]spirvEntry, error) {
	le := binary.LittleEndian
	out := make(map[string]spirvEntry)
	for len(b) > 0 {
		if len(b) < 4 {
			return nil, errCorruptCache
		}
		n := int(le.Uint32(b))
		b = b[4:]
		if len(b) < n+12 {
			return nil, errCorruptCache
		}
		name := string(b[:n])
		hash := le.Uint64(b[n:])
		words := int(le.Uint32(b[n+8:]))
		b = b[n+12:]
		if len(b) < 4*words {
			return nil, errCorruptCache
		}
		code := make([]uint32, words)
		for i := range code {
			code[i] = le.Uint32(b[4*i:])
		}
		b = b[4*words:]
		out[name] = spirvEntry{hash: hash, code: code}
	}
	return out, nil
}

func (e *Engine) loadSPIRVCache() {
	e.spirvCache = make(map[string]spirvEntry)
	if e.cacheDir == "" {
		return
	}
	blob, ok := pipecache.Load(e.cacheDir, e.cacheKey)
	if !ok {
		return
	}
	cache, err := decodeSPIRVCache(blob)
	if err != nil {
		logging.Logger().Warn("hal: ignoring pipeline cache", "error", err)
		return
	}
	e.spirvCache = cache
}

// shaderIDs returns the ids in ascending order so pipelines are built in a
// stable order.
func shaderIDs(m map[recording.ShaderID]shaders.Shader) []recording.ShaderID {
	ids := make([]recording.ShaderID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
