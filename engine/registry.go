// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/vgraph/pipecache"
	"github.com/gogpu/vgraph/shaders"
)

// Config carries the settings engines accept from their factory.
// Engines ignore fields they have no use for.
type Config struct {
	// Workers is the CPU worker count. Zero means GOMAXPROCS.
	Workers int

	// Provider supplies the device for GPU engines.
	Provider gpucontext.DeviceProvider

	// PipelineCacheDir, when set, persists compiled pipelines.
	PipelineCacheDir string

	// SPIRV compiles WGSL to SPIR-V on the host before pipeline creation.
	SPIRV bool

	// Identity keys the pipeline cache.
	Identity pipecache.DeviceIdentity
}

// Factory creates an engine bound to a shader registry.
type Factory func(reg *shaders.Registry, cfg Config) (Engine, error)

var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
)

// Register registers an engine factory with the given name.
// This function is typically called from init() in engine packages.
//
// Register panics if factory is nil or if the name is already registered.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if factory == nil {
		panic("engine: Register factory is nil")
	}
	if _, dup := factories[name]; dup {
		panic("engine: Register called twice for " + name)
	}
	factories[name] = factory
}

// Unregister removes an engine from the registry. Mostly useful in tests.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(factories, name)
}

// New creates an engine by name. The error mentions a forgotten import when
// the name is not registered.
func New(name string, reg *shaders.Registry, cfg Config) (Engine, error) {
	registryMu.RLock()
	factory, ok := factories[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("engine: unknown engine %q (forgotten import?)", name)
	}
	return factory(reg, cfg)
}

// Engines returns the registered engine names, sorted.
func Engines() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered checks if an engine with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := factories[name]
	return ok
}
