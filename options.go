package vgraph

import (
	"github.com/gogpu/gpucontext"

	"github.com/gogpu/vgraph/pipecache"
	"github.com/gogpu/vgraph/shaders"
)

// Option configures Open.
//
// Example:
//
//	// GPU engine on a host-provided device
//	sys, err := vgraph.Open(ctx, cfg, vgraph.WithProvider(provider))
type Option func(*openOptions)

// openOptions holds what Open needs beyond Config.
type openOptions struct {
	provider gpucontext.DeviceProvider
	source   shaders.Source
	identity pipecache.DeviceIdentity
	onReload func(name string)
}

// WithProvider supplies the device for the "hal" engine.
func WithProvider(p gpucontext.DeviceProvider) Option {
	return func(o *openOptions) {
		o.provider = p
	}
}

// WithSource reads stage sources from src instead of Config.ShaderDir.
func WithSource(src shaders.Source) Option {
	return func(o *openOptions) {
		o.source = src
	}
}

// WithDeviceIdentity keys the pipeline cache of the "hal" engine.
func WithDeviceIdentity(id pipecache.DeviceIdentity) Option {
	return func(o *openOptions) {
		o.identity = id
	}
}

// WithReloadHook is called after hot reload replaces a stage.
func WithReloadHook(fn func(name string)) Option {
	return func(o *openOptions) {
		o.onReload = fn
	}
}
