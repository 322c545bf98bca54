// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package engine

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/vgraph/recording"
	"github.com/gogpu/vgraph/shaders"
)

// Resolution is a validated Request: every proxy it touches and a snapshot
// of every shader it dispatches.
type Resolution struct {
	Buffers   map[recording.ResourceID]recording.BufferProxy
	Images    map[recording.ResourceID]recording.ImageProxy
	Externals map[recording.ResourceID]*Texture
	Shaders   map[recording.ShaderID]shaders.Shader
}

// Validate checks req against reg without executing anything.
//
// Every dispatch must name a registered shader and bind exactly its declared
// layout: Config slots take buffers produced by UploadConfig, buffer slots
// take other buffers, image slots take images of the declared format.
// Resources may not be used after they are freed, and a resource bound
// writable may not appear twice in one dispatch.
func Validate(reg *shaders.Registry, req Request) (*Resolution, error) {
	if req.Recording == nil {
		return nil, fmt.Errorf("%w: nil recording", ErrValidation)
	}
	if reg == nil {
		return nil, errors.New("engine: nil shader registry")
	}
	if req.TargetUsage.ContainsUnknownBits() {
		return nil, fmt.Errorf("%w: target usage %#x has unknown bits", ErrValidation, uint64(req.TargetUsage))
	}

	res := &Resolution{
		Buffers:   make(map[recording.ResourceID]recording.BufferProxy),
		Images:    make(map[recording.ResourceID]recording.ImageProxy),
		Externals: make(map[recording.ResourceID]*Texture),
		Shaders:   make(map[recording.ShaderID]shaders.Shader),
	}
	for _, p := range req.Recording.Proxies() {
		switch p := p.(type) {
		case recording.BufferProxy:
			res.Buffers[p.ID] = p
		case recording.ImageProxy:
			res.Images[p.ID] = p
		}
	}
	for _, ext := range req.Externals {
		if ext.Texture == nil || ext.Texture.Released() {
			return nil, fmt.Errorf("%w: external %s has no live texture", ErrValidation, ext.Proxy)
		}
		t := ext.Texture
		if t.Width != ext.Proxy.Width || t.Height != ext.Proxy.Height || t.Format != ext.Proxy.Format {
			return nil, fmt.Errorf("%w: external %s bound to %dx%d %s texture",
				ErrValidation, ext.Proxy, t.Width, t.Height, t.Format)
		}
		if !t.Usage.Contains(gputypes.TextureUsageTextureBinding) {
			return nil, fmt.Errorf("%w: external %s: texture usage lacks TextureBinding", ErrValidation, ext.Proxy)
		}
		if _, dup := res.Images[ext.Proxy.ID]; dup {
			return nil, fmt.Errorf("%w: external %s is also declared by the recording", ErrValidation, ext.Proxy)
		}
		res.Images[ext.Proxy.ID] = ext.Proxy
		res.Externals[ext.Proxy.ID] = t
	}

	config := make(map[recording.ResourceID]bool)
	freed := make(map[recording.ResourceID]bool)

	live := func(id recording.ResourceID, what string) error {
		if freed[id] {
			return fmt.Errorf("%w: %s #%d used after free", ErrValidation, what, id)
		}
		return nil
	}
	buffer := func(b recording.BufferProxy) error {
		if _, ok := res.Buffers[b.ID]; !ok {
			return fmt.Errorf("%w: unknown %s", ErrValidation, b)
		}
		return live(b.ID, "buffer")
	}
	image := func(img recording.ImageProxy) error {
		if _, ok := res.Images[img.ID]; !ok {
			return fmt.Errorf("%w: unknown %s", ErrValidation, img)
		}
		return live(img.ID, "image")
	}

	for i, cmd := range req.Recording.Commands() {
		var err error
		switch c := cmd.(type) {
		case recording.Upload:
			if err = buffer(c.Buffer); err == nil && uint64(len(c.Data)) != c.Buffer.Size {
				err = fmt.Errorf("%w: upload of %d bytes into %s", ErrValidation, len(c.Data), c.Buffer)
			}
		case recording.UploadConfig:
			if err = buffer(c.Buffer); err == nil {
				config[c.Buffer.ID] = true
			}
		case recording.UploadImage:
			if err = image(c.Image); err == nil && uint64(len(c.Data)) != c.Image.ByteSize() {
				err = fmt.Errorf("%w: upload of %d bytes into %s", ErrValidation, len(c.Data), c.Image)
			}
			if _, ext := res.Externals[c.Image.ID]; ext {
				err = fmt.Errorf("%w: upload into external %s", ErrValidation, c.Image)
			}
		case recording.ZeroFill:
			err = buffer(c.Buffer)
		case recording.FreeBuffer:
			err = buffer(c.Buffer)
			freed[c.Buffer.ID] = true
		case recording.FreeImage:
			err = image(c.Image)
			freed[c.Image.ID] = true
		case recording.Dispatch:
			err = validateDispatch(reg, res, c, config, buffer, image)
		default:
			err = fmt.Errorf("%w: unknown command %T", ErrValidation, cmd)
		}
		if err != nil {
			return nil, fmt.Errorf("command %d (%s): %w", i, cmd.Type(), err)
		}
	}

	if req.Target.ID != 0 {
		if err := image(req.Target); err != nil {
			return nil, fmt.Errorf("target: %w", err)
		}
		if _, ext := res.Externals[req.Target.ID]; ext {
			return nil, fmt.Errorf("%w: target %s is external", ErrValidation, req.Target)
		}
	}
	for _, b := range req.Downloads {
		if err := buffer(b); err != nil {
			return nil, fmt.Errorf("download: %w", err)
		}
	}
	return res, nil
}

func validateDispatch(
	reg *shaders.Registry,
	res *Resolution,
	d recording.Dispatch,
	config map[recording.ResourceID]bool,
	buffer func(recording.BufferProxy) error,
	image func(recording.ImageProxy) error,
) error {
	sh, ok := res.Shaders[d.Shader]
	if !ok {
		if sh, ok = reg.Lookup(d.Shader); !ok {
			return fmt.Errorf("%w: shader %d: %w", ErrValidation, d.Shader, shaders.ErrUnknownShader)
		}
		res.Shaders[d.Shader] = sh
	}
	if len(d.Bindings) != len(sh.Layout) {
		return fmt.Errorf("%w: %s takes %d bindings, got %d", ErrBindingLayout, sh.Name, len(sh.Layout), len(d.Bindings))
	}

	writable := make(map[recording.ResourceID]bool)
	seen := make(map[recording.ResourceID]bool)
	for slot, want := range sh.Layout {
		p := d.Bindings[slot]
		if p == nil {
			return fmt.Errorf("%w: %s binding %d is nil", ErrBindingLayout, sh.Name, slot)
		}
		id := p.ResourceID()

		switch proxy := p.(type) {
		case recording.BufferProxy:
			if want.IsImage() {
				return fmt.Errorf("%w: %s binding %d wants %s, got %s", ErrBindingLayout, sh.Name, slot, want, proxy)
			}
			if err := buffer(proxy); err != nil {
				return err
			}
			if (want.Kind == shaders.KindConfig) != config[id] {
				return fmt.Errorf("%w: %s binding %d wants %s, got %s", ErrBindingLayout, sh.Name, slot, want, proxy)
			}
		case recording.ImageProxy:
			if !want.IsImage() || proxy.Format != want.Format {
				return fmt.Errorf("%w: %s binding %d wants %s, got %s", ErrBindingLayout, sh.Name, slot, want, proxy)
			}
			if err := image(proxy); err != nil {
				return err
			}
			if _, ext := res.Externals[id]; ext && want.IsMutable() {
				return fmt.Errorf("%w: %s binding %d writes external %s", ErrBindingLayout, sh.Name, slot, proxy)
			}
		default:
			return fmt.Errorf("%w: %s binding %d has unsupported proxy %T", ErrBindingLayout, sh.Name, slot, p)
		}

		if seen[id] && (writable[id] || want.IsMutable()) {
			return fmt.Errorf("%w: %s binds resource #%d writable more than once", ErrBindingLayout, sh.Name, id)
		}
		seen[id] = true
		writable[id] = writable[id] || want.IsMutable()
	}
	return nil
}
