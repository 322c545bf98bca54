// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package engine

import (
	"errors"
	"fmt"

	"github.com/gogpu/vgraph/scan"
)

var (
	// ErrValidation reports a Recording or request the engine refuses to run.
	ErrValidation = errors.New("engine: validation failed")

	// ErrBindingLayout reports bindings that disagree with the shader's
	// declared layout in count, kind or format. It wraps ErrValidation.
	ErrBindingLayout = fmt.Errorf("engine: binding layout mismatch: %w", ErrValidation)

	// ErrOverflow reports a reduction that does not fit a 32-bit accumulator.
	ErrOverflow = scan.ErrOverflow

	// ErrDevice reports a failure of the underlying device.
	ErrDevice = errors.New("engine: device error")

	// ErrOwnership reports a handle used with an owner that did not create it.
	ErrOwnership = errors.New("engine: foreign resource")

	// ErrClosed is returned by engines after Close.
	ErrClosed = errors.New("engine: closed")
)
