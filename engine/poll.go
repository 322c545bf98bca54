// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package engine

import (
	"context"
	"runtime"

	"github.com/gogpu/gpucontext"
)

// Poller is a device that makes progress only when polled.
type Poller interface {
	// Poll finishes completed work. With wait set it blocks until every
	// pending operation has finished.
	Poll(wait bool)

	// Destroy finishes pending work and refuses new work.
	Destroy()
}

// BlockOn polls device without waiting until done is closed or ctx ends.
// A device that is not a Poller is never polled; done must then be closed by
// someone else.
func BlockOn(ctx context.Context, device gpucontext.Device, done <-chan struct{}) error {
	p, ok := device.(Poller)
	for {
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if !ok {
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		p.Poll(false)
		runtime.Gosched()
	}
}
