// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cpu

import (
	"sync"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/vgraph/engine"
)

// Device is the execution queue of the CPU engine. Queued operations run in
// FIFO order, one per Poll(false), on the polling goroutine.
//
// Thread safety: Device is safe for concurrent use.
type Device struct {
	mu        sync.Mutex
	queue     []func()
	destroyed bool

	// exec serializes execution so ops never overlap even when several
	// goroutines poll at once.
	exec sync.Mutex
}

var (
	_ gpucontext.Device = (*Device)(nil)
	_ engine.Poller     = (*Device)(nil)
)

func (d *Device) enqueue(op func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return false
	}
	d.queue = append(d.queue, op)
	return true
}

func (d *Device) pop() func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		return nil
	}
	op := d.queue[0]
	d.queue[0] = nil
	d.queue = d.queue[1:]
	return op
}

// Poll runs the oldest queued operation. With wait set it runs every queued
// operation, including ones queued while it runs.
func (d *Device) Poll(wait bool) {
	d.exec.Lock()
	defer d.exec.Unlock()
	for {
		op := d.pop()
		if op == nil {
			return
		}
		op()
		if !wait {
			return
		}
	}
}

// Pending returns the number of queued operations.
func (d *Device) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Destroy runs the remaining operations and refuses new ones.
func (d *Device) Destroy() {
	d.mu.Lock()
	d.destroyed = true
	d.mu.Unlock()
	d.Poll(true)
}
