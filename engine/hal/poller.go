// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package hal

import (
	"fmt"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/vgraph/engine"
)

type inflight struct {
	index  uint64
	finish func(err error)
}

// poller observes queue submission indexes. It is the device that
// submissions of this engine are progressed by.
type poller struct {
	device hal.Device
	queue  hal.Queue

	mu      sync.Mutex
	pending []*inflight

	// pollMu keeps one goroutine finishing work at a time.
	pollMu sync.Mutex
}

var (
	_ gpucontext.Device = (*poller)(nil)
	_ engine.Poller     = (*poller)(nil)
)

func (p *poller) track(index uint64, finish func(err error)) {
	p.mu.Lock()
	p.pending = append(p.pending, &inflight{index: index, finish: finish})
	p.mu.Unlock()
}

func (p *poller) front() *inflight {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 {
		return nil
	}
	return p.pending[0]
}

func (p *poller) popFront() {
	p.mu.Lock()
	p.pending[0] = nil
	p.pending = p.pending[1:]
	p.mu.Unlock()
}

func (p *poller) completed(index uint64) bool {
	return p.queue.PollCompleted() >= index
}

// wait blocks until submission index has completed.
func (p *poller) wait(index uint64) error {
	if p.completed(index) {
		return nil
	}
	if err := p.device.WaitIdle(); err != nil {
		return fmt.Errorf("hal: wait idle: %w", err)
	}
	if !p.completed(index) {
		return errIncomplete
	}
	return nil
}

// Poll finishes submissions that have completed, oldest first. The queue
// executes in order, so polling stops at the first incomplete submission.
// With wait set it blocks until everything pending has finished.
func (p *poller) Poll(wait bool) {
	p.pollMu.Lock()
	defer p.pollMu.Unlock()

	for {
		f := p.front()
		if f == nil {
			return
		}
		var err error
		if wait {
			err = p.wait(f.index)
		} else if !p.completed(f.index) {
			return
		}
		p.popFront()
		f.finish(err)
	}
}

// Destroy waits for every pending submission.
func (p *poller) Destroy() {
	p.Poll(true)
}
