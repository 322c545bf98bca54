// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package scan

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/gogpu/vgraph/internal/parallel"
)

// Tile status values. A tile only ever moves forward through them.
const (
	statusNotReady uint32 = iota
	statusAggregate
	statusPrefix
)

// DefaultTileWidth is the number of elements scanned by one tile.
const DefaultTileWidth = 256

type tileState[T any] struct {
	status    atomic.Uint32
	aggregate T
	prefix    T
}

// Partitions is the published per-tile state of one scan.
//
// The value fields of a tile are written before its status is stored and read
// only after its status is loaded, so the status word orders them.
type Partitions[T any] struct {
	m     Monoid[T]
	tiles []tileState[T]
}

// NewPartitions returns state for n tiles, all NotReady.
func NewPartitions[T any](m Monoid[T], n int) *Partitions[T] {
	return &Partitions[T]{m: m, tiles: make([]tileState[T], n)}
}

// Len returns the number of tiles.
func (p *Partitions[T]) Len() int { return len(p.tiles) }

// PublishAggregate makes tile i's local reduction visible to successors.
func (p *Partitions[T]) PublishAggregate(i int, aggregate T) {
	t := &p.tiles[i]
	t.aggregate = aggregate
	t.status.Store(statusAggregate)
}

// PublishPrefix makes tile i's resolved inclusive prefix visible. A tile that
// publishes its prefix without an aggregate first (tile 0) is fine.
func (p *Partitions[T]) PublishPrefix(i int, prefix T) {
	t := &p.tiles[i]
	t.prefix = prefix
	t.status.Store(statusPrefix)
}

// Lookback returns the exclusive prefix of tile i, waiting on predecessors
// that have not yet published anything.
func (p *Partitions[T]) Lookback(i int) T {
	exclusive := p.m.Identity()
	for j := i - 1; j >= 0; {
		t := &p.tiles[j]
		switch t.status.Load() {
		case statusPrefix:
			return p.m.Combine(t.prefix, exclusive)
		case statusAggregate:
			exclusive = p.m.Combine(t.aggregate, exclusive)
			j--
		default:
			runtime.Gosched()
		}
	}
	return exclusive
}

// Executor runs fn(i) for every i in [0, n), claiming indices in increasing
// order, and returns when all calls are done.
type Executor interface {
	Run(n int, fn func(i int))
}

// Option configures a scan.
type Option func(*options)

type options struct {
	tileWidth int
	workers   int
	exec      Executor
}

// WithTileWidth sets the number of elements per tile.
func WithTileWidth(w int) Option {
	return func(o *options) { o.tileWidth = w }
}

// WithWorkers sets the number of lanes of the temporary pool used when no
// Executor is given. Zero means GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithExecutor runs tiles on e instead of a temporary pool.
func WithExecutor(e Executor) Option {
	return func(o *options) { o.exec = e }
}

func buildOptions(opts []Option) (options, error) {
	o := options{tileWidth: DefaultTileWidth}
	for _, opt := range opts {
		opt(&o)
	}
	if o.tileWidth <= 0 {
		return o, fmt.Errorf("scan: tile width %d must be positive", o.tileWidth)
	}
	return o, nil
}

func (o options) executor() (Executor, func()) {
	if o.exec != nil {
		return o.exec, func() {}
	}
	pool := parallel.NewWorkerPool(o.workers)
	return pool, pool.Close
}

// Inclusive returns the inclusive scan of src under m.
//
// The last tile may be shorter than the tile width; no padding is applied.
// ctx is only consulted before the scan starts.
func Inclusive[T any](ctx context.Context, m Monoid[T], src []T, opts ...Option) ([]T, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dst := make([]T, len(src))
	n := len(src)
	if n == 0 {
		return dst, nil
	}

	w := o.tileWidth
	parts := NewPartitions(m, (n+w-1)/w)
	exec, release := o.executor()
	defer release()

	exec.Run(parts.Len(), func(i int) {
		lo := i * w
		hi := min(lo+w, n)

		acc := m.Identity()
		for k := lo; k < hi; k++ {
			acc = m.Combine(acc, src[k])
			dst[k] = acc
		}
		if i == 0 {
			parts.PublishPrefix(0, acc)
			return
		}
		parts.PublishAggregate(i, acc)

		exclusive := parts.Lookback(i)
		parts.PublishPrefix(i, m.Combine(exclusive, acc))
		for k := lo; k < hi; k++ {
			dst[k] = m.Combine(exclusive, dst[k])
		}
	})
	return dst, nil
}

// ResolveTiles returns the exclusive prefix of every tile given the tile
// aggregates, all of which are published up front. It is the tile-group level
// of a two-level scan whose aggregates came from a separate reduce pass.
func ResolveTiles[T any](m Monoid[T], aggregates []T, exec Executor) []T {
	out := make([]T, len(aggregates))
	if len(aggregates) == 0 {
		return out
	}
	parts := NewPartitions(m, len(aggregates))
	for i, a := range aggregates {
		parts.PublishAggregate(i, a)
	}
	exec.Run(len(aggregates), func(i int) {
		exclusive := parts.Lookback(i)
		parts.PublishPrefix(i, m.Combine(exclusive, aggregates[i]))
		out[i] = exclusive
	})
	return out
}
