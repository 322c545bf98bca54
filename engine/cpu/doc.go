// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package cpu is an engine that executes Recordings on goroutines.
//
// Each registered stage has a Go kernel that mirrors its compute shader:
// workgroups run on a shared worker pool, device memory is a slice of 32-bit
// words, and inter-workgroup communication goes through sync/atomic on those
// words exactly as a shader would use atomics on storage buffers.
//
// The device makes progress only when polled. Submit queues work and
// returns; Submission.Wait polls until it has run. Importing the package
// registers the engine as "cpu".
package cpu
