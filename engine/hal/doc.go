// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package hal is an engine that executes Recordings on a gogpu/wgpu HAL
// device.
//
// Every proxy becomes a storage buffer; images are buffers of packed RGBA
// words. Each dispatch is encoded as one compute pass in a single command
// buffer per submission, and completion is observed by polling the queue's
// completed submission index. Pipelines are created on first use and rebuilt
// when a stage's source is replaced.
//
// With SPIR-V enabled, WGSL is compiled on the host with naga and the
// resulting modules are persisted per device in a pipeline cache directory.
//
// Importing the package registers the engine as "hal"; the factory takes
// its device from engine.Config.Provider.
package hal
