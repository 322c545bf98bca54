// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package engine defines the boundary between Recordings and the devices
// that execute them.
//
// An Engine resolves the proxies of a Recording to device resources, checks
// every dispatch against the binding layout registered for its shader, and
// executes the commands in recorded order. Validation completes before the
// first command runs, so a rejected Recording never partially executes.
//
// Engines register themselves by name, following the database/sql driver
// pattern:
//
//	import _ "github.com/gogpu/vgraph/engine/cpu"
//
//	eng, err := engine.New("cpu", reg, engine.Config{})
//
// Submission is asynchronous. Callers obtain results through
// Submission.Wait, which polls the device until the work completes.
package engine
