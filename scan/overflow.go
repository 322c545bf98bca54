// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package scan

import (
	"errors"
	"fmt"

	"golang.org/x/exp/constraints"
)

// Limit32 is the smallest total a 32-bit accumulator refuses. The top bit is
// kept clear so the result stays representable as a non-negative int32.
const Limit32 = 1 << 31

// ErrOverflow reports a reduction that does not fit the accumulator.
var ErrOverflow = errors.New("scan: reduction overflows 32-bit accumulator")

// CheckSum32 verifies that the sum of values stays below Limit32.
// It must be called before dispatching a scan over a 32-bit accumulator.
func CheckSum32[U constraints.Unsigned](values []U) error {
	var total uint64
	for i, v := range values {
		if uint64(v) >= Limit32 {
			return fmt.Errorf("%w: element %d is %d", ErrOverflow, i, uint64(v))
		}
		total += uint64(v)
		if total >= Limit32 {
			return fmt.Errorf("%w: running total reaches %d at element %d", ErrOverflow, total, i)
		}
	}
	return nil
}
