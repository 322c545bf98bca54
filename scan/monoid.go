// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package scan

// Monoid is an associative combine with an identity element.
//
// Combine(a, b) means "a followed by b". Implementations must be associative;
// commutativity is not required and is never assumed.
type Monoid[T any] interface {
	Identity() T
	Combine(a, b T) T
}

// Sum32 is addition over uint32.
type Sum32 struct{}

func (Sum32) Identity() uint32          { return 0 }
func (Sum32) Combine(a, b uint32) uint32 { return a + b }

// Fold returns the sequential inclusive left-fold of src. It is the reference
// that Inclusive must agree with at every index.
func Fold[T any](m Monoid[T], src []T) []T {
	out := make([]T, len(src))
	acc := m.Identity()
	for i, v := range src {
		acc = m.Combine(acc, v)
		out[i] = acc
	}
	return out
}

// Reduce returns the combine of every element of src.
func Reduce[T any](m Monoid[T], src []T) T {
	acc := m.Identity()
	for _, v := range src {
		acc = m.Combine(acc, v)
	}
	return acc
}
