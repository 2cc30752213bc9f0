// Package coreopt is a small generic functional-options helper, shared by
// every component that takes construction-time configuration.
//
// Grounded on eventloop/options.go's LoopOption/resolveLoopOptions shape:
// a slice of option funcs applied in order over a defaults struct. That
// pattern is generalized here to one type parameter instead of being
// hand-written per option set, and simplified to a plain func(*T) since none
// of this module's options can themselves fail validation (the teacher's
// interface-plus-error shape exists for LoopOption's FastPathMode validation,
// which has no analogue here).
package coreopt

// Option mutates a T during construction. A nil Option is skipped by
// Resolve rather than treated as an error.
type Option[T any] func(*T)

// Resolve applies opts in order over a zero value of T and returns the
// result.
func Resolve[T any](opts ...Option[T]) T {
	var v T
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&v)
	}
	return v
}

// Apply applies opts in order over an existing *T in place.
func Apply[T any](v *T, opts ...Option[T]) {
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(v)
	}
}
