// Package corerr defines the typed error kinds shared by every component in
// corekit. Failures are returned as values; even a double-free of a
// sync-queue lock is reported as a KindDoubleFree error rather than a
// panic. The only panic is timerwheel.New's check of its construction
// arguments.
package corerr

import (
	"errors"
	"fmt"
)

// Kind identifies the category of a corekit failure.
type Kind int

const (
	// KindStaleHandle: a handle's generation no longer matches its slot.
	// Always recoverable locally ("nothing to do").
	KindStaleHandle Kind = iota
	// KindCapacityExceeded: push into a bounded structure at capacity.
	KindCapacityExceeded
	// KindQueueShutdown: producer pushed into a queue whose consumer is gone.
	KindQueueShutdown
	// KindCrossRuntimeInterrupted: a wait/wait_any target runtime was torn
	// down before producing a value.
	KindCrossRuntimeInterrupted
	// KindWaitCancelled: a waker was dropped without wakeup; surfaced only
	// via wait_any's loser path.
	KindWaitCancelled
	// KindTimerOverflow: requested timeout exceeds the wheel's representable
	// span; held in the overflow heap.
	KindTimerOverflow
	// KindDoubleFree: a sync-queue lock was freed more times than it was
	// taken by a pop. Always a programmer error.
	KindDoubleFree
)

func (k Kind) String() string {
	switch k {
	case KindStaleHandle:
		return "stale_handle"
	case KindCapacityExceeded:
		return "capacity_exceeded"
	case KindQueueShutdown:
		return "queue_shutdown"
	case KindCrossRuntimeInterrupted:
		return "cross_runtime_interrupted"
	case KindWaitCancelled:
		return "wait_cancelled"
	case KindTimerOverflow:
		return "timer_overflow"
	case KindDoubleFree:
		return "double_free"
	default:
		return fmt.Sprintf("unknown_kind(%d)", int(k))
	}
}

// Error is the concrete error type returned by corekit components.
type Error struct {
	Kind  Kind
	Op    string // component/operation that raised it, e.g. "idfactory.get"
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("corekit: %s: %s: %v", e.Op, e.Kind, e.Cause)
	}
	return fmt.Sprintf("corekit: %s: %s", e.Op, e.Kind)
}

// Unwrap supports errors.Is/errors.As through the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements kind-based matching: errors.Is(err, corerr.New(KindX, "", nil))
// (or any *Error with the same Kind) reports true regardless of Op/Cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// New constructs an *Error for the given kind and operation.
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Cause: cause}
}

// Is reports whether err is a corekit *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Sentinel values for simple equality checks where an Op isn't meaningful.
var (
	ErrStaleHandle             = New(KindStaleHandle, "", nil)
	ErrCapacityExceeded        = New(KindCapacityExceeded, "", nil)
	ErrQueueShutdown           = New(KindQueueShutdown, "", nil)
	ErrCrossRuntimeInterrupted = New(KindCrossRuntimeInterrupted, "", nil)
	ErrWaitCancelled           = New(KindWaitCancelled, "", nil)
	ErrTimerOverflow           = New(KindTimerOverflow, "", nil)
	ErrDoubleFree              = New(KindDoubleFree, "", nil)
)
