// Package wake defines the detection engine contract and the process-wide
// pool of initialized engine handles.
//
// The acoustic engine itself is a black box behind the narrow [Engine]
// interface: it wants fixed-length frames of 16-bit mono PCM at its
// declared sample rate and answers with a keyword index or a no-match.
// Engine initialization is expensive (model load), so handles are cached
// in a [Pool] keyed by keyword and reused across reconnecting sessions.
//
// A handle is always either idle in the pool or owned by exactly one
// session, never both.
package wake

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
)

// NoMatch is the index returned by [Engine.Process] when the frame did
// not contain the keyword.
const NoMatch = -1

// ErrUnknownKeyword is returned by [Pool.Checkout] when the requested
// keyword is not part of the active catalog.
var ErrUnknownKeyword = errors.New("unknown keyword")

// InitError wraps a failure of the external engine factory: bad
// credentials, a corrupt model, an unsupported keyword/sensitivity
// combination, or resource exhaustion.
type InitError struct {
	Keyword     string
	Sensitivity float32
	Err         error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("init engine for keyword %q (sensitivity %.2f): %v", e.Keyword, e.Sensitivity, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// Engine is one initialized instance of the external detection engine.
//
// An Engine owns a native resource exclusively; it must never be used by
// two goroutines at once and must be closed exactly once. Process is
// synchronous and expected to be fast relative to the frame duration.
type Engine interface {
	// FrameLength is the number of 16-bit samples Process expects per call.
	FrameLength() int

	// SampleRate is the PCM sample rate in Hz the engine was trained for.
	SampleRate() int

	// Process analyses one frame and returns the index of the matched
	// keyword, or [NoMatch].
	Process(pcm []int16) (int, error)

	// Close releases the native resource. The engine is unusable
	// afterwards.
	Close() error
}

// Factory creates engines for (keyword, sensitivity) pairs. This is the
// seam between the pool and the external engine; tests substitute a
// call-counting double.
type Factory interface {
	// New initializes an engine for keyword at the given sensitivity
	// (range [0, 1]). Initialization may be slow; it respects ctx
	// cancellation where the underlying implementation allows it.
	New(ctx context.Context, keyword string, sensitivity float32) (Engine, error)
}

// Lexicon is the subset of the catalog the pool needs: membership checks
// for keyword names.
type Lexicon interface {
	Contains(name string) bool
}

// Handle pairs an initialized engine with the sensitivity it was created
// at. Sensitivity is fixed at engine construction and cannot change, so
// it is part of the pool's cache key. Immutable once created.
type Handle struct {
	engine      Engine
	sensitivity float32
	poisoned    atomic.Bool
}

// NewHandle wraps engine with its construction sensitivity.
func NewHandle(engine Engine, sensitivity float32) *Handle {
	return &Handle{engine: engine, sensitivity: sensitivity}
}

// Engine returns the wrapped engine.
func (h *Handle) Engine() Engine { return h.engine }

// Sensitivity returns the sensitivity the engine was initialized with.
func (h *Handle) Sensitivity() float32 { return h.sensitivity }

// FrameBytes returns the engine's frame length in bytes of 16-bit PCM.
func (h *Handle) FrameBytes() int { return h.engine.FrameLength() * 2 }

// Poison marks the handle as unsafe to reuse. A session poisons a handle
// when a Process call exceeded its deadline: the native resource may
// still be executing, so the handle must never return to the pool.
func (h *Handle) Poison() { h.poisoned.Store(true) }

// Poisoned reports whether the handle was poisoned.
func (h *Handle) Poisoned() bool { return h.poisoned.Load() }
