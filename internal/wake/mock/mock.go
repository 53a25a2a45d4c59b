// Package mock provides test doubles for the wake package interfaces.
//
// Use Factory to verify which (keyword, sensitivity) pairs were
// constructed and how often. Use Engine to script detection results and
// inspect the frames submitted for processing.
//
// Example:
//
//	eng := &mock.Engine{Frame: 512, Rate: 16000, Results: []int{-1, 0}}
//	factory := &mock.Factory{Engines: map[string]*mock.Engine{"porcupine": eng}}
//	pool := wake.NewPool(factory, lexicon)
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/harkwake/hark/internal/wake"
)

// NewCall records a single invocation of Factory.New.
type NewCall struct {
	Keyword     string
	Sensitivity float32
}

// Factory is a mock implementation of wake.Factory.
type Factory struct {
	mu sync.Mutex

	// Engines maps keyword names to the engine returned for them. When a
	// keyword is absent (and Engine is nil), New returns a fresh default
	// Engine per call.
	Engines map[string]*Engine

	// Engine, if non-nil, is returned for every keyword not in Engines.
	Engine *Engine

	// NewErr, if non-nil, is returned as the error from New.
	NewErr error

	// NewCalls records every call to New in order.
	NewCalls []NewCall
}

// New records the call and returns the scripted engine or error.
func (f *Factory) New(_ context.Context, keyword string, sensitivity float32) (wake.Engine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.NewCalls = append(f.NewCalls, NewCall{Keyword: keyword, Sensitivity: sensitivity})
	if f.NewErr != nil {
		return nil, f.NewErr
	}
	if e, ok := f.Engines[keyword]; ok {
		return e, nil
	}
	if f.Engine != nil {
		return f.Engine, nil
	}
	return &Engine{Frame: 512, Rate: 16000}, nil
}

// CallCount returns the number of recorded New calls. Thread-safe.
func (f *Factory) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.NewCalls)
}

// Ensure Factory implements wake.Factory at compile time.
var _ wake.Factory = (*Factory)(nil)

// ProcessCall records a single invocation of Engine.Process.
type ProcessCall struct {
	// Frame is a copy of the samples passed to Process.
	Frame []int16
}

// Engine is a mock implementation of wake.Engine.
type Engine struct {
	mu sync.Mutex

	// Frame is the value returned by FrameLength. Defaults to 512 when
	// zero.
	Frame int

	// Rate is the value returned by SampleRate. Defaults to 16000 when
	// zero.
	Rate int

	// Results scripts the return values of successive Process calls.
	// Once exhausted, Process returns wake.NoMatch.
	Results []int

	// Delay makes every Process call sleep before returning.
	Delay time.Duration

	// ProcessErr, if non-nil, is returned by every Process call.
	ProcessErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// --- Call records ---

	// ProcessCalls records every call to Process in order.
	ProcessCalls []ProcessCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	next int
}

// FrameLength returns Frame, defaulting to 512.
func (e *Engine) FrameLength() int {
	if e.Frame == 0 {
		return 512
	}
	return e.Frame
}

// SampleRate returns Rate, defaulting to 16000.
func (e *Engine) SampleRate() int {
	if e.Rate == 0 {
		return 16000
	}
	return e.Rate
}

// Process records the call and returns the next scripted result.
func (e *Engine) Process(pcm []int16) (int, error) {
	if e.Delay > 0 {
		time.Sleep(e.Delay)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := make([]int16, len(pcm))
	copy(cp, pcm)
	e.ProcessCalls = append(e.ProcessCalls, ProcessCall{Frame: cp})
	if e.ProcessErr != nil {
		return wake.NoMatch, e.ProcessErr
	}
	if e.next < len(e.Results) {
		r := e.Results[e.next]
		e.next++
		return r, nil
	}
	return wake.NoMatch, nil
}

// Close records the call and returns CloseErr.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CloseCallCount++
	return e.CloseErr
}

// Closed reports whether Close was called at least once. Thread-safe.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.CloseCallCount > 0
}

// ProcessCount returns the number of recorded Process calls. Thread-safe.
func (e *Engine) ProcessCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.ProcessCalls)
}

// Ensure Engine implements wake.Engine at compile time.
var _ wake.Engine = (*Engine)(nil)

// Lexicon is a mock wake.Lexicon backed by a name set.
type Lexicon map[string]bool

// Contains reports set membership.
func (l Lexicon) Contains(name string) bool { return l[name] }

// Ensure Lexicon implements wake.Lexicon at compile time.
var _ wake.Lexicon = (Lexicon)(nil)
