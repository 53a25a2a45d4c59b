// Package picovoice adapts the Picovoice Porcupine v3 binding to the
// wake.Engine interface.
//
// Porcupine is an on-device deep-learning wake word engine. Each instance
// is initialized for a fixed keyword list and sensitivity vector; both
// the frame length and the sample rate are dictated by the native
// library. Initialization validates the access key against the Picovoice
// console, which is why it is slow enough to be worth pooling.
package picovoice

import (
	"context"
	"fmt"

	porcupine "github.com/Picovoice/porcupine/binding/go/v3"

	"github.com/harkwake/hark/internal/wake"
)

// Factory creates Porcupine engines for built-in keywords.
type Factory struct {
	// AccessKey is the credential from the Picovoice console. Required.
	AccessKey string
}

// New initializes a Porcupine instance for a single built-in keyword.
// The context is not consulted: the native init call cannot be cancelled
// midway.
func (f *Factory) New(_ context.Context, keyword string, sensitivity float32) (wake.Engine, error) {
	p := porcupine.Porcupine{
		AccessKey:       f.AccessKey,
		BuiltInKeywords: []porcupine.BuiltInKeyword{porcupine.BuiltInKeyword(keyword)},
		Sensitivities:   []float32{sensitivity},
	}
	if err := p.Init(); err != nil {
		return nil, fmt.Errorf("porcupine init: %w", err)
	}
	return &engine{p: p}, nil
}

// Ensure Factory implements wake.Factory at compile time.
var _ wake.Factory = (*Factory)(nil)

// engine wraps one initialized Porcupine instance.
type engine struct {
	p porcupine.Porcupine
}

// FrameLength returns the sample count Porcupine requires per Process
// call (package-level, fixed by the native library after init).
func (e *engine) FrameLength() int { return porcupine.FrameLength }

// SampleRate returns the PCM rate Porcupine was trained for (16 kHz).
func (e *engine) SampleRate() int { return porcupine.SampleRate }

// Process analyses one frame. Porcupine returns the matched keyword index
// or -1, which maps directly onto the wake.Engine contract.
func (e *engine) Process(pcm []int16) (int, error) {
	return e.p.Process(pcm)
}

// Close releases the native Porcupine resources.
func (e *engine) Close() error {
	return e.p.Delete()
}
