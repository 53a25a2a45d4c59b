// Package session implements the per-connection protocol state machine.
//
// A handler owns all mutable state of one client session: the active
// engine handle (checked out of the shared pool), the frame reassembly
// backlog, and the detected flag of the current utterance window. Events
// are processed strictly in arrival order on the connection's goroutine,
// so none of this state needs locking.
//
// The session moves between three informal states: idle (no keyword
// loaded), armed (keyword loaded, awaiting audio), and listening
// (mid-utterance). A detect request arms the session explicitly; audio
// arriving before any detect request arms it lazily with the default
// keyword.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/harkwake/hark/internal/catalog"
	"github.com/harkwake/hark/internal/observe"
	"github.com/harkwake/hark/internal/wake"
	"github.com/harkwake/hark/internal/wyoming"
	"github.com/harkwake/hark/pkg/audio"
)

// Options holds the per-process settings every session shares.
type Options struct {
	// DefaultKeyword is loaded lazily when audio arrives before any
	// detect request.
	DefaultKeyword string

	// Sensitivity is the detection sensitivity in [0, 1] used for every
	// keyword load.
	Sensitivity float32

	// ProcessTimeout bounds a single detection call. Zero disables the
	// deadline. A timed-out call counts as no-match; its handle is
	// poisoned and the session falls back to loading a fresh engine.
	ProcessTimeout time.Duration

	// Version is reported in the capability description.
	Version string

	// Metrics overrides the default metrics instance. Nil uses
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Handler is the state machine for one client connection. Not safe for
// concurrent use; the server drives it from a single goroutine.
type Handler struct {
	writer  *wyoming.Writer
	remote  string
	pool    *wake.Pool
	catalog *catalog.Catalog
	opts    Options
	metrics *observe.Metrics

	infoEvent wyoming.Event

	conv     audio.ChunkConverter
	framer   *audio.Framer
	handle   *wake.Handle
	keyword  string
	detected bool
}

// New creates the handler for one connection. w is the connection's event
// writer, remote identifies the peer for logging.
func New(w *wyoming.Writer, remote string, pool *wake.Pool, cat *catalog.Catalog, opts Options) *Handler {
	m := opts.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}

	infoEvent, err := wyoming.NewEvent(wyoming.TypeInfo, cat.Info(opts.Version))
	if err != nil {
		// Info is built from static data; failing to marshal it is a
		// programming error.
		panic(fmt.Sprintf("session: marshal info event: %v", err))
	}

	m.ActiveSessions.Add(context.Background(), 1)
	return &Handler{
		writer:    w,
		remote:    remote,
		pool:      pool,
		catalog:   cat,
		opts:      opts,
		metrics:   m,
		infoEvent: infoEvent,
		framer:    audio.NewFramer(0),
	}
}

// HandleEvent processes one inbound event. A non-nil error aborts the
// session; recoverable conditions (unknown keyword, engine init failure,
// malformed audio) are reported to the client or logged instead.
func (h *Handler) HandleEvent(ctx context.Context, ev wyoming.Event) error {
	switch ev.Type {
	case wyoming.TypeDescribe:
		if err := h.writer.Write(h.infoEvent); err != nil {
			return err
		}
		slog.Debug("sent info", "remote", h.remote)
		return nil

	case wyoming.TypeDetect:
		detect, err := wyoming.DataTo[wyoming.Detect](ev)
		if err != nil {
			slog.Warn("ignoring malformed detect event", "remote", h.remote, "err", err)
			return nil
		}
		if len(detect.Names) == 0 {
			return nil
		}
		if len(detect.Names) > 1 {
			slog.Debug("detect carried multiple names; activating the first",
				"remote", h.remote, "names", detect.Names)
		}
		return h.selectKeyword(ctx, detect.Names[0])

	case wyoming.TypeAudioStart:
		// New utterance window: detections may be reported again.
		h.detected = false
		return nil

	case wyoming.TypeAudioChunk:
		return h.handleChunk(ctx, ev)

	case wyoming.TypeAudioStop:
		return h.finishUtterance(ctx)

	default:
		slog.Debug("ignoring event", "remote", h.remote, "type", ev.Type)
		return nil
	}
}

// Close returns the session's engine handle to the pool. Called exactly
// once, at teardown.
func (h *Handler) Close() error {
	if h.handle != nil {
		h.pool.Checkin(h.keyword, h.handle)
		h.handle = nil
		h.keyword = ""
	}
	h.metrics.ActiveSessions.Add(context.Background(), -1)
	return nil
}

// selectKeyword switches the active keyword. Load failures leave the
// session without a detector (subsequent audio is dropped until a valid
// keyword loads) and are reported to the client as an error event rather
// than aborting the session.
func (h *Handler) selectKeyword(ctx context.Context, name string) error {
	if err := h.loadKeyword(ctx, name); err != nil {
		observe.Logger(ctx).Warn("keyword load failed",
			"remote", h.remote, "keyword", name, "err", err)
		return h.writeLoadError(name, err)
	}
	return nil
}

// loadKeyword checks in the current handle (if any), checks out a handle
// for name, and resets the frame reassembler for the new engine's frame
// length. The old handle is back in the pool before the new checkout
// begins; partial audio buffered for the old frame length is discarded.
func (h *Handler) loadKeyword(ctx context.Context, name string) error {
	ctx, span := observe.StartSpan(ctx, "session.load_keyword",
		trace.WithAttributes(attribute.String("keyword", name)),
	)
	defer span.End()

	if h.handle != nil {
		h.pool.Checkin(h.keyword, h.handle)
		h.handle = nil
		h.keyword = ""
	}

	handle, err := h.pool.Checkout(ctx, name, h.opts.Sensitivity)
	if err != nil {
		return err
	}

	h.handle = handle
	h.keyword = name
	h.conv = audio.ChunkConverter{Target: audio.Format{
		Rate:     handle.Engine().SampleRate(),
		Channels: 1,
	}}
	h.framer.Reset(handle.FrameBytes())
	return nil
}

// handleChunk normalizes one audio delivery, slices it into engine
// frames, and runs detection on each frame in order.
func (h *Handler) handleChunk(ctx context.Context, ev wyoming.Event) error {
	if h.handle == nil {
		// Armed lazily: first audio without a detect request listens for
		// the default keyword.
		if err := h.loadKeyword(ctx, h.opts.DefaultKeyword); err != nil {
			// No detector could be established at all; continuing would
			// silently swallow the stream. Abort loudly.
			_ = h.writeLoadError(h.opts.DefaultKeyword, err)
			return fmt.Errorf("session: no detector and default keyword %q failed to load: %w",
				h.opts.DefaultKeyword, err)
		}
	}

	meta, err := wyoming.DataTo[wyoming.AudioMeta](ev)
	if err != nil {
		slog.Warn("dropping chunk with malformed metadata", "remote", h.remote, "err", err)
		return nil
	}

	chunk := h.conv.Convert(audio.Chunk{
		Data:      ev.Payload,
		Rate:      meta.Rate,
		Width:     meta.Width,
		Channels:  meta.Channels,
		Timestamp: meta.Timestamp,
	})

	for frame := range h.framer.Feed(chunk.Data) {
		index, err := h.process(ctx, frame)
		if err != nil {
			return fmt.Errorf("session: detection failed for %q: %w", h.keyword, err)
		}
		if h.handle == nil {
			// The detection call timed out and the handle was abandoned;
			// remaining frames of this delivery are dropped. A fresh
			// engine loads on the next chunk.
			break
		}
		if index != wake.NoMatch && !h.detected {
			h.detected = true
			h.metrics.Detections.Add(ctx, 1,
				metric.WithAttributes(attribute.String("keyword", h.keyword)))
			observe.Logger(ctx).Debug("detection",
				"remote", h.remote, "keyword", h.keyword, "timestamp", chunk.Timestamp)

			detection, err := wyoming.NewEvent(wyoming.TypeDetection, wyoming.Detection{
				Name:      h.keyword,
				Timestamp: chunk.Timestamp,
			})
			if err != nil {
				return err
			}
			if err := h.writer.Write(detection); err != nil {
				return err
			}

			// Edge case kept from the original behavior: when the
			// terminating signal is bundled into the same delivery that
			// produced the match, processing stops immediately instead of
			// draining the remaining buffered frames. Unreachable over
			// the standard wire encoding, where an event has one type.
			if ev.Is(wyoming.TypeAudioStop) {
				return nil
			}
		}
	}
	return nil
}

// process runs one detection call, applying the optional deadline.
func (h *Handler) process(ctx context.Context, frame []byte) (int, error) {
	samples := audio.Samples(frame)
	engine := h.handle.Engine()
	start := time.Now()

	if h.opts.ProcessTimeout <= 0 {
		index, err := engine.Process(samples)
		h.metrics.ProcessDuration.Record(ctx, time.Since(start).Seconds())
		return index, err
	}

	type result struct {
		index int
		err   error
	}
	done := make(chan result, 1)
	go func() {
		index, err := engine.Process(samples)
		done <- result{index, err}
	}()

	timer := time.NewTimer(h.opts.ProcessTimeout)
	defer timer.Stop()

	select {
	case r := <-done:
		h.metrics.ProcessDuration.Record(ctx, time.Since(start).Seconds())
		return r.index, r.err
	case <-timer.C:
		// The native call may still be running; the handle must never be
		// reused or pooled. Treat the frame as no-match and fall back to
		// a fresh engine on the next chunk. The engine is closed once the
		// stuck call finally returns.
		observe.Logger(ctx).Warn("detection call exceeded deadline, abandoning engine",
			"remote", h.remote, "keyword", h.keyword, "timeout", h.opts.ProcessTimeout)
		h.handle.Poison()
		h.handle = nil
		h.keyword = ""
		go func() {
			<-done
			if err := engine.Close(); err != nil {
				slog.Warn("closing abandoned engine failed", "err", err)
			}
		}()
		return wake.NoMatch, nil
	}
}

// finishUtterance closes the current utterance window, reporting
// not-detected when no match was found. This happens whether or not a
// keyword was ever loaded.
func (h *Handler) finishUtterance(ctx context.Context) error {
	outcome := observe.OutcomeDetected
	if !h.detected {
		outcome = observe.OutcomeNotDetected
		notDetected, err := wyoming.NewEvent(wyoming.TypeNotDetected, nil)
		if err != nil {
			return err
		}
		if err := h.writer.Write(notDetected); err != nil {
			return err
		}
	}
	h.metrics.Utterances.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	return nil
}

// writeLoadError sends a diagnostic error event for a failed keyword
// load, with a "did you mean" suggestion when the name was close to a
// catalog entry.
func (h *Handler) writeLoadError(name string, loadErr error) error {
	text := fmt.Sprintf("cannot load keyword %q: %v", name, loadErr)
	code := "load-failed"
	if suggestion := h.catalog.Suggest(name); suggestion != "" && suggestion != name {
		text += fmt.Sprintf(" (did you mean %q?)", suggestion)
	}
	ev, err := wyoming.NewEvent(wyoming.TypeError, wyoming.Error{Text: text, Code: code})
	if err != nil {
		return err
	}
	return h.writer.Write(ev)
}
