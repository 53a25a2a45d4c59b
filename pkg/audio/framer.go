package audio

import "iter"

// Framer reassembles a stream of arbitrarily sized byte deliveries into
// fixed-length frames. Bytes left over after slicing (fewer than one
// frame's worth) stay buffered until the next Feed call, so no audio is
// lost across delivery boundaries.
//
// A Framer belongs to exactly one stream and is not safe for concurrent
// use.
type Framer struct {
	frameBytes int
	backlog    []byte
}

// NewFramer creates a Framer producing frames of frameBytes bytes.
func NewFramer(frameBytes int) *Framer {
	return &Framer{frameBytes: frameBytes}
}

// FrameBytes returns the current frame length in bytes.
func (f *Framer) FrameBytes() int { return f.frameBytes }

// Buffered returns the number of bytes currently held back, always less
// than FrameBytes after a fully consumed Feed.
func (f *Framer) Buffered() int { return len(f.backlog) }

// Feed appends p to the backlog and returns a lazy sequence of the
// complete frames now available, in byte order. Each yielded frame is
// exactly FrameBytes long. Frames alias the Framer's internal buffer and
// are only valid until the next Feed or Reset; callers that retain a
// frame must copy it.
//
// Breaking out of the iteration early leaves the unconsumed frames in the
// backlog for the next call.
func (f *Framer) Feed(p []byte) iter.Seq[[]byte] {
	f.backlog = append(f.backlog, p...)
	return func(yield func([]byte) bool) {
		for f.frameBytes > 0 && len(f.backlog) >= f.frameBytes {
			frame := f.backlog[:f.frameBytes:f.frameBytes]
			f.backlog = f.backlog[f.frameBytes:]
			if !yield(frame) {
				return
			}
		}
	}
}

// Reset discards all buffered bytes and switches to a new frame length.
// Used when the active detection engine changes: partial audio sliced for
// the old frame length must not be reinterpreted for the new one.
func (f *Framer) Reset(frameBytes int) {
	f.frameBytes = frameBytes
	f.backlog = nil
}
