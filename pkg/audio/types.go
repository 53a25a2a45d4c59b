// Package audio provides PCM normalization and fixed-length frame
// reassembly for the wake detection pipeline.
//
// Audio arrives off the wire in whatever format the client recorded it
// (arbitrary sample rate, width, and channel count, delivered in chunks of
// arbitrary size). Detection engines are far stricter: they accept exactly
// one format and exactly one frame length. This package bridges the two:
// [ChunkConverter] normalizes each chunk to the engine's format, and
// [Framer] re-slices the normalized byte stream into engine-sized frames.
package audio

// Chunk is a single delivery of PCM audio together with the format
// metadata the transport reported for it.
type Chunk struct {
	// Data is raw PCM, little-endian, interleaved when multi-channel.
	Data []byte

	// Rate is the sample rate in Hz (e.g., 16000, 44100, 48000).
	Rate int

	// Width is the sample width in bytes: 1 (unsigned 8-bit), 2 (signed
	// 16-bit), or 4 (signed 32-bit).
	Width int

	// Channels is the interleaved channel count (1 = mono, 2 = stereo).
	Channels int

	// Timestamp is the transport-supplied position of this chunk in the
	// stream. Units are transport-defined; the value is carried through to
	// detection reports unmodified and must increase monotonically.
	Timestamp int64
}

// Format describes the sample rate and channel count of a 16-bit PCM
// stream. Sample width is always 2 bytes on the normalized side.
type Format struct {
	Rate     int
	Channels int
}
