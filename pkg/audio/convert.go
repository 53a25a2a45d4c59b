package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
)

// ChunkConverter normalizes incoming [Chunk]s to a fixed target format.
// It logs a warning on the first format mismatch and on the first corrupt
// chunk, then stays quiet. Create one per stream; not designed for shared
// use across goroutines.
type ChunkConverter struct {
	Target         Format
	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Convert returns chunk normalized to the target format: sample width to
// 16-bit, channels downmixed to the target count, then resampled to the
// target rate. If the source already matches the target, the chunk is
// returned unchanged (zero allocation).
//
// Chunks whose byte length is not a multiple of Width*Channels cannot be
// interpreted as PCM; they are dropped (empty Data, target format,
// original timestamp) rather than guessed at.
func (c *ChunkConverter) Convert(chunk Chunk) Chunk {
	width := chunk.Width
	if width == 0 {
		width = 2
	}
	channels := chunk.Channels
	if channels == 0 {
		channels = 1
	}

	if width != 1 && width != 2 && width != 4 || channels < 1 ||
		len(chunk.Data)%(width*channels) != 0 {
		c.warnedCorrupt.Do(func() {
			slog.Warn("audio converter: chunk not interpretable as PCM, dropping",
				"bytes", len(chunk.Data),
				"width", width,
				"channels", channels,
			)
		})
		return Chunk{
			Rate:      c.Target.Rate,
			Width:     2,
			Channels:  c.Target.Channels,
			Timestamp: chunk.Timestamp,
		}
	}

	// Fast path: already in the target format.
	if width == 2 && channels == c.Target.Channels && chunk.Rate == c.Target.Rate {
		return chunk
	}

	c.warnedMismatch.Do(func() {
		slog.Warn("audio format mismatch: converting",
			"from", formatString(chunk.Rate, width, channels),
			"to", formatString(c.Target.Rate, 2, c.Target.Channels),
		)
	})

	pcm := chunk.Data

	// Step 1: widen or narrow samples to 16-bit.
	if width != 2 {
		pcm = ConvertWidth16(pcm, width)
	}

	// Step 2: downmix to mono before resampling (cheaper than resampling
	// every channel first).
	if channels != c.Target.Channels && c.Target.Channels == 1 {
		pcm = DownmixMono(pcm, channels)
		channels = 1
	}

	// Step 3: resample.
	if chunk.Rate != c.Target.Rate && channels == 1 {
		pcm = ResampleMono16(pcm, chunk.Rate, c.Target.Rate)
	}

	return Chunk{
		Data:      pcm,
		Rate:      c.Target.Rate,
		Width:     2,
		Channels:  c.Target.Channels,
		Timestamp: chunk.Timestamp,
	}
}

// ConvertWidth16 converts PCM samples of the given byte width to signed
// 16-bit little-endian. Width 1 is treated as unsigned 8-bit (the WAV
// convention); width 4 as signed 32-bit, truncated to the top 16 bits.
// Width 2 input is returned unchanged.
func ConvertWidth16(pcm []byte, width int) []byte {
	switch width {
	case 1:
		out := make([]byte, len(pcm)*2)
		for i, b := range pcm {
			s := (int16(b) - 128) << 8
			binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
		}
		return out
	case 4:
		samples := len(pcm) / 4
		out := make([]byte, samples*2)
		for i := range samples {
			s32 := int32(binary.LittleEndian.Uint32(pcm[i*4:]))
			binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s32>>16)))
		}
		return out
	default:
		return pcm
	}
}

// DownmixMono averages the given number of interleaved 16-bit channels
// into a single mono channel. Uses int32 arithmetic to prevent overflow.
// Input with channels <= 1 is returned unchanged.
func DownmixMono(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	frames := len(pcm) / (2 * channels)
	out := make([]byte, frames*2)
	for i := range frames {
		var sum int32
		for ch := range channels {
			sum += int32(int16(binary.LittleEndian.Uint16(pcm[(i*channels+ch)*2:])))
		}
		avg := sum / int32(channels)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(avg)))
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using
// linear interpolation. The input must be little-endian int16 samples.
// If srcRate == dstRate or either rate is non-positive, the input is
// returned unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(binary.LittleEndian.Uint16(pcm[srcIdx*2:]))
		s1 := s0
		if srcIdx+1 < srcSamples {
			s1 = int16(binary.LittleEndian.Uint16(pcm[(srcIdx+1)*2:]))
		}

		interpolated := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(interpolated))
	}
	return out
}

// Samples reinterprets little-endian 16-bit PCM bytes as int16 samples.
// A trailing odd byte, if any, is ignored.
func Samples(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return samples
}

// formatString returns a human-readable format description,
// e.g. "48000Hz 16-bit stereo".
func formatString(rate, width, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %d-bit %s", rate, width*8, ch)
}
