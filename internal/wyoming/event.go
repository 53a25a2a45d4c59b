// Package wyoming implements the Wyoming peer-to-peer event protocol used
// between voice satellites and wake/ASR/TTS services.
//
// Every event on the wire is a newline-terminated JSON header followed by
// optional raw bytes:
//
//	{"type": "audio-chunk", "data": {...}, "payload_length": 2048}\n
//	<2048 bytes of PCM>
//
// Older peers serialize the data object after the newline instead of
// inline, announced via "data_length"; [Reader] accepts both forms, while
// [Writer] always emits inline data.
//
// The package also provides the session server: a tcp:// or unix://
// listener that runs one handler per connection, plus a WebSocket bridge
// carrying the same byte protocol over binary messages.
package wyoming

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// maxHeaderBytes bounds the JSON header line so a misbehaving peer cannot
// grow the read buffer without limit.
const maxHeaderBytes = 1 << 20

// Event is a single protocol event: a type tag, an optional JSON data
// object, and an optional binary payload.
type Event struct {
	Type    string
	Data    json.RawMessage
	Payload []byte
}

// Is reports whether the event has the given type.
func (e Event) Is(typ string) bool { return e.Type == typ }

// header is the wire form of the JSON line preceding any payload bytes.
type header struct {
	Type          string          `json:"type"`
	Data          json.RawMessage `json:"data,omitempty"`
	DataLength    int             `json:"data_length,omitempty"`
	PayloadLength int             `json:"payload_length,omitempty"`
}

// Reader decodes events from a stream.
type Reader struct {
	br *bufio.Reader
}

// NewReader returns a Reader decoding events from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(r)}
}

// Read decodes the next event. It returns io.EOF when the stream ends
// cleanly at an event boundary.
func (r *Reader) Read() (Event, error) {
	line, err := r.readHeaderLine()
	if err != nil {
		return Event{}, err
	}

	var h header
	if err := json.Unmarshal(line, &h); err != nil {
		return Event{}, fmt.Errorf("wyoming: decode header: %w", err)
	}
	if h.Type == "" {
		return Event{}, fmt.Errorf("wyoming: event missing type")
	}

	ev := Event{Type: h.Type, Data: h.Data}

	// Compatibility: peers that announce data_length send the data object
	// after the newline; it replaces any inline data.
	if h.DataLength > 0 {
		if h.DataLength > maxHeaderBytes {
			return Event{}, fmt.Errorf("wyoming: data_length %d exceeds %d bytes", h.DataLength, maxHeaderBytes)
		}
		data := make([]byte, h.DataLength)
		if _, err := io.ReadFull(r.br, data); err != nil {
			return Event{}, fmt.Errorf("wyoming: read data: %w", err)
		}
		ev.Data = data
	}

	if h.PayloadLength > 0 {
		payload := make([]byte, h.PayloadLength)
		if _, err := io.ReadFull(r.br, payload); err != nil {
			return Event{}, fmt.Errorf("wyoming: read payload: %w", err)
		}
		ev.Payload = payload
	}

	return ev, nil
}

// readHeaderLine reads the next newline-terminated header line, failing
// as soon as the accumulated bytes exceed maxHeaderBytes so a peer
// cannot grow the buffer without limit by withholding the delimiter.
// Returns io.EOF only when the stream ends cleanly at an event boundary.
func (r *Reader) readHeaderLine() ([]byte, error) {
	var line []byte
	for {
		frag, err := r.br.ReadSlice('\n')
		if len(line)+len(frag) > maxHeaderBytes {
			return nil, fmt.Errorf("wyoming: header exceeds %d bytes", maxHeaderBytes)
		}
		line = append(line, frag...)
		switch err {
		case nil:
			return line, nil
		case bufio.ErrBufferFull:
			continue
		case io.EOF:
			if len(line) == 0 {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("wyoming: read header: %w", io.ErrUnexpectedEOF)
		default:
			return nil, fmt.Errorf("wyoming: read header: %w", err)
		}
	}
}

// Writer encodes events onto a stream. It is not safe for concurrent use;
// each connection has exactly one writing goroutine.
type Writer struct {
	w io.Writer
}

// NewWriter returns a Writer encoding events onto w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write encodes ev as a header line followed by its payload bytes.
func (w *Writer) Write(ev Event) error {
	h := header{
		Type:          ev.Type,
		Data:          ev.Data,
		PayloadLength: len(ev.Payload),
	}
	line, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("wyoming: encode header: %w", err)
	}
	line = append(line, '\n')
	if _, err := w.w.Write(line); err != nil {
		return fmt.Errorf("wyoming: write header: %w", err)
	}
	if len(ev.Payload) > 0 {
		if _, err := w.w.Write(ev.Payload); err != nil {
			return fmt.Errorf("wyoming: write payload: %w", err)
		}
	}
	return nil
}

// NewEvent marshals data into an event of the given type. A nil data
// produces an event with no data object.
func NewEvent(typ string, data any) (Event, error) {
	ev := Event{Type: typ}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Event{}, fmt.Errorf("wyoming: encode %s data: %w", typ, err)
		}
		ev.Data = raw
	}
	return ev, nil
}

// DataTo unmarshals the event's data object into T. An event without data
// yields the zero value.
func DataTo[T any](ev Event) (T, error) {
	var v T
	if len(ev.Data) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(ev.Data, &v); err != nil {
		return v, fmt.Errorf("wyoming: decode %s data: %w", ev.Type, err)
	}
	return v, nil
}
