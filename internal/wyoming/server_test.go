package wyoming_test

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/harkwake/hark/internal/wyoming"
)

// pingHandler answers every "ping" event with a "pong" event.
type pingHandler struct {
	w      *wyoming.Writer
	closed *atomic.Int32
}

func (h *pingHandler) HandleEvent(_ context.Context, ev wyoming.Event) error {
	if ev.Is("ping") {
		return h.w.Write(wyoming.Event{Type: "pong"})
	}
	return nil
}

func (h *pingHandler) Close() error {
	if h.closed != nil {
		h.closed.Add(1)
	}
	return nil
}

func startServer(t *testing.T, maxSessions int, closed *atomic.Int32) (*wyoming.Server, context.CancelFunc) {
	t.Helper()
	srv, err := wyoming.NewServer("tcp://127.0.0.1:0", maxSessions, func(w *wyoming.Writer, _ string) wyoming.Handler {
		return &pingHandler{w: w, closed: closed}
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	deadline := time.Now().Add(5 * time.Second)
	for !srv.Listening() {
		if time.Now().After(deadline) {
			t.Fatal("server never started listening")
		}
		time.Sleep(time.Millisecond)
	}
	return srv, cancel
}

func TestServer_SessionRoundTrip(t *testing.T) {
	var closed atomic.Int32
	srv, _ := startServer(t, 0, &closed)

	conn, err := net.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	w := wyoming.NewWriter(conn)
	r := wyoming.NewReader(conn)

	if err := w.Write(wyoming.Event{Type: "ping"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	ev, err := r.Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !ev.Is("pong") {
		t.Errorf("response type = %q, want pong", ev.Type)
	}

	// Disconnect tears down the handler.
	conn.Close()
	deadline := time.Now().Add(5 * time.Second)
	for closed.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("handler was not closed after disconnect")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestServer_SessionLimitRefusesWithBusyError(t *testing.T) {
	srv, _ := startServer(t, 1, nil)

	// First connection occupies the only slot.
	first, err := net.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer first.Close()
	if err := wyoming.NewWriter(first).Write(wyoming.Event{Type: "ping"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := wyoming.NewReader(first).Read(); err != nil {
		t.Fatalf("read: %v", err)
	}

	// Second connection is refused with a busy error event.
	second, err := net.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer second.Close()

	ev, err := wyoming.NewReader(second).Read()
	if err != nil {
		t.Fatalf("read busy error: %v", err)
	}
	if !ev.Is(wyoming.TypeError) {
		t.Fatalf("expected error event, got %q", ev.Type)
	}
	errData, err := wyoming.DataTo[wyoming.Error](ev)
	if err != nil {
		t.Fatalf("decode error event: %v", err)
	}
	if errData.Code != "busy" {
		t.Errorf("error code = %q, want busy", errData.Code)
	}
}

func TestServer_StopsOnContextCancel(t *testing.T) {
	srv, cancel := startServer(t, 0, nil)
	addr := srv.Addr()

	cancel()

	deadline := time.Now().Add(5 * time.Second)
	for srv.Listening() {
		if time.Now().After(deadline) {
			t.Fatal("server still listening after cancel")
		}
		time.Sleep(time.Millisecond)
	}
	if _, err := net.Dial("tcp", addr); err == nil {
		t.Error("expected dial to fail after shutdown")
	}
}

func TestNewServer_RejectsBadURIs(t *testing.T) {
	cases := []string{
		"http://localhost:1234",
		"tcp://",
		"unix://",
		"::notauri",
	}
	for _, uri := range cases {
		if _, err := wyoming.NewServer(uri, 0, nil); err == nil {
			t.Errorf("NewServer(%q) accepted an invalid uri", uri)
		}
	}
}
