package wyoming

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"sync/atomic"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Handler processes the events of one connection. Implementations are
// owned by a single connection goroutine; they never need internal
// locking.
type Handler interface {
	// HandleEvent processes one inbound event. Returning a non-nil error
	// aborts the session: the server logs the error and closes the
	// connection after Close.
	HandleEvent(ctx context.Context, ev Event) error

	// Close releases the handler's resources (returning any checked-out
	// engine handle to the pool). Called exactly once per connection, on
	// disconnect or abort.
	Close() error
}

// NewHandlerFunc constructs a handler for a new connection. w is the
// connection's event writer; remote identifies the peer for logging.
type NewHandlerFunc func(w *Writer, remote string) Handler

// Server accepts Wyoming sessions on a tcp:// or unix:// URI and runs one
// handler per connection.
type Server struct {
	network    string
	address    string
	newHandler NewHandlerFunc
	sem        *semaphore.Weighted
	listening  atomic.Bool
	boundAddr  atomic.Value // string
}

// NewServer creates a server for the given URI (tcp://host:port or
// unix:///path). maxSessions caps concurrent connections; zero means
// unlimited.
func NewServer(uri string, maxSessions int, newHandler NewHandlerFunc) (*Server, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("wyoming: parse uri %q: %w", uri, err)
	}

	s := &Server{newHandler: newHandler}
	switch u.Scheme {
	case "tcp":
		s.network, s.address = "tcp", u.Host
	case "unix":
		s.network, s.address = "unix", u.Path
	default:
		return nil, fmt.Errorf("wyoming: unsupported uri scheme %q (want tcp:// or unix://)", u.Scheme)
	}
	if s.address == "" {
		return nil, fmt.Errorf("wyoming: uri %q has no address", uri)
	}
	if maxSessions > 0 {
		s.sem = semaphore.NewWeighted(int64(maxSessions))
	}
	return s, nil
}

// Listening reports whether the server is currently accepting
// connections. Used by readiness checks.
func (s *Server) Listening() bool { return s.listening.Load() }

// Addr returns the bound listener address once Run has started listening,
// or "" before that. Useful when listening on port 0.
func (s *Server) Addr() string {
	if v := s.boundAddr.Load(); v != nil {
		return v.(string)
	}
	return ""
}

// Run listens and serves until ctx is cancelled. Per-connection failures
// are logged, not returned; only listener-level failures end Run.
func (s *Server) Run(ctx context.Context) error {
	if s.network == "unix" {
		// Remove a stale socket from an unclean previous shutdown.
		if err := os.Remove(s.address); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("wyoming: remove stale socket %q: %w", s.address, err)
		}
	}

	ln, err := net.Listen(s.network, s.address)
	if err != nil {
		return fmt.Errorf("wyoming: listen %s %s: %w", s.network, s.address, err)
	}
	s.boundAddr.Store(ln.Addr().String())
	s.listening.Store(true)
	defer s.listening.Store(false)

	slog.Info("wyoming server listening", "network", s.network, "address", ln.Addr().String())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		ln.Close()
		return ctx.Err()
	})
	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("wyoming: accept: %w", err)
			}
			go s.serveConn(ctx, conn)
		}
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return context.Canceled
	}
	return err
}

// WSHandler returns an HTTP handler that upgrades requests to WebSocket
// and speaks the same event protocol over binary messages.
func (s *Server) WSHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			slog.Warn("websocket accept failed", "remote", r.RemoteAddr, "err", err)
			return
		}
		conn := websocket.NetConn(r.Context(), c, websocket.MessageBinary)
		s.serveConn(r.Context(), conn)
	})
}

// serveConn runs one session: read events in arrival order, dispatch to
// the handler, tear down on disconnect or abort.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	if s.sem != nil {
		if !s.sem.TryAcquire(1) {
			slog.Warn("session limit reached, rejecting connection", "remote", remote)
			ev, err := NewEvent(TypeError, Error{Text: "session limit reached", Code: "busy"})
			if err == nil {
				_ = NewWriter(conn).Write(ev)
			}
			return
		}
		defer s.sem.Release(1)
	}

	slog.Debug("client connected", "remote", remote)

	h := s.newHandler(NewWriter(conn), remote)
	defer func() {
		if err := h.Close(); err != nil {
			slog.Warn("session teardown error", "remote", remote, "err", err)
		}
		slog.Debug("client disconnected", "remote", remote)
	}()

	r := NewReader(conn)
	for {
		ev, err := r.Read()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && ctx.Err() == nil {
				slog.Warn("session read error", "remote", remote, "err", err)
			}
			return
		}
		if err := h.HandleEvent(ctx, ev); err != nil {
			slog.Error("session aborted", "remote", remote, "event", ev.Type, "err", err)
			return
		}
	}
}
