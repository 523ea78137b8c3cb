// Package bus implements the local message bus every Voidtable participant
// connects to: a unix-domain socket server speaking newline-delimited JSON
// frames, with direct and broadcast routing.
//
// The bus is deliberately unreliable in only one direction: a send to a
// broken client is logged and dropped, never retried. Everything else — frame
// ordering per client, registration, deregistration — is deterministic.
package bus

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/arkavel/voidtable/internal/protocol"
)

// MaxFrame is the largest accepted frame size. The spec floor is 64 KiB; the
// bus allows a full mebibyte so synthesis narrations never hit the ceiling.
const MaxFrame = 1 << 20

// Handler observes every message routed through the bus. Handlers run on the
// routing goroutine and must not block.
type Handler func(protocol.Message)

// Server is the bus itself: it owns the listener, the client table, and the
// local handler list.
type Server struct {
	path string

	mu       sync.Mutex
	listener net.Listener
	clients  map[string]*client
	handlers []Handler
	closed   bool

	wg sync.WaitGroup
}

type client struct {
	id   string
	conn net.Conn

	// writeMu serialises frame writes so concurrent routes to the same
	// client never interleave bytes.
	writeMu sync.Mutex
}

// NewServer creates a bus server bound to the unix socket at path. When path
// is empty a fresh socket in the system temp directory is used.
func NewServer(path string) *Server {
	if path == "" {
		path = filepath.Join(os.TempDir(), fmt.Sprintf("voidtable-%d.sock", os.Getpid()))
	}
	return &Server{
		path:    path,
		clients: make(map[string]*client),
	}
}

// Path returns the socket path the server is (or will be) bound to.
func (s *Server) Path() string { return s.path }

// OnMessage registers a local handler invoked for every routed message,
// including direct messages between two other parties. Must be called before
// Start.
func (s *Server) OnMessage(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, h)
}

// Start binds the listener, removing any stale socket file first, and begins
// accepting clients. It returns once the listener is live.
func (s *Server) Start(ctx context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("bus: remove stale socket %q: %w", s.path, err)
	}

	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("bus: listen on %q: %w", s.path, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop(ctx, ln)

	slog.Info("bus listening", "path", s.path)
	return nil
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Warn("bus accept failed", "err", err)
			continue
		}
		s.wg.Add(1)
		go s.handleConn(ctx, conn)
	}
}

// handleConn registers the client from its first frame, then routes every
// subsequent frame until the connection breaks.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()

	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 64*1024), MaxFrame)

	var c *client
	defer func() {
		if c != nil {
			s.deregister(c)
		}
		conn.Close()
	}()

	for sc.Scan() {
		msg, err := protocol.Parse(sc.Bytes())
		if err != nil {
			slog.Warn("bus dropped malformed frame", "err", err)
			continue
		}

		if c == nil {
			c = s.register(msg.Sender, conn)
			if msg.Type == protocol.AgentRegister {
				// The registration frame itself is not routed.
				continue
			}
		}

		s.Route(msg)
	}

	if err := sc.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
		who := "unregistered"
		if c != nil {
			who = c.id
		}
		slog.Debug("bus connection closed", "client", who, "err", err)
	}
}

func (s *Server) register(id string, conn net.Conn) *client {
	c := &client{id: id, conn: conn}
	s.mu.Lock()
	if old, ok := s.clients[id]; ok {
		old.conn.Close()
	}
	s.clients[id] = c
	s.mu.Unlock()
	slog.Debug("bus client registered", "client", id)
	return c
}

func (s *Server) deregister(c *client) {
	s.mu.Lock()
	if cur, ok := s.clients[c.id]; ok && cur == c {
		delete(s.clients, c.id)
	}
	s.mu.Unlock()
	slog.Debug("bus client deregistered", "client", c.id)
}

// Route delivers msg to its recipient, or to every client except the sender
// when no recipient is set. Local handlers see every routed message.
func (s *Server) Route(msg protocol.Message) {
	s.mu.Lock()
	handlers := s.handlers
	var targets []*client
	if msg.Recipient != "" {
		if c, ok := s.clients[msg.Recipient]; ok {
			targets = []*client{c}
		} else {
			slog.Warn("bus message for unknown recipient",
				"recipient", msg.Recipient, "type", msg.Type, "sender", msg.Sender)
		}
	} else {
		for id, c := range s.clients {
			if id == msg.Sender {
				continue
			}
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()

	for _, h := range handlers {
		h(msg)
	}

	if len(targets) == 0 {
		return
	}

	frame, err := msg.Encode()
	if err != nil {
		slog.Warn("bus failed to encode message", "type", msg.Type, "err", err)
		return
	}
	for _, c := range targets {
		c.writeMu.Lock()
		_, err := c.conn.Write(frame)
		c.writeMu.Unlock()
		if err != nil {
			slog.Warn("bus send failed", "client", c.id, "type", msg.Type, "err", err)
			s.deregister(c)
			c.conn.Close()
		}
	}
}

// Shutdown closes every client connection, the listener, and removes the
// socket file. Safe to call more than once.
func (s *Server) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	ln := s.listener
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.clients = make(map[string]*client)
	s.mu.Unlock()

	for _, c := range clients {
		c.conn.Close()
	}
	if ln != nil {
		ln.Close()
	}
	s.wg.Wait()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("bus failed to remove socket", "path", s.path, "err", err)
	}
	slog.Info("bus shut down", "path", s.path)
}
