// Package agent provides the base runtime shared by every Voidtable
// participant: a bus connection, a message-type → handler table, and the
// default ping/pong and shutdown behaviour.
//
// Concrete agents (Director, players, enemies) embed [Base] and register
// handlers for the message types they care about. Messages without a handler
// are silently dropped — they may be destined for a coordinator-side handler
// in the same process.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/arkavel/voidtable/internal/bus"
	"github.com/arkavel/voidtable/internal/protocol"
)

// HandlerFunc processes one inbound message. Handlers run sequentially on the
// agent's run loop; a slow handler stalls only its own agent.
type HandlerFunc func(ctx context.Context, msg protocol.Message) error

// Base is the common agent runtime. It is not itself an agent — embed it and
// register handlers before calling Run.
type Base struct {
	id   string
	role protocol.Role

	client *bus.Client

	mu       sync.Mutex
	handlers map[protocol.MessageType]HandlerFunc

	// OnShutdown, when set, runs once when a Shutdown message arrives,
	// before the run loop exits.
	OnShutdown func(ctx context.Context)
}

// NewBase connects a new agent to the bus at socketPath and returns its
// runtime with the default Ping handler installed.
func NewBase(ctx context.Context, socketPath, id string, role protocol.Role) (*Base, error) {
	client, err := bus.Dial(ctx, socketPath, id, role)
	if err != nil {
		return nil, fmt.Errorf("agent %q: %w", id, err)
	}

	b := &Base{
		id:       id,
		role:     role,
		client:   client,
		handlers: make(map[protocol.MessageType]HandlerFunc),
	}

	b.Handle(protocol.Ping, func(_ context.Context, msg protocol.Message) error {
		return b.Send(protocol.NewDirect(protocol.Pong, b.id, msg.Sender, nil))
	})

	return b, nil
}

// ID returns the agent's stable identifier.
func (b *Base) ID() string { return b.id }

// Role returns the agent's role tag.
func (b *Base) Role() protocol.Role { return b.role }

// Handle registers h for messages of type typ, replacing any previous handler.
func (b *Base) Handle(typ protocol.MessageType, h HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[typ] = h
}

// Send writes msg to the bus.
func (b *Base) Send(msg protocol.Message) error {
	return b.client.Send(msg)
}

// Run dispatches inbound messages to registered handlers until a Shutdown
// message arrives, ctx is cancelled, or the connection breaks.
func (b *Base) Run(ctx context.Context) error {
	defer b.client.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-b.client.Receive():
			if !ok {
				return fmt.Errorf("agent %q: bus connection closed", b.id)
			}

			if msg.Type == protocol.Shutdown {
				if b.OnShutdown != nil {
					b.OnShutdown(ctx)
				}
				slog.Debug("agent shutting down", "agent", b.id)
				return nil
			}

			b.mu.Lock()
			h, ok := b.handlers[msg.Type]
			b.mu.Unlock()
			if !ok {
				// Not for us; another handler in this process may want it.
				continue
			}

			if err := h(ctx, msg); err != nil {
				slog.Warn("agent handler failed",
					"agent", b.id, "type", msg.Type, "err", err)
			}
		}
	}
}

// Close tears down the bus connection without waiting for a Shutdown message.
func (b *Base) Close() {
	b.client.Close()
}
