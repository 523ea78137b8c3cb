package session

import (
	"log/slog"

	"github.com/arkavel/voidtable/internal/protocol"
)

// inboxBuffer bounds each channel; a full channel drops the message, which
// only happens when the orchestrator is no longer consuming (shutdown).
const inboxBuffer = 32

// readyMsg is one AgentReady announcement.
type readyMsg struct {
	AgentID string
	Payload protocol.ReadyPayload
}

// declMsg is one player's declaration batch.
type declMsg struct {
	AgentID string
	Payload protocol.ActionDeclaredPayload
}

// debriefMsg is one player's end-of-session statement.
type debriefMsg struct {
	AgentID string
	Payload protocol.DebriefPayload
}

// inbox funnels coordinator-bound bus traffic into typed channels the round
// loop can select on. It is registered as a bus OnMessage handler, so it sees
// every routed frame and picks out the ones addressed to the coordinator.
type inbox struct {
	ready    chan readyMsg
	decls    chan declMsg
	debriefs chan debriefMsg
}

func newInbox() *inbox {
	return &inbox{
		ready:    make(chan readyMsg, inboxBuffer),
		decls:    make(chan declMsg, inboxBuffer),
		debriefs: make(chan debriefMsg, inboxBuffer),
	}
}

// handle is the bus OnMessage hook.
func (in *inbox) handle(msg protocol.Message) {
	switch msg.Type {
	case protocol.AgentReady:
		var p protocol.ReadyPayload
		if err := msg.Decode(&p); err != nil {
			slog.Warn("undecodable ready message", "sender", msg.Sender, "err", err)
			return
		}
		push(in.ready, readyMsg{AgentID: msg.Sender, Payload: p})

	case protocol.ActionDeclared:
		var p protocol.ActionDeclaredPayload
		if err := msg.Decode(&p); err != nil {
			slog.Warn("undecodable declaration", "sender", msg.Sender, "err", err)
			return
		}
		push(in.decls, declMsg{AgentID: msg.Sender, Payload: p})

	case protocol.PlayerResponse:
		var p protocol.DebriefPayload
		if err := msg.Decode(&p); err != nil {
			slog.Warn("undecodable debrief", "sender", msg.Sender, "err", err)
			return
		}
		push(in.debriefs, debriefMsg{AgentID: msg.Sender, Payload: p})
	}
}

// push is a non-blocking send; the bus routing goroutine must never stall on
// a slow coordinator.
func push[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
		slog.Warn("inbox channel full, message dropped")
	}
}
