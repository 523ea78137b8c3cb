package agent

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/arkavel/voidtable/internal/bus"
	"github.com/arkavel/voidtable/internal/protocol"
)

func startBus(t *testing.T) *bus.Server {
	t.Helper()
	s := bus.NewServer(filepath.Join(t.TempDir(), "bus.sock"))
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Shutdown)
	return s
}

// peer is a raw bus client for poking the agent under test.
func dialPeer(t *testing.T, s *bus.Server, id string) *bus.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := bus.Dial(ctx, s.Path(), id, protocol.RoleCoordinator)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Close)
	return c
}

func newTestAgent(t *testing.T, s *bus.Server, id string) *Base {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	b, err := NewBase(ctx, s.Path(), id, protocol.RolePlayer)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(b.Close)
	return b
}

func TestPingPong(t *testing.T) {
	s := startBus(t)
	b := newTestAgent(t, s, "agent_maren")
	peer := dialPeer(t, s, "coordinator")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	// The peer may dial before the agent's registration lands; retry until
	// the pong arrives.
	deadline := time.Now().Add(5 * time.Second)
	for {
		if err := peer.Send(protocol.NewDirect(protocol.Ping, "coordinator", "agent_maren", nil)); err != nil {
			t.Fatal(err)
		}
		select {
		case msg := <-peer.Receive():
			if msg.Type != protocol.Pong || msg.Sender != "agent_maren" {
				t.Fatalf("got %s from %s, want pong", msg.Type, msg.Sender)
			}
			cancel()
			<-done
			return
		case <-time.After(100 * time.Millisecond):
			if time.Now().After(deadline) {
				t.Fatal("no pong")
			}
		}
	}
}

func TestHandlersDispatchByType(t *testing.T) {
	s := startBus(t)
	b := newTestAgent(t, s, "agent_maren")
	peer := dialPeer(t, s, "coordinator")

	got := make(chan protocol.Message, 1)
	b.Handle(protocol.TurnRequest, func(_ context.Context, msg protocol.Message) error {
		got <- msg
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	deadline := time.Now().Add(5 * time.Second)
	for {
		if err := peer.Send(protocol.NewDirect(protocol.TurnRequest, "coordinator", "agent_maren",
			protocol.TurnRequestPayload{Round: 2, Phase: protocol.PhaseSynthesis})); err != nil {
			t.Fatal(err)
		}
		select {
		case msg := <-got:
			var p protocol.TurnRequestPayload
			if err := msg.Decode(&p); err != nil {
				t.Fatal(err)
			}
			if p.Round != 2 || p.Phase != protocol.PhaseSynthesis {
				t.Errorf("payload = %+v", p)
			}
			return
		case <-time.After(100 * time.Millisecond):
			if time.Now().After(deadline) {
				t.Fatal("handler never ran")
			}
		}
	}
}

func TestUnhandledTypesAreDropped(t *testing.T) {
	s := startBus(t)
	b := newTestAgent(t, s, "agent_maren")
	peer := dialPeer(t, s, "coordinator")

	handled := make(chan struct{}, 1)
	b.Handle(protocol.DMNarration, func(context.Context, protocol.Message) error {
		handled <- struct{}{}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	// An unhandled type first, then a handled one; only the second fires.
	deadline := time.Now().Add(5 * time.Second)
	for {
		if err := peer.Send(protocol.NewDirect(protocol.NPCDialogue, "coordinator", "agent_maren", nil)); err != nil {
			t.Fatal(err)
		}
		if err := peer.Send(protocol.NewDirect(protocol.DMNarration, "coordinator", "agent_maren",
			protocol.NarrationPayload{Text: "dust settles"})); err != nil {
			t.Fatal(err)
		}
		select {
		case <-handled:
			return
		case <-time.After(100 * time.Millisecond):
			if time.Now().After(deadline) {
				t.Fatal("handled message never dispatched")
			}
		}
	}
}

func TestShutdownMessageStopsRun(t *testing.T) {
	s := startBus(t)
	b := newTestAgent(t, s, "agent_maren")
	peer := dialPeer(t, s, "coordinator")

	shutdownRan := make(chan struct{})
	b.OnShutdown = func(context.Context) { close(shutdownRan) }

	done := make(chan error, 1)
	go func() { done <- b.Run(context.Background()) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if err := peer.Send(protocol.NewDirect(protocol.Shutdown, "coordinator", "agent_maren",
			protocol.ShutdownPayload{Reason: "session over"})); err != nil {
			t.Fatal(err)
		}
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run returned %v on clean shutdown, want nil", err)
			}
			select {
			case <-shutdownRan:
			default:
				t.Error("OnShutdown hook never ran")
			}
			return
		case <-time.After(100 * time.Millisecond):
			if time.Now().After(deadline) {
				t.Fatal("Run never returned")
			}
		}
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	s := startBus(t)
	b := newTestAgent(t, s, "agent_maren")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
