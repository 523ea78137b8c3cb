package human

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/arkavel/voidtable/internal/protocol"
	"github.com/arkavel/voidtable/pkg/types"
)

func startServer(t *testing.T) *Server {
	t.Helper()
	s := NewServer("127.0.0.1:0", nil)
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Close(shutCtx)
	})
	return s
}

// dialController connects a websocket controller and consumes the hello frame.
func dialController(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+s.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read hello: %v", err)
	}
	var hello map[string]any
	if err := json.Unmarshal(data, &hello); err != nil {
		t.Fatalf("unmarshal hello: %v", err)
	}
	if hello["type"] != "hello" {
		t.Fatalf("first frame type = %v, want hello", hello["type"])
	}
	return conn
}

func testSheet() *types.CharacterSheet {
	return &types.CharacterSheet{
		Name: "Maren",
		Skills: map[string]int{
			"Melee":     3,
			"Awareness": 2,
		},
	}
}

func testTurnRequest() protocol.TurnRequestPayload {
	return protocol.TurnRequestPayload{
		Round: 2,
		Phase: protocol.PhaseDeclaration,
		Scenario: protocol.ScenarioPayload{
			Location:  "Flooded transit hub",
			Situation: "Something is moving under the water.",
		},
	}
}

func TestDeclare_NoController(t *testing.T) {
	s := startServer(t)

	_, err := s.Declare(context.Background(), testSheet(), testTurnRequest())
	if !errors.Is(err, ErrNoController) {
		t.Errorf("Declare error = %v, want ErrNoController", err)
	}
}

func TestDeclare_ControllerAnswers(t *testing.T) {
	s := startServer(t)
	conn := dialController(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Controller side: answer the first turn request with a melee attack.
	go func() {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var prompt turnPrompt
		if err := json.Unmarshal(data, &prompt); err != nil {
			return
		}
		reply, _ := json.Marshal(controlFrame{
			Type:        "declare",
			ID:          prompt.ID,
			Intent:      "I drive the construct back from the ledge",
			Description: "A measured strike aimed at its footing.",
			ActionType:  "combat",
			Skill:       "Melee",
			Difficulty:  22,
			Target:      "construct",
		})
		_ = conn.Write(ctx, websocket.MessageText, reply)
	}()

	decl, err := s.Declare(ctx, testSheet(), testTurnRequest())
	if err != nil {
		t.Fatalf("Declare: %v", err)
	}

	if decl.CharacterName != "Maren" {
		t.Errorf("character = %q, want Maren", decl.CharacterName)
	}
	if decl.Skill != "Melee" {
		t.Errorf("skill = %q, want Melee", decl.Skill)
	}
	if decl.Attribute != types.Agility {
		t.Errorf("attribute = %q, want Agility", decl.Attribute)
	}
	if decl.EstimatedDifficulty != 22 {
		t.Errorf("difficulty = %d, want 22", decl.EstimatedDifficulty)
	}
	if decl.Type != types.ActionCombat {
		t.Errorf("action type = %q, want combat", decl.Type)
	}
	if decl.Target != "construct" {
		t.Errorf("target = %q, want construct", decl.Target)
	}
}

func TestDeclare_DifficultyClamped(t *testing.T) {
	s := startServer(t)
	conn := dialController(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var prompt turnPrompt
		_ = json.Unmarshal(data, &prompt)
		reply, _ := json.Marshal(controlFrame{
			Type:        "declare",
			ID:          prompt.ID,
			Intent:      "I scan the waterline for movement",
			Description: "Slow sweep of the hall, weapon lowered.",
			ActionType:  "perception",
			Skill:       "Awareness",
			Difficulty:  99,
		})
		_ = conn.Write(ctx, websocket.MessageText, reply)
	}()

	decl, err := s.Declare(ctx, testSheet(), testTurnRequest())
	if err != nil {
		t.Fatalf("Declare: %v", err)
	}
	if decl.EstimatedDifficulty != 50 {
		t.Errorf("difficulty = %d, want clamp to 50", decl.EstimatedDifficulty)
	}
}

func TestDeclare_Pass(t *testing.T) {
	s := startServer(t)
	conn := dialController(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var prompt turnPrompt
		_ = json.Unmarshal(data, &prompt)
		reply, _ := json.Marshal(controlFrame{Type: "pass", ID: prompt.ID})
		_ = conn.Write(ctx, websocket.MessageText, reply)
	}()

	_, err := s.Declare(ctx, testSheet(), testTurnRequest())
	if !errors.Is(err, ErrPassed) {
		t.Errorf("Declare error = %v, want ErrPassed", err)
	}
}

func TestDeclare_ControllerDisconnects(t *testing.T) {
	s := startServer(t)
	conn := dialController(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		// Read the turn request, then hang up without answering.
		_, _, _ = conn.Read(ctx)
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()

	_, err := s.Declare(ctx, testSheet(), testTurnRequest())
	if !errors.Is(err, ErrControllerGone) {
		t.Errorf("Declare error = %v, want ErrControllerGone", err)
	}
}

func TestSecondControllerRejected(t *testing.T) {
	s := startServer(t)
	dialController(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, "ws://"+s.Addr()+"/ws", nil)
	if err == nil {
		t.Fatal("second controller connection should be rejected")
	}
	if resp != nil && resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}
}

func TestPingPong(t *testing.T) {
	s := startServer(t)
	conn := dialController(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ping, _ := json.Marshal(controlFrame{Type: "ping"})
	if err := conn.Write(ctx, websocket.MessageText, ping); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read pong: %v", err)
	}
	var pong map[string]string
	if err := json.Unmarshal(data, &pong); err != nil {
		t.Fatalf("unmarshal pong: %v", err)
	}
	if pong["type"] != "pong" {
		t.Errorf("frame type = %q, want pong", pong["type"])
	}
}

func TestHealthz(t *testing.T) {
	s := startServer(t)

	resp, err := http.Get(fmt.Sprintf("http://%s/healthz", s.Addr()))
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

// TestReadyz: readiness tracks whether a controller is attached.
func TestReadyz(t *testing.T) {
	s := startServer(t)

	resp, err := http.Get(fmt.Sprintf("http://%s/readyz", s.Addr()))
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status without controller = %d, want 503", resp.StatusCode)
	}

	dialController(t, s)

	resp, err = http.Get(fmt.Sprintf("http://%s/readyz", s.Addr()))
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status with controller = %d, want 200", resp.StatusCode)
	}
}

func TestConnected(t *testing.T) {
	s := startServer(t)
	if s.Connected() {
		t.Error("Connected() = true before any controller attached")
	}
	dialController(t, s)
	if !s.Connected() {
		t.Error("Connected() = false with a controller attached")
	}
}
