// Package human lets a person take over a player seat. A single websocket
// controller connects, receives each pending turn request as JSON, and answers
// with a declaration that replaces the player agent's LLM call. When no
// controller is connected (or it passes), the player agent falls back to its
// normal declaration path, so the bridge never stalls a round.
package human

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/arkavel/voidtable/internal/health"
	"github.com/arkavel/voidtable/internal/observe"
	"github.com/arkavel/voidtable/internal/protocol"
	"github.com/arkavel/voidtable/internal/route"
	"github.com/arkavel/voidtable/pkg/types"
)

// ErrNoController is returned by [Server.Declare] when no controller is
// connected. Callers treat it as "declare normally".
var ErrNoController = errors.New("human: no controller connected")

// ErrPassed is returned when the controller explicitly yields the turn back
// to the agent.
var ErrPassed = errors.New("human: controller passed")

// ErrControllerGone is returned for requests that were in flight when the
// controller connection dropped.
var ErrControllerGone = errors.New("human: controller disconnected")

const defaultWriteTimeout = 10 * time.Second

// turnPrompt is the frame sent to the controller for each pending turn.
type turnPrompt struct {
	Type      string                  `json:"type"` // "turn_request"
	ID        string                  `json:"id"`
	Character string                  `json:"character"`
	Round     int                     `json:"round"`
	Phase     protocol.TurnPhase      `json:"phase"`
	Location  string                  `json:"location"`
	Situation string                  `json:"situation"`
	Clocks    []protocol.ClockState   `json:"clocks,omitempty"`
	Combat    *protocol.CombatContext `json:"combat,omitempty"`
}

// controlFrame is every frame the controller may send.
type controlFrame struct {
	Type string `json:"type"` // "declare", "pass", "ping"
	ID   string `json:"id,omitempty"`

	Intent      string `json:"intent,omitempty"`
	Description string `json:"description,omitempty"`
	ActionType  string `json:"action_type,omitempty"`
	Skill       string `json:"skill,omitempty"`
	Difficulty  int    `json:"difficulty,omitempty"`
	Target      string `json:"target,omitempty"`
}

// Server is the takeover bridge: one HTTP listener, at most one controller
// websocket, and a table of turns awaiting an answer.
type Server struct {
	addr         string
	metrics      *observe.Metrics
	writeTimeout time.Duration

	mu      sync.Mutex
	conn    *websocket.Conn
	connCtx context.Context
	pending map[string]chan controlFrame

	listener net.Listener
	srv      *http.Server
}

// Option customises the bridge server.
type Option func(*Server)

// WithWriteTimeout bounds each websocket write.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) { s.writeTimeout = d }
}

// NewServer creates a takeover bridge listening on addr. A nil metrics
// instance falls back to the process default.
func NewServer(addr string, m *observe.Metrics, opts ...Option) *Server {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	s := &Server{
		addr:         addr,
		metrics:      m,
		writeTimeout: defaultWriteTimeout,
		pending:      make(map[string]chan controlFrame),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start binds the listener and begins serving. It returns once the listener
// is live.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("human: listen on %q: %w", s.addr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	health.New(health.Checker{
		Name: "controller",
		Check: func(context.Context) error {
			if !s.Connected() {
				return errors.New("no controller connected")
			}
			return nil
		},
	}).Register(mux)

	srv := &http.Server{
		Handler:     observe.Middleware(s.metrics)(mux),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	s.listener = ln
	s.srv = srv
	s.mu.Unlock()

	go func() {
		if serr := srv.Serve(ln); serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			slog.Error("human bridge serve failed", "err", serr)
		}
	}()

	slog.Info("human takeover bridge listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound listener address. Useful when starting on port 0.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Close shuts the HTTP server down and fails all in-flight turn requests.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	s.failPending()
	return srv.Shutdown(ctx)
}

// Connected reports whether a controller is currently attached.
func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Turn requests
// ─────────────────────────────────────────────────────────────────────────────

// Declare presents one pending turn to the controller and blocks until it
// answers, passes, disconnects, or ctx expires. The returned declaration has
// its skill routed through the same normaliser the player agent uses; the
// caller stamps agent identity.
func (s *Server) Declare(ctx context.Context, sheet *types.CharacterSheet, req protocol.TurnRequestPayload) (*types.ActionDeclaration, error) {
	s.mu.Lock()
	conn := s.conn
	connCtx := s.connCtx
	s.mu.Unlock()
	if conn == nil {
		return nil, ErrNoController
	}

	id := uuid.NewString()[:8]
	reply := make(chan controlFrame, 1)

	s.mu.Lock()
	s.pending[id] = reply
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	prompt := turnPrompt{
		Type:      "turn_request",
		ID:        id,
		Character: sheet.Name,
		Round:     req.Round,
		Phase:     req.Phase,
		Location:  req.Scenario.Location,
		Situation: req.Scenario.Situation,
		Clocks:    req.Clocks,
		Combat:    req.CombatContext,
	}
	if err := s.send(connCtx, conn, prompt); err != nil {
		return nil, fmt.Errorf("human: send turn request: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("human: waiting for controller: %w", ctx.Err())
	case frame, ok := <-reply:
		if !ok {
			return nil, ErrControllerGone
		}
		if frame.Type == "pass" {
			return nil, ErrPassed
		}
		return s.buildDeclaration(sheet, frame), nil
	}
}

// buildDeclaration lifts a controller's declare frame into a routed
// declaration. The same attribute routing and difficulty clamping applies as
// for model output, so a human cannot declare outside the rules.
func (s *Server) buildDeclaration(sheet *types.CharacterSheet, frame controlFrame) *types.ActionDeclaration {
	actionType := types.ActionType(strings.ToLower(strings.TrimSpace(frame.ActionType)))
	if !actionType.IsValid() {
		actionType = types.ActionCustom
	}
	isRitual := actionType == types.ActionRitual ||
		strings.Contains(strings.ToLower(frame.Intent), "ritual")

	decision := route.Route(frame.Intent, actionType, sheet.Skills, isRitual, frame.Skill, nil)

	difficulty := frame.Difficulty
	if difficulty < 5 {
		difficulty = 18
	}
	if difficulty > 50 {
		difficulty = 50
	}

	decl := &types.ActionDeclaration{
		Intent:              strings.TrimSpace(frame.Intent),
		Description:         strings.TrimSpace(frame.Description),
		Attribute:           decision.Attribute,
		Skill:               decision.Skill,
		EstimatedDifficulty: difficulty,
		Justification:       "declared by controller",
		CharacterName:       sheet.Name,
		Type:                actionType,
		Target:              strings.TrimSpace(frame.Target),
		IsRitual:            isRitual,
		Timestamp:           time.Now().UTC(),
	}
	if decl.Description == "" {
		decl.Description = decl.Intent
	}
	return decl
}

// ─────────────────────────────────────────────────────────────────────────────
// Websocket handling
// ─────────────────────────────────────────────────────────────────────────────

// handleWS upgrades the connection and runs the controller read loop. Only
// one controller may be attached; later connections are turned away so two
// humans never fight over the same seat.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	taken := s.conn != nil
	s.mu.Unlock()
	if taken {
		http.Error(w, "controller already connected", http.StatusConflict)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The bridge binds to loopback in every supported configuration;
		// origin checks would only reject the local console.
		InsecureSkipVerify: true,
	})
	if err != nil {
		slog.Warn("human bridge upgrade failed", "err", err)
		return
	}

	ctx := r.Context()

	s.mu.Lock()
	if s.conn != nil {
		s.mu.Unlock()
		_ = conn.Close(websocket.StatusPolicyViolation, "controller already connected")
		return
	}
	s.conn = conn
	s.connCtx = ctx
	s.mu.Unlock()

	slog.Info("controller connected", "remote", r.RemoteAddr)
	s.send(ctx, conn, map[string]any{"type": "hello", "protocol": 1})

	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.connCtx = nil
		s.mu.Unlock()
		s.failPending()
		_ = conn.Close(websocket.StatusNormalClosure, "")
		slog.Info("controller disconnected", "remote", r.RemoteAddr)
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var frame controlFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			slog.Warn("invalid controller frame", "err", err)
			continue
		}
		s.handleFrame(ctx, conn, frame)
	}
}

func (s *Server) handleFrame(ctx context.Context, conn *websocket.Conn, frame controlFrame) {
	switch frame.Type {
	case "declare", "pass":
		s.mu.Lock()
		reply, ok := s.pending[frame.ID]
		if ok {
			delete(s.pending, frame.ID)
		}
		s.mu.Unlock()
		if !ok {
			s.send(ctx, conn, map[string]string{
				"type":    "error",
				"message": "no pending turn with id " + frame.ID,
			})
			return
		}
		reply <- frame
	case "ping":
		s.send(ctx, conn, map[string]string{"type": "pong"})
	default:
		s.send(ctx, conn, map[string]string{
			"type":    "error",
			"message": "unknown frame type " + frame.Type,
		})
	}
}

// failPending closes every waiting reply channel so blocked Declare calls
// return ErrControllerGone.
func (s *Server) failPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.pending {
		close(ch)
		delete(s.pending, id)
	}
}

// send marshals v and writes it with the configured write timeout. Errors are
// logged, not returned, except to callers that need them.
func (s *Server) send(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("human: marshal frame: %w", err)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	writeCtx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		slog.Warn("human bridge write failed", "err", err)
		return err
	}
	return nil
}
