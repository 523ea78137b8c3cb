// Package protocol defines the wire protocol spoken on the Voidtable message
// bus: a typed message envelope serialised as one JSON object per line.
//
// Every participant — Director, players, enemies, the coordinator itself —
// exchanges these messages and nothing else. The envelope carries an opaque
// JSON payload; the typed payload structs in this package are the only
// sanctioned shapes for it.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageType enumerates every message the bus routes.
type MessageType string

const (
	AgentRegister   MessageType = "agent_register"
	AgentReady      MessageType = "agent_ready"
	SessionStart    MessageType = "session_start"
	ScenarioSetup   MessageType = "scenario_setup"
	ScenarioUpdate  MessageType = "scenario_update"
	TurnRequest     MessageType = "turn_request"
	ActionDeclared  MessageType = "action_declared"
	ActionResolved  MessageType = "action_resolved"
	GameStateUpdate MessageType = "game_state_update"
	CharacterUpdate MessageType = "character_update"
	DMNarration     MessageType = "dm_narration"
	NPCDialogue     MessageType = "npc_dialogue"
	PlayerResponse  MessageType = "player_response"
	Ping            MessageType = "ping"
	Pong            MessageType = "pong"
	Shutdown        MessageType = "shutdown"
)

// Role tags an agent's function within the session.
type Role string

const (
	RoleDM          Role = "dm"
	RolePlayer      Role = "player"
	RoleEnemy       Role = "enemy"
	RoleCoordinator Role = "coordinator"
)

// Message is the envelope for every frame on the bus.
// A nil Recipient means broadcast to every connected client except the sender.
type Message struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	Sender    string          `json:"sender"`
	Recipient string          `json:"recipient,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// New builds a broadcast message with a fresh id and the current time.
// payload is marshalled immediately; a marshal failure panics because every
// payload type in this package is marshal-safe by construction.
func New(typ MessageType, sender string, payload any) Message {
	return direct(typ, sender, "", payload)
}

// NewDirect builds a message addressed to a single recipient.
func NewDirect(typ MessageType, sender, recipient string, payload any) Message {
	return direct(typ, sender, recipient, payload)
}

func direct(typ MessageType, sender, recipient string, payload any) Message {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			panic(fmt.Sprintf("protocol: marshal %T payload: %v", payload, err))
		}
		raw = b
	}
	return Message{
		ID:        uuid.NewString(),
		Type:      typ,
		Sender:    sender,
		Recipient: recipient,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}
}

// Decode unmarshals the message payload into v.
func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("protocol: %s message %s has no payload", m.Type, m.ID)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("protocol: decode %s payload: %w", m.Type, err)
	}
	return nil
}

// Encode serialises m as a single JSON line, including the trailing newline.
func (m Message) Encode() ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s message: %w", m.Type, err)
	}
	return append(b, '\n'), nil
}

// Parse decodes one newline-delimited frame into a Message. The trailing
// newline is optional; surrounding whitespace is ignored.
func Parse(line []byte) (Message, error) {
	line = bytes.TrimSpace(line)
	var m Message
	if err := json.Unmarshal(line, &m); err != nil {
		return Message{}, fmt.Errorf("protocol: parse frame: %w", err)
	}
	if m.Type == "" {
		return Message{}, fmt.Errorf("protocol: frame missing type")
	}
	if m.Sender == "" {
		return Message{}, fmt.Errorf("protocol: %s frame missing sender", m.Type)
	}
	return m, nil
}
