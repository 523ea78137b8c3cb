package protocol

import (
	"strings"
	"testing"
)

func TestEncodeParseRoundTrip(t *testing.T) {
	msg := NewDirect(TurnRequest, "coordinator", "agent_maren", TurnRequestPayload{
		Round: 3,
		Phase: PhaseDeclaration,
		Scenario: ScenarioPayload{
			Theme:     "derelict-salvage",
			Location:  "Kestrel Wreck",
			Situation: "The hull groans as the tide shifts.",
			VoidLevel: 2,
		},
	})

	frame, err := msg.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if frame[len(frame)-1] != '\n' {
		t.Error("encoded frame missing trailing newline")
	}

	got, err := Parse(frame)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != msg.ID || got.Type != TurnRequest || got.Sender != "coordinator" || got.Recipient != "agent_maren" {
		t.Errorf("envelope mismatch: %+v", got)
	}

	var p TurnRequestPayload
	if err := got.Decode(&p); err != nil {
		t.Fatal(err)
	}
	if p.Round != 3 || p.Phase != PhaseDeclaration || p.Scenario.Location != "Kestrel Wreck" {
		t.Errorf("payload mismatch: %+v", p)
	}
}

func TestParseRejectsBadFrames(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  string
	}{
		{"garbage", "not json at all", "parse frame"},
		{"missing type", `{"sender":"a"}`, "missing type"},
		{"missing sender", `{"type":"ping"}`, "missing sender"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.frame))
			if err == nil {
				t.Fatal("frame accepted")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q missing %q", err, tt.want)
			}
		})
	}
}

func TestParseTrimsWhitespace(t *testing.T) {
	msg, err := Parse([]byte("  {\"type\":\"ping\",\"sender\":\"a\"}\n"))
	if err != nil {
		t.Fatal(err)
	}
	if msg.Type != Ping {
		t.Errorf("type = %q", msg.Type)
	}
}

func TestNewFillsEnvelope(t *testing.T) {
	a := New(Ping, "agent_a", nil)
	b := New(Ping, "agent_a", nil)

	if a.ID == "" || a.ID == b.ID {
		t.Errorf("ids not unique: %q vs %q", a.ID, b.ID)
	}
	if a.Recipient != "" {
		t.Errorf("broadcast message has recipient %q", a.Recipient)
	}
	if a.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
	if len(a.Payload) != 0 {
		t.Errorf("nil payload marshalled to %s", a.Payload)
	}
}

func TestDecodeWithoutPayloadErrors(t *testing.T) {
	msg := New(Pong, "agent_a", nil)
	var p ReadyPayload
	if err := msg.Decode(&p); err == nil {
		t.Error("decode of empty payload succeeded")
	}
}
