package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/arkavel/voidtable/internal/mech"
	"github.com/arkavel/voidtable/internal/protocol"
)

// maxNoteLocations bounds the cross-session location history in dm_notes.
const maxNoteLocations = 10

// Record is the structured, human-browsable form of one finished session:
// the flat event stream regrouped by round, with the verdict and debriefs
// attached.
type Record struct {
	SessionID string    `json:"session_id"`
	Name      string    `json:"name"`
	Started   time.Time `json:"started"`
	Ended     time.Time `json:"ended"`

	Result string `json:"result"`
	Reason string `json:"reason"`

	Rounds   []RoundRecord             `json:"rounds"`
	Debriefs []protocol.DebriefPayload `json:"debriefs,omitempty"`
}

// RoundRecord groups one round's events.
type RoundRecord struct {
	Round  int          `json:"round"`
	Events []mech.Event `json:"events"`
}

// dmNotes is the small cross-session memory the Director reads at startup for
// scenario variety.
type dmNotes struct {
	RecentLocations []string  `json:"recent_locations"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Recorder restructures the event stream into the session record at the end
// of a session.
type Recorder struct {
	sessionID string
	name      string
	outputDir string
	log       *mech.EventLog
	started   time.Time
}

// NewRecorder binds a recorder to the session's event log. An empty outputDir
// disables persistence; Finish becomes a no-op.
func NewRecorder(sessionID, name, outputDir string, log *mech.EventLog) *Recorder {
	return &Recorder{
		sessionID: sessionID,
		name:      name,
		outputDir: outputDir,
		log:       log,
		started:   time.Now().UTC(),
	}
}

// Finish writes session_<id>.json and merges the session's locations into
// dm_notes.json.
func (r *Recorder) Finish(result, reason string, debriefs []protocol.DebriefPayload, locations []string) error {
	if r.outputDir == "" {
		return nil
	}

	record := Record{
		SessionID: r.sessionID,
		Name:      r.name,
		Started:   r.started,
		Ended:     time.Now().UTC(),
		Result:    result,
		Reason:    reason,
		Rounds:    groupByRound(r.log.Events()),
		Debriefs:  debriefs,
	}

	path := filepath.Join(r.outputDir, fmt.Sprintf("session_%s.json", r.sessionID))
	if err := writeJSON(path, record); err != nil {
		return fmt.Errorf("record: %w", err)
	}

	if err := r.mergeNotes(locations); err != nil {
		return fmt.Errorf("record: %w", err)
	}
	return nil
}

// groupByRound splits the flat stream into per-round buckets, preserving
// event order. Round 0 holds setup events.
func groupByRound(events []mech.Event) []RoundRecord {
	var rounds []RoundRecord
	index := make(map[int]int)
	for _, ev := range events {
		i, ok := index[ev.Round]
		if !ok {
			i = len(rounds)
			index[ev.Round] = i
			rounds = append(rounds, RoundRecord{Round: ev.Round})
		}
		rounds[i].Events = append(rounds[i].Events, ev)
	}
	return rounds
}

// mergeNotes folds this session's locations into the bounded history in
// dm_notes.json. Existing entries survive; duplicates collapse to their most
// recent occurrence.
func (r *Recorder) mergeNotes(locations []string) error {
	path := filepath.Join(r.outputDir, "dm_notes.json")

	var notes dmNotes
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if jerr := json.Unmarshal(data, &notes); jerr != nil {
			// A corrupt notes file starts over rather than killing the record.
			notes = dmNotes{}
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return err
	}

	merged := append(notes.RecentLocations, locations...)
	seen := make(map[string]bool, len(merged))
	deduped := make([]string, 0, len(merged))
	for i := len(merged) - 1; i >= 0; i-- {
		if seen[merged[i]] {
			continue
		}
		seen[merged[i]] = true
		deduped = append(deduped, merged[i])
	}
	// deduped is newest-first; restore chronological order.
	for i, j := 0, len(deduped)-1; i < j; i, j = i+1, j-1 {
		deduped[i], deduped[j] = deduped[j], deduped[i]
	}
	if len(deduped) > maxNoteLocations {
		deduped = deduped[len(deduped)-maxNoteLocations:]
	}

	notes.RecentLocations = deduped
	notes.UpdatedAt = time.Now().UTC()
	return writeJSON(path, notes)
}

// LoadNotes reads dm_notes.json for seeding scenario variety across sessions.
// A missing file returns empty notes.
func LoadNotes(outputDir string) ([]string, error) {
	if outputDir == "" {
		return nil, nil
	}
	data, err := os.ReadFile(filepath.Join(outputDir, "dm_notes.json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("record: read dm_notes: %w", err)
	}
	var notes dmNotes
	if err := json.Unmarshal(data, &notes); err != nil {
		return nil, fmt.Errorf("record: parse dm_notes: %w", err)
	}
	return notes.RecentLocations, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
