package route

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/antzucaro/matchr"

	"github.com/arkavel/voidtable/pkg/types"
)

// ErrDuplicate marks a declaration rejected for repeating a recent intent.
var ErrDuplicate = errors.New("route: duplicate intent")

// Validator performs structural checks on action declarations and tracks
// recent intents per agent for duplicate detection.
type Validator struct {
	mu     sync.Mutex
	recent map[string][]string // agent id → rolling window of intents

	// WindowSize bounds the per-agent intent window. Default 5.
	WindowSize int

	// SimilarityThreshold is the Jaccard word-overlap ratio at or above
	// which two intents count as duplicates. Default 0.7.
	SimilarityThreshold float64
}

// NewValidator returns a Validator with default window and threshold.
func NewValidator() *Validator {
	return &Validator{
		recent:              make(map[string][]string),
		WindowSize:          5,
		SimilarityThreshold: 0.7,
	}
}

// Validate checks the structure of a declaration and, when allowDuplicates
// is false, rejects intents too similar to the agent's recent ones. Combat
// passes allowDuplicates=true because pressing the same attack is legitimate.
//
// A nil return means the declaration is valid and its intent has been
// recorded in the rolling window.
func (v *Validator) Validate(a types.ActionDeclaration, allowDuplicates bool) error {
	var errs []error

	if len(strings.TrimSpace(a.Intent)) < 3 {
		errs = append(errs, fmt.Errorf("intent must be at least 3 characters"))
	}
	if len(strings.TrimSpace(a.Description)) < 10 {
		errs = append(errs, fmt.Errorf("description must be at least 10 characters"))
	}
	if !a.Attribute.IsValid() {
		errs = append(errs, fmt.Errorf("attribute %q is not one of the eight attributes", a.Attribute))
	}
	if a.EstimatedDifficulty < 5 || a.EstimatedDifficulty > 50 {
		errs = append(errs, fmt.Errorf("estimated difficulty %d is outside [5, 50]", a.EstimatedDifficulty))
	}
	if strings.TrimSpace(a.Justification) == "" {
		errs = append(errs, fmt.Errorf("justification is required"))
	}
	if !a.Type.IsValid() {
		errs = append(errs, fmt.Errorf("action type %q is not recognised", a.Type))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if dup, prev := v.isDuplicate(a.AgentID, a.Intent); dup {
		if !allowDuplicates {
			return fmt.Errorf("%w: %q repeats %q", ErrDuplicate, a.Intent, prev)
		}
	}

	window := append(v.recent[a.AgentID], a.Intent)
	if len(window) > v.WindowSize {
		window = window[len(window)-v.WindowSize:]
	}
	v.recent[a.AgentID] = window
	return nil
}

// isDuplicate compares intent against the agent's window. Two intents match
// when their word-set Jaccard similarity reaches the threshold, or when the
// normalised strings are near-identical by Jaro-Winkler. Caller holds v.mu.
func (v *Validator) isDuplicate(agentID, intent string) (bool, string) {
	for _, prev := range v.recent[agentID] {
		if jaccard(intent, prev) >= v.SimilarityThreshold {
			return true, prev
		}
		if matchr.JaroWinkler(normalize(intent), normalize(prev), true) >= 0.95 {
			return true, prev
		}
	}
	return false, ""
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// jaccard computes word-set overlap between two intents.
func jaccard(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	inter := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

func wordSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		out[strings.Trim(w, ".,!?;:\"'")] = struct{}{}
	}
	return out
}
