package regime

import (
	"encoding/json"
	"fmt"
	"time"
)

// DivergenceLevel grades the disagreement between the classified regime
// and the independent breadth percentage.
type DivergenceLevel int

const (
	DivergenceNone DivergenceLevel = iota
	DivergenceModerate
	DivergenceExtreme
)

var divergenceNames = map[DivergenceLevel]string{
	DivergenceNone:     "none",
	DivergenceModerate: "moderate",
	DivergenceExtreme:  "extreme",
}

func (d DivergenceLevel) String() string {
	if name, ok := divergenceNames[d]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON encodes the level in its string wire form.
func (d DivergenceLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes the string wire form.
func (d *DivergenceLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for level, name := range divergenceNames {
		if name == s {
			*d = level
			return nil
		}
	}
	return fmt.Errorf("unknown divergence level: %q", s)
}

// State is the single mutable entity owned by the classification core.
// It is created once at startup with a neutral default and mutated exactly
// once per cycle; consumers only ever see immutable Snapshot copies.
type State struct {
	CurrentLabel   Label           `json:"current_label"`
	Confidence     float64         `json:"confidence"`
	RawLabel       Label           `json:"raw_label"`
	RawConfidence  float64         `json:"raw_confidence"`
	EnteredAt      time.Time       `json:"entered_at"`
	Divergence     DivergenceLevel `json:"divergence"`
	DivergenceNote string          `json:"divergence_note,omitempty"`
	Degraded       bool            `json:"degraded"`
	DegradedReason string          `json:"degraded_reason,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

// NewState returns the neutral boot state.
func NewState(now time.Time) State {
	return State{
		CurrentLabel: Choppy,
		Confidence:   0.50,
		RawLabel:     Choppy,
		EnteredAt:    now,
		Divergence:   DivergenceNone,
		Timestamp:    now,
	}
}

// Age returns how long the current label has been active.
func (s State) Age(now time.Time) time.Duration {
	return now.Sub(s.EnteredAt)
}
