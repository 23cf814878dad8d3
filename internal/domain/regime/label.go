package regime

import (
	"encoding/json"
	"fmt"
)

// Label classifies the market regime on a seven-step scale from most
// bullish to most bearish. The ordering is load-bearing: smoothing and
// divergence logic reason about adjacency using the ordinal distance
// between labels.
type Label int

const (
	StrongUptrend Label = iota
	Uptrend
	ChoppyBullish
	Choppy
	ChoppyBearish
	Downtrend
	StrongDowntrend
)

// Direction is the trade direction implied by a regime label.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
	DirectionBoth  Direction = "both"
)

var labelNames = map[Label]string{
	StrongUptrend:   "strong_uptrend",
	Uptrend:         "uptrend",
	ChoppyBullish:   "choppy_bullish",
	Choppy:          "choppy",
	ChoppyBearish:   "choppy_bearish",
	Downtrend:       "downtrend",
	StrongDowntrend: "strong_downtrend",
}

func (l Label) String() string {
	if name, ok := labelNames[l]; ok {
		return name
	}
	return "unknown"
}

// ParseLabel converts the wire form back into a Label.
func ParseLabel(s string) (Label, error) {
	for label, name := range labelNames {
		if name == s {
			return label, nil
		}
	}
	return Choppy, fmt.Errorf("unknown regime label: %q", s)
}

// Ordinal returns the position in the bullish-to-bearish ordering.
func (l Label) Ordinal() int {
	return int(l)
}

// Distance returns the ordinal distance between two labels.
func (l Label) Distance(other Label) int {
	d := int(l) - int(other)
	if d < 0 {
		d = -d
	}
	return d
}

// IsAdjacent reports whether other sits one step away in the ordering.
func (l Label) IsAdjacent(other Label) bool {
	return l.Distance(other) == 1
}

// IsValid reports whether the label is one of the seven defined values.
func (l Label) IsValid() bool {
	return l >= StrongUptrend && l <= StrongDowntrend
}

// Direction maps the label onto an implied trade direction. Only Choppy
// has no directional bias.
func (l Label) Direction() Direction {
	switch {
	case l < Choppy:
		return DirectionLong
	case l > Choppy:
		return DirectionShort
	default:
		return DirectionBoth
	}
}

// Bullish reports whether the label sits on the bullish side of Choppy.
func (l Label) Bullish() bool { return l < Choppy }

// Bearish reports whether the label sits on the bearish side of Choppy.
func (l Label) Bearish() bool { return l > Choppy }

// StepToward returns the label one ordinal step closer to target, or the
// receiver itself when already there.
func (l Label) StepToward(target Label) Label {
	switch {
	case target > l:
		return l + 1
	case target < l:
		return l - 1
	default:
		return l
	}
}

// MarshalJSON encodes the label in its string wire form.
func (l Label) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON decodes the string wire form.
func (l *Label) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseLabel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
