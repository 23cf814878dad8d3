// Package notify emits change notifications when the published regime
// label actually changes. The transport (chat, email) lives outside this
// repository; in-repo sinks are the structured log and the websocket hub.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/regimed/regimed/internal/domain/regime"
)

// Change describes one accepted regime transition.
type Change struct {
	ID         string       `json:"id"`
	From       regime.Label `json:"from"`
	To         regime.Label `json:"to"`
	Confidence float64      `json:"confidence"`
	Rationale  string       `json:"rationale"`
	Timestamp  time.Time    `json:"timestamp"`
}

// NewChange builds a Change with a fresh ID and a short human-readable
// rationale.
func NewChange(from, to regime.Label, confidence float64, ratio float64, now time.Time) Change {
	return Change{
		ID:         uuid.NewString(),
		From:       from,
		To:         to,
		Confidence: confidence,
		Rationale: fmt.Sprintf("regime moved %s -> %s at %.0f%% confidence (ratio %.2f)",
			from, to, confidence*100, ratio),
		Timestamp: now,
	}
}

// Notifier receives accepted transitions. Implementations must not block
// the cycle; slow transports should buffer internally.
type Notifier interface {
	RegimeChanged(ctx context.Context, c Change)
}

// LogNotifier writes changes to the structured log.
type LogNotifier struct{}

// RegimeChanged implements Notifier.
func (LogNotifier) RegimeChanged(_ context.Context, c Change) {
	log.Info().
		Str("id", c.ID).
		Str("from", c.From.String()).
		Str("to", c.To.String()).
		Float64("confidence", c.Confidence).
		Msg(c.Rationale)
}

// Multi fans one change out to several notifiers.
type Multi []Notifier

// RegimeChanged implements Notifier.
func (m Multi) RegimeChanged(ctx context.Context, c Change) {
	for _, n := range m {
		n.RegimeChanged(ctx, c)
	}
}
