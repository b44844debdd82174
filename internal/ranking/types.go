package ranking

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// User identifies a host candidate's underlying account.
type User struct {
	ID        uuid.UUID
	Email     string
	CreatedAt time.Time
}

// Host is a transient candidate assignee for a round-robin event,
// constructed per request from team membership. It is never persisted.
type Host struct {
	IsFixed          bool
	CreatedAt        time.Time
	Priority         int
	Weight           int
	WeightAdjustment int
	User             User
}

// EffectiveWeight is the host's weight after mid-period adjustment.
// A host without an explicit weight counts as one full share (100).
func (h Host) EffectiveWeight() float64 {
	w := h.Weight
	if w == 0 {
		w = DefaultWeight
	}
	return float64(w + h.WeightAdjustment)
}

// DefaultWeight is one fair share, expressed as a percentage.
const DefaultWeight = 100

// EventType carries the fairness configuration the ranking needs.
type EventType struct {
	ID                 uuid.UUID
	IsRRWeightsEnabled bool
}

// PerUserData holds ranking statistics keyed by user id. The three
// weight-related maps are nil when RR weights are disabled; when weights
// are enabled all three must be populated.
type PerUserData struct {
	BookingsCount     map[uuid.UUID]int
	Weights           map[uuid.UUID]float64
	Calibrations      map[uuid.UUID]float64
	BookingShortfalls map[uuid.UUID]float64
}

// RankingInput mirrors the arguments of the lucky-user ordering.
type RankingInput struct {
	AvailableUsers []Host
	EventType      EventType
	AllRRHosts     []Host
}

// RankingResult is the ordered candidate list plus the statistics that
// produced it.
type RankingResult struct {
	Users       []User
	PerUserData *PerUserData
}

// Ranker produces a fairness ranking for a host pool.
type Ranker interface {
	OrderedLuckyUsers(ctx context.Context, input RankingInput) (*RankingResult, error)
}
