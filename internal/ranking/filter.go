package ranking

import (
	"context"
	"errors"
	"fmt"
)

// ErrIncompleteRankingData indicates the ranker violated its contract:
// weights are enabled on the event type but the weight, calibration or
// shortfall maps came back nil. This is a defect, not a recoverable
// condition.
var ErrIncompleteRankingData = errors.New("ranking data incomplete for weighted filtering")

// FilterHostsInput configures one lead-threshold filtering pass. The
// threshold is consumed by the call: callers must recompute it per
// assignment attempt rather than reuse a stale value.
type FilterHostsInput struct {
	Hosts            []Host
	MaxLeadThreshold *int
	EventType        EventType
}

// FilterHostsByLeadThreshold excludes hosts whose booking load has drifted
// too far ahead of their fair share. A nil threshold disables the filter.
// Input order is preserved. Ranker failures propagate to the caller and
// fail the whole assignment attempt.
func FilterHostsByLeadThreshold(ctx context.Context, ranker Ranker, input FilterHostsInput) ([]Host, error) {
	if input.MaxLeadThreshold == nil {
		return input.Hosts, nil
	}

	result, err := ranker.OrderedLuckyUsers(ctx, RankingInput{
		AvailableUsers: input.Hosts,
		EventType:      input.EventType,
		AllRRHosts:     input.Hosts,
	})
	if err != nil {
		return nil, fmt.Errorf("ranking hosts: %w", err)
	}

	threshold := float64(*input.MaxLeadThreshold)
	data := result.PerUserData

	if input.EventType.IsRRWeightsEnabled {
		return filterWeighted(input.Hosts, data, threshold)
	}
	return filterUnweighted(input.Hosts, data, threshold), nil
}

// filterWeighted allows each host a lead proportional to its share of the
// pool's total weight. A host is dropped once its booking excess (the
// negated shortfall) exceeds that allowance.
func filterWeighted(hosts []Host, data *PerUserData, threshold float64) ([]Host, error) {
	if data.Weights == nil || data.Calibrations == nil || data.BookingShortfalls == nil {
		return nil, ErrIncompleteRankingData
	}

	var totalWeight float64
	for _, h := range hosts {
		if w, ok := data.Weights[h.User.ID]; ok {
			totalWeight += w
		} else {
			totalWeight += h.EffectiveWeight()
		}
	}
	if totalWeight <= 0 {
		totalWeight = float64(len(hosts))
	}

	filtered := make([]Host, 0, len(hosts))
	for _, h := range hosts {
		weight, ok := data.Weights[h.User.ID]
		if !ok {
			weight = h.EffectiveWeight()
		}
		allowedLead := threshold * (weight / totalWeight)
		shortfall := data.BookingShortfalls[h.User.ID]

		if -shortfall > allowedLead {
			continue
		}
		filtered = append(filtered, h)
	}
	return filtered, nil
}

// filterUnweighted bounds the spread of booking counts: only hosts within
// maxLeadThreshold of the least-booked host survive.
func filterUnweighted(hosts []Host, data *PerUserData, threshold float64) []Host {
	if len(hosts) == 0 {
		return hosts
	}

	minBookings := data.BookingsCount[hosts[0].User.ID]
	for _, h := range hosts[1:] {
		if c := data.BookingsCount[h.User.ID]; c < minBookings {
			minBookings = c
		}
	}

	filtered := make([]Host, 0, len(hosts))
	for _, h := range hosts {
		if float64(data.BookingsCount[h.User.ID]) <= float64(minBookings)+threshold {
			filtered = append(filtered, h)
		}
	}
	return filtered
}
