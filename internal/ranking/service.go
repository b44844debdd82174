package ranking

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/marden/bookpool/internal/database/models"
	"gorm.io/gorm"
)

// Service computes fairness rankings from booking history. Statistics are
// scoped to the current calendar month and produced fresh per call.
type Service struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewService(db *gorm.DB, logger *slog.Logger) *Service {
	return &Service{db: db, logger: logger}
}

var _ Ranker = (*Service)(nil)

// OrderedLuckyUsers ranks the available hosts, best candidate first.
// Hosts with the largest booking shortfall (most under-booked relative to
// their fair share) come first; ties break on fewer bookings, then on
// earlier pool membership.
func (s *Service) OrderedLuckyUsers(ctx context.Context, input RankingInput) (*RankingResult, error) {
	periodStart := startOfMonth(time.Now().UTC())

	rows, err := s.periodBookings(ctx, input.EventType.ID, input.AllRRHosts, periodStart)
	if err != nil {
		return nil, fmt.Errorf("loading period bookings: %w", err)
	}

	data := &PerUserData{
		BookingsCount: make(map[uuid.UUID]int, len(input.AllRRHosts)),
	}
	for _, h := range input.AllRRHosts {
		data.BookingsCount[h.User.ID] = 0
	}
	for _, row := range rows {
		data.BookingsCount[row.UserID]++
	}

	if input.EventType.IsRRWeightsEnabled {
		s.computeWeightedStats(input.AllRRHosts, rows, periodStart, data)
	}

	users := orderCandidates(input.AvailableUsers, data, input.EventType.IsRRWeightsEnabled)

	s.logger.Debug("ranked round-robin hosts",
		"event_type_id", input.EventType.ID,
		"candidates", len(input.AvailableUsers),
		"pool", len(input.AllRRHosts),
		"period_bookings", len(rows),
	)

	return &RankingResult{Users: users, PerUserData: data}, nil
}

type bookingRow struct {
	UserID    uuid.UUID
	CreatedAt time.Time
}

func (s *Service) periodBookings(ctx context.Context, eventTypeID uuid.UUID, pool []Host, since time.Time) ([]bookingRow, error) {
	userIDs := make([]uuid.UUID, 0, len(pool))
	for _, h := range pool {
		userIDs = append(userIDs, h.User.ID)
	}

	var rows []bookingRow
	err := s.db.WithContext(ctx).
		Model(&models.Booking{}).
		Select("user_id, created_at").
		Where("event_type_id = ?", eventTypeID).
		Where("user_id IN ?", userIDs).
		Where("status = ?", models.BookingStatusAccepted).
		Where("no_show_host = ?", false).
		Where("start_time >= ?", since).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// computeWeightedStats fills Weights, Calibrations and BookingShortfalls.
//
// A host's fair share is weight/totalWeight of the period's bookings. Hosts
// that joined the pool mid-period get a calibration credit: their share of
// the bookings that predate them, so they are not flooded with assignments
// to "catch up" on bookings they could never have received.
func (s *Service) computeWeightedStats(pool []Host, rows []bookingRow, periodStart time.Time, data *PerUserData) {
	data.Weights = make(map[uuid.UUID]float64, len(pool))
	data.Calibrations = make(map[uuid.UUID]float64, len(pool))
	data.BookingShortfalls = make(map[uuid.UUID]float64, len(pool))

	var totalWeight float64
	for _, h := range pool {
		w := h.EffectiveWeight()
		data.Weights[h.User.ID] = w
		totalWeight += w
	}
	if totalWeight <= 0 {
		totalWeight = float64(len(pool))
	}

	totalBookings := float64(len(rows))

	for _, h := range pool {
		share := data.Weights[h.User.ID] / totalWeight

		// A booking predates the host only if it was made before the host
		// joined; advance bookings for later slots do not count.
		var calibration float64
		if h.CreatedAt.After(periodStart) {
			var before float64
			for _, row := range rows {
				if row.CreatedAt.Before(h.CreatedAt) {
					before++
				}
			}
			calibration = share * before
		}
		data.Calibrations[h.User.ID] = calibration

		count := float64(data.BookingsCount[h.User.ID])
		data.BookingShortfalls[h.User.ID] = share*totalBookings - count - calibration
	}
}

func orderCandidates(candidates []Host, data *PerUserData, weighted bool) []User {
	ordered := make([]Host, len(candidates))
	copy(ordered, candidates)

	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if weighted {
			sa := data.BookingShortfalls[a.User.ID]
			sb := data.BookingShortfalls[b.User.ID]
			if sa != sb {
				return sa > sb
			}
		}
		ca := data.BookingsCount[a.User.ID]
		cb := data.BookingsCount[b.User.ID]
		if ca != cb {
			return ca < cb
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})

	users := make([]User, len(ordered))
	for i, h := range ordered {
		users[i] = h.User
	}
	return users
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// HostFromModel builds a transient ranking host from persisted rows.
func HostFromModel(h models.Host, u models.User) Host {
	host := Host{
		IsFixed:   h.IsFixed,
		CreatedAt: h.CreatedAt,
		User: User{
			ID:        u.ID,
			Email:     u.Email,
			CreatedAt: u.CreatedAt,
		},
	}
	if h.Priority != nil {
		host.Priority = *h.Priority
	}
	if h.Weight != nil {
		host.Weight = *h.Weight
	}
	if h.WeightAdjustment != nil {
		host.WeightAdjustment = *h.WeightAdjustment
	}
	return host
}
