package bookings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marden/bookpool/internal/calendars"
	"github.com/marden/bookpool/internal/database/models"
	"github.com/marden/bookpool/internal/ranking"
	"github.com/marden/bookpool/internal/tasks"
	"gorm.io/gorm"
)

var (
	ErrEventTypeNotFound = errors.New("event type not found")
	ErrBookingNotFound   = errors.New("booking not found")
	ErrNoAvailableHosts  = errors.New("no available hosts")
	ErrInvalidTimeRange  = errors.New("end time must be after start time")
	ErrSlotTaken         = errors.New("host already booked for this slot")
	ErrSeatNotFound      = errors.New("attendee not found on booking")
)

// Service creates and cancels bookings. Round-robin assignment runs the
// fairness ranking and the lead-threshold filter on every attempt; external
// side effects (email, webhooks, calendar cleanup) never block or fail the
// database mutation.
type Service struct {
	db        *gorm.DB
	logger    *slog.Logger
	ranker    ranking.Ranker
	queue     tasks.Enqueuer
	calendars *calendars.Registry
}

func NewService(db *gorm.DB, logger *slog.Logger, ranker ranking.Ranker, queue tasks.Enqueuer, reg *calendars.Registry) *Service {
	return &Service{
		db:        db,
		logger:    logger,
		ranker:    ranker,
		queue:     queue,
		calendars: reg,
	}
}

// AttendeeInput is one seat on a new booking.
type AttendeeInput struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	TimeZone string `json:"time_zone"`
}

type CreateInput struct {
	EventTypeID uuid.UUID       `json:"event_type_id"`
	Title       string          `json:"title"`
	StartTime   time.Time       `json:"start_time"`
	EndTime     time.Time       `json:"end_time"`
	Attendees   []AttendeeInput `json:"attendees"`
}

// Create books a slot, assigning a host for round-robin event types.
func (s *Service) Create(ctx context.Context, input CreateInput) (*models.Booking, error) {
	if !input.EndTime.After(input.StartTime) {
		return nil, ErrInvalidTimeRange
	}

	var eventType models.EventType
	err := s.db.WithContext(ctx).
		Preload("Hosts").
		Preload("Hosts.User").
		First(&eventType, input.EventTypeID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEventTypeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading event type: %w", err)
	}

	assignee, err := s.pickHost(ctx, &eventType)
	if err != nil {
		return nil, err
	}

	if assignee != nil {
		taken, err := s.slotTaken(ctx, *assignee, input.StartTime, input.EndTime)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, ErrSlotTaken
		}
	}

	title := input.Title
	if title == "" {
		title = eventType.Title
	}

	booking := models.Booking{
		UID:         uuid.New().String(),
		EventTypeID: eventType.ID,
		UserID:      assignee,
		Title:       title,
		Status:      models.BookingStatusAccepted,
		StartTime:   input.StartTime.UTC(),
		EndTime:     input.EndTime.UTC(),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&booking).Error; err != nil {
			return fmt.Errorf("creating booking: %w", err)
		}
		for _, a := range input.Attendees {
			attendee := models.Attendee{
				BookingID: booking.ID,
				Email:     a.Email,
				Name:      a.Name,
				TimeZone:  a.TimeZone,
			}
			if attendee.TimeZone == "" {
				attendee.TimeZone = "UTC"
			}
			if err := tx.Create(&attendee).Error; err != nil {
				return fmt.Errorf("creating attendee: %w", err)
			}
			booking.Attendees = append(booking.Attendees, attendee)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("booking created",
		"booking_uid", booking.UID,
		"event_type_id", eventType.ID,
		"host_id", assignee,
	)

	s.notifyCreated(ctx, &eventType, &booking)
	return &booking, nil
}

// pickHost selects the assignee for a new booking. Collective and personal
// event types keep the owner; round-robin events rank the pool and take the
// least-loaded surviving candidate.
func (s *Service) pickHost(ctx context.Context, eventType *models.EventType) (*uuid.UUID, error) {
	if eventType.SchedulingType != models.SchedulingRoundRobin {
		return eventType.OwnerID, nil
	}

	pool := make([]ranking.Host, 0, len(eventType.Hosts))
	for _, h := range eventType.Hosts {
		if h.User == nil || h.IsFixed {
			continue
		}
		pool = append(pool, ranking.HostFromModel(h, *h.User))
	}
	if len(pool) == 0 {
		return nil, ErrNoAvailableHosts
	}

	rankingET := ranking.EventType{
		ID:                 eventType.ID,
		IsRRWeightsEnabled: eventType.IsRRWeightsEnabled,
	}

	candidates, err := ranking.FilterHostsByLeadThreshold(ctx, s.ranker, ranking.FilterHostsInput{
		Hosts:            pool,
		MaxLeadThreshold: eventType.MaxLeadThreshold,
		EventType:        rankingET,
	})
	if err != nil {
		return nil, err
	}

	// The filter can empty the pool when every host is over its lead
	// allowance; fairness then degrades gracefully to the full pool.
	if len(candidates) == 0 {
		s.logger.Warn("lead threshold excluded all hosts, using full pool",
			"event_type_id", eventType.ID,
		)
		candidates = pool
	}

	result, err := s.ranker.OrderedLuckyUsers(ctx, ranking.RankingInput{
		AvailableUsers: candidates,
		EventType:      rankingET,
		AllRRHosts:     pool,
	})
	if err != nil {
		return nil, fmt.Errorf("ranking hosts: %w", err)
	}
	if len(result.Users) == 0 {
		return nil, ErrNoAvailableHosts
	}

	winner := result.Users[0].ID
	return &winner, nil
}

func (s *Service) slotTaken(ctx context.Context, hostID uuid.UUID, start, end time.Time) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("user_id = ?", hostID).
		Where("status = ?", models.BookingStatusAccepted).
		Where("start_time < ? AND end_time > ?", end, start).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("checking host availability: %w", err)
	}
	return count > 0, nil
}

// GetByUID loads a booking with its attendees, references and event type.
// The event type rides along so cancellation events keep their team scope.
func (s *Service) GetByUID(ctx context.Context, uid string) (*models.Booking, error) {
	var booking models.Booking
	err := s.db.WithContext(ctx).
		Preload("Attendees").
		Preload("References").
		Preload("EventType").
		Where("uid = ?", uid).
		First(&booking).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading booking: %w", err)
	}
	return &booking, nil
}

type CancelInput struct {
	UID           string `json:"-"`
	AttendeeEmail string `json:"attendee_email,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// Cancel cancels a whole booking, or a single seat when AttendeeEmail is
// set and other attendees remain. The database mutation commits first;
// external cleanup (calendar events, video rooms) then runs concurrently
// and best-effort, so a dead integration can never wedge a cancellation.
func (s *Service) Cancel(ctx context.Context, input CancelInput) (*models.Booking, error) {
	booking, err := s.GetByUID(ctx, input.UID)
	if err != nil {
		return nil, err
	}
	if booking.Status == models.BookingStatusCancelled {
		return booking, nil
	}

	seatOnly, cancelledEmails, err := s.applyCancellation(ctx, booking, input)
	if err != nil {
		return nil, err
	}

	if !seatOnly {
		s.cleanupReferences(ctx, booking)
	}

	s.notifyCancelled(ctx, booking, cancelledEmails, seatOnly)

	s.logger.Info("booking cancelled",
		"booking_uid", booking.UID,
		"seat_only", seatOnly,
		"reason", input.Reason,
	)
	return booking, nil
}

// applyCancellation performs the primary database mutation and reports
// whether only a seat was removed.
func (s *Service) applyCancellation(ctx context.Context, booking *models.Booking, input CancelInput) (bool, []string, error) {
	if input.AttendeeEmail != "" && len(booking.Attendees) > 1 {
		var seat *models.Attendee
		remaining := make([]models.Attendee, 0, len(booking.Attendees)-1)
		for i := range booking.Attendees {
			if booking.Attendees[i].Email == input.AttendeeEmail && seat == nil {
				seat = &booking.Attendees[i]
				continue
			}
			remaining = append(remaining, booking.Attendees[i])
		}
		if seat == nil {
			return false, nil, ErrSeatNotFound
		}
		if err := s.db.WithContext(ctx).Delete(seat).Error; err != nil {
			return false, nil, fmt.Errorf("removing seat: %w", err)
		}
		booking.Attendees = remaining
		return true, []string{seat.Email}, nil
	}

	if input.AttendeeEmail != "" {
		found := false
		for _, a := range booking.Attendees {
			if a.Email == input.AttendeeEmail {
				found = true
				break
			}
		}
		if !found {
			return false, nil, ErrSeatNotFound
		}
	}

	err := s.db.WithContext(ctx).Model(booking).Updates(map[string]interface{}{
		"status":              models.BookingStatusCancelled,
		"cancellation_reason": input.Reason,
	}).Error
	if err != nil {
		return false, nil, fmt.Errorf("cancelling booking: %w", err)
	}
	booking.Status = models.BookingStatusCancelled
	booking.CancellationReason = input.Reason

	emails := make([]string, 0, len(booking.Attendees))
	for _, a := range booking.Attendees {
		emails = append(emails, a.Email)
	}
	return false, emails, nil
}

// cleanupReferences deletes external artifacts concurrently. Failures are
// logged and the reference stays undeleted for a later retry.
func (s *Service) cleanupReferences(ctx context.Context, booking *models.Booking) {
	if booking.UserID == nil || len(booking.References) == 0 {
		return
	}

	var wg sync.WaitGroup
	for i := range booking.References {
		ref := &booking.References[i]
		if ref.Deleted {
			continue
		}

		deleter, ok := s.calendars.DeleterFor(ref.Type)
		if !ok {
			s.logger.Warn("no deleter for reference type", "type", ref.Type, "reference_id", ref.ID)
			continue
		}

		wg.Add(1)
		go func(ref *models.BookingReference) {
			defer wg.Done()
			if err := deleter.DeleteEvent(ctx, *booking.UserID, ref.ExternalID); err != nil {
				s.logger.Warn("reference cleanup failed",
					"reference_id", ref.ID,
					"type", ref.Type,
					"error", err,
				)
				return
			}
			if err := s.db.WithContext(ctx).Model(ref).Update("deleted", true).Error; err != nil {
				s.logger.Warn("marking reference deleted failed", "reference_id", ref.ID, "error", err)
			}
		}(ref)
	}
	wg.Wait()
}

func (s *Service) notifyCreated(ctx context.Context, eventType *models.EventType, booking *models.Booking) {
	for _, a := range booking.Attendees {
		s.enqueueEmail(tasks.EmailSendPayload{
			To:        a.Email,
			Title:     booking.Title,
			StartTime: booking.StartTime.Format(time.RFC3339),
		})
	}
	s.enqueueWebhook(eventType.TeamID, booking.UserID, models.TriggerBookingCreated, booking)
}

func (s *Service) notifyCancelled(ctx context.Context, booking *models.Booking, emails []string, seatOnly bool) {
	for _, email := range emails {
		s.enqueueEmail(tasks.EmailSendPayload{
			To:        email,
			Title:     booking.Title,
			StartTime: booking.StartTime.Format(time.RFC3339),
			Cancelled: true,
		})
	}
	if !seatOnly {
		var teamID *uuid.UUID
		if booking.EventType != nil {
			teamID = booking.EventType.TeamID
		}
		s.enqueueWebhook(teamID, booking.UserID, models.TriggerBookingCancelled, booking)
	}
}

func (s *Service) enqueueEmail(payload tasks.EmailSendPayload) {
	task, err := tasks.NewEmailSendTask(payload)
	if err != nil {
		s.logger.Warn("building email task failed", "error", err)
		return
	}
	if _, err := s.queue.Enqueue(task); err != nil {
		s.logger.Warn("enqueueing email task failed", "to", payload.To, "error", err)
	}
}

func (s *Service) enqueueWebhook(teamID, userID *uuid.UUID, trigger string, booking *models.Booking) {
	body, err := json.Marshal(map[string]interface{}{
		"booking_uid": booking.UID,
		"title":       booking.Title,
		"status":      booking.Status,
		"start_time":  booking.StartTime.Format(time.RFC3339),
		"end_time":    booking.EndTime.Format(time.RFC3339),
	})
	if err != nil {
		s.logger.Warn("encoding webhook body failed", "error", err)
		return
	}

	task, err := tasks.NewWebhookDeliverTask(tasks.WebhookDeliverPayload{
		Trigger: trigger,
		TeamID:  teamID,
		UserID:  userID,
		Payload: body,
	})
	if err != nil {
		s.logger.Warn("building webhook task failed", "error", err)
		return
	}
	if _, err := s.queue.Enqueue(task); err != nil {
		s.logger.Warn("enqueueing webhook task failed", "trigger", trigger, "error", err)
	}
}
