package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/marden/bookpool/internal/api/dto"
	"github.com/marden/bookpool/internal/api/validation"
	"github.com/marden/bookpool/internal/bookings"
	"github.com/marden/bookpool/internal/database/models"
	"gorm.io/gorm"
)

type BookingHandler struct {
	db      *gorm.DB
	service *bookings.Service
}

func NewBookingHandler(db *gorm.DB, service *bookings.Service) *BookingHandler {
	return &BookingHandler{db: db, service: service}
}

// CreateBookingRequest represents the request to book a slot
type CreateBookingRequest struct {
	EventTypeID string            `json:"event_type_id"`
	Title       string            `json:"title,omitempty"`
	StartTime   time.Time         `json:"start_time"`
	EndTime     time.Time         `json:"end_time"`
	Attendees   []AttendeeRequest `json:"attendees"`
}

type AttendeeRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	TimeZone string `json:"time_zone,omitempty"`
}

func (r CreateBookingRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if !validation.IsValidUUID(r.EventTypeID) {
		errors["event_type_id"] = "Invalid event type ID"
	}
	if r.StartTime.IsZero() {
		errors["start_time"] = "Start time is required"
	}
	if r.EndTime.IsZero() {
		errors["end_time"] = "End time is required"
	}
	if len(r.Attendees) == 0 {
		errors["attendees"] = "At least one attendee is required"
	}
	for i, a := range r.Attendees {
		if !validation.IsValidEmail(a.Email) {
			errors["attendees"] = "Invalid email at index " + strconv.Itoa(i)
			break
		}
	}

	return errors
}

// BookingResponse represents a booking in API responses
type BookingResponse struct {
	UID                string             `json:"uid"`
	EventTypeID        string             `json:"event_type_id"`
	HostID             string             `json:"host_id,omitempty"`
	Title              string             `json:"title"`
	Status             string             `json:"status"`
	StartTime          string             `json:"start_time"`
	EndTime            string             `json:"end_time"`
	CancellationReason string             `json:"cancellation_reason,omitempty"`
	Attendees          []AttendeeResponse `json:"attendees,omitempty"`
	CreatedAt          string             `json:"created_at"`
}

type AttendeeResponse struct {
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	TimeZone string `json:"time_zone"`
}

func bookingToResponse(b *models.Booking) BookingResponse {
	resp := BookingResponse{
		UID:                b.UID,
		EventTypeID:        b.EventTypeID.String(),
		Title:              b.Title,
		Status:             b.Status,
		StartTime:          b.StartTime.Format(time.RFC3339),
		EndTime:            b.EndTime.Format(time.RFC3339),
		CancellationReason: b.CancellationReason,
		CreatedAt:          b.CreatedAt.Format(time.RFC3339),
	}
	if b.UserID != nil {
		resp.HostID = b.UserID.String()
	}
	for _, a := range b.Attendees {
		resp.Attendees = append(resp.Attendees, AttendeeResponse{
			Email:    a.Email,
			Name:     a.Name,
			TimeZone: a.TimeZone,
		})
	}
	return resp
}

// Create handles POST /api/v1/bookings
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	eventTypeID, _ := uuid.Parse(req.EventTypeID)
	attendees := make([]bookings.AttendeeInput, len(req.Attendees))
	for i, a := range req.Attendees {
		attendees[i] = bookings.AttendeeInput{
			Email:    a.Email,
			Name:     a.Name,
			TimeZone: a.TimeZone,
		}
	}

	booking, err := h.service.Create(r.Context(), bookings.CreateInput{
		EventTypeID: eventTypeID,
		Title:       req.Title,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Attendees:   attendees,
	})
	if err != nil {
		switch {
		case errors.Is(err, bookings.ErrEventTypeNotFound):
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Event type not found"})
		case errors.Is(err, bookings.ErrInvalidTimeRange):
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "End time must be after start time"})
		case errors.Is(err, bookings.ErrNoAvailableHosts):
			writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "No hosts available"})
		case errors.Is(err, bookings.ErrSlotTaken):
			writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "Slot is no longer available"})
		default:
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to create booking"})
		}
		return
	}

	writeJSON(w, http.StatusCreated, bookingToResponse(booking))
}

// Get handles GET /api/v1/bookings/:uid
func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")

	booking, err := h.service.GetByUID(r.Context(), uid)
	if err != nil {
		if errors.Is(err, bookings.ErrBookingNotFound) {
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Booking not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get booking"})
		return
	}

	writeJSON(w, http.StatusOK, bookingToResponse(booking))
}

// List handles GET /api/v1/bookings
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	pagination := dto.PaginationParams{Page: page, PerPage: perPage}
	pagination.Normalize()

	query := h.db.Model(&models.Booking{})
	if status := r.URL.Query().Get("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if eventTypeID := r.URL.Query().Get("event_type_id"); eventTypeID != "" {
		id, err := uuid.Parse(eventTypeID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid event type ID"})
			return
		}
		query = query.Where("event_type_id = ?", id)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to count bookings"})
		return
	}

	var list []models.Booking
	if err := query.
		Preload("Attendees").
		Order("start_time DESC").
		Offset(pagination.Offset()).
		Limit(pagination.PerPage).
		Find(&list).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list bookings"})
		return
	}

	response := make([]BookingResponse, len(list))
	for i := range list {
		response[i] = bookingToResponse(&list[i])
	}

	totalPages := int(total) / pagination.PerPage
	if int(total)%pagination.PerPage > 0 {
		totalPages++
	}

	writeJSON(w, http.StatusOK, dto.PaginatedResponse{
		Data:       response,
		Total:      total,
		Page:       pagination.Page,
		PerPage:    pagination.PerPage,
		TotalPages: totalPages,
	})
}

// CancelBookingRequest cancels a whole booking or a single seat
type CancelBookingRequest struct {
	AttendeeEmail string `json:"attendee_email,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// Cancel handles POST /api/v1/bookings/:uid/cancel
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")

	var req CancelBookingRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
			return
		}
	}

	booking, err := h.service.Cancel(r.Context(), bookings.CancelInput{
		UID:           uid,
		AttendeeEmail: req.AttendeeEmail,
		Reason:        req.Reason,
	})
	if err != nil {
		switch {
		case errors.Is(err, bookings.ErrBookingNotFound):
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Booking not found"})
		case errors.Is(err, bookings.ErrSeatNotFound):
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Attendee not found on booking"})
		default:
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to cancel booking"})
		}
		return
	}

	writeJSON(w, http.StatusOK, bookingToResponse(booking))
}
