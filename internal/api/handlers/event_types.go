package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/marden/bookpool/internal/api/dto"
	"github.com/marden/bookpool/internal/api/middleware"
	"github.com/marden/bookpool/internal/api/validation"
	"github.com/marden/bookpool/internal/database/models"
	"github.com/marden/bookpool/pkg/util"
	"gorm.io/gorm"
)

type EventTypeHandler struct {
	db *gorm.DB
}

func NewEventTypeHandler(db *gorm.DB) *EventTypeHandler {
	return &EventTypeHandler{db: db}
}

// HostRequest assigns a user to the round-robin pool of an event type
type HostRequest struct {
	UserID           string `json:"user_id"`
	IsFixed          bool   `json:"is_fixed"`
	Priority         *int   `json:"priority,omitempty"`
	Weight           *int   `json:"weight,omitempty"`
	WeightAdjustment *int   `json:"weight_adjustment,omitempty"`
}

// CreateEventTypeRequest represents the request to create an event type
type CreateEventTypeRequest struct {
	Title            string        `json:"title"`
	Slug             string        `json:"slug,omitempty"`
	Description      string        `json:"description,omitempty"`
	LengthMinutes    int           `json:"length_minutes"`
	TeamID           string        `json:"team_id,omitempty"`
	SchedulingType   string        `json:"scheduling_type,omitempty"`
	WeightsEnabled   bool          `json:"is_rr_weights_enabled"`
	MaxLeadThreshold *int          `json:"max_lead_threshold,omitempty"`
	Hosts            []HostRequest `json:"hosts,omitempty"`
}

func (r CreateEventTypeRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Title == "" {
		errors["title"] = "Title is required"
	}
	if r.Slug != "" && !validation.IsValidSlug(r.Slug) {
		errors["slug"] = "Invalid slug format"
	}
	if r.LengthMinutes < 0 || r.LengthMinutes > 24*60 {
		errors["length_minutes"] = "Length must be between 0 and 1440 minutes"
	}
	switch r.SchedulingType {
	case "", models.SchedulingRoundRobin, models.SchedulingCollective:
	default:
		errors["scheduling_type"] = "Invalid scheduling type"
	}
	if r.TeamID != "" && !validation.IsValidUUID(r.TeamID) {
		errors["team_id"] = "Invalid team ID"
	}
	if r.MaxLeadThreshold != nil && *r.MaxLeadThreshold < 1 {
		errors["max_lead_threshold"] = "Lead threshold must be at least 1"
	}
	for i, h := range r.Hosts {
		if !validation.IsValidUUID(h.UserID) {
			errors["hosts"] = "Invalid user ID at index " + strconv.Itoa(i)
			break
		}
		if h.Weight != nil && *h.Weight < 0 {
			errors["hosts"] = "Weight must not be negative at index " + strconv.Itoa(i)
			break
		}
	}

	return errors
}

// EventTypeResponse represents an event type in API responses
type EventTypeResponse struct {
	ID               string         `json:"id"`
	Title            string         `json:"title"`
	Slug             string         `json:"slug"`
	Description      string         `json:"description,omitempty"`
	LengthMinutes    int            `json:"length_minutes"`
	TeamID           string         `json:"team_id,omitempty"`
	SchedulingType   string         `json:"scheduling_type"`
	WeightsEnabled   bool           `json:"is_rr_weights_enabled"`
	MaxLeadThreshold *int           `json:"max_lead_threshold,omitempty"`
	Hosts            []HostResponse `json:"hosts,omitempty"`
	CreatedAt        string         `json:"created_at"`
}

type HostResponse struct {
	UserID           string `json:"user_id"`
	IsFixed          bool   `json:"is_fixed"`
	Priority         *int   `json:"priority,omitempty"`
	Weight           *int   `json:"weight,omitempty"`
	WeightAdjustment *int   `json:"weight_adjustment,omitempty"`
}

func eventTypeToResponse(et *models.EventType) EventTypeResponse {
	resp := EventTypeResponse{
		ID:               et.ID.String(),
		Title:            et.Title,
		Slug:             et.Slug,
		Description:      et.Description,
		LengthMinutes:    et.LengthMinutes,
		SchedulingType:   et.SchedulingType,
		WeightsEnabled:   et.IsRRWeightsEnabled,
		MaxLeadThreshold: et.MaxLeadThreshold,
		CreatedAt:        et.CreatedAt.Format(time.RFC3339),
	}
	if et.TeamID != nil {
		resp.TeamID = et.TeamID.String()
	}
	for _, h := range et.Hosts {
		resp.Hosts = append(resp.Hosts, HostResponse{
			UserID:           h.UserID.String(),
			IsFixed:          h.IsFixed,
			Priority:         h.Priority,
			Weight:           h.Weight,
			WeightAdjustment: h.WeightAdjustment,
		})
	}
	return resp
}

// List handles GET /api/v1/event-types
func (h *EventTypeHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	pagination := dto.PaginationParams{Page: page, PerPage: perPage}
	pagination.Normalize()

	query := h.db.Model(&models.EventType{})
	if teamID := r.URL.Query().Get("team_id"); teamID != "" {
		id, err := uuid.Parse(teamID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid team ID"})
			return
		}
		query = query.Where("team_id = ?", id)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to count event types"})
		return
	}

	var eventTypes []models.EventType
	if err := query.
		Preload("Hosts").
		Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.PerPage).
		Find(&eventTypes).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list event types"})
		return
	}

	response := make([]EventTypeResponse, len(eventTypes))
	for i := range eventTypes {
		response[i] = eventTypeToResponse(&eventTypes[i])
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

// Create handles POST /api/v1/event-types
func (h *EventTypeHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req CreateEventTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errors := req.Validate(); len(errors) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errors})
		return
	}

	slug := req.Slug
	if slug == "" {
		slug = util.Slugify(req.Title)
	}
	length := req.LengthMinutes
	if length == 0 {
		length = 30
	}
	schedulingType := req.SchedulingType
	if schedulingType == "" {
		schedulingType = models.SchedulingRoundRobin
	}

	eventType := models.EventType{
		Title:              req.Title,
		Slug:               slug,
		Description:        req.Description,
		LengthMinutes:      length,
		OwnerID:            &userID,
		SchedulingType:     schedulingType,
		IsRRWeightsEnabled: req.WeightsEnabled,
		MaxLeadThreshold:   req.MaxLeadThreshold,
	}
	if req.TeamID != "" {
		teamID, _ := uuid.Parse(req.TeamID)
		eventType.TeamID = &teamID
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&eventType).Error; err != nil {
			return err
		}
		for _, hr := range req.Hosts {
			hostUserID, _ := uuid.Parse(hr.UserID)
			host := models.Host{
				EventTypeID:      eventType.ID,
				UserID:           hostUserID,
				IsFixed:          hr.IsFixed,
				Priority:         hr.Priority,
				Weight:           hr.Weight,
				WeightAdjustment: hr.WeightAdjustment,
			}
			if err := tx.Create(&host).Error; err != nil {
				return err
			}
			eventType.Hosts = append(eventType.Hosts, host)
		}
		return nil
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to create event type"})
		return
	}

	writeJSON(w, http.StatusCreated, eventTypeToResponse(&eventType))
}

// Get handles GET /api/v1/event-types/:id
func (h *EventTypeHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid event type ID"})
		return
	}

	var eventType models.EventType
	if err := h.db.Preload("Hosts").First(&eventType, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Event type not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get event type"})
		return
	}

	writeJSON(w, http.StatusOK, eventTypeToResponse(&eventType))
}

// UpdateEventTypeRequest carries the mutable fairness settings
type UpdateEventTypeRequest struct {
	Title            *string `json:"title,omitempty"`
	Description      *string `json:"description,omitempty"`
	LengthMinutes    *int    `json:"length_minutes,omitempty"`
	WeightsEnabled   *bool   `json:"is_rr_weights_enabled,omitempty"`
	MaxLeadThreshold *int    `json:"max_lead_threshold,omitempty"`
	ClearThreshold   bool    `json:"clear_max_lead_threshold,omitempty"`
}

// Update handles PUT /api/v1/event-types/:id
func (h *EventTypeHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid event type ID"})
		return
	}

	var req UpdateEventTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if req.MaxLeadThreshold != nil && *req.MaxLeadThreshold < 1 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Lead threshold must be at least 1"})
		return
	}

	var eventType models.EventType
	if err := h.db.First(&eventType, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Event type not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get event type"})
		return
	}

	updates := make(map[string]interface{})
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.LengthMinutes != nil {
		updates["length_minutes"] = *req.LengthMinutes
	}
	if req.WeightsEnabled != nil {
		updates["is_rr_weights_enabled"] = *req.WeightsEnabled
	}
	if req.MaxLeadThreshold != nil {
		updates["max_lead_threshold"] = *req.MaxLeadThreshold
	} else if req.ClearThreshold {
		updates["max_lead_threshold"] = nil
	}

	if len(updates) > 0 {
		if err := h.db.Model(&eventType).Updates(updates).Error; err != nil {
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to update event type"})
			return
		}
	}

	if err := h.db.Preload("Hosts").First(&eventType, id).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to reload event type"})
		return
	}

	writeJSON(w, http.StatusOK, eventTypeToResponse(&eventType))
}

// Delete handles DELETE /api/v1/event-types/:id
func (h *EventTypeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid event type ID"})
		return
	}

	result := h.db.Delete(&models.EventType{}, id)
	if result.Error != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to delete event type"})
		return
	}
	if result.RowsAffected == 0 {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Event type not found"})
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Event type deleted"})
}
