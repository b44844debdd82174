package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/marden/bookpool/internal/api/dto"
	"github.com/marden/bookpool/internal/api/middleware"
	"github.com/marden/bookpool/internal/database/models"
	"gorm.io/gorm"
)

type WebhookHandler struct {
	db *gorm.DB
}

func NewWebhookHandler(db *gorm.DB) *WebhookHandler {
	return &WebhookHandler{db: db}
}

var validTriggers = map[string]bool{
	models.TriggerBookingCreated:   true,
	models.TriggerBookingCancelled: true,
	models.TriggerOrgCreated:       true,
}

// CreateWebhookRequest registers a subscriber URL
type CreateWebhookRequest struct {
	SubscriberURL string   `json:"subscriber_url"`
	Secret        string   `json:"secret"`
	EventTriggers []string `json:"event_triggers"`
	TeamID        string   `json:"team_id,omitempty"`
}

func (r CreateWebhookRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.SubscriberURL == "" {
		errors["subscriber_url"] = "Subscriber URL is required"
	}
	if r.Secret == "" {
		errors["secret"] = "Secret is required"
	}
	if len(r.EventTriggers) == 0 {
		errors["event_triggers"] = "At least one trigger is required"
	}
	for _, t := range r.EventTriggers {
		if !validTriggers[t] {
			errors["event_triggers"] = "Unknown trigger " + t
			break
		}
	}
	if r.TeamID != "" {
		if _, err := uuid.Parse(r.TeamID); err != nil {
			errors["team_id"] = "Invalid team ID"
		}
	}

	return errors
}

// WebhookResponse represents a subscription in API responses
type WebhookResponse struct {
	ID            string   `json:"id"`
	SubscriberURL string   `json:"subscriber_url"`
	EventTriggers []string `json:"event_triggers"`
	TeamID        string   `json:"team_id,omitempty"`
	Active        bool     `json:"active"`
	CreatedAt     string   `json:"created_at"`
}

func webhookToResponse(sub *models.WebhookSubscription) WebhookResponse {
	resp := WebhookResponse{
		ID:            sub.ID.String(),
		SubscriberURL: sub.SubscriberURL,
		EventTriggers: sub.EventTriggers,
		Active:        sub.Active,
		CreatedAt:     sub.CreatedAt.Format(time.RFC3339),
	}
	if sub.TeamID != nil {
		resp.TeamID = sub.TeamID.String()
	}
	return resp
}

// List handles GET /api/v1/webhooks
func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var subs []models.WebhookSubscription
	if err := h.db.
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&subs).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list webhooks"})
		return
	}

	response := make([]WebhookResponse, len(subs))
	for i := range subs {
		response[i] = webhookToResponse(&subs[i])
	}
	writeJSON(w, http.StatusOK, response)
}

// Create handles POST /api/v1/webhooks
func (h *WebhookHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req CreateWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	sub := models.WebhookSubscription{
		UserID:        &userID,
		SubscriberURL: req.SubscriberURL,
		Secret:        req.Secret,
		EventTriggers: models.StringArray(req.EventTriggers),
		Active:        true,
	}
	if req.TeamID != "" {
		teamID, _ := uuid.Parse(req.TeamID)
		sub.TeamID = &teamID
	}

	if err := h.db.Create(&sub).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to create webhook"})
		return
	}

	writeJSON(w, http.StatusCreated, webhookToResponse(&sub))
}

// Delete handles DELETE /api/v1/webhooks/:id
func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid webhook ID"})
		return
	}

	result := h.db.
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&models.WebhookSubscription{})
	if result.Error != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to delete webhook"})
		return
	}
	if result.RowsAffected == 0 {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Webhook not found"})
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Webhook deleted"})
}
