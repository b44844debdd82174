package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/marden/bookpool/internal/api/dto"
	"github.com/marden/bookpool/internal/api/middleware"
	"github.com/marden/bookpool/internal/api/validation"
	"github.com/marden/bookpool/internal/database/models"
	"github.com/marden/bookpool/internal/teams"
	"gorm.io/gorm"
)

type OnboardingHandler struct {
	db *gorm.DB
}

func NewOnboardingHandler(db *gorm.DB) *OnboardingHandler {
	return &OnboardingHandler{db: db}
}

// CreateOnboardingRequest starts an organization onboarding. The
// organization itself is only created once payment is confirmed.
type CreateOnboardingRequest struct {
	Name           string               `json:"name"`
	Slug           string               `json:"slug"`
	OrgOwnerEmail  string               `json:"org_owner_email,omitempty"`
	Seats          int                  `json:"seats"`
	PricePerSeat   int                  `json:"price_per_seat"`
	BillingPeriod  string               `json:"billing_period"`
	IsPlatform     bool                 `json:"is_platform,omitempty"`
	LogoURL        string               `json:"logo_url,omitempty"`
	Bio            string               `json:"bio,omitempty"`
	InvitedMembers []teams.InviteMember `json:"invited_members,omitempty"`
	Teams          []teams.TeamSpec     `json:"teams,omitempty"`
}

func (r CreateOnboardingRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Name == "" {
		errors["name"] = "Name is required"
	}
	if !validation.IsValidSlug(r.Slug) {
		errors["slug"] = "Invalid slug format"
	}
	if r.OrgOwnerEmail != "" && !validation.IsValidEmail(r.OrgOwnerEmail) {
		errors["org_owner_email"] = "Invalid email format"
	}
	if r.Seats < 1 {
		errors["seats"] = "At least one seat is required"
	}
	if r.PricePerSeat < 0 {
		errors["price_per_seat"] = "Price must not be negative"
	}
	switch r.BillingPeriod {
	case models.BillingMonthly, models.BillingAnnually:
	default:
		errors["billing_period"] = "Invalid billing period"
	}
	for _, m := range r.InvitedMembers {
		if !validation.IsValidEmail(m.Email) {
			errors["invited_members"] = "Invalid email for member " + m.Email
			break
		}
	}

	return errors
}

// OnboardingResponse represents an onboarding record in API responses
type OnboardingResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Slug           string `json:"slug"`
	OrgOwnerEmail  string `json:"org_owner_email"`
	Seats          int    `json:"seats"`
	PricePerSeat   int    `json:"price_per_seat"`
	BillingPeriod  string `json:"billing_period"`
	OrganizationID string `json:"organization_id,omitempty"`
	IsComplete     bool   `json:"is_complete"`
	Error          string `json:"error,omitempty"`
	CreatedAt      string `json:"created_at"`
}

func onboardingToResponse(ob *models.OrganizationOnboarding) OnboardingResponse {
	resp := OnboardingResponse{
		ID:            ob.ID.String(),
		Name:          ob.Name,
		Slug:          ob.Slug,
		OrgOwnerEmail: ob.OrgOwnerEmail,
		Seats:         ob.Seats,
		PricePerSeat:  ob.PricePerSeat,
		BillingPeriod: ob.BillingPeriod,
		IsComplete:    ob.IsComplete,
		Error:         ob.Error,
		CreatedAt:     ob.CreatedAt.Format(time.RFC3339),
	}
	if ob.OrganizationID != nil {
		resp.OrganizationID = ob.OrganizationID.String()
	}
	return resp
}

// Create handles POST /api/v1/onboarding
func (h *OnboardingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateOnboardingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	ownerEmail := req.OrgOwnerEmail
	if ownerEmail == "" {
		ownerEmail = middleware.GetUserEmail(r.Context())
	}

	// The owner account must exist before payment; the finalizer treats a
	// missing owner as fatal.
	var owner models.User
	if err := h.db.Where("email = ?", ownerEmail).First(&owner).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Owner account does not exist"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to resolve owner"})
		return
	}

	// One in-flight onboarding per slug.
	var existing models.OrganizationOnboarding
	err := h.db.
		Where("slug = ? AND is_complete = ?", req.Slug, false).
		First(&existing).Error
	if err == nil {
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "Onboarding already in progress for this slug"})
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to check existing onboarding"})
		return
	}

	membersJSON, err := json.Marshal(req.InvitedMembers)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid invited members"})
		return
	}
	teamsJSON, err := json.Marshal(req.Teams)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid teams"})
		return
	}

	onboardingRecord := models.OrganizationOnboarding{
		Name:           req.Name,
		Slug:           req.Slug,
		OrgOwnerEmail:  ownerEmail,
		Seats:          req.Seats,
		PricePerSeat:   req.PricePerSeat,
		BillingPeriod:  req.BillingPeriod,
		IsPlatform:     req.IsPlatform,
		LogoURL:        req.LogoURL,
		Bio:            req.Bio,
		InvitedMembers: string(membersJSON),
		Teams:          string(teamsJSON),
	}

	if err := h.db.Create(&onboardingRecord).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to create onboarding"})
		return
	}

	writeJSON(w, http.StatusCreated, onboardingToResponse(&onboardingRecord))
}

// Get handles GET /api/v1/onboarding/:id
func (h *OnboardingHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid onboarding ID"})
		return
	}

	var ob models.OrganizationOnboarding
	if err := h.db.First(&ob, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Onboarding not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get onboarding"})
		return
	}

	writeJSON(w, http.StatusOK, onboardingToResponse(&ob))
}
