package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/marden/bookpool/internal/api/dto"
	"github.com/marden/bookpool/internal/database/models"
	"github.com/marden/bookpool/internal/onboarding"
	"github.com/marden/bookpool/pkg/crypto"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	billingSignatureHeader = "X-Billing-Signature"
	eventPaymentSucceeded  = "payment.succeeded"

	// Processed event ids are remembered long enough to cover the billing
	// provider's redelivery window.
	billingDedupeTTL = 24 * time.Hour
)

// BillingHandler receives payment confirmations from the billing provider
// and finalizes the paid onboarding. Deliveries are at-least-once: event
// ids are deduplicated in Redis and the finalizer itself is idempotent.
type BillingHandler struct {
	db        *gorm.DB
	redis     *redis.Client
	logger    *slog.Logger
	finalizer *onboarding.Finalizer
	secret    string
}

func NewBillingHandler(db *gorm.DB, rdb *redis.Client, logger *slog.Logger, f *onboarding.Finalizer, secret string) *BillingHandler {
	return &BillingHandler{
		db:        db,
		redis:     rdb,
		logger:    logger,
		finalizer: f,
		secret:    secret,
	}
}

// BillingEvent is the provider's webhook envelope
type BillingEvent struct {
	EventID string           `json:"event_id"`
	Type    string           `json:"type"`
	Data    BillingEventData `json:"data"`
}

type BillingEventData struct {
	OnboardingID   string `json:"onboarding_id"`
	SubscriptionID string `json:"subscription_id"`
}

// Webhook handles POST /billing/webhook
func (h *BillingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Failed to read body"})
		return
	}

	signature := r.Header.Get(billingSignatureHeader)
	if signature == "" || !crypto.VerifySignature(h.secret, body, signature) {
		writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "Invalid signature"})
		return
	}

	var event BillingEvent
	if err := json.Unmarshal(body, &event); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid event payload"})
		return
	}

	if event.Type != eventPaymentSucceeded {
		// Other event types are acknowledged and ignored.
		writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Ignored"})
		return
	}

	if event.EventID == "" || event.Data.OnboardingID == "" {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Missing event or onboarding id"})
		return
	}

	if h.redis != nil {
		fresh, err := h.redis.SetNX(r.Context(), "billing:event:"+event.EventID, 1, billingDedupeTTL).Result()
		if err != nil {
			h.logger.Warn("billing dedupe check failed", "event_id", event.EventID, "error", err)
			// Fall through; the finalizer tolerates replays.
		} else if !fresh {
			writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Already processed"})
			return
		}
	}

	onboardingID, err := uuid.Parse(event.Data.OnboardingID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid onboarding id"})
		return
	}

	var ob models.OrganizationOnboarding
	if err := h.db.WithContext(r.Context()).First(&ob, onboardingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Onboarding not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to load onboarding"})
		return
	}

	if ob.IsComplete {
		writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Already finalized"})
		return
	}

	// Record the paid subscription before finalizing so the periodic sweep
	// picks this row up even when finalization fails on its first step.
	if event.Data.SubscriptionID != "" && ob.PaymentSubscriptionID == "" {
		if err := h.db.WithContext(r.Context()).Model(&ob).
			Update("payment_subscription_id", event.Data.SubscriptionID).Error; err != nil {
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to record payment"})
			return
		}
		ob.PaymentSubscriptionID = event.Data.SubscriptionID
	}

	_, _, err = h.finalizer.CreateOrganizationFromOnboarding(r.Context(), onboarding.Input{
		Onboarding:            &ob,
		PaymentSubscriptionID: event.Data.SubscriptionID,
	})
	if err != nil {
		// Release the dedupe key so the provider's redelivery is retried,
		// not swallowed as already processed.
		if h.redis != nil {
			if delErr := h.redis.Del(r.Context(), "billing:event:"+event.EventID).Err(); delErr != nil {
				h.logger.Warn("releasing billing dedupe key failed", "event_id", event.EventID, "error", delErr)
			}
		}
		// Non-200 asks the provider to redeliver; the sweep also retries.
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Finalization failed"})
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Organization created"})
}
