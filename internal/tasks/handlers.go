package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/marden/bookpool/internal/database/models"
	"github.com/marden/bookpool/internal/mailer"
	"github.com/marden/bookpool/internal/onboarding"
	"github.com/marden/bookpool/internal/webhooks"
	"gorm.io/gorm"
)

// Handler processes background tasks.
type Handler struct {
	db         *gorm.DB
	logger     *slog.Logger
	mailer     mailer.Mailer
	dispatcher *webhooks.Dispatcher
	finalizer  *onboarding.Finalizer
}

func NewHandler(db *gorm.DB, logger *slog.Logger, m mailer.Mailer, d *webhooks.Dispatcher, f *onboarding.Finalizer) *Handler {
	return &Handler{
		db:         db,
		logger:     logger,
		mailer:     m,
		dispatcher: d,
		finalizer:  f,
	}
}

// RegisterHandlers registers all task handlers with the mux
func (h *Handler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeEmailSend, h.HandleEmailSend)
	mux.HandleFunc(TypeWebhookDeliver, h.HandleWebhookDeliver)
	mux.HandleFunc(TypeOnboardingSweep, h.HandleOnboardingSweep)
}

// HandleEmailSend sends a booking lifecycle email.
func (h *Handler) HandleEmailSend(ctx context.Context, t *asynq.Task) error {
	var payload EmailSendPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshaling email payload: %w", err)
	}

	err := h.mailer.SendBookingEmail(ctx, mailer.BookingEmail{
		To:        payload.To,
		Title:     payload.Title,
		HostName:  payload.HostName,
		StartTime: payload.StartTime,
		Cancelled: payload.Cancelled,
	})
	if err != nil {
		return fmt.Errorf("sending booking email to %s: %w", payload.To, err)
	}

	h.logger.Info("booking email sent", "to", payload.To, "cancelled", payload.Cancelled)
	return nil
}

// HandleWebhookDeliver fans an event out to matching subscriptions.
// Individual subscriber failures are absorbed by the dispatcher; only
// infrastructure errors cause a retry.
func (h *Handler) HandleWebhookDeliver(ctx context.Context, t *asynq.Task) error {
	var payload WebhookDeliverPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshaling webhook payload: %w", err)
	}

	var body interface{}
	if len(payload.Payload) > 0 {
		if err := json.Unmarshal(payload.Payload, &body); err != nil {
			return fmt.Errorf("unmarshaling event body: %w", err)
		}
	}

	_, err := h.dispatcher.Dispatch(ctx, webhooks.Event{
		Trigger: payload.Trigger,
		TeamID:  payload.TeamID,
		UserID:  payload.UserID,
		Payload: body,
	})
	return err
}

// HandleOnboardingSweep retries paid onboardings that never finalized,
// typically because a webhook attempt hit a transient failure.
func (h *Handler) HandleOnboardingSweep(ctx context.Context, t *asynq.Task) error {
	var pending []models.OrganizationOnboarding
	err := h.db.WithContext(ctx).
		Where("is_complete = ? AND payment_subscription_id <> ''", false).
		Find(&pending).Error
	if err != nil {
		return fmt.Errorf("loading pending onboardings: %w", err)
	}

	if len(pending) == 0 {
		return nil
	}

	h.logger.Info("sweeping unfinalized onboardings", "count", len(pending))

	var failed int
	for i := range pending {
		ob := pending[i]
		_, _, err := h.finalizer.CreateOrganizationFromOnboarding(ctx, onboarding.Input{
			Onboarding:            &ob,
			PaymentSubscriptionID: ob.PaymentSubscriptionID,
		})
		if err != nil {
			// Already logged by the finalizer; keep sweeping the rest.
			failed++
		}
	}

	h.logger.Info("onboarding sweep complete",
		"total", len(pending),
		"failed", failed,
	)
	return nil
}
