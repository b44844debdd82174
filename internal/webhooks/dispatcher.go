package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/marden/bookpool/internal/database/models"
	"github.com/marden/bookpool/pkg/crypto"
	"gorm.io/gorm"
)

const (
	signatureHeader = "X-Webhook-Signature"
	triggerHeader   = "X-Webhook-Trigger"

	deliveryTimeout = 10 * time.Second
)

// Event is one occurrence to fan out to matching subscriptions. TeamID and
// UserID scope which subscriptions receive it; both nil means every active
// subscription with a matching trigger.
type Event struct {
	Trigger string      `json:"trigger"`
	TeamID  *uuid.UUID  `json:"team_id,omitempty"`
	UserID  *uuid.UUID  `json:"user_id,omitempty"`
	Payload interface{} `json:"payload"`
}

// Dispatcher delivers events to webhook subscribers. Deliveries run
// concurrently and individual subscriber failures are logged, never
// propagated: a broken subscriber must not block anyone else.
type Dispatcher struct {
	db     *gorm.DB
	logger *slog.Logger
	client *http.Client
}

func NewDispatcher(db *gorm.DB, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		db:     db,
		logger: logger,
		client: &http.Client{Timeout: deliveryTimeout},
	}
}

// Dispatch fans the event out to all matching active subscriptions and
// returns how many deliveries succeeded.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) (int, error) {
	subs, err := d.subscriptionsFor(ctx, event)
	if err != nil {
		return 0, fmt.Errorf("loading subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return 0, nil
	}

	body, err := json.Marshal(map[string]interface{}{
		"trigger":    event.Trigger,
		"created_at": time.Now().UTC().Format(time.RFC3339),
		"payload":    event.Payload,
	})
	if err != nil {
		return 0, fmt.Errorf("encoding event payload: %w", err)
	}

	var (
		wg        sync.WaitGroup
		delivered int64
	)
	for _, sub := range subs {
		wg.Add(1)
		go func(sub models.WebhookSubscription) {
			defer wg.Done()
			if err := d.deliver(ctx, &sub, event.Trigger, body); err != nil {
				d.logger.Warn("webhook delivery failed",
					"subscription_id", sub.ID,
					"url", sub.SubscriberURL,
					"trigger", event.Trigger,
					"error", err,
				)
				return
			}
			atomic.AddInt64(&delivered, 1)
		}(sub)
	}
	wg.Wait()

	d.logger.Info("webhook fan-out complete",
		"trigger", event.Trigger,
		"subscribers", len(subs),
		"delivered", delivered,
	)
	return int(delivered), nil
}

func (d *Dispatcher) subscriptionsFor(ctx context.Context, event Event) ([]models.WebhookSubscription, error) {
	query := d.db.WithContext(ctx).Where("active = ?", true)
	switch {
	case event.TeamID != nil && event.UserID != nil:
		query = query.Where("team_id = ? OR user_id = ?", *event.TeamID, *event.UserID)
	case event.TeamID != nil:
		query = query.Where("team_id = ?", *event.TeamID)
	case event.UserID != nil:
		query = query.Where("user_id = ?", *event.UserID)
	}

	var all []models.WebhookSubscription
	if err := query.Find(&all).Error; err != nil {
		return nil, err
	}

	// Trigger lists are stored denormalized; match in memory.
	matched := all[:0]
	for _, sub := range all {
		for _, t := range sub.EventTriggers {
			if t == event.Trigger {
				matched = append(matched, sub)
				break
			}
		}
	}
	return matched, nil
}

func (d *Dispatcher) deliver(ctx context.Context, sub *models.WebhookSubscription, trigger string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.SubscriberURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(triggerHeader, trigger)
	req.Header.Set(signatureHeader, crypto.SignPayload(sub.Secret, body))

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("subscriber returned %d", resp.StatusCode)
	}
	return nil
}
