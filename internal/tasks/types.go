package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Task type names
const (
	TypeEmailSend       = "email:send"
	TypeWebhookDeliver  = "webhook:deliver"
	TypeOnboardingSweep = "onboarding:sweep"
)

// Enqueuer is the subset of asynq.Client used by producers. Services take
// the interface so tests can capture enqueued tasks without Redis.
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Discard drops every task. Stands in for the real client when Redis is
// unavailable so producers keep working without side effects.
type Discard struct{}

var _ Enqueuer = Discard{}

func (Discard) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	return &asynq.TaskInfo{}, nil
}

// EmailSendPayload is the payload for TypeEmailSend. Booking lifecycle
// emails are sent from the worker, not inline with the request.
type EmailSendPayload struct {
	To        string `json:"to"`
	Title     string `json:"title"`
	HostName  string `json:"host_name"`
	StartTime string `json:"start_time"`
	Cancelled bool   `json:"cancelled"`
}

// NewEmailSendTask creates a task to send a booking email
func NewEmailSendTask(payload EmailSendPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling email payload: %w", err)
	}
	return asynq.NewTask(TypeEmailSend, data, asynq.Queue("default"), asynq.MaxRetry(5)), nil
}

// WebhookDeliverPayload is the payload for TypeWebhookDeliver. The worker
// fans the event out to every matching subscription.
type WebhookDeliverPayload struct {
	Trigger string          `json:"trigger"`
	TeamID  *uuid.UUID      `json:"team_id,omitempty"`
	UserID  *uuid.UUID      `json:"user_id,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// NewWebhookDeliverTask creates a task to fan out a webhook event
func NewWebhookDeliverTask(payload WebhookDeliverPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling webhook payload: %w", err)
	}
	return asynq.NewTask(TypeWebhookDeliver, data, asynq.Queue("critical"), asynq.MaxRetry(10)), nil
}

// NewOnboardingSweepTask creates a task that retries paid but unfinalized
// organization onboardings. Scheduled periodically by the worker.
func NewOnboardingSweepTask() *asynq.Task {
	return asynq.NewTask(TypeOnboardingSweep, nil, asynq.Queue("low"), asynq.MaxRetry(0))
}
