package tasks_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/marden/bookpool/internal/database/models"
	"github.com/marden/bookpool/internal/mailer"
	"github.com/marden/bookpool/internal/onboarding"
	"github.com/marden/bookpool/internal/provision"
	"github.com/marden/bookpool/internal/tasks"
	"github.com/marden/bookpool/internal/teams"
	"github.com/marden/bookpool/internal/testutil"
	"github.com/marden/bookpool/internal/webhooks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type capturingMailer struct {
	bookingEmails []mailer.BookingEmail
}

func (m *capturingMailer) SendOrganizationCreationEmail(ctx context.Context, email mailer.OrganizationCreationEmail) error {
	return nil
}

func (m *capturingMailer) SendTeamInviteEmail(ctx context.Context, email mailer.TeamInviteEmail) error {
	return nil
}

func (m *capturingMailer) SendBookingEmail(ctx context.Context, email mailer.BookingEmail) error {
	m.bookingEmails = append(m.bookingEmails, email)
	return nil
}

type noopProvisioner struct{}

func (noopProvisioner) SetupDomain(ctx context.Context, input provision.SetupDomainInput) error {
	return nil
}

func newHandler(t *testing.T) (*tasks.Handler, *gorm.DB, *capturingMailer) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := &capturingMailer{}
	dispatcher := webhooks.NewDispatcher(db, logger)
	teamSvc := teams.NewService(db, logger, m)
	finalizer := onboarding.NewFinalizer(db, logger, m, noopProvisioner{}, teamSvc)

	return tasks.NewHandler(db, logger, m, dispatcher, finalizer), db, m
}

func TestHandleEmailSend(t *testing.T) {
	h, _, m := newHandler(t)
	ctx := testutil.TestContext(t)

	task, err := tasks.NewEmailSendTask(tasks.EmailSendPayload{
		To:        "guest@example.com",
		Title:     "Intro Call",
		Cancelled: true,
	})
	require.NoError(t, err)

	require.NoError(t, h.HandleEmailSend(ctx, task))
	require.Len(t, m.bookingEmails, 1)
	assert.Equal(t, "guest@example.com", m.bookingEmails[0].To)
	assert.True(t, m.bookingEmails[0].Cancelled)
}

func TestHandleEmailSend_BadPayload(t *testing.T) {
	h, _, _ := newHandler(t)
	ctx := testutil.TestContext(t)

	task := asynq.NewTask(tasks.TypeEmailSend, []byte("{not json"))
	require.Error(t, h.HandleEmailSend(ctx, task))
}

func TestHandleWebhookDeliver(t *testing.T) {
	h, db, _ := newHandler(t)
	ctx := testutil.TestContext(t)

	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sub := &models.WebhookSubscription{
		SubscriberURL: srv.URL,
		Secret:        "s",
		EventTriggers: models.StringArray{models.TriggerBookingCreated},
		Active:        true,
	}
	require.NoError(t, db.Create(sub).Error)

	body, _ := json.Marshal(map[string]string{"booking_uid": "abc"})
	task, err := tasks.NewWebhookDeliverTask(tasks.WebhookDeliverPayload{
		Trigger: models.TriggerBookingCreated,
		Payload: body,
	})
	require.NoError(t, err)

	require.NoError(t, h.HandleWebhookDeliver(ctx, task))
	assert.Contains(t, string(gotBody), "booking_uid")
}

func TestHandleOnboardingSweep_FinalizesPaidOnboardings(t *testing.T) {
	h, db, _ := newHandler(t)
	ctx := testutil.TestContext(t)

	owner := testutil.CreateTestUser(t, db)
	ob := testutil.CreateTestOnboarding(t, db, owner.Email, "swept-org")
	require.NoError(t, db.Model(ob).Update("payment_subscription_id", "sub_42").Error)

	// Unpaid onboardings are left alone.
	other := testutil.CreateTestUser(t, db)
	testutil.CreateTestOnboarding(t, db, other.Email, "unpaid-org")

	require.NoError(t, h.HandleOnboardingSweep(ctx, tasks.NewOnboardingSweepTask()))

	var swept models.OrganizationOnboarding
	require.NoError(t, db.First(&swept, ob.ID).Error)
	assert.True(t, swept.IsComplete)
	require.NotNil(t, swept.OrganizationID)

	var unpaidCount int64
	require.NoError(t, db.Model(&models.OrganizationOnboarding{}).
		Where("is_complete = ?", false).
		Count(&unpaidCount).Error)
	assert.Equal(t, int64(1), unpaidCount)
}

func TestHandleOnboardingSweep_KeepsGoingPastFailures(t *testing.T) {
	h, db, _ := newHandler(t)
	ctx := testutil.TestContext(t)

	// This onboarding can never finalize: the owner does not exist.
	broken := testutil.CreateTestOnboarding(t, db, "ghost@example.com", "broken-org")
	require.NoError(t, db.Model(broken).Update("payment_subscription_id", "sub_1").Error)

	owner := testutil.CreateTestUser(t, db)
	ok := testutil.CreateTestOnboarding(t, db, owner.Email, "ok-org")
	require.NoError(t, db.Model(ok).Update("payment_subscription_id", "sub_2").Error)

	// The sweep itself succeeds; failures are recorded per row.
	require.NoError(t, h.HandleOnboardingSweep(ctx, tasks.NewOnboardingSweepTask()))

	var reloadedOK models.OrganizationOnboarding
	require.NoError(t, db.First(&reloadedOK, ok.ID).Error)
	assert.True(t, reloadedOK.IsComplete)

	var reloadedBroken models.OrganizationOnboarding
	require.NoError(t, db.First(&reloadedBroken, broken.ID).Error)
	assert.False(t, reloadedBroken.IsComplete)
	assert.NotEmpty(t, reloadedBroken.Error)
}
