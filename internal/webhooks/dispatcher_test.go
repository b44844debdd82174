package webhooks_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/marden/bookpool/internal/database/models"
	"github.com/marden/bookpool/internal/testutil"
	"github.com/marden/bookpool/internal/webhooks"
	"github.com/marden/bookpool/pkg/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newDispatcher(t *testing.T) (*webhooks.Dispatcher, *gorm.DB) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return webhooks.NewDispatcher(db, logger), db
}

func createSubscription(t *testing.T, db *gorm.DB, url, secret string, triggers ...string) *models.WebhookSubscription {
	t.Helper()

	sub := &models.WebhookSubscription{
		SubscriberURL: url,
		Secret:        secret,
		EventTriggers: models.StringArray(triggers),
		Active:        true,
	}
	require.NoError(t, db.Create(sub).Error)
	return sub
}

func TestDispatch_DeliversSignedPayload(t *testing.T) {
	d, db := newDispatcher(t)
	ctx := testutil.TestContext(t)

	var (
		gotTrigger   string
		gotSignature string
		gotBody      []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTrigger = r.Header.Get("X-Webhook-Trigger")
		gotSignature = r.Header.Get("X-Webhook-Signature")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	createSubscription(t, db, srv.URL, "s3cret", models.TriggerBookingCreated)

	delivered, err := d.Dispatch(ctx, webhooks.Event{
		Trigger: models.TriggerBookingCreated,
		Payload: map[string]string{"booking_uid": "abc"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)

	assert.Equal(t, models.TriggerBookingCreated, gotTrigger)
	assert.True(t, crypto.VerifySignature("s3cret", gotBody, gotSignature))
	assert.Contains(t, string(gotBody), "booking_uid")
}

func TestDispatch_MatchesTriggerAndActive(t *testing.T) {
	d, db := newDispatcher(t)
	ctx := testutil.TestContext(t)

	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	createSubscription(t, db, srv.URL, "a", models.TriggerBookingCreated)
	createSubscription(t, db, srv.URL, "b", models.TriggerBookingCancelled)
	inactive := createSubscription(t, db, srv.URL, "c", models.TriggerBookingCreated)
	require.NoError(t, db.Model(inactive).Update("active", false).Error)

	delivered, err := d.Dispatch(ctx, webhooks.Event{Trigger: models.TriggerBookingCreated})
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
	assert.Equal(t, int64(1), atomic.LoadInt64(&hits))
}

func TestDispatch_ScopesByTeam(t *testing.T) {
	d, db := newDispatcher(t)
	ctx := testutil.TestContext(t)

	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	owner := testutil.CreateTestUser(t, db)
	orgA := testutil.CreateTestOrg(t, db, owner)
	orgB := testutil.CreateTestOrg(t, db, owner)

	subA := createSubscription(t, db, srv.URL, "a", models.TriggerBookingCreated)
	require.NoError(t, db.Model(subA).Update("team_id", orgA.ID).Error)
	subB := createSubscription(t, db, srv.URL, "b", models.TriggerBookingCreated)
	require.NoError(t, db.Model(subB).Update("team_id", orgB.ID).Error)

	delivered, err := d.Dispatch(ctx, webhooks.Event{
		Trigger: models.TriggerBookingCreated,
		TeamID:  &orgA.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
	assert.Equal(t, int64(1), atomic.LoadInt64(&hits))
}

func TestDispatch_SubscriberFailureDoesNotPropagate(t *testing.T) {
	d, db := newDispatcher(t)
	ctx := testutil.TestContext(t)

	var okHits int64
	okSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&okHits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer okSrv.Close()

	failSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failSrv.Close()

	createSubscription(t, db, okSrv.URL, "a", models.TriggerBookingCancelled)
	createSubscription(t, db, failSrv.URL, "b", models.TriggerBookingCancelled)
	createSubscription(t, db, "http://127.0.0.1:1/unreachable", "c", models.TriggerBookingCancelled)

	delivered, err := d.Dispatch(ctx, webhooks.Event{Trigger: models.TriggerBookingCancelled})
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
	assert.Equal(t, int64(1), atomic.LoadInt64(&okHits))
}

func TestDispatch_NoSubscribers(t *testing.T) {
	d, _ := newDispatcher(t)
	ctx := testutil.TestContext(t)

	delivered, err := d.Dispatch(ctx, webhooks.Event{Trigger: models.TriggerOrgCreated})
	require.NoError(t, err)
	assert.Zero(t, delivered)
}
