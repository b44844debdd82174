package handlers_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/marden/bookpool/internal/api/handlers"
	"github.com/marden/bookpool/internal/bookings"
	"github.com/marden/bookpool/internal/calendars"
	"github.com/marden/bookpool/internal/database/models"
	"github.com/marden/bookpool/internal/ranking"
	"github.com/marden/bookpool/internal/testutil"
	"github.com/stretchr/testify/assert"
)

type stubEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
}

func (s *stubEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{}, nil
}

func setupBookingTestRouter(t *testing.T) (*chi.Mux, *testutil.TestSetup, *stubEnqueuer) {
	tc := testutil.NewTestContext(t)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	queue := &stubEnqueuer{}

	registry := calendars.NewRegistry()
	registry.Register(models.ReferenceGoogleCalendar, calendars.NewNoop(logger))
	registry.Register(models.ReferenceVideoMeeting, calendars.NewNoop(logger))

	service := bookings.NewService(tc.DB, logger, ranking.NewService(tc.DB, logger), queue, registry)
	handler := handlers.NewBookingHandler(tc.DB, service)

	r := chi.NewRouter()
	r.Post("/api/v1/bookings", handler.Create)
	r.Get("/api/v1/bookings/{uid}", handler.Get)
	r.Post("/api/v1/bookings/{uid}/cancel", handler.Cancel)
	r.Get("/api/v1/bookings", handler.List)

	return r, tc, queue
}

func TestBookingHandler_Create(t *testing.T) {
	router, tc, _ := setupBookingTestRouter(t)
	defer tc.Cleanup()

	host := testutil.CreateTestUser(t, tc.DB)
	et := testutil.CreateTestEventType(t, tc.DB, tc.Org, false, nil)
	testutil.CreateTestHost(t, tc.DB, et, host, nil)

	emptyET := testutil.CreateTestEventType(t, tc.DB, tc.Org, false, nil)

	start := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Hour)

	tests := []struct {
		name       string
		body       map[string]interface{}
		wantStatus int
	}{
		{
			name: "valid booking",
			body: map[string]interface{}{
				"event_type_id": et.ID.String(),
				"start_time":    start.Format(time.RFC3339),
				"end_time":      start.Add(30 * time.Minute).Format(time.RFC3339),
				"attendees": []map[string]interface{}{
					{"email": "guest@example.com", "name": "Guest"},
				},
			},
			wantStatus: http.StatusCreated,
		},
		{
			name: "same slot rejected",
			body: map[string]interface{}{
				"event_type_id": et.ID.String(),
				"start_time":    start.Format(time.RFC3339),
				"end_time":      start.Add(30 * time.Minute).Format(time.RFC3339),
				"attendees": []map[string]interface{}{
					{"email": "other@example.com"},
				},
			},
			wantStatus: http.StatusConflict,
		},
		{
			name: "no attendees",
			body: map[string]interface{}{
				"event_type_id": et.ID.String(),
				"start_time":    start.Add(2 * time.Hour).Format(time.RFC3339),
				"end_time":      start.Add(2*time.Hour + 30*time.Minute).Format(time.RFC3339),
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "end before start",
			body: map[string]interface{}{
				"event_type_id": et.ID.String(),
				"start_time":    start.Add(4 * time.Hour).Format(time.RFC3339),
				"end_time":      start.Add(3 * time.Hour).Format(time.RFC3339),
				"attendees": []map[string]interface{}{
					{"email": "guest@example.com"},
				},
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "no hosts in pool",
			body: map[string]interface{}{
				"event_type_id": emptyET.ID.String(),
				"start_time":    start.Add(6 * time.Hour).Format(time.RFC3339),
				"end_time":      start.Add(6*time.Hour + 30*time.Minute).Format(time.RFC3339),
				"attendees": []map[string]interface{}{
					{"email": "guest@example.com"},
				},
			},
			wantStatus: http.StatusConflict,
		},
		{
			name: "unknown event type",
			body: map[string]interface{}{
				"event_type_id": "11111111-2222-3333-4444-555555555555",
				"start_time":    start.Add(8 * time.Hour).Format(time.RFC3339),
				"end_time":      start.Add(8*time.Hour + 30*time.Minute).Format(time.RFC3339),
				"attendees": []map[string]interface{}{
					{"email": "guest@example.com"},
				},
			},
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testutil.UnauthenticatedRequest(t, "POST", "/api/v1/bookings", tt.body)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code, "Body: %s", rr.Body.String())

			if tt.wantStatus == http.StatusCreated {
				var resp handlers.BookingResponse
				testutil.ParseJSONResponse(t, rr, &resp)
				assert.NotEmpty(t, resp.UID)
				assert.Equal(t, models.BookingStatusAccepted, resp.Status)
				assert.Equal(t, host.ID.String(), resp.HostID)
			}
		})
	}
}

func TestBookingHandler_GetAndCancel(t *testing.T) {
	router, tc, queue := setupBookingTestRouter(t)
	defer tc.Cleanup()

	host := testutil.CreateTestUser(t, tc.DB)
	et := testutil.CreateTestEventType(t, tc.DB, tc.Org, false, nil)
	booking := testutil.CreateTestBooking(t, tc.DB, et, host, time.Now().UTC().Add(48*time.Hour))

	req := testutil.UnauthenticatedRequest(t, "GET", "/api/v1/bookings/"+booking.UID, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	testutil.AssertStatus(t, rr, http.StatusOK)

	req = testutil.UnauthenticatedRequest(t, "POST", "/api/v1/bookings/"+booking.UID+"/cancel",
		map[string]interface{}{"reason": "schedule change"})
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	testutil.AssertStatus(t, rr, http.StatusOK)

	var resp handlers.BookingResponse
	testutil.ParseJSONResponse(t, rr, &resp)
	assert.Equal(t, models.BookingStatusCancelled, resp.Status)
	assert.Equal(t, "schedule change", resp.CancellationReason)
	assert.NotEmpty(t, queue.tasks)

	// Unknown UID is a 404.
	req = testutil.UnauthenticatedRequest(t, "POST", "/api/v1/bookings/nope/cancel", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	testutil.AssertStatus(t, rr, http.StatusNotFound)
}

func TestBookingHandler_List(t *testing.T) {
	router, tc, _ := setupBookingTestRouter(t)
	defer tc.Cleanup()

	host := testutil.CreateTestUser(t, tc.DB)
	et := testutil.CreateTestEventType(t, tc.DB, tc.Org, false, nil)
	base := time.Now().UTC().Add(72 * time.Hour)
	for i := 0; i < 3; i++ {
		testutil.CreateTestBooking(t, tc.DB, et, host, base.Add(time.Duration(i)*time.Hour))
	}

	req := testutil.UnauthenticatedRequest(t, "GET", "/api/v1/bookings?event_type_id="+et.ID.String(), nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	testutil.AssertStatus(t, rr, http.StatusOK)

	var resp struct {
		Total int64 `json:"total"`
	}
	testutil.ParseJSONResponse(t, rr, &resp)
	assert.Equal(t, int64(3), resp.Total)
}
