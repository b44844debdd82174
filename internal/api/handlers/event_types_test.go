package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/marden/bookpool/internal/api/handlers"
	"github.com/marden/bookpool/internal/api/middleware"
	"github.com/marden/bookpool/internal/testutil"
	"github.com/stretchr/testify/assert"
)

func setupEventTypeTestRouter(t *testing.T) (*chi.Mux, *testutil.TestSetup) {
	tc := testutil.NewTestContext(t)

	handler := handlers.NewEventTypeHandler(tc.DB)

	r := chi.NewRouter()
	r.Use(middleware.Auth(tc.JWTService))
	r.Route("/api/v1/event-types", func(r chi.Router) {
		r.Get("/", handler.List)
		r.Post("/", handler.Create)
		r.Get("/{id}", handler.Get)
		r.Put("/{id}", handler.Update)
		r.Delete("/{id}", handler.Delete)
	})

	return r, tc
}

func TestEventTypeHandler_Create(t *testing.T) {
	router, tc := setupEventTypeTestRouter(t)
	defer tc.Cleanup()

	host := testutil.CreateTestUser(t, tc.DB)

	tests := []struct {
		name       string
		body       map[string]interface{}
		wantStatus int
	}{
		{
			name: "round robin with hosts and threshold",
			body: map[string]interface{}{
				"title":                 "Intro Call",
				"team_id":               tc.Org.ID.String(),
				"is_rr_weights_enabled": true,
				"max_lead_threshold":    5,
				"hosts": []map[string]interface{}{
					{"user_id": host.ID.String(), "weight": 150},
				},
			},
			wantStatus: http.StatusCreated,
		},
		{
			name: "minimal event type",
			body: map[string]interface{}{
				"title": "Quick Chat",
			},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "missing title",
			body:       map[string]interface{}{"slug": "no-title"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "invalid scheduling type",
			body: map[string]interface{}{
				"title":           "Bad",
				"scheduling_type": "lottery",
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "zero threshold rejected",
			body: map[string]interface{}{
				"title":              "Bad Threshold",
				"max_lead_threshold": 0,
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "invalid host id",
			body: map[string]interface{}{
				"title": "Bad Host",
				"hosts": []map[string]interface{}{
					{"user_id": "not-a-uuid"},
				},
			},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testutil.AuthenticatedRequest(t, "POST", "/api/v1/event-types", tt.body, tc.Token)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code, "Body: %s", rr.Body.String())

			if tt.wantStatus == http.StatusCreated {
				var resp handlers.EventTypeResponse
				testutil.ParseJSONResponse(t, rr, &resp)
				assert.NotEmpty(t, resp.ID)
				assert.NotEmpty(t, resp.Slug)
			}
		})
	}
}

func TestEventTypeHandler_UpdateThreshold(t *testing.T) {
	router, tc := setupEventTypeTestRouter(t)
	defer tc.Cleanup()

	threshold := 3
	et := testutil.CreateTestEventType(t, tc.DB, tc.Org, false, &threshold)

	// Raise the threshold.
	req := testutil.AuthenticatedRequest(t, "PUT", "/api/v1/event-types/"+et.ID.String(),
		map[string]interface{}{"max_lead_threshold": 7}, tc.Token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	testutil.AssertStatus(t, rr, http.StatusOK)

	var resp handlers.EventTypeResponse
	testutil.ParseJSONResponse(t, rr, &resp)
	if assert.NotNil(t, resp.MaxLeadThreshold) {
		assert.Equal(t, 7, *resp.MaxLeadThreshold)
	}

	// Clear it entirely; the filter is then disabled.
	req = testutil.AuthenticatedRequest(t, "PUT", "/api/v1/event-types/"+et.ID.String(),
		map[string]interface{}{"clear_max_lead_threshold": true}, tc.Token)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	testutil.AssertStatus(t, rr, http.StatusOK)

	var cleared handlers.EventTypeResponse
	testutil.ParseJSONResponse(t, rr, &cleared)
	assert.Nil(t, cleared.MaxLeadThreshold)
}

func TestEventTypeHandler_GetAndDelete(t *testing.T) {
	router, tc := setupEventTypeTestRouter(t)
	defer tc.Cleanup()

	et := testutil.CreateTestEventType(t, tc.DB, tc.Org, false, nil)

	req := testutil.AuthenticatedRequest(t, "GET", "/api/v1/event-types/"+et.ID.String(), nil, tc.Token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	testutil.AssertStatus(t, rr, http.StatusOK)

	req = testutil.AuthenticatedRequest(t, "DELETE", "/api/v1/event-types/"+et.ID.String(), nil, tc.Token)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	testutil.AssertStatus(t, rr, http.StatusOK)

	req = testutil.AuthenticatedRequest(t, "GET", "/api/v1/event-types/"+et.ID.String(), nil, tc.Token)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	testutil.AssertStatus(t, rr, http.StatusNotFound)
}

func TestEventTypeHandler_RequiresAuth(t *testing.T) {
	router, tc := setupEventTypeTestRouter(t)
	defer tc.Cleanup()

	req := testutil.UnauthenticatedRequest(t, "GET", "/api/v1/event-types", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	testutil.AssertStatus(t, rr, http.StatusUnauthorized)
}
