package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/marden/bookpool/internal/auth"
	"github.com/marden/bookpool/internal/database/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB creates an in-memory SQLite database for testing
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	// Run migrations
	err = db.AutoMigrate(
		&models.User{},
		&models.Team{},
		&models.Membership{},
		&models.Profile{},
		&models.EventType{},
		&models.Host{},
		&models.Booking{},
		&models.Attendee{},
		&models.BookingReference{},
		&models.Schedule{},
		&models.Availability{},
		&models.OrganizationOnboarding{},
		&models.WebhookSubscription{},
		&models.CalendarCredential{},
	)
	if err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

// CleanupTestDB closes the test database connection
func CleanupTestDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	if err != nil {
		t.Logf("warning: failed to get sql.DB: %v", err)
		return
	}
	sqlDB.Close()
}

// CreateTestUser creates a test user
func CreateTestUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()

	hash, err := auth.HashPassword("testpassword123")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	suffix := uuid.New().String()[:8]
	user := &models.User{
		Base: models.Base{
			ID: uuid.New(),
		},
		Email:        "test-" + suffix + "@example.com",
		PasswordHash: hash,
		Name:         "Test User",
		Username:     "test-user-" + suffix,
		TimeZone:     "UTC",
		IsActive:     true,
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}

	return user
}

// CreateTestOrg creates an organization with the given owner
func CreateTestOrg(t *testing.T, db *gorm.DB, owner *models.User) *models.Team {
	t.Helper()

	slug := "test-org-" + uuid.New().String()[:8]
	org := &models.Team{
		Base: models.Base{
			ID: uuid.New(),
		},
		Name:           "Test Organization",
		Slug:           &slug,
		IsOrganization: true,
	}

	if err := db.Create(org).Error; err != nil {
		t.Fatalf("failed to create test organization: %v", err)
	}

	membership := &models.Membership{
		UserID:   owner.ID,
		TeamID:   org.ID,
		Role:     models.RoleOwner,
		Accepted: true,
	}
	if err := db.Create(membership).Error; err != nil {
		t.Fatalf("failed to create owner membership: %v", err)
	}

	return org
}

// CreateTestTeam creates a team under an organization
func CreateTestTeam(t *testing.T, db *gorm.DB, org *models.Team, name string) *models.Team {
	t.Helper()

	slug := name + "-" + uuid.New().String()[:8]
	team := &models.Team{
		Base: models.Base{
			ID: uuid.New(),
		},
		Name: name,
		Slug: &slug,
	}
	if org != nil {
		team.ParentID = &org.ID
	}

	if err := db.Create(team).Error; err != nil {
		t.Fatalf("failed to create test team: %v", err)
	}

	return team
}

// CreateTestEventType creates a round-robin event type on a team
func CreateTestEventType(t *testing.T, db *gorm.DB, team *models.Team, weightsEnabled bool, maxLeadThreshold *int) *models.EventType {
	t.Helper()

	et := &models.EventType{
		Base: models.Base{
			ID: uuid.New(),
		},
		Title:              "Intro Call",
		Slug:               "intro-call-" + uuid.New().String()[:8],
		LengthMinutes:      30,
		SchedulingType:     models.SchedulingRoundRobin,
		IsRRWeightsEnabled: weightsEnabled,
		MaxLeadThreshold:   maxLeadThreshold,
	}
	if team != nil {
		et.TeamID = &team.ID
	}

	if err := db.Create(et).Error; err != nil {
		t.Fatalf("failed to create test event type: %v", err)
	}

	return et
}

// CreateTestHost adds a user to an event type's round-robin pool
func CreateTestHost(t *testing.T, db *gorm.DB, et *models.EventType, user *models.User, weight *int) *models.Host {
	t.Helper()

	host := &models.Host{
		Base: models.Base{
			ID: uuid.New(),
		},
		EventTypeID: et.ID,
		UserID:      user.ID,
		Weight:      weight,
	}

	if err := db.Create(host).Error; err != nil {
		t.Fatalf("failed to create test host: %v", err)
	}

	return host
}

// CreateTestBooking creates an accepted booking assigned to a host user
func CreateTestBooking(t *testing.T, db *gorm.DB, et *models.EventType, user *models.User, start time.Time) *models.Booking {
	t.Helper()

	booking := &models.Booking{
		Base: models.Base{
			ID: uuid.New(),
		},
		UID:         uuid.New().String(),
		EventTypeID: et.ID,
		UserID:      &user.ID,
		Title:       "Test Booking",
		Status:      models.BookingStatusAccepted,
		StartTime:   start,
		EndTime:     start.Add(30 * time.Minute),
	}

	if err := db.Create(booking).Error; err != nil {
		t.Fatalf("failed to create test booking: %v", err)
	}

	return booking
}

// CreateTestOnboarding creates a pending organization onboarding record
func CreateTestOnboarding(t *testing.T, db *gorm.DB, ownerEmail, slug string) *models.OrganizationOnboarding {
	t.Helper()

	onboarding := &models.OrganizationOnboarding{
		Base: models.Base{
			ID: uuid.New(),
		},
		Name:           "Test Org",
		Slug:           slug,
		OrgOwnerEmail:  ownerEmail,
		Seats:          5,
		PricePerSeat:   1500,
		BillingPeriod:  models.BillingMonthly,
		InvitedMembers: "[]",
		Teams:          "[]",
	}

	if err := db.Create(onboarding).Error; err != nil {
		t.Fatalf("failed to create test onboarding: %v", err)
	}

	return onboarding
}

// CreateTestJWTService creates a JWT service for testing
func CreateTestJWTService() *auth.JWTService {
	return auth.NewJWTService("test-secret-key-for-testing", 24*time.Hour)
}

// GenerateTestToken generates a valid JWT token for the given user
func GenerateTestToken(t *testing.T, jwtService *auth.JWTService, user *models.User) string {
	t.Helper()

	token, err := jwtService.GenerateToken(user.ID, user.Email)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}

	return token
}

// AuthenticatedRequest creates an HTTP request with authentication
func AuthenticatedRequest(t *testing.T, method, path string, body interface{}, token string) *http.Request {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req
}

// UnauthenticatedRequest creates an HTTP request without authentication
func UnauthenticatedRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	return AuthenticatedRequest(t, method, path, body, "")
}

// AssertStatus checks if the response has the expected status code
func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if rr.Code != expected {
		t.Errorf("expected status %d, got %d. Body: %s", expected, rr.Code, rr.Body.String())
	}
}

// ParseJSONResponse parses the response body into the given struct
func ParseJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse response body: %v. Body: %s", err, rr.Body.String())
	}
}

// TestContext creates a context with a timeout for tests
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestSetup holds all the common test dependencies
type TestSetup struct {
	DB         *gorm.DB
	JWTService *auth.JWTService
	User       *models.User
	Org        *models.Team
	Token      string
}

// NewTestContext creates a complete test setup with DB, user, org, and token
func NewTestContext(t *testing.T) *TestSetup {
	t.Helper()

	db := SetupTestDB(t)
	jwtService := CreateTestJWTService()
	user := CreateTestUser(t, db)
	org := CreateTestOrg(t, db, user)
	token := GenerateTestToken(t, jwtService, user)

	return &TestSetup{
		DB:         db,
		JWTService: jwtService,
		User:       user,
		Org:        org,
		Token:      token,
	}
}

// Cleanup closes the test database
func (ts *TestSetup) Cleanup() {
	if ts.DB != nil {
		sqlDB, err := ts.DB.DB()
		if err == nil {
			sqlDB.Close()
		}
	}
}
