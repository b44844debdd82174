package onboarding_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/marden/bookpool/internal/database/models"
	"github.com/marden/bookpool/internal/mailer"
	"github.com/marden/bookpool/internal/onboarding"
	"github.com/marden/bookpool/internal/provision"
	"github.com/marden/bookpool/internal/teams"
	"github.com/marden/bookpool/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// recordingMailer counts sends so tests can assert exactly-once delivery.
type recordingMailer struct {
	orgEmails    int
	inviteEmails int
}

func (m *recordingMailer) SendOrganizationCreationEmail(ctx context.Context, email mailer.OrganizationCreationEmail) error {
	m.orgEmails++
	return nil
}

func (m *recordingMailer) SendTeamInviteEmail(ctx context.Context, email mailer.TeamInviteEmail) error {
	m.inviteEmails++
	return nil
}

func (m *recordingMailer) SendBookingEmail(ctx context.Context, email mailer.BookingEmail) error {
	return nil
}

type recordingProvisioner struct {
	calls []provision.SetupDomainInput
	err   error
}

func (p *recordingProvisioner) SetupDomain(ctx context.Context, input provision.SetupDomainInput) error {
	p.calls = append(p.calls, input)
	return p.err
}

type finalizerFixture struct {
	db          *gorm.DB
	mailer      *recordingMailer
	provisioner *recordingProvisioner
	finalizer   *onboarding.Finalizer
}

func newFinalizerFixture(t *testing.T) *finalizerFixture {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := &recordingMailer{}
	p := &recordingProvisioner{}
	ts := teams.NewService(db, logger, m)

	return &finalizerFixture{
		db:          db,
		mailer:      m,
		provisioner: p,
		finalizer:   onboarding.NewFinalizer(db, logger, m, p, ts),
	}
}

func TestFinalizer_CreatesOrganization(t *testing.T) {
	fx := newFinalizerFixture(t)
	ctx := testutil.TestContext(t)

	owner := testutil.CreateTestUser(t, fx.db)
	ob := testutil.CreateTestOnboarding(t, fx.db, owner.Email, "acme")
	ob.InvitedMembers = `[{"email":"dev@acme.test","name":"Dev","role":"member"}]`
	ob.Teams = `[{"name":"Sales","slug":"sales"}]`
	require.NoError(t, fx.db.Model(ob).Updates(map[string]interface{}{
		"invited_members": ob.InvitedMembers,
		"teams":           ob.Teams,
	}).Error)

	org, returnedOwner, err := fx.finalizer.CreateOrganizationFromOnboarding(ctx, onboarding.Input{
		Onboarding:            ob,
		PaymentSubscriptionID: "sub_123",
	})
	require.NoError(t, err)
	require.NotNil(t, org)
	require.NotNil(t, org.Slug)
	assert.Equal(t, "acme", *org.Slug)
	assert.True(t, org.IsOrganization)
	assert.Equal(t, owner.ID, returnedOwner.ID)

	// Owner membership and profile exist.
	var membership models.Membership
	require.NoError(t, fx.db.
		Where("user_id = ? AND team_id = ?", owner.ID, org.ID).
		First(&membership).Error)
	assert.Equal(t, models.RoleOwner, membership.Role)
	assert.True(t, membership.Accepted)

	var profile models.Profile
	require.NoError(t, fx.db.
		Where("user_id = ? AND organization_id = ?", owner.ID, org.ID).
		First(&profile).Error)

	// Owner got a default schedule.
	var reloadedOwner models.User
	require.NoError(t, fx.db.First(&reloadedOwner, owner.ID).Error)
	assert.NotNil(t, reloadedOwner.DefaultScheduleID)

	// Invited member has a pending membership.
	var invitee models.User
	require.NoError(t, fx.db.Where("email = ?", "dev@acme.test").First(&invitee).Error)
	var inviteeMembership models.Membership
	require.NoError(t, fx.db.
		Where("user_id = ? AND team_id = ?", invitee.ID, org.ID).
		First(&inviteeMembership).Error)
	assert.False(t, inviteeMembership.Accepted)

	// Team created under the organization.
	var salesTeam models.Team
	require.NoError(t, fx.db.
		Where("parent_id = ? AND slug = ?", org.ID, "sales").
		First(&salesTeam).Error)

	// Onboarding row is the idempotency anchor.
	var reloadedOb models.OrganizationOnboarding
	require.NoError(t, fx.db.First(&reloadedOb, ob.ID).Error)
	require.NotNil(t, reloadedOb.OrganizationID)
	assert.Equal(t, org.ID, *reloadedOb.OrganizationID)
	assert.Equal(t, "sub_123", reloadedOb.PaymentSubscriptionID)
	assert.True(t, reloadedOb.IsComplete)
	assert.Empty(t, reloadedOb.Error)

	assert.Equal(t, 1, fx.mailer.orgEmails)
	assert.Equal(t, 1, fx.mailer.inviteEmails)
	require.Len(t, fx.provisioner.calls, 1)
	assert.Equal(t, "acme", fx.provisioner.calls[0].Slug)
}

func TestFinalizer_SecondInvocationIsNoOp(t *testing.T) {
	fx := newFinalizerFixture(t)
	ctx := testutil.TestContext(t)

	owner := testutil.CreateTestUser(t, fx.db)
	ob := testutil.CreateTestOnboarding(t, fx.db, owner.Email, "acme")
	ob.InvitedMembers = `[{"email":"dev@acme.test"}]`
	require.NoError(t, fx.db.Model(ob).Update("invited_members", ob.InvitedMembers).Error)

	input := onboarding.Input{Onboarding: ob, PaymentSubscriptionID: "sub_123"}

	first, _, err := fx.finalizer.CreateOrganizationFromOnboarding(ctx, input)
	require.NoError(t, err)

	second, _, err := fx.finalizer.CreateOrganizationFromOnboarding(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var orgCount int64
	require.NoError(t, fx.db.Model(&models.Team{}).
		Where("is_organization = ?", true).
		Count(&orgCount).Error)
	assert.Equal(t, int64(1), orgCount)

	var membershipCount int64
	require.NoError(t, fx.db.Model(&models.Membership{}).
		Where("team_id = ?", first.ID).
		Count(&membershipCount).Error)
	assert.Equal(t, int64(2), membershipCount)

	// Only the creating run sends the announcement.
	assert.Equal(t, 1, fx.mailer.orgEmails)
	assert.Equal(t, 1, fx.mailer.inviteEmails)
}

func TestFinalizer_OwnerNotFoundIsFatal(t *testing.T) {
	fx := newFinalizerFixture(t)
	ctx := testutil.TestContext(t)

	ob := testutil.CreateTestOnboarding(t, fx.db, "nobody@example.com", "ghost")

	_, _, err := fx.finalizer.CreateOrganizationFromOnboarding(ctx, onboarding.Input{Onboarding: ob})
	require.ErrorIs(t, err, onboarding.ErrOwnerNotFound)

	// Failure is recorded on the onboarding row for operators.
	var reloaded models.OrganizationOnboarding
	require.NoError(t, fx.db.First(&reloaded, ob.ID).Error)
	assert.Contains(t, reloaded.Error, "nobody@example.com")
	assert.False(t, reloaded.IsComplete)

	assert.Empty(t, fx.provisioner.calls)
}

func TestFinalizer_DeferredSlugAfterMigration(t *testing.T) {
	fx := newFinalizerFixture(t)
	ctx := testutil.TestContext(t)

	owner := testutil.CreateTestUser(t, fx.db)

	// The owner's existing team already holds the desired slug.
	slug := "acme"
	team := &models.Team{Name: "Acme Crew", Slug: &slug}
	require.NoError(t, fx.db.Create(team).Error)
	require.NoError(t, fx.db.Create(&models.Membership{
		UserID:   owner.ID,
		TeamID:   team.ID,
		Role:     models.RoleOwner,
		Accepted: true,
	}).Error)

	ob := testutil.CreateTestOnboarding(t, fx.db, owner.Email, "acme")
	ob.Teams = `[{"id":"` + team.ID.String() + `","name":"Acme Crew","is_being_migrated":true}]`
	require.NoError(t, fx.db.Model(ob).Update("teams", ob.Teams).Error)

	org, _, err := fx.finalizer.CreateOrganizationFromOnboarding(ctx, onboarding.Input{Onboarding: ob})
	require.NoError(t, err)

	// The slug was freed by the migration and backfilled onto the org.
	var reloadedOrg models.Team
	require.NoError(t, fx.db.First(&reloadedOrg, org.ID).Error)
	require.NotNil(t, reloadedOrg.Slug)
	assert.Equal(t, "acme", *reloadedOrg.Slug)

	var migrated models.Team
	require.NoError(t, fx.db.First(&migrated, team.ID).Error)
	require.NotNil(t, migrated.ParentID)
	assert.Equal(t, org.ID, *migrated.ParentID)
	require.NotNil(t, migrated.Slug)
	assert.Equal(t, "acme-team", *migrated.Slug)
}

func TestFinalizer_InvalidMembersPayload(t *testing.T) {
	fx := newFinalizerFixture(t)
	ctx := testutil.TestContext(t)

	owner := testutil.CreateTestUser(t, fx.db)
	ob := testutil.CreateTestOnboarding(t, fx.db, owner.Email, "acme")
	require.NoError(t, fx.db.Model(ob).
		Update("invited_members", `[{"email":"not-an-email"}]`).Error)
	ob.InvitedMembers = `[{"email":"not-an-email"}]`

	_, _, err := fx.finalizer.CreateOrganizationFromOnboarding(ctx, onboarding.Input{Onboarding: ob})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid email")

	var reloaded models.OrganizationOnboarding
	require.NoError(t, fx.db.First(&reloaded, ob.ID).Error)
	assert.False(t, reloaded.IsComplete)
}

func TestFinalizer_ProvisionerFailurePropagates(t *testing.T) {
	fx := newFinalizerFixture(t)
	fx.provisioner.err = errors.New("dns upstream unavailable")
	ctx := testutil.TestContext(t)

	owner := testutil.CreateTestUser(t, fx.db)
	ob := testutil.CreateTestOnboarding(t, fx.db, owner.Email, "acme")

	_, _, err := fx.finalizer.CreateOrganizationFromOnboarding(ctx, onboarding.Input{Onboarding: ob})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provisioning domain")

	// Nothing was created; the retry starts clean.
	var orgCount int64
	require.NoError(t, fx.db.Model(&models.Team{}).
		Where("is_organization = ?", true).
		Count(&orgCount).Error)
	assert.Zero(t, orgCount)
	assert.Zero(t, fx.mailer.orgEmails)
}

func TestParseInvitedMembers(t *testing.T) {
	members, err := onboarding.ParseInvitedMembers(`[{"email":"a@b.co","role":"admin"}]`)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "a@b.co", members[0].Email)

	_, err = onboarding.ParseInvitedMembers(`[{"email":"a@b.co","role":"superuser"}]`)
	require.Error(t, err)

	members, err = onboarding.ParseInvitedMembers("")
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestParseTeamSpecs(t *testing.T) {
	specs, err := onboarding.ParseTeamSpecs(`[{"name":"Sales","slug":"sales"}]`)
	require.NoError(t, err)
	require.Len(t, specs, 1)

	_, err = onboarding.ParseTeamSpecs(`[{"is_being_migrated":true}]`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "team id")

	_, err = onboarding.ParseTeamSpecs(`[{"name":"Sales","slug":"Not Valid"}]`)
	require.Error(t, err)
}
