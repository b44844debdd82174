package onboarding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/marden/bookpool/internal/database/models"
	"github.com/marden/bookpool/internal/mailer"
	"github.com/marden/bookpool/internal/provision"
	"github.com/marden/bookpool/internal/teams"
	"gorm.io/gorm"
)

var (
	// ErrOwnerNotFound means the onboarding references an owner email with
	// no account. The intent flow validates this up front, so hitting it
	// here is fatal rather than retryable.
	ErrOwnerNotFound = errors.New("organization owner not found")
)

// Finalizer turns a paid onboarding record into a live organization. It is
// driven by the payment webhook, which is delivered at least once, so every
// step either short-circuits on existing state or is harmless to repeat.
type Finalizer struct {
	db          *gorm.DB
	logger      *slog.Logger
	mailer      mailer.Mailer
	provisioner provision.Provisioner
	teams       *teams.Service
}

func NewFinalizer(db *gorm.DB, logger *slog.Logger, m mailer.Mailer, p provision.Provisioner, ts *teams.Service) *Finalizer {
	return &Finalizer{
		db:          db,
		logger:      logger,
		mailer:      m,
		provisioner: p,
		teams:       ts,
	}
}

// Input for one finalization attempt.
type Input struct {
	Onboarding            *models.OrganizationOnboarding
	PaymentSubscriptionID string
}

// CreateOrganizationFromOnboarding provisions (or reuses) the organization,
// its owner profile, its teams and its invited members. Safe to invoke
// repeatedly: partial failures leave enough persisted state for the next
// attempt to resume instead of duplicating work.
func (f *Finalizer) CreateOrganizationFromOnboarding(ctx context.Context, input Input) (*models.Team, *models.User, error) {
	ob := input.Onboarding

	org, owner, err := f.finalize(ctx, input)
	if err != nil {
		f.logger.Error("onboarding finalization failed",
			"onboarding_id", ob.ID,
			"slug", ob.Slug,
			"owner_email", ob.OrgOwnerEmail,
			"error", err,
		)
		// Best effort; the error itself is what the caller retries on.
		f.db.WithContext(ctx).Model(ob).Update("error", err.Error())
		return nil, nil, err
	}

	return org, owner, nil
}

func (f *Finalizer) finalize(ctx context.Context, input Input) (*models.Team, *models.User, error) {
	ob := input.Onboarding

	// Step 1: the owner account must already exist.
	var owner models.User
	err := f.db.WithContext(ctx).Where("email = ?", ob.OrgOwnerEmail).First(&owner).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, fmt.Errorf("%w: %s", ErrOwnerNotFound, ob.OrgOwnerEmail)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("looking up owner: %w", err)
	}

	// Step 2: domain provisioning tolerates prior runs.
	if err := f.provisioner.SetupDomain(ctx, provision.SetupDomainInput{
		Slug:          ob.Slug,
		IsPlatform:    ob.IsPlatform,
		OrgOwnerEmail: ob.OrgOwnerEmail,
	}); err != nil {
		return nil, nil, fmt.Errorf("provisioning domain: %w", err)
	}

	// Step 3: create or reuse the organization.
	org, err := f.getOrCreateOrganization(ctx, ob, &owner)
	if err != nil {
		return nil, nil, err
	}

	if err := f.attachToOnboarding(ctx, ob, org, input.PaymentSubscriptionID); err != nil {
		return nil, nil, err
	}

	// Step 4: schema-checked payloads.
	members, err := ParseInvitedMembers(ob.InvitedMembers)
	if err != nil {
		return nil, nil, err
	}
	specs, err := ParseTeamSpecs(ob.Teams)
	if err != nil {
		return nil, nil, err
	}

	// Step 5: privileged invitations; the inviter is the system itself.
	if len(members) > 0 {
		if _, err := f.teams.InviteMembers(ctx, teams.InviteMembersInput{
			TeamID:     org.ID,
			Members:    members,
			Privileged: true,
			TeamName:   org.Name,
		}); err != nil {
			return nil, nil, fmt.Errorf("inviting members: %w", err)
		}
	}

	// Step 6: create and migrate teams.
	if len(specs) > 0 {
		if err := f.teams.CreateOrMigrateTeams(ctx, org, ob.Slug, specs); err != nil {
			return nil, nil, fmt.Errorf("creating teams: %w", err)
		}
	}

	// Step 7: backfill the slug if it was deferred and is still unset.
	if err := f.backfillSlug(ctx, org, ob.Slug); err != nil {
		return nil, nil, err
	}

	if err := f.db.WithContext(ctx).Model(ob).Updates(map[string]interface{}{
		"is_complete": true,
		"error":       "",
	}).Error; err != nil {
		return nil, nil, fmt.Errorf("marking onboarding complete: %w", err)
	}

	f.logger.Info("onboarding finalized",
		"onboarding_id", ob.ID,
		"organization_id", org.ID,
		"owner_id", owner.ID,
	)
	return org, &owner, nil
}

func (f *Finalizer) getOrCreateOrganization(ctx context.Context, ob *models.OrganizationOnboarding, owner *models.User) (*models.Team, error) {
	// A previous attempt may have created the organization already.
	if ob.OrganizationID != nil {
		var org models.Team
		err := f.db.WithContext(ctx).First(&org, *ob.OrganizationID).Error
		if err == nil {
			return &org, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("looking up organization %s: %w", *ob.OrganizationID, err)
		}
	}

	var bySlug models.Team
	err := f.db.WithContext(ctx).
		Where("slug = ? AND is_organization = ?", ob.Slug, true).
		First(&bySlug).Error
	if err == nil {
		return &bySlug, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("looking up organization by slug: %w", err)
	}

	// The desired slug may still be held by one of the owner's teams that
	// is about to be migrated in. Defer it rather than collide.
	conflict, err := f.teams.HasConflictingTeamSlug(ctx, owner.ID, ob.Slug)
	if err != nil {
		return nil, fmt.Errorf("checking slug conflict: %w", err)
	}

	var slug *string
	if !conflict {
		s := ob.Slug
		slug = &s
	}

	org := models.Team{
		Name:           ob.Name,
		Slug:           slug,
		IsOrganization: true,
		IsPlatform:     ob.IsPlatform,
		LogoURL:        ob.LogoURL,
		Bio:            ob.Bio,
	}

	err = f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&org).Error; err != nil {
			return fmt.Errorf("creating organization: %w", err)
		}

		membership := models.Membership{
			UserID:   owner.ID,
			TeamID:   org.ID,
			Role:     models.RoleOwner,
			Accepted: true,
		}
		if err := tx.Create(&membership).Error; err != nil {
			return fmt.Errorf("creating owner membership: %w", err)
		}

		profile := models.Profile{
			UserID:         owner.ID,
			OrganizationID: org.ID,
			Username:       owner.Username,
		}
		if err := tx.Create(&profile).Error; err != nil {
			return fmt.Errorf("creating owner profile: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := f.seedDefaultAvailability(ctx, owner); err != nil {
		return nil, fmt.Errorf("seeding availability: %w", err)
	}

	// One-time notification; reused organizations never reach this branch.
	if !ob.IsPlatform {
		if err := f.mailer.SendOrganizationCreationEmail(ctx, mailer.OrganizationCreationEmail{
			To:        owner.Email,
			OwnerName: owner.Name,
			OrgName:   ob.Name,
			OrgSlug:   ob.Slug,
		}); err != nil {
			return nil, fmt.Errorf("sending creation email: %w", err)
		}
	}

	return &org, nil
}

func (f *Finalizer) attachToOnboarding(ctx context.Context, ob *models.OrganizationOnboarding, org *models.Team, subscriptionID string) error {
	updates := map[string]interface{}{
		"organization_id": org.ID,
	}
	if subscriptionID != "" {
		updates["payment_subscription_id"] = subscriptionID
	}
	if err := f.db.WithContext(ctx).Model(ob).Updates(updates).Error; err != nil {
		return fmt.Errorf("recording organization on onboarding: %w", err)
	}
	ob.OrganizationID = &org.ID
	return nil
}

// seedDefaultAvailability gives the owner a working-hours schedule if they
// have none yet.
func (f *Finalizer) seedDefaultAvailability(ctx context.Context, owner *models.User) error {
	if owner.DefaultScheduleID != nil {
		return nil
	}

	schedule := models.Schedule{
		UserID:   owner.ID,
		Name:     "Working Hours",
		TimeZone: owner.TimeZone,
	}
	return f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&schedule).Error; err != nil {
			return err
		}
		availability := models.Availability{
			ScheduleID: schedule.ID,
			Days:       models.IntArray{1, 2, 3, 4, 5},
			StartTime:  "09:00",
			EndTime:    "17:00",
		}
		if err := tx.Create(&availability).Error; err != nil {
			return err
		}
		if err := tx.Model(owner).Update("default_schedule_id", schedule.ID).Error; err != nil {
			return err
		}
		owner.DefaultScheduleID = &schedule.ID
		return nil
	})
}

func (f *Finalizer) backfillSlug(ctx context.Context, org *models.Team, desired string) error {
	var current models.Team
	if err := f.db.WithContext(ctx).First(&current, org.ID).Error; err != nil {
		return fmt.Errorf("reloading organization: %w", err)
	}
	if current.Slug != nil && *current.Slug != "" {
		org.Slug = current.Slug
		return nil
	}

	if err := f.db.WithContext(ctx).Model(&current).Update("slug", desired).Error; err != nil {
		return fmt.Errorf("setting deferred slug: %w", err)
	}
	org.Slug = &desired

	f.logger.Info("backfilled deferred organization slug",
		"organization_id", org.ID,
		"slug", desired,
	)
	return nil
}
