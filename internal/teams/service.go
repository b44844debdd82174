package teams

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/marden/bookpool/internal/auth"
	"github.com/marden/bookpool/internal/database/models"
	"github.com/marden/bookpool/internal/mailer"
	"github.com/marden/bookpool/pkg/util"
	"gorm.io/gorm"
)

var ErrTeamNotFound = errors.New("team not found")

// Service handles team membership, invitations and team migration into
// organizations.
type Service struct {
	db     *gorm.DB
	logger *slog.Logger
	mailer mailer.Mailer
}

func NewService(db *gorm.DB, logger *slog.Logger, m mailer.Mailer) *Service {
	return &Service{db: db, logger: logger, mailer: m}
}

// InviteMember is one pending invitation.
type InviteMember struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
}

// InviteMembersInput invites a batch of members into a team. The
// privileged flag bypasses inviter-permission checks: the finalizer
// invites on behalf of the system, not of a member.
type InviteMembersInput struct {
	TeamID     uuid.UUID
	InviterID  *uuid.UUID
	Members    []InviteMember
	Privileged bool
	TeamName   string
}

// InviteMembers creates placeholder users where needed and pending
// memberships. Existing memberships are left untouched, so re-running an
// invitation batch never duplicates members.
func (s *Service) InviteMembers(ctx context.Context, input InviteMembersInput) (int, error) {
	if len(input.Members) == 0 {
		return 0, nil
	}

	if !input.Privileged {
		if err := s.requireInviterRole(ctx, input.TeamID, input.InviterID); err != nil {
			return 0, err
		}
	}

	invited := 0
	for _, member := range input.Members {
		user, err := s.findOrCreateInvitee(ctx, member)
		if err != nil {
			return invited, fmt.Errorf("resolving invitee %s: %w", member.Email, err)
		}

		var existing models.Membership
		err = s.db.WithContext(ctx).
			Where("user_id = ? AND team_id = ?", user.ID, input.TeamID).
			First(&existing).Error
		if err == nil {
			// Already a member (or already invited); nothing to do.
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return invited, err
		}

		role := member.Role
		if role == "" {
			role = models.RoleMember
		}
		membership := models.Membership{
			UserID:   user.ID,
			TeamID:   input.TeamID,
			Role:     role,
			Accepted: false,
		}
		if err := s.db.WithContext(ctx).Create(&membership).Error; err != nil {
			return invited, fmt.Errorf("creating membership for %s: %w", member.Email, err)
		}
		invited++

		if err := s.mailer.SendTeamInviteEmail(ctx, mailer.TeamInviteEmail{
			To:       member.Email,
			TeamName: input.TeamName,
			Inviter:  "bookpool",
		}); err != nil {
			// Invitation email failures do not undo the membership.
			s.logger.Warn("invite email failed", "email", member.Email, "error", err)
		}
	}

	s.logger.Info("invited members",
		"team_id", input.TeamID,
		"requested", len(input.Members),
		"invited", invited,
	)
	return invited, nil
}

func (s *Service) requireInviterRole(ctx context.Context, teamID uuid.UUID, inviterID *uuid.UUID) error {
	if inviterID == nil {
		return errors.New("inviter required for non-privileged invitations")
	}
	var m models.Membership
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND team_id = ? AND role IN ?", *inviterID, teamID, []string{models.RoleOwner, models.RoleAdmin}).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.New("inviter lacks permission")
	}
	return err
}

func (s *Service) findOrCreateInvitee(ctx context.Context, member InviteMember) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", member.Email).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// Placeholder account; the invitee sets a real password on acceptance.
	hash, err := auth.HashPassword(uuid.New().String())
	if err != nil {
		return nil, err
	}
	user = models.User{
		Email:        member.Email,
		Name:         member.Name,
		Username:     util.Slugify(member.Email),
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// TeamSpec describes a team to create in, or migrate into, an organization.
type TeamSpec struct {
	ID              *uuid.UUID `json:"id,omitempty"`
	Name            string     `json:"name"`
	Slug            string     `json:"slug"`
	IsBeingMigrated bool       `json:"is_being_migrated"`
}

// CreateOrMigrateTeams attaches teams to an organization. Migrated teams
// whose slug collides with the organization's desired slug are renamed so
// the slug frees up for the organization itself. Teams already under the
// organization are skipped, keeping the operation repeatable.
func (s *Service) CreateOrMigrateTeams(ctx context.Context, org *models.Team, desiredOrgSlug string, specs []TeamSpec) error {
	for _, spec := range specs {
		if spec.IsBeingMigrated && spec.ID != nil {
			if err := s.migrateTeam(ctx, org, desiredOrgSlug, spec); err != nil {
				return err
			}
			continue
		}
		if err := s.createTeam(ctx, org, spec); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) migrateTeam(ctx context.Context, org *models.Team, desiredOrgSlug string, spec TeamSpec) error {
	var team models.Team
	err := s.db.WithContext(ctx).First(&team, *spec.ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("migrating team %s: %w", spec.ID, ErrTeamNotFound)
	}
	if err != nil {
		return err
	}

	if team.ParentID != nil && *team.ParentID == org.ID {
		// Already migrated on a previous attempt.
		return nil
	}

	updates := map[string]interface{}{"parent_id": org.ID}
	if team.Slug != nil && *team.Slug == desiredOrgSlug {
		// Free the slug for the organization; the team keeps a derived one.
		freed := desiredOrgSlug + "-team"
		updates["slug"] = freed
	}

	if err := s.db.WithContext(ctx).Model(&team).Updates(updates).Error; err != nil {
		return fmt.Errorf("migrating team %s: %w", team.ID, err)
	}

	s.logger.Info("migrated team into organization",
		"team_id", team.ID,
		"organization_id", org.ID,
	)
	return nil
}

func (s *Service) createTeam(ctx context.Context, org *models.Team, spec TeamSpec) error {
	slug := spec.Slug
	if slug == "" {
		slug = util.Slugify(spec.Name)
	}

	var existing models.Team
	err := s.db.WithContext(ctx).
		Where("parent_id = ? AND slug = ?", org.ID, slug).
		First(&existing).Error
	if err == nil {
		// Created on a previous attempt.
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	team := models.Team{
		Name:     spec.Name,
		Slug:     &slug,
		ParentID: &org.ID,
	}
	if err := s.db.WithContext(ctx).Create(&team).Error; err != nil {
		return fmt.Errorf("creating team %s: %w", spec.Name, err)
	}

	s.logger.Info("created team", "team_id", team.ID, "organization_id", org.ID)
	return nil
}

// HasConflictingTeamSlug reports whether the user belongs to a team that
// already owns the slug. Such a conflict defers the organization's slug
// until the team has been migrated.
func (s *Service) HasConflictingTeamSlug(ctx context.Context, userID uuid.UUID, slug string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Membership{}).
		Joins("JOIN teams ON teams.id = memberships.team_id").
		Where("memberships.user_id = ?", userID).
		Where("teams.slug = ?", slug).
		Where("teams.deleted_at IS NULL").
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
