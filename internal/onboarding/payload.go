package onboarding

import (
	"encoding/json"
	"fmt"

	"github.com/marden/bookpool/internal/api/validation"
	"github.com/marden/bookpool/internal/database/models"
	"github.com/marden/bookpool/internal/teams"
)

// ParseInvitedMembers decodes and validates the serialized invitation list
// stored on an onboarding record.
func ParseInvitedMembers(raw string) ([]teams.InviteMember, error) {
	if raw == "" {
		return nil, nil
	}

	var members []teams.InviteMember
	if err := json.Unmarshal([]byte(raw), &members); err != nil {
		return nil, fmt.Errorf("decoding invited members: %w", err)
	}

	for i, m := range members {
		if !validation.IsValidEmail(m.Email) {
			return nil, fmt.Errorf("invited member %d: invalid email %q", i, m.Email)
		}
		switch m.Role {
		case "", models.RoleMember, models.RoleAdmin, models.RoleOwner:
		default:
			return nil, fmt.Errorf("invited member %d: invalid role %q", i, m.Role)
		}
	}
	return members, nil
}

// ParseTeamSpecs decodes and validates the serialized team list stored on
// an onboarding record.
func ParseTeamSpecs(raw string) ([]teams.TeamSpec, error) {
	if raw == "" {
		return nil, nil
	}

	var specs []teams.TeamSpec
	if err := json.Unmarshal([]byte(raw), &specs); err != nil {
		return nil, fmt.Errorf("decoding teams: %w", err)
	}

	for i, spec := range specs {
		if spec.IsBeingMigrated {
			if spec.ID == nil {
				return nil, fmt.Errorf("team %d: migration requires a team id", i)
			}
			continue
		}
		if spec.Name == "" {
			return nil, fmt.Errorf("team %d: name is required", i)
		}
		if spec.Slug != "" && !validation.IsValidSlug(spec.Slug) {
			return nil, fmt.Errorf("team %d: invalid slug %q", i, spec.Slug)
		}
	}
	return specs, nil
}
