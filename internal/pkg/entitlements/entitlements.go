// Package entitlements answers which roles a user holds. Roles come from
// subscriptions or manual grants and are only queried through HasRole.
package entitlements

import (
	"sort"
	"strings"

	"github.com/ManuelReschke/TourMarket/app/models"
)

// Role is an elevated capability.
type Role string

const (
	// RolePublisher may publish listings. Granted by an active subscription.
	RolePublisher Role = "publisher"
	RoleAdmin     Role = "admin"
)

// ParseRole normalizes a stored role name.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RolePublisher:
		return RolePublisher, true
	case RoleAdmin:
		return RoleAdmin, true
	default:
		return "", false
	}
}

// Grant is one source of a role and whether it is currently in effect.
type Grant struct {
	Role   Role   `json:"role"`
	Source string `json:"source"`
	Active bool   `json:"active"`
}

// RoleSet is the evaluated view of a user's grants.
type RoleSet struct {
	Grants []Grant `json:"grants"`
}

// FromAssignments builds a RoleSet from stored assignments, ignoring
// unknown role names.
func FromAssignments(assignments []models.RoleAssignment) RoleSet {
	set := RoleSet{Grants: make([]Grant, 0, len(assignments))}
	for _, a := range assignments {
		role, ok := ParseRole(a.Role)
		if !ok {
			continue
		}
		set.Grants = append(set.Grants, Grant{Role: role, Source: a.Source, Active: a.IsActive})
	}
	return set
}

// Has reports whether any active grant carries role.
func (s RoleSet) Has(role Role) bool {
	for _, g := range s.Grants {
		if g.Active && g.Role == role {
			return true
		}
	}
	return false
}

// Effective lists active roles, sorted and without duplicates.
func (s RoleSet) Effective() []Role {
	seen := map[Role]struct{}{}
	out := []Role{}
	for _, g := range s.Grants {
		if !g.Active {
			continue
		}
		if _, ok := seen[g.Role]; ok {
			continue
		}
		seen[g.Role] = struct{}{}
		out = append(out, g.Role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
