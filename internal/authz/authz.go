// Package authz decides which administrative operations an identity may perform.
package authz

import (
	"errors"

	"github.com/rl-arena/ranked-orchestrator/internal/models"
)

// Capability names one administrative operation.
type Capability string

const (
	CapForceFormation Capability = "matches:form"
	CapCancelMatch    Capability = "matches:cancel"
	CapListMatches    Capability = "matches:list"
	CapManageServers  Capability = "servers:manage"
	CapReleaseServer  Capability = "servers:release"
	CapManageBans     Capability = "bans:manage"
)

// RoleAdmin grants every capability.
const RoleAdmin = "admin"

var ErrForbidden = errors.New("missing capability")

// Authorizer answers capability checks for identities vouched for by the
// session provider.
type Authorizer interface {
	Can(id models.Identity, c Capability) bool
}

// RoleAuthorizer maps roles to capabilities. Player ids listed as admins are
// treated as holding RoleAdmin regardless of their token.
type RoleAuthorizer struct {
	roles  map[string]map[Capability]bool
	admins map[string]bool
}

// NewRoleAuthorizer creates an authorizer granting admin to the listed player IDs.
func NewRoleAuthorizer(adminPlayerIDs []string) *RoleAuthorizer {
	a := &RoleAuthorizer{
		roles:  make(map[string]map[Capability]bool),
		admins: make(map[string]bool, len(adminPlayerIDs)),
	}
	for _, id := range adminPlayerIDs {
		a.admins[id] = true
	}
	a.Grant(RoleAdmin, All()...)
	return a
}

// All lists every capability.
func All() []Capability {
	return []Capability{
		CapForceFormation,
		CapCancelMatch,
		CapListMatches,
		CapManageServers,
		CapReleaseServer,
		CapManageBans,
	}
}

// Grant adds capabilities to role.
func (a *RoleAuthorizer) Grant(role string, caps ...Capability) {
	set, ok := a.roles[role]
	if !ok {
		set = make(map[Capability]bool)
		a.roles[role] = set
	}
	for _, c := range caps {
		set[c] = true
	}
}

func (a *RoleAuthorizer) Can(id models.Identity, c Capability) bool {
	if id.PlayerID == "" {
		return false
	}
	if a.admins[id.PlayerID] {
		return true
	}
	for _, role := range id.Roles {
		if a.roles[role][c] {
			return true
		}
	}
	return false
}

// Check returns ErrForbidden when id lacks c.
func Check(a Authorizer, id models.Identity, c Capability) error {
	if !a.Can(id, c) {
		return ErrForbidden
	}
	return nil
}
