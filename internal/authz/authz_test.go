package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rl-arena/ranked-orchestrator/internal/models"
)

func TestRoleAuthorizer(t *testing.T) {
	a := NewRoleAuthorizer([]string{"STEAM_1:0:1"})
	a.Grant("moderator", CapManageBans, CapListMatches)

	tests := []struct {
		name string
		id   models.Identity
		cap  Capability
		want bool
	}{
		{"listed admin", models.Identity{PlayerID: "STEAM_1:0:1"}, CapReleaseServer, true},
		{"admin role", models.Identity{PlayerID: "p2", Roles: []string{RoleAdmin}}, CapForceFormation, true},
		{"moderator granted", models.Identity{PlayerID: "p3", Roles: []string{"moderator"}}, CapManageBans, true},
		{"moderator not granted", models.Identity{PlayerID: "p3", Roles: []string{"moderator"}}, CapCancelMatch, false},
		{"plain player", models.Identity{PlayerID: "p4"}, CapListMatches, false},
		{"anonymous", models.Identity{Roles: []string{RoleAdmin}}, CapListMatches, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.Can(tt.id, tt.cap))
		})
	}
}

func TestCheck(t *testing.T) {
	a := NewRoleAuthorizer(nil)

	assert.NoError(t, Check(a, models.Identity{PlayerID: "p1", Roles: []string{RoleAdmin}}, CapManageServers))
	assert.ErrorIs(t, Check(a, models.Identity{PlayerID: "p1"}, CapManageServers), ErrForbidden)
}
