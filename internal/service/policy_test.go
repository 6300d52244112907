package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wigshare/wigshare-api/internal/models"
)

func TestCanActAdminAlwaysAllowed(t *testing.T) {
	assert.True(t, CanAct("admin-1", models.RoleAdmin, "someone-else"))
	assert.True(t, CanAct("admin-1", models.RoleAdmin, ""))
}

func TestCanActOwnerAllowed(t *testing.T) {
	assert.True(t, CanAct("u1", models.RoleRequester, "u1"))
	assert.True(t, CanAct("i1", models.RoleInstitution, "i1"))
}

func TestCanActNonOwnerDenied(t *testing.T) {
	assert.False(t, CanAct("u1", models.RoleRequester, "u2"))
	assert.False(t, CanAct("i1", models.RoleInstitution, "i2"))
}

func TestCanActAllowedRoleBypassesOwnership(t *testing.T) {
	assert.True(t, CanAct("i1", models.RoleInstitution, "u2", models.RoleInstitution))
	assert.False(t, CanAct("u1", models.RoleRequester, "u2", models.RoleInstitution))
}

func TestCanActEmptyActorNeverOwner(t *testing.T) {
	assert.False(t, CanAct("", models.RoleRequester, ""))
}

func TestCanActUnknownRoleDenied(t *testing.T) {
	assert.False(t, CanAct("u1", models.UserRole("GUEST"), "u1"))
}
