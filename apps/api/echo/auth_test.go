package echoapi

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/databayt/hogwarts-sub013/core/user"
)

func TestGetUserClaims(t *testing.T) {
	usr := user.User{
		ID:       "u1",
		SchoolID: "s1",
		Username: "minerva",
		Roles:    []string{user.RoleAdminOwner, user.RoleAdminAccountant, user.RoleTeacher},
	}

	claims := GetUserClaims(usr)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "s1", claims.SchoolID)
	assert.Equal(t, []string{"admin", "teacher"}, claims.Portals)
	assert.Equal(t, claims.IssuedAt, claims.OrigIssuedAt)
	assert.True(t, claims.inPortal(portalTeacher))
	assert.True(t, claims.hasAnyRole(user.FinanceRoles))
	assert.True(t, claims.hasAnyRole(nil))

	refreshed := GetUserClaims(usr, 42)
	assert.Equal(t, int64(42), refreshed.OrigIssuedAt)

	ward := GetUserClaims(user.User{ID: "u2", Roles: []string{user.RoleStudent}})
	assert.Equal(t, []string{"student"}, ward.Portals)
	assert.False(t, ward.inPortal(portalAdmin, portalTeacher))
	assert.False(t, ward.hasAnyRole(user.FinanceRoles))
}
