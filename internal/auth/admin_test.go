package auth_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resturant.app/internal/auth"
)

func TestDeletePermissionGuard(t *testing.T) {
	e := newEnv(t)
	admin := e.svc.Admin()
	cook := e.roleWith(t, "Cook", "MANAGE_KITCHEN")
	waiter := e.roleWith(t, "Waiter", "MANAGE_KITCHEN")
	perms, err := admin.PermissionsForRole(e.ctx, cook.ID)
	require.NoError(t, err)
	require.Len(t, perms, 1)
	id := perms[0].ID

	assert.ErrorIs(t, admin.DeletePermission(e.ctx, id), auth.ErrConflict)

	require.NoError(t, admin.RemovePermission(e.ctx, cook.ID, id))
	assert.ErrorIs(t, admin.DeletePermission(e.ctx, id), auth.ErrConflict, "still linked to waiter")
	require.NoError(t, admin.RemoveAllPermissions(e.ctx, waiter.ID))

	require.NoError(t, admin.DeletePermission(e.ctx, id))
	assert.ErrorIs(t, admin.DeletePermission(e.ctx, id), auth.ErrNotFound)
}

func TestRoleCRUD(t *testing.T) {
	e := newEnv(t)
	admin := e.svc.Admin()

	role, err := admin.CreateRole(e.ctx, " Host ", "front of house")
	require.NoError(t, err)
	assert.Equal(t, "Host", role.Name)

	_, err = admin.CreateRole(e.ctx, "HOST", "")
	assert.ErrorIs(t, err, auth.ErrConflict)
	_, err = admin.CreateRole(e.ctx, "  ", "")
	assert.ErrorIs(t, err, auth.ErrInvalidInput)

	name := "Hostess"
	updated, err := admin.UpdateRole(e.ctx, role.ID, auth.RoleUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Hostess", updated.Name)
	assert.Equal(t, "front of house", updated.Description)

	taken := "admin"
	_, err = admin.UpdateRole(e.ctx, role.ID, auth.RoleUpdate{Name: &taken})
	assert.ErrorIs(t, err, auth.ErrConflict)
	_, err = admin.UpdateRole(e.ctx, "missing", auth.RoleUpdate{Name: &name})
	assert.ErrorIs(t, err, auth.ErrNotFound)

	roles, err := admin.ListRoles(e.ctx)
	require.NoError(t, err)
	assert.Len(t, roles, 3)

	require.NoError(t, admin.DeleteRole(e.ctx, role.ID))
	assert.ErrorIs(t, admin.DeleteRole(e.ctx, role.ID), auth.ErrNotFound)
	_, err = admin.GetRoleWithPermissions(e.ctx, role.ID)
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestDeleteRoleDropsMemberships(t *testing.T) {
	e := newEnv(t)
	admin := e.svc.Admin()
	u := e.bareUser(t, "member@x.com")
	role := e.roleWith(t, "Temp", "TEMP_ACCESS")
	require.NoError(t, admin.AssignRole(e.ctx, u.ID, "Temp"))

	require.NoError(t, admin.DeleteRole(e.ctx, role.ID))
	roles, err := admin.UserRoles(e.ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, roles)
}

func TestPermissionCRUD(t *testing.T) {
	e := newEnv(t)
	admin := e.svc.Admin()

	p, err := admin.CreatePermission(e.ctx, "edit_tables", "Edit floor plan")
	require.NoError(t, err)
	assert.Equal(t, "EDIT_TABLES", p.Code)

	_, err = admin.CreatePermission(e.ctx, "EDIT_TABLES", "")
	assert.ErrorIs(t, err, auth.ErrConflict)
	_, err = admin.CreatePermission(e.ctx, "", "")
	assert.ErrorIs(t, err, auth.ErrInvalidInput)

	desc := "Edit the floor plan"
	updated, err := admin.UpdatePermission(e.ctx, p.ID, auth.PermissionUpdate{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, desc, updated.Description)

	taken := "VIEW_ORDERS"
	_, err = admin.UpdatePermission(e.ctx, p.ID, auth.PermissionUpdate{Code: &taken})
	assert.ErrorIs(t, err, auth.ErrConflict)
	_, err = admin.UpdatePermission(e.ctx, 9999, auth.PermissionUpdate{Description: &desc})
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestAssignPermissions(t *testing.T) {
	e := newEnv(t)
	admin := e.svc.Admin()
	role := e.roleWith(t, "Manager")
	all, err := admin.ListPermissions(e.ctx)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(all), 2)

	require.NoError(t, admin.AssignPermissions(e.ctx, role.ID, []int64{all[0].ID, all[1].ID, all[0].ID}))
	require.NoError(t, admin.AssignPermissions(e.ctx, role.ID, []int64{all[0].ID}), "existing links are skipped")

	got, err := admin.GetRoleWithPermissions(e.ctx, role.ID)
	require.NoError(t, err)
	assert.Len(t, got.Permissions, 2)

	assert.ErrorIs(t, admin.AssignPermissions(e.ctx, role.ID, []int64{all[2].ID, 424242}), auth.ErrNotFound)
	got, err = admin.GetRoleWithPermissions(e.ctx, role.ID)
	require.NoError(t, err)
	assert.Len(t, got.Permissions, 2, "failed assignment applies nothing")

	assert.ErrorIs(t, admin.AssignPermissions(e.ctx, role.ID, nil), auth.ErrInvalidInput)
	assert.ErrorIs(t, admin.AssignPermissions(e.ctx, "missing", []int64{all[0].ID}), auth.ErrNotFound)
	assert.ErrorIs(t, admin.RemovePermission(e.ctx, role.ID, all[3].ID), auth.ErrNotFound)

	withPerms, err := admin.ListRolesWithPermissions(e.ctx)
	require.NoError(t, err)
	assert.Len(t, withPerms, 3)
}

func TestUserRoleAssignment(t *testing.T) {
	e := newEnv(t)
	admin := e.svc.Admin()
	u := e.confirmedUser(t, "staff@x.com")

	require.NoError(t, admin.AssignRole(e.ctx, u.ID, "admin"))
	assert.ErrorIs(t, admin.AssignRole(e.ctx, u.ID, "Admin"), auth.ErrConflict)
	assert.ErrorIs(t, admin.AssignRole(e.ctx, u.ID, "Ghost"), auth.ErrNotFound)
	assert.ErrorIs(t, admin.AssignRole(e.ctx, "missing", "Admin"), auth.ErrNotFound)

	roles, err := admin.UserRoles(e.ctx, u.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"User", "Admin"}, roles)

	adminRole, err := e.store.Roles().FindByName(e.ctx, "Admin")
	require.NoError(t, err)
	require.NoError(t, admin.RemoveRole(e.ctx, u.ID, adminRole.ID))
	assert.ErrorIs(t, admin.RemoveRole(e.ctx, u.ID, adminRole.ID), auth.ErrNotFound)
}

func TestListUsers(t *testing.T) {
	e := newEnv(t)
	admin := e.svc.Admin()
	for i := 0; i < 3; i++ {
		e.confirmedUser(t, fmt.Sprintf("guest%d@x.com", i))
		e.clock.Advance(1)
	}
	gone := e.confirmedUser(t, "gone@x.com")
	require.NoError(t, admin.DeleteUser(e.ctx, gone.ID))

	page, err := admin.ListUsers(e.ctx, auth.UserQuery{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "guest0@x.com", page.Items[0].Email)
	assert.Equal(t, []string{"User"}, page.Items[0].Roles)

	page, err = admin.ListUsers(e.ctx, auth.UserQuery{Page: 0, PageSize: 500, Search: "GUEST2"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 100, page.PageSize)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "guest2@x.com", page.Items[0].Email)

	_, err = admin.GetUser(e.ctx, gone.ID)
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestDeleteUserRevokesSessions(t *testing.T) {
	e := newEnv(t)
	u := e.confirmedUser(t, "bye@x.com")
	s := e.login(t, "bye@x.com", testPassword)
	before, err := e.store.Users().Find(e.ctx, u.ID)
	require.NoError(t, err)

	require.NoError(t, e.svc.Admin().DeleteUser(e.ctx, u.ID))
	rec, err := e.store.RefreshTokens().FindByHash(e.ctx, auth.HashRefreshToken(s.RefreshToken))
	require.NoError(t, err)
	require.NotNil(t, rec.RevokedOn)
	assert.Equal(t, auth.RevokeReasonUserDeleted, rec.RevokedByIP)

	stored, err := e.store.Users().Find(e.ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsDeleted, "accounts are soft deleted")
	assert.Equal(t, before.TokenVersion+1, stored.TokenVersion, "outstanding access tokens are invalidated")

	assert.ErrorIs(t, e.svc.Admin().DeleteUser(e.ctx, u.ID), auth.ErrNotFound)
}
