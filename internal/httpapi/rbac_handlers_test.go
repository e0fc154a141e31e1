package httpapi

import (
	"fmt"
	"net/http"
	"testing"

	"resturant.app/internal/auth"
)

func TestRoleAndPermissionAdministration(t *testing.T) {
	c := newTestAPI(t)
	admin := c.signUpAdmin("manager@example.com")
	tok := admin.AccessToken

	resp := c.post("/api/roles", map[string]string{"name": "Waiter", "description": "Floor staff"}, tok)
	expectStatus(t, resp, http.StatusCreated)
	role := decodeBody[auth.RoleDTO](t, resp)
	if role.ID == "" || role.Name != "Waiter" {
		t.Fatalf("unexpected role: %+v", role)
	}
	expectStatus(t, c.post("/api/roles", map[string]string{"name": "waiter"}, tok), http.StatusConflict)

	resp = c.post("/api/permissions", map[string]string{"code": "SEAT_GUESTS"}, tok)
	expectStatus(t, resp, http.StatusCreated)
	perm := decodeBody[auth.PermissionDTO](t, resp)

	expectStatus(t, c.post("/api/roles/permissions/multiple", map[string]any{
		"roleId":        role.ID,
		"permissionIds": []int64{perm.ID},
	}, tok), http.StatusOK)

	resp = c.get("/api/roles/"+role.ID+"/with-permissions", tok)
	expectStatus(t, resp, http.StatusOK)
	withPerms := decodeBody[auth.RoleWithPermissionsDTO](t, resp)
	if len(withPerms.Permissions) != 1 || withPerms.Permissions[0].Code != "SEAT_GUESTS" {
		t.Fatalf("unexpected permissions: %+v", withPerms.Permissions)
	}

	// Referenced permissions cannot be deleted.
	expectStatus(t, c.do(http.MethodDelete, fmt.Sprintf("/api/permissions/%d", perm.ID), nil, tok), http.StatusConflict)

	expectStatus(t, c.do(http.MethodDelete, fmt.Sprintf("/api/roles/%s/permissions/%d", role.ID, perm.ID), nil, tok), http.StatusOK)
	expectStatus(t, c.do(http.MethodDelete, fmt.Sprintf("/api/roles/%s/permissions/%d", role.ID, perm.ID), nil, tok), http.StatusNotFound)
	expectStatus(t, c.do(http.MethodDelete, fmt.Sprintf("/api/permissions/%d", perm.ID), nil, tok), http.StatusOK)

	resp = c.do(http.MethodPut, "/api/roles", map[string]string{"id": role.ID, "description": "Front of house"}, tok)
	expectStatus(t, resp, http.StatusOK)
	if updated := decodeBody[auth.RoleDTO](t, resp); updated.Description != "Front of house" || updated.Name != "Waiter" {
		t.Fatalf("unexpected update result: %+v", updated)
	}

	expectStatus(t, c.do(http.MethodDelete, "/api/roles/"+role.ID, nil, tok), http.StatusOK)
	expectStatus(t, c.get("/api/roles/"+role.ID+"/with-permissions", tok), http.StatusNotFound)
}

func TestAssignPermissionsValidation(t *testing.T) {
	c := newTestAPI(t)
	tok := c.signUpAdmin("validate@example.com").AccessToken

	expectStatus(t, c.post("/api/roles/permissions/multiple", map[string]any{
		"permissionIds": []int64{1},
	}, tok), http.StatusBadRequest)
	expectStatus(t, c.post("/api/roles/permissions/multiple", map[string]any{
		"roleId":        "missing",
		"permissionIds": []int64{0},
	}, tok), http.StatusBadRequest)
}

func TestPermissionUpdateRejectsMismatchedID(t *testing.T) {
	c := newTestAPI(t)
	tok := c.signUpAdmin("mismatch@example.com").AccessToken

	resp := c.post("/api/permissions", map[string]string{"code": "PRINT_BILLS"}, tok)
	expectStatus(t, resp, http.StatusCreated)
	perm := decodeBody[auth.PermissionDTO](t, resp)

	path := fmt.Sprintf("/api/permissions/%d", perm.ID)
	expectStatus(t, c.do(http.MethodPut, path, map[string]any{"id": perm.ID + 1, "code": "X"}, tok), http.StatusBadRequest)
	expectStatus(t, c.do(http.MethodPut, "/api/permissions/abc", map[string]any{"code": "X"}, tok), http.StatusBadRequest)

	resp = c.do(http.MethodPut, path, map[string]any{"description": "Print guest bills"}, tok)
	expectStatus(t, resp, http.StatusOK)
	if got := decodeBody[auth.PermissionDTO](t, resp); got.Description != "Print guest bills" || got.Code != "PRINT_BILLS" {
		t.Fatalf("unexpected update result: %+v", got)
	}
}

func TestUserAdministration(t *testing.T) {
	c := newTestAPI(t)
	admin := c.signUpAdmin("boss@example.com")
	tok := admin.AccessToken
	staff := c.signUp("staff@example.com")

	roles := decodeBody[[]auth.RoleDTO](t, c.get("/api/roles", tok))
	var adminRole auth.RoleDTO
	for _, r := range roles {
		if r.Name == "Admin" {
			adminRole = r
		}
	}

	expectStatus(t, c.post("/api/users/roles", map[string]string{
		"userId": staff.User.ID,
		"roleId": adminRole.ID,
	}, tok), http.StatusOK)
	expectStatus(t, c.post("/api/users/roles", map[string]string{
		"userId": staff.User.ID,
		"roleId": adminRole.ID,
	}, tok), http.StatusConflict)
	expectStatus(t, c.post("/api/users/roles", map[string]string{
		"userId": "missing",
		"roleId": adminRole.ID,
	}, tok), http.StatusNotFound)

	names := decodeBody[[]string](t, c.get("/api/users/"+staff.User.ID+"/roles", tok))
	if len(names) != 2 {
		t.Fatalf("expected two roles, got %v", names)
	}

	page := decodeBody[auth.UserPage](t, c.get("/api/users?page=1&pageSize=1", tok))
	if page.Total != 2 || len(page.Items) != 1 || page.PageSize != 1 {
		t.Fatalf("unexpected page: %+v", page)
	}
	expectStatus(t, c.get("/api/users?page=0", tok), http.StatusBadRequest)

	search := decodeBody[auth.UserPage](t, c.get("/api/users?search=staff", tok))
	if search.Total != 1 || search.Items[0].ID != staff.User.ID {
		t.Fatalf("unexpected search result: %+v", search)
	}

	user := decodeBody[auth.UserDTO](t, c.get("/api/users/"+staff.User.ID, tok))
	if user.Email != "staff@example.com" || !user.EmailConfirmed {
		t.Fatalf("unexpected user: %+v", user)
	}

	expectStatus(t, c.do(http.MethodDelete, "/api/users/"+admin.User.ID, nil, tok), http.StatusBadRequest)
	expectStatus(t, c.do(http.MethodDelete, "/api/users/"+staff.User.ID, nil, tok), http.StatusOK)

	// Deleted accounts lose their sessions.
	expectStatus(t, c.post("/api/auth/refresh-token", map[string]string{
		"accessToken":  staff.AccessToken,
		"refreshToken": staff.RefreshToken,
	}, ""), http.StatusUnauthorized)
	expectStatus(t, c.get("/api/users/"+staff.User.ID, tok), http.StatusNotFound)
}

func TestMalformedEntityIDsAreNotFound(t *testing.T) {
	c := newTestAPI(t)
	tok := c.signUpAdmin("ids@example.com").AccessToken

	for _, path := range []string{
		"/api/roles/not-a-ulid/with-permissions",
		"/api/roles/not-a-ulid/permissions",
		"/api/users/not-a-ulid",
		"/api/users/not-a-ulid/roles",
	} {
		expectStatus(t, c.get(path, tok), http.StatusNotFound)
	}
	expectStatus(t, c.do(http.MethodDelete, "/api/roles/not-a-ulid", nil, tok), http.StatusNotFound)
}
