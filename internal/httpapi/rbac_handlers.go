package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"resturant.app/internal/audit"
	"resturant.app/internal/auth"
	"resturant.app/internal/ids"
)

type createRoleRequest struct {
	Name        string `json:"name" validate:"required,max=64"`
	Description string `json:"description" validate:"max=256"`
}

type updateRoleRequest struct {
	ID          string  `json:"id" validate:"required"`
	Name        *string `json:"name" validate:"omitempty,max=64"`
	Description *string `json:"description" validate:"omitempty,max=256"`
}

type assignPermissionsRequest struct {
	RoleID        string  `json:"roleId" validate:"required"`
	PermissionIDs []int64 `json:"permissionIds" validate:"required,dive,gt=0"`
}

type createPermissionRequest struct {
	Code        string `json:"code" validate:"required,max=100"`
	Description string `json:"description" validate:"max=256"`
}

type updatePermissionRequest struct {
	ID          int64   `json:"id"`
	Code        *string `json:"code" validate:"omitempty,max=100"`
	Description *string `json:"description" validate:"omitempty,max=256"`
}

type assignRoleRequest struct {
	UserID string `json:"userId" validate:"required"`
	RoleID string `json:"roleId" validate:"required"`
}

// --- roles ---

func (a *API) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := a.admin.ListRoles(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, roles)
}

func (a *API) handleListRolesWithPermissions(w http.ResponseWriter, r *http.Request) {
	roles, err := a.admin.ListRolesWithPermissions(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, roles)
}

func (a *API) handleGetRoleWithPermissions(w http.ResponseWriter, r *http.Request) {
	roleID, ok := entityID(w, r, "id", "role")
	if !ok {
		return
	}
	role, err := a.admin.GetRoleWithPermissions(r.Context(), roleID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

func (a *API) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := a.admin.CreateRole(r.Context(), req.Name, req.Description)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.role.create", map[string]any{
		"role_id": role.ID,
		"name":    role.Name,
	})
	w.Header().Set("Location", fmt.Sprintf("/api/roles/%s/with-permissions", role.ID))
	writeJSON(w, http.StatusCreated, role)
}

func (a *API) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	var req updateRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := a.admin.UpdateRole(r.Context(), req.ID, auth.RoleUpdate{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.role.update", map[string]any{
		"role_id": role.ID,
		"name":    role.Name,
	})
	writeJSON(w, http.StatusOK, role)
}

func (a *API) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := entityID(w, r, "id", "role")
	if !ok {
		return
	}
	if err := a.admin.DeleteRole(r.Context(), roleID); err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.role.delete", map[string]any{"role_id": roleID})
	writeMessage(w, http.StatusOK, "Role deleted successfully.")
}

func (a *API) handleRolePermissions(w http.ResponseWriter, r *http.Request) {
	roleID, ok := entityID(w, r, "id", "role")
	if !ok {
		return
	}
	perms, err := a.admin.PermissionsForRole(r.Context(), roleID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, perms)
}

func (a *API) handleAssignPermissions(w http.ResponseWriter, r *http.Request) {
	var req assignPermissionsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.admin.AssignPermissions(r.Context(), req.RoleID, req.PermissionIDs); err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.role.permissions.assign", map[string]any{
		"role_id": req.RoleID,
		"count":   len(req.PermissionIDs),
	})
	writeMessage(w, http.StatusOK, "Permissions assigned successfully.")
}

func (a *API) handleRemovePermission(w http.ResponseWriter, r *http.Request) {
	roleID, ok := entityID(w, r, "id", "role")
	if !ok {
		return
	}
	permID, err := parseID(chi.URLParam(r, "permissionId"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.admin.RemovePermission(r.Context(), roleID, permID); err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.role.permissions.remove", map[string]any{
		"role_id":       roleID,
		"permission_id": permID,
	})
	writeMessage(w, http.StatusOK, "Permission removed successfully.")
}

func (a *API) handleRemoveAllPermissions(w http.ResponseWriter, r *http.Request) {
	roleID, ok := entityID(w, r, "id", "role")
	if !ok {
		return
	}
	if err := a.admin.RemoveAllPermissions(r.Context(), roleID); err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.role.permissions.clear", map[string]any{"role_id": roleID})
	writeMessage(w, http.StatusOK, "All permissions removed successfully.")
}

// --- permissions ---

func (a *API) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := a.admin.ListPermissions(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, perms)
}

func (a *API) handleCreatePermission(w http.ResponseWriter, r *http.Request) {
	var req createPermissionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	perm, err := a.admin.CreatePermission(r.Context(), req.Code, req.Description)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.permission.create", map[string]any{
		"permission_id": perm.ID,
		"code":          perm.Code,
	})
	writeJSON(w, http.StatusCreated, perm)
}

func (a *API) handleUpdatePermission(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var req updatePermissionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.ID != 0 && req.ID != id {
		writeError(w, r, http.StatusBadRequest, "permission id mismatch")
		return
	}
	perm, err := a.admin.UpdatePermission(r.Context(), id, auth.PermissionUpdate{
		Code:        req.Code,
		Description: req.Description,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.permission.update", map[string]any{
		"permission_id": perm.ID,
		"code":          perm.Code,
	})
	writeJSON(w, http.StatusOK, perm)
}

func (a *API) handleDeletePermission(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.admin.DeletePermission(r.Context(), id); err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.permission.delete", map[string]any{"permission_id": id})
	writeMessage(w, http.StatusOK, "Permission deleted successfully.")
}

// --- users ---

func (a *API) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	var req assignRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := a.admin.GetRoleWithPermissions(r.Context(), req.RoleID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if err := a.admin.AssignRole(r.Context(), req.UserID, role.Name); err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.user.assign_role", map[string]any{
		"target_user_id": req.UserID,
		"role_id":        role.ID,
	})
	writeMessage(w, http.StatusOK, "Role assigned successfully.")
}

func (a *API) handleRemoveRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := entityID(w, r, "userId", "user")
	if !ok {
		return
	}
	roleID, ok := entityID(w, r, "roleId", "role")
	if !ok {
		return
	}
	if err := a.admin.RemoveRole(r.Context(), userID, roleID); err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.user.remove_role", map[string]any{
		"target_user_id": userID,
		"role_id":        roleID,
	})
	writeMessage(w, http.StatusOK, "Role removed successfully.")
}

func (a *API) handleUserRoles(w http.ResponseWriter, r *http.Request) {
	userID, ok := entityID(w, r, "userId", "user")
	if !ok {
		return
	}
	roles, err := a.admin.UserRoles(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, roles)
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := parsePositiveInt(q.Get("page"), 1, "page")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	size, err := parsePositiveInt(q.Get("pageSize"), 0, "pageSize")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.admin.ListUsers(r.Context(), auth.UserQuery{
		Page:     page,
		PageSize: size,
		Search:   q.Get("search"),
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := entityID(w, r, "userId", "user")
	if !ok {
		return
	}
	user, err := a.admin.GetUser(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := entityID(w, r, "userId", "user")
	if !ok {
		return
	}
	if self, _ := auth.UserIDFromContext(r.Context()); self == userID {
		writeError(w, r, http.StatusBadRequest, "you cannot delete your own account")
		return
	}
	if err := a.admin.DeleteUser(r.Context(), userID); err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.user.delete", map[string]any{"target_user_id": userID})
	writeMessage(w, http.StatusOK, "User deleted successfully.")
}

// entityID reads a ULID path parameter. A malformed id cannot name a stored
// entity, so it is reported as not found.
func entityID(w http.ResponseWriter, r *http.Request, param, kind string) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, param))
	if !ids.Valid(id) {
		writeError(w, r, http.StatusNotFound, fmt.Sprintf("%s %s not found", kind, id))
		return "", false
	}
	return strings.ToUpper(id), true
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func parsePositiveInt(raw string, def int, name string) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return val, nil
}
