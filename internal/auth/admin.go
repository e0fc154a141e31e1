package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"resturant.app/internal/ids"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// AdminService manages roles, permissions and user role assignments.
type AdminService struct {
	store  Store
	ledger *Ledger
	now    func() time.Time
}

func NewAdminService(store Store, ledger *Ledger, now func() time.Time) *AdminService {
	if now == nil {
		now = time.Now
	}
	return &AdminService{store: store, ledger: ledger, now: now}
}

func (s *AdminService) ListRoles(ctx context.Context) ([]RoleDTO, error) {
	roles, err := s.store.Roles().List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]RoleDTO, 0, len(roles))
	for _, r := range roles {
		out = append(out, ToRoleDTO(r))
	}
	return out, nil
}

func (s *AdminService) ListRolesWithPermissions(ctx context.Context) ([]RoleWithPermissionsDTO, error) {
	roles, err := s.store.Roles().List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]RoleWithPermissionsDTO, 0, len(roles))
	for _, r := range roles {
		perms, err := s.store.Permissions().ForRole(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, ToRoleWithPermissionsDTO(r, perms))
	}
	return out, nil
}

func (s *AdminService) GetRoleWithPermissions(ctx context.Context, roleID string) (RoleWithPermissionsDTO, error) {
	role, err := s.role(ctx, s.store, roleID)
	if err != nil {
		return RoleWithPermissionsDTO{}, err
	}
	perms, err := s.store.Permissions().ForRole(ctx, role.ID)
	if err != nil {
		return RoleWithPermissionsDTO{}, err
	}
	return ToRoleWithPermissionsDTO(*role, perms), nil
}

func (s *AdminService) CreateRole(ctx context.Context, name, description string) (RoleDTO, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return RoleDTO{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	role := Role{
		ID:             ids.New(),
		Name:           name,
		NormalizedName: NormalizeName(name),
		Description:    strings.TrimSpace(description),
		CreatedAt:      s.now().UTC(),
	}
	err := s.store.InTx(ctx, func(tx Store) error {
		if _, err := tx.Roles().FindByName(ctx, name); err == nil {
			return fmt.Errorf("%w: role %q already exists", ErrConflict, name)
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		return tx.Roles().Create(ctx, &role)
	})
	if err != nil {
		return RoleDTO{}, err
	}
	return ToRoleDTO(role), nil
}

func (s *AdminService) UpdateRole(ctx context.Context, roleID string, upd RoleUpdate) (RoleDTO, error) {
	var out Role
	err := s.store.InTx(ctx, func(tx Store) error {
		role, err := s.role(ctx, tx, roleID)
		if err != nil {
			return err
		}
		if upd.Name != nil {
			name := strings.TrimSpace(*upd.Name)
			if name == "" {
				return fmt.Errorf("%w: role name is required", ErrInvalidInput)
			}
			if other, err := tx.Roles().FindByName(ctx, name); err == nil && other.ID != role.ID {
				return fmt.Errorf("%w: role %q already exists", ErrConflict, name)
			} else if err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
			role.Name = name
			role.NormalizedName = NormalizeName(name)
		}
		if upd.Description != nil {
			role.Description = strings.TrimSpace(*upd.Description)
		}
		if err := tx.Roles().Update(ctx, role); err != nil {
			return err
		}
		out = *role
		return nil
	})
	if err != nil {
		return RoleDTO{}, err
	}
	return ToRoleDTO(out), nil
}

// DeleteRole removes the role together with its permission links and user
// memberships.
func (s *AdminService) DeleteRole(ctx context.Context, roleID string) error {
	return s.store.InTx(ctx, func(tx Store) error {
		role, err := s.role(ctx, tx, roleID)
		if err != nil {
			return err
		}
		return tx.Roles().Delete(ctx, role.ID)
	})
}

func (s *AdminService) ListPermissions(ctx context.Context) ([]PermissionDTO, error) {
	perms, err := s.store.Permissions().List(ctx)
	if err != nil {
		return nil, err
	}
	return ToPermissionDTOs(perms), nil
}

// CreatePermission adds a code to the catalog. Codes are stored upper-case.
func (s *AdminService) CreatePermission(ctx context.Context, code, description string) (PermissionDTO, error) {
	code = NormalizeName(code)
	if code == "" {
		return PermissionDTO{}, fmt.Errorf("%w: permission code is required", ErrInvalidInput)
	}
	perm := Permission{
		Code:        code,
		Description: strings.TrimSpace(description),
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.Permissions().Create(ctx, &perm); err != nil {
		if errors.Is(err, ErrConflict) {
			return PermissionDTO{}, fmt.Errorf("%w: permission %q already exists", ErrConflict, code)
		}
		return PermissionDTO{}, err
	}
	return ToPermissionDTO(perm), nil
}

func (s *AdminService) UpdatePermission(ctx context.Context, id int64, upd PermissionUpdate) (PermissionDTO, error) {
	var out Permission
	err := s.store.InTx(ctx, func(tx Store) error {
		perm, err := tx.Permissions().Find(ctx, id)
		if err != nil {
			return notFound(err, "permission %d not found", id)
		}
		if upd.Code != nil {
			code := NormalizeName(*upd.Code)
			if code == "" {
				return fmt.Errorf("%w: permission code is required", ErrInvalidInput)
			}
			perm.Code = code
		}
		if upd.Description != nil {
			perm.Description = strings.TrimSpace(*upd.Description)
		}
		if err := tx.Permissions().Update(ctx, perm); err != nil {
			if errors.Is(err, ErrConflict) {
				return fmt.Errorf("%w: permission %q already exists", ErrConflict, perm.Code)
			}
			return err
		}
		out = *perm
		return nil
	})
	if err != nil {
		return PermissionDTO{}, err
	}
	return ToPermissionDTO(out), nil
}

// DeletePermission refuses while any role still references the permission.
func (s *AdminService) DeletePermission(ctx context.Context, id int64) error {
	return s.store.InTx(ctx, func(tx Store) error {
		perm, err := tx.Permissions().Find(ctx, id)
		if err != nil {
			return notFound(err, "permission %d not found", id)
		}
		n, err := tx.Permissions().CountRoleLinks(ctx, perm.ID)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: permission %q is assigned to %d role(s)", ErrConflict, perm.Code, n)
		}
		return tx.Permissions().Delete(ctx, perm.ID)
	})
}

// AssignPermissions links every permission to the role. Existing links are
// left alone; an unknown id aborts the whole assignment.
func (s *AdminService) AssignPermissions(ctx context.Context, roleID string, permissionIDs []int64) error {
	if len(permissionIDs) == 0 {
		return fmt.Errorf("%w: at least one permission id is required", ErrInvalidInput)
	}
	wanted := dedupeIDs(permissionIDs)
	return s.store.InTx(ctx, func(tx Store) error {
		role, err := s.role(ctx, tx, roleID)
		if err != nil {
			return err
		}
		found, err := tx.Permissions().FindByIDs(ctx, wanted)
		if err != nil {
			return err
		}
		if len(found) != len(wanted) {
			return fmt.Errorf("%w: one or more permissions do not exist", ErrNotFound)
		}
		existing, err := tx.Permissions().ForRole(ctx, role.ID)
		if err != nil {
			return err
		}
		linked := make(map[int64]struct{}, len(existing))
		for _, p := range existing {
			linked[p.ID] = struct{}{}
		}
		for _, id := range wanted {
			if _, ok := linked[id]; ok {
				continue
			}
			if err := tx.Permissions().Link(ctx, role.ID, id); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *AdminService) RemovePermission(ctx context.Context, roleID string, permissionID int64) error {
	return s.store.InTx(ctx, func(tx Store) error {
		role, err := s.role(ctx, tx, roleID)
		if err != nil {
			return err
		}
		ok, err := tx.Permissions().Unlink(ctx, role.ID, permissionID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: permission %d is not assigned to role %q", ErrNotFound, permissionID, role.Name)
		}
		return nil
	})
}

func (s *AdminService) RemoveAllPermissions(ctx context.Context, roleID string) error {
	return s.store.InTx(ctx, func(tx Store) error {
		role, err := s.role(ctx, tx, roleID)
		if err != nil {
			return err
		}
		_, err = tx.Permissions().UnlinkAll(ctx, role.ID)
		return err
	})
}

func (s *AdminService) PermissionsForRole(ctx context.Context, roleID string) ([]PermissionDTO, error) {
	role, err := s.role(ctx, s.store, roleID)
	if err != nil {
		return nil, err
	}
	perms, err := s.store.Permissions().ForRole(ctx, role.ID)
	if err != nil {
		return nil, err
	}
	return ToPermissionDTOs(perms), nil
}

// AssignRole adds the named role to the user.
func (s *AdminService) AssignRole(ctx context.Context, userID, roleName string) error {
	roleName = strings.TrimSpace(roleName)
	if roleName == "" {
		return fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	return s.store.InTx(ctx, func(tx Store) error {
		user, err := s.user(ctx, tx, userID)
		if err != nil {
			return err
		}
		role, err := tx.Roles().FindByName(ctx, roleName)
		if err != nil {
			return notFound(err, "role %q not found", roleName)
		}
		names, err := tx.Users().RoleNames(ctx, user.ID)
		if err != nil {
			return err
		}
		if containsFold(names, role.Name) {
			return fmt.Errorf("%w: user already has role %q", ErrConflict, role.Name)
		}
		return tx.Users().AddRole(ctx, user.ID, role.ID)
	})
}

func (s *AdminService) RemoveRole(ctx context.Context, userID, roleID string) error {
	return s.store.InTx(ctx, func(tx Store) error {
		user, err := s.user(ctx, tx, userID)
		if err != nil {
			return err
		}
		role, err := s.role(ctx, tx, roleID)
		if err != nil {
			return err
		}
		if err := tx.Users().RemoveRole(ctx, user.ID, role.ID); err != nil {
			return notFound(err, "user does not have role %q", role.Name)
		}
		return nil
	})
}

func (s *AdminService) UserRoles(ctx context.Context, userID string) ([]string, error) {
	user, err := s.user(ctx, s.store, userID)
	if err != nil {
		return nil, err
	}
	names, err := s.store.Users().RoleNames(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return dedupeFold(names), nil
}

// ListUsers returns one page of users. Page starts at 1; page size defaults
// to 20 and is capped at 100.
func (s *AdminService) ListUsers(ctx context.Context, q UserQuery) (UserPage, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = defaultPageSize
	}
	if q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}
	q.Search = strings.TrimSpace(q.Search)
	users, total, err := s.store.Users().List(ctx, q)
	if err != nil {
		return UserPage{}, err
	}
	items := make([]UserDTO, 0, len(users))
	for _, u := range users {
		roles, err := s.store.Users().RoleNames(ctx, u.ID)
		if err != nil {
			return UserPage{}, err
		}
		items = append(items, ToUserDTO(u, dedupeFold(roles)))
	}
	return UserPage{Items: items, Page: q.Page, PageSize: q.PageSize, Total: total}, nil
}

func (s *AdminService) GetUser(ctx context.Context, userID string) (UserDTO, error) {
	user, err := s.user(ctx, s.store, userID)
	if err != nil {
		return UserDTO{}, err
	}
	roles, err := s.store.Users().RoleNames(ctx, user.ID)
	if err != nil {
		return UserDTO{}, err
	}
	return ToUserDTO(*user, dedupeFold(roles)), nil
}

// DeleteUser soft deletes the account, invalidates its access tokens and
// revokes its refresh tokens.
func (s *AdminService) DeleteUser(ctx context.Context, userID string) error {
	return s.store.InTx(ctx, func(tx Store) error {
		user, err := s.user(ctx, tx, userID)
		if err != nil {
			return err
		}
		user.IsDeleted = true
		user.UpdatedAt = s.now().UTC()
		if err := tx.Users().Update(ctx, user); err != nil {
			return err
		}
		if _, err := tx.Users().IncrementTokenVersion(ctx, user.ID); err != nil {
			return err
		}
		_, err = s.ledger.withStore(tx).RevokeAll(ctx, user.ID, RevokeReasonUserDeleted)
		return err
	})
}

func (s *AdminService) role(ctx context.Context, st Store, roleID string) (*Role, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return nil, fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	role, err := st.Roles().Find(ctx, roleID)
	if err != nil {
		return nil, notFound(err, "role %s not found", roleID)
	}
	return role, nil
}

// user returns a live account; soft-deleted users are not found.
func (s *AdminService) user(ctx context.Context, st Store, userID string) (*User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	user, err := st.Users().Find(ctx, userID)
	if err != nil {
		return nil, notFound(err, "user %s not found", userID)
	}
	if user.IsDeleted {
		return nil, fmt.Errorf("%w: user %s not found", ErrNotFound, userID)
	}
	return user, nil
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
	}
	return err
}

func dedupeIDs(values []int64) []int64 {
	seen := make(map[int64]struct{}, len(values))
	out := make([]int64, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
