package auth

import (
	"context"
	"errors"
	"sort"
	"strings"
)

// PermissionResolver maps users to roles and roles to permission codes.
type PermissionResolver struct {
	store Store
}

// NewPermissionResolver constructs a resolver over store.
func NewPermissionResolver(store Store) *PermissionResolver {
	return &PermissionResolver{store: store}
}

func (r *PermissionResolver) withStore(st Store) *PermissionResolver {
	return &PermissionResolver{store: st}
}

// RolesForUser returns the role names assigned to the user.
func (r *PermissionResolver) RolesForUser(ctx context.Context, userID string) ([]string, error) {
	names, err := r.store.Users().RoleNames(ctx, userID)
	if err != nil {
		return nil, err
	}
	return dedupeFold(names), nil
}

// ResolvePermissionCodes returns the distinct permission codes granted to the
// user through its roles. Unknown, deleted and role-less users get an empty set.
func (r *PermissionResolver) ResolvePermissionCodes(ctx context.Context, userID string) ([]string, error) {
	user, err := r.store.Users().Find(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return []string{}, nil
		}
		return nil, err
	}
	if user.IsDeleted {
		return []string{}, nil
	}
	roles, err := r.RolesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return r.codesForRoles(ctx, roles)
}

func (r *PermissionResolver) codesForRoles(ctx context.Context, roleNames []string) ([]string, error) {
	if len(roleNames) == 0 {
		return []string{}, nil
	}
	normalized := make([]string, 0, len(roleNames))
	for _, name := range roleNames {
		normalized = append(normalized, NormalizeName(name))
	}
	roles, err := r.store.Roles().FindByNames(ctx, normalized)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return []string{}, nil
	}
	roleIDs := make([]string, 0, len(roles))
	for _, role := range roles {
		roleIDs = append(roleIDs, role.ID)
	}
	permIDs, err := r.store.Permissions().IDsForRoles(ctx, roleIDs)
	if err != nil {
		return nil, err
	}
	if len(permIDs) == 0 {
		return []string{}, nil
	}
	perms, err := r.store.Permissions().FindByIDs(ctx, permIDs)
	if err != nil {
		return nil, err
	}
	codes := make([]string, 0, len(perms))
	for _, p := range perms {
		codes = append(codes, p.Code)
	}
	codes = dedupeFold(codes)
	sort.Strings(codes)
	return codes, nil
}

// dedupeFold drops blanks and case-insensitive duplicates, keeping the first spelling.
func dedupeFold(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToUpper(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}

func containsFold(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(v, target) {
			return true
		}
	}
	return false
}
