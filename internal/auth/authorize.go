package auth

import (
	"context"
	"errors"
	"strings"
)

// Principal is the caller proven by a validated access token.
type Principal struct {
	UserID       string
	Email        string
	Roles        []string
	Permissions  []string
	TokenVersion int
	TokenID      string
}

// PrincipalFromClaims converts verified claims into a Principal.
func PrincipalFromClaims(c *Claims) Principal {
	return Principal{
		UserID:       c.Subject,
		Email:        c.Email,
		Roles:        c.Roles,
		Permissions:  c.Permissions,
		TokenVersion: c.TokenVersion,
		TokenID:      c.ID,
	}
}

// HasPermission reports whether the token claims carry code. Authorization
// decisions use Authorizer, which re-resolves permissions from storage.
func (p Principal) HasPermission(code string) bool {
	return containsFold(p.Permissions, code)
}

// Authorizer turns requirements into allow/deny decisions against live data.
type Authorizer struct {
	store    Store
	resolver *PermissionResolver
	policies *PolicyProvider
}

// NewAuthorizer constructs an Authorizer. A nil policies provider gets an
// empty one.
func NewAuthorizer(store Store, resolver *PermissionResolver, policies *PolicyProvider) *Authorizer {
	if policies == nil {
		policies = NewPolicyProvider()
	}
	return &Authorizer{store: store, resolver: resolver, policies: policies}
}

// Policies exposes the policy provider used by AuthorizePolicy.
func (a *Authorizer) Policies() *PolicyProvider { return a.policies }

// Authorize reports whether p satisfies req. Deny is not an error; errors are
// reserved for storage failures.
func (a *Authorizer) Authorize(ctx context.Context, p Principal, req Requirement) (bool, error) {
	if strings.TrimSpace(p.UserID) == "" || req == nil {
		return false, nil
	}
	user, err := a.store.Users().Find(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if user.IsDeleted {
		return false, nil
	}
	roles, err := a.resolver.RolesForUser(ctx, user.ID)
	if err != nil {
		return false, err
	}
	if len(roles) == 0 {
		return false, nil
	}
	switch r := req.(type) {
	case PermissionRequirement:
		codes, err := a.resolver.codesForRoles(ctx, roles)
		if err != nil {
			return false, err
		}
		return containsFold(codes, r.Code), nil
	case RoleRequirement:
		for _, role := range r.Roles {
			if containsFold(roles, role) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, nil
	}
}

// AuthorizePolicy resolves name through the policy provider and authorizes
// against it. Unknown policy names deny.
func (a *Authorizer) AuthorizePolicy(ctx context.Context, p Principal, name string) (bool, error) {
	req, ok := a.policies.Policy(name)
	if !ok {
		return false, nil
	}
	return a.Authorize(ctx, p, req)
}
