package auth

import (
	"context"
	"time"
)

// Store describes persistence required by the auth subsystem. InTx runs fn
// inside a transaction; calling InTx on the store passed to fn joins the
// running transaction instead of opening a nested one.
type Store interface {
	Users() UserStore
	Roles() RoleStore
	Permissions() PermissionStore
	RefreshTokens() RefreshTokenStore
	ExternalLogins() ExternalLoginStore
	UserTokens() UserTokenStore
	InTx(ctx context.Context, fn func(Store) error) error
}

// UserStore manages accounts and their role memberships.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	// Update persists profile, confirmation, deletion and lockout fields.
	Update(ctx context.Context, u *User) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	// IncrementTokenVersion bumps the counter in a single statement and
	// returns the new value.
	IncrementTokenVersion(ctx context.Context, userID string) (int, error)
	List(ctx context.Context, q UserQuery) ([]User, int, error)
	AddRole(ctx context.Context, userID, roleID string) error
	RemoveRole(ctx context.Context, userID, roleID string) error
	RoleNames(ctx context.Context, userID string) ([]string, error)
}

// RoleStore manages roles.
type RoleStore interface {
	Create(ctx context.Context, r *Role) error
	Find(ctx context.Context, id string) (*Role, error)
	FindByName(ctx context.Context, name string) (*Role, error)
	// FindByNames matches on normalized names.
	FindByNames(ctx context.Context, normalized []string) ([]Role, error)
	List(ctx context.Context) ([]Role, error)
	Update(ctx context.Context, r *Role) error
	Delete(ctx context.Context, id string) error
}

// PermissionStore manages the permission catalog and role links.
type PermissionStore interface {
	Create(ctx context.Context, p *Permission) error
	Find(ctx context.Context, id int64) (*Permission, error)
	FindByIDs(ctx context.Context, ids []int64) ([]Permission, error)
	List(ctx context.Context) ([]Permission, error)
	Update(ctx context.Context, p *Permission) error
	Delete(ctx context.Context, id int64) error
	ForRole(ctx context.Context, roleID string) ([]Permission, error)
	IDsForRoles(ctx context.Context, roleIDs []string) ([]int64, error)
	Link(ctx context.Context, roleID string, permissionID int64) error
	// Unlink reports whether a link existed.
	Unlink(ctx context.Context, roleID string, permissionID int64) (bool, error)
	UnlinkAll(ctx context.Context, roleID string) (int64, error)
	CountRoleLinks(ctx context.Context, permissionID int64) (int, error)
}

// RefreshTokenStore persists the refresh chain. Rows are never deleted.
type RefreshTokenStore interface {
	Create(ctx context.Context, t *RefreshToken) error
	Find(ctx context.Context, id string) (*RefreshToken, error)
	FindByHash(ctx context.Context, hash string) (*RefreshToken, error)
	// Revoke sets the revocation fields only while the token is still
	// unrevoked and reports whether it did.
	Revoke(ctx context.Context, id string, at time.Time, by, replacedBy string) (bool, error)
	RevokeAllForUser(ctx context.Context, userID string, at time.Time, reason string) (int64, error)
	// LatestActive returns the newest active token of the user other than
	// excludeID, or ErrNotFound.
	LatestActive(ctx context.Context, userID, excludeID string, now time.Time) (*RefreshToken, error)
}

// ExternalLoginStore links local users to federated subjects.
type ExternalLoginStore interface {
	Find(ctx context.Context, provider, providerKey string) (*ExternalLogin, error)
	// Create is idempotent and reports whether a row was inserted.
	Create(ctx context.Context, l *ExternalLogin) (bool, error)
}

// UserTokenStore keeps hashed single-use tokens.
type UserTokenStore interface {
	Create(ctx context.Context, t *UserToken) error
	// Consume marks a matching unused, unexpired token as used and reports
	// whether one was found.
	Consume(ctx context.Context, userID, purpose, tokenHash string, now time.Time) (bool, error)
}
