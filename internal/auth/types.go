package auth

import (
	"strings"
	"time"
)

// Default role granted to self-registered and federated accounts.
const DefaultRole = "User"

// Reasons recorded in place of an IP when tokens are revoked in bulk.
const (
	RevokeReasonPasswordChanged = "Password Changed"
	RevokeReasonPasswordReset   = "Password Reset"
	RevokeReasonUserDeleted     = "User Deleted"
)

// User is a local account. Accounts are soft deleted only.
type User struct {
	ID                string
	Email             string
	NormalizedEmail   string
	PasswordHash      string
	FullName          string
	PhoneNumber       string
	AvatarURL         string
	EmailConfirmed    bool
	IsDeleted         bool
	TokenVersion      int
	AccessFailedCount int
	LockoutEnd        *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// LockedOut reports whether the account is locked at the given instant.
func (u User) LockedOut(now time.Time) bool {
	return u.LockoutEnd != nil && now.Before(*u.LockoutEnd)
}

// Role groups permissions.
type Role struct {
	ID             string
	Name           string
	NormalizedName string
	Description    string
	CreatedAt      time.Time
}

// Permission is a fine-grained capability identified by its code.
type Permission struct {
	ID          int64
	Code        string
	Description string
	CreatedAt   time.Time
}

// RolePermission links roles to permissions.
type RolePermission struct {
	RoleID       string
	PermissionID int64
}

// RefreshToken is one link of the append-only refresh chain. The raw token
// value is never stored.
type RefreshToken struct {
	ID                string
	UserID            string
	TokenHash         string
	JwtID             string
	ExpiresOn         time.Time
	CreatedOn         time.Time
	CreatedByIP       string
	UserAgent         string
	RevokedOn         *time.Time
	RevokedByIP       string
	ReplacedByTokenID string
}

// IsActive reports whether the token may still be redeemed at now.
func (t RefreshToken) IsActive(now time.Time) bool {
	return t.RevokedOn == nil && !now.After(t.ExpiresOn)
}

// ExternalLogin links a local user to a federated subject.
type ExternalLogin struct {
	Provider    string
	ProviderKey string
	UserID      string
	DisplayName string
	CreatedAt   time.Time
}

// Purposes of single-use user tokens.
const (
	PurposeEmailConfirmation = "email_confirmation"
	PurposePasswordReset     = "password_reset"
)

// UserToken is a hashed single-use token for email confirmation or password reset.
type UserToken struct {
	ID        string
	UserID    string
	Purpose   string
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// UserQuery filters and pages the user listing.
type UserQuery struct {
	Page     int
	PageSize int
	Search   string
}

// RoleUpdate carries optional role changes.
type RoleUpdate struct {
	Name        *string
	Description *string
}

// PermissionUpdate carries optional permission changes.
type PermissionUpdate struct {
	Code        *string
	Description *string
}

// NormalizeName is the lookup form of role names, emails and permission codes.
func NormalizeName(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
