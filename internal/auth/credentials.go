package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength  = 6
	maxFailedAttempts  = 5
	defaultLockoutSpan = 5 * time.Minute
)

// HashPassword hashes plaintext password using bcrypt.
func HashPassword(password string) (string, error) {
	if len(password) == 0 {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// ValidatePassword enforces the account password policy.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	var digit, lower, upper bool
	for _, r := range password {
		switch {
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		}
	}
	if !digit || !lower || !upper {
		return fmt.Errorf("%w: password must contain a digit, a lower-case and an upper-case letter", ErrInvalidInput)
	}
	return nil
}

// CredentialStore verifies passwords and owns the per-user token version.
type CredentialStore struct {
	store   Store
	ledger  *Ledger
	now     func() time.Time
	lockout time.Duration
}

// NewCredentialStore constructs a CredentialStore. A nil clock uses time.Now.
func NewCredentialStore(store Store, ledger *Ledger, now func() time.Time) *CredentialStore {
	if now == nil {
		now = time.Now
	}
	return &CredentialStore{store: store, ledger: ledger, now: now, lockout: defaultLockoutSpan}
}

func (c *CredentialStore) withStore(st Store) *CredentialStore {
	cp := *c
	cp.store = st
	cp.ledger = c.ledger.withStore(st)
	return &cp
}

// VerifyPassword reports whether plaintext matches the stored hash.
func (c *CredentialStore) VerifyPassword(user *User, plaintext string) bool {
	if user == nil || user.PasswordHash == "" || plaintext == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(plaintext)) == nil
}

// IncrementTokenVersion invalidates every access token issued to the user so far.
func (c *CredentialStore) IncrementTokenVersion(ctx context.Context, userID string) (int, error) {
	return c.store.Users().IncrementTokenVersion(ctx, userID)
}

// SetPassword replaces the password of user, bumps the token version and
// revokes every active refresh token with reason, all in one transaction.
// user is updated in place only after the transaction commits.
func (c *CredentialStore) SetPassword(ctx context.Context, user *User, plain, reason string) error {
	if err := ValidatePassword(plain); err != nil {
		return err
	}
	hash, err := HashPassword(plain)
	if err != nil {
		return err
	}
	var version int
	err = c.store.InTx(ctx, func(tx Store) error {
		cs := c.withStore(tx)
		if err := tx.Users().UpdatePassword(ctx, user.ID, hash); err != nil {
			return err
		}
		if version, err = cs.IncrementTokenVersion(ctx, user.ID); err != nil {
			return err
		}
		_, err := cs.ledger.RevokeAll(ctx, user.ID, reason)
		return err
	})
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	user.TokenVersion = version
	return nil
}

// RecordFailure counts a failed password check and locks the account once
// the limit is reached.
func (c *CredentialStore) RecordFailure(ctx context.Context, user *User) error {
	user.AccessFailedCount++
	if user.AccessFailedCount >= maxFailedAttempts {
		end := c.now().UTC().Add(c.lockout)
		user.LockoutEnd = &end
		user.AccessFailedCount = 0
	}
	return c.store.Users().Update(ctx, user)
}

// ResetFailures clears the failure counter after a successful login.
func (c *CredentialStore) ResetFailures(ctx context.Context, user *User) error {
	if user.AccessFailedCount == 0 && user.LockoutEnd == nil {
		return nil
	}
	user.AccessFailedCount = 0
	user.LockoutEnd = nil
	return c.store.Users().Update(ctx, user)
}
