package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"resturant.app/internal/ids"
)

const (
	defaultRefreshTTL = 7 * 24 * time.Hour
	refreshTokenBytes = 64
)

// Ledger owns the refresh-token chain. Every mutation of the refresh token
// table goes through it.
type Ledger struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// NewLedger constructs a Ledger. Zero ttl falls back to seven days and a nil
// clock uses time.Now.
func NewLedger(store Store, ttl time.Duration, now func() time.Time) *Ledger {
	if ttl <= 0 {
		ttl = defaultRefreshTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Ledger{store: store, ttl: ttl, now: now}
}

func (l *Ledger) withStore(st Store) *Ledger {
	cp := *l
	cp.store = st
	return &cp
}

// Mint builds a new, unpersisted refresh record paired with jwtID. The raw
// value is returned once and never again.
func (l *Ledger) Mint(userID, jwtID, ip, userAgent string) (string, RefreshToken, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", RefreshToken{}, fmt.Errorf("generate refresh token: %w", err)
	}
	raw := base64.StdEncoding.EncodeToString(buf)
	now := l.now().UTC()
	return raw, RefreshToken{
		ID:          ids.New(),
		UserID:      userID,
		TokenHash:   HashRefreshToken(raw),
		JwtID:       jwtID,
		ExpiresOn:   now.Add(l.ttl),
		CreatedOn:   now,
		CreatedByIP: ip,
		UserAgent:   userAgent,
	}, nil
}

// Issue mints and persists a refresh token for the access token jwtID.
func (l *Ledger) Issue(ctx context.Context, userID, jwtID, ip, userAgent string) (string, RefreshToken, error) {
	raw, rec, err := l.Mint(userID, jwtID, ip, userAgent)
	if err != nil {
		return "", RefreshToken{}, err
	}
	if err := l.store.RefreshTokens().Create(ctx, &rec); err != nil {
		return "", RefreshToken{}, err
	}
	return raw, rec, nil
}

// Redeem returns the active record for raw when it was issued alongside the
// access token expectedJwtID.
func (l *Ledger) Redeem(ctx context.Context, raw, expectedJwtID string) (RefreshToken, error) {
	if raw == "" || expectedJwtID == "" {
		return RefreshToken{}, ErrUnauthorized
	}
	rec, err := l.store.RefreshTokens().FindByHash(ctx, HashRefreshToken(raw))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return RefreshToken{}, ErrUnauthorized
		}
		return RefreshToken{}, err
	}
	if !rec.IsActive(l.now().UTC()) || rec.JwtID != expectedJwtID {
		return RefreshToken{}, ErrUnauthorized
	}
	return *rec, nil
}

// Rotate persists next and revokes old in one transaction, linking old to
// next. When old was revoked concurrently nothing is persisted.
func (l *Ledger) Rotate(ctx context.Context, old, next RefreshToken, ip string) error {
	return l.store.InTx(ctx, func(tx Store) error {
		tokens := tx.RefreshTokens()
		if err := tokens.Create(ctx, &next); err != nil {
			return err
		}
		ok, err := tokens.Revoke(ctx, old.ID, l.now().UTC(), ip, next.ID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrUnauthorized
		}
		return nil
	})
}

// RevokeAll revokes every active token of the user, recording reason in
// place of an IP.
func (l *Ledger) RevokeAll(ctx context.Context, userID, reason string) (int64, error) {
	return l.store.RefreshTokens().RevokeAllForUser(ctx, userID, l.now().UTC(), reason)
}

// RevokeOne revokes the active token raw. When the user holds a newer active
// token it is recorded as the replacement; that link is an annotation, not
// rotation lineage.
func (l *Ledger) RevokeOne(ctx context.Context, raw, ip string) error {
	if raw == "" {
		return ErrUnauthorized
	}
	return l.store.InTx(ctx, func(tx Store) error {
		tokens := tx.RefreshTokens()
		now := l.now().UTC()
		rec, err := tokens.FindByHash(ctx, HashRefreshToken(raw))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrUnauthorized
			}
			return err
		}
		if !rec.IsActive(now) {
			return ErrUnauthorized
		}
		var successor string
		latest, err := tokens.LatestActive(ctx, rec.UserID, rec.ID, now)
		switch {
		case err == nil:
			if latest.CreatedOn.After(rec.CreatedOn) {
				successor = latest.ID
			}
		case !errors.Is(err, ErrNotFound):
			return err
		}
		ok, err := tokens.Revoke(ctx, rec.ID, now, ip, successor)
		if err != nil {
			return err
		}
		if !ok {
			return ErrUnauthorized
		}
		return nil
	})
}

// HashRefreshToken is the one-way form stored for a raw refresh token.
func HashRefreshToken(raw string) string {
	return hashSecret(raw)
}

func hashSecret(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return base64.StdEncoding.EncodeToString(sum[:])
}
