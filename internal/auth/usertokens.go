package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"resturant.app/internal/ids"
)

const (
	defaultUserTokenTTL = 24 * time.Hour
	userTokenBytes      = 32
)

// userTokens issues and consumes single-use email confirmation and password
// reset tokens. Only the hash of a token is stored.
type userTokens struct {
	ttl time.Duration
	now func() time.Time
}

func (u userTokens) issue(ctx context.Context, st Store, userID, purpose string) (string, error) {
	buf := make([]byte, userTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate %s token: %w", purpose, err)
	}
	raw := base64.RawURLEncoding.EncodeToString(buf)
	now := u.now().UTC()
	err := st.UserTokens().Create(ctx, &UserToken{
		ID:        ids.New(),
		UserID:    userID,
		Purpose:   purpose,
		TokenHash: hashSecret(raw),
		ExpiresAt: now.Add(u.ttl),
		CreatedAt: now,
	})
	if err != nil {
		return "", err
	}
	return raw, nil
}

// consume marks the token used. Unknown, used and expired tokens are
// ErrUnauthorized.
func (u userTokens) consume(ctx context.Context, st Store, userID, purpose, raw string) error {
	raw = normalizeUserToken(raw)
	if raw == "" {
		return ErrUnauthorized
	}
	ok, err := st.UserTokens().Consume(ctx, userID, purpose, hashSecret(raw), u.now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnauthorized
	}
	return nil
}

// normalizeUserToken undoes URL escaping left by mail clients that copy the
// encoded form out of a link.
func normalizeUserToken(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, "%") {
		if unescaped, err := url.QueryUnescape(raw); err == nil {
			raw = unescaped
		}
	}
	return raw
}
