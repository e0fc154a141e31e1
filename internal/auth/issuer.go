package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultAccessTTL = 60 * time.Minute

// Claims are the access token claims.
type Claims struct {
	Email        string   `json:"email"`
	Name         string   `json:"name"`
	FullName     string   `json:"full_name"`
	Roles        []string `json:"roles,omitempty"`
	Permissions  []string `json:"permissions,omitempty"`
	TokenVersion int      `json:"token_version"`
	jwt.RegisteredClaims
}

// TokenConfig configures access token signing.
type TokenConfig struct {
	SigningKey []byte
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	Now        func() time.Time
}

// AccessToken is a signed access token together with its id and expiry.
type AccessToken struct {
	Token     string
	ID        string
	ExpiresAt time.Time
}

// TokenIssuer mints access tokens and session pairs and performs refresh.
type TokenIssuer struct {
	store    Store
	ledger   *Ledger
	resolver *PermissionResolver

	key       []byte
	issuer    string
	audience  string
	accessTTL time.Duration
	now       func() time.Time
}

// NewTokenIssuer validates cfg and constructs a TokenIssuer. A missing
// signing key is ErrNotConfigured.
func NewTokenIssuer(store Store, ledger *Ledger, resolver *PermissionResolver, cfg TokenConfig) (*TokenIssuer, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, fmt.Errorf("%w: jwt signing key is required", ErrNotConfigured)
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = defaultAccessTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &TokenIssuer{
		store:     store,
		ledger:    ledger,
		resolver:  resolver,
		key:       cfg.SigningKey,
		issuer:    strings.TrimSpace(cfg.Issuer),
		audience:  strings.TrimSpace(cfg.Audience),
		accessTTL: cfg.AccessTTL,
		now:       cfg.Now,
	}, nil
}

func (t *TokenIssuer) withStore(st Store) *TokenIssuer {
	cp := *t
	cp.store = st
	cp.ledger = t.ledger.withStore(st)
	cp.resolver = t.resolver.withStore(st)
	return &cp
}

// IssueAccessToken signs an access token for user with the given roles and
// the permissions those roles currently grant.
func (t *TokenIssuer) IssueAccessToken(ctx context.Context, user *User, roles []string) (AccessToken, error) {
	perms, err := t.resolver.codesForRoles(ctx, roles)
	if err != nil {
		return AccessToken{}, err
	}
	return t.sign(user, roles, perms)
}

func (t *TokenIssuer) sign(user *User, roles, perms []string) (AccessToken, error) {
	now := t.now().UTC()
	exp := now.Add(t.accessTTL)
	claims := Claims{
		Email:        user.Email,
		Name:         user.Email,
		FullName:     user.FullName,
		Roles:        roles,
		Permissions:  perms,
		TokenVersion: user.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	if t.audience != "" {
		claims.Audience = jwt.ClaimStrings{t.audience}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
	if err != nil {
		return AccessToken{}, fmt.Errorf("sign token: %w", err)
	}
	return AccessToken{Token: signed, ID: claims.ID, ExpiresAt: exp}, nil
}

// IssueSessionPair issues an access token and a refresh token paired by jti.
func (t *TokenIssuer) IssueSessionPair(ctx context.Context, user *User, ip, userAgent string) (Session, error) {
	roles, err := t.resolver.RolesForUser(ctx, user.ID)
	if err != nil {
		return Session{}, err
	}
	access, err := t.IssueAccessToken(ctx, user, roles)
	if err != nil {
		return Session{}, err
	}
	raw, _, err := t.ledger.Issue(ctx, user.ID, access.ID, ip, userAgent)
	if err != nil {
		return Session{}, err
	}
	return ToSessionResponse(access, raw, user, roles), nil
}

// ParseAccessToken fully validates token, including its lifetime.
func (t *TokenIssuer) ParseAccessToken(token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}
	if t.audience != "" {
		opts = append(opts, jwt.WithAudience(t.audience))
	}
	return t.parse(token, opts...)
}

// ParseExpiredAccessToken validates signature, issuer and audience but
// accepts tokens past their expiry.
func (t *TokenIssuer) ParseExpiredAccessToken(token string) (*Claims, error) {
	claims, err := t.parse(token, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, err
	}
	if t.issuer != "" && claims.Issuer != t.issuer {
		return nil, ErrUnauthorized
	}
	if t.audience != "" && !containsFold(claims.Audience, t.audience) {
		return nil, ErrUnauthorized
	}
	return claims, nil
}

func (t *TokenIssuer) parse(token string, opts ...jwt.ParserOption) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrUnauthorized
	}
	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return t.key, nil
	}, opts...)
	if err != nil {
		return nil, ErrUnauthorized
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" || claims.ID == "" {
		return nil, ErrUnauthorized
	}
	return claims, nil
}

// Refresh exchanges an expired access token and its paired refresh token
// for a new pair. Any failure is ErrUnauthorized and leaves no trace.
func (t *TokenIssuer) Refresh(ctx context.Context, accessToken, refreshToken, ip, userAgent string) (Session, error) {
	claims, err := t.ParseExpiredAccessToken(accessToken)
	if err != nil {
		return Session{}, ErrUnauthorized
	}
	var session Session
	err = t.store.InTx(ctx, func(tx Store) error {
		it := t.withStore(tx)
		user, err := tx.Users().Find(ctx, claims.Subject)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrUnauthorized
			}
			return err
		}
		if user.IsDeleted || user.TokenVersion != claims.TokenVersion {
			return ErrUnauthorized
		}
		old, err := it.ledger.Redeem(ctx, refreshToken, claims.ID)
		if err != nil {
			return err
		}
		roles, err := it.resolver.RolesForUser(ctx, user.ID)
		if err != nil {
			return err
		}
		access, err := it.IssueAccessToken(ctx, user, roles)
		if err != nil {
			return err
		}
		raw, next, err := it.ledger.Mint(user.ID, access.ID, ip, userAgent)
		if err != nil {
			return err
		}
		if err := it.ledger.Rotate(ctx, old, next, ip); err != nil {
			return err
		}
		session = ToSessionResponse(access, raw, user, roles)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return Session{}, ErrUnauthorized
		}
		return Session{}, err
	}
	return session, nil
}
