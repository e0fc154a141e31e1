package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"resturant.app/internal/ids"
)

// ProviderGoogle names the Google login provider in external login rows.
const ProviderGoogle = "Google"

// FederatedIdentity is an identity verified by a third-party provider.
type FederatedIdentity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// CodeExchanger swaps an authorization code for a provider id token.
type CodeExchanger interface {
	Exchange(ctx context.Context, code, redirectURI string) (string, error)
}

// IDTokenVerifier validates a provider id token and extracts the identity.
type IDTokenVerifier interface {
	Verify(ctx context.Context, idToken string) (FederatedIdentity, error)
}

// FederatedBridge turns a federated authorization code into a local session.
type FederatedBridge struct {
	store     Store
	issuer    *TokenIssuer
	exchanger CodeExchanger
	verifier  IDTokenVerifier
	now       func() time.Time
	log       logrus.FieldLogger
}

// NewFederatedBridge constructs a bridge. Exchanger and verifier are required.
func NewFederatedBridge(store Store, issuer *TokenIssuer, exchanger CodeExchanger, verifier IDTokenVerifier, log logrus.FieldLogger) (*FederatedBridge, error) {
	if exchanger == nil || verifier == nil {
		return nil, fmt.Errorf("%w: federated login requires an exchanger and a verifier", ErrNotConfigured)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &FederatedBridge{
		store:     store,
		issuer:    issuer,
		exchanger: exchanger,
		verifier:  verifier,
		now:       issuer.now,
		log:       log,
	}, nil
}

// Login runs code exchange, token verification, identity resolution, provider
// linking and session issuance. The mutating steps share one transaction.
func (b *FederatedBridge) Login(ctx context.Context, code, redirectURI, ip, userAgent string) (Session, error) {
	if strings.TrimSpace(code) == "" {
		return Session{}, ErrUnauthorized
	}
	idToken, err := b.exchanger.Exchange(ctx, code, redirectURI)
	if err != nil {
		b.log.WithError(err).Warn("federated code exchange failed")
		return Session{}, ErrUnauthorized
	}
	ident, err := b.verifier.Verify(ctx, idToken)
	if err != nil {
		b.log.WithError(err).Warn("federated id token rejected")
		return Session{}, ErrUnauthorized
	}
	if !ident.EmailVerified || strings.TrimSpace(ident.Email) == "" || ident.Subject == "" {
		return Session{}, ErrUnauthorized
	}
	if ident.Provider == "" {
		ident.Provider = ProviderGoogle
	}

	var session Session
	err = b.store.InTx(ctx, func(tx Store) error {
		user, err := b.resolveUser(ctx, tx, ident)
		if err != nil {
			return err
		}
		if _, err := tx.ExternalLogins().Create(ctx, &ExternalLogin{
			Provider:    ident.Provider,
			ProviderKey: ident.Subject,
			UserID:      user.ID,
			DisplayName: ident.Provider,
			CreatedAt:   b.now().UTC(),
		}); err != nil {
			return err
		}
		session, err = b.issuer.withStore(tx).IssueSessionPair(ctx, user, ip, userAgent)
		return err
	})
	if err != nil {
		if !errors.Is(err, ErrUnauthorized) {
			b.log.WithError(err).Error("federated login rolled back")
		}
		return Session{}, ErrUnauthorized
	}
	return session, nil
}

func (b *FederatedBridge) resolveUser(ctx context.Context, tx Store, ident FederatedIdentity) (*User, error) {
	user, err := tx.Users().FindByEmail(ctx, ident.Email)
	switch {
	case errors.Is(err, ErrNotFound):
		return b.provision(ctx, tx, ident)
	case err != nil:
		return nil, err
	}
	if user.IsDeleted {
		return nil, ErrUnauthorized
	}
	changed := false
	if ident.Name != "" && user.FullName != ident.Name {
		user.FullName = ident.Name
		changed = true
	}
	if ident.Picture != "" && user.AvatarURL != ident.Picture {
		user.AvatarURL = ident.Picture
		changed = true
	}
	if changed {
		if err := tx.Users().Update(ctx, user); err != nil {
			return nil, err
		}
	}
	return user, nil
}

func (b *FederatedBridge) provision(ctx context.Context, tx Store, ident FederatedIdentity) (*User, error) {
	name := ident.Name
	if name == "" {
		name, _, _ = strings.Cut(ident.Email, "@")
	}
	now := b.now().UTC()
	user := &User{
		ID:              ids.New(),
		Email:           strings.TrimSpace(ident.Email),
		NormalizedEmail: NormalizeName(ident.Email),
		FullName:        name,
		AvatarURL:       ident.Picture,
		EmailConfirmed:  true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := tx.Users().Create(ctx, user); err != nil {
		return nil, err
	}
	role, err := tx.Roles().FindByName(ctx, DefaultRole)
	if err != nil {
		return nil, fmt.Errorf("default role %q: %w", DefaultRole, err)
	}
	if err := tx.Users().AddRole(ctx, user.ID, role.ID); err != nil {
		return nil, err
	}
	return user, nil
}
