package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"resturant.app/internal/email"
	"resturant.app/internal/ids"
)

var errAlreadyRegistered = errors.New("auth: email already registered")

// Mailer delivers HTML mail on a best-effort basis.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) bool
}

// AuthURLBuilder builds the provider consent URL.
type AuthURLBuilder interface {
	AuthURL(redirectURI, state string) string
}

// RegisterRequest carries self-registration input.
type RegisterRequest struct {
	Email       string
	Password    string
	FullName    string
	PhoneNumber string
}

// Service composes credential checks, the refresh ledger, token issuance,
// authorization and federated login into the account flows.
type Service struct {
	store Store
	now   func() time.Time
	log   logrus.FieldLogger

	tokenCfg   TokenConfig
	refreshTTL time.Duration

	credentials *CredentialStore
	ledger      *Ledger
	resolver    *PermissionResolver
	issuer      *TokenIssuer
	authorizer  *Authorizer
	policies    *PolicyProvider
	admin       *AdminService
	userTokens  userTokens

	mailer       Mailer
	emailBaseURL string

	exchanger CodeExchanger
	verifier  IDTokenVerifier
	authURLs  AuthURLBuilder
	bridge    *FederatedBridge
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithSigningKey sets the HS256 key for access tokens.
func WithSigningKey(key string) ServiceOption {
	return func(s *Service) error {
		s.tokenCfg.SigningKey = []byte(strings.TrimSpace(key))
		return nil
	}
}

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) ServiceOption {
	return func(s *Service) error {
		s.tokenCfg.Issuer = strings.TrimSpace(issuer)
		return nil
	}
}

// WithAudience sets the token audience claim.
func WithAudience(audience string) ServiceOption {
	return func(s *Service) error {
		s.tokenCfg.Audience = strings.TrimSpace(audience)
		return nil
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.tokenCfg.AccessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn == nil {
			return errors.New("auth: clock must not be nil")
		}
		s.now = fn
		return nil
	}
}

// WithLogger sets the logger used for flow diagnostics.
func WithLogger(log logrus.FieldLogger) ServiceOption {
	return func(s *Service) error {
		if log != nil {
			s.log = log
		}
		return nil
	}
}

// WithMailer enables confirmation and reset mails. baseURL is the frontend
// page the links point to.
func WithMailer(m Mailer, baseURL string) ServiceOption {
	return func(s *Service) error {
		s.mailer = m
		s.emailBaseURL = strings.TrimSpace(baseURL)
		return nil
	}
}

// WithGoogle enables federated login.
func WithGoogle(exchanger CodeExchanger, verifier IDTokenVerifier, urls AuthURLBuilder) ServiceOption {
	return func(s *Service) error {
		s.exchanger = exchanger
		s.verifier = verifier
		s.authURLs = urls
		return nil
	}
}

// WithPolicies replaces the policy provider.
func WithPolicies(p *PolicyProvider) ServiceOption {
	return func(s *Service) error {
		if p != nil {
			s.policies = p
		}
		return nil
	}
}

// NewService constructs a Service backed by store.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	s := &Service{
		store:    store,
		now:      time.Now,
		log:      logrus.StandardLogger(),
		policies: NewPolicyProvider(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.tokenCfg.Now = s.now
	s.ledger = NewLedger(store, s.refreshTTL, s.now)
	s.credentials = NewCredentialStore(store, s.ledger, s.now)
	s.resolver = NewPermissionResolver(store)
	issuer, err := NewTokenIssuer(store, s.ledger, s.resolver, s.tokenCfg)
	if err != nil {
		return nil, err
	}
	s.issuer = issuer
	s.authorizer = NewAuthorizer(store, s.resolver, s.policies)
	s.admin = NewAdminService(store, s.ledger, s.now)
	s.userTokens = userTokens{ttl: defaultUserTokenTTL, now: s.now}
	if s.exchanger != nil || s.verifier != nil {
		bridge, err := NewFederatedBridge(store, issuer, s.exchanger, s.verifier, s.log)
		if err != nil {
			return nil, err
		}
		s.bridge = bridge
	}
	return s, nil
}

func (s *Service) Issuer() *TokenIssuer          { return s.issuer }
func (s *Service) Ledger() *Ledger               { return s.ledger }
func (s *Service) Resolver() *PermissionResolver { return s.resolver }
func (s *Service) Authorizer() *Authorizer       { return s.authorizer }
func (s *Service) Admin() *AdminService          { return s.admin }

// Register creates an unconfirmed account with the default role and mails a
// confirmation link. An already registered email is reported as success.
func (s *Service) Register(ctx context.Context, req RegisterRequest) error {
	addr, err := parseEmail(req.Email)
	if err != nil {
		return err
	}
	if err := ValidatePassword(req.Password); err != nil {
		return err
	}
	hash, err := HashPassword(req.Password)
	if err != nil {
		return err
	}
	var token string
	err = s.store.InTx(ctx, func(tx Store) error {
		if _, err := tx.Users().FindByEmail(ctx, addr); err == nil {
			return errAlreadyRegistered
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		now := s.now().UTC()
		user := &User{
			ID:              ids.New(),
			Email:           addr,
			NormalizedEmail: NormalizeName(addr),
			PasswordHash:    hash,
			FullName:        strings.TrimSpace(req.FullName),
			PhoneNumber:     strings.TrimSpace(req.PhoneNumber),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.Users().Create(ctx, user); err != nil {
			if errors.Is(err, ErrConflict) {
				return errAlreadyRegistered
			}
			return err
		}
		role, err := tx.Roles().FindByName(ctx, DefaultRole)
		if err != nil {
			return fmt.Errorf("default role %q: %w", DefaultRole, err)
		}
		if err := tx.Users().AddRole(ctx, user.ID, role.ID); err != nil {
			return err
		}
		token, err = s.userTokens.issue(ctx, tx, user.ID, PurposeEmailConfirmation)
		return err
	})
	switch {
	case errors.Is(err, errAlreadyRegistered):
		return nil
	case err != nil:
		return err
	}
	s.sendConfirmation(ctx, addr, token)
	return nil
}

// ConfirmEmail consumes a confirmation token. Confirming twice succeeds.
func (s *Service) ConfirmEmail(ctx context.Context, emailAddr, token string) error {
	return s.rejectAsUnauthorized(s.store.InTx(ctx, func(tx Store) error {
		user, err := s.activeUserByEmail(ctx, tx, emailAddr)
		if err != nil {
			return err
		}
		if user.EmailConfirmed {
			return nil
		}
		if err := s.userTokens.consume(ctx, tx, user.ID, PurposeEmailConfirmation, token); err != nil {
			return err
		}
		user.EmailConfirmed = true
		user.UpdatedAt = s.now().UTC()
		return tx.Users().Update(ctx, user)
	}))
}

// ResendConfirmation mails a fresh confirmation link to unconfirmed accounts
// and reports success for every other address.
func (s *Service) ResendConfirmation(ctx context.Context, emailAddr string) error {
	user, err := s.activeUserByEmail(ctx, s.store, emailAddr)
	if err != nil {
		return ignoreUnauthorized(err)
	}
	if user.EmailConfirmed {
		return nil
	}
	token, err := s.userTokens.issue(ctx, s.store, user.ID, PurposeEmailConfirmation)
	if err != nil {
		return err
	}
	s.sendConfirmation(ctx, user.Email, token)
	return nil
}

// Login checks the password of a confirmed, unlocked account and issues a
// session pair.
func (s *Service) Login(ctx context.Context, emailAddr, password, ip, userAgent string) (Session, error) {
	user, err := s.activeUserByEmail(ctx, s.store, emailAddr)
	if err != nil {
		return Session{}, s.rejectAsUnauthorized(err)
	}
	if user.LockedOut(s.now().UTC()) {
		return Session{}, ErrUnauthorized
	}
	if !s.credentials.VerifyPassword(user, password) {
		if err := s.credentials.RecordFailure(ctx, user); err != nil {
			s.log.WithError(err).WithField("user_id", user.ID).Error("record failed login")
		}
		return Session{}, ErrUnauthorized
	}
	if !user.EmailConfirmed {
		return Session{}, ErrUnauthorized
	}
	if err := s.credentials.ResetFailures(ctx, user); err != nil {
		return Session{}, err
	}
	return s.issuer.IssueSessionPair(ctx, user, ip, userAgent)
}

// Refresh rotates a session pair.
func (s *Service) Refresh(ctx context.Context, accessToken, refreshToken, ip, userAgent string) (Session, error) {
	return s.issuer.Refresh(ctx, accessToken, refreshToken, ip, userAgent)
}

// Logout revokes one refresh token.
func (s *Service) Logout(ctx context.Context, refreshToken, ip string) error {
	return s.ledger.RevokeOne(ctx, refreshToken, ip)
}

// ForgotPassword mails a reset link to confirmed accounts and reports success
// for every other address.
func (s *Service) ForgotPassword(ctx context.Context, emailAddr string) error {
	user, err := s.activeUserByEmail(ctx, s.store, emailAddr)
	if err != nil {
		return ignoreUnauthorized(err)
	}
	if !user.EmailConfirmed {
		return nil
	}
	token, err := s.userTokens.issue(ctx, s.store, user.ID, PurposePasswordReset)
	if err != nil {
		return err
	}
	link := fmt.Sprintf("%s?email=%s&token=%s", s.emailBaseURL, url.QueryEscape(user.Email), url.QueryEscape(token))
	subject, body := email.PasswordResetEmail(link)
	s.deliver(ctx, user.Email, subject, body)
	return nil
}

// ResetPassword consumes a reset token and sets a new password. Token use,
// password change and revocation commit together.
func (s *Service) ResetPassword(ctx context.Context, emailAddr, token, newPassword string) error {
	err := s.store.InTx(ctx, func(tx Store) error {
		user, err := s.activeUserByEmail(ctx, tx, emailAddr)
		if err != nil {
			return err
		}
		if err := s.userTokens.consume(ctx, tx, user.ID, PurposePasswordReset, token); err != nil {
			return err
		}
		return s.credentials.withStore(tx).SetPassword(ctx, user, newPassword, RevokeReasonPasswordReset)
	})
	if errors.Is(err, ErrInvalidInput) {
		return err
	}
	return s.rejectAsUnauthorized(err)
}

// ChangePassword verifies the current password before replacing it.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	user, err := s.store.Users().Find(ctx, userID)
	if err != nil {
		return s.rejectAsUnauthorized(err)
	}
	if user.IsDeleted || !s.credentials.VerifyPassword(user, current) {
		return ErrUnauthorized
	}
	return s.credentials.SetPassword(ctx, user, next, RevokeReasonPasswordChanged)
}

// Authenticate validates a bearer token against the live token version.
func (s *Service) Authenticate(ctx context.Context, token string) (Principal, error) {
	claims, err := s.issuer.ParseAccessToken(token)
	if err != nil {
		return Principal{}, ErrUnauthorized
	}
	user, err := s.store.Users().Find(ctx, claims.Subject)
	if err != nil {
		return Principal{}, s.rejectAsUnauthorized(err)
	}
	if user.IsDeleted || user.TokenVersion != claims.TokenVersion {
		return Principal{}, ErrUnauthorized
	}
	return PrincipalFromClaims(claims), nil
}

// Authorize evaluates a named policy for p.
func (s *Service) Authorize(ctx context.Context, p Principal, policy string) (bool, error) {
	return s.authorizer.AuthorizePolicy(ctx, p, policy)
}

// GoogleLogin completes a Google authorization code flow.
func (s *Service) GoogleLogin(ctx context.Context, code, redirectURI, ip, userAgent string) (Session, error) {
	if s.bridge == nil {
		return Session{}, ErrNotConfigured
	}
	return s.bridge.Login(ctx, code, redirectURI, ip, userAgent)
}

// GoogleAuthURL returns the consent URL. returnURL travels in the state.
func (s *Service) GoogleAuthURL(redirectURI, returnURL string) (string, error) {
	if s.authURLs == nil {
		return "", ErrNotConfigured
	}
	state := EncodeState(strings.TrimSpace(returnURL), strings.ReplaceAll(uuid.NewString(), "-", ""))
	return s.authURLs.AuthURL(redirectURI, state), nil
}

func (s *Service) activeUserByEmail(ctx context.Context, st Store, emailAddr string) (*User, error) {
	addr := strings.TrimSpace(emailAddr)
	if addr == "" {
		return nil, ErrUnauthorized
	}
	user, err := st.Users().FindByEmail(ctx, addr)
	if err != nil {
		return nil, err
	}
	if user.IsDeleted {
		return nil, ErrUnauthorized
	}
	return user, nil
}

func (s *Service) sendConfirmation(ctx context.Context, to, token string) {
	link := fmt.Sprintf("%s/?email=%s&token=%s", strings.TrimRight(s.emailBaseURL, "/"), url.QueryEscape(to), url.QueryEscape(token))
	subject, body := email.ConfirmationEmail(link)
	s.deliver(ctx, to, subject, body)
}

func (s *Service) deliver(ctx context.Context, to, subject, body string) {
	if s.mailer == nil {
		s.log.WithField("subject", subject).Warn("no mailer configured; mail dropped")
		return
	}
	if !s.mailer.Send(ctx, to, subject, body) {
		s.log.WithField("subject", subject).Warn("mail delivery failed")
	}
}

// rejectAsUnauthorized folds not-found into ErrUnauthorized and passes other
// errors through.
func (s *Service) rejectAsUnauthorized(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnauthorized) {
		return ErrUnauthorized
	}
	return err
}

func ignoreUnauthorized(err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnauthorized) {
		return nil
	}
	return err
}

func parseEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return "", fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}
	return raw, nil
}
