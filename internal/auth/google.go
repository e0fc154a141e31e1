package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	googleCertsURL       = "https://www.googleapis.com/oauth2/v3/certs"
	defaultGoogleTimeout = 10 * time.Second
	defaultCertsMaxAge   = time.Hour
	minCertsRefresh      = time.Minute
)

var googleIssuers = []string{"accounts.google.com", "https://accounts.google.com"}

// GoogleConfig configures the Google code exchange and id token checks.
// Endpoint and CertsURL default to Google's production URLs.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
	Endpoint     oauth2.Endpoint
	CertsURL     string
	HTTPClient   *http.Client
	Now          func() time.Time
}

func (c GoogleConfig) withDefaults() GoogleConfig {
	if c.Timeout <= 0 {
		c.Timeout = defaultGoogleTimeout
	}
	if c.Endpoint.TokenURL == "" {
		c.Endpoint = google.Endpoint
	}
	if c.CertsURL == "" {
		c.CertsURL = googleCertsURL
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// GoogleExchanger exchanges Google authorization codes through x/oauth2,
// behind a circuit breaker.
type GoogleExchanger struct {
	conf    oauth2.Config
	client  *http.Client
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
}

// NewGoogleExchanger requires a client id and secret.
func NewGoogleExchanger(cfg GoogleConfig) (*GoogleExchanger, error) {
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, fmt.Errorf("%w: google client id and secret are required", ErrNotConfigured)
	}
	cfg = cfg.withDefaults()
	return &GoogleExchanger{
		conf: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     cfg.Endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		client:  cfg.HTTPClient,
		timeout: cfg.Timeout,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "google-token",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
			// A rejected code is the caller's fault, not the provider's.
			IsSuccessful: func(err error) bool {
				var re *oauth2.RetrieveError
				if errors.As(err, &re) && re.Response != nil {
					return re.Response.StatusCode < http.StatusInternalServerError
				}
				return err == nil
			},
		}),
	}, nil
}

// Exchange posts the code to the token endpoint and returns the id token.
func (g *GoogleExchanger) Exchange(ctx context.Context, code, redirectURI string) (string, error) {
	conf := g.conf
	conf.RedirectURL = redirectURI

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.client)

	res, err := g.breaker.Execute(func() (interface{}, error) {
		return conf.Exchange(ctx, code)
	})
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return "", fmt.Errorf("google token endpoint: %w", err)
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	tok, ok := res.(*oauth2.Token)
	if !ok || tok == nil {
		return "", errors.New("google token endpoint: empty response")
	}
	idToken, _ := tok.Extra("id_token").(string)
	if idToken == "" {
		return "", errors.New("google token endpoint: response has no id_token")
	}
	return idToken, nil
}

// AuthURL builds the consent URL for redirectURI carrying state.
func (g *GoogleExchanger) AuthURL(redirectURI, state string) string {
	conf := g.conf
	conf.RedirectURL = redirectURI
	return conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "select_account"))
}

// GoogleVerifier checks Google id tokens against the published signing keys.
type GoogleVerifier struct {
	clientID string
	certsURL string
	client   *http.Client
	now      func() time.Time

	mu      sync.RWMutex
	keys    map[string]*rsa.PublicKey
	expiry  time.Time
	fetched time.Time
}

// NewGoogleVerifier requires the client id the tokens are issued for.
func NewGoogleVerifier(cfg GoogleConfig) (*GoogleVerifier, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, fmt.Errorf("%w: google client id is required", ErrNotConfigured)
	}
	cfg = cfg.withDefaults()
	return &GoogleVerifier{
		clientID: cfg.ClientID,
		certsURL: cfg.CertsURL,
		client:   cfg.HTTPClient,
		now:      cfg.Now,
	}, nil
}

type googleClaims struct {
	Email         string   `json:"email"`
	EmailVerified flexBool `json:"email_verified"`
	Name          string   `json:"name"`
	Picture       string   `json:"picture"`
	jwt.RegisteredClaims
}

// flexBool accepts both true and "true".
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	v, err := strconv.ParseBool(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*b = flexBool(v)
	return nil
}

// Verify validates signature, audience, issuer and expiry of idToken.
func (v *GoogleVerifier) Verify(ctx context.Context, idToken string) (FederatedIdentity, error) {
	claims := &googleClaims{}
	parsed, err := jwt.ParseWithClaims(idToken, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return v.key(ctx, kid)
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.clientID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return FederatedIdentity{}, fmt.Errorf("verify google id token: %w", err)
	}
	if !parsed.Valid {
		return FederatedIdentity{}, errors.New("verify google id token: invalid")
	}
	issuerOK := false
	for _, iss := range googleIssuers {
		if claims.Issuer == iss {
			issuerOK = true
		}
	}
	if !issuerOK {
		return FederatedIdentity{}, fmt.Errorf("verify google id token: unexpected issuer %q", claims.Issuer)
	}
	return FederatedIdentity{
		Provider:      ProviderGoogle,
		Subject:       claims.Subject,
		Email:         claims.Email,
		EmailVerified: bool(claims.EmailVerified),
		Name:          claims.Name,
		Picture:       claims.Picture,
	}, nil
}

func (v *GoogleVerifier) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	key, ok := v.keys[kid]
	now := v.now()
	fresh := now.Before(v.expiry)
	recent := now.Sub(v.fetched) < minCertsRefresh
	v.mu.RUnlock()
	if ok && fresh {
		return key, nil
	}
	// Unknown kids only trigger a refetch once per minCertsRefresh while the
	// cached set is still valid.
	if fresh && recent {
		return nil, fmt.Errorf("unknown signing key %q", kid)
	}
	if err := v.refresh(ctx); err != nil {
		return nil, err
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	if key, ok := v.keys[kid]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("unknown signing key %q", kid)
}

type jwks struct {
	Keys []struct {
		Kid string `json:"kid"`
		Kty string `json:"kty"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

func (v *GoogleVerifier) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.certsURL, nil)
	if err != nil {
		return err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: fetch google certs: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: fetch google certs: status %d", ErrUnavailable, resp.StatusCode)
	}
	var set jwks
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("decode google certs: %w", err)
	}
	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" {
			continue
		}
		pub, err := rsaKeyFromJWK(k.N, k.E)
		if err != nil {
			return fmt.Errorf("google cert %s: %w", k.Kid, err)
		}
		keys[k.Kid] = pub
	}
	now := v.now()
	v.mu.Lock()
	v.keys = keys
	v.fetched = now
	v.expiry = now.Add(maxAge(resp.Header.Get("Cache-Control")))
	v.mu.Unlock()
	return nil
}

func rsaKeyFromJWK(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("exponent: %w", err)
	}
	exp := new(big.Int).SetBytes(eb)
	if !exp.IsInt64() || exp.Int64() <= 1 {
		return nil, errors.New("exponent out of range")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: int(exp.Int64())}, nil
}

func maxAge(cacheControl string) time.Duration {
	for _, part := range strings.Split(cacheControl, ",") {
		part = strings.TrimSpace(part)
		if v, ok := strings.CutPrefix(part, "max-age="); ok {
			if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
				return time.Duration(secs) * time.Second
			}
		}
	}
	return defaultCertsMaxAge
}

// EncodeState wraps a return URL into an OAuth state value. Without a return
// URL the state is random.
func EncodeState(returnURL string, random string) string {
	if returnURL == "" {
		return random
	}
	return base64.StdEncoding.EncodeToString([]byte(returnURL))
}

// DecodeState recovers the return URL from state. Anything that is not a
// local path decodes to "/".
func DecodeState(state string) string {
	raw, err := base64.StdEncoding.DecodeString(state)
	if err != nil {
		return "/"
	}
	target := string(raw)
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		return "/"
	}
	return target
}
