package auth_test

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"resturant.app/internal/auth"
	"resturant.app/internal/store/memory"
)

const (
	testKey      = "test-signing-key-that-is-long-enough"
	testPassword = "Secret123"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type sentMail struct {
	To, Subject, Body string
}

type captureMailer struct {
	mu   sync.Mutex
	sent []sentMail
	fail bool
}

func (m *captureMailer) Send(_ context.Context, to, subject, body string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: body})
	return !m.fail
}

var tokenParam = regexp.MustCompile(`token=([A-Za-z0-9_-]+)`)

// lastToken returns the token carried by the newest mail sent to addr.
func (m *captureMailer) lastToken(t *testing.T, addr string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].To != addr {
			continue
		}
		match := tokenParam.FindStringSubmatch(m.sent[i].Body)
		require.Len(t, match, 2, "mail body has no token: %s", m.sent[i].Body)
		return match[1]
	}
	t.Fatalf("no mail sent to %s", addr)
	return ""
}

func (m *captureMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type env struct {
	ctx   context.Context
	store auth.Store
	svc   *auth.Service
	clock *clock
	mail  *captureMailer
}

func newEnv(t *testing.T, opts ...auth.ServiceOption) *env {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	require.NoError(t, memory.Seed(ctx, st))
	return newEnvWithStore(t, st, opts...)
}

func newEnvWithStore(t *testing.T, st auth.Store, opts ...auth.ServiceOption) *env {
	t.Helper()
	clk := newClock()
	mail := &captureMailer{}
	log, _ := test.NewNullLogger()
	base := []auth.ServiceOption{
		auth.WithSigningKey(testKey),
		auth.WithIssuer("resturant-api"),
		auth.WithAudience("resturant-clients"),
		auth.WithAccessTTL(time.Hour),
		auth.WithRefreshTTL(7 * 24 * time.Hour),
		auth.WithClock(clk.Now),
		auth.WithLogger(log),
		auth.WithMailer(mail, "http://localhost:5173/confirm"),
	}
	svc, err := auth.NewService(st, append(base, opts...)...)
	require.NoError(t, err)
	return &env{ctx: context.Background(), store: st, svc: svc, clock: clk, mail: mail}
}

// confirmedUser registers and confirms addr with testPassword.
func (e *env) confirmedUser(t *testing.T, addr string) *auth.User {
	t.Helper()
	require.NoError(t, e.svc.Register(e.ctx, auth.RegisterRequest{Email: addr, Password: testPassword, FullName: "Test User"}))
	require.NoError(t, e.svc.ConfirmEmail(e.ctx, addr, e.mail.lastToken(t, addr)))
	u, err := e.store.Users().FindByEmail(e.ctx, addr)
	require.NoError(t, err)
	return u
}

func (e *env) login(t *testing.T, addr, password string) auth.Session {
	t.Helper()
	s, err := e.svc.Login(e.ctx, addr, password, "127.0.0.1", "test-agent")
	require.NoError(t, err)
	return s
}

// roleWith creates a role holding the given permission codes, creating
// missing codes on the way.
func (e *env) roleWith(t *testing.T, name string, codes ...string) auth.RoleDTO {
	t.Helper()
	admin := e.svc.Admin()
	role, err := admin.CreateRole(e.ctx, name, "")
	require.NoError(t, err)
	existing, err := admin.ListPermissions(e.ctx)
	require.NoError(t, err)
	byCode := map[string]int64{}
	for _, p := range existing {
		byCode[p.Code] = p.ID
	}
	var ids []int64
	for _, code := range codes {
		id, ok := byCode[code]
		if !ok {
			p, err := admin.CreatePermission(e.ctx, code, "")
			require.NoError(t, err)
			id = p.ID
			byCode[code] = id
		}
		ids = append(ids, id)
	}
	if len(ids) > 0 {
		require.NoError(t, admin.AssignPermissions(e.ctx, role.ID, ids))
	}
	return role
}

// bareUser stores a confirmed account without any role.
func (e *env) bareUser(t *testing.T, addr string) *auth.User {
	t.Helper()
	hash, err := auth.HashPassword(testPassword)
	require.NoError(t, err)
	u := &auth.User{Email: addr, PasswordHash: hash, EmailConfirmed: true, CreatedAt: e.clock.Now()}
	require.NoError(t, e.store.Users().Create(e.ctx, u))
	return u
}
