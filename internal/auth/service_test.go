package auth_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resturant.app/internal/auth"
)

func TestRegisterConfirmLoginChangePassword(t *testing.T) {
	e := newEnv(t)
	const addr = "a@x.com"

	require.NoError(t, e.svc.Register(e.ctx, auth.RegisterRequest{Email: addr, Password: testPassword, FullName: "Alice"}))
	require.Equal(t, 1, e.mail.count())
	assert.Contains(t, e.mail.sent[0].Body, "http://localhost:5173/confirm/?email=")

	_, err := e.svc.Login(e.ctx, addr, testPassword, "", "")
	assert.ErrorIs(t, err, auth.ErrUnauthorized, "unconfirmed account")

	require.NoError(t, e.svc.ConfirmEmail(e.ctx, addr, e.mail.lastToken(t, addr)))
	first := e.login(t, addr, testPassword)
	assert.NotEmpty(t, first.AccessToken)
	assert.NotEmpty(t, first.RefreshToken)
	assert.Equal(t, "Alice", first.User.FullName)

	p, err := e.svc.Authenticate(e.ctx, first.AccessToken)
	require.NoError(t, err)
	require.NoError(t, e.svc.ChangePassword(e.ctx, p.UserID, testPassword, "Changed456"))

	_, err = e.svc.Refresh(e.ctx, first.AccessToken, first.RefreshToken, "", "")
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
	_, err = e.svc.Login(e.ctx, addr, testPassword, "", "")
	assert.ErrorIs(t, err, auth.ErrUnauthorized)

	second := e.login(t, addr, "Changed456")
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	rec, err := e.store.RefreshTokens().FindByHash(e.ctx, auth.HashRefreshToken(first.RefreshToken))
	require.NoError(t, err)
	require.NotNil(t, rec.RevokedOn)
	assert.Equal(t, auth.RevokeReasonPasswordChanged, rec.RevokedByIP)
}

func TestRegisterValidation(t *testing.T) {
	e := newEnv(t)
	for _, req := range []auth.RegisterRequest{
		{Email: "not-an-email", Password: testPassword},
		{Email: "b@x.com", Password: "short"},
		{Email: "b@x.com", Password: "alllowercase1"},
	} {
		assert.ErrorIs(t, e.svc.Register(e.ctx, req), auth.ErrInvalidInput, req.Email+" "+req.Password)
	}
	assert.Zero(t, e.mail.count())
}

func TestRegisterExistingEmailIsSilent(t *testing.T) {
	e := newEnv(t)
	e.confirmedUser(t, "dup@x.com")
	before := e.mail.count()

	require.NoError(t, e.svc.Register(e.ctx, auth.RegisterRequest{Email: "DUP@x.com", Password: "Another123"}))
	assert.Equal(t, before, e.mail.count())
	e.login(t, "dup@x.com", testPassword)
}

func TestRegisterSucceedsWhenMailFails(t *testing.T) {
	e := newEnv(t)
	e.mail.fail = true
	require.NoError(t, e.svc.Register(e.ctx, auth.RegisterRequest{Email: "fail@x.com", Password: testPassword}))
	_, err := e.store.Users().FindByEmail(e.ctx, "fail@x.com")
	assert.NoError(t, err)
}

func TestConfirmEmail(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.svc.Register(e.ctx, auth.RegisterRequest{Email: "c@x.com", Password: testPassword}))
	token := e.mail.lastToken(t, "c@x.com")

	assert.ErrorIs(t, e.svc.ConfirmEmail(e.ctx, "c@x.com", "wrong"), auth.ErrUnauthorized)
	assert.ErrorIs(t, e.svc.ConfirmEmail(e.ctx, "nobody@x.com", token), auth.ErrUnauthorized)

	require.NoError(t, e.svc.ConfirmEmail(e.ctx, "c@x.com", strings.ReplaceAll(token, "-", "%2D")))
	require.NoError(t, e.svc.ConfirmEmail(e.ctx, "c@x.com", token), "confirming twice succeeds")
}

func TestConfirmEmailExpiredToken(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.svc.Register(e.ctx, auth.RegisterRequest{Email: "late@x.com", Password: testPassword}))
	token := e.mail.lastToken(t, "late@x.com")
	e.clock.Advance(25 * time.Hour)
	assert.ErrorIs(t, e.svc.ConfirmEmail(e.ctx, "late@x.com", token), auth.ErrUnauthorized)

	require.NoError(t, e.svc.ResendConfirmation(e.ctx, "late@x.com"))
	require.NoError(t, e.svc.ConfirmEmail(e.ctx, "late@x.com", e.mail.lastToken(t, "late@x.com")))
}

func TestResendConfirmationIsGeneric(t *testing.T) {
	e := newEnv(t)
	e.confirmedUser(t, "done@x.com")
	before := e.mail.count()

	require.NoError(t, e.svc.ResendConfirmation(e.ctx, "done@x.com"))
	require.NoError(t, e.svc.ResendConfirmation(e.ctx, "unknown@x.com"))
	require.NoError(t, e.svc.ResendConfirmation(e.ctx, ""))
	assert.Equal(t, before, e.mail.count())
}

func TestLoginLockout(t *testing.T) {
	e := newEnv(t)
	e.confirmedUser(t, "lock@x.com")

	for i := 0; i < 5; i++ {
		_, err := e.svc.Login(e.ctx, "lock@x.com", "Wrong0000", "", "")
		require.ErrorIs(t, err, auth.ErrUnauthorized)
	}
	_, err := e.svc.Login(e.ctx, "lock@x.com", testPassword, "", "")
	assert.ErrorIs(t, err, auth.ErrUnauthorized, "locked out")

	e.clock.Advance(6 * time.Minute)
	e.login(t, "lock@x.com", testPassword)

	u, err := e.store.Users().FindByEmail(e.ctx, "lock@x.com")
	require.NoError(t, err)
	assert.Zero(t, u.AccessFailedCount)
	assert.Nil(t, u.LockoutEnd)
}

func TestLoginUnknownAndDeleted(t *testing.T) {
	e := newEnv(t)
	u := e.confirmedUser(t, "del@x.com")
	_, err := e.svc.Login(e.ctx, "ghost@x.com", testPassword, "", "")
	assert.ErrorIs(t, err, auth.ErrUnauthorized)

	require.NoError(t, e.svc.Admin().DeleteUser(e.ctx, u.ID))
	_, err = e.svc.Login(e.ctx, "del@x.com", testPassword, "", "")
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
}

func TestForgotAndResetPassword(t *testing.T) {
	e := newEnv(t)
	e.confirmedUser(t, "reset@x.com")
	old := e.login(t, "reset@x.com", testPassword)

	require.NoError(t, e.svc.ForgotPassword(e.ctx, "reset@x.com"))
	token := e.mail.lastToken(t, "reset@x.com")
	assert.Contains(t, e.mail.sent[len(e.mail.sent)-1].Subject, "Reset")

	assert.ErrorIs(t, e.svc.ResetPassword(e.ctx, "reset@x.com", token, "weak"), auth.ErrInvalidInput)
	assert.ErrorIs(t, e.svc.ResetPassword(e.ctx, "reset@x.com", "bogus", "Brand123"), auth.ErrUnauthorized)

	require.NoError(t, e.svc.ResetPassword(e.ctx, "reset@x.com", token, "Brand123"))
	assert.ErrorIs(t, e.svc.ResetPassword(e.ctx, "reset@x.com", token, "Other123"), auth.ErrUnauthorized, "single use")

	_, err := e.svc.Refresh(e.ctx, old.AccessToken, old.RefreshToken, "", "")
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
	e.login(t, "reset@x.com", "Brand123")
}

func TestResetPasswordWeakPasswordKeepsToken(t *testing.T) {
	e := newEnv(t)
	e.confirmedUser(t, "keep@x.com")
	require.NoError(t, e.svc.ForgotPassword(e.ctx, "keep@x.com"))
	token := e.mail.lastToken(t, "keep@x.com")

	require.ErrorIs(t, e.svc.ResetPassword(e.ctx, "keep@x.com", token, "weak"), auth.ErrInvalidInput)
	require.NoError(t, e.svc.ResetPassword(e.ctx, "keep@x.com", token, "Strong123"))
}

func TestForgotPasswordIsGeneric(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.svc.Register(e.ctx, auth.RegisterRequest{Email: "unconf@x.com", Password: testPassword}))
	before := e.mail.count()

	require.NoError(t, e.svc.ForgotPassword(e.ctx, "unconf@x.com"))
	require.NoError(t, e.svc.ForgotPassword(e.ctx, "nobody@x.com"))
	assert.Equal(t, before, e.mail.count())
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	e := newEnv(t)
	u := e.confirmedUser(t, "chg@x.com")
	assert.ErrorIs(t, e.svc.ChangePassword(e.ctx, u.ID, "Nope1234", "Next1234"), auth.ErrUnauthorized)
	assert.ErrorIs(t, e.svc.ChangePassword(e.ctx, "missing", testPassword, "Next1234"), auth.ErrUnauthorized)
	assert.ErrorIs(t, e.svc.ChangePassword(e.ctx, u.ID, testPassword, "x"), auth.ErrInvalidInput)
}

func TestLogout(t *testing.T) {
	e := newEnv(t)
	e.confirmedUser(t, "out@x.com")
	s := e.login(t, "out@x.com", testPassword)

	require.NoError(t, e.svc.Logout(e.ctx, s.RefreshToken, "10.0.0.1"))
	_, err := e.svc.Refresh(e.ctx, s.AccessToken, s.RefreshToken, "", "")
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
	assert.ErrorIs(t, e.svc.Logout(e.ctx, s.RefreshToken, ""), auth.ErrUnauthorized)
}

func TestGoogleNotConfigured(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.GoogleLogin(e.ctx, "code", "http://localhost/cb", "", "")
	assert.ErrorIs(t, err, auth.ErrNotConfigured)
	_, err = e.svc.GoogleAuthURL("http://localhost/cb", "/menu")
	assert.ErrorIs(t, err, auth.ErrNotConfigured)
}
