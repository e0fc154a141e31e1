package httpapi

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"resturant.app/internal/audit"
	"resturant.app/internal/auth"
	"resturant.app/internal/obs"
)

type registerRequest struct {
	Email       string `json:"email" validate:"required,email,max=256"`
	Password    string `json:"password" validate:"required,max=128"`
	FullName    string `json:"fullName" validate:"max=200"`
	PhoneNumber string `json:"phoneNumber" validate:"max=32"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	AccessToken  string `json:"accessToken" validate:"required"`
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,max=128"`
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPasswordRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,max=128"`
}

type confirmEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
	Token string `json:"token" validate:"required"`
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type googleLoginRequest struct {
	Code        string `json:"code" validate:"required"`
	RedirectURI string `json:"redirectUri" validate:"omitempty,url"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	err := a.svc.Register(r.Context(), auth.RegisterRequest{
		Email:       req.Email,
		Password:    req.Password,
		FullName:    req.FullName,
		PhoneNumber: req.PhoneNumber,
	})
	obs.RecordAuthEvent("register", outcome(err))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.register", map[string]any{
		"remote_ip": clientIP(r),
	})
	writeMessage(w, http.StatusOK, "Registration successful. Please check your email to confirm your account.")
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	session, err := a.svc.Login(r.Context(), req.Email, req.Password, clientIP(r), r.UserAgent())
	obs.RecordAuthEvent("login", outcome(err))
	if err != nil {
		_ = audit.LogEvent(r.Context(), "auth.login.failed", map[string]any{
			"remote_ip": clientIP(r),
		})
		handleServiceError(w, r, err)
		return
	}
	a.auditSession(r, "auth.login", session)
	writeJSON(w, http.StatusOK, session)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	session, err := a.svc.Refresh(r.Context(), req.AccessToken, req.RefreshToken, clientIP(r), r.UserAgent())
	obs.RecordAuthEvent("refresh", outcome(err))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	a.auditSession(r, "auth.refresh", session)
	writeJSON(w, http.StatusOK, session)
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "invalid user")
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	err := a.svc.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword)
	obs.RecordAuthEvent("change_password", outcome(err))
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			writeError(w, r, http.StatusBadRequest, "failed to change password, check your current password")
			return
		}
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.password.changed", nil)
	writeMessage(w, http.StatusOK, "Password changed successfully. All your sessions have been logged out.")
}

func (a *API) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.svc.ForgotPassword(r.Context(), req.Email); err != nil {
		logFailure(r, err)
	}
	writeMessage(w, http.StatusOK, "If the email exists, a password reset link has been sent.")
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	err := a.svc.ResetPassword(r.Context(), req.Email, req.Token, req.NewPassword)
	obs.RecordAuthEvent("reset_password", outcome(err))
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusBadRequest, "failed to reset password, the token may be invalid or expired")
		return
	default:
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.password.reset", map[string]any{
		"remote_ip": clientIP(r),
	})
	writeMessage(w, http.StatusOK, "Password reset successfully.")
}

func (a *API) handleConfirmEmail(w http.ResponseWriter, r *http.Request) {
	var req confirmEmailRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.svc.ConfirmEmail(r.Context(), req.Email, req.Token); err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			writeError(w, r, http.StatusBadRequest, "failed to confirm email, the token may be invalid or expired")
			return
		}
		handleServiceError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Email confirmed successfully.")
}

func (a *API) handleResendConfirmation(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.svc.ResendConfirmation(r.Context(), req.Email); err != nil {
		logFailure(r, err)
	}
	writeMessage(w, http.StatusOK, "If the email exists and is not confirmed, a confirmation email has been sent.")
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	err := a.svc.Logout(r.Context(), req.RefreshToken, clientIP(r))
	obs.RecordAuthEvent("logout", outcome(err))
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			writeError(w, r, http.StatusBadRequest, "invalid refresh token")
			return
		}
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.logout", nil)
	writeMessage(w, http.StatusOK, "Logged out successfully.")
}

func (a *API) handleGoogleURL(w http.ResponseWriter, r *http.Request) {
	u, err := a.svc.GoogleAuthURL(callbackURL(r), r.URL.Query().Get("returnUrl"))
	if err != nil {
		if errors.Is(err, auth.ErrNotConfigured) {
			writeError(w, r, http.StatusInternalServerError, "google sign-in is not configured")
			return
		}
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": u})
}

// handleGoogleCallback finishes the browser flow and hands the session to
// the frontend in the redirect query.
func (a *API) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if providerErr := q.Get("error"); providerErr != "" {
		obs.Logger().WithField("provider_error", providerErr).Warn("google sign-in refused")
		a.redirectFrontend(w, r, "/login", url.Values{"error": {providerErr}})
		return
	}
	code := strings.TrimSpace(q.Get("code"))
	if code == "" {
		a.redirectFrontend(w, r, "/login", url.Values{"error": {"no_code"}})
		return
	}

	session, err := a.svc.GoogleLogin(r.Context(), code, callbackURL(r), clientIP(r), r.UserAgent())
	obs.RecordAuthEvent("google_login", outcome(err))
	if err != nil {
		reason := "server_error"
		if errors.Is(err, auth.ErrUnauthorized) {
			reason = "auth_failed"
		} else {
			logFailure(r, err)
		}
		a.redirectFrontend(w, r, "/login", url.Values{"error": {reason}})
		return
	}
	a.auditSession(r, "auth.google.login", session)
	a.redirectFrontend(w, r, "/auth/success", url.Values{
		"token":        {session.AccessToken},
		"refreshToken": {session.RefreshToken},
		"returnUrl":    {auth.DecodeState(q.Get("state"))},
	})
}

func (a *API) handleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	var req googleLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	redirectURI := req.RedirectURI
	if redirectURI == "" {
		redirectURI = callbackURL(r)
	}
	session, err := a.svc.GoogleLogin(r.Context(), req.Code, redirectURI, clientIP(r), r.UserAgent())
	obs.RecordAuthEvent("google_login", outcome(err))
	if err != nil {
		if errors.Is(err, auth.ErrNotConfigured) {
			writeError(w, r, http.StatusInternalServerError, "google sign-in is not configured")
			return
		}
		handleServiceError(w, r, err)
		return
	}
	a.auditSession(r, "auth.google.login", session)
	writeJSON(w, http.StatusOK, session)
}

func (a *API) auditSession(r *http.Request, event string, s auth.Session) {
	ctx := auth.ContextWithPrincipal(r.Context(), auth.Principal{UserID: s.User.ID})
	_ = audit.LogEvent(ctx, event, map[string]any{
		"remote_ip":  clientIP(r),
		"user_agent": r.UserAgent(),
		"expires_at": s.ExpiresAtUTC,
	})
}

func (a *API) redirectFrontend(w http.ResponseWriter, r *http.Request, path string, q url.Values) {
	http.Redirect(w, r, a.frontend+path+"?"+q.Encode(), http.StatusFound)
}

// callbackURL is the redirect URI registered with Google for this host.
func callbackURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "https" || proto == "http" {
		scheme = proto
	}
	return scheme + "://" + r.Host + "/api/auth/google/callback"
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, auth.ErrUnauthorized), errors.Is(err, auth.ErrInvalidInput):
		return "rejected"
	default:
		return "error"
	}
}
