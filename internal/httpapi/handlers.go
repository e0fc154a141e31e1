package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"resturant.app/internal/audit"
	"resturant.app/internal/auth"
	"resturant.app/internal/obs"
	"resturant.app/internal/ratelimit"
)

const maxBodyBytes = 1 << 20

// ReadyProbe reports whether the backing store answers.
type ReadyProbe interface {
	Ping(ctx context.Context) error
}

// API is the HTTP layer over the auth service.
type API struct {
	router     chi.Router
	svc        *auth.Service
	admin      *auth.AdminService
	limiter    ratelimit.Limiter
	readyProbe ReadyProbe
	frontend   string
	version    string
}

// Option configures the API.
type Option func(*API)

// WithLoginLimiter throttles the credential endpoints per client IP.
func WithLoginLimiter(l ratelimit.Limiter) Option {
	return func(a *API) { a.limiter = l }
}

// WithReadyProbe sets the dependency checked by /readyz.
func WithReadyProbe(p ReadyProbe) Option {
	return func(a *API) { a.readyProbe = p }
}

// WithFrontendURL sets the browser origin allowed by CORS and the target of
// the Google callback redirect.
func WithFrontendURL(u string) Option {
	return func(a *API) { a.frontend = strings.TrimRight(strings.TrimSpace(u), "/") }
}

func WithVersion(v string) Option {
	return func(a *API) { a.version = v }
}

func New(svc *auth.Service, opts ...Option) *API {
	a := &API{
		svc:      svc,
		admin:    svc.Admin(),
		frontend: "http://localhost:5173",
		version:  obs.Version,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.limiter == nil {
		a.limiter = ratelimit.NewMemory(5)
	}
	a.router = a.routes()
	return a
}

func (a *API) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequestID, LoggingJSON, obs.Instrument, SecurityHeaders, CORS(a.frontend), MaxBodyBytes(maxBodyBytes))

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Method(http.MethodGet, "/metrics", obs.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", a.handleRegister)
			r.With(a.loginRateLimit).Post("/login", a.handleLogin)
			r.Post("/refresh-token", a.handleRefresh)
			r.Post("/forgot-password", a.handleForgotPassword)
			r.Post("/reset-password", a.handleResetPassword)
			r.Post("/confirm-email", a.handleConfirmEmail)
			r.Post("/resend-confirmation-email", a.handleResendConfirmation)
			r.Get("/google/url", a.handleGoogleURL)
			r.Get("/google/callback", a.handleGoogleCallback)
			r.With(a.loginRateLimit).Post("/google/login", a.handleGoogleLogin)

			r.Group(func(r chi.Router) {
				r.Use(a.withAuth)
				r.Post("/change-password", a.handleChangePassword)
				r.Post("/logout", a.handleLogout)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(a.withAuth)

			r.Route("/roles", func(r chi.Router) {
				r.Use(a.requirePolicy(auth.PermissionPolicy(PermissionManageRoles)))
				r.Get("/", a.handleListRoles)
				r.Post("/", a.handleCreateRole)
				r.Put("/", a.handleUpdateRole)
				r.Get("/with-permissions", a.handleListRolesWithPermissions)
				r.Post("/permissions/multiple", a.handleAssignPermissions)
				r.Get("/{id}/with-permissions", a.handleGetRoleWithPermissions)
				r.Delete("/{id}", a.handleDeleteRole)
				r.Get("/{id}/permissions", a.handleRolePermissions)
				r.Delete("/{id}/permissions", a.handleRemoveAllPermissions)
				r.Delete("/{id}/permissions/{permissionId}", a.handleRemovePermission)
			})

			r.Route("/permissions", func(r chi.Router) {
				r.Use(a.requirePolicy(auth.PermissionPolicy(PermissionManagePermissions)))
				r.Get("/", a.handleListPermissions)
				r.Post("/", a.handleCreatePermission)
				r.Put("/{id}", a.handleUpdatePermission)
				r.Delete("/{id}", a.handleDeletePermission)
			})

			r.Route("/users", func(r chi.Router) {
				r.Use(a.requirePolicy(auth.PermissionPolicy(PermissionManageUsers)))
				r.Post("/roles", a.handleAssignRole)
				r.Get("/", a.handleListUsers)
				r.Get("/{userId}", a.handleGetUser)
				r.Delete("/{userId}", a.handleDeleteUser)
				r.Get("/{userId}/roles", a.handleUserRoles)
				r.Delete("/{userId}/roles/{roleId}", a.handleRemoveRole)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// Handler returns the root handler with the middleware chain applied.
func (a *API) Handler() http.Handler {
	return a.router
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "resturant-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if a.readyProbe != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.readyProbe.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "not_ready",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

// --- helpers ---

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"message": msg})
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// decodeJSON reads one JSON document into dst and runs its validate tags.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return errors.New("request body is required")
		case errors.As(err, &maxErr):
			return fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON body")
	}
	if err := validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err
	}
	msgs := make([]string, 0, len(errs))
	for _, fe := range errs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "email":
			msgs = append(msgs, fmt.Sprintf("%s must be a valid email address", fe.Field()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()))
		case "gt":
			msgs = append(msgs, fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", fe.Field()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

// handleServiceError maps auth sentinels to status codes. Authentication
// failures always carry the same message.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, publicMessage(err))
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, "invalid credentials or token")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, publicMessage(err))
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, publicMessage(err))
	default:
		logFailure(r, err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func logFailure(r *http.Request, err error) {
	obs.Logger().WithError(err).
		WithField("request_id", audit.RequestIDFromContext(r.Context())).
		WithField("path", r.URL.Path).
		Error("request failed")
}

func publicMessage(err error) string {
	return strings.TrimPrefix(err.Error(), "auth: ")
}
