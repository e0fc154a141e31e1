package obs

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                                    "/",
		"/metrics":                                            "/metrics",
		"/api/roles/01J00000000000000000000001":               "/api/roles/:id",
		"/api/roles/01J00000000000000000000001/permissions/7": "/api/roles/:id/permissions/:id",
		"/api/permissions/42":                                 "/api/permissions/:id",
		"/api/auth/login":                                     "/api/auth/login",
		"/api/users?page=2":                                   "/api/users",
		"/api/users/not-an-id":                                "/api/users/not-an-id",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestInstrumentUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Instrument)
	r.Get("/api/roles/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/roles/{id}", "418"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/roles/abc", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/roles/{id}", "418"))
	if after-before != 1 {
		t.Fatalf("expected one request counted, got %v", after-before)
	}
	if v := testutil.ToFloat64(httpInFlight); v != 0 {
		t.Fatalf("in-flight gauge not released: %v", v)
	}
}

func TestRecordAuthEvent(t *testing.T) {
	before := testutil.ToFloat64(authEvents.WithLabelValues("login", "failure"))
	RecordAuthEvent("login", "failure")
	if got := testutil.ToFloat64(authEvents.WithLabelValues("login", "failure")); got-before != 1 {
		t.Fatalf("auth event not counted: %v", got-before)
	}
}

func TestConfigure(t *testing.T) {
	if err := Configure("debug", "text"); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := Configure("loud", "json"); err == nil {
		t.Fatalf("expected invalid level error")
	}
	if err := Configure("info", "xml"); err == nil {
		t.Fatalf("expected invalid format error")
	}
	if err := Configure("info", "json"); err != nil {
		t.Fatalf("Configure: %v", err)
	}
}

func TestInitBuildInfoIsIdempotent(t *testing.T) {
	InitBuildInfo()
	InitBuildInfo()
	if got := testutil.CollectAndCount(buildInfo); got != 1 {
		t.Fatalf("build_info series = %d, want 1", got)
	}
	if revision() == "" {
		t.Fatal("revision must never be empty")
	}
}
