package web

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/gatekeeper/internal/audit"
	"github.com/yourusername/gatekeeper/internal/guard"
	"github.com/yourusername/gatekeeper/internal/route"
)

type recordedEvents struct {
	events []audit.Event
}

func (r *recordedEvents) Record(ctx context.Context, event audit.Event) {
	r.events = append(r.events, event)
}

func newRouter(t *testing.T, provider guard.SessionProvider, auditor audit.Recorder, opts ...guard.Option) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	g, err := guard.New(provider, opts...)
	if err != nil {
		t.Fatalf("guard.New returned error: %v", err)
	}
	table, err := route.NewTable(
		route.Route{Path: route.PathAuth, Name: route.NameAuth, View: AuthView, Meta: route.Meta{PublicOnly: true}},
		route.Route{Path: route.PathHome, Name: route.NameHome, View: HomeView(func(*gin.Context) string { return "alice" }), Meta: route.Meta{RequiresSession: true}},
		route.Route{Path: "/about", Name: "About", View: AuthView},
	)
	if err != nil {
		t.Fatalf("NewTable returned error: %v", err)
	}

	router := gin.New()
	Register(router, table, g, auditor)
	return router
}

func session(v bool) guard.ProviderFunc {
	return func(ctx context.Context) (bool, error) { return v, nil }
}

func get(router *gin.Engine, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestGuardScenarios(t *testing.T) {
	cases := []struct {
		name     string
		path     string
		session  bool
		status   int
		location string
	}{
		{"home without session", "/home", false, http.StatusFound, "/"},
		{"home with session", "/home", true, http.StatusOK, ""},
		{"auth with session", "/", true, http.StatusFound, "/home"},
		{"auth without session", "/", false, http.StatusOK, ""},
		{"unrestricted without session", "/about", false, http.StatusOK, ""},
		{"unrestricted with session", "/about", true, http.StatusOK, ""},
	}
	for _, tc := range cases {
		router := newRouter(t, session(tc.session), nil)
		rec := get(router, tc.path)
		if rec.Code != tc.status {
			t.Fatalf("%s: status = %d, want %d", tc.name, rec.Code, tc.status)
		}
		if loc := rec.Header().Get("Location"); loc != tc.location {
			t.Fatalf("%s: Location = %q, want %q", tc.name, loc, tc.location)
		}
	}
}

func TestHomeViewRendersUser(t *testing.T) {
	router := newRouter(t, session(true), nil)
	rec := get(router, "/home")

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("unexpected content-type: %s", ct)
	}
	if !strings.Contains(rec.Body.String(), "alice") {
		t.Fatalf("expected user in body: %s", rec.Body.String())
	}
}

func TestGuardRecordsRedirect(t *testing.T) {
	recorder := &recordedEvents{}
	router := newRouter(t, session(false), recorder)
	get(router, "/home")
	get(router, "/")

	if len(recorder.events) != 1 {
		t.Fatalf("expected one redirect event, got %+v", recorder.events)
	}
	e := recorder.events[0]
	if e.Kind != audit.KindRedirect || e.Subject != route.NameHome || e.Detail != "/" {
		t.Fatalf("unexpected event: %+v", e)
	}
}

func TestGuardFailClosedRedirects(t *testing.T) {
	failing := guard.ProviderFunc(func(ctx context.Context) (bool, error) {
		return false, errors.New("backend down")
	})
	router := newRouter(t, failing, nil)

	rec := get(router, "/home")
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/" {
		t.Fatalf("unexpected response: %d %s", rec.Code, rec.Header().Get("Location"))
	}
}

func TestGuardFailWithErrorResponds503(t *testing.T) {
	failing := guard.ProviderFunc(func(ctx context.Context) (bool, error) {
		return false, errors.New("backend down")
	})
	router := newRouter(t, failing, nil, guard.WithFailurePolicy(guard.FailWithError))

	rec := get(router, "/home")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "SESSION_CHECK_FAILED") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}
