package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/scriptbay/authcore/session"
)

func testSessions(t *testing.T) *session.Manager {
	t.Helper()
	m, err := session.NewManager(session.Config{
		TTL:    time.Hour,
		Secret: []byte("gate-test-secret"),
	})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func testClassifier() Classifier {
	return PrefixClassifier(map[string]RouteClass{
		"/":        RoutePublic,
		"/login":   RouteAuthPage,
		"/signup":  RouteAuthPage,
		"/account": RouteUser,
		"/admin":   RouteAdmin,
	})
}

func issueToken(t *testing.T, m *session.Manager, role string) string {
	t.Helper()
	token, err := m.Issue("acct-1", role)
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func TestGateRouteMatrix(t *testing.T) {
	sessions := testSessions(t)
	userToken := issueToken(t, sessions, "user")
	adminToken := issueToken(t, sessions, "admin")

	cases := []struct {
		name         string
		path         string
		token        string
		wantStatus   int
		wantLocation string
	}{
		{"public anonymous", "/products", "", http.StatusOK, ""},
		{"public signed in", "/products", userToken, http.StatusOK, ""},
		{"auth page anonymous", "/login", "", http.StatusOK, ""},
		{"auth page signed in", "/login", userToken, http.StatusSeeOther, "/"},
		{"signup signed in", "/signup", adminToken, http.StatusSeeOther, "/"},
		{"user route anonymous", "/account", "", http.StatusSeeOther, "/login"},
		{"user route signed in", "/account", userToken, http.StatusOK, ""},
		{"user subpath signed in", "/account/settings", userToken, http.StatusOK, ""},
		{"admin route anonymous", "/admin", "", http.StatusSeeOther, "/login"},
		{"admin route as user", "/admin", userToken, http.StatusSeeOther, "/account"},
		{"admin route as admin", "/admin", adminToken, http.StatusOK, ""},
		{"admin subpath as admin", "/admin/orders", adminToken, http.StatusOK, ""},
		{"user route bad token", "/account", "not-a-token", http.StatusSeeOther, "/login"},
	}

	gate := Gate(GateConfig{
		Sessions: sessions,
		Classify: testClassifier(),
	})
	handler := gate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.token != "" {
				req.AddCookie(&http.Cookie{Name: "session", Value: tc.token})
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if loc := rec.Header().Get("Location"); loc != tc.wantLocation {
				t.Fatalf("location = %q, want %q", loc, tc.wantLocation)
			}
		})
	}
}

func TestGateExpiredCookieIsAnonymous(t *testing.T) {
	short, err := session.NewManager(session.Config{TTL: time.Millisecond, Secret: []byte("gate-test-secret")})
	if err != nil {
		t.Fatal(err)
	}
	token := issueToken(t, short, "user")
	time.Sleep(5 * time.Millisecond)

	sessions, err := session.NewManager(session.Config{TTL: time.Hour, Secret: []byte("gate-test-secret")})
	if err != nil {
		t.Fatal(err)
	}
	gate := Gate(GateConfig{Sessions: sessions, Classify: testClassifier()})
	handler := gate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/account", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: token})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Fatalf("expired cookie: status = %d, location = %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestGateRoleCaseInsensitive(t *testing.T) {
	sessions := testSessions(t)
	token := issueToken(t, sessions, "Admin")

	gate := Gate(GateConfig{Sessions: sessions, Classify: testClassifier()})
	handler := gate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: token})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("mixed-case admin role rejected: %d", rec.Code)
	}
}

func TestGateStoresClaims(t *testing.T) {
	sessions := testSessions(t)
	token := issueToken(t, sessions, "user")

	gate := Gate(GateConfig{Sessions: sessions, Classify: testClassifier()})
	var gotSubject string
	handler := gate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims, ok := ClaimsFromContext(r.Context()); ok {
			gotSubject = claims.Subject
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/account", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: token})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if gotSubject != "acct-1" {
		t.Fatalf("claims subject = %q", gotSubject)
	}
}

func TestPrefixClassifier(t *testing.T) {
	classify := PrefixClassifier(map[string]RouteClass{
		"/":              RoutePublic,
		"/admin":         RouteAdmin,
		"/admin/healthz": RoutePublic,
	})

	cases := map[string]RouteClass{
		"/":                    RoutePublic,
		"/products":            RoutePublic,
		"/admin":               RouteAdmin,
		"/admin/orders":        RouteAdmin,
		"/administrator":       RoutePublic,
		"/admin/healthz":       RoutePublic,
		"/admin/healthz/probe": RoutePublic,
	}
	for path, want := range cases {
		if got := classify(path); got != want {
			t.Errorf("classify(%q) = %d, want %d", path, got, want)
		}
	}
}
