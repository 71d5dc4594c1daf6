// Package middleware provides the route authorization gate for the
// server-rendered site: every request is classified into a route class
// and either passed through, redirected, or rejected based on the session
// cookie.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/scriptbay/authcore/session"
)

// RouteClass describes who may reach a route and what happens to everyone
// else.
type RouteClass int

const (
	// RoutePublic is reachable by anyone; a session, valid or not, changes
	// nothing.
	RoutePublic RouteClass = iota
	// RouteAuthPage is a login or signup page. Signed-in visitors are
	// redirected home instead of seeing it.
	RouteAuthPage
	// RouteUser requires a valid session.
	RouteUser
	// RouteAdmin requires a valid session with the admin role.
	RouteAdmin
)

// Classifier maps a request path to its [RouteClass].
type Classifier func(path string) RouteClass

// GateConfig wires the gate to the session verifier and the site's
// redirect targets.
type GateConfig struct {
	Sessions   *session.Manager
	Classify   Classifier
	CookieName string

	// LoginPath receives visitors who need a session they do not have.
	LoginPath string
	// HomePath receives signed-in visitors who hit an auth page.
	HomePath string
	// AccountPath receives signed-in non-admins who hit an admin route.
	AccountPath string
}

type claimsContextKey struct{}

// ClaimsFromContext returns the verified session claims the gate stored
// for the request, if any.
func ClaimsFromContext(ctx context.Context) (*session.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*session.Claims)
	return claims, ok
}

// Gate returns the authorization middleware. An expired or tampered
// cookie is treated exactly like no cookie; the gate never writes an
// error page itself, it only redirects or serves next.
func Gate(cfg GateConfig) func(http.Handler) http.Handler {
	cookieName := cfg.CookieName
	if cookieName == "" {
		cookieName = "session"
	}
	loginPath := cfg.LoginPath
	if loginPath == "" {
		loginPath = "/login"
	}
	homePath := cfg.HomePath
	if homePath == "" {
		homePath = "/"
	}
	accountPath := cfg.AccountPath
	if accountPath == "" {
		accountPath = "/account"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			class := RoutePublic
			if cfg.Classify != nil {
				class = cfg.Classify(r.URL.Path)
			}

			claims := sessionClaims(cfg.Sessions, r, cookieName)

			switch class {
			case RouteAuthPage:
				if claims != nil {
					http.Redirect(w, r, homePath, http.StatusSeeOther)
					return
				}
			case RouteUser:
				if claims == nil {
					http.Redirect(w, r, loginPath, http.StatusSeeOther)
					return
				}
			case RouteAdmin:
				if claims == nil {
					http.Redirect(w, r, loginPath, http.StatusSeeOther)
					return
				}
				if !strings.EqualFold(claims.Role, "admin") {
					http.Redirect(w, r, accountPath, http.StatusSeeOther)
					return
				}
			}

			if claims != nil {
				ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PrefixClassifier builds a [Classifier] from path prefixes. Longest
// matching prefix wins; unmatched paths are public.
func PrefixClassifier(prefixes map[string]RouteClass) Classifier {
	return func(path string) RouteClass {
		best := -1
		class := RoutePublic
		for prefix, c := range prefixes {
			if !matchesPrefix(path, prefix) {
				continue
			}
			if len(prefix) > best {
				best = len(prefix)
				class = c
			}
		}
		return class
	}
}

// matchesPrefix treats prefixes as path segments: "/admin" matches
// "/admin" and "/admin/users" but not "/administrator".
func matchesPrefix(path, prefix string) bool {
	if prefix == "/" {
		return true
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}

func sessionClaims(m *session.Manager, r *http.Request, cookieName string) *session.Claims {
	if m == nil {
		return nil
	}
	cookie, err := r.Cookie(cookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	claims, err := m.Parse(cookie.Value)
	if err != nil {
		return nil
	}
	return claims
}
