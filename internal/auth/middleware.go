package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"atlas-air/internal/logger"
)

type TokenVerifier interface {
	Verify(raw string) (Identity, error)
}

type SessionChecker interface {
	Exists(ctx context.Context, sessionID string) (bool, error)
}

// Authenticate resolves the caller from the session cookie or bearer token.
// Requests without a valid, unrevoked token continue as anonymous.
func Authenticate(verifier TokenVerifier, sessions SessionChecker, cookieName string, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := ExtractTokenFromRequest(r, cookieName)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			id, err := verifier.Verify(raw)
			if err != nil {
				log.LogSecurity("TOKEN", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
				next.ServeHTTP(w, r)
				return
			}

			if sessions != nil {
				live, err := sessions.Exists(r.Context(), id.SessionID)
				if err != nil {
					log.Error("AUTH", fmt.Sprintf("Session lookup failed: %v", err))
					next.ServeHTTP(w, r)
					return
				}
				if !live {
					log.LogSecurity("SESSION", fmt.Sprintf("revoked session %s for customer %d", id.SessionID, id.CustomerID))
					next.ServeHTTP(w, r)
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// Policy decides whether a caller may pass a guard. ok is false for
// anonymous requests.
type Policy func(caller Identity, ok bool) bool

var (
	Authenticated Policy = func(_ Identity, ok bool) bool { return ok }
	AdminOnly     Policy = func(c Identity, ok bool) bool { return ok && c.IsAdmin() }
	CustomerOnly  Policy = func(c Identity, ok bool) bool { return ok && c.Role == RoleCustomer && c.CustomerID != 0 }
)

// Require lets the request through when policy allows it and hands it to
// deny otherwise.
func Require(policy Policy, deny http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := FromContext(r.Context())
			if !policy(caller, ok) {
				deny.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestURI is the default return target: the path plus query of the
// denied request.
func RequestURI(r *http.Request) string {
	return r.URL.RequestURI()
}

// RedirectToLogin sends the caller to the login flow with returnUrl set
// from returnTo (RequestURI when nil).
func RedirectToLogin(loginPath string, returnTo func(*http.Request) string) http.Handler {
	if returnTo == nil {
		returnTo = RequestURI
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		target := loginPath + "?returnUrl=" + url.QueryEscape(returnTo(r))
		http.Redirect(w, r, target, http.StatusFound)
	})
}
