package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"taskora.org/internal/auth"
)

const (
	authHeader    = "Authorization"
	bearer        = "Bearer "
	sessionCookie = "taskora_session"
	csrfHeader    = "X-CSRF-Token"
)

var publicPaths = []string{
	"/v1/auth/register",
	"/v1/auth/login",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

// withAuth resolves the caller's session before protected handlers run.
// Credentials arrive either as a bearer token (opaque session token or a
// signed access token) or as the session cookie. Cookie-carried sessions must
// present the anti-forgery token on mutating requests.
func (a *API) withAuth(next http.Handler) http.Handler {
	if a == nil || a.auth == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		tok, fromCookie, err := extractCredential(r)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		if looksLikeJWT(tok) {
			claims, err := a.auth.ParseAccessToken(tok)
			if err != nil {
				writeError(w, r, http.StatusUnauthorized, "invalid token")
				return
			}
			ctx := auth.ContextWithAccount(r.Context(), claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		sess, err := a.auth.Authenticate(r.Context(), tok)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrSessionExpired):
				writeError(w, r, http.StatusUnauthorized, "session expired")
			case errors.Is(err, auth.ErrInvalidToken):
				writeError(w, r, http.StatusUnauthorized, "invalid token")
			default:
				writeError(w, r, http.StatusInternalServerError, "authentication error")
			}
			return
		}

		// The cookie travels automatically, so cookie-borne mutations need
		// the second factor from the login response.
		if fromCookie && isMutating(r.Method) {
			if !a.auth.VerifyCSRF(sess, r.Header.Get(csrfHeader)) {
				writeError(w, r, http.StatusForbidden, "missing or invalid csrf token")
				return
			}
		}

		ctx := auth.ContextWithAccount(r.Context(), sess.AccountID)
		ctx = auth.ContextWithSession(ctx, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractCredential prefers the Authorization header over the cookie.
func extractCredential(r *http.Request) (tok string, fromCookie bool, err error) {
	if header := strings.TrimSpace(r.Header.Get(authHeader)); header != "" {
		tok, err := extractBearerToken(header)
		return tok, false, err
	}
	if c, cerr := r.Cookie(sessionCookie); cerr == nil && c.Value != "" {
		return c.Value, true, nil
	}
	return "", false, errors.New("missing credentials")
}

func extractBearerToken(header string) (string, error) {
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func looksLikeJWT(tok string) bool {
	return strings.Count(tok, ".") == 2
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
