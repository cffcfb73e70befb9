package httpapi

import (
	"errors"
	"net/http"
	"time"

	"taskora.org/internal/audit"
	"taskora.org/internal/auth"
	"taskora.org/internal/obs"
	"taskora.org/internal/token"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type accountResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	SessionToken string          `json:"session_token"`
	CSRFToken    string          `json:"csrf_token"`
	AccessToken  string          `json:"access_token,omitempty"`
	AccessExpiry time.Time       `json:"access_expires_at,omitzero"`
	ExpiresAt    time.Time       `json:"expires_at"`
	Account      accountResponse `json:"account"`
}

type sessionResponse struct {
	AccountID  string    `json:"account_id"`
	IssuedAt   time.Time `json:"issued_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

func (a *API) handleAuthRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	acct, err := a.auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidInput):
			writeError(w, r, http.StatusBadRequest, err.Error())
		case errors.Is(err, auth.ErrAlreadyExists):
			writeError(w, r, http.StatusConflict, "account already exists")
		default:
			writeError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.account.registered", map[string]any{
		"account_id": acct.ID,
		"email":      acct.Email,
	})

	writeJSON(w, http.StatusCreated, accountResponse{
		ID:        acct.ID,
		Email:     acct.Email,
		CreatedAt: acct.CreatedAt,
	})
}

func (a *API) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	res, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrLocked):
			obs.CountFailedLogin()
			_ = audit.LogEvent(r.Context(), "auth.login.locked", map[string]any{
				"email": auth.Normalize(req.Email),
			})
			writeError(w, r, http.StatusLocked, "account temporarily locked")
		case errors.Is(err, auth.ErrInvalidCredentials):
			obs.CountFailedLogin()
			_ = audit.LogEvent(r.Context(), "auth.login.failed", map[string]any{
				"email": auth.Normalize(req.Email),
			})
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		default:
			writeError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    res.SessionToken,
		Path:     "/",
		MaxAge:   int(token.SessionMaxAge / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	_ = audit.LogEvent(r.Context(), "auth.login.succeeded", map[string]any{
		"account_id": res.Account.ID,
		"session_id": res.Session.ID,
	})

	writeJSON(w, http.StatusOK, loginResponse{
		SessionToken: res.SessionToken,
		CSRFToken:    res.CSRFToken,
		AccessToken:  res.AccessToken,
		AccessExpiry: res.AccessExpiry,
		ExpiresAt:    res.Session.ExpiresAt,
		Account: accountResponse{
			ID:        res.Account.ID,
			Email:     res.Account.Email,
			CreatedAt: res.Account.CreatedAt,
		},
	})
}

func (a *API) handleAuthLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	tok, _, err := extractCredential(r)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, err.Error())
		return
	}
	if err := a.auth.Logout(r.Context(), tok); err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, r, http.StatusUnauthorized, "invalid token")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	_ = audit.LogEvent(r.Context(), "auth.logout", nil)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAuthSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		// Access-token callers carry an account but no session row.
		writeError(w, r, http.StatusUnauthorized, "session required")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		AccountID:  sess.AccountID,
		IssuedAt:   sess.IssuedAt,
		LastSeenAt: sess.LastSeenAt,
		ExpiresAt:  sess.ExpiresAt,
	})
}
