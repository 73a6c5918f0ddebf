package account_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"atlas-air/internal/auth"
	"atlas-air/internal/logger"
	"atlas-air/internal/models"
	"atlas-air/internal/utils"

	"github.com/go-chi/chi/v5"
)

const defaultReturnURL = "/Client/Search"

type CustomerFinder interface {
	GetByLogin(ctx context.Context, login string) (*models.Customer, error)
}

type SessionStore interface {
	Save(ctx context.Context, sessionID string, customerID int64, ttl time.Duration) error
	Revoke(ctx context.Context, sessionID string) error
}

type Handler struct {
	Customers  CustomerFinder
	Issuer     *auth.Issuer
	Sessions   SessionStore
	CookieName string
	Secure     bool
	Logger     *logger.Logger
}

func NewHandler(customers CustomerFinder, issuer *auth.Issuer, sessions SessionStore, cookieName string, log *logger.Logger) *Handler {
	return &Handler{
		Customers:  customers,
		Issuer:     issuer,
		Sessions:   sessions,
		CookieName: cookieName,
		Logger:     log,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/Account", func(r chi.Router) {
		r.Get("/Login", h.LoginPage)
		r.Post("/Login", h.Login)
		r.Post("/Logout", h.Logout)
	})
}

// LoginPage tells the caller that a login is needed and where it will land.
func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"loginRequired": true,
		"returnUrl":     SafeReturnURL(r.URL.Query().Get("returnUrl")),
	})
}

type loginRequest struct {
	Login     string `json:"login"`
	Password  string `json:"password"`
	ReturnURL string `json:"returnUrl"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Name      string    `json:"name"`
	Role      auth.Role `json:"role"`
}

// Login accepts a form post (answered with a redirect to returnUrl) or a
// JSON body (answered with the token).
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	isJSON := strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")

	var req loginRequest
	if isJSON {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	} else {
		req = loginRequest{
			Login:     r.FormValue("login"),
			Password:  r.FormValue("password"),
			ReturnURL: r.FormValue("returnUrl"),
		}
	}
	if strings.TrimSpace(req.Login) == "" || req.Password == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.NewErrorResponse("login and password are required", nil))
		return
	}

	c, err := h.Customers.GetByLogin(r.Context(), req.Login)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		h.Logger.Error("AUTH", fmt.Sprintf("Login lookup failed: %v", err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if err != nil || !auth.VerifyPassword(c.PasswordHash, req.Password) {
		h.Logger.LogSecurity("LOGIN_FAILED", fmt.Sprintf("login=%q from %s", req.Login, r.RemoteAddr))
		utils.WriteJSON(w, http.StatusUnauthorized, utils.NewErrorResponse("Invalid login or password", nil))
		return
	}

	role := auth.RoleCustomer
	if c.IsAdmin {
		role = auth.RoleAdmin
	}
	token, id, expiresAt, err := h.Issuer.Issue(auth.Identity{CustomerID: c.ID, Name: c.Name, Role: role})
	if err != nil {
		h.Logger.Error("AUTH", err.Error())
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if h.Sessions != nil {
		if err := h.Sessions.Save(r.Context(), id.SessionID, c.ID, h.Issuer.TTL()); err != nil {
			h.Logger.Error("AUTH", err.Error())
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   h.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	h.Logger.LogSecurity("LOGIN", fmt.Sprintf("customer %d signed in as %s", c.ID, role))

	if isJSON {
		utils.WriteJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt, Name: c.Name, Role: role})
		return
	}
	http.Redirect(w, r, SafeReturnURL(req.ReturnURL), http.StatusSeeOther)
}

// Logout revokes the current session and clears the cookie.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if caller, ok := auth.FromContext(r.Context()); ok && h.Sessions != nil {
		if err := h.Sessions.Revoke(r.Context(), caller.SessionID); err != nil {
			h.Logger.Warn("AUTH", fmt.Sprintf("Failed to revoke session %s: %v", caller.SessionID, err))
		} else {
			h.Logger.LogSecurity("LOGOUT", fmt.Sprintf("customer %d signed out", caller.CustomerID))
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, defaultReturnURL, http.StatusSeeOther)
}

// SafeReturnURL only accepts local paths. Anything else, including
// protocol-relative "//host" targets, falls back to the flight search.
func SafeReturnURL(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return defaultReturnURL
	}
	return raw
}
