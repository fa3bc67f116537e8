// Package httpapi exposes the account operations over HTTP.
package httpapi

import (
	"context"
	"net/http"

	"github.com/dmitrijs2005/cofounder/internal/logging"
	"github.com/dmitrijs2005/cofounder/internal/server/auth"
	"github.com/dmitrijs2005/cofounder/internal/server/httputil"
	"github.com/dmitrijs2005/cofounder/internal/server/middleware"
	"github.com/dmitrijs2005/cofounder/internal/server/models"
	"github.com/dmitrijs2005/cofounder/internal/server/services"
	"github.com/gorilla/mux"
)

// AuthAPI is the part of services.AuthService the handlers use.
type AuthAPI interface {
	Register(ctx context.Context, in services.RegisterInput) (*services.AuthResult, error)
	Login(ctx context.Context, email, password string) (*services.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error)
	Logout(ctx context.Context, userID string) string
	ForgotPassword(ctx context.Context, email string) string
	GetCurrentUser(ctx context.Context, userID string) (*models.PublicUser, error)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type tokensResponse struct {
	Tokens *auth.TokenPair `json:"tokens"`
}

type userResponse struct {
	User *models.PublicUser `json:"user"`
}

// AuthHandlers serves /api/auth.
type AuthHandlers struct {
	service AuthAPI
	authn   *middleware.Authenticator
	logger  logging.Logger
}

func NewAuthHandlers(service AuthAPI, authn *middleware.Authenticator, logger logging.Logger) *AuthHandlers {
	return &AuthHandlers{service: service, authn: authn, logger: logger.With("module", "http_auth")}
}

// RegisterRoutes registers auth routes on router, which is expected to be
// mounted at /api/auth.
func (h *AuthHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/register", h.register).Methods(http.MethodPost)
	router.HandleFunc("/login", h.login).Methods(http.MethodPost)
	router.HandleFunc("/refresh", h.refresh).Methods(http.MethodPost)
	router.Handle("/logout", h.authn.OptionalAuth(http.HandlerFunc(h.logout))).Methods(http.MethodPost)
	router.HandleFunc("/forgot-password", h.forgotPassword).Methods(http.MethodPost)
	router.Handle("/me", h.authn.RequireAuth(http.HandlerFunc(h.me))).Methods(http.MethodGet)
}

// register handles POST /api/auth/register
func (h *AuthHandlers) register(w http.ResponseWriter, r *http.Request) {
	var in services.RegisterInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.service.Register(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	httputil.WriteSuccess(w, http.StatusCreated, res, "")
}

// login handles POST /api/auth/login
func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := httputil.DecodeJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.service.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, res, "")
}

// refresh handles POST /api/auth/refresh
func (h *AuthHandlers) refresh(w http.ResponseWriter, r *http.Request) {
	var in refreshRequest
	if err := httputil.DecodeJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}

	pair, err := h.service.Refresh(r.Context(), in.RefreshToken)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, tokensResponse{Tokens: pair}, "")
}

// logout handles POST /api/auth/logout
func (h *AuthHandlers) logout(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFromContext(r.Context())
	msg := h.service.Logout(r.Context(), id.UserID)
	httputil.WriteSuccess(w, http.StatusOK, nil, msg)
}

// forgotPassword handles POST /api/auth/forgot-password
func (h *AuthHandlers) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var in forgotPasswordRequest
	if err := httputil.DecodeJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}

	msg := h.service.ForgotPassword(r.Context(), in.Email)
	httputil.WriteSuccess(w, http.StatusOK, nil, msg)
}

// me handles GET /api/auth/me
func (h *AuthHandlers) me(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFromContext(r.Context())

	user, err := h.service.GetCurrentUser(r.Context(), id.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, userResponse{User: user}, "")
}

func (h *AuthHandlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	httputil.WriteError(r.Context(), w, h.logger, err)
}

// AdminHandlers serves /api/admin. Every route requires the admin role.
type AdminHandlers struct {
	service AuthAPI
	authn   *middleware.Authenticator
	logger  logging.Logger
}

func NewAdminHandlers(service AuthAPI, authn *middleware.Authenticator, logger logging.Logger) *AdminHandlers {
	return &AdminHandlers{service: service, authn: authn, logger: logger.With("module", "http_admin")}
}

func (h *AdminHandlers) RegisterRoutes(router *mux.Router) {
	router.Use(h.authn.RequireAuth, h.authn.RequireRoles(models.RoleAdmin))
	router.HandleFunc("/users/{id}", h.getUser).Methods(http.MethodGet)
}

// getUser handles GET /api/admin/users/{id}
func (h *AdminHandlers) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetCurrentUser(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(r.Context(), w, h.logger, err)
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, userResponse{User: user}, "")
}
