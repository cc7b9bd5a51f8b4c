package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/xid"

	"github.com/sakif/snipshare/internal/apperror"
	"github.com/sakif/snipshare/internal/auth"
	"github.com/sakif/snipshare/internal/service"
)

const stateCookie = "oauth_state"

// AuthHandler manages accounts and sessions.
//
//   - Register / Login     → check credentials, set the session cookie
//   - Logout               → clear the cookie
//   - Verify / Me          → who is signed in
//   - UpdateEmail/Password → account changes
//   - GitHubLogin/Callback → optional OAuth sign-in (github may be nil)
type AuthHandler struct {
	auth         *service.AuthService
	github       *auth.GitHubProvider
	resp         *Responder
	validate     *validator.Validate
	secureCookie bool
	logger       *slog.Logger
}

func NewAuthHandler(
	authService *service.AuthService,
	github *auth.GitHubProvider,
	resp *Responder,
	secureCookie bool,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		auth:         authService,
		github:       github,
		resp:         resp,
		validate:     newValidator(),
		secureCookie: secureCookie,
		logger:       logger,
	}
}

type registerRequest struct {
	Username string `json:"username" validate:"required,notblank,min=3,max=100"`
	Email    string `json:"email"    validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=128,password"`
}

type loginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type updateEmailRequest struct {
	Email string `json:"email" validate:"required,email,max=255"`
}

type updatePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"     validate:"required,min=8,max=128,password"`
}

// Register creates an account and signs it in.
//
// HTTP: POST /api/auth/inscription → 201 {user, token}
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(w, r, h.validate, &req); err != nil {
		h.resp.Error(w, r, err)
		return
	}

	res, err := h.auth.Register(r.Context(), service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}

	auth.SetSessionCookie(w, res.Token, h.auth.TokenExpiry(), h.secureCookie)
	h.resp.Created(w, res, "account created")
}

// Login checks email and password.
//
// HTTP: POST /api/auth/connexion → 200 {user, token}
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(w, r, h.validate, &req); err != nil {
		h.resp.Error(w, r, err)
		return
	}

	res, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}

	auth.SetSessionCookie(w, res.Token, h.auth.TokenExpiry(), h.secureCookie)
	h.resp.OK(w, res, "logged in")
}

// Logout clears the cookie. Tokens are stateless, so an already copied token
// stays valid until it expires; without the cookie the browser stops sending it.
//
// HTTP: POST /api/auth/deconnexion
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSessionCookie(w, h.secureCookie)
	h.resp.OK(w, nil, "logged out")
}

// Verify tells the frontend whether its session cookie is still good.
//
// HTTP: GET /api/auth/verifier
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		h.resp.Error(w, r, apperror.Unauthorized("authentication required"))
		return
	}
	h.resp.OK(w, map[string]string{"userId": id.UserID, "email": id.Email}, "session valid")
}

// Me returns the signed-in user's profile.
//
// HTTP: GET /api/auth/moi
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.Me(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.OK(w, user, "")
}

// UpdateEmail changes the email and reissues the cookie, since the token
// carries the email.
//
// HTTP: PUT /api/auth/email
func (h *AuthHandler) UpdateEmail(w http.ResponseWriter, r *http.Request) {
	var req updateEmailRequest
	if err := decode(w, r, h.validate, &req); err != nil {
		h.resp.Error(w, r, err)
		return
	}

	res, err := h.auth.UpdateEmail(r.Context(), auth.UserIDFromContext(r.Context()), req.Email)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}

	auth.SetSessionCookie(w, res.Token, h.auth.TokenExpiry(), h.secureCookie)
	h.resp.OK(w, res.User, "email updated")
}

// UpdatePassword changes the password.
//
// HTTP: PUT /api/auth/mot-de-passe
func (h *AuthHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req updatePasswordRequest
	if err := decode(w, r, h.validate, &req); err != nil {
		h.resp.Error(w, r, err)
		return
	}

	err := h.auth.UpdatePassword(r.Context(), auth.UserIDFromContext(r.Context()), req.CurrentPassword, req.NewPassword)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.OK(w, nil, "password updated")
}

// GitHubLogin redirects to GitHub's authorization page.
//
// HTTP: GET /api/auth/github/login
//
// A random state is kept in a short-lived HttpOnly cookie and compared on
// callback. That proves the callback belongs to a flow this browser started
// (login CSRF protection).
func (h *AuthHandler) GitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// GitHubCallback finishes the OAuth flow, signs the user in and redirects
// to the app.
//
// HTTP: GET /api/auth/github/callback?code=xxx&state=yyy
func (h *AuthHandler) GitHubCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	c, err := r.Cookie(stateCookie)
	if err != nil || c.Value == "" || q.Get("state") != c.Value {
		h.logger.Warn("github callback: state mismatch")
		h.resp.Error(w, r, apperror.ValidationFailed("state", "invalid OAuth state"))
		return
	}

	// Single use.
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

	if errParam := q.Get("error"); errParam != "" {
		h.logger.Info("github callback: authorization denied", slog.String("error", errParam))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	code := q.Get("code")
	if code == "" {
		h.resp.Error(w, r, apperror.ValidationFailed("code", "missing OAuth code"))
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}

	res, err := h.auth.LoginWithGitHub(r.Context(), ghUser)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}

	auth.SetSessionCookie(w, res.Token, h.auth.TokenExpiry(), h.secureCookie)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
