package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/siteops-app/apiserver/internal/services"
	"github.com/siteops-app/apiserver/internal/store"
	"github.com/siteops-app/apiserver/types"
)

// AuthHandler provides the dual-client authentication endpoints.
type AuthHandler struct {
	users    *services.UserService
	tokens   *services.TokenService
	sessions *services.SessionAdapter
	activity *services.ActivityLogger
}

func NewAuthHandler(users *services.UserService, tokens *services.TokenService, sessions *services.SessionAdapter, activity *services.ActivityLogger) *AuthHandler {
	return &AuthHandler{
		users:    users,
		tokens:   tokens,
		sessions: sessions,
		activity: activity,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, handler *AuthHandler) {
	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.Post("/refresh", handler.Refresh)
	r.Post("/logout", handler.Logout)
	r.Get("/session", handler.Session)
	r.With(handler.RequireAuth).Get("/me", handler.Me)
}

// RequireAuth resolves the request's identity through the session adapter
// and injects it into context. Cookie and bearer proofs are both accepted.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result, err := h.sessions.Authenticate(r)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to authenticate")
			return
		}
		if !result.Authenticated {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), *result.User)))
	})
}

// RequireRole layers a role check over RequireAuth. allowed reports whether
// the identity's role may pass.
func (h *AuthHandler) RequireRole(allowed func(role string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return h.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := identityFromContext(r.Context())
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !allowed(identity.Role) {
				writeError(w, http.StatusForbidden, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	ClientType string `json:"clientType"`
	DeviceID   string `json:"deviceId"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
	DeviceID     string `json:"deviceId"`
}

type LoginResponse struct {
	User   types.User      `json:"user"`
	Tokens types.TokenPair `json:"tokens"`
}

type SessionResponse struct {
	Success         bool                   `json:"success"`
	IsAuthenticated bool                   `json:"isAuthenticated"`
	User            *types.SessionIdentity `json:"user"`
}

// Register creates a new account.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if req.Name == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}

	user, err := h.users.Register(r.Context(), req.Name, req.Email, req.Phone, req.Password)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	h.activity.Record(r.Context(), user.ID, types.ActionRegister, "account created", requestMeta(r))
	writeJSON(w, http.StatusCreated, user)
}

// Login verifies credentials and issues a token pair. Web clients also
// receive a session cookie, so browser requests carry no bearer token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Identifier = strings.TrimSpace(req.Identifier)
	if req.Identifier == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.Identifier, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			h.activity.Record(r.Context(), 0, types.ActionLoginFailed, "identifier "+req.Identifier, requestMeta(r))
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to authenticate")
		return
	}

	tokens, err := h.tokens.Issue(r.Context(), user, req.DeviceID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create tokens")
		return
	}

	clientType := types.ClientType(req.ClientType)
	if clientType != types.ClientWeb && clientType != types.ClientMobile {
		clientType = h.sessions.DetectClientType(r)
	}
	if clientType == types.ClientWeb {
		cookie, err := h.sessions.IssueWebSession(r.Context(), user.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to create session")
			return
		}
		http.SetCookie(w, cookie)
	}

	if err := h.users.RecordLogin(r.Context(), user.ID); err == nil {
		user.LoginCount++
	}
	h.activity.Record(r.Context(), user.ID, types.ActionLogin, string(clientType)+" login", requestMeta(r))

	writeJSON(w, http.StatusOK, LoginResponse{User: user, Tokens: tokens})
}

// Refresh rotates a refresh token into a new pair. Expired, invalid and
// revoked tokens all render as the same 401.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		writeError(w, http.StatusBadRequest, "missing refresh token")
		return
	}

	tokens, err := h.tokens.Refresh(r.Context(), req.RefreshToken, req.DeviceID)
	if err != nil {
		if errors.Is(err, services.ErrTokenExpired) ||
			errors.Is(err, services.ErrTokenInvalid) ||
			errors.Is(err, services.ErrTokenRevoked) {
			writeError(w, http.StatusUnauthorized, "invalid refresh token")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to refresh tokens")
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

// Logout clears whatever proof the request presented. It succeeds with 200
// whether or not the caller was authenticated, so clients can always clear
// local state after calling it.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	result, err := h.sessions.Authenticate(r)
	if err != nil {
		result = types.AuthResult{}
	}

	var req struct {
		DeviceID string `json:"deviceId"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := h.sessions.Logout(r.Context(), r, result, req.DeviceID); err == nil && result.Authenticated {
		h.activity.Record(r.Context(), result.User.ID, types.ActionLogout, "", requestMeta(r))
	}

	http.SetCookie(w, h.sessions.ExpiredSessionCookie())
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Session reports the caller's authentication state. It always answers 200;
// an absent or stale proof is a normal state, not an error.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	result, err := h.sessions.Authenticate(r)
	if err != nil {
		writeJSON(w, http.StatusOK, SessionResponse{Success: false, IsAuthenticated: false})
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{
		Success:         true,
		IsAuthenticated: result.Authenticated,
		User:            result.User,
	})
}

// Me returns the current user's full profile.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.users.GetByID(r.Context(), identity.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	writeJSON(w, http.StatusOK, user)
}
