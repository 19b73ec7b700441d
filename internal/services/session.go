package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/siteops-app/apiserver/internal/store"
	"github.com/siteops-app/apiserver/types"
)

// WebSessionStore is the persistence surface for cookie-backed sessions.
type WebSessionStore interface {
	Create(ctx context.Context, session types.WebSession) error
	GetIdentity(ctx context.Context, token string, now time.Time) (types.SessionIdentity, error)
	Delete(ctx context.Context, token string) error
	DeleteForUser(ctx context.Context, userID int) error
}

// SessionAdapter normalizes the two credential-proof mechanisms (server-side
// cookie session, bearer access token) into one SessionIdentity, so handlers
// never branch on client type.
type SessionAdapter struct {
	sessions   WebSessionStore
	tokens     *TokenService
	cookieName string
	sessionTTL time.Duration
	secure     bool
}

func NewSessionAdapter(sessions WebSessionStore, tokens *TokenService, cookieName string, sessionTTL time.Duration, secure bool) *SessionAdapter {
	return &SessionAdapter{
		sessions:   sessions,
		tokens:     tokens,
		cookieName: cookieName,
		sessionTTL: sessionTTL,
		secure:     secure,
	}
}

// Authenticate resolves the request's identity. Cookie session is tried
// first, then bearer token; the first successful proof wins and the other
// is never consulted. Missing or invalid proofs are a normal outcome
// (Authenticated false, nil error); only a store failure is an error.
func (a *SessionAdapter) Authenticate(r *http.Request) (types.AuthResult, error) {
	if cookie, err := r.Cookie(a.cookieName); err == nil && cookie.Value != "" {
		identity, err := a.sessions.GetIdentity(r.Context(), cookie.Value, time.Now().UTC())
		if err == nil {
			return types.AuthResult{Authenticated: true, User: &identity, Proof: types.ProofCookie}, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return types.AuthResult{}, err
		}
	}

	if token := bearerToken(r); token != "" {
		identity, err := a.tokens.VerifyAccess(token)
		if err == nil {
			return types.AuthResult{Authenticated: true, User: &identity, Proof: types.ProofBearer}, nil
		}
	}

	return types.AuthResult{Authenticated: false}, nil
}

// DetectClientType classifies the caller for logging and metrics only.
// Trust is established exclusively by Authenticate.
func (a *SessionAdapter) DetectClientType(r *http.Request) types.ClientType {
	switch strings.ToLower(strings.TrimSpace(r.Header.Get("X-Client-Type"))) {
	case "mobile":
		return types.ClientMobile
	case "web":
		return types.ClientWeb
	}
	ua := strings.ToLower(r.UserAgent())
	for _, marker := range []string{"expo", "okhttp", "react-native", "darwin"} {
		if strings.Contains(ua, marker) {
			return types.ClientMobile
		}
	}
	return types.ClientWeb
}

// IssueWebSession creates a server-side session row and returns the cookie
// that references it.
func (a *SessionAdapter) IssueWebSession(ctx context.Context, userID int) (*http.Cookie, error) {
	token, err := newSessionToken()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	session := types.WebSession{
		Token:     token,
		UserID:    userID,
		ExpiresAt: now.Add(a.sessionTTL),
		CreatedAt: now,
	}
	if err := a.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	return a.sessionCookie(token, session.ExpiresAt), nil
}

// Logout clears every proof the request presented: the cookie session row
// when a cookie is there, and persisted refresh tokens when an identity is
// known. Calling it without any live proof is a no-op, which keeps the
// logout endpoint idempotent.
func (a *SessionAdapter) Logout(ctx context.Context, r *http.Request, result types.AuthResult, deviceID string) error {
	if cookie, err := r.Cookie(a.cookieName); err == nil && cookie.Value != "" {
		if err := a.sessions.Delete(ctx, cookie.Value); err != nil {
			return err
		}
	}
	if result.Authenticated {
		if err := a.tokens.Revoke(ctx, result.User.ID, deviceID); err != nil {
			return err
		}
	}
	return nil
}

// ExpiredSessionCookie returns a cookie that instructs the browser to drop
// the session cookie immediately.
func (a *SessionAdapter) ExpiredSessionCookie() *http.Cookie {
	cookie := a.sessionCookie("", time.Unix(0, 0))
	cookie.MaxAge = -1
	return cookie
}

func (a *SessionAdapter) sessionCookie(token string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     a.cookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func bearerToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func newSessionToken() (string, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf[:]), nil
}
