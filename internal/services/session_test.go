package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/siteops-app/apiserver/internal/store"
	"github.com/siteops-app/apiserver/types"
)

type fakeSessionStore struct {
	sessions map[string]types.WebSession
	users    map[int]types.SessionIdentity
	failWith error
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{
		sessions: make(map[string]types.WebSession),
		users:    make(map[int]types.SessionIdentity),
	}
}

func (s *fakeSessionStore) Create(ctx context.Context, session types.WebSession) error {
	s.sessions[session.Token] = session
	return nil
}

func (s *fakeSessionStore) GetIdentity(ctx context.Context, token string, now time.Time) (types.SessionIdentity, error) {
	if s.failWith != nil {
		return types.SessionIdentity{}, s.failWith
	}
	session, ok := s.sessions[token]
	if !ok || !session.ExpiresAt.After(now) {
		return types.SessionIdentity{}, store.ErrNotFound
	}
	identity, ok := s.users[session.UserID]
	if !ok {
		return types.SessionIdentity{}, store.ErrNotFound
	}
	return identity, nil
}

func (s *fakeSessionStore) Delete(ctx context.Context, token string) error {
	delete(s.sessions, token)
	return nil
}

func (s *fakeSessionStore) DeleteForUser(ctx context.Context, userID int) error {
	for token, session := range s.sessions {
		if session.UserID == userID {
			delete(s.sessions, token)
		}
	}
	return nil
}

func newTestSessionAdapter(t *testing.T) (*SessionAdapter, *fakeSessionStore, *TokenService, *fakeTokenStore) {
	t.Helper()
	user := testUser()
	sessions := newFakeSessionStore()
	sessions.users[user.ID] = types.SessionIdentity{ID: user.ID, Email: user.Email, Role: user.Role}
	tokens := newFakeTokenStore()
	tokenSvc := newTestTokenService(tokens, &fakeUserGetter{users: map[int]types.User{user.ID: user}})
	adapter := NewSessionAdapter(sessions, tokenSvc, "siteops_session", time.Hour, false)
	return adapter, sessions, tokenSvc, tokens
}

func TestAuthenticateCookie(t *testing.T) {
	adapter, _, _, _ := newTestSessionAdapter(t)

	cookie, err := adapter.IssueWebSession(context.Background(), testUser().ID)
	if err != nil {
		t.Fatalf("issue web session: %v", err)
	}
	if !cookie.HttpOnly {
		t.Fatal("session cookie must be HttpOnly")
	}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(cookie)

	result, err := adapter.Authenticate(r)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if !result.Authenticated || result.Proof != types.ProofCookie {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.User.ID != testUser().ID {
		t.Fatalf("unexpected user: %+v", result.User)
	}
}

func TestAuthenticateBearer(t *testing.T) {
	adapter, _, tokenSvc, _ := newTestSessionAdapter(t)

	pair, err := tokenSvc.Issue(context.Background(), testUser(), "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+pair.AccessToken)

	result, err := adapter.Authenticate(r)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if !result.Authenticated || result.Proof != types.ProofBearer {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestAuthenticateCookieWinsOverBearer(t *testing.T) {
	adapter, _, tokenSvc, _ := newTestSessionAdapter(t)
	ctx := context.Background()

	cookie, err := adapter.IssueWebSession(ctx, testUser().ID)
	if err != nil {
		t.Fatalf("issue web session: %v", err)
	}
	pair, err := tokenSvc.Issue(ctx, testUser(), "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(cookie)
	r.Header.Set("Authorization", "Bearer "+pair.AccessToken)

	result, err := adapter.Authenticate(r)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if result.Proof != types.ProofCookie {
		t.Fatalf("expected cookie proof, got %q", result.Proof)
	}
}

func TestAuthenticateNoProof(t *testing.T) {
	adapter, _, _, _ := newTestSessionAdapter(t)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	result, err := adapter.Authenticate(r)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if result.Authenticated || result.User != nil {
		t.Fatalf("expected unauthenticated result, got %+v", result)
	}
}

func TestAuthenticateGarbageProofs(t *testing.T) {
	adapter, _, _, _ := newTestSessionAdapter(t)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: "siteops_session", Value: "not-a-session"})
	r.Header.Set("Authorization", "Bearer not-a-token")

	result, err := adapter.Authenticate(r)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if result.Authenticated {
		t.Fatalf("expected unauthenticated result, got %+v", result)
	}
}

func TestLogoutClearsBothProofs(t *testing.T) {
	adapter, sessions, tokenSvc, tokens := newTestSessionAdapter(t)
	ctx := context.Background()

	cookie, err := adapter.IssueWebSession(ctx, testUser().ID)
	if err != nil {
		t.Fatalf("issue web session: %v", err)
	}
	if _, err := tokenSvc.Issue(ctx, testUser(), "device-1"); err != nil {
		t.Fatalf("issue: %v", err)
	}

	r := httptest.NewRequest(http.MethodPost, "/logout", nil)
	r.AddCookie(cookie)
	result, err := adapter.Authenticate(r)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	if err := adapter.Logout(ctx, r, result, ""); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if len(sessions.sessions) != 0 {
		t.Fatalf("web session not deleted, %d remain", len(sessions.sessions))
	}
	if len(tokens.byHash) != 0 {
		t.Fatalf("refresh tokens not revoked, %d remain", len(tokens.byHash))
	}

	// Logging out again with no proof left is a no-op.
	if err := adapter.Logout(ctx, r, types.AuthResult{}, ""); err != nil {
		t.Fatalf("repeat logout: %v", err)
	}
}

func TestExpiredSessionCookie(t *testing.T) {
	adapter, _, _, _ := newTestSessionAdapter(t)

	cookie := adapter.ExpiredSessionCookie()
	if cookie.MaxAge != -1 {
		t.Fatalf("expected MaxAge -1, got %d", cookie.MaxAge)
	}
	if cookie.Value != "" {
		t.Fatalf("expected empty value, got %q", cookie.Value)
	}
}

func TestDetectClientType(t *testing.T) {
	adapter, _, _, _ := newTestSessionAdapter(t)

	cases := []struct {
		name      string
		header    string
		userAgent string
		want      types.ClientType
	}{
		{"explicit mobile header", "mobile", "Mozilla/5.0", types.ClientMobile},
		{"explicit web header", "web", "okhttp/4.9", types.ClientWeb},
		{"expo user agent", "", "Expo/49.0 CFNetwork", types.ClientMobile},
		{"okhttp user agent", "", "okhttp/4.9.0", types.ClientMobile},
		{"browser user agent", "", "Mozilla/5.0 (Windows NT 10.0)", types.ClientWeb},
		{"no hints", "", "", types.ClientWeb},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				r.Header.Set("X-Client-Type", tc.header)
			}
			if tc.userAgent != "" {
				r.Header.Set("User-Agent", tc.userAgent)
			}
			if got := adapter.DetectClientType(r); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}
