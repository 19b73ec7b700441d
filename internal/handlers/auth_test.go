package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/siteops-app/apiserver/internal/services"
	"github.com/siteops-app/apiserver/internal/store"
	"github.com/siteops-app/apiserver/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeUserRepo struct {
	byID   map[int]types.User
	nextID int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byID: make(map[int]types.User)}
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id int) (types.User, error) {
	user, ok := r.byID[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (types.User, error) {
	for _, user := range r.byID {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUserRepo) GetByIdentifier(ctx context.Context, identifier string) (types.User, error) {
	for _, user := range r.byID {
		if user.Email == identifier || (user.Phone != "" && user.Phone == identifier) {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUserRepo) Create(ctx context.Context, user types.User) (types.User, error) {
	if _, err := r.GetByEmail(ctx, user.Email); err == nil {
		return types.User{}, store.ErrConflict
	}
	r.nextID++
	user.ID = r.nextID
	r.byID[user.ID] = user
	return user, nil
}

func (r *fakeUserRepo) Update(ctx context.Context, user types.User) (types.User, error) {
	if _, ok := r.byID[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	r.byID[user.ID] = user
	return user, nil
}

func (r *fakeUserRepo) RecordLogin(ctx context.Context, id int, at time.Time) error {
	user, ok := r.byID[id]
	if !ok {
		return store.ErrNotFound
	}
	user.LoginCount++
	user.LastLoginAt = &at
	r.byID[id] = user
	return nil
}

func (r *fakeUserRepo) Deactivate(ctx context.Context, id int) error {
	user, ok := r.byID[id]
	if !ok {
		return store.ErrNotFound
	}
	user.IsActive = false
	r.byID[id] = user
	return nil
}

type fakeRefreshStore struct {
	byHash map[string]types.RefreshToken
}

func newFakeRefreshStore() *fakeRefreshStore {
	return &fakeRefreshStore{byHash: make(map[string]types.RefreshToken)}
}

func (s *fakeRefreshStore) Replace(ctx context.Context, token types.RefreshToken) error {
	for hash, existing := range s.byHash {
		if existing.UserID == token.UserID && existing.DeviceID == token.DeviceID {
			delete(s.byHash, hash)
		}
	}
	s.byHash[token.TokenHash] = token
	return nil
}

func (s *fakeRefreshStore) Rotate(ctx context.Context, oldHash string, next types.RefreshToken) error {
	if _, ok := s.byHash[oldHash]; !ok {
		return store.ErrNotFound
	}
	delete(s.byHash, oldHash)
	for hash, existing := range s.byHash {
		if existing.UserID == next.UserID && existing.DeviceID == next.DeviceID {
			delete(s.byHash, hash)
		}
	}
	s.byHash[next.TokenHash] = next
	return nil
}

func (s *fakeRefreshStore) GetByHash(ctx context.Context, hash string) (types.RefreshToken, error) {
	token, ok := s.byHash[hash]
	if !ok {
		return types.RefreshToken{}, store.ErrNotFound
	}
	return token, nil
}

func (s *fakeRefreshStore) DeleteForUser(ctx context.Context, userID int, deviceID string) error {
	for hash, token := range s.byHash {
		if token.UserID == userID && (deviceID == "" || token.DeviceID == deviceID) {
			delete(s.byHash, hash)
		}
	}
	return nil
}

type fakeWebSessionStore struct {
	sessions map[string]types.WebSession
	users    *fakeUserRepo
}

func (s *fakeWebSessionStore) Create(ctx context.Context, session types.WebSession) error {
	s.sessions[session.Token] = session
	return nil
}

func (s *fakeWebSessionStore) GetIdentity(ctx context.Context, token string, now time.Time) (types.SessionIdentity, error) {
	session, ok := s.sessions[token]
	if !ok || !session.ExpiresAt.After(now) {
		return types.SessionIdentity{}, store.ErrNotFound
	}
	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil || !user.IsActive {
		return types.SessionIdentity{}, store.ErrNotFound
	}
	return types.SessionIdentity{ID: user.ID, Email: user.Email, Role: user.Role}, nil
}

func (s *fakeWebSessionStore) Delete(ctx context.Context, token string) error {
	delete(s.sessions, token)
	return nil
}

func (s *fakeWebSessionStore) DeleteForUser(ctx context.Context, userID int) error {
	for token, session := range s.sessions {
		if session.UserID == userID {
			delete(s.sessions, token)
		}
	}
	return nil
}

type fakeActivityStore struct {
	entries []types.ActivityLogEntry
}

func (s *fakeActivityStore) Append(ctx context.Context, entry types.ActivityLogEntry) (types.ActivityLogEntry, error) {
	entry.ID = len(s.entries) + 1
	s.entries = append(s.entries, entry)
	return entry, nil
}

func (s *fakeActivityStore) List(ctx context.Context, userID, offset, limit int) ([]types.ActivityLogEntry, error) {
	return s.entries, nil
}

func (s *fakeActivityStore) lastAction() string {
	if len(s.entries) == 0 {
		return ""
	}
	return s.entries[len(s.entries)-1].Action
}

type authFixture struct {
	handler  *AuthHandler
	router   *chi.Mux
	users    *fakeUserRepo
	tokens   *fakeRefreshStore
	sessions *fakeWebSessionStore
	activity *fakeActivityStore
	userSvc  *services.UserService
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	users := newFakeUserRepo()
	tokens := newFakeRefreshStore()
	sessions := &fakeWebSessionStore{sessions: make(map[string]types.WebSession), users: users}
	activity := &fakeActivityStore{}

	userSvc := services.NewUserService(users)
	tokenSvc := services.NewTokenService(tokens, users, "test-secret", "siteops-test", 15*time.Minute, 30*24*time.Hour)
	sessionAdapter := services.NewSessionAdapter(sessions, tokenSvc, "siteops_session", time.Hour, false)
	activityLogger := services.NewActivityLogger(activity, nil, discardLogger())

	handler := NewAuthHandler(userSvc, tokenSvc, sessionAdapter, activityLogger)
	router := chi.NewRouter()
	router.Route("/api/v1/auth", func(r chi.Router) {
		AuthRouter(r, handler)
	})

	return &authFixture{
		handler:  handler,
		router:   router,
		users:    users,
		tokens:   tokens,
		sessions: sessions,
		activity: activity,
		userSvc:  userSvc,
	}
}

func (f *authFixture) registerUser(t *testing.T, email, password string) types.User {
	t.Helper()
	user, err := f.userSvc.Register(context.Background(), "Dana Foreman", email, "", password)
	if err != nil {
		t.Fatalf("register user: %v", err)
	}
	return user
}

func (f *authFixture) postJSON(path string, body any, mutate func(*http.Request)) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	r := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	r.Header.Set("Content-Type", "application/json")
	if mutate != nil {
		mutate(r)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)
	return w
}

func TestRegisterEndpoint(t *testing.T) {
	f := newAuthFixture(t)

	w := f.postJSON("/api/v1/auth/register", RegisterRequest{
		Name:     "Dana Foreman",
		Email:    "dana@example.com",
		Password: "hunter22",
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body)
	}

	var user types.User
	if err := json.Unmarshal(w.Body.Bytes(), &user); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if user.Role != types.RoleUser || !user.IsActive {
		t.Fatalf("unexpected user: %+v", user)
	}
	if strings.Contains(w.Body.String(), "password_hash") {
		t.Fatal("password hash leaked in response")
	}

	// Duplicate email conflicts.
	w = f.postJSON("/api/v1/auth/register", RegisterRequest{
		Name:     "Other",
		Email:    "dana@example.com",
		Password: "hunter22",
	}, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestLoginWebSetsSessionCookie(t *testing.T) {
	f := newAuthFixture(t)
	f.registerUser(t, "dana@example.com", "hunter22")

	w := f.postJSON("/api/v1/auth/login", LoginRequest{
		Identifier: "dana@example.com",
		Password:   "hunter22",
		ClientType: "web",
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
	}

	var resp LoginResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Tokens.AccessToken == "" || resp.Tokens.RefreshToken == "" {
		t.Fatalf("missing tokens: %+v", resp.Tokens)
	}

	var sessionCookie *http.Cookie
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == "siteops_session" {
			sessionCookie = cookie
		}
	}
	if sessionCookie == nil || sessionCookie.Value == "" {
		t.Fatal("web login did not set a session cookie")
	}
	if f.activity.lastAction() != types.ActionLogin {
		t.Fatalf("expected LOGIN activity, got %q", f.activity.lastAction())
	}
}

func TestLoginMobileSkipsCookie(t *testing.T) {
	f := newAuthFixture(t)
	f.registerUser(t, "dana@example.com", "hunter22")

	w := f.postJSON("/api/v1/auth/login", LoginRequest{
		Identifier: "dana@example.com",
		Password:   "hunter22",
		ClientType: "mobile",
		DeviceID:   "device-1",
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == "siteops_session" {
			t.Fatal("mobile login set a session cookie")
		}
	}
	if len(f.sessions.sessions) != 0 {
		t.Fatal("mobile login created a web session row")
	}
}

func TestLoginFailures(t *testing.T) {
	f := newAuthFixture(t)
	user := f.registerUser(t, "dana@example.com", "hunter22")

	w := f.postJSON("/api/v1/auth/login", LoginRequest{Identifier: "dana@example.com", Password: "wrong"}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: expected 401, got %d", w.Code)
	}
	if f.activity.lastAction() != types.ActionLoginFailed {
		t.Fatalf("expected LOGIN_FAILED activity, got %q", f.activity.lastAction())
	}

	w = f.postJSON("/api/v1/auth/login", LoginRequest{Identifier: "nobody@example.com", Password: "hunter22"}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unknown identifier: expected 401, got %d", w.Code)
	}

	if err := f.userSvc.Deactivate(context.Background(), user.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	w = f.postJSON("/api/v1/auth/login", LoginRequest{Identifier: "dana@example.com", Password: "hunter22"}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("inactive user: expected 401, got %d", w.Code)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	f := newAuthFixture(t)
	f.registerUser(t, "dana@example.com", "hunter22")

	w := f.postJSON("/api/v1/auth/login", LoginRequest{
		Identifier: "dana@example.com",
		Password:   "hunter22",
		ClientType: "mobile",
	}, nil)
	var login LoginResponse
	if err := json.Unmarshal(w.Body.Bytes(), &login); err != nil {
		t.Fatalf("decode login: %v", err)
	}

	w = f.postJSON("/api/v1/auth/refresh", RefreshRequest{RefreshToken: login.Tokens.RefreshToken}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d: %s", w.Code, w.Body)
	}
	var rotated types.TokenPair
	if err := json.Unmarshal(w.Body.Bytes(), &rotated); err != nil {
		t.Fatalf("decode refresh: %v", err)
	}
	if rotated.RefreshToken == login.Tokens.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}

	// Replay of the rotated-away token renders as a plain 401.
	w = f.postJSON("/api/v1/auth/refresh", RefreshRequest{RefreshToken: login.Tokens.RefreshToken}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("replay: expected 401, got %d", w.Code)
	}

	w = f.postJSON("/api/v1/auth/refresh", RefreshRequest{RefreshToken: "garbage"}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token: expected 401, got %d", w.Code)
	}
}

func TestLogoutIdempotent(t *testing.T) {
	f := newAuthFixture(t)
	f.registerUser(t, "dana@example.com", "hunter22")

	// Logout with no proof at all still succeeds.
	w := f.postJSON("/api/v1/auth/logout", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	login := f.postJSON("/api/v1/auth/login", LoginRequest{
		Identifier: "dana@example.com",
		Password:   "hunter22",
		ClientType: "web",
	}, nil)
	cookies := login.Result().Cookies()

	w = f.postJSON("/api/v1/auth/logout", nil, func(r *http.Request) {
		for _, cookie := range cookies {
			r.AddCookie(cookie)
		}
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(f.sessions.sessions) != 0 {
		t.Fatal("logout did not delete the web session")
	}
	if len(f.tokens.byHash) != 0 {
		t.Fatal("logout did not revoke refresh tokens")
	}
	if f.activity.lastAction() != types.ActionLogout {
		t.Fatalf("expected LOGOUT activity, got %q", f.activity.lastAction())
	}

	// Second logout with the same stale cookie is still a 200.
	w = f.postJSON("/api/v1/auth/logout", nil, func(r *http.Request) {
		for _, cookie := range cookies {
			r.AddCookie(cookie)
		}
	})
	if w.Code != http.StatusOK {
		t.Fatalf("repeat logout: expected 200, got %d", w.Code)
	}
}

func TestSessionEndpoint(t *testing.T) {
	f := newAuthFixture(t)
	f.registerUser(t, "dana@example.com", "hunter22")

	// Absent proof is a normal unauthenticated state.
	r := httptest.NewRequest(http.MethodGet, "/api/v1/auth/session", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp SessionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.IsAuthenticated || resp.User != nil {
		t.Fatalf("expected unauthenticated session, got %+v", resp)
	}

	// Garbage proof is the same normal state, never a 4xx.
	r = httptest.NewRequest(http.MethodGet, "/api/v1/auth/session", nil)
	r.Header.Set("Authorization", "Bearer garbage")
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("garbage proof: expected 200, got %d", w.Code)
	}

	login := f.postJSON("/api/v1/auth/login", LoginRequest{
		Identifier: "dana@example.com",
		Password:   "hunter22",
		ClientType: "mobile",
	}, nil)
	var loginResp LoginResponse
	if err := json.Unmarshal(login.Body.Bytes(), &loginResp); err != nil {
		t.Fatalf("decode login: %v", err)
	}

	r = httptest.NewRequest(http.MethodGet, "/api/v1/auth/session", nil)
	r.Header.Set("Authorization", "Bearer "+loginResp.Tokens.AccessToken)
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, r)
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.IsAuthenticated || resp.User == nil || resp.User.Email != "dana@example.com" {
		t.Fatalf("expected authenticated session, got %+v", resp)
	}
}

func TestMeEndpoint(t *testing.T) {
	f := newAuthFixture(t)
	f.registerUser(t, "dana@example.com", "hunter22")

	r := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	login := f.postJSON("/api/v1/auth/login", LoginRequest{
		Identifier: "dana@example.com",
		Password:   "hunter22",
		ClientType: "mobile",
	}, nil)
	var loginResp LoginResponse
	if err := json.Unmarshal(login.Body.Bytes(), &loginResp); err != nil {
		t.Fatalf("decode login: %v", err)
	}

	r = httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	r.Header.Set("Authorization", "Bearer "+loginResp.Tokens.AccessToken)
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
	}
	var user types.User
	if err := json.Unmarshal(w.Body.Bytes(), &user); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if user.Email != "dana@example.com" {
		t.Fatalf("unexpected user: %+v", user)
	}
}
