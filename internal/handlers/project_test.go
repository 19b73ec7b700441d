package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/siteops-app/apiserver/internal/services"
	"github.com/siteops-app/apiserver/internal/store"
	"github.com/siteops-app/apiserver/types"
)

type fakeProjectRepo struct {
	byID   map[int]types.Project
	nextID int
}

func newFakeProjectRepo() *fakeProjectRepo {
	return &fakeProjectRepo{byID: make(map[int]types.Project)}
}

func (r *fakeProjectRepo) Get(ctx context.Context, id int) (types.Project, error) {
	p, ok := r.byID[id]
	if !ok || p.DeletedAt != nil {
		return types.Project{}, store.ErrNotFound
	}
	return p, nil
}

func (r *fakeProjectRepo) List(ctx context.Context, viewer types.SessionIdentity, offset, limit int) ([]types.Project, int, error) {
	var items []types.Project
	for _, p := range r.byID {
		if p.DeletedAt != nil {
			continue
		}
		if !types.SeesEverything(viewer.Role) && p.ManagerID != viewer.ID {
			continue
		}
		items = append(items, p)
	}
	return items, len(items), nil
}

func (r *fakeProjectRepo) Create(ctx context.Context, p types.Project) (types.Project, error) {
	r.nextID++
	p.ID = r.nextID
	r.byID[p.ID] = p
	return p, nil
}

func (r *fakeProjectRepo) Update(ctx context.Context, p types.Project) (types.Project, error) {
	if _, ok := r.byID[p.ID]; !ok {
		return types.Project{}, store.ErrNotFound
	}
	r.byID[p.ID] = p
	return p, nil
}

func (r *fakeProjectRepo) SoftDelete(ctx context.Context, id int) error {
	p, ok := r.byID[id]
	if !ok || p.DeletedAt != nil {
		return store.ErrNotFound
	}
	now := p.UpdatedAt
	p.DeletedAt = &now
	r.byID[id] = p
	return nil
}

func (r *fakeProjectRepo) AddMember(ctx context.Context, projectID, userID int) error    { return nil }
func (r *fakeProjectRepo) RemoveMember(ctx context.Context, projectID, userID int) error { return nil }

// projectFixture wires the project routes behind the real auth middleware so
// the role gate is exercised end to end.
func newProjectFixture(t *testing.T) (*authFixture, *chi.Mux, *stubQueueStore) {
	t.Helper()

	f := newAuthFixture(t)
	queue := &stubQueueStore{}
	syncQueue := services.NewSyncQueue(queue, nil, discardLogger())
	projectSvc := services.NewProjectService(newFakeProjectRepo(), syncQueue)
	projectHandler := NewProjectHandler(projectSvc)

	auth := f.handler.RequireAuth
	manage := f.handler.RequireRole(types.CanManage)

	router := chi.NewRouter()
	router.Route("/api/v1/auth", func(r chi.Router) {
		AuthRouter(r, f.handler)
	})
	router.Route("/api/v1/projects", func(r chi.Router) {
		ProjectRouter(r, projectHandler, auth, manage)
	})
	return f, router, queue
}

func loginToken(t *testing.T, f *authFixture, router *chi.Mux, email, password string) string {
	t.Helper()
	body, _ := json.Marshal(LoginRequest{Identifier: email, Password: password, ClientType: "mobile"})
	r := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", w.Code, w.Body)
	}
	var resp LoginResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return resp.Tokens.AccessToken
}

func TestProjectWriteRequiresManagingRole(t *testing.T) {
	f, router, _ := newProjectFixture(t)
	f.registerUser(t, "worker@example.com", "hunter22")
	token := loginToken(t, f, router, "worker@example.com", "hunter22")

	body, _ := json.Marshal(ProjectUpsertRequest{Name: "North Tower", Status: types.ProjectActive, ManagerID: 1})
	r := httptest.NewRequest(http.MethodPost, "/api/v1/projects/", bytes.NewReader(body))
	r.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusForbidden {
		t.Fatalf("USER write: expected 403, got %d", w.Code)
	}
}

func TestProjectLifecycle(t *testing.T) {
	f, router, _ := newProjectFixture(t)

	coordinator := f.registerUser(t, "coordinator@example.com", "hunter22")
	coordinator.Role = types.RoleCoordinator
	if _, err := f.userSvc.Update(context.Background(), coordinator); err != nil {
		t.Fatalf("promote user: %v", err)
	}
	token := loginToken(t, f, router, "coordinator@example.com", "hunter22")

	body, _ := json.Marshal(ProjectUpsertRequest{Name: "North Tower", Status: types.ProjectActive, ManagerID: coordinator.ID})
	r := httptest.NewRequest(http.MethodPost, "/api/v1/projects/", bytes.NewReader(body))
	r.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body)
	}
	var created types.Project
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	r = httptest.NewRequest(http.MethodGet, "/api/v1/projects/", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", w.Code)
	}
	var list ProjectListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Total != 1 {
		t.Fatalf("expected 1 project, got %d", list.Total)
	}

	r = httptest.NewRequest(http.MethodDelete, "/api/v1/projects/"+strconv.Itoa(created.ID), nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, r)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", w.Code)
	}

	r = httptest.NewRequest(http.MethodGet, "/api/v1/projects/"+strconv.Itoa(created.ID), nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, r)
	if w.Code != http.StatusNotFound {
		t.Fatalf("get after delete: expected 404, got %d", w.Code)
	}
}
