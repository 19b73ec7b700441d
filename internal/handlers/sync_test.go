package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/siteops-app/apiserver/internal/services"
	"github.com/siteops-app/apiserver/internal/store"
	"github.com/siteops-app/apiserver/types"
)

type stubQueueStore struct {
	status types.SyncStatus
}

func (s *stubQueueStore) Enqueue(ctx context.Context, item types.SyncQueueItem) (types.SyncQueueItem, error) {
	return item, nil
}

func (s *stubQueueStore) ListPending(ctx context.Context, limit int) ([]types.SyncQueueItem, error) {
	return nil, nil
}

func (s *stubQueueStore) SetStatus(ctx context.Context, id int, status string, at time.Time) error {
	return store.ErrNotFound
}

func (s *stubQueueStore) Status(ctx context.Context, userID int) (types.SyncStatus, error) {
	return s.status, nil
}

type stubSource struct {
	entity  string
	records []types.SyncRecord
}

func (s *stubSource) Entity() string { return s.entity }

func (s *stubSource) ChangesSince(ctx context.Context, viewer types.SessionIdentity, since *time.Time) ([]types.SyncRecord, error) {
	return s.records, nil
}

func identityMiddleware(identity types.SessionIdentity) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity)))
		})
	}
}

func newSyncRouter(t *testing.T, auth func(http.Handler) http.Handler) (*chi.Mux, *stubQueueStore) {
	t.Helper()

	payload, _ := json.Marshal(map[string]int{"id": 1})
	now := time.Now().UTC()
	queue := &stubQueueStore{status: types.SyncStatus{HasPendingChanges: true, PendingCount: 2, FailedCount: 1}}
	reconciler := services.NewReconciler(queue, discardLogger(), &stubSource{
		entity:  "projects",
		records: []types.SyncRecord{{Payload: payload, CreatedAt: now, UpdatedAt: now}},
	})
	handler := NewSyncHandler(reconciler, services.NewActivityLogger(&fakeActivityStore{}, nil, discardLogger()))

	router := chi.NewRouter()
	router.Route("/mobile/v1/sync", func(r chi.Router) {
		SyncRouter(r, handler, auth)
	})
	return router, queue
}

func TestSyncPull(t *testing.T) {
	identity := types.SessionIdentity{ID: 7, Email: "dana@example.com", Role: types.RoleUser}
	router, _ := newSyncRouter(t, identityMiddleware(identity))

	body, _ := json.Marshal(types.PullRequest{Entities: []string{"projects"}})
	r := httptest.NewRequest(http.MethodPost, "/mobile/v1/sync/pull", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
	}
	var result types.PullResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := len(result.Changes.Created["projects"]); got != 1 {
		t.Fatalf("expected 1 created record, got %d", got)
	}
}

func TestSyncPullUnknownEntity(t *testing.T) {
	identity := types.SessionIdentity{ID: 7, Role: types.RoleUser}
	router, _ := newSyncRouter(t, identityMiddleware(identity))

	body, _ := json.Marshal(types.PullRequest{Entities: []string{"invoices"}})
	r := httptest.NewRequest(http.MethodPost, "/mobile/v1/sync/pull", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestSyncPullUnauthenticated(t *testing.T) {
	passthrough := func(next http.Handler) http.Handler { return next }
	router, _ := newSyncRouter(t, passthrough)

	body, _ := json.Marshal(types.PullRequest{})
	r := httptest.NewRequest(http.MethodPost, "/mobile/v1/sync/pull", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestSyncStatus(t *testing.T) {
	identity := types.SessionIdentity{ID: 7, Role: types.RoleUser}
	router, queue := newSyncRouter(t, identityMiddleware(identity))

	r := httptest.NewRequest(http.MethodGet, "/mobile/v1/sync/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var status types.SyncStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status != queue.status {
		t.Fatalf("got %+v, want %+v", status, queue.status)
	}
}
