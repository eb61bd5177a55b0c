package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cycles/api/internal/auth"
	"cycles/api/internal/board"
	"cycles/api/internal/identity"
	"cycles/api/internal/rooms"
	"cycles/api/internal/search"
)

var testSecret = []byte("test-secret")

type fakeRoomStore struct {
	rooms map[string]rooms.Room

	createCalls  int
	seedCalls    int
	updateCalls  int
	migrateCalls int
}

func newFakeRoomStore() *fakeRoomStore {
	return &fakeRoomStore{rooms: map[string]rooms.Room{}}
}

func (f *fakeRoomStore) GetRoom(_ context.Context, roomID string) (rooms.Room, error) {
	room, ok := f.rooms[roomID]
	if !ok {
		return rooms.Room{}, rooms.ErrNotFound
	}
	return room, nil
}

func (f *fakeRoomStore) CreateRoom(_ context.Context, roomID string, metadata rooms.Metadata, _ []string) error {
	f.createCalls++
	f.rooms[roomID] = rooms.Room{ID: roomID, Metadata: metadata}
	return nil
}

func (f *fakeRoomStore) UpdateRoom(_ context.Context, roomID string, metadata rooms.Metadata) error {
	f.updateCalls++
	f.rooms[roomID] = rooms.Room{ID: roomID, Metadata: metadata}
	return nil
}

func (f *fakeRoomStore) UpdateRoomID(_ context.Context, currentID, newID string) error {
	f.migrateCalls++
	room := f.rooms[currentID]
	delete(f.rooms, currentID)
	room.ID = newID
	f.rooms[newID] = room
	return nil
}

func (f *fakeRoomStore) InitializeStorage(_ context.Context, _ string, _ rooms.StorageNode) error {
	f.seedCalls++
	return nil
}

func (f *fakeRoomStore) ListRooms(_ context.Context, prefix string) ([]rooms.Room, error) {
	var matched []rooms.Room
	for id, room := range f.rooms {
		if strings.HasPrefix(id, prefix) {
			matched = append(matched, room)
		}
	}
	return matched, nil
}

type fakeProfiles struct{}

func (fakeProfiles) GetUser(_ context.Context, userID string) (identity.Profile, error) {
	return identity.Profile{ID: userID, FullName: "User " + userID}, nil
}

func newTestServer(store *fakeRoomStore) *HTTPServer {
	boards := board.New(store, fakeProfiles{}, nil, nil)
	searchSvc := search.NewService(nil, search.NewFallback(store))
	return NewHTTPServer(boards, searchSvc, testSecret, "*")
}

func orgToken(t *testing.T) string {
	t.Helper()
	token, err := auth.IssueToken(testSecret, auth.Claims{
		Sub:     "user_123",
		Name:    "Avery",
		OrgID:   "org_456",
		OrgSlug: "my-org",
		Exp:     time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func doRequest(t *testing.T, server *HTTPServer, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, req)
	return recorder
}

func decodeResponse(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response %q: %v", recorder.Body.String(), err)
	}
	return payload
}

func TestHealth(t *testing.T) {
	server := newTestServer(newFakeRoomStore())
	recorder := doRequest(t, server, http.MethodGet, "/api/health", "", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	if payload := decodeResponse(t, recorder); payload["ok"] != true {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestSessionWithoutToken(t *testing.T) {
	server := newTestServer(newFakeRoomStore())
	recorder := doRequest(t, server, http.MethodGet, "/api/session", "", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	if payload := decodeResponse(t, recorder); payload["authenticated"] != false {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestSessionWithToken(t *testing.T) {
	server := newTestServer(newFakeRoomStore())
	recorder := doRequest(t, server, http.MethodGet, "/api/session", orgToken(t), "")
	payload := decodeResponse(t, recorder)
	if payload["authenticated"] != true || payload["orgSlug"] != "my-org" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestCreateBoard(t *testing.T) {
	store := newFakeRoomStore()
	server := newTestServer(store)

	recorder := doRequest(t, server, http.MethodPost, "/api/boards", orgToken(t),
		`{"slug":"my-board","title":"My Board"}`)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("status = %d body = %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeResponse(t, recorder)
	if payload["path"] != "/my-org/boards/my-board" {
		t.Errorf("path = %v", payload["path"])
	}
	if store.createCalls != 1 || store.seedCalls != 1 {
		t.Errorf("create/seed calls = %d/%d", store.createCalls, store.seedCalls)
	}
}

func TestCreateBoardRequiresAuth(t *testing.T) {
	store := newFakeRoomStore()
	server := newTestServer(store)

	recorder := doRequest(t, server, http.MethodPost, "/api/boards", "", `{"slug":"my-board"}`)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", recorder.Code)
	}
	if store.createCalls != 0 {
		t.Error("expected no backend call for unauthenticated request")
	}
}

func TestCreateBoardRejectsUnsafeSlug(t *testing.T) {
	store := newFakeRoomStore()
	server := newTestServer(store)

	recorder := doRequest(t, server, http.MethodPost, "/api/boards", orgToken(t),
		`{"slug":"//evil.com"}`)
	if recorder.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", recorder.Code)
	}
	payload := decodeResponse(t, recorder)
	if payload["code"] != "INVALID_SLUG" {
		t.Errorf("code = %v", payload["code"])
	}
	if store.createCalls != 0 {
		t.Error("expected no backend call for invalid slug")
	}
}

func TestUpdateBoardTitleOnly(t *testing.T) {
	store := newFakeRoomStore()
	store.rooms["org_456:my-board"] = rooms.Room{
		ID:       "org_456:my-board",
		Metadata: rooms.Metadata{"title": "My Board"},
	}
	server := newTestServer(store)

	recorder := doRequest(t, server, http.MethodPost, "/api/boards/update", orgToken(t),
		`{"roomId":"org_456:my-board","title":"Renamed","slug":"my-board","orgId":"org_456"}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeResponse(t, recorder)
	if payload["path"] != "/my-org/boards" {
		t.Errorf("path = %v", payload["path"])
	}
	if store.updateCalls != 1 || store.migrateCalls != 0 {
		t.Errorf("update/migrate calls = %d/%d", store.updateCalls, store.migrateCalls)
	}
}

func TestUpdateBoardForeignScope(t *testing.T) {
	store := newFakeRoomStore()
	server := newTestServer(store)

	recorder := doRequest(t, server, http.MethodPost, "/api/boards/update", orgToken(t),
		`{"roomId":"org_999:my-board","title":"Renamed","slug":"my-board"}`)
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("status = %d", recorder.Code)
	}
}

func TestGetBoard(t *testing.T) {
	store := newFakeRoomStore()
	store.rooms["org_456:my-board"] = rooms.Room{
		ID:       "org_456:my-board",
		Metadata: rooms.Metadata{"title": "My Board", "createdBy": "user_123"},
	}
	server := newTestServer(store)

	recorder := doRequest(t, server, http.MethodGet, "/api/boards/my-board", orgToken(t), "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeResponse(t, recorder)
	if payload["title"] != "My Board" || payload["slug"] != "my-board" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestGetBoardNotFoundIsGeneric(t *testing.T) {
	server := newTestServer(newFakeRoomStore())

	recorder := doRequest(t, server, http.MethodGet, "/api/boards/missing", orgToken(t), "")
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("status = %d", recorder.Code)
	}
	payload := decodeResponse(t, recorder)
	if payload["error"] != "Not found" {
		t.Errorf("not-found message must stay generic, got %v", payload["error"])
	}
}

func TestListBoards(t *testing.T) {
	store := newFakeRoomStore()
	store.rooms["org_456:alpha"] = rooms.Room{ID: "org_456:alpha", Metadata: rooms.Metadata{"title": "Alpha", "createdBy": "user_1"}}
	store.rooms["org_456:beta"] = rooms.Room{ID: "org_456:beta", Metadata: rooms.Metadata{"title": "Beta", "createdBy": "user_1", "archived": "true"}}
	store.rooms["org_999:other"] = rooms.Room{ID: "org_999:other", Metadata: rooms.Metadata{"title": "Other"}}
	server := newTestServer(store)

	recorder := doRequest(t, server, http.MethodGet, "/api/boards", orgToken(t), "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeResponse(t, recorder)
	active := payload["active"].([]any)
	archived := payload["archived"].([]any)
	creators := payload["creators"].(map[string]any)
	if len(active) != 1 || len(archived) != 1 {
		t.Errorf("partition = %d active / %d archived", len(active), len(archived))
	}
	if len(creators) != 1 {
		t.Errorf("creators = %v", creators)
	}
}

func TestArchiveBoard(t *testing.T) {
	store := newFakeRoomStore()
	store.rooms["org_456:my-board"] = rooms.Room{
		ID:       "org_456:my-board",
		Metadata: rooms.Metadata{"title": "My Board"},
	}
	server := newTestServer(store)

	recorder := doRequest(t, server, http.MethodPost, "/api/boards/archive", orgToken(t),
		`{"roomId":"org_456:my-board","archived":true}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", recorder.Code, recorder.Body.String())
	}
	if store.rooms["org_456:my-board"].Metadata["archived"] != "true" {
		t.Error("archived flag not set")
	}
}

func TestSearchBoardsFallback(t *testing.T) {
	store := newFakeRoomStore()
	store.rooms["org_456:roadmap"] = rooms.Room{ID: "org_456:roadmap", Metadata: rooms.Metadata{"title": "Roadmap"}}
	server := newTestServer(store)

	recorder := doRequest(t, server, http.MethodGet, "/api/search?q=road", orgToken(t), "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeResponse(t, recorder)
	results := payload["results"].([]any)
	if len(results) != 1 {
		t.Fatalf("results = %v", results)
	}
}

func TestSearchRejectsNegativeBounds(t *testing.T) {
	store := newFakeRoomStore()
	store.rooms["org_456:roadmap"] = rooms.Room{ID: "org_456:roadmap", Metadata: rooms.Metadata{"title": "Roadmap"}}
	server := newTestServer(store)

	for _, query := range []string{"offset=-1", "limit=-1"} {
		recorder := doRequest(t, server, http.MethodGet, "/api/search?q=road&"+query, orgToken(t), "")
		if recorder.Code != http.StatusUnprocessableEntity {
			t.Fatalf("%s: status = %d body = %s", query, recorder.Code, recorder.Body.String())
		}
		payload := decodeResponse(t, recorder)
		if payload["code"] != "VALIDATION_ERROR" {
			t.Errorf("%s: code = %v", query, payload["code"])
		}
	}
}

func TestPreflightHasNoBody(t *testing.T) {
	server := newTestServer(newFakeRoomStore())

	recorder := doRequest(t, server, http.MethodOptions, "/api/boards", "", "")
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("status = %d", recorder.Code)
	}
	if recorder.Body.Len() != 0 {
		t.Fatalf("preflight response must have no body, got %q", recorder.Body.String())
	}
	if recorder.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("preflight must carry the CORS headers")
	}
}

func TestBoardHistoryWithoutAuditLog(t *testing.T) {
	server := newTestServer(newFakeRoomStore())

	recorder := doRequest(t, server, http.MethodGet, "/api/boards/my-board/history", orgToken(t), "")
	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d body = %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeResponse(t, recorder)
	if payload["code"] != "AUDIT_UNAVAILABLE" {
		t.Errorf("code = %v", payload["code"])
	}
}

func TestReindexRequiresAuth(t *testing.T) {
	server := newTestServer(newFakeRoomStore())
	recorder := doRequest(t, server, http.MethodPost, "/api/search/reindex", "", "")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", recorder.Code)
	}
}

func TestReindex(t *testing.T) {
	server := newTestServer(newFakeRoomStore())
	recorder := doRequest(t, server, http.MethodPost, "/api/search/reindex", orgToken(t), "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", recorder.Code, recorder.Body.String())
	}
}

func TestUnknownRoute(t *testing.T) {
	server := newTestServer(newFakeRoomStore())
	recorder := doRequest(t, server, http.MethodGet, "/api/unknown", orgToken(t), "")
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("status = %d", recorder.Code)
	}
}
