// Package app is the HTTP surface of the board service.
package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cycles/api/internal/auth"
	"cycles/api/internal/board"
	"cycles/api/internal/search"
)

// HealthChecker is anything whose readiness the /api/ready endpoint
// reports on.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type HTTPServer struct {
	boards     *board.Service
	search     *search.Service // optional
	jwtSecret  []byte
	corsOrigin string
	checks     map[string]HealthChecker
}

func NewHTTPServer(boards *board.Service, searchSvc *search.Service, jwtSecret []byte, corsOrigin string) *HTTPServer {
	return &HTTPServer{
		boards:     boards,
		search:     searchSvc,
		jwtSecret:  jwtSecret,
		corsOrigin: corsOrigin,
		checks:     map[string]HealthChecker{},
	}
}

// AddReadinessCheck registers a named dependency for /api/ready.
func (s *HTTPServer) AddReadinessCheck(name string, checker HealthChecker) {
	s.checks[name] = checker
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		// 204 allows no body; the CORS headers are already set.
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		ready := true
		checks := map[string]any{}
		for name, checker := range s.checks {
			if err := checker.Ping(ctx); err != nil {
				ready = false
				checks[name] = map[string]any{"status": "error", "error": err.Error()}
			} else {
				checks[name] = map[string]any{"status": "ok"}
			}
		}

		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]any{"ok": ready, "checks": checks})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		identity, err := s.identityFromRequest(r)
		if err != nil || !identity.Authenticated() {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"userId":        identity.UserID,
			"orgId":         identity.OrgID,
			"orgSlug":       identity.OrgSlug,
		})
		return
	}

	// Board operations take the identity triple explicitly; the core
	// rejects unauthenticated requests before touching the backend.
	identity, err := s.identityFromRequest(r)
	if err != nil {
		status, code, message := mapError(err)
		writeError(w, status, code, message)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/boards" {
		listing, err := s.boards.List(r.Context(), identity)
		if err != nil {
			status, code, message := mapError(err)
			writeError(w, status, code, message)
			return
		}
		writeJSON(w, http.StatusOK, listing)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/boards" {
		var body struct {
			Slug  string `json:"slug"`
			Title string `json:"title"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
			return
		}
		result, err := s.boards.Create(r.Context(), identity, body.Slug, body.Title)
		if err != nil {
			status, code, message := mapError(err)
			writeError(w, status, code, message)
			return
		}
		status := http.StatusOK
		if result.Created {
			status = http.StatusCreated
		}
		writeJSON(w, status, map[string]any{
			"roomId":  result.RoomID,
			"path":    result.Path,
			"created": result.Created,
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/boards/update" {
		var body struct {
			RoomID string `json:"roomId"`
			Title  string `json:"title"`
			Slug   string `json:"slug"`
			OrgID  string `json:"orgId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
			return
		}
		path, err := s.boards.Update(r.Context(), identity, board.UpdateInput{
			RoomID: body.RoomID,
			Title:  body.Title,
			Slug:   body.Slug,
			OrgID:  body.OrgID,
		})
		if err != nil {
			status, code, message := mapError(err)
			writeError(w, status, code, message)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"path": path})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/boards/archive" {
		var body struct {
			RoomID   string `json:"roomId"`
			Archived bool   `json:"archived"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
			return
		}
		if err := s.boards.SetArchived(r.Context(), identity, body.RoomID, body.Archived); err != nil {
			status, code, message := mapError(err)
			writeError(w, status, code, message)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/boards/") {
		// Use the escaped path so the slug is decoded exactly once, inside
		// the lookup.
		segments := splitPath(r.URL.EscapedPath())
		if len(segments) == 4 && segments[3] == "history" {
			limit := 0
			if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
				parsed, err := strconv.Atoi(raw)
				if err != nil || parsed < 0 {
					writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be a non-negative integer")
					return
				}
				limit = parsed
			}
			entries, err := s.boards.History(r.Context(), identity, segments[2], limit)
			if err != nil {
				status, code, message := mapError(err)
				writeError(w, status, code, message)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"events": entries})
			return
		}
		if len(segments) == 3 {
			b, err := s.boards.Get(r.Context(), identity, segments[2])
			if err != nil {
				status, code, message := mapError(err)
				writeError(w, status, code, message)
				return
			}
			writeJSON(w, http.StatusOK, b)
			return
		}
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/search/reindex" {
		if !identity.Authenticated() {
			writeError(w, http.StatusUnauthorized, "NOT_AUTHENTICATED", "Not authenticated")
			return
		}
		if s.search == nil {
			writeError(w, http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search not configured")
			return
		}
		s.search.ReindexScope(r.Context(), identity.Scope())
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		if !identity.Authenticated() {
			writeError(w, http.StatusUnauthorized, "NOT_AUTHENTICATED", "Not authenticated")
			return
		}
		if s.search == nil {
			writeError(w, http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search not configured")
			return
		}
		q := search.Query{
			Text:            strings.TrimSpace(r.URL.Query().Get("q")),
			Scope:           identity.Scope(),
			IncludeArchived: r.URL.Query().Get("includeArchived") == "true",
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be a non-negative integer")
				return
			}
			q.Limit = parsed
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be a non-negative integer")
				return
			}
			q.Offset = parsed
		}
		writeJSON(w, http.StatusOK, s.search.Search(r.Context(), q))
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found")
}

// identityFromRequest extracts the claims triple from a bearer token. An
// absent token yields a zero identity; the core operations reject it as
// unauthenticated. A present-but-bad token is an error.
func (s *HTTPServer) identityFromRequest(r *http.Request) (board.Identity, error) {
	token := bearerToken(r)
	if token == "" {
		return board.Identity{}, nil
	}
	claims, err := auth.ParseToken(s.jwtSecret, token)
	if err != nil {
		return board.Identity{}, err
	}
	return board.Identity{
		UserID:  claims.Sub,
		OrgID:   claims.OrgID,
		OrgSlug: claims.OrgSlug,
	}, nil
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"code":  code,
		"error": message,
	})
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		// An absent body reads as the zero value, not an error.
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
