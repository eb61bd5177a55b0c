package app

import (
	"errors"
	"net/http"

	"cycles/api/internal/auth"
	"cycles/api/internal/board"
)

// mapError translates core errors into HTTP responses. Not-found stays a
// generic message so responses do not leak whether a board exists.
func mapError(err error) (status int, code, message string) {
	var partial *board.PartialCreateError
	if errors.As(err, &partial) {
		return http.StatusBadGateway, "BOARD_NOT_SEEDED", "Board created but not initialized"
	}
	var backend *board.BackendError
	if errors.As(err, &backend) {
		return http.StatusBadGateway, "BACKEND_UNAVAILABLE", "Board backend unavailable"
	}
	switch {
	case errors.Is(err, board.ErrNotAuthenticated):
		return http.StatusUnauthorized, "NOT_AUTHENTICATED", "Not authenticated"
	case errors.Is(err, board.ErrInvalidSlug):
		return http.StatusUnprocessableEntity, "INVALID_SLUG", "Invalid slug"
	case errors.Is(err, board.ErrUnauthorized):
		return http.StatusForbidden, "UNAUTHORIZED", "Unauthorized"
	case errors.Is(err, board.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found"
	case errors.Is(err, board.ErrAuditUnavailable):
		return http.StatusServiceUnavailable, "AUDIT_UNAVAILABLE", "History not available"
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "NOT_AUTHENTICATED", "Not authenticated"
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error"
}
