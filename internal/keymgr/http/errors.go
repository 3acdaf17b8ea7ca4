package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/fluxtrade/keymgr/internal/keymgr/service"
	"github.com/fluxtrade/keymgr/pkg/httpx"
)

// writeServiceError maps lifecycle sentinels onto HTTP statuses.
// Unknown errors become an opaque 500; the detail goes to the log, not
// the client.
func writeServiceError(w http.ResponseWriter, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		httpx.WriteJSON(w, http.StatusNotFound, ErrorResponse{
			Error:            "key_not_found",
			ErrorDescription: "No key record with that id",
		})
	case errors.Is(err, service.ErrInvalidState):
		httpx.WriteJSON(w, http.StatusConflict, ErrorResponse{
			Error:            "invalid_state",
			ErrorDescription: err.Error(),
		})
	case errors.Is(err, service.ErrConflict):
		httpx.WriteJSON(w, http.StatusConflict, ErrorResponse{
			Error:            "conflict",
			ErrorDescription: err.Error(),
		})
	case errors.Is(err, service.ErrValidation):
		httpx.WriteJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:            "invalid_request",
			ErrorDescription: err.Error(),
		})
	case errors.Is(err, service.ErrDependency):
		httpx.WriteJSON(w, http.StatusBadGateway, ErrorResponse{
			Error:            "dependency_failure",
			ErrorDescription: err.Error(),
		})
	default:
		log.Error("unhandled service error", "error", err)
		httpx.WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:            "server_error",
			ErrorDescription: "Internal server error",
		})
	}
}
