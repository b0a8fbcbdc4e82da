package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fgrzl/gridkit/pkg/api"
	"github.com/fgrzl/gridkit/pkg/storage"
	"github.com/fgrzl/mux"
)

func writeJSON(c mux.RouteContext, v any) {
	c.Response().Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(c.Response()).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

// writeError maps domain failures onto status codes. Peer timeouts surface
// as 504, validation and lifecycle violations as 400, missing documents
// as 404. Everything else is a server error.
func writeError(c mux.RouteContext, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		http.Error(c.Response(), err.Error(), http.StatusNotFound)
	case errors.Is(err, api.ErrTimeout):
		http.Error(c.Response(), err.Error(), http.StatusGatewayTimeout)
	case api.IsBadRequest(err),
		errors.Is(err, api.ErrMissingIdentity),
		errors.Is(err, storage.ErrInvalidTransition):
		http.Error(c.Response(), err.Error(), http.StatusBadRequest)
	default:
		c.ServerError("request failed", err.Error())
	}
}

// requireQuery extracts a mandatory query parameter, writing a 400 when it
// is absent.
func requireQuery(c mux.RouteContext, name string) (string, bool) {
	value := c.Request().URL.Query().Get(name)
	if value == "" {
		http.Error(c.Response(), "missing query parameter: "+name, http.StatusBadRequest)
		return "", false
	}
	return value, true
}
