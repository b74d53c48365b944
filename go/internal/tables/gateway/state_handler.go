package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/tabletimer/go/internal/tables"
)

// StateProvider supplies the current table snapshot
type StateProvider interface {
	Snapshot() tables.Snapshot
}

// StateHandler serves table state over plain HTTP for clients that poll
// instead of holding a WebSocket open.
type StateHandler struct {
	stateProvider StateProvider
}

// NewStateHandler creates a new state handler
func NewStateHandler(provider StateProvider) *StateHandler {
	return &StateHandler{
		stateProvider: provider,
	}
}

// HandleGetState handles GET /api/tables/state
func (h *StateHandler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, NewStateMessage(h.stateProvider.Snapshot()))
}

// HandleGetTableState handles GET /api/tables/{id}/state
func (h *StateHandler) HandleGetTableState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	idStr := extractTableIDFromPath(r.URL.Path)
	if idStr == "" {
		http.NotFound(w, r)
		return
	}
	id, err := strconv.Atoi(idStr)
	if err != nil {
		http.Error(w, "Invalid table ID", http.StatusBadRequest)
		return
	}

	for _, t := range h.stateProvider.Snapshot().Tables {
		if t.ID == id {
			writeJSON(w, NewTableState(t))
			return
		}
	}
	http.Error(w, "Table not found", http.StatusNotFound)
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/tables/state", h.HandleGetState)
	mux.HandleFunc("/api/tables/", h.HandleGetTableState)
}

// extractTableIDFromPath extracts the id from a path like /api/tables/{id}/state
func extractTableIDFromPath(path string) string {
	const prefix = "/api/tables/"
	const suffix = "/state"

	if !strings.HasPrefix(path, prefix) || !strings.HasSuffix(path, suffix) {
		return ""
	}
	if len(path) <= len(prefix)+len(suffix) {
		return ""
	}
	return path[len(prefix) : len(path)-len(suffix)]
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
