package transport

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/lab1702/typingserver/repository"
)

// SessionLister is the narrow read surface the REST layer needs beyond the
// controller-facing repository.Repository, satisfied by
// *repository.PostgresRepository.
type SessionLister interface {
	ListOpenSessions(ctx context.Context) ([]repository.SessionSummary, error)
	LoadPlayerStats(ctx context.Context, playerID uuid.UUID) (*repository.PlayerStats, error)
}

// RESTHandler serves the read-only session/player listing endpoints. It
// never touches the in-memory controller registry, matching the spec's
// framing of REST listing as an external collaborator of the repository.
type RESTHandler struct {
	lister SessionLister
	logger zerolog.Logger
}

// NewRESTHandler builds a REST handler over lister.
func NewRESTHandler(lister SessionLister, logger zerolog.Logger) *RESTHandler {
	return &RESTHandler{lister: lister, logger: logger.With().Str("component", "rest").Logger()}
}

// Register mounts this handler's routes onto router.
func (h *RESTHandler) Register(router *mux.Router) {
	router.HandleFunc("/api/sessions", h.listSessions).Methods(http.MethodGet)
	router.HandleFunc("/api/sessions/{id}", h.getSession).Methods(http.MethodGet)
	router.HandleFunc("/api/players/{id}/stats", h.getPlayerStats).Methods(http.MethodGet)
}

func (h *RESTHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn().Err(err).Msg("failed to encode response")
	}
}

func (h *RESTHandler) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.lister.ListOpenSessions(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("list open sessions failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, sessions)
}

func (h *RESTHandler) getSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}
	sessions, err := h.lister.ListOpenSessions(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("list open sessions failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	for _, s := range sessions {
		if s.ID == id {
			h.writeJSON(w, http.StatusOK, s)
			return
		}
	}
	http.Error(w, "session not found", http.StatusNotFound)
}

func (h *RESTHandler) getPlayerStats(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid player id", http.StatusBadRequest)
		return
	}
	stats, err := h.lister.LoadPlayerStats(r.Context(), id)
	if err != nil {
		h.logger.Error().Err(err).Msg("load player stats failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}
