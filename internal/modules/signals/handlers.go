package signals

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/insider-trader/internal/domain"
)

// Handlers contains HTTP handlers for the signals API
type Handlers struct {
	repo *SignalRepository
	log  zerolog.Logger
}

// NewHandlers creates a new signals handlers instance
func NewHandlers(repo *SignalRepository, log zerolog.Logger) *Handlers {
	return &Handlers{
		repo: repo,
		log:  log.With().Str("handler", "signals").Logger(),
	}
}

// HandleList returns signals filtered by status
// GET /api/signals?status=ACTIVE&limit=50
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	status := domain.SignalActive
	if statusParam := r.URL.Query().Get("status"); statusParam != "" {
		status = domain.SignalStatus(statusParam)
	}

	sigs, err := h.repo.GetByStatus(status, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list signals")
		http.Error(w, "Failed to list signals", http.StatusInternalServerError)
		return
	}

	if sigs == nil {
		sigs = []domain.Signal{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(sigs)
}

// HandleGet returns one signal by id
// GET /api/signals/{id}
func (h *Handlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sig, err := h.repo.GetByID(id)
	if err != nil {
		h.log.Error().Err(err).Str("signal_id", id).Msg("Failed to get signal")
		http.Error(w, "Failed to get signal", http.StatusInternalServerError)
		return
	}
	if sig == nil {
		http.Error(w, "Signal not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(sig)
}

// HandleStats returns signal counts by status
// GET /api/signals/stats
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.repo.Stats()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get signal stats")
		http.Error(w, "Failed to get signal stats", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(stats)
}
