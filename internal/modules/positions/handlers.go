package positions

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/insider-trader/internal/domain"
)

// Handlers contains HTTP handlers for the positions API
type Handlers struct {
	repo *Repository
	log  zerolog.Logger
}

// NewHandlers creates a new positions handlers instance
func NewHandlers(repo *Repository, log zerolog.Logger) *Handlers {
	return &Handlers{
		repo: repo,
		log:  log.With().Str("handler", "positions").Logger(),
	}
}

// HandleList returns the open positions for an account
// GET /api/positions?scenario=live
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	scenario := r.URL.Query().Get("scenario")
	if scenario == "" {
		scenario = domain.ScenarioLive
	}

	open, err := h.repo.GetOpen(scenario)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list positions")
		http.Error(w, "Failed to list positions", http.StatusInternalServerError)
		return
	}
	if open == nil {
		open = []domain.Position{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(open)
}

// HandleGet returns one position by id
// GET /api/positions/{id}
func (h *Handlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	pos, err := h.repo.GetByID(id)
	if err != nil {
		h.log.Error().Err(err).Str("position_id", id).Msg("Failed to get position")
		http.Error(w, "Failed to get position", http.StatusInternalServerError)
		return
	}
	if pos == nil {
		http.Error(w, "Position not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(pos)
}

// HandleStats returns aggregate portfolio numbers for an account
// GET /api/positions/stats?scenario=live
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	scenario := r.URL.Query().Get("scenario")
	if scenario == "" {
		scenario = domain.ScenarioLive
	}

	open, err := h.repo.GetOpen(scenario)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get position stats")
		http.Error(w, "Failed to get position stats", http.StatusInternalServerError)
		return
	}

	var invested, unrealized float64
	tiers := make(map[string]int)
	for _, pos := range open {
		invested += pos.MarketValue()
		unrealized += pos.UnrealizedPnL
		tiers[string(pos.ConvictionTier)]++
	}

	stats := map[string]interface{}{
		"scenario":       scenario,
		"open_count":     len(open),
		"invested_value": invested,
		"unrealized_pnl": unrealized,
		"by_tier":        tiers,
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(stats)
}
