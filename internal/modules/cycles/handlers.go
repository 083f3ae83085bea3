package cycles

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/insider-trader/internal/domain"
)

// Handlers contains HTTP handlers for the cycle API
type Handlers struct {
	manager *Manager
	settler *Settler
	log     zerolog.Logger
}

// NewHandlers creates a new cycle handlers instance
func NewHandlers(manager *Manager, settler *Settler, log zerolog.Logger) *Handlers {
	return &Handlers{
		manager: manager,
		settler: settler,
		log:     log.With().Str("handler", "cycles").Logger(),
	}
}

// HandleCurrent returns the active cycle with its derived phase state
// GET /api/cycle/current
func (h *Handlers) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	cycle, err := h.manager.GetActive()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get active cycle")
		http.Error(w, "Failed to get active cycle", http.StatusInternalServerError)
		return
	}
	if cycle == nil {
		http.Error(w, "No active cycle", http.StatusNotFound)
		return
	}

	now := time.Now().UTC()
	day := DayInCycle(cycle, now)
	phase := PhaseForDay(day)

	out := map[string]interface{}{
		"cycle":        cycle,
		"day":          day,
		"phase":        phase,
		"phase_params": ParamsFor(phase),
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

// HandleStart starts a new cycle. Refused while another cycle is active.
// POST /api/cycle/start
func (h *Handlers) HandleStart(w http.ResponseWriter, r *http.Request) {
	active, err := h.manager.GetActive()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to check active cycle")
		http.Error(w, "Failed to check active cycle", http.StatusInternalServerError)
		return
	}
	if active != nil {
		http.Error(w, "A cycle is already active", http.StatusConflict)
		return
	}

	var body struct {
		Capital float64 `json:"capital"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	cycle, err := h.manager.GetOrCreateActive(time.Now().UTC())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to start cycle")
		http.Error(w, "Failed to start cycle", http.StatusInternalServerError)
		return
	}
	if body.Capital > 0 {
		cycle.OriginalCapital = body.Capital
		cycle.WorkingCapital = body.Capital
		if err := h.manager.Repo().Update(*cycle); err != nil {
			h.log.Error().Err(err).Msg("Failed to set cycle capital")
			http.Error(w, "Failed to set cycle capital", http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(cycle)
}

// HandleSettle settles the active cycle. An emergency settlement bypasses
// the age and position-count gates.
// POST /api/cycle/settle
func (h *Handlers) HandleSettle(w http.ResponseWriter, r *http.Request) {
	cycle, err := h.manager.GetActive()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get active cycle")
		http.Error(w, "Failed to get active cycle", http.StatusInternalServerError)
		return
	}
	if cycle == nil {
		http.Error(w, "No active cycle", http.StatusNotFound)
		return
	}

	var body struct {
		Emergency bool `json:"emergency"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	reason := domain.CompletionManual
	if body.Emergency {
		reason = domain.CompletionEmergency
	}

	result, err := h.settler.Settle(r.Context(), cycle, domain.ScenarioLive, time.Now().UTC(), reason)
	if err != nil {
		h.log.Error().Err(err).Str("cycle_id", cycle.CycleID).Msg("Settlement refused")
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

// HandleHistory returns past cycles, newest first
// GET /api/cycle/history?limit=20
func (h *Handlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	history, err := h.manager.Repo().History(limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get cycle history")
		http.Error(w, "Failed to get cycle history", http.StatusInternalServerError)
		return
	}
	if history == nil {
		history = []domain.Cycle{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(history)
}

// HandleMetrics returns the performance record for one cycle
// GET /api/cycle/metrics/{id}
func (h *Handlers) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	cycle, err := h.manager.Repo().GetByID(id)
	if err != nil {
		h.log.Error().Err(err).Str("cycle_id", id).Msg("Failed to get cycle")
		http.Error(w, "Failed to get cycle", http.StatusInternalServerError)
		return
	}
	if cycle == nil {
		http.Error(w, "Cycle not found", http.StatusNotFound)
		return
	}

	out := map[string]interface{}{
		"cycle_id":         cycle.CycleID,
		"status":           cycle.Status,
		"original_capital": cycle.OriginalCapital,
		"realized_pnl":     cycle.RealizedPnL,
		"return_pct":       cycle.ReturnPct,
		"sharpe_ratio":     cycle.SharpeRatio,
		"win_rate":         cycle.WinRate,
		"avg_winner":       cycle.AvgWinner,
		"avg_loser":        cycle.AvgLoser,
		"positions_opened": cycle.PositionsOpened,
		"positions_closed": cycle.PositionsClosed,
		"withdrawn":        cycle.WithdrawnAmount,
		"completion":       cycle.CompletionReason,
		"completed_at":     cycle.CompletedAt,
	}

	if states, err := h.manager.Repo().States(id); err == nil && len(states) > 0 {
		out["daily_states"] = states
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}
