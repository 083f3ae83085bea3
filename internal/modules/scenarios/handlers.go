package scenarios

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/aristath/insider-trader/internal/domain"
	"github.com/aristath/insider-trader/internal/modules/allocation"
	"github.com/aristath/insider-trader/internal/modules/cycles"
	"github.com/aristath/insider-trader/internal/modules/positions"
)

// Handlers contains HTTP handlers for the scenario sandbox API
type Handlers struct {
	orchestrator *Orchestrator
	positions    *positions.Repository
	decisions    *allocation.DecisionRepository
	cycles       *cycles.Manager
	log          zerolog.Logger
}

// NewHandlers creates a new scenarios handlers instance
func NewHandlers(o *Orchestrator, pos *positions.Repository, dec *allocation.DecisionRepository, cm *cycles.Manager, log zerolog.Logger) *Handlers {
	return &Handlers{
		orchestrator: o,
		positions:    pos,
		decisions:    dec,
		cycles:       cm,
		log:          log.With().Str("handler", "scenarios").Logger(),
	}
}

// HandlePositions returns the open positions of every sandbox
// GET /api/scenarios/positions
func (h *Handlers) HandlePositions(w http.ResponseWriter, r *http.Request) {
	out := make(map[string][]domain.Position, len(Names))
	for name := range Names {
		open, err := h.positions.GetOpen(name)
		if err != nil {
			h.log.Error().Err(err).Str("scenario", name).Msg("Failed to list sandbox positions")
			http.Error(w, "Failed to list sandbox positions", http.StatusInternalServerError)
			return
		}
		if open == nil {
			open = []domain.Position{}
		}
		out[name] = open
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

// HandleExecute replays the active cycle's allocation decisions through
// every sandbox.
// POST /api/scenarios/execute
func (h *Handlers) HandleExecute(w http.ResponseWriter, r *http.Request) {
	cycle, err := h.cycles.GetActive()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get active cycle")
		http.Error(w, "Failed to get active cycle", http.StatusInternalServerError)
		return
	}
	if cycle == nil {
		http.Error(w, "No active cycle", http.StatusNotFound)
		return
	}

	decisions, err := h.decisions.ForCycle(cycle.CycleID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load allocation decisions")
		http.Error(w, "Failed to load allocation decisions", http.StatusInternalServerError)
		return
	}

	if err := h.orchestrator.ExecuteAll(r.Context(), decisions); err != nil {
		h.log.Error().Err(err).Msg("Scenario execution failed")
		http.Error(w, "Scenario execution failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"cycle_id":  cycle.CycleID,
		"decisions": len(decisions),
	})
}

// HandleReset wipes one sandbox back to its starting state
// POST /api/scenarios/reset
func (h *Handlers) HandleReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if _, ok := Names[body.Name]; !ok {
		http.Error(w, "Unknown scenario", http.StatusBadRequest)
		return
	}

	if err := h.orchestrator.Reset(r.Context(), body.Name); err != nil {
		h.log.Error().Err(err).Str("scenario", body.Name).Msg("Failed to reset scenario")
		http.Error(w, "Failed to reset scenario", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"reset": body.Name})
}

// HandlePerformance returns the persisted performance of every sandbox
// GET /api/scenarios/performance
func (h *Handlers) HandlePerformance(w http.ResponseWriter, r *http.Request) {
	states, err := h.orchestrator.States().GetAll()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get scenario states")
		http.Error(w, "Failed to get scenario states", http.StatusInternalServerError)
		return
	}
	if states == nil {
		states = []domain.ScenarioState{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(states)
}
