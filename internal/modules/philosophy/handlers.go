package philosophy

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/aristath/insider-trader/internal/domain"
	"github.com/aristath/insider-trader/pkg/formulas"
)

// Handlers contains HTTP handlers for the philosophy API
type Handlers struct {
	engine *Engine
	log    zerolog.Logger
}

// NewHandlers creates a new philosophy handlers instance
func NewHandlers(engine *Engine, log zerolog.Logger) *Handlers {
	return &Handlers{
		engine: engine,
		log:    log.With().Str("handler", "philosophy").Logger(),
	}
}

// HandleCurrent returns the effective rule pack configuration
// GET /api/philosophy/current?scenario=live
func (h *Handlers) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	state, err := h.loadState(w, r)
	if state == nil {
		if err != nil {
			h.log.Error().Err(err).Msg("Failed to get philosophy state")
		}
		return
	}

	out := map[string]interface{}{
		"preset": state.Preset,
		"packs":  h.engine.ConfigFor(state),
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

// HandleState returns the persisted behavioral state
// GET /api/philosophy/state?scenario=live
func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request) {
	state, err := h.loadState(w, r)
	if state == nil {
		if err != nil {
			h.log.Error().Err(err).Msg("Failed to get philosophy state")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(state)
}

// HandleUpdate switches the preset or adjusts allocation power
// POST /api/philosophy/update
func (h *Handlers) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Scenario string   `json:"scenario"`
		Preset   string   `json:"preset"`
		Power    *float64 `json:"allocation_power"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if body.Scenario == "" {
		body.Scenario = domain.ScenarioLive
	}

	state, err := h.engine.Repo().Get(body.Scenario)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get philosophy state")
		http.Error(w, "Failed to get philosophy state", http.StatusInternalServerError)
		return
	}

	if body.Preset != "" {
		if !validPreset(body.Preset) {
			http.Error(w, "Unknown preset", http.StatusBadRequest)
			return
		}
		state.Preset = body.Preset
	}
	if body.Power != nil {
		state.AllocationPower = formulas.Clamp(*body.Power, MinPower, MaxPower)
	}

	if err := h.engine.Repo().Save(*state); err != nil {
		h.log.Error().Err(err).Msg("Failed to save philosophy state")
		http.Error(w, "Failed to save philosophy state", http.StatusInternalServerError)
		return
	}

	h.log.Info().
		Str("scenario", body.Scenario).
		Str("preset", state.Preset).
		Float64("power", state.AllocationPower).
		Msg("Philosophy state updated")

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(state)
}

// HandleReset restores the default preset and full allocation power
// POST /api/philosophy/reset
func (h *Handlers) HandleReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Scenario string `json:"scenario"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.Scenario == "" {
		body.Scenario = domain.ScenarioLive
	}

	if err := h.engine.Repo().Reset(body.Scenario); err != nil {
		h.log.Error().Err(err).Msg("Failed to reset philosophy state")
		http.Error(w, "Failed to reset philosophy state", http.StatusInternalServerError)
		return
	}

	state, err := h.engine.Repo().Get(body.Scenario)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to reload philosophy state")
		http.Error(w, "Failed to reload philosophy state", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(state)
}

func (h *Handlers) loadState(w http.ResponseWriter, r *http.Request) (*domain.PhilosophyState, error) {
	scenario := r.URL.Query().Get("scenario")
	if scenario == "" {
		scenario = domain.ScenarioLive
	}

	state, err := h.engine.Repo().Get(scenario)
	if err != nil {
		http.Error(w, "Failed to get philosophy state", http.StatusInternalServerError)
		return nil, err
	}
	return state, nil
}

func validPreset(name string) bool {
	switch name {
	case PresetConservative, PresetBalanced, PresetAggressive, PresetHighRisk, PresetCustom:
		return true
	}
	return false
}
