package allocation

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/insider-trader/internal/domain"
)

// Handlers contains HTTP handlers for the allocation API
type Handlers struct {
	allocator *Allocator
	log       zerolog.Logger
}

// NewHandlers creates a new allocation handlers instance
func NewHandlers(allocator *Allocator, log zerolog.Logger) *Handlers {
	return &Handlers{
		allocator: allocator,
		log:       log.With().Str("handler", "allocation").Logger(),
	}
}

// HandleTrigger runs one allocation pass immediately
// POST /api/allocation/trigger
func (h *Handlers) HandleTrigger(w http.ResponseWriter, r *http.Request) {
	result, err := h.allocator.Run(r.Context(), domain.ScenarioLive, time.Now().UTC())
	if err != nil {
		h.log.Error().Err(err).Msg("Allocation run failed")
		http.Error(w, "Allocation run failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}
