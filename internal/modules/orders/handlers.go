package orders

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/insider-trader/internal/domain"
)

// Handlers contains HTTP handlers for the orders API
type Handlers struct {
	repo *Repository
	log  zerolog.Logger
}

// NewHandlers creates a new orders handlers instance
func NewHandlers(repo *Repository, log zerolog.Logger) *Handlers {
	return &Handlers{
		repo: repo,
		log:  log.With().Str("handler", "orders").Logger(),
	}
}

// HandleList returns recent orders for an account
// GET /api/orders?scenario=live&limit=50
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	scenario := r.URL.Query().Get("scenario")
	if scenario == "" {
		scenario = domain.ScenarioLive
	}

	limit := 50
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	recent, err := h.repo.Recent(scenario, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list orders")
		http.Error(w, "Failed to list orders", http.StatusInternalServerError)
		return
	}
	if recent == nil {
		recent = []domain.Order{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(recent)
}

// HandleGet returns one order by id
// GET /api/orders/{id}
func (h *Handlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	order, err := h.repo.GetByID(id)
	if err != nil {
		h.log.Error().Err(err).Str("order_id", id).Msg("Failed to get order")
		http.Error(w, "Failed to get order", http.StatusInternalServerError)
		return
	}
	if order == nil {
		http.Error(w, "Order not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(order)
}
