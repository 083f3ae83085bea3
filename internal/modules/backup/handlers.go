package backup

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
)

// Handlers contains HTTP handlers for the backup API
type Handlers struct {
	service *Service
	log     zerolog.Logger
}

// NewHandlers creates a new backup handlers instance
func NewHandlers(service *Service, log zerolog.Logger) *Handlers {
	return &Handlers{
		service: service,
		log:     log.With().Str("handler", "backup").Logger(),
	}
}

// HandleCreate snapshots the engine state to S3
// POST /api/backup/create
func (h *Handlers) HandleCreate(w http.ResponseWriter, r *http.Request) {
	if !h.service.Enabled() {
		http.Error(w, "Backups are not configured", http.StatusServiceUnavailable)
		return
	}

	key, err := h.service.Create(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Backup failed")
		http.Error(w, "Backup failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]string{"key": key})
}

// HandleList returns stored backups, newest first
// GET /api/backup/list
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	if !h.service.Enabled() {
		http.Error(w, "Backups are not configured", http.StatusServiceUnavailable)
		return
	}

	infos, err := h.service.List(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list backups")
		http.Error(w, "Failed to list backups", http.StatusInternalServerError)
		return
	}
	if infos == nil {
		infos = []Info{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(infos)
}

// HandleRestore replaces the engine state with a stored snapshot
// POST /api/backup/restore
func (h *Handlers) HandleRestore(w http.ResponseWriter, r *http.Request) {
	if !h.service.Enabled() {
		http.Error(w, "Backups are not configured", http.StatusServiceUnavailable)
		return
	}

	var body struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Key == "" {
		http.Error(w, "A backup key is required", http.StatusBadRequest)
		return
	}

	if err := h.service.Restore(r.Context(), body.Key); err != nil {
		h.log.Error().Err(err).Str("key", body.Key).Msg("Restore failed")
		http.Error(w, "Restore failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"restored": body.Key})
}
