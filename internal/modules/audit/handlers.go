package audit

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/aristath/insider-trader/internal/domain"
)

// Handlers contains HTTP handlers for the audit API
type Handlers struct {
	auditLog *Log
	log      zerolog.Logger
}

// NewHandlers creates a new audit handlers instance
func NewHandlers(auditLog *Log, log zerolog.Logger) *Handlers {
	return &Handlers{
		auditLog: auditLog,
		log:      log.With().Str("handler", "audit").Logger(),
	}
}

// HandleVerify walks the full hash chain and reports its integrity
// GET /api/audit/verify
func (h *Handlers) HandleVerify(w http.ResponseWriter, r *http.Request) {
	out := map[string]interface{}{"valid": true}
	if err := h.auditLog.Verify(); err != nil {
		h.log.Error().Err(err).Msg("Audit chain verification failed")
		out["valid"] = false
		out["error"] = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

// HandleRecent returns the newest audit entries
// GET /api/audit/recent?limit=100
func (h *Handlers) HandleRecent(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	entries, err := h.auditLog.Recent(limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read audit log")
		http.Error(w, "Failed to read audit log", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(entries)
}
