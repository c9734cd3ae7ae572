package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// ExportService defines the methods the archive handler requires.
type ExportService interface {
	Run(ctx context.Context, before time.Time) (orders, audit int64, err error)
}

// ArchiveHandler triggers on-demand export of settled orders and audit rows
// to blob storage.
type ArchiveHandler struct {
	exports ExportService
	logger  *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler with the given service and logger.
func NewArchiveHandler(exports ExportService, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{exports: exports, logger: logger}
}

type triggerArchiveRequest struct {
	// Before bounds the export; rows settled/created before this instant are
	// archived. Empty means the service default retention cutoff.
	Before string `json:"before,omitempty"`
}

// TriggerArchive runs an export pass synchronously and reports row counts.
// POST /api/archive/trigger
func (h *ArchiveHandler) TriggerArchive(w http.ResponseWriter, r *http.Request) {
	if h.exports == nil {
		writeError(w, http.StatusServiceUnavailable, "archival not configured")
		return
	}

	var req triggerArchiveRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	var before time.Time
	if req.Before != "" {
		t, err := time.Parse(time.RFC3339, req.Before)
		if err != nil {
			writeError(w, http.StatusBadRequest, "before must be RFC3339")
			return
		}
		before = t
	}

	orders, audit, err := h.exports.Run(r.Context(), before)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: archive run failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "archive run failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"orders_archived": orders,
		"audit_archived":  audit,
	})
}
