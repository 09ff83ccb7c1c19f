package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

// ReportSource exposes the most recent sweep report.
type ReportSource interface {
	LastReport() (domain.SweepReport, bool)
}

// StatusHandler serves the agent's mode and last sweep report.
type StatusHandler struct {
	reports   ReportSource
	mode      string
	dryRun    bool
	startedAt time.Time
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(reports ReportSource, mode string, dryRun bool, startedAt time.Time) *StatusHandler {
	return &StatusHandler{reports: reports, mode: mode, dryRun: dryRun, startedAt: startedAt}
}

type statusResponse struct {
	Mode          string              `json:"mode"`
	DryRun        bool                `json:"dry_run"`
	UptimeSeconds int64               `json:"uptime_seconds"`
	LastReport    *domain.SweepReport `json:"last_report"`
}

// GetStatus responds with the mode and the last sweep report, if any.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Mode:          h.mode,
		DryRun:        h.dryRun,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
	}
	if report, ok := h.reports.LastReport(); ok {
		resp.LastReport = &report
	}
	writeJSON(w, http.StatusOK, resp)
}
