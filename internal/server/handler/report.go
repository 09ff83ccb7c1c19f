package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

// ReportArchive lists and loads archived sweep reports.
type ReportArchive interface {
	ListReports(ctx context.Context, day time.Time) ([]string, error)
	LoadReport(ctx context.Context, path string) (domain.SweepReport, error)
}

// ReportHandler serves archived sweep reports.
type ReportHandler struct {
	archive ReportArchive
	logger  *slog.Logger
}

// NewReportHandler creates a ReportHandler.
func NewReportHandler(archive ReportArchive, logger *slog.Logger) *ReportHandler {
	return &ReportHandler{archive: archive, logger: logger}
}

// ListReports returns report paths archived on a UTC day (default today).
// GET /api/reports?date=2006-01-02
func (h *ReportHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	day := time.Now().UTC()
	if v := r.URL.Query().Get("date"); v != "" {
		d, err := time.Parse(time.DateOnly, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		day = d
	}

	paths, err := h.archive.ListReports(r.Context(), day)
	if err != nil {
		writeDomainError(w, r, h.logger, "failed to list reports", err)
		return
	}
	if paths == nil {
		paths = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": day.Format(time.DateOnly), "reports": paths})
}

// GetReport loads one archived report.
// GET /api/reports/{date}/{id}
func (h *ReportHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	day, err := time.Parse(time.DateOnly, pathParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "report id required")
		return
	}

	report, err := h.archive.LoadReport(r.Context(), "reports/"+day.Format("2006/01/02")+"/"+id+".json")
	if err != nil {
		writeDomainError(w, r, h.logger, "failed to load report", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
