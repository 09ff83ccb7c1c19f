package s3blob

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

const reportsRoot = "reports"

// ReportArchiver writes each sweep report as one JSON object under
// reports/YYYY/MM/DD/<id>.json and reads them back for the API.
type ReportArchiver struct {
	store domain.ObjectStore
	audit domain.AuditStore
}

var _ domain.ReportArchiver = (*ReportArchiver)(nil)

// NewReportArchiver creates a ReportArchiver. audit may be nil.
func NewReportArchiver(store domain.ObjectStore, audit domain.AuditStore) *ReportArchiver {
	return &ReportArchiver{store: store, audit: audit}
}

// ArchiveReport uploads report and returns its object path.
func (a *ReportArchiver) ArchiveReport(ctx context.Context, report domain.SweepReport) (string, error) {
	if report.ID == "" {
		return "", fmt.Errorf("s3blob: archive report: %w: missing id", domain.ErrInvalidInput)
	}

	buf, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive report marshal: %w", err)
	}

	p := reportPath(report.ID, report.StartedAt)
	if err := a.store.PutObject(ctx, p, buf, "application/json"); err != nil {
		return "", fmt.Errorf("s3blob: archive report upload: %w", err)
	}

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.report", map[string]any{
			"path":   p,
			"vaults": len(report.Vaults),
			"errors": report.Errors,
		}); err != nil {
			return p, fmt.Errorf("s3blob: archive report audit log: %w", err)
		}
	}
	return p, nil
}

// ListReports returns the object paths archived on day, oldest first.
func (a *ReportArchiver) ListReports(ctx context.Context, day time.Time) ([]string, error) {
	infos, err := a.store.ListObjects(ctx, dayPrefix(day))
	if err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].LastModified.Before(infos[j].LastModified)
	})
	out := make([]string, 0, len(infos))
	for _, info := range infos {
		if strings.HasSuffix(info.Key, ".json") {
			out = append(out, info.Key)
		}
	}
	return out, nil
}

// LoadReport reads the report stored at p.
func (a *ReportArchiver) LoadReport(ctx context.Context, p string) (domain.SweepReport, error) {
	if !strings.HasPrefix(p, reportsRoot+"/") {
		return domain.SweepReport{}, fmt.Errorf("s3blob: load report %s: %w", p, domain.ErrInvalidInput)
	}
	body, err := a.store.GetObject(ctx, p)
	if err != nil {
		return domain.SweepReport{}, err
	}

	var report domain.SweepReport
	if err := json.Unmarshal(body, &report); err != nil {
		return domain.SweepReport{}, fmt.Errorf("s3blob: decode report %s: %w", p, err)
	}
	return report, nil
}

// reportPath builds the key of one report, partitioned by UTC day.
//
//	reports/2026/10/15/2f0c...json
func reportPath(id string, startedAt time.Time) string {
	return path.Join(dayPrefix(startedAt), id+".json")
}

func dayPrefix(t time.Time) string {
	return path.Join(reportsRoot, t.UTC().Format("2006/01/02")) + "/"
}
