package s3blob

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

type memObjects struct {
	objects map[string][]byte
	types   map[string]string
}

func newMemObjects() *memObjects {
	return &memObjects{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memObjects) PutObject(_ context.Context, key string, body []byte, contentType string) error {
	m.objects[key] = body
	m.types[key] = contentType
	return nil
}

func (m *memObjects) GetObject(_ context.Context, key string) ([]byte, error) {
	b, ok := m.objects[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return b, nil
}

func (m *memObjects) ListObjects(_ context.Context, prefix string) ([]domain.ObjectInfo, error) {
	var out []domain.ObjectInfo
	for k, b := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, domain.ObjectInfo{Key: k, Size: int64(len(b))})
		}
	}
	return out, nil
}

type memAudit struct{ events []string }

func (m *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	m.events = append(m.events, event)
	return nil
}

func (m *memAudit) List(context.Context, domain.AuditFilter) ([]domain.AuditEntry, error) {
	return nil, nil
}

func TestReportPath(t *testing.T) {
	started := time.Date(2026, 3, 7, 23, 30, 0, 0, time.FixedZone("X", -2*3600))
	assert.Equal(t, "reports/2026/03/08/abc.json", reportPath("abc", started))
}

func TestArchiveAndLoadReport(t *testing.T) {
	blobs, audit := newMemObjects(), &memAudit{}
	a := NewReportArchiver(blobs, audit)

	started := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	report := domain.SweepReport{
		ID:        "r1",
		StartedAt: started,
		Vaults:    []domain.VaultReport{{VaultID: "v1", AutoTrade: domain.OutcomeTraded}},
		Errors:    1,
	}

	p, err := a.ArchiveReport(context.Background(), report)
	require.NoError(t, err)
	assert.Equal(t, "reports/2026/10/15/r1.json", p)
	assert.Equal(t, []string{"archive.report"}, audit.events)
	assert.Equal(t, "application/json", blobs.types[p])

	var stored domain.SweepReport
	require.NoError(t, json.Unmarshal(blobs.objects[p], &stored))
	assert.Equal(t, "v1", stored.Vaults[0].VaultID)

	paths, err := a.ListReports(context.Background(), started)
	require.NoError(t, err)
	assert.Equal(t, []string{p}, paths)

	loaded, err := a.LoadReport(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Errors)
	assert.True(t, loaded.StartedAt.Equal(started))
}

func TestArchiveReportRequiresID(t *testing.T) {
	a := NewReportArchiver(newMemObjects(), nil)
	_, err := a.ArchiveReport(context.Background(), domain.SweepReport{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestLoadReportRejectsForeignPath(t *testing.T) {
	a := NewReportArchiver(newMemObjects(), nil)
	_, err := a.LoadReport(context.Background(), "secrets/key.json")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestLoadReportMissing(t *testing.T) {
	a := NewReportArchiver(newMemObjects(), nil)
	_, err := a.LoadReport(context.Background(), "reports/2026/01/01/nope.json")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNormalise(t *testing.T) {
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("minio:9000", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
	assert.Equal(t, "http://r2.example", normaliseEndpoint("http://r2.example", true))

	assert.Equal(t, "", normalisePrefix("/"))
	assert.Equal(t, "prod/", normalisePrefix("/prod/"))

	c := &Client{prefix: "prod/"}
	assert.Equal(t, "prod/reports/x.json", c.key("/reports/x.json"))
}

func TestVerifyChecksum(t *testing.T) {
	body := []byte(`{"id":"r1"}`)
	assert.NoError(t, verifyChecksum(nil, body))
	assert.NoError(t, verifyChecksum(map[string]string{checksumMetaKey: digest(body)}, body))
	assert.NoError(t, verifyChecksum(map[string]string{checksumMetaKey: strings.ToUpper(digest(body))}, body))
	assert.Error(t, verifyChecksum(map[string]string{checksumMetaKey: digest([]byte("x"))}, body))
}
