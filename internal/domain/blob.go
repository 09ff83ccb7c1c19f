package domain

import (
	"context"
	"time"
)

// ObjectInfo describes one stored object. Key is relative to the store's
// configured prefix.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ObjectStore is the cold-storage surface used for sweep reports.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, body []byte, contentType string) error
	GetObject(ctx context.Context, key string) ([]byte, error)
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// ReportArchiver stores finished sweep reports in cold storage.
type ReportArchiver interface {
	ArchiveReport(ctx context.Context, report SweepReport) (string, error)
}
