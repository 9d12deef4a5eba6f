package metadata

import (
	"context"
	"time"
)

type CatalogConfig struct {
	PostgresDSN string
	Namespace   string
}

// Writer records committed datasets in the snapshot catalog.
type Writer interface {
	RecordDataset(ctx context.Context, rec DatasetRecord) error
	DatasetsForSnapshot(ctx context.Context, snapshotID string) ([]DatasetRecord, error)
	Close() error
}

// DatasetRecord describes one committed dataset.
type DatasetRecord struct {
	SnapshotID      string
	Dataset         string
	Region          string
	RealmID         int
	RecordCount     int64
	Checksum        string
	Attempts        int
	FetchDuration   time.Duration
	StorageBackend  string
	ProducerVersion string
	CommittedAt     time.Time
}

// NewWriter returns a Postgres-backed writer when a DSN is configured and a
// no-op writer otherwise.
func NewWriter(cfg CatalogConfig) (Writer, error) {
	if cfg.PostgresDSN == "" {
		return NoopWriter{}, nil
	}
	w, err := NewPostgresWriter(cfg)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// NoopWriter discards all records.
type NoopWriter struct{}

func (NoopWriter) RecordDataset(_ context.Context, _ DatasetRecord) error { return nil }

func (NoopWriter) DatasetsForSnapshot(_ context.Context, _ string) ([]DatasetRecord, error) {
	return nil, nil
}

func (NoopWriter) Close() error { return nil }
