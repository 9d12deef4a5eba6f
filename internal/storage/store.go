package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/withObsrvr/obsrvr-auction-snapshotter/internal/tables"
)

// ErrBatchMismatch is returned when a batch is inserted into a store or
// dataset other than the one that prepared it.
var ErrBatchMismatch = errors.New("batch was not prepared for this dataset")

// Batch is a set of records already converted to a store's native form.
type Batch interface {
	// Dataset is the dataset name the batch was prepared for.
	Dataset() string

	// Len is the number of records in the batch.
	Len() int
}

// SnapshotStore holds one isolated dataset per snapshot name.
//
// Writers call Prepare before DropDataset so that records the store cannot
// accept are rejected while the previous dataset still exists.
type SnapshotStore interface {
	// Prepare converts and validates records for the named dataset without
	// touching stored data.
	Prepare(name string, records []json.RawMessage) (Batch, error)

	// DropDataset removes a dataset and all of its records. Dropping a
	// dataset that does not exist is not an error.
	DropDataset(ctx context.Context, name string) error

	// BulkInsert writes a prepared batch into the named dataset in one operation.
	BulkInsert(ctx context.Context, name string, batch Batch) error

	// Close releases any resources.
	Close() error
}

// Manifest describes the contents of a dataset written to blob storage.
type Manifest struct {
	Dataset         string       `json:"dataset"`
	Table           TableInfo    `json:"table"`
	RecordsChecksum string       `json:"records_checksum"`
	Producer        ProducerInfo `json:"producer"`
	CreatedAt       time.Time    `json:"created_at"`
}

// TableInfo describes the single listings object in a dataset.
type TableInfo struct {
	File     string `json:"file"`
	Format   string `json:"format"`
	Checksum string `json:"checksum"`
	RowCount int64  `json:"row_count"`
	ByteSize int64  `json:"byte_size"`
}

// ProducerInfo describes the software that produced the dataset.
type ProducerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// MarshalJSON returns the manifest as JSON bytes.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	type Alias Manifest
	return json.MarshalIndent((*Alias)(m), "", "  ")
}

// StorageConfig configures the storage backend.
type StorageConfig struct {
	Backend string // "mongo" | "local" | "gcs" | "s3" | "mem"

	// MongoDB
	MongoURI      string
	MongoDatabase string

	// Local filesystem
	LocalDir string

	// GCS
	GCSBucket string

	// S3 (also works for B2, R2, MinIO)
	S3Bucket   string
	S3Endpoint string // custom endpoint for B2/MinIO/R2
	S3Region   string

	// Common blob settings
	Prefix string        // "snapshots/" (path prefix within bucket or local dir)
	Format tables.Format // listings object encoding

	ProducerVersion string
}

// NewSnapshotStore creates a storage backend based on configuration.
func NewSnapshotStore(ctx context.Context, cfg StorageConfig) (SnapshotStore, error) {
	if cfg.Backend == "mongo" {
		if cfg.MongoURI == "" {
			return nil, fmt.Errorf("MongoURI required for mongo backend")
		}
		store, err := NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return store, nil
	}

	opts := BlobOptions{
		Prefix:          cfg.Prefix,
		Format:          cfg.Format,
		ProducerVersion: cfg.ProducerVersion,
	}

	var (
		store *BlobStore
		err   error
	)
	switch cfg.Backend {
	case "local":
		if cfg.LocalDir == "" {
			return nil, fmt.Errorf("LocalDir required for local backend")
		}
		store, err = NewLocalStore(cfg.LocalDir, opts)
	case "gcs":
		if cfg.GCSBucket == "" {
			return nil, fmt.Errorf("GCSBucket required for gcs backend")
		}
		store, err = NewGCSStore(ctx, cfg.GCSBucket, opts)
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3Bucket required for s3 backend")
		}
		store, err = NewS3Store(ctx, cfg.S3Bucket, cfg.S3Endpoint, cfg.S3Region, opts)
	case "mem":
		store, err = NewMemStore(opts)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}
