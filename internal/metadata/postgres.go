package metadata

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// PostgresWriter implements Writer using PostgreSQL.
type PostgresWriter struct {
	pool          *pgxpool.Pool
	cfg           CatalogConfig
	mu            sync.RWMutex
	snapshotCache map[string]int64 // snapshot_id -> _meta_snapshots.id
}

// NewPostgresWriter creates a new PostgreSQL catalog writer.
func NewPostgresWriter(cfg CatalogConfig) (*PostgresWriter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}

	// Configure connection pool
	poolCfg.MaxConns = 5
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if cfg.Namespace == "" {
		cfg.Namespace = "auctions"
	}
	w := &PostgresWriter{
		pool:          pool,
		cfg:           cfg,
		snapshotCache: make(map[string]int64),
	}

	if err := w.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	log.Println("[metadata] connected to PostgreSQL catalog")
	return w, nil
}

// initSchema creates the _meta_* tables if they don't exist.
func (w *PostgresWriter) initSchema(ctx context.Context) error {
	if _, err := w.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// EnsureSnapshot registers or retrieves a snapshot entry.
func (w *PostgresWriter) EnsureSnapshot(ctx context.Context, snapshotID string) (int64, error) {
	w.mu.RLock()
	if id, ok := w.snapshotCache[snapshotID]; ok {
		w.mu.RUnlock()
		return id, nil
	}
	w.mu.RUnlock()

	query := `
		INSERT INTO _meta_snapshots (namespace, snapshot_id)
		VALUES ($1, $2)
		ON CONFLICT (namespace, snapshot_id)
		DO UPDATE SET updated_at = NOW()
		RETURNING id
	`

	var id int64
	if err := w.pool.QueryRow(ctx, query, w.cfg.Namespace, snapshotID).Scan(&id); err != nil {
		return 0, fmt.Errorf("ensure snapshot: %w", err)
	}

	w.mu.Lock()
	w.snapshotCache[snapshotID] = id
	w.mu.Unlock()

	return id, nil
}

// RecordDataset writes a catalog row for a committed dataset. Re-recording
// the same dataset replaces the previous row.
func (w *PostgresWriter) RecordDataset(ctx context.Context, rec DatasetRecord) error {
	snapshotPK, err := w.EnsureSnapshot(ctx, rec.SnapshotID)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO _meta_snapshot_datasets (
			snapshot_pk, dataset, region, realm_id, record_count, checksum,
			attempts, fetch_ms, storage_backend, producer_version, committed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (snapshot_pk, dataset)
		DO UPDATE SET
			record_count = EXCLUDED.record_count,
			checksum = EXCLUDED.checksum,
			attempts = EXCLUDED.attempts,
			fetch_ms = EXCLUDED.fetch_ms,
			committed_at = EXCLUDED.committed_at,
			created_at = NOW()
	`

	_, err = w.pool.Exec(ctx, query,
		snapshotPK,
		rec.Dataset,
		rec.Region,
		rec.RealmID,
		rec.RecordCount,
		rec.Checksum,
		rec.Attempts,
		rec.FetchDuration.Milliseconds(),
		rec.StorageBackend,
		rec.ProducerVersion,
		rec.CommittedAt,
	)
	if err != nil {
		return fmt.Errorf("record dataset: %w", err)
	}
	return nil
}

// DatasetsForSnapshot lists the committed datasets of one snapshot in commit order.
func (w *PostgresWriter) DatasetsForSnapshot(ctx context.Context, snapshotID string) ([]DatasetRecord, error) {
	query := `
		SELECT d.dataset, d.region, d.realm_id, d.record_count, d.checksum,
		       d.attempts, d.fetch_ms, d.storage_backend, d.producer_version, d.committed_at
		FROM _meta_snapshot_datasets d
		JOIN _meta_snapshots s ON s.id = d.snapshot_pk
		WHERE s.namespace = $1 AND s.snapshot_id = $2
		ORDER BY d.committed_at, d.id
	`

	rows, err := w.pool.Query(ctx, query, w.cfg.Namespace, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("query datasets: %w", err)
	}
	defer rows.Close()

	var out []DatasetRecord
	for rows.Next() {
		rec := DatasetRecord{SnapshotID: snapshotID}
		var fetchMS int64
		if err := rows.Scan(&rec.Dataset, &rec.Region, &rec.RealmID, &rec.RecordCount, &rec.Checksum,
			&rec.Attempts, &fetchMS, &rec.StorageBackend, &rec.ProducerVersion, &rec.CommittedAt); err != nil {
			return nil, fmt.Errorf("scan dataset: %w", err)
		}
		rec.FetchDuration = time.Duration(fetchMS) * time.Millisecond
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LastSnapshotID returns the most recently updated snapshot in the namespace,
// or "" when the catalog is empty.
func (w *PostgresWriter) LastSnapshotID(ctx context.Context) (string, error) {
	query := `
		SELECT snapshot_id FROM _meta_snapshots
		WHERE namespace = $1
		ORDER BY updated_at DESC
		LIMIT 1
	`

	var id string
	err := w.pool.QueryRow(ctx, query, w.cfg.Namespace).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("get last snapshot: %w", err)
	}
	return id, nil
}

// Close releases database connections.
func (w *PostgresWriter) Close() error {
	w.pool.Close()
	return nil
}

var _ Writer = (*PostgresWriter)(nil)
