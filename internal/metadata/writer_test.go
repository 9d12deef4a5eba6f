package metadata

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestNewWriterWithoutDSNIsNoop(t *testing.T) {
	w, err := NewWriter(CatalogConfig{})
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	if _, ok := w.(NoopWriter); !ok {
		t.Fatalf("expected NoopWriter, got %T", w)
	}

	ctx := context.Background()
	if err := w.RecordDataset(ctx, DatasetRecord{Dataset: "x"}); err != nil {
		t.Errorf("RecordDataset failed: %v", err)
	}
	recs, err := w.DatasetsForSnapshot(ctx, "2024-3-9-14")
	if err != nil || len(recs) != 0 {
		t.Errorf("DatasetsForSnapshot = %v, %v", recs, err)
	}
}

func TestNewWriterBadDSN(t *testing.T) {
	if _, err := NewWriter(CatalogConfig{PostgresDSN: "host=localhost port=notaport"}); err == nil {
		t.Error("expected error for malformed DSN")
	}
}

// TestPostgresWriter runs against a real database when CATALOG_TEST_DSN is set.
func TestPostgresWriter(t *testing.T) {
	dsn := os.Getenv("CATALOG_TEST_DSN")
	if dsn == "" {
		t.Skip("CATALOG_TEST_DSN not set")
	}

	ns := "test_" + time.Now().Format("20060102150405.000000")
	w, err := NewPostgresWriter(CatalogConfig{PostgresDSN: dsn, Namespace: ns})
	if err != nil {
		t.Fatalf("NewPostgresWriter failed: %v", err)
	}
	defer w.Close()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	for i, ds := range []string{"2024-3-9-14-eu1234", "2024-3-9-14-us5678"} {
		err := w.RecordDataset(ctx, DatasetRecord{
			SnapshotID:      "2024-3-9-14",
			Dataset:         ds,
			Region:          []string{"eu", "us"}[i],
			RealmID:         []int{1234, 5678}[i],
			RecordCount:     10,
			Checksum:        "sha256:abc",
			Attempts:        1,
			FetchDuration:   1500 * time.Millisecond,
			StorageBackend:  "mem",
			ProducerVersion: "test",
			CommittedAt:     now.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("RecordDataset(%s) failed: %v", ds, err)
		}
	}

	recs, err := w.DatasetsForSnapshot(ctx, "2024-3-9-14")
	if err != nil {
		t.Fatalf("DatasetsForSnapshot failed: %v", err)
	}
	if len(recs) != 2 || recs[0].Dataset != "2024-3-9-14-eu1234" || recs[1].RealmID != 5678 {
		t.Errorf("unexpected records: %+v", recs)
	}
	if recs[0].FetchDuration != 1500*time.Millisecond {
		t.Errorf("FetchDuration = %v", recs[0].FetchDuration)
	}

	last, err := w.LastSnapshotID(ctx)
	if err != nil || last != "2024-3-9-14" {
		t.Errorf("LastSnapshotID = %q, %v", last, err)
	}
}
