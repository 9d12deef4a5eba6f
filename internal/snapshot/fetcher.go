package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/withObsrvr/obsrvr-auction-snapshotter/internal/marketplace"
	"github.com/withObsrvr/obsrvr-auction-snapshotter/internal/metrics"
	"github.com/withObsrvr/obsrvr-auction-snapshotter/internal/region"
	"github.com/withObsrvr/obsrvr-auction-snapshotter/internal/storage"
	"github.com/withObsrvr/obsrvr-auction-snapshotter/internal/tables"
)

// DefaultFetchTimeout is the per-attempt budget for one realm's listings.
const DefaultFetchTimeout = 20 * time.Second

// ErrFetchTimeout is reported when an attempt exceeds its budget.
var ErrFetchTimeout = errors.New("fetch timed out")

// RealmJob is one unit of work within a pass.
type RealmJob struct {
	SnapshotID string
	Realm      region.Realm
	Dataset    string
}

// DatasetResult describes a dataset produced by a successful fetch.
type DatasetResult struct {
	SnapshotID  string
	Dataset     string
	Region      string
	RealmID     int
	Records     int
	Checksum    string
	Attempts    int
	Duration    time.Duration
	CommittedAt time.Time
}

// RealmFetcher fetches one realm's listings, retrying until a fetch succeeds,
// then replaces the realm's dataset.
type RealmFetcher struct {
	client  marketplace.Client
	store   storage.SnapshotStore
	timeout time.Duration
	backend string
}

// NewRealmFetcher creates a fetcher. A non-positive timeout uses DefaultFetchTimeout.
func NewRealmFetcher(client marketplace.Client, store storage.SnapshotStore, timeout time.Duration, backend string) *RealmFetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &RealmFetcher{
		client:  client,
		store:   store,
		timeout: timeout,
		backend: backend,
	}
}

// Fetch runs attempts until one succeeds within the timeout, then drops the
// job's dataset and inserts the fetched records. The records are prepared
// for the store before anything is dropped. Timeouts and remote failures
// are retried immediately without limit. Only cancellation and store errors
// end the loop without a dataset.
func (f *RealmFetcher) Fetch(ctx context.Context, job RealmJob, log *slog.Logger) (*DatasetResult, error) {
	if log == nil {
		log = slog.Default()
	}
	regionType := job.Realm.Region.Type
	start := time.Now()

	var listings []marketplace.Listing
	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		attempts++

		attemptStart := time.Now()
		result, err := f.attempt(ctx, job)
		if m := metrics.Get(); m != nil {
			m.ObserveFetchDuration(regionType, time.Since(attemptStart).Seconds())
		}
		if err == nil {
			listings = result
			if m := metrics.Get(); m != nil {
				m.IncFetchAttempts(regionType, metrics.OutcomeSuccess)
			}
			break
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		if errors.Is(err, ErrFetchTimeout) {
			log.Warn("fetch timed out, retrying", "attempt", attempts, "timeout", f.timeout)
			if m := metrics.Get(); m != nil {
				m.IncFetchAttempts(regionType, metrics.OutcomeTimeout)
			}
			continue
		}

		var remote *marketplace.RemoteError
		if errors.As(err, &remote) {
			log.Warn("fetch failed, retrying", "attempt", attempts,
				"status", remote.StatusCode, "type", remote.Type, "detail", remote.Detail)
		} else {
			log.Warn("fetch failed, retrying", "attempt", attempts, "error", err)
		}
		if m := metrics.Get(); m != nil {
			m.IncFetchAttempts(regionType, metrics.OutcomeRemoteError)
		}
	}

	// Records are converted before the drop, so a batch the store rejects
	// leaves the previous dataset in place.
	batch, err := f.store.Prepare(job.Dataset, listings)
	if err != nil {
		if m := metrics.Get(); m != nil {
			m.IncStorageErrors(f.backend, "prepare")
		}
		return nil, fmt.Errorf("prepare dataset %s: %w", job.Dataset, err)
	}

	// Drop and insert run back to back on a context that ignores
	// cancellation, so shutdown never leaves a dropped, empty dataset.
	commitCtx := context.WithoutCancel(ctx)
	if err := f.store.DropDataset(commitCtx, job.Dataset); err != nil {
		if m := metrics.Get(); m != nil {
			m.IncStorageErrors(f.backend, "drop")
		}
		return nil, fmt.Errorf("drop dataset %s: %w", job.Dataset, err)
	}
	if err := f.store.BulkInsert(commitCtx, job.Dataset, batch); err != nil {
		if m := metrics.Get(); m != nil {
			m.IncStorageErrors(f.backend, "insert")
		}
		return nil, fmt.Errorf("insert dataset %s: %w", job.Dataset, err)
	}

	res := &DatasetResult{
		SnapshotID:  job.SnapshotID,
		Dataset:     job.Dataset,
		Region:      regionType,
		RealmID:     job.Realm.ID,
		Records:     len(listings),
		Checksum:    tables.RecordsChecksum(listings),
		Attempts:    attempts,
		Duration:    time.Since(start),
		CommittedAt: time.Now().UTC(),
	}
	log.Info("dataset committed", "records", res.Records, "attempts", attempts, "duration", res.Duration)
	return res, nil
}

// attempt races one FetchListings call against the timeout. The call runs on
// its own context, cancelled as soon as the attempt is decided.
func (f *RealmFetcher) attempt(ctx context.Context, job RealmJob) ([]marketplace.Listing, error) {
	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type fetchResult struct {
		listings []marketplace.Listing
		err      error
	}
	done := make(chan fetchResult, 1)
	go func() {
		listings, err := f.client.FetchListings(attemptCtx, job.Realm.ID, job.Realm.Region)
		done <- fetchResult{listings: listings, err: err}
	}()

	timer := time.NewTimer(f.timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.listings, r.err
	case <-timer.C:
		return nil, ErrFetchTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
