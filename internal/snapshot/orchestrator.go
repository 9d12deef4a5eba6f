package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/withObsrvr/obsrvr-auction-snapshotter/internal/events"
	"github.com/withObsrvr/obsrvr-auction-snapshotter/internal/logging"
	"github.com/withObsrvr/obsrvr-auction-snapshotter/internal/marketplace"
	"github.com/withObsrvr/obsrvr-auction-snapshotter/internal/metadata"
	"github.com/withObsrvr/obsrvr-auction-snapshotter/internal/metrics"
	"github.com/withObsrvr/obsrvr-auction-snapshotter/internal/region"
	"github.com/withObsrvr/obsrvr-auction-snapshotter/internal/storage"
)

// Version information (set via ldflags)
var (
	Version = "v0.1.0"
	GitSHA  = "unknown"
)

// sideEffectTimeout bounds catalog and event writes after a commit.
const sideEffectTimeout = 10 * time.Second

// Config configures an Orchestrator.
type Config struct {
	Regions []region.Region
	Timeout time.Duration // per fetch attempt
	Workers int           // realms in flight within a region
	Backend string        // storage backend name, for metrics and catalog
}

// PassSummary describes a finished pass.
type PassSummary struct {
	SnapshotID    string
	CorrelationID string
	Realms        int
	Datasets      int
	Records       int64
	StartedAt     time.Time
	Duration      time.Duration
}

// Orchestrator runs snapshot passes over all configured regions.
type Orchestrator struct {
	client  marketplace.Client
	fetcher *RealmFetcher
	regions []region.Region
	workers int
	backend string
	catalog metadata.Writer
	emitter events.Emitter
	log     *slog.Logger
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithCatalog records committed datasets in w.
func WithCatalog(w metadata.Writer) Option {
	return func(o *Orchestrator) { o.catalog = w }
}

// WithEmitter emits an event per committed dataset.
func WithEmitter(e events.Emitter) Option {
	return func(o *Orchestrator) { o.emitter = e }
}

// NewOrchestrator creates an orchestrator. Regions are processed in the order given.
func NewOrchestrator(client marketplace.Client, store storage.SnapshotStore, cfg Config, opts ...Option) *Orchestrator {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	o := &Orchestrator{
		client:  client,
		fetcher: NewRealmFetcher(client, store, cfg.Timeout, cfg.Backend),
		regions: cfg.Regions,
		workers: workers,
		backend: cfg.Backend,
		catalog: metadata.NoopWriter{},
		emitter: events.NoopEmitter{},
		log:     logging.Component("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunPass captures one snapshot identified by at. Realm enumeration for all
// regions completes before any fetch. A listing or parse failure aborts the
// pass before any dataset is touched; a store failure aborts the remainder.
func (o *Orchestrator) RunPass(ctx context.Context, at time.Time) (summary *PassSummary, err error) {
	started := time.Now()
	summary = &PassSummary{
		SnapshotID:    Identifier(at),
		CorrelationID: logging.GenerateCorrelationID(),
		StartedAt:     started,
	}
	ctx = logging.WithCorrelationID(ctx, summary.CorrelationID)
	log := logging.PassLogger(o.log, summary.CorrelationID, summary.SnapshotID)

	defer func() {
		summary.Duration = time.Since(started)
		if m := metrics.Get(); m != nil {
			m.ObservePassDuration(summary.Duration.Seconds())
			switch {
			case err == nil:
				m.IncPasses(metrics.PassSucceeded)
				m.SetLastPassTimestamp(float64(time.Now().Unix()))
			case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
				m.IncPasses(metrics.PassCancelled)
			default:
				m.IncPasses(metrics.PassFailed)
			}
		}
	}()

	log.Info("listing realms", "regions", len(o.regions))
	batches, err := o.enumerate(ctx)
	if err != nil {
		return summary, err
	}
	for _, b := range batches {
		summary.Realms += len(b.realms)
	}
	log.Info("realms listed", "realms", summary.Realms)

	var mu sync.Mutex
	record := func(res *DatasetResult) {
		mu.Lock()
		summary.Datasets++
		summary.Records += int64(res.Records)
		mu.Unlock()
	}

	for _, b := range batches {
		if err := o.runRegion(ctx, log, summary.SnapshotID, b, record); err != nil {
			return summary, err
		}
	}

	log.Info("pass complete",
		"realms", summary.Realms,
		"datasets", summary.Datasets,
		"records", summary.Records,
		"duration", time.Since(started),
	)
	return summary, nil
}

type regionBatch struct {
	region region.Region
	realms []region.Realm
}

// enumerate lists and parses the realms of every region, in region order.
// Duplicate ids within a region keep their first position.
func (o *Orchestrator) enumerate(ctx context.Context) ([]regionBatch, error) {
	batches := make([]regionBatch, 0, len(o.regions))
	for _, r := range o.regions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		refs, err := o.client.ListRealms(ctx, r)
		if err != nil {
			return nil, fmt.Errorf("list realms for %s: %w", r.Type, err)
		}

		seen := make(map[int]struct{}, len(refs))
		batch := regionBatch{region: r}
		for _, ref := range refs {
			id, err := region.ParseRealmID(ref.Href, r)
			if err != nil {
				return nil, err
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			batch.realms = append(batch.realms, region.Realm{ID: id, Region: r})
		}

		if m := metrics.Get(); m != nil {
			m.AddRealmsListed(r.Type, float64(len(batch.realms)))
		}
		batches = append(batches, batch)
	}
	return batches, nil
}

// runRegion processes one region's realms in index order, sequentially or
// with at most o.workers realms in flight.
func (o *Orchestrator) runRegion(ctx context.Context, log *slog.Logger, snapshotID string, b regionBatch, record func(*DatasetResult)) error {
	log.Info("processing region", "region", b.region.Type, "realms", len(b.realms))

	if o.workers <= 1 {
		for _, realm := range b.realms {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := o.processRealm(ctx, log, snapshotID, realm)
			if err != nil {
				return err
			}
			record(res)
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for _, realm := range b.realms {
		if gctx.Err() != nil {
			break
		}
		realm := realm // per-iteration copy; go directive is 1.21
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := o.processRealm(gctx, log, snapshotID, realm)
			if err != nil {
				return err
			}
			record(res)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// processRealm fetches and commits one realm, then records the dataset in
// the catalog and event stream. Those side effects are best-effort.
func (o *Orchestrator) processRealm(ctx context.Context, log *slog.Logger, snapshotID string, realm region.Realm) (*DatasetResult, error) {
	job := RealmJob{
		SnapshotID: snapshotID,
		Realm:      realm,
		Dataset:    DatasetName(snapshotID, realm.Region.Type, realm.ID),
	}
	realmLog := logging.RealmLogger(log, realm.Region.Type, realm.ID, job.Dataset)

	if m := metrics.Get(); m != nil {
		m.IncInFlightRealms()
		defer m.DecInFlightRealms()
	}

	res, err := o.fetcher.Fetch(ctx, job, realmLog)
	if err != nil {
		return nil, err
	}

	if m := metrics.Get(); m != nil {
		m.RecordDataset(res.Region, res.Records)
	}

	sideCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	if err := o.catalog.RecordDataset(sideCtx, metadata.DatasetRecord{
		SnapshotID:      res.SnapshotID,
		Dataset:         res.Dataset,
		Region:          res.Region,
		RealmID:         res.RealmID,
		RecordCount:     int64(res.Records),
		Checksum:        res.Checksum,
		Attempts:        res.Attempts,
		FetchDuration:   res.Duration,
		StorageBackend:  o.backend,
		ProducerVersion: Version,
		CommittedAt:     res.CommittedAt,
	}); err != nil {
		realmLog.Warn("failed to record dataset in catalog", "error", err)
		if m := metrics.Get(); m != nil {
			m.IncCatalogErrors()
		}
	}

	if err := o.emitter.EmitDataset(sideCtx, events.DatasetInfo{
		SnapshotID:  res.SnapshotID,
		Name:        res.Dataset,
		Region:      res.Region,
		RealmID:     res.RealmID,
		RecordCount: int64(res.Records),
		Checksum:    res.Checksum,
		Attempts:    res.Attempts,
		Backend:     o.backend,
		CommittedAt: res.CommittedAt,
	}); err != nil {
		realmLog.Warn("failed to emit dataset event", "error", err)
		if m := metrics.Get(); m != nil {
			m.IncEventErrors()
		}
	}

	return res, nil
}
