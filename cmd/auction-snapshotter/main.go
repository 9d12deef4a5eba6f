package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/withObsrvr/obsrvr-auction-snapshotter/internal/checkpoint"
	"github.com/withObsrvr/obsrvr-auction-snapshotter/internal/config"
	"github.com/withObsrvr/obsrvr-auction-snapshotter/internal/events"
	"github.com/withObsrvr/obsrvr-auction-snapshotter/internal/logging"
	"github.com/withObsrvr/obsrvr-auction-snapshotter/internal/marketplace"
	"github.com/withObsrvr/obsrvr-auction-snapshotter/internal/metadata"
	"github.com/withObsrvr/obsrvr-auction-snapshotter/internal/metrics"
	"github.com/withObsrvr/obsrvr-auction-snapshotter/internal/scheduler"
	"github.com/withObsrvr/obsrvr-auction-snapshotter/internal/snapshot"
	"github.com/withObsrvr/obsrvr-auction-snapshotter/internal/storage"
	"github.com/withObsrvr/obsrvr-auction-snapshotter/internal/tables"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Printf("[main] Auction Snapshotter %s (%s)", snapshot.Version, snapshot.GitSHA)

	cfg := config.MustLoad()
	logging.Setup(logging.Config{Format: cfg.Log.Format, Level: cfg.Log.Level})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown handler
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		sig := <-ch
		log.Printf("[shutdown] received signal: %v", sig)
		cancel()
	}()

	if cfg.Metrics.Enabled {
		metrics.Init("auction_snapshotter")
		go func() {
			log.Printf("[metrics] serving on %s", cfg.Metrics.Address)
			if err := metrics.StartServer(cfg.Metrics.Address); err != nil {
				log.Printf("[metrics] server stopped: %v", err)
			}
		}()
	}

	client := marketplace.NewHTTPClient(marketplace.HTTPConfig{
		ClientID:     cfg.Marketplace.ClientID,
		ClientSecret: cfg.Marketplace.ClientSecret,
		TokenURL:     cfg.Marketplace.TokenURL,
	})

	format, err := tables.ParseFormat(cfg.Storage.Format)
	if err != nil {
		log.Fatalf("[main] invalid storage format: %v", err)
	}

	// Create storage backend
	store, err := storage.NewSnapshotStore(ctx, storage.StorageConfig{
		Backend:         cfg.Storage.Backend,
		MongoURI:        cfg.Storage.MongoURI,
		MongoDatabase:   cfg.Storage.MongoDatabase,
		LocalDir:        cfg.Storage.LocalDir,
		GCSBucket:       cfg.Storage.GCSBucket,
		S3Bucket:        cfg.Storage.S3Bucket,
		S3Endpoint:      cfg.Storage.S3Endpoint,
		S3Region:        cfg.Storage.S3Region,
		Prefix:          cfg.Storage.Prefix,
		Format:          format,
		ProducerVersion: snapshot.Version,
	})
	if err != nil {
		log.Fatalf("[main] failed to create storage: %v", err)
	}
	defer store.Close()

	catalog, err := metadata.NewWriter(metadata.CatalogConfig(cfg.Catalog))
	if err != nil {
		// The catalog is optional; keep running without it.
		log.Printf("[main] catalog unavailable: %v", err)
		catalog = metadata.NoopWriter{}
	}
	defer catalog.Close()

	emitter, err := events.NewEmitter(ctx, events.Config(cfg.Events), events.ProducerInfo{
		Name:    "auction-snapshotter",
		Version: snapshot.Version,
	})
	if err != nil {
		log.Fatalf("[main] failed to create event emitter: %v", err)
	}
	defer emitter.Close()

	cpMgr, err := checkpoint.NewManager(checkpoint.Config{
		Enabled: cfg.Checkpoint.Enabled,
		Dir:     cfg.Checkpoint.Dir,
	})
	if err != nil {
		log.Fatalf("[main] failed to create checkpoint manager: %v", err)
	}

	orch := snapshot.NewOrchestrator(client, store, snapshot.Config{
		Regions: cfg.Regions,
		Timeout: cfg.Fetch.Timeout,
		Workers: cfg.Fetch.Workers,
		Backend: cfg.Storage.Backend,
	},
		snapshot.WithCatalog(catalog),
		snapshot.WithEmitter(emitter),
	)

	sched := scheduler.New(orch, scheduler.Config{
		Gate:         scheduler.MinuteGate(cfg.Schedule.RunMinute),
		PollInterval: cfg.Schedule.PollInterval,
		Location:     cfg.Schedule.Location,
		Checkpoint:   cpMgr,
	})

	if err := sched.Run(ctx); err != nil {
		if ctx.Err() != nil {
			log.Printf("[main] shutdown complete")
		} else {
			log.Fatalf("[main] scheduler failed: %v", err)
		}
	}

	log.Println("[main] auction snapshotter stopped cleanly")
	time.Sleep(100 * time.Millisecond)
}
