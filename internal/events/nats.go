package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// publisher is the subset of jetstream.JetStream used for emission.
type publisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NATSEmitter publishes hash-chained events to a JetStream stream. Every
// event is also backed up to a local file before publishing.
type NATSEmitter struct {
	mu            sync.Mutex
	nc            *nats.Conn
	js            publisher
	subjectPrefix string
	chain         *ChainTracker
	backup        *FileBackup
	producer      ProducerInfo
}

// NewNATSEmitter connects to NATS and ensures the events stream exists.
func NewNATSEmitter(ctx context.Context, cfg Config, producer ProducerInfo) (*NATSEmitter, error) {
	nc, err := nats.Connect(cfg.NATSURL, nats.Name(producer.Name))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.Stream,
		Subjects:  []string{cfg.SubjectPrefix + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    30 * 24 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream %s: %w", cfg.Stream, err)
	}

	e, err := newNATSEmitter(js, cfg, producer)
	if err != nil {
		nc.Close()
		return nil, err
	}
	e.nc = nc
	return e, nil
}

func newNATSEmitter(js publisher, cfg Config, producer ProducerInfo) (*NATSEmitter, error) {
	chain, err := NewChainTracker(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("create chain tracker: %w", err)
	}
	backup, err := NewFileBackup(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("create file backup: %w", err)
	}
	return &NATSEmitter{
		js:            js,
		subjectPrefix: cfg.SubjectPrefix,
		chain:         chain,
		backup:        backup,
		producer:      producer,
	}, nil
}

// Subject returns the subject an event for ds is published on:
// {prefix}.{region}.{realm_id}
func (e *NATSEmitter) Subject(ds DatasetInfo) string {
	return e.subjectPrefix + "." + ds.Region + "." + strconv.Itoa(ds.RealmID)
}

// EmitDataset implements Emitter.
func (e *NATSEmitter) EmitDataset(ctx context.Context, ds DatasetInfo) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	evt := newEvent(ds, e.producer)
	chainKey, err := e.chain.link(evt)
	if err != nil {
		return err
	}

	if err := e.backup.Save(evt); err != nil {
		log.Printf("[events] warning: backup failed: %v", err)
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	// The event id doubles as the JetStream dedupe id.
	if _, err := e.js.Publish(ctx, e.Subject(ds), data, jetstream.WithMsgID(evt.EventID)); err != nil {
		return fmt.Errorf("publish %s: %w", evt.EventID, err)
	}

	if err := e.chain.SetHead(chainKey, evt.Chain.EventHash); err != nil {
		log.Printf("[events] warning: failed to update chain head: %v", err)
	}
	return nil
}

// Close drains the NATS connection.
func (e *NATSEmitter) Close() error {
	if e.nc != nil {
		return e.nc.Drain()
	}
	return nil
}
