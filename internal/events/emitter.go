// Package events emits hash-chained dataset-committed events.
package events

import (
	"context"
	"fmt"
	"log"
)

// Config selects and configures the emitter.
type Config struct {
	Mode          string // "none" | "file" | "nats"
	Dir           string // event backups and chain heads
	NATSURL       string
	SubjectPrefix string
	Stream        string
}

// Emitter publishes one event per committed dataset.
type Emitter interface {
	EmitDataset(ctx context.Context, ds DatasetInfo) error
	Close() error
}

// NewEmitter creates an appropriate emitter based on configuration. When the
// NATS emitter cannot be created it falls back to file-only emission.
func NewEmitter(ctx context.Context, cfg Config, producer ProducerInfo) (Emitter, error) {
	switch cfg.Mode {
	case "", "none":
		log.Println("[events] disabled, using no-op emitter")
		return NoopEmitter{}, nil

	case "file":
		e, err := NewFileEmitter(cfg.Dir, producer)
		if err != nil {
			return nil, err
		}
		log.Printf("[events] using file emitter -> %s", cfg.Dir)
		return e, nil

	case "nats":
		e, err := NewNATSEmitter(ctx, cfg, producer)
		if err != nil {
			log.Printf("[events] failed to create NATS emitter: %v, falling back to file-only", err)
			fe, ferr := NewFileEmitter(cfg.Dir, producer)
			if ferr != nil {
				return nil, ferr
			}
			return fe, nil
		}
		log.Printf("[events] using NATS emitter -> %s (%s.>)", cfg.NATSURL, cfg.SubjectPrefix)
		return e, nil

	default:
		return nil, fmt.Errorf("unknown events mode: %s", cfg.Mode)
	}
}

// NoopEmitter discards all events.
type NoopEmitter struct{}

func (NoopEmitter) EmitDataset(_ context.Context, _ DatasetInfo) error { return nil }

func (NoopEmitter) Close() error { return nil }
