package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileBackup saves events to local files for backup/audit.
type FileBackup struct {
	dir string
}

// NewFileBackup creates a new file backup handler.
func NewFileBackup(dir string) (*FileBackup, error) {
	if dir == "" {
		dir = "./events"
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}

	return &FileBackup{dir: dir}, nil
}

// Path returns the file an event is saved to.
func (f *FileBackup) Path(evt *Event) string {
	// {dataset}_{event_id}.json
	name := strings.ReplaceAll(evt.Dataset.Name, string(filepath.Separator), "_")
	return filepath.Join(f.dir, fmt.Sprintf("%s_%s.json", name, evt.EventID))
}

// Save writes an event to a local JSON file.
func (f *FileBackup) Save(evt *Event) error {
	path := f.Path(evt)

	data, err := json.MarshalIndent(evt, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// FileEmitter writes hash-chained events to local files only.
type FileEmitter struct {
	mu       sync.Mutex
	chain    *ChainTracker
	backup   *FileBackup
	producer ProducerInfo
}

// NewFileEmitter creates an emitter that writes events and chain heads under dir.
func NewFileEmitter(dir string, producer ProducerInfo) (*FileEmitter, error) {
	chain, err := NewChainTracker(dir)
	if err != nil {
		return nil, fmt.Errorf("create chain tracker: %w", err)
	}

	backup, err := NewFileBackup(dir)
	if err != nil {
		return nil, fmt.Errorf("create file backup: %w", err)
	}

	return &FileEmitter{chain: chain, backup: backup, producer: producer}, nil
}

// EmitDataset implements Emitter.
func (e *FileEmitter) EmitDataset(_ context.Context, ds DatasetInfo) error {
	// Serialize so concurrent realms of one chain never share a prev hash.
	e.mu.Lock()
	defer e.mu.Unlock()

	evt := newEvent(ds, e.producer)
	chainKey, err := e.chain.link(evt)
	if err != nil {
		return err
	}

	if err := e.backup.Save(evt); err != nil {
		return err
	}

	if err := e.chain.SetHead(chainKey, evt.Chain.EventHash); err != nil {
		log.Printf("[events] warning: failed to update chain head: %v", err)
	}
	return nil
}

// Close releases resources.
func (e *FileEmitter) Close() error {
	return nil
}
