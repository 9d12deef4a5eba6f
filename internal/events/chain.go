package events

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrNoChainHead indicates no previous event exists for this chain.
	ErrNoChainHead = errors.New("no chain head found")
)

// ComputeEventHash computes the SHA256 hash of an event.
// The hash is computed over the JSON representation, excluding the
// event_hash field itself.
func ComputeEventHash(evt *Event) string {
	evtCopy := *evt
	evtCopy.Chain.EventHash = ""

	canonical, err := json.Marshal(evtCopy)
	if err != nil {
		return ""
	}

	hash := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(hash[:])
}

// ChainTracker manages the chain heads for event linking.
type ChainTracker struct {
	mu       sync.RWMutex
	heads    map[string]string // chainKey -> eventHash
	filePath string
}

// NewChainTracker creates a chain tracker that persists to the given directory.
func NewChainTracker(dir string) (*ChainTracker, error) {
	if dir == "" {
		dir = "./state"
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create chain tracker dir: %w", err)
	}

	ct := &ChainTracker{
		heads:    make(map[string]string),
		filePath: filepath.Join(dir, "event-chain-heads.json"),
	}

	if err := ct.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load chain heads: %w", err)
	}

	return ct, nil
}

// GetHead returns the last event hash for a chain.
func (ct *ChainTracker) GetHead(chainKey string) (string, error) {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	hash, ok := ct.heads[chainKey]
	if !ok || hash == "" {
		return "", ErrNoChainHead
	}
	return hash, nil
}

// SetHead updates the chain head after a successful event emission.
func (ct *ChainTracker) SetHead(chainKey, eventHash string) error {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	ct.heads[chainKey] = eventHash
	return ct.save()
}

func (ct *ChainTracker) load() error {
	data, err := os.ReadFile(ct.filePath)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, &ct.heads)
}

func (ct *ChainTracker) save() error {
	data, err := json.MarshalIndent(ct.heads, "", "  ")
	if err != nil {
		return err
	}

	tmpPath := ct.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, ct.filePath)
}

// GenerateEventID creates a unique event ID.
func GenerateEventID() string {
	return "snap_evt_" + uuid.New().String()
}

// link sets the chain fields of evt from the tracker's current head.
func (ct *ChainTracker) link(evt *Event) (string, error) {
	chainKey := evt.Dataset.ChainKey()
	prevHash, err := ct.GetHead(chainKey)
	if err != nil && !errors.Is(err, ErrNoChainHead) {
		return "", fmt.Errorf("get chain head: %w", err)
	}
	evt.SetChainHashes(prevHash)
	return chainKey, nil
}
