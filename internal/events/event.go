package events

import (
	"strconv"
	"time"
)

const (
	eventVersion = "1.0"
	eventType    = "snapshot_dataset_committed"
)

// Event records that one dataset of a snapshot was committed to the store.
type Event struct {
	Version   string    `json:"version"`
	EventType string    `json:"event_type"`
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`

	Dataset  DatasetInfo  `json:"dataset"`
	Producer ProducerInfo `json:"producer"`
	Chain    ChainInfo    `json:"chain"`
}

// DatasetInfo identifies the committed dataset.
type DatasetInfo struct {
	SnapshotID  string    `json:"snapshot_id"`
	Name        string    `json:"name"`
	Region      string    `json:"region"`
	RealmID     int       `json:"realm_id"`
	RecordCount int64     `json:"record_count"`
	Checksum    string    `json:"checksum"`
	Attempts    int       `json:"attempts"`
	Backend     string    `json:"storage_backend"`
	CommittedAt time.Time `json:"committed_at"`
}

// ChainKey returns the key of the chain this dataset extends. Each realm's
// snapshots over time form one chain.
func (d DatasetInfo) ChainKey() string {
	return d.Region + "/" + strconv.Itoa(d.RealmID)
}

// ProducerInfo identifies the software that produced the data.
type ProducerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ChainInfo provides hash chaining for a tamper-evident audit log.
type ChainInfo struct {
	PrevEventHash string `json:"prev_event_hash"`
	EventHash     string `json:"event_hash"`
}

// SetChainHashes links the event to prevHash and computes its own hash.
func (e *Event) SetChainHashes(prevHash string) {
	e.Chain.PrevEventHash = prevHash
	e.Chain.EventHash = ComputeEventHash(e)
}

// newEvent fills in the envelope fields for a committed dataset.
func newEvent(ds DatasetInfo, producer ProducerInfo) *Event {
	return &Event{
		Version:   eventVersion,
		EventType: eventType,
		EventID:   GenerateEventID(),
		Timestamp: time.Now().UTC(),
		Dataset:   ds,
		Producer:  producer,
	}
}
