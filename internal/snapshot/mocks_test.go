package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/withObsrvr/obsrvr-auction-snapshotter/internal/events"
	"github.com/withObsrvr/obsrvr-auction-snapshotter/internal/marketplace"
	"github.com/withObsrvr/obsrvr-auction-snapshotter/internal/metadata"
	"github.com/withObsrvr/obsrvr-auction-snapshotter/internal/region"
	"github.com/withObsrvr/obsrvr-auction-snapshotter/internal/storage"
)

// step scripts one FetchListings call.
type step struct {
	listings []marketplace.Listing
	err      error
	hang     bool // block until the attempt context is cancelled
	delay    time.Duration
}

// mockClient implements marketplace.Client for testing
type mockClient struct {
	mu          sync.Mutex
	index       map[string][]marketplace.RealmRef
	listErr     error
	steps       map[int][]step
	calls       map[int]int
	fetchOrder  []int
	listCalls   []string
	cancelled   int
	inFlight    int
	maxInFlight int
	onFetch     func(realmID int)
}

func newMockClient() *mockClient {
	return &mockClient{
		index: make(map[string][]marketplace.RealmRef),
		steps: make(map[int][]step),
		calls: make(map[int]int),
	}
}

func href(r region.Region, id int) string {
	return fmt.Sprintf("https://%s.api.blizzard.com/data/wow/connected-realm/%d?namespace=%s", r.Type, id, r.Namespace())
}

func (m *mockClient) addRealms(r region.Region, ids ...int) {
	for _, id := range ids {
		m.index[r.Type] = append(m.index[r.Type], marketplace.RealmRef{Href: href(r, id)})
	}
}

func defaultListings(realmID int) []marketplace.Listing {
	return []marketplace.Listing{
		json.RawMessage(fmt.Sprintf(`{"id":%d01,"realm":%d}`, realmID, realmID)),
		json.RawMessage(fmt.Sprintf(`{"id":%d02,"realm":%d}`, realmID, realmID)),
	}
}

func (m *mockClient) ListRealms(_ context.Context, r region.Region) ([]marketplace.RealmRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls = append(m.listCalls, r.Type)
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.index[r.Type], nil
}

func (m *mockClient) FetchListings(ctx context.Context, realmID int, _ region.Region) ([]marketplace.Listing, error) {
	m.mu.Lock()
	n := m.calls[realmID]
	m.calls[realmID]++
	m.fetchOrder = append(m.fetchOrder, realmID)
	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
	s := step{listings: defaultListings(realmID)}
	if n < len(m.steps[realmID]) {
		s = m.steps[realmID][n]
	}
	hook := m.onFetch
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if hook != nil {
		hook(realmID)
	}
	if s.hang {
		<-ctx.Done()
		m.mu.Lock()
		m.cancelled++
		m.mu.Unlock()
		return nil, ctx.Err()
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.listings, s.err
}

func (m *mockClient) callCount(realmID int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[realmID]
}

func (m *mockClient) totalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.fetchOrder)
}

// mockStore implements storage.SnapshotStore for testing
type mockStore struct {
	mu         sync.Mutex
	ops        []string
	data       map[string][]json.RawMessage
	prepareErr error
	dropErr    error
	insertErr  error
	onDrop     func()
	insertCtx  error // ctx.Err() observed by the last BulkInsert
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string][]json.RawMessage)}
}

// mockBatch implements storage.Batch for testing
type mockBatch struct {
	name    string
	records []json.RawMessage
}

func (b *mockBatch) Dataset() string { return b.name }
func (b *mockBatch) Len() int        { return len(b.records) }

func (s *mockStore) Prepare(name string, records []json.RawMessage) (storage.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, "prepare:"+name)
	if s.prepareErr != nil {
		return nil, s.prepareErr
	}
	return &mockBatch{name: name, records: append([]json.RawMessage(nil), records...)}, nil
}

func (s *mockStore) DropDataset(_ context.Context, name string) error {
	s.mu.Lock()
	s.ops = append(s.ops, "drop:"+name)
	err := s.dropErr
	if err == nil {
		delete(s.data, name)
	}
	hook := s.onDrop
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	return err
}

func (s *mockStore) BulkInsert(ctx context.Context, name string, batch storage.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, "insert:"+name)
	s.insertCtx = ctx.Err()
	if s.insertErr != nil {
		return s.insertErr
	}
	s.data[name] = batch.(*mockBatch).records
	return nil
}

func (s *mockStore) Close() error { return nil }

// snapshotOps returns the drop and insert calls in order.
func (s *mockStore) snapshotOps() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, op := range s.ops {
		if !strings.HasPrefix(op, "prepare:") {
			out = append(out, op)
		}
	}
	return out
}

// allOps includes prepare calls.
func (s *mockStore) allOps() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ops...)
}

func (s *mockStore) dataset(name string) ([]json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.data[name]
	return d, ok
}

// mockCatalog implements metadata.Writer for testing
type mockCatalog struct {
	mu      sync.Mutex
	records []metadata.DatasetRecord
	err     error
}

func (c *mockCatalog) RecordDataset(_ context.Context, rec metadata.DatasetRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.records = append(c.records, rec)
	return nil
}

func (c *mockCatalog) DatasetsForSnapshot(_ context.Context, snapshotID string) ([]metadata.DatasetRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []metadata.DatasetRecord
	for _, r := range c.records {
		if r.SnapshotID == snapshotID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (c *mockCatalog) Close() error { return nil }

// mockEmitter implements events.Emitter for testing
type mockEmitter struct {
	mu     sync.Mutex
	events []events.DatasetInfo
}

func (e *mockEmitter) EmitDataset(_ context.Context, ds events.DatasetInfo) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ds)
	return nil
}

func (e *mockEmitter) Close() error { return nil }
