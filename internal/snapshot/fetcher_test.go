package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/withObsrvr/obsrvr-auction-snapshotter/internal/marketplace"
	"github.com/withObsrvr/obsrvr-auction-snapshotter/internal/region"
)

func testJob(id int) RealmJob {
	return RealmJob{
		SnapshotID: "2024-3-9-14",
		Realm:      region.Realm{ID: id, Region: region.Europe},
		Dataset:    DatasetName("2024-3-9-14", "eu", id),
	}
}

func TestFetchTimeoutsThenSuccessEqualsOneSuccess(t *testing.T) {
	client := newMockClient()
	client.steps[1234] = []step{{hang: true}, {hang: true}}
	store := newMockStore()

	f := NewRealmFetcher(client, store, 20*time.Millisecond, "mem")
	res, err := f.Fetch(context.Background(), testJob(1234), nil)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if res.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", res.Attempts)
	}

	ops := store.snapshotOps()
	want := []string{"drop:2024-3-9-14-eu1234", "insert:2024-3-9-14-eu1234"}
	if len(ops) != len(want) || ops[0] != want[0] || ops[1] != want[1] {
		t.Fatalf("store ops = %v, want %v", ops, want)
	}

	got, _ := store.dataset("2024-3-9-14-eu1234")
	exp := defaultListings(1234)
	if len(got) != len(exp) {
		t.Fatalf("dataset has %d records, want %d", len(got), len(exp))
	}
	for i := range exp {
		if string(got[i]) != string(exp[i]) {
			t.Errorf("record %d = %s, want %s", i, got[i], exp[i])
		}
	}

	// Timed-out attempts must have their calls cancelled.
	deadline := time.Now().Add(time.Second)
	for {
		client.mu.Lock()
		cancelled := client.cancelled
		client.mu.Unlock()
		if cancelled == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("cancelled attempts = %d, want 2", cancelled)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFetchRetriesRemoteErrors(t *testing.T) {
	client := newMockClient()
	client.steps[7] = []step{
		{err: &marketplace.RemoteError{StatusCode: 503, Detail: "Service Unavailable"}},
		{err: errors.New("connection reset by peer")},
	}
	store := newMockStore()

	f := NewRealmFetcher(client, store, time.Second, "mem")
	res, err := f.Fetch(context.Background(), testJob(7), nil)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if res.Attempts != 3 || client.callCount(7) != 3 {
		t.Errorf("attempts = %d, calls = %d, want 3", res.Attempts, client.callCount(7))
	}
	if len(store.snapshotOps()) != 2 {
		t.Errorf("failed attempts must not touch the store: %v", store.snapshotOps())
	}
}

func TestFetchOnlyFirstSuccessIsStored(t *testing.T) {
	client := newMockClient()
	first := []marketplace.Listing{json.RawMessage(`{"id":1}`)}
	second := []marketplace.Listing{json.RawMessage(`{"id":2}`)}
	client.steps[5] = []step{{listings: first}, {listings: second}}
	store := newMockStore()

	f := NewRealmFetcher(client, store, time.Second, "mem")
	if _, err := f.Fetch(context.Background(), testJob(5), nil); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if client.callCount(5) != 1 {
		t.Errorf("calls = %d, want 1", client.callCount(5))
	}
	got, _ := store.dataset(testJob(5).Dataset)
	if len(got) != 1 || string(got[0]) != `{"id":1}` {
		t.Errorf("dataset = %s, want first success only", got)
	}
}

func TestFetchCancelledNeverTouchesStore(t *testing.T) {
	client := newMockClient()
	for i := 0; i < 20; i++ {
		client.steps[9] = append(client.steps[9], step{hang: true})
	}
	store := newMockStore()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	f := NewRealmFetcher(client, store, 20*time.Millisecond, "mem")
	_, err := f.Fetch(ctx, testJob(9), nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Fetch error = %v, want deadline exceeded", err)
	}
	if ops := store.snapshotOps(); len(ops) != 0 {
		t.Errorf("store touched after failed fetches: %v", ops)
	}
}

func TestFetchStoreErrorIsReturned(t *testing.T) {
	client := newMockClient()
	store := newMockStore()
	store.dropErr = errors.New("not primary")

	f := NewRealmFetcher(client, store, time.Second, "mem")
	_, err := f.Fetch(context.Background(), testJob(3), nil)
	if err == nil || !errors.Is(err, store.dropErr) {
		t.Fatalf("Fetch error = %v, want wrapped drop error", err)
	}
	if ops := store.snapshotOps(); len(ops) != 1 || ops[0] != "drop:2024-3-9-14-eu3" {
		t.Errorf("insert must not follow a failed drop: %v", ops)
	}
}

func TestFetchInsertRunsAfterCancellationDuringDrop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := newMockClient()
	store := newMockStore()
	store.onDrop = cancel

	f := NewRealmFetcher(client, store, time.Second, "mem")
	if _, err := f.Fetch(ctx, testJob(4), nil); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	ops := store.snapshotOps()
	if len(ops) != 2 || ops[1] != "insert:2024-3-9-14-eu4" {
		t.Fatalf("insert should follow drop even after cancel: %v", ops)
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.insertCtx != nil {
		t.Errorf("insert saw cancelled context: %v", store.insertCtx)
	}
}

func TestFetchEmptyListingsProducesEmptyDataset(t *testing.T) {
	client := newMockClient()
	client.steps[8] = []step{{listings: []marketplace.Listing{}}}
	store := newMockStore()

	f := NewRealmFetcher(client, store, time.Second, "mem")
	res, err := f.Fetch(context.Background(), testJob(8), nil)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if res.Records != 0 {
		t.Errorf("Records = %d, want 0", res.Records)
	}
	if len(store.snapshotOps()) != 2 {
		t.Errorf("empty batch should still drop then insert: %v", store.snapshotOps())
	}
}

func TestFetchPrepareFailureLeavesExistingDataset(t *testing.T) {
	client := newMockClient()
	client.steps[6] = []step{{listings: []marketplace.Listing{json.RawMessage(`1`)}}}
	store := newMockStore()
	name := testJob(6).Dataset
	store.data[name] = []json.RawMessage{json.RawMessage(`{"previous":true}`)}
	store.prepareErr = errors.New("record 0: not a document")

	f := NewRealmFetcher(client, store, time.Second, "mem")
	_, err := f.Fetch(context.Background(), testJob(6), nil)
	if !errors.Is(err, store.prepareErr) {
		t.Fatalf("Fetch error = %v, want wrapped prepare error", err)
	}

	if ops := store.allOps(); len(ops) != 1 || ops[0] != "prepare:"+name {
		t.Errorf("store ops = %v, want only prepare", ops)
	}
	got, ok := store.dataset(name)
	if !ok || len(got) != 1 || string(got[0]) != `{"previous":true}` {
		t.Errorf("existing dataset changed: %s", got)
	}
}

func TestFetchPreparesBeforeDrop(t *testing.T) {
	client := newMockClient()
	store := newMockStore()

	f := NewRealmFetcher(client, store, time.Second, "mem")
	if _, err := f.Fetch(context.Background(), testJob(2), nil); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	name := testJob(2).Dataset
	want := []string{"prepare:" + name, "drop:" + name, "insert:" + name}
	ops := store.allOps()
	if len(ops) != len(want) {
		t.Fatalf("ops = %v, want %v", ops, want)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Errorf("op %d = %s, want %s", i, ops[i], want[i])
		}
	}
}
