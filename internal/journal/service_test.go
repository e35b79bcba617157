package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/omaldonado/snapfield-backend/pkg/logger"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	return val, ok
}

func (m *memStore) SetWithTTL(_ context.Context, key string, value []byte, _ time.Duration) {
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
}

func (m *memStore) entryCount(t *testing.T, key string) int {
	t.Helper()
	m.mu.Lock()
	data, ok := m.data[key]
	m.mu.Unlock()
	if !ok {
		return 0
	}
	var entries []Event
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatalf("stored journal blob corrupt: %v", err)
	}
	return len(entries)
}

func newTestJournal(t *testing.T, store *memStore, max int) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Store:      store,
		Logger:     logger.New(logger.Options{ServiceName: "journal-test"}),
		MaxEntries: max,
	})
	if err != nil {
		t.Fatalf("construct journal: %v", err)
	}
	return svc
}

func waitForPersist(t *testing.T, store *memStore, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if store.entryCount(t, "journal") == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("persisted journal never reached %d entries", want)
}

func TestAppendAssignsSortableIDs(t *testing.T) {
	svc := newTestJournal(t, newMemStore(), 10)
	ctx := context.Background()

	var prev string
	for i := 0; i < 5; i++ {
		id := svc.Append(ctx, Event{SubjectKey: "alice", Category: "extract"})
		if id <= prev {
			t.Fatalf("id %d not greater than predecessor: %q <= %q", i, id, prev)
		}
		prev = id
	}
	if svc.Size(ctx) != 5 {
		t.Fatalf("size = %d, want 5", svc.Size(ctx))
	}
}

func TestAppendTracksSubjectRunningCount(t *testing.T) {
	svc := newTestJournal(t, newMemStore(), 10)
	ctx := context.Background()

	svc.Append(ctx, Event{SubjectKey: "alice", Category: "extract"})
	svc.Append(ctx, Event{SubjectKey: "bob", Category: "extract"})
	svc.Append(ctx, Event{SubjectKey: "alice", Category: "extract"})

	page, _ := svc.QueryPage(ctx, Filter{SubjectKey: "alice"}, 1, 10)
	if len(page) != 2 {
		t.Fatalf("alice page length = %d, want 2", len(page))
	}
	// Newest first: the second alice event carries running count 2.
	if page[0].SubjectRunningCount != 2 || page[1].SubjectRunningCount != 1 {
		t.Fatalf("running counts = %d, %d", page[0].SubjectRunningCount, page[1].SubjectRunningCount)
	}
}

func TestCapEvictsOldestFirst(t *testing.T) {
	svc := newTestJournal(t, newMemStore(), 3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		svc.Append(ctx, Event{SubjectKey: fmt.Sprintf("sub-%d", i), Category: "extract"})
	}
	if svc.Size(ctx) != 3 {
		t.Fatalf("size = %d, want cap 3", svc.Size(ctx))
	}

	page, agg := svc.QueryPage(ctx, Filter{}, 1, 10)
	if agg.Total != 3 {
		t.Fatalf("aggregate total = %d, want 3", agg.Total)
	}
	if page[0].SubjectKey != "sub-4" || page[len(page)-1].SubjectKey != "sub-2" {
		t.Fatalf("retained window wrong: newest %q oldest %q", page[0].SubjectKey, page[len(page)-1].SubjectKey)
	}
}

func TestQueryPagination(t *testing.T) {
	svc := newTestJournal(t, newMemStore(), 50)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		svc.Append(ctx, Event{SubjectKey: fmt.Sprintf("sub-%d", i), Category: "extract"})
	}

	first, agg := svc.QueryPage(ctx, Filter{}, 1, 3)
	second, _ := svc.QueryPage(ctx, Filter{}, 2, 3)
	third, _ := svc.QueryPage(ctx, Filter{}, 3, 3)
	fourth, _ := svc.QueryPage(ctx, Filter{}, 4, 3)

	if agg.Total != 7 {
		t.Fatalf("aggregate total = %d, want 7", agg.Total)
	}
	if len(first) != 3 || len(second) != 3 || len(third) != 1 || len(fourth) != 0 {
		t.Fatalf("page sizes = %d,%d,%d,%d", len(first), len(second), len(third), len(fourth))
	}
	if first[0].SubjectKey != "sub-6" {
		t.Fatalf("first page not newest-first: %q", first[0].SubjectKey)
	}
	if third[0].SubjectKey != "sub-0" {
		t.Fatalf("last page should end at the oldest entry: %q", third[0].SubjectKey)
	}
}

func TestQueryFilters(t *testing.T) {
	svc := newTestJournal(t, newMemStore(), 50)
	ctx := context.Background()

	svc.Append(ctx, Event{SubjectKey: "alice", Category: "extract"})
	svc.Append(ctx, Event{SubjectKey: "alice", Category: "redeem"})
	svc.Append(ctx, Event{SubjectKey: "bob", Category: "extract"})

	page, agg := svc.QueryPage(ctx, Filter{SubjectKey: "alice", Category: "extract"}, 1, 10)
	if len(page) != 1 {
		t.Fatalf("filtered page length = %d, want 1", len(page))
	}
	// Aggregates cover the whole window regardless of the filter.
	if agg.Total != 3 || agg.BySubject["alice"] != 2 || agg.ByCategory["extract"] != 2 {
		t.Fatalf("aggregates wrong: %+v", agg)
	}
}

func TestReclaimDropsMirrorAndRehydrates(t *testing.T) {
	store := newMemStore()
	svc := newTestJournal(t, store, 10)
	ctx := context.Background()

	svc.Append(ctx, Event{SubjectKey: "alice", Category: "extract"})
	svc.Append(ctx, Event{SubjectKey: "bob", Category: "extract"})
	waitForPersist(t, store, 2)

	if err := svc.Reclaim(); err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if svc.Loaded() {
		t.Fatalf("mirror should be dropped after reclaim")
	}

	// Next access rehydrates from the persisted blob.
	if svc.Size(ctx) != 2 {
		t.Fatalf("rehydrated size = %d, want 2", svc.Size(ctx))
	}
	if !svc.Loaded() {
		t.Fatalf("mirror should be resident after access")
	}
}

func TestPurgeClearsMemoryAndBlob(t *testing.T) {
	store := newMemStore()
	svc := newTestJournal(t, store, 10)
	ctx := context.Background()

	svc.Append(ctx, Event{SubjectKey: "alice", Category: "extract"})
	svc.Append(ctx, Event{SubjectKey: "bob", Category: "extract"})

	if count := svc.Purge(ctx); count != 2 {
		t.Fatalf("purge returned %d, want 2", count)
	}
	if svc.Size(ctx) != 0 {
		t.Fatalf("size after purge = %d", svc.Size(ctx))
	}
	if store.entryCount(t, "journal") != 0 {
		t.Fatalf("persisted blob not cleared")
	}
}

func TestCorruptBlobStartsEmpty(t *testing.T) {
	store := newMemStore()
	store.SetWithTTL(context.Background(), "journal", []byte("{not json"), 0)
	svc := newTestJournal(t, store, 10)
	if svc.Size(context.Background()) != 0 {
		t.Fatalf("corrupt blob should yield an empty journal")
	}
}

func TestSubjectKeyFallbackChain(t *testing.T) {
	if got := SubjectKey("nick", "id", "1.2.3.4"); got != "nick" {
		t.Fatalf("got %q, want nickname", got)
	}
	if got := SubjectKey("", "id", "1.2.3.4"); got != "id" {
		t.Fatalf("got %q, want subject id", got)
	}
	if got := SubjectKey("", "", "1.2.3.4"); got != "1.2.3.4" {
		t.Fatalf("got %q, want origin", got)
	}
}
