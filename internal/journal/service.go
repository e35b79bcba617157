package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/omaldonado/snapfield-backend/internal/geo"
	"github.com/omaldonado/snapfield-backend/pkg/logger"
	"github.com/omaldonado/snapfield-backend/pkg/metrics"
)

const journalKey = "journal"

// Event is one immutable usage record. Events are append-only; the journal
// is an audit trail, not a ledger, so FIFO eviction past the cap is fine.
type Event struct {
	ID            string        `json:"id"`
	Timestamp     time.Time     `json:"timestamp"`
	SubjectKey    string        `json:"subject_key"`
	Category      string        `json:"category"`
	NetworkOrigin string        `json:"network_origin,omitempty"`
	Geo           *geo.Location `json:"geo,omitempty"`
	ItemCount     int           `json:"item_count,omitempty"`

	// SubjectRunningCount is the subject's rolling total within the retained
	// window, recomputed at append time.
	SubjectRunningCount int `json:"subject_running_count,omitempty"`
}

// SubjectKey picks the display key for an event: nickname, else subject id,
// else the network origin.
func SubjectKey(nickname, subjectID, origin string) string {
	if nickname != "" {
		return nickname
	}
	if subjectID != "" {
		return subjectID
	}
	return origin
}

// Filter narrows a query page.
type Filter struct {
	SubjectKey string
	Category   string
}

// Aggregates summarize the retained window alongside a page.
type Aggregates struct {
	Total      int            `json:"total"`
	BySubject  map[string]int `json:"by_subject"`
	ByCategory map[string]int `json:"by_category"`
}

// Blobs is the persistence surface the journal needs.
type Blobs interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration)
}

// ServiceParams groups dependencies for the usage journal.
type ServiceParams struct {
	Store      Blobs
	Logger     *logger.Logger
	Metrics    *metrics.CoreMetrics
	MaxEntries int
	TTL        time.Duration
	Now        func() time.Time
}

// Service keeps a capped in-memory mirror of the journal, lazily rehydrated
// from persistence after start or an idle-triggered drop. The mutex doubles
// as the in-flight-initialization guard: concurrent first readers queue on
// it and find the mirror loaded.
type Service struct {
	store   Blobs
	logg    *logger.Logger
	metrics *metrics.CoreMetrics
	max     int
	ttl     time.Duration
	now     func() time.Time

	mu      sync.Mutex
	loaded  bool
	entries []Event
	seq     uint64
}

// NewService builds a usage journal.
func NewService(params ServiceParams) (*Service, error) {
	if params.Store == nil {
		return nil, errors.New("store is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	max := params.MaxEntries
	if max <= 0 {
		max = 200
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = 21 * 24 * time.Hour
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:   params.Store,
		logg:    params.Logger,
		metrics: params.Metrics,
		max:     max,
		ttl:     ttl,
		now:     now,
	}, nil
}

// Append records one admitted operation and returns its id. The persisted
// blob write happens asynchronously; a lost write costs analytics, not
// correctness, so it is logged and swallowed.
func (s *Service) Append(ctx context.Context, event Event) string {
	s.mu.Lock()
	s.ensureLoadedLocked(ctx)

	ts := s.now().UTC()
	if event.Timestamp.IsZero() {
		event.Timestamp = ts
	}
	s.seq++
	event.ID = fmt.Sprintf("%020d-%06d", ts.UnixNano(), s.seq)

	// O(size) rescan for the subject's rolling total; size is capped.
	running := 1
	for _, e := range s.entries {
		if e.SubjectKey == event.SubjectKey {
			running++
		}
	}
	event.SubjectRunningCount = running

	s.entries = append(s.entries, event)
	if overflow := len(s.entries) - s.max; overflow > 0 {
		s.entries = append([]Event(nil), s.entries[overflow:]...)
	}
	s.metrics.SetJournalSize(len(s.entries))

	snapshot := make([]Event, len(s.entries))
	copy(snapshot, s.entries)
	s.mu.Unlock()

	go s.persist(context.WithoutCancel(ctx), snapshot)
	return event.ID
}

// QueryPage returns a newest-first page plus aggregates over the whole
// retained window.
func (s *Service) QueryPage(ctx context.Context, filter Filter, page, pageSize int) ([]Event, Aggregates) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked(ctx)

	agg := Aggregates{
		BySubject:  map[string]int{},
		ByCategory: map[string]int{},
	}
	matched := make([]Event, 0, len(s.entries))
	for _, e := range s.entries {
		agg.Total++
		agg.BySubject[e.SubjectKey]++
		agg.ByCategory[e.Category]++
		if filter.SubjectKey != "" && e.SubjectKey != filter.SubjectKey {
			continue
		}
		if filter.Category != "" && e.Category != filter.Category {
			continue
		}
		matched = append(matched, e)
	}

	// Mirror order is oldest-first; pages read newest-first.
	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}

	start := (page - 1) * pageSize
	if start >= len(matched) {
		return []Event{}, agg
	}
	end := min(start+pageSize, len(matched))
	out := make([]Event, end-start)
	copy(out, matched[start:end])
	return out, agg
}

// Purge clears memory and the persisted blob, returning the prior count.
func (s *Service) Purge(ctx context.Context) int {
	s.mu.Lock()
	s.ensureLoadedLocked(ctx)
	count := len(s.entries)
	s.entries = nil
	s.loaded = true
	s.metrics.SetJournalSize(0)
	s.mu.Unlock()

	s.persist(ctx, []Event{})
	return count
}

// Size returns the retained entry count, loading the mirror if needed.
func (s *Service) Size(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked(ctx)
	return len(s.entries)
}

// Loaded reports whether the mirror is resident.
func (s *Service) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Name implements the reclaimable contract.
func (s *Service) Name() string { return "journal_mirror" }

// Reclaim drops the in-memory mirror; the next access rehydrates it from
// persistence. Idempotent.
func (s *Service) Reclaim() error {
	s.mu.Lock()
	s.loaded = false
	s.entries = nil
	s.mu.Unlock()
	return nil
}

func (s *Service) ensureLoadedLocked(ctx context.Context) {
	if s.loaded {
		return
	}
	s.loaded = true
	data, ok := s.store.Get(ctx, journalKey)
	if !ok {
		return
	}
	var entries []Event
	if err := json.Unmarshal(data, &entries); err != nil {
		s.logg.Warn(ctx, "journal.blob_corrupt")
		return
	}
	if overflow := len(entries) - s.max; overflow > 0 {
		entries = entries[overflow:]
	}
	s.entries = entries
	s.metrics.SetJournalSize(len(s.entries))
}

func (s *Service) persist(ctx context.Context, entries []Event) {
	data, err := json.Marshal(entries)
	if err != nil {
		s.logg.Error(ctx, "journal.marshal_failed", err)
		return
	}
	s.store.SetWithTTL(ctx, journalKey, data, s.ttl)
}
