package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/omaldonado/snapfield-backend/pkg/logger"
)

type fakeBlobs struct {
	mu    sync.Mutex
	data  map[string][]byte
	drops bool
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{data: map[string][]byte{}}
}

func (f *fakeBlobs) Get(_ context.Context, key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	val, ok := f.data[key]
	return val, ok
}

func (f *fakeBlobs) SetWithTTL(_ context.Context, key string, value []byte, _ time.Duration) {
	if f.drops {
		return
	}
	f.mu.Lock()
	f.data[key] = value
	f.mu.Unlock()
}

func testService(t *testing.T, store *fakeBlobs, now *time.Time) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Store:    store,
		Logger:   logger.New(logger.Options{ServiceName: "ledger-test"}),
		Defaults: QuotaConfig{NormalWeeklyLimit: 3, ProWeeklyLimit: 5},
		Now:      func() time.Time { return *now },
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	return svc
}

func TestAnonymousCallerIsAllowedUnmetered(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := testService(t, newFakeBlobs(), &now)

	dec := svc.CheckAndConsume(context.Background(), "", "")
	if !dec.Allowed {
		t.Fatalf("anonymous caller should be allowed")
	}
	if dec.Remaining != 1 {
		t.Fatalf("anonymous remaining = %d, want 1", dec.Remaining)
	}
	if len(svc.ListSubjects(context.Background())) != 0 {
		t.Fatalf("anonymous call must not create a subject")
	}
}

func TestWeeklyLimitThenDeny(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := testService(t, newFakeBlobs(), &now)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		dec := svc.CheckAndConsume(ctx, "sub-1", "alice")
		if !dec.Allowed {
			t.Fatalf("call %d should be allowed", i+1)
		}
		if dec.Remaining != 3-i-1 {
			t.Fatalf("call %d remaining = %d, want %d", i+1, dec.Remaining, 3-i-1)
		}
	}

	dec := svc.CheckAndConsume(ctx, "sub-1", "alice")
	if dec.Allowed {
		t.Fatalf("4th call should be denied")
	}
	if dec.Reason != ReasonQuotaExceeded {
		t.Fatalf("reason = %q, want %q", dec.Reason, ReasonQuotaExceeded)
	}
	if dec.Remaining != 0 {
		t.Fatalf("denied remaining = %d, want 0", dec.Remaining)
	}
}

func TestExtraQuotaExactDrawdown(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := testService(t, newFakeBlobs(), &now)
	ctx := context.Background()

	for _i := 0; _i < 3; _i++ {
		svc.CheckAndConsume(ctx, "sub-1", "")
	}
	if err := svc.AddExtraQuota(ctx, "sub-1", 2); err != nil {
		t.Fatalf("add extra quota: %v", err)
	}

	for i := 0; i < 2; i++ {
		dec := svc.CheckAndConsume(ctx, "sub-1", "")
		if !dec.Allowed {
			t.Fatalf("extra call %d should be allowed", i+1)
		}
		if dec.Remaining != 2-i-1 {
			t.Fatalf("extra call %d remaining = %d, want %d", i+1, dec.Remaining, 2-i-1)
		}
	}
	if dec := svc.CheckAndConsume(ctx, "sub-1", ""); dec.Allowed {
		t.Fatalf("call after extra quota exhausted should be denied")
	}
}

func TestWeeklyRolloverResetsUsage(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := testService(t, newFakeBlobs(), &now)
	ctx := context.Background()

	for _i := 0; _i < 3; _i++ {
		svc.CheckAndConsume(ctx, "sub-1", "")
	}
	if dec := svc.CheckAndConsume(ctx, "sub-1", ""); dec.Allowed {
		t.Fatalf("should be denied before rollover")
	}

	now = now.AddDate(0, 0, 7)
	subjects := svc.ListSubjects(ctx)
	if len(subjects) != 1 {
		t.Fatalf("expected 1 subject, got %d", len(subjects))
	}
	if subjects[0].WeeklyUsage != 0 {
		t.Fatalf("effective weekly usage after rollover = %d, want 0", subjects[0].WeeklyUsage)
	}

	dec := svc.CheckAndConsume(ctx, "sub-1", "")
	if !dec.Allowed {
		t.Fatalf("first call of new week should be allowed")
	}
	if dec.Remaining != 2 {
		t.Fatalf("remaining in new week = %d, want 2", dec.Remaining)
	}
}

func TestUnlimitedTierAlwaysAllowed(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := testService(t, newFakeBlobs(), &now)
	ctx := context.Background()

	if err := svc.SetTier(ctx, "vip", TierUnlimited); err != nil {
		t.Fatalf("set tier: %v", err)
	}

	lastTotal := 0
	for i := 0; i < 20; i++ {
		dec := svc.CheckAndConsume(ctx, "vip", "")
		if !dec.Allowed {
			t.Fatalf("unlimited call %d denied", i+1)
		}
		if dec.Remaining != UnlimitedRemaining {
			t.Fatalf("unlimited remaining = %d", dec.Remaining)
		}
		subjects := svc.ListSubjects(ctx)
		if subjects[0].TotalUsage <= lastTotal {
			t.Fatalf("total usage not strictly increasing: %d then %d", lastTotal, subjects[0].TotalUsage)
		}
		lastTotal = subjects[0].TotalUsage
	}
}

func TestProTierUsesProLimit(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := testService(t, newFakeBlobs(), &now)
	ctx := context.Background()

	if err := svc.SetTier(ctx, "pro-1", TierPro); err != nil {
		t.Fatalf("set tier: %v", err)
	}
	for i := 0; i < 5; i++ {
		if dec := svc.CheckAndConsume(ctx, "pro-1", ""); !dec.Allowed {
			t.Fatalf("pro call %d denied", i+1)
		}
	}
	if dec := svc.CheckAndConsume(ctx, "pro-1", ""); dec.Allowed {
		t.Fatalf("pro call over limit should be denied")
	}
}

func TestPersistenceLossStillReturnsDecision(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	store := newFakeBlobs()
	store.drops = true
	svc := testService(t, store, &now)

	dec := svc.CheckAndConsume(context.Background(), "sub-1", "")
	if !dec.Allowed {
		t.Fatalf("decision must stand even when the write is lost")
	}
}

func TestUpdateConfigBounds(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := testService(t, newFakeBlobs(), &now)
	ctx := context.Background()

	if err := svc.UpdateConfig(ctx, QuotaConfig{NormalWeeklyLimit: 0, ProWeeklyLimit: 5}); err == nil {
		t.Fatalf("zero limit should be rejected")
	}
	if err := svc.UpdateConfig(ctx, QuotaConfig{NormalWeeklyLimit: 5, ProWeeklyLimit: 200001}); err == nil {
		t.Fatalf("oversized limit should be rejected")
	}
	if err := svc.UpdateConfig(ctx, QuotaConfig{NormalWeeklyLimit: 7, ProWeeklyLimit: 70}); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	cfg := svc.Config(ctx)
	if cfg.NormalWeeklyLimit != 7 || cfg.ProWeeklyLimit != 70 {
		t.Fatalf("config not applied: %+v", cfg)
	}
}

func TestPurgeSubject(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := testService(t, newFakeBlobs(), &now)
	ctx := context.Background()

	svc.CheckAndConsume(ctx, "sub-1", "")
	if err := svc.PurgeSubject(ctx, "sub-1"); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if err := svc.PurgeSubject(ctx, "sub-1"); err == nil {
		t.Fatalf("second purge should report not found")
	}
}

func TestSetRemarkAndNicknamePersist(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := testService(t, newFakeBlobs(), &now)
	ctx := context.Background()

	svc.CheckAndConsume(ctx, "sub-1", "alice")
	if err := svc.SetRemark(ctx, "sub-1", "beta tester"); err != nil {
		t.Fatalf("set remark: %v", err)
	}
	subjects := svc.ListSubjects(ctx)
	if subjects[0].Remark != "beta tester" {
		t.Fatalf("remark = %q", subjects[0].Remark)
	}
	if subjects[0].Nickname != "alice" {
		t.Fatalf("nickname = %q", subjects[0].Nickname)
	}
}
