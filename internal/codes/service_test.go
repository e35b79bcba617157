package codes

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/omaldonado/snapfield-backend/internal/ledger"
	pkgerrors "github.com/omaldonado/snapfield-backend/pkg/errors"
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

func testFixture(t *testing.T) (*Service, *ledger.Service) {
	t.Helper()
	store := newMemStore()
	logg := logger.New(logger.Options{ServiceName: "codes-test"})
	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		Store:    store,
		Logger:   logg,
		Defaults: ledger.QuotaConfig{NormalWeeklyLimit: 3, ProWeeklyLimit: 5},
	})
	if err != nil {
		t.Fatalf("construct ledger: %v", err)
	}
	svc, err := NewService(ServiceParams{
		Store:  store,
		Ledger: ledgerSvc,
		Logger: logg,
	})
	if err != nil {
		t.Fatalf("construct registry: %v", err)
	}
	return svc, ledgerSvc
}

func TestGenerateMintsPrefixedCodes(t *testing.T) {
	svc, _ := testFixture(t)
	ctx := context.Background()

	minted, err := svc.Generate(ctx, KindUnlimitedUpgrade, 0, 3, "launch batch")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(minted) != 3 {
		t.Fatalf("minted %d codes, want 3", len(minted))
	}
	seen := map[string]bool{}
	for _, code := range minted {
		if !strings.HasPrefix(code, "ULT-") {
			t.Fatalf("code %q missing ULT- prefix", code)
		}
		if seen[code] {
			t.Fatalf("duplicate code minted: %q", code)
		}
		seen[code] = true
	}

	listed := svc.List(ctx)
	if len(listed) != 3 {
		t.Fatalf("listed %d codes, want 3", len(listed))
	}
	if listed[0].Remark != "launch batch" {
		t.Fatalf("remark not carried: %q", listed[0].Remark)
	}
}

func TestGenerateRejectsBadInput(t *testing.T) {
	svc, _ := testFixture(t)
	ctx := context.Background()

	if _, err := svc.Generate(ctx, Kind("mystery"), 0, 1, ""); err == nil {
		t.Fatalf("unknown kind should be rejected")
	}
	if _, err := svc.Generate(ctx, KindGrant, 0, 1, ""); err == nil {
		t.Fatalf("grant with no amount should be rejected")
	}
	if _, err := svc.Generate(ctx, KindGrant, 5, 0, ""); err == nil {
		t.Fatalf("zero count should be rejected")
	}
	if _, err := svc.Generate(ctx, KindGrant, 5, 101, ""); err == nil {
		t.Fatalf("count over 100 should be rejected")
	}
}

func TestRedeemGrantAddsExtraQuota(t *testing.T) {
	svc, ledgerSvc := testFixture(t)
	ctx := context.Background()

	minted, err := svc.Generate(ctx, KindGrant, 7, 1, "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	effect, err := svc.Redeem(ctx, minted[0], "sub-1", "alice")
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if effect.Kind != KindGrant || effect.GrantAmount != 7 {
		t.Fatalf("unexpected effect: %+v", effect)
	}

	subjects := ledgerSvc.ListSubjects(ctx)
	if len(subjects) != 1 || subjects[0].ExtraQuota != 7 {
		t.Fatalf("extra quota not applied: %+v", subjects)
	}
	if subjects[0].Nickname != "alice" {
		t.Fatalf("nickname not recorded: %q", subjects[0].Nickname)
	}
}

func TestRedeemUpgradesTier(t *testing.T) {
	svc, ledgerSvc := testFixture(t)
	ctx := context.Background()

	pro, _ := svc.Generate(ctx, KindProUpgrade, 0, 1, "")
	ult, _ := svc.Generate(ctx, KindUnlimitedUpgrade, 0, 1, "")

	effect, err := svc.Redeem(ctx, pro[0], "sub-1", "")
	if err != nil {
		t.Fatalf("redeem pro: %v", err)
	}
	if effect.Tier != ledger.TierPro {
		t.Fatalf("pro effect tier = %q", effect.Tier)
	}

	effect, err = svc.Redeem(ctx, ult[0], "sub-1", "")
	if err != nil {
		t.Fatalf("redeem unlimited: %v", err)
	}
	if effect.Tier != ledger.TierUnlimited {
		t.Fatalf("unlimited effect tier = %q", effect.Tier)
	}

	subjects := ledgerSvc.ListSubjects(ctx)
	if subjects[0].Tier != ledger.TierUnlimited {
		t.Fatalf("subject tier = %q", subjects[0].Tier)
	}
}

func TestRedeemIsSingleUse(t *testing.T) {
	svc, _ := testFixture(t)
	ctx := context.Background()

	minted, _ := svc.Generate(ctx, KindGrant, 5, 1, "")
	if _, err := svc.Redeem(ctx, minted[0], "sub-1", ""); err != nil {
		t.Fatalf("first redeem: %v", err)
	}

	_, err := svc.Redeem(ctx, minted[0], "sub-2", "")
	if err == nil {
		t.Fatalf("second redeem should fail")
	}
	appErr := pkgerrors.As(err)
	if appErr == nil || appErr.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("second redeem error = %v, want not-found", err)
	}
}

func TestRedeemToleratesCaseSlips(t *testing.T) {
	svc, _ := testFixture(t)
	ctx := context.Background()

	minted, _ := svc.Generate(ctx, KindGrant, 5, 1, "")
	if _, err := svc.Redeem(ctx, strings.ToLower(minted[0]), "sub-1", ""); err != nil {
		t.Fatalf("lowercased redeem: %v", err)
	}
	if len(svc.List(ctx)) != 0 {
		t.Fatalf("code should be consumed after case-insensitive match")
	}
}

func TestRedeemValidatesInput(t *testing.T) {
	svc, _ := testFixture(t)
	ctx := context.Background()

	if _, err := svc.Redeem(ctx, "", "sub-1", ""); err == nil {
		t.Fatalf("empty code should be rejected")
	}
	if _, err := svc.Redeem(ctx, "GFT-SOMETHING", "", ""); err == nil {
		t.Fatalf("empty subject should be rejected")
	}
	if _, err := svc.Redeem(ctx, "GFT-NOTMINTED00", "sub-1", ""); err == nil {
		t.Fatalf("unknown code should be rejected")
	}
}

func TestDeleteAndRemark(t *testing.T) {
	svc, _ := testFixture(t)
	ctx := context.Background()

	minted, _ := svc.Generate(ctx, KindGrant, 5, 1, "")
	if err := svc.SetRemark(ctx, minted[0], "reserved"); err != nil {
		t.Fatalf("set remark: %v", err)
	}
	if got := svc.List(ctx)[0].Remark; got != "reserved" {
		t.Fatalf("remark = %q", got)
	}

	if err := svc.Delete(ctx, minted[0]); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.Delete(ctx, minted[0]); err == nil {
		t.Fatalf("second delete should report not found")
	}
	if len(svc.List(ctx)) != 0 {
		t.Fatalf("registry should be empty after delete")
	}
}

func TestRegistrySurvivesReload(t *testing.T) {
	store := newMemStore()
	logg := logger.New(logger.Options{ServiceName: "codes-test"})
	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{Store: store, Logger: logg})
	if err != nil {
		t.Fatalf("construct ledger: %v", err)
	}
	first, err := NewService(ServiceParams{Store: store, Ledger: ledgerSvc, Logger: logg})
	if err != nil {
		t.Fatalf("construct registry: %v", err)
	}
	minted, err := first.Generate(context.Background(), KindGrant, 5, 2, "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	// A new registry over the same store sees the minted codes.
	second, err := NewService(ServiceParams{Store: store, Ledger: ledgerSvc, Logger: logg})
	if err != nil {
		t.Fatalf("construct second registry: %v", err)
	}
	if len(second.List(context.Background())) != len(minted) {
		t.Fatalf("second registry does not see minted codes")
	}
}
