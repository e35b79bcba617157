package codes

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/omaldonado/snapfield-backend/internal/ledger"
	pkgerrors "github.com/omaldonado/snapfield-backend/pkg/errors"
	"github.com/omaldonado/snapfield-backend/pkg/logger"
)

const registryKey = "codes"

// Kind classifies what a redemption code does to the subject.
type Kind string

const (
	KindGrant            Kind = "grant"
	KindProUpgrade       Kind = "pro-upgrade"
	KindUnlimitedUpgrade Kind = "unlimited-upgrade"
)

// Valid reports whether the kind is one of the known code kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindGrant, KindProUpgrade, KindUnlimitedUpgrade:
		return true
	}
	return false
}

// RedemptionCode exists in the registry only while unredeemed; redemption
// deletes it, which is what enforces single use.
type RedemptionCode struct {
	Code        string    `json:"code"`
	Kind        Kind      `json:"kind"`
	GrantAmount int       `json:"grant_amount,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Remark      string    `json:"remark,omitempty"`
}

// Effect reports what a successful redemption did.
type Effect struct {
	Kind        Kind        `json:"kind"`
	GrantAmount int         `json:"grant_amount,omitempty"`
	Tier        ledger.Tier `json:"tier,omitempty"`
}

// Blobs is the persistence surface the registry needs.
type Blobs interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration)
}

// ServiceParams groups dependencies for the redemption registry.
type ServiceParams struct {
	Store  Blobs
	Ledger *ledger.Service
	Logger *logger.Logger
	TTL    time.Duration
	Now    func() time.Time
}

// Service mints and redeems single-use codes. All registry mutations are
// serialized by mu, so two near-simultaneous redemptions of the same code
// cannot both observe it present.
type Service struct {
	store  Blobs
	ledger *ledger.Service
	logg   *logger.Logger
	ttl    time.Duration
	now    func() time.Time

	mu sync.Mutex
}

// NewService builds a redemption code registry.
func NewService(params ServiceParams) (*Service, error) {
	if params.Store == nil {
		return nil, errors.New("store is required")
	}
	if params.Ledger == nil {
		return nil, errors.New("ledger is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &Service{
		store:  params.Store,
		ledger: params.Ledger,
		logg:   params.Logger,
		ttl:    ttl,
		now:    now,
	}, nil
}

// Generate mints count unique codes of the requested kind. The prefix is
// cosmetic; uniqueness comes from the random token.
func (s *Service) Generate(ctx context.Context, kind Kind, amount, count int, remark string) ([]string, error) {
	if !kind.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown code kind")
	}
	if kind == KindGrant && amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "grant amount must be positive")
	}
	if count <= 0 || count > 100 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "count must be between 1 and 100")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	registry := s.loadRegistry(ctx)
	minted := make([]string, 0, count)
	for _i := 0; _i < count; _i++ {
		code := mintCode(kind)
		for registry[code] != nil {
			code = mintCode(kind)
		}
		entry := &RedemptionCode{
			Code:      code,
			Kind:      kind,
			CreatedAt: s.now().UTC(),
			Remark:    remark,
		}
		if kind == KindGrant {
			entry.GrantAmount = amount
		}
		registry[code] = entry
		minted = append(minted, code)
	}
	s.persistRegistry(ctx, registry)
	return minted, nil
}

// Redeem consumes the code and applies its effect to the subject. The lookup
// tolerates manual transcription by retrying upper- and lower-cased. A code
// missing from the registry has already been consumed.
func (s *Service) Redeem(ctx context.Context, code, subjectID, nickname string) (Effect, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Effect{}, pkgerrors.New(pkgerrors.CodeValidation, "code required")
	}
	if strings.TrimSpace(subjectID) == "" {
		return Effect{}, pkgerrors.New(pkgerrors.CodeValidation, "subject id required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	registry := s.loadRegistry(ctx)
	entry := registry[code]
	if entry == nil {
		entry = registry[strings.ToUpper(code)]
	}
	if entry == nil {
		entry = registry[strings.ToLower(code)]
	}
	if entry == nil {
		return Effect{}, pkgerrors.New(pkgerrors.CodeNotFound, "code not found")
	}

	effect := Effect{Kind: entry.Kind, GrantAmount: entry.GrantAmount}
	var err error
	switch entry.Kind {
	case KindUnlimitedUpgrade:
		effect.Tier = ledger.TierUnlimited
		err = s.ledger.MutateSubject(ctx, subjectID, nickname, func(sub *ledger.Subject) {
			sub.Tier = ledger.TierUnlimited
		})
	case KindProUpgrade:
		effect.Tier = ledger.TierPro
		err = s.ledger.MutateSubject(ctx, subjectID, nickname, func(sub *ledger.Subject) {
			sub.Tier = ledger.TierPro
		})
	case KindGrant:
		amount := entry.GrantAmount
		err = s.ledger.MutateSubject(ctx, subjectID, nickname, func(sub *ledger.Subject) {
			sub.ExtraQuota += amount
		})
	default:
		err = pkgerrors.New(pkgerrors.CodeInternal, "registry holds code of unknown kind")
	}
	if err != nil {
		return Effect{}, err
	}

	// Both writes go out together; the registry delete is what makes the
	// code single-use even if the remote store later loses one of them.
	delete(registry, entry.Code)
	s.persistRegistry(ctx, registry)
	return effect, nil
}

// Delete removes an unredeemed code.
func (s *Service) Delete(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "code required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	registry := s.loadRegistry(ctx)
	if registry[code] == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "code not found")
	}
	delete(registry, code)
	s.persistRegistry(ctx, registry)
	return nil
}

// SetRemark updates the operator note on an unredeemed code.
func (s *Service) SetRemark(ctx context.Context, code, remark string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "code required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	registry := s.loadRegistry(ctx)
	entry := registry[code]
	if entry == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "code not found")
	}
	entry.Remark = remark
	s.persistRegistry(ctx, registry)
	return nil
}

// List returns every unredeemed code, newest first.
func (s *Service) List(ctx context.Context) []RedemptionCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	registry := s.loadRegistry(ctx)
	out := make([]RedemptionCode, 0, len(registry))
	for _, entry := range registry {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Code < out[j].Code
	})
	return out
}

func (s *Service) loadRegistry(ctx context.Context) map[string]*RedemptionCode {
	data, ok := s.store.Get(ctx, registryKey)
	if !ok {
		return map[string]*RedemptionCode{}
	}
	var registry map[string]*RedemptionCode
	if err := json.Unmarshal(data, &registry); err != nil || registry == nil {
		s.logg.Warn(ctx, "codes.registry_blob_corrupt")
		return map[string]*RedemptionCode{}
	}
	return registry
}

func (s *Service) persistRegistry(ctx context.Context, registry map[string]*RedemptionCode) {
	data, err := json.Marshal(registry)
	if err != nil {
		s.logg.Error(ctx, "codes.marshal_registry_failed", err)
		return
	}
	s.store.SetWithTTL(ctx, registryKey, data, s.ttl)
}

func mintCode(kind Kind) string {
	token := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:12]
	switch kind {
	case KindUnlimitedUpgrade:
		return "ULT-" + token
	case KindProUpgrade:
		return "PRO-" + token
	default:
		return "GFT-" + token
	}
}
