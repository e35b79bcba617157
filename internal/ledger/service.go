package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/omaldonado/snapfield-backend/pkg/errors"
	"github.com/omaldonado/snapfield-backend/pkg/logger"
	"github.com/omaldonado/snapfield-backend/pkg/metrics"
)

const (
	subjectsKey = "subjects"
	configKey   = "quota_config"

	// Administrative limit updates must stay inside this range.
	maxConfigurableLimit = 100000
)

// Blobs is the persistence surface the ledger needs: whole-collection reads
// and best-effort writes.
type Blobs interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration)
}

// ServiceParams groups dependencies for the quota ledger.
type ServiceParams struct {
	Store    Blobs
	Logger   *logger.Logger
	Metrics  *metrics.CoreMetrics
	Defaults QuotaConfig
	TTL      time.Duration
	Now      func() time.Time
}

// Service owns the subject entitlement state and the admission decision.
// Every mutation is a whole-blob read-modify-write serialized by mu, so two
// concurrent consumptions by the same subject cannot double-grant a week.
type Service struct {
	store    Blobs
	logg     *logger.Logger
	metrics  *metrics.CoreMetrics
	defaults QuotaConfig
	ttl      time.Duration
	now      func() time.Time

	mu    sync.Mutex // serializes subjects-blob mutations
	cfgMu sync.Mutex // serializes config-blob mutations
}

// NewService builds a quota ledger service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Store == nil {
		return nil, errors.New("store is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Defaults.NormalWeeklyLimit <= 0 {
		params.Defaults.NormalWeeklyLimit = 10
	}
	if params.Defaults.ProWeeklyLimit <= 0 {
		params.Defaults.ProWeeklyLimit = 50
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
		store:    params.Store,
		logg:     params.Logger,
		metrics:  params.Metrics,
		defaults: params.Defaults,
		ttl:      ttl,
		now:      now,
	}, nil
}

// CheckAndConsume decides whether the subject may perform one metered
// operation and consumes the entitlement if so. Callers without a subject id
// are allowed unmetered.
func (s *Service) CheckAndConsume(ctx context.Context, subjectID, nickname string) Decision {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		s.metrics.IncQuotaDecision("anonymous")
		return Decision{Allowed: true, Reason: ReasonAnonymous, Remaining: 1, Tier: TierNormal}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	subjects := s.loadSubjects(ctx)
	sub := s.subjectFor(subjects, subjectID, nickname)
	cfg := s.Config(ctx)

	if sub.Tier == TierUnlimited {
		sub.TotalUsage++
		s.persistSubjects(ctx, subjects)
		s.metrics.IncQuotaDecision("allowed")
		return Decision{Allowed: true, Remaining: UnlimitedRemaining, Tier: TierUnlimited}
	}

	week := WeekLabel(s.now())
	if sub.WeekID != week {
		sub.WeeklyUsage = 0
		sub.WeekID = week
	}

	limit := cfg.LimitFor(sub.Tier)
	if sub.WeeklyUsage < limit {
		sub.WeeklyUsage++
		sub.TotalUsage++
		s.persistSubjects(ctx, subjects)
		s.metrics.IncQuotaDecision("allowed")
		return Decision{Allowed: true, Remaining: limit - sub.WeeklyUsage, Tier: sub.Tier}
	}

	if sub.ExtraQuota > 0 {
		sub.ExtraQuota--
		sub.TotalUsage++
		s.persistSubjects(ctx, subjects)
		s.metrics.IncQuotaDecision("allowed")
		return Decision{Allowed: true, Remaining: sub.ExtraQuota, Tier: sub.Tier}
	}

	s.metrics.IncQuotaDecision("denied")
	return Decision{Allowed: false, Reason: ReasonQuotaExceeded, Remaining: 0, Tier: sub.Tier}
}

// SetTier sets the subject's entitlement class directly.
func (s *Service) SetTier(ctx context.Context, subjectID string, tier Tier) error {
	if !tier.Valid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown tier")
	}
	return s.mutateSubject(ctx, subjectID, func(sub *Subject) {
		sub.Tier = tier
	})
}

// AddExtraQuota grants a one-time, non-expiring balance to the subject.
func (s *Service) AddExtraQuota(ctx context.Context, subjectID string, amount int) error {
	if amount <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	return s.mutateSubject(ctx, subjectID, func(sub *Subject) {
		sub.ExtraQuota += amount
	})
}

// SetRemark attaches an operator note to the subject.
func (s *Service) SetRemark(ctx context.Context, subjectID, remark string) error {
	return s.mutateSubject(ctx, subjectID, func(sub *Subject) {
		sub.Remark = remark
	})
}

// PurgeSubject removes the subject row entirely.
func (s *Service) PurgeSubject(ctx context.Context, subjectID string) error {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "subject id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	subjects := s.loadSubjects(ctx)
	if _, ok := subjects[subjectID]; !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "subject not found")
	}
	delete(subjects, subjectID)
	s.persistSubjects(ctx, subjects)
	return nil
}

// ListSubjects returns every subject with its effective weekly usage: rows
// whose stored week label is stale report zero instead of the stale counter.
func (s *Service) ListSubjects(ctx context.Context) []Subject {
	s.mu.Lock()
	defer s.mu.Unlock()
	subjects := s.loadSubjects(ctx)
	week := WeekLabel(s.now())
	out := make([]Subject, 0, len(subjects))
	for _, sub := range subjects {
		row := *sub
		if row.WeekID != week {
			row.WeeklyUsage = 0
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalUsage != out[j].TotalUsage {
			return out[i].TotalUsage > out[j].TotalUsage
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Config returns the effective quota configuration.
func (s *Service) Config(ctx context.Context) QuotaConfig {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	data, ok := s.store.Get(ctx, configKey)
	if !ok {
		return s.defaults
	}
	var cfg QuotaConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		s.logg.Warn(ctx, "ledger.config_blob_corrupt")
		return s.defaults
	}
	if cfg.NormalWeeklyLimit <= 0 {
		cfg.NormalWeeklyLimit = s.defaults.NormalWeeklyLimit
	}
	if cfg.ProWeeklyLimit <= 0 {
		cfg.ProWeeklyLimit = s.defaults.ProWeeklyLimit
	}
	return cfg
}

// UpdateConfig replaces the global weekly limits, bounds-checked.
func (s *Service) UpdateConfig(ctx context.Context, cfg QuotaConfig) error {
	if cfg.NormalWeeklyLimit <= 0 || cfg.NormalWeeklyLimit > maxConfigurableLimit {
		return pkgerrors.New(pkgerrors.CodeValidation, "normal weekly limit out of range")
	}
	if cfg.ProWeeklyLimit <= 0 || cfg.ProWeeklyLimit > maxConfigurableLimit {
		return pkgerrors.New(pkgerrors.CodeValidation, "pro weekly limit out of range")
	}
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	data, err := json.Marshal(cfg)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal quota config")
	}
	s.store.SetWithTTL(ctx, configKey, data, s.ttl)
	return nil
}

// MutateSubject applies fn to the subject row under the ledger lock. Used by
// the redemption registry so a code's effect and its consumption stay in one
// serialized critical section per collection.
func (s *Service) MutateSubject(ctx context.Context, subjectID, nickname string, fn func(*Subject)) error {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "subject id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	subjects := s.loadSubjects(ctx)
	sub := s.subjectFor(subjects, subjectID, nickname)
	fn(sub)
	s.persistSubjects(ctx, subjects)
	return nil
}

func (s *Service) mutateSubject(ctx context.Context, subjectID string, fn func(*Subject)) error {
	return s.MutateSubject(ctx, subjectID, "", fn)
}

func (s *Service) subjectFor(subjects map[string]*Subject, subjectID, nickname string) *Subject {
	sub, ok := subjects[subjectID]
	if !ok {
		sub = &Subject{
			ID:        subjectID,
			Tier:      TierNormal,
			WeekID:    WeekLabel(s.now()),
			CreatedAt: s.now().UTC(),
		}
		subjects[subjectID] = sub
	}
	if nickname = strings.TrimSpace(nickname); nickname != "" {
		sub.Nickname = nickname
	}
	if !sub.Tier.Valid() {
		sub.Tier = TierNormal
	}
	return sub
}

func (s *Service) loadSubjects(ctx context.Context) map[string]*Subject {
	data, ok := s.store.Get(ctx, subjectsKey)
	if !ok {
		return map[string]*Subject{}
	}
	var subjects map[string]*Subject
	if err := json.Unmarshal(data, &subjects); err != nil || subjects == nil {
		s.logg.Warn(ctx, "ledger.subjects_blob_corrupt")
		return map[string]*Subject{}
	}
	return subjects
}

// persistSubjects writes the whole collection. A write the facade could not
// land anywhere is already logged there; the in-memory decision stands.
func (s *Service) persistSubjects(ctx context.Context, subjects map[string]*Subject) {
	data, err := json.Marshal(subjects)
	if err != nil {
		s.logg.Error(ctx, "ledger.marshal_subjects_failed", err)
		return
	}
	s.store.SetWithTTL(ctx, subjectsKey, data, s.ttl)
}
