package reclaim

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"github.com/omaldonado/snapfield-backend/pkg/logger"
	"github.com/omaldonado/snapfield-backend/pkg/metrics"
	"go.uber.org/multierr"
)

// State is the reclaimer's position in its idle ladder.
type State int

const (
	StateActive State = iota
	StateLightlyReclaimed
	StateDeeplyReclaimed
)

func (s State) String() string {
	switch s {
	case StateLightlyReclaimed:
		return "lightly_reclaimed"
	case StateDeeplyReclaimed:
		return "deeply_reclaimed"
	default:
		return "active"
	}
}

// ServiceParams configure the idle reclaimer.
type ServiceParams struct {
	Logger       *logger.Logger
	Tracker      *Tracker
	Registry     *Registry
	Metrics      *metrics.CoreMetrics
	TickInterval time.Duration
	LightIdle    time.Duration
	DeepIdle     time.Duration
	// GCHint runs after a deep reclaim; defaults to debug.FreeOSMemory.
	GCHint func()
}

// Service periodically inspects idle time and tiers down rebuildable caches.
// It never touches ledger or registry state, only derived caches.
type Service struct {
	logg     *logger.Logger
	tracker  *Tracker
	registry *Registry
	metrics  *metrics.CoreMetrics
	tick     time.Duration
	light    time.Duration
	deep     time.Duration
	gcHint   func()

	state State
}

// NewService builds an idle reclaimer.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Tracker == nil {
		return nil, errors.New("tracker required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	tick := params.TickInterval
	if tick <= 0 {
		tick = 2 * time.Minute
	}
	light := params.LightIdle
	if light <= 0 {
		light = 2 * time.Minute
	}
	deep := params.DeepIdle
	if deep <= light {
		deep = light + 3*time.Minute
	}
	gcHint := params.GCHint
	if gcHint == nil {
		gcHint = debug.FreeOSMemory
	}
	return &Service{
		logg:     params.Logger,
		tracker:  params.Tracker,
		registry: registry,
		metrics:  params.Metrics,
		tick:     tick,
		light:    light,
		deep:     deep,
		gcHint:   gcHint,
	}, nil
}

// Run ticks until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "reclaimer context canceled")
			return ctx.Err()
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

// runCycle advances the state machine for the current idle time. Reclaiming
// an already-clean tier is harmless, so transitions only ever add work.
func (s *Service) runCycle(ctx context.Context) {
	idle := s.tracker.IdleFor()

	switch {
	case idle >= s.deep:
		if s.state == StateDeeplyReclaimed {
			return
		}
		if s.state == StateActive {
			s.reclaimTier(ctx, "light", s.registry.Light())
		}
		s.reclaimTier(ctx, "deep", s.registry.Deep())
		s.gcHint()
		s.state = StateDeeplyReclaimed
	case idle >= s.light:
		if s.state != StateActive {
			return
		}
		s.reclaimTier(ctx, "light", s.registry.Light())
		s.state = StateLightlyReclaimed
	default:
		if s.state != StateActive {
			s.logg.Debug(ctx, "reclaimer back to active")
		}
		s.state = StateActive
	}
}

func (s *Service) reclaimTier(ctx context.Context, tier string, targets []Reclaimable) {
	start := time.Now()
	var errs error
	for _, target := range targets {
		if err := target.Reclaim(); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	duration := time.Since(start)
	s.metrics.ObserveReclaim(tier, duration)
	tierCtx := s.logg.WithFields(ctx, map[string]any{
		"tier":        tier,
		"targets":     len(targets),
		"duration_ms": duration.Milliseconds(),
	})
	if errs != nil {
		s.logg.Error(tierCtx, "reclaim tier completed with errors", errs)
		return
	}
	s.logg.Info(tierCtx, "reclaim tier completed")
}

// StateNow reports the current ladder position.
func (s *Service) StateNow() State {
	return s.state
}
