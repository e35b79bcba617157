package extraction

import (
	"context"
	"errors"
	"time"

	"github.com/omaldonado/snapfield-backend/internal/gate"
	"github.com/omaldonado/snapfield-backend/internal/geo"
	"github.com/omaldonado/snapfield-backend/internal/journal"
	"github.com/omaldonado/snapfield-backend/internal/ledger"
	"github.com/omaldonado/snapfield-backend/internal/reclaim"
	"github.com/omaldonado/snapfield-backend/internal/vision"
	pkgerrors "github.com/omaldonado/snapfield-backend/pkg/errors"
	"github.com/omaldonado/snapfield-backend/pkg/logger"
)

const categoryExtract = "extract"

// Request is one inbound metered extraction.
type Request struct {
	SubjectID string
	Nickname  string
	Origin    string
	ImageURL  string
	ImageData []byte
	Hint      string
}

// Result pairs the extracted record with the quota decision that admitted it.
type Result struct {
	Record   *vision.Record  `json:"record"`
	Decision ledger.Decision `json:"decision"`
}

// ServiceParams groups dependencies for the extraction orchestrator.
type ServiceParams struct {
	Ledger      *ledger.Service
	Gate        *gate.Gate
	Journal     *journal.Service
	Geo         geo.Resolver
	Extractor   vision.Extractor
	Tracker     *reclaim.Tracker
	Logger      *logger.Logger
	WaitTimeout time.Duration
}

// Service runs the admitted-operation pipeline: quota check, gate slot,
// external call, guaranteed release, journal append.
type Service struct {
	ledger      *ledger.Service
	gate        *gate.Gate
	journal     *journal.Service
	geo         geo.Resolver
	extractor   vision.Extractor
	tracker     *reclaim.Tracker
	logg        *logger.Logger
	waitTimeout time.Duration
}

// NewService builds the extraction orchestrator.
func NewService(params ServiceParams) (*Service, error) {
	if params.Ledger == nil {
		return nil, errors.New("ledger is required")
	}
	if params.Gate == nil {
		return nil, errors.New("gate is required")
	}
	if params.Journal == nil {
		return nil, errors.New("journal is required")
	}
	if params.Extractor == nil {
		return nil, errors.New("extractor is required")
	}
	if params.Tracker == nil {
		return nil, errors.New("tracker is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	waitTimeout := params.WaitTimeout
	if waitTimeout <= 0 {
		waitTimeout = 90 * time.Second
	}
	return &Service{
		ledger:      params.Ledger,
		gate:        params.Gate,
		journal:     params.Journal,
		geo:         params.Geo,
		extractor:   params.Extractor,
		tracker:     params.Tracker,
		logg:        params.Logger,
		waitTimeout: waitTimeout,
	}, nil
}

// Extract performs one metered operation end to end.
func (s *Service) Extract(ctx context.Context, req Request) (*Result, error) {
	decision := s.ledger.CheckAndConsume(ctx, req.SubjectID, req.Nickname)
	if !decision.Allowed {
		return nil, pkgerrors.New(pkgerrors.CodeQuotaExceeded, "weekly quota exhausted").
			WithDetails(map[string]any{"remaining": decision.Remaining, "tier": decision.Tier})
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.waitTimeout)
	defer cancel()
	if err := s.gate.Acquire(waitCtx); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateTimeout, err, "no admission slot available")
	}
	defer s.gate.Release()

	s.tracker.Touch()

	record, err := s.extractor.Extract(ctx, vision.Request{
		ImageURL:  req.ImageURL,
		ImageData: req.ImageData,
		Hint:      req.Hint,
	})
	s.tracker.Touch()
	if err != nil {
		return nil, err
	}

	s.appendEvent(ctx, req, record)

	return &Result{Record: record, Decision: decision}, nil
}

func (s *Service) appendEvent(ctx context.Context, req Request, record *vision.Record) {
	event := journal.Event{
		SubjectKey:    journal.SubjectKey(req.Nickname, req.SubjectID, req.Origin),
		Category:      categoryExtract,
		NetworkOrigin: req.Origin,
		ItemCount:     record.ItemCount,
	}
	if s.geo != nil {
		if loc, err := s.geo.Lookup(ctx, req.Origin); err == nil && !loc.Empty() {
			event.Geo = &loc
		}
	}
	s.journal.Append(ctx, event)
}
