package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"visit-recorder/internal/domain"
	"visit-recorder/internal/metrics"
	"visit-recorder/internal/repository"
)

// Cache stores rendered export pages
type Cache interface {
	// GetExport also returns the cache generation the lookup used
	GetExport(ctx context.Context, limit, offset int) ([]*domain.Visit, int64, error)
	SetExport(ctx context.Context, generation int64, limit, offset int, visits []*domain.Visit) error
	Invalidate(ctx context.Context) error
}

// AuditLog receives one entry per stored visit
type AuditLog interface {
	Append(v *domain.Visit) error
}

// Options controls how visits are recorded
type Options struct {
	// AnonymizeIP truncates client addresses before they are stored
	AnonymizeIP bool
	// EnsureSchemaOnWrite runs the idempotent table creation before each insert
	EnsureSchemaOnWrite bool
}

// VisitService records beacons and serves the export listing.
//
// The database row is the source of truth: the audit line is written only
// after the insert succeeded, and a failed append does not fail the request.
type VisitService struct {
	repo   repository.VisitRepository
	cache  Cache
	audit  AuditLog
	logger *slog.Logger
	opts   Options
}

// NewVisitService wires the recorder. A nil cache disables export caching.
func NewVisitService(repo repository.VisitRepository, cache Cache, audit AuditLog, logger *slog.Logger, opts Options) *VisitService {
	if cache == nil {
		cache = noopCache{}
	}
	return &VisitService{
		repo:   repo,
		cache:  cache,
		audit:  audit,
		logger: logger,
		opts:   opts,
	}
}

// RecordVisit stores one visit for a payload received on a connection from remoteAddr.
// The stored IP always comes from remoteAddr; payload.ReportedIP is ignored.
func (s *VisitService) RecordVisit(ctx context.Context, payload domain.Payload, remoteAddr string) (*domain.Visit, error) {
	ip := domain.ClientIP(remoteAddr)
	if s.opts.AnonymizeIP {
		ip = domain.AnonymizeIP(ip)
	}

	visit := domain.NewVisit(payload, ip)

	if s.opts.EnsureSchemaOnWrite {
		if err := s.repo.EnsureSchema(ctx); err != nil {
			metrics.RecordVisitFailure()
			return nil, fmt.Errorf("%w: %w", domain.ErrStorage, err)
		}
	}

	if err := s.repo.Create(ctx, visit); err != nil {
		metrics.RecordVisitFailure()
		return nil, fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}
	metrics.RecordVisit()

	if err := s.audit.Append(visit); err != nil {
		metrics.RecordAuditLogFailure()
		s.logger.Error("Failed to append audit log", "visit_id", visit.ID, "error", err)
	}

	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("Failed to invalidate export cache", "error", err)
	}

	if payload.ReportedIP != domain.Unknown && payload.ReportedIP != ip {
		s.logger.Debug("Client reported a different address", "visit_id", visit.ID, "reported_ip", payload.ReportedIP)
	}

	return visit, nil
}

// ExportVisits lists stored visits newest first, through the export cache
func (s *VisitService) ExportVisits(ctx context.Context, limit, offset int) ([]*domain.Visit, error) {
	cached, gen, cacheErr := s.cache.GetExport(ctx, limit, offset)
	if cacheErr != nil {
		s.logger.Warn("Export cache unavailable", "error", cacheErr)
	} else if cached != nil {
		return cached, nil
	}

	visits, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}

	// only store under the generation the lookup missed on
	if cacheErr == nil {
		if err := s.cache.SetExport(ctx, gen, limit, offset, visits); err != nil {
			s.logger.Warn("Failed to cache export", "error", err)
		}
	}

	return visits, nil
}

// CountVisits returns the number of stored visits
func (s *VisitService) CountVisits(ctx context.Context) (int64, error) {
	n, err := s.repo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}
	return n, nil
}

// Ready reports whether storage answers within the context deadline
func (s *VisitService) Ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.repo.Ping(ctx)
}

type noopCache struct{}

func (noopCache) GetExport(context.Context, int, int) ([]*domain.Visit, int64, error) {
	return nil, 0, nil
}

func (noopCache) SetExport(context.Context, int64, int, int, []*domain.Visit) error { return nil }

func (noopCache) Invalidate(context.Context) error { return nil }
