// internal/repository/cached_repository.go
package repository

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/aetflow/aet-backend/internal/conflict"
	"github.com/aetflow/aet-backend/internal/metrics"
	"github.com/aetflow/aet-backend/internal/models"
)

// CandidateCache is the key->value read cache in front of FindCandidates.
// Generation is read before the store lookup and handed back to Set, which
// must drop the write if the state was invalidated in between.
type CandidateCache interface {
	Get(ctx context.Context, state models.StateCode, plates []string) ([]models.IssuedLicense, bool, error)
	Generation(ctx context.Context, state models.StateCode) (int64, error)
	Set(ctx context.Context, state models.StateCode, plates []string, licenses []models.IssuedLicense, generation int64) error
}

// CachedIssuedLicenseRepository serves candidates from cache when it can. A
// failing cache is skipped, never surfaced.
type CachedIssuedLicenseRepository struct {
	next    conflict.Repository
	cache   CandidateCache
	logger  *logrus.Entry
	metrics *metrics.Metrics
}

func NewCachedIssuedLicenseRepository(next conflict.Repository, cache CandidateCache, logger *logrus.Entry, m *metrics.Metrics) *CachedIssuedLicenseRepository {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &CachedIssuedLicenseRepository{
		next:    next,
		cache:   cache,
		logger:  logger.WithField("component", "repository.cache"),
		metrics: m,
	}
}

func (r *CachedIssuedLicenseRepository) FindCandidates(ctx context.Context, state models.StateCode, plates []string) ([]models.IssuedLicense, error) {
	if len(plates) == 0 {
		return []models.IssuedLicense{}, nil
	}

	cached, ok, err := r.cache.Get(ctx, state, plates)
	switch {
	case err != nil:
		r.metrics.ObserveCache("error")
		r.logger.WithError(err).WithField("state", state).Warn("Candidate cache read failed")
		return r.next.FindCandidates(ctx, state, plates)
	case ok:
		r.metrics.ObserveCache("hit")
		return cached, nil
	}
	r.metrics.ObserveCache("miss")

	generation, genErr := r.cache.Generation(ctx, state)
	if genErr != nil {
		r.logger.WithError(genErr).WithField("state", state).Warn("Candidate cache generation read failed")
	}

	licenses, err := r.next.FindCandidates(ctx, state, plates)
	if err != nil {
		return nil, err
	}

	if genErr == nil {
		if err := r.cache.Set(ctx, state, plates, licenses, generation); err != nil {
			r.logger.WithError(err).WithField("state", state).Warn("Candidate cache write failed")
		}
	}
	return licenses, nil
}
