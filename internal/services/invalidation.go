// internal/services/invalidation.go
package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aetflow/aet-backend/internal/models"
)

const invalidateTimeout = 2 * time.Second

// CandidateInvalidator drops cached conflict candidates of a state. Write
// paths call it after commit, before the change event goes out.
type CandidateInvalidator interface {
	InvalidateState(ctx context.Context, state models.StateCode) error
}

func invalidateCandidates(ctx context.Context, invalidator CandidateInvalidator, logger *logrus.Entry, state models.StateCode) {
	if invalidator == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), invalidateTimeout)
	defer cancel()

	if err := invalidator.InvalidateState(ctx, state); err != nil {
		logger.WithError(err).WithField("state", state).Warn("Candidate cache invalidation failed")
	}
}
