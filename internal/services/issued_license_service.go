// internal/services/issued_license_service.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/aetflow/aet-backend/internal/models"
	"github.com/aetflow/aet-backend/internal/notifier"
	"github.com/aetflow/aet-backend/internal/repository"
	"github.com/aetflow/aet-backend/internal/utils"
)

type IssuedLicenseService struct {
	db          *gorm.DB
	repo        *repository.IssuedLicenseRepository
	publisher   notifier.Publisher
	invalidator CandidateInvalidator
	logger      *logrus.Entry
	now         func() time.Time
}

type CancelLicenseRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func NewIssuedLicenseService(db *gorm.DB, repo *repository.IssuedLicenseRepository, publisher notifier.Publisher, logger *logrus.Entry) *IssuedLicenseService {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &IssuedLicenseService{
		db:        db,
		repo:      repo,
		publisher: publisher,
		logger:    logger.WithField("component", "services.issued_license"),
		now:       time.Now,
	}
}

// WithCandidateInvalidator makes cancellations drop the cached candidates of
// the license's state before they are announced.
func (s *IssuedLicenseService) WithCandidateInvalidator(invalidator CandidateInvalidator) *IssuedLicenseService {
	s.invalidator = invalidator
	return s
}

func (s *IssuedLicenseService) List(ctx context.Context, filter repository.IssuedLicenseFilter, params utils.PaginationParams) ([]models.IssuedLicense, int64, error) {
	return s.repo.List(ctx, filter, params)
}

func (s *IssuedLicenseService) Get(ctx context.Context, id uuid.UUID) (*models.IssuedLicense, error) {
	return s.repo.GetByID(ctx, id)
}

// Cancel withdraws an issued license so it stops blocking new requests.
func (s *IssuedLicenseService) Cancel(ctx context.Context, id uuid.UUID, req *CancelLicenseRequest) (*models.IssuedLicense, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	license, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if license.Status == models.LicenseStatusCanceled {
		return nil, ErrLicenseAlreadyCanceled
	}

	now := s.now()
	result := s.db.WithContext(ctx).Model(&models.IssuedLicense{}).
		Where("id = ? AND status <> ?", license.ID, models.LicenseStatusCanceled).
		Updates(map[string]interface{}{
			"status":        models.LicenseStatusCanceled,
			"canceled_at":   now,
			"cancel_reason": req.Reason,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to cancel issued license: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrLicenseAlreadyCanceled
	}

	license.Status = models.LicenseStatusCanceled
	license.CanceledAt = &now
	license.CancelReason = req.Reason

	invalidateCandidates(ctx, s.invalidator, s.logger, license.State)
	if s.publisher != nil {
		s.publisher.Publish(notifier.LicenseUpdate(license.ID.String(), license.State, license.Status))
	}

	s.logger.WithFields(logrus.Fields{
		"license_id":     license.ID,
		"license_number": license.LicenseNumber,
		"state":          license.State,
	}).Info("Issued license canceled")

	return license, nil
}
