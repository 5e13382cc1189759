// internal/repository/issued_license_repository.go
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aetflow/aet-backend/internal/conflict"
	"github.com/aetflow/aet-backend/internal/models"
	"github.com/aetflow/aet-backend/internal/utils"
)

var ErrIssuedLicenseNotFound = errors.New("issued license not found")

// every plate slot column; which plates are search keys is PlateSet.SearchPlates' call
var candidatePlateColumns = []string{
	"tractor_plate", "trailer1_plate", "trailer2_plate", "dolly_plate", "flatbed_plate", "tow_plate",
}

type IssuedLicenseRepository struct {
	db  *gorm.DB
	now func() time.Time
}

type IssuedLicenseFilter struct {
	State  *models.StateCode
	Plate  string
	Status *models.LicenseStatus
}

func NewIssuedLicenseRepository(db *gorm.DB) *IssuedLicenseRepository {
	return &IssuedLicenseRepository{
		db:  db,
		now: time.Now,
	}
}

// FindCandidates returns every active, unexpired license of state holding any
// of plates. Store failures come back as *conflict.RepositoryUnavailableError.
func (r *IssuedLicenseRepository) FindCandidates(ctx context.Context, state models.StateCode, plates []string) ([]models.IssuedLicense, error) {
	if len(plates) == 0 {
		return []models.IssuedLicense{}, nil
	}

	var licenses []models.IssuedLicense
	if err := r.candidateQuery(r.db.WithContext(ctx), state, plates).Find(&licenses).Error; err != nil {
		return nil, &conflict.RepositoryUnavailableError{State: state, Err: err}
	}
	if licenses == nil {
		licenses = []models.IssuedLicense{}
	}
	return licenses, nil
}

func (r *IssuedLicenseRepository) candidateQuery(db *gorm.DB, state models.StateCode, plates []string) *gorm.DB {
	overlap := db.Where(candidatePlateColumns[0]+" IN ?", plates)
	for _, column := range candidatePlateColumns[1:] {
		overlap = overlap.Or(column+" IN ?", plates)
	}

	return db.Model(&models.IssuedLicense{}).
		Where("state = ? AND status = ? AND valid_until > ?", state, models.LicenseStatusActive, r.now()).
		Where(overlap).
		Order("valid_until DESC")
}

func (r *IssuedLicenseRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.IssuedLicense, error) {
	var license models.IssuedLicense
	if err := r.db.WithContext(ctx).First(&license, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIssuedLicenseNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &license, nil
}

// List pages through issued licenses. The expired filter is derived from
// valid_until since the stored status never becomes expired.
func (r *IssuedLicenseRepository) List(ctx context.Context, filter IssuedLicenseFilter, params utils.PaginationParams) ([]models.IssuedLicense, int64, error) {
	query := r.listQuery(r.db.WithContext(ctx), filter)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count issued licenses: %w", err)
	}

	allowedSortFields := []string{"created_at", "issued_at", "valid_until", "license_number", "state"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var licenses []models.IssuedLicense
	if err := query.Find(&licenses).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch issued licenses: %w", err)
	}
	return licenses, total, nil
}

func (r *IssuedLicenseRepository) listQuery(db *gorm.DB, filter IssuedLicenseFilter) *gorm.DB {
	query := db.Model(&models.IssuedLicense{})

	if filter.State != nil {
		query = query.Where("state = ?", *filter.State)
	}

	if plate := conflict.Normalize(filter.Plate); plate != "" {
		query = query.Where(
			"tractor_plate = ? OR trailer1_plate = ? OR trailer2_plate = ? OR dolly_plate = ? OR flatbed_plate = ? OR tow_plate = ?",
			plate, plate, plate, plate, plate, plate,
		)
	}

	if filter.Status != nil {
		now := r.now()
		switch *filter.Status {
		case models.LicenseStatusActive:
			query = query.Where("status = ? AND valid_until > ?", models.LicenseStatusActive, now)
		case models.LicenseStatusExpired:
			query = query.Where("status = ? AND valid_until <= ?", models.LicenseStatusActive, now)
		default:
			query = query.Where("status = ?", *filter.Status)
		}
	}

	return query
}
