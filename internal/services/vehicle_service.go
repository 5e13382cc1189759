// internal/services/vehicle_service.go
package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/aetflow/aet-backend/internal/conflict"
	"github.com/aetflow/aet-backend/internal/models"
	"github.com/aetflow/aet-backend/internal/utils"
)

type VehicleService struct {
	db *gorm.DB
}

type CreateVehicleRequest struct {
	Plate     string             `json:"plate" validate:"required,plate"`
	Type      models.VehicleType `json:"type" validate:"required,oneof=tractor truck semi_trailer dolly flatbed tow_dolly"`
	AxleCount int                `json:"axle_count" validate:"required,min=1,max=12"`
	Brand     string             `json:"brand" validate:"max=100"`
	Model     string             `json:"model" validate:"max=100"`
	Year      int                `json:"year,omitempty" validate:"omitempty,min=1950,max=2100"`
	OwnerCNPJ string             `json:"owner_cnpj,omitempty" validate:"omitempty,cnpj"`
}

type VehicleSearchParams struct {
	utils.PaginationParams
	Type      *models.VehicleType
	OwnerCNPJ string
}

func NewVehicleService(db *gorm.DB) *VehicleService {
	return &VehicleService{db: db}
}

func (s *VehicleService) Create(ctx context.Context, req *CreateVehicleRequest) (*models.Vehicle, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	vehicle := &models.Vehicle{
		Plate:     conflict.Normalize(req.Plate),
		Type:      req.Type,
		AxleCount: req.AxleCount,
		Brand:     req.Brand,
		Model:     req.Model,
		Year:      req.Year,
		OwnerCNPJ: digitsOnly(req.OwnerCNPJ),
	}

	if err := s.db.WithContext(ctx).Create(vehicle).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrVehicleExists
		}
		return nil, fmt.Errorf("failed to create vehicle: %w", err)
	}
	return vehicle, nil
}

func (s *VehicleService) GetByPlate(ctx context.Context, plate string) (*models.Vehicle, error) {
	normalized := conflict.Normalize(plate)
	if normalized == "" {
		return nil, ErrVehicleNotFound
	}

	var vehicle models.Vehicle
	if err := s.db.WithContext(ctx).Where("plate = ?", normalized).First(&vehicle).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVehicleNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &vehicle, nil
}

func (s *VehicleService) Search(ctx context.Context, params VehicleSearchParams) ([]models.Vehicle, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Vehicle{})

	if params.Search != "" {
		query = query.Where("plate LIKE ?", conflict.Normalize(params.Search)+"%")
	}
	if params.Type != nil {
		query = query.Where("type = ?", *params.Type)
	}
	if params.OwnerCNPJ != "" {
		query = query.Where("owner_cnpj = ?", digitsOnly(params.OwnerCNPJ))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count vehicles: %w", err)
	}

	allowedSortFields := []string{"created_at", "plate", "type"}
	query = utils.ApplySort(query, params.PaginationParams, allowedSortFields)
	query = utils.ApplyPagination(query, params.PaginationParams)

	var vehicles []models.Vehicle
	if err := query.Find(&vehicles).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch vehicles: %w", err)
	}
	return vehicles, total, nil
}

// resolveVehicles looks up every non-empty plate. The result is keyed by
// normalized plate.
func resolveVehicles(db *gorm.DB, plates []string) (map[string]*models.Vehicle, error) {
	var wanted []string
	for _, p := range plates {
		if n := conflict.Normalize(p); n != "" {
			wanted = append(wanted, n)
		}
	}

	var vehicles []models.Vehicle
	if len(wanted) > 0 {
		if err := db.Where("plate IN ?", wanted).Find(&vehicles).Error; err != nil {
			return nil, fmt.Errorf("database error: %w", err)
		}
	}

	byPlate := make(map[string]*models.Vehicle, len(vehicles))
	for i := range vehicles {
		byPlate[vehicles[i].Plate] = &vehicles[i]
	}
	for _, p := range wanted {
		if _, ok := byPlate[p]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrVehicleNotFound, p)
		}
	}
	return byPlate, nil
}

func digitsOnly(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			out = append(out, s[i])
		}
	}
	return string(out)
}
