// internal/services/license_request_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/aetflow/aet-backend/internal/conflict"
	"github.com/aetflow/aet-backend/internal/database"
	"github.com/aetflow/aet-backend/internal/models"
	"github.com/aetflow/aet-backend/internal/notifier"
	"github.com/aetflow/aet-backend/internal/utils"
)

type LicenseRequestService struct {
	db          *gorm.DB
	resolver    *conflict.Resolver
	policy      conflict.Policy
	publisher   notifier.Publisher
	invalidator CandidateInvalidator
	logger      *logrus.Entry
	now         func() time.Time
}

type CreateLicenseRequestRequest struct {
	TransporterCNPJ string   `json:"transporter_cnpj" validate:"omitempty,cnpj"`
	States          []string `json:"states" validate:"required,min=1,dive,state_code"`
	TractorPlate    string   `json:"tractor_plate" validate:"required,plate"`
	Trailer1Plate   string   `json:"trailer1_plate" validate:"required,plate"`
	Trailer2Plate   string   `json:"trailer2_plate,omitempty" validate:"omitempty,plate"`
	DollyPlate      string   `json:"dolly_plate,omitempty" validate:"omitempty,plate"`
	FlatbedPlate    string   `json:"flatbed_plate,omitempty" validate:"omitempty,plate"`
	TowPlate        string   `json:"tow_plate,omitempty" validate:"omitempty,plate"`
}

// Composition returns the plates of the request by role.
func (r *CreateLicenseRequestRequest) Composition() conflict.PlateSet {
	return conflict.PlateSet{
		Tractor:  r.TractorPlate,
		Trailer1: r.Trailer1Plate,
		Trailer2: r.Trailer2Plate,
		Dolly:    r.DollyPlate,
		Flatbed:  r.FlatbedPlate,
		Tow:      r.TowPlate,
	}
}

type UpdateStateStatusRequest struct {
	Status       models.StateRequestStatus `json:"status" validate:"required"`
	ValidUntil   *time.Time                `json:"valid_until,omitempty"`
	AETNumber    string                    `json:"aet_number,omitempty" validate:"max=50"`
	SelectedCNPJ string                    `json:"selected_cnpj,omitempty" validate:"omitempty,cnpj"`
}

type LicenseRequestSearchParams struct {
	utils.PaginationParams
	Status          *models.RequestStatus
	State           *models.StateCode
	TransporterCNPJ string
}

// StateStatusChange is the outcome of UpdateStateStatus.
type StateStatusChange struct {
	Request       *models.LicenseRequest     `json:"request"`
	StateStatus   *models.LicenseStateStatus `json:"state_status"`
	IssuedLicense *models.IssuedLicense      `json:"issued_license,omitempty"`
}

func NewLicenseRequestService(db *gorm.DB, resolver *conflict.Resolver, policy conflict.Policy, publisher notifier.Publisher, logger *logrus.Entry) *LicenseRequestService {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &LicenseRequestService{
		db:        db,
		resolver:  resolver,
		policy:    policy,
		publisher: publisher,
		logger:    logger.WithField("component", "services.license_request"),
		now:       time.Now,
	}
}

// WithCandidateInvalidator makes approvals drop the cached candidates of the
// approved state before they are announced.
func (s *LicenseRequestService) WithCandidateInvalidator(invalidator CandidateInvalidator) *LicenseRequestService {
	s.invalidator = invalidator
	return s
}

func (s *LicenseRequestService) Create(ctx context.Context, creatorID *uuid.UUID, req *CreateLicenseRequestRequest) (*models.LicenseRequest, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	composition := req.Composition()
	if _, err := conflict.Classify(composition); err != nil {
		return nil, err
	}
	states, err := parseStates(req.States)
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	vehicles, err := resolveVehicles(db, []string{
		composition.Tractor, composition.Trailer1, composition.Trailer2,
		composition.Dolly, composition.Flatbed, composition.Tow,
	})
	if err != nil {
		return nil, err
	}

	requestNumber, err := utils.GenerateRequestNumber(s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to generate request number: %w", err)
	}

	request := &models.LicenseRequest{
		RequestNumber:   requestNumber,
		TransporterCNPJ: digitsOnly(req.TransporterCNPJ),
		Status:          models.RequestStatusDraft,
		RequestedStates: stateArray(states),
		CreatedBy:       creatorID,
		TractorID:       vehicleID(vehicles, composition.Tractor),
		Trailer1ID:      vehicleID(vehicles, composition.Trailer1),
		Trailer2ID:      vehicleID(vehicles, composition.Trailer2),
		DollyID:         vehicleID(vehicles, composition.Dolly),
		FlatbedID:       vehicleID(vehicles, composition.Flatbed),
		TowID:           vehicleID(vehicles, composition.Tow),
	}

	if err := db.Create(request).Error; err != nil {
		return nil, fmt.Errorf("failed to create license request: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"request_id":     request.ID,
		"request_number": request.RequestNumber,
		"states":         request.RequestedStates,
	}).Info("License request created")

	return s.Get(ctx, request.ID)
}

func (s *LicenseRequestService) Get(ctx context.Context, id uuid.UUID) (*models.LicenseRequest, error) {
	var request models.LicenseRequest
	if err := s.preloaded(s.db.WithContext(ctx)).First(&request, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &request, nil
}

func (s *LicenseRequestService) preloaded(db *gorm.DB) *gorm.DB {
	return db.Preload("Tractor").Preload("Trailer1").Preload("Trailer2").
		Preload("Dolly").Preload("Flatbed").Preload("Tow").
		Preload("StateStatuses", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("state")
		})
}

func (s *LicenseRequestService) Search(ctx context.Context, params LicenseRequestSearchParams) ([]models.LicenseRequest, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.LicenseRequest{})

	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.State != nil {
		query = query.Where("? = ANY(requested_states)", string(*params.State))
	}
	if params.TransporterCNPJ != "" {
		query = query.Where("transporter_cnpj = ?", digitsOnly(params.TransporterCNPJ))
	}
	if params.Search != "" {
		query = query.Where("request_number ILIKE ?", "%"+params.Search+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count license requests: %w", err)
	}

	allowedSortFields := []string{"created_at", "updated_at", "submitted_at", "request_number", "status"}
	query = utils.ApplySort(query, params.PaginationParams, allowedSortFields)
	query = utils.ApplyPagination(query, params.PaginationParams)

	var requests []models.LicenseRequest
	if err := s.preloaded(query).Find(&requests).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch license requests: %w", err)
	}
	return requests, total, nil
}

// Validate runs the conflict check for every requested state without
// changing anything.
func (s *LicenseRequestService) Validate(ctx context.Context, id uuid.UUID) ([]conflict.Verdict, error) {
	request, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.verdicts(ctx, request)
}

func (s *LicenseRequestService) verdicts(ctx context.Context, request *models.LicenseRequest) ([]conflict.Verdict, error) {
	return s.resolver.ValidateStates(ctx, request.States(), CompositionOf(request), s.policy)
}

// gate refuses the request when any state is blocked.
func (s *LicenseRequestService) gate(ctx context.Context, request *models.LicenseRequest) ([]conflict.Verdict, error) {
	verdicts, err := s.verdicts(ctx, request)
	if err != nil {
		return nil, err
	}
	if blocked := conflict.BlockedStates(verdicts); len(blocked) > 0 {
		s.logger.WithFields(logrus.Fields{
			"request_id": request.ID,
			"blocked":    blocked,
			"strategy":   s.policy.Strategy,
		}).Info("License request refused")
		return verdicts, &StatesBlockedError{Verdicts: verdicts}
	}
	return verdicts, nil
}

// Submit moves a draft to submitted once every state passes the conflict
// check, opening a pending_registration record per state.
func (s *LicenseRequestService) Submit(ctx context.Context, id uuid.UUID) (*models.LicenseRequest, []conflict.Verdict, error) {
	request, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if request.Status != models.RequestStatusDraft {
		return nil, nil, ErrRequestNotDraft
	}

	verdicts, err := s.gate(ctx, request)
	if err != nil {
		return nil, verdicts, err
	}

	if err := s.markSubmitted(ctx, request); err != nil {
		return nil, nil, err
	}

	submitted, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return submitted, verdicts, nil
}

// markSubmitted flips a draft to submitted and opens its per-state records.
func (s *LicenseRequestService) markSubmitted(ctx context.Context, request *models.LicenseRequest) error {
	now := s.now()
	err := database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		result := tx.Model(&models.LicenseRequest{}).
			Where("id = ? AND status = ?", request.ID, models.RequestStatusDraft).
			Updates(map[string]interface{}{"status": models.RequestStatusSubmitted, "submitted_at": now})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrRequestNotDraft
		}

		for _, state := range request.States() {
			record := &models.LicenseStateStatus{
				RequestID: request.ID,
				State:     state,
				Status:    models.StateStatusPendingRegistration,
			}
			if err := tx.Create(record).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrRequestNotDraft) {
			return err
		}
		return fmt.Errorf("failed to submit license request: %w", err)
	}

	for _, state := range request.States() {
		s.publish(notifier.StatusUpdate(request.ID.String(), state, models.StateStatusPendingRegistration))
	}

	s.logger.WithFields(logrus.Fields{
		"request_id": request.ID,
		"states":     request.RequestedStates,
	}).Info("License request submitted")
	return nil
}

// UpdateStateStatus applies one transition of a state's pipeline. Approval
// issues the AET for that state.
func (s *LicenseRequestService) UpdateStateStatus(ctx context.Context, id uuid.UUID, rawState string, req *UpdateStateStatusRequest) (*StateStatusChange, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	if !req.Status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, req.Status)
	}

	state, err := conflict.ParseState(rawState)
	if err != nil {
		return nil, err
	}

	request, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.applyStateStatus(ctx, request, state, req)
}

func (s *LicenseRequestService) applyStateStatus(ctx context.Context, request *models.LicenseRequest, state models.StateCode, req *UpdateStateStatusRequest) (*StateStatusChange, error) {
	if request.Status != models.RequestStatusSubmitted {
		return nil, fmt.Errorf("%w: request is %s", ErrInvalidTransition, request.Status)
	}

	record, ok := request.StateStatusFor(state)
	if !ok {
		return nil, ErrStateNotRequested
	}
	if !record.Status.CanTransitionTo(req.Status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, record.Status, req.Status)
	}

	now := s.now()
	previous := record.Status
	record.Status = req.Status
	if req.SelectedCNPJ != "" {
		cnpj := digitsOnly(req.SelectedCNPJ)
		record.SelectedCNPJ = &cnpj
	}

	var issued *models.IssuedLicense
	if req.Status == models.StateStatusApproved {
		aetNumber := req.AETNumber
		record.ValidUntil = req.ValidUntil
		record.AETNumber = &aetNumber
		if err := record.Check(); err != nil {
			return nil, err
		}
		issued = issueLicense(request, record, now)
		if !issued.ValidUntil.After(issued.IssuedAt) {
			return nil, models.ErrInvalidValidity
		}
	}

	err := database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		result := tx.Model(&models.LicenseStateStatus{}).
			Where("id = ? AND status = ?", record.ID, previous).
			Updates(map[string]interface{}{
				"status":        record.Status,
				"valid_until":   record.ValidUntil,
				"aet_number":    record.AETNumber,
				"selected_cnpj": record.SelectedCNPJ,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: status changed concurrently", ErrInvalidTransition)
		}

		if issued != nil {
			if err := tx.Create(issued).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return ErrLicenseNumberTaken
				}
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrLicenseNumberTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update state status: %w", err)
	}

	if issued != nil {
		invalidateCandidates(ctx, s.invalidator, s.logger, state)
	}
	s.publish(notifier.StatusUpdate(request.ID.String(), state, record.Status))
	if issued != nil {
		s.publish(notifier.LicenseUpdate(issued.ID.String(), state, issued.Status))
	}

	s.logger.WithFields(logrus.Fields{
		"request_id": request.ID,
		"state":      state,
		"from":       previous,
		"to":         record.Status,
	}).Info("State status updated")

	return &StateStatusChange{Request: request, StateStatus: record, IssuedLicense: issued}, nil
}

func (s *LicenseRequestService) publish(event notifier.Event) {
	if s.publisher != nil {
		s.publisher.Publish(event)
	}
}

// CompositionOf rebuilds the plate set of a request from its preloaded vehicles.
func CompositionOf(request *models.LicenseRequest) conflict.PlateSet {
	plate := func(v *models.Vehicle) string {
		if v == nil {
			return ""
		}
		return v.Plate
	}
	return conflict.PlateSet{
		Tractor:  plate(request.Tractor),
		Trailer1: plate(request.Trailer1),
		Trailer2: plate(request.Trailer2),
		Dolly:    plate(request.Dolly),
		Flatbed:  plate(request.Flatbed),
		Tow:      plate(request.Tow),
	}
}

func issueLicense(request *models.LicenseRequest, record *models.LicenseStateStatus, now time.Time) *models.IssuedLicense {
	composition := CompositionOf(request).Normalized()
	requestID := request.ID
	return &models.IssuedLicense{
		LicenseNumber:   *record.AETNumber,
		State:           record.State,
		IssuedAt:        now,
		ValidUntil:      *record.ValidUntil,
		Status:          models.LicenseStatusActive,
		TractorPlate:    composition.Tractor,
		Trailer1Plate:   composition.Trailer1,
		Trailer2Plate:   composition.Trailer2,
		DollyPlate:      composition.Dolly,
		FlatbedPlate:    composition.Flatbed,
		TowPlate:        composition.Tow,
		SourceRequestID: &requestID,
	}
}

func vehicleID(vehicles map[string]*models.Vehicle, plate string) *uuid.UUID {
	v, ok := vehicles[conflict.Normalize(plate)]
	if !ok {
		return nil
	}
	id := v.ID
	return &id
}

func stateArray(states []models.StateCode) pq.StringArray {
	out := make(pq.StringArray, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}
