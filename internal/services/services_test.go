package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/aetflow/aet-backend/internal/conflict"
	"github.com/aetflow/aet-backend/internal/models"
	"github.com/aetflow/aet-backend/internal/notifier"
)

var fixedNow = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeRepository struct {
	mu       sync.Mutex
	licenses []models.IssuedLicense
	err      error
}

func (f *fakeRepository) FindCandidates(ctx context.Context, state models.StateCode, plates []string) ([]models.IssuedLicense, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []models.IssuedLicense
	for _, l := range f.licenses {
		if l.State == state {
			out = append(out, l)
		}
	}
	return out, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []notifier.Event
}

func (p *recordingPublisher) Publish(event notifier.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func quietLogger() *logrus.Entry {
	logger, _ := test.NewNullLogger()
	return logrus.NewEntry(logger)
}

func activeLicense(number string, state models.StateCode, days int, tractor, trailer1 string) models.IssuedLicense {
	return models.IssuedLicense{
		BaseModel:     models.BaseModel{ID: uuid.New()},
		LicenseNumber: number,
		State:         state,
		IssuedAt:      fixedNow.AddDate(-1, 0, 0),
		ValidUntil:    fixedNow.Add(time.Duration(days) * 24 * time.Hour),
		Status:        models.LicenseStatusActive,
		TractorPlate:  tractor,
		Trailer1Plate: trailer1,
	}
}

func testVehicle(plate string, kind models.VehicleType) *models.Vehicle {
	return &models.Vehicle{BaseModel: models.BaseModel{ID: uuid.New()}, Plate: plate, Type: kind, AxleCount: 3}
}

type ServicesTestSuite struct {
	suite.Suite
	repo       *fakeRepository
	resolver   *conflict.Resolver
	validation *ValidationService
	requests   *LicenseRequestService
	publisher  *recordingPublisher
}

func (s *ServicesTestSuite) SetupTest() {
	s.repo = &fakeRepository{licenses: []models.IssuedLicense{
		activeLicense("AET-MG-0001", models.StateMG, 70, "ABC1D23", "XYZ9876"),
		activeLicense("AET-SP-0001", models.StateSP, 45, "ABC1D23", "XYZ9876"),
	}}
	s.resolver = conflict.NewResolver(s.repo,
		conflict.WithLogger(quietLogger()),
		conflict.WithClock(func() time.Time { return fixedNow }),
	)
	s.validation = NewValidationService(s.resolver, conflict.DefaultPolicy())
	s.publisher = &recordingPublisher{}
	s.requests = NewLicenseRequestService(nil, s.resolver, conflict.DefaultPolicy(), s.publisher, quietLogger())
	s.requests.now = func() time.Time { return fixedNow }
}

func (s *ServicesTestSuite) draftRequest(states ...string) *models.LicenseRequest {
	return &models.LicenseRequest{
		BaseModel:       models.BaseModel{ID: uuid.New()},
		Status:          models.RequestStatusDraft,
		RequestedStates: pq.StringArray(states),
		Tractor:         testVehicle("ABC1D23", models.VehicleTypeTractor),
		Trailer1:        testVehicle("XYZ9876", models.VehicleTypeSemiTrailer),
	}
}

func (s *ServicesTestSuite) TestPolicyOverride() {
	policy, err := s.validation.PolicyFor(PolicyOverride{})
	s.Require().NoError(err)
	s.Equal(conflict.DefaultPolicy(), policy)

	thirty := 30
	policy, err = s.validation.PolicyFor(PolicyOverride{Strategy: "composition", ThresholdDays: &thirty})
	s.Require().NoError(err)
	s.Equal(conflict.StrategyComposition, policy.Strategy)
	s.Equal(30, policy.ThresholdDays)

	policy, err = s.validation.PolicyFor(PolicyOverride{Strategy: " Composition "})
	s.Require().NoError(err)
	s.Equal(conflict.StrategyComposition, policy.Strategy)

	_, err = s.validation.PolicyFor(PolicyOverride{Strategy: "fuzzy"})
	s.ErrorIs(err, conflict.ErrInvalidPolicy)

	negative := -5
	_, err = s.validation.PolicyFor(PolicyOverride{ThresholdDays: &negative})
	s.ErrorIs(err, conflict.ErrInvalidPolicy)
}

func (s *ServicesTestSuite) TestValidateCompositionBlocksMG() {
	verdict, err := s.validation.ValidateComposition(context.Background(), &ValidateCompositionRequest{
		State:       " mg ",
		Composition: conflict.PlateSet{Tractor: "abc-1d23", Trailer1: "XYZ 9876"},
	})
	s.Require().NoError(err)
	s.True(verdict.Blocked)
	s.Equal(models.StateMG, verdict.State)
	s.Equal("AET-MG-0001", verdict.ConflictingLicense)
	s.Require().NotNil(verdict.DaysRemaining)
	s.Equal(70, *verdict.DaysRemaining)
}

func (s *ServicesTestSuite) TestValidateCompositionRejectsBadInput() {
	_, err := s.validation.ValidateComposition(context.Background(), &ValidateCompositionRequest{
		State:       "XX",
		Composition: conflict.PlateSet{Tractor: "ABC1D23", Trailer1: "XYZ9876"},
	})
	s.ErrorIs(err, conflict.ErrUnknownStateCode)

	_, err = s.validation.ValidateComposition(context.Background(), &ValidateCompositionRequest{
		State:       "MG",
		Composition: conflict.PlateSet{Tractor: "ABC1D23"},
	})
	s.ErrorIs(err, conflict.ErrInvalidComposition)
}

func (s *ServicesTestSuite) TestValidateStatesKeepsOrderAndDropsDuplicates() {
	verdicts, err := s.validation.ValidateStates(context.Background(), &ValidateStatesRequest{
		States:      []string{"sp", "MG", "GO", "mg"},
		Composition: conflict.PlateSet{Tractor: "ABC1D23", Trailer1: "XYZ9876"},
	})
	s.Require().NoError(err)
	s.Require().Len(verdicts, 3)
	s.Equal([]models.StateCode{models.StateSP, models.StateMG, models.StateGO},
		[]models.StateCode{verdicts[0].State, verdicts[1].State, verdicts[2].State})
	s.False(verdicts[0].Blocked)
	s.True(verdicts[1].Blocked)
	s.False(verdicts[2].Blocked)
	s.Equal(conflict.MatchNone, verdicts[2].MatchKind)
}

func (s *ServicesTestSuite) TestClassify() {
	result, err := s.validation.Classify(&ClassifyRequest{Composition: conflict.PlateSet{
		Tractor: "abc1d23", Trailer1: "xyz9876", Trailer2: "def4567", Dolly: "DOL0001",
	}})
	s.Require().NoError(err)
	s.Equal(conflict.CompositionRoadtrain, result.CompositionType)
	s.Equal("ABC1D23", result.Composition.Tractor)
	s.Equal([]string{"ABC1D23", "DEF4567", "XYZ9876"}, result.SearchPlates)
}

func (s *ServicesTestSuite) TestGateRefusesBlockedState() {
	request := s.draftRequest("SP", "MG")

	verdicts, err := s.requests.gate(context.Background(), request)
	s.Require().Error(err)
	s.ErrorIs(err, ErrStatesBlocked)

	var blocked *StatesBlockedError
	s.Require().ErrorAs(err, &blocked)
	s.Len(blocked.Verdicts, 2)
	s.Equal(verdicts, blocked.Verdicts)
	s.Contains(err.Error(), "MG")
	s.NotContains(err.Error(), "SP")
}

func (s *ServicesTestSuite) TestGateAllowsRenewalWindow() {
	verdicts, err := s.requests.gate(context.Background(), s.draftRequest("SP", "GO"))
	s.Require().NoError(err)
	s.Len(verdicts, 2)
	s.Empty(conflict.BlockedStates(verdicts))
}

func (s *ServicesTestSuite) TestGateFailsOpen() {
	s.repo.err = errors.New("connection refused")

	verdicts, err := s.requests.gate(context.Background(), s.draftRequest("MG"))
	s.Require().NoError(err)
	s.Require().Len(verdicts, 1)
	s.False(verdicts[0].Blocked)
	s.Equal(conflict.ReasonSuppressedError, verdicts[0].Reason)
}

func (s *ServicesTestSuite) TestGateUsesCompositionStrategy() {
	s.requests.policy = conflict.Policy{Strategy: conflict.StrategyComposition, ThresholdDays: 60}
	request := s.draftRequest("MG")
	request.Trailer2 = testVehicle("NEW0A00", models.VehicleTypeSemiTrailer)

	verdicts, err := s.requests.gate(context.Background(), request)
	s.Require().NoError(err)
	s.False(verdicts[0].Blocked)
	s.Equal(conflict.MatchNone, verdicts[0].MatchKind)
}

func (s *ServicesTestSuite) TestUpdateStateStatusRejectsBeforeTouchingStore() {
	_, err := s.requests.UpdateStateStatus(context.Background(), uuid.New(), "MG", &UpdateStateStatusRequest{Status: "shipped"})
	s.ErrorIs(err, ErrInvalidTransition)

	_, err = s.requests.UpdateStateStatus(context.Background(), uuid.New(), "ZZ", &UpdateStateStatusRequest{Status: models.StateStatusUnderReview})
	s.ErrorIs(err, conflict.ErrUnknownStateCode)
}

func (s *ServicesTestSuite) TestCreateValidatesInput() {
	_, err := s.requests.Create(context.Background(), nil, &CreateLicenseRequestRequest{
		States:        []string{"MG"},
		TractorPlate:  "AB1",
		Trailer1Plate: "XYZ9876",
	})
	s.Require().Error(err)
	s.Contains(err.Error(), "validation failed")

	_, err = s.requests.Create(context.Background(), nil, &CreateLicenseRequestRequest{
		States:        []string{"XX"},
		TractorPlate:  "ABC1D23",
		Trailer1Plate: "XYZ9876",
	})
	s.Require().Error(err)
}

func TestServicesSuite(t *testing.T) {
	suite.Run(t, new(ServicesTestSuite))
}

func TestCompositionOf(t *testing.T) {
	request := &models.LicenseRequest{
		Tractor:  testVehicle("ABC1D23", models.VehicleTypeTractor),
		Trailer1: testVehicle("XYZ9876", models.VehicleTypeSemiTrailer),
		Dolly:    testVehicle("DOL0001", models.VehicleTypeDolly),
	}

	composition := CompositionOf(request)
	assert.Equal(t, conflict.PlateSet{Tractor: "ABC1D23", Trailer1: "XYZ9876", Dolly: "DOL0001"}, composition)

	compositionType, err := conflict.Classify(composition)
	require.NoError(t, err)
	assert.Equal(t, conflict.CompositionDollyOnly, compositionType)
}

func TestIssueLicenseCopiesComposition(t *testing.T) {
	validUntil := fixedNow.AddDate(1, 0, 0)
	aet := "AET-MG-0002"
	request := &models.LicenseRequest{
		BaseModel: models.BaseModel{ID: uuid.New()},
		Tractor:   testVehicle("ABC1D23", models.VehicleTypeTractor),
		Trailer1:  testVehicle("XYZ9876", models.VehicleTypeSemiTrailer),
	}
	record := &models.LicenseStateStatus{State: models.StateMG, Status: models.StateStatusApproved, ValidUntil: &validUntil, AETNumber: &aet}

	issued := issueLicense(request, record, fixedNow)
	assert.Equal(t, "AET-MG-0002", issued.LicenseNumber)
	assert.Equal(t, models.StateMG, issued.State)
	assert.Equal(t, models.LicenseStatusActive, issued.Status)
	assert.Equal(t, "ABC1D23", issued.TractorPlate)
	assert.Equal(t, "XYZ9876", issued.Trailer1Plate)
	assert.Empty(t, issued.Trailer2Plate)
	require.NotNil(t, issued.SourceRequestID)
	assert.Equal(t, request.ID, *issued.SourceRequestID)
	assert.True(t, issued.ValidUntil.After(issued.IssuedAt))
}

func TestParseStates(t *testing.T) {
	states, err := parseStates([]string{"mg", "SP", " mg", "dnit"})
	require.NoError(t, err)
	assert.Equal(t, []models.StateCode{models.StateMG, models.StateSP, models.StateDNIT}, states)

	_, err = parseStates([]string{"MG", "XX"})
	assert.ErrorIs(t, err, conflict.ErrUnknownStateCode)
}

func TestStatesBlockedError(t *testing.T) {
	err := &StatesBlockedError{Verdicts: []conflict.Verdict{
		{State: models.StateMG, Blocked: true},
		{State: models.StateSP},
		{State: models.StateGO, Blocked: true},
	}}
	assert.True(t, errors.Is(err, ErrStatesBlocked))
	assert.Equal(t, "license request blocked for one or more states: MG, GO", err.Error())
}

func TestDigitsOnly(t *testing.T) {
	assert.Equal(t, "11222333000181", digitsOnly("11.222.333/0001-81"))
	assert.Empty(t, digitsOnly("abc"))
}

func TestVehicleID(t *testing.T) {
	v := testVehicle("ABC1D23", models.VehicleTypeTractor)
	vehicles := map[string]*models.Vehicle{"ABC1D23": v}

	require.NotNil(t, vehicleID(vehicles, "abc-1d23"))
	assert.Equal(t, v.ID, *vehicleID(vehicles, "abc-1d23"))
	assert.Nil(t, vehicleID(vehicles, ""))
}

func TestCancelValidatesReason(t *testing.T) {
	svc := NewIssuedLicenseService(nil, nil, nil, quietLogger())
	_, err := svc.Cancel(context.Background(), uuid.New(), &CancelLicenseRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}
