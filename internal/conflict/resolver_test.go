package conflict

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/aetflow/aet-backend/internal/metrics"
	"github.com/aetflow/aet-backend/internal/models"
)

type fakeRepository struct {
	mu        sync.Mutex
	licenses  []models.IssuedLicense
	err       error
	panicWith interface{}
	calls     []models.StateCode
}

func (f *fakeRepository) FindCandidates(_ context.Context, state models.StateCode, plates []string) ([]models.IssuedLicense, error) {
	f.mu.Lock()
	f.calls = append(f.calls, state)
	f.mu.Unlock()

	if f.panicWith != nil {
		panic(f.panicWith)
	}
	if f.err != nil {
		return nil, f.err
	}

	var out []models.IssuedLicense
	for _, l := range f.licenses {
		if l.State == state && sharesPlate(&l, plates) {
			out = append(out, l)
		}
	}
	return out, nil
}

type ResolverTestSuite struct {
	suite.Suite
	now      time.Time
	repo     *fakeRepository
	resolver *Resolver
	logHook  *test.Hook
	metrics  *metrics.Metrics
}

func (s *ResolverTestSuite) SetupTest() {
	s.now = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	s.repo = &fakeRepository{}

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	s.logHook = hook
	s.metrics = metrics.NewMetrics("aet_test", prometheus.NewRegistry())

	s.resolver = NewResolver(s.repo,
		WithClock(func() time.Time { return s.now }),
		WithLogger(logrus.NewEntry(logger)),
		WithMetrics(s.metrics),
	)
}

func (s *ResolverTestSuite) license(number string, state models.StateCode, days int, plates PlateSet) models.IssuedLicense {
	return models.IssuedLicense{
		BaseModel:     models.BaseModel{ID: uuid.New()},
		LicenseNumber: number,
		State:         state,
		IssuedAt:      s.now.AddDate(-1, 0, 0),
		ValidUntil:    s.now.AddDate(0, 0, days),
		Status:        models.LicenseStatusActive,
		TractorPlate:  Normalize(plates.Tractor),
		Trailer1Plate: Normalize(plates.Trailer1),
		Trailer2Plate: Normalize(plates.Trailer2),
		DollyPlate:    Normalize(plates.Dolly),
	}
}

var proposed = PlateSet{Tractor: "BDI1A71", Trailer1: "BCB0886", Trailer2: "BCB0887"}

func compositionPolicy() Policy {
	return Policy{Strategy: StrategyComposition, ThresholdDays: 60}
}

func platePolicy() Policy {
	return Policy{Strategy: StrategyPlate, ThresholdDays: 60}
}

func (s *ResolverTestSuite) TestIdenticalCompositionBlocks() {
	s.repo.licenses = []models.IssuedLicense{s.license("AET-MG-001", models.StateMG, 70, proposed)}

	verdict, err := s.resolver.ValidateComposition(context.Background(), models.StateMG, proposed, compositionPolicy())
	s.Require().NoError(err)

	s.True(verdict.Blocked)
	s.Equal(MatchComposition, verdict.MatchKind)
	s.Equal("AET-MG-001", verdict.ConflictingLicense)
	s.Require().NotNil(verdict.DaysRemaining)
	s.Equal(70, *verdict.DaysRemaining)
	s.Require().NotNil(verdict.ValidUntil)
	s.Equal(s.now.AddDate(0, 0, 70), *verdict.ValidUntil)
	s.Equal(CompositionBitrain, verdict.CompositionType)
	s.Equal(ReasonConflict, verdict.Reason)
}

func (s *ResolverTestSuite) TestTractorOverlapAloneDoesNotMatchComposition() {
	other := PlateSet{Tractor: "BDI1A71", Trailer1: "XYZ1234", Trailer2: "ABC5678"}
	s.repo.licenses = []models.IssuedLicense{s.license("AET-MG-002", models.StateMG, 70, other)}

	verdict, err := s.resolver.ValidateComposition(context.Background(), models.StateMG, proposed, compositionPolicy())
	s.Require().NoError(err)

	s.False(verdict.Blocked)
	s.Equal(MatchNone, verdict.MatchKind)
	s.Empty(verdict.ConflictingLicense)
	s.Nil(verdict.DaysRemaining)
}

func (s *ResolverTestSuite) TestDifferentTrailer2ReleasesComposition() {
	changed := proposed
	changed.Trailer2 = "ZZZ9999"
	s.repo.licenses = []models.IssuedLicense{s.license("AET-MG-003", models.StateMG, 200, changed)}

	verdict, err := s.resolver.ValidateComposition(context.Background(), models.StateMG, proposed, compositionPolicy())
	s.Require().NoError(err)
	s.False(verdict.Blocked)
}

func (s *ResolverTestSuite) TestDollyIgnoredByCompositionMatch() {
	held := proposed
	held.Dolly = "DLY0001"
	s.repo.licenses = []models.IssuedLicense{s.license("AET-MG-004", models.StateMG, 90, held)}

	withOtherDolly := proposed
	withOtherDolly.Dolly = "DLY0002"

	verdict, err := s.resolver.ValidateComposition(context.Background(), models.StateMG, withOtherDolly, compositionPolicy())
	s.Require().NoError(err)
	s.True(verdict.Blocked)
	s.Equal(CompositionRoadtrain, verdict.CompositionType)
}

func (s *ResolverTestSuite) TestCompositionMatchIgnoresPlateFormatting() {
	s.repo.licenses = []models.IssuedLicense{s.license("AET-MG-005", models.StateMG, 90, proposed)}

	formatted := PlateSet{Tractor: "bdi-1a71", Trailer1: "bcb 0886", Trailer2: "BCB.0887"}
	verdict, err := s.resolver.ValidateComposition(context.Background(), models.StateMG, formatted, compositionPolicy())
	s.Require().NoError(err)
	s.True(verdict.Blocked)
}

func (s *ResolverTestSuite) TestPlateOverlapBlocksOnSharedTractor() {
	other := PlateSet{Tractor: "BDI1A71", Trailer1: "XYZ1234", Trailer2: "ABC5678"}
	s.repo.licenses = []models.IssuedLicense{s.license("AET-MG-006", models.StateMG, 70, other)}

	verdict, err := s.resolver.ValidateComposition(context.Background(), models.StateMG, proposed, platePolicy())
	s.Require().NoError(err)

	s.True(verdict.Blocked)
	s.Equal(MatchPlate, verdict.MatchKind)
	s.Equal("AET-MG-006", verdict.ConflictingLicense)
	s.Equal(70, *verdict.DaysRemaining)
}

func (s *ResolverTestSuite) TestPlateOverlapIgnoresSharedDolly() {
	other := PlateSet{Tractor: "AAA0001", Trailer1: "AAA0002", Dolly: "DLY0001"}
	s.repo.licenses = []models.IssuedLicense{s.license("AET-MG-007", models.StateMG, 120, other)}

	withDolly := proposed
	withDolly.Dolly = "DLY0001"
	verdict, err := s.resolver.ValidateComposition(context.Background(), models.StateMG, withDolly, platePolicy())
	s.Require().NoError(err)
	s.False(verdict.Blocked)
	s.Equal(MatchNone, verdict.MatchKind)
}

func (s *ResolverTestSuite) TestInsideRenewalWindowAllowsEitherStrategy() {
	s.repo.licenses = []models.IssuedLicense{s.license("AET-MG-008", models.StateMG, 45, proposed)}

	for _, policy := range []Policy{platePolicy(), compositionPolicy()} {
		verdict, err := s.resolver.ValidateComposition(context.Background(), models.StateMG, proposed, policy)
		s.Require().NoError(err)
		s.False(verdict.Blocked, "strategy %s", policy.Strategy)
		s.Equal(45, *verdict.DaysRemaining)
		s.Equal("AET-MG-008", verdict.ConflictingLicense)
		s.Equal(ReasonRenewalWindow, verdict.Reason)
	}
}

func (s *ResolverTestSuite) TestExactlyAtThresholdAllows() {
	s.repo.licenses = []models.IssuedLicense{s.license("AET-MG-009", models.StateMG, 60, proposed)}

	verdict, err := s.resolver.ValidateComposition(context.Background(), models.StateMG, proposed, platePolicy())
	s.Require().NoError(err)
	s.False(verdict.Blocked)

	s.repo.licenses = []models.IssuedLicense{s.license("AET-MG-010", models.StateMG, 61, proposed)}
	verdict, err = s.resolver.ValidateComposition(context.Background(), models.StateMG, proposed, platePolicy())
	s.Require().NoError(err)
	s.True(verdict.Blocked)
}

func (s *ResolverTestSuite) TestLongestMatchDecides() {
	s.repo.licenses = []models.IssuedLicense{
		s.license("AET-MG-011", models.StateMG, 20, proposed),
		s.license("AET-MG-012", models.StateMG, 300, PlateSet{Tractor: "BDI1A71", Trailer1: "OTHER01"}),
	}

	verdict, err := s.resolver.ValidateComposition(context.Background(), models.StateMG, proposed, platePolicy())
	s.Require().NoError(err)
	s.True(verdict.Blocked)
	s.Equal("AET-MG-012", verdict.ConflictingLicense)
}

func (s *ResolverTestSuite) TestExpiredAndCanceledCandidatesIgnored() {
	expired := s.license("AET-MG-013", models.StateMG, -1, proposed)
	canceled := s.license("AET-MG-014", models.StateMG, 300, proposed)
	canceled.Status = models.LicenseStatusCanceled
	s.repo.licenses = []models.IssuedLicense{expired, canceled}

	verdict, err := s.resolver.ValidateComposition(context.Background(), models.StateMG, proposed, platePolicy())
	s.Require().NoError(err)
	s.False(verdict.Blocked)
	s.Equal(MatchNone, verdict.MatchKind)
}

func (s *ResolverTestSuite) TestNoCandidates() {
	verdict, err := s.resolver.ValidateComposition(context.Background(), models.StateSP, proposed, platePolicy())
	s.Require().NoError(err)
	s.False(verdict.Blocked)
	s.Equal(MatchNone, verdict.MatchKind)
	s.Equal(ReasonNoConflict, verdict.Reason)
	s.Equal(models.StateSP, verdict.State)
}

func (s *ResolverTestSuite) TestRepositoryErrorFailsOpen() {
	s.repo.err = errors.New("connection refused")

	verdict, err := s.resolver.ValidateComposition(context.Background(), models.StateMG, proposed, compositionPolicy())
	s.Require().NoError(err)
	s.False(verdict.Blocked)
	s.Equal(MatchNone, verdict.MatchKind)
	s.Equal(ReasonSuppressedError, verdict.Reason)

	var unavailable *RepositoryUnavailableError
	s.Require().True(errors.As(verdict.Err, &unavailable))
	s.Equal(models.StateMG, unavailable.State)

	entry := s.logHook.LastEntry()
	s.Require().NotNil(entry)
	s.Equal(logrus.WarnLevel, entry.Level)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.FailOpen.WithLabelValues("MG")))
}

func (s *ResolverTestSuite) TestRepositoryPanicFailsOpen() {
	s.repo.panicWith = "driver exploded"

	verdict, err := s.resolver.ValidateComposition(context.Background(), models.StateMG, proposed, platePolicy())
	s.Require().NoError(err)
	s.False(verdict.Blocked)
	s.Equal(ReasonSuppressedError, verdict.Reason)
}

func (s *ResolverTestSuite) TestSuppressedErrorIsInvisibleOnTheWire() {
	s.repo.err = errors.New("timeout")
	failed, err := s.resolver.ValidateComposition(context.Background(), models.StateMG, proposed, platePolicy())
	s.Require().NoError(err)

	s.repo.err = nil
	clean, err := s.resolver.ValidateComposition(context.Background(), models.StateMG, proposed, platePolicy())
	s.Require().NoError(err)

	s.NotEqual(failed.Reason, clean.Reason)
	failed.Reason, failed.Err = "", nil
	clean.Reason = ""
	s.Equal(clean, failed)
}

func (s *ResolverTestSuite) TestInvalidInputIsSurfaced() {
	_, err := s.resolver.ValidateComposition(context.Background(), "XX", proposed, platePolicy())
	s.ErrorIs(err, ErrUnknownStateCode)

	_, err = s.resolver.ValidateComposition(context.Background(), models.StateMG, PlateSet{Tractor: "BDI1A71"}, platePolicy())
	s.ErrorIs(err, ErrInvalidComposition)

	_, err = s.resolver.ValidateComposition(context.Background(), models.StateMG, proposed, Policy{Strategy: StrategyPlate, ThresholdDays: -5})
	s.ErrorIs(err, ErrInvalidPolicy)

	s.Empty(s.repo.calls, "invalid input must not reach the repository")
}

func (s *ResolverTestSuite) TestValidateStates() {
	s.repo.licenses = []models.IssuedLicense{
		s.license("AET-MG-020", models.StateMG, 90, proposed),
		s.license("AET-SP-020", models.StateSP, 10, proposed),
	}

	states := []models.StateCode{models.StateMG, models.StateSP, models.StateMG, models.StateDNIT}
	verdicts, err := s.resolver.ValidateStates(context.Background(), states, proposed, compositionPolicy())
	s.Require().NoError(err)
	s.Require().Len(verdicts, 3)

	s.Equal(models.StateMG, verdicts[0].State)
	s.True(verdicts[0].Blocked)
	s.Equal(models.StateSP, verdicts[1].State)
	s.False(verdicts[1].Blocked)
	s.Equal(models.StateDNIT, verdicts[2].State)
	s.False(verdicts[2].Blocked)

	s.Equal([]models.StateCode{models.StateMG}, BlockedStates(verdicts))
}

func (s *ResolverTestSuite) TestValidateStatesRejectsUnknownState() {
	_, err := s.resolver.ValidateStates(context.Background(), []models.StateCode{models.StateMG, "ZZ"}, proposed, platePolicy())
	s.ErrorIs(err, ErrUnknownStateCode)
	s.Empty(s.repo.calls)
}

func TestResolverSuite(t *testing.T) {
	suite.Run(t, new(ResolverTestSuite))
}

func TestValidateStatesConcurrent(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	repo := &fakeRepository{}
	for _, state := range []models.StateCode{models.StateMG, models.StateGO, models.StateBA, models.StatePR} {
		repo.licenses = append(repo.licenses, models.IssuedLicense{
			LicenseNumber: "AET-" + string(state),
			State:         state,
			IssuedAt:      now.AddDate(0, -1, 0),
			ValidUntil:    now.AddDate(0, 0, 100),
			Status:        models.LicenseStatusActive,
			TractorPlate:  "BDI1A71",
			Trailer1Plate: "BCB0886",
		})
	}

	resolver := NewResolver(repo, WithClock(func() time.Time { return now }), WithConcurrency(4))
	states := []models.StateCode{models.StateMG, models.StateGO, models.StateBA, models.StatePR, models.StateSC}

	verdicts, err := resolver.ValidateStates(context.Background(), states, PlateSet{Tractor: "BDI1A71", Trailer1: "BCB0886"}, DefaultPolicy())
	require.NoError(t, err)
	require.Len(t, verdicts, len(states))
	for i, v := range verdicts {
		assert.Equal(t, states[i], v.State)
	}
	assert.Equal(t, []models.StateCode{models.StateMG, models.StateGO, models.StateBA, models.StatePR}, BlockedStates(verdicts))
	assert.Len(t, repo.calls, len(states))
}

func TestResolverWithoutRepositoryFailsOpen(t *testing.T) {
	resolver := NewResolver(nil)
	verdict, err := resolver.ValidateComposition(context.Background(), models.StateMG, proposed, DefaultPolicy())
	require.NoError(t, err)
	assert.False(t, verdict.Blocked)
	assert.Equal(t, ReasonSuppressedError, verdict.Reason)
}
