// internal/conflict/resolver.go
package conflict

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/aetflow/aet-backend/internal/metrics"
	"github.com/aetflow/aet-backend/internal/models"
)

// Repository is the read-only query surface over issued licenses.
//
// FindCandidates returns every active, unexpired license of state that carries
// any of plates in any slot. No match is an empty slice, not an error.
type Repository interface {
	FindCandidates(ctx context.Context, state models.StateCode, plates []string) ([]models.IssuedLicense, error)
}

type Resolver struct {
	repo        Repository
	logger      *logrus.Entry
	metrics     *metrics.Metrics
	now         func() time.Time
	concurrency int
}

type Option func(*Resolver)

func WithLogger(logger *logrus.Entry) Option {
	return func(r *Resolver) { r.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// WithConcurrency bounds how many states ValidateStates checks at once.
// One means strictly sequential.
func WithConcurrency(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

func NewResolver(repo Repository, opts ...Option) *Resolver {
	r := &Resolver{
		repo:        repo,
		logger:      logrus.WithField("component", "conflict.resolver"),
		now:         time.Now,
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ValidateComposition decides whether a new request for composition in state
// must be refused. Only malformed input is returned as an error; a failing
// repository yields an allow verdict.
func (r *Resolver) ValidateComposition(ctx context.Context, state models.StateCode, composition PlateSet, policy Policy) (Verdict, error) {
	if !state.IsKnown() {
		return Verdict{}, &UnknownStateCodeError{Code: string(state)}
	}
	if err := policy.Validate(); err != nil {
		return Verdict{}, err
	}
	compositionType, err := Classify(composition)
	if err != nil {
		return Verdict{}, err
	}

	return r.resolve(ctx, state, composition, compositionType, policy), nil
}

// ValidateStates validates every state independently and returns verdicts in
// input order, duplicates collapsed.
func (r *Resolver) ValidateStates(ctx context.Context, states []models.StateCode, composition PlateSet, policy Policy) ([]Verdict, error) {
	unique := make([]models.StateCode, 0, len(states))
	seen := make(map[models.StateCode]struct{}, len(states))
	for _, state := range states {
		if !state.IsKnown() {
			return nil, &UnknownStateCodeError{Code: string(state)}
		}
		if _, dup := seen[state]; dup {
			continue
		}
		seen[state] = struct{}{}
		unique = append(unique, state)
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	compositionType, err := Classify(composition)
	if err != nil {
		return nil, err
	}

	verdicts := make([]Verdict, len(unique))
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, state := range unique {
		g.Go(func() error {
			verdicts[i] = r.resolve(ctx, state, composition, compositionType, policy)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return verdicts, nil
}

func (r *Resolver) resolve(ctx context.Context, state models.StateCode, composition PlateSet, compositionType CompositionType, policy Policy) Verdict {
	now := r.now()
	verdict := Verdict{
		State:           state,
		MatchKind:       MatchNone,
		CompositionType: compositionType,
		ThresholdDays:   policy.ThresholdDays,
		Reason:          ReasonNoConflict,
	}

	plates := composition.SearchPlates()
	candidates, err := r.fetch(ctx, state, plates)
	if err != nil {
		r.logger.WithFields(logrus.Fields{
			"state":    state,
			"plates":   plates,
			"strategy": policy.Strategy,
		}).WithError(err).Warn("Candidate lookup failed, allowing state")
		r.metrics.ObserveFailOpen(string(state))
		r.metrics.ObserveVerdict(string(policy.Strategy), string(ReasonSuppressedError))
		verdict.Reason = ReasonSuppressedError
		verdict.Err = err
		return verdict
	}

	match, kind := selectMatch(candidates, state, composition, policy.Strategy, now)
	if match == nil {
		r.metrics.ObserveVerdict(string(policy.Strategy), string(verdict.Reason))
		return verdict
	}

	days := DaysRemaining(match.ValidUntil, now)
	validUntil := match.ValidUntil
	verdict.MatchKind = kind
	verdict.ConflictingLicense = match.LicenseNumber
	verdict.LicenseID = match.ID.String()
	verdict.ValidUntil = &validUntil
	verdict.DaysRemaining = &days
	verdict.Blocked = IsBlocking(days, policy.ThresholdDays)
	if verdict.Blocked {
		verdict.Reason = ReasonConflict
	} else {
		verdict.Reason = ReasonRenewalWindow
	}

	r.logger.WithFields(logrus.Fields{
		"state":          state,
		"strategy":       policy.Strategy,
		"license":        match.LicenseNumber,
		"days_remaining": days,
		"threshold":      policy.ThresholdDays,
		"blocked":        verdict.Blocked,
	}).Debug("State validated")
	r.metrics.ObserveVerdict(string(policy.Strategy), string(verdict.Reason))
	return verdict
}

// fetch calls the repository and turns both errors and panics into a
// RepositoryUnavailableError.
func (r *Resolver) fetch(ctx context.Context, state models.StateCode, plates []string) (candidates []models.IssuedLicense, err error) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			candidates = nil
			err = &RepositoryUnavailableError{State: state, Err: fmt.Errorf("panic: %v", rec)}
		}
		r.metrics.ObserveLookup(time.Since(start))
	}()

	if r.repo == nil {
		return nil, &RepositoryUnavailableError{State: state, Err: errors.New("no repository configured")}
	}

	candidates, err = r.repo.FindCandidates(ctx, state, plates)
	if err != nil {
		var unavailable *RepositoryUnavailableError
		if !errors.As(err, &unavailable) {
			err = &RepositoryUnavailableError{State: state, Err: err}
		}
		return nil, err
	}
	return candidates, nil
}

// selectMatch narrows candidates according to strategy and returns the match
// that lasts longest, since it is the one that decides blocking.
func selectMatch(candidates []models.IssuedLicense, state models.StateCode, composition PlateSet, strategy Strategy, now time.Time) (*models.IssuedLicense, MatchKind) {
	var matches []*models.IssuedLicense
	proposed := composition.matchKey()
	searchPlates := composition.SearchPlates()

	for i := range candidates {
		candidate := &candidates[i]
		if candidate.State != state || candidate.EffectiveStatus(now) != models.LicenseStatusActive {
			continue
		}
		switch strategy {
		case StrategyComposition:
			if licenseMatchKey(candidate) == proposed {
				matches = append(matches, candidate)
			}
		default:
			if sharesPlate(candidate, searchPlates) {
				matches = append(matches, candidate)
			}
		}
	}
	if len(matches) == 0 {
		return nil, MatchNone
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if !matches[i].ValidUntil.Equal(matches[j].ValidUntil) {
			return matches[i].ValidUntil.After(matches[j].ValidUntil)
		}
		return matches[i].LicenseNumber < matches[j].LicenseNumber
	})

	if strategy == StrategyComposition {
		return matches[0], MatchComposition
	}
	return matches[0], MatchPlate
}

func sharesPlate(license *models.IssuedLicense, plates []string) bool {
	for _, held := range license.Plates() {
		held = Normalize(held)
		for _, plate := range plates {
			if held == plate {
				return true
			}
		}
	}
	return false
}
