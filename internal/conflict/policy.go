// internal/conflict/policy.go
package conflict

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// DefaultRenewalWindowDays is the single source for the renewal window. A
// state may be requested again once its current license has this many days
// or fewer left.
const DefaultRenewalWindowDays = 60

type Strategy string

const (
	// StrategyPlate blocks on any shared plate (legacy default).
	StrategyPlate Strategy = "plate"
	// StrategyComposition blocks only when tractor, trailer-1 and trailer-2 are identical.
	StrategyComposition Strategy = "composition"
)

func ParseStrategy(raw string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(raw))) {
	case StrategyPlate, "":
		return StrategyPlate, nil
	case StrategyComposition:
		return StrategyComposition, nil
	}
	return "", fmt.Errorf("%w: unknown strategy %q", ErrInvalidPolicy, raw)
}

// Policy bundles the matching strategy with the renewal threshold.
type Policy struct {
	Strategy      Strategy `json:"strategy"`
	ThresholdDays int      `json:"threshold_days"`
}

func DefaultPolicy() Policy {
	return Policy{Strategy: StrategyPlate, ThresholdDays: DefaultRenewalWindowDays}
}

func (p Policy) Validate() error {
	if p.Strategy != StrategyPlate && p.Strategy != StrategyComposition {
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidPolicy, p.Strategy)
	}
	if p.ThresholdDays < 0 {
		return fmt.Errorf("%w: threshold must not be negative", ErrInvalidPolicy)
	}
	return nil
}

// IsBlocking reports whether a license with daysRemaining still blocks a new
// request. Exactly threshold days left is inside the renewal window.
func IsBlocking(daysRemaining, threshold int) bool {
	return daysRemaining > threshold
}

// DaysRemaining is ceil((validUntil - now) / 24h). Past dates give zero or less.
func DaysRemaining(validUntil, now time.Time) int {
	return int(math.Ceil(validUntil.Sub(now).Hours() / 24))
}
