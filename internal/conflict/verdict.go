// internal/conflict/verdict.go
package conflict

import (
	"time"

	"github.com/aetflow/aet-backend/internal/models"
)

type MatchKind string

const (
	MatchComposition MatchKind = "composition"
	MatchPlate       MatchKind = "plate"
	MatchNone        MatchKind = "none"
)

// Reason records why a verdict came out the way it did. It is kept off the
// wire so an allow caused by a suppressed store failure looks the same as a
// genuine allow to callers.
type Reason string

const (
	ReasonConflict        Reason = "conflict"
	ReasonRenewalWindow   Reason = "renewal_window"
	ReasonNoConflict      Reason = "no_conflict"
	ReasonSuppressedError Reason = "suppressed_error"
)

type Verdict struct {
	State              models.StateCode `json:"state"`
	Blocked            bool             `json:"blocked"`
	MatchKind          MatchKind        `json:"match_kind"`
	CompositionType    CompositionType  `json:"composition_type"`
	ConflictingLicense string           `json:"conflicting_license,omitempty"`
	LicenseID          string           `json:"license_id,omitempty"`
	ValidUntil         *time.Time       `json:"valid_until,omitempty"`
	DaysRemaining      *int             `json:"days_remaining,omitempty"`
	ThresholdDays      int              `json:"threshold_days"`

	Reason Reason `json:"-"`
	Err    error  `json:"-"`
}

// Allowed reports the inverse of Blocked.
func (v Verdict) Allowed() bool {
	return !v.Blocked
}

// BlockedStates picks the states whose verdict blocks.
func BlockedStates(verdicts []Verdict) []models.StateCode {
	var blocked []models.StateCode
	for _, v := range verdicts {
		if v.Blocked {
			blocked = append(blocked, v.State)
		}
	}
	return blocked
}
