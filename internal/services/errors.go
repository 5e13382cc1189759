// internal/services/errors.go
package services

import (
	"errors"
	"strings"

	"github.com/aetflow/aet-backend/internal/conflict"
	"github.com/aetflow/aet-backend/internal/repository"
)

var (
	ErrRequestNotFound        = errors.New("license request not found")
	ErrRequestNotDraft        = errors.New("license request is not a draft")
	ErrStateNotRequested      = errors.New("state is not part of the license request")
	ErrInvalidTransition      = errors.New("invalid state status transition")
	ErrStatesBlocked          = errors.New("license request blocked for one or more states")
	ErrVehicleNotFound        = errors.New("vehicle not found")
	ErrVehicleExists          = errors.New("vehicle with this plate already exists")
	ErrLicenseNotFound        = repository.ErrIssuedLicenseNotFound
	ErrLicenseAlreadyCanceled = errors.New("issued license already canceled")
	ErrLicenseNumberTaken     = errors.New("AET number already issued for this state")
)

// StatesBlockedError carries every verdict of a refused submission, blocked
// and allowed alike, so callers can show the full picture.
type StatesBlockedError struct {
	Verdicts []conflict.Verdict
}

func (e *StatesBlockedError) Error() string {
	states := conflict.BlockedStates(e.Verdicts)
	codes := make([]string, len(states))
	for i, s := range states {
		codes[i] = string(s)
	}
	return ErrStatesBlocked.Error() + ": " + strings.Join(codes, ", ")
}

func (e *StatesBlockedError) Is(target error) bool {
	return target == ErrStatesBlocked
}
