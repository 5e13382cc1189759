// internal/conflict/errors.go
package conflict

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aetflow/aet-backend/internal/models"
)

var (
	ErrInvalidComposition = errors.New("invalid composition")
	ErrUnknownStateCode   = errors.New("unknown state code")
	ErrInvalidPolicy      = errors.New("invalid validation policy")
)

// InvalidCompositionError reports the mandatory roles a composition is missing.
type InvalidCompositionError struct {
	Missing []string
	Empty   bool
}

func (e *InvalidCompositionError) Error() string {
	if e.Empty {
		return "invalid composition: composition is empty"
	}
	return "invalid composition: missing " + strings.Join(e.Missing, ", ")
}

func (e *InvalidCompositionError) Is(target error) bool {
	return target == ErrInvalidComposition
}

// UnknownStateCodeError carries the rejected code.
type UnknownStateCodeError struct {
	Code string
}

func (e *UnknownStateCodeError) Error() string {
	return fmt.Sprintf("unknown state code %q", e.Code)
}

func (e *UnknownStateCodeError) Is(target error) bool {
	return target == ErrUnknownStateCode
}

// RepositoryUnavailableError wraps any failure reaching the issued license store.
type RepositoryUnavailableError struct {
	State models.StateCode
	Err   error
}

func (e *RepositoryUnavailableError) Error() string {
	return fmt.Sprintf("issued license repository unavailable for %s: %v", e.State, e.Err)
}

func (e *RepositoryUnavailableError) Unwrap() error {
	return e.Err
}

// ParseState validates a raw state code.
func ParseState(raw string) (models.StateCode, error) {
	code, ok := models.CanonicalState(raw)
	if !ok {
		return "", &UnknownStateCodeError{Code: raw}
	}
	return code, nil
}
