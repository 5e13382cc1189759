// internal/models/license_request.go
package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

type StateRequestStatus string

const (
	StateStatusPendingRegistration    StateRequestStatus = "pending_registration"
	StateStatusRegistrationInProgress StateRequestStatus = "registration_in_progress"
	StateStatusUnderReview            StateRequestStatus = "under_review"
	StateStatusPendingApproval        StateRequestStatus = "pending_approval"
	StateStatusApproved               StateRequestStatus = "approved"
	StateStatusRejected               StateRequestStatus = "rejected"
	StateStatusCanceled               StateRequestStatus = "canceled"
)

// allowed successors for each per-state status; terminal statuses have none
var stateTransitions = map[StateRequestStatus][]StateRequestStatus{
	StateStatusPendingRegistration: {
		StateStatusRegistrationInProgress, StateStatusCanceled,
	},
	StateStatusRegistrationInProgress: {
		StateStatusUnderReview, StateStatusPendingRegistration, StateStatusCanceled,
	},
	StateStatusUnderReview: {
		StateStatusPendingApproval, StateStatusRejected, StateStatusCanceled,
	},
	StateStatusPendingApproval: {
		StateStatusApproved, StateStatusRejected, StateStatusUnderReview, StateStatusCanceled,
	},
}

func (s StateRequestStatus) IsValid() bool {
	switch s {
	case StateStatusPendingRegistration, StateStatusRegistrationInProgress, StateStatusUnderReview,
		StateStatusPendingApproval, StateStatusApproved, StateStatusRejected, StateStatusCanceled:
		return true
	}
	return false
}

func (s StateRequestStatus) IsTerminal() bool {
	return s == StateStatusApproved || s == StateStatusRejected || s == StateStatusCanceled
}

func (s StateRequestStatus) CanTransitionTo(next StateRequestStatus) bool {
	for _, candidate := range stateTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

type LicenseRequest struct {
	BaseModel
	RequestNumber   string         `json:"request_number" gorm:"uniqueIndex;size:30;not null"`
	TransporterCNPJ string         `json:"transporter_cnpj" gorm:"size:14;index"`
	Status          RequestStatus  `json:"status" gorm:"type:varchar(20);default:'draft';index"`
	RequestedStates pq.StringArray `json:"requested_states" gorm:"type:text[];not null"`
	SubmittedAt     *time.Time     `json:"submitted_at"`
	CreatedBy       *uuid.UUID     `json:"created_by" gorm:"type:uuid"`

	TractorID  *uuid.UUID `json:"tractor_id" gorm:"type:uuid;index"`
	Trailer1ID *uuid.UUID `json:"trailer1_id" gorm:"type:uuid;index"`
	Trailer2ID *uuid.UUID `json:"trailer2_id" gorm:"type:uuid;index"`
	DollyID    *uuid.UUID `json:"dolly_id" gorm:"type:uuid;index"`
	FlatbedID  *uuid.UUID `json:"flatbed_id" gorm:"type:uuid;index"`
	TowID      *uuid.UUID `json:"tow_id" gorm:"type:uuid;index"`

	// Relationships
	Tractor       *Vehicle             `json:"tractor,omitempty" gorm:"foreignKey:TractorID"`
	Trailer1      *Vehicle             `json:"trailer1,omitempty" gorm:"foreignKey:Trailer1ID"`
	Trailer2      *Vehicle             `json:"trailer2,omitempty" gorm:"foreignKey:Trailer2ID"`
	Dolly         *Vehicle             `json:"dolly,omitempty" gorm:"foreignKey:DollyID"`
	Flatbed       *Vehicle             `json:"flatbed,omitempty" gorm:"foreignKey:FlatbedID"`
	Tow           *Vehicle             `json:"tow,omitempty" gorm:"foreignKey:TowID"`
	StateStatuses []LicenseStateStatus `json:"state_statuses,omitempty" gorm:"foreignKey:RequestID"`
}

// States returns the requested states as typed codes.
func (r *LicenseRequest) States() []StateCode {
	states := make([]StateCode, 0, len(r.RequestedStates))
	for _, s := range r.RequestedStates {
		states = append(states, StateCode(s))
	}
	return states
}

// StateStatusFor returns the per-state record for state, if one exists.
func (r *LicenseRequest) StateStatusFor(state StateCode) (*LicenseStateStatus, bool) {
	for i := range r.StateStatuses {
		if r.StateStatuses[i].State == state {
			return &r.StateStatuses[i], true
		}
	}
	return nil, false
}

var (
	ErrValidUntilWithoutApproval = errors.New("valid_until is only allowed on approved states")
	ErrApprovalIncomplete        = errors.New("approved states require valid_until and aet_number")
)

// LicenseStateStatus is the per-state record of a request. A state appears at
// most once per request.
type LicenseStateStatus struct {
	BaseModel
	RequestID    uuid.UUID          `json:"request_id" gorm:"type:uuid;not null;uniqueIndex:idx_state_status_request_state"`
	State        StateCode          `json:"state" gorm:"type:varchar(4);not null;uniqueIndex:idx_state_status_request_state"`
	Status       StateRequestStatus `json:"status" gorm:"type:varchar(30);not null;default:'pending_registration';index"`
	ValidUntil   *time.Time         `json:"valid_until,omitempty"`
	AETNumber    *string            `json:"aet_number,omitempty" gorm:"size:50"`
	SelectedCNPJ *string            `json:"selected_cnpj,omitempty" gorm:"size:14"`
}

// Check enforces the approved-only fields invariant.
func (s *LicenseStateStatus) Check() error {
	if s.Status == StateStatusApproved {
		if s.ValidUntil == nil || s.AETNumber == nil || *s.AETNumber == "" {
			return ErrApprovalIncomplete
		}
		return nil
	}
	if s.ValidUntil != nil {
		return ErrValidUntilWithoutApproval
	}
	return nil
}

func (s *LicenseStateStatus) BeforeSave(tx *gorm.DB) error {
	return s.Check()
}
