// internal/models/issued_license.go
package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrInvalidValidity = errors.New("valid_until must be after issued_at")

// IssuedLicense is an AET that may block new requests for the same state.
type IssuedLicense struct {
	BaseModel
	LicenseNumber   string        `json:"license_number" gorm:"size:50;not null;uniqueIndex:idx_issued_licenses_state_number"`
	State           StateCode     `json:"state" gorm:"type:varchar(4);not null;uniqueIndex:idx_issued_licenses_state_number;index"`
	IssuedAt        time.Time     `json:"issued_at" gorm:"not null"`
	ValidUntil      time.Time     `json:"valid_until" gorm:"not null;index"`
	Status          LicenseStatus `json:"status" gorm:"type:varchar(20);default:'active';index"`
	TractorPlate    string        `json:"tractor_plate,omitempty" gorm:"size:10;index"`
	Trailer1Plate   string        `json:"trailer1_plate,omitempty" gorm:"size:10;index"`
	Trailer2Plate   string        `json:"trailer2_plate,omitempty" gorm:"size:10;index"`
	DollyPlate      string        `json:"dolly_plate,omitempty" gorm:"size:10;index"`
	FlatbedPlate    string        `json:"flatbed_plate,omitempty" gorm:"size:10;index"`
	TowPlate        string        `json:"tow_plate,omitempty" gorm:"size:10;index"`
	SourceRequestID *uuid.UUID    `json:"source_request_id,omitempty" gorm:"type:uuid;index"`
	CanceledAt      *time.Time    `json:"canceled_at,omitempty"`
	CancelReason    string        `json:"cancel_reason,omitempty" gorm:"type:text"`
}

// EffectiveStatus derives expiry at read time; the stored status only ever
// moves from active to canceled.
func (l *IssuedLicense) EffectiveStatus(now time.Time) LicenseStatus {
	if l.Status == LicenseStatusActive && !l.ValidUntil.After(now) {
		return LicenseStatusExpired
	}
	return l.Status
}

// Plates lists every populated plate slot.
func (l *IssuedLicense) Plates() []string {
	plates := make([]string, 0, 6)
	for _, p := range []string{l.TractorPlate, l.Trailer1Plate, l.Trailer2Plate, l.DollyPlate, l.FlatbedPlate, l.TowPlate} {
		if p != "" {
			plates = append(plates, p)
		}
	}
	return plates
}

func (l *IssuedLicense) BeforeCreate(tx *gorm.DB) error {
	if !l.ValidUntil.After(l.IssuedAt) {
		return ErrInvalidValidity
	}
	return nil
}
