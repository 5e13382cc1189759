// internal/models/vehicle.go
package models

type Vehicle struct {
	BaseModel
	Plate     string      `json:"plate" gorm:"uniqueIndex;size:10;not null"`
	Type      VehicleType `json:"type" gorm:"type:varchar(20);not null;index"`
	AxleCount int         `json:"axle_count" gorm:"not null"`
	Brand     string      `json:"brand" gorm:"size:100"`
	Model     string      `json:"model" gorm:"size:100"`
	Year      int         `json:"year,omitempty"`
	OwnerCNPJ string      `json:"owner_cnpj,omitempty" gorm:"size:14;index"`
}
