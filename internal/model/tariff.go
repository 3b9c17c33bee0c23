package model

import "time"

// Tariff is the billing rule for one vehicle class.
type Tariff struct {
	VehicleClass   string    `gorm:"primaryKey;size:32" json:"vehicle_class"`
	FirstHour      int64     `gorm:"not null" json:"first_hour"`
	SubsequentHour int64     `gorm:"not null" json:"subsequent_hour"`
	UpdatedAt      time.Time `gorm:"not null" json:"updated_at"`
}
