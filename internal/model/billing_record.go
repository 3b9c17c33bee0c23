package model

import "time"

// BillingRecord is one parking session. ExitAt stays nil while the record
// is the active record of its cubicle.
type BillingRecord struct {
	ID           int64      `gorm:"primaryKey;autoIncrement"`
	CubicleID    int64      `gorm:"index;not null"`
	VehicleClass string     `gorm:"size:32;not null"`
	EntryAt      time.Time  `gorm:"not null;index"`
	ExitAt       *time.Time `gorm:"index"`
	TotalMinutes *int64
	Amount       *int64
	Code         string `gorm:"size:32;not null"`
	Tag          string `gorm:"size:64;not null"`
}
