package model

import "time"

// CubicleState is the allocation state of a physical slot.
type CubicleState string

const (
	CubicleFree     CubicleState = "Free"
	CubiclePending  CubicleState = "Pending"
	CubicleOccupied CubicleState = "Occupied"
)

// Cubicle represents a single physical parking slot.
// BillingRecordID is set exactly when State is Pending or Occupied.
type Cubicle struct {
	ID              int64        `gorm:"primaryKey"`
	Name            string       `gorm:"uniqueIndex;size:32;not null"`
	State           CubicleState `gorm:"size:16;not null;default:Free;index"`
	VehicleClass    *string      `gorm:"size:32"`
	Tag             *string      `gorm:"size:64"`
	BillingRecordID *int64       `gorm:"index"`
	UpdatedAt       time.Time    `gorm:"not null"`
}
