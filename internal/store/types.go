package store

import (
	"time"

	"parking-backend/internal/model"
)

// Reservation is the outcome of a successful Reserve.
type Reservation struct {
	CubicleName  string
	RecordID     int64
	Code         string
	VehicleClass string
	EntryAt      time.Time
}

// Settlement is the outcome of FinalizeBilling.
type Settlement struct {
	RecordID     int64
	CubicleName  string
	Tag          string
	VehicleClass string
	Minutes      int64
	Amount       int64
	ExitAt       time.Time
}

// Cancellation describes a reservation removed by CancelReservation or SweepExpired.
type Cancellation struct {
	CubicleName string
	RecordID    int64
	Tag         string
	EntryAt     time.Time
}

// CubicleView is one row of Snapshot. Minutes and Charge are computed at read
// time for Pending and Occupied cubicles and are never stored.
type CubicleView struct {
	Name         string             `json:"name"`
	State        model.CubicleState `json:"state"`
	VehicleClass *string            `json:"vehicle_class"`
	RecordID     *int64             `json:"record_id"`
	Tag          *string            `json:"tag"`
	EntryAt      *time.Time         `json:"entry_at"`
	Minutes      int64              `json:"minutes"`
	Charge       int64              `json:"charge"`
}

// CubicleStatus is the billing-free projection used by the display broadcast.
type CubicleStatus struct {
	Name         string
	State        model.CubicleState
	VehicleClass *string
}

// ReportEntry is one closed billing record.
type ReportEntry struct {
	RecordID     int64     `json:"record_id"`
	Cubicle      string    `json:"cubicle"`
	Code         string    `json:"code"`
	Tag          string    `json:"tag"`
	VehicleClass string    `json:"vehicle_class"`
	EntryAt      time.Time `json:"entry_at"`
	ExitAt       time.Time `json:"exit_at"`
	Minutes      int64     `json:"minutes"`
	Amount       int64     `json:"amount"`
}

// ClassTotal aggregates closed records of one vehicle class.
type ClassTotal struct {
	Count int   `json:"count"`
	Total int64 `json:"total"`
}

// Report is the history of closed records in a date range.
type Report struct {
	Entries []ReportEntry         `json:"entries"`
	Total   int64                 `json:"total"`
	ByClass map[string]ClassTotal `json:"by_class"`
}
