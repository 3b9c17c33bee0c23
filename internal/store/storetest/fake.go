// Package storetest provides a configurable store.Store for tests of the
// packages that sit on top of the ledger.
package storetest

import (
	"context"
	"time"

	"gorm.io/gorm"

	"parking-backend/internal/model"
	"parking-backend/internal/store"
)

// Fake implements store.Store by delegating to its func fields. A nil field
// returns zero values.
type Fake struct {
	ReserveFunc           func(ctx context.Context, vehicleClass string) (store.Reservation, error)
	ConfirmOccupancyFunc  func(ctx context.Context, cubicleName string) (bool, error)
	RejectReleaseFunc     func(ctx context.Context, cubicleName string)
	FinalizeBillingFunc   func(ctx context.Context, recordID int64) (store.Settlement, error)
	CancelReservationFunc func(ctx context.Context, cubicleName string) (store.Cancellation, error)
	SweepExpiredFunc      func(ctx context.Context, graceMinutes int) ([]store.Cancellation, error)
	EditTagFunc           func(ctx context.Context, recordID int64, tag string) error
	SnapshotFunc          func(ctx context.Context, filter string) ([]store.CubicleView, error)
	DisplayStatusFunc     func(ctx context.Context) ([]store.CubicleStatus, error)
	ReportFunc            func(ctx context.Context, from, to *time.Time) (store.Report, error)
	TariffForCubicleFunc  func(ctx context.Context, cubicleName string) (model.Tariff, error)
	ProvisionFunc         func(ctx context.Context, names []string) (int, error)
	DBFunc                func() *gorm.DB
}

var _ store.Store = (*Fake)(nil)

func (f *Fake) Reserve(ctx context.Context, vehicleClass string) (store.Reservation, error) {
	if f.ReserveFunc == nil {
		return store.Reservation{}, nil
	}
	return f.ReserveFunc(ctx, vehicleClass)
}

func (f *Fake) ConfirmOccupancy(ctx context.Context, cubicleName string) (bool, error) {
	if f.ConfirmOccupancyFunc == nil {
		return false, nil
	}
	return f.ConfirmOccupancyFunc(ctx, cubicleName)
}

func (f *Fake) RejectRelease(ctx context.Context, cubicleName string) {
	if f.RejectReleaseFunc != nil {
		f.RejectReleaseFunc(ctx, cubicleName)
	}
}

func (f *Fake) FinalizeBilling(ctx context.Context, recordID int64) (store.Settlement, error) {
	if f.FinalizeBillingFunc == nil {
		return store.Settlement{}, nil
	}
	return f.FinalizeBillingFunc(ctx, recordID)
}

func (f *Fake) CancelReservation(ctx context.Context, cubicleName string) (store.Cancellation, error) {
	if f.CancelReservationFunc == nil {
		return store.Cancellation{}, nil
	}
	return f.CancelReservationFunc(ctx, cubicleName)
}

func (f *Fake) SweepExpired(ctx context.Context, graceMinutes int) ([]store.Cancellation, error) {
	if f.SweepExpiredFunc == nil {
		return nil, nil
	}
	return f.SweepExpiredFunc(ctx, graceMinutes)
}

func (f *Fake) EditTag(ctx context.Context, recordID int64, tag string) error {
	if f.EditTagFunc == nil {
		return nil
	}
	return f.EditTagFunc(ctx, recordID, tag)
}

func (f *Fake) Snapshot(ctx context.Context, filter string) ([]store.CubicleView, error) {
	if f.SnapshotFunc == nil {
		return nil, nil
	}
	return f.SnapshotFunc(ctx, filter)
}

func (f *Fake) DisplayStatus(ctx context.Context) ([]store.CubicleStatus, error) {
	if f.DisplayStatusFunc == nil {
		return nil, nil
	}
	return f.DisplayStatusFunc(ctx)
}

func (f *Fake) Report(ctx context.Context, from, to *time.Time) (store.Report, error) {
	if f.ReportFunc == nil {
		return store.Report{}, nil
	}
	return f.ReportFunc(ctx, from, to)
}

func (f *Fake) TariffForCubicle(ctx context.Context, cubicleName string) (model.Tariff, error) {
	if f.TariffForCubicleFunc == nil {
		return model.Tariff{}, nil
	}
	return f.TariffForCubicleFunc(ctx, cubicleName)
}

func (f *Fake) Provision(ctx context.Context, names []string) (int, error) {
	if f.ProvisionFunc == nil {
		return 0, nil
	}
	return f.ProvisionFunc(ctx, names)
}

func (f *Fake) DB() *gorm.DB {
	if f.DBFunc == nil {
		return nil
	}
	return f.DBFunc()
}
