package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parking-backend/internal/billing"
	"parking-backend/internal/model"
	"parking-backend/internal/parse"
	"parking-backend/internal/tariff"
)

// placeholderTag marks a billing record between its insert and the code write-back.
// It never survives a committed transaction.
const placeholderTag = "TEMP"

// maxReserveAttempts bounds how many candidates Reserve tries after losing a race.
const maxReserveAttempts = 5

// Store defines every operation on cubicles and billing records.
// Each mutating operation runs as one transaction.
type Store interface {
	Reserve(ctx context.Context, vehicleClass string) (Reservation, error)
	ConfirmOccupancy(ctx context.Context, cubicleName string) (bool, error)
	RejectRelease(ctx context.Context, cubicleName string)
	FinalizeBilling(ctx context.Context, recordID int64) (Settlement, error)
	CancelReservation(ctx context.Context, cubicleName string) (Cancellation, error)
	SweepExpired(ctx context.Context, graceMinutes int) ([]Cancellation, error)
	EditTag(ctx context.Context, recordID int64, tag string) error
	Snapshot(ctx context.Context, filter string) ([]CubicleView, error)
	DisplayStatus(ctx context.Context) ([]CubicleStatus, error)
	Report(ctx context.Context, from, to *time.Time) (Report, error)
	TariffForCubicle(ctx context.Context, cubicleName string) (model.Tariff, error)
	Provision(ctx context.Context, names []string) (int, error)
	DB() *gorm.DB
}

// Options configures a gormStore.
type Options struct {
	Classes      parse.Classes
	CarClass     string
	GraceMinutes int
	Tariffs      tariff.Store
	// Now overrides the wall clock; tests use it to simulate elapsed time.
	Now func() time.Time
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db           *gorm.DB
	classes      parse.Classes
	carClass     string
	graceMinutes int64
	tariffs      tariff.Store
	now          func() time.Time
}

// NewGormStore creates a new GORM-backed ledger.
func NewGormStore(db *gorm.DB, opts Options) Store {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &gormStore{
		db:           db,
		classes:      opts.Classes,
		carClass:     opts.CarClass,
		graceMinutes: int64(opts.GraceMinutes),
		tariffs:      opts.Tariffs,
		now:          func() time.Time { return now().UTC() },
	}
}

// DB exposes the underlying handle for components that own their own tables.
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// transact runs fn in one transaction. Failures that are not ledger outcomes
// are reported as ErrStoreUnavailable; gorm has already rolled back.
func (s *gormStore) transact(ctx context.Context, msg string, fn func(tx *gorm.DB) error) error {
	err := s.db.WithContext(ctx).Transaction(fn)
	if err == nil || IsDomainError(err) || errors.Is(err, ErrStoreUnavailable) || errors.Is(err, errLostRace) {
		return err
	}
	return unavailable(err, msg)
}

// lockRow adds FOR UPDATE on drivers that support row locks. SQLite serializes
// writers itself, and every guarded UPDATE below re-checks state anyway.
func lockRow(tx *gorm.DB, skipLocked bool) *gorm.DB {
	if tx.Dialector.Name() != "postgres" {
		return tx
	}
	locking := clause.Locking{Strength: "UPDATE"}
	if skipLocked {
		locking.Options = "SKIP LOCKED"
	}
	return tx.Clauses(locking)
}

func (s *gormStore) classOf(c model.Cubicle) string {
	if c.VehicleClass != nil && *c.VehicleClass != "" {
		return *c.VehicleClass
	}
	if class, ok := s.classes.ClassOf(c.Name); ok {
		return class
	}
	return s.carClass
}

var errLostRace = errors.New("cubicle changed state concurrently")

// Reserve assigns the lexicographically-first Free cubicle of the class.
func (s *gormStore) Reserve(ctx context.Context, vehicleClass string) (Reservation, error) {
	prefixes := s.classes.PrefixesFor(vehicleClass)
	if len(prefixes) == 0 {
		return Reservation{}, errors.Wrapf(ErrNoCapacity, "no cubicle prefix is mapped to class %q", vehicleClass)
	}

	// A name belongs to the class of its longest matching prefix, so each
	// prefix excludes the longer prefixes that other classes own.
	conds := make([]string, len(prefixes))
	var args []any
	for i, p := range prefixes {
		cond := "UPPER(name) LIKE ?"
		args = append(args, p+"%")
		if shadowed := s.classes.ShadowedBy(p, vehicleClass); len(shadowed) > 0 {
			for _, other := range shadowed {
				cond += " AND UPPER(name) NOT LIKE ?"
				args = append(args, other+"%")
			}
			cond = "(" + cond + ")"
		}
		conds[i] = cond
	}
	prefixCond := "(" + strings.Join(conds, " OR ") + ")"

	for attempt := 0; attempt < maxReserveAttempts; attempt++ {
		var out Reservation
		err := s.transact(ctx, "reserve cubicle", func(tx *gorm.DB) error {
			var cub model.Cubicle
			err := lockRow(tx, true).
				Where("state = ?", model.CubicleFree).
				Where(prefixCond, args...).
				Order("name ASC").
				First(&cub).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNoCapacity
			}
			if err != nil {
				return unavailable(err, "select free cubicle")
			}

			now := s.now()
			class := s.classOf(cub)

			// Insert first: the display code is derived from the generated id.
			record := model.BillingRecord{
				CubicleID:    cub.ID,
				VehicleClass: class,
				EntryAt:      now,
				Code:         placeholderTag,
				Tag:          placeholderTag,
			}
			if err := tx.Create(&record).Error; err != nil {
				return unavailable(err, "insert billing record")
			}

			code := parse.DisplayCode(parse.CodePrefix(cub.Name), record.ID)
			if err := tx.Model(&model.BillingRecord{}).Where("id = ?", record.ID).
				Updates(map[string]any{"code": code, "tag": code}).Error; err != nil {
				return unavailable(err, "write display code")
			}

			res := tx.Model(&model.Cubicle{}).
				Where("id = ? AND state = ?", cub.ID, model.CubicleFree).
				Updates(map[string]any{
					"state":             model.CubiclePending,
					"vehicle_class":     class,
					"tag":               code,
					"billing_record_id": record.ID,
					"updated_at":        now,
				})
			if res.Error != nil {
				return unavailable(res.Error, "assign cubicle")
			}
			if res.RowsAffected == 0 {
				return errLostRace
			}

			out = Reservation{
				CubicleName:  cub.Name,
				RecordID:     record.ID,
				Code:         code,
				VehicleClass: class,
				EntryAt:      now,
			}
			return nil
		})
		if errors.Is(err, errLostRace) {
			log.Debug().Int("attempt", attempt+1).Msg("reserve lost a race, retrying")
			continue
		}
		if err != nil {
			return Reservation{}, err
		}
		log.Info().Str("cubicle", out.CubicleName).Str("code", out.Code).Int64("record_id", out.RecordID).
			Msg("cubicle reserved")
		return out, nil
	}
	return Reservation{}, errors.Wrap(ErrNoCapacity, "every candidate was taken concurrently")
}

// ConfirmOccupancy moves a Pending or Occupied cubicle to Occupied. Reports for
// Free or unknown cubicles are late, duplicate or spurious and change nothing.
func (s *gormStore) ConfirmOccupancy(ctx context.Context, cubicleName string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.Cubicle{}).
		Where("name = ? AND state IN ?", cubicleName, []model.CubicleState{model.CubiclePending, model.CubicleOccupied}).
		Updates(map[string]any{"state": model.CubicleOccupied, "updated_at": s.now()})
	if res.Error != nil {
		return false, unavailable(res.Error, "confirm occupancy")
	}
	if res.RowsAffected == 0 {
		log.Debug().Str("cubicle", cubicleName).Msg("occupancy report discarded: no open reservation")
		return false, nil
	}
	log.Info().Str("cubicle", cubicleName).Msg("cubicle confirmed occupied")
	return true, nil
}

// RejectRelease discards a sensor "free" report. Release only ever happens
// through FinalizeBilling, CancelReservation or SweepExpired.
func (s *gormStore) RejectRelease(_ context.Context, cubicleName string) {
	log.Warn().Str("cubicle", cubicleName).Msg("sensor release ignored: billing must be finalized manually")
}

// FinalizeBilling closes an active record and frees its cubicle.
func (s *gormStore) FinalizeBilling(ctx context.Context, recordID int64) (Settlement, error) {
	// Resolve the rates before opening the transaction so the tariff lookup
	// never needs a second connection while row locks are held. The class of an
	// active record cannot change until the record is closed.
	var pre model.BillingRecord
	err := s.db.WithContext(ctx).Where("id = ? AND exit_at IS NULL", recordID).First(&pre).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Settlement{}, errors.Wrapf(ErrRecordNotActive, "record %d", recordID)
	}
	if err != nil {
		return Settlement{}, unavailable(err, "load billing record")
	}
	rates, err := s.tariffs.Rates(ctx, pre.VehicleClass)
	if err != nil {
		return Settlement{}, unavailable(err, "load tariff")
	}

	var out Settlement
	err = s.transact(ctx, "finalize billing", func(tx *gorm.DB) error {
		var record model.BillingRecord
		err := lockRow(tx, false).Where("id = ? AND exit_at IS NULL", recordID).First(&record).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.Wrapf(ErrRecordNotActive, "record %d", recordID)
		}
		if err != nil {
			return unavailable(err, "lock billing record")
		}

		var cub model.Cubicle
		if err := lockRow(tx, false).First(&cub, record.CubicleID).Error; err != nil {
			return unavailable(err, "lock cubicle")
		}

		now := s.now()
		minutes := billing.ElapsedMinutes(record.EntryAt, now)
		amount := billing.Charge(minutes, rates, s.graceMinutes)

		res := tx.Model(&model.BillingRecord{}).
			Where("id = ? AND exit_at IS NULL", record.ID).
			Updates(map[string]any{"exit_at": now, "total_minutes": minutes, "amount": amount})
		if res.Error != nil {
			return unavailable(res.Error, "close billing record")
		}
		if res.RowsAffected == 0 {
			return errors.Wrapf(ErrRecordNotActive, "record %d", recordID)
		}

		res = tx.Model(&model.Cubicle{}).
			Where("id = ? AND billing_record_id = ?", cub.ID, record.ID).
			Updates(freeCubicle(now))
		if res.Error != nil {
			return unavailable(res.Error, "free cubicle")
		}
		if res.RowsAffected == 0 {
			log.Warn().Str("cubicle", cub.Name).Int64("record_id", record.ID).
				Msg("closed record was not attached to its cubicle")
		}

		out = Settlement{
			RecordID:     record.ID,
			CubicleName:  cub.Name,
			Tag:          record.Tag,
			VehicleClass: record.VehicleClass,
			Minutes:      minutes,
			Amount:       amount,
			ExitAt:       now,
		}
		return nil
	})
	if err != nil {
		return Settlement{}, err
	}

	log.Info().Str("cubicle", out.CubicleName).Str("tag", out.Tag).Int64("record_id", out.RecordID).
		Int64("minutes", out.Minutes).Int64("amount", out.Amount).Msg("billing finalized")
	return out, nil
}

func freeCubicle(now time.Time) map[string]any {
	return map[string]any{
		"state":             model.CubicleFree,
		"vehicle_class":     nil,
		"tag":               nil,
		"billing_record_id": nil,
		"updated_at":        now,
	}
}

// release frees a cubicle and deletes its record in tx, provided the cubicle is
// still in one of the given states and still points at recordID.
func (s *gormStore) release(tx *gorm.DB, cubicleID, recordID int64, states []model.CubicleState) error {
	res := tx.Model(&model.Cubicle{}).
		Where("id = ? AND billing_record_id = ? AND state IN ?", cubicleID, recordID, states).
		Updates(freeCubicle(s.now()))
	if res.Error != nil {
		return unavailable(res.Error, "free cubicle")
	}
	if res.RowsAffected == 0 {
		return errLostRace
	}
	if err := tx.Where("id = ? AND exit_at IS NULL", recordID).Delete(&model.BillingRecord{}).Error; err != nil {
		return unavailable(err, "delete billing record")
	}
	return nil
}

// CancelReservation aborts an open reservation, keeping no billing history.
func (s *gormStore) CancelReservation(ctx context.Context, cubicleName string) (Cancellation, error) {
	var out Cancellation
	err := s.transact(ctx, "cancel reservation", func(tx *gorm.DB) error {
		var cub model.Cubicle
		err := lockRow(tx, false).
			Where("name = ? AND state IN ?", cubicleName, []model.CubicleState{model.CubiclePending, model.CubicleOccupied}).
			First(&cub).Error
		if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && cub.BillingRecordID == nil) {
			return errors.Wrapf(ErrNoActiveAssignment, "cubicle %q", cubicleName)
		}
		if err != nil {
			return unavailable(err, "lock cubicle")
		}

		var record model.BillingRecord
		if err := tx.First(&record, *cub.BillingRecordID).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return unavailable(err, "load billing record")
		}

		err = s.release(tx, cub.ID, *cub.BillingRecordID, []model.CubicleState{model.CubiclePending, model.CubicleOccupied})
		if errors.Is(err, errLostRace) {
			return errors.Wrapf(ErrNoActiveAssignment, "cubicle %q", cubicleName)
		}
		if err != nil {
			return err
		}

		out = Cancellation{CubicleName: cub.Name, RecordID: *cub.BillingRecordID, Tag: record.Tag, EntryAt: record.EntryAt}
		return nil
	})
	if err != nil {
		return Cancellation{}, err
	}
	log.Warn().Str("cubicle", out.CubicleName).Str("tag", out.Tag).Int64("record_id", out.RecordID).
		Msg("reservation cancelled")
	return out, nil
}

type sweepCandidate struct {
	CubicleID int64
	Name      string
	RecordID  int64
	Tag       string
	EntryAt   time.Time
}

// SweepExpired cancels Pending reservations older than the grace period. Each
// cubicle is released in its own transaction, so one failure leaves the others
// and its own rows untouched.
func (s *gormStore) SweepExpired(ctx context.Context, graceMinutes int) ([]Cancellation, error) {
	cutoff := s.now().Add(-time.Duration(graceMinutes) * time.Minute)

	var candidates []sweepCandidate
	err := s.db.WithContext(ctx).
		Table("cubicles AS c").
		Select("c.id AS cubicle_id, c.name AS name, r.id AS record_id, r.tag AS tag, r.entry_at AS entry_at").
		Joins("JOIN billing_records AS r ON r.id = c.billing_record_id").
		Where("c.state = ? AND r.entry_at < ?", model.CubiclePending, cutoff).
		Order("c.name ASC").
		Scan(&candidates).Error
	if err != nil {
		return nil, unavailable(err, "select expired reservations")
	}

	var cancelled []Cancellation
	var firstErr error
	for _, c := range candidates {
		err := s.transact(ctx, "expire reservation", func(tx *gorm.DB) error {
			return s.release(tx, c.CubicleID, c.RecordID, []model.CubicleState{model.CubiclePending})
		})
		if errors.Is(err, errLostRace) {
			// Confirmed, finalized or cancelled since the scan.
			continue
		}
		if err != nil {
			log.Error().Err(err).Str("cubicle", c.Name).Msg("failed to expire reservation")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		log.Warn().Str("cubicle", c.Name).Int64("record_id", c.RecordID).Str("tag", c.Tag).
			Msg("reservation expired automatically")
		cancelled = append(cancelled, Cancellation{CubicleName: c.Name, RecordID: c.RecordID, Tag: c.Tag, EntryAt: c.EntryAt})
	}
	return cancelled, firstErr
}

// EditTag rewrites the free-text tag of a record and, while it is active, of its cubicle.
func (s *gormStore) EditTag(ctx context.Context, recordID int64, tag string) error {
	clean := strings.ToUpper(strings.TrimSpace(tag))
	if clean == "" {
		return errors.New("tag must not be empty")
	}

	err := s.transact(ctx, "edit tag", func(tx *gorm.DB) error {
		res := tx.Model(&model.BillingRecord{}).Where("id = ?", recordID).Update("tag", clean)
		if res.Error != nil {
			return unavailable(res.Error, "update record tag")
		}
		if res.RowsAffected == 0 {
			return errors.Wrapf(ErrRecordNotFound, "record %d", recordID)
		}
		if err := tx.Model(&model.Cubicle{}).Where("billing_record_id = ?", recordID).
			Update("tag", clean).Error; err != nil {
			return unavailable(err, "update cubicle tag")
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.Info().Int64("record_id", recordID).Str("tag", clean).Msg("tag updated")
	return nil
}

// Provision creates the named cubicles as Free; existing names are left alone.
func (s *gormStore) Provision(ctx context.Context, names []string) (int, error) {
	created := 0
	for _, name := range names {
		name = strings.ToUpper(strings.TrimSpace(name))
		if _, err := parse.ParseName(name); err != nil {
			return created, err
		}
		cub := model.Cubicle{Name: name, State: model.CubicleFree, UpdatedAt: s.now()}
		res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoNothing: true,
		}).Create(&cub)
		if res.Error != nil {
			return created, unavailable(res.Error, fmt.Sprintf("provision cubicle %q", name))
		}
		created += int(res.RowsAffected)
	}
	return created, nil
}
