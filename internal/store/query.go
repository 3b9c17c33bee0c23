package store

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"gorm.io/gorm"

	"parking-backend/internal/billing"
	"parking-backend/internal/model"
	"parking-backend/internal/tariff"
)

type snapshotRow struct {
	Name         string
	State        model.CubicleState
	VehicleClass *string
	CubicleTag   *string
	RecordID     *int64
	RecordTag    *string
	RecordClass  *string
	EntryAt      *time.Time
}

// Snapshot projects every cubicle with its active record. The filter matches
// tag or cubicle name, case-insensitively.
func (s *gormStore) Snapshot(ctx context.Context, filter string) ([]CubicleView, error) {
	q := s.db.WithContext(ctx).
		Table("cubicles AS c").
		Select("c.name AS name, c.state AS state, c.vehicle_class AS vehicle_class, c.tag AS cubicle_tag, " +
			"r.id AS record_id, r.tag AS record_tag, r.vehicle_class AS record_class, r.entry_at AS entry_at").
		Joins("LEFT JOIN billing_records AS r ON r.id = c.billing_record_id")

	if f := strings.ToUpper(strings.TrimSpace(filter)); f != "" {
		pattern := "%" + f + "%"
		q = q.Where("UPPER(COALESCE(r.tag, c.tag, '')) LIKE ? OR UPPER(c.name) LIKE ?", pattern, pattern)
	}

	var rows []snapshotRow
	if err := q.Order("c.name ASC").Scan(&rows).Error; err != nil {
		return nil, unavailable(err, "snapshot cubicles")
	}

	now := s.now()
	rates := make(map[string]billing.Rates)
	views := make([]CubicleView, 0, len(rows))
	for _, row := range rows {
		view := CubicleView{
			Name:         row.Name,
			State:        row.State,
			VehicleClass: row.VehicleClass,
			RecordID:     row.RecordID,
			Tag:          row.CubicleTag,
			EntryAt:      row.EntryAt,
		}
		if row.RecordTag != nil {
			view.Tag = row.RecordTag
		}

		open := row.State == model.CubiclePending || row.State == model.CubicleOccupied
		if row.RecordID != nil && row.EntryAt != nil && open {
			class := s.carClass
			if row.RecordClass != nil && *row.RecordClass != "" {
				class = *row.RecordClass
			} else if row.VehicleClass != nil {
				class = *row.VehicleClass
			}
			r, ok := rates[class]
			if !ok {
				var err error
				if r, err = s.tariffs.Rates(ctx, class); err != nil {
					return nil, unavailable(err, "load tariff")
				}
				rates[class] = r
			}
			view.Minutes = billing.ElapsedMinutes(*row.EntryAt, now)
			view.Charge = billing.Charge(view.Minutes, r, s.graceMinutes)
		}
		views = append(views, view)
	}
	return views, nil
}

// DisplayStatus returns name, state and class of every cubicle, ordered by name.
func (s *gormStore) DisplayStatus(ctx context.Context) ([]CubicleStatus, error) {
	var cubicles []model.Cubicle
	if err := s.db.WithContext(ctx).Select("name", "state", "vehicle_class").
		Order("name ASC").Find(&cubicles).Error; err != nil {
		return nil, unavailable(err, "load display status")
	}
	out := make([]CubicleStatus, len(cubicles))
	for i, c := range cubicles {
		out[i] = CubicleStatus{Name: c.Name, State: c.State, VehicleClass: c.VehicleClass}
	}
	return out, nil
}

type reportRow struct {
	RecordID     int64
	Cubicle      string
	Code         string
	Tag          string
	VehicleClass string
	EntryAt      time.Time
	ExitAt       time.Time
	Minutes      *int64
	Amount       *int64
}

// Report lists closed records whose exit falls in [from, to+1 day), newest first.
// Either bound may be nil.
func (s *gormStore) Report(ctx context.Context, from, to *time.Time) (Report, error) {
	q := s.db.WithContext(ctx).
		Table("billing_records AS r").
		Select("r.id AS record_id, c.name AS cubicle, r.code AS code, r.tag AS tag, r.vehicle_class AS vehicle_class, " +
			"r.entry_at AS entry_at, r.exit_at AS exit_at, r.total_minutes AS minutes, r.amount AS amount").
		Joins("JOIN cubicles AS c ON c.id = r.cubicle_id").
		Where("r.exit_at IS NOT NULL")
	if from != nil {
		q = q.Where("r.exit_at >= ?", from.UTC())
	}
	if to != nil {
		q = q.Where("r.exit_at < ?", to.UTC().AddDate(0, 0, 1))
	}

	var rows []reportRow
	if err := q.Order("r.exit_at DESC").Scan(&rows).Error; err != nil {
		return Report{}, unavailable(err, "load report")
	}

	report := Report{Entries: make([]ReportEntry, 0, len(rows)), ByClass: make(map[string]ClassTotal)}
	for _, class := range s.classes {
		report.ByClass[class] = ClassTotal{}
	}
	for _, row := range rows {
		class := row.VehicleClass
		if class == "" {
			class, _ = s.classes.ClassOf(row.Cubicle)
		}
		entry := ReportEntry{
			RecordID:     row.RecordID,
			Cubicle:      row.Cubicle,
			Code:         row.Code,
			Tag:          row.Tag,
			VehicleClass: class,
			EntryAt:      row.EntryAt,
			ExitAt:       row.ExitAt,
		}
		if row.Minutes != nil {
			entry.Minutes = *row.Minutes
		}
		if row.Amount != nil {
			entry.Amount = *row.Amount
		}
		report.Entries = append(report.Entries, entry)
		report.Total += entry.Amount
		if class != "" {
			t := report.ByClass[class]
			t.Count++
			t.Total += entry.Amount
			report.ByClass[class] = t
		}
	}
	return report, nil
}

// TariffForCubicle returns the tariff of the cubicle's assigned class, or of the
// class its name implies when nothing is assigned.
func (s *gormStore) TariffForCubicle(ctx context.Context, cubicleName string) (model.Tariff, error) {
	var cub model.Cubicle
	err := s.db.WithContext(ctx).Where("name = ?", cubicleName).First(&cub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cub = model.Cubicle{Name: cubicleName}
	} else if err != nil {
		return model.Tariff{}, unavailable(err, "load cubicle")
	}

	class := ""
	if cub.VehicleClass != nil && *cub.VehicleClass != "" {
		class = *cub.VehicleClass
	} else if inferred, ok := s.classes.ClassOf(cubicleName); ok {
		class = inferred
	} else {
		return model.Tariff{}, errors.Wrapf(ErrCubicleNotFound, "no class for cubicle %q", cubicleName)
	}

	t, err := s.tariffs.Get(ctx, class)
	if err != nil && !errors.Is(err, tariff.ErrNotFound) {
		return model.Tariff{}, unavailable(err, "load tariff")
	}
	return t, err
}
