// Package tariff stores the per-vehicle-class billing rates.
package tariff

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parking-backend/internal/billing"
	"parking-backend/internal/model"
)

// ErrNotFound is returned when no tariff row exists for a vehicle class.
var ErrNotFound = errors.New("tariff not found")

// Store defines read/write access to tariffs.
type Store interface {
	List(ctx context.Context) ([]model.Tariff, error)
	Get(ctx context.Context, vehicleClass string) (model.Tariff, error)
	Upsert(ctx context.Context, t model.Tariff) error
	Seed(ctx context.Context, defaults []model.Tariff) error
	// Rates returns the rates for a class, zero rates when none is configured.
	Rates(ctx context.Context, vehicleClass string) (billing.Rates, error)
}

// gormStore implements Store with a short read-through cache in front of the table.
type gormStore struct {
	db    *gorm.DB
	cache *cache.Cache
}

// NewGormStore creates a new GORM-backed tariff store. A zero ttl disables caching.
func NewGormStore(db *gorm.DB, ttl time.Duration) Store {
	s := &gormStore{db: db}
	if ttl > 0 {
		s.cache = cache.New(ttl, 2*ttl)
	}
	return s
}

// NormalizeClass upper-cases and trims a vehicle class the way every row is keyed.
func NormalizeClass(class string) string {
	return strings.ToUpper(strings.TrimSpace(class))
}

func (s *gormStore) List(ctx context.Context) ([]model.Tariff, error) {
	var tariffs []model.Tariff
	if err := s.db.WithContext(ctx).Order("vehicle_class ASC").Find(&tariffs).Error; err != nil {
		return nil, errors.Wrap(err, "list tariffs")
	}
	return tariffs, nil
}

func (s *gormStore) Get(ctx context.Context, vehicleClass string) (model.Tariff, error) {
	class := NormalizeClass(vehicleClass)
	if s.cache != nil {
		if cached, found := s.cache.Get(class); found {
			return cached.(model.Tariff), nil
		}
	}

	var t model.Tariff
	err := s.db.WithContext(ctx).Where("vehicle_class = ?", class).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Tariff{}, errors.Wrapf(ErrNotFound, "class %q", class)
	}
	if err != nil {
		return model.Tariff{}, errors.Wrapf(err, "get tariff %q", class)
	}

	if s.cache != nil {
		s.cache.SetDefault(class, t)
	}
	return t, nil
}

// Upsert writes the tariff of a class; the last write wins.
func (s *gormStore) Upsert(ctx context.Context, t model.Tariff) error {
	t.VehicleClass = NormalizeClass(t.VehicleClass)
	if t.VehicleClass == "" {
		return errors.New("vehicle class is required")
	}
	if t.FirstHour < 0 || t.SubsequentHour < 0 {
		return errors.Newf("negative rate for class %q", t.VehicleClass)
	}
	t.UpdatedAt = time.Now().UTC()

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "vehicle_class"}},
		DoUpdates: clause.AssignmentColumns([]string{"first_hour", "subsequent_hour", "updated_at"}),
	}).Create(&t).Error
	if err != nil {
		return errors.Wrapf(err, "upsert tariff %q", t.VehicleClass)
	}

	if s.cache != nil {
		s.cache.Delete(t.VehicleClass)
	}
	log.Info().Str("class", t.VehicleClass).Int64("first_hour", t.FirstHour).
		Int64("subsequent_hour", t.SubsequentHour).Msg("tariff updated")
	return nil
}

// Seed inserts the given tariffs for classes that have no row yet.
func (s *gormStore) Seed(ctx context.Context, defaults []model.Tariff) error {
	for _, t := range defaults {
		t.VehicleClass = NormalizeClass(t.VehicleClass)
		t.UpdatedAt = time.Now().UTC()
		err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&t).Error
		if err != nil {
			return errors.Wrapf(err, "seed tariff %q", t.VehicleClass)
		}
	}
	return nil
}

func (s *gormStore) Rates(ctx context.Context, vehicleClass string) (billing.Rates, error) {
	t, err := s.Get(ctx, vehicleClass)
	if errors.Is(err, ErrNotFound) {
		log.Warn().Str("class", vehicleClass).Msg("no tariff configured; charging zero")
		return billing.Rates{}, nil
	}
	if err != nil {
		return billing.Rates{}, err
	}
	return billing.Rates{FirstHour: t.FirstHour, SubsequentHour: t.SubsequentHour}, nil
}
