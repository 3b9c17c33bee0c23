package store

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"parking-backend/internal/parse"
	"parking-backend/internal/tariff"
)

func newMockStore(t *testing.T) (Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	s := NewGormStore(gormDB, Options{
		Classes:  parse.Classes{"A": "CARRO"},
		CarClass: "CARRO",
		Tariffs:  tariff.NewGormStore(gormDB, 0),
	})
	return s, mock
}

func TestConfirmOccupancy_IsGuardedUpdate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "cubicles" SET "state"=\$1,"updated_at"=\$2 WHERE name = \$3 AND state IN \(\$4,\$5\)`).
		WithArgs("Occupied", sqlmock.AnyArg(), "A1", "Pending", "Occupied").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	applied, err := s.ConfirmOccupancy(context.Background(), "A1")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirmOccupancy_DatabaseFailureIsUnavailable(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "cubicles"`).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := s.ConfirmOccupancy(context.Background(), "A1")
	assert.True(t, errors.Is(err, ErrStoreUnavailable))
	assert.False(t, IsDomainError(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserve_LocksCandidateOnPostgres(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "cubicles" WHERE state = \$1 AND \(UPPER\(name\) LIKE \$2\) ORDER BY name ASC.* FOR UPDATE SKIP LOCKED`).
		WithArgs("Free", "A%", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "state"}))
	mock.ExpectRollback()

	_, err := s.Reserve(context.Background(), "CARRO")
	assert.True(t, errors.Is(err, ErrNoCapacity))
	assert.NoError(t, mock.ExpectationsWereMet())
}
