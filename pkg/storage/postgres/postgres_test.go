package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinstack/pinstack/pkg/hierarchy"
	"github.com/pinstack/pinstack/pkg/registry"
)

func setupMockDB(t *testing.T) (*PostgresStore, sqlmock.Sqlmock, *sql.DB) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return &PostgresStore{db: db}, mock, db
}

func TestCreatePackage(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		store, mock, db := setupMockDB(t)
		defer db.Close()

		now := time.Now().UTC()
		mock.ExpectQuery("INSERT INTO packages").
			WithArgs("maya").
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

		pkg := &registry.Package{Name: "maya"}
		require.NoError(t, store.CreatePackage(context.Background(), pkg))
		assert.Equal(t, now, pkg.CreatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate maps to the named error", func(t *testing.T) {
		store, mock, db := setupMockDB(t)
		defer db.Close()

		mock.ExpectQuery("INSERT INTO packages").
			WithArgs("maya").
			WillReturnError(&pq.Error{Code: "23505"})

		err := store.CreatePackage(context.Background(), &registry.Package{Name: "maya"})
		assert.ErrorIs(t, err, registry.ErrDuplicatePackage)
	})
}

func TestGetPackage_Missing(t *testing.T) {
	store, mock, db := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery("SELECT name, created_at FROM packages").
		WithArgs("houdini").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetPackage(context.Background(), "houdini")
	assert.ErrorIs(t, err, registry.ErrUnknownPackage)
}

func TestCreateDistribution_ErrorMapping(t *testing.T) {
	t.Run("duplicate version", func(t *testing.T) {
		store, mock, db := setupMockDB(t)
		defer db.Close()

		mock.ExpectQuery("INSERT INTO distributions").
			WithArgs("maya", "2018.sp3").
			WillReturnError(&pq.Error{Code: "23505"})

		dist := &registry.Distribution{Package: "maya", Version: []string{"2018", "sp3"}}
		err := store.CreateDistribution(context.Background(), dist)
		assert.ErrorIs(t, err, registry.ErrDuplicateDistribution)
	})

	t.Run("unknown package", func(t *testing.T) {
		store, mock, db := setupMockDB(t)
		defer db.Close()

		mock.ExpectQuery("INSERT INTO distributions").
			WithArgs("ghost", "1.0").
			WillReturnError(&pq.Error{Code: "23503"})

		dist := &registry.Distribution{Package: "ghost", Version: []string{"1", "0"}}
		err := store.CreateDistribution(context.Background(), dist)
		assert.ErrorIs(t, err, registry.ErrUnknownPackage)
	})
}

func TestPinsForPackage(t *testing.T) {
	store, mock, db := setupMockDB(t)
	defer db.Close()

	pinRows := sqlmock.NewRows([]string{
		"id", "package", "role", "level", "site", "platform",
		"d_id", "d_package", "d_version",
	}).
		AddRow(1, "maya", "any", "facility", "any", "any", 10, "maya", "2018.sp3").
		AddRow(2, "maya", "any_model", "facility.bayou", "any", "any", 11, "maya", "2019.1")
	mock.ExpectQuery("SELECT p.id, p.package, p.role, p.level, p.site, p.platform").
		WithArgs("maya").
		WillReturnRows(pinRows)

	withRows := sqlmock.NewRows([]string{"pin_id", "package"}).
		AddRow(2, "vray").
		AddRow(2, "alembic")
	mock.ExpectQuery("SELECT pin_id, package FROM withs").
		WillReturnRows(withRows)

	pins, err := store.PinsForPackage(context.Background(), "maya")
	require.NoError(t, err)
	require.Len(t, pins, 2)

	assert.Equal(t, "maya-2018.sp3", pins[0].Distribution.String())
	assert.True(t, pins[0].Coordinate.Role.IsRoot())
	assert.Empty(t, pins[0].Withs)

	assert.Equal(t, 2, pins[1].Coordinate.Level.Depth())
	assert.Equal(t, []string{"vray", "alembic"}, pins[1].Withs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdatePinDistribution_Unknown(t *testing.T) {
	store, mock, db := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec("UPDATE versionpins SET distribution_id").
		WithArgs(int64(10), int64(999)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdatePinDistribution(context.Background(), 999,
		registry.Distribution{ID: 10, Package: "maya"})
	assert.ErrorIs(t, err, registry.ErrUnknownPin)
}

func TestSetWiths(t *testing.T) {
	t.Run("replaces in one transaction", func(t *testing.T) {
		store, mock, db := setupMockDB(t)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT package FROM versionpins").
			WithArgs(int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"package"}).AddRow("maya"))
		mock.ExpectExec("DELETE FROM withs").
			WithArgs(int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec("INSERT INTO withs").
			WithArgs(int64(3), 0, "vray").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO withs").
			WithArgs(int64(3), 1, "alembic").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := store.SetWiths(context.Background(), 3, []string{"vray", "alembic"})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown pin rolls back", func(t *testing.T) {
		store, mock, db := setupMockDB(t)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT package FROM versionpins").
			WithArgs(int64(999)).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		err := store.SetWiths(context.Background(), 999, []string{"vray"})
		assert.ErrorIs(t, err, registry.ErrUnknownPin)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRegisterPath_Idempotent(t *testing.T) {
	store, mock, db := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec("INSERT INTO axis_paths").
		WithArgs("level", "facility.bayou").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO axis_paths").
		WithArgs("level", "facility.bayou").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	p, err := hierarchy.ParsePath(hierarchy.AxisLevel, "bayou")
	require.NoError(t, err)
	require.NoError(t, store.RegisterPath(ctx, p))
	require.NoError(t, store.RegisterPath(ctx, p))
	assert.NoError(t, mock.ExpectationsWereMet())
}
