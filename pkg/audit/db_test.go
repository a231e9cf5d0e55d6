package audit

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock
}

func TestNewDBFeed(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		mock.ExpectExec("CREATE TABLE IF NOT EXISTS change_events").WillReturnResult(sqlmock.NewResult(0, 0))

		feed, err := NewDBFeed(db)
		require.NoError(t, err)
		assert.NotNil(t, feed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nil database", func(t *testing.T) {
		feed, err := NewDBFeed(nil)
		assert.Error(t, err)
		assert.Nil(t, feed)
	})

	t.Run("table creation error", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		mock.ExpectExec("CREATE TABLE IF NOT EXISTS change_events").WillReturnError(errors.New("boom"))

		feed, err := NewDBFeed(db)
		assert.Error(t, err)
		assert.Nil(t, feed)
		assert.Contains(t, err.Error(), "failed to ensure change_events table")
	})
}

func TestDBFeed_Append(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	feed := &DBFeed{db: db}
	ctx := context.Background()

	event := &Event{
		TransactionID: 42,
		Table:         "versionpin",
		Action:        "update",
		Before:        RowImage{"distribution_id": "1"},
		Changes:       RowImage{"distribution_id": "2"},
	}

	mock.ExpectQuery("INSERT INTO change_events").
		WithArgs(
			int64(42), "versionpin", "UPDATE",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
		).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	err := feed.Append(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, int64(7), event.ID)
	assert.Equal(t, ActionUpdate, event.Action)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBFeed_EventsForTransaction(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	feed := &DBFeed{db: db}
	ctx := context.Background()
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"id", "transaction_id", "table_name", "action",
		"before_image", "changes_image", "created_at",
	}).
		AddRow(1, 42, "versionpin", "UPDATE",
			[]byte(`{"distribution_id":"1"}`), []byte(`{"distribution_id":"2"}`), now).
		AddRow(2, 42, "withs", "INSERT",
			nil, []byte(`{"package":"vray","pin_id":"9"}`), now)

	mock.ExpectQuery("SELECT id, transaction_id, table_name, action").
		WithArgs(int64(42)).
		WillReturnRows(rows)

	events, err := feed.EventsForTransaction(ctx, 42)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, ActionUpdate, events[0].Action)
	assert.Equal(t, RowImage{"distribution_id": "1"}, events[0].Before)
	assert.Equal(t, RowImage{"distribution_id": "2"}, events[0].Changes)

	assert.Equal(t, "withs", events[1].Table)
	assert.Nil(t, events[1].Before)
	assert.Equal(t, "vray", events[1].Changes["package"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBFeed_DeleteOlderThan(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	feed := &DBFeed{db: db}
	cutoff := time.Now().UTC().Add(-30 * 24 * time.Hour)

	mock.ExpectExec("DELETE FROM change_events WHERE created_at").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 12))

	removed, err := feed.DeleteOlderThan(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(12), removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
