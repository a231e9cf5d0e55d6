package revision

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_RecordAssignsIdentity(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	rev := &Revision{TransactionID: 42, Author: "jgerber", Comment: "bump maya on bayou"}
	require.NoError(t, store.Record(ctx, rev))

	_, err := uuid.Parse(rev.ID)
	assert.NoError(t, err, "assigned id should be a uuid")
	assert.False(t, rev.CreatedAt.IsZero())

	got, err := store.Get(ctx, rev.ID)
	require.NoError(t, err)
	assert.Equal(t, "jgerber", got.Author)
	assert.Equal(t, int64(42), got.TransactionID)
}

func TestMemoryStore_GetUnknown(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Get(context.Background(), uuid.New().String())
	assert.ErrorIs(t, err, ErrUnknownRevision)
}

func TestMemoryStore_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, author := range []string{"jgerber", "ksmith", "jgerber"} {
		rev := &Revision{
			TransactionID: int64(i + 1),
			Author:        author,
			CreatedAt:     base.Add(time.Duration(i) * time.Hour),
		}
		require.NoError(t, store.Record(ctx, rev))
	}

	all, err := store.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, int64(3), all[0].TransactionID)
	assert.Equal(t, int64(1), all[2].TransactionID)

	t.Run("by author", func(t *testing.T) {
		mine, err := store.List(ctx, ListFilter{Author: "jgerber"})
		require.NoError(t, err)
		assert.Len(t, mine, 2)
	})

	t.Run("limit", func(t *testing.T) {
		page, err := store.List(ctx, ListFilter{Limit: 1})
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, int64(3), page[0].TransactionID)
	})
}

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock
}

func TestDBStore_Record(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	store := &DBStore{db: db}
	rev := &Revision{TransactionID: 42, Author: "jgerber", Comment: "bump maya"}

	mock.ExpectExec("INSERT INTO revisions").
		WithArgs(sqlmock.AnyArg(), int64(42), "jgerber", "bump maya", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Record(context.Background(), rev))
	assert.NotEmpty(t, rev.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBStore_Get(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	store := &DBStore{db: db}
	id := uuid.New().String()
	now := time.Now().UTC()

	t.Run("found", func(t *testing.T) {
		doc := []byte(`{"transaction_id":42,"tables":{"versionpin":{"UPDATE":[{"from":{"id":"1"},"to":{"distribution_id":"2"}}]}}}`)
		rows := sqlmock.NewRows([]string{"id", "transaction_id", "author", "comment", "change_document", "created_at"}).
			AddRow(id, 42, "jgerber", "bump maya", doc, now)
		mock.ExpectQuery("SELECT id, transaction_id, author, comment, change_document, created_at").
			WithArgs(id).
			WillReturnRows(rows)

		rev, err := store.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, int64(42), rev.TransactionID)
		require.NotNil(t, rev.Document)
		assert.Contains(t, rev.Document.Tables, "versionpin")
	})

	t.Run("missing", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, transaction_id, author, comment, change_document, created_at").
			WithArgs(id).
			WillReturnError(sql.ErrNoRows)

		_, err := store.Get(context.Background(), id)
		assert.ErrorIs(t, err, ErrUnknownRevision)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
