package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// DBFeed implements Feed on PostgreSQL. Row images are stored as JSONB so
// the column set of the audited tables can evolve without feed migrations.
type DBFeed struct {
	db *sql.DB
}

// NewDBFeed wraps an open connection and ensures the change_events table
// exists. The connection is shared; Close does not close it.
func NewDBFeed(db *sql.DB) (*DBFeed, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	feed := &DBFeed{db: db}
	if err := feed.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure change_events table: %w", err)
	}
	return feed, nil
}

func (f *DBFeed) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS change_events (
		id BIGSERIAL PRIMARY KEY,
		transaction_id BIGINT NOT NULL,
		table_name VARCHAR(100) NOT NULL,
		action VARCHAR(20) NOT NULL,
		before_image JSONB,
		changes_image JSONB,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_change_events_transaction ON change_events(transaction_id);
	CREATE INDEX IF NOT EXISTS idx_change_events_created_at ON change_events(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_change_events_table ON change_events(table_name);
	`

	_, err := f.db.Exec(query)
	return err
}

// Append inserts the event and writes the assigned id back onto it.
func (f *DBFeed) Append(ctx context.Context, event *Event) error {
	var beforeJSON, changesJSON []byte
	var err error

	if event.Before != nil {
		beforeJSON, err = json.Marshal(event.Before)
		if err != nil {
			return fmt.Errorf("failed to marshal before image: %w", err)
		}
	}
	if event.Changes != nil {
		changesJSON, err = json.Marshal(event.Changes)
		if err != nil {
			return fmt.Errorf("failed to marshal changes image: %w", err)
		}
	}

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	event.Action = NormalizeAction(string(event.Action))

	query := `
		INSERT INTO change_events (
			transaction_id, table_name, action,
			before_image, changes_image, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err = f.db.QueryRowContext(ctx, query,
		event.TransactionID, event.Table, string(event.Action),
		beforeJSON, changesJSON, event.CreatedAt,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert change event: %w", err)
	}
	return nil
}

// EventsForTransaction returns the transaction's events in id order.
func (f *DBFeed) EventsForTransaction(ctx context.Context, transactionID int64) ([]*Event, error) {
	return f.Search(ctx, SearchFilter{TransactionID: &transactionID})
}

// Search filters change events, ordered by id ascending.
func (f *DBFeed) Search(ctx context.Context, filter SearchFilter) ([]*Event, error) {
	query := `
		SELECT id, transaction_id, table_name, action,
			before_image, changes_image, created_at
		FROM change_events
		WHERE 1=1
	`

	args := []interface{}{}
	argCount := 1

	if filter.TransactionID != nil {
		query += fmt.Sprintf(" AND transaction_id = $%d", argCount)
		args = append(args, *filter.TransactionID)
		argCount++
	}
	if filter.Table != "" {
		query += fmt.Sprintf(" AND table_name = $%d", argCount)
		args = append(args, filter.Table)
		argCount++
	}
	if filter.Action != nil {
		query += fmt.Sprintf(" AND action = $%d", argCount)
		args = append(args, string(*filter.Action))
		argCount++
	}
	if filter.StartTime != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argCount)
		args = append(args, *filter.StartTime)
		argCount++
	}
	if filter.EndTime != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argCount)
		args = append(args, *filter.EndTime)
		argCount++
	}

	query += " ORDER BY id ASC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argCount)
		args = append(args, filter.Limit)
		argCount++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argCount)
		args = append(args, filter.Offset)
	}

	rows, err := f.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search change events: %w", err)
	}
	defer rows.Close()

	events := make([]*Event, 0)
	for rows.Next() {
		event := &Event{}
		var action string
		var beforeJSON, changesJSON []byte

		err := rows.Scan(
			&event.ID, &event.TransactionID, &event.Table, &action,
			&beforeJSON, &changesJSON, &event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan change event: %w", err)
		}
		event.Action = Action(action)

		if len(beforeJSON) > 0 {
			if err := json.Unmarshal(beforeJSON, &event.Before); err != nil {
				return nil, fmt.Errorf("failed to unmarshal before image: %w", err)
			}
		}
		if len(changesJSON) > 0 {
			if err := json.Unmarshal(changesJSON, &event.Changes); err != nil {
				return nil, fmt.Errorf("failed to unmarshal changes image: %w", err)
			}
		}

		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating change events: %w", err)
	}
	return events, nil
}

// DeleteOlderThan drops events created before the cutoff.
func (f *DBFeed) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := f.db.ExecContext(ctx, "DELETE FROM change_events WHERE created_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired change events: %w", err)
	}
	return res.RowsAffected()
}

// Close releases nothing; the connection is owned by the caller.
func (f *DBFeed) Close() error { return nil }
