package revision

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrUnknownRevision is returned when a revision id resolves to nothing.
var ErrUnknownRevision = errors.New("unknown revision")

// Revision names one recorded transaction: who committed it, when, why,
// and what it changed. Document is a snapshot taken at record time, so the
// revision stays readable after retention sweeps drop the raw events. The
// link back to the feed is the transaction id only; there is no live
// reference into the registry.
type Revision struct {
	ID            string          `json:"id"`
	TransactionID int64           `json:"transaction_id"`
	Author        string          `json:"author"`
	Comment       string          `json:"comment"`
	Document      *ChangeDocument `json:"change_document,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ListFilter narrows revision listings.
type ListFilter struct {
	Author    string
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
	Offset    int
}

// Store keeps revision records. Record assigns the revision id.
type Store interface {
	Record(ctx context.Context, rev *Revision) error
	Get(ctx context.Context, id string) (*Revision, error)
	List(ctx context.Context, filter ListFilter) ([]*Revision, error)
	Close() error
}

// MemoryStore is an in-process Store for tests and single-node use.
type MemoryStore struct {
	mu        sync.RWMutex
	revisions map[string]*Revision
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{revisions: make(map[string]*Revision)}
}

// Record stores a copy of the revision, assigning its id and timestamp.
func (s *MemoryStore) Record(_ context.Context, rev *Revision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rev.ID == "" {
		rev.ID = uuid.New().String()
	}
	if rev.CreatedAt.IsZero() {
		rev.CreatedAt = time.Now().UTC()
	}
	stored := *rev
	s.revisions[stored.ID] = &stored
	return nil
}

// Get fetches one revision by id.
func (s *MemoryStore) Get(_ context.Context, id string) (*Revision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rev, ok := s.revisions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRevision, id)
	}
	copied := *rev
	return &copied, nil
}

// List returns revisions newest first.
func (s *MemoryStore) List(_ context.Context, filter ListFilter) ([]*Revision, error) {
	s.mu.RLock()
	out := make([]*Revision, 0, len(s.revisions))
	for _, rev := range s.revisions {
		if filter.Author != "" && rev.Author != filter.Author {
			continue
		}
		if filter.StartTime != nil && rev.CreatedAt.Before(*filter.StartTime) {
			continue
		}
		if filter.EndTime != nil && rev.CreatedAt.After(*filter.EndTime) {
			continue
		}
		copied := *rev
		out = append(out, &copied)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].TransactionID > out[j].TransactionID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []*Revision{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

// DBStore implements Store on PostgreSQL.
type DBStore struct {
	db *sql.DB
}

// NewDBStore wraps an open connection and ensures the revisions table
// exists. The connection is shared; Close does not close it.
func NewDBStore(db *sql.DB) (*DBStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	store := &DBStore{db: db}
	if err := store.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure revisions table: %w", err)
	}
	return store, nil
}

func (s *DBStore) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS revisions (
		id UUID PRIMARY KEY,
		transaction_id BIGINT NOT NULL,
		author VARCHAR(255) NOT NULL,
		comment TEXT,
		change_document JSONB,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_revisions_created_at ON revisions(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_revisions_transaction ON revisions(transaction_id);
	CREATE INDEX IF NOT EXISTS idx_revisions_author ON revisions(author);
	`

	_, err := s.db.Exec(query)
	return err
}

// Record inserts the revision, assigning its id and timestamp.
func (s *DBStore) Record(ctx context.Context, rev *Revision) error {
	if rev.ID == "" {
		rev.ID = uuid.New().String()
	}
	if rev.CreatedAt.IsZero() {
		rev.CreatedAt = time.Now().UTC()
	}

	var doc []byte
	if rev.Document != nil {
		var err error
		doc, err = json.Marshal(rev.Document)
		if err != nil {
			return fmt.Errorf("failed to marshal change document: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revisions (id, transaction_id, author, comment, change_document, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rev.ID, rev.TransactionID, rev.Author, rev.Comment, doc, rev.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert revision: %w", err)
	}
	return nil
}

// Get fetches one revision by id.
func (s *DBStore) Get(ctx context.Context, id string) (*Revision, error) {
	rev := &Revision{}
	var doc []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, transaction_id, author, comment, change_document, created_at
		FROM revisions WHERE id = $1
	`, id).Scan(&rev.ID, &rev.TransactionID, &rev.Author, &rev.Comment, &doc, &rev.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRevision, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get revision: %w", err)
	}
	if err := unmarshalDocument(doc, rev); err != nil {
		return nil, err
	}
	return rev, nil
}

func unmarshalDocument(doc []byte, rev *Revision) error {
	if len(doc) == 0 {
		return nil
	}
	rev.Document = &ChangeDocument{}
	if err := json.Unmarshal(doc, rev.Document); err != nil {
		return fmt.Errorf("failed to unmarshal change document: %w", err)
	}
	return nil
}

// List returns revisions newest first.
func (s *DBStore) List(ctx context.Context, filter ListFilter) ([]*Revision, error) {
	query := `
		SELECT id, transaction_id, author, comment, change_document, created_at
		FROM revisions
		WHERE 1=1
	`

	args := []interface{}{}
	argCount := 1

	if filter.Author != "" {
		query += fmt.Sprintf(" AND author = $%d", argCount)
		args = append(args, filter.Author)
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

	query += " ORDER BY created_at DESC, transaction_id DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argCount)
		args = append(args, filter.Limit)
		argCount++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argCount)
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list revisions: %w", err)
	}
	defer rows.Close()

	revisions := make([]*Revision, 0)
	for rows.Next() {
		rev := &Revision{}
		var doc []byte
		if err := rows.Scan(&rev.ID, &rev.TransactionID, &rev.Author, &rev.Comment, &doc, &rev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan revision: %w", err)
		}
		if err := unmarshalDocument(doc, rev); err != nil {
			return nil, err
		}
		revisions = append(revisions, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating revisions: %w", err)
	}
	return revisions, nil
}

// Close releases nothing; the connection is owned by the caller.
func (s *DBStore) Close() error { return nil }
