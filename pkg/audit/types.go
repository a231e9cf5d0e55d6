package audit

import (
	"strings"
	"time"
)

// Action is the kind of row mutation an event records.
type Action string

const (
	ActionInsert Action = "INSERT"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

// NormalizeAction uppercases free-form action text. Unrecognized actions
// are preserved rather than rejected; the revision engine tags them in the
// materialized document instead of failing the whole transaction.
func NormalizeAction(text string) Action {
	return Action(strings.ToUpper(strings.TrimSpace(text)))
}

// Known reports whether the action is one of the three row mutations.
func (a Action) Known() bool {
	switch a {
	case ActionInsert, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// RowImage is a flat column-name to rendered-value snapshot of one row.
// Values are strings regardless of column type; the feed stores what the
// trigger rendered, it does not re-type it.
type RowImage map[string]string

// Clone returns an independent copy, nil in for nil out.
func (r RowImage) Clone() RowImage {
	if r == nil {
		return nil
	}
	out := make(RowImage, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Event is one row-level change inside a transaction.
//
// Before holds the pre-change row image and is empty for inserts. Changes
// holds the changed columns (the full row for inserts) and is empty for
// deletes. An update missing either side is malformed but still stored;
// degradation is the reader's concern.
type Event struct {
	ID            int64     `json:"id"`
	TransactionID int64     `json:"transaction_id"`
	Table         string    `json:"table"`
	Action        Action    `json:"action"`
	Before        RowImage  `json:"before,omitempty"`
	Changes       RowImage  `json:"changes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// SearchFilter narrows event listings.
type SearchFilter struct {
	TransactionID *int64
	Table         string
	Action        *Action
	StartTime     *time.Time
	EndTime       *time.Time

	Limit  int
	Offset int
}

// RetentionPolicy bounds how long change events are kept.
type RetentionPolicy struct {
	// RetentionDays is the age past which a transaction's events are
	// dropped. Zero disables the sweep.
	RetentionDays int
}

// DefaultRetentionPolicy keeps a year of change history.
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{RetentionDays: 365}
}

// Enabled reports whether the policy sweeps at all.
func (p RetentionPolicy) Enabled() bool {
	return p.RetentionDays > 0
}

// Horizon converts the policy to a cutoff instant relative to now. A
// disabled policy returns the zero time, which no stored event predates,
// so sweeping against it removes nothing.
func (p RetentionPolicy) Horizon(now time.Time) time.Time {
	if !p.Enabled() {
		return time.Time{}
	}
	return now.AddDate(0, 0, -p.RetentionDays)
}
