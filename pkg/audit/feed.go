package audit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Feed is the event log. Append assigns the event id; readers see events
// in id order, which within a transaction is emission order.
type Feed interface {
	Append(ctx context.Context, event *Event) error
	EventsForTransaction(ctx context.Context, transactionID int64) ([]*Event, error)
	Search(ctx context.Context, filter SearchFilter) ([]*Event, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}

// MemoryFeed is an in-process Feed for tests and single-node deployments.
type MemoryFeed struct {
	mu     sync.RWMutex
	events []*Event
	nextID int64
}

// NewMemoryFeed returns an empty feed.
func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{nextID: 1}
}

// Append stores a copy of the event and writes the assigned id and
// timestamp back onto the argument.
func (f *MemoryFeed) Append(_ context.Context, event *Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored := *event
	stored.ID = f.nextID
	stored.Action = NormalizeAction(string(stored.Action))
	stored.Before = event.Before.Clone()
	stored.Changes = event.Changes.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	f.nextID++
	f.events = append(f.events, &stored)

	event.ID = stored.ID
	event.CreatedAt = stored.CreatedAt
	return nil
}

// EventsForTransaction returns the transaction's events in id order. An
// unknown transaction yields an empty slice, not an error.
func (f *MemoryFeed) EventsForTransaction(ctx context.Context, transactionID int64) ([]*Event, error) {
	return f.Search(ctx, SearchFilter{TransactionID: &transactionID})
}

// Search filters the feed. Results are ordered by event id ascending.
func (f *MemoryFeed) Search(_ context.Context, filter SearchFilter) ([]*Event, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]*Event, 0)
	for _, ev := range f.events {
		if filter.TransactionID != nil && ev.TransactionID != *filter.TransactionID {
			continue
		}
		if filter.Table != "" && ev.Table != filter.Table {
			continue
		}
		if filter.Action != nil && ev.Action != *filter.Action {
			continue
		}
		if filter.StartTime != nil && ev.CreatedAt.Before(*filter.StartTime) {
			continue
		}
		if filter.EndTime != nil && ev.CreatedAt.After(*filter.EndTime) {
			continue
		}
		copied := *ev
		copied.Before = ev.Before.Clone()
		copied.Changes = ev.Changes.Clone()
		out = append(out, &copied)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []*Event{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

// DeleteOlderThan drops events created before the cutoff and reports how
// many were removed.
func (f *MemoryFeed) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	kept := f.events[:0]
	var removed int64
	for _, ev := range f.events {
		if ev.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, ev)
	}
	f.events = kept
	return removed, nil
}

// Close is a no-op for the in-memory feed.
func (f *MemoryFeed) Close() error { return nil }
