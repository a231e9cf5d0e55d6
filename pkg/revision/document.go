package revision

import (
	"context"

	"github.com/pinstack/pinstack/pkg/audit"
)

// FromTo is one update entry: the row image before the change and the
// changed columns.
type FromTo struct {
	From audit.RowImage `json:"from"`
	To   audit.RowImage `json:"to"`
}

// ChangeDocument is the materialized view of one transaction, grouped by
// table and then by action. Insert and delete entries are row images;
// update entries are FromTo pairs. A malformed update contributes a null
// entry in place, and an unrecognized action appears as a key with a null
// payload so the reader can see that something happened there.
type ChangeDocument struct {
	TransactionID int64                     `json:"transaction_id"`
	Tables        map[string]map[string]any `json:"tables"`
}

// Empty reports whether the transaction touched no rows.
func (d *ChangeDocument) Empty() bool { return len(d.Tables) == 0 }

// Engine materializes change documents from the event feed.
type Engine struct {
	feed audit.Feed
}

// NewEngine builds an Engine over a feed.
func NewEngine(feed audit.Feed) *Engine {
	return &Engine{feed: feed}
}

// MaterializeChangeDocument folds the transaction's events, in emission
// order, into a document. A transaction with no events yields an empty
// document, not an error.
func (e *Engine) MaterializeChangeDocument(ctx context.Context, transactionID int64) (*ChangeDocument, error) {
	events, err := e.feed.EventsForTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	doc := &ChangeDocument{
		TransactionID: transactionID,
		Tables:        make(map[string]map[string]any),
	}
	for _, ev := range events {
		actions := doc.Tables[ev.Table]
		if actions == nil {
			actions = make(map[string]any)
			doc.Tables[ev.Table] = actions
		}

		switch ev.Action {
		case audit.ActionInsert:
			appendEntry(actions, string(audit.ActionInsert), ev.Changes)
		case audit.ActionDelete:
			appendEntry(actions, string(audit.ActionDelete), ev.Before)
		case audit.ActionUpdate:
			var entry any
			if ev.Before != nil && ev.Changes != nil {
				entry = FromTo{From: ev.Before, To: ev.Changes}
			}
			appendEntry(actions, string(audit.ActionUpdate), entry)
		default:
			// unknown action: present but unexplained
			actions[string(ev.Action)] = nil
		}
	}
	return doc, nil
}

func appendEntry(actions map[string]any, action string, entry any) {
	list, _ := actions[action].([]any)
	actions[action] = append(list, entry)
}
