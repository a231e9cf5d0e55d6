// Package revision reconstructs what a past transaction did. The engine
// folds a transaction's change events into a change document grouped by
// table and action, and the store keeps the revision records (author,
// comment, timestamp) that name those transactions.
//
// Materialization degrades per row: a malformed event dents its own entry
// in the document, never the document as a whole.
package revision
