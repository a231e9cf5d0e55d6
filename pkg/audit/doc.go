// Package audit records row-level change events emitted by pin mutations.
// Every write to the registry appends one event per touched row, tagged
// with the transaction it was part of; the revision engine later folds a
// transaction's events back into a change document.
//
// Events are append-only. The only destructive operation is the retention
// sweep, which drops whole transactions past the retention horizon.
package audit
