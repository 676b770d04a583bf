// Package eventlog provides a durable, queryable audit trail of inbound
// event processing attempts.
//
// An in-process "already seen" set does not survive restarts and is not
// shared between instances, so duplicate suppression memoizes through
// this log instead: handlers consult the persisted entry for an
// (event id, event type) key before processing, record a "processing"
// entry when they start, and upsert the terminal status when done.
//
// The log is advisory. It short-circuits obvious replays cheaply, but
// the at-most-once guarantee for money lives in the ledger's unique
// constraint, which is atomic with the mutation it guards.
package eventlog
