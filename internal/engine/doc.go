// Package engine implements delayed, deduplicated touches.
//
// A touch stamps the current time onto a record's touch columns (and,
// optionally, one named extra column). Inside DelayTouching, touches are
// queued instead of written; when the outermost scope exits, the engine
// writes one bulk update per (attribute key, record type) group.
//
// ARCHITECTURE:
//
// Batch state lives in the context.Context handed to the scope body, keyed
// by engine. Every logical unit of work therefore gets its own nesting
// counter, pending set and applied set; nothing is global.
//
// Flush Flow:
// 1. Outermost DelayTouching body returns (nesting == 1)
// 2. Pending touches are snapshot and grouped by attribute key, then record type
// 3. Each group gets one timestamp, one in-memory stamp pass and one BulkUpdate
// 4. The group moves to the applied set, then touch and commit hooks fire
// 5. Hooks may queue more touches (cascades); the engine runs another pass
// 6. Pending and applied sets are cleared on every exit path
//
// A pass runs inside TxManager.RunAtomically, so commit hooks fired during a
// pass are deferred until the pass commits.
//
// CRITICAL PATTERNS:
//
// Deduplication: a record (compared by identity, so use pointer types) is
// queued at most once per attribute key, and once applied it is not queued
// again for that key until the outermost scope has exited.
//
// Deterministic Ordering:
// Attribute keys and record types are flushed in first-seen order, and the
// records inside a group keep their enqueue order.
package engine
