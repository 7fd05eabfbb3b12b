// Package ir provides the shared record and journal types for touchdelay.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal. This keeps ir the foundational
// layer with no circular dependencies.
//
// Key design constraints:
//   - Record identity is a string primary key; an empty key means the record
//     was never persisted (or lost its key on rollback)
//   - Touch timestamps are always UTC
//   - All JSON tags use snake_case
//   - Journal entries are content-addressed (see hash.go)
package ir
