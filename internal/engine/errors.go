package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/touchdelay/internal/ir"
)

// FlushError represents a failure while applying delayed touches.
//
// Flush errors include:
//   - Bulk update failure: the record store rejected a group's update
//   - Journal failure: the flush journal could not record a group
//   - Transaction failure: the pass transaction failed to begin or commit
//   - Quota exceeded: cascading touches needed more passes than allowed
//   - Cancellation: the context was cancelled mid-flush
//
// FlushError wraps the underlying cause; errors.Is/As see through it.
// Pending state is always cleared before a FlushError is returned.
type FlushError struct {
	// Code identifies the error category.
	Code FlushErrorCode

	// Message is a human-readable description.
	Message string

	// ScopeID identifies the outermost delay scope being flushed.
	ScopeID string

	// Pass is the 1-based flush pass, 0 if the failure was outside a pass.
	Pass int

	// AttrKey and RecordType identify the failing group, if any.
	AttrKey    ir.AttrKey
	RecordType string

	// Err is the underlying cause.
	Err error
}

// FlushErrorCode categorizes flush errors.
type FlushErrorCode string

const (
	// ErrCodeBulkUpdateFailed indicates RecordStore.BulkUpdate failed.
	ErrCodeBulkUpdateFailed FlushErrorCode = "BULK_UPDATE_FAILED"

	// ErrCodeJournalFailed indicates Journal.RecordFlush failed.
	ErrCodeJournalFailed FlushErrorCode = "JOURNAL_FAILED"

	// ErrCodeTransactionFailed indicates the pass transaction failed.
	ErrCodeTransactionFailed FlushErrorCode = "TRANSACTION_FAILED"

	// ErrCodePassQuotaExceeded indicates cascading touches never settled.
	ErrCodePassQuotaExceeded FlushErrorCode = "PASS_QUOTA_EXCEEDED"

	// ErrCodeCancelled indicates the context was cancelled during the flush.
	ErrCodeCancelled FlushErrorCode = "CANCELLED"
)

// Error implements the error interface.
func (e *FlushError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.RecordType != "" {
		msg = fmt.Sprintf("%s (scope=%s, pass=%d, attr=%s, type=%s)", msg, e.ScopeID, e.Pass, e.AttrKey, e.RecordType)
	} else if e.ScopeID != "" {
		msg = fmt.Sprintf("%s (scope=%s, pass=%d)", msg, e.ScopeID, e.Pass)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *FlushError) Unwrap() error {
	return e.Err
}

// IsFlushError returns true if err is or wraps a FlushError.
func IsFlushError(err error) bool {
	var fe *FlushError
	return errors.As(err, &fe)
}

// IsQuotaError returns true if err is a pass quota FlushError.
// Uses errors.As to handle wrapped errors.
func IsQuotaError(err error) bool {
	var fe *FlushError
	if errors.As(err, &fe) {
		return fe.Code == ErrCodePassQuotaExceeded
	}
	return false
}

// IsCancelledError returns true if err is a cancellation FlushError.
func IsCancelledError(err error) bool {
	var fe *FlushError
	if errors.As(err, &fe) {
		return fe.Code == ErrCodeCancelled
	}
	return false
}

// newGroupError creates a FlushError for a failing group.
func newGroupError(code FlushErrorCode, scopeID string, pass int, g group, err error) *FlushError {
	return &FlushError{
		Code:       code,
		Message:    fmt.Sprintf("touch %d %s record(s)", len(g.records), g.recordType),
		ScopeID:    scopeID,
		Pass:       pass,
		AttrKey:    g.key,
		RecordType: g.recordType,
		Err:        err,
	}
}

// joinScopeErrors combines the scope body's error with the flush error.
// A body error is never masked: when both fail, both are returned.
func joinScopeErrors(bodyErr, flushErr error) error {
	switch {
	case bodyErr == nil:
		return flushErr
	case flushErr == nil:
		return bodyErr
	default:
		return errors.Join(bodyErr, flushErr)
	}
}
