package engine

import "fmt"

// DefaultMaxPasses is the default maximum number of flush passes per scope.
// Each pass beyond the first exists only because hooks queued cascading
// touches; a chain this deep means the cascade never settles.
const DefaultMaxPasses = 100

// PassQuota counts flush passes for one outermost scope and enforces the
// maximum.
//
// The applied set already stops a record from being re-touched under the
// same key within a scope, so cycles terminate on their own; the quota
// catches cascades that keep discovering new records (A -> B -> C -> ...).
type PassQuota struct {
	max     int
	current int
}

// NewPassQuota creates a quota allowing max passes. max <= 0 means
// DefaultMaxPasses.
func NewPassQuota(max int) *PassQuota {
	if max <= 0 {
		max = DefaultMaxPasses
	}
	return &PassQuota{max: max}
}

// Check counts one pass and returns a FlushError once the quota is exceeded.
func (q *PassQuota) Check(scopeID string) error {
	q.current++
	if q.current > q.max {
		return &FlushError{
			Code:    ErrCodePassQuotaExceeded,
			Message: fmt.Sprintf("flush needed more than %d passes", q.max),
			ScopeID: scopeID,
			Pass:    q.current,
		}
	}
	return nil
}

// Current returns the number of passes counted so far.
func (q *PassQuota) Current() int {
	return q.current
}

// Max returns the pass limit.
func (q *PassQuota) Max() int {
	return q.max
}
