package engine

import (
	"sync"
	"time"
)

// Quota is the process-wide counter of summarization calls made during the
// current UTC day. Reservation and date rollover share one critical section
// so that used never exceeds limit and the rollover happens exactly once per
// day boundary regardless of concurrent callers. A unit consumed by a call
// that later fails is not refunded; capacity tracks calls attempted.
type Quota struct {
	mu    sync.Mutex
	day   string
	used  int
	limit int
	now   func() time.Time
}

// NewQuota creates a tracker with the given daily limit.
func NewQuota(limit int) *Quota {
	return newQuotaAt(limit, time.Now)
}

func newQuotaAt(limit int, now func() time.Time) *Quota {
	q := &Quota{limit: limit, now: now}
	q.day = q.today()
	return q
}

func (q *Quota) today() string {
	return q.now().UTC().Format(time.DateOnly)
}

// rollover resets the counter when the UTC date has advanced. Caller must
// hold q.mu.
func (q *Quota) rollover() {
	if d := q.today(); d != q.day {
		q.day = d
		q.used = 0
	}
}

// TryReserve atomically consumes one unit for today. A false return is the
// ordinary capacity-exceeded outcome, not an error.
func (q *Quota) TryReserve() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rollover()
	if q.used >= q.limit {
		return false
	}
	q.used++
	return true
}

// Remaining reports units left for the current UTC day.
func (q *Quota) Remaining() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rollover()
	return q.limit - q.used
}

// Snapshot returns used and limit for the current UTC day.
func (q *Quota) Snapshot() (used, limit int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rollover()
	return q.used, q.limit
}
