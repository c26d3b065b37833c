// Package traffic keeps a short sliding window of briefing outcomes. The serve-mode
// health check reads the error rate from it.
package traffic

import (
	"sync"
	"time"
)

// kind of a recorded outcome.
type kind uint8

const (
	success kind = iota
	failure
	denied
)

type outcome struct {
	at   time.Time
	kind kind
}

// Tracker records outcome timestamps and answers windowed counts. Entries older than
// maxAge are pruned on write. Safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	outcomes []outcome
	maxAge   time.Duration
	now      func() time.Time
}

// NewTracker returns a Tracker that retains outcomes for maxAge (5 minutes if <= 0).
func NewTracker(maxAge time.Duration) *Tracker {
	if maxAge <= 0 {
		maxAge = 5 * time.Minute
	}
	return &Tracker{maxAge: maxAge, now: time.Now}
}

// RecordSuccess records a briefing that completed.
func (t *Tracker) RecordSuccess() { t.record(success) }

// RecordError records a briefing that failed upstream.
func (t *Tracker) RecordError() { t.record(failure) }

// RecordDenied records a rate-limit denial (429).
func (t *Tracker) RecordDenied() { t.record(denied) }

func (t *Tracker) record(k kind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.outcomes = append(t.outcomes, outcome{at: now, kind: k})
	t.pruneLocked(now)
}

// ErrorRate returns (errorCount, totalCount) within the window.
// Denials are excluded from both counts.
func (t *Tracker) ErrorRate(window time.Duration) (errors, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	for _, o := range t.outcomes {
		if o.at.Before(cutoff) {
			continue
		}
		switch o.kind {
		case failure:
			errors++
			total++
		case success:
			total++
		}
	}
	return errors, total
}

// RequestCount returns all outcomes, denials included, within the window.
func (t *Tracker) RequestCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	n := 0
	for _, o := range t.outcomes {
		if !o.at.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops outcomes older than maxAge. Outcomes are appended in time order.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-t.maxAge)
	i := 0
	for ; i < len(t.outcomes) && t.outcomes[i].at.Before(cutoff); i++ {
	}
	if i > 0 {
		t.outcomes = append(t.outcomes[:0], t.outcomes[i:]...)
	}
}
