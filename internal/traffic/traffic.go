// Package traffic keeps a sliding window of fetch tick outcomes for the health report.
package traffic

import (
	"sync"
	"time"
)

// Retention is how long outcomes are kept. Windows longer than this see only the retained part.
const Retention = 2 * time.Hour

var defaultTracker Tracker

// RecordSuccess records a tick that stored a record.
func RecordSuccess() {
	defaultTracker.RecordSuccess()
}

// RecordError records a tick that was skipped because fetch or insert failed.
func RecordError() {
	defaultTracker.RecordError()
}

// OutcomeCount returns the number of outcomes (success + error) within the window.
func OutcomeCount(window time.Duration) int {
	return defaultTracker.OutcomeCount(window)
}

// ErrorRate returns (errorCount, totalCount) within the window.
func ErrorRate(window time.Duration) (errors, total int) {
	return defaultTracker.ErrorRate(window)
}

// LastSuccess returns the time of the most recent success, or the zero time.
func LastSuccess() time.Time {
	return defaultTracker.LastSuccess()
}

// Reset clears all recorded outcomes. For tests only.
func Reset() {
	defaultTracker.Reset()
}

// Tracker maintains sliding windows of outcome timestamps.
type Tracker struct {
	mu           sync.Mutex
	now          func() time.Time
	successTimes []time.Time
	errorTimes   []time.Time
}

// RecordSuccess records a success in the tracker.
func (t *Tracker) RecordSuccess() {
	t.recordOutcome(&t.successTimes)
}

// RecordError records an error in the tracker.
func (t *Tracker) RecordError() {
	t.recordOutcome(&t.errorTimes)
}

func (t *Tracker) recordOutcome(slice *[]time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock()
	*slice = append(*slice, now)
	t.pruneLocked(now)
}

// OutcomeCount returns the number of outcomes within the window.
func (t *Tracker) OutcomeCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.clock().Add(-window)
	return countInWindow(t.successTimes, cutoff) + countInWindow(t.errorTimes, cutoff)
}

// ErrorRate returns (errorCount, totalCount) within the window.
func (t *Tracker) ErrorRate(window time.Duration) (errors, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.clock().Add(-window)
	errCount := countInWindow(t.errorTimes, cutoff)
	return errCount, errCount + countInWindow(t.successTimes, cutoff)
}

// LastSuccess returns the most recent success time, or the zero time if none is retained.
func (t *Tracker) LastSuccess() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.successTimes) == 0 {
		return time.Time{}
	}
	return t.successTimes[len(t.successTimes)-1]
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.successTimes = nil
	t.errorTimes = nil
}

func (t *Tracker) clock() time.Time {
	if t.now != nil {
		return t.now()
	}
	return time.Now()
}

// countInWindow counts timestamps that are not before the cutoff.
func countInWindow(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops timestamps older than Retention. Must be called with mu held.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-Retention)
	prune := func(slice *[]time.Time) {
		times := *slice
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
	prune(&t.successTimes)
	prune(&t.errorTimes)
}
