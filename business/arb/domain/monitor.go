// Package domain holds the pure decision logic behind ArbMonitor and
// Executor: dedup/cooldown/stability bookkeeping, the execution circuit
// breaker's error-window arithmetic, and leg scaling. None of it touches
// the network; app wires it to live books and OrderSubmitter.
package domain

import "time"

// KeyState tracks one opportunity key's alert/execution/stability history
// across scans. The zero value is a key never seen before.
type KeyState struct {
	LastSeenAt        time.Time
	LastAlertedAt     time.Time
	LastExecutedAt    time.Time
	SightingsInWindow []time.Time
}

// ShouldAlert reports whether a (possibly repeated) sighting of this key at
// now should fire the webhook, honoring alertMinInterval.
func (k *KeyState) ShouldAlert(now time.Time, alertMinInterval time.Duration) bool {
	if k.LastAlertedAt.IsZero() || now.Sub(k.LastAlertedAt) >= alertMinInterval {
		return true
	}
	return false
}

// RecordAlert marks now as the last time this key was alerted.
func (k *KeyState) RecordAlert(now time.Time) {
	k.LastAlertedAt = now
}

// RecordSighting appends now to the key's sighting history, trimming entries
// older than window so Stable's count stays bounded to the rolling window.
func (k *KeyState) RecordSighting(now time.Time, window time.Duration) {
	k.LastSeenAt = now
	k.SightingsInWindow = append(k.SightingsInWindow, now)
	cutoff := now.Add(-window)
	trimmed := k.SightingsInWindow[:0]
	for _, t := range k.SightingsInWindow {
		if t.After(cutoff) {
			trimmed = append(trimmed, t)
		}
	}
	k.SightingsInWindow = trimmed
}

// Stable reports whether this key has been sighted at least minCount times
// within its rolling window.
func (k *KeyState) Stable(minCount int) bool {
	return len(k.SightingsInWindow) >= minCount
}

// CooldownActive reports whether executionCooldownMs since the last
// execution of this key has not yet elapsed.
func (k *KeyState) CooldownActive(now time.Time, cooldown time.Duration) bool {
	return !k.LastExecutedAt.IsZero() && now.Sub(k.LastExecutedAt) < cooldown
}

// RecordExecution marks now as this key's last execution time.
func (k *KeyState) RecordExecution(now time.Time) {
	k.LastExecutedAt = now
}

// ErrorWindow is the auto-execution circuit breaker: it counts errors in a
// rolling window and, once maxErrors is reached, pauses execution for
// pauseFor. This is deliberately a plain counter rather than
// sony/gobreaker's ratio-based trip policy: the trip condition here is an
// absolute count within a fixed window, not a failure ratio over a request
// volume.
type ErrorWindow struct {
	errors    []time.Time
	pausedAt  time.Time
	maxErrors int
	window    time.Duration
	pauseFor  time.Duration
}

// NewErrorWindow builds an ErrorWindow with the given trip threshold, window,
// and pause duration.
func NewErrorWindow(maxErrors int, window, pauseFor time.Duration) *ErrorWindow {
	return &ErrorWindow{maxErrors: maxErrors, window: window, pauseFor: pauseFor}
}

// RecordError appends an error occurrence at now, trimming entries outside
// window, and trips the pause if the threshold is now met.
func (e *ErrorWindow) RecordError(now time.Time) {
	e.errors = append(e.errors, now)
	cutoff := now.Add(-e.window)
	trimmed := e.errors[:0]
	for _, t := range e.errors {
		if t.After(cutoff) {
			trimmed = append(trimmed, t)
		}
	}
	e.errors = trimmed
	if e.maxErrors > 0 && len(e.errors) >= e.maxErrors {
		e.pausedAt = now
	}
}

// Closed reports whether auto-execution is currently allowed: either the
// breaker never tripped, or pauseFor has elapsed since it did.
func (e *ErrorWindow) Closed(now time.Time) bool {
	if e.pausedAt.IsZero() {
		return true
	}
	return now.Sub(e.pausedAt) >= e.pauseFor
}

// Reset clears the error history and pause. Closed does not need it: it
// reopens on its own once pauseFor has elapsed.
func (e *ErrorWindow) Reset() {
	e.errors = nil
	e.pausedAt = time.Time{}
}
