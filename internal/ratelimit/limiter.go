// Package ratelimit enforces the per-session analysis quota over a fixed
// window anchored at the first analysis.
package ratelimit

import (
	"fmt"
	"time"

	"github.com/me/bloodlens/pkg/model"
)

// Decision is the outcome of a quota check.
type Decision struct {
	Allowed    bool
	Remaining  int           // analyses left in the window (after this one, if allowed)
	RetryAfter time.Duration // time until the window resets; zero when allowed
	Message    string        // displayable denial message
}

// Limiter decides whether a session may run another analysis.
type Limiter struct {
	limit  int
	window time.Duration
	now    func() time.Time
}

// New creates a Limiter allowing limit analyses per window.
func New(limit int, window time.Duration) *Limiter {
	return &Limiter{limit: limit, window: window, now: time.Now}
}

// WithClock replaces the time source.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Limit returns the configured quota.
func (l *Limiter) Limit() int {
	return l.limit
}

// Check resets an expired window and reports whether one more analysis is
// allowed. It mutates usage but never increments the count.
func (l *Limiter) Check(usage *model.Usage) Decision {
	now := l.now()
	if usage.WindowStart.IsZero() {
		usage.Count = 0
		usage.WindowStart = now
	}
	if now.Sub(usage.WindowStart) > l.window {
		usage.Count = 0
		usage.WindowStart = now
		return Decision{Allowed: true, Remaining: l.limit - 1}
	}
	if usage.Count >= l.limit {
		retry := usage.WindowStart.Add(l.window).Sub(now)
		return Decision{
			RetryAfter: retry,
			Message: fmt.Sprintf("Daily analysis limit of %d reached. Please try again in %s.",
				l.limit, FormatWait(retry)),
		}
	}
	return Decision{Allowed: true, Remaining: l.limit - usage.Count - 1}
}

// Record counts one successful analysis. The window start is only set when
// absent; it is never moved forward here.
func (l *Limiter) Record(usage *model.Usage) {
	if usage.WindowStart.IsZero() {
		usage.WindowStart = l.now()
	}
	usage.Count++
}

// Remaining reports how many analyses are left without mutating usage.
func (l *Limiter) Remaining(usage model.Usage) int {
	if usage.WindowStart.IsZero() || l.now().Sub(usage.WindowStart) > l.window {
		return l.limit
	}
	return max(l.limit-usage.Count, 0)
}

// FormatWait renders a duration as "Xh Ym", rounding minutes up.
func FormatWait(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	minutes := int((d + time.Minute - 1) / time.Minute)
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}
