package session

import "time"

// CancelFunc cancels a scheduled callback. Calling it after the
// callback has fired, or more than once, is a no-op.
type CancelFunc func()

// Scheduler schedules the session's timed work: the one-second clock
// tick and the match/mismatch resolution delays. Every schedule call
// returns a cancel handle, and reset/teardown must invoke outstanding
// handles before scheduling new work so a stale callback can never
// fire against a discarded session.
type Scheduler interface {
	After(d time.Duration, fn func()) CancelFunc
}

// TimerScheduler runs callbacks on real timers.
type TimerScheduler struct{}

// After schedules fn on a time.AfterFunc timer.
func (TimerScheduler) After(d time.Duration, fn func()) CancelFunc {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// Clock supplies wall-clock time. Injected so tests can pin the
// calendar day and drive the streak law across day boundaries.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
