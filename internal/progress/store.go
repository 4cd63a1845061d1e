// Package progress persists per-topic play progress: the streak
// counter, the last played day, the best solve time, and the
// completed-today flag. It is the only state that survives across
// sessions; everything else about a game is transient.
package progress

import (
	"context"
	"time"
)

// Progress is one topic's durable record. A zero Progress means "never
// played", which is also what callers should fall back to when the
// store is unreachable.
type Progress struct {
	Streak          int    `json:"streak"`
	LastPlayed      string `json:"lastPlayed,omitempty"`
	BestTimeSeconds *int   `json:"bestTimeSeconds,omitempty"`
	Completed       bool   `json:"completed"`
}

// Store reads and writes per-topic progress. Implementations are
// best-effort: callers treat a Load error as "no prior progress" and a
// Save error as droppable, logging either without interrupting play.
type Store interface {
	Load(ctx context.Context, topic string) (Progress, error)
	Save(ctx context.Context, topic string, p Progress) error
}

// DateKey formats t as the calendar-date string stored in LastPlayed
// and compared by the streak law. Same-day and adjacent-day checks are
// plain string equality on these keys.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}
