// Package session implements the memory-match game state machine: it
// owns one player's transient play state for one topic, accepts flip
// and reset intents from the display surface, runs the solve clock,
// and settles durable progress (streak, best time) when the day's
// board is completed.
package session

import (
	"context"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/clt-platform/daily-match/internal/progress"
	"github.com/clt-platform/daily-match/internal/puzzle"
)

// State is the session's lifecycle phase. Idle becomes Playing on the
// first legal flip; Playing becomes Complete when the last pair is
// matched. Complete is terminal for the day except through Reset,
// which redisplays the same deterministic board.
type State string

const (
	StateIdle     State = "idle"
	StatePlaying  State = "playing"
	StateComplete State = "complete"
)

// Resolution pacing. The delays are presentation pacing, not logic
// gates: while two tiles are face-up every further flip is rejected,
// which is also what keeps a third flip out during the delay window.
const (
	defaultMatchDelay    = 600 * time.Millisecond
	defaultMismatchDelay = time.Second
	defaultTickInterval  = time.Second
)

// Options configures a Session. Zero-value fields fall back to the
// production defaults (real timers, system clock, in-memory store).
type Options struct {
	Store     progress.Store
	Scheduler Scheduler
	Clock     Clock
	Logger    *log.Logger

	// Delay overrides for tests; zero means the default.
	MatchDelay    time.Duration
	MismatchDelay time.Duration
	TickInterval  time.Duration
}

// Session is one active play of one topic's daily puzzle. All state
// transitions run under a single mutex, so events (flips, ticks,
// resolutions, resets) are strictly ordered and never interleave.
type Session struct {
	mu sync.Mutex

	topic  string
	puzzle puzzle.Puzzle

	flipped []int
	matched map[int]bool
	moves   int
	elapsed int
	state   State

	prog  progress.Progress
	store progress.Store

	sched  Scheduler
	clock  Clock
	logger *log.Logger

	matchDelay    time.Duration
	mismatchDelay time.Duration
	tickInterval  time.Duration

	cancelResolve CancelFunc
	cancelTick    CancelFunc
	closed        bool

	// generation invalidates scheduled callbacks. Cancelling a timer
	// whose callback already started is a no-op, so reset and teardown
	// bump the generation and every callback checks the value it was
	// scheduled under before touching state.
	generation uint64
}

// Snapshot is the read-only view handed to the display surface.
type Snapshot struct {
	Topic          string            `json:"topic"`
	Seed           string            `json:"seed"`
	Difficulty     puzzle.Difficulty `json:"difficulty"`
	Grid           puzzle.GridSize   `json:"gridSize"`
	Board          []puzzle.Tile     `json:"board"`
	Flipped        []int             `json:"flipped"`
	MatchedPairs   []int             `json:"matchedPairs"`
	Moves          int               `json:"moves"`
	ElapsedSeconds int               `json:"elapsedSeconds"`
	State          State             `json:"state"`
	Progress       progress.Progress `json:"progress"`
}

// New creates a session for topic: generates today's deterministic
// puzzle, restores durable progress, and applies the replay guard (a
// topic already completed today starts Complete, board shown
// read-only, so finishing again cannot farm streak credit).
//
// A store read failure is logged and the session continues with empty
// progress in memory-only mode; it never blocks play.
func New(topic string, opts Options) *Session {
	s := &Session{
		topic:         topic,
		matched:       make(map[int]bool),
		state:         StateIdle,
		store:         opts.Store,
		sched:         opts.Scheduler,
		clock:         opts.Clock,
		logger:        opts.Logger,
		matchDelay:    opts.MatchDelay,
		mismatchDelay: opts.MismatchDelay,
		tickInterval:  opts.TickInterval,
	}
	if s.store == nil {
		s.store = progress.NewMemoryStore()
	}
	if s.sched == nil {
		s.sched = TimerScheduler{}
	}
	if s.clock == nil {
		s.clock = systemClock{}
	}
	if s.logger == nil {
		s.logger = log.New(os.Stdout, "[SESSION] ", log.LstdFlags)
	}
	if s.matchDelay == 0 {
		s.matchDelay = defaultMatchDelay
	}
	if s.mismatchDelay == 0 {
		s.mismatchDelay = defaultMismatchDelay
	}
	if s.tickInterval == 0 {
		s.tickInterval = defaultTickInterval
	}

	now := s.clock.Now()
	s.puzzle = puzzle.Generate(now, topic)

	prog, err := s.store.Load(context.Background(), topic)
	if err != nil {
		s.logger.Printf("progress load failed for %q, continuing memory-only: %v", topic, err)
		prog = progress.Progress{}
	}
	s.prog = prog

	if prog.Completed && prog.LastPlayed == progress.DateKey(now) {
		s.state = StateComplete
	}
	return s
}

// Puzzle returns the session's generated daily puzzle.
func (s *Session) Puzzle() puzzle.Puzzle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puzzle
}

// Snapshot returns the current observable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	flipped := make([]int, len(s.flipped))
	copy(flipped, s.flipped)

	matched := make([]int, 0, len(s.matched))
	for pairID := range s.matched {
		matched = append(matched, pairID)
	}
	sort.Ints(matched)

	return Snapshot{
		Topic:          s.topic,
		Seed:           s.puzzle.Seed,
		Difficulty:     s.puzzle.Difficulty,
		Grid:           s.puzzle.Grid,
		Board:          s.puzzle.Board,
		Flipped:        flipped,
		MatchedPairs:   matched,
		Moves:          s.moves,
		ElapsedSeconds: s.elapsed,
		State:          s.state,
		Progress:       s.prog,
	}
}

// Flip processes a flip intent for the tile at board position index.
// Illegal flips are silent no-ops: two tiles already face-up (which
// also covers the resolution delay window), the index already face-up,
// the index's pair already matched, an out-of-range index, or a
// completed session. The first legal flip starts the solve clock.
func (s *Session) Flip(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.state == StateComplete {
		return
	}
	if index < 0 || index >= len(s.puzzle.Board) {
		return
	}
	if len(s.flipped) >= 2 {
		return
	}
	for _, f := range s.flipped {
		if f == index {
			return
		}
	}
	if s.matched[s.puzzle.Board[index].PairID] {
		return
	}

	if s.state == StateIdle {
		s.state = StatePlaying
		s.scheduleTickLocked()
	}

	s.flipped = append(s.flipped, index)
	if len(s.flipped) < 2 {
		return
	}

	s.moves++
	first := s.puzzle.Board[s.flipped[0]]
	second := s.puzzle.Board[s.flipped[1]]
	gen := s.generation
	if first.PairID == second.PairID {
		pairID := first.PairID
		s.cancelResolve = s.sched.After(s.matchDelay, func() { s.resolveMatch(gen, pairID) })
	} else {
		s.cancelResolve = s.sched.After(s.mismatchDelay, func() { s.resolveMismatch(gen) })
	}
}

// resolveMatch lands a successful pair after the match delay.
func (s *Session) resolveMatch(gen uint64, pairID int) {
	s.mu.Lock()
	if s.closed || gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.cancelResolve = nil
	s.matched[pairID] = true
	s.flipped = s.flipped[:0]

	var settled *progress.Progress
	if len(s.matched) == s.puzzle.PairCount() && s.puzzle.PairCount() > 0 {
		settled = s.completeLocked()
	}
	topic := s.topic
	s.mu.Unlock()

	// Persist outside the lock; the in-memory record is already the
	// source of truth for the display layer.
	if settled != nil {
		if err := s.store.Save(context.Background(), topic, *settled); err != nil {
			s.logger.Printf("progress save failed for %q, continuing memory-only: %v", topic, err)
		}
	}
}

// resolveMismatch turns both tiles face-down after the mismatch delay.
func (s *Session) resolveMismatch(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.generation {
		return
	}
	s.cancelResolve = nil
	s.flipped = s.flipped[:0]
}

// completeLocked transitions to Complete, stops the clock, and applies
// the streak law to durable progress. The four fields (streak,
// lastPlayed, completed, bestTime) are computed and assigned as one
// unit, in that order; the display layer can never observe a partial
// update. Returns the settled record for persistence.
func (s *Session) completeLocked() *progress.Progress {
	s.state = StateComplete
	s.stopClockLocked()

	now := s.clock.Now()
	today := progress.DateKey(now)
	yesterday := progress.DateKey(now.Add(-24 * time.Hour))

	p := s.prog
	switch p.LastPlayed {
	case yesterday:
		p.Streak++
	case today:
		// Already credited today; re-completion leaves the streak alone.
	default:
		p.Streak = 1
	}
	p.LastPlayed = today
	p.Completed = true
	if p.BestTimeSeconds == nil || s.elapsed < *p.BestTimeSeconds {
		best := s.elapsed
		p.BestTimeSeconds = &best
	}

	s.prog = p
	return &p
}

// Reset clears transient play state and redisplays the day's board.
// The puzzle is re-derived from the same calendar day, so "new game"
// yields the same deterministic layout, never a fresh random one.
// Pending resolution and tick timers are cancelled first.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.cancelTimersLocked()
	s.generation++
	s.flipped = nil
	s.matched = make(map[int]bool)
	s.moves = 0
	s.elapsed = 0
	s.state = StateIdle
	s.puzzle = puzzle.Generate(s.clock.Now(), s.topic)
}

// Close tears the session down, cancelling all outstanding timers. A
// closed session rejects every subsequent event.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.generation++
	s.cancelTimersLocked()
}

func (s *Session) scheduleTickLocked() {
	gen := s.generation
	s.cancelTick = s.sched.After(s.tickInterval, func() { s.tick(gen) })
}

// tick advances the solve clock by one second and re-arms itself. It
// stops rescheduling the moment the session leaves Playing, so a
// completed or torn-down session cannot keep a timer alive.
func (s *Session) tick(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.generation || s.state != StatePlaying {
		return
	}
	s.elapsed++
	s.scheduleTickLocked()
}

func (s *Session) stopClockLocked() {
	if s.cancelTick != nil {
		s.cancelTick()
		s.cancelTick = nil
	}
}

func (s *Session) cancelTimersLocked() {
	if s.cancelResolve != nil {
		s.cancelResolve()
		s.cancelResolve = nil
	}
	s.stopClockLocked()
}
