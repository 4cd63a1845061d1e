package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/clt-platform/daily-match/internal/progress"
)

// manualScheduler collects scheduled work so tests can fire the clock
// tick and the resolution delays deterministically.
type manualScheduler struct {
	mu    sync.Mutex
	tasks []*manualTask
}

type manualTask struct {
	d         time.Duration
	fn        func()
	cancelled bool
	done      bool
}

func (m *manualScheduler) After(d time.Duration, fn func()) CancelFunc {
	m.mu.Lock()
	defer m.mu.Unlock()
	task := &manualTask{d: d, fn: fn}
	m.tasks = append(m.tasks, task)
	return func() {
		m.mu.Lock()
		task.cancelled = true
		m.mu.Unlock()
	}
}

// fire runs the oldest live task scheduled with duration d. Returns
// false when none is pending.
func (m *manualScheduler) fire(d time.Duration) bool {
	m.mu.Lock()
	var target *manualTask
	for _, task := range m.tasks {
		if task.d == d && !task.cancelled && !task.done {
			target = task
			break
		}
	}
	if target == nil {
		m.mu.Unlock()
		return false
	}
	target.done = true
	m.mu.Unlock()

	target.fn()
	return true
}

// pending counts live tasks with duration d.
func (m *manualScheduler) pending(d time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, task := range m.tasks {
		if task.d == d && !task.cancelled && !task.done {
			n++
		}
	}
	return n
}

// leakyScheduler hands out cancels that do nothing, modelling a timer
// whose callback has already started by the time it is cancelled
// (time.Timer.Stop is a no-op at that point). Fired tasks must then be
// rejected by the session itself.
type leakyScheduler struct {
	manualScheduler
}

func (l *leakyScheduler) After(d time.Duration, fn func()) CancelFunc {
	l.manualScheduler.After(d, fn)
	return func() {}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// failStore errors on every call, simulating an unreachable store.
type failStore struct{}

func (failStore) Load(context.Context, string) (progress.Progress, error) {
	return progress.Progress{}, errors.New("store unavailable")
}

func (failStore) Save(context.Context, string, progress.Progress) error {
	return errors.New("store unavailable")
}

var testDay = time.Date(2026, time.August, 28, 9, 0, 0, 0, time.UTC)

func newTestSession(t *testing.T, store progress.Store) (*Session, *manualScheduler, *fakeClock) {
	t.Helper()
	sched := &manualScheduler{}
	clock := &fakeClock{now: testDay}
	s := New("math", Options{
		Store:     store,
		Scheduler: sched,
		Clock:     clock,
		// Distinct durations so the manual scheduler can tell the three
		// kinds of scheduled work apart.
		MatchDelay:    600 * time.Millisecond,
		MismatchDelay: 900 * time.Millisecond,
		TickInterval:  time.Second,
	})
	t.Cleanup(s.Close)
	return s, sched, clock
}

// pairIndices maps each pairId to its two board positions.
func pairIndices(s *Session) map[int][2]int {
	snap := s.Snapshot()
	firstSeen := make(map[int]int)
	pairs := make(map[int][2]int)
	for i, tile := range snap.Board {
		if j, ok := firstSeen[tile.PairID]; ok {
			pairs[tile.PairID] = [2]int{j, i}
		} else {
			firstSeen[tile.PairID] = i
		}
	}
	return pairs
}

// solve matches every pair, firing each match resolution.
func solve(t *testing.T, s *Session, sched *manualScheduler) {
	t.Helper()
	for pairID, idx := range pairIndices(s) {
		s.Flip(idx[0])
		s.Flip(idx[1])
		if !sched.fire(s.matchDelay) {
			t.Fatalf("no match resolution pending for pair %d", pairID)
		}
	}
}

func TestFirstFlipStartsPlaying(t *testing.T) {
	s, sched, _ := newTestSession(t, progress.NewMemoryStore())

	if got := s.Snapshot().State; got != StateIdle {
		t.Fatalf("initial state = %q, want idle", got)
	}
	s.Flip(0)
	snap := s.Snapshot()
	if snap.State != StatePlaying {
		t.Errorf("state after first flip = %q, want playing", snap.State)
	}
	if len(snap.Flipped) != 1 || snap.Flipped[0] != 0 {
		t.Errorf("flipped = %v, want [0]", snap.Flipped)
	}
	if sched.pending(s.tickInterval) != 1 {
		t.Error("clock tick not scheduled after first flip")
	}
}

func TestMatchFlow(t *testing.T) {
	s, sched, _ := newTestSession(t, progress.NewMemoryStore())

	pairs := pairIndices(s)
	var pairID int
	var idx [2]int
	for pairID, idx = range pairs {
		break
	}

	s.Flip(idx[0])
	s.Flip(idx[1])

	snap := s.Snapshot()
	if snap.Moves != 1 {
		t.Errorf("moves = %d, want 1", snap.Moves)
	}
	if len(snap.Flipped) != 2 {
		t.Errorf("flipped = %v, want both tiles face-up pending resolution", snap.Flipped)
	}
	if len(snap.MatchedPairs) != 0 {
		t.Errorf("matched before resolution = %v, want none", snap.MatchedPairs)
	}

	if !sched.fire(s.matchDelay) {
		t.Fatal("no match resolution pending")
	}
	snap = s.Snapshot()
	if len(snap.MatchedPairs) != 1 || snap.MatchedPairs[0] != pairID {
		t.Errorf("matched = %v, want [%d]", snap.MatchedPairs, pairID)
	}
	if len(snap.Flipped) != 0 {
		t.Errorf("flipped after resolution = %v, want empty", snap.Flipped)
	}
}

func TestMismatchFlow(t *testing.T) {
	s, sched, _ := newTestSession(t, progress.NewMemoryStore())

	snap := s.Snapshot()
	// Find two tiles from different pairs.
	second := -1
	for i := 1; i < len(snap.Board); i++ {
		if snap.Board[i].PairID != snap.Board[0].PairID {
			second = i
			break
		}
	}
	if second == -1 {
		t.Fatal("board has a single pair id")
	}

	s.Flip(0)
	s.Flip(second)

	snap = s.Snapshot()
	if snap.Moves != 1 {
		t.Errorf("moves = %d, want 1", snap.Moves)
	}

	if !sched.fire(s.mismatchDelay) {
		t.Fatal("no mismatch resolution pending")
	}
	snap = s.Snapshot()
	if len(snap.Flipped) != 0 {
		t.Errorf("flipped after mismatch = %v, want empty", snap.Flipped)
	}
	if len(snap.MatchedPairs) != 0 {
		t.Errorf("matched after mismatch = %v, want none", snap.MatchedPairs)
	}
}

func TestIllegalFlipsAreNoOps(t *testing.T) {
	s, sched, _ := newTestSession(t, progress.NewMemoryStore())

	snap := s.Snapshot()
	second := -1
	for i := 1; i < len(snap.Board); i++ {
		if snap.Board[i].PairID != snap.Board[0].PairID {
			second = i
			break
		}
	}

	// Out of range.
	s.Flip(-1)
	s.Flip(len(snap.Board))
	if got := s.Snapshot(); len(got.Flipped) != 0 || got.State != StateIdle {
		t.Fatalf("out-of-range flip changed state: %+v", got)
	}

	// Same tile twice.
	s.Flip(0)
	s.Flip(0)
	if got := s.Snapshot(); len(got.Flipped) != 1 {
		t.Fatalf("double flip of one tile: flipped = %v", got.Flipped)
	}

	// Third flip while two are pending resolution.
	s.Flip(second)
	before := s.Snapshot()
	for i := 0; i < len(before.Board); i++ {
		s.Flip(i)
	}
	after := s.Snapshot()
	if after.Moves != before.Moves || len(after.Flipped) != 2 {
		t.Errorf("flips during resolution window changed state: %+v", after)
	}
	sched.fire(s.mismatchDelay)

	// Flipping a matched tile.
	pairs := pairIndices(s)
	var idx [2]int
	for _, idx = range pairs {
		break
	}
	s.Flip(idx[0])
	s.Flip(idx[1])
	sched.fire(s.matchDelay)
	movesBefore := s.Snapshot().Moves
	s.Flip(idx[0])
	if got := s.Snapshot(); len(got.Flipped) != 0 || got.Moves != movesBefore {
		t.Errorf("flip of matched tile changed state: %+v", got)
	}
}

func TestCompletion(t *testing.T) {
	store := progress.NewMemoryStore()
	s, sched, _ := newTestSession(t, store)

	// Run the clock a little before finishing.
	s.Flip(0)
	sched.fire(s.tickInterval)
	sched.fire(s.tickInterval)
	sched.fire(s.tickInterval)
	s.Reset()

	solve(t, s, sched)

	snap := s.Snapshot()
	if snap.State != StateComplete {
		t.Fatalf("state = %q, want complete", snap.State)
	}
	if len(snap.MatchedPairs) != snap.Grid.Rows*snap.Grid.Cols/2 {
		t.Errorf("matched %d pairs, want all", len(snap.MatchedPairs))
	}
	if snap.Progress.Streak != 1 {
		t.Errorf("streak = %d, want 1", snap.Progress.Streak)
	}
	if snap.Progress.LastPlayed != progress.DateKey(testDay) {
		t.Errorf("lastPlayed = %q, want today", snap.Progress.LastPlayed)
	}
	if !snap.Progress.Completed {
		t.Error("completed flag not set")
	}
	if snap.Progress.BestTimeSeconds == nil || *snap.Progress.BestTimeSeconds != snap.ElapsedSeconds {
		t.Errorf("bestTime = %v, want elapsed %d", snap.Progress.BestTimeSeconds, snap.ElapsedSeconds)
	}

	// Progress reached the store.
	saved, err := store.Load(context.Background(), "math")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if saved.Streak != 1 || !saved.Completed {
		t.Errorf("persisted progress = %+v", saved)
	}

	// The clock is stopped: any still-armed tick must not advance it.
	elapsed := snap.ElapsedSeconds
	for sched.fire(s.tickInterval) {
	}
	if got := s.Snapshot().ElapsedSeconds; got != elapsed {
		t.Errorf("clock advanced after completion: %d -> %d", elapsed, got)
	}

	// Complete is terminal: further flips are rejected.
	s.Flip(0)
	if got := s.Snapshot(); len(got.Flipped) != 0 {
		t.Errorf("flip accepted after completion: %+v", got.Flipped)
	}
}

func TestStreakExtendsFromYesterday(t *testing.T) {
	store := progress.NewMemoryStore()
	yesterday := progress.DateKey(testDay.Add(-24 * time.Hour))
	store.Save(context.Background(), "math", progress.Progress{
		Streak: 5, LastPlayed: yesterday, Completed: true,
	})

	s, sched, _ := newTestSession(t, store)
	if got := s.Snapshot().State; got != StateIdle {
		t.Fatalf("state = %q, want idle (completed yesterday, not today)", got)
	}

	solve(t, s, sched)
	if got := s.Snapshot().Progress.Streak; got != 6 {
		t.Errorf("streak = %d, want 6", got)
	}
}

func TestStreakResetsAfterGap(t *testing.T) {
	store := progress.NewMemoryStore()
	threeDaysAgo := progress.DateKey(testDay.Add(-72 * time.Hour))
	store.Save(context.Background(), "math", progress.Progress{
		Streak: 6, LastPlayed: threeDaysAgo, Completed: true,
	})

	s, sched, _ := newTestSession(t, store)
	solve(t, s, sched)
	if got := s.Snapshot().Progress.Streak; got != 1 {
		t.Errorf("streak = %d, want 1 after a skipped day", got)
	}
}

func TestSameDayRecompletionIsIdempotent(t *testing.T) {
	s, sched, _ := newTestSession(t, progress.NewMemoryStore())

	solve(t, s, sched)
	if got := s.Snapshot().Progress.Streak; got != 1 {
		t.Fatalf("streak after first completion = %d, want 1", got)
	}

	s.Reset()
	solve(t, s, sched)
	if got := s.Snapshot().Progress.Streak; got != 1 {
		t.Errorf("streak after re-completion = %d, want unchanged 1", got)
	}
}

func TestBestTimeMonotonicity(t *testing.T) {
	s, sched, _ := newTestSession(t, progress.NewMemoryStore())

	runWithElapsed := func(ticks int) {
		s.Reset()
		pairs := pairIndices(s)
		started := false
		for _, idx := range pairs {
			s.Flip(idx[0])
			if !started {
				started = true
				for i := 0; i < ticks; i++ {
					sched.fire(s.tickInterval)
				}
			}
			s.Flip(idx[1])
			sched.fire(s.matchDelay)
		}
	}

	runWithElapsed(5)
	if best := s.Snapshot().Progress.BestTimeSeconds; best == nil || *best != 5 {
		t.Fatalf("best after 5s solve = %v, want 5", best)
	}

	runWithElapsed(2)
	if best := s.Snapshot().Progress.BestTimeSeconds; best == nil || *best != 2 {
		t.Errorf("best after 2s solve = %v, want 2", best)
	}

	runWithElapsed(9)
	if best := s.Snapshot().Progress.BestTimeSeconds; best == nil || *best != 2 {
		t.Errorf("best after slower 9s solve = %v, want 2 unchanged", best)
	}
}

func TestReplayGuard(t *testing.T) {
	store := progress.NewMemoryStore()
	store.Save(context.Background(), "math", progress.Progress{
		Streak: 4, LastPlayed: progress.DateKey(testDay), Completed: true,
	})

	s, _, _ := newTestSession(t, store)
	snap := s.Snapshot()
	if snap.State != StateComplete {
		t.Fatalf("state = %q, want complete on load (already played today)", snap.State)
	}
	if len(snap.Board) == 0 {
		t.Error("board not generated for read-only display")
	}
	s.Flip(0)
	if got := s.Snapshot(); len(got.Flipped) != 0 {
		t.Error("replay-guarded session accepted a flip")
	}
}

func TestResetCancelsPendingResolution(t *testing.T) {
	s, sched, _ := newTestSession(t, progress.NewMemoryStore())

	pairs := pairIndices(s)
	var idx [2]int
	for _, idx = range pairs {
		break
	}
	s.Flip(idx[0])
	s.Flip(idx[1])
	if sched.pending(s.matchDelay) != 1 {
		t.Fatal("no resolution scheduled")
	}

	s.Reset()
	if sched.pending(s.matchDelay) != 0 {
		t.Error("resolution still armed after reset")
	}
	if sched.fire(s.matchDelay) {
		t.Error("cancelled resolution fired")
	}

	snap := s.Snapshot()
	if snap.State != StateIdle || snap.Moves != 0 || snap.ElapsedSeconds != 0 {
		t.Errorf("reset left transient state: %+v", snap)
	}
}

func TestResetDiscardsExpiredResolution(t *testing.T) {
	// A resolution timer can expire concurrently with Reset, after which
	// cancelling it is a no-op; the callback still runs. It must not
	// mark a pair matched on the freshly reset board.
	sched := &leakyScheduler{}
	s := New("math", Options{
		Store:         progress.NewMemoryStore(),
		Scheduler:     sched,
		Clock:         &fakeClock{now: testDay},
		MatchDelay:    600 * time.Millisecond,
		MismatchDelay: 900 * time.Millisecond,
		TickInterval:  time.Second,
	})
	defer s.Close()

	var idx [2]int
	for _, idx = range pairIndices(s) {
		break
	}
	s.Flip(idx[0])
	s.Flip(idx[1])

	s.Reset()
	if !sched.fire(s.matchDelay) {
		t.Fatal("no resolution task to fire")
	}

	snap := s.Snapshot()
	if len(snap.MatchedPairs) != 0 {
		t.Errorf("stale resolution matched pairs %v on reset board", snap.MatchedPairs)
	}
	if snap.State != StateIdle {
		t.Errorf("state = %q, want idle after reset", snap.State)
	}
	if len(snap.Flipped) != 0 {
		t.Errorf("flipped = %v, want empty after reset", snap.Flipped)
	}

	// Same story for a mismatch resolution: it must not clear tiles the
	// next game just turned face-up.
	s.Flip(0)
	mismatch := -1
	for i := 1; i < len(snap.Board); i++ {
		if snap.Board[i].PairID != snap.Board[0].PairID {
			mismatch = i
			break
		}
	}
	s.Flip(mismatch)
	s.Reset()
	s.Flip(0)
	if sched.fire(s.mismatchDelay) {
		snap = s.Snapshot()
		if len(snap.Flipped) != 1 || snap.Flipped[0] != 0 {
			t.Errorf("stale mismatch resolution cleared flips: %v", snap.Flipped)
		}
	}
}

func TestResetDiscardsExpiredTick(t *testing.T) {
	sched := &leakyScheduler{}
	s := New("math", Options{
		Store:         progress.NewMemoryStore(),
		Scheduler:     sched,
		Clock:         &fakeClock{now: testDay},
		MatchDelay:    600 * time.Millisecond,
		MismatchDelay: 900 * time.Millisecond,
		TickInterval:  time.Second,
	})
	defer s.Close()

	s.Flip(0)
	s.Reset()
	s.Flip(0)

	// The pre-reset tick fires late: it must neither advance the new
	// game's clock nor re-arm a second tick loop.
	if !sched.fire(s.tickInterval) {
		t.Fatal("no tick task to fire")
	}
	if got := s.Snapshot().ElapsedSeconds; got != 0 {
		t.Errorf("stale tick advanced clock to %d", got)
	}
	if got := sched.pending(s.tickInterval); got != 1 {
		t.Errorf("pending ticks = %d, want only the new game's", got)
	}
}

func TestResetKeepsSameBoard(t *testing.T) {
	s, _, _ := newTestSession(t, progress.NewMemoryStore())

	before := s.Snapshot()
	s.Flip(0)
	s.Reset()
	after := s.Snapshot()

	if before.Seed != after.Seed {
		t.Errorf("seed changed across reset: %q -> %q", before.Seed, after.Seed)
	}
	for i := range before.Board {
		if before.Board[i] != after.Board[i] {
			t.Fatalf("tile %d changed across reset", i)
		}
	}
}

func TestCloseStopsClock(t *testing.T) {
	s, sched, _ := newTestSession(t, progress.NewMemoryStore())

	s.Flip(0)
	s.Close()
	if sched.pending(s.tickInterval) != 0 {
		t.Error("tick still armed after close")
	}
	if sched.fire(s.tickInterval) {
		t.Error("cancelled tick fired after close")
	}
	s.Flip(1)
	if got := s.Snapshot(); len(got.Flipped) != 1 {
		t.Errorf("closed session accepted a flip: %v", got.Flipped)
	}
}

func TestTickOnlyAdvancesWhilePlaying(t *testing.T) {
	s, sched, _ := newTestSession(t, progress.NewMemoryStore())

	if sched.fire(s.tickInterval) {
		t.Error("tick scheduled before first flip")
	}
	s.Flip(0)
	sched.fire(s.tickInterval)
	sched.fire(s.tickInterval)
	if got := s.Snapshot().ElapsedSeconds; got != 2 {
		t.Errorf("elapsed = %d, want 2", got)
	}
}

func TestStoreUnavailableIsMemoryOnly(t *testing.T) {
	s, sched, _ := newTestSession(t, failStore{})

	if got := s.Snapshot().State; got != StateIdle {
		t.Fatalf("state = %q, want idle with empty progress", got)
	}

	// Completion still settles in memory; the dropped write is logged,
	// never fatal.
	solve(t, s, sched)
	snap := s.Snapshot()
	if snap.State != StateComplete || snap.Progress.Streak != 1 {
		t.Errorf("memory-only completion failed: %+v", snap.Progress)
	}
}

func TestMidnightRollover(t *testing.T) {
	// A session created before midnight and reset after it picks up the
	// new day's board.
	store := progress.NewMemoryStore()
	sched := &manualScheduler{}
	clock := &fakeClock{now: time.Date(2026, time.August, 28, 23, 59, 0, 0, time.UTC)}
	s := New("math", Options{Store: store, Scheduler: sched, Clock: clock})
	defer s.Close()

	before := s.Snapshot().Seed
	clock.set(time.Date(2026, time.August, 29, 0, 1, 0, 0, time.UTC))
	s.Reset()
	after := s.Snapshot().Seed
	if before == after {
		t.Error("seed unchanged across midnight reset")
	}
}
