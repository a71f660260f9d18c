// apps/go-server/internal/game/engine.go
//
// Core game engine for a single Simon session.
// Responsibilities:
//   - Grow the color sequence by one uniform random element per round.
//   - Drive playback timing (active/gap split per element) via a Scheduler.
//   - Validate player input element-by-element; score completed rounds.
//   - Track state transitions: idle → presenting → awaiting input →
//     round complete (→ presenting ...) or game over.
//
// Notes:
//   - The engine does no I/O. Persistence and transport live elsewhere.
//   - All mutable fields are guarded by one mutex per engine instance;
//     separate games use separate engines with no shared state.
//   - Every scheduled callback carries the generation it was created under
//     and is a no-op once the generation has moved on, so a reset (or an
//     early manual round start) cannot be corrupted by stale timers.
package game

import (
	crand "crypto/rand"
	"encoding/hex"
	"math/rand/v2"
	"sync"
	"time"
)

const (
	colorCount = 4

	// Playback shape: each element is lit for 7/10 of the step duration and
	// dark for the remaining 3/10. The split is fixed even when the step
	// duration is overridden.
	activeShareNum = 7
	activeShareDen = 10

	// Pause before the first element of a round, and between a completed
	// round and the automatic start of the next one.
	leadInDelay = 500 * time.Millisecond
	settleDelay = time.Second
)

// Scheduler abstracts delayed execution so tests can drive playback timing
// manually. The production implementation wraps time.AfterFunc.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func())
}

type timerScheduler struct{}

func (timerScheduler) AfterFunc(d time.Duration, fn func()) { time.AfterFunc(d, fn) }

// NewTimerScheduler returns the real-time Scheduler used outside of tests.
func NewTimerScheduler() Scheduler { return timerScheduler{} }

// Engine is the state machine for one game. Create one per active game;
// instances must not be shared between games.
type Engine struct {
	mu       sync.Mutex
	id       string
	diff     Difficulty
	speed    time.Duration
	sequence []int
	input    []int
	state    State
	score    int
	round    int
	gen      uint64

	sched  Scheduler
	pick   func(n int) int
	notify func(Event)

	pending []Event
}

// Option customizes an Engine at construction time.
type Option func(*Engine)

// WithSpeed overrides the per-step playback duration. The 7/10 active, 3/10
// gap split still applies to the overridden value.
func WithSpeed(d time.Duration) Option { return func(e *Engine) { e.speed = d } }

// WithScheduler substitutes the timing source (used by tests).
func WithScheduler(s Scheduler) Option { return func(e *Engine) { e.sched = s } }

// WithPick substitutes the random color source (used by tests).
// pick(n) must return a value in [0,n).
func WithPick(pick func(n int) int) Option { return func(e *Engine) { e.pick = pick } }

// WithNotify registers a display-facing event sink. The callback runs
// outside the engine lock and must not block for long.
func WithNotify(fn func(Event)) Option { return func(e *Engine) { e.notify = fn } }

// New constructs an idle engine for the given difficulty.
func New(d Difficulty, opts ...Option) *Engine {
	e := &Engine{
		id:    randomID(),
		diff:  d,
		speed: d.Speed(),
		state: StateIdle,
		round: 1,
		sched: timerScheduler{},
		pick:  rand.IntN,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ID reports the engine's session identifier.
func (e *Engine) ID() string { return e.id }

// Difficulty reports the difficulty the engine was created with.
func (e *Engine) Difficulty() Difficulty { return e.diff }

// State reports the current round state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Score reports the number of completed rounds.
func (e *Engine) Score() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.score
}

// Round reports the current round number (starts at 1).
func (e *Engine) Round() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.round
}

// Sequence returns a copy of the color sequence generated so far.
func (e *Engine) Sequence() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]int, len(e.sequence))
	copy(out, e.sequence)
	return out
}

// Snapshot returns a consistent read-only view of the engine.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() Snapshot {
	return Snapshot{
		ID:         e.id,
		State:      e.state,
		Difficulty: e.diff,
		Score:      e.score,
		Round:      e.round,
		SeqLen:     len(e.sequence),
	}
}

// StartRound appends one random color to the sequence and begins playback.
// Only valid from idle or round complete; anything else is rejected with
// ok=false and no state change.
func (e *Engine) StartRound() (Snapshot, bool) {
	e.mu.Lock()
	if e.state != StateIdle && e.state != StateRoundComplete {
		snap := e.snapshotLocked()
		e.mu.Unlock()
		return snap, false
	}
	e.beginRoundLocked()
	snap := e.snapshotLocked()
	evs := e.drainLocked()
	e.mu.Unlock()
	e.emit(evs)
	return snap, true
}

// Submit records one player input for the current round. Input arriving
// outside awaiting-input, or a color outside [0,3], is dropped (ok=false)
// rather than treated as an error: a click during playback is a normal UI
// race, not a fault.
func (e *Engine) Submit(color int) (Snapshot, bool) {
	e.mu.Lock()
	if e.state != StateAwaitingInput || color < 0 || color >= colorCount {
		snap := e.snapshotLocked()
		e.mu.Unlock()
		return snap, false
	}

	e.input = append(e.input, color)
	last := len(e.input) - 1
	switch {
	case e.input[last] != e.sequence[last]:
		e.gameOverLocked()
	case len(e.input) == len(e.sequence):
		e.score++
		e.round++
		e.setStateLocked(StateRoundComplete)
		e.scheduleNextRoundLocked()
	}

	snap := e.snapshotLocked()
	evs := e.drainLocked()
	e.mu.Unlock()
	e.emit(evs)
	return snap, true
}

// Reset returns the engine to idle from any state and invalidates every
// pending playback timer.
func (e *Engine) Reset() Snapshot {
	e.mu.Lock()
	e.gen++
	e.sequence = nil
	e.input = nil
	e.score = 0
	e.round = 1
	e.setStateLocked(StateIdle)
	snap := e.snapshotLocked()
	evs := e.drainLocked()
	e.mu.Unlock()
	e.emit(evs)
	return snap
}

// Record builds the final score record for a finished game. It reports
// ok=false unless the game is over with a score above zero — a zero score is
// never persisted. Blank player names become "Anonymous".
func (e *Engine) Record(playerName string) (ScoreRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateGameOver || e.score == 0 {
		return ScoreRecord{}, false
	}
	if playerName == "" {
		playerName = "Anonymous"
	}
	return ScoreRecord{
		PlayerName: playerName,
		Score:      e.score,
		Difficulty: e.diff,
		When:       time.Now().UTC(),
	}, true
}

// ----------------------------- internals ------------------------------------

// beginRoundLocked starts a new round: bumps the generation (orphaning any
// timers from the previous round), grows the sequence, and schedules playback.
func (e *Engine) beginRoundLocked() {
	e.gen++
	e.input = e.input[:0]
	e.sequence = append(e.sequence, e.pick(colorCount))
	e.setStateLocked(StatePresenting)

	gen := e.gen
	e.sched.AfterFunc(leadInDelay, func() { e.stepOn(gen, 0) })
}

// stepOn lights element i of the sequence, then schedules its dark phase.
func (e *Engine) stepOn(gen uint64, i int) {
	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return
	}
	color := e.sequence[i]
	e.pushLocked(Event{Kind: EventLightOn, Color: color, Round: e.round})
	active := e.speed * activeShareNum / activeShareDen
	e.sched.AfterFunc(active, func() { e.stepOff(gen, i) })
	evs := e.drainLocked()
	e.mu.Unlock()
	e.emit(evs)
}

// stepOff darkens element i and either schedules the next element or, after
// the final gap, hands the turn to the player.
func (e *Engine) stepOff(gen uint64, i int) {
	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return
	}
	e.pushLocked(Event{Kind: EventLightOff, Color: e.sequence[i], Round: e.round})
	gap := e.speed - e.speed*activeShareNum/activeShareDen
	if i+1 < len(e.sequence) {
		e.sched.AfterFunc(gap, func() { e.stepOn(gen, i+1) })
	} else {
		e.sched.AfterFunc(gap, func() { e.playbackDone(gen) })
	}
	evs := e.drainLocked()
	e.mu.Unlock()
	e.emit(evs)
}

// playbackDone transitions presenting → awaiting input.
func (e *Engine) playbackDone(gen uint64) {
	e.mu.Lock()
	if gen != e.gen || e.state != StatePresenting {
		e.mu.Unlock()
		return
	}
	e.setStateLocked(StateAwaitingInput)
	evs := e.drainLocked()
	e.mu.Unlock()
	e.emit(evs)
}

// scheduleNextRoundLocked arms the automatic round start after the settle
// delay. A manual StartRound or Reset in the meantime bumps the generation
// and orphans it.
func (e *Engine) scheduleNextRoundLocked() {
	gen := e.gen
	e.sched.AfterFunc(settleDelay, func() {
		e.mu.Lock()
		if gen != e.gen || e.state != StateRoundComplete {
			e.mu.Unlock()
			return
		}
		e.beginRoundLocked()
		evs := e.drainLocked()
		e.mu.Unlock()
		e.emit(evs)
	})
}

// gameOverLocked terminates the game. The generation bump cancels any
// in-flight playback timers.
func (e *Engine) gameOverLocked() {
	e.gen++
	e.setStateLocked(StateGameOver)
	e.pushLocked(Event{Kind: EventGameOver, Score: e.score, Round: e.round})
}

func (e *Engine) setStateLocked(s State) {
	e.state = s
	e.pushLocked(Event{Kind: EventState, State: s, Score: e.score, Round: e.round})
}

// pushLocked queues an event for delivery after the lock is released, so the
// notify callback never runs under the engine mutex.
func (e *Engine) pushLocked(ev Event) {
	if e.notify != nil {
		e.pending = append(e.pending, ev)
	}
}

func (e *Engine) drainLocked() []Event {
	evs := e.pending
	e.pending = nil
	return evs
}

func (e *Engine) emit(evs []Event) {
	for _, ev := range evs {
		e.notify(ev)
	}
}

// randomID returns a compact 16‑hex‑char identifier.
// Collisions are extremely unlikely given crypto/rand entropy.
func randomID() string {
	var b [8]byte
	_, _ = crand.Read(b[:])
	return hex.EncodeToString(b[:])
}
