package game

import (
	"sync"
	"testing"
	"time"
)

// manualScheduler collects scheduled callbacks so tests can drive playback
// deterministically. Callbacks run in FIFO order when fired.
type manualScheduler struct {
	mu    sync.Mutex
	queue []scheduled
}

type scheduled struct {
	delay time.Duration
	fn    func()
}

func (m *manualScheduler) AfterFunc(d time.Duration, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, scheduled{delay: d, fn: fn})
}

// fire runs the oldest pending callback. Returns false if none are pending.
func (m *manualScheduler) fire() bool {
	m.mu.Lock()
	if len(m.queue) == 0 {
		m.mu.Unlock()
		return false
	}
	next := m.queue[0]
	m.queue = m.queue[1:]
	m.mu.Unlock()
	next.fn()
	return true
}

// drain fires callbacks until nothing is pending. During presenting each
// callback schedules at most one successor, so this terminates once playback
// hands the turn to the player.
func (m *manualScheduler) drain() {
	for m.fire() {
	}
}

func (m *manualScheduler) delays() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Duration, len(m.queue))
	for i, s := range m.queue {
		out[i] = s.delay
	}
	return out
}

// pickFrom returns a pick func that replays the given colors in order.
func pickFrom(colors ...int) func(int) int {
	i := 0
	return func(n int) int {
		c := colors[i%len(colors)]
		i++
		return c % n
	}
}

// newTestEngine builds an engine with manual timing and a scripted sequence.
func newTestEngine(d Difficulty, colors ...int) (*Engine, *manualScheduler) {
	sched := &manualScheduler{}
	e := New(d, WithScheduler(sched), WithPick(pickFrom(colors...)))
	return e, sched
}

// completeRound plays the current sequence back correctly.
func completeRound(t *testing.T, e *Engine) {
	t.Helper()
	for _, c := range e.Sequence() {
		if _, ok := e.Submit(c); !ok {
			t.Fatalf("correct input %d rejected in state %s", c, e.State())
		}
	}
}

func TestDifficultySpeedsStrictlyDecreasing(t *testing.T) {
	if !(Easy.Speed() > Medium.Speed() && Medium.Speed() > Hard.Speed()) {
		t.Fatalf("speeds not strictly decreasing: %v %v %v",
			Easy.Speed(), Medium.Speed(), Hard.Speed())
	}
}

func TestDifficultyCodesAndNames(t *testing.T) {
	cases := []struct {
		d    Difficulty
		code int
		name string
	}{
		{Easy, 0, "easy"},
		{Medium, 1, "medium"},
		{Hard, 2, "hard"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.d.Code() != tc.code {
				t.Errorf("code = %d, want %d", tc.d.Code(), tc.code)
			}
			if tc.d.String() != tc.name {
				t.Errorf("name = %q, want %q", tc.d.String(), tc.name)
			}
			parsed, err := ParseDifficulty(tc.name)
			if err != nil || parsed != tc.d {
				t.Errorf("ParseDifficulty(%q) = %v, %v", tc.name, parsed, err)
			}
		})
	}

	if _, err := ParseDifficulty("nightmare"); err == nil {
		t.Error("expected error for unknown difficulty")
	}
}

func TestSequenceGrowsOnePerRound(t *testing.T) {
	e, sched := newTestEngine(Easy, 0, 1, 2, 3, 0)

	for n := 1; n <= 5; n++ {
		if n == 1 {
			if _, ok := e.StartRound(); !ok {
				t.Fatalf("round %d: StartRound rejected", n)
			}
		} else {
			sched.drain() // settle timer starts the next round automatically
		}
		sched.drain() // playback → awaiting input
		if got := e.State(); got != StateAwaitingInput {
			t.Fatalf("round %d: state = %s, want %s", n, got, StateAwaitingInput)
		}
		if got := len(e.Sequence()); got != n {
			t.Fatalf("round %d: sequence length = %d, want %d", n, got, n)
		}
		completeRound(t, e)
		if got := e.Score(); got != n {
			t.Fatalf("round %d: score = %d, want %d", n, got, n)
		}
	}
}

func TestKnownSequenceRightAndWrongInputs(t *testing.T) {
	// Scripted colors 0,2,1 so by round three the sequence is [0 2 1].
	buildToRoundThree := func(t *testing.T) (*Engine, *manualScheduler) {
		t.Helper()
		e, sched := newTestEngine(Medium, 0, 2, 1)
		e.StartRound()
		sched.drain()
		completeRound(t, e) // [0]
		sched.drain()
		completeRound(t, e) // [0 2]
		sched.drain()
		seq := e.Sequence()
		if len(seq) != 3 || seq[0] != 0 || seq[1] != 2 || seq[2] != 1 {
			t.Fatalf("sequence = %v, want [0 2 1]", seq)
		}
		return e, sched
	}

	t.Run("correct inputs complete the round", func(t *testing.T) {
		e, _ := buildToRoundThree(t)
		before := e.Score()
		for _, c := range []int{0, 2, 1} {
			e.Submit(c)
		}
		if got := e.State(); got != StateRoundComplete {
			t.Fatalf("state = %s, want %s", got, StateRoundComplete)
		}
		if got := e.Score(); got != before+1 {
			t.Fatalf("score = %d, want %d", got, before+1)
		}
	})

	t.Run("wrong second input ends the game", func(t *testing.T) {
		e, _ := buildToRoundThree(t)
		before := e.Score()
		e.Submit(0)
		e.Submit(1) // sequence has 2 here
		if got := e.State(); got != StateGameOver {
			t.Fatalf("state = %s, want %s", got, StateGameOver)
		}
		if got := e.Score(); got != before {
			t.Fatalf("score = %d, want unchanged %d", got, before)
		}
	})
}

func TestInputDroppedOutsideAwaitingInput(t *testing.T) {
	e, sched := newTestEngine(Easy, 2)

	// Idle: nothing to answer yet.
	if _, ok := e.Submit(2); ok {
		t.Error("input accepted while idle")
	}

	// Presenting: a human cannot react during playback, so drop.
	e.StartRound()
	if _, ok := e.Submit(2); ok {
		t.Error("input accepted while presenting")
	}

	sched.drain()
	if _, ok := e.Submit(2); !ok {
		t.Error("input rejected while awaiting input")
	}
}

func TestInputOutOfRangeDropped(t *testing.T) {
	e, sched := newTestEngine(Easy, 1)
	e.StartRound()
	sched.drain()

	for _, c := range []int{-1, 4, 99} {
		if _, ok := e.Submit(c); ok {
			t.Errorf("out-of-range color %d accepted", c)
		}
	}
	if got := e.State(); got != StateAwaitingInput {
		t.Fatalf("state = %s after dropped inputs, want %s", got, StateAwaitingInput)
	}
}

func TestResetFromAnyState(t *testing.T) {
	assertIdle := func(t *testing.T, e *Engine) {
		t.Helper()
		snap := e.Snapshot()
		if snap.State != StateIdle || snap.Score != 0 || snap.Round != 1 || snap.SeqLen != 0 {
			t.Fatalf("after reset: %+v", snap)
		}
	}

	t.Run("from idle", func(t *testing.T) {
		e, _ := newTestEngine(Easy, 0)
		e.Reset()
		assertIdle(t, e)
	})

	t.Run("from presenting", func(t *testing.T) {
		e, sched := newTestEngine(Easy, 0)
		e.StartRound()
		e.Reset()
		// Orphaned playback timers must not revive the round.
		sched.drain()
		assertIdle(t, e)
	})

	t.Run("from awaiting input", func(t *testing.T) {
		e, sched := newTestEngine(Easy, 0)
		e.StartRound()
		sched.drain()
		e.Reset()
		assertIdle(t, e)
	})

	t.Run("from game over", func(t *testing.T) {
		e, sched := newTestEngine(Easy, 0)
		e.StartRound()
		sched.drain()
		e.Submit(3) // wrong
		e.Reset()
		assertIdle(t, e)
	})
}

func TestStaleTimersAfterResetEmitNothing(t *testing.T) {
	var events []Event
	sched := &manualScheduler{}
	e := New(Easy,
		WithScheduler(sched),
		WithPick(pickFrom(0)),
		WithNotify(func(ev Event) { events = append(events, ev) }),
	)

	e.StartRound()
	e.Reset()
	mark := len(events)
	sched.drain()

	for _, ev := range events[mark:] {
		if ev.Kind == EventLightOn || ev.Kind == EventLightOff {
			t.Fatalf("stale timer emitted %+v after reset", ev)
		}
	}
}

func TestRecordOnlyForPositiveFinishedScore(t *testing.T) {
	t.Run("not finished", func(t *testing.T) {
		e, sched := newTestEngine(Easy, 0)
		e.StartRound()
		sched.drain()
		if _, ok := e.Record("alice"); ok {
			t.Error("record produced before game over")
		}
	})

	t.Run("zero score", func(t *testing.T) {
		e, sched := newTestEngine(Easy, 0)
		e.StartRound()
		sched.drain()
		e.Submit(3) // immediate failure
		if _, ok := e.Record("alice"); ok {
			t.Error("zero score must never be recorded")
		}
	})

	t.Run("positive score", func(t *testing.T) {
		e, sched := newTestEngine(Hard, 0, 1)
		e.StartRound()
		sched.drain()
		completeRound(t, e)
		sched.drain() // second round playback
		e.Submit(3)   // fail round two
		rec, ok := e.Record("")
		if !ok {
			t.Fatal("expected a record")
		}
		if rec.Score != 1 {
			t.Errorf("score = %d, want 1", rec.Score)
		}
		if rec.Difficulty != Hard {
			t.Errorf("difficulty = %v, want %v", rec.Difficulty, Hard)
		}
		if rec.PlayerName != "Anonymous" {
			t.Errorf("player name = %q, want Anonymous", rec.PlayerName)
		}
		if rec.When.IsZero() {
			t.Error("timestamp not set")
		}
	})
}

func TestPlaybackTimingSplit(t *testing.T) {
	sched := &manualScheduler{}
	// Override to a round number so the 7/10 split is exact.
	e := New(Easy, WithScheduler(sched), WithPick(pickFrom(0)), WithSpeed(time.Second))

	e.StartRound()
	if got := sched.delays(); len(got) != 1 || got[0] != leadInDelay {
		t.Fatalf("lead-in delays = %v, want [%v]", got, leadInDelay)
	}
	sched.fire() // light on, schedules the active phase
	if got := sched.delays(); len(got) != 1 || got[0] != 700*time.Millisecond {
		t.Fatalf("active delays = %v, want [700ms]", got)
	}
	sched.fire() // light off, schedules the final gap
	if got := sched.delays(); len(got) != 1 || got[0] != 300*time.Millisecond {
		t.Fatalf("gap delays = %v, want [300ms]", got)
	}
	sched.fire()
	if got := e.State(); got != StateAwaitingInput {
		t.Fatalf("state = %s, want %s", got, StateAwaitingInput)
	}
}

func TestManualStartDuringSettleCancelsAutoStart(t *testing.T) {
	e, sched := newTestEngine(Easy, 0, 1, 2)
	e.StartRound()
	sched.drain()
	completeRound(t, e) // queues the settle timer

	// Player restarts manually before the settle delay elapses.
	if _, ok := e.StartRound(); !ok {
		t.Fatal("manual start from round complete rejected")
	}
	if got := len(e.Sequence()); got != 2 {
		t.Fatalf("sequence length = %d, want 2", got)
	}
	sched.drain() // stale settle timer must not start a third round
	if got := len(e.Sequence()); got != 2 {
		t.Fatalf("stale settle timer grew sequence to %d", got)
	}
	if got := e.State(); got != StateAwaitingInput {
		t.Fatalf("state = %s, want %s", got, StateAwaitingInput)
	}
}

func TestEventStreamShape(t *testing.T) {
	var events []Event
	sched := &manualScheduler{}
	e := New(Easy,
		WithScheduler(sched),
		WithPick(pickFrom(2)),
		WithNotify(func(ev Event) { events = append(events, ev) }),
	)

	e.StartRound()
	sched.drain()
	e.Submit(3) // wrong

	var kinds []EventKind
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	want := []EventKind{EventState, EventLightOn, EventLightOff, EventState, EventState, EventGameOver}
	if len(kinds) != len(want) {
		t.Fatalf("event kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("event[%d] = %s, want %s (all: %v)", i, kinds[i], want[i], kinds)
		}
	}
	if events[1].Color != 2 {
		t.Errorf("light on color = %d, want 2", events[1].Color)
	}
}
