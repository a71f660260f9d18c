// apps/go-server/internal/game/types.go
//
// Core type definitions for the Simon game engine.
// Defines:
//   - Difficulty: playback speed / wire code pairing (easy/medium/hard).
//   - State: lifecycle of a single game (idle → presenting → ... → game over).
//   - ScoreRecord: the final result handed to the score store.
//   - Snapshot and Event: read-only views consumed by the HTTP/display layer.

package game

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Difficulty selects both the playback speed and the numeric code sent over
// the wire. Both values derive from the one enum so they can never drift
// apart.
type Difficulty int

const (
	Easy Difficulty = iota
	Medium
	Hard
)

// ErrUnknownDifficulty is returned by ParseDifficulty for unrecognized input.
var ErrUnknownDifficulty = errors.New("unknown difficulty")

// Code reports the numeric wire code published to the device
// (0=easy, 1=medium, 2=hard).
func (d Difficulty) Code() int { return int(d) }

// Speed reports the per-step playback duration for this difficulty.
// Easy=800ms, Medium=500ms, Hard=300ms.
func (d Difficulty) Speed() time.Duration {
	switch d {
	case Medium:
		return 500 * time.Millisecond
	case Hard:
		return 300 * time.Millisecond
	default:
		return 800 * time.Millisecond
	}
}

// String reports the lowercase name used in JSON payloads and DB rows.
func (d Difficulty) String() string {
	switch d {
	case Medium:
		return "medium"
	case Hard:
		return "hard"
	default:
		return "easy"
	}
}

// MarshalJSON encodes the difficulty as its lowercase name, matching what
// the API accepts on input and what the DB stores.
func (d Difficulty) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts the lowercase name form ("easy", "medium", "hard").
func (d *Difficulty) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDifficulty(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDifficulty converts a form/JSON value into a Difficulty.
func ParseDifficulty(s string) (Difficulty, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "easy":
		return Easy, nil
	case "medium":
		return Medium, nil
	case "hard":
		return Hard, nil
	}
	return Easy, ErrUnknownDifficulty
}

// State is the round lifecycle of a single game. Owned exclusively by the
// engine; observers only ever see it through Snapshot.
type State string

const (
	StateIdle          State = "idle"
	StatePresenting    State = "presenting"
	StateAwaitingInput State = "awaiting_input"
	StateRoundComplete State = "round_complete"
	StateGameOver      State = "game_over"
)

// ScoreRecord is produced once per finished game and handed to the score
// store. The engine does not retain it after handoff.
type ScoreRecord struct {
	PlayerName string     `json:"playerName"`
	Score      int        `json:"score"`
	Difficulty Difficulty `json:"difficulty"`
	When       time.Time  `json:"when"`
}

// Snapshot is a consistent read-only view of an engine.
type Snapshot struct {
	ID         string     `json:"id"`
	State      State      `json:"state"`
	Difficulty Difficulty `json:"difficulty"`
	Score      int        `json:"score"`
	Round      int        `json:"round"`
	SeqLen     int        `json:"sequenceLength"`
}

// EventKind discriminates the events streamed to the display layer.
type EventKind string

const (
	EventState    EventKind = "state"     // state transition
	EventLightOn  EventKind = "light_on"  // playback step active
	EventLightOff EventKind = "light_off" // playback step inactive
	EventGameOver EventKind = "game_over" // terminal, carries final score
)

// Event is a single display-facing notification. Color is only meaningful
// for light events; Score only for game over.
type Event struct {
	Kind  EventKind `json:"kind"`
	State State     `json:"state,omitempty"`
	Color int       `json:"color"` // 0 is a valid color, so never omitted
	Score int       `json:"score"`
	Round int       `json:"round"`
}
