// apps/go-server/internal/launch/errors.go
//
// Typed launch failures. Kind distinguishes an unreachable broker from a
// rejected or timed-out publish; Stage names which of the two messages was
// in flight when a publish failed.

package launch

import "fmt"

// Kind classifies a launch failure.
type Kind string

const (
	// KindConnect: the broker could not be reached. Not retried by the
	// coordinator; the caller decides whether to try again.
	KindConnect Kind = "connect"

	// KindPublish: the broker was reachable but a publish was rejected or
	// timed out.
	KindPublish Kind = "publish"
)

// Stage names the handshake message a publish failure belongs to.
type Stage string

const (
	StageDifficulty Stage = "difficulty"
	StageStart      Stage = "start"
)

// Error is the failure type returned by Coordinator.Launch.
type Error struct {
	Kind  Kind
	Stage Stage // empty for connect failures
	Err   error
}

func (e *Error) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("launch: %s %s: %v", e.Kind, e.Stage, e.Err)
	}
	return fmt.Sprintf("launch: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
