// apps/go-server/internal/launch/coordinator.go
//
// Launch handshake for the physical Simon device.
// Responsibilities:
//   - Turn a chosen difficulty into the ordered two-message handshake:
//     publish {"dif":N} to the difficulty topic, then the start literal to
//     the start topic, both at QoS 0.
//   - Scope one broker connection per launch (closed on every exit path).
//   - Serialize concurrent launches so the device never sees two
//     interleaved difficulty/start pairs.
//
// The remote listener applies a start message to whatever difficulty message
// most recently preceded it, which is why the second publish is never
// attempted once the first has failed, and why a failed launch must be
// retried from the top rather than by re-sending start alone.

package launch

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/treliann/simon/apps/go-server/internal/game"
)

const (
	// Default topics, matching what the device subscribes to.
	DefaultDifficultyTopic = "site/difficulte"
	DefaultStartTopic      = "site/start"

	defaultTimeout = 5 * time.Second
)

// Broker is the transport capability the coordinator consumes. The MQTT
// implementation lives in internal/broker; tests substitute fakes.
type Broker interface {
	// Connect opens a connection scoped to one launch sequence.
	Connect(ctx context.Context) (Connection, error)
}

// Connection is a live broker session.
type Connection interface {
	// Publish sends one message. QoS 0 means fire-and-forget.
	Publish(ctx context.Context, topic string, payload []byte, qos byte) error

	// Disconnect releases the connection. Safe to call after a failed publish.
	Disconnect()
}

// difficultyPayload is the wire shape of the difficulty message.
type difficultyPayload struct {
	Dif int `json:"dif"`
}

// startPayload is the canonical start signal. The legacy pages were split
// between a bare literal and a JSON-wrapped boolean; the device accepts the
// literal, so that is the one encoding we send.
var startPayload = []byte("true")

// Config carries the coordinator's tunables. Zero values fall back to the
// defaults above.
type Config struct {
	DifficultyTopic string
	StartTopic      string
	Timeout         time.Duration // per broker operation
}

func (c Config) withDefaults() Config {
	if c.DifficultyTopic == "" {
		c.DifficultyTopic = DefaultDifficultyTopic
	}
	if c.StartTopic == "" {
		c.StartTopic = DefaultStartTopic
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	return c
}

// Coordinator delivers the difficulty/start pair for one launch request.
type Coordinator struct {
	mu     sync.Mutex
	broker Broker
	cfg    Config
}

// NewCoordinator constructs a Coordinator over the given broker.
func NewCoordinator(b Broker, cfg Config) *Coordinator {
	return &Coordinator{broker: b, cfg: cfg.withDefaults()}
}

// Launch runs the full handshake for one difficulty selection:
//
//	connect → publish difficulty → publish start → disconnect
//
// It returns nil only if both publishes succeeded. On the first failure it
// stops — start is never sent without its matching difficulty. Concurrent
// calls are serialized; each gets its own connection.
func (c *Coordinator) Launch(ctx context.Context, d game.Difficulty) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	conn, err := c.broker.Connect(ctx)
	if err != nil {
		return &Error{Kind: KindConnect, Err: err}
	}
	defer conn.Disconnect()

	body, err := json.Marshal(difficultyPayload{Dif: d.Code()})
	if err != nil {
		return &Error{Kind: KindPublish, Stage: StageDifficulty, Err: err}
	}
	if err := conn.Publish(ctx, c.cfg.DifficultyTopic, body, 0); err != nil {
		return &Error{Kind: KindPublish, Stage: StageDifficulty, Err: err}
	}
	if err := conn.Publish(ctx, c.cfg.StartTopic, startPayload, 0); err != nil {
		return &Error{Kind: KindPublish, Stage: StageStart, Err: err}
	}
	return nil
}
