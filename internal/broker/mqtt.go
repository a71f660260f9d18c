// apps/go-server/internal/broker/mqtt.go
//
// MQTT implementation of the launch.Broker capability, backed by the
// Eclipse paho client. Each Connect call builds a fresh client with a unique
// ID so connections are never shared between launches; connect and publish
// waits are bounded by the caller's context deadline.

package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/treliann/simon/apps/go-server/internal/launch"
)

// ErrTimeout is returned when a broker operation exceeds its deadline.
var ErrTimeout = errors.New("mqtt: operation timed out")

// Config carries MQTT connection settings, normally sourced from env.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
}

// MQTT is a launch.Broker that opens one paho client per launch.
type MQTT struct {
	cfg Config
}

// New constructs the broker factory. No connection is made until Connect.
func New(cfg Config) *MQTT {
	return &MQTT{cfg: cfg}
}

// Connect dials the broker and returns a connection scoped to one launch.
// The client ID carries a random suffix so rapid repeated launches never
// collide on the broker side.
func (m *MQTT) Connect(ctx context.Context) (launch.Connection, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", m.cfg.Host, m.cfg.Port)).
		SetClientID("simon-web-" + uuid.NewString()[:8]).
		SetAutoReconnect(false).
		SetCleanSession(true)
	if m.cfg.Username != "" {
		opts.SetUsername(m.cfg.Username)
		opts.SetPassword(m.cfg.Password)
	}

	client := mqtt.NewClient(opts)
	if err := waitToken(ctx, client.Connect()); err != nil {
		client.Disconnect(0)
		return nil, fmt.Errorf("connect %s:%d: %w", m.cfg.Host, m.cfg.Port, err)
	}
	return &conn{client: client}, nil
}

type conn struct {
	client mqtt.Client
}

func (c *conn) Publish(ctx context.Context, topic string, payload []byte, qos byte) error {
	if err := waitToken(ctx, c.client.Publish(topic, qos, false, payload)); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (c *conn) Disconnect() {
	// Quiesce window for in-flight packets before the socket drops.
	c.client.Disconnect(250)
}

// waitToken blocks on a paho token up to the context deadline.
func waitToken(ctx context.Context, tok mqtt.Token) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		tok.Wait()
		return tok.Error()
	}
	if !tok.WaitTimeout(time.Until(deadline)) {
		return ErrTimeout
	}
	return tok.Error()
}
