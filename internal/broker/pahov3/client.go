// Package pahov3 implements broker.Client over MQTT 3.1.1 with
// github.com/eclipse/paho.mqtt.golang.
package pahov3

import (
	"context"
	"crypto/tls"
	"time"

	"codeberg.org/mutker/mupimqtt/internal/broker"
	"codeberg.org/mutker/mupimqtt/internal/errors"
	"codeberg.org/mutker/mupimqtt/internal/logger"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	component = "pahov3"
	qos       = 0
	retained  = false

	tlsMinVersion = tls.VersionTLS12
)

// Client wraps paho.mqtt.golang. Reconnection after the first successful
// Connect is left to paho's auto-reconnect.
type Client struct {
	client  pahomqtt.Client
	opts    broker.Options
	handler broker.Handler
}

var _ broker.Client = (*Client)(nil)

// New builds a client; it does not connect.
func New(opts broker.Options, handler broker.Handler) *Client {
	c := &Client{opts: opts, handler: handler}

	setLoggers(opts.Debug)
	c.client = pahomqtt.NewClient(c.clientOptions())

	return c
}

func setLoggers(debug bool) {
	pahomqtt.ERROR = logger.Printer{Level: logger.ErrorLevel, Component: component}
	pahomqtt.CRITICAL = logger.Printer{Level: logger.ErrorLevel, Component: component}
	pahomqtt.WARN = logger.Printer{Level: logger.WarnLevel, Component: component}
	if debug {
		pahomqtt.DEBUG = logger.Printer{Level: logger.DebugLevel, Component: component}
	}
}

// clientOptions configures:
//   - broker URL (tcp:// or ssl://)
//   - credentials when a username is set
//   - last will
//   - clean session with auto-reconnect, backoff capped at MaxReconnectInterval
func (c *Client) clientOptions() *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(c.opts.ServerURL())
	opts.SetClientID(c.opts.ClientID)

	if c.opts.Username != "" {
		opts.SetUsername(c.opts.Username)
		opts.SetPassword(c.opts.Password)
	}

	if c.opts.Will.Topic != "" {
		opts.SetBinaryWill(c.opts.Will.Topic, c.opts.Will.Payload, qos, retained)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	// The first attempt must fail fast; retries only follow a successful connect.
	opts.SetConnectRetry(false)
	opts.SetMaxReconnectInterval(c.opts.ReconnectInterval())
	opts.SetConnectTimeout(c.opts.ConnectTimeout)
	opts.SetKeepAlive(c.opts.KeepAlive)
	// Handlers publish, so they must not block paho's router.
	opts.SetOrderMatters(false)

	if c.opts.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		defer broker.Recover(component, "connect")
		c.handler.OnConnect()
	})

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		defer broker.Recover(component, "disconnect")
		c.handler.OnDisconnect(err)
	})

	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		logger.Info().Str("broker", c.opts.ServerURL()).Msg("Reconnecting to MQTT broker")
	})

	return opts
}

func (c *Client) Connect(ctx context.Context) error {
	if err := wait(ctx, c.client.Connect()); err != nil {
		return broker.ConnectError(c.opts.ServerURL(), err)
	}

	return nil
}

func (c *Client) Disconnect(ctx context.Context) error {
	// IsConnected also covers a session that is reconnecting.
	if !c.client.IsConnected() {
		return nil
	}

	c.client.Disconnect(uint(broker.Quiesce(ctx) / time.Millisecond))

	return nil
}

func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	if !c.client.IsConnectionOpen() {
		return errors.New().WithData(errors.ErrNotConnected, topic)
	}

	if err := wait(ctx, c.client.Publish(topic, qos, retained, payload)); err != nil {
		return errors.New().Wrap(errors.ErrPublish, err).WithData(topic)
	}

	return nil
}

func (c *Client) Subscribe(ctx context.Context, topics ...string) error {
	if len(topics) == 0 {
		return nil
	}

	filters := make(map[string]byte, len(topics))
	for _, t := range topics {
		filters[t] = qos
	}

	if err := wait(ctx, c.client.SubscribeMultiple(filters, c.onMessage)); err != nil {
		return errors.New().Wrap(errors.ErrSubscribe, err).WithData(topics)
	}

	return nil
}

func (c *Client) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

func (c *Client) onMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	defer broker.Recover(component, "message")
	c.handler.OnMessage(msg.Topic(), msg.Payload())
}

func wait(ctx context.Context, token pahomqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return errors.New().Wrap(errors.ErrTimeout, ctx.Err())
	}
}
