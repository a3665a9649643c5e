// Package pahov5 implements broker.Client over MQTT 5 with the autopaho
// connection manager from github.com/eclipse/paho.golang.
package pahov5

import (
	"context"
	"crypto/tls"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/mupimqtt/internal/broker"
	"codeberg.org/mutker/mupimqtt/internal/errors"
	"codeberg.org/mutker/mupimqtt/internal/logger"
	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
)

const (
	component = "pahov5"
	qos       = 0

	minBackoff     = time.Second
	initialBackoff = 2 * time.Second
	backoffFactor  = 2.0
)

// Client wraps an autopaho connection manager, which owns reconnection.
type Client struct {
	opts    broker.Options
	handler broker.Handler

	mu     sync.Mutex
	conn   *autopaho.ConnectionManager
	cancel context.CancelFunc

	// up is true between OnConnectionUp and OnConnectionDown.
	up atomic.Bool
}

var _ broker.Client = (*Client)(nil)

// New builds a client; it does not connect.
func New(opts broker.Options, handler broker.Handler) *Client {
	return &Client{opts: opts, handler: handler}
}

func (c *Client) clientConfig() (autopaho.ClientConfig, error) {
	serverURL, err := url.Parse(c.opts.ServerURL())
	if err != nil {
		return autopaho.ClientConfig{}, errors.New().Wrap(errors.ErrInvalidConfig, err)
	}

	maxBackoff := c.opts.ReconnectInterval()
	if maxBackoff < initialBackoff {
		maxBackoff = initialBackoff
	}

	cfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{serverURL},
		KeepAlive:                     uint16(c.opts.KeepAlive / time.Second),
		CleanStartOnInitialConnection: true,
		SessionExpiryInterval:         0,
		ConnectTimeout:                c.opts.ConnectTimeout,
		ReconnectBackoff:              autopaho.NewExponentialBackoff(minBackoff, maxBackoff, initialBackoff, backoffFactor),
		OnConnectionUp: func(_ *autopaho.ConnectionManager, _ *paho.Connack) {
			defer broker.Recover(component, "connect")
			c.up.Store(true)
			c.handler.OnConnect()
		},
		// Called once for every OnConnectionUp, before the next reconnect.
		OnConnectionDown: func() (reconnect bool) {
			reconnect = true
			defer broker.Recover(component, "disconnect")
			c.up.Store(false)
			c.handler.OnDisconnect(errors.New().New(errors.ErrConnection))
			return reconnect
		},
		OnConnectError: func(err error) {
			logger.Debug().Err(err).Str("broker", c.opts.ServerURL()).Msg("MQTT connection attempt failed")
		},
		Errors:     logger.Printer{Level: logger.ErrorLevel, Component: component},
		PahoErrors: logger.Printer{Level: logger.ErrorLevel, Component: component},
		ClientConfig: paho.ClientConfig{
			ClientID: c.opts.ClientID,
			// Every connection autopaho builds gets its own copy.
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				c.onPublish,
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				logger.Info().Uint8("reason", d.ReasonCode).Msg("MQTT broker closed the session")
			},
		},
	}

	if c.opts.Debug {
		cfg.Debug = logger.Printer{Level: logger.DebugLevel, Component: component}
	}

	if c.opts.Username != "" {
		cfg.ConnectUsername = c.opts.Username
		cfg.ConnectPassword = []byte(c.opts.Password)
	}

	if c.opts.Will.Topic != "" {
		cfg.WillMessage = &paho.WillMessage{
			Topic:   c.opts.Will.Topic,
			Payload: c.opts.Will.Payload,
			QoS:     qos,
			Retain:  false,
		}
	}

	if c.opts.TLS {
		cfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return cfg, nil
}

func (c *Client) onPublish(rx paho.PublishReceived) (bool, error) {
	defer broker.Recover(component, "message")
	c.handler.OnMessage(rx.Packet.Topic, rx.Packet.Payload)

	return true, nil
}

func (c *Client) Connect(ctx context.Context) error {
	cfg, err := c.clientConfig()
	if err != nil {
		return err
	}

	// The manager outlives ctx; it stops on Disconnect.
	runCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	conn, err := autopaho.NewConnection(runCtx, cfg)
	if err != nil {
		c.mu.Unlock()
		cancel()
		return broker.ConnectError(c.opts.ServerURL(), err)
	}
	c.conn = conn
	c.cancel = cancel
	c.mu.Unlock()

	if err := conn.AwaitConnection(ctx); err != nil {
		cancel()
		return broker.ConnectError(c.opts.ServerURL(), err)
	}

	return nil
}

func (c *Client) Disconnect(ctx context.Context) error {
	conn, cancel := c.manager()
	if conn == nil {
		return nil
	}
	defer cancel()

	c.up.Store(false)

	if err := conn.Disconnect(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return errors.New().Wrap(errors.ErrShutdownFailed, err)
	}

	return nil
}

func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	conn, _ := c.manager()
	if conn == nil || !c.up.Load() {
		return errors.New().WithData(errors.ErrNotConnected, topic)
	}

	if _, err := conn.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     qos,
		Retain:  false,
		Payload: payload,
	}); err != nil {
		return errors.New().Wrap(errors.ErrPublish, err).WithData(topic)
	}

	return nil
}

func (c *Client) Subscribe(ctx context.Context, topics ...string) error {
	if len(topics) == 0 {
		return nil
	}

	conn, _ := c.manager()
	if conn == nil {
		return errors.New().WithData(errors.ErrNotConnected, topics)
	}

	sub := &paho.Subscribe{Subscriptions: make([]paho.SubscribeOptions, 0, len(topics))}
	for _, t := range topics {
		sub.Subscriptions = append(sub.Subscriptions, paho.SubscribeOptions{Topic: t, QoS: qos})
	}

	if _, err := conn.Subscribe(ctx, sub); err != nil {
		return errors.New().Wrap(errors.ErrSubscribe, err).WithData(topics)
	}

	return nil
}

func (c *Client) IsConnected() bool {
	return c.up.Load()
}

func (c *Client) manager() (*autopaho.ConnectionManager, context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.conn, c.cancel
}
