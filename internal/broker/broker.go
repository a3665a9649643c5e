// Package broker abstracts the MQTT transport. Adapters for MQTT 3.1.1 and
// MQTT 5 live in the pahov3 and pahov5 subpackages.
//
// All publishes and subscriptions use QoS 0 and are never retained.
package broker

import (
	"context"
	"fmt"
	"time"

	"codeberg.org/mutker/mupimqtt/internal/config"
	"codeberg.org/mutker/mupimqtt/internal/errors"
	"codeberg.org/mutker/mupimqtt/internal/logger"
)

const (
	minReconnectInterval = time.Second
	disconnectQuiesce    = time.Second
)

// Handler receives the transport's events. The transport calls it from its
// own goroutines.
type Handler interface {
	// OnConnect runs after every successful connect, including reconnects.
	OnConnect()
	// OnDisconnect runs after an unsolicited connection loss.
	OnDisconnect(err error)
	// OnMessage runs for every message received on a subscribed topic.
	OnMessage(topic string, payload []byte)
}

// Client is an MQTT session that reconnects on its own after the first
// successful Connect.
type Client interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topics ...string) error
	IsConnected() bool
}

// Will is the message the broker publishes when the session dies uncleanly.
type Will struct {
	Topic   string
	Payload []byte
}

// Options holds the transport settings shared by both adapters.
type Options struct {
	Host                 string
	Port                 int
	TLS                  bool
	ClientID             string
	Username             string
	Password             string
	KeepAlive            time.Duration
	ConnectTimeout       time.Duration
	MaxReconnectInterval time.Duration
	Will                 Will
	Debug                bool
}

func NewOptions(cfg *config.Config, will Will) Options {
	return Options{
		Host:                 cfg.MQTT.Broker,
		Port:                 cfg.MQTT.Port,
		TLS:                  cfg.MQTT.TLS,
		ClientID:             cfg.MQTT.ClientID,
		Username:             cfg.MQTT.Username,
		Password:             cfg.MQTT.Password,
		KeepAlive:            cfg.MQTT.KeepAliveInterval(),
		ConnectTimeout:       cfg.MQTT.ConnectTimeout(),
		MaxReconnectInterval: cfg.MQTT.ReconnectMaxDelay(),
		Will:                 will,
		Debug:                cfg.Debug,
	}
}

// ServerURL returns tcp://host:port, or ssl://host:port with TLS enabled.
func (o Options) ServerURL() string {
	scheme := "tcp"
	if o.TLS {
		scheme = "ssl"
	}

	return fmt.Sprintf("%s://%s:%d", scheme, o.Host, o.Port)
}

// ReconnectInterval returns the backoff cap, never below one second.
func (o Options) ReconnectInterval() time.Duration {
	if o.MaxReconnectInterval < minReconnectInterval {
		return minReconnectInterval
	}

	return o.MaxReconnectInterval
}

// Quiesce returns how long a disconnect may wait for in-flight work.
func Quiesce(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return disconnectQuiesce
	}

	if remaining := time.Until(deadline); remaining < disconnectQuiesce {
		if remaining < 0 {
			return 0
		}
		return remaining
	}

	return disconnectQuiesce
}

// Recover logs a panic raised by a Handler so a faulty callback cannot take
// down the transport goroutine. Use it deferred.
func Recover(component, event string) {
	if r := recover(); r != nil {
		logger.ErrorWithCode(errors.New().WithData(errors.ErrInternal, r)).
			Str("component", component).
			Str("event", event).
			Msg("Handler panic recovered")
	}
}

// ConnectError wraps a failed or timed out initial connect.
func ConnectError(url string, err error) error {
	return errors.New().Wrap(errors.ErrConnection, err).WithData(url)
}
