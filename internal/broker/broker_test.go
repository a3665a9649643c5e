package broker

import (
	"context"
	"io"
	"testing"
	"time"

	"codeberg.org/mutker/mupimqtt/internal/config"
	"codeberg.org/mutker/mupimqtt/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestNewOptions(t *testing.T) {
	cfg := &config.Config{
		MQTT: config.MQTT{
			Broker:               "broker.lan",
			Port:                 8883,
			TLS:                  true,
			ClientID:             "kidsroom",
			Username:             "user",
			Password:             "secret",
			KeepAlive:            30,
			Timeout:              10,
			ReconnectMaxInterval: 120,
		},
		Debug: true,
	}
	will := Will{Topic: "mupibox/kidsroom/state", Payload: []byte("offline")}

	opts := NewOptions(cfg, will)

	assert.Equal(t, "ssl://broker.lan:8883", opts.ServerURL())
	assert.Equal(t, 30*time.Second, opts.KeepAlive)
	assert.Equal(t, 10*time.Second, opts.ConnectTimeout)
	assert.Equal(t, 120*time.Second, opts.ReconnectInterval())
	assert.Equal(t, will, opts.Will)
	assert.True(t, opts.Debug)

	opts.TLS = false
	assert.Equal(t, "tcp://broker.lan:8883", opts.ServerURL())

	opts.MaxReconnectInterval = 0
	assert.Equal(t, time.Second, opts.ReconnectInterval())
}

func TestQuiesce(t *testing.T) {
	assert.Equal(t, time.Second, Quiesce(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
	defer cancel()
	assert.Equal(t, time.Second, Quiesce(ctx))

	expired, cancelExpired := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancelExpired()
	assert.Equal(t, time.Duration(0), Quiesce(expired))
}

func TestRecover(t *testing.T) {
	assert.NotPanics(t, func() {
		defer Recover("test", "message")
		panic("boom")
	})
}

func TestConnectError(t *testing.T) {
	err := ConnectError("tcp://localhost:1883", io.EOF)

	assert.True(t, errors.HasCode(err, errors.ErrConnection))
	assert.True(t, errors.Is(err, io.EOF))
}
