package pahov3

import (
	"context"
	"testing"
	"time"

	"codeberg.org/mutker/mupimqtt/internal/broker"
	"codeberg.org/mutker/mupimqtt/internal/broker/brokertest"
	"codeberg.org/mutker/mupimqtt/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	stateTopic   = "mupibox/test/state"
	commandTopic = "mupibox/test/volume/set"

	waitFor = 10 * time.Second
	tick    = 10 * time.Millisecond
)

type nopHandler struct{}

func (nopHandler) OnConnect()               {}
func (nopHandler) OnDisconnect(error)       {}
func (nopHandler) OnMessage(string, []byte) {}

func unreachable() broker.Options {
	return broker.Options{
		Host:                 "127.0.0.1",
		Port:                 1,
		ClientID:             "test",
		KeepAlive:            time.Minute,
		ConnectTimeout:       time.Second,
		MaxReconnectInterval: time.Second,
		Will:                 broker.Will{Topic: "mupibox/test/state", Payload: []byte("offline")},
	}
}

func TestConnectFailure(t *testing.T) {
	c := New(unreachable(), nopHandler{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := c.Connect(ctx)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrConnection))
	assert.False(t, c.IsConnected())
}

func TestPublishWhileDisconnected(t *testing.T) {
	c := New(unreachable(), nopHandler{})

	err := c.Publish(context.Background(), "mupibox/test/state", []byte("online"))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrNotConnected))

	assert.NoError(t, c.Disconnect(context.Background()))
	assert.NoError(t, c.Subscribe(context.Background()))
}

func connect(t *testing.T, b *brokertest.Broker, clientID string) (*Client, *brokertest.Handler) {
	t.Helper()

	h := &brokertest.Handler{Topics: []string{commandTopic}}
	c := New(b.Options(clientID, broker.Will{Topic: stateTopic, Payload: []byte("offline")}), h)
	h.Attach(c)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	t.Cleanup(func() { _ = c.Disconnect(context.Background()) })

	require.Eventually(t, func() bool {
		n, err := h.Connects()
		return n == 1 && err == nil
	}, waitFor, tick)

	return c, h
}

func TestDeliversCommands(t *testing.T) {
	b := brokertest.Start(t)
	_, h := connect(t, b, "v3-commands")

	b.Publish(t, commandTopic, "57")

	require.Eventually(t, func() bool { return len(h.Messages()) == 1 }, waitFor, tick)
	assert.Equal(t, brokertest.Message{Topic: commandTopic, Payload: "57"}, h.Messages()[0])
}

func TestPublishConnected(t *testing.T) {
	b := brokertest.Start(t)
	c, _ := connect(t, b, "v3-publish")
	assert.True(t, c.IsConnected())

	require.NoError(t, c.Publish(context.Background(), stateTopic, []byte("online")))

	assert.Eventually(t, func() bool {
		payloads := b.Payloads(stateTopic)
		return len(payloads) == 1 && payloads[0] == "online"
	}, waitFor, tick)
}

func TestLastWillAndReconnect(t *testing.T) {
	b := brokertest.Start(t)
	_, h := connect(t, b, "v3-will")

	b.Drop(t, "v3-will")

	require.Eventually(t, func() bool {
		payloads := b.Payloads(stateTopic)
		return len(payloads) == 1 && payloads[0] == "offline"
	}, waitFor, tick)
	require.Eventually(t, func() bool { return h.Disconnects() == 1 }, waitFor, tick)

	// The session comes back and subscribes again.
	require.Eventually(t, func() bool {
		n, err := h.Connects()
		return n == 2 && err == nil
	}, waitFor, tick)

	b.Publish(t, commandTopic, "12")
	require.Eventually(t, func() bool { return len(h.Messages()) == 1 }, waitFor, tick)
	assert.Equal(t, "12", h.Messages()[0].Payload)
}

func TestDisconnectIsClean(t *testing.T) {
	b := brokertest.Start(t)
	c, h := connect(t, b, "v3-clean")

	require.NoError(t, c.Disconnect(context.Background()))

	require.Eventually(t, func() bool { return !b.Connected("v3-clean") }, waitFor, tick)
	assert.False(t, c.IsConnected())
	assert.Empty(t, b.Payloads(stateTopic))
	assert.Equal(t, 0, h.Disconnects())
}
