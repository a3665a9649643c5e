// Package brokertest runs an in-process MQTT broker for transport tests.
package brokertest

import (
	"context"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/mupimqtt/internal/broker"
	"codeberg.org/mutker/mupimqtt/internal/errors"
	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
	"github.com/stretchr/testify/require"
)

const subscriptionID = 1

// Message is a publish seen by the broker.
type Message struct {
	Topic   string
	Payload string
	Origin  string
}

// Broker accepts any client on a loopback port and records every publish.
type Broker struct {
	Host string
	Port int

	server *mqtt.Server

	mu       sync.Mutex
	messages []Message
}

// Start runs a broker until the test ends.
func Start(t *testing.T) *Broker {
	t.Helper()

	server := mqtt.New(&mqtt.Options{
		InlineClient: true,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, server.AddHook(new(auth.AllowHook), nil))

	tcp := listeners.NewTCP(listeners.Config{Type: "tcp", ID: "loopback", Address: "127.0.0.1:0"})
	require.NoError(t, server.AddListener(tcp))
	require.NoError(t, server.Serve())
	t.Cleanup(func() { _ = server.Close() })

	host, port, err := net.SplitHostPort(tcp.Address())
	require.NoError(t, err)
	portNum, err := strconv.Atoi(port)
	require.NoError(t, err)

	b := &Broker{Host: host, Port: portNum, server: server}
	require.NoError(t, server.Subscribe("#", subscriptionID, b.record))

	return b
}

// Options returns transport options pointing at the broker.
func (b *Broker) Options(clientID string, will broker.Will) broker.Options {
	return broker.Options{
		Host:                 b.Host,
		Port:                 b.Port,
		ClientID:             clientID,
		KeepAlive:            time.Minute,
		ConnectTimeout:       5 * time.Second,
		MaxReconnectInterval: 2 * time.Second,
		Will:                 will,
	}
}

func (b *Broker) record(_ *mqtt.Client, _ packets.Subscription, pk packets.Packet) {
	if pk.Origin == mqtt.InlineClientId {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.messages = append(b.messages, Message{Topic: pk.TopicName, Payload: string(pk.Payload), Origin: pk.Origin})
}

// Payloads returns the payloads published to topic, oldest first.
func (b *Broker) Payloads(topic string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var payloads []string
	for _, m := range b.messages {
		if m.Topic == topic {
			payloads = append(payloads, m.Payload)
		}
	}

	return payloads
}

// Publish sends a message to the subscribed clients.
func (b *Broker) Publish(t *testing.T, topic, payload string) {
	t.Helper()
	require.NoError(t, b.server.Publish(topic, []byte(payload), false, 0))
}

// Connected reports whether clientID holds an open session.
func (b *Broker) Connected(clientID string) bool {
	cl, ok := b.server.Clients.Get(clientID)
	return ok && !cl.Closed()
}

// Drop closes the client's network connection without a DISCONNECT, so the
// broker sends its last will.
func (b *Broker) Drop(t *testing.T, clientID string) {
	t.Helper()

	cl, ok := b.server.Clients.Get(clientID)
	require.True(t, ok, "client %s not connected", clientID)
	cl.Stop(errors.New().New(errors.ErrConnection))
}

// Handler is a broker.Handler that subscribes to Topics on every connect and
// counts the transport's callbacks.
type Handler struct {
	Topics []string

	mu           sync.Mutex
	client       broker.Client
	connects     int
	disconnects  int
	subscribeErr error
	messages     []Message
}

// Attach sets the client the handler subscribes through.
func (h *Handler) Attach(c broker.Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.client = c
}

func (h *Handler) OnConnect() {
	h.mu.Lock()
	c := h.client
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.Subscribe(ctx, h.Topics...)

	h.mu.Lock()
	defer h.mu.Unlock()

	h.connects++
	h.subscribeErr = err
}

func (h *Handler) OnDisconnect(error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.disconnects++
}

func (h *Handler) OnMessage(topic string, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = append(h.messages, Message{Topic: topic, Payload: string(payload)})
}

// Connects returns how many connects completed and the latest subscribe error.
func (h *Handler) Connects() (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.connects, h.subscribeErr
}

func (h *Handler) Disconnects() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.disconnects
}

func (h *Handler) Messages() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]Message(nil), h.messages...)
}
