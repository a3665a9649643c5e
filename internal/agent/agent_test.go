package agent

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/mupimqtt/internal/broker"
	"codeberg.org/mutker/mupimqtt/internal/channel"
	"codeberg.org/mutker/mupimqtt/internal/config"
	"codeberg.org/mutker/mupimqtt/internal/errors"
	"codeberg.org/mutker/mupimqtt/internal/probe"
	"codeberg.org/mutker/mupimqtt/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type event struct {
	kind    string
	topic   string
	payload string
}

type fakeClient struct {
	mu         sync.Mutex
	handler    broker.Handler
	opts       broker.Options
	events     []event
	connectErr error
	publishErr map[string]error
	onPublish  func(topic string)
}

func (f *fakeClient) Connect(context.Context) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.handler.OnConnect()
	return nil
}

func (f *fakeClient) Disconnect(context.Context) error {
	f.record(event{kind: "disconnect"})
	return nil
}

func (f *fakeClient) Publish(_ context.Context, topic string, payload []byte) error {
	if f.onPublish != nil {
		f.onPublish(topic)
	}
	f.record(event{kind: "publish", topic: topic, payload: string(payload)})
	return f.publishErr[topic]
}

func (f *fakeClient) Subscribe(_ context.Context, topics ...string) error {
	for _, t := range topics {
		f.record(event{kind: "subscribe", topic: t})
	}
	return nil
}

func (f *fakeClient) IsConnected() bool { return true }

func (f *fakeClient) record(e event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

func (f *fakeClient) snapshot() []event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]event(nil), f.events...)
}

func (f *fakeClient) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = nil
}

func (f *fakeClient) published(topic string) []string {
	var payloads []string
	for _, e := range f.snapshot() {
		if e.kind == "publish" && e.topic == topic {
			payloads = append(payloads, e.payload)
		}
	}
	return payloads
}

func (f *fakeClient) last(topic string) string {
	payloads := f.published(topic)
	if len(payloads) == 0 {
		return ""
	}
	return payloads[len(payloads)-1]
}

func (f *fakeClient) discoveryCount() int {
	n := 0
	for _, e := range f.snapshot() {
		if e.kind == "publish" && strings.HasPrefix(e.topic, "homeassistant/") {
			n++
		}
	}
	return n
}

type fakeActivity struct {
	active bool
	err    error
}

func (f *fakeActivity) Active(context.Context) (bool, error) { return f.active, f.err }

type fakeMixer struct{}

func (fakeMixer) Volume(context.Context) (int, error)  { return 40, nil }
func (fakeMixer) SetVolume(context.Context, int) error { return nil }

type fakePower struct{}

func (fakePower) Shutdown(context.Context) error { return nil }
func (fakePower) Reboot(context.Context) error   { return nil }

type fakeRecorder struct {
	mu        sync.Mutex
	snapshots []*telemetry.Snapshot
}

func (f *fakeRecorder) Record(_ context.Context, s *telemetry.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, s)
	return nil
}

func (f *fakeRecorder) Close() error { return nil }

func testConfig() *config.Config {
	return &config.Config{
		MQTT: config.MQTT{
			Name:                 "Kids Room",
			Topic:                "mupibox",
			ClientID:             "kidsroom",
			Active:               true,
			Broker:               "broker.local",
			Port:                 1883,
			Refresh:              10,
			RefreshIdle:          60,
			Timeout:              5,
			DiscoveryPrefix:      "homeassistant",
			Protocol:             config.ProtocolV311,
			KeepAlive:            60,
			ReconnectMaxInterval: 60,
		},
		Mupibox: config.Mupibox{Version: "4.0.0", Host: "kidsroom.local"},
	}
}

func value(v string) probe.Func {
	return func(context.Context) (string, error) { return v, nil }
}

func failing() probe.Func {
	return func(context.Context) (string, error) { return "", errors.New().New(errors.ErrProbe) }
}

type fixture struct {
	agent    *Agent
	client   *fakeClient
	activity *fakeActivity
	recorder *fakeRecorder
	topics   channel.Topics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := testConfig()
	activity := &fakeActivity{}
	recorder := &fakeRecorder{}
	client := &fakeClient{publishErr: map[string]error{}}

	set := &probe.Set{
		Tick: []probe.Probe{
			probe.Single(channel.Temperature, value("48.3")),
			probe.Single(channel.Volume, value("40")),
			probe.Single(channel.SSID, failing()),
		},
		Static: []probe.Probe{
			probe.Single(channel.OS, value("Raspbian GNU/Linux 11 (bullseye)")),
			probe.Single(channel.Hostname, value("kidsroom")),
			probe.Single(channel.MAC, failing()),
		},
		Activity: activity,
		Mixer:    fakeMixer{},
	}

	a := New(cfg, set, fakePower{}, recorder, func(opts broker.Options, h broker.Handler) broker.Client {
		client.opts = opts
		client.handler = h
		return client
	})

	return &fixture{
		agent:    a,
		client:   client,
		activity: activity,
		recorder: recorder,
		topics:   channel.NewTopics(cfg),
	}
}

func TestNewConfiguresLastWill(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, "mupibox/kidsroom/state", f.client.opts.Will.Topic)
	assert.Equal(t, "offline", string(f.client.opts.Will.Payload))
	assert.Equal(t, "kidsroom", f.client.opts.ClientID)
}

func TestConnectSequence(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.agent.Manager.Connect(context.Background()))
	assert.True(t, f.agent.State.Connected())

	events := f.client.snapshot()
	require.GreaterOrEqual(t, len(events), 6)

	for i, name := range []string{channel.Power, channel.Reboot, channel.Volume} {
		assert.Equal(t, event{kind: "subscribe", topic: f.topics.Command(name)}, events[i])
	}
	assert.Equal(t, event{kind: "publish", topic: "mupibox/kidsroom/state", payload: "online"}, events[3])
	assert.Equal(t, event{kind: "publish", topic: "mupibox/kidsroom/power", payload: "on"}, events[4])
	assert.Equal(t, event{kind: "publish", topic: "mupibox/kidsroom/reboot", payload: "off"}, events[5])

	assert.Equal(t, len(channel.Channels()), f.client.discoveryCount())
	assert.Equal(t, []string{"Raspbian GNU/Linux 11 (bullseye)"}, f.client.published("mupibox/kidsroom/os"))
	assert.Equal(t, []string{"kidsroom"}, f.client.published("mupibox/kidsroom/hostname"))
	assert.Empty(t, f.client.published("mupibox/kidsroom/mac"))

	last := events[len(events)-1]
	assert.Equal(t, "mupibox/kidsroom/hostname", last.topic)
}

func TestDiscoveryRepeatsOnReconnect(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.agent.Manager.Connect(context.Background()))
	f.agent.Manager.OnDisconnect(errors.New().New(errors.ErrConnection))
	f.agent.Manager.OnConnect()

	assert.Equal(t, 2*len(channel.Channels()), f.client.discoveryCount())
}

func TestConnectFailure(t *testing.T) {
	f := newFixture(t)
	f.client.connectErr = assert.AnError

	err := f.agent.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrConnection))
	assert.False(t, f.agent.State.Connected())
	assert.Empty(t, f.client.snapshot())
}

func TestOnDisconnect(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.agent.Manager.Connect(context.Background()))
	f.client.reset()

	f.agent.Manager.OnDisconnect(assert.AnError)
	assert.False(t, f.agent.State.Connected())

	assert.Eventually(t, func() bool {
		return len(f.client.snapshot()) == 3
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"offline"}, f.client.published("mupibox/kidsroom/state"))
	assert.Equal(t, []string{"off"}, f.client.published("mupibox/kidsroom/power"))
	assert.Equal(t, []string{"off"}, f.client.published("mupibox/kidsroom/reboot"))
}

func TestReconnectSupersedesOfflineAnnouncement(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.agent.Manager.Connect(context.Background()))

	for i := 0; i < 200; i++ {
		f.agent.Manager.OnDisconnect(assert.AnError)
		f.agent.Manager.OnConnect()
		f.agent.Manager.settle(context.Background())

		require.True(t, f.agent.State.Connected())
		require.Equal(t, "online", f.client.last("mupibox/kidsroom/state"), "iteration %d", i)
		require.Equal(t, "on", f.client.last("mupibox/kidsroom/power"), "iteration %d", i)
		require.Equal(t, "off", f.client.last("mupibox/kidsroom/reboot"), "iteration %d", i)
	}
}

func TestOfflineAnnouncementSkippedAfterReconnect(t *testing.T) {
	f := newFixture(t)
	m := f.agent.Manager
	require.NoError(t, m.Connect(context.Background()))
	f.client.reset()

	// Hold the announcement back until a newer session is up.
	m.announce.Lock()
	m.OnDisconnect(assert.AnError)
	f.agent.State.SetConnected(true)
	m.announce.Unlock()

	m.settle(context.Background())
	assert.Empty(t, f.client.snapshot())
}

func TestSessionConnectedAfterDiscovery(t *testing.T) {
	f := newFixture(t)

	var duringDiscovery []bool
	var duringStatic []bool
	f.client.onPublish = func(topic string) {
		switch {
		case strings.HasPrefix(topic, "homeassistant/"):
			duringDiscovery = append(duringDiscovery, f.agent.State.Connected())
		case topic == "mupibox/kidsroom/os":
			duringStatic = append(duringStatic, f.agent.State.Connected())
		}
	}

	require.NoError(t, f.agent.Manager.Connect(context.Background()))

	require.Len(t, duringDiscovery, len(channel.Channels()))
	for _, connected := range duringDiscovery {
		assert.False(t, connected)
	}
	assert.Equal(t, []bool{true}, duringStatic)
	assert.True(t, f.agent.State.Connected())
}

func TestOnMessageRunsCommand(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.agent.Manager.Connect(context.Background()))
	f.client.reset()

	f.agent.Manager.OnMessage("mupibox/kidsroom/volume/set", []byte("55"))
	assert.Equal(t, []string{"55"}, f.client.published("mupibox/kidsroom/volume"))

	f.agent.Manager.OnMessage("mupibox/kidsroom/volume/set", []byte("loud"))
	f.agent.Manager.OnMessage("mupibox/kidsroom/unknown/set", []byte("1"))
	assert.Len(t, f.client.snapshot(), 1)
}

func TestShutdown(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.agent.Manager.Connect(context.Background()))
	f.client.reset()

	require.NoError(t, f.agent.Shutdown(context.Background()))

	assert.Equal(t, []event{
		{kind: "publish", topic: "mupibox/kidsroom/state", payload: "offline"},
		{kind: "disconnect"},
	}, f.client.snapshot())
	assert.False(t, f.agent.State.Connected())
}

func TestShutdownWhileDisconnected(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.agent.Shutdown(context.Background()))
	assert.Equal(t, []event{{kind: "disconnect"}}, f.client.snapshot())
}

func TestDiscoveryStateTopicsArePublished(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.agent.Manager.Connect(context.Background()))
	f.agent.Loop.Tick(context.Background())
	f.agent.Manager.OnMessage("mupibox/kidsroom/volume/set", []byte("30"))

	published := map[string]bool{}
	var documents []map[string]any
	for _, e := range f.client.snapshot() {
		if e.kind != "publish" {
			continue
		}
		if strings.HasPrefix(e.topic, "homeassistant/") {
			var doc map[string]any
			require.NoError(t, json.Unmarshal([]byte(e.payload), &doc))
			documents = append(documents, doc)
			continue
		}
		published[e.topic] = true
	}

	// Channels whose probes fail in the fixture never publish.
	skipped := map[string]bool{
		f.topics.State(channel.SSID):           true,
		f.topics.State(channel.SignalStrength): true,
		f.topics.State(channel.SignalQuality):  true,
		f.topics.State(channel.MAC):            true,
		f.topics.State(channel.Raspi):          true,
		f.topics.State(channel.IP):             true,
		f.topics.State(channel.Architecture):   true,
	}

	require.Len(t, documents, len(channel.Channels()))
	for _, doc := range documents {
		topic, ok := doc["state_topic"].(string)
		require.True(t, ok)
		if skipped[topic] {
			continue
		}
		assert.True(t, published[topic], topic)
	}
}
