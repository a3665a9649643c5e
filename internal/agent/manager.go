package agent

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/mupimqtt/internal/broker"
	"codeberg.org/mutker/mupimqtt/internal/channel"
	"codeberg.org/mutker/mupimqtt/internal/errors"
	"codeberg.org/mutker/mupimqtt/internal/logger"
	"codeberg.org/mutker/mupimqtt/internal/probe"
	"codeberg.org/mutker/mupimqtt/internal/session"
)

const (
	callbackTimeout = 30 * time.Second
	actionTimeout   = time.Minute
)

// CommandHandler runs an inbound command.
type CommandHandler interface {
	Handle(ctx context.Context, topic string, payload []byte) error
}

// DiscoveryPublisher announces the channels.
type DiscoveryPublisher interface {
	Publish(ctx context.Context, channels []channel.Channel) error
}

// Manager owns the broker session and implements broker.Handler.
type Manager struct {
	client    broker.Client
	state     *session.State
	topics    channel.Topics
	static    []probe.Probe
	discovery DiscoveryPublisher
	commands  CommandHandler
	timeout   time.Duration

	// announce orders the availability announcements of a connect against
	// the offline announcement of the preceding disconnect.
	announce sync.Mutex

	mu      sync.Mutex
	offline chan struct{} // closed when the latest offline announcement ends
}

var _ broker.Handler = (*Manager)(nil)

// Connect opens the session within the configured timeout.
func (m *Manager) Connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := m.client.Connect(ctx); err != nil {
		if !errors.HasCode(err, errors.ErrConnection) {
			err = errors.New().Wrap(errors.ErrConnection, err)
		}
		return err
	}

	return nil
}

// OnConnect runs on every successful connect: subscribe to the commands,
// announce availability and defaults, publish discovery, mark the session
// connected, then publish the static telemetry. The telemetry loop stays
// quiet until discovery is out.
func (m *Manager) OnConnect() {
	ctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
	defer cancel()

	m.announce.Lock()

	commands := channel.Commands()
	topics := make([]string, 0, len(commands))
	for _, name := range commands {
		topics = append(topics, m.topics.Command(name))
	}
	if err := m.client.Subscribe(ctx, topics...); err != nil {
		logger.ErrorWithCode(asError(errors.ErrSubscribe, err)).Msg("Failed to subscribe to command topics")
	}

	m.publishStates(ctx, logger.WarnLevel,
		probe.Reading{Channel: channel.State, Value: channel.Online},
		probe.Reading{Channel: channel.Power, Value: channel.On},
		probe.Reading{Channel: channel.Reboot, Value: channel.Off},
	)

	if err := m.discovery.Publish(ctx, channel.Channels()); err != nil {
		logger.WarnWithCode(asError(errors.ErrPublish, err)).Msg("Discovery incomplete")
	}

	m.state.SetConnected(true)
	m.announce.Unlock()

	logger.Info().Str("base", m.topics.Base()).Msg("Connected to MQTT broker")

	m.publishStates(ctx, logger.WarnLevel, sampleAll(ctx, m.static)...)
}

// OnDisconnect marks the session down and, without blocking the transport's
// reconnect, tries to announce the device offline. The announcement is
// skipped once a newer connect has announced the device online. The last
// will covers the state topic when publishing fails.
func (m *Manager) OnDisconnect(err error) {
	generation := m.state.SetConnected(false)
	logger.Warn().Err(err).Msg("Lost connection to MQTT broker")

	done := make(chan struct{})
	m.mu.Lock()
	m.offline = done
	m.mu.Unlock()

	go func() {
		defer close(done)

		m.announce.Lock()
		defer m.announce.Unlock()

		if m.state.Generation() != generation {
			logger.Debug().Msg("Session restored, offline announcement skipped")
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
		defer cancel()

		m.publishStates(ctx, logger.DebugLevel,
			probe.Reading{Channel: channel.State, Value: channel.Offline},
			probe.Reading{Channel: channel.Power, Value: channel.Off},
			probe.Reading{Channel: channel.Reboot, Value: channel.Off},
		)
	}()
}

// settle waits for the latest offline announcement, bounded by ctx.
func (m *Manager) settle(ctx context.Context) {
	m.mu.Lock()
	done := m.offline
	m.mu.Unlock()

	if done == nil {
		return
	}

	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (m *Manager) OnMessage(topic string, payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	err := m.commands.Handle(ctx, topic, payload)
	switch {
	case err == nil:
	case errors.HasCode(err, errors.ErrCommandParse), errors.HasCode(err, errors.ErrInvalidArgument):
		logger.WarnWithCode(asError(errors.ErrCommandParse, err)).Str("topic", topic).Msg("Command ignored")
	default:
		logger.ErrorWithCode(asError(errors.ErrAction, err)).Str("topic", topic).Msg("Command failed")
	}
}

// Publish sends a payload through the current session.
func (m *Manager) Publish(ctx context.Context, topic string, payload []byte) error {
	return m.client.Publish(ctx, topic, payload)
}

// Shutdown publishes state=offline best-effort and disconnects.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.settle(ctx)

	if m.state.Connected() {
		m.publishStates(ctx, logger.DebugLevel, probe.Reading{Channel: channel.State, Value: channel.Offline})
	}
	m.state.SetConnected(false)

	if err := m.client.Disconnect(ctx); err != nil {
		return asError(errors.ErrShutdownFailed, err)
	}

	logger.Info().Msg("Disconnected from MQTT broker")

	return nil
}

func (m *Manager) publishStates(ctx context.Context, failLevel logger.LogLevel, readings ...probe.Reading) {
	for _, r := range readings {
		err := m.client.Publish(ctx, m.topics.State(r.Channel), []byte(r.Value))
		if err == nil {
			continue
		}

		if failLevel >= logger.WarnLevel {
			logger.WarnWithCode(asError(errors.ErrPublish, err)).Str("channel", r.Channel).Msg("Failed to publish state")
			continue
		}
		logger.Debug().Err(err).Str("channel", r.Channel).Msg("Failed to publish state")
	}
}

// sampleAll runs probes in order and keeps the readings of the ones that
// succeed.
func sampleAll(ctx context.Context, probes []probe.Probe) []probe.Reading {
	var readings []probe.Reading
	for _, p := range probes {
		values, err := p.Sample(ctx)
		if err != nil {
			logger.WarnWithCode(asError(errors.ErrProbe, err)).Str("probe", p.Name()).Msg("Probe failed, skipping")
			continue
		}
		readings = append(readings, values...)
	}

	return readings
}

// asError returns err as an application error, wrapping it with code when it
// carries none.
func asError(code errors.ErrorCode, err error) errors.Error {
	var appErr errors.Error
	if errors.As(err, &appErr) {
		return appErr
	}

	return errors.New().Wrap(code, err)
}
