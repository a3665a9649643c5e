// Package agent runs the MuPiBox MQTT agent: the broker session, the
// discovery announcements and the adaptive telemetry loop.
package agent

import (
	"context"

	"codeberg.org/mutker/mupimqtt/internal/broker"
	"codeberg.org/mutker/mupimqtt/internal/channel"
	"codeberg.org/mutker/mupimqtt/internal/command"
	"codeberg.org/mutker/mupimqtt/internal/config"
	"codeberg.org/mutker/mupimqtt/internal/discovery"
	"codeberg.org/mutker/mupimqtt/internal/probe"
	"codeberg.org/mutker/mupimqtt/internal/session"
	"codeberg.org/mutker/mupimqtt/internal/system"
	"codeberg.org/mutker/mupimqtt/internal/telemetry"
)

// Dialer builds the transport for a handler. It must not connect.
type Dialer func(opts broker.Options, handler broker.Handler) broker.Client

// Agent wires the connection manager and the telemetry loop around one
// shared session.
type Agent struct {
	Manager *Manager
	Loop    *Loop
	State   *session.State
}

func New(cfg *config.Config, probes *probe.Set, power system.Power, recorder telemetry.Recorder, dial Dialer) *Agent {
	state := session.New()
	topics := channel.NewTopics(cfg)
	identity := channel.NewIdentity(cfg)

	m := &Manager{
		state:   state,
		topics:  topics,
		static:  probes.Static,
		timeout: cfg.MQTT.ConnectTimeout(),
	}
	m.discovery = discovery.NewPublisher(m, identity, topics)
	m.commands = command.NewHandler(m, topics, probes.Mixer, power)

	will := broker.Will{Topic: topics.Availability(), Payload: []byte(channel.Offline)}
	m.client = dial(broker.NewOptions(cfg, will), m)

	loop := &Loop{
		pub:       m,
		state:     state,
		topics:    topics,
		probes:    probes.Tick,
		activity:  probes.Activity,
		recorder:  recorder,
		scheduler: NewScheduler(cfg.MQTT.RefreshActiveInterval(), cfg.MQTT.RefreshIdleInterval()),
	}

	return &Agent{Manager: m, Loop: loop, State: state}
}

// Run connects and then drives the telemetry loop until ctx is cancelled.
// A failed initial connect is returned as a connection error.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.Manager.Connect(ctx); err != nil {
		return err
	}

	return a.Loop.Run(ctx)
}

// Shutdown announces the device offline and closes the transport.
func (a *Agent) Shutdown(ctx context.Context) error {
	return a.Manager.Shutdown(ctx)
}
