package agent

import (
	"context"
	"time"

	"codeberg.org/mutker/mupimqtt/internal/channel"
	"codeberg.org/mutker/mupimqtt/internal/errors"
	"codeberg.org/mutker/mupimqtt/internal/logger"
	"codeberg.org/mutker/mupimqtt/internal/probe"
	"codeberg.org/mutker/mupimqtt/internal/session"
	"codeberg.org/mutker/mupimqtt/internal/telemetry"
)

type publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Loop samples and publishes the dynamic telemetry, speeding up while the
// device is active.
type Loop struct {
	pub       publisher
	state     *session.State
	topics    channel.Topics
	probes    []probe.Probe
	activity  probe.Activity
	recorder  telemetry.Recorder
	scheduler Scheduler
	now       func() time.Time
}

// Run ticks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	logger.Info().Msg("Starting telemetry loop")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Telemetry loop stopped")
			return nil
		case <-timer.C:
			timer.Reset(l.Tick(ctx))
		}
	}
}

// Tick runs one iteration and returns the delay before the next one.
func (l *Loop) Tick(ctx context.Context) time.Duration {
	now := time.Now()
	if l.now != nil {
		now = l.now()
	}

	readings := sampleAll(ctx, l.probes)

	connected := l.state.Connected()
	if connected {
		l.publish(ctx, append([]probe.Reading{{Channel: channel.State, Value: channel.Online}}, readings...))
	}

	active := false
	if l.activity != nil {
		var err error
		if active, err = l.activity.Active(ctx); err != nil {
			logger.Debug().Err(err).Msg("Activity unknown, assuming idle")
			active = false
		}
	}
	if active {
		l.state.MarkActivity(now)
	}

	l.record(ctx, now, active, connected, readings)

	next := l.scheduler.Next(active)
	logger.Debug().Bool("active", active).Bool("connected", connected).Dur("next", next).Msg("Telemetry tick")

	return next
}

func (l *Loop) publish(ctx context.Context, readings []probe.Reading) {
	for _, r := range readings {
		if err := l.pub.Publish(ctx, l.topics.State(r.Channel), []byte(r.Value)); err != nil {
			logger.Debug().Err(err).Str("channel", r.Channel).Msg("Failed to publish telemetry")
		}
	}
}

func (l *Loop) record(ctx context.Context, at time.Time, active, connected bool, readings []probe.Reading) {
	if l.recorder == nil {
		return
	}

	snapshot := &telemetry.Snapshot{
		Timestamp: at,
		Active:    active,
		Connected: connected,
		Readings:  make(map[string]string, len(readings)),
	}
	for _, r := range readings {
		snapshot.Readings[r.Channel] = r.Value
	}

	if err := l.recorder.Record(ctx, snapshot); err != nil {
		logger.WarnWithCode(asError(errors.ErrRecordHistory, err)).Msg("Failed to record telemetry")
	}
}
