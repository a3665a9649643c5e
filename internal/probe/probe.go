// Package probe samples the device state published by the agent. Every probe
// may fail on its own; callers skip the failing channels.
package probe

import (
	"context"

	"codeberg.org/mutker/mupimqtt/internal/errors"
)

// Reading is one channel value ready to publish.
type Reading struct {
	Channel string
	Value   string
}

// Probe samples one or more channels.
type Probe interface {
	Name() string
	Sample(ctx context.Context) ([]Reading, error)
}

// Activity reports whether the device is doing its primary work.
type Activity interface {
	Active(ctx context.Context) (bool, error)
}

// Func samples the value of a single channel.
type Func func(ctx context.Context) (string, error)

type single struct {
	channel string
	fn      Func
}

// Single wraps a one-value function as a Probe named after its channel.
func Single(channel string, fn Func) Probe {
	return &single{channel: channel, fn: fn}
}

func (s *single) Name() string {
	return s.channel
}

func (s *single) Sample(ctx context.Context) ([]Reading, error) {
	value, err := s.fn(ctx)
	if err != nil {
		return nil, wrapProbe(s.channel, err)
	}

	return []Reading{{Channel: s.channel, Value: value}}, nil
}

func wrapProbe(name string, err error) error {
	if errors.HasCode(err, errors.ErrProbe) {
		return err
	}

	return errors.New().Wrap(errors.ErrProbe, err).WithData(name)
}
