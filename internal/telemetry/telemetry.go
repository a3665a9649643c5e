// Package telemetry hands every loop tick to the configured history sinks.
package telemetry

import (
	"context"
	"time"

	"codeberg.org/mutker/mupimqtt/internal/errors"
	"codeberg.org/mutker/mupimqtt/internal/logger"
)

// Snapshot is the outcome of one loop tick.
type Snapshot struct {
	Timestamp time.Time
	Active    bool
	Connected bool
	// Readings maps channel names to the published payloads.
	Readings map[string]string
}

// Recorder stores snapshots.
type Recorder interface {
	Record(ctx context.Context, snapshot *Snapshot) error
	Close() error
}

type multi struct {
	recorders []Recorder
}

// Multi fans snapshots out to every recorder. It returns a no-op recorder when
// none are given.
func Multi(recorders ...Recorder) Recorder {
	if len(recorders) == 0 {
		return Noop()
	}
	if len(recorders) == 1 {
		return recorders[0]
	}

	return &multi{recorders: recorders}
}

func (m *multi) Record(ctx context.Context, snapshot *Snapshot) error {
	errs := make([]error, 0, len(m.recorders))
	for _, r := range m.recorders {
		errs = append(errs, r.Record(ctx, snapshot))
	}

	return errors.Join(errs...)
}

func (m *multi) Close() error {
	errs := make([]error, 0, len(m.recorders))
	for _, r := range m.recorders {
		errs = append(errs, r.Close())
	}

	return errors.Join(errs...)
}

type noopRecorder struct{}

// Noop returns a recorder that discards snapshots.
func Noop() Recorder {
	logger.Debug().Msg("History disabled, using no-op recorder")
	return noopRecorder{}
}

func (noopRecorder) Record(context.Context, *Snapshot) error { return nil }
func (noopRecorder) Close() error                            { return nil }
