// Package metrics keeps a local SQLite history of the agent's telemetry.
package metrics

import (
	"context"

	"codeberg.org/mutker/mupimqtt/internal/errors"
	"codeberg.org/mutker/mupimqtt/internal/logger"
	"codeberg.org/mutker/mupimqtt/internal/telemetry"
)

type service struct {
	repo *Repository
}

// NewRecorder returns a SQLite backed recorder, or a no-op recorder when
// history is disabled.
func NewRecorder(cfg Config, log logger.Logger) (telemetry.Recorder, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		return telemetry.Noop(), nil
	}

	repo, err := NewRepository(cfg, log)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to create history repository")
		return nil, err
	}

	return &service{repo: repo}, nil
}

func (s *service) Record(ctx context.Context, snapshot *telemetry.Snapshot) error {
	errFactory := errors.New()

	if snapshot == nil {
		return errFactory.New(ErrInvalidSnapshot)
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
		if err := s.repo.Record(snapshot); err != nil {
			return errFactory.Wrap(ErrStorageWrite, err)
		}
	}

	return nil
}

func (s *service) Close() error {
	return s.repo.Close()
}
