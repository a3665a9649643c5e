package telemetry

import (
	"context"
	"strconv"
	"time"

	"codeberg.org/mutker/mupimqtt/internal/channel"
	"codeberg.org/mutker/mupimqtt/internal/config"
	"codeberg.org/mutker/mupimqtt/internal/errors"
	"codeberg.org/mutker/mupimqtt/internal/logger"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const (
	measurement = "mupibox"

	defaultPingTimeout = 5 * time.Second
)

// numericChannels are written as float fields, everything else as strings.
var numericChannels = map[string]bool{
	channel.Temperature:    true,
	channel.Volume:         true,
	channel.SignalStrength: true,
	channel.SignalQuality:  true,
}

// InfluxRecorder writes one point per snapshot through the non-blocking
// write API. Write failures surface asynchronously in the log.
type InfluxRecorder struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	clientID string
	done     chan struct{}
}

func NewInfluxRecorder(ctx context.Context, cfg config.InfluxDB, clientID string) (*InfluxRecorder, error) {
	if !cfg.Enabled {
		return nil, errors.New().WithMessage(errors.ErrInvalidConfig, "influxdb disabled")
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, influxdb2.DefaultOptions())

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	// The database may come up after the device; writes are retried by the client.
	if healthy, err := client.Ping(pingCtx); err != nil || !healthy {
		logger.Warn().Err(err).Str("url", cfg.URL).Msg("InfluxDB not reachable yet")
	}

	r := &InfluxRecorder{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		clientID: clientID,
		done:     make(chan struct{}),
	}

	go r.handleWriteErrors(r.writeAPI.Errors())

	logger.Info().
		Str("url", cfg.URL).
		Str("org", cfg.Org).
		Str("bucket", cfg.Bucket).
		Msg("InfluxDB recorder initialized")

	return r, nil
}

func (r *InfluxRecorder) handleWriteErrors(errorsCh <-chan error) {
	for {
		select {
		case err, ok := <-errorsCh:
			if !ok {
				return
			}
			logger.ErrorWithCode(errors.New().Wrap(errors.ErrRecordHistory, err)).Msg("InfluxDB write failed")
		case <-r.done:
			return
		}
	}
}

func (r *InfluxRecorder) Record(_ context.Context, snapshot *Snapshot) error {
	if snapshot == nil {
		return errors.New().WithMessage(errors.ErrInvalidArgument, "nil snapshot")
	}

	r.writeAPI.WritePoint(Point(r.clientID, snapshot))

	return nil
}

func (r *InfluxRecorder) Close() error {
	r.writeAPI.Flush()
	close(r.done)
	r.client.Close()

	logger.Info().Msg("InfluxDB recorder closed")

	return nil
}

// Point converts a snapshot into an InfluxDB point.
func Point(clientID string, snapshot *Snapshot) *write.Point {
	fields := map[string]interface{}{
		"active":    snapshot.Active,
		"connected": snapshot.Connected,
	}

	for name, value := range snapshot.Readings {
		if numericChannels[name] {
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				fields[name] = f
			}
			continue
		}
		fields[name] = value
	}

	return influxdb2.NewPoint(measurement, map[string]string{"client_id": clientID}, fields, snapshot.Timestamp)
}
