package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/mupimqtt/internal/agent"
	"codeberg.org/mutker/mupimqtt/internal/broker"
	"codeberg.org/mutker/mupimqtt/internal/broker/pahov3"
	"codeberg.org/mutker/mupimqtt/internal/broker/pahov5"
	"codeberg.org/mutker/mupimqtt/internal/buildinfo"
	"codeberg.org/mutker/mupimqtt/internal/config"
	"codeberg.org/mutker/mupimqtt/internal/errors"
	"codeberg.org/mutker/mupimqtt/internal/logger"
	"codeberg.org/mutker/mupimqtt/internal/metrics"
	"codeberg.org/mutker/mupimqtt/internal/pid"
	"codeberg.org/mutker/mupimqtt/internal/probe"
	"codeberg.org/mutker/mupimqtt/internal/system"
	"codeberg.org/mutker/mupimqtt/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

var cfg *config.Config

func init() {
	var err error
	cfg, err = config.Load(os.Args[1:])
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Debug, cfg.Verbose, logger.IsService())
	logger.Debug().Msg("Config loaded")
}

func main() {
	if !cfg.MQTT.Active {
		logger.Info().Msg("MQTT is disabled in the configuration, nothing to do")
		return
	}

	os.Exit(run())
}

func run() int {
	logger.Info().Str("version", buildinfo.String()).Str("client_id", cfg.MQTT.ClientID).Msg("Starting mupimqtt")

	pidFile := pid.New("")
	if err := pidFile.Write(); err != nil {
		logger.ErrorWithCode(asError(errors.ErrAlreadyRunning, err)).Str("path", pidFile.Path()).Msg("Failed to write PID file")
		return 1
	}
	defer func() {
		if err := pidFile.Remove(); err != nil {
			logger.Warn().Err(err).Msg("Failed to remove PID file")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	recorder, err := newRecorder(ctx)
	if err != nil {
		logger.ErrorWithCode(asError(errors.ErrInitHistory, err)).Msg("Failed to initialize telemetry history")
		return 1
	}
	defer func() {
		if err := recorder.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close telemetry history")
		}
	}()

	cmd := system.Exec{}
	power := system.NewCommandPower(cmd, cfg.Agent.ShutdownCommand, cfg.Agent.RebootCommand)
	a := agent.New(cfg, probe.NewSet(cfg, cmd), power, recorder, dialer(cfg.MQTT.Protocol))

	if err := a.Run(ctx); err != nil {
		logger.ErrorWithCode(asError(errors.ErrConnection, err)).
			Str("broker", cfg.MQTT.Broker).
			Int("port", cfg.MQTT.Port).
			Msg("Failed to connect to MQTT broker")
		return 1
	}

	cleanup(a)

	return 0
}

func dialer(protocol string) agent.Dialer {
	if protocol == config.ProtocolV5 {
		return func(opts broker.Options, handler broker.Handler) broker.Client {
			return pahov5.New(opts, handler)
		}
	}

	return func(opts broker.Options, handler broker.Handler) broker.Client {
		return pahov3.New(opts, handler)
	}
}

func newRecorder(ctx context.Context) (telemetry.Recorder, error) {
	history, err := metrics.NewRecorder(metrics.NewConfig(cfg.History), logger.Default())
	if err != nil {
		return nil, err
	}

	if !cfg.InfluxDB.Enabled {
		return history, nil
	}

	influx, err := telemetry.NewInfluxRecorder(ctx, cfg.InfluxDB, cfg.MQTT.ClientID)
	if err != nil {
		_ = history.Close()
		return nil, err
	}

	return telemetry.Multi(history, influx), nil
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func cleanup(a *agent.Agent) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to disconnect cleanly")
	}
	logger.Info().Msg("Exiting...")
}

func asError(code errors.ErrorCode, err error) errors.Error {
	var appErr errors.Error
	if errors.As(err, &appErr) {
		return appErr
	}

	return errors.New().Wrap(code, err)
}
