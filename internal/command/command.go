// Package command maps inbound command messages to local actions.
package command

import (
	"context"
	"math"
	"strconv"
	"strings"

	"codeberg.org/mutker/mupimqtt/internal/channel"
	"codeberg.org/mutker/mupimqtt/internal/errors"
	"codeberg.org/mutker/mupimqtt/internal/logger"
	"codeberg.org/mutker/mupimqtt/internal/probe"
	"codeberg.org/mutker/mupimqtt/internal/system"
)

const (
	minVolume = 0
	maxVolume = 100
)

// Publisher delivers state updates that follow a command.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Handler dispatches power, volume and reboot commands.
type Handler struct {
	pub    Publisher
	topics channel.Topics
	mixer  probe.Mixer
	power  system.Power
}

func NewHandler(pub Publisher, topics channel.Topics, mixer probe.Mixer, power system.Power) *Handler {
	return &Handler{pub: pub, topics: topics, mixer: mixer, power: power}
}

// Handle runs the command addressed by topic. Every failure is returned for
// logging; none is fatal.
func (h *Handler) Handle(ctx context.Context, topic string, payload []byte) error {
	name, ok := h.topics.CommandChannel(topic)
	if !ok {
		return errors.New().WithData(errors.ErrInvalidArgument, "unknown topic "+topic)
	}

	value := string(payload)
	logger.Debug().Str("channel", name).Str("payload", value).Msg("Command received")

	switch name {
	case channel.Power:
		return h.handlePower(ctx, value)
	case channel.Volume:
		return h.handleVolume(ctx, value)
	case channel.Reboot:
		return h.handleReboot(ctx, value)
	default:
		return errors.New().WithData(errors.ErrInvalidArgument, "unknown command "+name)
	}
}

func (h *Handler) handlePower(ctx context.Context, value string) error {
	switch value {
	case channel.Off:
		h.publish(ctx, channel.Power, channel.Off)
		if err := h.power.Shutdown(ctx); err != nil {
			h.publish(ctx, channel.Power, channel.On)
			return err
		}
		logger.Info().Msg("Shutdown requested")
		return nil
	case channel.On:
		h.publish(ctx, channel.Power, channel.On)
		return nil
	default:
		return errors.New().WithData(errors.ErrCommandParse, "power: "+value)
	}
}

func (h *Handler) handleVolume(ctx context.Context, value string) error {
	volume, err := ParseVolume(value)
	if err != nil {
		return err
	}

	if err := h.mixer.SetVolume(ctx, volume); err != nil {
		return errors.New().Wrap(errors.ErrAction, err).WithData("volume")
	}

	h.publish(ctx, channel.Volume, strconv.Itoa(volume))
	logger.Info().Int("volume", volume).Msg("Volume set")

	return nil
}

func (h *Handler) handleReboot(ctx context.Context, value string) error {
	if value != channel.RebootNow {
		logger.Debug().Str("payload", value).Msg("Reboot command ignored")
		return nil
	}

	h.publish(ctx, channel.Reboot, channel.RebootNow)
	if err := h.power.Reboot(ctx); err != nil {
		h.publish(ctx, channel.Reboot, channel.Off)
		return err
	}
	logger.Info().Msg("Reboot requested")

	return nil
}

func (h *Handler) publish(ctx context.Context, name, value string) {
	if err := h.pub.Publish(ctx, h.topics.State(name), []byte(value)); err != nil {
		logger.Debug().Err(err).Str("channel", name).Msg("Failed to publish command state")
	}
}

// ParseVolume accepts an integer percentage, or an integral decimal such as
// "57.0", surrounded by optional whitespace.
func ParseVolume(value string) (int, error) {
	errFactory := errors.New()
	trimmed := strings.TrimSpace(value)

	volume, err := strconv.Atoi(trimmed)
	if err != nil {
		f, ferr := strconv.ParseFloat(trimmed, 64)
		if ferr != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
			return 0, errFactory.Wrap(errors.ErrCommandParse, err).WithData("volume: " + value)
		}
		if f < minVolume || f > maxVolume {
			return 0, errFactory.WithData(errors.ErrCommandParse, "volume out of range: "+value)
		}
		volume = int(f)
	}

	if volume < minVolume || volume > maxVolume {
		return 0, errFactory.WithData(errors.ErrCommandParse, "volume out of range: "+value)
	}

	return volume, nil
}
