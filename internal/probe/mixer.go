package probe

import (
	"context"
	"regexp"
	"strconv"

	"codeberg.org/mutker/mupimqtt/internal/channel"
	"codeberg.org/mutker/mupimqtt/internal/errors"
	"codeberg.org/mutker/mupimqtt/internal/system"
)

// Mixer reads and sets the playback volume in percent.
type Mixer interface {
	Volume(ctx context.Context) (int, error)
	SetVolume(ctx context.Context, percent int) error
}

var amixerPercent = regexp.MustCompile(`\[(\d{1,3})%\]`)

// Amixer controls an ALSA simple mixer control through amixer.
type Amixer struct {
	cmd     system.Commander
	control string
}

func NewAmixer(cmd system.Commander, control string) *Amixer {
	return &Amixer{cmd: cmd, control: control}
}

func (a *Amixer) Volume(ctx context.Context) (int, error) {
	out, err := a.cmd.Run(ctx, "amixer", "get", a.control)
	if err != nil {
		return 0, err
	}

	return parseAmixer(string(out))
}

func (a *Amixer) SetVolume(ctx context.Context, percent int) error {
	if percent < 0 || percent > 100 {
		return errors.New().WithData(errors.ErrInvalidArgument, percent)
	}

	_, err := a.cmd.Run(ctx, "amixer", "-q", "sset", a.control, strconv.Itoa(percent)+"%")

	return err
}

func parseAmixer(out string) (int, error) {
	m := amixerPercent.FindStringSubmatch(out)
	if m == nil {
		return 0, errors.New().WithData(errors.ErrProbe, "no volume in amixer output")
	}

	return strconv.Atoi(m[1])
}

// Volume samples the mixer's current volume.
func Volume(m Mixer) Probe {
	return Single(channel.Volume, func(ctx context.Context) (string, error) {
		v, err := m.Volume(ctx)
		if err != nil {
			return "", err
		}

		return strconv.Itoa(v), nil
	})
}
