package probe

import (
	"context"
	"os"
	"strconv"
	"strings"

	"codeberg.org/mutker/mupimqtt/internal/channel"
	"codeberg.org/mutker/mupimqtt/internal/errors"
	"codeberg.org/mutker/mupimqtt/internal/system"
)

const DefaultThermalZone = "/sys/class/thermal/thermal_zone0/temp"

// Temperature reads the SoC temperature in °C from the thermal zone and falls
// back to vcgencmd when the zone is unreadable.
func Temperature(zonePath string, cmd system.Commander) Probe {
	return Single(channel.Temperature, func(ctx context.Context) (string, error) {
		celsius, err := readThermalZone(zonePath)
		if err != nil {
			out, cmdErr := cmd.Run(ctx, "vcgencmd", "measure_temp")
			if cmdErr != nil {
				return "", errors.Join(err, cmdErr)
			}
			if celsius, err = parseMeasureTemp(string(out)); err != nil {
				return "", err
			}
		}

		return strconv.FormatFloat(celsius, 'f', 1, 64), nil
	})
}

func readThermalZone(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	milli, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, errors.New().Wrap(errors.ErrProbe, err).WithData(path)
	}

	return milli / 1000, nil
}

// parseMeasureTemp parses vcgencmd output such as "temp=48.3'C".
func parseMeasureTemp(out string) (float64, error) {
	_, value, ok := strings.Cut(strings.TrimSpace(out), "=")
	if !ok {
		return 0, errors.New().WithData(errors.ErrProbe, "unexpected vcgencmd output: "+out)
	}

	celsius, err := strconv.ParseFloat(strings.TrimRight(value, "'C"), 64)
	if err != nil {
		return 0, errors.New().Wrap(errors.ErrProbe, err).WithData(out)
	}

	return celsius, nil
}
