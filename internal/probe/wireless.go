package probe

import (
	"context"
	"regexp"
	"strconv"

	"codeberg.org/mutker/mupimqtt/internal/channel"
	"codeberg.org/mutker/mupimqtt/internal/errors"
	"codeberg.org/mutker/mupimqtt/internal/system"
)

var (
	essidPattern   = regexp.MustCompile(`ESSID:"(.+?)"`)
	signalPattern  = regexp.MustCompile(`Signal level=(-?\d+)`)
	qualityPattern = regexp.MustCompile(`Link Quality=(\d+)/(\d+)`)
)

type wireless struct {
	cmd   system.Commander
	iface string
}

// Wireless reports SSID, signal strength (dBm) and link quality (%) from one
// iwconfig run.
func Wireless(cmd system.Commander, iface string) Probe {
	return &wireless{cmd: cmd, iface: iface}
}

func (w *wireless) Name() string {
	return "wireless"
}

func (w *wireless) Sample(ctx context.Context) ([]Reading, error) {
	out, err := w.cmd.Run(ctx, "iwconfig", w.iface)
	if err != nil {
		return nil, wrapProbe(w.Name(), err)
	}

	readings := parseIwconfig(string(out))
	if len(readings) == 0 {
		return nil, errors.New().WithData(errors.ErrProbe, "no wireless link on "+w.iface)
	}

	return readings, nil
}

func parseIwconfig(out string) []Reading {
	var readings []Reading

	if m := essidPattern.FindStringSubmatch(out); m != nil {
		readings = append(readings, Reading{Channel: channel.SSID, Value: m[1]})
	}

	if m := signalPattern.FindStringSubmatch(out); m != nil {
		readings = append(readings, Reading{Channel: channel.SignalStrength, Value: m[1]})
	}

	if m := qualityPattern.FindStringSubmatch(out); m != nil {
		current, _ := strconv.Atoi(m[1])
		total, _ := strconv.Atoi(m[2])
		if total > 0 {
			readings = append(readings, Reading{
				Channel: channel.SignalQuality,
				Value:   strconv.Itoa(current * 100 / total),
			})
		}
	}

	return readings
}
