package probe

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"strings"

	"codeberg.org/mutker/mupimqtt/internal/channel"
	"codeberg.org/mutker/mupimqtt/internal/errors"
	"golang.org/x/sys/unix"
)

const (
	DefaultOSRelease = "/etc/os-release"
	DefaultModel     = "/sys/firmware/devicetree/base/model"
)

// OSRelease reports PRETTY_NAME from an os-release file.
func OSRelease(path string) Probe {
	return Single(channel.OS, func(context.Context) (string, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}

		return parseOSRelease(data)
	})
}

func parseOSRelease(data []byte) (string, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		value, ok := strings.CutPrefix(strings.TrimSpace(scanner.Text()), "PRETTY_NAME=")
		if !ok {
			continue
		}
		if value = strings.Trim(value, `"'`); value != "" {
			return value, nil
		}
	}

	return "", errors.New().WithData(errors.ErrProbe, "PRETTY_NAME not found")
}

// Model reports the board model from the device tree.
func Model(path string) Probe {
	return Single(channel.Raspi, func(context.Context) (string, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}

		return strings.TrimSpace(strings.TrimRight(string(data), "\x00")), nil
	})
}

// Hostname reports the kernel host name.
func Hostname() Probe {
	return Single(channel.Hostname, func(context.Context) (string, error) {
		return os.Hostname()
	})
}

// Architecture reports the machine hardware name, as printed by uname -m.
func Architecture() Probe {
	return Single(channel.Architecture, func(context.Context) (string, error) {
		var uts unix.Utsname
		if err := unix.Uname(&uts); err != nil {
			return "", err
		}

		return unix.ByteSliceToString(uts.Machine[:]), nil
	})
}
