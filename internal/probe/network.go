package probe

import (
	"context"
	"net"

	"codeberg.org/mutker/mupimqtt/internal/channel"
	"codeberg.org/mutker/mupimqtt/internal/errors"
)

// IP reports the first IPv4 address of iface.
func IP(iface string) Probe {
	return Single(channel.IP, func(context.Context) (string, error) {
		ni, err := net.InterfaceByName(iface)
		if err != nil {
			return "", err
		}

		addrs, err := ni.Addrs()
		if err != nil {
			return "", err
		}

		if ip := firstIPv4(addrs); ip != "" {
			return ip, nil
		}

		return "", errors.New().WithData(errors.ErrProbe, "no IPv4 address on "+iface)
	})
}

// MAC reports the hardware address of iface.
func MAC(iface string) Probe {
	return Single(channel.MAC, func(context.Context) (string, error) {
		ni, err := net.InterfaceByName(iface)
		if err != nil {
			return "", err
		}

		if len(ni.HardwareAddr) == 0 {
			return "", errors.New().WithData(errors.ErrProbe, "no hardware address on "+iface)
		}

		return ni.HardwareAddr.String(), nil
	})
}

func firstIPv4(addrs []net.Addr) string {
	for _, addr := range addrs {
		var ip net.IP
		switch v := addr.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}

		if ip4 := ip.To4(); ip4 != nil {
			return ip4.String()
		}
	}

	return ""
}
