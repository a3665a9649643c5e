// Package channel declares the device's telemetry and command surfaces.
package channel

import "codeberg.org/mutker/mupimqtt/internal/config"

// Component is the Home Assistant MQTT platform a channel is announced under.
type Component string

const (
	BinarySensor Component = "binary_sensor"
	Sensor       Component = "sensor"
	Switch       Component = "switch"
	Number       Component = "number"
)

// Channel names, also the last segment of each state topic.
const (
	State          = "state"
	OS             = "os"
	Raspi          = "raspi"
	Temperature    = "temperature"
	Hostname       = "hostname"
	IP             = "ip"
	Power          = "power"
	Reboot         = "reboot"
	Architecture   = "architecture"
	MAC            = "mac"
	Volume         = "volume"
	SSID           = "ssid"
	SignalStrength = "signal_strength"
	SignalQuality  = "signal_quality"
)

// Payloads published on the state, power and reboot topics.
const (
	Online    = "online"
	Offline   = "offline"
	On        = "on"
	Off       = "off"
	RebootNow = "reboot"
)

// Range bounds a number channel.
type Range struct {
	Min int
	Max int
}

// Channel describes one entity. Values are immutable once declared.
type Channel struct {
	Name             string
	Component        Component
	Title            string
	Icon             string
	Unit             string
	DeviceClass      string
	PayloadOn        string
	PayloadOff       string
	Command          bool
	ValueTemplate    string
	DisplayPrecision int
	ExpireAfter      int
	Range            *Range
}

// Identity is the device block stamped on every discovery document.
type Identity struct {
	ClientID        string
	DisplayName     string
	Host            string
	FirmwareVersion string
}

func NewIdentity(cfg *config.Config) Identity {
	return Identity{
		ClientID:        cfg.MQTT.ClientID,
		DisplayName:     cfg.MQTT.Name,
		Host:            cfg.Mupibox.Host,
		FirmwareVersion: cfg.Mupibox.Version,
	}
}

var channels = []Channel{
	{
		Name:        State,
		Component:   BinarySensor,
		Title:       "State",
		Icon:        "mdi:power",
		DeviceClass: "connectivity",
		PayloadOn:   Online,
		PayloadOff:  Offline,
		ExpireAfter: 300,
	},
	{Name: OS, Component: Sensor, Title: "Operating System", Icon: "mdi:penguin"},
	{Name: Raspi, Component: Sensor, Title: "Raspberry Pi", Icon: "mdi:raspberry-pi"},
	{
		Name:             Temperature,
		Component:        Sensor,
		Title:            "Temperature",
		Icon:             "mdi:thermometer",
		Unit:             "°C",
		DeviceClass:      "temperature",
		DisplayPrecision: 1,
	},
	{Name: Hostname, Component: Sensor, Title: "Hostname", Icon: "mdi:dns"},
	{Name: IP, Component: Sensor, Title: "IP-Address", Icon: "mdi:ip"},
	{
		Name:       Power,
		Component:  Switch,
		Title:      "Power",
		Icon:       "mdi:power",
		PayloadOn:  On,
		PayloadOff: Off,
		Command:    true,
	},
	{
		Name:       Reboot,
		Component:  Switch,
		Title:      "Reboot",
		Icon:       "mdi:power",
		PayloadOn:  RebootNow,
		PayloadOff: Off,
		Command:    true,
	},
	{Name: Architecture, Component: Sensor, Title: "Architecture", Icon: "mdi:cpu-64-bit"},
	{Name: MAC, Component: Sensor, Title: "MAC-Address", Icon: "mdi:network-pos"},
	{
		Name:          Volume,
		Component:     Number,
		Title:         "Volume",
		Icon:          "mdi:volume-high",
		Unit:          "%",
		Command:       true,
		ValueTemplate: "{{ value|int }}",
		Range:         &Range{Min: 0, Max: 100},
	},
	{Name: SSID, Component: Sensor, Title: "WIFI SSID", Icon: "mdi:wifi"},
	{Name: SignalStrength, Component: Sensor, Title: "WIFI signal strength", Icon: "mdi:wifi", Unit: "dBm"},
	{Name: SignalQuality, Component: Sensor, Title: "WIFI signal quality", Icon: "mdi:wifi", Unit: "%"},
}

// Channels returns the ordered channel table. The slice is a copy.
func Channels() []Channel {
	out := make([]Channel, len(channels))
	copy(out, channels)

	return out
}

// Lookup returns the channel with the given name.
func Lookup(name string) (Channel, bool) {
	for _, c := range channels {
		if c.Name == name {
			return c, true
		}
	}

	return Channel{}, false
}

// Static lists the channels published once per connection.
func Static() []string {
	return []string{OS, Raspi, Hostname, IP, Architecture, MAC}
}

// Commands lists the channels accepting commands.
func Commands() []string {
	var out []string
	for _, c := range channels {
		if c.Command {
			out = append(out, c.Name)
		}
	}

	return out
}
