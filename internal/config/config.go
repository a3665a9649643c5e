package config

import (
	"strings"
	"time"

	"codeberg.org/mutker/mupimqtt/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultConfigPath = "/etc/mupibox/mupiboxconfig.json"
	EnvPrefix         = "MUPIMQTT"

	ProtocolV311 = "3.1.1"
	ProtocolV5   = "5"
)

type Config struct {
	MQTT     MQTT     `mapstructure:"mqtt"`
	Mupibox  Mupibox  `mapstructure:"mupibox"`
	Agent    Agent    `mapstructure:"agent"`
	History  History  `mapstructure:"history"`
	InfluxDB InfluxDB `mapstructure:"influxdb"`

	Debug   bool `mapstructure:"-"`
	Verbose bool `mapstructure:"-"`
}

type MQTT struct {
	Name                 string `mapstructure:"name"`
	Topic                string `mapstructure:"topic"`
	ClientID             string `mapstructure:"clientId"`
	Active               bool   `mapstructure:"active"`
	Broker               string `mapstructure:"broker"`
	Port                 int    `mapstructure:"port"`
	Username             string `mapstructure:"username"`
	Password             string `mapstructure:"password"`
	Refresh              int    `mapstructure:"refresh"`
	RefreshIdle          int    `mapstructure:"refreshIdle"`
	Timeout              int    `mapstructure:"timeout"`
	Debug                bool   `mapstructure:"debug"`
	DiscoveryPrefix      string `mapstructure:"discoveryPrefix"`
	Protocol             string `mapstructure:"protocol"`
	TLS                  bool   `mapstructure:"tls"`
	KeepAlive            int    `mapstructure:"keepAlive"`
	ReconnectMaxInterval int    `mapstructure:"reconnectMaxInterval"`
}

type Mupibox struct {
	Version string `mapstructure:"version"`
	Host    string `mapstructure:"host"`
}

type Agent struct {
	Interface       string `mapstructure:"interface"`
	PlayerState     string `mapstructure:"playerState"`
	MixerControl    string `mapstructure:"mixerControl"`
	ShutdownCommand string `mapstructure:"shutdownCommand"`
	RebootCommand   string `mapstructure:"rebootCommand"`
}

type History struct {
	Enabled      bool   `mapstructure:"enabled"`
	DBPath       string `mapstructure:"dbPath"`
	BatchSize    int    `mapstructure:"batchSize"`
	BatchTimeout int    `mapstructure:"batchTimeout"`
}

type InfluxDB struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Token   string `mapstructure:"token"`
	Org     string `mapstructure:"org"`
	Bucket  string `mapstructure:"bucket"`
}

var defaults = map[string]any{
	"mqtt.name":                 "MuPiBox",
	"mqtt.topic":                "mupibox",
	"mqtt.clientId":             "",
	"mqtt.active":               true,
	"mqtt.broker":               "",
	"mqtt.port":                 1883,
	"mqtt.username":             "",
	"mqtt.password":             "",
	"mqtt.refresh":              10,
	"mqtt.refreshIdle":          60,
	"mqtt.timeout":              60,
	"mqtt.debug":                false,
	"mqtt.discoveryPrefix":      "homeassistant",
	"mqtt.protocol":             ProtocolV311,
	"mqtt.tls":                  false,
	"mqtt.keepAlive":            60,
	"mqtt.reconnectMaxInterval": 60,
	"mupibox.version":           "",
	"mupibox.host":              "mupibox",
	"agent.interface":           "wlan0",
	"agent.playerState":         "/tmp/playerstate",
	"agent.mixerControl":        "Master",
	"agent.shutdownCommand":     "sudo shutdown -h now",
	"agent.rebootCommand":       "sudo reboot",
	"history.enabled":           false,
	"history.dbPath":            "/var/lib/mupimqtt/history.db",
	"history.batchSize":         50,
	"history.batchTimeout":      30,
	"influxdb.enabled":          false,
	"influxdb.url":              "http://localhost:8086",
	"influxdb.token":            "",
	"influxdb.org":              "",
	"influxdb.bucket":           "mupibox",
}

// Load reads the configuration from the JSON file, MUPIMQTT_* environment
// variables and command line flags, in increasing order of precedence.
func Load(args []string) (*Config, error) {
	errFactory := errors.New()

	flags := pflag.NewFlagSet("mupimqtt", pflag.ContinueOnError)
	configPath := flags.String("config", "", "Path to the MuPiBox configuration file")
	debugFlag := flags.Bool("debug", false, "Enable debugging mode")
	verboseFlag := flags.Bool("verbose", false, "Enable verbose logging")
	if err := flags.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := *configPath
	if path == "" {
		path = v.GetString("config")
	}
	if path == "" {
		path = DefaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err).WithData(path)
	}

	if err := v.BindPFlag("mqtt.debug", flags.Lookup("debug")); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	cfg.Debug = *debugFlag || cfg.MQTT.Debug
	cfg.Verbose = *verboseFlag

	if !cfg.MQTT.Active {
		return cfg, nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the fields the agent cannot run without.
func (c *Config) Validate() error {
	errFactory := errors.New()

	required := map[string]string{
		"mqtt.broker":   c.MQTT.Broker,
		"mqtt.clientId": c.MQTT.ClientID,
		"mqtt.topic":    c.MQTT.Topic,
	}
	for _, key := range []string{"mqtt.broker", "mqtt.clientId", "mqtt.topic"} {
		if strings.TrimSpace(required[key]) == "" {
			return errFactory.WithData(errors.ErrMissingConfig, key)
		}
	}

	if c.MQTT.Port < 1 || c.MQTT.Port > 65535 {
		return errFactory.WithData(errors.ErrInvalidConfig, "mqtt.port")
	}

	positive := []struct {
		key   string
		value int
	}{
		{"mqtt.refresh", c.MQTT.Refresh},
		{"mqtt.refreshIdle", c.MQTT.RefreshIdle},
		{"mqtt.timeout", c.MQTT.Timeout},
		{"mqtt.keepAlive", c.MQTT.KeepAlive},
		{"mqtt.reconnectMaxInterval", c.MQTT.ReconnectMaxInterval},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return errFactory.WithData(errors.ErrInvalidInterval, p.key)
		}
	}

	if c.MQTT.Protocol != ProtocolV311 && c.MQTT.Protocol != ProtocolV5 {
		return errFactory.WithData(errors.ErrInvalidConfig, "mqtt.protocol")
	}

	if c.History.Enabled {
		if c.History.DBPath == "" {
			return errFactory.WithData(errors.ErrMissingConfig, "history.dbPath")
		}
		if c.History.BatchSize <= 0 || c.History.BatchTimeout <= 0 {
			return errFactory.WithData(errors.ErrInvalidConfig, "history")
		}
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "") {
		return errFactory.WithData(errors.ErrMissingConfig, "influxdb")
	}

	return nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func (m MQTT) RefreshActiveInterval() time.Duration { return seconds(m.Refresh) }
func (m MQTT) RefreshIdleInterval() time.Duration   { return seconds(m.RefreshIdle) }
func (m MQTT) ConnectTimeout() time.Duration        { return seconds(m.Timeout) }
func (m MQTT) KeepAliveInterval() time.Duration     { return seconds(m.KeepAlive) }
func (m MQTT) ReconnectMaxDelay() time.Duration     { return seconds(m.ReconnectMaxInterval) }

func (h History) FlushInterval() time.Duration { return seconds(h.BatchTimeout) }
