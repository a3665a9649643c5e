package probe

import (
	"codeberg.org/mutker/mupimqtt/internal/config"
	"codeberg.org/mutker/mupimqtt/internal/system"
)

// Set groups the probes the agent samples.
type Set struct {
	// Tick probes run on every loop iteration.
	Tick []Probe
	// Static probes run once per broker connection.
	Static   []Probe
	Activity Activity
	Mixer    Mixer
}

// NewSet builds the probes of a MuPiBox device.
func NewSet(cfg *config.Config, cmd system.Commander) *Set {
	mixer := NewAmixer(cmd, cfg.Agent.MixerControl)

	return &Set{
		Tick: []Probe{
			Temperature(DefaultThermalZone, cmd),
			Volume(mixer),
			Wireless(cmd, cfg.Agent.Interface),
		},
		Static: []Probe{
			OSRelease(DefaultOSRelease),
			Model(DefaultModel),
			Hostname(),
			IP(cfg.Agent.Interface),
			Architecture(),
			MAC(cfg.Agent.Interface),
		},
		Activity: NewPlayerState(cfg.Agent.PlayerState),
		Mixer:    mixer,
	}
}
