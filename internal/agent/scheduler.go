package agent

import "time"

// Scheduler picks the delay before the next telemetry tick.
type Scheduler struct {
	active time.Duration
	idle   time.Duration
}

func NewScheduler(active, idle time.Duration) Scheduler {
	return Scheduler{active: active, idle: idle}
}

// Next returns the active interval while the device is playing, the idle
// interval otherwise.
func (s Scheduler) Next(active bool) time.Duration {
	if active {
		return s.active
	}

	return s.idle
}
