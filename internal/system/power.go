package system

import (
	"context"

	"codeberg.org/mutker/mupimqtt/internal/errors"
)

// Power performs the device's shutdown and reboot actions.
type Power interface {
	Shutdown(ctx context.Context) error
	Reboot(ctx context.Context) error
}

// CommandPower implements Power with configurable command lines.
type CommandPower struct {
	cmd      Commander
	shutdown string
	reboot   string
}

func NewCommandPower(cmd Commander, shutdown, reboot string) *CommandPower {
	return &CommandPower{cmd: cmd, shutdown: shutdown, reboot: reboot}
}

func (p *CommandPower) Shutdown(ctx context.Context) error {
	return p.run(ctx, p.shutdown)
}

func (p *CommandPower) Reboot(ctx context.Context) error {
	return p.run(ctx, p.reboot)
}

func (p *CommandPower) run(ctx context.Context, line string) error {
	if _, err := RunLine(ctx, p.cmd, line); err != nil {
		return errors.New().Wrap(errors.ErrAction, err).WithData(line)
	}

	return nil
}
