// Package system runs the local utilities the agent depends on.
package system

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"codeberg.org/mutker/mupimqtt/internal/errors"
)

// Commander runs an external program and returns its standard output.
type Commander interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// Exec runs programs through os/exec.
type Exec struct{}

func (Exec) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, errors.New().Wrap(errors.ErrOperationFailed, err).WithData(name + ": " + msg)
	}

	return stdout.Bytes(), nil
}

// RunLine runs a whitespace separated command line such as "sudo reboot".
func RunLine(ctx context.Context, c Commander, line string) ([]byte, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, errors.New().WithData(errors.ErrInvalidArgument, "empty command")
	}

	return c.Run(ctx, fields[0], fields[1:]...)
}
