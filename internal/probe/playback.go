package probe

import (
	"bufio"
	"context"
	"os"
	"strings"
)

const DefaultPlayerState = "/tmp/playerstate"

// PlayerState treats the device as active while the first line of the player
// state file reads "play".
type PlayerState struct {
	path string
}

func NewPlayerState(path string) *PlayerState {
	return &PlayerState{path: path}
}

func (p *PlayerState) Active(context.Context) (bool, error) {
	f, err := os.Open(p.path)
	if err != nil {
		return false, wrapProbe("playback", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return false, wrapProbe("playback", err)
		}
		return false, nil
	}

	return strings.TrimSpace(scanner.Text()) == "play", nil
}
