package simulation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"loadflow-server/internal/loadflow"
)

var ErrInvalidCommand = errors.New("invalid command")

type Action string

const (
	ActionAdvance Action = "advance"
	ActionSelect  Action = "select"
	ActionReset   Action = "reset"
	ActionRun     Action = "run"
)

// Command is a remote control request, as received over websocket or MQTT.
type Command struct {
	Action    Action `json:"command"`
	Algorithm string `json:"algorithm,omitempty"`
}

// ParseCommand accepts either JSON ({"command":"select","algorithm":"gauss-seidel"})
// or the plain text forms "advance", "reset", "run" and "select:<key>".
func ParseCommand(payload []byte) (Command, error) {
	var cmd Command

	if json.Valid(payload) {
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return Command{}, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
		}
	} else {
		text := strings.TrimSpace(string(payload))
		action, algorithm, _ := strings.Cut(text, ":")
		cmd = Command{Action: Action(strings.ToLower(strings.TrimSpace(action))), Algorithm: strings.TrimSpace(algorithm)}
	}

	switch cmd.Action {
	case ActionAdvance, ActionReset, ActionRun:
		return cmd, nil
	case ActionSelect:
		if cmd.Algorithm == "" {
			return Command{}, fmt.Errorf("%w: select needs an algorithm", ErrInvalidCommand)
		}
		return cmd, nil
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrInvalidCommand, cmd.Action)
	}
}

// Execute applies a parsed command to the controller.
func (c *Controller) Execute(ctx context.Context, cmd Command) error {
	switch cmd.Action {
	case ActionAdvance:
		c.Advance(ctx)
	case ActionRun:
		c.RunToCompletion(ctx)
	case ActionReset:
		c.Reset(ctx)
	case ActionSelect:
		return c.SelectAlgorithm(ctx, loadflow.AlgorithmKey(cmd.Algorithm))
	default:
		return fmt.Errorf("%w: %q", ErrInvalidCommand, cmd.Action)
	}
	return nil
}
