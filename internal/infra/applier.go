package infra

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/rs/zerolog"
)

// TrafficApplier pushes a computed traffic percentage out to the real
// routing layer (CDN weights, load-balancer config). The core records the
// decision first; applying it happens here and its failure is the caller's
// to handle.
type TrafficApplier interface {
	Apply(ctx context.Context, deploymentID string, percentage int) error
}

// CommandApplier shells out to a user-configured command, appending the
// deployment id and target percentage as arguments.
type CommandApplier struct {
	Command string
	Args    []string
}

func NewCommandApplier(command string, args ...string) *CommandApplier {
	return &CommandApplier{Command: command, Args: args}
}

func (a *CommandApplier) Apply(ctx context.Context, deploymentID string, percentage int) error {
	log := zerolog.Ctx(ctx)
	args := append(append([]string{}, a.Args...), deploymentID, strconv.Itoa(percentage))
	cmd := exec.CommandContext(ctx, a.Command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	log.Debug().Strs("command", cmd.Args).Msg("applying traffic split")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("traffic apply command: %w: %s", err, stderr.String())
	}
	return nil
}

// NopApplier records nothing and applies nothing. Used when the rollout is
// driven for its decision state only.
type NopApplier struct{}

func (NopApplier) Apply(context.Context, string, int) error { return nil }
