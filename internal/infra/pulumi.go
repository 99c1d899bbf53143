// Package infra is the shell-out glue to the infrastructure-as-code tool.
// The lock manager only consumes the StackLockProber interface; the pulumi
// implementation here is one provider of it.
package infra

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// StackLockProber reports and clears the infrastructure tool's own
// state-level lock for a stage. This lock is independent of slipway's
// deployment lock: the tool may hold one even when ours is clear, e.g.
// after manual intervention.
type StackLockProber interface {
	IsLocked(ctx context.Context, stage string) (bool, error)
	ClearLock(ctx context.Context, stage string) error
}

type PulumiCLI struct {
	workDir string
}

func NewPulumiCLI(workDir string) *PulumiCLI {
	return &PulumiCLI{workDir: workDir}
}

// IsLocked probes the stack for a held state lock by attempting an export.
// Pulumi rejects the export with a lock message while an update holds the
// stack.
func (p *PulumiCLI) IsLocked(ctx context.Context, stage string) (bool, error) {
	log := zerolog.Ctx(ctx)
	cmd := exec.CommandContext(ctx, "pulumi", "stack", "export", "--stack", stage)
	cmd.Dir = p.workDir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	log.Debug().Strs("command", cmd.Args).Msg("probing pulumi stack lock")
	if err := cmd.Run(); err != nil {
		out := strings.ToLower(stderr.String())
		if strings.Contains(out, "locked") || strings.Contains(out, "another update") {
			return true, nil
		}
		return false, fmt.Errorf("pulumi stack export: %w: %s", err, stderr.String())
	}
	return false, nil
}

// ClearLock cancels the in-flight pulumi operation holding the stack lock.
// Misused against a legitimately running update this can corrupt state, so
// it is only reachable through the explicit recovery command.
func (p *PulumiCLI) ClearLock(ctx context.Context, stage string) error {
	log := zerolog.Ctx(ctx)
	cmd := exec.CommandContext(ctx, "pulumi", "cancel", "--yes", "--stack", stage)
	cmd.Dir = p.workDir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	log.Debug().Strs("command", cmd.Args).Msg("clearing pulumi stack lock")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("pulumi cancel: %w: %s", err, stderr.String())
	}
	log.Info().Str("stage", stage).Msg("cleared pulumi stack lock")
	return nil
}
