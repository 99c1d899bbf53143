// Package health feeds the canary manager from outside. The core only ever
// sees HealthMetrics snapshots; where they come from (log scraping, an APM
// query, synthetic probes) is entirely the source's business.
package health

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/rs/zerolog"
	"github.com/slipway-sh/slipway/internal/entity"
)

// MetricsSource produces one health snapshot per polling tick.
type MetricsSource interface {
	Collect(ctx context.Context, deploymentID string) (entity.HealthMetrics, error)
}

// CommandSource shells out to a user-configured command that prints a
// HealthMetrics JSON document on stdout. The deployment id is passed as the
// last argument so one script can serve several deployments.
type CommandSource struct {
	Command string
	Args    []string
}

func NewCommandSource(command string, args ...string) *CommandSource {
	return &CommandSource{Command: command, Args: args}
}

func (s *CommandSource) Collect(ctx context.Context, deploymentID string) (entity.HealthMetrics, error) {
	log := zerolog.Ctx(ctx)
	args := append(append([]string{}, s.Args...), deploymentID)
	cmd := exec.CommandContext(ctx, s.Command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	log.Debug().Strs("command", cmd.Args).Msg("collecting health metrics")
	if err := cmd.Run(); err != nil {
		return entity.HealthMetrics{}, fmt.Errorf("metrics command: %w: %s", err, stderr.String())
	}
	var metrics entity.HealthMetrics
	if err := json.Unmarshal(stdout.Bytes(), &metrics); err != nil {
		return entity.HealthMetrics{}, fmt.Errorf("decode metrics: %w", err)
	}
	if metrics.Timestamp.IsZero() {
		metrics.Timestamp = time.Now()
	}
	return metrics, nil
}
