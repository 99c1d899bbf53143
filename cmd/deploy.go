package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/slipway-sh/slipway/internal/canary"
	"github.com/slipway-sh/slipway/internal/config"
	"github.com/slipway-sh/slipway/internal/entity"
	"github.com/slipway-sh/slipway/internal/health"
	"github.com/slipway-sh/slipway/internal/infra"
	"github.com/slipway-sh/slipway/internal/lockmgr"
	"github.com/slipway-sh/slipway/internal/progress"
	"github.com/slipway-sh/slipway/internal/repository"
	"github.com/slipway-sh/slipway/internal/shifter"
	"github.com/slipway-sh/slipway/internal/utils"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var deployFlags struct {
	stage        string
	deploymentID string
	blueVersion  string
	greenVersion string
	workDir      string
	lockTTL      time.Duration

	deployCmd string
	checkCmd  string
	verifyCmd string

	canaryEnabled bool
	initial       int
	increment     int
	final         int
	interval      time.Duration
	pollInterval  time.Duration
	errorRate     float64
	latencyP95    float64
	latencyP99    float64
	successRate   float64
	failures      int
	metricsCmd    string
	applyCmd      string
}

var pipelineStages = []string{
	"environment checks",
	"quality checks",
	"deploy",
	"post-validation",
	"health verification",
}

var deployCmd = &cobra.Command{
	Use:           "deploy",
	Short:         "Run a locked deployment, optionally with a canary rollout",
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		ctx = log.Logger.WithContext(ctx)

		project, err := config.Load(filepath.Join(deployFlags.workDir, config.DefaultFileName))
		if err != nil {
			return err
		}
		applyProjectDefaults(cmd, project)
		if deployFlags.stage == "" {
			return &entity.ValidationError{Field: "stage", Msg: "set --stage or the stage field in " + config.DefaultFileName}
		}

		stage := utils.SanitizeName(deployFlags.stage)
		deploymentID := deployFlags.deploymentID
		if deploymentID == "" {
			deploymentID = fmt.Sprintf("%s-%d", stage, time.Now().Unix())
		}
		deploymentID = utils.SanitizeName(deploymentID)

		db, err := openDB()
		if err != nil {
			log.Error().Err(err).Msg("open state database")
			return err
		}

		locks := lockmgr.NewManager(
			repository.NewLockRepository(db),
			infra.NewPulumiCLI(deployFlags.workDir),
			deployFlags.lockTTL,
		)

		lock, err := locks.Acquire(ctx, stage)
		if err != nil {
			var held *entity.LockHeldError
			if errors.As(err, &held) {
				log.Error().
					Str("stage", held.Stage).
					Int("remaining_minutes", held.RemainingMinutes()).
					Msg("another deployment holds the lock; wait for it to expire or run `slipway unlock`")
			}
			return err
		}
		log.Info().Str("stage", stage).Time("expires_at", lock.ExpiresAt).Msg("acquired deployment lock")

		if err := runPipeline(ctx, db, locks, stage, deploymentID); err != nil {
			// The lock stays in place on purpose: an interrupted deployment
			// is evidence, and recovery is an explicit `slipway unlock`.
			return err
		}

		if err := locks.Release(ctx, lock); err != nil {
			log.Error().Err(err).Msg("release deployment lock")
			return err
		}
		log.Info().Str("stage", stage).Str("deployment_id", deploymentID).Msg("deployment complete, lock released")
		return nil
	},
}

func runPipeline(ctx context.Context, db *gorm.DB, locks *lockmgr.Manager, stage, deploymentID string) error {
	tracker := progress.NewTracker(pipelineStages)

	steps := []struct {
		n   int
		run func() error
	}{
		{1, func() error {
			// Surfacing a held infra lock here beats failing mid-update.
			if locks.IsExternalStateLocked(ctx, stage) {
				return fmt.Errorf("stage %q: infrastructure state lock is held: %w", stage, entity.ErrLockHeld)
			}
			return nil
		}},
		{2, func() error { return runStageCommand(ctx, deployFlags.checkCmd) }},
		{3, func() error { return runStageCommand(ctx, deployFlags.deployCmd) }},
		{4, func() error { return runStageCommand(ctx, deployFlags.verifyCmd) }},
		{5, func() error { return runHealthVerification(ctx, db, deploymentID) }},
	}

	for _, step := range steps {
		if skippableStep(step.n) {
			lo.Must0(tracker.Skip(step.n))
			log.Info().Str("stage_name", pipelineStages[step.n-1]).Msg("stage skipped")
			continue
		}
		lo.Must0(tracker.Start(step.n))
		log.Info().Str("stage_name", pipelineStages[step.n-1]).Str("progress", tracker.Bar(20)).Msg("stage started")
		err := step.run()
		lo.Must0(tracker.Complete(step.n, err == nil))
		if err != nil {
			summary := lo.Must(tracker.FailureSummary(step.n))
			log.Error().Err(err).Str("summary", summary).Msg("stage failed")
			return err
		}
		if remaining, ok := tracker.EstimatedRemaining(); ok {
			log.Info().
				Str("stage_name", pipelineStages[step.n-1]).
				Str("progress", tracker.Bar(20)).
				Dur("estimated_remaining", remaining).
				Msg("stage passed")
		} else {
			log.Info().Str("stage_name", pipelineStages[step.n-1]).Str("progress", tracker.Bar(20)).Msg("stage passed")
		}
	}
	return nil
}

// skippableStep reports stages with nothing configured to run.
func skippableStep(n int) bool {
	switch n {
	case 2:
		return deployFlags.checkCmd == ""
	case 3:
		return deployFlags.deployCmd == ""
	case 4:
		return deployFlags.verifyCmd == ""
	case 5:
		return !deployFlags.canaryEnabled
	}
	return false
}

func runStageCommand(ctx context.Context, command string) error {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	log.Debug().Str("command", command).Msg("executing stage command")
	return cmd.Run()
}

// runHealthVerification drives the canary loop: poll metrics, advance when
// the interval allows, roll back when the failure threshold trips. All
// waiting happens here; the canary manager itself only answers questions.
func runHealthVerification(ctx context.Context, db *gorm.DB, deploymentID string) error {
	manager := canary.NewManager(
		shifter.New(repository.NewShiftStateRepository(db)),
		repository.NewCanaryStateRepository(db),
	)
	if deployFlags.metricsCmd == "" {
		return &entity.ValidationError{Field: "metrics-cmd", Msg: "required when --canary is set"}
	}
	// The trailing "slipway" becomes $0 inside the script, so the appended
	// arguments arrive as $1 (deployment id) and, for the applier, $2
	// (target percentage).
	source := health.NewCommandSource("sh", "-c", deployFlags.metricsCmd, "slipway")
	var applier infra.TrafficApplier = infra.NopApplier{}
	if deployFlags.applyCmd != "" {
		applier = infra.NewCommandApplier("sh", "-c", deployFlags.applyCmd, "slipway")
	}

	cfg := entity.CanaryConfig{
		Shift: entity.ShiftConfig{
			InitialPercentage:   deployFlags.initial,
			IncrementPercentage: deployFlags.increment,
			FinalPercentage:     deployFlags.final,
			IncrementInterval:   deployFlags.interval,
		},
		RollbackOn:            thresholdFlags(),
		FailureThresholdCount: deployFlags.failures,
	}

	state, err := manager.Start(ctx, deploymentID, deployFlags.blueVersion, deployFlags.greenVersion, cfg)
	if err != nil {
		return err
	}
	if err := applier.Apply(ctx, deploymentID, state.TrafficState.CurrentPercentage); err != nil {
		return err
	}
	log.Info().
		Int("percentage", state.TrafficState.CurrentPercentage).
		Msg("canary started")

	ticker := time.NewTicker(deployFlags.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		metrics, err := source.Collect(ctx, deploymentID)
		if err != nil {
			log.Warn().Err(err).Msg("metrics collection failed, skipping tick")
			continue
		}
		state, err = manager.UpdateMetrics(ctx, deploymentID, metrics)
		if err != nil {
			return err
		}
		log.Info().
			Str("health", string(state.Status)).
			Int("consecutive_failures", state.HealthCheckFailures).
			Float64("error_rate", metrics.ErrorRate).
			Msg("health snapshot evaluated")

		if state.ShouldRollback {
			state, err = manager.Rollback(ctx, deploymentID, state.RollbackReason)
			if err != nil {
				return err
			}
			if err := applier.Apply(ctx, deploymentID, 0); err != nil {
				return err
			}
			log.Error().Str("reason", state.RollbackReason).Msg("canary rolled back")
			return fmt.Errorf("canary rolled back: %s", state.RollbackReason)
		}

		ready, err := manager.ReadyForProgression(ctx, deploymentID)
		if err != nil {
			return err
		}
		if !ready || state.Status != entity.CanaryStatusHealthy {
			continue
		}

		before := state.TrafficState.CurrentPercentage
		state, err = manager.AdvanceTraffic(ctx, deploymentID, "scheduled increment")
		if err != nil {
			return err
		}
		if state.TrafficState.CurrentPercentage == before {
			// Already at the final percentage: finish the cutover.
			state, err = manager.Complete(ctx, deploymentID)
			if err != nil {
				return err
			}
			if err := applier.Apply(ctx, deploymentID, 100); err != nil {
				return err
			}
			log.Info().Msg("canary completed, all traffic on green")
			return nil
		}
		if err := applier.Apply(ctx, deploymentID, state.TrafficState.CurrentPercentage); err != nil {
			return err
		}
		log.Info().Int("percentage", state.TrafficState.CurrentPercentage).Msg("traffic advanced")
	}
}

// applyProjectDefaults fills flags the invocation left untouched from the
// project file. An explicitly passed flag always wins.
func applyProjectDefaults(cmd *cobra.Command, p *config.Project) {
	changed := cmd.Flags().Changed

	if !changed("stage") && p.Stage != "" {
		deployFlags.stage = p.Stage
	}
	if !changed("check-cmd") && p.CheckCmd != "" {
		deployFlags.checkCmd = p.CheckCmd
	}
	if !changed("deploy-cmd") && p.DeployCmd != "" {
		deployFlags.deployCmd = p.DeployCmd
	}
	if !changed("verify-cmd") && p.VerifyCmd != "" {
		deployFlags.verifyCmd = p.VerifyCmd
	}

	c := p.Canary
	if !changed("canary") && c.Enabled {
		deployFlags.canaryEnabled = true
	}
	if !changed("initial-percentage") && c.InitialPercentage != 0 {
		deployFlags.initial = c.InitialPercentage
	}
	if !changed("increment-percentage") && c.IncrementPercentage != 0 {
		deployFlags.increment = c.IncrementPercentage
	}
	if !changed("final-percentage") && c.FinalPercentage != 0 {
		deployFlags.final = c.FinalPercentage
	}
	if !changed("increment-interval") && c.IncrementInterval != 0 {
		deployFlags.interval = time.Duration(c.IncrementInterval)
	}
	if !changed("poll-interval") && c.PollInterval != 0 {
		deployFlags.pollInterval = time.Duration(c.PollInterval)
	}
	if !changed("failure-threshold") && c.FailureThreshold != 0 {
		deployFlags.failures = c.FailureThreshold
	}
	if !changed("max-error-rate") && c.MaxErrorRate != 0 {
		deployFlags.errorRate = c.MaxErrorRate
	}
	if !changed("max-latency-p95") && c.MaxLatencyP95 != 0 {
		deployFlags.latencyP95 = c.MaxLatencyP95
	}
	if !changed("max-latency-p99") && c.MaxLatencyP99 != 0 {
		deployFlags.latencyP99 = c.MaxLatencyP99
	}
	if !changed("min-success-rate") && c.MinSuccessRate != 0 {
		deployFlags.successRate = c.MinSuccessRate
	}
	if !changed("metrics-cmd") && c.MetricsCmd != "" {
		deployFlags.metricsCmd = c.MetricsCmd
	}
	if !changed("apply-cmd") && c.ApplyCmd != "" {
		deployFlags.applyCmd = c.ApplyCmd
	}
}

func thresholdFlags() entity.HealthThresholds {
	var th entity.HealthThresholds
	if deployFlags.errorRate > 0 {
		th.ErrorRate = &deployFlags.errorRate
	}
	if deployFlags.latencyP95 > 0 {
		th.LatencyP95 = &deployFlags.latencyP95
	}
	if deployFlags.latencyP99 > 0 {
		th.LatencyP99 = &deployFlags.latencyP99
	}
	if deployFlags.successRate > 0 {
		th.SuccessRate = &deployFlags.successRate
	}
	return th
}

func init() {
	deployCmd.Flags().StringVar(&deployFlags.stage, "stage", "", "Deployment stage (required unless set in "+config.DefaultFileName+")")
	deployCmd.Flags().StringVar(&deployFlags.deploymentID, "deployment-id", "", "Stable deployment id (default: <stage>-<unix time>)")
	deployCmd.Flags().StringVar(&deployFlags.blueVersion, "blue", "", "Incumbent version identifier")
	deployCmd.Flags().StringVar(&deployFlags.greenVersion, "green", "", "Candidate version identifier")
	deployCmd.Flags().StringVar(&deployFlags.workDir, "work-dir", ".", "Directory containing the infrastructure project")
	deployCmd.Flags().DurationVar(&deployFlags.lockTTL, "lock-ttl", lockmgr.DefaultTTL, "Deployment lock TTL")

	deployCmd.Flags().StringVar(&deployFlags.checkCmd, "check-cmd", "", "Command executed for the quality checks stage")
	deployCmd.Flags().StringVar(&deployFlags.deployCmd, "deploy-cmd", "", "Command executed for the deploy stage")
	deployCmd.Flags().StringVar(&deployFlags.verifyCmd, "verify-cmd", "", "Command executed for the post-validation stage")

	deployCmd.Flags().BoolVar(&deployFlags.canaryEnabled, "canary", false, "Run a gradual canary rollout after deploy")
	deployCmd.Flags().IntVar(&deployFlags.initial, "initial-percentage", 10, "Initial green traffic percentage")
	deployCmd.Flags().IntVar(&deployFlags.increment, "increment-percentage", entity.DefaultIncrementPercentage, "Traffic increment per step")
	deployCmd.Flags().IntVar(&deployFlags.final, "final-percentage", entity.DefaultFinalPercentage, "Final green traffic percentage")
	deployCmd.Flags().DurationVar(&deployFlags.interval, "increment-interval", entity.DefaultIncrementInterval, "Minimum time between increments")
	deployCmd.Flags().DurationVar(&deployFlags.pollInterval, "poll-interval", 30*time.Second, "How often to poll health metrics")
	deployCmd.Flags().Float64Var(&deployFlags.errorRate, "max-error-rate", 0, "Rollback threshold: error rate percentage ceiling (0 disables)")
	deployCmd.Flags().Float64Var(&deployFlags.latencyP95, "max-latency-p95", 0, "Rollback threshold: p95 latency ms ceiling (0 disables)")
	deployCmd.Flags().Float64Var(&deployFlags.latencyP99, "max-latency-p99", 0, "Rollback threshold: p99 latency ms ceiling (0 disables)")
	deployCmd.Flags().Float64Var(&deployFlags.successRate, "min-success-rate", 0, "Rollback threshold: success rate percentage floor (0 disables)")
	deployCmd.Flags().IntVar(&deployFlags.failures, "failure-threshold", entity.DefaultFailureThresholdCount, "Consecutive unhealthy samples before rollback")
	deployCmd.Flags().StringVar(&deployFlags.metricsCmd, "metrics-cmd", "", "Command printing a HealthMetrics JSON document")
	deployCmd.Flags().StringVar(&deployFlags.applyCmd, "apply-cmd", "", "Command applying a traffic percentage")

	rootCmd.AddCommand(deployCmd)
}
