package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/slipway-sh/slipway/internal/canary"
	"github.com/slipway-sh/slipway/internal/entity"
	"github.com/slipway-sh/slipway/internal/repository"
	"github.com/slipway-sh/slipway/internal/shifter"
	"github.com/spf13/cobra"
)

var statusFlags struct {
	deploymentID string
}

var statusCmd = &cobra.Command{
	Use:           "status",
	Short:         "Show deployment locks and canary progress",
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := log.Logger.WithContext(cmd.Context())

		db, err := openDB()
		if err != nil {
			return err
		}

		locks, err := repository.NewLockRepository(db).List(ctx)
		if err != nil {
			return err
		}
		now := time.Now()
		if len(locks) == 0 {
			fmt.Println("no deployment locks held")
		}
		for _, lock := range locks {
			if lock.IsExpired(now) {
				fmt.Printf("lock %-12s STALE  expired %s ago (run `slipway unlock --stage %s`)\n",
					lock.Stage, now.Sub(lock.ExpiresAt).Round(time.Second), lock.Stage)
			} else {
				fmt.Printf("lock %-12s held   expires in %s\n", lock.Stage, lock.Remaining(now).Round(time.Second))
			}
		}

		if statusFlags.deploymentID == "" {
			return nil
		}

		manager := canary.NewManager(
			shifter.New(repository.NewShiftStateRepository(db)),
			repository.NewCanaryStateRepository(db),
		)
		summary, err := manager.Summary(ctx, statusFlags.deploymentID)
		if errors.Is(err, entity.ErrNotFound) {
			fmt.Printf("deployment %s: no canary session\n", statusFlags.deploymentID)
			return nil
		}
		if err != nil {
			return err
		}

		fmt.Printf("deployment %s\n", summary.DeploymentID)
		fmt.Printf("  versions   blue=%s green=%s\n", summary.BlueVersion, summary.GreenVersion)
		fmt.Printf("  traffic    %s %d%% green (%s)\n", trafficBar(summary.CurrentPercentage, 20), summary.CurrentPercentage, summary.Status)
		fmt.Printf("  health     %s (consecutive failures: %d)\n", summary.HealthStatus, summary.HealthCheckFailures)
		if summary.ShouldRollback {
			fmt.Printf("  ROLLBACK RECOMMENDED: %s\n", summary.RollbackReason)
		}
		if summary.RollbackReason != "" && !summary.ShouldRollback && summary.HealthStatus == entity.CanaryStatusRolledBack {
			fmt.Printf("  rolled back: %s\n", summary.RollbackReason)
		}
		fmt.Printf("  elapsed    %s, %d event(s), %d successful\n",
			summary.Elapsed.Round(time.Second), summary.EventCount, summary.SuccessfulEvents)
		return nil
	},
}

// trafficBar renders the green share of traffic as a fixed-width bar.
func trafficBar(percentage, width int) string {
	filled := percentage * width / 100
	return fmt.Sprintf("[%s%s]", strings.Repeat("#", filled), strings.Repeat("-", width-filled))
}

func init() {
	statusCmd.Flags().StringVar(&statusFlags.deploymentID, "deployment-id", "", "Show canary progress for this deployment")
	rootCmd.AddCommand(statusCmd)
}
