package cmd

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/slipway-sh/slipway/internal/infra"
	"github.com/slipway-sh/slipway/internal/lockmgr"
	"github.com/slipway-sh/slipway/internal/repository"
	"github.com/slipway-sh/slipway/internal/utils"
	"github.com/spf13/cobra"
)

var unlockFlags struct {
	stage         string
	workDir       string
	yes           bool
	forceExternal bool
}

var unlockCmd = &cobra.Command{
	Use:           "unlock",
	Short:         "Recover from an interrupted deployment by clearing its lock",
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := log.Logger.WithContext(cmd.Context())

		db, err := openDB()
		if err != nil {
			return err
		}
		locks := lockmgr.NewManager(
			repository.NewLockRepository(db),
			infra.NewPulumiCLI(unlockFlags.workDir),
			0,
		)

		// Without --stage this only reports, so running it is always safe.
		if unlockFlags.stage == "" {
			stale, err := locks.StaleLocks(ctx)
			if err != nil {
				return err
			}
			if len(stale) == 0 {
				fmt.Println("no stale locks")
				return nil
			}
			for _, lock := range stale {
				fmt.Printf("stale lock %-12s expired %s ago\n",
					lock.Stage, time.Since(lock.ExpiresAt).Round(time.Second))
			}
			fmt.Println("re-run with --stage <stage> --yes to release one")
			return nil
		}

		stage := utils.SanitizeName(unlockFlags.stage)
		lock, err := locks.Get(ctx, stage)
		if err != nil {
			return err
		}
		if !lock.IsExpired(time.Now()) && !unlockFlags.yes {
			return fmt.Errorf("lock for stage %q has not expired yet (expires in %s); pass --yes to release it anyway",
				stage, lock.Remaining(time.Now()).Round(time.Second))
		}
		if !unlockFlags.yes {
			return fmt.Errorf("refusing to release lock for stage %q without --yes", stage)
		}

		if err := locks.Release(ctx, lock); err != nil {
			return err
		}
		log.Info().Str("stage", stage).Msg("released deployment lock")

		if unlockFlags.forceExternal {
			if err := locks.ClearExternalLock(ctx, stage); err != nil {
				return err
			}
			log.Info().Str("stage", stage).Msg("cleared infrastructure state lock")
		}
		return nil
	},
}

func init() {
	unlockCmd.Flags().StringVar(&unlockFlags.stage, "stage", "", "Stage whose lock should be released")
	unlockCmd.Flags().StringVar(&unlockFlags.workDir, "work-dir", ".", "Directory containing the infrastructure project")
	unlockCmd.Flags().BoolVar(&unlockFlags.yes, "yes", false, "Actually release the lock")
	unlockCmd.Flags().BoolVar(&unlockFlags.forceExternal, "force-external", false, "Also clear the infrastructure tool's own state lock")
	rootCmd.AddCommand(unlockCmd)
}
