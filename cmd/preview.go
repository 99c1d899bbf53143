package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/slipway-sh/slipway/internal/preview"
	"github.com/slipway-sh/slipway/internal/utils"
	"github.com/spf13/cobra"
)

var previewFlags struct {
	appDir       string
	deploymentID string
	color        string
	version      string
	remove       bool
}

var previewCmd = &cobra.Command{
	Use:           "preview",
	Short:         "Run a local docker preview of a deployment color",
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := log.Logger.WithContext(cmd.Context())

		deployer, err := preview.NewDeployer()
		if err != nil {
			return err
		}
		defer deployer.Close()

		deploymentID := utils.SanitizeName(previewFlags.deploymentID)
		if previewFlags.remove {
			return deployer.Remove(ctx, deploymentID)
		}
		return deployer.Deploy(ctx, previewFlags.appDir, deploymentID, previewFlags.color, previewFlags.version)
	},
}

func init() {
	previewCmd.Flags().StringVar(&previewFlags.appDir, "app-dir", ".", "Application directory containing a Dockerfile")
	previewCmd.Flags().StringVar(&previewFlags.deploymentID, "deployment-id", "", "Deployment id to label containers with (required)")
	previewCmd.Flags().StringVar(&previewFlags.color, "color", "green", "Which side to run: blue or green")
	previewCmd.Flags().StringVar(&previewFlags.version, "version", "latest", "Version tag for the built image")
	previewCmd.Flags().BoolVar(&previewFlags.remove, "remove", false, "Tear down the preview containers instead of deploying")
	lo.Must0(previewCmd.MarkFlagRequired("deployment-id"))
	rootCmd.AddCommand(previewCmd)
}
