package cmd

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/slipway-sh/slipway/internal/repository"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var rootFlags struct {
	verbose bool
	dataDir string
}

var rootCmd = &cobra.Command{
	Use:   "slipway",
	Short: "Deployment orchestration for serverless web applications",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		if rootFlags.verbose {
			log.Logger = log.Logger.Level(zerolog.DebugLevel)
		} else {
			log.Logger = log.Logger.Level(zerolog.InfoLevel)
		}
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// dbPath is where the deployment lock and shift state live. It must be
// durable: the lock record is what survives a crashed deployment.
func dbPath() string {
	return filepath.Join(rootFlags.dataDir, "slipway.db")
}

func openDB() (*gorm.DB, error) {
	if err := os.MkdirAll(rootFlags.dataDir, 0o755); err != nil {
		return nil, err
	}
	return repository.NewSQLiteDB(dbPath())
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&rootFlags.verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&rootFlags.dataDir, "data-dir", ".slipway", "Directory for slipway state")
}
