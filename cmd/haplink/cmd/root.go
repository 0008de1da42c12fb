package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/haplink/haplink/internal/config"
	"github.com/haplink/haplink/internal/logging"
)

var (
	cfg *config.Config

	flagServer     string
	flagUser       string
	flagOnConflict string
)

var rootCmd = &cobra.Command{
	Use:   "haplink",
	Short: "haplink is a client for HAP+ file servers",
	Long: `A command-line client for HAP+ file servers: browse drives, transfer
files, and manage move/copy operations with the same conflict handling
as the graphical clients.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env file is fine; the environment still applies.
		godotenv.Load()

		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		if flagServer != "" {
			cfg.ServerURL = flagServer
		}
		if flagUser != "" {
			cfg.Username = flagUser
		}
		return logging.Init(logging.Config{
			Level:  cfg.LogLevel,
			Format: cfg.LogFormat,
		})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagServer, "server", "", "HAP+ server URL (overrides HAP_SERVER_URL)")
	rootCmd.PersistentFlags().StringVar(&flagUser, "user", "", "account username (overrides HAP_USERNAME)")
	rootCmd.PersistentFlags().StringVar(&flagOnConflict, "on-conflict", "skip",
		"what to do when a target name exists: skip, replace, or new")
}
