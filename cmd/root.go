package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cloudtracker/cloudtracker/internal/logs"
	"github.com/cloudtracker/cloudtracker/internal/message"
)

var (
	quietFlag    bool
	noColorFlag  bool
	silentFlag   bool
	logLevelFlag string
)

// rootCmd is CloudTracker's single flat command: there is no subcommand
// tree, since the whole CLI surface is one audit operation with a set of
// flags, not a registry of pluggable modules.
var rootCmd = &cobra.Command{
	Use:   "cloudtracker",
	Short: "CloudTracker finds over-privileged IAM identities by diffing granted permissions against CloudTrail activity.",
	RunE:  runRootCmd,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(configureAmbientState)

	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "info", "log level (debug, info, warn, error, none)")
	rootCmd.PersistentFlags().BoolVar(&quietFlag, "quiet", false, "suppress user messages")
	rootCmd.PersistentFlags().BoolVar(&noColorFlag, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVar(&silentFlag, "silent", false, "suppress all messages except critical errors")

	registerRunFlags(rootCmd)
	rootCmd.MarkFlagsMutuallyExclusive("list", "user", "role")

	rootCmd.AddCommand(versionCmd)
}

func configureAmbientState() {
	logs.ConfigureDefaults(logLevelFlag)
	message.SetQuiet(quietFlag)
	message.SetNoColor(noColorFlag)
	message.SetSilent(silentFlag)
}
