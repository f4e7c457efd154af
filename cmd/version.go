package cmd

import (
	"github.com/cloudtracker/cloudtracker/internal/message"
	"github.com/cloudtracker/cloudtracker/version"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of CloudTracker",
	Long:  `All software has versions. This is CloudTracker's`,
	Run: func(cmd *cobra.Command, args []string) {
		message.Info(version.FullVersion())
	},
}
