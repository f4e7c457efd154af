package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloudtracker/cloudtracker/internal/coordinator"
	"github.com/cloudtracker/cloudtracker/pkg/diff"
)

var (
	configFlag      string
	iamFlag         string
	accountFlag     string
	listFlag        string
	userFlag        string
	roleFlag        string
	destRoleFlag    string
	destAccountFlag string
	startFlag       string
	endFlag         string
	showUsedFlag    bool
	ignoreBenign    bool
	ignoreUnknown   bool
	skipSetupFlag   bool
)

const dateLayout = "2006-01-02"

func registerRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFlag, "config", "config.yaml", "config file name")
	// iamFlag is accepted for compatibility but unused: the IAM dump path for
	// an account always comes from that account's "iam" entry in the config
	// file, never from the CLI invocation.
	cmd.Flags().StringVar(&iamFlag, "iam", "./data/get-account-authorization-details.json", "IAM output from running `aws iam get-account-authorization-details` (unused; path comes from the account's config entry)")
	cmd.Flags().StringVar(&accountFlag, "account", "", "account name or id")
	cmd.MarkFlagRequired("account")

	cmd.Flags().StringVar(&listFlag, "list", "", "list 'users' or 'roles' that have been active")
	cmd.Flags().StringVar(&userFlag, "user", "", "user to investigate")
	cmd.Flags().StringVar(&roleFlag, "role", "", "role to investigate")

	cmd.Flags().StringVar(&destRoleFlag, "destrole", "", "role assumed into")
	cmd.Flags().StringVar(&destAccountFlag, "destaccount", "", "account assumed into, if different")

	cmd.Flags().StringVar(&startFlag, "start", "", "start of date range, e.g. 2018-01-21 (default: one year ago)")
	cmd.Flags().StringVar(&endFlag, "end", "", "end of date range, e.g. 2018-01-21 (default: today)")

	cmd.Flags().BoolVar(&showUsedFlag, "show-used", false, "only show privileges that were used")
	cmd.Flags().BoolVar(&ignoreBenign, "ignore-benign", false, "don't show list/describe actions")
	cmd.Flags().BoolVar(&ignoreUnknown, "ignore-unknown", false, "don't show granted privileges CloudTrail doesn't record")
	cmd.Flags().BoolVar(&skipSetupFlag, "skip-setup", false, "for Athena, don't create or test for the tables")
}

func runRootCmd(cmd *cobra.Command, args []string) error {
	if listFlag == "" && userFlag == "" && roleFlag == "" {
		return fmt.Errorf("must specify one of --list, --user, or --role")
	}

	now := time.Now()
	start := now.AddDate(0, 0, -365)
	end := now
	var err error
	if startFlag != "" {
		start, err = time.Parse(dateLayout, startFlag)
		if err != nil {
			return fmt.Errorf("invalid --start date %q: %w", startFlag, err)
		}
	}
	if endFlag != "" {
		end, err = time.Parse(dateLayout, endFlag)
		if err != nil {
			return fmt.Errorf("invalid --end date %q: %w", endFlag, err)
		}
	}

	opts := coordinator.Options{
		ConfigPath:  configFlag,
		Account:     accountFlag,
		List:        coordinator.ListKind(listFlag),
		User:        userFlag,
		Role:        roleFlag,
		DestAccount: destAccountFlag,
		DestRole:    destRoleFlag,
		Start:       start,
		End:         end,
		SkipSetup:   skipSetupFlag,
		Filters: diff.Filters{
			ShowUsed:    showUsedFlag,
			ShowBenign:  !ignoreBenign,
			ShowUnknown: !ignoreUnknown,
			UseColor:    !noColorFlag,
		},
	}

	return coordinator.Run(context.Background(), os.Stdout, opts)
}
