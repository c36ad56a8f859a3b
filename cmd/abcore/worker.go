package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/mds"
)

// mdsWorkerCmd is the child a ProcessRunner starts for one database. It
// parses its own flags so the parent's persistent flags do not apply.
var mdsWorkerCmd = &cobra.Command{
	Use:                mds.ChildCommand,
	Short:              "Decode the secondary metadata of one database (internal)",
	Hidden:             true,
	DisableFlagParsing: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if code := mds.ChildMain(args, cmd.OutOrStdout(), cmd.ErrOrStderr()); code != 0 {
			os.Exit(code)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mdsWorkerCmd)
}
