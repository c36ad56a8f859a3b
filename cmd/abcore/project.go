package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/actions"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects",
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the projects in the base dir",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openHeadless(cmd, false)
		if err != nil {
			return err
		}
		defer a.close()

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PROJECT\tCURRENT\tDIR")
		cur := a.manager.Current()
		for _, name := range a.manager.Projects() {
			mark := ""
			if cur != nil && cur.Name == name {
				mark = "*"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", name, mark, a.manager.Dir(name))
		}
		return tw.Flush()
	},
}

var projectExportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Write the current project to a gzip tarball",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openHeadless(cmd, true)
		if err != nil {
			return err
		}
		defer a.close()
		if err := a.run(cmd.Context(), &actions.ProjectExport{Env: a.env}, a.cfg.Project, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "exported %s to %s\n", a.cfg.Project, args[0])
		return nil
	},
}

var projectImportCmd = &cobra.Command{
	Use:   "import <file> <name>",
	Short: "Import a project tarball under a new name",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openHeadless(cmd, true)
		if err != nil {
			return err
		}
		defer a.close()
		if err := a.run(cmd.Context(), &actions.ProjectImport{Env: a.env}, args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %s as %s\n", args[0], args[1])
		return nil
	},
}

var projectDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		a, err := openHeadless(cmd, yes)
		if err != nil {
			return err
		}
		defer a.close()
		return a.run(cmd.Context(), &actions.ProjectDelete{Env: a.env}, args[0])
	},
}

func init() {
	projectDeleteCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")
	projectCmd.AddCommand(projectListCmd, projectExportCmd, projectImportCmd, projectDeleteCmd)
	rootCmd.AddCommand(projectCmd)
}
