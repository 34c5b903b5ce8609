package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	analyticsCmd := &cobra.Command{
		Use:   "analytics",
		Short: "Counts, top parties, tag trends and link patterns for a group",
		Run:   runAnalytics,
	}
	analyticsCmd.Flags().StringP("group", "g", "", "Group (default: default)")

	groupsCmd := &cobra.Command{
		Use:   "groups",
		Short: "List groups with their record counts",
		Run:   runGroups,
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show backend health",
		Run:   runStatus,
	}

	RootCmd.AddCommand(analyticsCmd, groupsCmd, statusCmd)
}

func runAnalytics(cmd *cobra.Command, args []string) {
	group, _ := cmd.Flags().GetString("group")

	a := mustOpenApp()
	defer a.Close()

	res, err := a.svc.Analytics(cmd.Context(), group)
	printResult(res, "", err)
}

func runGroups(cmd *cobra.Command, args []string) {
	a := mustOpenApp()
	defer a.Close()

	st, err := a.svc.Groups(cmd.Context())
	printResult(st, "", err)
}

func runStatus(cmd *cobra.Command, args []string) {
	a := mustOpenApp()
	defer a.Close()

	printResult(a.svc.Status(cmd.Context()), "", nil)
}
