package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a group as JSON",
		Long:  "Export every event, snippet and manual link of a group. Vectors and graph episodes are re-derived on import.",
		Run:   runExport,
	}

	cmd.Flags().StringP("group", "g", "", "Group (default: default)")

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	group, _ := cmd.Flags().GetString("group")

	a := mustOpenApp()
	defer a.Close()

	bundle, err := a.svc.Export(cmd.Context(), group)
	if err != nil {
		printResult(nil, "", err)
		return
	}

	// The bare bundle is what import reads back.
	b, _ := json.MarshalIndent(bundle, "", "  ")
	fmt.Println(string(b))
}
