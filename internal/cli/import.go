package cli

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/medelman17/suechef/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import a group from JSON",
		Long:  "Import a bundle produced by export, from a file or stdin. Records get fresh ids and links are remapped onto them.",
		Args:  cobra.MaximumNArgs(1),
		Run:   runImport,
	}

	cmd.Flags().StringP("group", "g", "", "Import into this group instead of the bundle's")

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	group, _ := cmd.Flags().GetString("group")

	var r io.Reader = os.Stdin
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			exitErr("open bundle", err)
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(r)
	if err != nil {
		exitErr("read bundle", err)
	}

	var bundle store.Bundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		exitErr("parse json", err)
	}

	a := mustOpenApp()
	defer a.Close()

	res, err := a.svc.Import(cmd.Context(), &bundle, group)
	printResult(res, "Import finished", err)
}
