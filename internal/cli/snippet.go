package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/medelman17/suechef/internal/store"
)

func init() {
	snippetCmd := &cobra.Command{
		Use:   "snippet",
		Short: "Manage case-law snippets",
	}

	addCmd := &cobra.Command{
		Use:   "add [key language]",
		Short: "Record a snippet",
		Long:  "Record a research snippet. The key language can be a positional arg or piped via stdin.",
		Run:   runSnippetAdd,
	}
	addCmd.Flags().String("citation", "", "Case citation (required)")
	addCmd.Flags().StringP("tags", "t", "", "Comma-separated tags")
	addCmd.Flags().String("context", "", "Surrounding context")
	addCmd.Flags().String("case-type", "", "Area of law")
	addCmd.Flags().StringP("group", "g", "", "Group (default: default)")
	addCmd.MarkFlagRequired("citation")

	getCmd := &cobra.Command{
		Use:   "get [id]",
		Short: "Show a snippet",
		Args:  cobra.ExactArgs(1),
		Run:   runSnippetGet,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List snippets",
		Run:   runSnippetList,
	}
	listCmd.Flags().StringP("group", "g", "", "Filter by group")
	listCmd.Flags().String("case-type", "", "Filter by case type")
	listCmd.Flags().StringP("tags", "t", "", "Match any of these tags (comma-separated)")
	listCmd.Flags().IntP("limit", "l", 50, "Max results")
	listCmd.Flags().Int("offset", 0, "Rows to skip")

	updateCmd := &cobra.Command{
		Use:   "update [id]",
		Short: "Change fields of a snippet",
		Args:  cobra.ExactArgs(1),
		Run:   runSnippetUpdate,
	}
	updateCmd.Flags().String("citation", "", "New citation")
	updateCmd.Flags().String("key-language", "", "New key language")
	updateCmd.Flags().StringP("tags", "t", "", "Replacement tags")
	updateCmd.Flags().String("context", "", "New context")
	updateCmd.Flags().String("case-type", "", "New case type")

	rmCmd := &cobra.Command{
		Use:   "rm [id]",
		Short: "Delete a snippet",
		Args:  cobra.ExactArgs(1),
		Run:   runSnippetRm,
	}

	snippetCmd.AddCommand(addCmd, getCmd, listCmd, updateCmd, rmCmd)
	RootCmd.AddCommand(snippetCmd)
}

func runSnippetAdd(cmd *cobra.Command, args []string) {
	citation, _ := cmd.Flags().GetString("citation")
	ctxText, _ := cmd.Flags().GetString("context")
	caseType, _ := cmd.Flags().GetString("case-type")
	group, _ := cmd.Flags().GetString("group")

	keyLanguage := textArg(args)
	if keyLanguage == "" {
		exitErr("snippet add", fmt.Errorf("key language is required (positional arg or stdin)"))
	}

	a := mustOpenApp()
	defer a.Close()

	res, err := a.svc.CreateSnippet(cmd.Context(), store.SnippetInput{
		Citation:    citation,
		KeyLanguage: keyLanguage,
		Tags:        csvFlag(cmd, "tags"),
		Context:     ctxText,
		CaseType:    caseType,
		GroupID:     group,
	})
	printResult(res, "Snippet created", err)
}

func runSnippetGet(cmd *cobra.Command, args []string) {
	a := mustOpenApp()
	defer a.Close()

	sn, err := a.svc.GetSnippet(cmd.Context(), args[0])
	printResult(sn, "", err)
}

func runSnippetList(cmd *cobra.Command, args []string) {
	group, _ := cmd.Flags().GetString("group")
	caseType, _ := cmd.Flags().GetString("case-type")
	limit, _ := cmd.Flags().GetInt("limit")
	offset, _ := cmd.Flags().GetInt("offset")

	a := mustOpenApp()
	defer a.Close()

	page, err := a.svc.ListSnippets(cmd.Context(), store.SnippetFilter{
		GroupID:  group,
		CaseType: caseType,
		Tags:     csvFlag(cmd, "tags"),
		Limit:    limit,
		Offset:   offset,
	})
	printResult(page, "", err)
}

func runSnippetUpdate(cmd *cobra.Command, args []string) {
	a := mustOpenApp()
	defer a.Close()

	res, err := a.svc.UpdateSnippet(cmd.Context(), args[0], store.SnippetPatch{
		Citation:    optString(cmd, "citation"),
		KeyLanguage: optString(cmd, "key-language"),
		Tags:        optList(cmd, "tags"),
		Context:     optString(cmd, "context"),
		CaseType:    optString(cmd, "case-type"),
	})
	printResult(res, "Snippet updated", err)
}

func runSnippetRm(cmd *cobra.Command, args []string) {
	a := mustOpenApp()
	defer a.Close()

	res, err := a.svc.DeleteSnippet(cmd.Context(), args[0])
	printResult(res, "Snippet deleted", err)
}
