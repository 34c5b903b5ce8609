package cli

import (
	"github.com/spf13/cobra"

	"github.com/medelman17/suechef/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Create or remove a manual event-snippet link",
		Long:  "Link an event to a snippet. Repeating a link updates its confidence and notes. Use --rm with --id to remove one.",
		Run:   runLink,
	}

	cmd.Flags().String("event", "", "Event id")
	cmd.Flags().String("snippet", "", "Snippet id")
	cmd.Flags().StringP("rel", "r", "", "Relationship, e.g. supports, contradicts, cites")
	cmd.Flags().Float64("confidence", 1.0, "Confidence in [0,1]")
	cmd.Flags().String("notes", "", "Free-form notes")
	cmd.Flags().Bool("rm", false, "Remove the link given by --id")
	cmd.Flags().String("id", "", "Link id (with --rm)")

	linksCmd := &cobra.Command{
		Use:   "links [id]",
		Short: "List links touching an event or snippet",
		Args:  cobra.ExactArgs(1),
		Run:   runLinks,
	}

	RootCmd.AddCommand(cmd, linksCmd)
}

func runLink(cmd *cobra.Command, args []string) {
	eventID, _ := cmd.Flags().GetString("event")
	snippetID, _ := cmd.Flags().GetString("snippet")
	rel, _ := cmd.Flags().GetString("rel")
	confidence, _ := cmd.Flags().GetFloat64("confidence")
	notes, _ := cmd.Flags().GetString("notes")
	rm, _ := cmd.Flags().GetBool("rm")
	id, _ := cmd.Flags().GetString("id")

	a := mustOpenApp()
	defer a.Close()

	if rm {
		err := a.svc.DeleteLink(cmd.Context(), id)
		printResult(map[string]string{"id": id}, "Link deleted", err)
		return
	}

	link, err := a.svc.CreateLink(cmd.Context(), store.LinkInput{
		EventID:          eventID,
		SnippetID:        snippetID,
		RelationshipType: rel,
		Confidence:       &confidence,
		Notes:            notes,
	})
	printResult(link, "Manual link saved: "+rel, err)
}

func runLinks(cmd *cobra.Command, args []string) {
	a := mustOpenApp()
	defer a.Close()

	links, err := a.svc.ListLinks(cmd.Context(), args[0])
	printResult(links, "", err)
}
