package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/medelman17/suechef/internal/store"
)

func init() {
	eventCmd := &cobra.Command{
		Use:   "event",
		Short: "Manage timeline events",
	}

	addCmd := &cobra.Command{
		Use:   "add [description]",
		Short: "Record an event",
		Long:  "Record a timeline event. The description can be a positional arg or piped via stdin.",
		Run:   runEventAdd,
	}
	addCmd.Flags().String("date", "", "Event date, YYYY-MM-DD (required)")
	addCmd.Flags().StringP("parties", "p", "", "Comma-separated parties")
	addCmd.Flags().StringP("tags", "t", "", "Comma-separated tags")
	addCmd.Flags().String("source", "", "Document the event comes from")
	addCmd.Flags().String("excerpts", "", "Quoted excerpts")
	addCmd.Flags().String("significance", "", "Why the event matters")
	addCmd.Flags().StringP("group", "g", "", "Group (default: default)")
	addCmd.MarkFlagRequired("date")

	getCmd := &cobra.Command{
		Use:   "get [id]",
		Short: "Show an event",
		Args:  cobra.ExactArgs(1),
		Run:   runEventGet,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List events",
		Run:   runEventList,
	}
	listCmd.Flags().StringP("group", "g", "", "Filter by group")
	listCmd.Flags().String("from", "", "Earliest date, inclusive")
	listCmd.Flags().String("to", "", "Latest date, inclusive")
	listCmd.Flags().StringP("parties", "p", "", "Match any of these parties (comma-separated)")
	listCmd.Flags().StringP("tags", "t", "", "Match any of these tags (comma-separated)")
	listCmd.Flags().IntP("limit", "l", 50, "Max results")
	listCmd.Flags().Int("offset", 0, "Rows to skip")

	updateCmd := &cobra.Command{
		Use:   "update [id]",
		Short: "Change fields of an event",
		Long:  "Change fields of an event. Only flags you pass are changed; an empty list flag clears the list.",
		Args:  cobra.ExactArgs(1),
		Run:   runEventUpdate,
	}
	updateCmd.Flags().String("date", "", "New date")
	updateCmd.Flags().String("description", "", "New description")
	updateCmd.Flags().StringP("parties", "p", "", "Replacement parties")
	updateCmd.Flags().StringP("tags", "t", "", "Replacement tags")
	updateCmd.Flags().String("source", "", "New document source")
	updateCmd.Flags().String("excerpts", "", "New excerpts")
	updateCmd.Flags().String("significance", "", "New significance")

	rmCmd := &cobra.Command{
		Use:   "rm [id]",
		Short: "Delete an event",
		Long:  "Delete an event from the relational and vector stores. Knowledge-graph history is kept.",
		Args:  cobra.ExactArgs(1),
		Run:   runEventRm,
	}

	eventCmd.AddCommand(addCmd, getCmd, listCmd, updateCmd, rmCmd)
	RootCmd.AddCommand(eventCmd)
}

func runEventAdd(cmd *cobra.Command, args []string) {
	date, _ := cmd.Flags().GetString("date")
	source, _ := cmd.Flags().GetString("source")
	excerpts, _ := cmd.Flags().GetString("excerpts")
	significance, _ := cmd.Flags().GetString("significance")
	group, _ := cmd.Flags().GetString("group")

	description := textArg(args)
	if description == "" {
		exitErr("event add", fmt.Errorf("description is required (positional arg or stdin)"))
	}

	a := mustOpenApp()
	defer a.Close()

	res, err := a.svc.CreateEvent(cmd.Context(), store.EventInput{
		Date:           date,
		Description:    description,
		Parties:        csvFlag(cmd, "parties"),
		DocumentSource: source,
		Excerpts:       excerpts,
		Tags:           csvFlag(cmd, "tags"),
		Significance:   significance,
		GroupID:        group,
	})
	printResult(res, "Event created", err)
}

func runEventGet(cmd *cobra.Command, args []string) {
	a := mustOpenApp()
	defer a.Close()

	ev, err := a.svc.GetEvent(cmd.Context(), args[0])
	printResult(ev, "", err)
}

func runEventList(cmd *cobra.Command, args []string) {
	group, _ := cmd.Flags().GetString("group")
	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")
	limit, _ := cmd.Flags().GetInt("limit")
	offset, _ := cmd.Flags().GetInt("offset")

	a := mustOpenApp()
	defer a.Close()

	page, err := a.svc.ListEvents(cmd.Context(), store.EventFilter{
		GroupID:  group,
		DateFrom: from,
		DateTo:   to,
		Parties:  csvFlag(cmd, "parties"),
		Tags:     csvFlag(cmd, "tags"),
		Limit:    limit,
		Offset:   offset,
	})
	printResult(page, "", err)
}

func runEventUpdate(cmd *cobra.Command, args []string) {
	a := mustOpenApp()
	defer a.Close()

	res, err := a.svc.UpdateEvent(cmd.Context(), args[0], store.EventPatch{
		Date:           optString(cmd, "date"),
		Description:    optString(cmd, "description"),
		Parties:        optList(cmd, "parties"),
		DocumentSource: optString(cmd, "source"),
		Excerpts:       optString(cmd, "excerpts"),
		Tags:           optList(cmd, "tags"),
		Significance:   optString(cmd, "significance"),
	})
	printResult(res, "Event updated", err)
}

func runEventRm(cmd *cobra.Command, args []string) {
	a := mustOpenApp()
	defer a.Close()

	res, err := a.svc.DeleteEvent(cmd.Context(), args[0])
	printResult(res, "Event deleted", err)
}
