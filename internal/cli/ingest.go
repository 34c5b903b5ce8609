package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/medelman17/suechef/internal/graph"
	"github.com/medelman17/suechef/internal/legal"
)

func init() {
	cmd := &cobra.Command{
		Use:   "ingest [file]",
		Short: "Feed a whole document into the knowledge graph",
		Long:  "Add a document to the knowledge graph only. Reads the file argument or stdin.",
		Args:  cobra.MaximumNArgs(1),
		Run:   runIngest,
	}

	cmd.Flags().String("title", "", "Document title (default: file name)")
	cmd.Flags().String("date", "", "Document date, YYYY-MM-DD")
	cmd.Flags().String("type", "", "Kind of document, e.g. complaint")
	cmd.Flags().StringP("parties", "p", "", "Comma-separated parties the document mentions")
	cmd.Flags().String("topics", "", "Comma-separated topics")
	cmd.Flags().StringP("group", "g", "", "Group (default: default)")

	RootCmd.AddCommand(cmd)
}

func runIngest(cmd *cobra.Command, args []string) {
	title, _ := cmd.Flags().GetString("title")
	date, _ := cmd.Flags().GetString("date")
	docType, _ := cmd.Flags().GetString("type")
	group, _ := cmd.Flags().GetString("group")

	var text string
	if len(args) == 1 {
		b, err := os.ReadFile(args[0])
		if err != nil {
			exitErr("read document", err)
		}
		text = strings.TrimSpace(string(b))
		if title == "" {
			title = filepath.Base(args[0])
		}
	} else {
		text = textArg(nil)
	}

	var ents []graph.EntityRef
	for _, p := range csvFlag(cmd, "parties") {
		ents = append(ents, graph.EntityRef{Name: p, Type: graph.EntityParty})
	}
	for _, t := range csvFlag(cmd, "topics") {
		ents = append(ents, graph.EntityRef{Name: t, Type: graph.EntityTopic})
	}

	a := mustOpenApp()
	defer a.Close()

	res, err := a.svc.IngestDocument(cmd.Context(), legal.DocumentInput{
		Title:        title,
		Text:         text,
		Date:         date,
		DocumentType: docType,
		GroupID:      group,
		Entities:     ents,
	})
	printResult(res, fmt.Sprintf("Document %q ingested", title), err)
}
