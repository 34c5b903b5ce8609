package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/medelman17/suechef/internal/graph"
	"github.com/medelman17/suechef/internal/legal"
	"github.com/medelman17/suechef/internal/model"
)

func init() {
	searchCmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search every store at once",
		Long:  "Search the relational, vector and knowledge-graph stores in parallel. A failing vector or graph store is reported, not fatal.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runSearch,
	}
	searchCmd.Flags().StringP("group", "g", "", "Group (default: default)")
	searchCmd.Flags().StringP("scope", "s", "all", "relational, vector, graph or all")
	searchCmd.Flags().String("recipe", "", "Graph emphasis: combined, nodes, edges or communities")
	searchCmd.Flags().Bool("combined", false, "Also print one cross-store ranking")

	fulltextCmd := &cobra.Command{
		Use:   "fulltext [query]",
		Short: "Ranked keyword search with highlighted matches",
		Args:  cobra.MinimumNArgs(1),
		Run:   runFullText,
	}
	fulltextCmd.Flags().StringP("group", "g", "", "Group (default: default)")
	fulltextCmd.Flags().String("type", "all", "events, snippets or all")

	timelineCmd := &cobra.Command{
		Use:   "timeline [question]",
		Short: "How knowledge about a matter evolved, oldest first",
		Args:  cobra.MinimumNArgs(1),
		Run:   runTimeline,
	}
	timelineCmd.Flags().StringP("group", "g", "", "Group (default: default)")
	timelineCmd.Flags().String("time", "", "Time period to focus on")
	timelineCmd.Flags().String("entity", "", "Party or topic to focus on")

	relatedCmd := &cobra.Command{
		Use:   "related [event|snippet] [id]",
		Short: "Find entities related to an event or snippet",
		Long:  "Find related entities by shared parties, shared tags, semantic similarity and date proximity.",
		Args:  cobra.ExactArgs(2),
		Run:   runRelated,
	}

	RootCmd.AddCommand(searchCmd, fulltextCmd, timelineCmd, relatedCmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	group, _ := cmd.Flags().GetString("group")
	scopeStr, _ := cmd.Flags().GetString("scope")
	recipe, _ := cmd.Flags().GetString("recipe")
	combined, _ := cmd.Flags().GetBool("combined")

	scope, err := legal.ParseScope(scopeStr)
	if err != nil {
		printResult(nil, "", err)
		return
	}
	req := legal.SearchRequest{
		Query:    strings.Join(args, " "),
		Scope:    scope,
		GroupID:  group,
		Combined: combined,
	}
	if recipe != "" {
		cfg, err := graph.Recipe(recipe)
		if err != nil {
			exitErr("search", fmt.Errorf("recipe: %w", err))
		}
		req.Graph = &cfg
	}

	a := mustOpenApp()
	defer a.Close()

	res, err := a.svc.Search(cmd.Context(), req)
	printResult(res, "", err)
}

func runFullText(cmd *cobra.Command, args []string) {
	group, _ := cmd.Flags().GetString("group")
	target, _ := cmd.Flags().GetString("type")

	a := mustOpenApp()
	defer a.Close()

	res, err := a.svc.FullText(cmd.Context(), group, strings.Join(args, " "), target)
	printResult(res, "", err)
}

func runTimeline(cmd *cobra.Command, args []string) {
	group, _ := cmd.Flags().GetString("group")
	timeFocus, _ := cmd.Flags().GetString("time")
	entity, _ := cmd.Flags().GetString("entity")

	a := mustOpenApp()
	defer a.Close()

	res, err := a.svc.Timeline(cmd.Context(), legal.TemporalQuery{
		Question:    strings.Join(args, " "),
		TimeFocus:   timeFocus,
		EntityFocus: entity,
		GroupID:     group,
	})
	printResult(res, "", err)
}

func runRelated(cmd *cobra.Command, args []string) {
	a := mustOpenApp()
	defer a.Close()

	res, err := a.svc.FindRelated(cmd.Context(), model.Kind(args[0]), args[1])
	printResult(res, "", err)
}
