// Package server exposes the legal research service as MCP tools.
package server

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/medelman17/suechef/internal/legal"
)

// New creates an MCP server with every tool registered.
func New(svc *legal.Service, version string) *mcp.Server {
	t := &Tools{Service: svc}

	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "suechef",
		Version: version,
	}, nil)

	// Events
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "create_event",
		Description: "Record a timeline event in every store and return related entities",
	}, t.CreateEvent)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_event",
		Description: "Get one timeline event by id",
	}, t.GetEvent)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_events",
		Description: "List timeline events with date, party and tag filters",
	}, t.ListEvents)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "update_event",
		Description: "Update fields of a timeline event; omitted fields are unchanged",
	}, t.UpdateEvent)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "delete_event",
		Description: "Delete a timeline event; knowledge-graph history is kept",
	}, t.DeleteEvent)

	// Snippets
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "create_snippet",
		Description: "Record a legal research snippet in every store and return related entities",
	}, t.CreateSnippet)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_snippet",
		Description: "Get one research snippet by id",
	}, t.GetSnippet)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_snippets",
		Description: "List research snippets with case type and tag filters",
	}, t.ListSnippets)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "update_snippet",
		Description: "Update fields of a research snippet; omitted fields are unchanged",
	}, t.UpdateSnippet)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "delete_snippet",
		Description: "Delete a research snippet",
	}, t.DeleteSnippet)

	// Retrieval
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "unified_legal_search",
		Description: "Search the relational, vector and knowledge-graph stores at once (search_type: relational, vector, graph, all)",
	}, t.UnifiedSearch)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "full_text_search",
		Description: "Ranked full-text search over events and snippets with highlighted matches",
	}, t.FullTextSearch)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "temporal_legal_query",
		Description: "Ask how knowledge about a matter evolved over time; results are oldest first",
	}, t.TemporalQuery)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "find_related",
		Description: "Find entities related to an event or snippet by parties, tags, meaning and date",
	}, t.FindRelated)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "ingest_legal_document",
		Description: "Feed a whole document into the knowledge graph",
	}, t.IngestDocument)

	// Links and reporting
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "create_manual_link",
		Description: "Link an event to a snippet; repeating a link updates its confidence and notes",
	}, t.CreateLink)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_links",
		Description: "List manual links touching an event or snippet",
	}, t.ListLinks)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "delete_link",
		Description: "Delete a manual link",
	}, t.DeleteLink)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_legal_analytics",
		Description: "Counts, top parties, tag trends and link patterns for a group",
	}, t.Analytics)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_groups",
		Description: "List groups with their event, snippet and link counts",
	}, t.ListGroups)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_system_status",
		Description: "Health of the relational store, vector store and knowledge graph",
	}, t.Status)

	return srv
}
