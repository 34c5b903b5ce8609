package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/medelman17/suechef/internal/graph"
	"github.com/medelman17/suechef/internal/legal"
	"github.com/medelman17/suechef/internal/model"
	"github.com/medelman17/suechef/internal/params"
	"github.com/medelman17/suechef/internal/store"
)

// Tools holds the service the tool handlers call.
type Tools struct {
	Service *legal.Service
}

// --- Input types ---
//
// List-valued fields are typed any: clients send native arrays, JSON-encoded
// arrays or comma-separated strings, and params.StringList accepts all three.

type CreateEventInput struct {
	Date           string `json:"date" jsonschema:"Event date, YYYY-MM-DD"`
	Description    string `json:"description" jsonschema:"What happened"`
	Parties        any    `json:"parties,omitempty" jsonschema:"Parties involved, as a list or comma-separated string"`
	DocumentSource string `json:"document_source,omitempty" jsonschema:"Document the event comes from"`
	Excerpts       string `json:"excerpts,omitempty" jsonschema:"Quoted excerpts"`
	Tags           any    `json:"tags,omitempty" jsonschema:"Tags, as a list or comma-separated string"`
	Significance   string `json:"significance,omitempty" jsonschema:"Why the event matters"`
	GroupID        string `json:"group_id,omitempty" jsonschema:"Case or matter namespace (default: default)"`
}

type UpdateEventInput struct {
	ID             string  `json:"event_id" jsonschema:"Event id"`
	Date           *string `json:"date,omitempty" jsonschema:"New date, YYYY-MM-DD"`
	Description    *string `json:"description,omitempty" jsonschema:"New description"`
	Parties        any     `json:"parties,omitempty" jsonschema:"Replacement parties"`
	DocumentSource *string `json:"document_source,omitempty" jsonschema:"New document source"`
	Excerpts       *string `json:"excerpts,omitempty" jsonschema:"New excerpts"`
	Tags           any     `json:"tags,omitempty" jsonschema:"Replacement tags"`
	Significance   *string `json:"significance,omitempty" jsonschema:"New significance"`
}

type ListEventsInput struct {
	GroupID  string `json:"group_id,omitempty" jsonschema:"Case or matter namespace"`
	DateFrom string `json:"date_from,omitempty" jsonschema:"Earliest date, inclusive"`
	DateTo   string `json:"date_to,omitempty" jsonschema:"Latest date, inclusive"`
	Parties  any    `json:"parties,omitempty" jsonschema:"Match events naming any of these parties"`
	Tags     any    `json:"tags,omitempty" jsonschema:"Match events carrying any of these tags"`
	Limit    int    `json:"limit,omitempty" jsonschema:"Page size (default 50)"`
	Offset   int    `json:"offset,omitempty" jsonschema:"Rows to skip"`
}

type CreateSnippetInput struct {
	Citation    string `json:"citation" jsonschema:"Case citation"`
	KeyLanguage string `json:"key_language" jsonschema:"Key language quoted from the source"`
	Tags        any    `json:"tags,omitempty" jsonschema:"Tags, as a list or comma-separated string"`
	Context     string `json:"context,omitempty" jsonschema:"Surrounding context"`
	CaseType    string `json:"case_type,omitempty" jsonschema:"Area of law"`
	GroupID     string `json:"group_id,omitempty" jsonschema:"Case or matter namespace (default: default)"`
}

type UpdateSnippetInput struct {
	ID          string  `json:"snippet_id" jsonschema:"Snippet id"`
	Citation    *string `json:"citation,omitempty" jsonschema:"New citation"`
	KeyLanguage *string `json:"key_language,omitempty" jsonschema:"New key language"`
	Tags        any     `json:"tags,omitempty" jsonschema:"Replacement tags"`
	Context     *string `json:"context,omitempty" jsonschema:"New context"`
	CaseType    *string `json:"case_type,omitempty" jsonschema:"New case type"`
}

type ListSnippetsInput struct {
	GroupID  string `json:"group_id,omitempty" jsonschema:"Case or matter namespace"`
	CaseType string `json:"case_type,omitempty" jsonschema:"Exact case type"`
	Tags     any    `json:"tags,omitempty" jsonschema:"Match snippets carrying any of these tags"`
	Limit    int    `json:"limit,omitempty" jsonschema:"Page size (default 50)"`
	Offset   int    `json:"offset,omitempty" jsonschema:"Rows to skip"`
}

type IDInput struct {
	ID string `json:"id" jsonschema:"Record id"`
}

type SearchInput struct {
	Query      string `json:"query" jsonschema:"Search text"`
	SearchType string `json:"search_type,omitempty" jsonschema:"relational, vector, graph or all (default all)"`
	GroupID    string `json:"group_id,omitempty" jsonschema:"Case or matter namespace"`
	Recipe     string `json:"recipe,omitempty" jsonschema:"Graph emphasis: combined, nodes, edges or communities"`
	Combined   bool   `json:"combined,omitempty" jsonschema:"Also return one cross-backend ranking"`
}

type FullTextInput struct {
	Query      string `json:"query" jsonschema:"Search text; every term must match"`
	SearchType string `json:"search_type,omitempty" jsonschema:"events, snippets or all (default all)"`
	GroupID    string `json:"group_id,omitempty" jsonschema:"Case or matter namespace"`
}

type TemporalInput struct {
	Question    string `json:"question" jsonschema:"Question to answer"`
	TimeFocus   string `json:"time_focus,omitempty" jsonschema:"Time period to focus on"`
	EntityFocus string `json:"entity_focus,omitempty" jsonschema:"Party or topic to focus on"`
	GroupID     string `json:"group_id,omitempty" jsonschema:"Case or matter namespace"`
}

type RelatedInput struct {
	Kind string `json:"kind" jsonschema:"event or snippet"`
	ID   string `json:"id" jsonschema:"Record id"`
}

type IngestInput struct {
	Title        string `json:"title" jsonschema:"Document title"`
	Text         string `json:"document_text" jsonschema:"Full document text"`
	Date         string `json:"date,omitempty" jsonschema:"Document date, YYYY-MM-DD"`
	DocumentType string `json:"document_type,omitempty" jsonschema:"Kind of document, e.g. complaint"`
	GroupID      string `json:"group_id,omitempty" jsonschema:"Case or matter namespace"`
	Parties      any    `json:"parties,omitempty" jsonschema:"Parties the document mentions"`
	Topics       any    `json:"topics,omitempty" jsonschema:"Topics the document covers"`
}

type LinkInput struct {
	EventID          string   `json:"event_id" jsonschema:"Event id"`
	SnippetID        string   `json:"snippet_id" jsonschema:"Snippet id"`
	RelationshipType string   `json:"relationship_type" jsonschema:"How the snippet bears on the event, e.g. supports"`
	Confidence       *float64 `json:"confidence,omitempty" jsonschema:"Confidence in [0,1] (default 1.0)"`
	Notes            string   `json:"notes,omitempty" jsonschema:"Free-form notes"`
}

type ListLinksInput struct {
	EntityID string `json:"entity_id" jsonschema:"Event or snippet id"`
}

type GroupInput struct {
	GroupID string `json:"group_id,omitempty" jsonschema:"Case or matter namespace"`
}

type NoInput struct{}

// --- Handlers ---

func (t *Tools) CreateEvent(ctx context.Context, _ *mcp.CallToolRequest, in CreateEventInput) (*mcp.CallToolResult, any, error) {
	res, err := t.Service.CreateEvent(ctx, store.EventInput{
		Date:           in.Date,
		Description:    in.Description,
		Parties:        params.StringList(in.Parties),
		DocumentSource: in.DocumentSource,
		Excerpts:       in.Excerpts,
		Tags:           params.StringList(in.Tags),
		Significance:   in.Significance,
		GroupID:        in.GroupID,
	})
	return respond(res, "Event created", err)
}

func (t *Tools) GetEvent(ctx context.Context, _ *mcp.CallToolRequest, in IDInput) (*mcp.CallToolResult, any, error) {
	ev, err := t.Service.GetEvent(ctx, in.ID)
	return respond(ev, "", err)
}

func (t *Tools) ListEvents(ctx context.Context, _ *mcp.CallToolRequest, in ListEventsInput) (*mcp.CallToolResult, any, error) {
	page, err := t.Service.ListEvents(ctx, store.EventFilter{
		GroupID:  in.GroupID,
		DateFrom: in.DateFrom,
		DateTo:   in.DateTo,
		Parties:  params.StringList(in.Parties),
		Tags:     params.StringList(in.Tags),
		Limit:    in.Limit,
		Offset:   in.Offset,
	})
	return respond(page, "", err)
}

func (t *Tools) UpdateEvent(ctx context.Context, _ *mcp.CallToolRequest, in UpdateEventInput) (*mcp.CallToolResult, any, error) {
	res, err := t.Service.UpdateEvent(ctx, in.ID, store.EventPatch{
		Date:           in.Date,
		Description:    in.Description,
		Parties:        listPatch(in.Parties),
		DocumentSource: in.DocumentSource,
		Excerpts:       in.Excerpts,
		Tags:           listPatch(in.Tags),
		Significance:   in.Significance,
	})
	return respond(res, "Event updated", err)
}

func (t *Tools) DeleteEvent(ctx context.Context, _ *mcp.CallToolRequest, in IDInput) (*mcp.CallToolResult, any, error) {
	res, err := t.Service.DeleteEvent(ctx, in.ID)
	return respond(res, "Event deleted", err)
}

func (t *Tools) CreateSnippet(ctx context.Context, _ *mcp.CallToolRequest, in CreateSnippetInput) (*mcp.CallToolResult, any, error) {
	res, err := t.Service.CreateSnippet(ctx, store.SnippetInput{
		Citation:    in.Citation,
		KeyLanguage: in.KeyLanguage,
		Tags:        params.StringList(in.Tags),
		Context:     in.Context,
		CaseType:    in.CaseType,
		GroupID:     in.GroupID,
	})
	return respond(res, "Snippet created", err)
}

func (t *Tools) GetSnippet(ctx context.Context, _ *mcp.CallToolRequest, in IDInput) (*mcp.CallToolResult, any, error) {
	sn, err := t.Service.GetSnippet(ctx, in.ID)
	return respond(sn, "", err)
}

func (t *Tools) ListSnippets(ctx context.Context, _ *mcp.CallToolRequest, in ListSnippetsInput) (*mcp.CallToolResult, any, error) {
	page, err := t.Service.ListSnippets(ctx, store.SnippetFilter{
		GroupID:  in.GroupID,
		CaseType: in.CaseType,
		Tags:     params.StringList(in.Tags),
		Limit:    in.Limit,
		Offset:   in.Offset,
	})
	return respond(page, "", err)
}

func (t *Tools) UpdateSnippet(ctx context.Context, _ *mcp.CallToolRequest, in UpdateSnippetInput) (*mcp.CallToolResult, any, error) {
	res, err := t.Service.UpdateSnippet(ctx, in.ID, store.SnippetPatch{
		Citation:    in.Citation,
		KeyLanguage: in.KeyLanguage,
		Tags:        listPatch(in.Tags),
		Context:     in.Context,
		CaseType:    in.CaseType,
	})
	return respond(res, "Snippet updated", err)
}

func (t *Tools) DeleteSnippet(ctx context.Context, _ *mcp.CallToolRequest, in IDInput) (*mcp.CallToolResult, any, error) {
	res, err := t.Service.DeleteSnippet(ctx, in.ID)
	return respond(res, "Snippet deleted", err)
}

func (t *Tools) UnifiedSearch(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, any, error) {
	scope, err := legal.ParseScope(in.SearchType)
	if err != nil {
		return respond(nil, "", err)
	}
	req := legal.SearchRequest{Query: in.Query, Scope: scope, GroupID: in.GroupID, Combined: in.Combined}
	if in.Recipe != "" {
		cfg, err := graph.Recipe(in.Recipe)
		if err != nil {
			return toolError("Invalid recipe: %v", err), nil, nil
		}
		req.Graph = &cfg
	}
	res, err := t.Service.Search(ctx, req)
	return respond(res, "", err)
}

func (t *Tools) FullTextSearch(ctx context.Context, _ *mcp.CallToolRequest, in FullTextInput) (*mcp.CallToolResult, any, error) {
	res, err := t.Service.FullText(ctx, in.GroupID, in.Query, in.SearchType)
	return respond(res, "", err)
}

func (t *Tools) TemporalQuery(ctx context.Context, _ *mcp.CallToolRequest, in TemporalInput) (*mcp.CallToolResult, any, error) {
	res, err := t.Service.Timeline(ctx, legal.TemporalQuery{
		Question: in.Question, TimeFocus: in.TimeFocus, EntityFocus: in.EntityFocus, GroupID: in.GroupID,
	})
	return respond(res, "", err)
}

func (t *Tools) FindRelated(ctx context.Context, _ *mcp.CallToolRequest, in RelatedInput) (*mcp.CallToolResult, any, error) {
	res, err := t.Service.FindRelated(ctx, model.Kind(in.Kind), in.ID)
	return respond(res, "", err)
}

func (t *Tools) IngestDocument(ctx context.Context, _ *mcp.CallToolRequest, in IngestInput) (*mcp.CallToolResult, any, error) {
	var ents []graph.EntityRef
	for _, p := range params.StringList(in.Parties) {
		ents = append(ents, graph.EntityRef{Name: p, Type: graph.EntityParty})
	}
	for _, topic := range params.StringList(in.Topics) {
		ents = append(ents, graph.EntityRef{Name: topic, Type: graph.EntityTopic})
	}
	res, err := t.Service.IngestDocument(ctx, legal.DocumentInput{
		Title: in.Title, Text: in.Text, Date: in.Date, DocumentType: in.DocumentType,
		GroupID: in.GroupID, Entities: ents,
	})
	return respond(res, fmt.Sprintf("Document %q ingested", in.Title), err)
}

func (t *Tools) CreateLink(ctx context.Context, _ *mcp.CallToolRequest, in LinkInput) (*mcp.CallToolResult, any, error) {
	link, err := t.Service.CreateLink(ctx, store.LinkInput{
		EventID:          in.EventID,
		SnippetID:        in.SnippetID,
		RelationshipType: in.RelationshipType,
		Confidence:       in.Confidence,
		Notes:            in.Notes,
	})
	return respond(link, "Manual link saved: "+in.RelationshipType, err)
}

func (t *Tools) ListLinks(ctx context.Context, _ *mcp.CallToolRequest, in ListLinksInput) (*mcp.CallToolResult, any, error) {
	links, err := t.Service.ListLinks(ctx, in.EntityID)
	return respond(links, "", err)
}

func (t *Tools) DeleteLink(ctx context.Context, _ *mcp.CallToolRequest, in IDInput) (*mcp.CallToolResult, any, error) {
	err := t.Service.DeleteLink(ctx, in.ID)
	return respond(map[string]string{"id": in.ID}, "Link deleted", err)
}

func (t *Tools) Analytics(ctx context.Context, _ *mcp.CallToolRequest, in GroupInput) (*mcp.CallToolResult, any, error) {
	a, err := t.Service.Analytics(ctx, in.GroupID)
	return respond(a, "", err)
}

func (t *Tools) ListGroups(ctx context.Context, _ *mcp.CallToolRequest, _ NoInput) (*mcp.CallToolResult, any, error) {
	st, err := t.Service.Groups(ctx)
	return respond(st, "", err)
}

func (t *Tools) Status(ctx context.Context, _ *mcp.CallToolRequest, _ NoInput) (*mcp.CallToolResult, any, error) {
	return respond(t.Service.Status(ctx), "", nil)
}

// --- Helpers ---

// listPatch turns an optional list parameter into a patch field. Absent means
// unchanged; an empty value clears the list.
func listPatch(v any) *[]string {
	if v == nil {
		return nil
	}
	list := params.StringList(v)
	if list == nil {
		list = []string{}
	}
	return &list
}

// respond renders the response envelope. Error envelopes are flagged so
// clients can tell them apart without parsing.
func respond(data any, message string, err error) (*mcp.CallToolResult, any, error) {
	resp := legal.Respond(data, message, err)
	b, mErr := json.MarshalIndent(resp, "", "  ")
	if mErr != nil {
		return toolError("Failed to marshal result: %v", mErr), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(b)}},
		IsError: resp.Status == legal.StatusError,
	}, nil, nil
}

func toolError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}
