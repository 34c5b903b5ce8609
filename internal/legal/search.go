package legal

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/medelman17/suechef/internal/backend"
	"github.com/medelman17/suechef/internal/graph"
	"github.com/medelman17/suechef/internal/model"
	"github.com/medelman17/suechef/internal/store"
)

// Scope selects which backends a search consults.
type Scope string

const (
	ScopeRelational Scope = "relational"
	ScopeVector     Scope = "vector"
	ScopeGraph      Scope = "graph"
	ScopeAll        Scope = "all"
)

// ParseScope accepts the scope names and their common aliases.
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all", "hybrid":
		return ScopeAll, nil
	case "relational", "postgres", "sql", "fulltext":
		return ScopeRelational, nil
	case "vector", "semantic", "qdrant":
		return ScopeVector, nil
	case "graph", "knowledge_graph", "graphiti":
		return ScopeGraph, nil
	}
	return "", validation("search", "unknown search scope %q", s)
}

func (s Scope) includes(b Scope) bool { return s == ScopeAll || s == b }

func (s Scope) valid() bool {
	switch s {
	case ScopeAll, ScopeRelational, ScopeVector, ScopeGraph:
		return true
	}
	return false
}

// Page sizes for each search path.
const (
	combinedPageSize = 10
	fullTextPageSize = 20
	vectorTopK       = 10
	timelineLimit    = 30
)

// SearchRequest is one hybrid search.
type SearchRequest struct {
	Query    string
	Scope    Scope
	GroupID  string
	Graph    *graph.SearchConfig // nil means the combined recipe
	Combined bool
}

// RelationalResults are full-text matches. Rank is backend-local.
type RelationalResults struct {
	Events   []store.EventHit   `json:"events"`
	Snippets []store.SnippetHit `json:"snippets"`
	Error    string             `json:"error,omitempty"`
}

// VectorHit is a nearest-neighbor match with its payload.
type VectorHit struct {
	ID      string         `json:"id"`
	Kind    model.Kind     `json:"kind"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// VectorResults are semantic matches, best first.
type VectorResults struct {
	Events   []VectorHit `json:"events"`
	Snippets []VectorHit `json:"snippets"`
	Error    string      `json:"error,omitempty"`
}

// GraphResults are knowledge-graph matches.
type GraphResults struct {
	graph.SearchResults
	Error string `json:"error,omitempty"`
}

// CombinedHit places one result on a cross-backend list. Relevance is set only
// when comparable across backends; relational hits carry LocalRank instead.
type CombinedHit struct {
	Backend   Scope    `json:"backend"`
	Kind      string   `json:"kind"`
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Relevance *float64 `json:"relevance,omitempty"`
	LocalRank *float64 `json:"local_rank,omitempty"`
}

// SearchResponse holds one section per consulted backend.
type SearchResponse struct {
	Query      string             `json:"query"`
	Scope      Scope              `json:"scope"`
	GroupID    string             `json:"group_id"`
	Relational *RelationalResults `json:"relational,omitempty"`
	Vector     *VectorResults     `json:"vector,omitempty"`
	Graph      *GraphResults      `json:"graph,omitempty"`
	Combined   []CombinedHit      `json:"combined,omitempty"`
}

// Fuser runs searches against every requested backend concurrently.
type Fuser struct {
	m   *backend.Manager
	log *zap.Logger
}

// NewFuser returns a fuser over the manager's backends.
func NewFuser(m *backend.Manager, log *zap.Logger) *Fuser {
	return &Fuser{m: m, log: log.Named("search")}
}

// Search consults the backends named by req.Scope. Vector and graph failures
// are reported inside their sections; a relational failure fails the call.
func (f *Fuser) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, validation("search", "query is required")
	}
	if req.Scope == "" {
		req.Scope = ScopeAll
	}
	if !req.Scope.valid() {
		return nil, validation("search", "unknown search scope %q", req.Scope)
	}
	group := groupOrDefault(req.GroupID)
	resp := &SearchResponse{Query: req.Query, Scope: req.Scope, GroupID: group}

	var g errgroup.Group
	g.SetLimit(3)
	var relErr error

	if req.Scope.includes(ScopeRelational) {
		g.Go(func() error {
			resp.Relational, relErr = f.relational(ctx, group, req.Query, "all", combinedPageSize, false)
			return nil
		})
	}
	if req.Scope.includes(ScopeVector) {
		g.Go(func() error {
			resp.Vector = f.vector(ctx, group, req.Query)
			return nil
		})
	}
	if req.Scope.includes(ScopeGraph) {
		cfg := graph.RecipeCombined
		if req.Graph != nil {
			cfg = *req.Graph
		}
		g.Go(func() error {
			resp.Graph = f.graph(ctx, group, req.Query, cfg)
			return nil
		})
	}
	g.Wait()

	if relErr != nil {
		return nil, classify("search", RetrievalError, relErr)
	}
	if req.Combined {
		resp.Combined = combine(resp)
	}
	return resp, nil
}

// FullText is the dedicated relational search. target is events, snippets or all.
func (f *Fuser) FullText(ctx context.Context, groupID, query, target string) (*RelationalResults, error) {
	if strings.TrimSpace(query) == "" {
		return nil, validation("full-text search", "query is required")
	}
	switch target {
	case "":
		target = "all"
	case "all", "events", "snippets":
	default:
		return nil, validation("full-text search", "unknown target %q, want events, snippets or all", target)
	}
	res, err := f.relational(ctx, groupOrDefault(groupID), query, target, fullTextPageSize, true)
	if err != nil {
		return nil, classify("full-text search", RetrievalError, err)
	}
	return res, nil
}

func (f *Fuser) relational(ctx context.Context, group, query, target string, limit int, highlight bool) (*RelationalResults, error) {
	rel := f.m.Relational()
	p := store.SearchParams{GroupID: group, Query: query, Limit: limit, Highlight: highlight}
	res := &RelationalResults{Events: []store.EventHit{}, Snippets: []store.SnippetHit{}}

	cctx, cancel := f.m.CallContext(ctx)
	defer cancel()
	if target != "snippets" {
		hits, err := rel.SearchEvents(cctx, p)
		if err != nil {
			return nil, err
		}
		res.Events = hits
	}
	if target != "events" {
		hits, err := rel.SearchSnippets(cctx, p)
		if err != nil {
			return nil, err
		}
		res.Snippets = hits
	}
	return res, nil
}

func (f *Fuser) vector(ctx context.Context, group, query string) *VectorResults {
	res := &VectorResults{Events: []VectorHit{}, Snippets: []VectorHit{}}

	cctx, cancel := f.m.CallContext(ctx)
	defer cancel()
	vec, err := f.m.Embedder().Embed(cctx, query)
	if err != nil {
		res.Error = "embed query: " + err.Error()
		f.log.Warn("vector search skipped", zap.Error(err))
		return res
	}

	for _, kind := range []model.Kind{model.KindEvent, model.KindSnippet} {
		hits, err := f.m.Vectors().Search(cctx, f.m.CollectionFor(kind), vec, vectorTopK, map[string]any{"group_id": group})
		if err != nil {
			res.Error = fmt.Sprintf("search %s vectors: %v", kind, err)
			f.log.Warn("vector search failed", zap.String("kind", string(kind)), zap.Error(err))
			continue
		}
		out := make([]VectorHit, 0, len(hits))
		for _, h := range hits {
			out = append(out, VectorHit{ID: h.ID, Kind: kind, Score: h.Score, Payload: h.Payload})
		}
		if kind == model.KindEvent {
			res.Events = out
		} else {
			res.Snippets = out
		}
	}
	return res
}

func (f *Fuser) graph(ctx context.Context, group, query string, cfg graph.SearchConfig) *GraphResults {
	cctx, cancel := f.m.CallContext(ctx)
	defer cancel()
	out, err := f.m.Graph().Search(cctx, query, cfg, []string{group})
	if err != nil {
		f.log.Warn("graph search failed", zap.Error(err))
		return &GraphResults{SearchResults: emptyGraphResults(), Error: err.Error()}
	}
	return &GraphResults{SearchResults: *out}
}

func emptyGraphResults() graph.SearchResults {
	return graph.SearchResults{
		Nodes:       []graph.Node{},
		Edges:       []graph.Edge{},
		Episodes:    []graph.EpisodeHit{},
		Communities: []graph.Community{},
	}
}

// combine builds the cross-backend list: comparable hits by relevance, then
// relational hits in their own rank order.
func combine(resp *SearchResponse) []CombinedHit {
	comparable := []CombinedHit{}
	if v := resp.Vector; v != nil {
		for _, h := range append(append([]VectorHit{}, v.Events...), v.Snippets...) {
			comparable = append(comparable, CombinedHit{
				Backend:   ScopeVector,
				Kind:      string(h.Kind),
				ID:        h.ID,
				Title:     payloadTitle(h),
				Relevance: ptr(clamp01(h.Score)),
			})
		}
	}
	if g := resp.Graph; g != nil {
		for i, ep := range g.Episodes {
			comparable = append(comparable, graphHit("episode", ep.UUID, ep.Name, i))
		}
		for i, n := range g.Nodes {
			comparable = append(comparable, graphHit("entity", n.UUID, n.Name, i))
		}
		for i, e := range g.Edges {
			comparable = append(comparable, graphHit("fact", e.UUID, e.Fact, i))
		}
		for i, c := range g.Communities {
			comparable = append(comparable, graphHit("community", c.Name, c.Name, i))
		}
	}
	sort.SliceStable(comparable, func(i, j int) bool {
		return *comparable[i].Relevance > *comparable[j].Relevance
	})

	local := []CombinedHit{}
	if r := resp.Relational; r != nil {
		for _, h := range r.Events {
			local = append(local, CombinedHit{Backend: ScopeRelational, Kind: string(model.KindEvent), ID: h.ID, Title: h.Title(), LocalRank: ptr(h.Rank)})
		}
		for _, h := range r.Snippets {
			local = append(local, CombinedHit{Backend: ScopeRelational, Kind: string(model.KindSnippet), ID: h.ID, Title: h.Title(), LocalRank: ptr(h.Rank)})
		}
		sort.SliceStable(local, func(i, j int) bool {
			return *local[i].LocalRank > *local[j].LocalRank
		})
	}
	return append(comparable, local...)
}

func graphHit(kind, id, title string, pos int) CombinedHit {
	return CombinedHit{Backend: ScopeGraph, Kind: kind, ID: id, Title: title, Relevance: ptr(1 / float64(pos+1))}
}

func payloadTitle(h VectorHit) string {
	if h.Kind == model.KindSnippet {
		s, _ := h.Payload["citation"].(string)
		return s
	}
	date, _ := h.Payload["date"].(string)
	desc, _ := h.Payload["description"].(string)
	return date + ": " + clip(desc, 80)
}

func clamp01(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	return math.Max(0, math.Min(1, x))
}

func ptr[T any](v T) *T { return &v }

func groupOrDefault(g string) string {
	if g = strings.TrimSpace(g); g == "" {
		return model.DefaultGroup
	}
	return g
}

// TemporalQuery asks how knowledge about a matter evolved over time.
type TemporalQuery struct {
	Question    string `json:"question"`
	TimeFocus   string `json:"time_focus,omitempty"`
	EntityFocus string `json:"entity_focus,omitempty"`
	GroupID     string `json:"group_id"`
}

// TimelineEntry is one dated graph result.
type TimelineEntry struct {
	Kind      string     `json:"kind"`
	Content   string     `json:"content"`
	Source    string     `json:"source,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Relevance float64    `json:"relevance"`
}

// Timeline is the answer to a TemporalQuery, oldest first.
type Timeline struct {
	TemporalQuery
	Results []TimelineEntry `json:"results"`
	Total   int             `json:"total_results"`
}

// Timeline searches the graph for the question and orders the matches by
// reference time. Undated matches come last.
func (f *Fuser) Timeline(ctx context.Context, q TemporalQuery) (*Timeline, error) {
	if strings.TrimSpace(q.Question) == "" {
		return nil, validation("timeline", "question is required")
	}
	q.GroupID = groupOrDefault(q.GroupID)
	full := q.Question
	if q.TimeFocus != "" {
		full += " " + q.TimeFocus
	}
	if q.EntityFocus != "" {
		full += " " + q.EntityFocus
	}

	cfg := graph.SearchConfig{Nodes: true, Edges: true, Episodes: true, Limit: timelineLimit}
	cctx, cancel := f.m.CallContext(ctx)
	defer cancel()
	res, err := f.m.Graph().Search(cctx, full, cfg, []string{q.GroupID})
	if err != nil {
		return nil, classify("timeline", RetrievalError, err)
	}

	entries := []TimelineEntry{}
	for i, ep := range res.Episodes {
		entries = append(entries, TimelineEntry{
			Kind: "episode", Content: ep.Body, Source: ep.SourceDescription,
			Timestamp: timestamp(ep.ReferenceTime), Relevance: 1 / float64(i+1),
		})
	}
	for i, e := range res.Edges {
		entries = append(entries, TimelineEntry{
			Kind: "fact", Content: e.Fact, Timestamp: timestamp(e.ValidAt), Relevance: 1 / float64(i+1),
		})
	}
	for i, n := range res.Nodes {
		entries = append(entries, TimelineEntry{
			Kind: "entity", Content: n.Name, Source: n.Type, Relevance: 1 / float64(i+1),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].Timestamp, entries[j].Timestamp
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.Before(*b)
	})
	if len(entries) > timelineLimit {
		entries = entries[:timelineLimit]
	}
	return &Timeline{TemporalQuery: q, Results: entries, Total: len(entries)}, nil
}

func timestamp(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
