// Package graph is the temporal knowledge-graph service fed by narrative episodes.
//
// An episode names the entities it mentions. The service links the episode to
// each entity and links every pair of co-mentioned entities with a RELATES_TO
// edge whose fact is valid from the episode's reference time. Entities are
// supplied by the writer; nothing is extracted from free text.
package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"
)

// ErrClosed is returned by a service after Close.
var ErrClosed = errors.New("graph service closed")

// Entity types written by the record writer.
const (
	EntityParty = "party"
	EntityTopic = "topic"
	EntityCase  = "case"
)

// RelatesTo is the name of the edge between co-mentioned entities.
const RelatesTo = "RELATES_TO"

// EntityRef names one entity an episode mentions.
type EntityRef struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Episode is a narrative record ingested into the graph.
type Episode struct {
	Name              string      `json:"name"`
	Body              string      `json:"body"`
	SourceDescription string      `json:"source_description"`
	ReferenceTime     time.Time   `json:"reference_time"`
	GroupID           string      `json:"group_id"`
	Entities          []EntityRef `json:"entities,omitempty"`
}

// EpisodeResult reports what an ingest created.
type EpisodeResult struct {
	UUID     string `json:"uuid"`
	Entities int    `json:"entities"`
	Edges    int    `json:"edges"`
}

// SearchConfig selects which sub-searches run.
type SearchConfig struct {
	Nodes       bool `json:"nodes"`
	Edges       bool `json:"edges"`
	Episodes    bool `json:"episodes"`
	Communities bool `json:"communities"`
	Limit       int  `json:"limit"`
}

// Search recipes.
var (
	RecipeCombined    = SearchConfig{Nodes: true, Edges: true, Episodes: true, Communities: true, Limit: 20}
	RecipeNodes       = SearchConfig{Nodes: true, Limit: 20}
	RecipeEdges       = SearchConfig{Edges: true, Limit: 20}
	RecipeCommunities = SearchConfig{Communities: true, Limit: 20}
)

// Recipe returns the named search recipe.
func Recipe(name string) (SearchConfig, error) {
	switch strings.ToLower(name) {
	case "", "combined", "all":
		return RecipeCombined, nil
	case "nodes", "entities":
		return RecipeNodes, nil
	case "edges", "facts", "relationships":
		return RecipeEdges, nil
	case "communities":
		return RecipeCommunities, nil
	}
	return SearchConfig{}, fmt.Errorf("unknown search recipe %q", name)
}

// Node is an entity in the graph.
type Node struct {
	UUID     string `json:"uuid"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	GroupID  string `json:"group_id"`
	Mentions int    `json:"mentions"`
}

// Edge is a fact connecting two entities.
type Edge struct {
	UUID    string    `json:"uuid"`
	Name    string    `json:"name"`
	Source  string    `json:"source"`
	Target  string    `json:"target"`
	Fact    string    `json:"fact"`
	ValidAt time.Time `json:"valid_at"`
	GroupID string    `json:"group_id"`
}

// EpisodeHit is an episode returned by search.
type EpisodeHit struct {
	UUID              string    `json:"uuid"`
	Name              string    `json:"name"`
	Body              string    `json:"body"`
	SourceDescription string    `json:"source_description"`
	ReferenceTime     time.Time `json:"reference_time"`
	GroupID           string    `json:"group_id"`
}

// Community is a topic together with the entities that co-occur with it.
type Community struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
	GroupID string   `json:"group_id"`
}

// SearchResults holds each sub-search's results, best match first.
type SearchResults struct {
	Nodes       []Node       `json:"nodes"`
	Edges       []Edge       `json:"edges"`
	Episodes    []EpisodeHit `json:"episodes"`
	Communities []Community  `json:"communities"`
}

// Len returns the total number of results.
func (r *SearchResults) Len() int {
	return len(r.Nodes) + len(r.Edges) + len(r.Episodes) + len(r.Communities)
}

// Service is the knowledge-graph backend.
type Service interface {
	AddEpisode(ctx context.Context, ep Episode) (*EpisodeResult, error)
	Search(ctx context.Context, query string, cfg SearchConfig, groupIDs []string) (*SearchResults, error)
	BuildIndices(ctx context.Context) error
	Ping(ctx context.Context) error
	Closed() bool
	Close(ctx context.Context) error
}

func validateEpisode(ep Episode) error {
	if strings.TrimSpace(ep.Name) == "" || strings.TrimSpace(ep.Body) == "" {
		return errors.New("episode name and body are required")
	}
	if ep.GroupID == "" {
		return errors.New("episode group_id is required")
	}
	return nil
}

// queryTerms lowercases the query and splits it into distinct words.
func queryTerms(q string) []string {
	words := strings.FieldsFunc(strings.ToLower(q), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	seen := map[string]bool{}
	var out []string
	for _, w := range words {
		w = strings.Trim(w, "-")
		if len(w) < 2 || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// countHits returns how many terms occur in text.
func countHits(text string, terms []string) int {
	text = strings.ToLower(text)
	n := 0
	for _, t := range terms {
		if strings.Contains(text, t) {
			n++
		}
	}
	return n
}

// uniqueEntities drops blank and repeated references, keeping first occurrence.
func uniqueEntities(in []EntityRef) []EntityRef {
	seen := map[EntityRef]bool{}
	var out []EntityRef
	for _, e := range in {
		e.Name = strings.TrimSpace(e.Name)
		if e.Name == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}

// entityPairs returns every unordered pair of entities.
func entityPairs(in []EntityRef) [][2]EntityRef {
	var out [][2]EntityRef
	for i := 0; i < len(in); i++ {
		for j := i + 1; j < len(in); j++ {
			out = append(out, [2]EntityRef{in[i], in[j]})
		}
	}
	return out
}

func factFor(a, b EntityRef, episodeName string) string {
	return fmt.Sprintf("%s and %s are both referenced in %s", a.Name, b.Name, episodeName)
}

type scored[T any] struct {
	item T
	hits int
	at   time.Time
}

// rank orders by hits then recency and keeps at most limit items.
func rank[T any](in []scored[T], limit int) []T {
	sort.SliceStable(in, func(i, j int) bool {
		if in[i].hits != in[j].hits {
			return in[i].hits > in[j].hits
		}
		return in[i].at.After(in[j].at)
	})
	out := make([]T, 0, min(len(in), limit))
	for i := 0; i < len(in) && i < limit; i++ {
		out = append(out, in[i].item)
	}
	return out
}

func searchLimit(cfg SearchConfig) int {
	if cfg.Limit <= 0 {
		return 20
	}
	return cfg.Limit
}

// timeLayout is fixed width so stored times sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
