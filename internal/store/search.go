package store

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/medelman17/suechef/internal/model"
)

// SearchParams holds parameters for a full-text search.
type SearchParams struct {
	GroupID   string
	Query     string
	Limit     int
	Highlight bool
}

// EventHit is an event matched by full-text search. Rank is higher-is-better
// and only comparable with other relational hits.
type EventHit struct {
	model.Event
	Rank     float64 `json:"rank"`
	Headline string  `json:"headline,omitempty"`
}

// SnippetHit is a snippet matched by full-text search.
type SnippetHit struct {
	model.Snippet
	Rank     float64 `json:"rank"`
	Headline string  `json:"headline,omitempty"`
}

// matchQuery turns free text into an FTS5 query where every term must match.
func matchQuery(q string) string {
	terms := strings.FieldsFunc(q, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '\''
	})
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.Trim(t, "-'")
		if t == "" {
			continue
		}
		quoted = append(quoted, `"`+strings.ReplaceAll(t, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}

// SearchEvents ranks events in a group against the query.
func (s *SQLiteStore) SearchEvents(ctx context.Context, p SearchParams) ([]EventHit, error) {
	match := matchQuery(p.Query)
	hits := []EventHit{}
	if match == "" {
		return hits, nil
	}

	headline := `''`
	if p.Highlight {
		headline = `snippet(events_fts, -1, '<mark>', '</mark>', '...', 24)`
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+`, -bm25(events_fts) AS score, `+headline+`
		 FROM events_fts JOIN events e ON e.rowid = events_fts.rowid
		 WHERE events_fts MATCH ? AND e.group_id = ?
		 ORDER BY score DESC LIMIT ?`,
		match, normalizeGroup(p.GroupID), pageLimit(p.Limit))
	if err != nil {
		return nil, fmt.Errorf("search events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var h EventHit
		e, err := scanEvent(rows, &h.Rank, &h.Headline)
		if err != nil {
			return nil, err
		}
		h.Event = e
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// SearchSnippets ranks snippets in a group against the query.
func (s *SQLiteStore) SearchSnippets(ctx context.Context, p SearchParams) ([]SnippetHit, error) {
	match := matchQuery(p.Query)
	hits := []SnippetHit{}
	if match == "" {
		return hits, nil
	}

	headline := `''`
	if p.Highlight {
		headline = `snippet(snippets_fts, -1, '<mark>', '</mark>', '...', 24)`
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+snippetColumns+`, -bm25(snippets_fts) AS score, `+headline+`
		 FROM snippets_fts JOIN snippets s ON s.rowid = snippets_fts.rowid
		 WHERE snippets_fts MATCH ? AND s.group_id = ?
		 ORDER BY score DESC LIMIT ?`,
		match, normalizeGroup(p.GroupID), pageLimit(p.Limit))
	if err != nil {
		return nil, fmt.Errorf("search snippets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var h SnippetHit
		sn, err := scanSnippet(rows, &h.Rank, &h.Headline)
		if err != nil {
			return nil, err
		}
		h.Snippet = sn
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
