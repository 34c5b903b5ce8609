package store

import (
	"context"
	"fmt"
	"os"
)

// Analytics summarizes the content of one group.
type Analytics struct {
	GroupID       string          `json:"group_id"`
	Counts        Counts          `json:"counts"`
	TopParties    []ValueCount    `json:"top_parties"`
	TagTrends     []ValueCount    `json:"tag_trends"`
	CaseTypes     []ValueCount    `json:"case_types"`
	EventsByYear  []ValueCount    `json:"events_by_year"`
	LinkPatterns  []LinkPattern   `json:"link_patterns"`
}

// ValueCount is one bucket of a frequency table.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// LinkPattern aggregates manual links by relationship type.
type LinkPattern struct {
	RelationshipType string  `json:"relationship_type"`
	Count            int     `json:"count"`
	AvgConfidence    float64 `json:"avg_confidence"`
}

// GroupStats holds per-group counts.
type GroupStats struct {
	GroupID string `json:"group_id"`
	Counts
}

// Stats holds database statistics.
type Stats struct {
	DBPath      string       `json:"db_path"`
	DBSizeBytes int64        `json:"db_size_bytes"`
	Totals      Counts       `json:"totals"`
	Groups      []GroupStats `json:"groups"`
}

const topN = 10

// Count returns row counts for a group, or across all groups when groupID is empty.
func (s *SQLiteStore) Count(ctx context.Context, groupID string) (Counts, error) {
	var c Counts
	where, args := "", []interface{}{}
	if groupID != "" {
		where = " WHERE group_id = ?"
		args = append(args, groupID)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`+where, args...).Scan(&c.Events); err != nil {
		return c, fmt.Errorf("count events: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snippets`+where, args...).Scan(&c.Snippets); err != nil {
		return c, fmt.Errorf("count snippets: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM manual_links`+where, args...).Scan(&c.Links); err != nil {
		return c, fmt.Errorf("count links: %w", err)
	}
	return c, nil
}

// Analytics returns frequency tables for a group.
func (s *SQLiteStore) Analytics(ctx context.Context, groupID string) (*Analytics, error) {
	group := normalizeGroup(groupID)
	a := &Analytics{GroupID: group}

	var err error
	if a.Counts, err = s.Count(ctx, group); err != nil {
		return nil, err
	}
	if a.TopParties, err = s.valueCounts(ctx,
		`SELECT j.value, COUNT(*) AS n FROM events e, json_each(e.parties) j
		 WHERE e.group_id = ? GROUP BY j.value ORDER BY n DESC, j.value LIMIT ?`, group, topN); err != nil {
		return nil, fmt.Errorf("party frequency: %w", err)
	}
	if a.TagTrends, err = s.valueCounts(ctx,
		`SELECT value, COUNT(*) AS n FROM (
			SELECT j.value AS value FROM events e, json_each(e.tags) j WHERE e.group_id = ?
			UNION ALL
			SELECT j.value FROM snippets s, json_each(s.tags) j WHERE s.group_id = ?
		 ) GROUP BY value ORDER BY n DESC, value LIMIT ?`, group, group, topN); err != nil {
		return nil, fmt.Errorf("tag trends: %w", err)
	}
	if a.CaseTypes, err = s.valueCounts(ctx,
		`SELECT case_type, COUNT(*) AS n FROM snippets
		 WHERE group_id = ? AND case_type <> '' GROUP BY case_type ORDER BY n DESC, case_type LIMIT ?`, group, topN); err != nil {
		return nil, fmt.Errorf("case types: %w", err)
	}
	if a.EventsByYear, err = s.valueCounts(ctx,
		`SELECT substr(date, 1, 4) AS year, COUNT(*) FROM events
		 WHERE group_id = ? GROUP BY year ORDER BY year`, group); err != nil {
		return nil, fmt.Errorf("events by year: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT relationship_type, COUNT(*) AS n, AVG(confidence) FROM manual_links
		 WHERE group_id = ? GROUP BY relationship_type ORDER BY n DESC, relationship_type`, group)
	if err != nil {
		return nil, fmt.Errorf("link patterns: %w", err)
	}
	defer rows.Close()
	a.LinkPatterns = []LinkPattern{}
	for rows.Next() {
		var p LinkPattern
		if err := rows.Scan(&p.RelationshipType, &p.Count, &p.AvgConfidence); err != nil {
			return nil, err
		}
		a.LinkPatterns = append(a.LinkPatterns, p)
	}
	return a, rows.Err()
}

func (s *SQLiteStore) valueCounts(ctx context.Context, query string, args ...interface{}) ([]ValueCount, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ValueCount{}
	for rows.Next() {
		var vc ValueCount
		if err := rows.Scan(&vc.Value, &vc.Count); err != nil {
			return nil, err
		}
		out = append(out, vc)
	}
	return out, rows.Err()
}

// Stats returns database statistics with a per-group breakdown.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{DBPath: s.path, Groups: []GroupStats{}}

	if info, err := os.Stat(s.path); err == nil {
		st.DBSizeBytes = info.Size()
	}

	var err error
	if st.Totals, err = s.Count(ctx, ""); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT group_id,
		       SUM(kind = 'event'), SUM(kind = 'snippet'), SUM(kind = 'link')
		FROM (
			SELECT group_id, 'event' AS kind FROM events
			UNION ALL SELECT group_id, 'snippet' FROM snippets
			UNION ALL SELECT group_id, 'link' FROM manual_links
		) GROUP BY group_id ORDER BY COUNT(*) DESC, group_id`)
	if err != nil {
		return st, err
	}
	defer rows.Close()

	for rows.Next() {
		var g GroupStats
		if err := rows.Scan(&g.GroupID, &g.Events, &g.Snippets, &g.Links); err != nil {
			return nil, err
		}
		st.Groups = append(st.Groups, g)
	}
	return st, rows.Err()
}
