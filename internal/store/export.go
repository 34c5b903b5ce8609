package store

import (
	"context"
	"fmt"
	"time"

	"github.com/medelman17/suechef/internal/model"
)

// Bundle is a portable snapshot of one group.
type Bundle struct {
	GroupID    string             `json:"group_id"`
	ExportedAt time.Time          `json:"exported_at"`
	Events     []model.Event      `json:"events"`
	Snippets   []model.Snippet    `json:"snippets"`
	Links      []model.ManualLink `json:"links"`
}

// Export returns every event, snippet and link of a group in creation order.
func (s *SQLiteStore) Export(ctx context.Context, groupID string) (*Bundle, error) {
	group := normalizeGroup(groupID)
	b := &Bundle{
		GroupID:    group,
		ExportedAt: time.Now().UTC(),
		Events:     []model.Event{},
		Snippets:   []model.Snippet{},
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events e WHERE e.group_id = ? ORDER BY e.created_at, e.id`, group)
	if err != nil {
		return nil, fmt.Errorf("export events: %w", err)
	}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		b.Events = append(b.Events, e)
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx,
		`SELECT `+snippetColumns+` FROM snippets s WHERE s.group_id = ? ORDER BY s.created_at, s.id`, group)
	if err != nil {
		return nil, fmt.Errorf("export snippets: %w", err)
	}
	for rows.Next() {
		sn, err := scanSnippet(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		b.Snippets = append(b.Snippets, sn)
	}
	rows.Close()

	b.Links, err = s.queryLinks(ctx,
		`SELECT id, event_id, snippet_id, relationship_type, confidence, notes, group_id, created_at
		 FROM manual_links WHERE group_id = ? ORDER BY created_at, id`, group)
	if err != nil {
		return nil, fmt.Errorf("export links: %w", err)
	}
	return b, nil
}
