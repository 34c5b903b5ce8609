package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/medelman17/suechef/internal/model"
)

// UpsertLink creates a manual link, or updates confidence and notes when the
// (event, snippet, relationship) triple already exists.
func (s *SQLiteStore) UpsertLink(ctx context.Context, in LinkInput) (*model.ManualLink, error) {
	if err := ValidateID(in.EventID); err != nil {
		return nil, err
	}
	if err := ValidateID(in.SnippetID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.RelationshipType) == "" {
		return nil, fmt.Errorf("%w: relationship_type", ErrMissingField)
	}
	confidence := 1.0
	if in.Confidence != nil {
		confidence = *in.Confidence
	}
	if confidence < 0 || confidence > 1 {
		return nil, fmt.Errorf("%w: confidence %.2f outside [0,1]", ErrOutOfRange, confidence)
	}

	var eventGroup string
	if err := s.db.QueryRowContext(ctx, `SELECT group_id FROM events WHERE id = ?`, in.EventID).Scan(&eventGroup); err != nil {
		return nil, fmt.Errorf("event %s: %w", in.EventID, ErrNotFound)
	}
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT 1 FROM snippets WHERE id = ?`, in.SnippetID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("snippet %s: %w", in.SnippetID, ErrNotFound)
	}

	group := in.GroupID
	if group == "" {
		group = eventGroup
	}

	l := model.ManualLink{
		EventID:          in.EventID,
		SnippetID:        in.SnippetID,
		RelationshipType: in.RelationshipType,
		Confidence:       confidence,
		Notes:            in.Notes,
		GroupID:          group,
	}
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO manual_links (id, event_id, snippet_id, relationship_type, confidence, notes, group_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (event_id, snippet_id, relationship_type)
		 DO UPDATE SET confidence = excluded.confidence, notes = excluded.notes
		 RETURNING id, created_at`,
		s.newID(), l.EventID, l.SnippetID, l.RelationshipType, l.Confidence, l.Notes, l.GroupID, now(),
	).Scan(&l.ID, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("upsert link: %w", err)
	}
	l.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &l, nil
}

// ListLinks returns all manual links touching an event or snippet.
func (s *SQLiteStore) ListLinks(ctx context.Context, entityID string) ([]model.ManualLink, error) {
	if err := ValidateID(entityID); err != nil {
		return nil, err
	}
	return s.queryLinks(ctx,
		`SELECT id, event_id, snippet_id, relationship_type, confidence, notes, group_id, created_at
		 FROM manual_links WHERE event_id = ? OR snippet_id = ? ORDER BY created_at`, entityID, entityID)
}

// DeleteLink removes a manual link by id.
func (s *SQLiteStore) DeleteLink(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM manual_links WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete link: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("link %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) queryLinks(ctx context.Context, query string, args ...interface{}) ([]model.ManualLink, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	links := []model.ManualLink{}
	for rows.Next() {
		var l model.ManualLink
		var createdAt string
		if err := rows.Scan(&l.ID, &l.EventID, &l.SnippetID, &l.RelationshipType, &l.Confidence,
			&l.Notes, &l.GroupID, &createdAt); err != nil {
			return nil, err
		}
		l.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		links = append(links, l)
	}
	return links, rows.Err()
}
