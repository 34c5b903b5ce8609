package store

import (
	"context"
	"fmt"

	"github.com/medelman17/suechef/internal/model"
)

// EntityRef is a lightweight pointer to an event or snippet.
type EntityRef struct {
	Kind  model.Kind `json:"kind"`
	ID    string     `json:"id"`
	Title string     `json:"title"`
	Tags  []string   `json:"tags"`
}

// NearEvent is an event together with its distance in days from a reference date.
type NearEvent struct {
	model.Event
	DaysApart int `json:"days_apart"`
}

// EventsSharingParties returns events in the group naming at least one of the parties.
func (s *SQLiteStore) EventsSharingParties(ctx context.Context, groupID string, parties []string, excludeID string, limit int) ([]model.Event, error) {
	out := []model.Event{}
	if len(parties) == 0 {
		return out, nil
	}
	clause, args := anyOf("e.parties", parties)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events e
		 WHERE e.group_id = ? AND e.id <> ? AND `+clause+`
		 ORDER BY e.date DESC, e.id DESC LIMIT ?`,
		append(append([]interface{}{normalizeGroup(groupID), excludeID}, args...), pageLimit(limit))...)
	if err != nil {
		return nil, fmt.Errorf("events sharing parties: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// EntitiesSharingTags returns events and snippets in the group carrying at least one of the tags.
func (s *SQLiteStore) EntitiesSharingTags(ctx context.Context, groupID string, tags []string, excludeID string, limit int) ([]EntityRef, error) {
	out := []EntityRef{}
	if len(tags) == 0 {
		return out, nil
	}
	group := normalizeGroup(groupID)
	eventClause, tagArgs := anyOf("e.tags", tags)
	snippetClause, _ := anyOf("s.tags", tags)

	args := []interface{}{group, excludeID}
	args = append(args, tagArgs...)
	args = append(args, group, excludeID)
	args = append(args, tagArgs...)
	args = append(args, pageLimit(limit))

	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, id, title, tags FROM (
			SELECT 'event' AS kind, e.id AS id, e.date || ': ' || substr(e.description, 1, 80) AS title,
			       e.tags AS tags, e.created_at AS created_at
			FROM events e WHERE e.group_id = ? AND e.id <> ? AND `+eventClause+`
			UNION ALL
			SELECT 'snippet', s.id, s.citation, s.tags, s.created_at
			FROM snippets s WHERE s.group_id = ? AND s.id <> ? AND `+snippetClause+`
		 ) ORDER BY created_at DESC LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("entities sharing tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ref EntityRef
		var kind, tagsJSON string
		if err := rows.Scan(&kind, &ref.ID, &ref.Title, &tagsJSON); err != nil {
			return nil, err
		}
		ref.Kind = model.Kind(kind)
		ref.Tags = decodeList(tagsJSON)
		out = append(out, ref)
	}
	return out, rows.Err()
}

// EventsNear returns events in the group dated within windowDays of date, closest first.
func (s *SQLiteStore) EventsNear(ctx context.Context, groupID, date string, windowDays int, excludeID string, limit int) ([]NearEvent, error) {
	if err := validateDate(date); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+`, CAST(ABS(julianday(e.date) - julianday(?)) AS INTEGER) AS days_apart
		 FROM events e
		 WHERE e.group_id = ? AND e.id <> ? AND ABS(julianday(e.date) - julianday(?)) <= ?
		 ORDER BY days_apart ASC, e.id DESC LIMIT ?`,
		date, normalizeGroup(groupID), excludeID, date, windowDays, pageLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("events near: %w", err)
	}
	defer rows.Close()

	out := []NearEvent{}
	for rows.Next() {
		var n NearEvent
		e, err := scanEvent(rows, &n.DaysApart)
		if err != nil {
			return nil, err
		}
		n.Event = e
		out = append(out, n)
	}
	return out, rows.Err()
}
