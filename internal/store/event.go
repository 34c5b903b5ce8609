package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/medelman17/suechef/internal/model"
)

func validateDate(d string) error {
	if _, err := model.ParseDate(d); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDate, d)
	}
	return nil
}

// CreateEvent inserts a new event row.
func (s *SQLiteStore) CreateEvent(ctx context.Context, in EventInput) (*model.Event, error) {
	if strings.TrimSpace(in.Description) == "" {
		return nil, fmt.Errorf("%w: description", ErrMissingField)
	}
	if in.Date == "" {
		return nil, fmt.Errorf("%w: date", ErrMissingField)
	}
	if err := validateDate(in.Date); err != nil {
		return nil, err
	}

	ts := now()
	e := model.Event{
		ID:             s.newID(),
		Date:           in.Date,
		Description:    in.Description,
		Parties:        nonNil(in.Parties),
		DocumentSource: in.DocumentSource,
		Excerpts:       in.Excerpts,
		Tags:           nonNil(in.Tags),
		Significance:   in.Significance,
		GroupID:        normalizeGroup(in.GroupID),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, date, description, parties, document_source, excerpts, tags, significance, group_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Date, e.Description, encodeList(e.Parties), e.DocumentSource, e.Excerpts,
		encodeList(e.Tags), e.Significance, e.GroupID, ts, ts)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}

	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, ts)
	e.UpdatedAt = e.CreatedAt
	return &e, nil
}

// GetEvent returns the event with the given id.
func (s *SQLiteStore) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events e WHERE e.id = ?`, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return &e, nil
}

// ListEvents returns a filtered page of events, newest date first.
func (s *SQLiteStore) ListEvents(ctx context.Context, f EventFilter) (*EventPage, error) {
	where := []string{"e.group_id = ?"}
	args := []interface{}{normalizeGroup(f.GroupID)}

	if f.DateFrom != "" {
		if err := validateDate(f.DateFrom); err != nil {
			return nil, err
		}
		where = append(where, "e.date >= ?")
		args = append(args, f.DateFrom)
	}
	if f.DateTo != "" {
		if err := validateDate(f.DateTo); err != nil {
			return nil, err
		}
		where = append(where, "e.date <= ?")
		args = append(args, f.DateTo)
	}
	if len(f.Parties) > 0 {
		clause, a := anyOf("e.parties", f.Parties)
		where = append(where, clause)
		args = append(args, a...)
	}
	if len(f.Tags) > 0 {
		clause, a := anyOf("e.tags", f.Tags)
		where = append(where, clause)
		args = append(args, a...)
	}
	cond := strings.Join(where, " AND ")

	page := &EventPage{Events: []model.Event{}, Limit: pageLimit(f.Limit), Offset: f.Offset}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events e WHERE `+cond, args...).Scan(&page.Total); err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events e WHERE `+cond+`
		 ORDER BY e.date DESC, e.created_at DESC, e.id DESC LIMIT ? OFFSET ?`,
		append(args, page.Limit, page.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		page.Events = append(page.Events, e)
	}
	return page, rows.Err()
}

// UpdateEvent applies a patch and returns the updated event.
func (s *SQLiteStore) UpdateEvent(ctx context.Context, id string, p EventPatch) (*model.Event, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	if p.Empty() {
		return nil, ErrNoChanges
	}

	var sets []string
	var args []interface{}
	if p.Date != nil {
		if err := validateDate(*p.Date); err != nil {
			return nil, err
		}
		sets = append(sets, "date = ?")
		args = append(args, *p.Date)
	}
	if p.Description != nil {
		if strings.TrimSpace(*p.Description) == "" {
			return nil, fmt.Errorf("%w: description", ErrMissingField)
		}
		sets = append(sets, "description = ?")
		args = append(args, *p.Description)
	}
	if p.Parties != nil {
		sets = append(sets, "parties = ?")
		args = append(args, encodeList(*p.Parties))
	}
	if p.DocumentSource != nil {
		sets = append(sets, "document_source = ?")
		args = append(args, *p.DocumentSource)
	}
	if p.Excerpts != nil {
		sets = append(sets, "excerpts = ?")
		args = append(args, *p.Excerpts)
	}
	if p.Tags != nil {
		sets = append(sets, "tags = ?")
		args = append(args, encodeList(*p.Tags))
	}
	if p.Significance != nil {
		sets = append(sets, "significance = ?")
		args = append(args, *p.Significance)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, now(), id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	return s.GetEvent(ctx, id)
}

// DeleteEvent removes an event and its manual links.
func (s *SQLiteStore) DeleteEvent(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	return nil
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
