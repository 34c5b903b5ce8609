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

// CreateSnippet inserts a new snippet row.
func (s *SQLiteStore) CreateSnippet(ctx context.Context, in SnippetInput) (*model.Snippet, error) {
	if strings.TrimSpace(in.Citation) == "" {
		return nil, fmt.Errorf("%w: citation", ErrMissingField)
	}
	if strings.TrimSpace(in.KeyLanguage) == "" {
		return nil, fmt.Errorf("%w: key_language", ErrMissingField)
	}

	ts := now()
	sn := model.Snippet{
		ID:          s.newID(),
		Citation:    in.Citation,
		KeyLanguage: in.KeyLanguage,
		Tags:        nonNil(in.Tags),
		Context:     in.Context,
		CaseType:    in.CaseType,
		GroupID:     normalizeGroup(in.GroupID),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snippets (id, citation, key_language, tags, context, case_type, group_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sn.ID, sn.Citation, sn.KeyLanguage, encodeList(sn.Tags), sn.Context, sn.CaseType, sn.GroupID, ts, ts)
	if err != nil {
		return nil, fmt.Errorf("insert snippet: %w", err)
	}

	sn.CreatedAt, _ = time.Parse(time.RFC3339Nano, ts)
	sn.UpdatedAt = sn.CreatedAt
	return &sn, nil
}

// GetSnippet returns the snippet with the given id.
func (s *SQLiteStore) GetSnippet(ctx context.Context, id string) (*model.Snippet, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+snippetColumns+` FROM snippets s WHERE s.id = ?`, id)
	sn, err := scanSnippet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snippet %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get snippet: %w", err)
	}
	return &sn, nil
}

// ListSnippets returns a filtered page of snippets, newest first.
func (s *SQLiteStore) ListSnippets(ctx context.Context, f SnippetFilter) (*SnippetPage, error) {
	where := []string{"s.group_id = ?"}
	args := []interface{}{normalizeGroup(f.GroupID)}

	if f.CaseType != "" {
		where = append(where, "s.case_type = ?")
		args = append(args, f.CaseType)
	}
	if len(f.Tags) > 0 {
		clause, a := anyOf("s.tags", f.Tags)
		where = append(where, clause)
		args = append(args, a...)
	}
	cond := strings.Join(where, " AND ")

	page := &SnippetPage{Snippets: []model.Snippet{}, Limit: pageLimit(f.Limit), Offset: f.Offset}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snippets s WHERE `+cond, args...).Scan(&page.Total); err != nil {
		return nil, fmt.Errorf("count snippets: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+snippetColumns+` FROM snippets s WHERE `+cond+`
		 ORDER BY s.created_at DESC, s.id DESC LIMIT ? OFFSET ?`,
		append(args, page.Limit, page.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("list snippets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		sn, err := scanSnippet(rows)
		if err != nil {
			return nil, err
		}
		page.Snippets = append(page.Snippets, sn)
	}
	return page, rows.Err()
}

// UpdateSnippet applies a patch and returns the updated snippet.
func (s *SQLiteStore) UpdateSnippet(ctx context.Context, id string, p SnippetPatch) (*model.Snippet, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	if p.Empty() {
		return nil, ErrNoChanges
	}

	var sets []string
	var args []interface{}
	if p.Citation != nil {
		if strings.TrimSpace(*p.Citation) == "" {
			return nil, fmt.Errorf("%w: citation", ErrMissingField)
		}
		sets = append(sets, "citation = ?")
		args = append(args, *p.Citation)
	}
	if p.KeyLanguage != nil {
		if strings.TrimSpace(*p.KeyLanguage) == "" {
			return nil, fmt.Errorf("%w: key_language", ErrMissingField)
		}
		sets = append(sets, "key_language = ?")
		args = append(args, *p.KeyLanguage)
	}
	if p.Tags != nil {
		sets = append(sets, "tags = ?")
		args = append(args, encodeList(*p.Tags))
	}
	if p.Context != nil {
		sets = append(sets, "context = ?")
		args = append(args, *p.Context)
	}
	if p.CaseType != nil {
		sets = append(sets, "case_type = ?")
		args = append(args, *p.CaseType)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, now(), id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE snippets SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("update snippet: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("snippet %s: %w", id, ErrNotFound)
	}
	return s.GetSnippet(ctx, id)
}

// DeleteSnippet removes a snippet and its manual links.
func (s *SQLiteStore) DeleteSnippet(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM snippets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete snippet: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("snippet %s: %w", id, ErrNotFound)
	}
	return nil
}
