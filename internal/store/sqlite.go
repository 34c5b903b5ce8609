package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/medelman17/suechef/internal/model"
)

// SQLiteStore is the relational store backed by SQLite.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	closed atomic.Bool

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		path:    dbPath,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

// ValidateID reports ErrInvalidID when id is not a well-formed identifier.
func ValidateID(id string) error {
	if _, err := ulid.ParseStrict(id); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id              TEXT PRIMARY KEY,
	date            TEXT NOT NULL CHECK (date(date) = date),
	description     TEXT NOT NULL,
	parties         TEXT NOT NULL DEFAULT '[]',
	document_source TEXT NOT NULL DEFAULT '',
	excerpts        TEXT NOT NULL DEFAULT '',
	tags            TEXT NOT NULL DEFAULT '[]',
	significance    TEXT NOT NULL DEFAULT '',
	group_id        TEXT NOT NULL DEFAULT 'default',
	created_at      TEXT NOT NULL,
	updated_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_group_date ON events(group_id, date DESC);

CREATE TABLE IF NOT EXISTS snippets (
	id           TEXT PRIMARY KEY,
	citation     TEXT NOT NULL,
	key_language TEXT NOT NULL,
	tags         TEXT NOT NULL DEFAULT '[]',
	context      TEXT NOT NULL DEFAULT '',
	case_type    TEXT NOT NULL DEFAULT '',
	group_id     TEXT NOT NULL DEFAULT 'default',
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snippets_group ON snippets(group_id, created_at DESC);

CREATE TABLE IF NOT EXISTS manual_links (
	id                TEXT PRIMARY KEY,
	event_id          TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
	snippet_id        TEXT NOT NULL REFERENCES snippets(id) ON DELETE CASCADE,
	relationship_type TEXT NOT NULL,
	confidence        REAL NOT NULL DEFAULT 1.0 CHECK (confidence >= 0 AND confidence <= 1),
	notes             TEXT NOT NULL DEFAULT '',
	group_id          TEXT NOT NULL DEFAULT 'default',
	created_at        TEXT NOT NULL,
	UNIQUE (event_id, snippet_id, relationship_type)
);
CREATE INDEX IF NOT EXISTS idx_links_event ON manual_links(event_id);
CREATE INDEX IF NOT EXISTS idx_links_snippet ON manual_links(snippet_id);
CREATE INDEX IF NOT EXISTS idx_links_group ON manual_links(group_id);

CREATE VIRTUAL TABLE IF NOT EXISTS events_fts USING fts5(
	description, excerpts, significance, document_source,
	content=events, content_rowid=rowid
);
CREATE VIRTUAL TABLE IF NOT EXISTS snippets_fts USING fts5(
	citation, key_language, context, case_type,
	content=snippets, content_rowid=rowid
);
`

// Triggers are dropped and recreated on every open so column changes take effect.
var triggers = []string{
	`DROP TRIGGER IF EXISTS events_ai`,
	`DROP TRIGGER IF EXISTS events_ad`,
	`DROP TRIGGER IF EXISTS events_au`,
	`DROP TRIGGER IF EXISTS snippets_ai`,
	`DROP TRIGGER IF EXISTS snippets_ad`,
	`DROP TRIGGER IF EXISTS snippets_au`,
	`CREATE TRIGGER events_ai AFTER INSERT ON events BEGIN
		INSERT INTO events_fts(rowid, description, excerpts, significance, document_source)
		VALUES (new.rowid, new.description, new.excerpts, new.significance, new.document_source);
	END`,
	`CREATE TRIGGER events_ad AFTER DELETE ON events BEGIN
		INSERT INTO events_fts(events_fts, rowid, description, excerpts, significance, document_source)
		VALUES ('delete', old.rowid, old.description, old.excerpts, old.significance, old.document_source);
	END`,
	`CREATE TRIGGER events_au AFTER UPDATE ON events BEGIN
		INSERT INTO events_fts(events_fts, rowid, description, excerpts, significance, document_source)
		VALUES ('delete', old.rowid, old.description, old.excerpts, old.significance, old.document_source);
		INSERT INTO events_fts(rowid, description, excerpts, significance, document_source)
		VALUES (new.rowid, new.description, new.excerpts, new.significance, new.document_source);
	END`,
	`CREATE TRIGGER snippets_ai AFTER INSERT ON snippets BEGIN
		INSERT INTO snippets_fts(rowid, citation, key_language, context, case_type)
		VALUES (new.rowid, new.citation, new.key_language, new.context, new.case_type);
	END`,
	`CREATE TRIGGER snippets_ad AFTER DELETE ON snippets BEGIN
		INSERT INTO snippets_fts(snippets_fts, rowid, citation, key_language, context, case_type)
		VALUES ('delete', old.rowid, old.citation, old.key_language, old.context, old.case_type);
	END`,
	`CREATE TRIGGER snippets_au AFTER UPDATE ON snippets BEGIN
		INSERT INTO snippets_fts(snippets_fts, rowid, citation, key_language, context, case_type)
		VALUES ('delete', old.rowid, old.citation, old.key_language, old.context, old.case_type);
		INSERT INTO snippets_fts(rowid, citation, key_language, context, case_type)
		VALUES (new.rowid, new.citation, new.key_language, new.context, new.case_type);
	END`,
}

func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	for _, stmt := range triggers {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("trigger: %w", err)
		}
	}
	// Rebuild the indexes from the content tables in case rows predate the triggers.
	if _, err := s.db.Exec(`INSERT INTO events_fts(events_fts) VALUES ('rebuild')`); err != nil {
		return fmt.Errorf("rebuild events_fts: %w", err)
	}
	if _, err := s.db.Exec(`INSERT INTO snippets_fts(snippets_fts) VALUES ('rebuild')`); err != nil {
		return fmt.Errorf("rebuild snippets_fts: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	var one int
	return s.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one)
}

// Closed reports whether Close has been called.
func (s *SQLiteStore) Closed() bool { return s.closed.Load() }

func (s *SQLiteStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

const eventColumns = `e.id, e.date, e.description, e.parties, e.document_source, e.excerpts,
	e.tags, e.significance, e.group_id, e.created_at, e.updated_at`

const snippetColumns = `s.id, s.citation, s.key_language, s.tags, s.context, s.case_type,
	s.group_id, s.created_at, s.updated_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row scanner, extra ...interface{}) (model.Event, error) {
	var e model.Event
	var parties, tags, createdAt, updatedAt string

	dest := []interface{}{
		&e.ID, &e.Date, &e.Description, &parties, &e.DocumentSource, &e.Excerpts,
		&tags, &e.Significance, &e.GroupID, &createdAt, &updatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return e, err
	}

	e.Parties = decodeList(parties)
	e.Tags = decodeList(tags)
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	e.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return e, nil
}

func scanSnippet(row scanner, extra ...interface{}) (model.Snippet, error) {
	var sn model.Snippet
	var tags, createdAt, updatedAt string

	dest := []interface{}{
		&sn.ID, &sn.Citation, &sn.KeyLanguage, &tags, &sn.Context, &sn.CaseType,
		&sn.GroupID, &createdAt, &updatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return sn, err
	}

	sn.Tags = decodeList(tags)
	sn.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	sn.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return sn, nil
}

// encodeList stores a string set as a JSON array; nil becomes [].
func encodeList(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(items)
	return string(b)
}

func decodeList(s string) []string {
	out := []string{}
	if s != "" {
		json.Unmarshal([]byte(s), &out)
	}
	if out == nil {
		out = []string{}
	}
	return out
}

// anyOf builds "EXISTS (... json_each(col) ... IN (?,?))" for a JSON array column.
func anyOf(col string, values []string) (string, []interface{}) {
	marks := make([]string, len(values))
	args := make([]interface{}, len(values))
	for i, v := range values {
		marks[i] = "?"
		args[i] = v
	}
	clause := fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(%s) j WHERE j.value IN (%s))",
		col, strings.Join(marks, ", "))
	return clause, args
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func now() string {
	return time.Now().UTC().Format(timeLayout)
}
