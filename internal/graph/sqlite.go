package graph

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteService is an embedded knowledge graph kept in a SQLite file.
type SQLiteService struct {
	db     *sql.DB
	closed atomic.Bool
}

// OpenSQLite opens or creates the embedded graph at path.
func OpenSQLite(path string) (*SQLiteService, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create graph dir: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open graph db: %w", err)
	}
	s := &SQLiteService{db: db}
	if err := s.BuildIndices(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

const graphSchema = `
CREATE TABLE IF NOT EXISTS graph_episodes (
	uuid               TEXT PRIMARY KEY,
	name               TEXT NOT NULL,
	body               TEXT NOT NULL,
	source_description TEXT NOT NULL DEFAULT '',
	reference_time     TEXT NOT NULL,
	group_id           TEXT NOT NULL,
	created_at         TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS graph_entities (
	uuid       TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	type       TEXT NOT NULL,
	group_id   TEXT NOT NULL,
	created_at TEXT NOT NULL,
	UNIQUE (group_id, type, name)
);
CREATE TABLE IF NOT EXISTS graph_mentions (
	episode_uuid TEXT NOT NULL REFERENCES graph_episodes(uuid),
	entity_uuid  TEXT NOT NULL REFERENCES graph_entities(uuid),
	PRIMARY KEY (episode_uuid, entity_uuid)
);
CREATE TABLE IF NOT EXISTS graph_edges (
	uuid         TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	source_uuid  TEXT NOT NULL REFERENCES graph_entities(uuid),
	target_uuid  TEXT NOT NULL REFERENCES graph_entities(uuid),
	fact         TEXT NOT NULL,
	valid_at     TEXT NOT NULL,
	episode_uuid TEXT NOT NULL REFERENCES graph_episodes(uuid),
	group_id     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_graph_episodes_group ON graph_episodes(group_id, reference_time);
CREATE INDEX IF NOT EXISTS idx_graph_entities_group ON graph_entities(group_id);
CREATE INDEX IF NOT EXISTS idx_graph_mentions_entity ON graph_mentions(entity_uuid);
CREATE INDEX IF NOT EXISTS idx_graph_edges_group ON graph_edges(group_id);
`

// BuildIndices creates the graph tables and indexes if missing.
func (s *SQLiteService) BuildIndices(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, graphSchema); err != nil {
		return fmt.Errorf("graph schema: %w", err)
	}
	return nil
}

// AddEpisode stores the episode, its entity mentions and co-mention edges.
func (s *SQLiteService) AddEpisode(ctx context.Context, ep Episode) (*EpisodeResult, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if err := validateEpisode(ep); err != nil {
		return nil, err
	}
	entities := uniqueEntities(ep.Entities)
	now := formatTime(time.Now())
	res := &EpisodeResult{UUID: uuid.New().String(), Entities: len(entities)}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO graph_episodes (uuid, name, body, source_description, reference_time, group_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		res.UUID, ep.Name, ep.Body, ep.SourceDescription, formatTime(ep.ReferenceTime), ep.GroupID, now)
	if err != nil {
		return nil, fmt.Errorf("insert episode: %w", err)
	}

	ids := make(map[EntityRef]string, len(entities))
	for _, e := range entities {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO graph_entities (uuid, name, type, group_id, created_at) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (group_id, type, name) DO NOTHING`,
			uuid.New().String(), e.Name, e.Type, ep.GroupID, now)
		if err != nil {
			return nil, fmt.Errorf("upsert entity: %w", err)
		}
		var id string
		if err := tx.QueryRowContext(ctx,
			`SELECT uuid FROM graph_entities WHERE group_id = ? AND type = ? AND name = ?`,
			ep.GroupID, e.Type, e.Name).Scan(&id); err != nil {
			return nil, fmt.Errorf("get entity id: %w", err)
		}
		ids[e] = id
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO graph_mentions (episode_uuid, entity_uuid) VALUES (?, ?)`, res.UUID, id); err != nil {
			return nil, fmt.Errorf("insert mention: %w", err)
		}
	}

	validAt := formatTime(ep.ReferenceTime)
	for _, p := range entityPairs(entities) {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO graph_edges (uuid, name, source_uuid, target_uuid, fact, valid_at, episode_uuid, group_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), RelatesTo, ids[p[0]], ids[p[1]], factFor(p[0], p[1], ep.Name), validAt, res.UUID, ep.GroupID)
		if err != nil {
			return nil, fmt.Errorf("insert edge: %w", err)
		}
		res.Edges++
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return res, nil
}

// Search runs the sub-searches selected by cfg over the given groups.
func (s *SQLiteService) Search(ctx context.Context, query string, cfg SearchConfig, groupIDs []string) (*SearchResults, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	res := &SearchResults{Nodes: []Node{}, Edges: []Edge{}, Episodes: []EpisodeHit{}, Communities: []Community{}}
	terms := queryTerms(query)
	if len(terms) == 0 {
		return res, nil
	}
	limit := searchLimit(cfg)

	var err error
	if cfg.Nodes {
		if res.Nodes, err = s.searchNodes(ctx, terms, groupIDs, limit); err != nil {
			return nil, err
		}
	}
	if cfg.Edges {
		if res.Edges, err = s.searchEdges(ctx, terms, groupIDs, limit); err != nil {
			return nil, err
		}
	}
	if cfg.Episodes {
		if res.Episodes, err = s.searchEpisodes(ctx, terms, groupIDs, limit); err != nil {
			return nil, err
		}
	}
	if cfg.Communities {
		if res.Communities, err = s.searchCommunities(ctx, terms, groupIDs, limit); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// likeAny builds "(expr LIKE ? OR ...)" over the terms.
func likeAny(expr string, terms []string) (string, []interface{}) {
	parts := make([]string, len(terms))
	args := make([]interface{}, len(terms))
	for i, t := range terms {
		parts[i] = "lower(" + expr + ") LIKE ?"
		args[i] = "%" + t + "%"
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

// inGroups builds "col IN (?, ...)"; no groups means no restriction.
func inGroups(col string, groups []string) (string, []interface{}) {
	if len(groups) == 0 {
		return "1 = 1", nil
	}
	marks := make([]string, len(groups))
	args := make([]interface{}, len(groups))
	for i, g := range groups {
		marks[i] = "?"
		args[i] = g
	}
	return col + " IN (" + strings.Join(marks, ", ") + ")", args
}

func (s *SQLiteService) searchNodes(ctx context.Context, terms, groups []string, limit int) ([]Node, error) {
	gc, gargs := inGroups("n.group_id", groups)
	lc, largs := likeAny("n.name", terms)
	rows, err := s.db.QueryContext(ctx,
		`SELECT n.uuid, n.name, n.type, n.group_id, n.created_at,
		        (SELECT COUNT(*) FROM graph_mentions m WHERE m.entity_uuid = n.uuid)
		 FROM graph_entities n WHERE `+gc+` AND `+lc, append(gargs, largs...)...)
	if err != nil {
		return nil, fmt.Errorf("search nodes: %w", err)
	}
	defer rows.Close()

	var found []scored[Node]
	for rows.Next() {
		var n Node
		var created string
		if err := rows.Scan(&n.UUID, &n.Name, &n.Type, &n.GroupID, &created, &n.Mentions); err != nil {
			return nil, err
		}
		found = append(found, scored[Node]{item: n, hits: countHits(n.Name, terms), at: parseTime(created)})
	}
	return rank(found, limit), rows.Err()
}

func (s *SQLiteService) searchEdges(ctx context.Context, terms, groups []string, limit int) ([]Edge, error) {
	gc, gargs := inGroups("e.group_id", groups)
	lc, largs := likeAny("e.fact", terms)
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.uuid, e.name, a.name, b.name, e.fact, e.valid_at, e.group_id
		 FROM graph_edges e
		 JOIN graph_entities a ON a.uuid = e.source_uuid
		 JOIN graph_entities b ON b.uuid = e.target_uuid
		 WHERE `+gc+` AND `+lc, append(gargs, largs...)...)
	if err != nil {
		return nil, fmt.Errorf("search edges: %w", err)
	}
	defer rows.Close()

	var found []scored[Edge]
	for rows.Next() {
		var e Edge
		var validAt string
		if err := rows.Scan(&e.UUID, &e.Name, &e.Source, &e.Target, &e.Fact, &validAt, &e.GroupID); err != nil {
			return nil, err
		}
		e.ValidAt = parseTime(validAt)
		found = append(found, scored[Edge]{item: e, hits: countHits(e.Fact, terms), at: e.ValidAt})
	}
	return rank(found, limit), rows.Err()
}

func (s *SQLiteService) searchEpisodes(ctx context.Context, terms, groups []string, limit int) ([]EpisodeHit, error) {
	gc, gargs := inGroups("group_id", groups)
	lc, largs := likeAny("name || ' ' || body", terms)
	rows, err := s.db.QueryContext(ctx,
		`SELECT uuid, name, body, source_description, reference_time, group_id
		 FROM graph_episodes WHERE `+gc+` AND `+lc, append(gargs, largs...)...)
	if err != nil {
		return nil, fmt.Errorf("search episodes: %w", err)
	}
	defer rows.Close()

	var found []scored[EpisodeHit]
	for rows.Next() {
		var e EpisodeHit
		var ref string
		if err := rows.Scan(&e.UUID, &e.Name, &e.Body, &e.SourceDescription, &ref, &e.GroupID); err != nil {
			return nil, err
		}
		e.ReferenceTime = parseTime(ref)
		found = append(found, scored[EpisodeHit]{item: e, hits: countHits(e.Name+" "+e.Body, terms), at: e.ReferenceTime})
	}
	return rank(found, limit), rows.Err()
}

func (s *SQLiteService) searchCommunities(ctx context.Context, terms, groups []string, limit int) ([]Community, error) {
	gc, gargs := inGroups("t.group_id", groups)
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.name, t.group_id, t.created_at, COALESCE(group_concat(o.name, char(31)), '')
		 FROM graph_entities t
		 LEFT JOIN graph_mentions mt ON mt.entity_uuid = t.uuid
		 LEFT JOIN graph_mentions mo ON mo.episode_uuid = mt.episode_uuid AND mo.entity_uuid <> t.uuid
		 LEFT JOIN graph_entities o ON o.uuid = mo.entity_uuid
		 WHERE t.type = ? AND `+gc+`
		 GROUP BY t.uuid`, append([]interface{}{EntityTopic}, gargs...)...)
	if err != nil {
		return nil, fmt.Errorf("search communities: %w", err)
	}
	defer rows.Close()

	var found []scored[Community]
	for rows.Next() {
		var c Community
		var created, members string
		if err := rows.Scan(&c.Name, &c.GroupID, &created, &members); err != nil {
			return nil, err
		}
		c.Members = []string{}
		seen := map[string]bool{}
		for _, m := range strings.Split(members, "\x1f") {
			if m != "" && !seen[m] {
				seen[m] = true
				c.Members = append(c.Members, m)
			}
		}
		hits := countHits(c.Name+" "+strings.Join(c.Members, " "), terms)
		if hits == 0 {
			continue
		}
		found = append(found, scored[Community]{item: c, hits: hits, at: parseTime(created)})
	}
	return rank(found, limit), rows.Err()
}

// Ping verifies the database is reachable.
func (s *SQLiteService) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.db.PingContext(ctx)
}

// Closed reports whether Close has been called.
func (s *SQLiteService) Closed() bool { return s.closed.Load() }

// Close releases the database.
func (s *SQLiteService) Close(ctx context.Context) error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}
