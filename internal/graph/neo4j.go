package graph

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// Neo4jConfig holds connection settings for a Neo4j server.
type Neo4jConfig struct {
	URI      string
	User     string
	Password string
	Database string
}

// Neo4jService stores the graph in Neo4j.
type Neo4jService struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *zap.Logger
	closed   atomic.Bool
}

// OpenNeo4j connects to Neo4j and verifies connectivity.
func OpenNeo4j(ctx context.Context, cfg Neo4jConfig, logger *zap.Logger) (*Neo4jService, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to connect to neo4j: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Neo4jService{driver: driver, database: cfg.Database, logger: logger}, nil
}

func (s *Neo4jService) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: s.database})
}

var neo4jIndices = []string{
	`CREATE CONSTRAINT entity_uuid IF NOT EXISTS FOR (n:Entity) REQUIRE n.uuid IS UNIQUE`,
	`CREATE CONSTRAINT episode_uuid IF NOT EXISTS FOR (e:Episodic) REQUIRE e.uuid IS UNIQUE`,
	`CREATE INDEX entity_group IF NOT EXISTS FOR (n:Entity) ON (n.group_id, n.type, n.name)`,
	`CREATE INDEX episode_group IF NOT EXISTS FOR (e:Episodic) ON (e.group_id)`,
	`CREATE INDEX relates_group IF NOT EXISTS FOR ()-[r:RELATES_TO]-() ON (r.group_id)`,
}

// BuildIndices creates constraints and indexes if missing.
func (s *Neo4jService) BuildIndices(ctx context.Context) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	for _, q := range neo4jIndices {
		if _, err := session.Run(ctx, q, nil); err != nil {
			return fmt.Errorf("failed to build indices: %w", err)
		}
	}
	return nil
}

// AddEpisode writes the episode, its mentions and co-mention edges in one transaction.
func (s *Neo4jService) AddEpisode(ctx context.Context, ep Episode) (*EpisodeResult, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if err := validateEpisode(ep); err != nil {
		return nil, err
	}
	entities := uniqueEntities(ep.Entities)
	now := formatTime(time.Now())
	res := &EpisodeResult{UUID: uuid.New().String(), Entities: len(entities)}

	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			CREATE (e:Episodic {uuid: $uuid, name: $name, content: $body, source_description: $source,
			                    reference_time: $ref, group_id: $group, created_at: $now})`,
			map[string]interface{}{
				"uuid":   res.UUID,
				"name":   ep.Name,
				"body":   ep.Body,
				"source": ep.SourceDescription,
				"ref":    formatTime(ep.ReferenceTime),
				"group":  ep.GroupID,
				"now":    now,
			})
		if err != nil {
			return nil, err
		}

		for _, ent := range entities {
			_, err := tx.Run(ctx, `
				MATCH (e:Episodic {uuid: $episode})
				MERGE (n:Entity {group_id: $group, type: $type, name: $name})
				ON CREATE SET n.uuid = $uuid, n.created_at = $now
				MERGE (e)-[:MENTIONS]->(n)`,
				map[string]interface{}{
					"episode": res.UUID,
					"group":   ep.GroupID,
					"type":    ent.Type,
					"name":    ent.Name,
					"uuid":    uuid.New().String(),
					"now":     now,
				})
			if err != nil {
				return nil, err
			}
		}

		for _, p := range entityPairs(entities) {
			_, err := tx.Run(ctx, `
				MATCH (a:Entity {group_id: $group, type: $aType, name: $aName})
				MATCH (b:Entity {group_id: $group, type: $bType, name: $bName})
				CREATE (a)-[:RELATES_TO {uuid: $uuid, name: $rel, fact: $fact, valid_at: $validAt,
				                         episode_uuid: $episode, group_id: $group}]->(b)`,
				map[string]interface{}{
					"group":   ep.GroupID,
					"aType":   p[0].Type,
					"aName":   p[0].Name,
					"bType":   p[1].Type,
					"bName":   p[1].Name,
					"uuid":    uuid.New().String(),
					"rel":     RelatesTo,
					"fact":    factFor(p[0], p[1], ep.Name),
					"validAt": formatTime(ep.ReferenceTime),
					"episode": res.UUID,
				})
			if err != nil {
				return nil, err
			}
			res.Edges++
		}
		return nil, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add episode: %w", err)
	}

	s.logger.Debug("Episode added",
		zap.String("episode_uuid", res.UUID),
		zap.String("group_id", ep.GroupID),
		zap.Int("entities", res.Entities),
	)
	return res, nil
}

// Search runs the sub-searches selected by cfg over the given groups.
func (s *Neo4jService) Search(ctx context.Context, query string, cfg SearchConfig, groupIDs []string) (*SearchResults, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	res := &SearchResults{Nodes: []Node{}, Edges: []Edge{}, Episodes: []EpisodeHit{}, Communities: []Community{}}
	terms := queryTerms(query)
	if len(terms) == 0 {
		return res, nil
	}

	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	params := map[string]interface{}{
		"terms":  terms,
		"groups": groupIDs,
		"all":    len(groupIDs) == 0,
		"limit":  searchLimit(cfg),
	}

	if cfg.Nodes {
		records, err := collect(ctx, session, `
			MATCH (n:Entity) WHERE $all OR n.group_id IN $groups
			WITH n, size([t IN $terms WHERE toLower(n.name) CONTAINS t]) AS hits
			WHERE hits > 0
			OPTIONAL MATCH (n)<-[:MENTIONS]-(e:Episodic)
			RETURN n.uuid AS uuid, n.name AS name, n.type AS type, n.group_id AS group_id,
			       count(e) AS mentions, hits
			ORDER BY hits DESC, n.created_at DESC LIMIT $limit`, params)
		if err != nil {
			return nil, fmt.Errorf("failed to search nodes: %w", err)
		}
		for _, r := range records {
			res.Nodes = append(res.Nodes, Node{
				UUID:     getStringFromRecord(r, "uuid"),
				Name:     getStringFromRecord(r, "name"),
				Type:     getStringFromRecord(r, "type"),
				GroupID:  getStringFromRecord(r, "group_id"),
				Mentions: getIntFromRecord(r, "mentions"),
			})
		}
	}

	if cfg.Edges {
		records, err := collect(ctx, session, `
			MATCH (a:Entity)-[r:RELATES_TO]->(b:Entity) WHERE $all OR r.group_id IN $groups
			WITH a, r, b, size([t IN $terms WHERE toLower(r.fact) CONTAINS t]) AS hits
			WHERE hits > 0
			RETURN r.uuid AS uuid, r.name AS name, a.name AS source, b.name AS target,
			       r.fact AS fact, r.valid_at AS valid_at, r.group_id AS group_id
			ORDER BY hits DESC, r.valid_at DESC LIMIT $limit`, params)
		if err != nil {
			return nil, fmt.Errorf("failed to search edges: %w", err)
		}
		for _, r := range records {
			res.Edges = append(res.Edges, Edge{
				UUID:    getStringFromRecord(r, "uuid"),
				Name:    getStringFromRecord(r, "name"),
				Source:  getStringFromRecord(r, "source"),
				Target:  getStringFromRecord(r, "target"),
				Fact:    getStringFromRecord(r, "fact"),
				ValidAt: parseTime(getStringFromRecord(r, "valid_at")),
				GroupID: getStringFromRecord(r, "group_id"),
			})
		}
	}

	if cfg.Episodes {
		records, err := collect(ctx, session, `
			MATCH (e:Episodic) WHERE $all OR e.group_id IN $groups
			WITH e, size([t IN $terms WHERE toLower(e.name + ' ' + e.content) CONTAINS t]) AS hits
			WHERE hits > 0
			RETURN e.uuid AS uuid, e.name AS name, e.content AS body, e.source_description AS source,
			       e.reference_time AS ref, e.group_id AS group_id
			ORDER BY hits DESC, e.reference_time DESC LIMIT $limit`, params)
		if err != nil {
			return nil, fmt.Errorf("failed to search episodes: %w", err)
		}
		for _, r := range records {
			res.Episodes = append(res.Episodes, EpisodeHit{
				UUID:              getStringFromRecord(r, "uuid"),
				Name:              getStringFromRecord(r, "name"),
				Body:              getStringFromRecord(r, "body"),
				SourceDescription: getStringFromRecord(r, "source"),
				ReferenceTime:     parseTime(getStringFromRecord(r, "ref")),
				GroupID:           getStringFromRecord(r, "group_id"),
			})
		}
	}

	if cfg.Communities {
		records, err := collect(ctx, session, `
			MATCH (t:Entity {type: $topic}) WHERE $all OR t.group_id IN $groups
			OPTIONAL MATCH (t)<-[:MENTIONS]-(:Episodic)-[:MENTIONS]->(m:Entity) WHERE m <> t
			WITH t, collect(DISTINCT m.name) AS members
			WITH t, members, size([x IN $terms WHERE toLower(t.name + ' ' + reduce(s = '', n IN members | s + ' ' + n)) CONTAINS x]) AS hits
			WHERE hits > 0
			RETURN t.name AS name, t.group_id AS group_id, members
			ORDER BY hits DESC, t.created_at DESC LIMIT $limit`,
			mergeParams(params, map[string]interface{}{"topic": EntityTopic}))
		if err != nil {
			return nil, fmt.Errorf("failed to search communities: %w", err)
		}
		for _, r := range records {
			res.Communities = append(res.Communities, Community{
				Name:    getStringFromRecord(r, "name"),
				GroupID: getStringFromRecord(r, "group_id"),
				Members: getStringsFromRecord(r, "members"),
			})
		}
	}

	return res, nil
}

func collect(ctx context.Context, session neo4j.SessionWithContext, query string, params map[string]interface{}) ([]*neo4j.Record, error) {
	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	return result.Collect(ctx)
}

func mergeParams(a, b map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Ping verifies connectivity to the server.
func (s *Neo4jService) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.driver.VerifyConnectivity(ctx)
}

// Closed reports whether Close has been called.
func (s *Neo4jService) Closed() bool { return s.closed.Load() }

// Close closes the driver and its connection pool.
func (s *Neo4jService) Close(ctx context.Context) error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.driver.Close(ctx)
}

func getStringFromRecord(record *neo4j.Record, key string) string {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

func getIntFromRecord(record *neo4j.Record, key string) int {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return 0
	}
	if i, ok := val.(int64); ok {
		return int(i)
	}
	return 0
}

func getStringsFromRecord(record *neo4j.Record, key string) []string {
	out := []string{}
	val, ok := record.Get(key)
	if !ok || val == nil {
		return out
	}
	items, ok := val.([]interface{})
	if !ok {
		return out
	}
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
