// Package config loads suechef settings from defaults, a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DataDir    string           `yaml:"data_dir" env:"SUECHEF_DATA_DIR"`
	Relational RelationalConfig `yaml:"relational"`
	Vector     VectorConfig     `yaml:"vector"`
	Graph      GraphConfig      `yaml:"graph"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Lifecycle  LifecycleConfig  `yaml:"lifecycle"`
	Discovery  DiscoveryConfig  `yaml:"discovery"`
	Log        LogConfig        `yaml:"log"`
	MCP        MCPConfig        `yaml:"mcp"`
}

type RelationalConfig struct {
	Path string `yaml:"path" env:"SUECHEF_DB_PATH"`
}

type VectorConfig struct {
	Dir                string `yaml:"dir" env:"SUECHEF_VECTOR_DIR"`
	InMemory           bool   `yaml:"in_memory" env:"SUECHEF_VECTOR_IN_MEMORY"`
	EventsCollection   string `yaml:"events_collection" env:"SUECHEF_VECTOR_EVENTS_COLLECTION"`
	SnippetsCollection string `yaml:"snippets_collection" env:"SUECHEF_VECTOR_SNIPPETS_COLLECTION"`
}

type GraphConfig struct {
	Backend string      `yaml:"backend" env:"SUECHEF_GRAPH_BACKEND"` // sqlite | neo4j
	Path    string      `yaml:"path" env:"SUECHEF_GRAPH_PATH"`
	Neo4j   Neo4jConfig `yaml:"neo4j"`
}

type Neo4jConfig struct {
	URI      string `yaml:"uri" env:"NEO4J_URI"`
	User     string `yaml:"user" env:"NEO4J_USER"`
	Password string `yaml:"password" env:"NEO4J_PASSWORD"`
	Database string `yaml:"database" env:"NEO4J_DATABASE"`
}

type EmbeddingConfig struct {
	Provider string `yaml:"provider" env:"SUECHEF_EMBED_PROVIDER"` // openai | ollama | hash | disabled
	Model    string `yaml:"model" env:"SUECHEF_EMBED_MODEL"`
	BaseURL  string `yaml:"base_url" env:"SUECHEF_EMBED_URL"`
	APIKey   string `yaml:"api_key" env:"OPENAI_API_KEY"`
	Dims     int    `yaml:"dims" env:"SUECHEF_EMBED_DIMS"`
}

// LifecycleConfig governs backend startup and per-call timeouts.
type LifecycleConfig struct {
	MaxAttempts    int           `yaml:"max_attempts" env:"SUECHEF_INIT_MAX_ATTEMPTS"`
	InitialBackoff time.Duration `yaml:"initial_backoff" env:"SUECHEF_INIT_BACKOFF"`
	CallTimeout    time.Duration `yaml:"call_timeout" env:"SUECHEF_CALL_TIMEOUT"`
}

// DiscoveryConfig holds the related-entity thresholds and confidences.
type DiscoveryConfig struct {
	Limit                 int     `yaml:"limit" env:"SUECHEF_RELATED_LIMIT"`
	CandidateLimit        int     `yaml:"candidate_limit" env:"SUECHEF_RELATED_CANDIDATES"`
	ParticipantConfidence float64 `yaml:"participant_confidence" env:"SUECHEF_RELATED_PARTICIPANT_CONFIDENCE"`
	TagConfidence         float64 `yaml:"tag_confidence" env:"SUECHEF_RELATED_TAG_CONFIDENCE"`
	SimilarityThreshold   float64 `yaml:"similarity_threshold" env:"SUECHEF_RELATED_SIMILARITY_THRESHOLD"`
	TemporalWindowDays    int     `yaml:"temporal_window_days" env:"SUECHEF_RELATED_WINDOW_DAYS"`
	TemporalFloor         float64 `yaml:"temporal_floor" env:"SUECHEF_RELATED_TEMPORAL_FLOOR"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"SUECHEF_LOG_LEVEL"`
	Format string `yaml:"format" env:"SUECHEF_LOG_FORMAT"` // console | json
}

type MCPConfig struct {
	Transport string `yaml:"transport" env:"SUECHEF_MCP_TRANSPORT"` // stdio | http
	Addr      string `yaml:"addr" env:"SUECHEF_MCP_ADDR"`
}

// Default returns the built-in configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		DataDir: filepath.Join(home, ".suechef"),
		Vector: VectorConfig{
			EventsCollection:   "legal_events",
			SnippetsCollection: "legal_snippets",
		},
		Graph:     GraphConfig{Backend: "sqlite"},
		Embedding: EmbeddingConfig{Provider: "disabled"},
		Lifecycle: LifecycleConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Second,
			CallTimeout:    30 * time.Second,
		},
		Discovery: DiscoveryConfig{
			Limit:                 10,
			CandidateLimit:        50,
			ParticipantConfidence: 0.9,
			TagConfidence:         0.7,
			SimilarityThreshold:   0.7,
			TemporalWindowDays:    30,
			TemporalFloor:         0.3,
		},
		Log: LogConfig{Level: "info", Format: "console"},
		MCP: MCPConfig{Transport: "stdio", Addr: ":8080"},
	}
}

// Load reads path (if non-empty and present), applies environment overrides,
// fills derived paths and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: env: %w", err)
	}

	cfg.fillPaths()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) fillPaths() {
	c.DataDir = expandHome(c.DataDir)
	if c.Relational.Path == "" {
		c.Relational.Path = filepath.Join(c.DataDir, "suechef.db")
	}
	if c.Vector.Dir == "" {
		c.Vector.Dir = filepath.Join(c.DataDir, "vectors")
	}
	if c.Graph.Path == "" {
		c.Graph.Path = filepath.Join(c.DataDir, "graph.db")
	}
	c.Relational.Path = expandHome(c.Relational.Path)
	c.Vector.Dir = expandHome(c.Vector.Dir)
	c.Graph.Path = expandHome(c.Graph.Path)
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	switch c.Graph.Backend {
	case "sqlite":
	case "neo4j":
		if c.Graph.Neo4j.URI == "" {
			errs = append(errs, errors.New("graph.neo4j.uri is required for the neo4j backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("graph.backend %q: want sqlite or neo4j", c.Graph.Backend))
	}
	if c.Lifecycle.MaxAttempts < 1 {
		errs = append(errs, errors.New("lifecycle.max_attempts must be at least 1"))
	}
	if c.Lifecycle.CallTimeout <= 0 {
		errs = append(errs, errors.New("lifecycle.call_timeout must be positive"))
	}
	d := c.Discovery
	for name, v := range map[string]float64{
		"participant_confidence": d.ParticipantConfidence,
		"tag_confidence":         d.TagConfidence,
		"similarity_threshold":   d.SimilarityThreshold,
		"temporal_floor":         d.TemporalFloor,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("discovery.%s %.2f outside [0,1]", name, v))
		}
	}
	if d.Limit < 1 || d.TemporalWindowDays < 1 {
		errs = append(errs, errors.New("discovery.limit and discovery.temporal_window_days must be positive"))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q: want console or json", c.Log.Format))
	}
	switch c.MCP.Transport {
	case "stdio", "http":
	default:
		errs = append(errs, fmt.Errorf("mcp.transport %q: want stdio or http", c.MCP.Transport))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
