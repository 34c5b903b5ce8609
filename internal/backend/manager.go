// Package backend owns the lifecycle of the relational store, the vector store
// and the knowledge-graph service.
//
// Callers pass through EnsureReady before touching a backend. The manager
// either publishes all three backends at once or none of them.
package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/medelman17/suechef/internal/config"
	"github.com/medelman17/suechef/internal/embedding"
	"github.com/medelman17/suechef/internal/graph"
	"github.com/medelman17/suechef/internal/model"
	"github.com/medelman17/suechef/internal/store"
	"github.com/medelman17/suechef/internal/vector"
)

// Backend names used in errors, logs and status reports.
const (
	NameRelational = "relational"
	NameVector     = "vector"
	NameGraph      = "graph"
)

// VectorStore is the named-collection vector index. *vector.Store satisfies it.
type VectorStore interface {
	EnsureCollection(ctx context.Context, name string, dim int) error
	Collections(ctx context.Context) ([]vector.Collection, error)
	Upsert(ctx context.Context, collection, id string, vec []float32, payload map[string]any) error
	Delete(ctx context.Context, collection string, ids ...string) error
	Count(ctx context.Context, collection string) (int, error)
	Search(ctx context.Context, collection string, vec []float32, limit int, filter vector.Filter) ([]vector.Hit, error)
	Ping(ctx context.Context) error
	Closed() bool
	Close() error
}

// ConnectionError is returned when a backend stays unreachable after every attempt.
type ConnectionError struct {
	Backend  string
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: gave up after %d attempts: %v", e.Backend, e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Openers build fresh backend handles. Each call returns a new connection.
type Openers struct {
	Relational func(ctx context.Context) (*store.SQLiteStore, error)
	Vector     func(ctx context.Context) (VectorStore, error)
	Graph      func(ctx context.Context) (graph.Service, error)
}

// DefaultOpeners opens the backends named in cfg.
func DefaultOpeners(cfg *config.Config, log *zap.Logger) Openers {
	return Openers{
		Relational: func(ctx context.Context) (*store.SQLiteStore, error) {
			return store.NewSQLiteStore(cfg.Relational.Path)
		},
		Vector: func(ctx context.Context) (VectorStore, error) {
			return vector.Open(vector.Options{Dir: cfg.Vector.Dir, InMemory: cfg.Vector.InMemory, Logger: log})
		},
		Graph: func(ctx context.Context) (graph.Service, error) {
			if cfg.Graph.Backend == "neo4j" {
				return graph.OpenNeo4j(ctx, graph.Neo4jConfig{
					URI:      cfg.Graph.Neo4j.URI,
					User:     cfg.Graph.Neo4j.User,
					Password: cfg.Graph.Neo4j.Password,
					Database: cfg.Graph.Neo4j.Database,
				}, log)
			}
			return graph.OpenSQLite(cfg.Graph.Path)
		},
	}
}

// Backends is a ready set of backend handles.
type Backends struct {
	Relational *store.SQLiteStore
	Vectors    VectorStore
	Graph      graph.Service
}

// Collections names the vector collection for each entity kind.
type Collections struct {
	Events   string
	Snippets string
}

// Manager opens, probes and closes the backends.
type Manager struct {
	mu          sync.Mutex
	open        Openers
	lifecycle   config.LifecycleConfig
	collections Collections
	embedder    embedding.Embedder
	log         *zap.Logger
	sleep       func(ctx context.Context, d time.Duration) error

	b *Backends
}

// New creates a manager. Nothing is opened until Initialize or EnsureReady.
func New(cfg *config.Config, embedder embedding.Embedder, open Openers, log *zap.Logger) *Manager {
	return &Manager{
		open:      open,
		lifecycle: cfg.Lifecycle,
		collections: Collections{
			Events:   cfg.Vector.EventsCollection,
			Snippets: cfg.Vector.SnippetsCollection,
		},
		embedder: embedder,
		log:      log.Named("backend"),
		sleep:    sleepCtx,
	}
}

// NewReady wraps already-open backends. The manager never reopens them.
func NewReady(b Backends, embedder embedding.Embedder, lifecycle config.LifecycleConfig, collections Collections, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		lifecycle:   lifecycle,
		collections: collections,
		embedder:    embedder,
		log:         log,
		sleep:       sleepCtx,
		b:           &b,
	}
}

// Initialize connects every backend, retrying each with exponential backoff.
// On failure it closes whatever it opened and returns a *ConnectionError.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialize(ctx)
}

// EnsureReady initializes the manager if it has never been initialized or if
// any backend reports itself closed. Safe to call from every entry point.
func (m *Manager) EnsureReady(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.b != nil && !m.b.Relational.Closed() && !m.b.Vectors.Closed() && !m.b.Graph.Closed() {
		return nil
	}
	if m.open.Relational == nil {
		return &ConnectionError{Backend: NameRelational, Err: errors.New("backends closed and no openers configured")}
	}
	if m.b != nil {
		m.log.Warn("backend closed, reinitializing")
		m.closeAll(ctx, m.b)
		m.b = nil
	}
	return m.initialize(ctx)
}

func (m *Manager) initialize(ctx context.Context) error {
	if m.b != nil {
		return nil
	}
	var b Backends

	rel, err := connect(m, ctx, NameRelational, m.open.Relational, func(ctx context.Context, s *store.SQLiteStore) error {
		return s.Ping(ctx)
	}, func(s *store.SQLiteStore) { s.Close() })
	if err != nil {
		return err
	}
	b.Relational = rel

	vec, err := connect(m, ctx, NameVector, m.open.Vector, func(ctx context.Context, v VectorStore) error {
		if err := v.Ping(ctx); err != nil {
			return err
		}
		dims := m.embedder.Dims()
		if err := v.EnsureCollection(ctx, m.collections.Events, dims); err != nil {
			return err
		}
		return v.EnsureCollection(ctx, m.collections.Snippets, dims)
	}, func(v VectorStore) { v.Close() })
	if err != nil {
		m.closeAll(ctx, &b)
		return err
	}
	b.Vectors = vec

	g, err := connect(m, ctx, NameGraph, m.open.Graph, func(ctx context.Context, g graph.Service) error {
		if err := g.Ping(ctx); err != nil {
			return err
		}
		return g.BuildIndices(ctx)
	}, func(g graph.Service) { g.Close(ctx) })
	if err != nil {
		m.closeAll(ctx, &b)
		return err
	}
	b.Graph = g

	m.b = &b
	m.log.Info("backends ready")
	return nil
}

// connect opens and probes one backend, retrying up to MaxAttempts.
func connect[T any](m *Manager, ctx context.Context, name string, open func(context.Context) (T, error), probe func(context.Context, T) error, release func(T)) (T, error) {
	var zero T
	attempts := max(m.lifecycle.MaxAttempts, 1)
	backoff := m.lifecycle.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		h, err := tryConnect(ctx, m.lifecycle.CallTimeout, open, probe, release)
		if err == nil {
			if attempt > 1 {
				m.log.Info("backend connected", zap.String("backend", name), zap.Int("attempt", attempt))
			}
			return h, nil
		}
		lastErr = err
		m.log.Warn("backend connect failed",
			zap.String("backend", name),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Error(err),
		)
		if attempt == attempts {
			break
		}
		if err := m.sleep(ctx, backoff); err != nil {
			return zero, &ConnectionError{Backend: name, Attempts: attempt, Err: err}
		}
		backoff *= 2
	}
	return zero, &ConnectionError{Backend: name, Attempts: attempts, Err: lastErr}
}

// tryConnect runs one open+probe attempt under the call timeout and releases
// the handle if the probe fails.
func tryConnect[T any](ctx context.Context, timeout time.Duration, open func(context.Context) (T, error), probe func(context.Context, T) error, release func(T)) (T, error) {
	var zero T
	cctx, cancel := callContext(ctx, timeout)
	defer cancel()

	h, err := open(cctx)
	if err != nil {
		return zero, err
	}
	if err := probe(cctx, h); err != nil {
		release(h)
		return zero, err
	}
	return h, nil
}

func callContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// CallContext derives a context bounded by the per-call timeout.
func (m *Manager) CallContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return callContext(ctx, m.lifecycle.CallTimeout)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Close releases the graph service, then the vector store, then the relational pool.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.b == nil {
		return nil
	}
	err := m.closeAll(ctx, m.b)
	m.b = nil
	return err
}

func (m *Manager) closeAll(ctx context.Context, b *Backends) error {
	var errs []error
	if b.Graph != nil && !b.Graph.Closed() {
		if err := b.Graph.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close graph: %w", err))
		}
	}
	if b.Vectors != nil && !b.Vectors.Closed() {
		if err := b.Vectors.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close vector: %w", err))
		}
	}
	if b.Relational != nil && !b.Relational.Closed() {
		if err := b.Relational.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close relational: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) current() *Backends {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.b == nil {
		return &Backends{}
	}
	return m.b
}

// Relational returns the relational store, or nil before initialization.
func (m *Manager) Relational() *store.SQLiteStore { return m.current().Relational }

// Vectors returns the vector store, or nil before initialization.
func (m *Manager) Vectors() VectorStore { return m.current().Vectors }

// Graph returns the knowledge-graph service, or nil before initialization.
func (m *Manager) Graph() graph.Service { return m.current().Graph }

func (m *Manager) Embedder() embedding.Embedder { return m.embedder }

func (m *Manager) Collections() Collections { return m.collections }

// CollectionFor returns the vector collection holding entities of kind.
func (m *Manager) CollectionFor(kind model.Kind) string {
	if kind == model.KindSnippet {
		return m.collections.Snippets
	}
	return m.collections.Events
}

// Ready reports whether every backend is open.
func (m *Manager) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.b != nil && !m.b.Relational.Closed() && !m.b.Vectors.Closed() && !m.b.Graph.Closed()
}
