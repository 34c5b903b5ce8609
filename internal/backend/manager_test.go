package backend

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/medelman17/suechef/internal/config"
	"github.com/medelman17/suechef/internal/embedding"
	"github.com/medelman17/suechef/internal/graph"
	"github.com/medelman17/suechef/internal/model"
	"github.com/medelman17/suechef/internal/store"
	"github.com/medelman17/suechef/internal/vector"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = dir
	cfg.Relational.Path = filepath.Join(dir, "suechef.db")
	cfg.Graph.Path = filepath.Join(dir, "graph.db")
	cfg.Vector.InMemory = true
	return cfg
}

type recorder struct {
	sleeps []time.Duration
}

func (r *recorder) sleep(ctx context.Context, d time.Duration) error {
	r.sleeps = append(r.sleeps, d)
	return nil
}

func newTestManager(t *testing.T, cfg *config.Config, open Openers) (*Manager, *recorder) {
	t.Helper()
	m := New(cfg, embedding.NewHashEmbedder(32), open, zap.NewNop())
	rec := &recorder{}
	m.sleep = rec.sleep
	t.Cleanup(func() { m.Close(context.Background()) })
	return m, rec
}

func TestInitializeAndClose(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	m, rec := newTestManager(t, cfg, DefaultOpeners(cfg, zap.NewNop()))

	assert.False(t, m.Ready())
	assert.Nil(t, m.Relational())

	require.NoError(t, m.Initialize(ctx))
	assert.True(t, m.Ready())
	assert.Empty(t, rec.sleeps)

	cols, err := m.Vectors().Collections(ctx)
	require.NoError(t, err)
	names := []string{}
	for _, c := range cols {
		names = append(names, c.Name)
		assert.Equal(t, 32, c.Dim)
	}
	assert.ElementsMatch(t, []string{"legal_events", "legal_snippets"}, names)
	assert.Equal(t, "legal_snippets", m.CollectionFor(model.KindSnippet))
	assert.Equal(t, "legal_events", m.CollectionFor(model.KindEvent))

	rel, vec, g := m.Relational(), m.Vectors(), m.Graph()
	require.NoError(t, m.Close(ctx))
	assert.True(t, rel.Closed())
	assert.True(t, vec.Closed())
	assert.True(t, g.Closed())
	assert.False(t, m.Ready())
	require.NoError(t, m.Close(ctx), "close is idempotent")
}

func TestInitializeRetriesWithBackoff(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	open := DefaultOpeners(cfg, zap.NewNop())

	calls := 0
	realGraph := open.Graph
	open.Graph = func(ctx context.Context) (graph.Service, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("connection refused")
		}
		return realGraph(ctx)
	}

	m, rec := newTestManager(t, cfg, open)
	require.NoError(t, m.Initialize(ctx))
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.sleeps)
}

func TestInitializeFailsClosed(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	open := DefaultOpeners(cfg, zap.NewNop())

	var rel *store.SQLiteStore
	realRel := open.Relational
	open.Relational = func(ctx context.Context) (*store.SQLiteStore, error) {
		s, err := realRel(ctx)
		rel = s
		return s, err
	}
	var vec VectorStore
	realVec := open.Vector
	open.Vector = func(ctx context.Context) (VectorStore, error) {
		v, err := realVec(ctx)
		vec = v
		return v, err
	}
	open.Graph = func(ctx context.Context) (graph.Service, error) {
		return nil, errors.New("no route to host")
	}

	m, rec := newTestManager(t, cfg, open)
	err := m.Initialize(ctx)

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, NameGraph, connErr.Backend)
	assert.Equal(t, 3, connErr.Attempts)
	assert.ErrorContains(t, err, "no route to host")
	assert.Len(t, rec.sleeps, 2)

	assert.False(t, m.Ready())
	assert.Nil(t, m.Relational(), "no partial state is published")
	assert.True(t, rel.Closed(), "opened backends are released")
	assert.True(t, vec.Closed())
}

func TestInitializeStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	open := DefaultOpeners(cfg, zap.NewNop())
	open.Relational = func(ctx context.Context) (*store.SQLiteStore, error) {
		return nil, errors.New("disk unavailable")
	}
	m := New(cfg, embedding.NewHashEmbedder(8), open, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := m.Initialize(ctx)

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, 1, connErr.Attempts)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEnsureReadyReinitializesClosedBackend(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	open := DefaultOpeners(cfg, zap.NewNop())
	opened := 0
	realRel := open.Relational
	open.Relational = func(ctx context.Context) (*store.SQLiteStore, error) {
		opened++
		return realRel(ctx)
	}

	m, _ := newTestManager(t, cfg, open)
	require.NoError(t, m.EnsureReady(ctx))
	require.NoError(t, m.EnsureReady(ctx))
	assert.Equal(t, 1, opened, "idempotent while healthy")

	require.NoError(t, m.Relational().Close())
	require.NoError(t, m.EnsureReady(ctx))
	assert.Equal(t, 2, opened)
	assert.True(t, m.Ready())
	require.NoError(t, m.Relational().Ping(ctx))
}

func TestNewReadyAndStatus(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	rel, err := store.NewSQLiteStore(filepath.Join(dir, "suechef.db"))
	require.NoError(t, err)
	vec, err := vector.Open(vector.Options{InMemory: true})
	require.NoError(t, err)
	g, err := graph.OpenSQLite(filepath.Join(dir, "graph.db"))
	require.NoError(t, err)
	require.NoError(t, vec.EnsureCollection(ctx, "ev", 8))

	m := NewReady(Backends{Relational: rel, Vectors: vec, Graph: g}, embedding.NewHashEmbedder(8),
		config.Default().Lifecycle, Collections{Events: "ev", Snippets: "sn"}, nil)
	t.Cleanup(func() { m.Close(ctx) })

	require.NoError(t, m.EnsureReady(ctx))
	st := m.Status(ctx)
	assert.True(t, st.Ready)
	assert.True(t, st.Relational.OK)
	assert.True(t, st.Vector.OK)
	assert.True(t, st.Graph.OK)
	require.NotNil(t, st.Totals)
	assert.Equal(t, 0, st.Totals.Events)
	require.Len(t, st.Collections, 1)
	assert.Equal(t, "ev", st.Collections[0].Name)
	assert.Equal(t, 8, st.EmbedDims)

	require.NoError(t, vec.Close())
	var connErr *ConnectionError
	assert.ErrorAs(t, m.EnsureReady(ctx), &connErr, "injected backends cannot be reopened")
}
