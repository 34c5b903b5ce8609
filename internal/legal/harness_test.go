package legal

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/medelman17/suechef/internal/backend"
	"github.com/medelman17/suechef/internal/config"
	"github.com/medelman17/suechef/internal/embedding"
	"github.com/medelman17/suechef/internal/graph"
	"github.com/medelman17/suechef/internal/store"
	"github.com/medelman17/suechef/internal/vector"
)

var errInjected = errors.New("injected failure")

const testDims = 1024

// stall blocks until ctx is done when hang is set.
func stall(ctx context.Context, hang *atomic.Bool) error {
	if !hang.Load() {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

// flakyVectors fails the data-path calls while fail is set and blocks them
// while hang is set.
type flakyVectors struct {
	backend.VectorStore
	fail atomic.Bool
	hang atomic.Bool
}

func (f *flakyVectors) Upsert(ctx context.Context, collection, id string, vec []float32, payload map[string]any) error {
	if f.fail.Load() {
		return errInjected
	}
	if err := stall(ctx, &f.hang); err != nil {
		return err
	}
	return f.VectorStore.Upsert(ctx, collection, id, vec, payload)
}

func (f *flakyVectors) Search(ctx context.Context, collection string, vec []float32, limit int, filter vector.Filter) ([]vector.Hit, error) {
	if f.fail.Load() {
		return nil, errInjected
	}
	if err := stall(ctx, &f.hang); err != nil {
		return nil, err
	}
	return f.VectorStore.Search(ctx, collection, vec, limit, filter)
}

func (f *flakyVectors) Delete(ctx context.Context, collection string, ids ...string) error {
	if f.fail.Load() {
		return errInjected
	}
	return f.VectorStore.Delete(ctx, collection, ids...)
}

// flakyGraph fails ingest and search while fail is set and blocks them while
// hang is set.
type flakyGraph struct {
	graph.Service
	fail atomic.Bool
	hang atomic.Bool
}

func (f *flakyGraph) AddEpisode(ctx context.Context, ep graph.Episode) (*graph.EpisodeResult, error) {
	if f.fail.Load() {
		return nil, errInjected
	}
	if err := stall(ctx, &f.hang); err != nil {
		return nil, err
	}
	return f.Service.AddEpisode(ctx, ep)
}

func (f *flakyGraph) Search(ctx context.Context, query string, cfg graph.SearchConfig, groupIDs []string) (*graph.SearchResults, error) {
	if f.fail.Load() {
		return nil, errInjected
	}
	if err := stall(ctx, &f.hang); err != nil {
		return nil, err
	}
	return f.Service.Search(ctx, query, cfg, groupIDs)
}

// flakyEmbedder fails while fail is set.
type flakyEmbedder struct {
	embedding.Embedder
	fail atomic.Bool
}

func (f *flakyEmbedder) Embed(ctx context.Context, text string) (embedding.Vector, error) {
	if f.fail.Load() {
		return nil, errInjected
	}
	return f.Embedder.Embed(ctx, text)
}

func withCallTimeout(d time.Duration) func(*config.Config) {
	return func(c *config.Config) { c.Lifecycle.CallTimeout = d }
}

type harness struct {
	rel      *store.SQLiteStore
	vectors  *flakyVectors
	graph    *flakyGraph
	embedder *flakyEmbedder
	m        *backend.Manager
	svc      *Service
	writer   *Writer
	fuser    *Fuser
	discover *Discovery
}

func newHarness(t *testing.T, opts ...func(*config.Config)) *harness {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	rel, err := store.NewSQLiteStore(filepath.Join(dir, "suechef.db"))
	require.NoError(t, err)
	vs, err := vector.Open(vector.Options{InMemory: true})
	require.NoError(t, err)
	gs, err := graph.OpenSQLite(filepath.Join(dir, "graph.db"))
	require.NoError(t, err)
	require.NoError(t, gs.BuildIndices(ctx))

	cfg := config.Default()
	for _, o := range opts {
		o(cfg)
	}
	cols := backend.Collections{Events: cfg.Vector.EventsCollection, Snippets: cfg.Vector.SnippetsCollection}
	require.NoError(t, vs.EnsureCollection(ctx, cols.Events, testDims))
	require.NoError(t, vs.EnsureCollection(ctx, cols.Snippets, testDims))

	h := &harness{
		rel:      rel,
		vectors:  &flakyVectors{VectorStore: vs},
		graph:    &flakyGraph{Service: gs},
		embedder: &flakyEmbedder{Embedder: embedding.NewHashEmbedder(testDims)},
	}
	h.m = backend.NewReady(backend.Backends{Relational: rel, Vectors: h.vectors, Graph: h.graph},
		h.embedder, cfg.Lifecycle, cols, zap.NewNop())
	t.Cleanup(func() { h.m.Close(ctx) })

	log := zap.NewNop()
	h.svc = NewService(h.m, cfg.Discovery, log)
	h.writer = NewWriter(h.m, log)
	h.fuser = NewFuser(h.m, log)
	h.discover = NewDiscovery(h.m, cfg.Discovery, log)
	return h
}

func (h *harness) event(t *testing.T, in store.EventInput) *WriteResult {
	t.Helper()
	res, err := h.writer.WriteEvent(context.Background(), in)
	require.NoError(t, err)
	return res
}

func (h *harness) snippet(t *testing.T, in store.SnippetInput) *WriteResult {
	t.Helper()
	res, err := h.writer.WriteSnippet(context.Background(), in)
	require.NoError(t, err)
	return res
}
