package legal

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/medelman17/suechef/internal/backend"
	"github.com/medelman17/suechef/internal/embedding"
	"github.com/medelman17/suechef/internal/graph"
	"github.com/medelman17/suechef/internal/model"
	"github.com/medelman17/suechef/internal/store"
)

// Outcome records one non-authoritative step of a write.
type Outcome struct {
	OK      bool   `json:"ok"`
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
	Millis  int64  `json:"latency_ms"`
}

// DebugInfo reports which enrichment steps landed.
type DebugInfo struct {
	Embedding Outcome `json:"embedding"`
	Vector    Outcome `json:"vector"`
	Graph     Outcome `json:"graph"`
}

// Degraded reports whether any attempted enrichment step failed. Skipped
// steps do not count.
func (d DebugInfo) Degraded() bool {
	for _, o := range []Outcome{d.Embedding, d.Vector, d.Graph} {
		if !o.OK && !o.Skipped && o.Error != "" {
			return true
		}
	}
	return false
}

// WriteResult is the outcome of a create, update or delete. Status is keyed
// on the relational step alone.
type WriteResult struct {
	ID        string           `json:"id"`
	Kind      model.Kind       `json:"kind"`
	Status    string           `json:"status"`
	Event     *model.Event     `json:"event,omitempty"`
	Snippet   *model.Snippet   `json:"snippet,omitempty"`
	DebugInfo DebugInfo        `json:"debug_info"`
	Embedding embedding.Vector `json:"-"`
}

// Writer lands records in the relational store and mirrors them into the
// vector store and the knowledge graph.
type Writer struct {
	m   *backend.Manager
	log *zap.Logger
}

// NewWriter returns a writer over the manager's backends.
func NewWriter(m *backend.Manager, log *zap.Logger) *Writer {
	return &Writer{m: m, log: log.Named("writer")}
}

// enrichment describes the derived copies of one record.
type enrichment struct {
	kind    model.Kind
	id      string
	text    string
	payload map[string]any
	episode *graph.Episode // nil skips the graph step
}

// WriteEvent creates an event. Only a relational failure fails the call.
func (w *Writer) WriteEvent(ctx context.Context, in store.EventInput) (*WriteResult, error) {
	cctx, cancel := w.m.CallContext(ctx)
	ev, err := w.m.Relational().CreateEvent(cctx, in)
	cancel()
	if err != nil {
		return nil, classify("create event", CreationError, err)
	}

	res := &WriteResult{ID: ev.ID, Kind: model.KindEvent, Status: StatusSuccess, Event: ev}
	w.enrich(ctx, res, enrichment{
		kind:    model.KindEvent,
		id:      ev.ID,
		text:    ev.EmbeddingText(),
		payload: ev.VectorPayload(),
		episode: eventEpisode(ev),
	})
	return res, nil
}

// WriteSnippet creates a snippet. Only a relational failure fails the call.
func (w *Writer) WriteSnippet(ctx context.Context, in store.SnippetInput) (*WriteResult, error) {
	cctx, cancel := w.m.CallContext(ctx)
	sn, err := w.m.Relational().CreateSnippet(cctx, in)
	cancel()
	if err != nil {
		return nil, classify("create snippet", CreationError, err)
	}

	res := &WriteResult{ID: sn.ID, Kind: model.KindSnippet, Status: StatusSuccess, Snippet: sn}
	w.enrich(ctx, res, enrichment{
		kind:    model.KindSnippet,
		id:      sn.ID,
		text:    sn.EmbeddingText(),
		payload: sn.VectorPayload(),
		episode: snippetEpisode(sn),
	})
	return res, nil
}

// UpdateEvent applies p. The vector copy is always refreshed; an update
// episode is recorded only when descriptive text changed.
func (w *Writer) UpdateEvent(ctx context.Context, id string, p store.EventPatch) (*WriteResult, error) {
	cctx, cancel := w.m.CallContext(ctx)
	ev, err := w.m.Relational().UpdateEvent(cctx, id, p)
	cancel()
	if err != nil {
		return nil, classify("update event", UpdateError, err)
	}

	e := enrichment{kind: model.KindEvent, id: ev.ID, text: ev.EmbeddingText(), payload: ev.VectorPayload()}
	if p.TextChanged() {
		e.episode = &graph.Episode{
			Name:              "Event Update: " + clip(ev.Description, 50),
			Body:              strings.TrimSpace("Updated legal event: " + ev.Description + ". " + ev.Excerpts),
			SourceDescription: "Legal event update " + ev.ID,
			ReferenceTime:     ev.UpdatedAt,
			GroupID:           ev.GroupID,
			Entities:          entities(graph.EntityParty, ev.Parties, graph.EntityTopic, ev.Tags),
		}
	}
	res := &WriteResult{ID: ev.ID, Kind: model.KindEvent, Status: StatusSuccess, Event: ev}
	w.enrich(ctx, res, e)
	return res, nil
}

// UpdateSnippet applies p with the same policy as UpdateEvent.
func (w *Writer) UpdateSnippet(ctx context.Context, id string, p store.SnippetPatch) (*WriteResult, error) {
	cctx, cancel := w.m.CallContext(ctx)
	sn, err := w.m.Relational().UpdateSnippet(cctx, id, p)
	cancel()
	if err != nil {
		return nil, classify("update snippet", UpdateError, err)
	}

	e := enrichment{kind: model.KindSnippet, id: sn.ID, text: sn.EmbeddingText(), payload: sn.VectorPayload()}
	if p.TextChanged() {
		e.episode = &graph.Episode{
			Name:              "Snippet Update: " + clip(sn.Citation, 50),
			Body:              "Updated legal precedent: " + sn.Citation + "\n" + sn.KeyLanguage,
			SourceDescription: "Legal snippet update " + sn.ID,
			ReferenceTime:     sn.UpdatedAt,
			GroupID:           sn.GroupID,
			Entities:          snippetEntities(sn),
		}
	}
	res := &WriteResult{ID: sn.ID, Kind: model.KindSnippet, Status: StatusSuccess, Snippet: sn}
	w.enrich(ctx, res, e)
	return res, nil
}

// DeleteEvent removes the event and its vector. Graph episodes are kept as
// historical record.
func (w *Writer) DeleteEvent(ctx context.Context, id string) (*WriteResult, error) {
	return w.delete(ctx, model.KindEvent, id, w.m.Relational().DeleteEvent)
}

// DeleteSnippet removes the snippet and its vector.
func (w *Writer) DeleteSnippet(ctx context.Context, id string) (*WriteResult, error) {
	return w.delete(ctx, model.KindSnippet, id, w.m.Relational().DeleteSnippet)
}

func (w *Writer) delete(ctx context.Context, kind model.Kind, id string, del func(context.Context, string) error) (*WriteResult, error) {
	cctx, cancel := w.m.CallContext(ctx)
	err := del(cctx, id)
	cancel()
	if err != nil {
		return nil, classify("delete "+string(kind), DeletionError, err)
	}

	res := &WriteResult{ID: id, Kind: kind, Status: StatusSuccess}
	res.DebugInfo.Embedding = Outcome{Skipped: true}
	res.DebugInfo.Graph = Outcome{Skipped: true}
	res.DebugInfo.Vector = w.step(ctx, func(ctx context.Context) error {
		return w.m.Vectors().Delete(ctx, w.m.CollectionFor(kind), id)
	})
	w.logOutcome("delete", kind, id, res.DebugInfo)
	return res, nil
}

// enrich runs the embed+upsert chain and the graph ingest concurrently.
// Failures are recorded on res and never returned.
func (w *Writer) enrich(ctx context.Context, res *WriteResult, e enrichment) {
	var g errgroup.Group

	g.Go(func() error {
		vec, out := w.embed(ctx, e.text)
		res.DebugInfo.Embedding = out
		if !out.OK {
			res.DebugInfo.Vector = Outcome{Skipped: true, Error: "no embedding"}
			return nil
		}
		res.Embedding = vec
		res.DebugInfo.Vector = w.step(ctx, func(ctx context.Context) error {
			return w.m.Vectors().Upsert(ctx, w.m.CollectionFor(e.kind), e.id, vec, e.payload)
		})
		return nil
	})

	g.Go(func() error {
		if e.episode == nil {
			res.DebugInfo.Graph = Outcome{Skipped: true}
			return nil
		}
		res.DebugInfo.Graph = w.step(ctx, func(ctx context.Context) error {
			_, err := w.m.Graph().AddEpisode(ctx, *e.episode)
			return err
		})
		return nil
	})

	g.Wait()
	w.logOutcome("write", e.kind, e.id, res.DebugInfo)
}

func (w *Writer) embed(ctx context.Context, text string) (embedding.Vector, Outcome) {
	var vec embedding.Vector
	var embedErr error
	out := w.step(ctx, func(ctx context.Context) error {
		vec, embedErr = w.m.Embedder().Embed(ctx, text)
		return embedErr
	})
	if errors.Is(embedErr, embedding.ErrDisabled) {
		out.Skipped = true
	}
	return vec, out
}

// step runs fn under the per-call timeout and records the result.
func (w *Writer) step(ctx context.Context, fn func(context.Context) error) Outcome {
	cctx, cancel := w.m.CallContext(ctx)
	defer cancel()
	start := time.Now()
	err := fn(cctx)
	out := Outcome{OK: err == nil, Millis: time.Since(start).Milliseconds()}
	if err != nil {
		out.Error = err.Error()
	}
	return out
}

func (w *Writer) logOutcome(op string, kind model.Kind, id string, d DebugInfo) {
	if !d.Degraded() {
		w.log.Debug(op+" complete", zap.String("kind", string(kind)), zap.String("id", id))
		return
	}
	w.log.Warn(op+" degraded",
		zap.String("kind", string(kind)),
		zap.String("id", id),
		zap.String("embedding_error", d.Embedding.Error),
		zap.String("vector_error", d.Vector.Error),
		zap.String("graph_error", d.Graph.Error),
	)
}

func eventEpisode(ev *model.Event) *graph.Episode {
	body := "On " + ev.Date + ": " + ev.Description
	if ev.Excerpts != "" {
		body += "\nExcerpts: " + ev.Excerpts
	}
	source := ev.DocumentSource
	if source == "" {
		source = "Legal Timeline"
	}
	ref, err := model.ParseDate(ev.Date)
	if err != nil {
		ref = ev.CreatedAt
	}
	return &graph.Episode{
		Name:              "Legal Event - " + ev.Date,
		Body:              body,
		SourceDescription: source,
		ReferenceTime:     ref,
		GroupID:           ev.GroupID,
		Entities:          entities(graph.EntityParty, ev.Parties, graph.EntityTopic, ev.Tags),
	}
}

func snippetEpisode(sn *model.Snippet) *graph.Episode {
	body := "Legal Precedent: " + sn.Citation + "\n" + sn.KeyLanguage
	if sn.Context != "" {
		body += "\nContext: " + sn.Context
	}
	return &graph.Episode{
		Name:              "Legal Snippet - " + sn.Citation,
		Body:              body,
		SourceDescription: sn.Citation,
		ReferenceTime:     sn.CreatedAt,
		GroupID:           sn.GroupID,
		Entities:          snippetEntities(sn),
	}
}

func snippetEntities(sn *model.Snippet) []graph.EntityRef {
	refs := []graph.EntityRef{{Name: sn.Citation, Type: graph.EntityCase}}
	return append(refs, entities(graph.EntityTopic, sn.Tags, "", nil)...)
}

func entities(typeA string, a []string, typeB string, b []string) []graph.EntityRef {
	refs := make([]graph.EntityRef, 0, len(a)+len(b))
	for _, name := range a {
		refs = append(refs, graph.EntityRef{Name: name, Type: typeA})
	}
	for _, name := range b {
		refs = append(refs, graph.EntityRef{Name: name, Type: typeB})
	}
	return refs
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
