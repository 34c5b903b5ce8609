package legal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/medelman17/suechef/internal/backend"
	"github.com/medelman17/suechef/internal/chunker"
	"github.com/medelman17/suechef/internal/config"
	"github.com/medelman17/suechef/internal/graph"
	"github.com/medelman17/suechef/internal/model"
	"github.com/medelman17/suechef/internal/store"
)

// Service is the caller-facing operation set. Every operation passes through
// the manager's ready gate first.
type Service struct {
	m         *backend.Manager
	writer    *Writer
	fuser     *Fuser
	discovery *Discovery
	log       *zap.Logger
}

// NewService wires the writer, fuser and discovery engine over one manager.
func NewService(m *backend.Manager, discovery config.DiscoveryConfig, log *zap.Logger) *Service {
	return &Service{
		m:         m,
		writer:    NewWriter(m, log),
		fuser:     NewFuser(m, log),
		discovery: NewDiscovery(m, discovery, log),
		log:       log,
	}
}

func (s *Service) ready(ctx context.Context) error {
	if err := s.m.EnsureReady(ctx); err != nil {
		return &Error{Type: ConnectionError, Op: "connect", Err: err}
	}
	return nil
}

// CreateResult is a write plus the related entities found for it.
type CreateResult struct {
	*WriteResult
	Related *RelatedResult `json:"related"`
}

// CreateEvent writes the event and looks up related entities.
func (s *Service) CreateEvent(ctx context.Context, in store.EventInput) (*CreateResult, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	res, err := s.writer.WriteEvent(ctx, in)
	if err != nil {
		return nil, err
	}
	related := s.discovery.FindRelated(ctx, EventSubject(res.Event, res.Embedding))
	return &CreateResult{WriteResult: res, Related: related}, nil
}

// CreateSnippet writes the snippet and looks up related entities.
func (s *Service) CreateSnippet(ctx context.Context, in store.SnippetInput) (*CreateResult, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	res, err := s.writer.WriteSnippet(ctx, in)
	if err != nil {
		return nil, err
	}
	related := s.discovery.FindRelated(ctx, SnippetSubject(res.Snippet, res.Embedding))
	return &CreateResult{WriteResult: res, Related: related}, nil
}

func (s *Service) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	cctx, cancel := s.m.CallContext(ctx)
	defer cancel()
	ev, err := s.m.Relational().GetEvent(cctx, id)
	return ev, classify("get event", RetrievalError, err)
}

func (s *Service) GetSnippet(ctx context.Context, id string) (*model.Snippet, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	cctx, cancel := s.m.CallContext(ctx)
	defer cancel()
	sn, err := s.m.Relational().GetSnippet(cctx, id)
	return sn, classify("get snippet", RetrievalError, err)
}

func (s *Service) ListEvents(ctx context.Context, f store.EventFilter) (*store.EventPage, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	cctx, cancel := s.m.CallContext(ctx)
	defer cancel()
	page, err := s.m.Relational().ListEvents(cctx, f)
	return page, classify("list events", RetrievalError, err)
}

func (s *Service) ListSnippets(ctx context.Context, f store.SnippetFilter) (*store.SnippetPage, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	cctx, cancel := s.m.CallContext(ctx)
	defer cancel()
	page, err := s.m.Relational().ListSnippets(cctx, f)
	return page, classify("list snippets", RetrievalError, err)
}

func (s *Service) UpdateEvent(ctx context.Context, id string, p store.EventPatch) (*WriteResult, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	return s.writer.UpdateEvent(ctx, id, p)
}

func (s *Service) UpdateSnippet(ctx context.Context, id string, p store.SnippetPatch) (*WriteResult, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	return s.writer.UpdateSnippet(ctx, id, p)
}

func (s *Service) DeleteEvent(ctx context.Context, id string) (*WriteResult, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	return s.writer.DeleteEvent(ctx, id)
}

func (s *Service) DeleteSnippet(ctx context.Context, id string) (*WriteResult, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	return s.writer.DeleteSnippet(ctx, id)
}

func (s *Service) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	return s.fuser.Search(ctx, req)
}

func (s *Service) FullText(ctx context.Context, groupID, query, target string) (*RelationalResults, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	return s.fuser.FullText(ctx, groupID, query, target)
}

func (s *Service) Timeline(ctx context.Context, q TemporalQuery) (*Timeline, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	return s.fuser.Timeline(ctx, q)
}

// FindRelated looks up related entities for an existing event or snippet.
func (s *Service) FindRelated(ctx context.Context, kind model.Kind, id string) (*RelatedResult, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	cctx, cancel := s.m.CallContext(ctx)
	defer cancel()

	var subj Subject
	switch kind {
	case model.KindEvent:
		ev, err := s.m.Relational().GetEvent(cctx, id)
		if err != nil {
			return nil, classify("find related", RetrievalError, err)
		}
		subj = EventSubject(ev, nil)
	case model.KindSnippet:
		sn, err := s.m.Relational().GetSnippet(cctx, id)
		if err != nil {
			return nil, classify("find related", RetrievalError, err)
		}
		subj = SnippetSubject(sn, nil)
	default:
		return nil, validation("find related", "unknown kind %q, want event or snippet", kind)
	}
	return s.discovery.FindRelated(ctx, subj), nil
}

// CreateLink creates or updates a manual event-snippet link.
func (s *Service) CreateLink(ctx context.Context, in store.LinkInput) (*model.ManualLink, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	cctx, cancel := s.m.CallContext(ctx)
	defer cancel()
	l, err := s.m.Relational().UpsertLink(cctx, in)
	return l, classify("create link", CreationError, err)
}

func (s *Service) ListLinks(ctx context.Context, entityID string) ([]model.ManualLink, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	cctx, cancel := s.m.CallContext(ctx)
	defer cancel()
	links, err := s.m.Relational().ListLinks(cctx, entityID)
	return links, classify("list links", RetrievalError, err)
}

func (s *Service) DeleteLink(ctx context.Context, id string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	cctx, cancel := s.m.CallContext(ctx)
	defer cancel()
	return classify("delete link", DeletionError, s.m.Relational().DeleteLink(cctx, id))
}

func (s *Service) Analytics(ctx context.Context, groupID string) (*store.Analytics, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	cctx, cancel := s.m.CallContext(ctx)
	defer cancel()
	a, err := s.m.Relational().Analytics(cctx, groupID)
	return a, classify("analytics", RetrievalError, err)
}

// Groups reports per-group counts across the store.
func (s *Service) Groups(ctx context.Context) (*store.Stats, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	cctx, cancel := s.m.CallContext(ctx)
	defer cancel()
	st, err := s.m.Relational().Stats(cctx)
	return st, classify("groups", RetrievalError, err)
}

// Status reports backend health. A failed ready gate is reported, not returned.
func (s *Service) Status(ctx context.Context) *backend.Status {
	if err := s.m.EnsureReady(ctx); err != nil {
		s.log.Warn("status: backends not ready", zap.Error(err))
	}
	return s.m.Status(ctx)
}

// DocumentInput is a whole document fed to the knowledge graph.
type DocumentInput struct {
	Title        string
	Text         string
	Date         string // optional YYYY-MM-DD
	DocumentType string
	GroupID      string
	Entities     []graph.EntityRef
}

// IngestResult reports what a document ingest added to the graph.
type IngestResult struct {
	Title    string   `json:"title"`
	Sections int      `json:"sections"`
	Episodes []string `json:"episode_uuids"`
	Entities int      `json:"entities"`
	Edges    int      `json:"edges"`
}

// IngestDocument adds a document to the knowledge graph only, one episode
// per section. The graph is the sole destination, so its failure fails the
// call; sections already written stay.
func (s *Service) IngestDocument(ctx context.Context, in DocumentInput) (*IngestResult, error) {
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Text) == "" {
		return nil, validation("ingest document", "title and text are required")
	}
	ref := time.Now().UTC()
	if in.Date != "" {
		t, err := model.ParseDate(in.Date)
		if err != nil {
			return nil, classify("ingest document", ValidationError, fmt.Errorf("%w: %q", store.ErrInvalidDate, in.Date))
		}
		ref = t
	}
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	source := in.DocumentType
	if source == "" {
		source = "legal_document"
	}

	sections := chunker.Split(in.Text, chunker.DefaultOptions())
	out := &IngestResult{Title: in.Title, Sections: len(sections)}
	for i, sec := range sections {
		name := in.Title
		if len(sections) > 1 {
			name = sectionName(in.Title, sec.Heading, i+1, len(sections))
		}
		cctx, cancel := s.m.CallContext(ctx)
		res, err := s.m.Graph().AddEpisode(cctx, graph.Episode{
			Name:              name,
			Body:              sec.Text,
			SourceDescription: source,
			ReferenceTime:     ref,
			GroupID:           groupOrDefault(in.GroupID),
			Entities:          in.Entities,
		})
		cancel()
		if err != nil {
			return nil, classify("ingest document", CreationError, fmt.Errorf("section %d of %d: %w", i+1, len(sections), err))
		}
		out.Episodes = append(out.Episodes, res.UUID)
		out.Entities = max(out.Entities, res.Entities)
		out.Edges += res.Edges
	}
	s.log.Info("document ingested",
		zap.String("title", in.Title), zap.Int("sections", out.Sections), zap.Int("edges", out.Edges))
	return out, nil
}

func sectionName(title, heading string, n, total int) string {
	if heading == "" {
		return fmt.Sprintf("%s (%d/%d)", title, n, total)
	}
	return fmt.Sprintf("%s - %s (%d/%d)", title, heading, n, total)
}

func (s *Service) Export(ctx context.Context, groupID string) (*store.Bundle, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	cctx, cancel := s.m.CallContext(ctx)
	defer cancel()
	b, err := s.m.Relational().Export(cctx, groupID)
	return b, classify("export", RetrievalError, err)
}

// ImportResult counts what an import wrote.
type ImportResult struct {
	GroupID  string   `json:"group_id"`
	Events   int      `json:"events"`
	Snippets int      `json:"snippets"`
	Links    int      `json:"links"`
	Degraded int      `json:"degraded"`
	Errors   []string `json:"errors,omitempty"`
}

// Import re-creates a bundle through the writer, so every record gets fresh
// ids and fresh vector and graph copies. groupID overrides the bundle's group
// when set. Links are remapped onto the new ids.
func (s *Service) Import(ctx context.Context, b *store.Bundle, groupID string) (*ImportResult, error) {
	if b == nil {
		return nil, validation("import", "bundle is required")
	}
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	group := groupID
	if group == "" {
		group = groupOrDefault(b.GroupID)
	}
	out := &ImportResult{GroupID: group}
	ids := map[string]string{}

	for _, ev := range b.Events {
		res, err := s.writer.WriteEvent(ctx, store.EventInput{
			Date: ev.Date, Description: ev.Description, Parties: ev.Parties,
			DocumentSource: ev.DocumentSource, Excerpts: ev.Excerpts, Tags: ev.Tags,
			Significance: ev.Significance, GroupID: group,
		})
		if err != nil {
			out.Errors = append(out.Errors, fmt.Sprintf("event %s: %v", ev.ID, err))
			continue
		}
		ids[ev.ID] = res.ID
		out.Events++
		if res.DebugInfo.Degraded() {
			out.Degraded++
		}
	}
	for _, sn := range b.Snippets {
		res, err := s.writer.WriteSnippet(ctx, store.SnippetInput{
			Citation: sn.Citation, KeyLanguage: sn.KeyLanguage, Tags: sn.Tags,
			Context: sn.Context, CaseType: sn.CaseType, GroupID: group,
		})
		if err != nil {
			out.Errors = append(out.Errors, fmt.Sprintf("snippet %s: %v", sn.ID, err))
			continue
		}
		ids[sn.ID] = res.ID
		out.Snippets++
		if res.DebugInfo.Degraded() {
			out.Degraded++
		}
	}
	for _, l := range b.Links {
		ev, okE := ids[l.EventID]
		sn, okS := ids[l.SnippetID]
		if !okE || !okS {
			out.Errors = append(out.Errors, fmt.Sprintf("link %s: endpoint not imported", l.ID))
			continue
		}
		conf := l.Confidence
		cctx, cancel := s.m.CallContext(ctx)
		_, err := s.m.Relational().UpsertLink(cctx, store.LinkInput{
			EventID: ev, SnippetID: sn, RelationshipType: l.RelationshipType,
			Confidence: &conf, Notes: l.Notes, GroupID: group,
		})
		cancel()
		if err != nil {
			out.Errors = append(out.Errors, fmt.Sprintf("link %s: %v", l.ID, err))
			continue
		}
		out.Links++
	}

	s.log.Info("import complete",
		zap.String("group_id", group),
		zap.Int("events", out.Events),
		zap.Int("snippets", out.Snippets),
		zap.Int("links", out.Links),
		zap.Int("errors", len(out.Errors)),
	)
	return out, nil
}
