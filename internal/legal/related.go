package legal

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/medelman17/suechef/internal/backend"
	"github.com/medelman17/suechef/internal/config"
	"github.com/medelman17/suechef/internal/embedding"
	"github.com/medelman17/suechef/internal/model"
)

// Strategy names one related-entity heuristic.
type Strategy string

// Strategies in priority order.
const (
	StrategyParticipants Strategy = "shared_participants"
	StrategyTags         Strategy = "shared_tags"
	StrategySemantic     Strategy = "semantic_similarity"
	StrategyTemporal     Strategy = "temporal_proximity"
)

var errNoEmbedding = errors.New("subject has no embedding")

// Subject is the entity whose neighbors are wanted.
type Subject struct {
	Kind      model.Kind
	ID        string
	GroupID   string
	Date      string // events only
	Parties   []string
	Tags      []string
	Text      string           // embedded when Embedding is nil
	Embedding embedding.Vector // reused from the write when available
}

// EventSubject describes ev. vec may be nil.
func EventSubject(ev *model.Event, vec embedding.Vector) Subject {
	return Subject{
		Kind: model.KindEvent, ID: ev.ID, GroupID: ev.GroupID, Date: ev.Date,
		Parties: ev.Parties, Tags: ev.Tags, Text: ev.EmbeddingText(), Embedding: vec,
	}
}

// SnippetSubject describes sn. vec may be nil.
func SnippetSubject(sn *model.Snippet, vec embedding.Vector) Subject {
	return Subject{
		Kind: model.KindSnippet, ID: sn.ID, GroupID: sn.GroupID,
		Tags: sn.Tags, Text: sn.EmbeddingText(), Embedding: vec,
	}
}

// Related is one discovered neighbor, tagged with the strategy that found it first.
type Related struct {
	ID         string     `json:"id"`
	Kind       model.Kind `json:"kind"`
	Title      string     `json:"title"`
	Strategy   Strategy   `json:"strategy"`
	Confidence float64    `json:"confidence"`
	Reason     string     `json:"reason"`
}

// RelatedResult is the ranked neighbor list. StrategiesUsed lists only the
// strategies that ran and succeeded.
type RelatedResult struct {
	Related        []Related           `json:"related"`
	StrategiesUsed []Strategy          `json:"strategies_used"`
	StrategyErrors map[Strategy]string `json:"strategy_errors,omitempty"`
}

// Discovery finds entities related to a subject.
type Discovery struct {
	m    *backend.Manager
	opts config.DiscoveryConfig
	log  *zap.Logger
}

// NewDiscovery returns a discovery engine using the given thresholds.
func NewDiscovery(m *backend.Manager, opts config.DiscoveryConfig, log *zap.Logger) *Discovery {
	return &Discovery{m: m, opts: opts, log: log.Named("related")}
}

type strategyRun struct {
	name Strategy
	run  func(ctx context.Context, s Subject) ([]Related, error)
	res  []Related
	err  error
}

// FindRelated runs every applicable strategy concurrently and merges the
// candidates. A failing strategy is recorded in StrategyErrors and skipped.
func (d *Discovery) FindRelated(ctx context.Context, s Subject) *RelatedResult {
	s.GroupID = groupOrDefault(s.GroupID)

	var runs []*strategyRun
	if len(s.Parties) > 0 {
		runs = append(runs, &strategyRun{name: StrategyParticipants, run: d.sharedParticipants})
	}
	if len(s.Tags) > 0 {
		runs = append(runs, &strategyRun{name: StrategyTags, run: d.sharedTags})
	}
	if s.Embedding != nil || s.Text != "" {
		runs = append(runs, &strategyRun{name: StrategySemantic, run: d.semantic})
	}
	if s.Date != "" {
		runs = append(runs, &strategyRun{name: StrategyTemporal, run: d.temporal})
	}

	var g errgroup.Group
	for _, r := range runs {
		g.Go(func() error {
			cctx, cancel := d.m.CallContext(ctx)
			defer cancel()
			r.res, r.err = r.run(cctx, s)
			return nil
		})
	}
	g.Wait()

	out := &RelatedResult{Related: []Related{}, StrategiesUsed: []Strategy{}}
	seen := map[string]bool{string(s.Kind) + ":" + s.ID: true}
	for _, r := range runs {
		if r.err != nil {
			if out.StrategyErrors == nil {
				out.StrategyErrors = map[Strategy]string{}
			}
			out.StrategyErrors[r.name] = r.err.Error()
			d.log.Warn("strategy failed", zap.String("strategy", string(r.name)), zap.Error(r.err))
			continue
		}
		out.StrategiesUsed = append(out.StrategiesUsed, r.name)
		for _, c := range r.res {
			key := string(c.Kind) + ":" + c.ID
			if seen[key] {
				continue
			}
			seen[key] = true
			out.Related = append(out.Related, c)
		}
	}

	sort.SliceStable(out.Related, func(i, j int) bool {
		return out.Related[i].Confidence > out.Related[j].Confidence
	})
	if limit := max(d.opts.Limit, 1); len(out.Related) > limit {
		out.Related = out.Related[:limit]
	}
	return out
}

func (d *Discovery) sharedParticipants(ctx context.Context, s Subject) ([]Related, error) {
	events, err := d.m.Relational().EventsSharingParties(ctx, s.GroupID, s.Parties, s.ID, d.opts.CandidateLimit)
	if err != nil {
		return nil, err
	}
	out := make([]Related, 0, len(events))
	for _, ev := range events {
		out = append(out, Related{
			ID: ev.ID, Kind: model.KindEvent, Title: ev.Title(),
			Strategy:   StrategyParticipants,
			Confidence: d.opts.ParticipantConfidence,
			Reason:     "shared parties: " + strings.Join(overlap(s.Parties, ev.Parties), ", "),
		})
	}
	return out, nil
}

func (d *Discovery) sharedTags(ctx context.Context, s Subject) ([]Related, error) {
	refs, err := d.m.Relational().EntitiesSharingTags(ctx, s.GroupID, s.Tags, s.ID, d.opts.CandidateLimit)
	if err != nil {
		return nil, err
	}
	out := make([]Related, 0, len(refs))
	for _, ref := range refs {
		out = append(out, Related{
			ID: ref.ID, Kind: ref.Kind, Title: ref.Title,
			Strategy:   StrategyTags,
			Confidence: d.opts.TagConfidence,
			Reason:     "shared tags: " + strings.Join(overlap(s.Tags, ref.Tags), ", "),
		})
	}
	return out, nil
}

func (d *Discovery) semantic(ctx context.Context, s Subject) ([]Related, error) {
	vec := s.Embedding
	if vec == nil {
		if s.Text == "" {
			return nil, errNoEmbedding
		}
		var err error
		if vec, err = d.m.Embedder().Embed(ctx, s.Text); err != nil {
			return nil, fmt.Errorf("embed subject: %w", err)
		}
	}

	hits, err := d.m.Vectors().Search(ctx, d.m.CollectionFor(s.Kind), vec, d.opts.CandidateLimit+1, map[string]any{"group_id": s.GroupID})
	if err != nil {
		return nil, err
	}
	out := []Related{}
	for _, h := range hits {
		if h.ID == s.ID || h.Score < d.opts.SimilarityThreshold {
			continue
		}
		out = append(out, Related{
			ID: h.ID, Kind: s.Kind,
			Title:      payloadTitle(VectorHit{ID: h.ID, Kind: s.Kind, Payload: h.Payload}),
			Strategy:   StrategySemantic,
			Confidence: clamp01(h.Score),
			Reason:     fmt.Sprintf("semantic similarity %.2f", h.Score),
		})
	}
	return out, nil
}

func (d *Discovery) temporal(ctx context.Context, s Subject) ([]Related, error) {
	window := d.opts.TemporalWindowDays
	near, err := d.m.Relational().EventsNear(ctx, s.GroupID, s.Date, window, s.ID, d.opts.CandidateLimit)
	if err != nil {
		return nil, err
	}
	out := make([]Related, 0, len(near))
	for _, n := range near {
		out = append(out, Related{
			ID: n.ID, Kind: model.KindEvent, Title: n.Title(),
			Strategy:   StrategyTemporal,
			Confidence: TemporalConfidence(n.DaysApart, window, d.opts.TemporalFloor),
			Reason:     fmt.Sprintf("%d days apart", n.DaysApart),
		})
	}
	return out, nil
}

// TemporalConfidence decays linearly with distance and never drops below floor.
func TemporalConfidence(daysApart, windowDays int, floor float64) float64 {
	if windowDays <= 0 {
		return floor
	}
	return math.Max(floor, 1-float64(daysApart)/float64(windowDays))
}

func overlap(a, b []string) []string {
	in := make(map[string]bool, len(b))
	for _, v := range b {
		in[v] = true
	}
	var out []string
	for _, v := range a {
		if in[v] {
			out = append(out, v)
		}
	}
	return out
}
