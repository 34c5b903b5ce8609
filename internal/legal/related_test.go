package legal

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medelman17/suechef/internal/model"
	"github.com/medelman17/suechef/internal/store"
)

func TestTemporalConfidence(t *testing.T) {
	tests := []struct {
		days int
		want float64
	}{
		{0, 1.0},
		{14, 1 - 14.0/30},
		{21, 0.3},
		{30, 0.3},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d days", tt.days), func(t *testing.T) {
			assert.InDelta(t, tt.want, TemporalConfidence(tt.days, 30, 0.3), 1e-9)
		})
	}
}

func TestFindRelatedScenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	first := h.event(t, waterLeak())
	second := h.event(t, store.EventInput{
		Date: "2024-01-15", Description: "Landlord ignored repair request",
		Parties: []string{"Landlord Co"}, Tags: []string{"water-damage"}, GroupID: "case-1",
	})

	res := h.discover.FindRelated(ctx, EventSubject(first.Event, first.Embedding))

	var hits []Related
	for _, r := range res.Related {
		if r.ID == second.ID {
			hits = append(hits, r)
		}
		assert.NotEqual(t, first.ID, r.ID, "subject is never its own neighbor")
	}
	require.Len(t, hits, 1, "deduplicated to one entry")
	assert.Equal(t, StrategyParticipants, hits[0].Strategy)
	assert.InDelta(t, 0.9, hits[0].Confidence, 1e-9)
	assert.Contains(t, hits[0].Reason, "Landlord Co")

	assert.Contains(t, res.StrategiesUsed, StrategyParticipants)
	assert.Contains(t, res.StrategiesUsed, StrategyTags)
	assert.Contains(t, res.StrategiesUsed, StrategyTemporal)
	assert.Empty(t, res.StrategyErrors)

	// The temporal signal alone would have scored it near 0.53.
	near, err := h.rel.EventsNear(ctx, "case-1", "2024-01-01", 30, first.ID, 10)
	require.NoError(t, err)
	require.Len(t, near, 1)
	assert.InDelta(t, 0.533, TemporalConfidence(near[0].DaysApart, 30, 0.3), 0.01)
}

func TestFindRelatedDedupPrefersEarlierStrategy(t *testing.T) {
	h := newHarness(t)
	subject := h.event(t, store.EventInput{
		Date: "2023-01-01", Description: "Lease signed",
		Parties: []string{"Tenant A"}, Tags: []string{"lease"}, GroupID: "case-1",
	})
	both := h.event(t, store.EventInput{
		Date: "2023-09-01", Description: "Rent increase notice",
		Parties: []string{"Tenant A"}, Tags: []string{"lease"}, GroupID: "case-1",
	})
	tagOnly := h.snippet(t, store.SnippetInput{
		Citation: "Civil Code 1942", KeyLanguage: "tenant may repair and deduct", Tags: []string{"lease"}, GroupID: "case-1",
	})

	res := h.discover.FindRelated(context.Background(), EventSubject(subject.Event, subject.Embedding))

	byID := map[string]Related{}
	for _, r := range res.Related {
		_, dup := byID[r.ID]
		assert.False(t, dup, "entity %s listed twice", r.ID)
		byID[r.ID] = r
	}
	assert.Equal(t, StrategyParticipants, byID[both.ID].Strategy)
	assert.Equal(t, StrategyTags, byID[tagOnly.ID].Strategy)
	assert.Equal(t, model.KindSnippet, byID[tagOnly.ID].Kind)
	assert.Contains(t, res.StrategiesUsed, StrategyTemporal, "a strategy that ran without matches still counts as used")
}

func TestFindRelatedTopKAndOrdering(t *testing.T) {
	h := newHarness(t)
	subject := h.event(t, store.EventInput{
		Date: "2024-03-01", Description: "Inspection scheduled",
		Parties: []string{"City Inspector"}, Tags: []string{"inspection"}, GroupID: "case-1",
	})
	for i := range 8 {
		h.event(t, store.EventInput{
			Date: fmt.Sprintf("2024-03-%02d", i+2), Description: fmt.Sprintf("Follow-up call %d", i),
			Parties: []string{"City Inspector"}, GroupID: "case-1",
		})
	}
	for i := range 8 {
		h.event(t, store.EventInput{
			Date: fmt.Sprintf("2024-03-%02d", i+10), Description: fmt.Sprintf("Unrelated errand %d", i),
			Tags: []string{"inspection"}, GroupID: "case-1",
		})
	}

	res := h.discover.FindRelated(context.Background(), EventSubject(subject.Event, subject.Embedding))
	assert.Len(t, res.Related, 10)
	for i := 1; i < len(res.Related); i++ {
		assert.GreaterOrEqual(t, res.Related[i-1].Confidence, res.Related[i].Confidence)
	}
	assert.Equal(t, StrategyParticipants, res.Related[0].Strategy)
}

func TestFindRelatedSemantic(t *testing.T) {
	h := newHarness(t)
	subject := h.event(t, store.EventInput{Date: "2020-01-01", Description: "Mold found in bathroom ceiling", GroupID: "case-1"})
	similar := h.event(t, store.EventInput{Date: "2022-06-01", Description: "Mold found in bathroom ceiling again", GroupID: "case-1"})
	h.event(t, store.EventInput{Date: "2023-06-01", Description: "Parking permit renewed", GroupID: "case-1"})

	res := h.discover.FindRelated(context.Background(), EventSubject(subject.Event, subject.Embedding))
	require.Len(t, res.Related, 1)
	assert.Equal(t, similar.ID, res.Related[0].ID)
	assert.Equal(t, StrategySemantic, res.Related[0].Strategy)
	assert.GreaterOrEqual(t, res.Related[0].Confidence, 0.7)
	assert.Equal(t, []Strategy{StrategySemantic, StrategyTemporal}, res.StrategiesUsed)
}

func TestFindRelatedSurvivesStrategyFailure(t *testing.T) {
	h := newHarness(t)
	first := h.event(t, waterLeak())
	second := h.event(t, store.EventInput{
		Date: "2024-01-10", Description: "Tenant A sent photos", Parties: []string{"Tenant A"}, GroupID: "case-1",
	})

	h.vectors.fail.Store(true)
	res := h.discover.FindRelated(context.Background(), EventSubject(first.Event, first.Embedding))
	assert.NotContains(t, res.StrategiesUsed, StrategySemantic)
	assert.Contains(t, res.StrategyErrors[StrategySemantic], "injected")
	require.NotEmpty(t, res.Related)
	assert.Equal(t, second.ID, res.Related[0].ID)
}

func TestFindRelatedStrategyTimeout(t *testing.T) {
	h := newHarness(t, withCallTimeout(100*time.Millisecond))
	first := h.event(t, waterLeak())
	second := h.event(t, store.EventInput{
		Date: "2024-01-10", Description: "Tenant A sent photos", Parties: []string{"Tenant A"}, GroupID: "case-1",
	})

	h.vectors.hang.Store(true)
	res := h.discover.FindRelated(context.Background(), EventSubject(first.Event, first.Embedding))
	assert.NotContains(t, res.StrategiesUsed, StrategySemantic)
	assert.Contains(t, res.StrategyErrors[StrategySemantic], "deadline exceeded")
	assert.Contains(t, res.StrategiesUsed, StrategyParticipants)
	require.NotEmpty(t, res.Related)
	assert.Equal(t, second.ID, res.Related[0].ID)
}

func TestFindRelatedEmbedsWhenNoVector(t *testing.T) {
	h := newHarness(t)
	sn := h.snippet(t, store.SnippetInput{Citation: "Smith v. Jones", KeyLanguage: "implied warranty of habitability applies", GroupID: "case-1"})
	other := h.snippet(t, store.SnippetInput{Citation: "Smith v. Jones", KeyLanguage: "implied warranty of habitability applies broadly", GroupID: "case-1"})

	res := h.discover.FindRelated(context.Background(), SnippetSubject(sn.Snippet, nil))
	require.Len(t, res.Related, 1)
	assert.Equal(t, other.ID, res.Related[0].ID)
	assert.Equal(t, model.KindSnippet, res.Related[0].Kind)
	assert.Equal(t, "Smith v. Jones", res.Related[0].Title)
	assert.Equal(t, []Strategy{StrategySemantic}, res.StrategiesUsed, "snippets have no parties, tags or date here")
}

func TestFindRelatedGroupIsolation(t *testing.T) {
	h := newHarness(t)
	a := h.event(t, store.EventInput{
		Date: "2024-05-01", Description: "Eviction notice served",
		Parties: []string{"Landlord Co"}, Tags: []string{"eviction"}, GroupID: "A",
	})
	b := h.event(t, store.EventInput{
		Date: "2024-05-02", Description: "Eviction notice served",
		Parties: []string{"Landlord Co"}, Tags: []string{"eviction"}, GroupID: "B",
	})

	res := h.discover.FindRelated(context.Background(), EventSubject(b.Event, b.Embedding))
	for _, r := range res.Related {
		assert.NotEqual(t, a.ID, r.ID)
	}
	assert.Empty(t, res.Related)

	resp, err := h.fuser.Search(context.Background(), SearchRequest{Query: "eviction notice", GroupID: "B", Combined: true})
	require.NoError(t, err)
	for _, c := range resp.Combined {
		assert.NotEqual(t, a.ID, c.ID)
	}
	for _, ep := range resp.Graph.Episodes {
		assert.Equal(t, "B", ep.GroupID)
	}
}
