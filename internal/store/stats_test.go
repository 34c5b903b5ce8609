package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedCase(t *testing.T, s *SQLiteStore) {
	t.Helper()
	ctx := context.Background()
	e1, err := s.CreateEvent(ctx, EventInput{Date: "2023-11-02", Description: "Lease signed", Parties: []string{"Landlord Co", "Tenant A"}, Tags: []string{"lease"}, GroupID: "case-1"})
	require.NoError(t, err)
	_, err = s.CreateEvent(ctx, EventInput{Date: "2024-01-01", Description: "Water leak", Parties: []string{"Landlord Co"}, Tags: []string{"water-damage"}, GroupID: "case-1"})
	require.NoError(t, err)
	sn, err := s.CreateSnippet(ctx, SnippetInput{Citation: "Green", KeyLanguage: "habitability", Tags: []string{"water-damage"}, CaseType: "landlord-tenant", GroupID: "case-1"})
	require.NoError(t, err)
	_, err = s.UpsertLink(ctx, LinkInput{EventID: e1.ID, SnippetID: sn.ID, RelationshipType: "supports", Confidence: ptr(0.5)})
	require.NoError(t, err)
	_, err = s.CreateEvent(ctx, EventInput{Date: "2024-05-05", Description: "Other", GroupID: "case-2"})
	require.NoError(t, err)
}

func TestAnalytics(t *testing.T) {
	s := newTestStore(t)
	seedCase(t, s)

	a, err := s.Analytics(context.Background(), "case-1")
	require.NoError(t, err)
	assert.Equal(t, Counts{Events: 2, Snippets: 1, Links: 1}, a.Counts)
	require.NotEmpty(t, a.TopParties)
	assert.Equal(t, ValueCount{Value: "Landlord Co", Count: 2}, a.TopParties[0])
	assert.Equal(t, ValueCount{Value: "water-damage", Count: 2}, a.TagTrends[0])
	assert.Equal(t, []ValueCount{{Value: "landlord-tenant", Count: 1}}, a.CaseTypes)
	assert.Equal(t, []ValueCount{{Value: "2023", Count: 1}, {Value: "2024", Count: 1}}, a.EventsByYear)
	require.Len(t, a.LinkPatterns, 1)
	assert.InDelta(t, 0.5, a.LinkPatterns[0].AvgConfidence, 1e-9)
}

func TestStatsGroups(t *testing.T) {
	s := newTestStore(t)
	seedCase(t, s)

	st, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Counts{Events: 3, Snippets: 1, Links: 1}, st.Totals)
	require.Len(t, st.Groups, 2)
	assert.Equal(t, "case-1", st.Groups[0].GroupID)
	assert.Equal(t, 2, st.Groups[0].Events)
	assert.NotEmpty(t, st.DBPath)
}

func TestExport(t *testing.T) {
	s := newTestStore(t)
	seedCase(t, s)

	b, err := s.Export(context.Background(), "case-1")
	require.NoError(t, err)
	assert.Len(t, b.Events, 2)
	assert.Len(t, b.Snippets, 1)
	assert.Len(t, b.Links, 1)
	assert.Equal(t, "Lease signed", b.Events[0].Description, "creation order")
}
