package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medelman17/suechef/internal/model"
)

func TestEventsSharingParties(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	self, err := s.CreateEvent(ctx, EventInput{Date: "2024-01-01", Description: "Water leak", Parties: []string{"Landlord Co", "Tenant A"}, GroupID: "case-1"})
	require.NoError(t, err)
	other, err := s.CreateEvent(ctx, EventInput{Date: "2024-01-15", Description: "Repair refused", Parties: []string{"Landlord Co"}, GroupID: "case-1"})
	require.NoError(t, err)
	_, err = s.CreateEvent(ctx, EventInput{Date: "2024-01-15", Description: "Elsewhere", Parties: []string{"Landlord Co"}, GroupID: "case-2"})
	require.NoError(t, err)
	_, err = s.CreateEvent(ctx, EventInput{Date: "2024-01-16", Description: "Unrelated", Parties: []string{"City Inspector"}, GroupID: "case-1"})
	require.NoError(t, err)

	got, err := s.EventsSharingParties(ctx, "case-1", self.Parties, self.ID, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, other.ID, got[0].ID)

	got, err = s.EventsSharingParties(ctx, "case-1", nil, self.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEntitiesSharingTags(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	self, err := s.CreateEvent(ctx, EventInput{Date: "2024-01-01", Description: "Water leak", Tags: []string{"water-damage"}, GroupID: "case-1"})
	require.NoError(t, err)
	ev, err := s.CreateEvent(ctx, EventInput{Date: "2024-03-01", Description: "Mold found", Tags: []string{"mold", "water-damage"}, GroupID: "case-1"})
	require.NoError(t, err)
	sn, err := s.CreateSnippet(ctx, SnippetInput{Citation: "Green", KeyLanguage: "habitability", Tags: []string{"water-damage"}, GroupID: "case-1"})
	require.NoError(t, err)
	_, err = s.CreateSnippet(ctx, SnippetInput{Citation: "Other", KeyLanguage: "x", Tags: []string{"water-damage"}, GroupID: "case-2"})
	require.NoError(t, err)

	got, err := s.EntitiesSharingTags(ctx, "case-1", self.Tags, self.ID, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	ids := map[string]model.Kind{}
	for _, r := range got {
		ids[r.ID] = r.Kind
	}
	assert.Equal(t, model.KindEvent, ids[ev.ID])
	assert.Equal(t, model.KindSnippet, ids[sn.ID])
}

func TestEventsNear(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	self, err := s.CreateEvent(ctx, EventInput{Date: "2024-01-01", Description: "Water leak", GroupID: "case-1"})
	require.NoError(t, err)
	near, err := s.CreateEvent(ctx, EventInput{Date: "2024-01-15", Description: "Follow-up", GroupID: "case-1"})
	require.NoError(t, err)
	before, err := s.CreateEvent(ctx, EventInput{Date: "2023-12-31", Description: "Inspection", GroupID: "case-1"})
	require.NoError(t, err)
	_, err = s.CreateEvent(ctx, EventInput{Date: "2024-03-01", Description: "Too late", GroupID: "case-1"})
	require.NoError(t, err)

	got, err := s.EventsNear(ctx, "case-1", self.Date, 30, self.ID, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, before.ID, got[0].ID)
	assert.Equal(t, 1, got[0].DaysApart)
	assert.Equal(t, near.ID, got[1].ID)
	assert.Equal(t, 14, got[1].DaysApart)

	_, err = s.EventsNear(ctx, "case-1", "soon", 30, "", 10)
	assert.ErrorIs(t, err, ErrInvalidDate)
}
