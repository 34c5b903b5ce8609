package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkUpsert(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	e, err := s.CreateEvent(ctx, EventInput{Date: "2024-01-01", Description: "Water leak", GroupID: "case-1"})
	require.NoError(t, err)
	sn, err := s.CreateSnippet(ctx, SnippetInput{Citation: "Green v. Superior Court", KeyLanguage: "habitability", GroupID: "case-1"})
	require.NoError(t, err)

	first, err := s.UpsertLink(ctx, LinkInput{EventID: e.ID, SnippetID: sn.ID, RelationshipType: "supports"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, first.Confidence)
	assert.Equal(t, "case-1", first.GroupID, "group inherited from the event")

	second, err := s.UpsertLink(ctx, LinkInput{EventID: e.ID, SnippetID: sn.ID, RelationshipType: "supports", Confidence: ptr(0.6), Notes: "weaker than thought"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	links, err := s.ListLinks(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, 0.6, links[0].Confidence)
	assert.Equal(t, "weaker than thought", links[0].Notes)

	_, err = s.UpsertLink(ctx, LinkInput{EventID: e.ID, SnippetID: sn.ID, RelationshipType: "contradicts"})
	require.NoError(t, err)
	links, err = s.ListLinks(ctx, sn.ID)
	require.NoError(t, err)
	assert.Len(t, links, 2)
}

func TestLinkValidation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	e, err := s.CreateEvent(ctx, EventInput{Date: "2024-01-01", Description: "Water leak"})
	require.NoError(t, err)

	_, err = s.UpsertLink(ctx, LinkInput{EventID: e.ID, SnippetID: "bogus", RelationshipType: "supports"})
	assert.ErrorIs(t, err, ErrInvalidID)

	_, err = s.UpsertLink(ctx, LinkInput{EventID: e.ID, SnippetID: "01ARZ3NDEKTSV4RRFFQ69G5FAV", RelationshipType: "supports"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.UpsertLink(ctx, LinkInput{EventID: e.ID, SnippetID: e.ID})
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestLinksCascadeOnDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	e, err := s.CreateEvent(ctx, EventInput{Date: "2024-01-01", Description: "Water leak"})
	require.NoError(t, err)
	sn, err := s.CreateSnippet(ctx, SnippetInput{Citation: "Green", KeyLanguage: "habitability"})
	require.NoError(t, err)
	l, err := s.UpsertLink(ctx, LinkInput{EventID: e.ID, SnippetID: sn.ID, RelationshipType: "supports"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteEvent(ctx, e.ID))
	links, err := s.ListLinks(ctx, sn.ID)
	require.NoError(t, err)
	assert.Empty(t, links)
	assert.ErrorIs(t, s.DeleteLink(ctx, l.ID), ErrNotFound)
}
