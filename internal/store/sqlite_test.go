package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSQLiteStore(filepath.Join(dir, "test.db"))
	require.NoError(t, err, "create store")
	t.Cleanup(func() { s.Close() })
	return s
}

func ptr[T any](v T) *T { return &v }

func TestCreateAndGetEvent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	e, err := s.CreateEvent(ctx, EventInput{
		Date:        "2024-01-01",
		Description: "Water leak reported",
		Parties:     []string{"Landlord Co", "Tenant A"},
		Tags:        []string{"water-damage"},
		GroupID:     "case-1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "case-1", e.GroupID)

	got, err := s.GetEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", got.Date)
	assert.Equal(t, "Water leak reported", got.Description)
	assert.Equal(t, []string{"Landlord Co", "Tenant A"}, got.Parties)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestEventDefaults(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	e, err := s.CreateEvent(ctx, EventInput{Date: "2024-03-04", Description: "Notice served"})
	require.NoError(t, err)

	got, err := s.GetEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "default", got.GroupID)
	assert.NotNil(t, got.Parties)
	assert.Empty(t, got.Parties)
	assert.NotNil(t, got.Tags)
}

func TestCreateEventValidation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.CreateEvent(ctx, EventInput{Date: "2024-13-01", Description: "bad month"})
	assert.ErrorIs(t, err, ErrInvalidDate)

	_, err = s.CreateEvent(ctx, EventInput{Date: "2024-01-01"})
	assert.ErrorIs(t, err, ErrMissingField)

	_, err = s.CreateEvent(ctx, EventInput{Description: "no date"})
	assert.ErrorIs(t, err, ErrMissingField)

	c, err := s.Count(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 0, c.Events)
}

func TestGetInvalidAndMissingID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.GetEvent(ctx, "not-an-id")
	assert.ErrorIs(t, err, ErrInvalidID)

	_, err = s.GetSnippet(ctx, "01ARZ3NDEKTSV4RRFFQ69G5FAV")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListEventsFilters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, in := range []EventInput{
		{Date: "2023-12-01", Description: "Lease signed", Parties: []string{"Landlord Co"}, Tags: []string{"lease"}, GroupID: "case-1"},
		{Date: "2024-01-01", Description: "Water leak", Parties: []string{"Tenant A"}, Tags: []string{"water-damage"}, GroupID: "case-1"},
		{Date: "2024-02-01", Description: "Repair request", Parties: []string{"Tenant A", "Landlord Co"}, Tags: []string{"repairs"}, GroupID: "case-1"},
		{Date: "2024-02-01", Description: "Other matter", GroupID: "case-2"},
	} {
		_, err := s.CreateEvent(ctx, in)
		require.NoError(t, err)
	}

	page, err := s.ListEvents(ctx, EventFilter{GroupID: "case-1"})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, DefaultListLimit, page.Limit)
	require.Len(t, page.Events, 3)
	assert.Equal(t, "2024-02-01", page.Events[0].Date, "newest first")

	page, err = s.ListEvents(ctx, EventFilter{GroupID: "case-1", DateFrom: "2024-01-01", DateTo: "2024-01-31"})
	require.NoError(t, err)
	require.Len(t, page.Events, 1)
	assert.Equal(t, "Water leak", page.Events[0].Description)

	page, err = s.ListEvents(ctx, EventFilter{GroupID: "case-1", Parties: []string{"Landlord Co"}})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	page, err = s.ListEvents(ctx, EventFilter{GroupID: "case-1", Tags: []string{"lease", "repairs"}, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Len(t, page.Events, 1)

	_, err = s.ListEvents(ctx, EventFilter{DateFrom: "yesterday"})
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestUpdateEvent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	e, err := s.CreateEvent(ctx, EventInput{Date: "2024-01-01", Description: "Water leak"})
	require.NoError(t, err)

	got, err := s.UpdateEvent(ctx, e.ID, EventPatch{
		Description: ptr("Water leak in unit 4"),
		Tags:        ptr([]string{"water-damage"}),
	})
	require.NoError(t, err)
	assert.Equal(t, "Water leak in unit 4", got.Description)
	assert.Equal(t, []string{"water-damage"}, got.Tags)
	assert.Equal(t, "2024-01-01", got.Date)

	_, err = s.UpdateEvent(ctx, e.ID, EventPatch{})
	assert.ErrorIs(t, err, ErrNoChanges)

	_, err = s.UpdateEvent(ctx, e.ID, EventPatch{Date: ptr("Jan 5")})
	assert.ErrorIs(t, err, ErrInvalidDate)

	_, err = s.UpdateEvent(ctx, "01ARZ3NDEKTSV4RRFFQ69G5FAV", EventPatch{Significance: ptr("x")})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteEvent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	e, err := s.CreateEvent(ctx, EventInput{Date: "2024-01-01", Description: "Water leak"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteEvent(ctx, e.ID))
	_, err = s.GetEvent(ctx, e.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteEvent(ctx, e.ID), ErrNotFound)
}

func TestSnippetCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	sn, err := s.CreateSnippet(ctx, SnippetInput{
		Citation:    "Green v. Superior Court, 10 Cal.3d 616 (1974)",
		KeyLanguage: "warranty of habitability is implied in residential leases",
		Tags:        []string{"habitability"},
		CaseType:    "landlord-tenant",
		GroupID:     "case-1",
	})
	require.NoError(t, err)

	_, err = s.CreateSnippet(ctx, SnippetInput{Citation: "missing key language"})
	assert.ErrorIs(t, err, ErrMissingField)

	page, err := s.ListSnippets(ctx, SnippetFilter{GroupID: "case-1", CaseType: "landlord-tenant"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	got, err := s.UpdateSnippet(ctx, sn.ID, SnippetPatch{Context: ptr("cited for repair duty")})
	require.NoError(t, err)
	assert.Equal(t, "cited for repair duty", got.Context)

	require.NoError(t, s.DeleteSnippet(ctx, sn.ID))
	_, err = s.GetSnippet(ctx, sn.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	e, err := s.CreateEvent(ctx, EventInput{Date: "2024-01-01", Description: "Water leak reported"})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.True(t, s.Closed())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.Description, got.Description)

	hits, err := s.SearchEvents(ctx, SearchParams{Query: "leak"})
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestDBPathCreation(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sub", "dir", "test.db")
	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Ping(context.Background()))
	s.Close()

	_, err = os.Stat(dbPath)
	assert.False(t, os.IsNotExist(err), "expected db file to be created")
}
