package server

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/medelman17/suechef/internal/backend"
	"github.com/medelman17/suechef/internal/config"
	"github.com/medelman17/suechef/internal/embedding"
	"github.com/medelman17/suechef/internal/legal"
)

func setupTest(t *testing.T) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.DataDir = dir
	cfg.Relational.Path = filepath.Join(dir, "suechef.db")
	cfg.Graph.Path = filepath.Join(dir, "graph.db")
	cfg.Vector.InMemory = true

	log := zap.NewNop()
	m := backend.New(cfg, embedding.NewHashEmbedder(256), backend.DefaultOpeners(cfg, log), log)
	t.Cleanup(func() { m.Close(context.Background()) })

	srv := New(legal.NewService(m, cfg.Discovery, log), "test")
	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	_, err := srv.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	return session
}

type envelope struct {
	Status    string          `json:"status"`
	Message   string          `json:"message"`
	ErrorType string          `json:"error_type"`
	Data      json.RawMessage `json:"data"`
}

func call(t *testing.T, session *mcp.ClientSession, name string, args map[string]any) (envelope, bool) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	var env envelope
	require.NoError(t, json.Unmarshal([]byte(text.Text), &env), text.Text)
	return env, result.IsError
}

func TestListTools(t *testing.T) {
	session := setupTest(t)

	res, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)
	names := map[string]bool{}
	for _, tool := range res.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{
		"create_event", "create_snippet", "unified_legal_search", "full_text_search",
		"temporal_legal_query", "find_related", "create_manual_link", "get_system_status",
	} {
		assert.True(t, names[want], want)
	}
}

func TestEventLifecycle(t *testing.T) {
	session := setupTest(t)

	env, isErr := call(t, session, "create_event", map[string]any{
		"date":        "2024-01-01",
		"description": "Water leak reported",
		"parties":     `["Tenant A", "Landlord Co"]`,
		"tags":        "water-damage, habitability",
		"group_id":    "case-1",
	})
	require.False(t, isErr, env.Message)
	assert.Equal(t, "success", env.Status)

	var created struct {
		ID        string `json:"id"`
		Event     struct {
			Parties []string `json:"parties"`
			Tags    []string `json:"tags"`
		} `json:"event"`
		DebugInfo map[string]any `json:"debug_info"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	require.NotEmpty(t, created.ID)
	assert.Equal(t, []string{"Tenant A", "Landlord Co"}, created.Event.Parties, "JSON-encoded list is decoded")
	assert.Equal(t, []string{"water-damage", "habitability"}, created.Event.Tags, "CSV list is split")
	assert.Contains(t, created.DebugInfo, "vector")

	env, isErr = call(t, session, "create_event", map[string]any{
		"date":        "2024-01-15",
		"description": "Landlord ignored repair request",
		"parties":     []string{"Landlord Co"},
		"group_id":    "case-1",
	})
	require.False(t, isErr, env.Message)
	var second struct {
		Related struct {
			Related []struct {
				ID       string `json:"id"`
				Strategy string `json:"strategy"`
			} `json:"related"`
		} `json:"related"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &second))
	require.NotEmpty(t, second.Related.Related)
	assert.Equal(t, created.ID, second.Related.Related[0].ID)
	assert.Equal(t, "shared_participants", second.Related.Related[0].Strategy)

	env, isErr = call(t, session, "update_event", map[string]any{"event_id": created.ID, "tags": ""})
	require.False(t, isErr, env.Message)

	env, isErr = call(t, session, "get_event", map[string]any{"id": created.ID})
	require.False(t, isErr, env.Message)
	var got struct {
		Tags []string `json:"tags"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Empty(t, got.Tags, "empty list clears tags")

	env, isErr = call(t, session, "delete_event", map[string]any{"id": created.ID})
	require.False(t, isErr, env.Message)

	env, isErr = call(t, session, "get_event", map[string]any{"id": created.ID})
	assert.True(t, isErr)
	assert.Equal(t, "error", env.Status)
	assert.Equal(t, "not_found", env.ErrorType)
}

func TestValidationErrorsAreEnveloped(t *testing.T) {
	session := setupTest(t)

	env, isErr := call(t, session, "create_event", map[string]any{"date": "Jan 1", "description": "x"})
	assert.True(t, isErr)
	assert.Equal(t, "validation_error", env.ErrorType)

	env, isErr = call(t, session, "unified_legal_search", map[string]any{"query": "x", "search_type": "telepathy"})
	assert.True(t, isErr)
	assert.Equal(t, "validation_error", env.ErrorType)
}

func TestSearchAndLinks(t *testing.T) {
	session := setupTest(t)

	env, _ := call(t, session, "create_event", map[string]any{
		"date": "2024-01-01", "description": "Water leak reported", "group_id": "case-1",
	})
	var ev struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &ev))

	env, _ = call(t, session, "create_snippet", map[string]any{
		"citation": "Green v. Superior Court", "key_language": "landlord must repair water leak", "group_id": "case-1",
	})
	var sn struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &sn))

	env, isErr := call(t, session, "unified_legal_search", map[string]any{
		"query": "water leak", "group_id": "case-1", "combined": true,
	})
	require.False(t, isErr, env.Message)
	var search struct {
		Relational struct {
			Events []json.RawMessage `json:"events"`
		} `json:"relational"`
		Combined []json.RawMessage `json:"combined"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &search))
	assert.Len(t, search.Relational.Events, 1)
	assert.NotEmpty(t, search.Combined)

	env, isErr = call(t, session, "create_manual_link", map[string]any{
		"event_id": ev.ID, "snippet_id": sn.ID, "relationship_type": "supports", "confidence": 0.8,
	})
	require.False(t, isErr, env.Message)

	env, isErr = call(t, session, "list_links", map[string]any{"entity_id": ev.ID})
	require.False(t, isErr, env.Message)
	var links []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &links))
	require.Len(t, links, 1)
	assert.InDelta(t, 0.8, links[0]["confidence"], 1e-9)

	env, isErr = call(t, session, "get_system_status", map[string]any{})
	require.False(t, isErr, env.Message)
	var status struct {
		Ready bool `json:"ready"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.True(t, status.Ready)
}
