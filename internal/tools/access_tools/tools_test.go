package access_tools

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatmate/chatmate/internal/access"
	"github.com/chatmate/chatmate/internal/server"
	"github.com/chatmate/chatmate/internal/store"
	"github.com/chatmate/chatmate/internal/tools/batch"
)

type harness struct {
	ts       *toolset
	handlers map[string]definition
}

func newHarness(t *testing.T, users ...string) *harness {
	t.Helper()
	sc, err := server.NewServerContext(context.Background(), server.ContextConfig{
		Repository: store.NewMemory(),
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })

	for _, u := range users {
		_, err := sc.Directory().Register(context.Background(), access.Registration{Username: u})
		require.NoError(t, err)
	}

	ts := &toolset{sc: sc}
	h := &harness{ts: ts, handlers: make(map[string]definition)}
	for _, d := range ts.definitions() {
		h.handlers[d.tool.Name] = d
	}
	return h
}

// call invokes the named tool and returns its text and error flag.
func (h *harness) call(t *testing.T, name string, args map[string]any) (string, bool) {
	t.Helper()
	d, ok := h.handlers[name]
	require.True(t, ok, "unknown tool %s", name)

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := d.handler(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := mcp.AsTextContent(res.Content[0])
	require.True(t, ok)
	return text.Text, res.IsError
}

func (h *harness) mustCall(t *testing.T, name string, args map[string]any) string {
	t.Helper()
	text, isErr := h.call(t, name, args)
	require.False(t, isErr, "%s failed: %s", name, text)
	return text
}

func TestTools_ReadOnlyFilter(t *testing.T) {
	all := Tools(false)
	readOnly := Tools(true)

	assert.Len(t, all, 14)
	names := make([]string, 0, len(readOnly))
	for _, tool := range readOnly {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"access_get_state",
		"access_check",
		"access_search_users",
		"access_list_granting_owners",
	}, names)
}

func TestTools_OwnerScopedToolsRequireOwner(t *testing.T) {
	for _, tool := range Tools(false) {
		switch tool.Name {
		case "access_search_users", "access_list_granting_owners":
			continue
		}
		assert.Contains(t, tool.InputSchema.Required, "owner", tool.Name)
	}
}

func TestRegisterAccessTools_RequiresContext(t *testing.T) {
	assert.Error(t, RegisterAccessTools(nil, nil, false))
}

func TestAccessTools_GroupLifecycle(t *testing.T) {
	h := newHarness(t, "olivia", "bob", "carol")
	owner := map[string]any{"owner": "olivia", "groupName": "eng"}

	h.mustCall(t, "access_create_group", owner)
	h.mustCall(t, "access_add_group_member", map[string]any{"owner": "olivia", "groupName": "eng", "username": "bob"})

	text := h.mustCall(t, "access_grant_group", owner)
	assert.JSONEq(t, `{"accessList":["bob"],"groupsWithAccess":["eng"]}`, text)

	h.mustCall(t, "access_add_group_member", map[string]any{"owner": "olivia", "groupName": "eng", "username": "carol"})
	text = h.mustCall(t, "access_sync_group", owner)
	assert.JSONEq(t, `{"accessList":["bob","carol"]}`, text)

	text = h.mustCall(t, "access_revoke_group", owner)
	assert.JSONEq(t, `{"accessList":[],"groupsWithAccess":[]}`, text)

	text = h.mustCall(t, "access_get_state", map[string]any{"owner": "olivia"})
	var state access.State
	require.NoError(t, json.Unmarshal([]byte(text), &state))
	require.Len(t, state.Groups, 1)
	assert.Equal(t, []string{"bob", "carol"}, state.Groups[0].Users)
}

func TestAccessTools_CheckFollowsRestriction(t *testing.T) {
	h := newHarness(t, "olivia", "bob")
	check := func(visitor string) string {
		return h.mustCall(t, "access_check", map[string]any{"owner": "olivia", "visitor": visitor})
	}

	assert.JSONEq(t, `{"authorized":true}`, check("stranger"))

	text := h.mustCall(t, "access_set_restricted", map[string]any{"owner": "olivia", "restricted": true})
	assert.JSONEq(t, `{"accessRestricted":true}`, text)
	assert.JSONEq(t, `{"authorized":false}`, check("stranger"))
	assert.JSONEq(t, `{"authorized":true}`, check("olivia"))

	h.mustCall(t, "access_grant_individual", map[string]any{"owner": "olivia", "username": "bob"})
	assert.JSONEq(t, `{"authorized":true}`, check("bob"))

	text = h.mustCall(t, "access_list_granting_owners", map[string]any{"username": "bob"})
	assert.Contains(t, text, `"username": "olivia"`)
}

func TestAccessTools_BatchGrant(t *testing.T) {
	h := newHarness(t, "olivia", "bob", "carol")

	text := h.mustCall(t, "access_grant_individual", map[string]any{
		"owner":    "olivia",
		"username": []any{"bob", "ghost", "carol"},
	})

	var summary batch.Summary
	require.NoError(t, json.Unmarshal([]byte(text), &summary))
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Successful)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, "ghost", summary.Results[1].Username)
	assert.Equal(t, "NotFound", summary.Results[1].Kind)

	state := h.mustCall(t, "access_get_state", map[string]any{"owner": "olivia"})
	assert.Contains(t, state, `"bob"`)
	assert.Contains(t, state, `"carol"`)
	assert.NotContains(t, state, `"ghost"`)
}

func TestAccessTools_Errors(t *testing.T) {
	h := newHarness(t, "olivia", "bob")
	h.mustCall(t, "access_create_group", map[string]any{"owner": "olivia", "groupName": "eng"})

	tests := []struct {
		name   string
		tool   string
		args   map[string]any
		prefix string
	}{
		{"unknown owner", "access_get_state", map[string]any{"owner": "ghost"}, "NotFound:"},
		{"missing owner", "access_create_group", map[string]any{"groupName": "ops"}, "InvalidArgument:"},
		{"duplicate group", "access_create_group", map[string]any{"owner": "olivia", "groupName": "eng"}, "DuplicateGroup:"},
		{"not a member", "access_remove_group_member", map[string]any{"owner": "olivia", "groupName": "eng", "username": "bob"}, "NotMember:"},
		{"not granted", "access_revoke_group", map[string]any{"owner": "olivia", "groupName": "eng"}, "NotGranted:"},
		{"bad username type", "access_grant_individual", map[string]any{"owner": "olivia", "username": 7}, "InvalidArgument:"},
		{"missing restricted flag", "access_set_restricted", map[string]any{"owner": "olivia"}, "InvalidArgument:"},
		{"empty search", "access_search_users", map[string]any{"query": ""}, "InvalidArgument:"},
		{"negative limit", "access_search_users", map[string]any{"query": "b", "limit": -1}, "InvalidArgument:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, isErr := h.call(t, tt.tool, tt.args)
			assert.True(t, isErr, text)
			assert.Truef(t, len(text) >= len(tt.prefix) && text[:len(tt.prefix)] == tt.prefix,
				"%q does not start with %q", text, tt.prefix)
		})
	}
}

func TestAccessTools_SearchUsers(t *testing.T) {
	h := newHarness(t, "olivia", "oliver", "bob")

	text := h.mustCall(t, "access_search_users", map[string]any{"query": "oli"})
	var accounts []access.Account
	require.NoError(t, json.Unmarshal([]byte(text), &accounts))
	assert.Len(t, accounts, 2)

	text = h.mustCall(t, "access_search_users", map[string]any{"query": "oli", "limit": float64(1)})
	require.NoError(t, json.Unmarshal([]byte(text), &accounts))
	assert.Len(t, accounts, 1)
}
