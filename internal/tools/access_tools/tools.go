package access_tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/chatmate/chatmate/internal/access"
	"github.com/chatmate/chatmate/internal/server"
	"github.com/chatmate/chatmate/internal/tools/batch"
	"github.com/chatmate/chatmate/internal/tools/common"
)

const ownerDescription = "Username of the owner whose access configuration to use"

// definition pairs a tool with the access operation it performs.
type definition struct {
	tool      mcp.Tool
	operation string
	readOnly  bool
	handler   common.ToolHandler
}

// toolset holds the handlers. sc may be nil when only the tool schemas are
// needed.
type toolset struct {
	sc *server.ServerContext
}

// RegisterAccessTools registers the access tools with the MCP server. Tools
// that change an owner's configuration are skipped when readOnly is set.
func RegisterAccessTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	if sc == nil {
		return fmt.Errorf("server context is required")
	}
	for _, d := range (&toolset{sc: sc}).definitions() {
		if readOnly && !d.readOnly {
			continue
		}
		s.AddTool(d.tool, common.InstrumentedToolHandlerWithOperation(d.tool.Name, d.operation, sc, d.handler))
	}
	return nil
}

// Tools returns the schemas of the tools RegisterAccessTools would register.
func Tools(readOnly bool) []mcp.Tool {
	var out []mcp.Tool
	for _, d := range (&toolset{}).definitions() {
		if readOnly && !d.readOnly {
			continue
		}
		out = append(out, d.tool)
	}
	return out
}

func (ts *toolset) definitions() []definition {
	return []definition{
		// Read-only tools
		{
			tool: mcp.NewTool("access_get_state",
				mcp.WithDescription("Get an owner's access list, groups, groups with access and restriction flag"),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithString("owner", mcp.Required(), mcp.Description(ownerDescription)),
			),
			operation: access.OpGetState,
			readOnly:  true,
			handler:   ts.getState,
		},
		{
			tool: mcp.NewTool("access_check",
				mcp.WithDescription("Check whether a visitor may chat with an owner's assistant"),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithString("owner", mcp.Required(), mcp.Description(ownerDescription)),
				mcp.WithString("visitor", mcp.Required(), mcp.Description("Username of the visitor")),
			),
			operation: access.OpIsAuthorized,
			readOnly:  true,
			handler:   ts.check,
		},
		{
			tool: mcp.NewTool("access_search_users",
				mcp.WithDescription("Search registered users by username. Plain text matches as a case-insensitive prefix; * and ? are wildcards"),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithString("query", mcp.Required(), mcp.Description("Username prefix or glob pattern")),
				mcp.WithNumber("limit", mcp.Description("Maximum number of results (default: 10)")),
			),
			operation: access.OpSearchAccounts,
			readOnly:  true,
			handler:   ts.searchUsers,
		},
		{
			tool: mcp.NewTool("access_list_granting_owners",
				mcp.WithDescription("List the owners whose access list contains the given user"),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithString("username", mcp.Required(), mcp.Description("Username of the visitor")),
			),
			operation: access.OpListGranting,
			readOnly:  true,
			handler:   ts.listGrantingOwners,
		},

		// Individual grants
		{
			tool: mcp.NewTool("access_grant_individual",
				mcp.WithDescription("Grant one or more users individual access to an owner's assistant"),
				mcp.WithString("owner", mcp.Required(), mcp.Description(ownerDescription)),
				mcp.WithString("username", mcp.Required(), mcp.Description("Username (string) or array of usernames to grant")),
			),
			operation: access.OpGrantIndividual,
			handler:   ts.grantIndividual,
		},
		{
			tool: mcp.NewTool("access_revoke_individual",
				mcp.WithDescription("Remove one or more users from the access list. Group membership is not consulted"),
				mcp.WithDestructiveHintAnnotation(true),
				mcp.WithString("owner", mcp.Required(), mcp.Description(ownerDescription)),
				mcp.WithString("username", mcp.Required(), mcp.Description("Username (string) or array of usernames to revoke")),
			),
			operation: access.OpRevokeIndividual,
			handler:   ts.revokeIndividual,
		},

		// Groups
		{
			tool: mcp.NewTool("access_create_group",
				mcp.WithDescription("Create an empty group"),
				mcp.WithString("owner", mcp.Required(), mcp.Description(ownerDescription)),
				mcp.WithString("groupName", mcp.Required(), mcp.Description("Name of the group")),
			),
			operation: access.OpCreateGroup,
			handler:   ts.createGroup,
		},
		{
			tool: mcp.NewTool("access_delete_group",
				mcp.WithDescription("Delete a group. Access already derived from it stays in the access list"),
				mcp.WithDestructiveHintAnnotation(true),
				mcp.WithString("owner", mcp.Required(), mcp.Description(ownerDescription)),
				mcp.WithString("groupName", mcp.Required(), mcp.Description("Name of the group")),
			),
			operation: access.OpDeleteGroup,
			handler:   ts.deleteGroup,
		},
		{
			tool: mcp.NewTool("access_add_group_member",
				mcp.WithDescription("Add one or more users to a group. The access list changes on the next access_sync_group"),
				mcp.WithString("owner", mcp.Required(), mcp.Description(ownerDescription)),
				mcp.WithString("groupName", mcp.Required(), mcp.Description("Name of the group")),
				mcp.WithString("username", mcp.Required(), mcp.Description("Username (string) or array of usernames to add")),
			),
			operation: access.OpAddUserToGroup,
			handler:   ts.addGroupMember,
		},
		{
			tool: mcp.NewTool("access_remove_group_member",
				mcp.WithDescription("Remove a user from a group. The access list changes on the next access_sync_group"),
				mcp.WithDestructiveHintAnnotation(true),
				mcp.WithString("owner", mcp.Required(), mcp.Description(ownerDescription)),
				mcp.WithString("groupName", mcp.Required(), mcp.Description("Name of the group")),
				mcp.WithString("username", mcp.Required(), mcp.Description("Username to remove")),
			),
			operation: access.OpRemoveUserFromGroup,
			handler:   ts.removeGroupMember,
		},

		// Group access
		{
			tool: mcp.NewTool("access_grant_group",
				mcp.WithDescription("Grant a group access. Its current members are added to the access list"),
				mcp.WithString("owner", mcp.Required(), mcp.Description(ownerDescription)),
				mcp.WithString("groupName", mcp.Required(), mcp.Description("Name of the group")),
			),
			operation: access.OpGrantGroup,
			handler:   ts.grantGroup,
		},
		{
			tool: mcp.NewTool("access_revoke_group",
				mcp.WithDescription("Revoke a group's access. Members without another source of access lose it"),
				mcp.WithDestructiveHintAnnotation(true),
				mcp.WithString("owner", mcp.Required(), mcp.Description(ownerDescription)),
				mcp.WithString("groupName", mcp.Required(), mcp.Description("Name of the group")),
			),
			operation: access.OpRevokeGroup,
			handler:   ts.revokeGroup,
		},
		{
			tool: mcp.NewTool("access_sync_group",
				mcp.WithDescription("Re-apply a granted group's current membership to the access list"),
				mcp.WithString("owner", mcp.Required(), mcp.Description(ownerDescription)),
				mcp.WithString("groupName", mcp.Required(), mcp.Description("Name of the group")),
			),
			operation: access.OpSyncFromGroups,
			handler:   ts.syncGroup,
		},

		// Restriction
		{
			tool: mcp.NewTool("access_set_restricted",
				mcp.WithDescription("Turn restricted mode on or off. In open mode every visitor may chat"),
				mcp.WithString("owner", mcp.Required(), mcp.Description(ownerDescription)),
				mcp.WithBoolean("restricted", mcp.Required(), mcp.Description("true to admit only the access list")),
			),
			operation: access.OpSetRestricted,
			handler:   ts.setRestricted,
		},
	}
}

func (ts *toolset) getState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	state, err := ts.sc.Service().GetAccessState(ctx, request.GetString("owner", ""))
	if err != nil {
		return common.ErrorResult(err), nil
	}
	return common.JSONResult(state), nil
}

func (ts *toolset) check(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner := request.GetString("owner", "")
	visitor := request.GetString("visitor", "")
	ok := ts.sc.Service().IsAuthorized(ctx, owner, visitor)
	return common.JSONResult(map[string]bool{"authorized": ok}), nil
}

func (ts *toolset) searchUsers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := request.GetInt("limit", 0)
	if limit < 0 {
		return mcp.NewToolResultError("InvalidArgument: limit must be a non-negative integer"), nil
	}
	accounts, err := ts.sc.Directory().SearchAccounts(ctx, request.GetString("query", ""), limit)
	if err != nil {
		return common.ErrorResult(err), nil
	}
	return common.JSONResult(accounts), nil
}

func (ts *toolset) listGrantingOwners(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owners, err := ts.sc.Service().ListGrantingOwners(ctx, request.GetString("username", ""))
	if err != nil {
		return common.ErrorResult(err), nil
	}
	return common.JSONResult(owners), nil
}

func (ts *toolset) grantIndividual(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner := request.GetString("owner", "")
	return ts.perUser(ctx, request, func(ctx context.Context, username string) (any, error) {
		return ts.sc.Service().GrantIndividualAccess(ctx, owner, username)
	})
}

func (ts *toolset) revokeIndividual(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner := request.GetString("owner", "")
	return ts.perUser(ctx, request, func(ctx context.Context, username string) (any, error) {
		return ts.sc.Service().RevokeIndividualAccess(ctx, owner, username)
	})
}

func (ts *toolset) addGroupMember(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner := request.GetString("owner", "")
	groupName := request.GetString("groupName", "")
	return ts.perUser(ctx, request, func(ctx context.Context, username string) (any, error) {
		return ts.sc.Service().AddUserToGroup(ctx, owner, groupName, username)
	})
}

// perUser applies fn to the "username" argument. A single name answers with
// fn's result; a list answers with a batch summary.
func (ts *toolset) perUser(ctx context.Context, request mcp.CallToolRequest, fn func(ctx context.Context, username string) (any, error)) (*mcp.CallToolResult, error) {
	param := request.GetArguments()["username"]
	usernames, err := batch.Usernames(param, "username")
	if err != nil {
		return mcp.NewToolResultError("InvalidArgument: " + err.Error()), nil
	}

	if _, single := param.(string); single && len(usernames) == 1 {
		v, err := fn(ctx, usernames[0])
		if err != nil {
			return common.ErrorResult(err), nil
		}
		return common.JSONResult(v), nil
	}

	summary := batch.Apply(ctx, usernames, func(ctx context.Context, username string) error {
		_, err := fn(ctx, username)
		return err
	})
	return mcp.NewToolResultText(summary.JSON()), nil
}

func (ts *toolset) createGroup(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	groups, err := ts.sc.Service().CreateGroup(ctx, request.GetString("owner", ""), request.GetString("groupName", ""))
	if err != nil {
		return common.ErrorResult(err), nil
	}
	return common.JSONResult(groups), nil
}

func (ts *toolset) deleteGroup(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	groups, err := ts.sc.Service().DeleteGroup(ctx, request.GetString("owner", ""), request.GetString("groupName", ""))
	if err != nil {
		return common.ErrorResult(err), nil
	}
	return common.JSONResult(groups), nil
}

func (ts *toolset) removeGroupMember(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	group, err := ts.sc.Service().RemoveUserFromGroup(ctx,
		request.GetString("owner", ""),
		request.GetString("groupName", ""),
		request.GetString("username", ""))
	if err != nil {
		return common.ErrorResult(err), nil
	}
	return common.JSONResult(group), nil
}

func (ts *toolset) grantGroup(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := ts.sc.Service().GrantGroupAccess(ctx, request.GetString("owner", ""), request.GetString("groupName", ""))
	if err != nil {
		return common.ErrorResult(err), nil
	}
	return common.JSONResult(res), nil
}

func (ts *toolset) revokeGroup(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := ts.sc.Service().RevokeGroupAccess(ctx, request.GetString("owner", ""), request.GetString("groupName", ""))
	if err != nil {
		return common.ErrorResult(err), nil
	}
	return common.JSONResult(res), nil
}

func (ts *toolset) syncGroup(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := ts.sc.Service().SyncAccessFromGroups(ctx, request.GetString("owner", ""), request.GetString("groupName", ""))
	if err != nil {
		return common.ErrorResult(err), nil
	}
	return common.JSONResult(map[string][]string{"accessList": list}), nil
}

func (ts *toolset) setRestricted(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	restricted, err := request.RequireBool("restricted")
	if err != nil {
		return mcp.NewToolResultError("InvalidArgument: " + err.Error()), nil
	}
	got, err := ts.sc.Service().SetAccessRestricted(ctx, request.GetString("owner", ""), restricted)
	if err != nil {
		return common.ErrorResult(err), nil
	}
	return common.JSONResult(map[string]bool{"accessRestricted": got}), nil
}
