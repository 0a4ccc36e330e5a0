// Package access_tools provides MCP tools for managing who may chat with an
// owner's assistant.
//
// # Available Tools
//
// Read-only:
//   - access_get_state: Show an owner's access list, groups and restriction flag
//   - access_check: Check whether a visitor is authorized
//   - access_search_users: Search registered users by prefix or glob
//   - access_list_granting_owners: List owners that granted a user access
//
// Access management (registered only when not read-only):
//   - access_grant_individual, access_revoke_individual
//   - access_create_group, access_delete_group
//   - access_add_group_member, access_remove_group_member
//   - access_grant_group, access_revoke_group, access_sync_group
//   - access_set_restricted
//
// # Batch Usernames
//
// access_grant_individual, access_revoke_individual and
// access_add_group_member take a username or an array of usernames. Arrays
// are applied one user at a time and answered with a per-user summary.
//
// # Errors
//
// Failures are returned as tool error results of the form "Kind: message",
// where Kind is one of the access error kinds such as NotFound,
// AlreadyGranted or DuplicateGroup.
package access_tools
