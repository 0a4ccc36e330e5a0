// Package access implements the access control store that decides which
// visitors may reach an owner's assistant.
//
// Each owner record carries four pieces of access state:
//
//   - accessRestricted: when false every visitor is authorized (open mode)
//   - accessList: the flat set of usernames that are authorized
//   - groups: named sets of usernames managed by the owner
//   - groupsWithAccess: the groups whose members are materialized into accessList
//
// In addition the record tracks directGrants, the usernames that were granted
// individually. Revoking a group's access or re-syncing from groups never
// removes a direct grant. Records written before directGrants existed carry a
// nil slice and keep the original behaviour: reconciliation removes only
// usernames that the revoked group contributed.
//
// # Operations
//
// Service exposes the mutations and checks:
//
//	svc := access.NewService(repo)
//	_, err := svc.CreateGroup(ctx, "alice", "eng")
//	_, err = svc.AddUserToGroup(ctx, "alice", "eng", "bob")
//	_, err = svc.GrantGroupAccess(ctx, "alice", "eng")
//	ok := svc.IsAuthorized(ctx, "alice", "bob") // true
//
// Group membership edits do not touch accessList. Callers run
// SyncAccessFromGroups afterwards to re-materialize the list.
//
// # Consistency
//
// Every operation is one read-modify-write of a single owner record through
// Repository.Update. Concurrent edits of the same owner are last-write-wins;
// there is no version token.
package access
