package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/chatmate/chatmate/internal/instrumentation"
	"github.com/chatmate/chatmate/internal/logging"
)

// Operation names used in errors, logs, metrics and spans.
const (
	OpGrantIndividual     = "grant_individual_access"
	OpRevokeIndividual    = "revoke_individual_access"
	OpCreateGroup         = "create_group"
	OpDeleteGroup         = "delete_group"
	OpAddUserToGroup      = "add_user_to_group"
	OpRemoveUserFromGroup = "remove_user_from_group"
	OpGrantGroup          = "grant_group_access"
	OpRevokeGroup         = "revoke_group_access"
	OpSyncFromGroups      = "sync_access_from_groups"
	OpSetRestricted       = "set_access_restricted"
	OpIsAuthorized        = "is_authorized"
	OpGetState            = "get_access_state"
	OpGetGroupsWithAccess = "get_groups_with_access"
	OpGetRestriction      = "get_restriction_status"
	OpListGranting        = "list_granting_owners"
	OpRegister            = "register"
	OpLookupAccount       = "lookup_account"
	OpSearchAccounts      = "search_accounts"
	OpCountAccounts       = "count_accounts"
)

// Repository persists owner records. Implementations must return errors
// wrapping ErrNotFound for missing owners and ErrAlreadyExists for duplicate
// usernames on Create.
type Repository interface {
	Get(ctx context.Context, username string) (*Owner, error)
	Create(ctx context.Context, owner *Owner) error
	// Update loads the owner, applies mutate and persists the result in a
	// single write. When mutate fails nothing is written and its error is
	// returned unchanged.
	Update(ctx context.Context, username string, mutate func(*Owner) error) (*Owner, error)
	// FindByAccess returns the owners whose accessList contains visitor.
	FindByAccess(ctx context.Context, visitor string) ([]*Owner, error)
	Search(ctx context.Context, query SearchQuery) ([]*Owner, error)
	Count(ctx context.Context) (int64, error)
}

// ServiceConfig holds the dependencies of Service and Directory.
type ServiceConfig struct {
	// Repository is required.
	Repository Repository

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Metrics defaults to a no-op recorder.
	Metrics *instrumentation.Metrics

	// Audit receives one record per mutating operation. Nil disables auditing.
	Audit *instrumentation.AuditLogger

	// Now defaults to time.Now.
	Now func() time.Time
}

type observer struct {
	repo    Repository
	logger  *slog.Logger
	metrics *instrumentation.Metrics
	audit   *instrumentation.AuditLogger
	now     func() time.Time
}

func newObserver(cfg ServiceConfig) (*observer, error) {
	if cfg.Repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	o := &observer{
		repo:    cfg.Repository,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		audit:   cfg.Audit,
		now:     cfg.Now,
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.metrics == nil {
		o.metrics = &instrumentation.Metrics{}
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o, nil
}

// Service implements the access control operations of one owner at a time.
// Every operation is a single read-modify-write against the owner record.
type Service struct {
	*observer
}

// NewService creates a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	o, err := newObserver(cfg)
	if err != nil {
		return nil, err
	}
	return &Service{observer: o}, nil
}

// GrantIndividualAccess adds username to the owner's access list.
func (s *Service) GrantIndividualAccess(ctx context.Context, owner, username string) ([]string, error) {
	if err := required(OpGrantIndividual, "ownerId", owner, "username", username); err != nil {
		return nil, s.fail(ctx, nil, OpGrantIndividual, owner, time.Now(), err)
	}
	updated, err := s.mutate(ctx, OpGrantIndividual, owner, change{target: username, checkTarget: true}, func(o *Owner) error {
		return o.grantIndividual(username)
	})
	if err != nil {
		return nil, err
	}
	return nonNil(updated.AccessList), nil
}

// RevokeIndividualAccess removes username from the owner's access list
// without consulting group membership.
func (s *Service) RevokeIndividualAccess(ctx context.Context, owner, username string) ([]string, error) {
	if err := required(OpRevokeIndividual, "ownerId", owner, "username", username); err != nil {
		return nil, s.fail(ctx, nil, OpRevokeIndividual, owner, time.Now(), err)
	}
	updated, err := s.mutate(ctx, OpRevokeIndividual, owner, change{target: username}, func(o *Owner) error {
		return o.revokeIndividual(username)
	})
	if err != nil {
		return nil, err
	}
	return nonNil(updated.AccessList), nil
}

// CreateGroup adds an empty group.
func (s *Service) CreateGroup(ctx context.Context, owner, groupName string) ([]Group, error) {
	if err := required(OpCreateGroup, "ownerId", owner, "groupName", groupName); err != nil {
		return nil, s.fail(ctx, nil, OpCreateGroup, owner, time.Now(), err)
	}
	updated, err := s.mutate(ctx, OpCreateGroup, owner, change{group: groupName}, func(o *Owner) error {
		return o.createGroup(groupName)
	})
	if err != nil {
		return nil, err
	}
	return updated.State().Groups, nil
}

// DeleteGroup removes a group. A grant for the group in groupsWithAccess is
// left in place; RevokeGroupAccess drops it later.
func (s *Service) DeleteGroup(ctx context.Context, owner, groupName string) ([]Group, error) {
	if err := required(OpDeleteGroup, "ownerId", owner, "groupName", groupName); err != nil {
		return nil, s.fail(ctx, nil, OpDeleteGroup, owner, time.Now(), err)
	}
	updated, err := s.mutate(ctx, OpDeleteGroup, owner, change{group: groupName}, func(o *Owner) error {
		return o.deleteGroup(groupName)
	})
	if err != nil {
		return nil, err
	}
	return updated.State().Groups, nil
}

// AddUserToGroup adds username to a group. The access list is not touched;
// call SyncAccessFromGroups to materialize the new member.
func (s *Service) AddUserToGroup(ctx context.Context, owner, groupName, username string) (Group, error) {
	if err := required(OpAddUserToGroup, "ownerId", owner, "groupName", groupName, "username", username); err != nil {
		return Group{}, s.fail(ctx, nil, OpAddUserToGroup, owner, time.Now(), err)
	}
	var g Group
	_, err := s.mutate(ctx, OpAddUserToGroup, owner, change{target: username, group: groupName, checkTarget: true}, func(o *Owner) error {
		var err error
		g, err = o.addGroupMember(groupName, username)
		return err
	})
	if err != nil {
		return Group{}, err
	}
	return Group{GroupName: g.GroupName, Users: cloneStrings(g.Users)}, nil
}

// RemoveUserFromGroup removes username from a group. The access list is not
// touched; call SyncAccessFromGroups to drop the former member.
func (s *Service) RemoveUserFromGroup(ctx context.Context, owner, groupName, username string) (Group, error) {
	if err := required(OpRemoveUserFromGroup, "ownerId", owner, "groupName", groupName, "username", username); err != nil {
		return Group{}, s.fail(ctx, nil, OpRemoveUserFromGroup, owner, time.Now(), err)
	}
	var g Group
	_, err := s.mutate(ctx, OpRemoveUserFromGroup, owner, change{target: username, group: groupName}, func(o *Owner) error {
		var err error
		g, err = o.removeGroupMember(groupName, username)
		return err
	})
	if err != nil {
		return Group{}, err
	}
	return Group{GroupName: g.GroupName, Users: nonNil(cloneStrings(g.Users))}, nil
}

// GrantGroupAccess adds the group to groupsWithAccess and unions its members
// into the access list.
func (s *Service) GrantGroupAccess(ctx context.Context, owner, groupName string) (GroupAccess, error) {
	if err := required(OpGrantGroup, "ownerId", owner, "groupName", groupName); err != nil {
		return GroupAccess{}, s.fail(ctx, nil, OpGrantGroup, owner, time.Now(), err)
	}
	updated, err := s.mutate(ctx, OpGrantGroup, owner, change{group: groupName}, func(o *Owner) error {
		return o.grantGroup(groupName)
	})
	if err != nil {
		return GroupAccess{}, err
	}
	return groupAccess(updated), nil
}

// RevokeGroupAccess removes the group from groupsWithAccess and drops the
// members no other accessible group or direct grant still covers.
func (s *Service) RevokeGroupAccess(ctx context.Context, owner, groupName string) (GroupAccess, error) {
	if err := required(OpRevokeGroup, "ownerId", owner, "groupName", groupName); err != nil {
		return GroupAccess{}, s.fail(ctx, nil, OpRevokeGroup, owner, time.Now(), err)
	}
	updated, err := s.mutate(ctx, OpRevokeGroup, owner, change{group: groupName}, func(o *Owner) error {
		return o.revokeGroup(groupName)
	})
	if err != nil {
		return GroupAccess{}, err
	}
	return groupAccess(updated), nil
}

// SyncAccessFromGroups recomputes the access list from direct grants and the
// members of every accessible group. It is a no-op when groupName has no
// access.
func (s *Service) SyncAccessFromGroups(ctx context.Context, owner, groupName string) ([]string, error) {
	if err := required(OpSyncFromGroups, "ownerId", owner, "groupName", groupName); err != nil {
		return nil, s.fail(ctx, nil, OpSyncFromGroups, owner, time.Now(), err)
	}
	updated, err := s.mutate(ctx, OpSyncFromGroups, owner, change{group: groupName}, func(o *Owner) error {
		return o.syncFromGroups(groupName)
	})
	if err != nil {
		return nil, err
	}
	return nonNil(updated.AccessList), nil
}

// SetAccessRestricted sets the restriction gate and returns the new value.
func (s *Service) SetAccessRestricted(ctx context.Context, owner string, restricted bool) (bool, error) {
	if err := required(OpSetRestricted, "ownerId", owner); err != nil {
		return false, s.fail(ctx, nil, OpSetRestricted, owner, time.Now(), err)
	}
	updated, err := s.mutate(ctx, OpSetRestricted, owner, change{}, func(o *Owner) error {
		o.AccessRestricted = restricted
		return nil
	})
	if err != nil {
		return false, err
	}
	return updated.AccessRestricted, nil
}

// IsAuthorized reports whether visitor may open the owner's assistant. It
// never fails: a missing owner or a storage error yields false.
func (s *Service) IsAuthorized(ctx context.Context, owner, visitor string) bool {
	start := time.Now()
	ctx, span := instrumentation.StartAccessSpan(ctx, OpIsAuthorized, owner)
	defer span.End()

	o, err := s.repo.Get(ctx, owner)
	if err != nil {
		err = classify(OpIsAuthorized, owner, err)
		s.logger.WarnContext(ctx, "authorization check failed",
			logging.Operation(OpIsAuthorized),
			logging.UserHash(owner),
			logging.Kind(string(KindOf(err))),
			logging.Err(err))
		instrumentation.SetSpanError(span, err)
		s.metrics.RecordAuthorizationCheck(ctx, owner, instrumentation.AuthResultDenied)
		s.metrics.RecordAccessOperation(ctx, OpIsAuthorized, instrumentation.StatusError, string(KindOf(err)), time.Since(start))
		return false
	}

	var result string
	switch {
	case !o.AccessRestricted:
		result = instrumentation.AuthResultOpen
	case visitor == o.Username:
		result = instrumentation.AuthResultSelf
	case o.Authorizes(visitor):
		result = instrumentation.AuthResultGranted
	default:
		result = instrumentation.AuthResultDenied
	}

	span.SetAttributes(attribute.String("access.result", result))
	instrumentation.SetSpanSuccess(span)
	s.metrics.RecordAuthorizationCheck(ctx, owner, result)
	s.metrics.RecordAccessOperation(ctx, OpIsAuthorized, instrumentation.StatusSuccess, "", time.Since(start))
	return result != instrumentation.AuthResultDenied
}

// GetAccessState returns the owner's full access configuration.
func (s *Service) GetAccessState(ctx context.Context, owner string) (State, error) {
	o, err := s.read(ctx, OpGetState, owner)
	if err != nil {
		return State{}, err
	}
	return o.State(), nil
}

// GetGroupsWithAccess returns the names of the groups granted access.
func (s *Service) GetGroupsWithAccess(ctx context.Context, owner string) ([]string, error) {
	o, err := s.read(ctx, OpGetGroupsWithAccess, owner)
	if err != nil {
		return nil, err
	}
	return nonNil(o.GroupsWithAccess), nil
}

// GetRestrictionStatus returns the owner's restriction gate.
func (s *Service) GetRestrictionStatus(ctx context.Context, owner string) (bool, error) {
	o, err := s.read(ctx, OpGetRestriction, owner)
	if err != nil {
		return false, err
	}
	return o.AccessRestricted, nil
}

// ListGrantingOwners returns the owners whose access list names visitor.
func (s *Service) ListGrantingOwners(ctx context.Context, visitor string) ([]Account, error) {
	start := time.Now()
	if err := required(OpListGranting, "username", visitor); err != nil {
		return nil, s.fail(ctx, nil, OpListGranting, "", start, err)
	}
	ctx, span := instrumentation.StartAccessSpan(ctx, OpListGranting, "")
	defer span.End()

	owners, err := s.repo.FindByAccess(ctx, visitor)
	if err != nil {
		return nil, s.fail(ctx, span, OpListGranting, "", start, err)
	}
	s.succeed(ctx, span, OpListGranting, start)
	return accounts(owners), nil
}

// change describes the subject of a mutation for audit records.
type change struct {
	target string
	group  string
	// checkTarget requires target to be a registered account.
	checkTarget bool
}

func (s *Service) mutate(ctx context.Context, op, owner string, c change, fn func(*Owner) error) (*Owner, error) {
	start := time.Now()
	ctx, span := instrumentation.StartAccessSpan(ctx, op, owner, instrumentation.TargetAttrs(c.target, c.group)...)
	defer span.End()

	updated, err := s.apply(ctx, op, owner, c, fn)
	s.audit.LogAccessChange(&instrumentation.AccessChange{
		Operation: op,
		Owner:     owner,
		Target:    c.target,
		Group:     c.group,
		Success:   err == nil,
		Kind:      string(KindOf(err)),
		Error:     MessageOf(err),
		Duration:  time.Since(start),
		TraceID:   instrumentation.TraceID(ctx),
	})
	if err != nil {
		return nil, s.fail(ctx, span, op, owner, start, err)
	}
	s.succeed(ctx, span, op, start)
	return updated, nil
}

func (s *Service) apply(ctx context.Context, op, owner string, c change, fn func(*Owner) error) (*Owner, error) {
	if c.checkTarget {
		if _, err := s.repo.Get(ctx, c.target); err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, &Error{Kind: KindNotFound, Message: fmt.Sprintf("user %s not found", c.target), Err: err}
			}
			return nil, err
		}
	}
	return s.repo.Update(ctx, owner, func(o *Owner) error {
		if err := fn(o); err != nil {
			return err
		}
		o.UpdatedAt = s.now().UTC()
		return nil
	})
}

func (s *observer) read(ctx context.Context, op, owner string) (*Owner, error) {
	start := time.Now()
	if err := required(op, "ownerId", owner); err != nil {
		return nil, s.fail(ctx, nil, op, owner, start, err)
	}
	ctx, span := instrumentation.StartAccessSpan(ctx, op, owner)
	defer span.End()

	o, err := s.repo.Get(ctx, owner)
	if err != nil {
		return nil, s.fail(ctx, span, op, owner, start, err)
	}
	s.succeed(ctx, span, op, start)
	return o, nil
}

func (s *observer) succeed(ctx context.Context, span trace.Span, op string, start time.Time) {
	instrumentation.SetSpanSuccess(span)
	s.metrics.RecordAccessOperation(ctx, op, instrumentation.StatusSuccess, "", time.Since(start))
}

// fail classifies err, records it and logs operation, owner and kind. span
// may be nil for errors raised before the span starts.
func (s *observer) fail(ctx context.Context, span trace.Span, op, owner string, start time.Time, err error) error {
	err = classify(op, owner, err)
	kind := KindOf(err)
	if span != nil {
		span.SetAttributes(attribute.String(instrumentation.SpanAttrKind, string(kind)))
		instrumentation.SetSpanError(span, err)
	}
	s.metrics.RecordAccessOperation(ctx, op, instrumentation.StatusError, string(kind), time.Since(start))

	level := slog.LevelInfo
	if kind == KindStorageFailure {
		level = slog.LevelError
	}
	s.logger.Log(ctx, level, "access operation failed",
		logging.Operation(op),
		logging.UserHash(owner),
		logging.Kind(string(kind)),
		logging.Err(err))
	return err
}

// classify turns any error into an *Error carrying op. Storage sentinels get
// a message naming the owner; anything that is not an *Error is a storage
// failure.
func classify(op, owner string, err error) error {
	var e *Error
	if !errors.As(err, &e) {
		return &Error{Kind: KindStorageFailure, Op: op, Message: "storage failure", Err: err}
	}
	if e.Op == op {
		return e
	}
	if e.Message != "" {
		c := *e
		c.Op = op
		return &c
	}
	msg := string(e.Kind)
	switch e.Kind {
	case KindNotFound:
		msg = fmt.Sprintf("owner %s not found", owner)
	case KindAlreadyExists:
		msg = fmt.Sprintf("user %s already exists", owner)
	case KindStorageFailure:
		msg = "storage failure"
	}
	return &Error{Kind: e.Kind, Op: op, Message: msg, Err: err}
}

// required returns InvalidArgument for the first blank value in the
// name/value pairs.
func required(op string, pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return &Error{Kind: KindInvalidArgument, Op: op, Message: pairs[i] + " is required"}
		}
	}
	return nil
}

func groupAccess(o *Owner) GroupAccess {
	return GroupAccess{
		AccessList:       nonNil(cloneStrings(o.AccessList)),
		GroupsWithAccess: nonNil(cloneStrings(o.GroupsWithAccess)),
	}
}

func accounts(owners []*Owner) []Account {
	out := make([]Account, 0, len(owners))
	for _, o := range owners {
		out = append(out, o.Account())
	}
	return out
}
