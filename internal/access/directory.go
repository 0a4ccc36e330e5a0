package access

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/chatmate/chatmate/internal/instrumentation"
	"github.com/chatmate/chatmate/internal/logging"
)

// Directory registers owners and answers username lookups for the admin UI.
type Directory struct {
	*observer
}

// NewDirectory creates a Directory.
func NewDirectory(cfg ServiceConfig) (*Directory, error) {
	o, err := newObserver(cfg)
	if err != nil {
		return nil, err
	}
	return &Directory{observer: o}, nil
}

// Register creates an owner with empty access state and open access.
func (d *Directory) Register(ctx context.Context, reg Registration) (Account, error) {
	start := time.Now()
	reg.Username = strings.TrimSpace(reg.Username)
	if err := validUsername(reg.Username); err != nil {
		return Account{}, d.fail(ctx, nil, OpRegister, reg.Username, start, err)
	}

	ctx, span := instrumentation.StartAccessSpan(ctx, OpRegister, reg.Username)
	defer span.End()

	now := d.now().UTC()
	o := &Owner{
		ID:               uuid.NewString(),
		Username:         reg.Username,
		Name:             strings.TrimSpace(reg.Name),
		Email:            strings.TrimSpace(reg.Email),
		AccessList:       []string{},
		Groups:           []Group{},
		GroupsWithAccess: []string{},
		DirectGrants:     []string{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := d.repo.Create(ctx, o); err != nil {
		return Account{}, d.fail(ctx, span, OpRegister, reg.Username, start, err)
	}
	d.succeed(ctx, span, OpRegister, start)
	d.logger.DebugContext(ctx, "owner registered", logging.UserHash(o.Username), logging.Domain(o.Email))
	d.audit.LogAccessChange(&instrumentation.AccessChange{
		Operation: OpRegister,
		Owner:     o.Username,
		Success:   true,
		Duration:  time.Since(start),
		TraceID:   instrumentation.TraceID(ctx),
	})
	return o.Account(), nil
}

// LookupAccount returns the directory entry for username.
func (d *Directory) LookupAccount(ctx context.Context, username string) (Account, error) {
	o, err := d.read(ctx, OpLookupAccount, username)
	if err != nil {
		return Account{}, err
	}
	return o.Account(), nil
}

// SearchAccounts returns up to limit accounts whose username matches query.
// See SearchQuery for the matching rules.
func (d *Directory) SearchAccounts(ctx context.Context, query string, limit int) ([]Account, error) {
	start := time.Now()
	q, err := NewSearchQuery(query, limit)
	if err != nil {
		return nil, d.fail(ctx, nil, OpSearchAccounts, "", start, err)
	}

	ctx, span := instrumentation.StartAccessSpan(ctx, OpSearchAccounts, "")
	defer span.End()

	owners, err := d.repo.Search(ctx, q)
	if err != nil {
		return nil, d.fail(ctx, span, OpSearchAccounts, "", start, err)
	}
	if len(owners) > q.Limit {
		owners = owners[:q.Limit]
	}
	d.succeed(ctx, span, OpSearchAccounts, start)
	return accounts(owners), nil
}

// CountAccounts returns the number of registered owners.
func (d *Directory) CountAccounts(ctx context.Context) (int64, error) {
	start := time.Now()
	ctx, span := instrumentation.StartAccessSpan(ctx, OpCountAccounts, "")
	defer span.End()

	n, err := d.repo.Count(ctx)
	if err != nil {
		return 0, d.fail(ctx, span, OpCountAccounts, "", start, err)
	}
	d.succeed(ctx, span, OpCountAccounts, start)
	return n, nil
}

const maxUsernameLen = 64

// validUsername rejects names that cannot appear in a URL path segment or a
// storage key.
func validUsername(username string) error {
	if username == "" {
		return &Error{Kind: KindInvalidArgument, Op: OpRegister, Message: "username is required"}
	}
	if len(username) > maxUsernameLen {
		return newError(KindInvalidArgument, "username must be at most %d characters", maxUsernameLen)
	}
	for _, r := range username {
		if unicode.IsSpace(r) || r == '/' || r == '?' || r == '#' || unicode.IsControl(r) {
			return newError(KindInvalidArgument, "username %q contains invalid characters", username)
		}
	}
	return nil
}
