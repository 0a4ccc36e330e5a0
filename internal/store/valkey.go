package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/valkey-io/valkey-go"

	"github.com/chatmate/chatmate/internal/access"
	"github.com/chatmate/chatmate/internal/logging"
)

// Valkey stores each owner as a JSON string and keeps the set of usernames
// for directory queries.
//
// Keys:
//
//	<prefix>owner:<username>  owner JSON
//	<prefix>owners            set of usernames
type Valkey struct {
	client valkey.Client
	keys   keyspace
	log    logging.Logger
}

type keyspace struct {
	prefix string
}

func (k keyspace) owner(username string) string { return k.prefix + "owner:" + username }

func (k keyspace) index() string { return k.prefix + "owners" }

// NewValkey connects to a single Valkey node.
func NewValkey(ctx context.Context, cfg ValkeyConfig, log logging.Logger) (*Valkey, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{cfg.Addr},
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to valkey at %s: %w", cfg.Addr, err)
	}

	v := &Valkey{client: client, keys: keyspace{prefix: cfg.KeyPrefix}, log: log}
	if err := v.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping valkey: %w", err)
	}

	log.Info("connected to valkey", "addr", cfg.Addr, "db", cfg.DB)
	return v, nil
}

func (v *Valkey) Get(ctx context.Context, username string) (*access.Owner, error) {
	data, err := v.client.Do(ctx, v.client.B().Get().Key(v.keys.owner(username)).Build()).AsBytes()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, notFound(username)
		}
		return nil, fmt.Errorf("failed to load owner %s: %w", username, err)
	}
	return decodeOwner(data)
}

func (v *Valkey) Create(ctx context.Context, owner *access.Owner) error {
	data, err := json.Marshal(owner)
	if err != nil {
		return fmt.Errorf("failed to encode owner %s: %w", owner.Username, err)
	}
	cmd := v.client.B().Set().Key(v.keys.owner(owner.Username)).Value(string(data)).Nx().Build()
	if err := v.client.Do(ctx, cmd).Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return alreadyExists(owner.Username)
		}
		return fmt.Errorf("failed to store owner %s: %w", owner.Username, err)
	}
	if err := v.client.Do(ctx, v.client.B().Sadd().Key(v.keys.index()).Member(owner.Username).Build()).Error(); err != nil {
		return fmt.Errorf("failed to index owner %s: %w", owner.Username, err)
	}
	return nil
}

// Update is GET, mutate, SET XX. Concurrent updates to the same owner are
// last-write-wins.
func (v *Valkey) Update(ctx context.Context, username string, mutate func(*access.Owner) error) (*access.Owner, error) {
	o, err := v.Get(ctx, username)
	if err != nil {
		return nil, err
	}
	if err := mutate(o); err != nil {
		return nil, err
	}
	data, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("failed to encode owner %s: %w", username, err)
	}
	cmd := v.client.B().Set().Key(v.keys.owner(username)).Value(string(data)).Xx().Build()
	if err := v.client.Do(ctx, cmd).Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, notFound(username)
		}
		return nil, fmt.Errorf("failed to store owner %s: %w", username, err)
	}
	return o, nil
}

func (v *Valkey) FindByAccess(ctx context.Context, visitor string) ([]*access.Owner, error) {
	return v.scan(ctx, func(o *access.Owner) bool {
		for _, u := range o.AccessList {
			if u == visitor {
				return true
			}
		}
		return false
	}, 0)
}

func (v *Valkey) Search(ctx context.Context, q access.SearchQuery) ([]*access.Owner, error) {
	return v.scan(ctx, func(o *access.Owner) bool { return q.Match(o.Username) }, q.Limit)
}

func (v *Valkey) Count(ctx context.Context) (int64, error) {
	n, err := v.client.Do(ctx, v.client.B().Scard().Key(v.keys.index()).Build()).AsInt64()
	if err != nil {
		return 0, fmt.Errorf("failed to count owners: %w", err)
	}
	return n, nil
}

func (v *Valkey) Ping(ctx context.Context) error {
	return v.client.Do(ctx, v.client.B().Ping().Build()).Error()
}

func (v *Valkey) Close(context.Context) error {
	v.client.Close()
	v.log.Info("disconnected from valkey")
	return nil
}

// scan loads every indexed owner in username order and keeps the matches.
// Owners are fetched in MGET batches.
func (v *Valkey) scan(ctx context.Context, match func(*access.Owner) bool, limit int) ([]*access.Owner, error) {
	names, err := v.client.Do(ctx, v.client.B().Smembers().Key(v.keys.index()).Build()).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to list owners: %w", err)
	}
	sort.Strings(names)

	var out []*access.Owner
	for start := 0; start < len(names); start += scanBatch {
		end := min(start+scanBatch, len(names))
		keys := make([]string, 0, end-start)
		for _, name := range names[start:end] {
			keys = append(keys, v.keys.owner(name))
		}
		msgs, err := v.client.Do(ctx, v.client.B().Mget().Key(keys...).Build()).ToArray()
		if err != nil {
			return nil, fmt.Errorf("failed to load owners: %w", err)
		}
		for i, msg := range msgs {
			if msg.IsNil() {
				// indexed but deleted out of band
				v.log.Warn("indexed owner has no record", logging.KeyUserHash, logging.AnonymizeUser(names[start+i]))
				continue
			}
			data, err := msg.AsBytes()
			if err != nil {
				return nil, fmt.Errorf("failed to load owners: %w", err)
			}
			o, err := decodeOwner(data)
			if err != nil {
				return nil, err
			}
			if match(o) {
				out = append(out, o)
				if limit > 0 && len(out) == limit {
					return out, nil
				}
			}
		}
	}
	return out, nil
}

const scanBatch = 100

func decodeOwner(data []byte) (*access.Owner, error) {
	var o access.Owner
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("failed to decode owner: %w", err)
	}
	return &o, nil
}
