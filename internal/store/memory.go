package store

import (
	"context"
	"sort"
	"sync"

	"github.com/chatmate/chatmate/internal/access"
)

// Memory keeps owners in a map. Records are deep-copied on the way in and
// out so callers never share slices with the store.
type Memory struct {
	mu     sync.RWMutex
	owners map[string]*access.Owner
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{owners: make(map[string]*access.Owner)}
}

func (m *Memory) Get(_ context.Context, username string) (*access.Owner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.owners[username]
	if !ok {
		return nil, notFound(username)
	}
	return o.Clone(), nil
}

func (m *Memory) Create(_ context.Context, owner *access.Owner) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.owners[owner.Username]; ok {
		return alreadyExists(owner.Username)
	}
	m.owners[owner.Username] = owner.Clone()
	return nil
}

// Update holds the write lock across mutate, so updates to one store are
// serialized.
func (m *Memory) Update(_ context.Context, username string, mutate func(*access.Owner) error) (*access.Owner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.owners[username]
	if !ok {
		return nil, notFound(username)
	}
	next := o.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	m.owners[username] = next
	return next.Clone(), nil
}

func (m *Memory) FindByAccess(_ context.Context, visitor string) ([]*access.Owner, error) {
	return m.collect(func(o *access.Owner) bool {
		for _, u := range o.AccessList {
			if u == visitor {
				return true
			}
		}
		return false
	}, 0), nil
}

func (m *Memory) Search(_ context.Context, q access.SearchQuery) ([]*access.Owner, error) {
	return m.collect(func(o *access.Owner) bool { return q.Match(o.Username) }, q.Limit), nil
}

func (m *Memory) Count(context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.owners)), nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close(context.Context) error { return nil }

// collect returns clones of matching owners sorted by username. A limit of
// zero means no limit.
func (m *Memory) collect(match func(*access.Owner) bool, limit int) []*access.Owner {
	m.mu.RLock()
	names := make([]string, 0, len(m.owners))
	for name, o := range m.owners {
		if match(o) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if limit > 0 && len(names) > limit {
		names = names[:limit]
	}
	out := make([]*access.Owner, 0, len(names))
	for _, name := range names {
		out = append(out, m.owners[name].Clone())
	}
	m.mu.RUnlock()
	return out
}
