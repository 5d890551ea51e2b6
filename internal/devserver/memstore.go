package devserver

import (
	"context"
	"sync"
	"time"
)

// MemStore keeps every table in memory. Write transactions work on a copy
// that replaces the live tables only when the callback succeeds.
type MemStore struct {
	mu     sync.RWMutex
	tables map[string][]Row
	now    func() time.Time
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{tables: make(map[string][]Row), now: time.Now}
}

// Read runs fn against a read-only view of the store.
func (s *MemStore) Read(ctx context.Context, fn func(Tables) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&memTables{tables: s.tables, readOnly: true, now: s.now})
}

// Write runs fn with exclusive access and commits its changes when it
// returns nil.
func (s *MemStore) Write(ctx context.Context, fn func(Tables) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := make(map[string][]Row, len(s.tables))
	for name, rows := range s.tables {
		cp := make([]Row, len(rows))
		for i, r := range rows {
			cp[i] = r.clone()
		}
		work[name] = cp
	}

	if err := fn(&memTables{tables: work, now: s.now}); err != nil {
		return err
	}
	s.tables = work
	return nil
}

// Close is a no-op.
func (s *MemStore) Close() error {
	return nil
}

type memTables struct {
	tables   map[string][]Row
	readOnly bool
	now      func() time.Time
}

func (t *memTables) Select(table string, f Filter) ([]Row, error) {
	matched := f.Apply(t.tables[table])
	out := make([]Row, len(matched))
	for i, r := range matched {
		out[i] = r.clone()
	}
	return out, nil
}

func (t *memTables) Insert(table string, row Row) (Row, error) {
	if t.readOnly {
		return nil, ErrReadOnly
	}
	stored := prepareInsert(normalize(row), t.now())
	t.tables[table] = append(t.tables[table], stored)
	return stored.clone(), nil
}

func (t *memTables) Update(table string, f Filter, patch Row) ([]Row, error) {
	if t.readOnly {
		return nil, ErrReadOnly
	}
	patch = normalize(patch)
	now := t.now()
	var out []Row
	rows := t.tables[table]
	for i, r := range rows {
		if !f.Match(r) {
			continue
		}
		rows[i] = applyPatch(r, patch, now)
		out = append(out, rows[i].clone())
	}
	return out, nil
}
