// Package memory provides an in-process encounter.Store used as a test double
// by the encounter and api tests. No binary wires it; servers run on PostgreSQL.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cory-johannsen/encounters/internal/encounter"
)

// Store is a mutex-guarded encounter.Store.
//
// Invariant: a slug maps to at most one table, mirroring the unique index of
// the PostgreSQL schema.
type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{st: newState(), now: time.Now}
}

// InTx runs fn against a private copy of the store and swaps the copy in iff
// fn returns nil. Other callers block until fn returns.
//
// Precondition: fn must only use the Repository it is given.
func (s *Store) InTx(ctx context.Context, fn func(encounter.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &view{st: s.st.clone(), now: s.now}
	if err := fn(tx); err != nil {
		return err
	}
	s.st = tx.st
	return nil
}

func (s *Store) locked() (*view, func()) {
	s.mu.Lock()
	return &view{st: s.st, now: s.now}, s.mu.Unlock
}

func (s *Store) CreateTable(ctx context.Context, t *encounter.Table) error {
	v, unlock := s.locked()
	defer unlock()
	return v.CreateTable(ctx, t)
}

func (s *Store) GetTable(ctx context.Context, id string) (*encounter.Table, error) {
	v, unlock := s.locked()
	defer unlock()
	return v.GetTable(ctx, id)
}

func (s *Store) GetTableBySlug(ctx context.Context, slug string) (*encounter.Table, error) {
	v, unlock := s.locked()
	defer unlock()
	return v.GetTableBySlug(ctx, slug)
}

func (s *Store) ListTables(ctx context.Context, ownerID string, limit, offset int) ([]*encounter.Table, int, error) {
	v, unlock := s.locked()
	defer unlock()
	return v.ListTables(ctx, ownerID, limit, offset)
}

func (s *Store) UpdateTable(ctx context.Context, t *encounter.Table) error {
	v, unlock := s.locked()
	defer unlock()
	return v.UpdateTable(ctx, t)
}

func (s *Store) DeleteTable(ctx context.Context, id string) error {
	v, unlock := s.locked()
	defer unlock()
	return v.DeleteTable(ctx, id)
}

func (s *Store) SetSharing(ctx context.Context, id string, isPublic bool, slug *string) error {
	v, unlock := s.locked()
	defer unlock()
	return v.SetSharing(ctx, id, isPublic, slug)
}

func (s *Store) SlugExists(ctx context.Context, slug string) (bool, error) {
	v, unlock := s.locked()
	defer unlock()
	return v.SlugExists(ctx, slug)
}

func (s *Store) ListEntries(ctx context.Context, tableID string) ([]encounter.Entry, error) {
	v, unlock := s.locked()
	defer unlock()
	return v.ListEntries(ctx, tableID)
}

func (s *Store) GetEntry(ctx context.Context, tableID string, rollNumber int) (*encounter.Entry, error) {
	v, unlock := s.locked()
	defer unlock()
	return v.GetEntry(ctx, tableID, rollNumber)
}

func (s *Store) InsertEntries(ctx context.Context, tableID string, entries []encounter.Entry) error {
	v, unlock := s.locked()
	defer unlock()
	return v.InsertEntries(ctx, tableID, entries)
}

func (s *Store) DeleteEntries(ctx context.Context, tableID string) error {
	v, unlock := s.locked()
	defer unlock()
	return v.DeleteEntries(ctx, tableID)
}

func (s *Store) ReplaceEntry(ctx context.Context, e *encounter.Entry) error {
	v, unlock := s.locked()
	defer unlock()
	return v.ReplaceEntry(ctx, e)
}

// DeleteEntry removes the entry at rollNumber. It exists so tests and repair
// tooling can reproduce a table with a missing roll.
func (s *Store) DeleteEntry(ctx context.Context, tableID string, rollNumber int) error {
	v, unlock := s.locked()
	defer unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, ok := v.st.entries[tableID]
	if !ok {
		return fmt.Errorf("%w: table %s", encounter.ErrNotFound, tableID)
	}
	if _, ok := entries[rollNumber]; !ok {
		return fmt.Errorf("%w: entry %d of table %s", encounter.ErrNotFound, rollNumber, tableID)
	}
	delete(entries, rollNumber)
	return nil
}

type tableRow struct {
	table *encounter.Table
	seq   int64
}

type state struct {
	tables  map[string]tableRow
	entries map[string]map[int]encounter.Entry
	slugs   map[string]string
	seq     int64
}

func newState() *state {
	return &state{
		tables:  make(map[string]tableRow),
		entries: make(map[string]map[int]encounter.Entry),
		slugs:   make(map[string]string),
	}
}

func (st *state) clone() *state {
	c := newState()
	c.seq = st.seq
	for id, row := range st.tables {
		c.tables[id] = tableRow{table: row.table.Clone(), seq: row.seq}
	}
	for id, entries := range st.entries {
		m := make(map[int]encounter.Entry, len(entries))
		for roll, e := range entries {
			m[roll] = e.Clone()
		}
		c.entries[id] = m
	}
	for slug, id := range st.slugs {
		c.slugs[slug] = id
	}
	return c
}

// view implements encounter.Repository over a state. The caller provides locking.
type view struct {
	st  *state
	now func() time.Time
}

func (v *view) stamp() time.Time {
	return v.now().UTC()
}

func (v *view) CreateTable(ctx context.Context, t *encounter.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.IsPublic != (t.PublicSlug != nil) {
		return fmt.Errorf("%w: is_public and public_slug disagree", encounter.ErrInvalidArgument)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if _, exists := v.st.tables[t.ID]; exists {
		return fmt.Errorf("table %s already exists", t.ID)
	}
	if t.PublicSlug != nil {
		if _, taken := v.st.slugs[*t.PublicSlug]; taken {
			return encounter.ErrSlugTaken
		}
		v.st.slugs[*t.PublicSlug] = t.ID
	}
	now := v.stamp()
	t.CreatedAt, t.UpdatedAt = now, now
	v.st.seq++
	stored := t.Clone()
	stored.Entries = nil
	v.st.tables[t.ID] = tableRow{table: stored, seq: v.st.seq}
	v.st.entries[t.ID] = make(map[int]encounter.Entry)
	return nil
}

func (v *view) GetTable(ctx context.Context, id string) (*encounter.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	row, ok := v.st.tables[id]
	if !ok {
		return nil, fmt.Errorf("%w: table %s", encounter.ErrNotFound, id)
	}
	return row.table.Clone(), nil
}

func (v *view) GetTableBySlug(ctx context.Context, slug string) (*encounter.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id, ok := v.st.slugs[slug]
	if !ok {
		return nil, fmt.Errorf("%w: public table %q", encounter.ErrNotFound, slug)
	}
	row := v.st.tables[id]
	if !row.table.IsPublic {
		return nil, fmt.Errorf("%w: public table %q", encounter.ErrNotFound, slug)
	}
	return row.table.Clone(), nil
}

func (v *view) ListTables(ctx context.Context, ownerID string, limit, offset int) ([]*encounter.Table, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	var rows []tableRow
	for _, row := range v.st.tables {
		if row.table.OwnerID == ownerID {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].table.CreatedAt.Equal(rows[j].table.CreatedAt) {
			return rows[i].table.CreatedAt.After(rows[j].table.CreatedAt)
		}
		return rows[i].seq > rows[j].seq
	})
	total := len(rows)
	if offset >= total {
		return []*encounter.Table{}, total, nil
	}
	end := min(offset+limit, total)
	out := make([]*encounter.Table, 0, end-offset)
	for _, row := range rows[offset:end] {
		out = append(out, row.table.Clone())
	}
	return out, total, nil
}

func (v *view) UpdateTable(ctx context.Context, t *encounter.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	row, ok := v.st.tables[t.ID]
	if !ok {
		return fmt.Errorf("%w: table %s", encounter.ErrNotFound, t.ID)
	}
	row.table.Name = t.Name
	row.table.Description = t.Description
	row.table.Filters = t.Filters.Clone()
	row.table.UpdatedAt = v.stamp()
	t.UpdatedAt = row.table.UpdatedAt
	return nil
}

func (v *view) DeleteTable(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	row, ok := v.st.tables[id]
	if !ok {
		return fmt.Errorf("%w: table %s", encounter.ErrNotFound, id)
	}
	if row.table.PublicSlug != nil {
		delete(v.st.slugs, *row.table.PublicSlug)
	}
	delete(v.st.tables, id)
	delete(v.st.entries, id)
	return nil
}

func (v *view) SetSharing(ctx context.Context, id string, isPublic bool, slug *string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if isPublic != (slug != nil) {
		return fmt.Errorf("%w: is_public and public_slug disagree", encounter.ErrInvalidArgument)
	}
	row, ok := v.st.tables[id]
	if !ok {
		return fmt.Errorf("%w: table %s", encounter.ErrNotFound, id)
	}
	if slug != nil {
		if holder, taken := v.st.slugs[*slug]; taken && holder != id {
			return fmt.Errorf("%w: %s", encounter.ErrSlugTaken, *slug)
		}
	}
	if row.table.PublicSlug != nil {
		delete(v.st.slugs, *row.table.PublicSlug)
	}
	row.table.IsPublic = isPublic
	row.table.PublicSlug = nil
	if slug != nil {
		s := *slug
		row.table.PublicSlug = &s
		v.st.slugs[s] = id
	}
	row.table.UpdatedAt = v.stamp()
	return nil
}

func (v *view) SlugExists(ctx context.Context, slug string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, ok := v.st.slugs[slug]
	return ok, nil
}

func (v *view) ListEntries(ctx context.Context, tableID string) ([]encounter.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, ok := v.st.entries[tableID]
	if !ok {
		return nil, fmt.Errorf("%w: table %s", encounter.ErrNotFound, tableID)
	}
	out := make([]encounter.Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RollNumber < out[j].RollNumber })
	return out, nil
}

func (v *view) GetEntry(ctx context.Context, tableID string, rollNumber int) (*encounter.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, ok := v.st.entries[tableID][rollNumber]
	if !ok {
		return nil, fmt.Errorf("%w: entry %d of table %s", encounter.ErrNotFound, rollNumber, tableID)
	}
	c := e.Clone()
	return &c, nil
}

func (v *view) InsertEntries(ctx context.Context, tableID string, entries []encounter.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	existing, ok := v.st.entries[tableID]
	if !ok {
		return fmt.Errorf("%w: table %s", encounter.ErrNotFound, tableID)
	}

	rolls := make(map[int]bool, len(existing)+len(entries))
	monsters := make(map[string]bool, len(existing)+len(entries))
	for _, e := range existing {
		rolls[e.RollNumber] = true
		if e.MonsterID != "" {
			monsters[e.MonsterID] = true
		}
	}
	for _, e := range entries {
		if e.RollNumber < 1 {
			return fmt.Errorf("%w: roll number must be >= 1, got %d", encounter.ErrInvalidArgument, e.RollNumber)
		}
		if rolls[e.RollNumber] {
			return fmt.Errorf("table %s already has an entry for roll %d", tableID, e.RollNumber)
		}
		rolls[e.RollNumber] = true
		if e.MonsterID != "" {
			if monsters[e.MonsterID] {
				return fmt.Errorf("%w: %s", encounter.ErrDuplicateMonster, e.MonsterID)
			}
			monsters[e.MonsterID] = true
		}
	}

	now := v.stamp()
	for i := range entries {
		entries[i].ID = uuid.NewString()
		entries[i].TableID = tableID
		entries[i].CreatedAt, entries[i].UpdatedAt = now, now
		existing[entries[i].RollNumber] = entries[i].Clone()
	}
	return nil
}

func (v *view) DeleteEntries(ctx context.Context, tableID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := v.st.entries[tableID]; !ok {
		return fmt.Errorf("%w: table %s", encounter.ErrNotFound, tableID)
	}
	v.st.entries[tableID] = make(map[int]encounter.Entry)
	return nil
}

func (v *view) ReplaceEntry(ctx context.Context, e *encounter.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries := v.st.entries[e.TableID]
	current, ok := entries[e.RollNumber]
	if !ok {
		return fmt.Errorf("%w: entry %d of table %s", encounter.ErrNotFound, e.RollNumber, e.TableID)
	}
	if e.MonsterID != "" {
		for roll, other := range entries {
			if roll != e.RollNumber && other.MonsterID == e.MonsterID {
				return fmt.Errorf("%w: %s", encounter.ErrDuplicateMonster, e.MonsterID)
			}
		}
	}
	current.MonsterID = e.MonsterID
	current.Snapshot = e.Snapshot.Clone()
	current.UpdatedAt = v.stamp()
	entries[e.RollNumber] = current

	e.ID = current.ID
	e.CreatedAt = current.CreatedAt
	e.UpdatedAt = current.UpdatedAt
	return nil
}

var _ encounter.Store = (*Store)(nil)
