package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryPool is an in-memory monster catalog that answers candidate queries.
// It is safe for concurrent use.
type MemoryPool struct {
	mu       sync.RWMutex
	monsters map[string]Monster
}

// NewMemoryPool creates a pool seeded with monsters.
//
// Postcondition: Later changes to the caller's slice do not affect the pool.
func NewMemoryPool(monsters ...Monster) *MemoryPool {
	p := &MemoryPool{monsters: make(map[string]Monster, len(monsters))}
	p.Put(monsters...)
	return p
}

// Put inserts or replaces monsters by ID.
func (p *MemoryPool) Put(monsters ...Monster) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range monsters {
		p.monsters[m.ID] = m.Clone()
	}
}

// Remove deletes a monster from the pool. Tables that already snapshot it are unaffected.
func (p *MemoryPool) Remove(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.monsters, id)
}

// Find returns every monster matching filters for ownerID, ordered by name then ID.
//
// Precondition: filters must be normalized.
// Postcondition: Returned monsters are copies.
func (p *MemoryPool) Find(ctx context.Context, ownerID string, filters Filters) ([]Monster, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []Monster
	for _, m := range p.monsters {
		if filters.Matches(m, ownerID) {
			out = append(out, m.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Get returns the monster with the given ID.
//
// Postcondition: Returns a copy, or an error wrapping ErrMonsterNotFound.
func (p *MemoryPool) Get(ctx context.Context, id string) (Monster, error) {
	if err := ctx.Err(); err != nil {
		return Monster{}, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	m, ok := p.monsters[id]
	if !ok {
		return Monster{}, fmt.Errorf("%w: %s", ErrMonsterNotFound, id)
	}
	return m.Clone(), nil
}

// Len returns the number of monsters in the pool.
func (p *MemoryPool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.monsters)
}
