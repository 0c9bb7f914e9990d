package encounter_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/encounters/internal/catalog"
	"github.com/cory-johannsen/encounters/internal/config"
	"github.com/cory-johannsen/encounters/internal/dice"
	"github.com/cory-johannsen/encounters/internal/encounter"
	"github.com/cory-johannsen/encounters/internal/storage/memory"
)

var (
	alice = encounter.Caller{ID: "alice"}
	bob   = encounter.Caller{ID: "bob"}
	admin = encounter.Caller{ID: "root", Admin: true}
)

func testConfig() config.EncounterConfig {
	return config.EncounterConfig{
		MaxDieSize:         1000,
		SlugLength:         8,
		SlugMaxAttempts:    10,
		PoolQueryTimeout:   time.Second,
		PublicCacheTTL:     time.Minute,
		PublicCacheCleanup: 0,
	}
}

func officialFilters() catalog.Filters {
	return catalog.Filters{Sources: []string{catalog.FilterOfficial}}
}

func makeMonsters(n int) []catalog.Monster {
	out := make([]catalog.Monster, n)
	for i := range out {
		out[i] = catalog.Monster{
			ID:             uuid.NewString(),
			Name:           fmt.Sprintf("Monster %03d", i),
			Source:         catalog.SourceOfficial,
			ChallengeLevel: 1 + i%20,
			ArmorClass:     10 + i%8,
			HitPoints:      4 + i,
			MovementTypes:  []string{"climb"},
			Attacks:        []catalog.Attack{{Name: "Bite", Damage: "1d6"}},
		}
	}
	return out
}

// fixture wires a Service over a memory store and pool.
type fixture struct {
	svc      *encounter.Service
	store    encounter.Store
	mem      *memory.Store
	pool     *catalog.MemoryPool
	monsters []catalog.Monster
}

func newFixture(t *testing.T, poolSize int, mutate ...func(*config.EncounterConfig)) *fixture {
	t.Helper()
	return newFixtureWithStore(t, poolSize, nil, mutate...)
}

// newFixtureWithStore builds a fixture whose service talks to wrap(mem) when wrap is non-nil.
func newFixtureWithStore(t *testing.T, poolSize int, wrap func(*memory.Store) encounter.Store, mutate ...func(*config.EncounterConfig)) *fixture {
	t.Helper()
	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	mem := memory.New()
	var store encounter.Store = mem
	if wrap != nil {
		store = wrap(mem)
	}
	monsters := makeMonsters(poolSize)
	pool := catalog.NewMemoryPool(monsters...)
	logger := zaptest.NewLogger(t)
	roller := dice.NewRoller(dice.NewCryptoSource(), logger)
	return &fixture{
		svc:      encounter.NewService(store, pool, roller, cfg, nil, logger),
		store:    store,
		mem:      mem,
		pool:     pool,
		monsters: monsters,
	}
}

func (f *fixture) create(t *testing.T, caller encounter.Caller, dieSize int) *encounter.Table {
	t.Helper()
	tbl, err := f.svc.Create(context.Background(), caller, encounter.CreateInput{
		Name:    "Haunted Barrows",
		DieSize: dieSize,
		Filters: officialFilters(),
	})
	if err != nil {
		t.Fatalf("creating table: %v", err)
	}
	return tbl
}

// faultyStore injects failures into a memory store, including inside transactions.
type faultyStore struct {
	*memory.Store
	failInsert     error
	failDelete     error
	alwaysTaken    bool
	takenOnPersist int
}

func (f *faultyStore) InsertEntries(ctx context.Context, tableID string, entries []encounter.Entry) error {
	if f.failInsert != nil {
		return f.failInsert
	}
	return f.Store.InsertEntries(ctx, tableID, entries)
}

func (f *faultyStore) DeleteTable(ctx context.Context, id string) error {
	if f.failDelete != nil {
		return f.failDelete
	}
	return f.Store.DeleteTable(ctx, id)
}

func (f *faultyStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	if f.alwaysTaken {
		return true, nil
	}
	return f.Store.SlugExists(ctx, slug)
}

func (f *faultyStore) SetSharing(ctx context.Context, id string, isPublic bool, slug *string) error {
	if isPublic && f.takenOnPersist > 0 {
		f.takenOnPersist--
		return encounter.ErrSlugTaken
	}
	return f.Store.SetSharing(ctx, id, isPublic, slug)
}

func (f *faultyStore) InTx(ctx context.Context, fn func(encounter.Repository) error) error {
	return f.Store.InTx(ctx, func(r encounter.Repository) error {
		return fn(&faultyRepo{Repository: r, f: f})
	})
}

type faultyRepo struct {
	encounter.Repository
	f *faultyStore
}

func (r *faultyRepo) InsertEntries(ctx context.Context, tableID string, entries []encounter.Entry) error {
	if r.f.failInsert != nil {
		return r.f.failInsert
	}
	return r.Repository.InsertEntries(ctx, tableID, entries)
}
