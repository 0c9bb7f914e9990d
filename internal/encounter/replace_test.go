package encounter_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/encounters/internal/catalog"
	"github.com/cory-johannsen/encounters/internal/encounter"
)

func entryAt(t *testing.T, tbl *encounter.Table, roll int) encounter.Entry {
	t.Helper()
	for _, e := range tbl.Entries {
		if e.RollNumber == roll {
			return e
		}
	}
	t.Fatalf("no entry at roll %d", roll)
	return encounter.Entry{}
}

// unusedMonster returns a pool monster that is not on tbl.
func unusedMonster(t *testing.T, f *fixture, tbl *encounter.Table) catalog.Monster {
	t.Helper()
	used := make(map[string]bool)
	for _, e := range tbl.Entries {
		used[e.MonsterID] = true
	}
	for _, m := range f.monsters {
		if !used[m.ID] {
			return m
		}
	}
	t.Fatal("every monster is on the table")
	return catalog.Monster{}
}

func TestReplaceEntry_Random(t *testing.T) {
	f := newFixture(t, 12)
	ctx := context.Background()
	tbl := f.create(t, alice, 6)
	before := entryAt(t, tbl, 3)

	e, err := f.svc.ReplaceEntry(ctx, tbl.ID, alice, 3, encounter.ReplaceInput{Mode: encounter.ReplaceRandom})
	require.NoError(t, err)
	assert.Equal(t, 3, e.RollNumber)
	assert.Equal(t, before.ID, e.ID, "the entry keeps its identity")
	assert.Equal(t, e.MonsterID, e.Snapshot.ID)

	stored, err := f.svc.Get(ctx, tbl.ID, alice)
	require.NoError(t, err)
	assertWellFormed(t, stored.Entries, 6)
	assert.Equal(t, e.MonsterID, entryAt(t, stored, 3).MonsterID)
}

func TestReplaceEntry_RandomWithExactPoolKeepsMonster(t *testing.T) {
	f := newFixture(t, 6)
	ctx := context.Background()
	tbl := f.create(t, alice, 6)
	before := entryAt(t, tbl, 2)

	e, err := f.svc.ReplaceEntry(ctx, tbl.ID, alice, 2, encounter.ReplaceInput{Mode: encounter.ReplaceRandom})
	require.NoError(t, err)
	assert.Equal(t, before.MonsterID, e.MonsterID, "the only monster not at another roll is the current one")
}

func TestReplaceEntry_RandomNoCandidates(t *testing.T) {
	f := newFixture(t, 6)
	ctx := context.Background()
	tbl := f.create(t, alice, 6)
	f.pool.Remove(entryAt(t, tbl, 1).MonsterID)

	_, err := f.svc.ReplaceEntry(ctx, tbl.ID, alice, 1, encounter.ReplaceInput{Mode: encounter.ReplaceRandom})
	assert.True(t, errors.Is(err, encounter.ErrInsufficientCandidates))
}

func TestReplaceEntry_Search(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	tbl := f.create(t, alice, 6)
	m := unusedMonster(t, f, tbl)

	e, err := f.svc.ReplaceEntry(ctx, tbl.ID, alice, 4, encounter.ReplaceInput{Mode: encounter.ReplaceSearch, MonsterID: m.ID})
	require.NoError(t, err)
	assert.Equal(t, m.ID, e.MonsterID)
	assert.Equal(t, m.Name, e.Snapshot.Name)

	same := entryAt(t, tbl, 5)
	_, err = f.svc.ReplaceEntry(ctx, tbl.ID, alice, 5, encounter.ReplaceInput{Mode: encounter.ReplaceSearch, MonsterID: same.MonsterID})
	assert.NoError(t, err, "re-selecting the monster already at that roll is allowed")

	_, err = f.svc.ReplaceEntry(ctx, tbl.ID, alice, 1, encounter.ReplaceInput{Mode: encounter.ReplaceSearch, MonsterID: m.ID})
	assert.True(t, errors.Is(err, encounter.ErrDuplicateMonster))
}

func TestReplaceEntry_SearchVisibility(t *testing.T) {
	f := newFixture(t, 6)
	ctx := context.Background()
	tbl := f.create(t, alice, 6)

	private := catalog.Monster{
		ID:             uuid.NewString(),
		Name:           "Bob's Homebrew",
		Source:         catalog.SourceUser,
		OwnerID:        "bob",
		ChallengeLevel: 3,
	}
	shared := private
	shared.ID = uuid.NewString()
	shared.Name = "Bob's Shared Horror"
	shared.IsPublic = true
	f.pool.Put(private, shared)

	_, err := f.svc.ReplaceEntry(ctx, tbl.ID, alice, 1, encounter.ReplaceInput{Mode: encounter.ReplaceSearch, MonsterID: private.ID})
	assert.True(t, errors.Is(err, encounter.ErrNotFound))

	e, err := f.svc.ReplaceEntry(ctx, tbl.ID, alice, 1, encounter.ReplaceInput{Mode: encounter.ReplaceSearch, MonsterID: shared.ID})
	require.NoError(t, err)
	assert.Equal(t, shared.ID, e.MonsterID)

	_, err = f.svc.ReplaceEntry(ctx, tbl.ID, alice, 2, encounter.ReplaceInput{Mode: encounter.ReplaceSearch, MonsterID: uuid.NewString()})
	assert.True(t, errors.Is(err, encounter.ErrNotFound))
}

func TestReplaceEntry_Validation(t *testing.T) {
	f := newFixture(t, 6)
	ctx := context.Background()
	tbl := f.create(t, alice, 6)

	cases := map[string]struct {
		roll int
		in   encounter.ReplaceInput
	}{
		"roll zero":         {0, encounter.ReplaceInput{Mode: encounter.ReplaceRandom}},
		"roll past die":     {7, encounter.ReplaceInput{Mode: encounter.ReplaceRandom}},
		"unknown mode":      {1, encounter.ReplaceInput{Mode: "bogus"}},
		"search without id": {1, encounter.ReplaceInput{Mode: encounter.ReplaceSearch}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.ReplaceEntry(ctx, tbl.ID, alice, tc.roll, tc.in)
			assert.True(t, errors.Is(err, encounter.ErrInvalidArgument), "got %v", err)
		})
	}

	_, err := f.svc.ReplaceEntry(ctx, tbl.ID, bob, 1, encounter.ReplaceInput{Mode: encounter.ReplaceRandom})
	assert.True(t, errors.Is(err, encounter.ErrForbidden))
	_, err = f.svc.ReplaceEntry(ctx, tbl.ID, admin, 1, encounter.ReplaceInput{Mode: encounter.ReplaceRandom})
	assert.True(t, errors.Is(err, encounter.ErrForbidden))
}

func TestReplaceEntry_MissingEntry(t *testing.T) {
	f := newFixture(t, 6)
	ctx := context.Background()
	tbl := f.create(t, alice, 6)
	require.NoError(t, f.mem.DeleteEntry(ctx, tbl.ID, 2))

	_, err := f.svc.ReplaceEntry(ctx, tbl.ID, alice, 2, encounter.ReplaceInput{Mode: encounter.ReplaceRandom})
	assert.True(t, errors.Is(err, encounter.ErrNotFound))
}
