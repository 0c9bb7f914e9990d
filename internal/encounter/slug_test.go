package encounter_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/encounters/internal/dice"
	"github.com/cory-johannsen/encounters/internal/encounter"
)

type takenSet map[string]bool

func (s takenSet) SlugExists(_ context.Context, slug string) (bool, error) {
	return s[slug], nil
}

type brokenChecker struct{}

func (brokenChecker) SlugExists(context.Context, string) (bool, error) {
	return false, errors.New("connection refused")
}

func TestSlugAlphabetAvoidsLookalikes(t *testing.T) {
	for _, c := range "0Oo1lIi" {
		assert.NotContains(t, encounter.SlugAlphabet, string(c))
	}
}

func TestValidSlug(t *testing.T) {
	assert.True(t, encounter.ValidSlug("abcd2345", 8))
	assert.False(t, encounter.ValidSlug("abcd234", 8), "too short")
	assert.False(t, encounter.ValidSlug("abcd23450", 8), "too long")
	assert.False(t, encounter.ValidSlug("abcd234O", 8), "lookalike")
	assert.False(t, encounter.ValidSlug("abcd-234", 8), "punctuation")
	assert.False(t, encounter.ValidSlug("", 8))
}

func TestAllocate_SkipsTakenSlugs(t *testing.T) {
	logger := zaptest.NewLogger(t)
	// length 1 over a seeded source makes the first draws predictable
	probe := encounter.NewSlugAllocator(takenSet{}, dice.NewSeededSource(7), 1, 5, nil, logger)
	first := probe.Generate()

	a := encounter.NewSlugAllocator(takenSet{first: true}, dice.NewSeededSource(7), 1, 5, nil, logger)
	slug, err := a.Allocate(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first, slug)
}

func TestAllocate_Exhaustion(t *testing.T) {
	taken := takenSet{}
	for _, c := range encounter.SlugAlphabet {
		taken[string(c)] = true
	}
	a := encounter.NewSlugAllocator(taken, dice.NewCryptoSource(), 1, 4, nil, zaptest.NewLogger(t))
	_, err := a.Allocate(context.Background())
	assert.True(t, errors.Is(err, encounter.ErrSlugAllocationFailed))
	assert.Contains(t, err.Error(), "4 attempts")
}

func TestAllocate_CheckerError(t *testing.T) {
	a := encounter.NewSlugAllocator(brokenChecker{}, dice.NewCryptoSource(), 8, 4, nil, zaptest.NewLogger(t))
	_, err := a.Allocate(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, encounter.ErrSlugAllocationFailed))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestProperty_GeneratedSlugsAreValid(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		length := rapid.IntRange(1, 32).Draw(rt, "length")
		seed := rapid.Uint64().Draw(rt, "seed")
		a := encounter.NewSlugAllocator(takenSet{}, dice.NewSeededSource(seed), length, 1, nil, zaptest.NewLogger(t))
		s := a.Generate()
		if !encounter.ValidSlug(s, length) {
			rt.Fatalf("generated invalid slug %q for length %d", s, length)
		}
	})
}

func TestRandomName(t *testing.T) {
	src := dice.NewSeededSource(42)
	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		name := encounter.RandomName(src)
		require.GreaterOrEqual(t, len(name), encounter.MinNameLength)
		require.LessOrEqual(t, len(name), encounter.MaxNameLength)
		require.Equal(t, strings.TrimSpace(name), name)
		seen[name] = true
	}
	assert.Greater(t, len(seen), 100, "names vary")
}
