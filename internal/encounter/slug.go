package encounter

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/encounters/internal/dice"
	"github.com/cory-johannsen/encounters/internal/observability"
)

// SlugAlphabet is the set of characters used in public slugs. It omits
// 0, O, o, 1, l, I and i.
const SlugAlphabet = "23456789abcdefghjkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ"

// SlugChecker reports whether a slug is already held by a table.
type SlugChecker interface {
	SlugExists(ctx context.Context, slug string) (bool, error)
}

// SlugAllocator generates public slugs that are not currently in use.
type SlugAllocator struct {
	checker     SlugChecker
	src         dice.Source
	length      int
	maxAttempts int
	metrics     *observability.EngineMetrics
	logger      *zap.Logger
}

// NewSlugAllocator creates a SlugAllocator.
//
// Precondition: checker, src and logger must be non-nil; length >= 1;
// maxAttempts >= 1. metrics may be nil.
func NewSlugAllocator(checker SlugChecker, src dice.Source, length, maxAttempts int, metrics *observability.EngineMetrics, logger *zap.Logger) *SlugAllocator {
	return &SlugAllocator{
		checker:     checker,
		src:         src,
		length:      length,
		maxAttempts: maxAttempts,
		metrics:     metrics,
		logger:      logger,
	}
}

// MaxAttempts returns the allocation attempt budget.
func (a *SlugAllocator) MaxAttempts() int {
	return a.maxAttempts
}

// Generate returns a random slug without checking for collisions.
//
// Postcondition: ValidSlug(result, length) is true.
func (a *SlugAllocator) Generate() string {
	b := make([]byte, a.length)
	for i := range b {
		b[i] = SlugAlphabet[a.src.Intn(len(SlugAlphabet))]
	}
	return string(b)
}

// Allocate returns a slug no table held at the time of the check.
//
// Postcondition: Returns a valid slug, or an error wrapping
// ErrSlugAllocationFailed after maxAttempts collisions, or the checker's error.
// A returned slug may still be claimed concurrently; the storage uniqueness
// constraint settles that race.
func (a *SlugAllocator) Allocate(ctx context.Context) (string, error) {
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		slug := a.Generate()
		exists, err := a.checker.SlugExists(ctx, slug)
		if err != nil {
			return "", fmt.Errorf("checking slug: %w", err)
		}
		if !exists {
			return slug, nil
		}
		a.metrics.RecordSlugCollision()
		a.logger.Warn("public slug collision",
			zap.String("slug", slug),
			zap.Int("attempt", attempt),
		)
	}
	a.metrics.RecordSlugExhaustion()
	return "", fmt.Errorf("%w: no free slug after %d attempts", ErrSlugAllocationFailed, a.maxAttempts)
}

// ValidSlug reports whether s has the given length and uses only SlugAlphabet.
func ValidSlug(s string, length int) bool {
	if len(s) != length {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isSlugChar(s[i]) {
			return false
		}
	}
	return true
}

func isSlugChar(c byte) bool {
	for i := 0; i < len(SlugAlphabet); i++ {
		if SlugAlphabet[i] == c {
			return true
		}
	}
	return false
}
