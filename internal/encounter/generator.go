package encounter

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/encounters/internal/catalog"
	"github.com/cory-johannsen/encounters/internal/dice"
)

// GeneratorConfig tunes table generation.
type GeneratorConfig struct {
	// MaxDieSize is the largest accepted die size.
	MaxDieSize int
	// PoolQueryTimeout bounds each candidate pool query.
	PoolQueryTimeout time.Duration
}

// Generator builds table entries by drawing distinct monsters from a CandidatePool.
type Generator struct {
	pool   CandidatePool
	src    dice.Source
	cfg    GeneratorConfig
	logger *zap.Logger
}

// NewGenerator creates a Generator.
//
// Precondition: pool, src and logger must be non-nil; cfg.MaxDieSize >= 1.
func NewGenerator(pool CandidatePool, src dice.Source, cfg GeneratorConfig, logger *zap.Logger) *Generator {
	return &Generator{pool: pool, src: src, cfg: cfg, logger: logger}
}

// CheckDieSize enforces the configured upper bound on die sizes for new tables.
//
// Postcondition: Returns ErrInvalidArgument unless 1 <= dieSize <= MaxDieSize.
func (g *Generator) CheckDieSize(dieSize int) error {
	if dieSize < 1 || dieSize > g.cfg.MaxDieSize {
		return fmt.Errorf("%w: die size must be 1-%d, got %d", ErrInvalidArgument, g.cfg.MaxDieSize, dieSize)
	}
	return nil
}

// Prepare validates a generation request and returns the normalized filters.
// The MaxDieSize bound is not applied here, so tables stored under a larger
// bound stay editable and regenerable.
//
// Postcondition: Returns ErrInvalidArgument unless dieSize >= 1 and the
// filters are valid.
func (g *Generator) Prepare(dieSize int, filters catalog.Filters) (catalog.Filters, error) {
	if dieSize < 1 {
		return catalog.Filters{}, fmt.Errorf("%w: die size must be positive, got %d", ErrInvalidArgument, dieSize)
	}
	f := filters.Normalize()
	if err := f.Validate(); err != nil {
		return catalog.Filters{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return f, nil
}

// Generate draws dieSize distinct monsters matching filters and maps them to
// roll numbers 1..dieSize.
//
// Precondition: ownerID identifies the table owner for "user" source filtering.
// Callers creating a new table apply CheckDieSize first.
// Postcondition: On success len(entries) == dieSize, entries[i].RollNumber == i+1,
// every MonsterID is distinct and every snapshot is an independent copy.
// Validation errors are returned before the pool is queried; a pool smaller
// than dieSize yields ErrInsufficientCandidates. Nothing is persisted.
func (g *Generator) Generate(ctx context.Context, ownerID string, dieSize int, filters catalog.Filters) ([]Entry, error) {
	f, err := g.Prepare(dieSize, filters)
	if err != nil {
		return nil, err
	}

	candidates, err := g.Candidates(ctx, ownerID, f, nil)
	if err != nil {
		return nil, err
	}
	if len(candidates) < dieSize {
		return nil, fmt.Errorf("%w: only %d monsters match the filters, need %d",
			ErrInsufficientCandidates, len(candidates), dieSize)
	}

	picks := dice.Sample(g.src, len(candidates), dieSize)
	entries := make([]Entry, dieSize)
	for i, idx := range picks {
		m := candidates[idx]
		entries[i] = Entry{
			RollNumber: i + 1,
			MonsterID:  m.ID,
			Snapshot:   m.Snapshot(),
		}
	}

	g.logger.Debug("generated table entries",
		zap.String("owner_id", ownerID),
		zap.Int("die_size", dieSize),
		zap.Int("candidates", len(candidates)),
	)
	return entries, nil
}

// Candidates queries the pool under the configured deadline and returns the
// matching monsters de-duplicated by ID, skipping any ID in exclude.
//
// Precondition: filters must be normalized.
func (g *Generator) Candidates(ctx context.Context, ownerID string, filters catalog.Filters, exclude map[string]bool) ([]catalog.Monster, error) {
	qctx, cancel := context.WithTimeout(ctx, g.cfg.PoolQueryTimeout)
	defer cancel()

	found, err := g.pool.Find(qctx, ownerID, filters)
	if err != nil {
		return nil, fmt.Errorf("querying candidate pool: %w", err)
	}

	seen := make(map[string]bool, len(found))
	out := make([]catalog.Monster, 0, len(found))
	for _, m := range found {
		if seen[m.ID] || exclude[m.ID] {
			continue
		}
		seen[m.ID] = true
		out = append(out, m)
	}
	return out, nil
}

// Pick returns one random monster from candidates.
//
// Precondition: len(candidates) > 0.
func (g *Generator) Pick(candidates []catalog.Monster) catalog.Monster {
	return candidates[g.src.Intn(len(candidates))]
}
