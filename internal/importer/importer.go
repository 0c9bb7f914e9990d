// Package importer loads monster definitions from disk into the catalog.
package importer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/encounters/internal/catalog"
)

// Writer persists catalog monsters. *postgres.MonsterRepository satisfies it.
type Writer interface {
	Upsert(ctx context.Context, m catalog.Monster) error
}

// Options tunes a single import run.
type Options struct {
	// OwnerID is assigned to user monsters that do not name an owner.
	OwnerID string
	// DryRun validates every monster without writing any.
	DryRun bool
}

// Result summarizes an import run.
type Result struct {
	Loaded  int
	Written int
}

// Importer orchestrates monster import from a Source into a Writer.
type Importer struct {
	source Source
	writer Writer
	logger *zap.Logger
}

// New constructs an Importer.
//
// Precondition: source, writer and logger must be non-nil.
// Postcondition: returns a non-nil Importer.
func New(source Source, writer Writer, logger *zap.Logger) *Importer {
	return &Importer{source: source, writer: writer, logger: logger}
}

// Run loads monsters from dir, fills missing IDs and owners, validates the
// whole batch, and upserts each monster.
//
// Precondition: dir must satisfy the source's layout requirements.
// Postcondition: Nothing is written unless every monster validates and no ID
// repeats. A write failure stops the run; monsters written before it remain.
func (imp *Importer) Run(ctx context.Context, dir string, opts Options) (Result, error) {
	start := time.Now()

	monsters, err := imp.source.Load(dir)
	if err != nil {
		return Result{}, fmt.Errorf("loading source: %w", err)
	}
	res := Result{Loaded: len(monsters)}

	seen := make(map[string]string, len(monsters))
	for i := range monsters {
		m := &monsters[i]
		if m.ID == "" {
			m.ID = MonsterID(m.Name)
		}
		if m.Source == "" {
			m.Source = catalog.SourceOfficial
		}
		if m.Source == catalog.SourceUser && m.OwnerID == "" {
			m.OwnerID = opts.OwnerID
		}
		if err := m.Validate(); err != nil {
			return res, err
		}
		if prev, ok := seen[m.ID]; ok {
			return res, fmt.Errorf("monster %q (%s) has the same id as %q", m.Name, m.ID, prev)
		}
		seen[m.ID] = m.Name
	}
	imp.logger.Info("monsters loaded",
		zap.String("dir", dir),
		zap.Int("count", res.Loaded),
		zap.Duration("elapsed", time.Since(start)),
	)
	if opts.DryRun {
		return res, nil
	}

	for _, m := range monsters {
		if err := imp.writer.Upsert(ctx, m); err != nil {
			return res, fmt.Errorf("writing monster %q: %w", m.Name, err)
		}
		res.Written++
	}
	imp.logger.Info("monsters imported",
		zap.Int("written", res.Written),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}
