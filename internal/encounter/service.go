package encounter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/cory-johannsen/encounters/internal/catalog"
	"github.com/cory-johannsen/encounters/internal/config"
	"github.com/cory-johannsen/encounters/internal/dice"
	"github.com/cory-johannsen/encounters/internal/observability"
)

const copySuffix = " (Copy)"

// Service orchestrates encounter table operations over a Store and a CandidatePool.
// It is safe for concurrent use.
type Service struct {
	store   Store
	pool    CandidatePool
	gen     *Generator
	roller  *dice.Roller
	slugs   *SlugAllocator
	public  *cache.Cache
	metrics *observability.EngineMetrics

	// evictMu guards evictions and bumps evictions[slug] on every one, so
	// a read that began before an eviction never repopulates the cache.
	evictMu   sync.Mutex
	evictions map[string]uint64
	logger  *zap.Logger
}

// NewService wires a Service.
//
// Precondition: store, pool, roller and logger must be non-nil; cfg must be
// valid. metrics may be nil. A zero cfg.PublicCacheTTL disables the public
// read cache.
func NewService(store Store, pool CandidatePool, roller *dice.Roller, cfg config.EncounterConfig, metrics *observability.EngineMetrics, logger *zap.Logger) *Service {
	s := &Service{
		store:   store,
		pool:    pool,
		roller:  roller,
		metrics: metrics,
		logger:  logger,
		gen: NewGenerator(pool, roller.Source(), GeneratorConfig{
			MaxDieSize:       cfg.MaxDieSize,
			PoolQueryTimeout: cfg.PoolQueryTimeout,
		}, logger),
		slugs: NewSlugAllocator(store, roller.Source(), cfg.SlugLength, cfg.SlugMaxAttempts, metrics, logger),
	}
	if cfg.PublicCacheTTL > 0 {
		s.public = cache.New(cfg.PublicCacheTTL, cfg.PublicCacheCleanup)
		s.evictions = make(map[string]uint64)
	}
	return s
}

// Create stores a new table owned by caller and, unless in.GenerateNow is
// false, fills it with generated entries. An empty name is replaced by a
// random one.
//
// Postcondition: On success the table and all its entries were committed
// together; on failure nothing was written.
func (s *Service) Create(ctx context.Context, caller Caller, in CreateInput) (t *Table, err error) {
	defer s.observe("create", time.Now(), &err)

	if caller.Anonymous() {
		return nil, ErrUnauthenticated
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = RandomName(s.roller.Source())
	}
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := validateDescription(in.Description); err != nil {
		return nil, err
	}
	if err := s.gen.CheckDieSize(in.DieSize); err != nil {
		return nil, err
	}
	filters, err := s.gen.Prepare(in.DieSize, in.Filters)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	if in.GenerateNow == nil || *in.GenerateNow {
		entries, err = s.gen.Generate(ctx, caller.ID, in.DieSize, filters)
		if err != nil {
			return nil, err
		}
	}

	t = &Table{
		OwnerID:     caller.ID,
		Name:        name,
		Description: in.Description,
		DieSize:     in.DieSize,
		Filters:     filters,
	}
	err = s.store.InTx(ctx, func(r Repository) error {
		if err := r.CreateTable(ctx, t); err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		return r.InsertEntries(ctx, t.ID, entries)
	})
	if err != nil {
		return nil, fmt.Errorf("creating table: %w", err)
	}
	t.Entries = entries

	s.logger.Info("table created",
		zap.String("table_id", t.ID),
		zap.String("owner_id", t.OwnerID),
		zap.Int("die_size", t.DieSize),
		zap.Int("entries", len(entries)),
	)
	return t, nil
}

// Preview generates entries for the given die size and filters without storing anything.
func (s *Service) Preview(ctx context.Context, caller Caller, dieSize int, filters catalog.Filters) (entries []Entry, err error) {
	defer s.observe("preview", time.Now(), &err)
	if err := s.gen.CheckDieSize(dieSize); err != nil {
		return nil, err
	}
	return s.gen.Generate(ctx, caller.ID, dieSize, filters)
}

// Get returns a table with its entries ordered by roll number.
//
// Postcondition: Private tables are returned only to their owner or an admin.
func (s *Service) Get(ctx context.Context, id string, caller Caller) (t *Table, err error) {
	defer s.observe("get", time.Now(), &err)

	t, err = s.loadTable(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	if !caller.canView(t) {
		return nil, fmt.Errorf("%w: table %s is private", ErrForbidden, id)
	}
	if t.Entries, err = s.store.ListEntries(ctx, t.ID); err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	return t, nil
}

// GetPublic returns the public table holding slug with its entries. Results
// are served from the public read cache when enabled.
//
// Postcondition: The returned table is the caller's own copy.
func (s *Service) GetPublic(ctx context.Context, slug string) (t *Table, err error) {
	defer s.observe("get_public", time.Now(), &err)

	if err := s.checkSlug(slug); err != nil {
		return nil, err
	}
	if s.public != nil {
		if v, ok := s.public.Get(slug); ok {
			s.metrics.RecordPublicCache(true)
			return v.(*Table).Clone(), nil
		}
		s.metrics.RecordPublicCache(false)
	}

	gen := s.evictionCount(slug)
	t, err = s.store.GetTableBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if t.Entries, err = s.store.ListEntries(ctx, t.ID); err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	s.fillPublic(slug, gen, t)
	return t, nil
}

// List returns one page of caller's tables, newest first, without entries.
func (s *Service) List(ctx context.Context, caller Caller, page Page) (p *TablePage, err error) {
	defer s.observe("list", time.Now(), &err)

	if caller.Anonymous() {
		return nil, ErrUnauthenticated
	}
	page, err = page.Normalize()
	if err != nil {
		return nil, err
	}
	tables, total, err := s.store.ListTables(ctx, caller.ID, page.Limit, page.Offset())
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	return &TablePage{Tables: tables, Page: page.Page, Limit: page.Limit, Total: total}, nil
}

// Update edits a table's name, description or filters. Only the owner may edit.
// Changing filters does not touch existing entries.
func (s *Service) Update(ctx context.Context, id string, caller Caller, in UpdateInput) (t *Table, err error) {
	defer s.observe("update", time.Now(), &err)

	t, err = s.loadTable(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(caller, t); err != nil {
		return nil, err
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if err := validateName(name); err != nil {
			return nil, err
		}
		t.Name = name
	}
	if in.Description != nil {
		if err := validateDescription(*in.Description); err != nil {
			return nil, err
		}
		t.Description = *in.Description
	}
	if in.Filters != nil {
		f, err := s.gen.Prepare(t.DieSize, *in.Filters)
		if err != nil {
			return nil, err
		}
		t.Filters = f
	}
	if err := s.store.UpdateTable(ctx, t); err != nil {
		return nil, fmt.Errorf("updating table: %w", err)
	}
	s.evict(t)
	return t, nil
}

// Delete removes a table and its entries. The owner or an admin may delete.
func (s *Service) Delete(ctx context.Context, id string, caller Caller) (err error) {
	defer s.observe("delete", time.Now(), &err)

	t, err := s.loadTable(ctx, s.store, id)
	if err != nil {
		return err
	}
	if err := requireOwnerOrAdmin(caller, t); err != nil {
		return err
	}
	if err := s.store.DeleteTable(ctx, id); err != nil {
		return fmt.Errorf("deleting table: %w", err)
	}
	s.evict(t)
	s.logger.Info("table deleted",
		zap.String("table_id", id),
		zap.String("caller_id", caller.ID),
		zap.Bool("admin", caller.Admin),
	)
	return nil
}

// Regenerate replaces every entry of a table with a fresh draw under its
// stored filters. The owner or an admin may regenerate.
//
// Postcondition: Either all old entries were replaced by exactly DieSize new
// ones, or the table is unchanged. Generation failures happen before any write.
func (s *Service) Regenerate(ctx context.Context, id string, caller Caller) (t *Table, err error) {
	defer s.observe("regenerate", time.Now(), &err)

	t, err = s.loadTable(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	if err := requireOwnerOrAdmin(caller, t); err != nil {
		return nil, err
	}
	entries, err := s.gen.Generate(ctx, t.OwnerID, t.DieSize, t.Filters)
	if err != nil {
		return nil, err
	}

	err = s.store.InTx(ctx, func(r Repository) error {
		if err := r.DeleteEntries(ctx, t.ID); err != nil {
			return err
		}
		return r.InsertEntries(ctx, t.ID, entries)
	})
	if err != nil {
		return nil, fmt.Errorf("regenerating table %s: %w", t.ID, err)
	}
	s.evict(t)
	t.Entries = entries

	s.logger.Info("table regenerated",
		zap.String("table_id", t.ID),
		zap.Int("die_size", t.DieSize),
	)
	return t, nil
}

// Roll rolls the table's die and returns the matching entry.
//
// Postcondition: Private tables may be rolled only by their owner or an admin.
// When the entry for the rolled number is missing the result still carries
// RollNumber and the error is an *InconsistentTableError.
func (s *Service) Roll(ctx context.Context, id string, caller Caller) (res RollResult, err error) {
	defer s.observe("roll", time.Now(), &err)

	t, err := s.loadTable(ctx, s.store, id)
	if err != nil {
		return RollResult{}, err
	}
	if !caller.canView(t) {
		return RollResult{}, fmt.Errorf("%w: table %s is private", ErrForbidden, id)
	}
	return s.roll(ctx, t, "roll")
}

// RollPublic rolls the public table holding slug. No identity is required.
func (s *Service) RollPublic(ctx context.Context, slug string) (res RollResult, err error) {
	defer s.observe("roll_public", time.Now(), &err)

	if err := s.checkSlug(slug); err != nil {
		return RollResult{}, err
	}
	t, err := s.store.GetTableBySlug(ctx, slug)
	if err != nil {
		return RollResult{}, err
	}
	return s.roll(ctx, t, "roll_public")
}

func (s *Service) roll(ctx context.Context, t *Table, op string) (RollResult, error) {
	n, err := s.roller.RollDie(t.DieSize)
	if err != nil {
		return RollResult{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	res := RollResult{TableID: t.ID, RollNumber: n}

	entry, err := s.store.GetEntry(ctx, t.ID, n)
	if errors.Is(err, ErrNotFound) {
		s.metrics.RecordIntegrityFault(op)
		s.logger.Error("rolled number has no entry",
			zap.String("table_id", t.ID),
			zap.Int("die_size", t.DieSize),
			zap.Int("roll_number", n),
		)
		return res, &InconsistentTableError{TableID: t.ID, RollNumber: n}
	}
	if err != nil {
		return res, fmt.Errorf("fetching entry for roll %d: %w", n, err)
	}
	res.Entry = entry
	s.metrics.RecordRoll(t.IsPublic)
	return res, nil
}

// SetPublic publishes or unpublishes a table. Only the owner may change sharing.
//
// Postcondition: Requesting the current state changes nothing. Publishing
// assigns a fresh slug; unpublishing clears it and the slug is not reused by
// this table. Slug exhaustion yields ErrShareFailed with visibility unchanged.
func (s *Service) SetPublic(ctx context.Context, id string, caller Caller, public bool) (sh Sharing, err error) {
	defer s.observe("share", time.Now(), &err)

	t, err := s.loadTable(ctx, s.store, id)
	if err != nil {
		return Sharing{}, err
	}
	if err := requireOwner(caller, t); err != nil {
		return Sharing{}, err
	}
	if t.IsPublic == public {
		return Sharing{IsPublic: t.IsPublic, PublicSlug: t.PublicSlug}, nil
	}

	if !public {
		if err := s.store.SetSharing(ctx, id, false, nil); err != nil {
			return Sharing{}, fmt.Errorf("unpublishing table %s: %w", id, err)
		}
		s.evict(t)
		s.logger.Info("table unpublished", zap.String("table_id", id))
		return Sharing{}, nil
	}

	for attempt := 1; attempt <= s.slugs.MaxAttempts(); attempt++ {
		slug, err := s.slugs.Allocate(ctx)
		if errors.Is(err, ErrSlugAllocationFailed) {
			return Sharing{}, fmt.Errorf("%w: %w", ErrShareFailed, err)
		}
		if err != nil {
			return Sharing{}, err
		}

		err = s.store.SetSharing(ctx, id, true, &slug)
		if err == nil {
			s.logger.Info("table published",
				zap.String("table_id", id),
				zap.String("slug", slug),
			)
			return Sharing{IsPublic: true, PublicSlug: &slug}, nil
		}
		if !errors.Is(err, ErrSlugTaken) {
			return Sharing{}, fmt.Errorf("publishing table %s: %w", id, err)
		}
		s.metrics.RecordSlugCollision()
		s.logger.Warn("public slug claimed concurrently",
			zap.String("table_id", id),
			zap.String("slug", slug),
			zap.Int("attempt", attempt),
		)
	}
	s.metrics.RecordSlugExhaustion()
	return Sharing{}, fmt.Errorf("%w: %w: every allocated slug was claimed before it could be stored",
		ErrShareFailed, ErrSlugAllocationFailed)
}

// Copy duplicates the public table holding slug into a new private table
// owned by caller, entries and snapshots included.
//
// Postcondition: On success the copy holds the same roll numbers, monster
// references and snapshots as the source. If copying entries fails the new
// table is deleted before the error is returned.
func (s *Service) Copy(ctx context.Context, slug string, caller Caller) (t *Table, err error) {
	defer s.observe("copy", time.Now(), &err)

	if caller.Anonymous() {
		return nil, ErrUnauthenticated
	}
	if err := s.checkSlug(slug); err != nil {
		return nil, err
	}
	src, err := s.store.GetTableBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	srcEntries, err := s.store.ListEntries(ctx, src.ID)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	if len(srcEntries) == 0 {
		return nil, fmt.Errorf("%w: table %s", ErrNoEntries, src.ID)
	}
	if caller.owns(src) {
		return nil, ErrSelfCopy
	}

	t = &Table{
		OwnerID:     caller.ID,
		Name:        copyName(src.Name),
		Description: src.Description,
		DieSize:     src.DieSize,
		Filters:     src.Filters.Clone(),
	}
	if err := s.store.CreateTable(ctx, t); err != nil {
		return nil, fmt.Errorf("creating copy: %w", err)
	}

	entries := make([]Entry, len(srcEntries))
	for i, e := range srcEntries {
		entries[i] = Entry{
			RollNumber: e.RollNumber,
			MonsterID:  e.MonsterID,
			Snapshot:   e.Snapshot.Clone(),
		}
	}
	if err := s.store.InsertEntries(ctx, t.ID, entries); err != nil {
		return nil, s.compensateCopy(ctx, t.ID, fmt.Errorf("copying entries: %w", err))
	}
	t.Entries = entries

	s.logger.Info("table copied",
		zap.String("source_id", src.ID),
		zap.String("table_id", t.ID),
		zap.String("owner_id", caller.ID),
	)
	return t, nil
}

func (s *Service) compensateCopy(ctx context.Context, tableID string, cause error) error {
	cctx := context.WithoutCancel(ctx)
	if err := s.store.DeleteTable(cctx, tableID); err != nil {
		s.metrics.RecordCopyCompensation(false)
		s.logger.Error("removing partial copy failed",
			zap.String("table_id", tableID),
			zap.Error(err),
		)
		return errors.Join(cause, fmt.Errorf("removing partial copy %s: %w", tableID, err))
	}
	s.metrics.RecordCopyCompensation(true)
	s.logger.Warn("removed partial copy",
		zap.String("table_id", tableID),
		zap.Error(cause),
	)
	return cause
}

// ReplaceEntry swaps the monster at one roll number. In random mode a monster
// matching the table's filters and absent from every other roll is drawn; in
// search mode in.MonsterID is used. Only the owner may replace entries.
func (s *Service) ReplaceEntry(ctx context.Context, id string, caller Caller, roll int, in ReplaceInput) (e *Entry, err error) {
	defer s.observe("replace_entry", time.Now(), &err)

	t, err := s.loadTable(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(caller, t); err != nil {
		return nil, err
	}
	if roll < 1 || roll > t.DieSize {
		return nil, fmt.Errorf("%w: roll number must be 1-%d, got %d", ErrInvalidArgument, t.DieSize, roll)
	}
	switch in.Mode {
	case ReplaceRandom:
	case ReplaceSearch:
		if in.MonsterID == "" {
			return nil, fmt.Errorf("%w: monster_id is required in search mode", ErrInvalidArgument)
		}
	default:
		return nil, fmt.Errorf("%w: mode must be %q or %q", ErrInvalidArgument, ReplaceRandom, ReplaceSearch)
	}

	entries, err := s.store.ListEntries(ctx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	var current *Entry
	others := make(map[string]bool, len(entries))
	for i := range entries {
		if entries[i].RollNumber == roll {
			current = &entries[i]
			continue
		}
		if entries[i].MonsterID != "" {
			others[entries[i].MonsterID] = true
		}
	}
	if current == nil {
		return nil, fmt.Errorf("%w: no entry for roll %d", ErrNotFound, roll)
	}

	var m catalog.Monster
	if in.Mode == ReplaceRandom {
		candidates, err := s.gen.Candidates(ctx, t.OwnerID, t.Filters, others)
		if err != nil {
			return nil, err
		}
		if len(candidates) == 0 {
			return nil, fmt.Errorf("%w: no monster matching the table filters is left", ErrInsufficientCandidates)
		}
		m = s.gen.Pick(candidates)
	} else {
		m, err = s.pool.Get(ctx, in.MonsterID)
		if errors.Is(err, catalog.ErrMonsterNotFound) {
			return nil, fmt.Errorf("%w: monster %s", ErrNotFound, in.MonsterID)
		}
		if err != nil {
			return nil, fmt.Errorf("loading monster: %w", err)
		}
		if !visibleTo(m, t.OwnerID) {
			return nil, fmt.Errorf("%w: monster %s", ErrNotFound, in.MonsterID)
		}
		if others[m.ID] {
			return nil, fmt.Errorf("%w: monster %s is at another roll", ErrDuplicateMonster, m.ID)
		}
	}

	current.MonsterID = m.ID
	current.Snapshot = m.Snapshot()
	if err := s.store.ReplaceEntry(ctx, current); err != nil {
		return nil, fmt.Errorf("replacing entry: %w", err)
	}
	s.evict(t)
	return current, nil
}

func (s *Service) loadTable(ctx context.Context, r Repository, id string) (*Table, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: table id is required", ErrInvalidArgument)
	}
	return r.GetTable(ctx, id)
}

func (s *Service) checkSlug(slug string) error {
	if !ValidSlug(slug, s.slugs.length) {
		return fmt.Errorf("%w: malformed public slug", ErrNotFound)
	}
	return nil
}

// evict drops t's public view from the read cache.
func (s *Service) evict(t *Table) {
	if s.public == nil || t.PublicSlug == nil {
		return
	}
	s.evictMu.Lock()
	defer s.evictMu.Unlock()
	s.evictions[*t.PublicSlug]++
	s.public.Delete(*t.PublicSlug)
}

func (s *Service) evictionCount(slug string) uint64 {
	if s.public == nil {
		return 0
	}
	s.evictMu.Lock()
	defer s.evictMu.Unlock()
	return s.evictions[slug]
}

// fillPublic caches t under slug unless slug was evicted since gen was read.
func (s *Service) fillPublic(slug string, gen uint64, t *Table) {
	if s.public == nil {
		return
	}
	s.evictMu.Lock()
	defer s.evictMu.Unlock()
	if s.evictions[slug] != gen {
		return
	}
	s.public.SetDefault(slug, t.Clone())
}

func (s *Service) observe(op string, start time.Time, errp *error) {
	status := "success"
	if *errp != nil {
		status = KindOf(*errp).String()
	}
	s.metrics.RecordOperation(op, status, time.Since(start).Seconds())
}

func requireOwner(c Caller, t *Table) error {
	if c.Anonymous() {
		return ErrUnauthenticated
	}
	if !c.owns(t) {
		return fmt.Errorf("%w: only the owner may modify table %s", ErrForbidden, t.ID)
	}
	return nil
}

func requireOwnerOrAdmin(c Caller, t *Table) error {
	if c.Anonymous() {
		return ErrUnauthenticated
	}
	if !c.Admin && !c.owns(t) {
		return fmt.Errorf("%w: table %s belongs to another user", ErrForbidden, t.ID)
	}
	return nil
}

// visibleTo reports whether ownerID may place m on a table.
func visibleTo(m catalog.Monster, ownerID string) bool {
	return m.Source == catalog.SourceOfficial || m.IsPublic || m.OwnerID == ownerID
}

func copyName(name string) string {
	limit := MaxNameLength - utf8.RuneCountInString(copySuffix)
	if r := []rune(name); len(r) > limit {
		name = strings.TrimSpace(string(r[:limit]))
	}
	return name + copySuffix
}
