package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/encounters/internal/encounter"
)

// Constraint names declared in migrations/000003_create_encounter_tables.up.sql.
const (
	constraintSlugUnique    = "encounter_tables_public_slug_key"
	constraintMonsterUnique = "encounter_table_entries_monster_unique"
	constraintRollUnique    = "encounter_table_entries_roll_unique"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// TableStore persists encounter tables and their entries.
// Its methods run on the pool; InTx runs a function on a single transaction.
type TableStore struct {
	tableRepo
	db *pgxpool.Pool
}

// NewTableStore creates a TableStore backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewTableStore(db *pgxpool.Pool) *TableStore {
	return &TableStore{tableRepo: tableRepo{q: db}, db: db}
}

// InTx runs fn inside a transaction. fn's error rolls the transaction back.
//
// Postcondition: Either every write made through the Repository passed to fn
// is committed, or none is.
func (s *TableStore) InTx(ctx context.Context, fn func(encounter.Repository) error) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		return fn(&tableRepo{q: tx})
	})
}

type tableRepo struct {
	q querier
}

const tableColumns = `id::text, owner_id::text, name, description, die_size,
	is_public, public_slug, filters, created_at, updated_at`

func scanTable(row pgx.Row) (*encounter.Table, error) {
	var (
		t       encounter.Table
		filters []byte
	)
	err := row.Scan(&t.ID, &t.OwnerID, &t.Name, &t.Description, &t.DieSize,
		&t.IsPublic, &t.PublicSlug, &filters, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(filters, &t.Filters); err != nil {
		return nil, fmt.Errorf("decoding filters of table %s: %w", t.ID, err)
	}
	return &t, nil
}

func (r *tableRepo) CreateTable(ctx context.Context, t *encounter.Table) error {
	if t.IsPublic != (t.PublicSlug != nil) {
		return fmt.Errorf("%w: is_public and public_slug disagree", encounter.ErrInvalidArgument)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	filters, err := json.Marshal(t.Filters)
	if err != nil {
		return fmt.Errorf("encoding filters: %w", err)
	}
	err = r.q.QueryRow(ctx,
		`INSERT INTO encounter_tables
		   (id, owner_id, name, description, die_size, is_public, public_slug, filters)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at, updated_at`,
		t.ID, t.OwnerID, t.Name, t.Description, t.DieSize, t.IsPublic, t.PublicSlug, filters,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		code, constraint := violation(err)
		switch {
		case code == codeUniqueViolation && constraint == constraintSlugUnique:
			return encounter.ErrSlugTaken
		case code == codeForeignKeyViolation:
			return fmt.Errorf("%w: owner %s", encounter.ErrNotFound, t.OwnerID)
		}
		return fmt.Errorf("inserting table: %w", err)
	}
	return nil
}

func (r *tableRepo) GetTable(ctx context.Context, id string) (*encounter.Table, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: table %s", encounter.ErrNotFound, id)
	}
	t, err := scanTable(r.q.QueryRow(ctx,
		`SELECT `+tableColumns+` FROM encounter_tables WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: table %s", encounter.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying table: %w", err)
	}
	return t, nil
}

func (r *tableRepo) GetTableBySlug(ctx context.Context, slug string) (*encounter.Table, error) {
	t, err := scanTable(r.q.QueryRow(ctx,
		`SELECT `+tableColumns+` FROM encounter_tables
		 WHERE public_slug = $1 AND is_public`, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: public table %q", encounter.ErrNotFound, slug)
	}
	if err != nil {
		return nil, fmt.Errorf("querying public table: %w", err)
	}
	return t, nil
}

func (r *tableRepo) ListTables(ctx context.Context, ownerID string, limit, offset int) ([]*encounter.Table, int, error) {
	if _, err := uuid.Parse(ownerID); err != nil {
		return []*encounter.Table{}, 0, nil
	}
	var total int
	if err := r.q.QueryRow(ctx,
		`SELECT count(*) FROM encounter_tables WHERE owner_id = $1`, ownerID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting tables: %w", err)
	}

	rows, err := r.q.Query(ctx,
		`SELECT `+tableColumns+` FROM encounter_tables
		 WHERE owner_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2 OFFSET $3`,
		ownerID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	out := []*encounter.Table{}
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning table: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("listing tables: %w", err)
	}
	return out, total, nil
}

func (r *tableRepo) UpdateTable(ctx context.Context, t *encounter.Table) error {
	if _, err := uuid.Parse(t.ID); err != nil {
		return fmt.Errorf("%w: table %s", encounter.ErrNotFound, t.ID)
	}
	filters, err := json.Marshal(t.Filters)
	if err != nil {
		return fmt.Errorf("encoding filters: %w", err)
	}
	err = r.q.QueryRow(ctx,
		`UPDATE encounter_tables
		 SET name = $2, description = $3, filters = $4, updated_at = NOW()
		 WHERE id = $1
		 RETURNING updated_at`,
		t.ID, t.Name, t.Description, filters,
	).Scan(&t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: table %s", encounter.ErrNotFound, t.ID)
	}
	if err != nil {
		return fmt.Errorf("updating table: %w", err)
	}
	return nil
}

func (r *tableRepo) DeleteTable(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: table %s", encounter.ErrNotFound, id)
	}
	tag, err := r.q.Exec(ctx, `DELETE FROM encounter_tables WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting table: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: table %s", encounter.ErrNotFound, id)
	}
	return nil
}

func (r *tableRepo) SetSharing(ctx context.Context, id string, isPublic bool, slug *string) error {
	if isPublic != (slug != nil) {
		return fmt.Errorf("%w: is_public and public_slug disagree", encounter.ErrInvalidArgument)
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: table %s", encounter.ErrNotFound, id)
	}
	tag, err := r.q.Exec(ctx,
		`UPDATE encounter_tables
		 SET is_public = $2, public_slug = $3, updated_at = NOW()
		 WHERE id = $1`,
		id, isPublic, slug)
	if err != nil {
		code, constraint := violation(err)
		switch {
		case code == codeUniqueViolation && constraint == constraintSlugUnique:
			return fmt.Errorf("%w: %s", encounter.ErrSlugTaken, *slug)
		case code == codeCheckViolation:
			return fmt.Errorf("%w: %s", encounter.ErrInvalidArgument, constraint)
		}
		return fmt.Errorf("updating sharing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: table %s", encounter.ErrNotFound, id)
	}
	return nil
}

func (r *tableRepo) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM encounter_tables WHERE public_slug = $1)`, slug,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("querying slug: %w", err)
	}
	return exists, nil
}

const entryColumns = `id::text, table_id::text, roll_number, monster_id::text,
	monster_snapshot, created_at, updated_at`

func scanEntry(row pgx.Row) (encounter.Entry, error) {
	var (
		e         encounter.Entry
		monsterID *string
		snapshot  []byte
	)
	err := row.Scan(&e.ID, &e.TableID, &e.RollNumber, &monsterID, &snapshot, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return encounter.Entry{}, err
	}
	if monsterID != nil {
		e.MonsterID = *monsterID
	}
	if err := json.Unmarshal(snapshot, &e.Snapshot); err != nil {
		return encounter.Entry{}, fmt.Errorf("decoding snapshot of entry %s: %w", e.ID, err)
	}
	return e, nil
}

func (r *tableRepo) tableExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM encounter_tables WHERE id = $1)`, id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("querying table: %w", err)
	}
	return exists, nil
}

func (r *tableRepo) ListEntries(ctx context.Context, tableID string) ([]encounter.Entry, error) {
	if _, err := uuid.Parse(tableID); err != nil {
		return nil, fmt.Errorf("%w: table %s", encounter.ErrNotFound, tableID)
	}
	rows, err := r.q.Query(ctx,
		`SELECT `+entryColumns+` FROM encounter_table_entries
		 WHERE table_id = $1
		 ORDER BY roll_number`, tableID)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	defer rows.Close()

	out := []encounter.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	if len(out) == 0 {
		exists, err := r.tableExists(ctx, tableID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("%w: table %s", encounter.ErrNotFound, tableID)
		}
	}
	return out, nil
}

func (r *tableRepo) GetEntry(ctx context.Context, tableID string, rollNumber int) (*encounter.Entry, error) {
	if _, err := uuid.Parse(tableID); err != nil {
		return nil, fmt.Errorf("%w: table %s", encounter.ErrNotFound, tableID)
	}
	e, err := scanEntry(r.q.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM encounter_table_entries
		 WHERE table_id = $1 AND roll_number = $2`, tableID, rollNumber))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: entry %d of table %s", encounter.ErrNotFound, rollNumber, tableID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying entry: %w", err)
	}
	return &e, nil
}

// InsertEntries writes entries in one batch.
//
// Postcondition: On success every entry has its ID, TableID and timestamps set.
// A monster already on the table yields ErrDuplicateMonster.
func (r *tableRepo) InsertEntries(ctx context.Context, tableID string, entries []encounter.Entry) error {
	if _, err := uuid.Parse(tableID); err != nil {
		return fmt.Errorf("%w: table %s", encounter.ErrNotFound, tableID)
	}
	batch := &pgx.Batch{}
	for i := range entries {
		snapshot, err := json.Marshal(entries[i].Snapshot)
		if err != nil {
			return fmt.Errorf("encoding snapshot for roll %d: %w", entries[i].RollNumber, err)
		}
		batch.Queue(
			`INSERT INTO encounter_table_entries (table_id, roll_number, monster_id, monster_snapshot)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id::text, created_at, updated_at`,
			tableID, entries[i].RollNumber, nullableUUID(entries[i].MonsterID), snapshot,
		)
	}

	br := r.q.SendBatch(ctx, batch)
	for i := range entries {
		err := br.QueryRow().Scan(&entries[i].ID, &entries[i].CreatedAt, &entries[i].UpdatedAt)
		if err != nil {
			_ = br.Close()
			return entryWriteError(err, tableID, entries[i])
		}
		entries[i].TableID = tableID
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("inserting entries: %w", err)
	}
	return nil
}

func (r *tableRepo) DeleteEntries(ctx context.Context, tableID string) error {
	if _, err := uuid.Parse(tableID); err != nil {
		return fmt.Errorf("%w: table %s", encounter.ErrNotFound, tableID)
	}
	if _, err := r.q.Exec(ctx, `DELETE FROM encounter_table_entries WHERE table_id = $1`, tableID); err != nil {
		return fmt.Errorf("deleting entries: %w", err)
	}
	return nil
}

func (r *tableRepo) ReplaceEntry(ctx context.Context, e *encounter.Entry) error {
	if _, err := uuid.Parse(e.TableID); err != nil {
		return fmt.Errorf("%w: table %s", encounter.ErrNotFound, e.TableID)
	}
	snapshot, err := json.Marshal(e.Snapshot)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	err = r.q.QueryRow(ctx,
		`UPDATE encounter_table_entries
		 SET monster_id = $3, monster_snapshot = $4, updated_at = NOW()
		 WHERE table_id = $1 AND roll_number = $2
		 RETURNING id::text, created_at, updated_at`,
		e.TableID, e.RollNumber, nullableUUID(e.MonsterID), snapshot,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: entry %d of table %s", encounter.ErrNotFound, e.RollNumber, e.TableID)
	}
	if err != nil {
		return entryWriteError(err, e.TableID, *e)
	}
	return nil
}

func entryWriteError(err error, tableID string, e encounter.Entry) error {
	code, constraint := violation(err)
	switch {
	case code == codeUniqueViolation && constraint == constraintMonsterUnique:
		return fmt.Errorf("%w: %s", encounter.ErrDuplicateMonster, e.MonsterID)
	case code == codeUniqueViolation && constraint == constraintRollUnique:
		return fmt.Errorf("table %s already has an entry for roll %d", tableID, e.RollNumber)
	case code == codeCheckViolation:
		return fmt.Errorf("%w: roll number must be >= 1, got %d", encounter.ErrInvalidArgument, e.RollNumber)
	case code == codeForeignKeyViolation:
		return fmt.Errorf("%w: table %s", encounter.ErrNotFound, tableID)
	}
	return fmt.Errorf("writing entry for roll %d: %w", e.RollNumber, err)
}

// nullableUUID maps an empty monster reference to SQL NULL.
func nullableUUID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}

var (
	_ encounter.Store      = (*TableStore)(nil)
	_ encounter.Repository = (*tableRepo)(nil)
)
