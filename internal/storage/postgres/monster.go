package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/encounters/internal/catalog"
	"github.com/cory-johannsen/encounters/internal/encounter"
)

// MonsterRepository is the PostgreSQL monster catalog. It serves as the
// candidate pool for table generation.
type MonsterRepository struct {
	db *pgxpool.Pool
}

// NewMonsterRepository creates a MonsterRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewMonsterRepository(db *pgxpool.Pool) *MonsterRepository {
	return &MonsterRepository{db: db}
}

const monsterColumns = `id::text, name, source, owner_id::text, is_public, challenge_level,
	armor_class, hit_points, hit_dice, speed, movement_types, size, type, alignment,
	description, attacks, abilities`

func scanMonster(row pgx.Row) (catalog.Monster, error) {
	var (
		m         catalog.Monster
		ownerID   *string
		attacks   []byte
		abilities []byte
	)
	err := row.Scan(&m.ID, &m.Name, &m.Source, &ownerID, &m.IsPublic, &m.ChallengeLevel,
		&m.ArmorClass, &m.HitPoints, &m.HitDice, &m.Speed, &m.MovementTypes, &m.Size, &m.Type,
		&m.Alignment, &m.Description, &attacks, &abilities)
	if err != nil {
		return catalog.Monster{}, err
	}
	if ownerID != nil {
		m.OwnerID = *ownerID
	}
	if err := json.Unmarshal(attacks, &m.Attacks); err != nil {
		return catalog.Monster{}, fmt.Errorf("decoding attacks of monster %s: %w", m.ID, err)
	}
	if err := json.Unmarshal(abilities, &m.Abilities); err != nil {
		return catalog.Monster{}, fmt.Errorf("decoding abilities of monster %s: %w", m.ID, err)
	}
	return m, nil
}

// Upsert inserts m or replaces the stored monster with the same ID.
//
// Precondition: m must pass Validate; user monsters must reference an existing account.
// Postcondition: The stored row equals m with movement types lower-cased.
func (r *MonsterRepository) Upsert(ctx context.Context, m catalog.Monster) error {
	if err := m.Validate(); err != nil {
		return err
	}
	attacks, err := json.Marshal(nonNil(m.Attacks))
	if err != nil {
		return fmt.Errorf("encoding attacks: %w", err)
	}
	abilities, err := json.Marshal(nonNil(m.Abilities))
	if err != nil {
		return fmt.Errorf("encoding abilities: %w", err)
	}
	movement := make([]string, len(m.MovementTypes))
	for i, mt := range m.MovementTypes {
		movement[i] = strings.ToLower(strings.TrimSpace(mt))
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO monsters (id, name, source, owner_id, is_public, challenge_level,
		   armor_class, hit_points, hit_dice, speed, movement_types, size, type, alignment,
		   description, attacks, abilities)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name, source = EXCLUDED.source, owner_id = EXCLUDED.owner_id,
		   is_public = EXCLUDED.is_public, challenge_level = EXCLUDED.challenge_level,
		   armor_class = EXCLUDED.armor_class, hit_points = EXCLUDED.hit_points,
		   hit_dice = EXCLUDED.hit_dice, speed = EXCLUDED.speed,
		   movement_types = EXCLUDED.movement_types, size = EXCLUDED.size, type = EXCLUDED.type,
		   alignment = EXCLUDED.alignment, description = EXCLUDED.description,
		   attacks = EXCLUDED.attacks, abilities = EXCLUDED.abilities, updated_at = NOW()`,
		m.ID, m.Name, m.Source, nullableUUID(m.OwnerID), m.IsPublic, m.ChallengeLevel,
		m.ArmorClass, m.HitPoints, m.HitDice, m.Speed, movement, m.Size, m.Type, m.Alignment,
		m.Description, attacks, abilities,
	)
	if err != nil {
		if code, _ := violation(err); code == codeForeignKeyViolation {
			return fmt.Errorf("monster %s: owner %s does not exist", m.ID, m.OwnerID)
		}
		return fmt.Errorf("upserting monster %s: %w", m.ID, err)
	}
	return nil
}

// Get returns the monster with the given ID.
//
// Postcondition: Returns the monster or an error wrapping catalog.ErrMonsterNotFound.
func (r *MonsterRepository) Get(ctx context.Context, id string) (catalog.Monster, error) {
	if _, err := uuid.Parse(id); err != nil {
		return catalog.Monster{}, fmt.Errorf("%w: %s", catalog.ErrMonsterNotFound, id)
	}
	m, err := scanMonster(r.db.QueryRow(ctx,
		`SELECT `+monsterColumns+` FROM monsters WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Monster{}, fmt.Errorf("%w: %s", catalog.ErrMonsterNotFound, id)
	}
	if err != nil {
		return catalog.Monster{}, fmt.Errorf("querying monster: %w", err)
	}
	return m, nil
}

// Find returns every monster matching filters for a table owned by ownerID,
// ordered by name then ID. It selects exactly what filters.Matches accepts.
//
// Precondition: filters must be normalized and valid.
func (r *MonsterRepository) Find(ctx context.Context, ownerID string, filters catalog.Filters) ([]catalog.Monster, error) {
	where, args := findClause(ownerID, filters)
	rows, err := r.db.Query(ctx,
		`SELECT `+monsterColumns+` FROM monsters WHERE `+where+` ORDER BY name, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying monsters: %w", err)
	}
	defer rows.Close()

	var out []catalog.Monster
	for rows.Next() {
		m, err := scanMonster(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning monster: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("querying monsters: %w", err)
	}
	return out, nil
}

// Count returns the number of monsters in the catalog.
func (r *MonsterRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM monsters`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting monsters: %w", err)
	}
	return n, nil
}

// findClause builds the WHERE clause and arguments for Find.
func findClause(ownerID string, f catalog.Filters) (string, []any) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conds = append(conds, fmt.Sprintf("challenge_level BETWEEN %s AND %s", arg(f.LevelMin), arg(f.LevelMax)))

	var sources []string
	for _, s := range f.Sources {
		switch s {
		case catalog.FilterOfficial:
			sources = append(sources, "source = 'official'")
		case catalog.FilterUser:
			if ownerID != "" {
				sources = append(sources, fmt.Sprintf("(source = 'user' AND owner_id::text = %s)", arg(ownerID)))
			}
		case catalog.FilterPublic:
			sources = append(sources, "(source = 'user' AND is_public)")
		}
	}
	if len(sources) == 0 {
		sources = append(sources, "FALSE")
	}
	conds = append(conds, "("+strings.Join(sources, " OR ")+")")

	if len(f.MovementTypes) > 0 {
		conds = append(conds, fmt.Sprintf("EXISTS (SELECT 1 FROM unnest(movement_types) mt WHERE lower(mt) = ANY(%s))", arg(f.MovementTypes)))
	}
	if len(f.Alignments) > 0 {
		conds = append(conds, fmt.Sprintf("lower(alignment) = ANY(%s)", arg(f.Alignments)))
	}
	if f.SearchQuery != "" {
		p := arg("%" + likeEscaper.Replace(strings.ToLower(f.SearchQuery)) + "%")
		conds = append(conds, fmt.Sprintf("(lower(name) LIKE %s OR lower(description) LIKE %s)", p, p))
	}
	return strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

var _ encounter.CandidatePool = (*MonsterRepository)(nil)
