package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/encounters/internal/catalog"
	"github.com/cory-johannsen/encounters/internal/config"
	"github.com/cory-johannsen/encounters/internal/dice"
	"github.com/cory-johannsen/encounters/internal/encounter"
	"github.com/cory-johannsen/encounters/internal/storage/postgres"
	"github.com/cory-johannsen/encounters/internal/testutil"
)

func uniqueName(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
}

func createAccount(t *testing.T, pool *pgxpool.Pool) postgres.Account {
	t.Helper()
	acct, err := postgres.NewAccountRepository(pool).Create(context.Background(), uniqueName("user"), "password123")
	require.NoError(t, err)
	return acct
}

func seedMonsters(t *testing.T, repo *postgres.MonsterRepository, ownerID string) []catalog.Monster {
	t.Helper()
	alignments := []string{"Lawful Good", "Neutral", "Chaotic Evil", "Lawful", "chaotic"}
	movement := [][]string{{"fly"}, {"Swim", "climb"}, nil, {"burrow"}}
	var out []catalog.Monster
	for i := 0; i < 24; i++ {
		m := catalog.Monster{
			ID:             uuid.NewString(),
			Name:           fmt.Sprintf("Beast %02d", i),
			Source:         catalog.SourceOfficial,
			ChallengeLevel: 1 + i%20,
			ArmorClass:     12,
			HitPoints:      10 + i,
			HitDice:        "2d8",
			Speed:          "30 ft.",
			MovementTypes:  movement[i%len(movement)],
			Size:           "Medium",
			Type:           "beast",
			Alignment:      alignments[i%len(alignments)],
			Description:    fmt.Sprintf("A 100%% feral_beast number %d", i),
			Attacks:        []catalog.Attack{{Name: "Claw", Bonus: 3, Damage: "1d6+1", DamageType: "slashing"}},
		}
		if i%3 == 0 {
			m.Source = catalog.SourceUser
			m.OwnerID = ownerID
			m.IsPublic = i%2 == 0
		}
		require.NoError(t, repo.Upsert(context.Background(), m))
		out = append(out, m)
	}
	return out
}

func ids(ms []catalog.Monster) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.ID
	}
	return out
}

func TestPostgres(t *testing.T) {
	pool := testutil.NewPool(t)
	ctx := context.Background()

	t.Run("accounts", func(t *testing.T) {
		repo := postgres.NewAccountRepository(pool)
		name := uniqueName("gm")
		acct, err := repo.Create(ctx, name, "hunter22")
		require.NoError(t, err)
		_, err = uuid.Parse(acct.ID)
		require.NoError(t, err)
		assert.Equal(t, postgres.RolePlayer, acct.Role)

		_, err = repo.Create(ctx, name, "other")
		assert.ErrorIs(t, err, postgres.ErrAccountExists)

		caller, err := repo.Identify(ctx, name, "hunter22")
		require.NoError(t, err)
		assert.Equal(t, encounter.Caller{ID: acct.ID}, caller)

		_, err = repo.Identify(ctx, name, "wrong")
		assert.ErrorIs(t, err, postgres.ErrInvalidCredentials)
		_, err = repo.Identify(ctx, uniqueName("ghost"), "hunter22")
		assert.ErrorIs(t, err, postgres.ErrInvalidCredentials)

		require.NoError(t, repo.SetRole(ctx, acct.ID, postgres.RoleAdmin))
		caller, err = repo.Identify(ctx, name, "hunter22")
		require.NoError(t, err)
		assert.True(t, caller.Admin)

		assert.ErrorIs(t, repo.SetRole(ctx, uuid.NewString(), postgres.RoleAdmin), postgres.ErrAccountNotFound)
		assert.ErrorIs(t, repo.SetRole(ctx, acct.ID, "wizard"), postgres.ErrInvalidRole)
	})

	t.Run("monster find agrees with filter matching", func(t *testing.T) {
		owner := createAccount(t, pool)
		other := createAccount(t, pool)
		repo := postgres.NewMonsterRepository(pool)
		seeded := seedMonsters(t, repo, owner.ID)
		mem := catalog.NewMemoryPool(seeded...)

		got, err := repo.Get(ctx, seeded[3].ID)
		require.NoError(t, err)
		assert.Equal(t, seeded[3].Name, got.Name)
		assert.Equal(t, seeded[3].OwnerID, got.OwnerID)
		assert.Equal(t, seeded[3].Attacks, got.Attacks)

		_, err = repo.Get(ctx, uuid.NewString())
		assert.ErrorIs(t, err, catalog.ErrMonsterNotFound)
		_, err = repo.Get(ctx, "not-a-uuid")
		assert.ErrorIs(t, err, catalog.ErrMonsterNotFound)

		cases := []catalog.Filters{
			{Sources: []string{"official"}},
			{Sources: []string{"user"}},
			{Sources: []string{"public"}},
			{Sources: []string{"official", "user", "public"}, LevelMin: 3, LevelMax: 9},
			{Sources: []string{"official", "public"}, MovementTypes: []string{"swim", "fly"}},
			{Sources: []string{"official", "user"}, Alignments: []string{"lawful", "chaotic"}},
			{Sources: []string{"official", "user"}, SearchQuery: "Beast 1"},
			{Sources: []string{"official", "user"}, SearchQuery: "100%"},
			{Sources: []string{"official", "user"}, SearchQuery: "feral_"},
			{Sources: []string{"official", "user"}, SearchQuery: "l_b"},
		}
		for _, requester := range []string{owner.ID, other.ID} {
			for i, f := range cases {
				f = f.Normalize()
				require.NoError(t, f.Validate())
				want, err := mem.Find(ctx, requester, f)
				require.NoError(t, err)
				got, err := repo.Find(ctx, requester, f)
				require.NoError(t, err)
				assert.Equal(t, ids(want), ids(got), "case %d for requester %s", i, requester)
			}
		}
	})

	t.Run("table store", func(t *testing.T) {
		owner := createAccount(t, pool)
		store := postgres.NewTableStore(pool)

		tbl := &encounter.Table{
			OwnerID: owner.ID,
			Name:    "Sewer Run",
			DieSize: 3,
			Filters: catalog.Filters{Sources: []string{"official"}}.Normalize(),
		}
		require.NoError(t, store.CreateTable(ctx, tbl))
		_, err := uuid.Parse(tbl.ID)
		require.NoError(t, err)

		entries := []encounter.Entry{
			{RollNumber: 1, MonsterID: uuid.NewString(), Snapshot: catalog.Snapshot{Name: "Rat"}},
			{RollNumber: 2, MonsterID: uuid.NewString(), Snapshot: catalog.Snapshot{Name: "Ooze"}},
			{RollNumber: 3, Snapshot: catalog.Snapshot{Name: "Custom Horror"}},
		}
		require.NoError(t, store.InsertEntries(ctx, tbl.ID, entries))
		for _, e := range entries {
			assert.NotEmpty(t, e.ID)
			assert.Equal(t, tbl.ID, e.TableID)
		}

		listed, err := store.ListEntries(ctx, tbl.ID)
		require.NoError(t, err)
		require.Len(t, listed, 3)
		assert.Equal(t, "Ooze", listed[1].Snapshot.Name)
		assert.Empty(t, listed[2].MonsterID)

		dup := []encounter.Entry{{RollNumber: 4, MonsterID: entries[0].MonsterID, Snapshot: catalog.Snapshot{Name: "Rat"}}}
		assert.ErrorIs(t, store.InsertEntries(ctx, tbl.ID, dup), encounter.ErrDuplicateMonster)

		_, err = store.GetEntry(ctx, tbl.ID, 9)
		assert.ErrorIs(t, err, encounter.ErrNotFound)
		_, err = store.ListEntries(ctx, uuid.NewString())
		assert.ErrorIs(t, err, encounter.ErrNotFound)

		slug := "abcd2345"
		require.NoError(t, store.SetSharing(ctx, tbl.ID, true, &slug))
		exists, err := store.SlugExists(ctx, slug)
		require.NoError(t, err)
		assert.True(t, exists)

		second := &encounter.Table{OwnerID: owner.ID, Name: "Second", DieSize: 1, Filters: tbl.Filters}
		require.NoError(t, store.CreateTable(ctx, second))
		assert.ErrorIs(t, store.SetSharing(ctx, second.ID, true, &slug), encounter.ErrSlugTaken)
		assert.ErrorIs(t, store.SetSharing(ctx, second.ID, true, nil), encounter.ErrInvalidArgument)

		public, err := store.GetTableBySlug(ctx, slug)
		require.NoError(t, err)
		assert.Equal(t, tbl.ID, public.ID)

		require.NoError(t, store.SetSharing(ctx, tbl.ID, false, nil))
		_, err = store.GetTableBySlug(ctx, slug)
		assert.ErrorIs(t, err, encounter.ErrNotFound)

		boom := errors.New("boom")
		err = store.InTx(ctx, func(r encounter.Repository) error {
			if err := r.DeleteEntries(ctx, tbl.ID); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)
		listed, err = store.ListEntries(ctx, tbl.ID)
		require.NoError(t, err)
		assert.Len(t, listed, 3, "rolled back")

		page, total, err := store.ListTables(ctx, owner.ID, 1, 0)
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, page, 1)
		assert.Equal(t, second.ID, page[0].ID)

		require.NoError(t, store.DeleteTable(ctx, tbl.ID))
		_, err = store.GetTable(ctx, tbl.ID)
		assert.ErrorIs(t, err, encounter.ErrNotFound)
		assert.ErrorIs(t, store.DeleteTable(ctx, tbl.ID), encounter.ErrNotFound)
	})

	t.Run("service end to end", func(t *testing.T) {
		alice := createAccount(t, pool)
		bob := createAccount(t, pool)
		monsters := postgres.NewMonsterRepository(pool)
		seedMonsters(t, monsters, alice.ID)

		logger := zaptest.NewLogger(t)
		svc := encounter.NewService(
			postgres.NewTableStore(pool),
			monsters,
			dice.NewRoller(dice.NewCryptoSource(), logger),
			config.EncounterConfig{
				MaxDieSize:       1000,
				SlugLength:       8,
				SlugMaxAttempts:  10,
				PoolQueryTimeout: 5 * time.Second,
			},
			nil,
			logger,
		)

		tbl, err := svc.Create(ctx, alice.Caller(), encounter.CreateInput{
			Name:    "Drowned Vault",
			DieSize: 6,
			Filters: catalog.Filters{Sources: []string{"official", "user"}},
		})
		require.NoError(t, err)
		require.Len(t, tbl.Entries, 6)

		res, err := svc.Roll(ctx, tbl.ID, alice.Caller())
		require.NoError(t, err)
		assert.Equal(t, res.RollNumber, res.Entry.RollNumber)

		_, err = svc.Regenerate(ctx, tbl.ID, alice.Caller())
		require.NoError(t, err)

		sh, err := svc.SetPublic(ctx, tbl.ID, alice.Caller(), true)
		require.NoError(t, err)
		cp, err := svc.Copy(ctx, *sh.PublicSlug, bob.Caller())
		require.NoError(t, err)
		assert.Len(t, cp.Entries, 6)

		e, err := svc.ReplaceEntry(ctx, cp.ID, bob.Caller(), 2, encounter.ReplaceInput{Mode: encounter.ReplaceRandom})
		require.NoError(t, err)
		assert.Equal(t, 2, e.RollNumber)

		_, err = svc.SetPublic(ctx, tbl.ID, alice.Caller(), false)
		require.NoError(t, err)
		_, err = svc.Copy(ctx, *sh.PublicSlug, bob.Caller())
		assert.ErrorIs(t, err, encounter.ErrNotFound)
	})
}

func TestPoolMetricsAndHealth(t *testing.T) {
	pc := testutil.NewPostgresContainer(t)
	ctx := context.Background()

	require.NoError(t, pc.Pool.Health(ctx, 2*time.Second))

	registry := prometheus.NewRegistry()
	require.NoError(t, pc.Pool.RegisterMetrics(registry))
	assert.Error(t, pc.Pool.RegisterMetrics(registry))

	count, err := promtest.GatherAndCount(registry, "db_pool_max_conns", "db_pool_total_conns")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
