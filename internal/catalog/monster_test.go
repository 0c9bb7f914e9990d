package catalog_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/encounters/internal/catalog"
)

const goblinYAML = `
monsters:
  - id: 6f1c2d0e-8a43-4a53-9a8e-0c1d2e3f4a5b
    name: Goblin
    source: official
    challenge_level: 1
    armor_class: 11
    hit_points: 5
    hit_dice: 1d8
    speed: near
    size: Small
    type: Humanoid
    alignment: Chaotic
    description: A small cruel raider.
    attacks:
      - name: Club
        bonus: 1
        damage: 1d4
        damage_type: bludgeoning
  - id: 0a9b8c7d-6e5f-4a3b-8c2d-1e0f9a8b7c6d
    name: Giant Bat
    source: official
    challenge_level: 2
    armor_class: 12
    hit_points: 9
    movement_types: [fly]
    alignment: Neutral
`

func TestParseMonsters(t *testing.T) {
	monsters, err := catalog.ParseMonsters([]byte(goblinYAML))
	require.NoError(t, err)
	require.Len(t, monsters, 2)
	assert.Equal(t, "Goblin", monsters[0].Name)
	assert.Equal(t, "Club", monsters[0].Attacks[0].Name)
	assert.Equal(t, []string{"fly"}, monsters[1].MovementTypes)
	for _, m := range monsters {
		assert.NoError(t, m.Validate())
	}
}

func TestParseMonsters_Malformed(t *testing.T) {
	_, err := catalog.ParseMonsters([]byte("monsters: ["))
	assert.ErrorContains(t, err, "parsing monster YAML")
}

func TestParseMonsters_InvalidEntriesDecodeButFailValidation(t *testing.T) {
	cases := map[string]string{
		"non-uuid id": `
monsters:
  - id: goblin
    name: Goblin
    source: official
    challenge_level: 1
`,
		"missing name": `
monsters:
  - id: 6f1c2d0e-8a43-4a53-9a8e-0c1d2e3f4a5b
    source: official
    challenge_level: 1
`,
		"user without owner": `
monsters:
  - id: 6f1c2d0e-8a43-4a53-9a8e-0c1d2e3f4a5b
    name: Goblin
    source: user
    challenge_level: 1
`,
		"level out of range": `
monsters:
  - id: 6f1c2d0e-8a43-4a53-9a8e-0c1d2e3f4a5b
    name: Goblin
    source: official
    challenge_level: 21
`,
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			monsters, err := catalog.ParseMonsters([]byte(data))
			require.NoError(t, err)
			require.Len(t, monsters, 1)
			assert.Error(t, monsters[0].Validate())
		})
	}
}

func TestSnapshot_DeepCopy(t *testing.T) {
	m := catalog.Monster{
		ID:            "6f1c2d0e-8a43-4a53-9a8e-0c1d2e3f4a5b",
		Name:          "Wyvern",
		MovementTypes: []string{"fly"},
		Attacks:       []catalog.Attack{{Name: "Sting", Damage: "2d6"}},
	}
	snap := m.Snapshot()

	m.Name = "Renamed"
	m.MovementTypes[0] = "swim"
	m.Attacks[0].Damage = "9d9"

	assert.Equal(t, "Wyvern", snap.Name)
	assert.Equal(t, []string{"fly"}, snap.MovementTypes)
	assert.Equal(t, "2d6", snap.Attacks[0].Damage)

	clone := snap.Clone()
	clone.MovementTypes[0] = "burrow"
	assert.Equal(t, "fly", snap.MovementTypes[0])
}
