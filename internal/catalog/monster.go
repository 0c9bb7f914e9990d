// Package catalog holds the monster catalog that encounter tables draw from:
// monster definitions, immutable snapshots, candidate filters and a YAML loader.
package catalog

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Monster sources.
const (
	SourceOfficial = "official"
	SourceUser     = "user"
)

// ErrMonsterNotFound is returned when a monster ID is not in the catalog.
var ErrMonsterNotFound = errors.New("monster not found")

// Attack is a single attack line of a stat block.
type Attack struct {
	Name        string `yaml:"name" json:"name"`
	Bonus       int    `yaml:"bonus" json:"bonus"`
	Damage      string `yaml:"damage" json:"damage"`
	DamageType  string `yaml:"damage_type" json:"damage_type"`
	Range       string `yaml:"range" json:"range,omitempty"`
	Description string `yaml:"description" json:"description,omitempty"`
}

// Ability is a special ability of a stat block.
type Ability struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Usage       string `yaml:"usage" json:"usage,omitempty"`
}

// Monster is a catalog entry that can be placed on an encounter table.
type Monster struct {
	ID             string    `yaml:"id" json:"id"`
	Name           string    `yaml:"name" json:"name"`
	Source         string    `yaml:"source" json:"source"`
	OwnerID        string    `yaml:"owner_id" json:"owner_id,omitempty"`
	IsPublic       bool      `yaml:"is_public" json:"is_public"`
	ChallengeLevel int       `yaml:"challenge_level" json:"challenge_level"`
	ArmorClass     int       `yaml:"armor_class" json:"armor_class"`
	HitPoints      int       `yaml:"hit_points" json:"hit_points"`
	HitDice        string    `yaml:"hit_dice" json:"hit_dice"`
	Speed          string    `yaml:"speed" json:"speed"`
	MovementTypes  []string  `yaml:"movement_types" json:"movement_types"`
	Size           string    `yaml:"size" json:"size"`
	Type           string    `yaml:"type" json:"type"`
	Alignment      string    `yaml:"alignment" json:"alignment"`
	Description    string    `yaml:"description" json:"description"`
	Attacks        []Attack  `yaml:"attacks" json:"attacks"`
	Abilities      []Ability `yaml:"abilities" json:"abilities"`
}

// Validate checks that the monster satisfies basic invariants.
//
// Precondition: m must not be nil.
// Postcondition: Returns nil iff ID is a UUID, Name is non-empty, Source is
// known, user monsters have an owner, and ChallengeLevel is 1-20.
func (m *Monster) Validate() error {
	if _, err := uuid.Parse(m.ID); err != nil {
		return fmt.Errorf("monster %q: id must be a UUID: %w", m.ID, err)
	}
	if m.Name == "" {
		return fmt.Errorf("monster %q: name must not be empty", m.ID)
	}
	switch m.Source {
	case SourceOfficial:
	case SourceUser:
		if m.OwnerID == "" {
			return fmt.Errorf("monster %q: user monsters must have an owner_id", m.ID)
		}
	default:
		return fmt.Errorf("monster %q: source must be %q or %q, got %q", m.ID, SourceOfficial, SourceUser, m.Source)
	}
	if m.ChallengeLevel < MinLevel || m.ChallengeLevel > MaxLevel {
		return fmt.Errorf("monster %q: challenge_level must be %d-%d", m.ID, MinLevel, MaxLevel)
	}
	if m.ArmorClass < 0 || m.HitPoints < 0 {
		return fmt.Errorf("monster %q: armor_class and hit_points must not be negative", m.ID)
	}
	return nil
}

// Snapshot is the frozen copy of a monster stored on an encounter table entry.
// It is what tables display; later edits to the catalog never reach it.
type Snapshot struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Source         string    `json:"source"`
	ChallengeLevel int       `json:"challenge_level"`
	ArmorClass     int       `json:"armor_class"`
	HitPoints      int       `json:"hit_points"`
	HitDice        string    `json:"hit_dice"`
	Speed          string    `json:"speed"`
	MovementTypes  []string  `json:"movement_types"`
	Size           string    `json:"size"`
	Type           string    `json:"type"`
	Alignment      string    `json:"alignment"`
	Description    string    `json:"description"`
	Attacks        []Attack  `json:"attacks"`
	Abilities      []Ability `json:"abilities"`
}

// Snapshot freezes m into a Snapshot.
//
// Postcondition: The result shares no slice storage with m.
func (m Monster) Snapshot() Snapshot {
	return Snapshot{
		ID:             m.ID,
		Name:           m.Name,
		Source:         m.Source,
		ChallengeLevel: m.ChallengeLevel,
		ArmorClass:     m.ArmorClass,
		HitPoints:      m.HitPoints,
		HitDice:        m.HitDice,
		Speed:          m.Speed,
		MovementTypes:  cloneSlice(m.MovementTypes),
		Size:           m.Size,
		Type:           m.Type,
		Alignment:      m.Alignment,
		Description:    m.Description,
		Attacks:        cloneSlice(m.Attacks),
		Abilities:      cloneSlice(m.Abilities),
	}
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	s.MovementTypes = cloneSlice(s.MovementTypes)
	s.Attacks = cloneSlice(s.Attacks)
	s.Abilities = cloneSlice(s.Abilities)
	return s
}

// Clone returns a deep copy of m.
func (m Monster) Clone() Monster {
	m.MovementTypes = cloneSlice(m.MovementTypes)
	m.Attacks = cloneSlice(m.Attacks)
	m.Abilities = cloneSlice(m.Abilities)
	return m
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}
