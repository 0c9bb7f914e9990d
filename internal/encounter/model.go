// Package encounter implements random encounter tables: generation from a
// monster catalog, roll resolution, public sharing by slug and copying.
package encounter

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cory-johannsen/encounters/internal/catalog"
)

// Table field limits.
const (
	MinNameLength        = 3
	MaxNameLength        = 100
	MaxDescriptionLength = 500
)

// Pagination limits for List.
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Table is a die-indexed encounter table.
//
// Invariant: IsPublic == (PublicSlug != nil).
type Table struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"owner_id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	DieSize     int             `json:"die_size"`
	IsPublic    bool            `json:"is_public"`
	PublicSlug  *string         `json:"public_slug"`
	Filters     catalog.Filters `json:"filters"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Entries     []Entry         `json:"entries,omitempty"`
}

// Clone returns a deep copy of t, entries included.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	c := *t
	if t.PublicSlug != nil {
		s := *t.PublicSlug
		c.PublicSlug = &s
	}
	c.Filters = t.Filters.Clone()
	if t.Entries != nil {
		c.Entries = make([]Entry, len(t.Entries))
		for i, e := range t.Entries {
			c.Entries[i] = e.Clone()
		}
	}
	return &c
}

// Entry maps one roll number of a table to a frozen monster snapshot.
type Entry struct {
	ID         string           `json:"id"`
	TableID    string           `json:"table_id"`
	RollNumber int              `json:"roll_number"`
	MonsterID  string           `json:"monster_id,omitempty"`
	Snapshot   catalog.Snapshot `json:"monster_snapshot"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// Clone returns a deep copy of e.
func (e Entry) Clone() Entry {
	e.Snapshot = e.Snapshot.Clone()
	return e
}

// Caller identifies who is invoking an operation. The zero value is anonymous.
type Caller struct {
	ID    string
	Admin bool
}

// Anonymous reports whether the caller carries no identity.
func (c Caller) Anonymous() bool {
	return c.ID == ""
}

// owns reports whether c owns t.
func (c Caller) owns(t *Table) bool {
	return !c.Anonymous() && c.ID == t.OwnerID
}

// canView reports whether c may read or roll t.
func (c Caller) canView(t *Table) bool {
	return t.IsPublic || c.Admin || c.owns(t)
}

// RollResult is the outcome of a roll. RollNumber is populated even when the
// entry lookup fails.
type RollResult struct {
	TableID    string `json:"table_id"`
	RollNumber int    `json:"roll_number"`
	Entry      *Entry `json:"entry"`
}

// Sharing is the public visibility state of a table.
type Sharing struct {
	IsPublic   bool    `json:"is_public"`
	PublicSlug *string `json:"public_slug"`
}

// CreateInput describes a new table. GenerateNow defaults to true when nil.
type CreateInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	DieSize     int             `json:"die_size"`
	Filters     catalog.Filters `json:"filters"`
	GenerateNow *bool           `json:"generate_immediately"`
}

// UpdateInput carries a partial metadata edit; nil fields are left unchanged.
type UpdateInput struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Filters     *catalog.Filters `json:"filters"`
}

// ReplaceMode selects how ReplaceEntry picks the new monster.
type ReplaceMode string

const (
	ReplaceRandom ReplaceMode = "random"
	ReplaceSearch ReplaceMode = "search"
)

// ReplaceInput describes a single-entry replacement. MonsterID is required in search mode.
type ReplaceInput struct {
	Mode      ReplaceMode `json:"mode"`
	MonsterID string      `json:"monster_id"`
}

// Page requests one page of a listing.
type Page struct {
	Page  int
	Limit int
}

// Normalize fills defaults and validates the page request.
//
// Postcondition: Returns Page >= 1 and 1 <= Limit <= MaxPageLimit, or ErrInvalidArgument.
func (p Page) Normalize() (Page, error) {
	if p.Page == 0 {
		p.Page = 1
	}
	if p.Limit == 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Page < 1 {
		return Page{}, fmt.Errorf("%w: page must be >= 1, got %d", ErrInvalidArgument, p.Page)
	}
	if p.Limit < 1 || p.Limit > MaxPageLimit {
		return Page{}, fmt.Errorf("%w: limit must be 1-%d, got %d", ErrInvalidArgument, MaxPageLimit, p.Limit)
	}
	return p, nil
}

// Offset returns the number of rows to skip.
func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

// TablePage is one page of an owner's tables.
type TablePage struct {
	Tables []*Table `json:"data"`
	Page   int      `json:"page"`
	Limit  int      `json:"limit"`
	Total  int      `json:"total"`
}

func validateName(name string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	if n < MinNameLength || n > MaxNameLength {
		return fmt.Errorf("%w: name must be %d-%d characters", ErrInvalidArgument, MinNameLength, MaxNameLength)
	}
	return nil
}

func validateDescription(desc string) error {
	if utf8.RuneCountInString(desc) > MaxDescriptionLength {
		return fmt.Errorf("%w: description must be at most %d characters", ErrInvalidArgument, MaxDescriptionLength)
	}
	return nil
}
