package encounter

import (
	"context"

	"github.com/cory-johannsen/encounters/internal/catalog"
)

// Repository persists tables and entries.
//
// Lookups of missing rows return errors wrapping ErrNotFound.
type Repository interface {
	// CreateTable inserts t. An empty ID is assigned by the store; CreatedAt
	// and UpdatedAt are set on t.
	CreateTable(ctx context.Context, t *Table) error
	// GetTable returns the table without entries.
	GetTable(ctx context.Context, id string) (*Table, error)
	// GetTableBySlug returns the public table holding slug, without entries.
	GetTableBySlug(ctx context.Context, slug string) (*Table, error)
	// ListTables returns ownerID's tables newest first and the total count.
	ListTables(ctx context.Context, ownerID string, limit, offset int) ([]*Table, int, error)
	// UpdateTable writes Name, Description and Filters and bumps UpdatedAt.
	UpdateTable(ctx context.Context, t *Table) error
	// DeleteTable removes the table and its entries.
	DeleteTable(ctx context.Context, id string) error
	// SetSharing writes the visibility pair. A slug held by another table
	// yields ErrSlugTaken.
	SetSharing(ctx context.Context, id string, isPublic bool, slug *string) error
	// SlugExists reports whether any table currently holds slug.
	SlugExists(ctx context.Context, slug string) (bool, error)

	// ListEntries returns the table's entries ordered by roll number.
	ListEntries(ctx context.Context, tableID string) ([]Entry, error)
	// GetEntry returns the entry at rollNumber.
	GetEntry(ctx context.Context, tableID string, rollNumber int) (*Entry, error)
	// InsertEntries inserts entries for tableID, assigning IDs and timestamps.
	InsertEntries(ctx context.Context, tableID string, entries []Entry) error
	// DeleteEntries removes every entry of tableID.
	DeleteEntries(ctx context.Context, tableID string) error
	// ReplaceEntry overwrites the monster reference and snapshot of the entry
	// at e.TableID/e.RollNumber.
	ReplaceEntry(ctx context.Context, e *Entry) error
}

// Store is a Repository that can run a unit of work atomically.
type Store interface {
	Repository
	// InTx runs fn against a transactional view of the store. fn's writes are
	// committed iff it returns nil.
	InTx(ctx context.Context, fn func(Repository) error) error
}

// CandidatePool answers which catalog monsters may appear on a table.
type CandidatePool interface {
	// Find returns every monster matching filters for a table owned by ownerID.
	Find(ctx context.Context, ownerID string, filters catalog.Filters) ([]catalog.Monster, error)
	// Get returns one monster or an error wrapping catalog.ErrMonsterNotFound.
	Get(ctx context.Context, id string) (catalog.Monster, error)
}
