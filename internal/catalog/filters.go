package catalog

import (
	"fmt"
	"slices"
	"strings"
)

// Filter sources.
const (
	FilterOfficial = "official"
	FilterUser     = "user"
	FilterPublic   = "public"
)

// Level bounds for monsters and filters.
const (
	MinLevel = 1
	MaxLevel = 20
)

// MaxSearchQueryLength bounds Filters.SearchQuery.
const MaxSearchQueryLength = 100

var (
	validSources       = []string{FilterOfficial, FilterUser, FilterPublic}
	validMovementTypes = []string{"fly", "swim", "burrow", "climb"}
	validAlignments    = []string{"lawful", "neutral", "chaotic"}
)

// Filters selects the candidate monsters for a table.
type Filters struct {
	Sources       []string `json:"sources"`
	LevelMin      int      `json:"level_min"`
	LevelMax      int      `json:"level_max"`
	MovementTypes []string `json:"movement_types,omitempty"`
	Alignments    []string `json:"alignments,omitempty"`
	SearchQuery   string   `json:"search_query,omitempty"`
}

// Normalize fills unset level bounds, trims the search query and lower-cases
// enumerated values.
//
// Postcondition: LevelMin/LevelMax are non-zero; enumerated values are lower case.
func (f Filters) Normalize() Filters {
	if f.LevelMin == 0 {
		f.LevelMin = MinLevel
	}
	if f.LevelMax == 0 {
		f.LevelMax = MaxLevel
	}
	f.Sources = lowerAll(f.Sources)
	f.MovementTypes = lowerAll(f.MovementTypes)
	f.Alignments = lowerAll(f.Alignments)
	f.SearchQuery = strings.TrimSpace(f.SearchQuery)
	return f
}

// Validate checks the filter invariants.
//
// Precondition: f should already be normalized.
// Postcondition: Returns nil iff at least one known source is selected, the
// level range is within 1-20 with min <= max, every movement type and
// alignment is known, and the search query is at most 100 characters.
func (f Filters) Validate() error {
	var errs []string
	if len(f.Sources) == 0 {
		errs = append(errs, "at least one source must be selected")
	}
	for _, s := range f.Sources {
		if !slices.Contains(validSources, s) {
			errs = append(errs, fmt.Sprintf("unknown source %q", s))
		}
	}
	if f.LevelMin < MinLevel || f.LevelMin > MaxLevel {
		errs = append(errs, fmt.Sprintf("level_min must be %d-%d, got %d", MinLevel, MaxLevel, f.LevelMin))
	}
	if f.LevelMax < MinLevel || f.LevelMax > MaxLevel {
		errs = append(errs, fmt.Sprintf("level_max must be %d-%d, got %d", MinLevel, MaxLevel, f.LevelMax))
	}
	if f.LevelMin > f.LevelMax {
		errs = append(errs, "level_min must not exceed level_max")
	}
	for _, mt := range f.MovementTypes {
		if !slices.Contains(validMovementTypes, mt) {
			errs = append(errs, fmt.Sprintf("unknown movement type %q", mt))
		}
	}
	for _, a := range f.Alignments {
		if !slices.Contains(validAlignments, a) {
			errs = append(errs, fmt.Sprintf("unknown alignment %q", a))
		}
	}
	if len([]rune(f.SearchQuery)) > MaxSearchQueryLength {
		errs = append(errs, fmt.Sprintf("search_query must be at most %d characters", MaxSearchQueryLength))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid filters: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Matches reports whether m is a candidate under f for a table owned by requesterID.
//
// Precondition: f must be normalized.
func (f Filters) Matches(m Monster, requesterID string) bool {
	if m.ChallengeLevel < f.LevelMin || m.ChallengeLevel > f.LevelMax {
		return false
	}
	if !f.matchesSource(m, requesterID) {
		return false
	}
	if len(f.MovementTypes) > 0 && !overlaps(f.MovementTypes, lowerAll(m.MovementTypes)) {
		return false
	}
	if len(f.Alignments) > 0 && !slices.Contains(f.Alignments, strings.ToLower(m.Alignment)) {
		return false
	}
	if f.SearchQuery != "" {
		q := strings.ToLower(f.SearchQuery)
		if !strings.Contains(strings.ToLower(m.Name), q) && !strings.Contains(strings.ToLower(m.Description), q) {
			return false
		}
	}
	return true
}

func (f Filters) matchesSource(m Monster, requesterID string) bool {
	for _, s := range f.Sources {
		switch s {
		case FilterOfficial:
			if m.Source == SourceOfficial {
				return true
			}
		case FilterUser:
			if m.Source == SourceUser && requesterID != "" && m.OwnerID == requesterID {
				return true
			}
		case FilterPublic:
			if m.Source == SourceUser && m.IsPublic {
				return true
			}
		}
	}
	return false
}

// Clone returns a deep copy of f.
func (f Filters) Clone() Filters {
	f.Sources = cloneSlice(f.Sources)
	f.MovementTypes = cloneSlice(f.MovementTypes)
	f.Alignments = cloneSlice(f.Alignments)
	return f
}

func lowerAll(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(strings.TrimSpace(s))
	}
	return out
}

func overlaps(a, b []string) bool {
	for _, x := range a {
		if slices.Contains(b, x) {
			return true
		}
	}
	return false
}
