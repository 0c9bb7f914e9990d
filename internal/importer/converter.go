package importer

import (
	"strings"

	"github.com/google/uuid"
)

// monsterNamespace scopes name-derived monster IDs.
var monsterNamespace = uuid.MustParse("6f1c2a0e-3b4d-5e8f-9a7b-2c1d0e9f8a7b")

// NameToID converts a display name to a stable snake_case identifier.
//
// Postcondition: result is lowercase, contains only [a-z0-9_], and is
// idempotent (NameToID(NameToID(s)) == NameToID(s)).
func NameToID(name string) string {
	s := strings.ToLower(name)
	s = strings.ReplaceAll(s, " ", "_")
	var b strings.Builder
	for _, r := range s {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// MonsterID derives a deterministic UUID for a monster that was written
// without one. Names differing only in case, spacing or punctuation map to
// the same ID, so re-importing a file updates rather than duplicates.
//
// Postcondition: MonsterID(a) == MonsterID(b) iff NameToID(a) == NameToID(b).
func MonsterID(name string) string {
	return uuid.NewSHA1(monsterNamespace, []byte(NameToID(name))).String()
}
