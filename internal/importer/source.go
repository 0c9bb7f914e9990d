package importer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cory-johannsen/encounters/internal/catalog"
)

// Source loads raw monster definitions from a format-specific location.
//
// Precondition: dir must exist and contain the expected layout for the format.
// Postcondition: returns the monsters in a stable order, unvalidated, or a
// non-nil error.
type Source interface {
	Load(dir string) ([]catalog.Monster, error)
}

// YAMLSource reads every *.yaml and *.yml file of a directory, each holding a
// top-level "monsters" list.
type YAMLSource struct{}

// NewYAMLSource returns a Source for monster YAML directories.
func NewYAMLSource() *YAMLSource {
	return &YAMLSource{}
}

// Load implements Source.
func (s *YAMLSource) Load(dir string) ([]catalog.Monster, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading monster dir %q: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ext := strings.ToLower(filepath.Ext(e.Name())); ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out []catalog.Monster
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}
		monsters, err := catalog.ParseMonsters(data)
		if err != nil {
			return nil, fmt.Errorf("loading %q: %w", path, err)
		}
		out = append(out, monsters...)
	}
	return out, nil
}
