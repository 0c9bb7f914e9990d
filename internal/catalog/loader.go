package catalog

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

type monsterFile struct {
	Monsters []Monster `yaml:"monsters"`
}

// ParseMonsters decodes a YAML document holding a top-level "monsters" list
// without validating the entries.
func ParseMonsters(data []byte) ([]Monster, error) {
	var f monsterFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing monster YAML: %w", err)
	}
	return f.Monsters, nil
}
