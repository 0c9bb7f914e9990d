package encounter

import (
	"github.com/cory-johannsen/encounters/internal/dice"
)

var (
	nameAdjectives = []string{
		"Cursed", "Forgotten", "Burning", "Frozen", "Bleeding", "Twisted", "Haunted",
		"Shattered", "Whispering", "Dread", "Endless", "Rotting", "Vengeful", "Sunken",
		"Screaming", "Blighted", "Wretched", "Nameless", "Hungry", "Creeping",
	}
	nameNouns = []string{
		"Crypts", "Vale", "Depths", "Halls", "Tombs", "Wastes", "Ruins", "Shadows",
		"Cairns", "Barrows", "Spire", "Chambers", "Labyrinth", "Chasm", "Maw",
		"Ossuary", "Catacombs", "Sanctum", "Threshold", "Abyss",
	}
	namePrefixes = []string{
		"Beyond the", "Beneath the", "Within the", "Through the", "Into the",
		"From the", "Above the", "Of the", "Across the", "Among the", "Below the",
		"Inside the", "Toward the", "At the", "Near the",
	}
	nameSuffixes = []string{
		"of Darkness", "of Blood", "of Bone", "of Sorrow", "of Death",
		"of Despair", "of Ruin", "of Silence", "of Flame", "of Shadow",
	}
)

// RandomName returns an evocative table name such as "The Cursed Crypts" or
// "Beneath the Halls of Bone".
//
// Postcondition: The result is 3-100 characters long.
func RandomName(src dice.Source) string {
	pick := func(words []string) string { return words[src.Intn(len(words))] }
	switch src.Intn(6) {
	case 0:
		return "The " + pick(nameAdjectives) + " " + pick(nameNouns)
	case 1:
		return pick(nameAdjectives) + " " + pick(nameNouns)
	case 2:
		return pick(nameNouns) + " " + pick(nameSuffixes)
	case 3:
		return "The " + pick(nameAdjectives) + " " + pick(nameNouns) + " " + pick(nameSuffixes)
	case 4:
		return pick(namePrefixes) + " " + pick(nameAdjectives) + " " + pick(nameNouns)
	default:
		return pick(namePrefixes) + " " + pick(nameNouns) + " " + pick(nameSuffixes)
	}
}
