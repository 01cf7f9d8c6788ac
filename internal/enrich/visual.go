package enrich

import (
	"math/rand/v2"
	"strings"
)

// visualCategories are the vocabularies a scene description draws from, one
// phrase per category, in this order.
var visualCategories = []struct {
	name    string
	phrases []string
}{
	{"buildings", []string{
		"a parliament building with marble columns",
		"a city hall under a cloudy sky",
		"a crowded town square lined with old facades",
		"government offices with tall windows",
		"a presidential palace behind iron gates",
	}},
	{"symbols", []string{
		"waving national flags",
		"ballot boxes",
		"a large balance scale",
		"a chessboard with oversized pieces",
		"a tug of war rope",
	}},
	{"people", []string{
		"candidates at podiums",
		"a crowd of citizens holding signs",
		"reporters with microphones",
		"voters queuing at a polling station",
		"politicians shaking hands",
	}},
	{"political", []string{
		"campaign posters",
		"debate stage lights",
		"election banners",
		"opinion poll charts",
		"a vote counting board",
	}},
	{"effects", []string{
		"dramatic lighting",
		"long evening shadows",
		"caricature style exaggeration",
		"muted newspaper colors",
		"bold ink outlines",
	}},
}

// VisualDescription assembles a scene phrase with one random choice per
// visual category.
func VisualDescription(rng *rand.Rand) string {
	parts := make([]string, 0, len(visualCategories))
	for _, c := range visualCategories {
		parts = append(parts, c.phrases[rng.IntN(len(c.phrases))])
	}
	return strings.Join(parts, ", ")
}

// IsVisualDescription reports whether desc is one VisualDescription could produce.
func IsVisualDescription(desc string) bool {
	parts := strings.Split(desc, ", ")
	if len(parts) != len(visualCategories) {
		return false
	}
	for i, c := range visualCategories {
		found := false
		for _, p := range c.phrases {
			if p == parts[i] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
