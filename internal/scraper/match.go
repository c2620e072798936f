package scraper

import (
	"strings"

	"github.com/alvarorichard/Gostream/internal/models"
	"github.com/alvarorichard/Gostream/internal/util"
)

// candidate is a search hit from a title-based provider
type candidate struct {
	ID    string
	Title string
	Year  int
	Kind  models.MediaKind
}

// bestMatch picks the candidate whose title matches the ref, preferring the
// same year and kind. ok is false when no title matches.
func bestMatch(ref models.MediaRef, cands []candidate) (candidate, bool) {
	wanted := map[string]bool{}
	for _, t := range ref.SearchTitles() {
		wanted[util.NormalizeTitle(t)] = true
	}

	best, bestScore := candidate{}, 0
	for _, c := range cands {
		title := util.NormalizeTitle(c.Title)
		score := 0
		switch {
		case wanted[title]:
			score = 10
		case prefixMatch(title, wanted):
			score = 6
		default:
			continue
		}

		switch {
		case ref.Year > 0 && c.Year == ref.Year:
			score += 5
		case ref.Year > 0 && c.Year > 0 && abs(c.Year-ref.Year) == 1:
			score += 2
		case ref.Year > 0 && c.Year > 0:
			score -= 4
		}
		if ref.Kind != "" && c.Kind != "" && ref.Kind.IsEpisodic() == c.Kind.IsEpisodic() {
			score += 3
		}

		if score > bestScore {
			best, bestScore = c, score
		}
	}
	return best, bestScore >= 6
}

func prefixMatch(title string, wanted map[string]bool) bool {
	for w := range wanted {
		if w != "" && (strings.HasPrefix(title, w+" ") || strings.HasPrefix(w, title+" ")) {
			return true
		}
	}
	return false
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
