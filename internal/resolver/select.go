package resolver

import (
	"sort"
	"strings"

	"github.com/alvarorichard/Gostream/internal/models"
	"github.com/alvarorichard/Gostream/internal/util"
)

// SelectSource picks the source to play. An exact quality match wins;
// otherwise the best source not above the preference; otherwise the best
// overall. An empty preference selects the best overall.
func SelectSource(set *models.StreamSet, preferredQuality string) (models.StreamSource, bool) {
	if set.Empty() {
		return models.StreamSource{}, false
	}

	ranked := RankSources(set.Sources)
	if preferredQuality == "" || strings.EqualFold(preferredQuality, "best") {
		return ranked[0], true
	}

	want := util.ParseQuality(preferredQuality)
	for _, src := range ranked {
		if util.ParseQuality(src.Quality) == want {
			return src, true
		}
	}

	limit := util.QualityRank(want)
	for _, src := range ranked {
		rank := util.QualityRank(src.Quality)
		if rank > 0 && rank <= limit {
			return src, true
		}
	}
	return ranked[0], true
}

// RankSources returns a copy of sources sorted best first. Sources of equal
// quality keep provider order.
func RankSources(sources []models.StreamSource) []models.StreamSource {
	ranked := make([]models.StreamSource, len(sources))
	copy(ranked, sources)
	sort.SliceStable(ranked, func(i, j int) bool {
		return util.QualityRank(ranked[i].Quality) > util.QualityRank(ranked[j].Quality)
	})
	return ranked
}
