package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alvarorichard/Gostream/internal/models"
)

func TestBestMatch(t *testing.T) {
	cands := []candidate{
		{ID: "1", Title: "Dune", Year: 1984, Kind: models.KindMovie},
		{ID: "2", Title: "Dune", Year: 2021, Kind: models.KindMovie},
		{ID: "3", Title: "Dune: Prophecy", Year: 2024, Kind: models.KindTV},
	}

	tests := []struct {
		name   string
		ref    models.MediaRef
		wantID string
		wantOK bool
	}{
		{"year decides", models.MediaRef{Title: "Dune", Year: 2021, Kind: models.KindMovie}, "2", true},
		{"off by one year", models.MediaRef{Title: "Dune", Year: 1985}, "1", true},
		{"prefix with kind", models.MediaRef{Title: "Dune Prophecy", Year: 2024, Kind: models.KindTV}, "3", true},
		{"original title", models.MediaRef{Title: "Xứ Cát", OriginalTitle: "Dune", Year: 2021}, "2", true},
		{"no title match", models.MediaRef{Title: "Arrival", Year: 2016}, "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := bestMatch(tc.ref, cands)
			assert.Equal(t, tc.wantOK, ok)
			if tc.wantOK {
				assert.Equal(t, tc.wantID, got.ID)
			}
		})
	}
}

func TestBestMatchRejectsWeakPrefix(t *testing.T) {
	cands := []candidate{{ID: "x", Title: "The Boys Presents Diabolical", Year: 2022, Kind: models.KindTV}}
	_, ok := bestMatch(models.MediaRef{Title: "The Boys", Year: 2019, Kind: models.KindMovie}, cands)
	assert.False(t, ok)
}
