package subtitle

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/alvarorichard/Gostream/internal/models"
	"github.com/alvarorichard/Gostream/internal/resolver"
)

// SubDL endpoints
const (
	SubDLAPI      = "https://api.subdl.com/api/v1/subtitles"
	SubDLDownload = "https://dl.subdl.com"
)

// SubDL searches subdl.com. Every result is a zip archive.
type SubDL struct {
	apiClient
	apiKey      string
	downloadURL string
}

// NewSubDL creates a SubDL client
func NewSubDL(apiKey string) *SubDL {
	return &SubDL{apiClient: newAPIClient("subdl", SubDLAPI), apiKey: apiKey, downloadURL: SubDLDownload}
}

// WithBaseURLs points the client at other hosts
func (s *SubDL) WithBaseURLs(api, download string) *SubDL {
	s.baseURL, s.downloadURL = api, strings.TrimRight(download, "/")
	return s
}

// Name returns the provider name
func (s *SubDL) Name() string {
	return s.name
}

// Search queries by TMDB or IMDB id when known, by title otherwise
func (s *SubDL) Search(ctx context.Context, ref models.MediaRef, langs []string) ([]models.Subtitle, error) {
	if s.apiKey == "" {
		return nil, resolver.Errorf(s.name, resolver.KindNotConfigured, "subdl api key is not set")
	}

	q := url.Values{}
	q.Set("api_key", s.apiKey)
	q.Set("subs_per_page", "30")
	switch {
	case ref.TMDBID > 0:
		q.Set("tmdb_id", strconv.Itoa(ref.TMDBID))
	case ref.IMDBID != "":
		q.Set("imdb_id", ref.IMDBID)
	default:
		titles := ref.SearchTitles()
		if len(titles) == 0 {
			return nil, nil
		}
		q.Set("film_name", titles[0])
		if ref.Year > 0 {
			q.Set("year", strconv.Itoa(ref.Year))
		}
	}
	if ref.Kind.IsEpisodic() || ref.IsEpisode() {
		q.Set("type", "tv")
		if ref.IsEpisode() {
			q.Set("season_number", strconv.Itoa(max(ref.Season, 1)))
			q.Set("episode_number", strconv.Itoa(ref.Episode))
		}
	} else {
		q.Set("type", "movie")
	}
	if len(langs) > 0 {
		upper := make([]string, len(langs))
		for i, l := range langs {
			upper[i] = strings.ToUpper(l)
		}
		q.Set("languages", strings.Join(upper, ","))
	}

	var out struct {
		Status    bool   `json:"status"`
		Error     string `json:"error"`
		Subtitles []struct {
			ReleaseName string `json:"release_name"`
			Name        string `json:"name"`
			Lang        string `json:"lang"`
			Language    string `json:"language"`
			URL         string `json:"url"`
			Season      int    `json:"season"`
			Episode     int    `json:"episode"`
		} `json:"subtitles"`
	}
	if err := s.getJSON(ctx, s.baseURL+"?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	if !out.Status {
		if strings.Contains(strings.ToLower(out.Error), "not found") || strings.Contains(strings.ToLower(out.Error), "can't find") {
			return nil, nil
		}
		return nil, resolver.Errorf(s.name, resolver.KindLayout, "search failed: %s", out.Error)
	}

	var subs []models.Subtitle
	for _, it := range out.Subtitles {
		if it.URL == "" {
			continue
		}
		if ref.IsEpisode() && it.Episode > 0 && it.Episode != ref.Episode {
			continue
		}
		lang := it.Language
		if lang == "" {
			lang = it.Lang
		}
		label := it.ReleaseName
		if label == "" {
			label = it.Name
		}
		subs = append(subs, models.Subtitle{
			URL:      s.downloadURL + "/" + strings.TrimLeft(it.URL, "/"),
			Lang:     NormalizeLanguage(lang),
			Label:    label,
			Format:   "zip",
			Provider: s.name,
		})
	}
	return subs, nil
}
