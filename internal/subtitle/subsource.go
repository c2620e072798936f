package subtitle

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/alvarorichard/Gostream/internal/models"
	"github.com/alvarorichard/Gostream/internal/resolver"
	"github.com/alvarorichard/Gostream/internal/util"
)

// SubSource searches subsource.net. It needs no key: the title is looked
// up first, then its subtitle list, and downloads go through a token.
type SubSource struct {
	apiClient
}

// NewSubSource creates a client for the API at baseURL
func NewSubSource(baseURL string) *SubSource {
	return &SubSource{apiClient: newAPIClient("subsource", strings.TrimRight(baseURL, "/")+"/api")}
}

// Name returns the provider name
func (s *SubSource) Name() string {
	return s.name
}

type subsourceMovie struct {
	Title       string `json:"title"`
	LinkName    string `json:"linkName"`
	Type        string `json:"type"`
	ReleaseYear int    `json:"releaseYear"`
}

// Search finds the title, then lists its subtitles in the wanted languages
func (s *SubSource) Search(ctx context.Context, ref models.MediaRef, langs []string) ([]models.Subtitle, error) {
	movie, err := s.findMovie(ctx, ref)
	if err != nil || movie == nil {
		return nil, err
	}

	payload := map[string]any{"movieName": movie.LinkName, "langs": []string{}}
	if ref.IsEpisode() {
		payload["season"] = "season-" + strconv.Itoa(max(ref.Season, 1))
	}
	var out struct {
		Subs []struct {
			SubID       int    `json:"subId"`
			Lang        string `json:"lang"`
			ReleaseName string `json:"releaseName"`
			LinkName    string `json:"linkName"`
		} `json:"subs"`
	}
	if err := s.postJSON(ctx, s.baseURL+"/getMovie", payload, nil, &out); err != nil {
		return nil, err
	}

	wanted := map[string]bool{}
	for _, l := range langs {
		wanted[NormalizeLanguage(l)] = true
	}

	var subs []models.Subtitle
	for _, it := range out.Subs {
		lang := NormalizeLanguage(it.Lang)
		if len(wanted) > 0 && !wanted[lang] {
			continue
		}
		if ref.IsEpisode() && !util.MatchesEpisode(it.ReleaseName, ref.Season, ref.Episode) {
			continue
		}
		q := url.Values{}
		q.Set("movie", movie.LinkName)
		q.Set("lang", it.Lang)
		q.Set("id", strconv.Itoa(it.SubID))
		subs = append(subs, models.Subtitle{
			URL:      s.baseURL + "/getSub?" + q.Encode(),
			Lang:     lang,
			Label:    it.ReleaseName,
			Format:   "zip",
			Provider: s.name,
		})
	}
	return subs, nil
}

func (s *SubSource) findMovie(ctx context.Context, ref models.MediaRef) (*subsourceMovie, error) {
	titles := ref.SearchTitles()
	if len(titles) == 0 {
		return nil, nil
	}

	var out struct {
		Success bool             `json:"success"`
		Found   []subsourceMovie `json:"found"`
	}
	if err := s.postJSON(ctx, s.baseURL+"/searchMovie", map[string]string{"query": titles[0]}, nil, &out); err != nil {
		return nil, err
	}

	wanted := map[string]bool{}
	for _, t := range titles {
		wanted[util.NormalizeTitle(t)] = true
	}
	var fallback *subsourceMovie
	for i := range out.Found {
		m := &out.Found[i]
		if !wanted[util.NormalizeTitle(m.Title)] {
			continue
		}
		series := strings.Contains(strings.ToLower(m.Type), "tv")
		if ref.Kind != "" && series != ref.Kind.IsEpisodic() {
			continue
		}
		if ref.Year == 0 || m.ReleaseYear == ref.Year {
			return m, nil
		}
		if fallback == nil {
			fallback = m
		}
	}
	return fallback, nil
}

// ResolveLink trades the subtitle id for a download token
func (s *SubSource) ResolveLink(ctx context.Context, sub models.Subtitle) (string, error) {
	u, err := url.Parse(sub.URL)
	if err != nil {
		return "", resolver.NewError(s.name, resolver.KindLayout, err)
	}
	q := u.Query()
	id, err := strconv.Atoi(q.Get("id"))
	if err != nil {
		return "", resolver.Errorf(s.name, resolver.KindLayout, "no subtitle id in %q", sub.URL)
	}

	var out struct {
		Sub struct {
			DownloadToken string `json:"downloadToken"`
		} `json:"sub"`
	}
	payload := map[string]any{"movie": q.Get("movie"), "lang": q.Get("lang"), "id": id}
	if err := s.postJSON(ctx, s.baseURL+"/getSub", payload, nil, &out); err != nil {
		return "", err
	}
	if out.Sub.DownloadToken == "" {
		return "", resolver.Errorf(s.name, resolver.KindLayout, "no download token for %d", id)
	}
	return s.baseURL + "/downloadSub/" + url.PathEscape(out.Sub.DownloadToken), nil
}
