package subtitle

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/alvarorichard/Gostream/internal/models"
	"github.com/alvarorichard/Gostream/internal/resolver"
)

// OpenSubtitlesAPI is the REST v1 root
const OpenSubtitlesAPI = "https://api.opensubtitles.com/api/v1"

// OpenSubtitles searches opensubtitles.com. Search results only carry a
// file id; the download link is requested in ResolveLink.
type OpenSubtitles struct {
	apiClient
	apiKey string
}

// NewOpenSubtitles creates a client. userAgent is required by the API.
func NewOpenSubtitles(apiKey, userAgent string) *OpenSubtitles {
	c := &OpenSubtitles{apiClient: newAPIClient("opensubtitles", OpenSubtitlesAPI), apiKey: apiKey}
	c.headers["Api-Key"] = apiKey
	if userAgent != "" {
		c.headers["User-Agent"] = userAgent
	}
	return c
}

// WithBaseURL points the client at another API root
func (o *OpenSubtitles) WithBaseURL(base string) *OpenSubtitles {
	o.baseURL = strings.TrimRight(base, "/")
	return o
}

// Name returns the provider name
func (o *OpenSubtitles) Name() string {
	return o.name
}

// Search queries by TMDB or IMDB id when known, by title otherwise
func (o *OpenSubtitles) Search(ctx context.Context, ref models.MediaRef, langs []string) ([]models.Subtitle, error) {
	if o.apiKey == "" {
		return nil, resolver.Errorf(o.name, resolver.KindNotConfigured, "opensubtitles api key is not set")
	}

	q := url.Values{}
	switch {
	case ref.TMDBID > 0 && ref.IsEpisode():
		q.Set("parent_tmdb_id", strconv.Itoa(ref.TMDBID))
	case ref.TMDBID > 0:
		q.Set("tmdb_id", strconv.Itoa(ref.TMDBID))
	case ref.IMDBID != "" && ref.IsEpisode():
		q.Set("parent_imdb_id", strings.TrimPrefix(ref.IMDBID, "tt"))
	case ref.IMDBID != "":
		q.Set("imdb_id", strings.TrimPrefix(ref.IMDBID, "tt"))
	default:
		titles := ref.SearchTitles()
		if len(titles) == 0 {
			return nil, nil
		}
		q.Set("query", titles[0])
		if ref.Year > 0 {
			q.Set("year", strconv.Itoa(ref.Year))
		}
	}
	if ref.IsEpisode() {
		q.Set("season_number", strconv.Itoa(max(ref.Season, 1)))
		q.Set("episode_number", strconv.Itoa(ref.Episode))
	}
	if len(langs) > 0 {
		sorted := append([]string(nil), langs...)
		sort.Strings(sorted)
		q.Set("languages", strings.ToLower(strings.Join(sorted, ",")))
	}

	var out struct {
		Data []struct {
			ID         string `json:"id"`
			Attributes struct {
				Language         string `json:"language"`
				Release          string `json:"release"`
				ForeignPartsOnly bool   `json:"foreign_parts_only"`
				Files            []struct {
					FileID   int    `json:"file_id"`
					FileName string `json:"file_name"`
				} `json:"files"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := o.getJSON(ctx, o.baseURL+"/subtitles?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}

	var subs []models.Subtitle
	for _, d := range out.Data {
		a := d.Attributes
		if len(a.Files) == 0 {
			continue
		}
		f := a.Files[0]
		format := FormatFromURL(f.FileName)
		if format == "" {
			format = "srt"
		}
		subs = append(subs, models.Subtitle{
			URL:      fmt.Sprintf("%s/download?file_id=%d", o.baseURL, f.FileID),
			Lang:     NormalizeLanguage(a.Language),
			Label:    a.Release,
			Format:   format,
			Provider: o.name,
			Forced:   a.ForeignPartsOnly,
		})
	}
	return subs, nil
}

// ResolveLink exchanges the file id of sub for a temporary download link.
// Each call counts against the account's daily quota.
func (o *OpenSubtitles) ResolveLink(ctx context.Context, sub models.Subtitle) (string, error) {
	u, err := url.Parse(sub.URL)
	if err != nil {
		return "", resolver.NewError(o.name, resolver.KindLayout, err)
	}
	fileID, err := strconv.Atoi(u.Query().Get("file_id"))
	if err != nil {
		return "", resolver.Errorf(o.name, resolver.KindLayout, "no file id in %q", sub.URL)
	}

	var out struct {
		Link      string `json:"link"`
		FileName  string `json:"file_name"`
		Remaining int    `json:"remaining"`
		Message   string `json:"message"`
	}
	endpoint := u.Scheme + "://" + u.Host + u.Path
	if err := o.postJSON(ctx, endpoint, map[string]int{"file_id": fileID}, nil, &out); err != nil {
		return "", err
	}
	if out.Link == "" {
		return "", resolver.Errorf(o.name, resolver.KindRateLimited, "no download link: %s", out.Message)
	}
	return out.Link, nil
}
