// Package models contains the catalog, stream and subtitle types shared by
// every source and provider.
package models

import (
	"fmt"
	"strconv"
	"strings"
)

// MediaKind is the type of a catalog item
type MediaKind string

const (
	KindMovie MediaKind = "movie"
	KindTV    MediaKind = "tv"
	KindAnime MediaKind = "anime"
)

// ParseKind maps loose labels ("series", "TV Series", "hoathinh") to a kind
func ParseKind(s string) MediaKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "movie", "single", "phimle", "phim-le", "film":
		return KindMovie
	case "tv", "series", "tv series", "tvshow", "tv-show", "phimbo", "phim-bo", "tvshows":
		return KindTV
	case "anime", "hoathinh", "hoat-hinh", "animation":
		return KindAnime
	}
	return ""
}

// IsEpisodic reports whether items of this kind are split into episodes
func (k MediaKind) IsEpisodic() bool {
	return k == KindTV || k == KindAnime
}

// Media is a normalized catalog item
type Media struct {
	Key            string            `json:"key"`
	Source         string            `json:"source"`
	ID             string            `json:"id"`
	Slug           string            `json:"slug,omitempty"`
	Title          string            `json:"title"`
	OriginalTitle  string            `json:"original_title,omitempty"`
	Year           int               `json:"year,omitempty"`
	Kind           MediaKind         `json:"kind,omitempty"`
	Poster         string            `json:"poster,omitempty"`
	Overview       string            `json:"overview,omitempty"`
	Country        string            `json:"country,omitempty"`
	Quality        string            `json:"quality,omitempty"`
	Lang           string            `json:"lang,omitempty"`
	EpisodeCurrent string            `json:"episode_current,omitempty"`
	TMDBID         int               `json:"tmdb_id,omitempty"`
	IMDBID         string            `json:"imdb_id,omitempty"`
	MalID          int               `json:"mal_id,omitempty"`
	Rating         float64           `json:"rating,omitempty"`
	Genres         []string          `json:"genres,omitempty"`
	Seasons        int               `json:"seasons,omitempty"`
	Episodes       []Episode         `json:"episodes,omitempty"`
	Alternates     map[string]string `json:"alternates,omitempty"`
}

// MakeKey builds the stable "source:id" key of an item
func MakeKey(source, id string) string {
	return source + ":" + id
}

// SplitKey is the inverse of MakeKey
func SplitKey(key string) (source, id string, ok bool) {
	source, id, ok = strings.Cut(key, ":")
	if !ok || source == "" || id == "" {
		return "", "", false
	}
	return source, id, true
}

// DisplayTitle is the title shown in listings
func (m *Media) DisplayTitle() string {
	title := m.Title
	if m.OriginalTitle != "" && !strings.EqualFold(m.OriginalTitle, m.Title) {
		title = fmt.Sprintf("%s (%s)", m.Title, m.OriginalTitle)
	}
	if m.Year > 0 {
		title = fmt.Sprintf("%s [%d]", title, m.Year)
	}
	return title
}

// Ref converts the item into a provider-neutral MediaRef. Season and
// episode are left for the caller to set.
func (m *Media) Ref() MediaRef {
	ref := MediaRef{
		Title:         m.Title,
		OriginalTitle: m.OriginalTitle,
		Year:          m.Year,
		Kind:          m.Kind,
		TMDBID:        m.TMDBID,
		IMDBID:        m.IMDBID,
		MalID:         m.MalID,
		Country:       m.Country,
		SourceIDs:     map[string]string{},
	}
	if m.Source != "" {
		ref.SourceIDs[m.Source] = m.sourceID()
	}
	for src, id := range m.Alternates {
		ref.SourceIDs[src] = id
	}
	return ref
}

// Adopt copies from a search hit for the same item what a detail page
// does not carry: the ids other sources know it by and the external ids.
// Alternates are copied into a new map so the receiver never shares it.
func (m *Media) Adopt(hit Media) {
	if len(hit.Alternates) > 0 || (hit.Source != "" && hit.Source != m.Source) {
		alts := make(map[string]string, len(m.Alternates)+len(hit.Alternates)+1)
		for src, id := range m.Alternates {
			alts[src] = id
		}
		for src, id := range hit.Alternates {
			if _, ok := alts[src]; !ok && src != m.Source {
				alts[src] = id
			}
		}
		if hit.Source != "" && hit.Source != m.Source {
			if _, ok := alts[hit.Source]; !ok {
				alts[hit.Source] = hit.sourceID()
			}
		}
		m.Alternates = alts
	}
	if m.TMDBID == 0 {
		m.TMDBID = hit.TMDBID
	}
	if m.IMDBID == "" {
		m.IMDBID = hit.IMDBID
	}
	if m.MalID == 0 {
		m.MalID = hit.MalID
	}
	if m.OriginalTitle == "" && hit.OriginalTitle != m.Title {
		m.OriginalTitle = hit.OriginalTitle
	}
	if m.Year == 0 {
		m.Year = hit.Year
	}
	if m.Country == "" {
		m.Country = hit.Country
	}
}

func (m *Media) sourceID() string {
	if m.Slug != "" {
		return m.Slug
	}
	return m.ID
}

// FindEpisode returns the episode with the given season and number. Season
// 0 matches the first episode with that number.
func (m *Media) FindEpisode(season, number int) (*Episode, bool) {
	for i := range m.Episodes {
		ep := &m.Episodes[i]
		if ep.Number == number && (season == 0 || ep.Season == 0 || ep.Season == season) {
			return ep, true
		}
	}
	return nil, false
}

// Episode is one playable unit of an episodic item
type Episode struct {
	Key    string            `json:"key"`
	Name   string            `json:"name"`
	Number int               `json:"number"`
	Season int               `json:"season,omitempty"`
	Server string            `json:"server,omitempty"`
	Links  map[string]string `json:"links,omitempty"`
}

// ParseEpisodeNumber extracts the leading number from labels like "Tập 12",
// "12-End" or "Full"; "Full" and empty labels yield 1.
func ParseEpisodeNumber(label string) int {
	label = strings.TrimSpace(strings.ToLower(label))
	if label == "" || label == "full" {
		return 1
	}
	digits := strings.Builder{}
	for _, r := range label {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
			continue
		}
		if digits.Len() > 0 {
			break
		}
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0
	}
	return n
}

// MediaRef identifies what to resolve, independent of any provider
type MediaRef struct {
	Title         string            `json:"title"`
	OriginalTitle string            `json:"original_title,omitempty"`
	Year          int               `json:"year,omitempty"`
	Kind          MediaKind         `json:"kind,omitempty"`
	TMDBID        int               `json:"tmdb_id,omitempty"`
	IMDBID        string            `json:"imdb_id,omitempty"`
	MalID         int               `json:"mal_id,omitempty"`
	Season        int               `json:"season,omitempty"`
	Episode       int               `json:"episode,omitempty"`
	EpisodeName   string            `json:"episode_name,omitempty"`
	Country       string            `json:"country,omitempty"`
	SourceIDs     map[string]string `json:"source_ids,omitempty"`
}

// IsEpisode reports whether the ref targets a single episode
func (r MediaRef) IsEpisode() bool {
	return r.Episode > 0
}

// SourceID returns the identifier a provider published for this item
func (r MediaRef) SourceID(provider string) string {
	if r.SourceIDs == nil {
		return ""
	}
	return r.SourceIDs[provider]
}

// SearchTitles lists titles worth trying against title-based providers,
// most specific first and without duplicates.
func (r MediaRef) SearchTitles() []string {
	var titles []string
	seen := map[string]bool{}
	for _, t := range []string{r.OriginalTitle, r.Title} {
		t = strings.TrimSpace(t)
		if t == "" || seen[strings.ToLower(t)] {
			continue
		}
		seen[strings.ToLower(t)] = true
		titles = append(titles, t)
	}
	return titles
}

// String renders the ref for logs
func (r MediaRef) String() string {
	var b strings.Builder
	b.WriteString(r.Title)
	if r.Year > 0 {
		fmt.Fprintf(&b, " (%d)", r.Year)
	}
	if r.IsEpisode() {
		fmt.Fprintf(&b, " S%02dE%02d", r.Season, r.Episode)
	}
	return b.String()
}

// Page is one page of catalog results
type Page[T any] struct {
	Items      []T  `json:"items"`
	Page       int  `json:"page"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
}
