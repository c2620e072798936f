// Package api provides TMDB and AniSkip metadata clients
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/alvarorichard/Gostream/internal/models"
	"github.com/alvarorichard/Gostream/internal/util"
)

// TMDBBaseURL is the TMDB v3 API root
const TMDBBaseURL = "https://api.themoviedb.org/3"

// ErrTMDBNotConfigured is returned by every call when no API key is set
var ErrTMDBNotConfigured = errors.New("tmdb: api key not configured")

// TMDBClient handles interactions with TMDB API
type TMDBClient struct {
	client   *http.Client
	apiKey   string
	baseURL  string
	language string
}

// NewTMDBClient creates a new TMDB client.
// Get your free API key at https://www.themoviedb.org/settings/api
func NewTMDBClient(apiKey string) *TMDBClient {
	if apiKey == "" {
		util.Debug("TMDB api key not set, TMDB lookups will be disabled")
	}
	return &TMDBClient{
		client:   util.GetFastClient(),
		apiKey:   apiKey,
		baseURL:  TMDBBaseURL,
		language: "en-US",
	}
}

// WithBaseURL points the client at another API root (tests, mirrors)
func (c *TMDBClient) WithBaseURL(base string) *TMDBClient {
	c.baseURL = strings.TrimRight(base, "/")
	return c
}

// WithHTTPClient replaces the underlying HTTP client
func (c *TMDBClient) WithHTTPClient(hc *http.Client) *TMDBClient {
	c.client = hc
	return c
}

// IsConfigured returns true if the TMDB API key is configured
func (c *TMDBClient) IsConfigured() bool {
	return c.apiKey != ""
}

// SearchMulti searches for both movies and TV shows
func (c *TMDBClient) SearchMulti(ctx context.Context, query string, page int) (*models.TMDBSearchResult, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("include_adult", "false")
	params.Set("page", strconv.Itoa(max(page, 1)))

	var result models.TMDBSearchResult
	if err := c.get(ctx, "/search/multi", params, &result); err != nil {
		return nil, fmt.Errorf("TMDB search failed: %w", err)
	}

	// people are mixed into multi results
	filtered := result.Results[:0]
	for _, item := range result.Results {
		if item.MediaType == "movie" || item.MediaType == "tv" {
			filtered = append(filtered, item)
		}
	}
	result.Results = filtered
	return &result, nil
}

// Trending gets trending movies and TV shows. mediaType is all, movie or
// tv; timeWindow is day or week.
func (c *TMDBClient) Trending(ctx context.Context, mediaType, timeWindow string, page int) (*models.TMDBSearchResult, error) {
	if mediaType == "" {
		mediaType = "all"
	}
	if timeWindow == "" {
		timeWindow = "week"
	}
	params := url.Values{}
	params.Set("page", strconv.Itoa(max(page, 1)))

	var result models.TMDBSearchResult
	if err := c.get(ctx, "/trending/"+mediaType+"/"+timeWindow, params, &result); err != nil {
		return nil, fmt.Errorf("failed to get trending: %w", err)
	}
	if mediaType != "all" {
		for i := range result.Results {
			result.Results[i].MediaType = mediaType
		}
	}
	return &result, nil
}

// MovieDetails gets detailed information about a movie
func (c *TMDBClient) MovieDetails(ctx context.Context, id int) (*models.TMDBDetails, error) {
	var details models.TMDBDetails
	if err := c.get(ctx, fmt.Sprintf("/movie/%d", id), nil, &details); err != nil {
		return nil, fmt.Errorf("failed to get movie details: %w", err)
	}
	return &details, nil
}

// TVDetails gets detailed information about a TV show, seasons included
func (c *TMDBClient) TVDetails(ctx context.Context, id int) (*models.TMDBDetails, error) {
	var details models.TMDBDetails
	if err := c.get(ctx, fmt.Sprintf("/tv/%d", id), nil, &details); err != nil {
		return nil, fmt.Errorf("failed to get TV details: %w", err)
	}
	return &details, nil
}

// ExternalIDs returns the IMDB/TVDB identifiers of a movie or show
func (c *TMDBClient) ExternalIDs(ctx context.Context, mediaType string, id int) (*models.TMDBExternalIDs, error) {
	var ids models.TMDBExternalIDs
	if err := c.get(ctx, fmt.Sprintf("/%s/%d/external_ids", mediaType, id), nil, &ids); err != nil {
		return nil, fmt.Errorf("failed to get external ids: %w", err)
	}
	return &ids, nil
}

// SeasonEpisodes gets episodes for a specific season
func (c *TMDBClient) SeasonEpisodes(ctx context.Context, tvID, season int) ([]models.TMDBEpisode, error) {
	var result struct {
		Episodes []models.TMDBEpisode `json:"episodes"`
	}
	if err := c.get(ctx, fmt.Sprintf("/tv/%d/season/%d", tvID, season), nil, &result); err != nil {
		return nil, fmt.Errorf("failed to get season episodes: %w", err)
	}
	return result.Episodes, nil
}

// FindByIMDBID finds a movie or TV show by IMDB ID
func (c *TMDBClient) FindByIMDBID(ctx context.Context, imdbID string) (*models.TMDBMedia, error) {
	params := url.Values{}
	params.Set("external_source", "imdb_id")

	var result struct {
		MovieResults []models.TMDBMedia `json:"movie_results"`
		TVResults    []models.TMDBMedia `json:"tv_results"`
	}
	if err := c.get(ctx, "/find/"+url.PathEscape(imdbID), params, &result); err != nil {
		return nil, fmt.Errorf("failed to find by IMDB ID: %w", err)
	}

	if len(result.MovieResults) > 0 {
		result.MovieResults[0].MediaType = "movie"
		return &result.MovieResults[0], nil
	}
	if len(result.TVResults) > 0 {
		result.TVResults[0].MediaType = "tv"
		return &result.TVResults[0], nil
	}
	return nil, fmt.Errorf("no results found for IMDB ID: %s", imdbID)
}

// get performs an authenticated GET and decodes the JSON body into out
func (c *TMDBClient) get(ctx context.Context, path string, params url.Values, out any) error {
	if !c.IsConfigured() {
		return ErrTMDBNotConfigured
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", c.apiKey)
	if params.Get("language") == "" {
		params.Set("language", c.language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("TMDB API returned status: %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse TMDB response: %w", err)
	}
	return nil
}

// TMDBToMedia converts a search hit into a catalog item
func TMDBToMedia(m models.TMDBMedia) models.Media {
	kind := models.KindMovie
	if m.MediaType == "tv" {
		kind = models.KindTV
	}
	id := strconv.Itoa(m.ID)
	item := models.Media{
		Key:           models.MakeKey("tmdb", m.MediaType+"-"+id),
		Source:        "tmdb",
		ID:            m.MediaType + "-" + id,
		Title:         m.GetDisplayTitle(),
		OriginalTitle: m.GetOriginalTitle(),
		Year:          m.GetReleaseYear(),
		Kind:          kind,
		Poster:        m.GetPosterURL("w342"),
		Overview:      m.Overview,
		TMDBID:        m.ID,
		Rating:        m.VoteAverage,
	}
	if len(m.OriginCountry) > 0 {
		item.Country = m.OriginCountry[0]
	}
	if item.OriginalTitle == item.Title {
		item.OriginalTitle = ""
	}
	return item
}

// ApplyTMDBDetails copies detail fields (genres, IMDB id, seasons) onto item
func ApplyTMDBDetails(item *models.Media, d *models.TMDBDetails) {
	if d == nil {
		return
	}
	if d.IMDBID != "" {
		item.IMDBID = d.IMDBID
	}
	if item.Overview == "" {
		item.Overview = d.Overview
	}
	if item.Rating == 0 {
		item.Rating = d.VoteAverage
	}
	if item.Country == "" && len(d.OriginCountry) > 0 {
		item.Country = d.OriginCountry[0]
	}
	item.Genres = item.Genres[:0]
	for _, g := range d.Genres {
		item.Genres = append(item.Genres, g.Name)
	}
	for _, s := range d.Seasons {
		if s.SeasonNumber > 0 {
			item.Seasons++
		}
	}
}

// ParseTMDBID splits ids like "tv-1399" into media type and numeric id
func ParseTMDBID(id string) (mediaType string, tmdbID int, err error) {
	mediaType, num, ok := strings.Cut(id, "-")
	if !ok || (mediaType != "movie" && mediaType != "tv") {
		return "", 0, fmt.Errorf("invalid tmdb id %q", id)
	}
	tmdbID, err = strconv.Atoi(num)
	if err != nil {
		return "", 0, fmt.Errorf("invalid tmdb id %q: %w", id, err)
	}
	return mediaType, tmdbID, nil
}
