package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/alvarorichard/Gostream/internal/models"
	"github.com/alvarorichard/Gostream/internal/resolver"
	"github.com/alvarorichard/Gostream/internal/subtitle"
	"github.com/alvarorichard/Gostream/internal/util"
)

// ConsumetClient talks to a Consumet instance's FlixHQ routes. It is both a
// catalog source and a stream provider.
type ConsumetClient struct {
	baseClient
}

type consumetItem struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Image       string `json:"image"`
	ReleaseDate string `json:"releaseDate"`
	Type        string `json:"type"`
}

type consumetSearch struct {
	HasNextPage bool           `json:"hasNextPage"`
	Results     []consumetItem `json:"results"`
}

type consumetEpisode struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Number int    `json:"number"`
	Season int    `json:"season"`
}

type consumetInfo struct {
	consumetItem
	Description string            `json:"description"`
	Genres      []string          `json:"genres"`
	Country     string            `json:"country"`
	Rating      float64           `json:"rating"`
	Episodes    []consumetEpisode `json:"episodes"`
}

type consumetWatch struct {
	Headers map[string]string `json:"headers"`
	Sources []struct {
		URL     string `json:"url"`
		Quality string `json:"quality"`
		IsM3U8  bool   `json:"isM3U8"`
	} `json:"sources"`
	Subtitles []struct {
		URL  string `json:"url"`
		Lang string `json:"lang"`
	} `json:"subtitles"`
}

// NewConsumetClient creates a client for the Consumet API at baseURL
func NewConsumetClient(baseURL string) *ConsumetClient {
	return &ConsumetClient{baseClient: newBaseClient("consumet", baseURL)}
}

// Name returns the source name
func (c *ConsumetClient) Name() string {
	return c.name
}

func (c *ConsumetClient) getJSON(ctx context.Context, endpoint string, out any) error {
	body, err := c.get(ctx, endpoint, map[string]string{"Accept": "application/json"})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return resolver.NewError(c.name, resolver.KindLayout, fmt.Errorf("failed to parse response: %w", err))
	}
	return nil
}

// Search queries FlixHQ through Consumet
func (c *ConsumetClient) Search(ctx context.Context, query string, page int) (*models.Page[models.Media], error) {
	endpoint := fmt.Sprintf("%s/movies/flixhq/%s?page=%d", c.baseURL, url.PathEscape(query), max(page, 1))

	var res consumetSearch
	if err := c.getJSON(ctx, endpoint, &res); err != nil {
		return nil, err
	}

	out := &models.Page[models.Media]{Page: max(page, 1), HasNext: res.HasNextPage}
	out.TotalPages = out.Page
	if res.HasNextPage {
		out.TotalPages++
	}
	for _, it := range res.Results {
		out.Items = append(out.Items, c.toMedia(it))
	}
	return out, nil
}

// Latest merges the recent movies and recent shows lists. Neither is paged.
func (c *ConsumetClient) Latest(ctx context.Context, page int) (*models.Page[models.Media], error) {
	if page > 1 {
		return &models.Page[models.Media]{Page: page, TotalPages: 1}, nil
	}

	out := &models.Page[models.Media]{Page: 1, TotalPages: 1}
	for _, path := range []string{"recent-movies", "recent-shows"} {
		var items []consumetItem
		if err := c.getJSON(ctx, c.baseURL+"/movies/flixhq/"+path, &items); err != nil {
			return nil, err
		}
		for _, it := range items {
			out.Items = append(out.Items, c.toMedia(it))
		}
	}
	return out, nil
}

// Detail fetches the info document with its episode list
func (c *ConsumetClient) Detail(ctx context.Context, id string) (*models.Media, error) {
	info, err := c.info(ctx, id)
	if err != nil {
		return nil, err
	}

	item := c.toMedia(info.consumetItem)
	item.Overview = strings.TrimSpace(info.Description)
	item.Genres = info.Genres
	item.Country = info.Country
	item.Rating = info.Rating
	for _, ep := range info.Episodes {
		number := ep.Number
		if number == 0 {
			number = 1
		}
		item.Episodes = append(item.Episodes, models.Episode{
			Key:    models.MakeKey(c.name, ep.ID),
			Name:   ep.Title,
			Number: number,
			Season: ep.Season,
			Links:  map[string]string{"episode_id": ep.ID},
		})
		item.Seasons = max(item.Seasons, ep.Season)
	}
	return &item, nil
}

func (c *ConsumetClient) info(ctx context.Context, id string) (*consumetInfo, error) {
	var info consumetInfo
	endpoint := fmt.Sprintf("%s/movies/flixhq/info?id=%s", c.baseURL, url.QueryEscape(id))
	if err := c.getJSON(ctx, endpoint, &info); err != nil {
		return nil, err
	}
	if info.ID == "" {
		return nil, resolver.Errorf(c.name, resolver.KindNotFound, "no info for %s", id)
	}
	return &info, nil
}

func (c *ConsumetClient) toMedia(it consumetItem) models.Media {
	kind := models.KindMovie
	if strings.Contains(strings.ToLower(it.Type), "tv") {
		kind = models.KindTV
	}
	year := 0
	if len(it.ReleaseDate) >= 4 {
		year, _ = strconv.Atoi(it.ReleaseDate[:4])
	}
	return models.Media{
		Key:    models.MakeKey(c.name, it.ID),
		Source: c.name,
		ID:     it.ID,
		Title:  strings.TrimSpace(it.Title),
		Year:   year,
		Kind:   kind,
		Poster: it.Image,
	}
}

// Supports accepts any ref with a title; FlixHQ is searched when no
// Consumet id is known.
func (c *ConsumetClient) Supports(ref models.MediaRef) bool {
	return ref.SourceID(c.name) != "" || len(ref.SearchTitles()) > 0
}

// Resolve finds the FlixHQ episode for ref and asks Consumet for its sources
func (c *ConsumetClient) Resolve(ctx context.Context, ref models.MediaRef) (*models.StreamSet, error) {
	mediaID := ref.SourceID(c.name)
	if mediaID == "" {
		id, err := c.findID(ctx, ref)
		if err != nil {
			return nil, err
		}
		mediaID = id
	}

	info, err := c.info(ctx, mediaID)
	if err != nil {
		return nil, err
	}
	episodeID, err := pickConsumetEpisode(info.Episodes, ref)
	if err != nil {
		return nil, resolver.NewError(c.name, resolver.KindNotFound, err)
	}

	var watch consumetWatch
	endpoint := fmt.Sprintf("%s/movies/flixhq/watch?episodeId=%s&mediaId=%s",
		c.baseURL, url.QueryEscape(episodeID), url.QueryEscape(mediaID))
	if err := c.getJSON(ctx, endpoint, &watch); err != nil {
		return nil, err
	}

	set := &models.StreamSet{Provider: c.name}
	for _, src := range watch.Sources {
		if src.URL == "" {
			continue
		}
		set.Sources = append(set.Sources, models.StreamSource{
			URL:      src.URL,
			Quality:  util.ParseQuality(src.Quality),
			Headers:  watch.Headers,
			IsM3U8:   src.IsM3U8 || strings.Contains(src.URL, ".m3u8"),
			Provider: c.name,
			Label:    src.Quality,
		})
	}
	for _, sub := range watch.Subtitles {
		if strings.EqualFold(sub.Lang, "thumbnails") {
			continue
		}
		set.Subtitles = append(set.Subtitles, models.Subtitle{
			URL:      sub.URL,
			Lang:     subtitle.NormalizeLanguage(sub.Lang),
			Label:    sub.Lang,
			Format:   subtitle.FormatFromURL(sub.URL),
			Provider: c.name,
		})
	}
	return set, nil
}

func (c *ConsumetClient) findID(ctx context.Context, ref models.MediaRef) (string, error) {
	var cands []candidate
	for _, title := range ref.SearchTitles() {
		page, err := c.Search(ctx, title, 1)
		if err != nil {
			return "", err
		}
		for _, it := range page.Items {
			cands = append(cands, candidate{ID: it.ID, Title: it.Title, Year: it.Year, Kind: it.Kind})
		}
		if best, ok := bestMatch(ref, cands); ok {
			return best.ID, nil
		}
	}
	return "", resolver.Errorf(c.name, resolver.KindNotFound, "%s not on FlixHQ", ref)
}

func pickConsumetEpisode(eps []consumetEpisode, ref models.MediaRef) (string, error) {
	if len(eps) == 0 {
		return "", fmt.Errorf("no episodes listed")
	}
	if !ref.IsEpisode() {
		return eps[0].ID, nil
	}
	for _, ep := range eps {
		if ep.Number == ref.Episode && (ref.Season == 0 || ep.Season == ref.Season) {
			return ep.ID, nil
		}
	}
	return "", fmt.Errorf("S%02dE%02d not listed", ref.Season, ref.Episode)
}
