package scraper

import (
	"context"
	"fmt"
	"strconv"

	"github.com/alvarorichard/Gostream/internal/api"
	"github.com/alvarorichard/Gostream/internal/models"
	"github.com/alvarorichard/Gostream/internal/util"
)

// TMDBSource exposes TMDB as a catalog source. Its items carry TMDB and
// IMDB ids, which the id-based providers need.
type TMDBSource struct {
	client *api.TMDBClient
}

// NewTMDBSource wraps a TMDB client
func NewTMDBSource(client *api.TMDBClient) *TMDBSource {
	return &TMDBSource{client: client}
}

// Name returns the source name
func (s *TMDBSource) Name() string {
	return "tmdb"
}

// Search runs a multi search (movies and shows)
func (s *TMDBSource) Search(ctx context.Context, query string, page int) (*models.Page[models.Media], error) {
	res, err := s.client.SearchMulti(ctx, query, page)
	if err != nil {
		return nil, err
	}
	return toPage(res), nil
}

// Latest returns this week's trending titles
func (s *TMDBSource) Latest(ctx context.Context, page int) (*models.Page[models.Media], error) {
	res, err := s.client.Trending(ctx, "all", "week", page)
	if err != nil {
		return nil, err
	}
	return toPage(res), nil
}

// Detail loads details, external ids and, for shows, every season's
// episode list.
func (s *TMDBSource) Detail(ctx context.Context, id string) (*models.Media, error) {
	mediaType, tmdbID, err := api.ParseTMDBID(id)
	if err != nil {
		return nil, err
	}

	var details *models.TMDBDetails
	if mediaType == "tv" {
		details, err = s.client.TVDetails(ctx, tmdbID)
	} else {
		details, err = s.client.MovieDetails(ctx, tmdbID)
	}
	if err != nil {
		return nil, err
	}

	item := api.TMDBToMedia(models.TMDBMedia{
		ID:            details.ID,
		MediaType:     mediaType,
		Title:         details.Title,
		Name:          details.Name,
		OriginalTitle: details.OriginalTitle,
		OriginalName:  details.OriginalName,
		Overview:      details.Overview,
		PosterPath:    details.PosterPath,
		ReleaseDate:   details.ReleaseDate,
		FirstAirDate:  details.FirstAirDate,
		VoteAverage:   details.VoteAverage,
		OriginCountry: details.OriginCountry,
	})
	api.ApplyTMDBDetails(&item, details)

	if item.IMDBID == "" {
		if ids, err := s.client.ExternalIDs(ctx, mediaType, tmdbID); err == nil {
			item.IMDBID = ids.IMDBID
		} else {
			util.Debug("TMDB external ids failed", "id", id, "error", err)
		}
	}

	if mediaType == "tv" {
		for _, season := range details.Seasons {
			if season.SeasonNumber == 0 {
				continue
			}
			eps, err := s.client.SeasonEpisodes(ctx, tmdbID, season.SeasonNumber)
			if err != nil {
				return nil, fmt.Errorf("season %d: %w", season.SeasonNumber, err)
			}
			for _, ep := range eps {
				item.Episodes = append(item.Episodes, models.Episode{
					Key:    models.MakeKey("tmdb", id+"/s"+strconv.Itoa(ep.SeasonNumber)+"e"+strconv.Itoa(ep.EpisodeNumber)),
					Name:   ep.Name,
					Number: ep.EpisodeNumber,
					Season: ep.SeasonNumber,
				})
			}
		}
	}
	return &item, nil
}

func toPage(res *models.TMDBSearchResult) *models.Page[models.Media] {
	out := &models.Page[models.Media]{
		Page:       res.Page,
		TotalPages: res.TotalPages,
		HasNext:    res.Page < res.TotalPages,
	}
	for _, m := range res.Results {
		if m.MediaType != "movie" && m.MediaType != "tv" {
			continue
		}
		out.Items = append(out.Items, api.TMDBToMedia(m))
	}
	return out
}
