package models

import "strconv"

// TMDBImageBase is the CDN prefix for poster paths
const TMDBImageBase = "https://image.tmdb.org/t/p/"

// TMDBSearchResult is a paged TMDB search or trending response
type TMDBSearchResult struct {
	Page         int         `json:"page"`
	TotalResults int         `json:"total_results"`
	TotalPages   int         `json:"total_pages"`
	Results      []TMDBMedia `json:"results"`
}

// TMDBMedia is a movie or TV show in search results
type TMDBMedia struct {
	ID            int      `json:"id"`
	MediaType     string   `json:"media_type"`
	Title         string   `json:"title"`
	Name          string   `json:"name"`
	OriginalTitle string   `json:"original_title"`
	OriginalName  string   `json:"original_name"`
	Overview      string   `json:"overview"`
	PosterPath    string   `json:"poster_path"`
	ReleaseDate   string   `json:"release_date"`
	FirstAirDate  string   `json:"first_air_date"`
	VoteAverage   float64  `json:"vote_average"`
	OriginCountry []string `json:"origin_country"`
}

// GetDisplayTitle returns the movie title or the show name
func (m *TMDBMedia) GetDisplayTitle() string {
	if m.Title != "" {
		return m.Title
	}
	return m.Name
}

// GetOriginalTitle returns the original-language title
func (m *TMDBMedia) GetOriginalTitle() string {
	if m.OriginalTitle != "" {
		return m.OriginalTitle
	}
	return m.OriginalName
}

// GetReleaseYear returns the release year, or 0 when unknown
func (m *TMDBMedia) GetReleaseYear() int {
	return yearOf(m.ReleaseDate, m.FirstAirDate)
}

// GetPosterURL returns the full poster URL
func (m *TMDBMedia) GetPosterURL(size string) string {
	return posterURL(m.PosterPath, size)
}

// TMDBDetails is the movie or TV detail document
type TMDBDetails struct {
	ID               int          `json:"id"`
	IMDBID           string       `json:"imdb_id"`
	Title            string       `json:"title"`
	Name             string       `json:"name"`
	OriginalTitle    string       `json:"original_title"`
	OriginalName     string       `json:"original_name"`
	Overview         string       `json:"overview"`
	PosterPath       string       `json:"poster_path"`
	ReleaseDate      string       `json:"release_date"`
	FirstAirDate     string       `json:"first_air_date"`
	VoteAverage      float64      `json:"vote_average"`
	Runtime          int          `json:"runtime"`
	Genres           []TMDBGenre  `json:"genres"`
	OriginCountry    []string     `json:"origin_country"`
	NumberOfSeasons  int          `json:"number_of_seasons"`
	NumberOfEpisodes int          `json:"number_of_episodes"`
	Seasons          []TMDBSeason `json:"seasons"`
}

// TMDBGenre represents a genre from TMDB
type TMDBGenre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// TMDBSeason represents a TV show season from TMDB
type TMDBSeason struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	SeasonNumber int    `json:"season_number"`
	EpisodeCount int    `json:"episode_count"`
	AirDate      string `json:"air_date"`
}

// TMDBEpisode represents a TV episode from TMDB
type TMDBEpisode struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	Overview      string `json:"overview"`
	EpisodeNumber int    `json:"episode_number"`
	SeasonNumber  int    `json:"season_number"`
	AirDate       string `json:"air_date"`
	Runtime       int    `json:"runtime"`
}

// TMDBExternalIDs links a TMDB item to other databases
type TMDBExternalIDs struct {
	IMDBID string `json:"imdb_id"`
	TVDBID int    `json:"tvdb_id"`
}

func yearOf(dates ...string) int {
	for _, d := range dates {
		if len(d) >= 4 {
			if y, err := strconv.Atoi(d[:4]); err == nil {
				return y
			}
		}
	}
	return 0
}

func posterURL(path, size string) string {
	if path == "" {
		return ""
	}
	if size == "" {
		size = "w500"
	}
	return TMDBImageBase + size + path
}
