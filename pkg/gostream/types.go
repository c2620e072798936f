package gostream

import (
	"github.com/alvarorichard/Gostream/internal/downloader"
	"github.com/alvarorichard/Gostream/internal/models"
	"github.com/alvarorichard/Gostream/internal/resolver"
	"github.com/alvarorichard/Gostream/internal/scraper"
	"github.com/alvarorichard/Gostream/internal/subtitle"
)

// Public names for the types that cross the library boundary
type (
	Media         = models.Media
	MediaRef      = models.MediaRef
	MediaKind     = models.MediaKind
	Episode       = models.Episode
	MediaPage     = models.Page[models.Media]
	StreamSet     = models.StreamSet
	StreamSource  = models.StreamSource
	Subtitle      = models.Subtitle
	SkipTimes     = models.SkipTimes
	Skip          = models.Skip
	SearchOptions = scraper.SearchOptions

	// CatalogSource and StreamProvider let callers plug their own backends
	CatalogSource    = scraper.CatalogSource
	StreamProvider   = resolver.StreamProvider
	SubtitleProvider = subtitle.Provider

	ProviderError = resolver.ProviderError
	ResolveError  = resolver.ResolveError
	ResolveResult = resolver.Result

	DownloadRequest = downloader.Request
	DownloadResult  = downloader.Result
)

// Media kinds
const (
	KindMovie = models.KindMovie
	KindTV    = models.KindTV
	KindAnime = models.KindAnime
)
