package scraper

import (
	"github.com/alvarorichard/Gostream/internal/api"
	"github.com/alvarorichard/Gostream/internal/config"
	"github.com/alvarorichard/Gostream/internal/resolver"
	"github.com/alvarorichard/Gostream/internal/util"
)

// Registry holds the catalog sources and stream providers built from a
// configuration. Clients that serve both roles are shared.
type Registry struct {
	Sources   []CatalogSource
	Providers []resolver.StreamProvider

	febbox *FebBoxClient
}

// Build creates every configured source and provider, in configured order
func Build(cfg *config.Config) *Registry {
	ophim := NewOPhimClient(cfg.Catalog.OPhimURL)
	kkphim := NewKKPhimClient(cfg.Catalog.KKPhimURL)
	consumet := NewConsumetClient(cfg.Catalog.ConsumetURL)
	febbox := NewFebBoxClient(FebBoxURL, cfg.FebBox.Token, cfg.FebBox.Browser)

	r := &Registry{febbox: febbox}

	for _, name := range cfg.Catalog.Sources {
		switch name {
		case config.SourceOPhim:
			r.Sources = append(r.Sources, ophim)
		case config.SourceKKPhim:
			r.Sources = append(r.Sources, kkphim)
		case config.SourceAnime47:
			r.Sources = append(r.Sources, NewAnime47Client(cfg.Catalog.Anime47URL))
		case config.SourceConsumet:
			r.Sources = append(r.Sources, consumet)
		case config.SourceTMDB:
			tmdb := api.NewTMDBClient(cfg.TMDB.APIKey)
			if !tmdb.IsConfigured() {
				util.Debug("TMDB source skipped, no API key")
				continue
			}
			r.Sources = append(r.Sources, NewTMDBSource(tmdb))
		}
	}

	for _, name := range cfg.Providers.Order {
		switch name {
		case config.ProviderFshare:
			r.Providers = append(r.Providers, NewFshareClient(FshareCredentials{
				Email:     cfg.Fshare.Email,
				Password:  cfg.Fshare.Password,
				AppKey:    cfg.Fshare.AppKey,
				UserAgent: cfg.Fshare.UserAgent,
			}))
		case config.ProviderFebBox:
			r.Providers = append(r.Providers, febbox)
		case config.ProviderShowBox:
			r.Providers = append(r.Providers, NewShowBoxClient(cfg.ShowBox.APIURL, cfg.ShowBox.ShareURL, febbox))
		case config.ProviderOPhim:
			r.Providers = append(r.Providers, ophim)
		case config.ProviderKKPhim:
			r.Providers = append(r.Providers, kkphim)
		case config.ProviderConsumet:
			r.Providers = append(r.Providers, consumet)
		case config.ProviderVidSrc:
			r.Providers = append(r.Providers, NewVidSrcClient(cfg.Embed.VidSrcURL))
		case config.ProviderAutoembed:
			r.Providers = append(r.Providers, NewAutoembedClient(cfg.Embed.AutoembedURL))
		}
	}
	return r
}

// Close releases the FebBox browser, if one was started
func (r *Registry) Close() error {
	if r.febbox == nil {
		return nil
	}
	return r.febbox.Close()
}
