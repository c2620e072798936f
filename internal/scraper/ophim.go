package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"github.com/alvarorichard/Gostream/internal/models"
	"github.com/alvarorichard/Gostream/internal/resolver"
	"github.com/alvarorichard/Gostream/internal/util"
)

// Default image CDNs, used when a response does not carry its own
const (
	ophimImageCDN  = "https://img.ophim.live/uploads/movies/"
	kkphimImageCDN = "https://phimimg.com/"
)

// OPhimClient talks to the OPhim JSON API. KKPhim serves the same API
// family, so one client covers both; only the name and roots differ.
type OPhimClient struct {
	baseClient
	imageCDN string
}

// NewOPhimClient creates a client for ophim1.com compatible APIs
func NewOPhimClient(baseURL string) *OPhimClient {
	return &OPhimClient{baseClient: newBaseClient("ophim", baseURL), imageCDN: ophimImageCDN}
}

// NewKKPhimClient creates a client for phimapi.com
func NewKKPhimClient(baseURL string) *OPhimClient {
	return &OPhimClient{baseClient: newBaseClient("kkphim", baseURL), imageCDN: kkphimImageCDN}
}

// Name returns the source name
func (c *OPhimClient) Name() string {
	return c.name
}

// Search uses the v1 search endpoint, which nests items and pagination
// under data.
func (c *OPhimClient) Search(ctx context.Context, query string, page int) (*models.Page[models.Media], error) {
	endpoint := fmt.Sprintf("%s/v1/api/tim-kiem?keyword=%s&page=%d", c.baseURL, url.QueryEscape(query), max(page, 1))
	util.Debug("OPhim search", "source", c.name, "url", endpoint)

	body, err := c.get(ctx, endpoint, map[string]string{"Accept": "application/json"})
	if err != nil {
		return nil, err
	}

	root := gjson.ParseBytes(body)
	if st := root.Get("status"); st.Exists() && st.Type != gjson.True && st.String() != "success" {
		return nil, resolver.Errorf(c.name, resolver.KindLayout, "search failed: %s", root.Get("msg").String())
	}
	data := root.Get("data")
	cdn := c.cdnFrom(data.Get("APP_DOMAIN_CDN_IMAGE").String())

	return c.parsePage(data.Get("items"), data.Get("params.pagination"), cdn), nil
}

// Latest lists recently updated items. This endpoint keeps items and
// pagination at the top level.
func (c *OPhimClient) Latest(ctx context.Context, page int) (*models.Page[models.Media], error) {
	endpoint := fmt.Sprintf("%s/danh-sach/phim-moi-cap-nhat?page=%d", c.baseURL, max(page, 1))

	body, err := c.get(ctx, endpoint, map[string]string{"Accept": "application/json"})
	if err != nil {
		return nil, err
	}

	root := gjson.ParseBytes(body)
	items, pagination := root.Get("items"), root.Get("pagination")
	if !items.Exists() {
		// some mirrors wrap the list like search does
		items, pagination = root.Get("data.items"), root.Get("data.params.pagination")
	}
	if !items.Exists() {
		return nil, resolver.Errorf(c.name, resolver.KindLayout, "latest: no items in response")
	}
	cdn := c.cdnFrom(root.Get("pathImage").String())
	return c.parsePage(items, pagination, cdn), nil
}

// Detail fetches an item with its episode servers
func (c *OPhimClient) Detail(ctx context.Context, slug string) (*models.Media, error) {
	endpoint := fmt.Sprintf("%s/phim/%s", c.baseURL, url.PathEscape(slug))

	body, err := c.get(ctx, endpoint, map[string]string{"Accept": "application/json"})
	if err != nil {
		return nil, err
	}

	root := gjson.ParseBytes(body)
	movie := root.Get("movie")
	if !movie.Exists() {
		movie = root.Get("data.item")
	}
	if !movie.Exists() {
		if st := root.Get("status"); st.Exists() && (st.Type == gjson.False || st.String() == "error") {
			return nil, resolver.Errorf(c.name, resolver.KindNotFound, "%s not found", slug)
		}
		return nil, resolver.Errorf(c.name, resolver.KindLayout, "detail: no movie object")
	}

	item := c.parseItem(movie, c.imageCDN)
	item.Overview = stripTags(movie.Get("content").String())
	movie.Get("category").ForEach(func(_, g gjson.Result) bool {
		item.Genres = append(item.Genres, g.Get("name").String())
		return true
	})

	servers := root.Get("episodes")
	if !servers.Exists() {
		servers = movie.Get("episodes")
	}
	season := int(movie.Get("tmdb.season").Int())
	servers.ForEach(func(_, server gjson.Result) bool {
		serverName := strings.TrimSpace(server.Get("server_name").String())
		server.Get("server_data").ForEach(func(_, ep gjson.Result) bool {
			label := ep.Get("name").String()
			links := map[string]string{}
			if m3u8 := ep.Get("link_m3u8").String(); m3u8 != "" {
				links["m3u8"] = m3u8
			}
			if embed := ep.Get("link_embed").String(); embed != "" {
				links["embed"] = embed
			}
			if len(links) == 0 {
				return true
			}
			number := models.ParseEpisodeNumber(label)
			if !item.Kind.IsEpisodic() && number == 0 {
				number = 1
			}
			item.Episodes = append(item.Episodes, models.Episode{
				Key:    models.MakeKey(c.name, slug+"/"+ep.Get("slug").String()+"@"+serverName),
				Name:   label,
				Number: number,
				Season: season,
				Server: serverName,
				Links:  links,
			})
			return true
		})
		return true
	})

	return &item, nil
}

func (c *OPhimClient) parsePage(items, pagination gjson.Result, cdn string) *models.Page[models.Media] {
	page := &models.Page[models.Media]{
		Page:       int(pagination.Get("currentPage").Int()),
		TotalPages: int(pagination.Get("totalPages").Int()),
	}
	if page.TotalPages == 0 {
		total := pagination.Get("totalItems").Int()
		per := pagination.Get("totalItemsPerPage").Int()
		if per > 0 {
			page.TotalPages = int((total + per - 1) / per)
		}
	}
	page.HasNext = page.Page > 0 && page.Page < page.TotalPages

	items.ForEach(func(_, it gjson.Result) bool {
		if it.Get("slug").String() == "" {
			return true
		}
		page.Items = append(page.Items, c.parseItem(it, cdn))
		return true
	})
	return page
}

func (c *OPhimClient) parseItem(it gjson.Result, cdn string) models.Media {
	slug := it.Get("slug").String()
	item := models.Media{
		Key:            models.MakeKey(c.name, slug),
		Source:         c.name,
		ID:             slug,
		Slug:           slug,
		Title:          strings.TrimSpace(it.Get("name").String()),
		OriginalTitle:  strings.TrimSpace(it.Get("origin_name").String()),
		Year:           int(it.Get("year").Int()),
		Kind:           models.ParseKind(it.Get("type").String()),
		Quality:        it.Get("quality").String(),
		Lang:           it.Get("lang").String(),
		EpisodeCurrent: it.Get("episode_current").String(),
		IMDBID:         it.Get("imdb.id").String(),
	}
	if item.Kind == "" {
		item.Kind = models.KindMovie
	}
	if id, err := strconv.Atoi(it.Get("tmdb.id").String()); err == nil {
		item.TMDBID = id
	}
	if strings.EqualFold(item.OriginalTitle, item.Title) {
		item.OriginalTitle = ""
	}

	poster := it.Get("poster_url").String()
	if poster == "" {
		poster = it.Get("thumb_url").String()
	}
	item.Poster = c.imageURL(cdn, poster)

	var countries []string
	it.Get("country").ForEach(func(_, ct gjson.Result) bool {
		if name := ct.Get("slug").String(); name != "" {
			countries = append(countries, name)
		}
		return true
	})
	item.Country = strings.Join(countries, ",")
	return item
}

func (c *OPhimClient) cdnFrom(domain string) string {
	switch {
	case domain == "":
		return c.imageCDN
	case strings.Contains(domain, "/uploads/"):
		return strings.TrimRight(domain, "/") + "/"
	case c.name == "ophim":
		return strings.TrimRight(domain, "/") + "/uploads/movies/"
	}
	return strings.TrimRight(domain, "/") + "/"
}

func (c *OPhimClient) imageURL(cdn, path string) string {
	switch {
	case path == "":
		return ""
	case strings.HasPrefix(path, "http"):
		return path
	}
	if cdn == "" {
		cdn = c.imageCDN
	}
	return strings.TrimRight(cdn, "/") + "/" + strings.TrimLeft(path, "/")
}

// Supports reports whether the ref carries a slug for this site
func (c *OPhimClient) Supports(ref models.MediaRef) bool {
	return ref.SourceID(c.name) != ""
}

// Resolve emits the m3u8 link of the wanted episode on every server
func (c *OPhimClient) Resolve(ctx context.Context, ref models.MediaRef) (*models.StreamSet, error) {
	slug := ref.SourceID(c.name)
	if slug == "" {
		return nil, resolver.Errorf(c.name, resolver.KindNotConfigured, "no %s slug for %s", c.name, ref)
	}

	item, err := c.Detail(ctx, slug)
	if err != nil {
		return nil, err
	}

	want := ref.Episode
	if want == 0 {
		want = 1
	}

	set := &models.StreamSet{Provider: c.name}
	for _, ep := range item.Episodes {
		if ep.Number != want {
			continue
		}
		m3u8 := ep.Links["m3u8"]
		if m3u8 == "" {
			continue
		}
		set.Sources = append(set.Sources, models.StreamSource{
			URL:      m3u8,
			Quality:  util.ParseQuality(item.Quality),
			IsM3U8:   true,
			Provider: c.name,
			Label:    ep.Server,
			Headers:  map[string]string{"Referer": c.baseURL + "/"},
		})
	}
	if set.Empty() {
		return nil, resolver.Errorf(c.name, resolver.KindNotFound, "episode %d not published", want)
	}
	return set, nil
}

// stripTags removes HTML markup from descriptions
func stripTags(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(doc.Text())
}
