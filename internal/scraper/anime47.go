package scraper

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/alvarorichard/Gostream/internal/models"
	"github.com/alvarorichard/Gostream/internal/resolver"
	"github.com/alvarorichard/Gostream/internal/util"
)

var (
	bgImageRe = regexp.MustCompile(`url\(['"]?([^'")]+)['"]?\)`)
	yearRe    = regexp.MustCompile(`\b(19|20)\d{2}\b`)
)

// Anime47Client scrapes the Anime47 HTML site. It is a catalog source only.
type Anime47Client struct {
	baseClient
}

// NewAnime47Client creates a new Anime47 client
func NewAnime47Client(baseURL string) *Anime47Client {
	c := &Anime47Client{baseClient: newBaseClient("anime47", baseURL)}
	c.referer = c.baseURL + "/"
	return c
}

// Name returns the source name
func (c *Anime47Client) Name() string {
	return c.name
}

// Search queries the site search page
func (c *Anime47Client) Search(ctx context.Context, query string, page int) (*models.Page[models.Media], error) {
	searchURL := fmt.Sprintf("%s/tim-kiem/?keyword=%s&page=%d", c.baseURL, url.QueryEscape(query), max(page, 1))
	util.Debug("Anime47 search", "query", query, "url", searchURL)

	doc, err := c.getDocument(ctx, searchURL, nil)
	if err != nil {
		return nil, err
	}
	return c.extractListing(doc, max(page, 1)), nil
}

// Latest lists recently updated series
func (c *Anime47Client) Latest(ctx context.Context, page int) (*models.Page[models.Media], error) {
	listURL := fmt.Sprintf("%s/moi-cap-nhat/?page=%d", c.baseURL, max(page, 1))

	doc, err := c.getDocument(ctx, listURL, nil)
	if err != nil {
		return nil, err
	}
	return c.extractListing(doc, max(page, 1)), nil
}

// Detail scrapes a series page and its episode list. id is the path of
// the series page relative to the site root.
func (c *Anime47Client) Detail(ctx context.Context, id string) (*models.Media, error) {
	pageURL := resolveURL(c.baseURL, "/"+strings.TrimLeft(id, "/"))

	doc, err := c.getDocument(ctx, pageURL, nil)
	if err != nil {
		return nil, err
	}

	title := firstText(doc.Selection, "h1.movie-title .title-1", "h1 .title-1", "h1")
	if title == "" {
		return nil, resolver.Errorf(c.name, resolver.KindLayout, "detail page has no title")
	}

	item := &models.Media{
		Key:           models.MakeKey(c.name, id),
		Source:        c.name,
		ID:            id,
		Title:         title,
		OriginalTitle: firstText(doc.Selection, "h1.movie-title .title-2", ".title-2", ".other-name"),
		Kind:          models.KindAnime,
		Country:       "jp",
		Overview:      firstText(doc.Selection, "#film-content", ".news-article", ".description"),
		Poster:        c.imageOf(doc.Find(".movie-l-img, .movie-thumb, .poster").First()),
	}

	doc.Find(".movie-dl dt, .movie-info dt").Each(func(_ int, dt *goquery.Selection) {
		label := strings.ToLower(strings.TrimSpace(dt.Text()))
		value := strings.TrimSpace(dt.Next().Text())
		switch {
		case strings.HasPrefix(label, "năm"):
			item.Year, _ = strconv.Atoi(yearRe.FindString(value))
		case strings.HasPrefix(label, "thể loại"):
			dt.Next().Find("a").Each(func(_ int, a *goquery.Selection) {
				item.Genres = append(item.Genres, strings.TrimSpace(a.Text()))
			})
		case strings.HasPrefix(label, "trạng thái") || strings.HasPrefix(label, "tập mới"):
			item.EpisodeCurrent = value
		}
	})

	seen := map[string]bool{}
	doc.Find("#list_episodes a, .list-episode a, .episodes a").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok || seen[href] {
			return
		}
		seen[href] = true
		label := strings.TrimSpace(a.Text())
		item.Episodes = append(item.Episodes, models.Episode{
			Key:    models.MakeKey(c.name, strings.TrimPrefix(href, c.baseURL)),
			Name:   label,
			Number: models.ParseEpisodeNumber(label),
			Links:  map[string]string{"page": resolveURL(c.baseURL, href)},
		})
	})

	return item, nil
}

func (c *Anime47Client) extractListing(doc *goquery.Document, page int) *models.Page[models.Media] {
	out := &models.Page[models.Media]{Page: page}

	doc.Find(".movie-item, .item-movie, .list-film .item").Each(func(_ int, s *goquery.Selection) {
		link := s.Find("a[href]").First()
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		title := firstText(s, ".movie-title-1", ".title", "h3")
		if title == "" {
			title, _ = link.Attr("title")
		}
		if title == "" {
			return
		}

		id := strings.TrimLeft(strings.TrimPrefix(href, c.baseURL), "/")
		year, _ := strconv.Atoi(yearRe.FindString(firstText(s, ".movie-year", ".year")))
		out.Items = append(out.Items, models.Media{
			Key:            models.MakeKey(c.name, id),
			Source:         c.name,
			ID:             id,
			Title:          strings.TrimSpace(title),
			OriginalTitle:  firstText(s, ".movie-title-2", ".title-2"),
			Year:           year,
			Kind:           models.KindAnime,
			Country:        "jp",
			Poster:         c.imageOf(s),
			EpisodeCurrent: firstText(s, ".episode-latest", ".ribbon"),
		})
	})

	doc.Find(".pagination a, .page-numbers").Each(func(_ int, a *goquery.Selection) {
		if n, err := strconv.Atoi(strings.TrimSpace(a.Text())); err == nil && n > out.TotalPages {
			out.TotalPages = n
		}
	})
	if out.TotalPages < page {
		out.TotalPages = page
	}
	out.HasNext = page < out.TotalPages || doc.Find(".pagination .next, a.next").Length() > 0
	return out
}

// imageOf finds a poster inside s: lazy-loaded img, plain img, or a CSS
// background image.
func (c *Anime47Client) imageOf(s *goquery.Selection) string {
	img := s.Find("img").First()
	for _, attr := range []string{"data-src", "data-original", "src"} {
		if v, ok := img.Attr(attr); ok && v != "" && !strings.HasPrefix(v, "data:") {
			return resolveURL(c.baseURL, v)
		}
	}
	var found string
	s.Find("[style]").AddSelection(s.Filter("[style]")).EachWithBreak(func(_ int, el *goquery.Selection) bool {
		style, _ := el.Attr("style")
		if m := bgImageRe.FindStringSubmatch(style); m != nil {
			found = resolveURL(c.baseURL, m[1])
			return false
		}
		return true
	})
	return found
}

// firstText returns the trimmed text of the first selector that matches
func firstText(s *goquery.Selection, selectors ...string) string {
	for _, sel := range selectors {
		if text := strings.TrimSpace(s.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}
