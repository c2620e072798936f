package scraper

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
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
	prorcpRe       = regexp.MustCompile(`['"](/prorcp/[^'"]+)['"]`)
	fileTemplateRe = regexp.MustCompile(`file\s*:\s*['"]([^'"]+)['"]`)
	placeholderRe  = regexp.MustCompile(`\{(v\d+)\}`)
	assignmentRe   = regexp.MustCompile(`\b(v\d+)\s*[:=]\s*['"]([A-Za-z0-9.\-]+)['"]`)
	atobFileRe     = regexp.MustCompile(`file\s*:\s*atob\(\s*['"]([A-Za-z0-9+/=]+)['"]\s*\)`)
)

// embedID picks the id the embed providers are queried with
func embedID(ref models.MediaRef) (param, id string, ok bool) {
	switch {
	case ref.TMDBID > 0:
		return "tmdb", strconv.Itoa(ref.TMDBID), true
	case ref.IMDBID != "":
		return "imdb", ref.IMDBID, true
	}
	return "", "", false
}

// VidSrcClient resolves TMDB or IMDB ids through the VidSrc embed chain:
// embed page, rcp iframe, prorcp player, then the templated file URL.
type VidSrcClient struct {
	baseClient
}

// NewVidSrcClient creates a client for the embed site at baseURL
func NewVidSrcClient(baseURL string) *VidSrcClient {
	c := &VidSrcClient{baseClient: newBaseClient("vidsrc", baseURL)}
	c.client = util.GetBrowserClient()
	return c
}

// Name returns the provider name
func (c *VidSrcClient) Name() string {
	return c.name
}

// Supports needs a TMDB or IMDB id
func (c *VidSrcClient) Supports(ref models.MediaRef) bool {
	_, _, ok := embedID(ref)
	return ok
}

// EmbedURL returns the first hop for ref
func (c *VidSrcClient) EmbedURL(ref models.MediaRef) string {
	param, id, _ := embedID(ref)
	q := url.Values{}
	q.Set(param, id)
	if ref.IsEpisode() || ref.Kind.IsEpisodic() {
		q.Set("season", strconv.Itoa(max(ref.Season, 1)))
		q.Set("episode", strconv.Itoa(max(ref.Episode, 1)))
		return c.baseURL + "/embed/tv?" + q.Encode()
	}
	return c.baseURL + "/embed/movie?" + q.Encode()
}

// Resolve walks the embed chain and returns the first playlist that answers
func (c *VidSrcClient) Resolve(ctx context.Context, ref models.MediaRef) (*models.StreamSet, error) {
	if !c.Supports(ref) {
		return nil, resolver.Errorf(c.name, resolver.KindNotFound, "vidsrc needs a tmdb or imdb id")
	}

	embed := c.EmbedURL(ref)
	doc, err := c.getDocument(ctx, embed, nil)
	if err != nil {
		return nil, err
	}
	iframe, _ := doc.Find("#player_iframe").Attr("src")
	if iframe == "" {
		iframe, _ = doc.Find("iframe").First().Attr("src")
	}
	if iframe == "" {
		return nil, resolver.Errorf(c.name, resolver.KindLayout, "player iframe not found on %s", embed)
	}
	rcpURL := resolveURL(c.baseURL, iframe)
	util.Debug("VidSrc rcp", "url", rcpURL)

	rcpBody, err := c.get(ctx, rcpURL, map[string]string{"Referer": embed})
	if err != nil {
		return nil, err
	}
	m := prorcpRe.FindSubmatch(rcpBody)
	if m == nil {
		return nil, resolver.Errorf(c.name, resolver.KindLayout, "prorcp path not found")
	}
	origin := originOf(rcpURL)
	prorcpURL := origin + string(m[1])

	playerBody, err := c.get(ctx, prorcpURL, map[string]string{"Referer": rcpURL})
	if err != nil {
		return nil, err
	}
	fm := fileTemplateRe.FindSubmatch(playerBody)
	if fm == nil {
		return nil, resolver.Errorf(c.name, resolver.KindLayout, "file template not found")
	}
	template := string(fm[1])

	values := c.placeholderValues(ctx, playerBody, origin, prorcpURL)
	candidates := expandTemplate(template, values)
	if len(candidates) == 0 {
		return nil, resolver.Errorf(c.name, resolver.KindLayout, "unresolved placeholders in %q", template)
	}

	headers := map[string]string{"Referer": origin + "/", "Origin": origin}
	for _, cand := range candidates {
		if err := c.probe(ctx, cand, headers); err != nil {
			util.Debug("VidSrc alternative failed", "url", cand, "error", err)
			continue
		}
		return &models.StreamSet{
			Provider: c.name,
			Sources: []models.StreamSource{{
				URL:      cand,
				Quality:  "auto",
				Headers:  headers,
				IsM3U8:   true,
				Provider: c.name,
			}},
		}, nil
	}
	return nil, resolver.Errorf(c.name, resolver.KindNotFound, "no working alternative for %s", ref)
}

// placeholderValues collects {vN} assignments from the player page and,
// for names still missing, from the scripts it loads.
func (c *VidSrcClient) placeholderValues(ctx context.Context, page []byte, origin, referer string) map[string]string {
	values := map[string]string{}
	collectAssignments(string(page), values)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(page)))
	if err != nil {
		return values
	}
	doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		if src == "" || ctx.Err() != nil {
			return
		}
		scriptURL := resolveURL(origin, src)
		if originOf(scriptURL) != origin {
			return
		}
		body, err := c.get(ctx, scriptURL, map[string]string{"Referer": referer})
		if err != nil {
			util.Debug("VidSrc script fetch failed", "url", scriptURL, "error", err)
			return
		}
		collectAssignments(string(body), values)
	})
	return values
}

func collectAssignments(src string, into map[string]string) {
	for _, m := range assignmentRe.FindAllStringSubmatch(src, -1) {
		if _, ok := into[m[1]]; !ok {
			into[m[1]] = m[2]
		}
	}
}

// expandTemplate splits alternatives on " or " and substitutes the
// placeholders. Alternatives with unknown placeholders are dropped.
func expandTemplate(template string, values map[string]string) []string {
	var out []string
	for _, alt := range strings.Split(template, " or ") {
		alt = strings.TrimSpace(alt)
		if alt == "" {
			continue
		}
		missing := false
		resolved := placeholderRe.ReplaceAllStringFunc(alt, func(p string) string {
			v, ok := values[placeholderRe.FindStringSubmatch(p)[1]]
			if !ok {
				missing = true
				return p
			}
			return v
		})
		if !missing {
			out = append(out, resolved)
		}
	}
	return out
}

func (c *VidSrcClient) probe(ctx context.Context, rawURL string, headers map[string]string) error {
	resp, err := c.do(ctx, request{method: http.MethodGet, url: rawURL, headers: headers})
	if err != nil {
		return err
	}
	if resp.status != http.StatusOK {
		return c.statusError(resp)
	}
	if !strings.HasPrefix(strings.TrimSpace(string(resp.body)), "#EXTM3U") {
		return fmt.Errorf("not a playlist")
	}
	return nil
}

func originOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// AutoembedClient reads the file URL straight from the Autoembed player
type AutoembedClient struct {
	baseClient
}

// NewAutoembedClient creates a client for the player at baseURL
func NewAutoembedClient(baseURL string) *AutoembedClient {
	c := &AutoembedClient{baseClient: newBaseClient("autoembed", baseURL)}
	c.client = util.GetBrowserClient()
	return c
}

// Name returns the provider name
func (c *AutoembedClient) Name() string {
	return c.name
}

// Supports needs a TMDB or IMDB id
func (c *AutoembedClient) Supports(ref models.MediaRef) bool {
	_, _, ok := embedID(ref)
	return ok
}

// EmbedURL returns the player page for ref
func (c *AutoembedClient) EmbedURL(ref models.MediaRef) string {
	_, id, _ := embedID(ref)
	if ref.IsEpisode() || ref.Kind.IsEpisodic() {
		return fmt.Sprintf("%s/embed/tv/%s/%d/%d", c.baseURL, id, max(ref.Season, 1), max(ref.Episode, 1))
	}
	return fmt.Sprintf("%s/embed/movie/%s", c.baseURL, id)
}

// Resolve fetches the player page and extracts its file URL
func (c *AutoembedClient) Resolve(ctx context.Context, ref models.MediaRef) (*models.StreamSet, error) {
	if !c.Supports(ref) {
		return nil, resolver.Errorf(c.name, resolver.KindNotFound, "autoembed needs a tmdb or imdb id")
	}
	embed := c.EmbedURL(ref)
	body, err := c.get(ctx, embed, nil)
	if err != nil {
		return nil, err
	}

	file, ok := extractAutoembedFile(string(body))
	if !ok {
		return nil, resolver.Errorf(c.name, resolver.KindLayout, "file url not found on %s", embed)
	}
	origin := originOf(embed)
	return &models.StreamSet{
		Provider: c.name,
		Sources: []models.StreamSource{{
			URL:      file,
			Quality:  util.ParseQuality(file),
			Headers:  map[string]string{"Referer": origin + "/"},
			IsM3U8:   strings.Contains(file, ".m3u8"),
			Provider: c.name,
		}},
	}, nil
}

// extractAutoembedFile handles plain, atob()-wrapped and bare base64 file
// values.
func extractAutoembedFile(page string) (string, bool) {
	if m := atobFileRe.FindStringSubmatch(page); m != nil {
		if decoded, err := base64.StdEncoding.DecodeString(m[1]); err == nil {
			return string(decoded), true
		}
	}
	m := fileTemplateRe.FindStringSubmatch(page)
	if m == nil {
		return "", false
	}
	value := m[1]
	if strings.HasPrefix(value, "http") || strings.HasPrefix(value, "//") {
		return resolveURL("https://", value), true
	}
	decoded, err := base64.StdEncoding.DecodeString(value)
	if err != nil || !strings.HasPrefix(string(decoded), "http") {
		return "", false
	}
	return string(decoded), true
}
