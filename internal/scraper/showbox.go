package scraper

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/alvarorichard/Gostream/internal/models"
	"github.com/alvarorichard/Gostream/internal/resolver"
	"github.com/alvarorichard/Gostream/internal/util"
)

// ShowBox box types
const (
	showboxMovie = 1
	showboxTV    = 2
)

// ShowBoxItem is one search hit of the ShowBox API
type ShowBoxItem struct {
	ID      int    `json:"id"`
	Title   string `json:"title"`
	Year    int    `json:"year"`
	BoxType int    `json:"box_type"`
}

// ShowBoxClient talks to the encrypted ShowBox API to find the FebBox
// share behind a title, then hands the share to FebBox.
type ShowBoxClient struct {
	baseClient
	shareURL string
	febbox   *FebBoxClient
	now      func() time.Time
}

// NewShowBoxClient creates a client for the API at apiURL. Share links are
// requested from shareURL.
func NewShowBoxClient(apiURL, shareURL string, febbox *FebBoxClient) *ShowBoxClient {
	c := &ShowBoxClient{
		baseClient: newBaseClient("showbox", apiURL),
		shareURL:   strings.TrimRight(shareURL, "/"),
		febbox:     febbox,
		now:        time.Now,
	}
	c.userAgent = "okhttp/3.2.0"
	return c
}

// Name returns the provider name
func (c *ShowBoxClient) Name() string {
	return c.name
}

func boxType(kind models.MediaKind) int {
	if kind.IsEpisodic() {
		return showboxTV
	}
	return showboxMovie
}

// call posts one encrypted module request and returns the "data" field
func (c *ShowBoxClient) call(ctx context.Context, payload map[string]any) (json.RawMessage, error) {
	payload["childmode"] = "0"
	payload["app_version"] = "11.5"
	payload["appid"] = showboxAppID
	payload["lang"] = "en"
	payload["channel"] = "Website"
	payload["expired_date"] = strconv.FormatInt(c.now().Add(12*time.Hour).Unix(), 10)
	payload["platform"] = "android"

	data, err := buildShowBoxBody(payload)
	if err != nil {
		return nil, resolver.NewError(c.name, resolver.KindLayout, errors.Wrap(err, "encrypt request"))
	}

	form := url.Values{}
	form.Set("data", data)
	form.Set("appid", "27")
	form.Set("platform", "android")
	form.Set("version", showboxVersion)
	form.Set("medium", "Website")
	form.Set("token", randomToken())

	body, err := c.fetch(ctx, request{
		method:      http.MethodPost,
		url:         c.baseURL + "/",
		body:        []byte(form.Encode()),
		contentType: "application/x-www-form-urlencoded",
		headers:     map[string]string{"Platform": "android", "Accept": "application/json"},
	})
	if err != nil {
		return nil, err
	}

	var out struct {
		Code int             `json:"code"`
		Msg  string          `json:"msg"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, resolver.NewError(c.name, resolver.KindLayout, errors.Wrap(err, "decode response"))
	}
	if out.Code != 1 {
		return nil, resolver.Errorf(c.name, resolver.KindLayout, "api error (code %d): %s", out.Code, out.Msg)
	}
	return out.Data, nil
}

// Search finds ShowBox ids for title, restricted to kind
func (c *ShowBoxClient) Search(ctx context.Context, title string, kind models.MediaKind) ([]ShowBoxItem, error) {
	raw, err := c.call(ctx, map[string]any{
		"module":    "Search3",
		"page":      "1",
		"type":      "all",
		"keyword":   title,
		"pagelimit": "20",
	})
	if err != nil {
		return nil, err
	}

	var items []ShowBoxItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, resolver.NewError(c.name, resolver.KindLayout, errors.Wrap(err, "decode search"))
	}

	want := boxType(kind)
	out := items[:0]
	for _, it := range items {
		if it.BoxType == want {
			out = append(out, it)
		}
	}
	return out, nil
}

// ShareKey asks for the FebBox share link of a ShowBox id and returns its
// last path segment.
func (c *ShowBoxClient) ShareKey(ctx context.Context, id int, kind models.MediaKind) (string, error) {
	endpoint := c.shareURL + "/index/share_link?id=" + strconv.Itoa(id) + "&type=" + strconv.Itoa(boxType(kind))
	body, err := c.get(ctx, endpoint, map[string]string{"Accept": "application/json"})
	if err != nil {
		return "", err
	}

	var out struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Data struct {
			Link string `json:"link"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", resolver.NewError(c.name, resolver.KindLayout, errors.Wrap(err, "decode share link"))
	}
	if out.Code != 1 || out.Data.Link == "" {
		return "", resolver.Errorf(c.name, resolver.KindNotFound, "no share link for %d: %s", id, out.Msg)
	}
	return shareKeyFromLink(out.Data.Link)
}

func shareKeyFromLink(link string) (string, error) {
	u, err := url.Parse(link)
	if err != nil {
		return "", errors.Wrap(err, "parse share link")
	}
	key := path.Base(strings.TrimRight(u.Path, "/"))
	if key == "" || key == "." || key == "/" || key == "share" {
		return "", errors.Errorf("share link %q has no key", link)
	}
	return key, nil
}

// Supports needs a title to search and a configured FebBox session
func (c *ShowBoxClient) Supports(ref models.MediaRef) bool {
	return c.febbox != nil && c.febbox.Configured() && len(ref.SearchTitles()) > 0
}

// Resolve searches ShowBox, picks the best title match and resolves its
// share through FebBox.
func (c *ShowBoxClient) Resolve(ctx context.Context, ref models.MediaRef) (*models.StreamSet, error) {
	if c.febbox == nil || !c.febbox.Configured() {
		return nil, resolver.Errorf(c.name, resolver.KindNotConfigured, "febbox token is not set")
	}

	var match *ShowBoxItem
	for _, title := range ref.SearchTitles() {
		items, err := c.Search(ctx, title, ref.Kind)
		if err != nil {
			return nil, err
		}
		cands := make([]candidate, len(items))
		for i, it := range items {
			cands[i] = candidate{ID: strconv.Itoa(it.ID), Title: it.Title, Year: it.Year, Kind: kindOfBox(it.BoxType)}
		}
		if best, ok := bestMatch(ref, cands); ok {
			for i := range items {
				if strconv.Itoa(items[i].ID) == best.ID {
					match = &items[i]
				}
			}
			break
		}
	}
	if match == nil {
		return nil, resolver.Errorf(c.name, resolver.KindNotFound, "no showbox match for %s", ref)
	}
	util.Debug("ShowBox match", "id", match.ID, "title", match.Title, "year", match.Year)

	key, err := c.ShareKey(ctx, match.ID, ref.Kind)
	if err != nil {
		return nil, err
	}
	set, err := c.febbox.ResolveShare(ctx, key, ref)
	if err != nil {
		return nil, err
	}
	set.Provider = c.name
	for i := range set.Sources {
		set.Sources[i].Provider = c.name
	}
	return set, nil
}

func kindOfBox(t int) models.MediaKind {
	if t == showboxTV {
		return models.KindTV
	}
	return models.KindMovie
}
