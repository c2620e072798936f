package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/alvarorichard/Gostream/internal/models"
	"github.com/alvarorichard/Gostream/internal/resolver"
	"github.com/alvarorichard/Gostream/internal/util"
)

// FebBoxURL is the FebBox site root
const FebBoxURL = "https://www.febbox.com"

// FebBoxFile is one entry of a share listing
type FebBoxFile struct {
	FID           int64  `json:"fid"`
	FileName      string `json:"file_name"`
	FileSizeBytes int64  `json:"file_size_bytes"`
	IsDir         int    `json:"is_dir"`
	Ext           string `json:"ext"`
}

// Folder reports whether the entry is a directory
func (f FebBoxFile) Folder() bool {
	return f.IsDir == 1
}

type febboxEnvelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// FebBoxClient lists FebBox shares and returns the quality list of a file.
// Every call goes through a BrowserSession.
type FebBoxClient struct {
	name    string
	baseURL string
	token   string
	session BrowserSession
}

// NewFebBoxClient creates a client. browser selects the session kind:
// "playwright" or "http".
func NewFebBoxClient(baseURL, token, browser string) *FebBoxClient {
	baseURL = strings.TrimRight(baseURL, "/")
	var session BrowserSession
	if browser == "http" {
		session = NewHTTPSession("febbox", baseURL, token)
	} else {
		session = NewPlaywrightSession("febbox", baseURL, token)
	}
	return NewFebBoxClientWithSession(baseURL, token, session)
}

// NewFebBoxClientWithSession creates a client on an existing session
func NewFebBoxClientWithSession(baseURL, token string, session BrowserSession) *FebBoxClient {
	return &FebBoxClient{
		name:    "febbox",
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		session: session,
	}
}

// Name returns the provider name
func (c *FebBoxClient) Name() string {
	return c.name
}

// Configured reports whether the ui cookie is set
func (c *FebBoxClient) Configured() bool {
	return c.token != ""
}

// Close releases the browser session
func (c *FebBoxClient) Close() error {
	return c.session.Close()
}

func (c *FebBoxClient) sharePage(shareKey string) string {
	return c.baseURL + "/share/" + url.PathEscape(shareKey)
}

func (c *FebBoxClient) call(ctx context.Context, shareKey, apiURL string) (json.RawMessage, error) {
	body, err := c.session.Fetch(ctx, c.sharePage(shareKey), apiURL)
	if err != nil {
		return nil, err
	}

	var env febboxEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		if isChallengeBody(body) {
			return nil, resolver.Errorf(c.name, resolver.KindBlocked, "cloudflare challenge on %s", apiURL)
		}
		return nil, resolver.NewError(c.name, resolver.KindLayout, errors.Wrap(err, "decode response"))
	}
	if env.Code != 1 {
		kind := resolver.KindLayout
		if strings.Contains(strings.ToLower(env.Msg), "login") {
			kind = resolver.KindAuthExpired
		}
		return nil, resolver.Errorf(c.name, kind, "api error (code %d): %s", env.Code, env.Msg)
	}
	return env.Data, nil
}

// ListShare returns the entries of a share folder; parentID "0" is the root
func (c *FebBoxClient) ListShare(ctx context.Context, shareKey, parentID string) ([]FebBoxFile, error) {
	if parentID == "" {
		parentID = "0"
	}
	apiURL := fmt.Sprintf("%s/file/file_share_list?share_key=%s&parent_id=%s&is_html=0",
		c.baseURL, url.QueryEscape(shareKey), url.QueryEscape(parentID))

	raw, err := c.call(ctx, shareKey, apiURL)
	if err != nil {
		return nil, err
	}
	var data struct {
		FileList []FebBoxFile `json:"file_list"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, resolver.NewError(c.name, resolver.KindLayout, errors.Wrap(err, "decode file list"))
	}
	return data.FileList, nil
}

// Qualities returns one stream source per entry of the file's quality list
func (c *FebBoxClient) Qualities(ctx context.Context, shareKey string, fid int64) ([]models.StreamSource, error) {
	fids := url.QueryEscape(fmt.Sprintf(`["%d"]`, fid))
	apiURL := fmt.Sprintf("%s/console/file_download?fids=%s&share=", c.baseURL, fids)

	raw, err := c.call(ctx, shareKey, apiURL)
	if err != nil {
		return nil, err
	}

	var files []struct {
		Error       int    `json:"error"`
		DownloadURL string `json:"download_url"`
		FileName    string `json:"file_name"`
		FileSize    int64  `json:"file_size"`
		QualityList []struct {
			Quality     string `json:"quality"`
			DownloadURL string `json:"download_url"`
			FileSize    int64  `json:"file_size"`
		} `json:"quality_list"`
	}
	if err := json.Unmarshal(raw, &files); err != nil {
		return nil, resolver.NewError(c.name, resolver.KindLayout, errors.Wrap(err, "decode quality list"))
	}
	if len(files) == 0 {
		return nil, resolver.Errorf(c.name, resolver.KindNotFound, "file %d has no download", fid)
	}
	f := files[0]
	if f.Error != 0 {
		return nil, resolver.Errorf(c.name, resolver.KindLayout, "download error %d for file %d", f.Error, fid)
	}

	headers := map[string]string{"Referer": c.baseURL + "/"}
	var out []models.StreamSource
	for _, q := range f.QualityList {
		if q.DownloadURL == "" {
			continue
		}
		out = append(out, models.StreamSource{
			URL:      q.DownloadURL,
			Quality:  util.ParseQuality(q.Quality),
			Headers:  headers,
			IsM3U8:   strings.Contains(q.DownloadURL, ".m3u8"),
			Provider: c.name,
			Label:    f.FileName,
			Size:     q.FileSize,
		})
	}
	if len(out) == 0 && f.DownloadURL != "" {
		out = append(out, models.StreamSource{
			URL:      f.DownloadURL,
			Quality:  util.ParseQuality(f.FileName),
			Headers:  headers,
			Provider: c.name,
			Label:    f.FileName,
			Size:     f.FileSize,
		})
	}
	return out, nil
}

// ResolveShare finds the file for ref inside a share and returns its
// qualities. Episodes are looked up in the "season N" folder.
func (c *FebBoxClient) ResolveShare(ctx context.Context, shareKey string, ref models.MediaRef) (*models.StreamSet, error) {
	root, err := c.ListShare(ctx, shareKey, "0")
	if err != nil {
		return nil, err
	}

	var file *FebBoxFile
	if ref.IsEpisode() {
		season := max(ref.Season, 1)
		entries := root
		if folder := findSeasonFolder(root, season); folder != nil {
			entries, err = c.ListShare(ctx, shareKey, strconv.FormatInt(folder.FID, 10))
			if err != nil {
				return nil, err
			}
		}
		for i := range entries {
			e := &entries[i]
			if !e.Folder() && IsVideoFile(e.FileName) && util.MatchesEpisode(e.FileName, season, ref.Episode) {
				file = e
				break
			}
		}
	} else {
		file = largestVideo(root)
	}
	if file == nil {
		return nil, resolver.Errorf(c.name, resolver.KindNotFound, "no file for %s in share %s", ref, shareKey)
	}
	util.Debug("FebBox file", "share", shareKey, "file", file.FileName)

	sources, err := c.Qualities(ctx, shareKey, file.FID)
	if err != nil {
		return nil, err
	}
	return &models.StreamSet{Provider: c.name, Sources: sources}, nil
}

var seasonFolderRe = regexp.MustCompile(`(?i)\bseason\s*0*(\d+)\b`)

func findSeasonFolder(entries []FebBoxFile, season int) *FebBoxFile {
	for i := range entries {
		if !entries[i].Folder() {
			continue
		}
		m := seasonFolderRe.FindStringSubmatch(entries[i].FileName)
		if m != nil && m[1] == strconv.Itoa(season) {
			return &entries[i]
		}
	}
	return nil
}

func largestVideo(entries []FebBoxFile) *FebBoxFile {
	var best *FebBoxFile
	for i := range entries {
		e := &entries[i]
		if e.Folder() || !IsVideoFile(e.FileName) {
			continue
		}
		if best == nil || e.FileSizeBytes > best.FileSizeBytes {
			best = e
		}
	}
	return best
}

// Supports needs the ui cookie and a share key for the item
func (c *FebBoxClient) Supports(ref models.MediaRef) bool {
	return c.Configured() && ref.SourceID(c.name) != ""
}

// Resolve resolves a ref that already carries its FebBox share key
func (c *FebBoxClient) Resolve(ctx context.Context, ref models.MediaRef) (*models.StreamSet, error) {
	if !c.Configured() {
		return nil, resolver.Errorf(c.name, resolver.KindNotConfigured, "febbox token is not set")
	}
	key := ref.SourceID(c.name)
	if strings.Contains(key, "/") {
		if k, err := shareKeyFromLink(key); err == nil {
			key = k
		}
	}
	return c.ResolveShare(ctx, key, ref)
}
