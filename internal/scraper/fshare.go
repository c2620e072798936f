package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/alvarorichard/Gostream/internal/models"
	"github.com/alvarorichard/Gostream/internal/resolver"
	"github.com/alvarorichard/Gostream/internal/util"
)

// FshareAPI is the Fshare v2 API root
const FshareAPI = "https://api.fshare.vn/api"

const fsharePageSize = 100

var videoExtensions = map[string]bool{
	".mkv": true, ".mp4": true, ".avi": true, ".ts": true, ".m2ts": true,
	".mov": true, ".wmv": true, ".webm": true, ".flv": true, ".m4v": true,
}

// IsVideoFile reports whether name has a known video extension
func IsVideoFile(name string) bool {
	return videoExtensions[strings.ToLower(path.Ext(name))]
}

// FshareCredentials are the account and application settings for Fshare
type FshareCredentials struct {
	Email     string
	Password  string
	AppKey    string
	UserAgent string
}

// FshareEntry is one item of a folder listing
type FshareEntry struct {
	Name     string `json:"name"`
	LinkCode string `json:"linkcode"`
	Size     int64  `json:"size,string"`
	Type     int    `json:"type,string"`
	URL      string `json:"-"`
}

// IsFolder reports whether the entry is a folder
func (e FshareEntry) IsFolder() bool {
	return e.Type == 0
}

// FshareClient logs into Fshare and turns folder or file links into
// direct CDN URLs.
type FshareClient struct {
	baseClient
	creds FshareCredentials

	mu        sync.Mutex
	token     string
	sessionID string
}

// NewFshareClient creates a client; nothing is sent until the first call
func NewFshareClient(creds FshareCredentials) *FshareClient {
	c := &FshareClient{baseClient: newBaseClient("fshare", FshareAPI), creds: creds}
	if creds.UserAgent != "" {
		c.userAgent = creds.UserAgent
	}
	return c
}

// Name returns the provider name
func (c *FshareClient) Name() string {
	return c.name
}

// Configured reports whether credentials are complete
func (c *FshareClient) Configured() bool {
	return c.creds.Email != "" && c.creds.Password != "" && c.creds.AppKey != ""
}

// Login exchanges the credentials for a token and a session cookie
func (c *FshareClient) Login(ctx context.Context) error {
	if !c.Configured() {
		return resolver.Errorf(c.name, resolver.KindNotConfigured, "fshare email, password and app key are required")
	}

	payload, _ := json.Marshal(map[string]string{
		"user_email": c.creds.Email,
		"password":   c.creds.Password,
		"app_key":    c.creds.AppKey,
	})
	resp, err := c.do(ctx, request{
		method:      http.MethodPost,
		url:         c.baseURL + "/user/login",
		body:        payload,
		contentType: "application/json",
	})
	if err != nil {
		return err
	}

	var out struct {
		Code      int    `json:"code"`
		Msg       string `json:"msg"`
		Token     string `json:"token"`
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return resolver.NewError(c.name, resolver.KindLayout, errors.Wrap(err, "login response"))
	}
	if resp.status != http.StatusOK || out.Token == "" {
		kind := resolver.KindAuthExpired
		if resp.status == http.StatusTooManyRequests {
			kind = resolver.KindRateLimited
		}
		return resolver.Errorf(c.name, kind, "login failed (%d): %s", resp.status, out.Msg)
	}

	c.mu.Lock()
	c.token, c.sessionID = out.Token, out.SessionID
	c.mu.Unlock()
	util.Debug("Fshare login ok")
	return nil
}

func (c *FshareClient) session() (token, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token, c.sessionID
}

// call posts an authenticated JSON request. An expired session (HTTP or
// body code 201/401) triggers one re-login and retry.
func (c *FshareClient) call(ctx context.Context, endpoint string, payload map[string]any, out any) error {
	for attempt := 0; attempt < 2; attempt++ {
		token, sid := c.session()
		if token == "" {
			if err := c.Login(ctx); err != nil {
				return err
			}
			token, sid = c.session()
		}

		payload["token"] = token
		body, _ := json.Marshal(payload)
		resp, err := c.do(ctx, request{
			method:      http.MethodPost,
			url:         c.baseURL + endpoint,
			body:        body,
			contentType: "application/json",
			headers:     map[string]string{"Cookie": "session_id=" + sid},
		})
		if err != nil {
			return err
		}

		var envelope struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		_ = json.Unmarshal(resp.body, &envelope)

		if resp.status == http.StatusCreated || resp.status == http.StatusUnauthorized ||
			envelope.Code == 201 || envelope.Code == 401 {
			util.Debug("Fshare session expired, logging in again", "endpoint", endpoint)
			c.mu.Lock()
			c.token, c.sessionID = "", ""
			c.mu.Unlock()
			continue
		}
		if resp.status == http.StatusNotFound || envelope.Code == 404 {
			return resolver.Errorf(c.name, resolver.KindNotFound, "%s: %s", endpoint, envelope.Msg)
		}
		if resp.status != http.StatusOK {
			return c.statusError(resp)
		}
		if err := json.Unmarshal(resp.body, out); err != nil {
			return resolver.NewError(c.name, resolver.KindLayout, errors.Wrapf(err, "decode %s", endpoint))
		}
		return nil
	}
	return resolver.Errorf(c.name, resolver.KindAuthExpired, "session still rejected after re-login")
}

// ListFolder returns every entry of a folder, following pagination
func (c *FshareClient) ListFolder(ctx context.Context, folderURL string) ([]FshareEntry, error) {
	var all []FshareEntry
	for page := 0; ; page++ {
		var entries []FshareEntry
		err := c.call(ctx, "/fileops/getFolderList", map[string]any{
			"url":       folderURL,
			"dirOnly":   0,
			"pageIndex": page,
			"limit":     fsharePageSize,
		}, &entries)
		if err != nil {
			return nil, err
		}
		for i := range entries {
			entries[i].URL = "https://www.fshare.vn/" + folderOrFile(entries[i]) + "/" + entries[i].LinkCode
		}
		all = append(all, entries...)
		if len(entries) < fsharePageSize {
			return all, nil
		}
	}
}

func folderOrFile(e FshareEntry) string {
	if e.IsFolder() {
		return "folder"
	}
	return "file"
}

// DownloadURL returns the direct CDN location of one file
func (c *FshareClient) DownloadURL(ctx context.Context, fileURL string) (string, error) {
	var out struct {
		Location string `json:"location"`
	}
	err := c.call(ctx, "/session/download", map[string]any{
		"url":      fileURL,
		"password": "",
		"zipflag":  0,
	}, &out)
	if err != nil {
		return "", err
	}
	if out.Location == "" {
		return "", resolver.Errorf(c.name, resolver.KindLayout, "download response has no location")
	}
	return out.Location, nil
}

// Supports requires an Fshare folder or file link for the item
func (c *FshareClient) Supports(ref models.MediaRef) bool {
	return c.Configured() && ref.SourceID(c.name) != ""
}

// Resolve lists the linked folder (or takes the linked file), keeps the
// video files matching the wanted episode and resolves each to a CDN URL.
func (c *FshareClient) Resolve(ctx context.Context, ref models.MediaRef) (*models.StreamSet, error) {
	link := ref.SourceID(c.name)
	if link == "" {
		return nil, resolver.Errorf(c.name, resolver.KindNotConfigured, "no fshare link for %s", ref)
	}

	var files []FshareEntry
	if strings.Contains(link, "/folder/") {
		entries, err := c.ListFolder(ctx, link)
		if err != nil {
			return nil, err
		}
		files = pickFshareFiles(entries, ref)
	} else {
		files = []FshareEntry{{Name: path.Base(link), URL: link, Type: 1}}
	}
	if len(files) == 0 {
		return nil, resolver.Errorf(c.name, resolver.KindNotFound, "no video file for %s", ref)
	}

	set := &models.StreamSet{Provider: c.name}
	var lastErr error
	for _, f := range files {
		location, err := c.DownloadURL(ctx, f.URL)
		if err != nil {
			lastErr = err
			util.Debug("Fshare download link failed", "file", f.Name, "error", err)
			continue
		}
		set.Sources = append(set.Sources, models.StreamSource{
			URL:      location,
			Quality:  util.ParseQuality(f.Name),
			Provider: c.name,
			Label:    f.Name,
			Size:     f.Size,
		})
	}
	if set.Empty() && lastErr != nil {
		return nil, lastErr
	}
	return set, nil
}

func pickFshareFiles(entries []FshareEntry, ref models.MediaRef) []FshareEntry {
	var out []FshareEntry
	for _, e := range entries {
		if e.IsFolder() || !IsVideoFile(e.Name) {
			continue
		}
		if ref.IsEpisode() && !util.MatchesEpisode(e.Name, ref.Season, ref.Episode) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// String is used in debug logs
func (e FshareEntry) String() string {
	return fmt.Sprintf("%s (%s, %d bytes)", e.Name, folderOrFile(e), e.Size)
}
