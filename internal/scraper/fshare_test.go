package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvarorichard/Gostream/internal/models"
	"github.com/alvarorichard/Gostream/internal/resolver"
)

type fshareFake struct {
	logins    atomic.Int32
	downloads atomic.Int32
	expireOne atomic.Bool
}

func newFshareTestServer(t *testing.T, fake *fshareFake) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/user/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		if body["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":405,"msg":"Authenticate fail!"}`))
			return
		}
		n := fake.logins.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": 200, "token": "tok" + string(rune('0'+n)), "session_id": "sid",
		})
	})

	mux.HandleFunc("/fileops/getFolderList", func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Cookie"), "session_id=sid")
		_, _ = w.Write([]byte(`[
			{"name":"Extras","linkcode":"F1","size":"0","type":"0"},
			{"name":"The.Boys.S01E01.1080p.WEB-DL.mkv","linkcode":"A1","size":"2147483648","type":"1"},
			{"name":"The.Boys.S01E02.1080p.WEB-DL.mkv","linkcode":"A2","size":"2147483648","type":"1"},
			{"name":"The.Boys.S01E02.720p.mp4","linkcode":"A3","size":"1073741824","type":"1"},
			{"name":"The.Boys.S01E02.srt","linkcode":"A4","size":"4096","type":"1"}
		]`))
	})

	mux.HandleFunc("/session/download", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if fake.expireOne.CompareAndSwap(true, false) {
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"code":201,"msg":"Not logged in yet!"}`))
			return
		}
		fake.downloads.Add(1)
		url, _ := body["url"].(string)
		_ = json.NewEncoder(w).Encode(map[string]string{"location": "https://download.example.com/" + url[len(url)-2:]})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestFshare(server *httptest.Server, password string) *FshareClient {
	c := NewFshareClient(FshareCredentials{
		Email: "me@example.com", Password: password, AppKey: "app", UserAgent: "test-agent",
	})
	c.baseURL = server.URL
	c.maxRetries = 0
	return c
}

func TestFshareResolveFolder(t *testing.T) {
	fake := &fshareFake{}
	server := newFshareTestServer(t, fake)
	client := newTestFshare(server, "secret")

	ref := models.MediaRef{Title: "The Boys", Season: 1, Episode: 2,
		SourceIDs: map[string]string{"fshare": "https://www.fshare.vn/folder/XYZ"}}
	require.True(t, client.Supports(ref))

	set, err := client.Resolve(context.Background(), ref)
	require.NoError(t, err)
	require.Len(t, set.Sources, 2, "subtitle file and other episodes filtered out")
	assert.Equal(t, "https://download.example.com/A2", set.Sources[0].URL)
	assert.Equal(t, "1080p", set.Sources[0].Quality)
	assert.Equal(t, "720p", set.Sources[1].Quality)
	assert.Equal(t, int64(1073741824), set.Sources[1].Size)
	assert.Equal(t, int32(1), fake.logins.Load())
}

func TestFshareReloginOnExpiry(t *testing.T) {
	fake := &fshareFake{}
	server := newFshareTestServer(t, fake)
	client := newTestFshare(server, "secret")

	require.NoError(t, client.Login(context.Background()))
	fake.expireOne.Store(true)

	location, err := client.DownloadURL(context.Background(), "https://www.fshare.vn/file/B7")
	require.NoError(t, err)
	assert.Equal(t, "https://download.example.com/B7", location)
	assert.Equal(t, int32(2), fake.logins.Load())

	token, _ := client.session()
	assert.Equal(t, "tok2", token)
}

func TestFshareLoginFailure(t *testing.T) {
	server := newFshareTestServer(t, &fshareFake{})
	client := newTestFshare(server, "wrong")

	err := client.Login(context.Background())
	require.Error(t, err)
	assert.True(t, resolver.IsKind(err, resolver.KindAuthExpired))
}

func TestFshareNotConfigured(t *testing.T) {
	client := NewFshareClient(FshareCredentials{Email: "me@example.com"})
	ref := models.MediaRef{SourceIDs: map[string]string{"fshare": "https://www.fshare.vn/file/A"}}
	assert.False(t, client.Supports(ref))

	err := client.Login(context.Background())
	assert.True(t, resolver.IsKind(err, resolver.KindNotConfigured))
}

func TestIsVideoFile(t *testing.T) {
	assert.True(t, IsVideoFile("a.MKV"))
	assert.True(t, IsVideoFile("b.m2ts"))
	assert.False(t, IsVideoFile("c.srt"))
	assert.False(t, IsVideoFile("folder"))
}

func TestFshareListFolderPages(t *testing.T) {
	var pages []int
	mux := http.NewServeMux()
	mux.HandleFunc("/user/login", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"code":200,"token":"tok","session_id":"sid"}`))
	})
	mux.HandleFunc("/fileops/getFolderList", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "https://www.fshare.vn/folder/BIG", body["url"])
		assert.EqualValues(t, fsharePageSize, body["limit"])
		page := int(body["pageIndex"].(float64))
		pages = append(pages, page)

		count := fsharePageSize
		if page == 1 {
			count = 3
		}
		entries := make([]map[string]string, 0, count)
		for i := 0; i < count; i++ {
			n := page*fsharePageSize + i + 1
			entries = append(entries, map[string]string{
				"name":     fmt.Sprintf("Naruto.E%03d.720p.mkv", n),
				"linkcode": fmt.Sprintf("N%03d", n),
				"size":     "1048576",
				"type":     "1",
			})
		}
		_ = json.NewEncoder(w).Encode(entries)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	client := newTestFshare(server, "secret")

	entries, err := client.ListFolder(context.Background(), "https://www.fshare.vn/folder/BIG")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, pages, "a short page ends the listing")
	require.Len(t, entries, fsharePageSize+3)
	assert.Equal(t, "https://www.fshare.vn/file/N001", entries[0].URL)
	assert.Equal(t, "Naruto.E103.720p.mkv", entries[len(entries)-1].Name)
}
