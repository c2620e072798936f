package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvarorichard/Gostream/internal/models"
	"github.com/alvarorichard/Gostream/internal/resolver"
)

const ophimSearchFixture = `{
  "status": "success",
  "data": {
    "APP_DOMAIN_CDN_IMAGE": "https://img.example.com",
    "items": [
      {"name": "Những Chàng Trai", "origin_name": "The Boys", "slug": "the-boys", "year": 2019,
       "type": "series", "poster_url": "the-boys-poster.jpg", "quality": "FHD",
       "tmdb": {"id": "76479", "type": "tv"}, "imdb": {"id": "tt1190634"},
       "country": [{"slug": "au-my"}]},
      {"name": "Missing slug", "slug": ""}
    ],
    "params": {"pagination": {"currentPage": 1, "totalItems": 45, "totalItemsPerPage": 24}}
  }
}`

const ophimLatestFixture = `{
  "status": true,
  "items": [{"name": "Dune", "origin_name": "Dune", "slug": "dune", "year": 2021, "thumb_url": "https://cdn.example.com/dune.jpg"}],
  "pathImage": "https://img.ophim.live/uploads/movies/",
  "pagination": {"currentPage": 2, "totalPages": 2}
}`

const ophimDetailFixture = `{
  "status": true,
  "movie": {
    "name": "Những Chàng Trai", "origin_name": "The Boys", "slug": "the-boys", "year": 2019,
    "type": "series", "quality": "FHD", "content": "<p>Supes <b>gone</b> bad.</p>",
    "tmdb": {"id": "76479", "season": 1},
    "category": [{"name": "Hành Động"}, {"name": "Hài"}]
  },
  "episodes": [
    {"server_name": "Vietsub #1", "server_data": [
      {"name": "Tập 01", "slug": "tap-01", "link_m3u8": "https://s1.example.com/1.m3u8", "link_embed": "https://s1.example.com/e/1"},
      {"name": "Tập 02", "slug": "tap-02", "link_m3u8": "https://s1.example.com/2.m3u8"}
    ]},
    {"server_name": "Lồng Tiếng #1", "server_data": [
      {"name": "Tập 02", "slug": "tap-02", "link_m3u8": "https://s2.example.com/2.m3u8"},
      {"name": "Trailer", "slug": "trailer", "link_m3u8": ""}
    ]}
  ]
}`

func newOPhimTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/api/tim-kiem", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "the boys", r.URL.Query().Get("keyword"))
		_, _ = w.Write([]byte(ophimSearchFixture))
	})
	mux.HandleFunc("/danh-sach/phim-moi-cap-nhat", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(ophimLatestFixture))
	})
	mux.HandleFunc("/phim/the-boys", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(ophimDetailFixture))
	})
	mux.HandleFunc("/phim/gone", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status": false, "msg": "Movie not found"}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestOPhimSearch(t *testing.T) {
	server := newOPhimTestServer(t)
	client := NewOPhimClient(server.URL)

	page, err := client.Search(context.Background(), "the boys", 1)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)

	item := page.Items[0]
	assert.Equal(t, "ophim:the-boys", item.Key)
	assert.Equal(t, "The Boys", item.OriginalTitle)
	assert.Equal(t, models.KindTV, item.Kind)
	assert.Equal(t, 76479, item.TMDBID)
	assert.Equal(t, "tt1190634", item.IMDBID)
	assert.Equal(t, "au-my", item.Country)
	assert.Equal(t, "https://img.example.com/uploads/movies/the-boys-poster.jpg", item.Poster)

	assert.Equal(t, 2, page.TotalPages)
	assert.True(t, page.HasNext)
}

func TestOPhimLatest(t *testing.T) {
	server := newOPhimTestServer(t)
	client := NewOPhimClient(server.URL)

	page, err := client.Latest(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "https://cdn.example.com/dune.jpg", page.Items[0].Poster)
	assert.Empty(t, page.Items[0].OriginalTitle, "same as title")
	assert.Equal(t, models.KindMovie, page.Items[0].Kind)
	assert.False(t, page.HasNext)
}

func TestOPhimDetail(t *testing.T) {
	server := newOPhimTestServer(t)
	client := NewOPhimClient(server.URL)

	item, err := client.Detail(context.Background(), "the-boys")
	require.NoError(t, err)
	assert.Equal(t, "Supes gone bad.", item.Overview)
	assert.Equal(t, []string{"Hành Động", "Hài"}, item.Genres)
	require.Len(t, item.Episodes, 3, "trailer without links is dropped")

	ep := item.Episodes[0]
	assert.Equal(t, 1, ep.Number)
	assert.Equal(t, 1, ep.Season)
	assert.Equal(t, "Vietsub #1", ep.Server)
	assert.Equal(t, "ophim:the-boys/tap-01@Vietsub #1", ep.Key)
	assert.Equal(t, "https://s1.example.com/e/1", ep.Links["embed"])
}

func TestOPhimDetailNotFound(t *testing.T) {
	server := newOPhimTestServer(t)
	client := NewOPhimClient(server.URL)

	_, err := client.Detail(context.Background(), "gone")
	require.Error(t, err)
	assert.True(t, resolver.IsKind(err, resolver.KindNotFound))
}

func TestOPhimResolve(t *testing.T) {
	server := newOPhimTestServer(t)
	client := NewOPhimClient(server.URL)

	ref := models.MediaRef{Title: "The Boys", Season: 1, Episode: 2,
		SourceIDs: map[string]string{"ophim": "the-boys"}}
	require.True(t, client.Supports(ref))
	assert.False(t, NewKKPhimClient(server.URL).Supports(ref))

	set, err := client.Resolve(context.Background(), ref)
	require.NoError(t, err)
	require.Len(t, set.Sources, 2, "one source per server")
	assert.Equal(t, "https://s1.example.com/2.m3u8", set.Sources[0].URL)
	assert.Equal(t, "Lồng Tiếng #1", set.Sources[1].Label)
	assert.True(t, set.Sources[0].IsM3U8)
	assert.Equal(t, "1080p", set.Sources[0].Quality)

	ref.Episode = 9
	_, err = client.Resolve(context.Background(), ref)
	var pe *resolver.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, resolver.KindNotFound, pe.Kind)
}

func TestOPhimCDN(t *testing.T) {
	ophim := NewOPhimClient("http://x")
	kk := NewKKPhimClient("http://x")
	assert.Equal(t, "https://img.ophim.live/uploads/movies/", ophim.cdnFrom(""))
	assert.Equal(t, "https://a.com/uploads/movies/", ophim.cdnFrom("https://a.com"))
	assert.Equal(t, "https://phimimg.com/", kk.cdnFrom("https://phimimg.com"))
	assert.Equal(t, "https://phimimg.com/upload/a.jpg", kk.imageURL("", "upload/a.jpg"))
}
