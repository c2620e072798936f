package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvarorichard/Gostream/internal/models"
	"github.com/alvarorichard/Gostream/internal/resolver"
)

const anime47ListingFixture = `<html><body>
<ul class="last-film-box">
  <li class="movie-item">
    <a href="/phim/frieren/m1234.html" title="Frieren">
      <div class="public-film-item-thumb" style="background-image:url('/img/frieren.jpg')"></div>
      <div class="movie-title-1">Frieren</div>
      <span class="movie-title-2">Sousou no Frieren</span>
      <span class="movie-year">2023</span>
      <span class="ribbon">28/28</span>
    </a>
  </li>
  <li class="movie-item">
    <a href="/phim/one-piece/m1.html"><img data-src="https://cdn.example.com/op.jpg" src="data:image/gif;base64,R0lG"></a>
    <div class="movie-title-1">One Piece</div>
  </li>
  <li class="movie-item"><a href="/broken"></a></li>
</ul>
<div class="pagination"><a>1</a><a>2</a><a>3</a></div>
</body></html>`

const anime47DetailFixture = `<html><head><title>Frieren</title></head><body>
<h1 class="movie-title"><span class="title-1">Frieren</span><span class="title-2">Sousou no Frieren</span></h1>
<div class="movie-l-img"><img src="/img/frieren-big.jpg"></div>
<dl class="movie-dl">
  <dt>Năm:</dt><dd>Mùa Thu 2023</dd>
  <dt>Thể loại:</dt><dd><a>Fantasy</a>, <a>Adventure</a></dd>
  <dt>Trạng thái:</dt><dd>Hoàn thành</dd>
</dl>
<div id="film-content">An elf mage outlives her party.</div>
<div id="list_episodes">
  <a href="/xem-phim/frieren/1.html">1</a>
  <a href="/xem-phim/frieren/2.html">2</a>
  <a href="/xem-phim/frieren/2.html">2</a>
</div>
</body></html>`

func newAnime47TestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/tim-kiem/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "frieren", r.URL.Query().Get("keyword"))
		_, _ = w.Write([]byte(anime47ListingFixture))
	})
	mux.HandleFunc("/moi-cap-nhat/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(anime47ListingFixture))
	})
	mux.HandleFunc("/phim/frieren/m1234.html", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(anime47DetailFixture))
	})
	mux.HandleFunc("/blocked", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head><title>Just a moment...</title></head></html>`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestAnime47Search(t *testing.T) {
	server := newAnime47TestServer(t)
	client := NewAnime47Client(server.URL)

	page, err := client.Search(context.Background(), "frieren", 1)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)

	first := page.Items[0]
	assert.Equal(t, "anime47:phim/frieren/m1234.html", first.Key)
	assert.Equal(t, "Sousou no Frieren", first.OriginalTitle)
	assert.Equal(t, 2023, first.Year)
	assert.Equal(t, models.KindAnime, first.Kind)
	assert.Equal(t, server.URL+"/img/frieren.jpg", first.Poster)
	assert.Equal(t, "28/28", first.EpisodeCurrent)

	assert.Equal(t, "https://cdn.example.com/op.jpg", page.Items[1].Poster, "lazy image wins over placeholder")
	assert.Equal(t, 3, page.TotalPages)
	assert.True(t, page.HasNext)
}

func TestAnime47Detail(t *testing.T) {
	server := newAnime47TestServer(t)
	client := NewAnime47Client(server.URL)

	item, err := client.Detail(context.Background(), "phim/frieren/m1234.html")
	require.NoError(t, err)
	assert.Equal(t, "Frieren", item.Title)
	assert.Equal(t, 2023, item.Year)
	assert.Equal(t, []string{"Fantasy", "Adventure"}, item.Genres)
	assert.Equal(t, "Hoàn thành", item.EpisodeCurrent)
	assert.Equal(t, server.URL+"/img/frieren-big.jpg", item.Poster)

	require.Len(t, item.Episodes, 2, "duplicate links collapse")
	assert.Equal(t, 2, item.Episodes[1].Number)
	assert.Equal(t, server.URL+"/xem-phim/frieren/2.html", item.Episodes[1].Links["page"])
}

func TestAnime47ChallengePage(t *testing.T) {
	server := newAnime47TestServer(t)
	client := NewAnime47Client(server.URL)

	_, err := client.Detail(context.Background(), "blocked")
	require.Error(t, err)
	assert.True(t, resolver.IsKind(err, resolver.KindBlocked))
}
