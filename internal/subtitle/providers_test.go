package subtitle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alvarorichard/Gostream/internal/models"
	"github.com/alvarorichard/Gostream/internal/resolver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestSubDLSearch(t *testing.T) {
	var query map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = map[string]string{}
		for k := range r.URL.Query() {
			query[k] = r.URL.Query().Get(k)
		}
		if r.URL.Query().Get("tmdb_id") == "404" {
			writeJSON(w, map[string]any{"status": false, "error": "can't find movie or tv"})
			return
		}
		writeJSON(w, map[string]any{
			"status": true,
			"subtitles": []map[string]any{
				{"release_name": "The.Boys.S01E02.WEB", "lang": "EN", "language": "English", "url": "/subtitle/1-2.zip", "episode": 2},
				{"release_name": "The.Boys.S01E03.WEB", "lang": "EN", "language": "English", "url": "/subtitle/1-3.zip", "episode": 3},
				{"name": "vi.zip", "lang": "VI", "url": "subtitle/9-9.zip"},
			},
		})
	}))
	defer srv.Close()

	s := NewSubDL("key").WithBaseURLs(srv.URL, "https://dl.example/")
	ref := models.MediaRef{Title: "The Boys", TMDBID: 76479, Kind: models.KindTV, Season: 1, Episode: 2}

	subs, err := s.Search(context.Background(), ref, []string{"en", "vi"})
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "https://dl.example/subtitle/1-2.zip", subs[0].URL)
	assert.Equal(t, "en", subs[0].Lang)
	assert.Equal(t, "zip", subs[0].Format)
	assert.Equal(t, "vi", subs[1].Lang)
	assert.Equal(t, "vi.zip", subs[1].Label)

	assert.Equal(t, "76479", query["tmdb_id"])
	assert.Equal(t, "tv", query["type"])
	assert.Equal(t, "1", query["season_number"])
	assert.Equal(t, "EN,VI", query["languages"])

	ref.TMDBID = 404
	subs, err = s.Search(context.Background(), ref, nil)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestSubDLWithoutKey(t *testing.T) {
	_, err := NewSubDL("").Search(context.Background(), models.MediaRef{Title: "x"}, nil)
	assert.True(t, resolver.IsKind(err, resolver.KindNotConfigured))
}

func TestOpenSubtitles(t *testing.T) {
	var apiKey, downloads string
	mux := http.NewServeMux()
	mux.HandleFunc("/subtitles", func(w http.ResponseWriter, r *http.Request) {
		apiKey = r.Header.Get("Api-Key")
		assert.Equal(t, "0603", r.URL.Query().Get("imdb_id"))
		assert.Equal(t, "en,vi", r.URL.Query().Get("languages"))
		writeJSON(w, map[string]any{"data": []map[string]any{
			{"id": "1", "attributes": map[string]any{
				"language": "en", "release": "The.Matrix.1999.1080p",
				"files": []map[string]any{{"file_id": 42, "file_name": "matrix.srt"}},
			}},
			{"id": "2", "attributes": map[string]any{"language": "vi", "files": []map[string]any{}}},
			{"id": "3", "attributes": map[string]any{
				"language": "pt-BR", "foreign_parts_only": true,
				"files": []map[string]any{{"file_id": 43, "file_name": "forced"}},
			}},
		}})
	})
	mux.HandleFunc("/download", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body struct {
			FileID int `json:"file_id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		downloads += "x"
		if body.FileID == 43 {
			writeJSON(w, map[string]any{"message": "quota reached"})
			return
		}
		writeJSON(w, map[string]any{"link": "https://dl.example/matrix.srt", "remaining": 9})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	o := NewOpenSubtitles("os-key", "gostream v1").WithBaseURL(srv.URL)
	ref := models.MediaRef{Title: "The Matrix", IMDBID: "tt0603", Kind: models.KindMovie}

	subs, err := o.Search(context.Background(), ref, []string{"vi", "en"})
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "os-key", apiKey)
	assert.Equal(t, srv.URL+"/download?file_id=42", subs[0].URL)
	assert.Equal(t, "srt", subs[0].Format)
	assert.Equal(t, "pt", subs[1].Lang)
	assert.True(t, subs[1].Forced)

	link, err := o.ResolveLink(context.Background(), subs[0])
	require.NoError(t, err)
	assert.Equal(t, "https://dl.example/matrix.srt", link)

	_, err = o.ResolveLink(context.Background(), subs[1])
	assert.True(t, resolver.IsKind(err, resolver.KindRateLimited))
	assert.Equal(t, "xx", downloads)
}

func TestSubSource(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/searchMovie", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"success": true, "found": []map[string]any{
			{"title": "Dark", "linkName": "dark-2012", "type": "Movie", "releaseYear": 2012},
			{"title": "Dark", "linkName": "dark", "type": "TVSeries", "releaseYear": 2017},
		}})
	})
	mux.HandleFunc("/api/getMovie", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "dark", body["movieName"])
		assert.Equal(t, "season-2", body["season"])
		writeJSON(w, map[string]any{"subs": []map[string]any{
			{"subId": 7, "lang": "English", "releaseName": "Dark.S02E05.WEB"},
			{"subId": 8, "lang": "English", "releaseName": "Dark.S02E06.WEB"},
			{"subId": 9, "lang": "German", "releaseName": "Dark.S02E05.WEB"},
		}})
	})
	mux.HandleFunc("/api/getSub", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, float64(7), body["id"])
		writeJSON(w, map[string]any{"sub": map[string]any{"downloadToken": "tok/7"}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := NewSubSource(srv.URL + "/")
	ref := models.MediaRef{Title: "Dark", Year: 2017, Kind: models.KindTV, Season: 2, Episode: 5}

	subs, err := s.Search(context.Background(), ref, []string{"en"})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "en", subs[0].Lang)
	assert.Equal(t, "Dark.S02E05.WEB", subs[0].Label)

	link, err := s.ResolveLink(context.Background(), subs[0])
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/api/downloadSub/tok%2F7", link)
}

func TestSubSourceUnknownTitle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"success": true, "found": []map[string]any{}})
	}))
	defer srv.Close()

	subs, err := NewSubSource(srv.URL).Search(context.Background(), models.MediaRef{Title: "Nope"}, nil)
	require.NoError(t, err)
	assert.Empty(t, subs)
}
