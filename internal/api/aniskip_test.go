package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAniSkipResponse(t *testing.T) {
	body := []byte(`{"found":true,"results":[
		{"interval":{"start_time":89.6,"end_time":179.4},"skip_type":"op"},
		{"interval":{"start_time":1320.2,"end_time":1410.9},"skip_type":"ed"},
		{"interval":{"start_time":1,"end_time":2},"skip_type":"recap"}
	]}`)

	st, found, err := ParseAniSkipResponse(body)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 90, st.Intro.Start)
	assert.Equal(t, 179, st.Intro.End)
	assert.Equal(t, 1320, st.Outro.Start)
	assert.Equal(t, 1411, st.Outro.End)

	_, found, err = ParseAniSkipResponse([]byte(`{"found":false,"results":[]}`))
	require.NoError(t, err)
	assert.False(t, found)

	_, _, err = ParseAniSkipResponse(nil)
	assert.Error(t, err)
}

func TestAniSkipClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/21/1":
			assert.Equal(t, []string{"op", "ed"}, r.URL.Query()["types"])
			_, _ = w.Write([]byte(`{"found":true,"results":[{"interval":{"start_time":10,"end_time":100},"skip_type":"op"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"found":false,"results":[]}`))
		}
	}))
	defer srv.Close()

	client := NewAniSkipClient().WithBaseURL(srv.URL)
	ctx := context.Background()

	st, found, err := client.SkipTimes(ctx, 21, 1)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 100, st.Intro.End)

	_, found, err = client.SkipTimes(ctx, 21, 999)
	require.NoError(t, err)
	assert.False(t, found)

	_, _, err = client.SkipTimes(ctx, 0, 1)
	assert.Error(t, err)
}

func TestRoundTime(t *testing.T) {
	assert.Equal(t, 89.57, RoundTime(89.5678, 2))
	assert.Equal(t, 90.0, RoundTime(89.5, 0))
}
