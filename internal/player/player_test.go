package player

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alvarorichard/Gostream/internal/models"
)

func TestBuildArgs(t *testing.T) {
	args := buildArgs("https://cdn.example/v.m3u8", "/tmp/sock", Options{
		Title:         "Dark S01E01",
		Headers:       map[string]string{"Referer": "https://ophim.example/", "Accept": "a,b"},
		SubtitleFiles: []string{"/tmp/dark.vi.vtt"},
		Start:         125,
		Args:          []string{"--fs"},
	})

	assert.Equal(t, []string{
		"--no-terminal",
		"--quiet",
		"--input-ipc-server=/tmp/sock",
		"--force-media-title=Dark S01E01",
		`--http-header-fields=Accept: a\,b,Referer: https://ophim.example/`,
		"--sub-file=/tmp/dark.vi.vtt",
		"--start=125",
		"--fs",
		"https://cdn.example/v.m3u8",
	}, args)

	minimal := buildArgs("file.mp4", "s", Options{})
	assert.Equal(t, []string{"--no-terminal", "--quiet", "--input-ipc-server=s", "file.mp4"}, minimal)
}

func TestSkipTarget(t *testing.T) {
	st := models.SkipTimes{
		Intro: models.Skip{Start: 30, End: 120},
		Outro: models.Skip{Start: 1300, End: 1400},
	}
	done := map[string]bool{}

	_, _, ok := skipTarget(10, st, done)
	assert.False(t, ok)

	name, to, ok := skipTarget(30, st, done)
	assert.True(t, ok)
	assert.Equal(t, "intro", name)
	assert.Equal(t, 120, to)

	_, _, ok = skipTarget(120, st, done)
	assert.False(t, ok, "end is exclusive")

	done["intro"] = true
	_, _, ok = skipTarget(60, st, done)
	assert.False(t, ok, "a marker is skipped once")

	name, to, ok = skipTarget(1350.5, st, done)
	assert.True(t, ok)
	assert.Equal(t, "outro", name)
	assert.Equal(t, 1400, to)

	_, _, ok = skipTarget(50, models.SkipTimes{Intro: models.Skip{Start: 90, End: 10}}, map[string]bool{})
	assert.False(t, ok)
}

func TestStartWithoutBinary(t *testing.T) {
	_, err := Start(t.Context(), "file.mp4", Options{Binary: "gostream-missing-mpv-binary"})
	assert.ErrorIs(t, err, ErrNotInstalled)
}
