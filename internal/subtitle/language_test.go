package subtitle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeLanguage(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"English", "en"},
		{"en", "en"},
		{"eng", "en"},
		{"EN_us", "en"},
		{"pt-BR", "pt"},
		{"Brazilian Portuguese", "pt"},
		{"pob", "pt"},
		{"Tiếng Việt", "vi"},
		{"vie", "vi"},
		{"English - SDH", "en"},
		{"Spanish (Latin America)", "es"},
		{"fre", "fr"},
		{"", ""},
		{"Klingonese", "klingonese"},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeLanguage(tc.in))
		})
	}
}

func TestLanguageName(t *testing.T) {
	assert.Equal(t, "English", LanguageName("en"))
	assert.Equal(t, "Vietnamese", LanguageName("vi"))
	assert.Equal(t, "???", LanguageName("???"))
}

func TestFormatFromURL(t *testing.T) {
	assert.Equal(t, "vtt", FormatFromURL("https://cdn.example/subs/en.vtt?token=1"))
	assert.Equal(t, "srt", FormatFromURL("Movie.2023.SRT"))
	assert.Equal(t, "zip", FormatFromURL("/subtitle/123-456.zip"))
	assert.Equal(t, "ass", FormatFromURL("ep01.ass#frag"))
	assert.Equal(t, "", FormatFromURL("https://api.example/download?file_id=9"))
}
