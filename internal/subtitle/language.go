// Package subtitle finds external subtitles for a MediaRef and converts
// downloaded tracks to WebVTT.
package subtitle

import (
	"path"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// languageAliases covers names and ISO 639-2/B codes that language.Parse
// does not understand.
var languageAliases = map[string]string{
	"english":              "en",
	"vietnamese":           "vi",
	"tiếng việt":           "vi",
	"tieng viet":           "vi",
	"spanish":              "es",
	"español":              "es",
	"castilian":            "es",
	"french":               "fr",
	"german":               "de",
	"italian":              "it",
	"portuguese":           "pt",
	"brazilian":            "pt",
	"brazilian portuguese": "pt",
	"russian":              "ru",
	"japanese":             "ja",
	"korean":               "ko",
	"chinese":              "zh",
	"chinese bg code":      "zh",
	"big 5 code":           "zh",
	"arabic":               "ar",
	"hindi":                "hi",
	"indonesian":           "id",
	"malay":                "ms",
	"thai":                 "th",
	"turkish":              "tr",
	"dutch":                "nl",
	"polish":               "pl",
	"swedish":              "sv",
	"norwegian":            "no",
	"danish":               "da",
	"finnish":              "fi",
	"greek":                "el",
	"hebrew":               "he",
	"romanian":             "ro",
	"hungarian":            "hu",
	"czech":                "cs",
	"ukrainian":            "uk",
	"persian":              "fa",
	"farsi/persian":        "fa",
	"filipino":             "tl",
	"fre":                  "fr",
	"ger":                  "de",
	"chi":                  "zh",
	"dut":                  "nl",
	"gre":                  "el",
	"per":                  "fa",
	"rum":                  "ro",
	"cze":                  "cs",
	"pob":                  "pt",
	"pb":                   "pt",
	"vn":                   "vi",
	"jp":                   "ja",
	"kr":                   "ko",
	"cn":                   "zh",
}

// NormalizeLanguage maps a language name, ISO 639-1/639-2 code or region
// tag ("pt-BR", "en_US") to its ISO 639-1 code. Qualifiers like
// "English - SDH" or "Spanish (Latin America)" are ignored. Unknown values
// are returned lowercased.
func NormalizeLanguage(s string) string {
	lower := strings.ToLower(strings.TrimSpace(s))
	if lower == "" {
		return ""
	}
	if code, ok := languageAliases[lower]; ok {
		return code
	}

	head := lower
	if i := strings.IndexAny(head, "(-[,"); i > 0 && !isTag(head) {
		head = strings.TrimSpace(head[:i])
	}
	if code, ok := languageAliases[head]; ok {
		return code
	}
	if f := strings.Fields(head); len(f) > 1 {
		if code, ok := languageAliases[f[0]]; ok {
			return code
		}
	}

	tag, err := language.Parse(strings.ReplaceAll(head, "_", "-"))
	if err != nil {
		return lower
	}
	base, conf := tag.Base()
	if conf == language.No {
		return lower
	}
	return base.String()
}

// isTag reports whether s looks like a BCP 47 tag ("pt-br", "zh-hant")
// rather than a name with a qualifier.
func isTag(s string) bool {
	if strings.Contains(s, " ") {
		return false
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '-' || r == '_' })
	return len(parts) > 1 && len(parts[0]) <= 3
}

// LanguageName returns the English name of an ISO code, or the code itself
func LanguageName(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Languages().Name(tag); name != "" {
		return name
	}
	return code
}

// FormatFromURL guesses the track format from the file extension of a URL
// or file name: "vtt", "srt", "ass", "ssa" or "zip". Empty when unknown.
func FormatFromURL(rawURL string) string {
	p := rawURL
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	switch ext := strings.ToLower(strings.TrimPrefix(path.Ext(p), ".")); ext {
	case "vtt", "srt", "ass", "ssa", "zip":
		return ext
	case "webvtt":
		return "vtt"
	}
	return ""
}
