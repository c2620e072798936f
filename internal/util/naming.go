package util

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonAlnumRe      = regexp.MustCompile(`[^a-z0-9]+`)
	invalidFileRe   = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]+`)
	multiSpaceRe    = regexp.MustCompile(`\s{2,}`)
	seasonEpisodeRe = regexp.MustCompile(`(?i)s(\d{1,2})[ ._-]?e(\d{1,4})`)
	crossEpisodeRe  = regexp.MustCompile(`(?i)\b(\d{1,2})x(\d{1,4})\b`)
	looseEpisodeRe  = regexp.MustCompile(`(?i)(?:\b|_)(?:ep?|episode|t[aậ]p)[ ._-]?(\d{1,4})\b`)
	qualityRe       = regexp.MustCompile(`(?i)\b(2160|1440|1080|720|576|480|360|240)[pi]?\b`)
)

// NormalizeTitle folds a title to lowercase ASCII words so titles coming from
// Vietnamese and English catalogs compare equal.
func NormalizeTitle(title string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.ToLower(title))
	if err != nil {
		folded = strings.ToLower(title)
	}
	folded = strings.ReplaceAll(folded, "đ", "d")
	folded = nonAlnumRe.ReplaceAllString(folded, " ")
	return strings.TrimSpace(multiSpaceRe.ReplaceAllString(folded, " "))
}

// SanitizeForFilename strips characters that are invalid in file names
func SanitizeForFilename(name string) string {
	clean := invalidFileRe.ReplaceAllString(name, " ")
	clean = multiSpaceRe.ReplaceAllString(clean, " ")
	return strings.Trim(strings.TrimSpace(clean), ".")
}

// EpisodeFilename builds "Title - s01e03.ext". Movies (season and episode 0)
// get "Title.ext".
func EpisodeFilename(title string, season, episode int, ext string) string {
	base := SanitizeForFilename(title)
	if base == "" {
		base = "video"
	}
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "mp4"
	}
	if season == 0 && episode == 0 {
		return fmt.Sprintf("%s.%s", base, ext)
	}
	return fmt.Sprintf("%s - s%02de%02d.%s", base, season, episode, ext)
}

// ParseEpisodeMarker extracts season and episode numbers from a file or
// episode name. Season is 0 when the name only carries an episode number.
func ParseEpisodeMarker(name string) (season, episode int, ok bool) {
	if m := seasonEpisodeRe.FindStringSubmatch(name); m != nil {
		season, _ = strconv.Atoi(m[1])
		episode, _ = strconv.Atoi(m[2])
		return season, episode, true
	}
	if m := crossEpisodeRe.FindStringSubmatch(name); m != nil {
		season, _ = strconv.Atoi(m[1])
		episode, _ = strconv.Atoi(m[2])
		return season, episode, true
	}
	if m := looseEpisodeRe.FindStringSubmatch(name); m != nil {
		episode, _ = strconv.Atoi(m[1])
		return 0, episode, true
	}
	return 0, 0, false
}

// MatchesEpisode reports whether name refers to the given episode. A name
// without a season marker matches any season.
func MatchesEpisode(name string, season, episode int) bool {
	s, e, ok := ParseEpisodeMarker(name)
	if !ok || e != episode {
		return false
	}
	return s == 0 || season == 0 || s == season
}

// ParseQuality normalizes a quality label ("FHD 1080", "720p", "4K") to the
// "<height>p" form, or "auto" when none is recognizable.
func ParseQuality(label string) string {
	lower := strings.ToLower(label)
	switch {
	case strings.Contains(lower, "4k") || strings.Contains(lower, "uhd"):
		return "2160p"
	case strings.Contains(lower, "org"):
		return "original"
	}
	if m := qualityRe.FindStringSubmatch(lower); m != nil {
		return m[1] + "p"
	}
	switch {
	case strings.Contains(lower, "fhd"):
		return "1080p"
	case strings.Contains(lower, "hd"):
		return "720p"
	case strings.Contains(lower, "sd"):
		return "480p"
	}
	return "auto"
}

// QualityRank orders normalized qualities. Unknown qualities rank lowest.
func QualityRank(quality string) int {
	switch ParseQuality(quality) {
	case "original":
		return 3000
	case "auto":
		return 0
	}
	height, err := strconv.Atoi(strings.TrimSuffix(ParseQuality(quality), "p"))
	if err != nil {
		return 0
	}
	return height
}
