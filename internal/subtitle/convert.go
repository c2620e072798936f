package subtitle

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	srtTimeRe   = regexp.MustCompile(`(\d{1,2}:\d{2}:\d{2})[,.](\d{1,3})\s*-->\s*(\d{1,2}:\d{2}:\d{2})[,.](\d{1,3})`)
	assTagRe    = regexp.MustCompile(`\{[^}]*\}`)
	srtIndexRe  = regexp.MustCompile(`^\d+$`)
	utf8BOM     = []byte{0xEF, 0xBB, 0xBF}
	utf16LEBOM  = []byte{0xFF, 0xFE}
	utf16BEBOM  = []byte{0xFE, 0xFF}
	webvttMagic = []byte("WEBVTT")
)

// DecodeText returns data as UTF-8 text. BOMs are stripped and UTF-16 is
// transcoded; bytes that are not valid UTF-8 are read as Windows-1252.
func DecodeText(data []byte) (string, error) {
	switch {
	case bytes.HasPrefix(data, utf8BOM):
		data = data[len(utf8BOM):]
	case bytes.HasPrefix(data, utf16LEBOM), bytes.HasPrefix(data, utf16BEBOM):
		dec := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
		out, _, err := transform.Bytes(dec, data)
		if err != nil {
			return "", fmt.Errorf("decode utf-16: %w", err)
		}
		return string(out), nil
	}

	if utf8.Valid(data) {
		return string(data), nil
	}
	out, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), data)
	if err != nil {
		return "", fmt.Errorf("decode windows-1252: %w", err)
	}
	return string(out), nil
}

// DetectFormat sniffs the format of a decoded track
func DetectFormat(text string) string {
	trimmed := strings.TrimSpace(text)
	switch {
	case strings.HasPrefix(trimmed, string(webvttMagic)):
		return "vtt"
	case strings.Contains(trimmed, "[Script Info]") || strings.Contains(trimmed, "[Events]"):
		return "ass"
	case srtTimeRe.MatchString(trimmed):
		return "srt"
	}
	return ""
}

// ToVTT converts a decoded track to WebVTT. format may be empty, in which
// case it is sniffed.
func ToVTT(text, format string) (string, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	detected := DetectFormat(text)
	if detected != "" {
		format = detected
	}
	switch format {
	case "vtt":
		return text, nil
	case "srt":
		return SRTToVTT(text), nil
	case "ass", "ssa":
		return ASSToVTT(text)
	}
	return "", fmt.Errorf("unrecognized subtitle format")
}

// SRTToVTT rewrites an SRT track as WebVTT: the header is added, cue
// numbers dropped and comma decimal separators replaced.
func SRTToVTT(text string) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")

	for _, block := range splitBlocks(text) {
		lines := strings.Split(block, "\n")
		if len(lines) > 0 && srtIndexRe.MatchString(strings.TrimSpace(lines[0])) {
			lines = lines[1:]
		}
		if len(lines) == 0 {
			continue
		}
		m := srtTimeRe.FindStringSubmatch(lines[0])
		if m == nil {
			continue
		}
		fmt.Fprintf(&b, "%s --> %s\n", vttTime(m[1], m[2]), vttTime(m[3], m[4]))
		for _, l := range lines[1:] {
			b.WriteString(l)
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func splitBlocks(text string) []string {
	var blocks []string
	for _, blk := range strings.Split(strings.TrimSpace(text), "\n\n") {
		if blk = strings.Trim(blk, "\n"); blk != "" {
			blocks = append(blocks, blk)
		}
	}
	return blocks
}

// vttTime pads "1:02:03" + "5" to "01:02:03.500"
func vttTime(hms, frac string) string {
	if len(hms) == 7 {
		hms = "0" + hms
	}
	for len(frac) < 3 {
		frac += "0"
	}
	return hms + "." + frac
}

// ASSToVTT converts the Dialogue lines of an ASS/SSA script. Override tags
// are removed and \N line breaks kept.
func ASSToVTT(text string) (string, error) {
	var (
		b        strings.Builder
		inEvents bool
		fields   []string
		cues     int
	)
	b.WriteString("WEBVTT\n\n")

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "["):
			inEvents = strings.EqualFold(line, "[Events]")
			continue
		case !inEvents:
			continue
		case strings.HasPrefix(line, "Format:"):
			fields = splitFields(strings.TrimPrefix(line, "Format:"), -1)
			continue
		case !strings.HasPrefix(line, "Dialogue:"):
			continue
		}

		if len(fields) == 0 {
			fields = []string{"layer", "start", "end", "style", "name", "marginl", "marginr", "marginv", "effect", "text"}
		}
		values := splitFields(strings.TrimPrefix(line, "Dialogue:"), len(fields))
		if len(values) < len(fields) {
			continue
		}
		cue := map[string]string{}
		for i, f := range fields {
			cue[strings.ToLower(f)] = values[i]
		}

		start, ok1 := assTime(cue["start"])
		end, ok2 := assTime(cue["end"])
		if !ok1 || !ok2 {
			continue
		}
		body := assTagRe.ReplaceAllString(cue["text"], "")
		body = strings.NewReplacer(`\N`, "\n", `\n`, "\n", `\h`, " ").Replace(body)
		if strings.TrimSpace(body) == "" {
			continue
		}
		fmt.Fprintf(&b, "%s --> %s\n%s\n\n", start, end, body)
		cues++
	}

	if cues == 0 {
		return "", fmt.Errorf("no dialogue lines in script")
	}
	return b.String(), nil
}

// splitFields splits a comma separated ASS line into at most n trimmed
// fields; the last field keeps its commas.
func splitFields(s string, n int) []string {
	parts := strings.SplitN(s, ",", n)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// assTime converts "0:01:02.50" (centiseconds) to "00:01:02.500"
func assTime(s string) (string, bool) {
	hms, cs, ok := strings.Cut(strings.TrimSpace(s), ".")
	if !ok {
		return "", false
	}
	parts := strings.Split(hms, ":")
	if len(parts) != 3 {
		return "", false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	sec, err3 := strconv.Atoi(parts[2])
	frac, err4 := strconv.Atoi(cs)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return "", false
	}
	ms := frac * 10
	if len(cs) == 3 {
		ms = frac
	}
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, sec, ms), true
}
