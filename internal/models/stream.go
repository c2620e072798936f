package models

// StreamSource is one playable URL together with the headers the CDN needs
type StreamSource struct {
	URL      string            `json:"url"`
	Quality  string            `json:"quality"`
	Headers  map[string]string `json:"headers,omitempty"`
	IsM3U8   bool              `json:"is_m3u8,omitempty"`
	Provider string            `json:"provider,omitempty"`
	Label    string            `json:"label,omitempty"`
	Size     int64             `json:"size,omitempty"`
}

// Subtitle is a subtitle track reachable by URL
type Subtitle struct {
	URL      string `json:"url"`
	Lang     string `json:"lang"`
	Label    string `json:"label,omitempty"`
	Format   string `json:"format,omitempty"`
	Provider string `json:"provider,omitempty"`
	Forced   bool   `json:"forced,omitempty"`
}

// StreamSet is what a provider resolves a MediaRef into
type StreamSet struct {
	Provider  string         `json:"provider"`
	Sources   []StreamSource `json:"sources"`
	Subtitles []Subtitle     `json:"subtitles,omitempty"`
}

// Empty reports whether the set has nothing to play
func (s *StreamSet) Empty() bool {
	return s == nil || len(s.Sources) == 0
}

// Merge appends the sources and subtitles of other, skipping URLs already
// present.
func (s *StreamSet) Merge(other *StreamSet) {
	if other == nil {
		return
	}
	seen := make(map[string]bool, len(s.Sources))
	for _, src := range s.Sources {
		seen[src.URL] = true
	}
	for _, src := range other.Sources {
		if !seen[src.URL] {
			seen[src.URL] = true
			s.Sources = append(s.Sources, src)
		}
	}
	s.AddSubtitles(other.Subtitles...)
}

// AddSubtitles appends subtitles, skipping URLs already present
func (s *StreamSet) AddSubtitles(subs ...Subtitle) {
	seen := make(map[string]bool, len(s.Subtitles))
	for _, sub := range s.Subtitles {
		seen[sub.URL] = true
	}
	for _, sub := range subs {
		if sub.URL == "" || seen[sub.URL] {
			continue
		}
		seen[sub.URL] = true
		s.Subtitles = append(s.Subtitles, sub)
	}
}
