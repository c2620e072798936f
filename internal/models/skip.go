package models

// Skip represents a skip interval in seconds
type Skip struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Valid reports whether the interval is non-empty
func (s Skip) Valid() bool {
	return s.End > s.Start && s.Start >= 0
}

// SkipTimes holds the intro and outro intervals of an episode
type SkipTimes struct {
	Intro Skip `json:"intro"`
	Outro Skip `json:"outro"`
}

// Empty reports whether neither interval is set
func (s SkipTimes) Empty() bool {
	return !s.Intro.Valid() && !s.Outro.Valid()
}
