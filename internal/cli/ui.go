package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/huh/spinner"
	"github.com/ktr0731/go-fuzzyfinder"

	"github.com/alvarorichard/Gostream/internal/util"
	"github.com/alvarorichard/Gostream/pkg/gostream"
)

// ErrCancelled is returned when the user aborts a picker
var ErrCancelled = errors.New("selection cancelled")

// withSpinner runs action behind a spinner on terminals and directly otherwise
func (a *app) withSpinner(title string, action func()) {
	if !a.interactive {
		action()
		return
	}
	if err := spinner.New().Title(title).Type(spinner.Dots).Action(action).Run(); err != nil {
		util.Debug("Spinner failed", "error", err)
	}
}

// confirm asks a yes/no question. Non-interactive sessions answer def.
func (a *app) confirm(title string, def bool) (bool, error) {
	if !a.interactive {
		return def, nil
	}
	answer := def
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Value(&answer),
		),
	)
	if err := form.Run(); err != nil {
		return false, fmt.Errorf("failed to show prompt: %w", err)
	}
	return answer, nil
}

// pickMedia lets the user choose one of items with the fuzzy finder.
// Outside a terminal the first item is used.
func (a *app) pickMedia(items []gostream.Media) (*gostream.Media, error) {
	if len(items) == 0 {
		return nil, errors.New("no results")
	}
	if !a.interactive || len(items) == 1 {
		return &items[0], nil
	}

	idx, err := fuzzyfinder.Find(
		items,
		func(i int) string {
			return fmt.Sprintf("%s [%s]", items[i].DisplayTitle(), items[i].Source)
		},
		fuzzyfinder.WithPromptString("Select > "),
		fuzzyfinder.WithPreviewWindow(func(i, w, _ int) string {
			if i < 0 {
				return ""
			}
			return mediaPreview(items[i], w/2)
		}),
	)
	if errors.Is(err, fuzzyfinder.ErrAbort) {
		return nil, ErrCancelled
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select with go-fuzzyfinder: %w", err)
	}
	return &items[idx], nil
}

// pickEpisode lets the user choose an episode of item
func (a *app) pickEpisode(item *gostream.Media) (*gostream.Episode, error) {
	eps := item.Episodes
	if len(eps) == 0 {
		return nil, fmt.Errorf("%s has no episodes", item.Title)
	}
	if !a.interactive || len(eps) == 1 {
		return &eps[0], nil
	}

	idx, err := fuzzyfinder.Find(
		eps,
		func(i int) string { return episodeLabel(eps[i]) },
		fuzzyfinder.WithPromptString("Select the episode > "),
	)
	if errors.Is(err, fuzzyfinder.ErrAbort) {
		return nil, ErrCancelled
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select episode with go-fuzzyfinder: %w", err)
	}
	return &eps[idx], nil
}

func mediaPreview(m gostream.Media, width int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", m.DisplayTitle())
	if m.Kind != "" {
		fmt.Fprintf(&b, "Kind: %s\n", m.Kind)
	}
	if m.Country != "" {
		fmt.Fprintf(&b, "Country: %s\n", m.Country)
	}
	if m.EpisodeCurrent != "" {
		fmt.Fprintf(&b, "Episodes: %s\n", m.EpisodeCurrent)
	}
	if m.Quality != "" {
		fmt.Fprintf(&b, "Quality: %s %s\n", m.Quality, m.Lang)
	}
	if m.Overview != "" {
		fmt.Fprintf(&b, "\n%s\n", wrap(m.Overview, max(width, 20)))
	}
	return b.String()
}

func episodeLabel(ep gostream.Episode) string {
	label := fmt.Sprintf("Episode %d", ep.Number)
	if ep.Season > 0 {
		label = fmt.Sprintf("S%02dE%02d", ep.Season, ep.Number)
	}
	if ep.Name != "" && ep.Name != fmt.Sprint(ep.Number) {
		label += " - " + ep.Name
	}
	return label
}

// wrap breaks text into lines of at most width runes on word boundaries
func wrap(text string, width int) string {
	var b strings.Builder
	lineLen := 0
	for _, word := range strings.Fields(text) {
		n := len([]rune(word))
		if lineLen > 0 && lineLen+1+n > width {
			b.WriteString("\n")
			lineLen = 0
		} else if lineLen > 0 {
			b.WriteString(" ")
			lineLen++
		}
		b.WriteString(word)
		lineLen += n
	}
	return b.String()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printMediaList(w io.Writer, items []gostream.Media) {
	for i, m := range items {
		fmt.Fprintf(w, "%3d. %s\n", i+1, util.TitleStyle.Render(m.DisplayTitle()))
		details := []string{m.Key}
		if m.Kind != "" {
			details = append(details, string(m.Kind))
		}
		if m.EpisodeCurrent != "" {
			details = append(details, m.EpisodeCurrent)
		}
		if len(m.Alternates) > 0 {
			details = append(details, fmt.Sprintf("+%d sources", len(m.Alternates)))
		}
		fmt.Fprintf(w, "     %s\n", util.MutedStyle.Render(strings.Join(details, " · ")))
	}
}
