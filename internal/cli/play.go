package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alvarorichard/Gostream/internal/player"
	"github.com/alvarorichard/Gostream/internal/tracking"
	"github.com/alvarorichard/Gostream/internal/util"
	"github.com/alvarorichard/Gostream/pkg/gostream"
)

func newPlayCmd(a *app) *cobra.Command {
	var ef episodeFlags
	var (
		fromStart bool
		noSkip    bool
		noSubs    bool
		mpvArgs   []string
	)

	cmd := &cobra.Command{
		Use:   "play <source:id | query>",
		Short: "Play a movie or episode in mpv and remember where you stopped",
		Example: `gostream play ophim:the-boys -s 1 -e 3
gostream play "spirited away" --from-start`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.open()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			item, ref, err := a.target(ctx, client, strings.Join(args, " "), ef)
			if err != nil {
				return err
			}

			var set *gostream.StreamSet
			a.withSpinner("Resolving "+ref.String()+"...", func() {
				set, err = client.Resolve(ctx, ref)
			})
			if err != nil {
				return err
			}
			src, ok := client.SelectSource(set)
			if !ok {
				return fmt.Errorf("no playable source for %s", ref)
			}

			opts := player.Options{
				Title:   ref.String(),
				Headers: src.Headers,
				Args:    mpvArgs,
			}
			if !noSubs {
				files, cleanup := a.stageSubtitles(cmd, client, set.Subtitles)
				defer cleanup()
				opts.SubtitleFiles = files
			}
			if !noSkip {
				st, from, err := client.SkipTimes(ctx, item.Key, ref)
				if err != nil {
					util.Debug("Skip markers unavailable", "error", err)
				} else if from != "" {
					opts.Skip = st
				}
			}

			epKey := ""
			if ref.Episode > 0 {
				epKey = fmt.Sprintf("s%de%d", ref.Season, ref.Episode)
				if ep, ok := item.FindEpisode(ref.Season, ref.Episode); ok {
					epKey = episodeKey(*ep)
				}
			}
			store := client.Store()
			if store != nil && !fromStart {
				opts.Start = a.resumePosition(store, item.Key, epKey)
			}

			fmt.Fprintf(out(cmd), "%s %s %s\n", util.SuccessStyle.Render("▶"), ref.String(),
				util.MutedStyle.Render(fmt.Sprintf("(%s via %s)", src.Quality, src.Provider)))
			session, err := player.Start(ctx, src.URL, opts)
			if err != nil {
				return err
			}
			pb, err := session.Wait(ctx)
			if err != nil {
				return err
			}
			for _, name := range pb.Skipped {
				util.Debug("Skipped marker", "marker", name)
			}

			if store == nil || pb.Duration <= 0 {
				return nil
			}
			p := tracking.Progress{
				Key:        item.Key,
				Title:      item.Title,
				Poster:     item.Poster,
				Season:     ref.Season,
				Episode:    ref.Episode,
				EpisodeKey: epKey,
				Position:   pb.Position,
				Duration:   pb.Duration,
			}
			if err := store.UpdateProgress(p); err != nil {
				return fmt.Errorf("save progress: %w", err)
			}
			fmt.Fprintln(out(cmd), util.MutedStyle.Render(fmt.Sprintf("Stopped at %s/%s", formatClock(p.Position), formatClock(p.Duration))))
			return nil
		},
	}
	ef.register(cmd)
	ef.registerLinks(cmd)
	cmd.Flags().BoolVar(&fromStart, "from-start", false, "ignore the saved position")
	cmd.Flags().BoolVar(&noSkip, "no-skip", false, "do not skip intros and outros")
	cmd.Flags().BoolVar(&noSubs, "no-subs", false, "do not load subtitles")
	cmd.Flags().StringSliceVar(&mpvArgs, "mpv-args", nil, "extra arguments passed to mpv")
	return cmd
}

// resumePosition returns the saved position of the same episode when the
// user agrees to continue from it
func (a *app) resumePosition(store *tracking.Store, key, epKey string) int {
	p, err := store.GetProgress(key)
	if err != nil || p == nil || p.EpisodeKey != epKey || p.Position <= 0 || p.Ratio() >= 0.95 {
		return 0
	}
	ok, err := a.confirm(fmt.Sprintf("Resume from %s?", formatClock(p.Position)), true)
	if err != nil || !ok {
		return 0
	}
	return p.Position
}

// stageSubtitles writes one subtitle per language into a temporary directory
func (a *app) stageSubtitles(cmd *cobra.Command, client *gostream.Client, subs []gostream.Subtitle) ([]string, func()) {
	if len(subs) == 0 {
		return nil, func() {}
	}
	dir, err := os.MkdirTemp("", "gostream-subs-")
	if err != nil {
		util.Debug("Subtitle staging failed", "error", err)
		return nil, func() {}
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	var files []string
	seen := map[string]bool{}
	for _, sub := range subs {
		if seen[sub.Lang] {
			continue
		}
		data, err := client.FetchSubtitle(cmd.Context(), sub)
		if err != nil {
			util.Debug("Subtitle download failed", "provider", sub.Provider, "error", err)
			continue
		}
		path := filepath.Join(dir, fmt.Sprintf("%02d.%s.vtt", len(files), sub.Lang))
		if err := os.WriteFile(path, data, 0644); err != nil {
			continue
		}
		seen[sub.Lang] = true
		files = append(files, path)
	}
	return files, cleanup
}
