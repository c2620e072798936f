package cli

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alvarorichard/Gostream/internal/util"
	"github.com/alvarorichard/Gostream/pkg/gostream"
)

func newDownloadCmd(a *app) *cobra.Command {
	var ef episodeFlags
	var (
		episodes  string
		dir       string
		withSubs  bool
		overwrite bool
		yes       bool
	)

	cmd := &cobra.Command{
		Use:   "download <source:id | query>",
		Short: "Download a movie or a range of episodes",
		Example: `gostream download ophim:the-boys -s 1 -e 3
gostream download "naruto" -r 1-5,8 --subs`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir != "" {
				a.cfg.Download.Dir = dir
			}
			client, err := a.open()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if episodes == "" {
				item, ref, err := a.target(ctx, client, strings.Join(args, " "), ef)
				if err != nil {
					return err
				}
				return a.downloadOne(cmd, client, item.Title, ref, withSubs, overwrite)
			}

			numbers, err := parseEpisodeRange(episodes)
			if err != nil {
				return err
			}
			item, err := a.lookup(ctx, client, strings.Join(args, " "))
			if err != nil {
				return err
			}

			if !yes {
				ok, err := a.confirm(fmt.Sprintf("Download %d episodes of %s?", len(numbers), item.Title), true)
				if err != nil || !ok {
					return err
				}
			}

			var failed int
			for _, n := range numbers {
				ep, err := a.chooseEpisode(item, ef.season, n)
				if err != nil {
					util.Warn("Episode skipped", "episode", n, "error", err)
					failed++
					continue
				}
				ref := episodeRef(ef.apply(item.Ref()), *ep, ef.season)
				if err := a.downloadOne(cmd, client, item.Title, ref, withSubs, overwrite); err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					util.Warn("Download failed", "episode", ref.String(), "error", err)
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d downloads failed", failed, len(numbers))
			}
			return nil
		},
	}
	ef.register(cmd)
	ef.registerLinks(cmd)
	cmd.Flags().StringVarP(&episodes, "range", "r", "", "episodes to download, e.g. 1-5,8")
	cmd.Flags().StringVarP(&dir, "dir", "o", "", "download directory")
	cmd.Flags().BoolVar(&withSubs, "subs", false, "also save a subtitle in the preferred language")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace files that already exist")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func (a *app) downloadOne(cmd *cobra.Command, client *gostream.Client, title string, ref gostream.MediaRef, withSubs, overwrite bool) error {
	ctx := cmd.Context()

	var set *gostream.StreamSet
	var err error
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

	req := gostream.DownloadRequest{
		Title:     title,
		Season:    ref.Season,
		Episode:   ref.Episode,
		Source:    src,
		Overwrite: overwrite,
	}
	if withSubs {
		for _, sub := range client.PreferredSubtitles(set) {
			data, err := client.FetchSubtitle(ctx, sub)
			if err != nil {
				util.Debug("Subtitle download failed", "url", sub.URL, "error", err)
				continue
			}
			req.Subtitle, req.SubtitleLang = data, sub.Lang
			break
		}
	}

	res, err := client.Downloader(a.interactive).Download(ctx, req)
	if err != nil {
		return err
	}
	if res.Skipped {
		fmt.Fprintln(out(cmd), util.MutedStyle.Render("Already downloaded: "+res.Path))
		return nil
	}
	fmt.Fprintf(out(cmd), "%s %s %s\n", util.SuccessStyle.Render("✓"), res.Path,
		util.MutedStyle.Render(fmt.Sprintf("(%s, %s via %s)", formatBytes(res.Bytes), src.Quality, res.Method)))
	if res.SubtitlePath != "" {
		fmt.Fprintf(out(cmd), "%s %s\n", util.SuccessStyle.Render("✓"), res.SubtitlePath)
	}
	return nil
}

const maxRangeEpisodes = 2000

// parseEpisodeRange parses "1-5,8" into sorted unique episode numbers
func parseEpisodeRange(spec string) ([]int, error) {
	seen := map[int]bool{}
	var out []int
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		start, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil || start < 1 {
			return nil, fmt.Errorf("invalid episode %q", part)
		}
		end := start
		if isRange {
			end, err = strconv.Atoi(strings.TrimSpace(hi))
			if err != nil || end < start || end-start >= maxRangeEpisodes {
				return nil, fmt.Errorf("invalid episode range %q", part)
			}
		}
		for n := start; n <= end; n++ {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no episodes in %q", spec)
	}
	slices.Sort(out)
	return out, nil
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
