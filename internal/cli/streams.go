package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alvarorichard/Gostream/internal/config"
	"github.com/alvarorichard/Gostream/internal/resolver"
	"github.com/alvarorichard/Gostream/internal/util"
	"github.com/alvarorichard/Gostream/pkg/gostream"
)

type episodeFlags struct {
	season  int
	episode int
	// links maps a provider to the share link the user gave for the item
	links map[string]string
}

func (f *episodeFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&f.season, "season", "s", 0, "season number")
	cmd.Flags().IntVarP(&f.episode, "episode", "e", 0, "episode number (prompted when omitted)")
}

// registerLinks adds the flags of the providers that only resolve items
// the user links by hand
func (f *episodeFlags) registerLinks(cmd *cobra.Command) {
	if f.links == nil {
		f.links = map[string]string{}
	}
	cmd.Flags().Var(linkValue{f.links, config.ProviderFshare}, "fshare", "Fshare folder or file URL holding the item")
	cmd.Flags().Var(linkValue{f.links, config.ProviderFebBox}, "febbox", "FebBox share key or share link holding the item")
}

func (f episodeFlags) apply(ref gostream.MediaRef) gostream.MediaRef {
	if len(f.links) == 0 {
		return ref
	}
	ids := make(map[string]string, len(ref.SourceIDs)+len(f.links))
	for src, id := range ref.SourceIDs {
		ids[src] = id
	}
	for src, link := range f.links {
		ids[src] = link
	}
	ref.SourceIDs = ids
	return ref
}

// linkValue is a pflag.Value writing into one key of a shared map
type linkValue struct {
	links    map[string]string
	provider string
}

func (v linkValue) String() string { return v.links[v.provider] }
func (v linkValue) Type() string   { return "link" }

func (v linkValue) Set(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("empty %s link", v.provider)
	}
	v.links[v.provider] = s
	return nil
}

// target finds the item named by arg and builds the ref of the requested
// episode. Movies ignore the episode flags.
func (a *app) target(ctx context.Context, client *gostream.Client, arg string, f episodeFlags) (*gostream.Media, gostream.MediaRef, error) {
	item, err := a.lookup(ctx, client, arg)
	if err != nil {
		return nil, gostream.MediaRef{}, err
	}
	ref := f.apply(item.Ref())
	if !item.Kind.IsEpisodic() && len(item.Episodes) <= 1 {
		return item, ref, nil
	}

	ep, err := a.chooseEpisode(item, f.season, f.episode)
	if err != nil {
		return nil, ref, err
	}
	return item, episodeRef(ref, *ep, f.season), nil
}

func (a *app) chooseEpisode(item *gostream.Media, season, number int) (*gostream.Episode, error) {
	if number > 0 {
		if ep, ok := item.FindEpisode(season, number); ok {
			return ep, nil
		}
		if len(item.Episodes) == 0 {
			// Catalogs like TMDB list no episodes; trust the flags
			return &gostream.Episode{Season: season, Number: number}, nil
		}
		return nil, fmt.Errorf("%s has no episode %d", item.Title, number)
	}
	return a.pickEpisode(item)
}

func episodeRef(ref gostream.MediaRef, ep gostream.Episode, season int) gostream.MediaRef {
	ref.Season = ep.Season
	if ref.Season == 0 {
		ref.Season = max(season, 1)
	}
	ref.Episode = max(ep.Number, 1)
	ref.EpisodeName = ep.Name
	return ref
}

func newResolveCmd(a *app) *cobra.Command {
	var ef episodeFlags
	var all bool

	cmd := &cobra.Command{
		Use:   "resolve <source:id | query>",
		Short: "Resolve playable stream URLs for a movie or episode",
		Example: `gostream resolve ophim:the-boys -s 1 -e 3
gostream resolve "dune part two" --all
gostream resolve "the boys" -s 1 -e 2 --fshare https://www.fshare.vn/folder/ABCDEF`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.open()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			_, ref, err := a.target(ctx, client, strings.Join(args, " "), ef)
			if err != nil {
				return err
			}

			var set *gostream.StreamSet
			var failures []*gostream.ProviderError
			a.withSpinner("Resolving "+ref.String()+"...", func() {
				if all {
					var res *gostream.ResolveResult
					if res, err = client.ResolveAll(ctx, ref); err == nil {
						set, failures = res.Set, res.Failures
					}
					return
				}
				set, err = client.Resolve(ctx, ref)
			})
			if err != nil {
				return err
			}

			if a.asJSON {
				return printJSON(out(cmd), set)
			}
			a.printStreamSet(cmd, client, ref, set)
			for _, f := range failures {
				fmt.Fprintln(out(cmd), util.MutedStyle.Render(fmt.Sprintf("  %s failed: %v", f.Provider, f.Kind)))
			}
			return nil
		},
	}
	ef.register(cmd)
	ef.registerLinks(cmd)
	cmd.Flags().BoolVar(&all, "all", false, "query every provider concurrently and merge the results")
	return cmd
}

func (a *app) printStreamSet(cmd *cobra.Command, client *gostream.Client, ref gostream.MediaRef, set *gostream.StreamSet) {
	w := out(cmd)
	chosen, _ := client.SelectSource(set)

	fmt.Fprintln(w, util.TitleStyle.Render(ref.String()))
	fmt.Fprintln(w, util.MutedStyle.Render("resolved by "+set.Provider))
	fmt.Fprintln(w)

	for _, src := range resolver.RankSources(set.Sources) {
		mark := "  "
		if src.URL == chosen.URL {
			mark = util.SuccessStyle.Render("▶") + " "
		}
		label := src.Quality
		if src.Label != "" {
			label += " " + src.Label
		}
		kind := "file"
		if src.IsM3U8 {
			kind = "hls"
		}
		fmt.Fprintf(w, "%s%-10s %s\n", mark, util.AccentStyle.Render(label),
			util.MutedStyle.Render(fmt.Sprintf("[%s · %s]", src.Provider, kind)))
		fmt.Fprintf(w, "    %s\n", src.URL)
		for k, v := range src.Headers {
			fmt.Fprintf(w, "    %s\n", util.MutedStyle.Render(k+": "+v))
		}
	}

	if len(set.Subtitles) > 0 {
		fmt.Fprintf(w, "\n%s\n", util.AccentStyle.Render("Subtitles:"))
		for _, sub := range set.Subtitles {
			fmt.Fprintf(w, "  [%s] %s %s\n", sub.Lang, sub.URL, util.MutedStyle.Render(sub.Provider))
		}
	}
}

func newSubsCmd(a *app) *cobra.Command {
	var ef episodeFlags
	var langs []string
	var saveDir string

	cmd := &cobra.Command{
		Use:     "subs <source:id | query>",
		Short:   "Search subtitles and optionally save them as WebVTT",
		Example: `gostream subs ophim:the-boys -s 1 -e 3 --lang vi,en --save .`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.open()
			if err != nil {
				return err
			}
			if len(client.SubtitleProviders()) == 0 {
				return fmt.Errorf("no subtitle provider configured (set SUBDL_API_KEY, OPENSUBTITLES_API_KEY or subtitles.subsource_url)")
			}
			ctx := cmd.Context()
			item, ref, err := a.target(ctx, client, strings.Join(args, " "), ef)
			if err != nil {
				return err
			}

			var subs []gostream.Subtitle
			a.withSpinner("Searching subtitles...", func() {
				subs, err = client.Subtitles(ctx, ref, langs...)
			})
			if err != nil {
				return err
			}
			if a.asJSON && saveDir == "" {
				return printJSON(out(cmd), subs)
			}
			if len(subs) == 0 {
				fmt.Fprintln(out(cmd), util.MutedStyle.Render("No subtitles found."))
				return nil
			}
			if saveDir == "" {
				for _, sub := range subs {
					label := sub.Label
					if label == "" {
						label = sub.URL
					}
					fmt.Fprintf(out(cmd), "[%s] %s %s\n", sub.Lang, label, util.MutedStyle.Render(sub.Provider))
				}
				return nil
			}
			return a.saveSubtitles(cmd, client, item.Title, ref, subs, saveDir)
		},
	}
	ef.register(cmd)
	cmd.Flags().StringSliceVarP(&langs, "lang", "l", nil, "languages to search (default from config)")
	cmd.Flags().StringVar(&saveDir, "save", "", "save the best subtitle per language into this directory")
	return cmd
}

// saveSubtitles writes the first subtitle of each language that downloads
func (a *app) saveSubtitles(cmd *cobra.Command, client *gostream.Client, title string, ref gostream.MediaRef, subs []gostream.Subtitle, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	saved := map[string]bool{}
	for _, sub := range subs {
		if saved[sub.Lang] {
			continue
		}
		data, err := client.FetchSubtitle(cmd.Context(), sub)
		if err != nil {
			util.Warn("Subtitle download failed", "provider", sub.Provider, "lang", sub.Lang, "error", err)
			continue
		}
		name := util.EpisodeFilename(title, ref.Season, ref.Episode, sub.Lang+".vtt")
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		saved[sub.Lang] = true
		fmt.Fprintln(out(cmd), util.SuccessStyle.Render("✓ ")+path)
	}
	if len(saved) == 0 {
		return fmt.Errorf("no subtitle could be downloaded")
	}
	return nil
}
