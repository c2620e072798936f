package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alvarorichard/Gostream/internal/models"
	"github.com/alvarorichard/Gostream/internal/tracking"
	"github.com/alvarorichard/Gostream/internal/util"
	"github.com/alvarorichard/Gostream/pkg/gostream"
)

type searchFlags struct {
	page     int
	kind     string
	yearFrom int
	yearTo   int
	country  string
	pick     bool
}

func (f *searchFlags) register(cmd *cobra.Command, withFilters bool) {
	cmd.Flags().IntVarP(&f.page, "page", "p", 1, "result page")
	if !withFilters {
		return
	}
	cmd.Flags().StringVarP(&f.kind, "kind", "k", "", "only movie, tv or anime")
	cmd.Flags().IntVar(&f.yearFrom, "year-from", 0, "earliest release year")
	cmd.Flags().IntVar(&f.yearTo, "year-to", 0, "latest release year")
	cmd.Flags().StringVar(&f.country, "country", "", "only items from this country")
	cmd.Flags().BoolVar(&f.pick, "pick", false, "pick a result and show its details")
}

func (f *searchFlags) options(a *app) (gostream.SearchOptions, error) {
	opts := gostream.SearchOptions{
		Page:     f.page,
		YearFrom: f.yearFrom,
		YearTo:   f.yearTo,
		Country:  f.country,
		Sources:  a.cfg.Catalog.Sources,
	}
	if f.kind != "" {
		opts.Kind = models.ParseKind(f.kind)
		if opts.Kind == "" {
			return opts, fmt.Errorf("unknown kind %q (want movie, tv or anime)", f.kind)
		}
	}
	if f.yearFrom > 0 && f.yearTo > 0 && f.yearFrom > f.yearTo {
		return opts, fmt.Errorf("--year-from %d is after --year-to %d", f.yearFrom, f.yearTo)
	}
	return opts, nil
}

func newSearchCmd(a *app) *cobra.Command {
	var f searchFlags
	cmd := &cobra.Command{
		Use:     "search <query>",
		Short:   "Search every catalog source",
		Example: `gostream search "the boys" --kind tv`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := f.options(a)
			if err != nil {
				return err
			}
			client, err := a.open()
			if err != nil {
				return err
			}

			query := strings.Join(args, " ")
			var page *gostream.MediaPage
			a.withSpinner("Searching...", func() {
				page, err = client.Search(cmd.Context(), query, opts)
			})
			if err != nil {
				return err
			}
			return a.showPage(cmd, page, f.pick)
		},
	}
	f.register(cmd, true)
	return cmd
}

func newLatestCmd(a *app) *cobra.Command {
	var f searchFlags
	cmd := &cobra.Command{
		Use:   "latest",
		Short: "List recently updated items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := f.options(a)
			if err != nil {
				return err
			}
			client, err := a.open()
			if err != nil {
				return err
			}

			var page *gostream.MediaPage
			a.withSpinner("Loading latest...", func() {
				page, err = client.Latest(cmd.Context(), opts)
			})
			if err != nil {
				return err
			}
			return a.showPage(cmd, page, f.pick)
		},
	}
	f.register(cmd, true)
	return cmd
}

func (a *app) showPage(cmd *cobra.Command, page *gostream.MediaPage, pick bool) error {
	if a.asJSON {
		return printJSON(out(cmd), page)
	}
	if len(page.Items) == 0 {
		fmt.Fprintln(out(cmd), util.MutedStyle.Render("No results."))
		return nil
	}

	if pick {
		item, err := a.pickMedia(page.Items)
		if err != nil {
			return err
		}
		return a.showDetail(cmd, item.Key)
	}

	printMediaList(out(cmd), page.Items)
	if page.HasNext {
		fmt.Fprintln(out(cmd), util.MutedStyle.Render(fmt.Sprintf("\nMore results: --page %d", page.Page+1)))
	}
	return nil
}

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "info <source:id>",
		Short:   "Show details and episodes of an item",
		Example: "gostream info ophim:the-boys",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.showDetail(cmd, args[0])
		},
	}
}

func (a *app) showDetail(cmd *cobra.Command, key string) error {
	client, err := a.open()
	if err != nil {
		return err
	}

	var item *gostream.Media
	a.withSpinner("Loading details...", func() {
		item, err = client.Detail(cmd.Context(), key)
	})
	if err != nil {
		return err
	}
	if a.asJSON {
		return printJSON(out(cmd), item)
	}

	w := out(cmd)
	fmt.Fprintln(w, util.TitleStyle.Render(item.DisplayTitle()))
	fmt.Fprintln(w, util.MutedStyle.Render(item.Key))

	var fields [][2]string
	add := func(name, value string) {
		if value != "" {
			fields = append(fields, [2]string{name, value})
		}
	}
	add("Kind", string(item.Kind))
	add("Country", item.Country)
	add("Genres", strings.Join(item.Genres, ", "))
	add("Quality", strings.TrimSpace(item.Quality+" "+item.Lang))
	add("Status", item.EpisodeCurrent)
	if item.TMDBID > 0 {
		add("TMDB", fmt.Sprint(item.TMDBID))
	}
	add("IMDb", item.IMDBID)
	if len(item.Alternates) > 0 {
		var alts []string
		for src, id := range item.Alternates {
			alts = append(alts, src+":"+id)
		}
		add("Also on", strings.Join(alts, ", "))
	}
	for _, f := range fields {
		fmt.Fprintf(w, "%s %s\n", util.AccentStyle.Render(f[0]+":"), f[1])
	}
	if item.Overview != "" {
		fmt.Fprintf(w, "\n%s\n", wrap(item.Overview, 78))
	}

	var watched map[string]bool
	if store := client.Store(); store != nil {
		if fav, _ := store.IsFavorite(item.Key); fav {
			fmt.Fprintln(w, util.SuccessStyle.Render("\n★ In favorites"))
		}
		if p, err := store.GetProgress(item.Key); err == nil && p != nil {
			fmt.Fprintln(w, util.MutedStyle.Render(fmt.Sprintf("Last watched: %s at %s", progressLabel(*p), formatClock(p.Position))))
		}
		watched, _ = store.WatchedEpisodes(item.Key)
	}

	if len(item.Episodes) > 0 {
		fmt.Fprintf(w, "\n%s\n", util.AccentStyle.Render(fmt.Sprintf("Episodes (%d):", len(item.Episodes))))
		for _, ep := range item.Episodes {
			mark := " "
			if watched[episodeKey(ep)] {
				mark = "✓"
			}
			fmt.Fprintf(w, "  %s %s\n", mark, episodeLabel(ep))
		}
	}
	return nil
}

// lookup turns a "source:id" key or a free-text query into a detailed item.
// Queries are searched and the result is picked interactively.
func (a *app) lookup(ctx context.Context, client *gostream.Client, arg string) (*gostream.Media, error) {
	var item *gostream.Media
	var err error

	if _, _, ok := models.SplitKey(arg); ok && !strings.Contains(arg, " ") {
		a.withSpinner("Loading details...", func() {
			item, err = client.Detail(ctx, arg)
		})
		return item, err
	}

	var page *gostream.MediaPage
	a.withSpinner("Searching...", func() {
		page, err = client.Search(ctx, arg, gostream.SearchOptions{Sources: a.cfg.Catalog.Sources})
	})
	if err != nil {
		return nil, err
	}
	picked, err := a.pickMedia(page.Items)
	if err != nil {
		return nil, err
	}
	a.withSpinner("Loading details...", func() {
		item, err = client.DetailOf(ctx, *picked)
	})
	return item, err
}

// episodeKey is the key under which an episode is marked watched
func episodeKey(ep gostream.Episode) string {
	if ep.Key != "" {
		return ep.Key
	}
	return fmt.Sprintf("s%de%d", ep.Season, ep.Number)
}

func progressLabel(p tracking.Progress) string {
	if p.Episode > 0 {
		return fmt.Sprintf("S%02dE%02d", max(p.Season, 1), p.Episode)
	}
	return "movie"
}
