package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/alvarorichard/Gostream/internal/tracking"
	"github.com/alvarorichard/Gostream/internal/util"
	"github.com/alvarorichard/Gostream/pkg/gostream"
)

func newFavCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fav",
		Short: "Manage favorites",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List favorites, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := a.openStore()
			if err != nil {
				return err
			}
			favs, err := client.Store().Favorites()
			if err != nil {
				return err
			}
			if a.asJSON {
				return printJSON(out(cmd), favs)
			}
			if len(favs) == 0 {
				fmt.Fprintln(out(cmd), util.MutedStyle.Render("No favorites yet."))
				return nil
			}
			for _, f := range favs {
				fmt.Fprintf(out(cmd), "★ %s %s\n", util.TitleStyle.Render(f.Title),
					util.MutedStyle.Render(f.Key+" · added "+f.AddedAt.Format(time.DateOnly)))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <source:id>",
		Short: "Add an item to favorites",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.openStore()
			if err != nil {
				return err
			}
			item, err := client.Detail(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			err = client.Store().AddFavorite(tracking.Favorite{
				Key:    item.Key,
				Source: item.Source,
				Title:  item.Title,
				Poster: item.Poster,
				Kind:   string(item.Kind),
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(out(cmd), util.SuccessStyle.Render("★ Added "+item.Title))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "rm <source:id>",
		Aliases: []string{"remove"},
		Short:   "Remove an item from favorites",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.openStore()
			if err != nil {
				return err
			}
			if err := client.Store().RemoveFavorite(args[0]); err != nil {
				return err
			}
			fmt.Fprintln(out(cmd), "Removed "+args[0])
			return nil
		},
	})
	return cmd
}

func newHistoryCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Continue watching, watch progress and search history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := a.openStore()
			if err != nil {
				return err
			}
			items, err := client.Store().ContinueWatching(limit)
			if err != nil {
				return err
			}
			if a.asJSON {
				return printJSON(out(cmd), items)
			}
			if len(items) == 0 {
				fmt.Fprintln(out(cmd), util.MutedStyle.Render("Nothing to continue."))
				return nil
			}
			for _, p := range items {
				fmt.Fprintf(out(cmd), "%s %s %s\n", util.TitleStyle.Render(p.Title), progressLabel(p),
					util.MutedStyle.Render(fmt.Sprintf("%s/%s (%d%%) · %s", formatClock(p.Position), formatClock(p.Duration), int(p.Ratio()*100), p.Key)))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of items")

	var ef episodeFlags
	progress := &cobra.Command{
		Use:   "progress <source:id> <position> <duration>",
		Short: "Record a playback position (positions as seconds or h:mm:ss)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.openStore()
			if err != nil {
				return err
			}
			pos, err := parseClock(args[1])
			if err != nil {
				return err
			}
			dur, err := parseClock(args[2])
			if err != nil {
				return err
			}
			item, err := client.Detail(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			p := tracking.Progress{
				Key:      item.Key,
				Title:    item.Title,
				Poster:   item.Poster,
				Position: pos,
				Duration: dur,
			}
			if ef.episode > 0 {
				ep, err := a.chooseEpisode(item, ef.season, ef.episode)
				if err != nil {
					return err
				}
				p.Season, p.Episode, p.EpisodeKey = max(ep.Season, ef.season), ep.Number, episodeKey(*ep)
			}
			if err := client.Store().UpdateProgress(p); err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "Saved %s at %s\n", item.Title, formatClock(pos))
			return nil
		},
	}
	ef.register(progress)

	cmd.AddCommand(progress,
		&cobra.Command{
			Use:   "watched <source:id> <episode-key>",
			Short: "Mark an episode as watched",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				client, err := a.openStore()
				if err != nil {
					return err
				}
				return client.Store().MarkWatched(args[0], args[1])
			},
		},
		&cobra.Command{
			Use:   "unwatched <source:id> <episode-key>",
			Short: "Clear the watched mark of an episode",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				client, err := a.openStore()
				if err != nil {
					return err
				}
				return client.Store().UnmarkWatched(args[0], args[1])
			},
		},
		&cobra.Command{
			Use:   "rm <source:id>",
			Short: "Remove an item from continue watching",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				client, err := a.openStore()
				if err != nil {
					return err
				}
				return client.Store().RemoveProgress(args[0])
			},
		},
		&cobra.Command{
			Use:   "clear <source:id>",
			Short: "Forget progress and watched episodes of an item",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				client, err := a.openStore()
				if err != nil {
					return err
				}
				return client.Store().ClearHistory(args[0])
			},
		},
		newSearchesCmd(a),
	)
	return cmd
}

func newSearchesCmd(a *app) *cobra.Command {
	var clearAll bool
	var remove string
	cmd := &cobra.Command{
		Use:   "searches",
		Short: "Show, remove or clear recent searches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := a.openStore()
			if err != nil {
				return err
			}
			store := client.Store()
			switch {
			case clearAll:
				return store.ClearSearches()
			case remove != "":
				return store.DeleteSearch(remove)
			}

			entries, err := store.RecentSearches(0)
			if err != nil {
				return err
			}
			if a.asJSON {
				return printJSON(out(cmd), entries)
			}
			for _, e := range entries {
				fmt.Fprintf(out(cmd), "%s %s\n", e.Query, util.MutedStyle.Render(e.UsedAt.Format(time.DateTime)))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&clearAll, "clear", false, "forget every search")
	cmd.Flags().StringVar(&remove, "rm", "", "forget one search")
	return cmd
}

func newPlaylistCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "playlist",
		Aliases: []string{"pl"},
		Short:   "Manage playlists",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := a.openStore()
			if err != nil {
				return err
			}
			lists, err := client.Store().Playlists()
			if err != nil {
				return err
			}
			if a.asJSON {
				return printJSON(out(cmd), lists)
			}
			if len(lists) == 0 {
				fmt.Fprintln(out(cmd), util.MutedStyle.Render("No playlists yet."))
			}
			for _, pl := range lists {
				fmt.Fprintf(out(cmd), "%s %s\n", util.TitleStyle.Render(pl.Name), util.MutedStyle.Render(fmt.Sprintf("(%d items)", pl.Count)))
			}
			return nil
		},
	}

	// withPlaylist runs fn with the playlist named by the first argument
	withPlaylist := func(fn func(cmd *cobra.Command, store *tracking.Store, pl *tracking.Playlist, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			client, err := a.openStore()
			if err != nil {
				return err
			}
			pl, err := client.Store().PlaylistByName(args[0])
			if errors.Is(err, tracking.ErrNotFound) {
				return fmt.Errorf("playlist %q does not exist", args[0])
			}
			if err != nil {
				return err
			}
			return fn(cmd, client.Store(), pl, args[1:])
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "create <name>",
			Short: "Create an empty playlist",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				client, err := a.openStore()
				if err != nil {
					return err
				}
				pl, err := client.Store().CreatePlaylist(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(out(cmd), util.SuccessStyle.Render("Created "+pl.Name))
				return nil
			},
		},
		&cobra.Command{
			Use:   "show <name>",
			Short: "List the items of a playlist",
			Args:  cobra.ExactArgs(1),
			RunE: withPlaylist(func(cmd *cobra.Command, store *tracking.Store, pl *tracking.Playlist, _ []string) error {
				items, err := store.PlaylistItems(pl.ID)
				if err != nil {
					return err
				}
				if a.asJSON {
					return printJSON(out(cmd), items)
				}
				fmt.Fprintln(out(cmd), util.TitleStyle.Render(pl.Name))
				for i, it := range items {
					fmt.Fprintf(out(cmd), "%3d. %s %s\n", i+1, it.Title, util.MutedStyle.Render(it.Key))
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "rename <name> <new-name>",
			Short: "Rename a playlist",
			Args:  cobra.ExactArgs(2),
			RunE: withPlaylist(func(_ *cobra.Command, store *tracking.Store, pl *tracking.Playlist, args []string) error {
				return store.RenamePlaylist(pl.ID, args[0])
			}),
		},
		&cobra.Command{
			Use:   "delete <name>",
			Short: "Delete a playlist",
			Args:  cobra.ExactArgs(1),
			RunE: withPlaylist(func(_ *cobra.Command, store *tracking.Store, pl *tracking.Playlist, _ []string) error {
				ok, err := a.confirm(fmt.Sprintf("Delete playlist %q?", pl.Name), true)
				if err != nil || !ok {
					return err
				}
				return store.DeletePlaylist(pl.ID)
			}),
		},
		&cobra.Command{
			Use:   "add <name> <source:id>",
			Short: "Append an item to a playlist",
			Args:  cobra.ExactArgs(2),
			RunE: withPlaylist(func(cmd *cobra.Command, store *tracking.Store, pl *tracking.Playlist, args []string) error {
				item, err := a.client.Detail(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return store.AddToPlaylist(pl.ID, tracking.PlaylistItem{
					Key:    item.Key,
					Title:  item.Title,
					Poster: item.Poster,
				})
			}),
		},
		&cobra.Command{
			Use:   "rm <name> <source:id>",
			Short: "Remove an item from a playlist",
			Args:  cobra.ExactArgs(2),
			RunE: withPlaylist(func(_ *cobra.Command, store *tracking.Store, pl *tracking.Playlist, args []string) error {
				return store.RemoveFromPlaylist(pl.ID, args[0])
			}),
		},
	)
	return cmd
}

func newSectionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sections",
		Short: "Show or reorder the home sections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := a.openStore()
			if err != nil {
				return err
			}
			order, err := client.Store().SectionOrder()
			if err != nil {
				return err
			}
			return printSections(cmd, a, order)
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "move <section> <position>",
			Short: "Move a section to a 1-based position",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				pos, err := strconv.Atoi(args[1])
				if err != nil || pos < 1 {
					return fmt.Errorf("invalid position %q", args[1])
				}
				client, err := a.openStore()
				if err != nil {
					return err
				}
				order, err := client.Store().MoveSection(args[0], pos-1)
				if err != nil {
					return err
				}
				return printSections(cmd, a, order)
			},
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Restore the default order",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				client, err := a.openStore()
				if err != nil {
					return err
				}
				if err := client.Store().SetSectionOrder(tracking.DefaultSections); err != nil {
					return err
				}
				return printSections(cmd, a, tracking.DefaultSections)
			},
		},
	)
	return cmd
}

func printSections(cmd *cobra.Command, a *app, order []string) error {
	if a.asJSON {
		return printJSON(out(cmd), order)
	}
	for i, s := range order {
		fmt.Fprintf(out(cmd), "%d. %s\n", i+1, s)
	}
	return nil
}

func newSkipCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skip",
		Short: "Intro and outro skip markers",
	}

	var country string
	var ef episodeFlags
	get := &cobra.Command{
		Use:   "get <source:id>",
		Short: "Show the markers that apply to an episode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.open()
			if err != nil {
				return err
			}
			item, err := client.Detail(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			ref := item.Ref()
			ref.Season, ref.Episode = ef.season, ef.episode
			if country != "" {
				ref.Country = country
			}

			st, from, err := client.SkipTimes(cmd.Context(), item.Key, ref)
			if err != nil {
				return err
			}
			if from == "" {
				fmt.Fprintln(out(cmd), util.MutedStyle.Render("No skip markers."))
				return nil
			}
			if a.asJSON {
				return printJSON(out(cmd), map[string]any{"from": from, "skip": st})
			}
			printSkip(cmd, st, from)
			return nil
		},
	}
	ef.register(get)
	get.Flags().StringVar(&country, "country", "", "country used for the default markers")

	var intro, outro string
	set := &cobra.Command{
		Use:     "set <source:id>",
		Short:   "Save markers for a series (times as seconds or m:ss)",
		Example: `gostream skip set ophim:the-boys --intro 0:30-1:55 --outro 41:10-43:00`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := parseSkipFlags(intro, outro)
			if err != nil {
				return err
			}
			client, err := a.openStore()
			if err != nil {
				return err
			}
			return client.Store().SetSeriesSkip(args[0], st)
		},
	}
	set.Flags().StringVar(&intro, "intro", "", "intro interval, start-end")
	set.Flags().StringVar(&outro, "outro", "", "outro interval, start-end")

	var cIntro, cOutro string
	countryCmd := &cobra.Command{
		Use:   "country <country>",
		Short: "Save default markers for every series of a country",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.openStore()
			if err != nil {
				return err
			}
			if cIntro == "" && cOutro == "" {
				st, err := client.Store().CountryDefault(args[0])
				if err != nil {
					return err
				}
				if st == nil {
					fmt.Fprintln(out(cmd), util.MutedStyle.Render("No default for "+args[0]))
					return nil
				}
				printSkip(cmd, *st, gostream.SkipFromCountry)
				return nil
			}
			st, err := parseSkipFlags(cIntro, cOutro)
			if err != nil {
				return err
			}
			return client.Store().SetCountryDefault(args[0], st)
		},
	}
	countryCmd.Flags().StringVar(&cIntro, "intro", "", "intro interval, start-end")
	countryCmd.Flags().StringVar(&cOutro, "outro", "", "outro interval, start-end")

	rm := &cobra.Command{
		Use:   "rm <source:id>",
		Short: "Delete the markers of a series",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.openStore()
			if err != nil {
				return err
			}
			return client.Store().DeleteSeriesSkip(args[0])
		},
	}

	cmd.AddCommand(get, set, countryCmd, rm)
	return cmd
}

func printSkip(cmd *cobra.Command, st gostream.SkipTimes, from string) {
	if st.Intro.Valid() {
		fmt.Fprintf(out(cmd), "Intro: %s-%s\n", formatClock(st.Intro.Start), formatClock(st.Intro.End))
	}
	if st.Outro.Valid() {
		fmt.Fprintf(out(cmd), "Outro: %s-%s\n", formatClock(st.Outro.Start), formatClock(st.Outro.End))
	}
	fmt.Fprintln(out(cmd), util.MutedStyle.Render("from "+from))
}

func parseSkipFlags(intro, outro string) (gostream.SkipTimes, error) {
	var st gostream.SkipTimes
	var err error
	if intro == "" && outro == "" {
		return st, fmt.Errorf("give --intro and/or --outro")
	}
	if intro != "" {
		if st.Intro, err = parseInterval(intro); err != nil {
			return st, fmt.Errorf("intro: %w", err)
		}
	}
	if outro != "" {
		if st.Outro, err = parseInterval(outro); err != nil {
			return st, fmt.Errorf("outro: %w", err)
		}
	}
	return st, nil
}

// parseInterval parses "start-end" where both sides are clock values
func parseInterval(s string) (gostream.Skip, error) {
	lo, hi, ok := strings.Cut(s, "-")
	if !ok {
		return gostream.Skip{}, fmt.Errorf("interval %q must look like start-end", s)
	}
	start, err := parseClock(lo)
	if err != nil {
		return gostream.Skip{}, err
	}
	end, err := parseClock(hi)
	if err != nil {
		return gostream.Skip{}, err
	}
	skip := gostream.Skip{Start: start, End: end}
	if !skip.Valid() {
		return skip, fmt.Errorf("interval %q ends before it starts", s)
	}
	return skip, nil
}

// parseClock parses seconds ("95"), "m:ss" or "h:mm:ss" into seconds
func parseClock(s string) (int, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if s == "" || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	total := 0
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || (i > 0 && n >= 60) {
			return 0, fmt.Errorf("invalid time %q", s)
		}
		total = total*60 + n
	}
	return total, nil
}

func formatClock(sec int) string {
	if sec >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", sec/3600, sec/60%60, sec%60)
	}
	return fmt.Sprintf("%d:%02d", sec/60, sec%60)
}
