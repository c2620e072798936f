// Package cli implements the gostream command line on top of pkg/gostream.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alvarorichard/Gostream/internal/config"
	"github.com/alvarorichard/Gostream/internal/util"
	"github.com/alvarorichard/Gostream/internal/version"
	"github.com/alvarorichard/Gostream/pkg/gostream"
)

// app carries the global flags and the lazily built client
type app struct {
	debug       bool
	perf        bool
	quality     string
	providers   []string
	sources     []string
	asJSON      bool
	interactive bool

	cfg    *config.Config
	client *gostream.Client

	// newClient builds the client; tests replace it
	newClient func(cfg *config.Config) (*gostream.Client, error)
}

func newApp() *app {
	return &app{
		interactive: isTerminal(os.Stdout) && isTerminal(os.Stdin),
		newClient: func(cfg *config.Config) (*gostream.Client, error) {
			return gostream.New(cfg)
		},
	}
}

// Execute runs the command line and returns the process exit code
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp()
	defer a.close()

	root := newRootCmd(a)
	err := root.ExecuteContext(ctx)
	a.report(os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, util.ErrorHandler(err))
		return 1
	}
	return 0
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:     "gostream",
		Short:   "Search, resolve and download movies, series and anime from many providers",
		Version: version.Version,
		Long: `Gostream aggregates several catalogs (OPhim, KKPhim, Anime47, Consumet, TMDB)
and resolves playable streams through an ordered chain of providers (Fshare,
FebBox, ShowBox, OPhim, KKPhim, Consumet, VidSrc, Autoembed).

Items are addressed by their key, "source:id", as printed by search.

Environment Variables:
  GOSTREAM_CONFIG        Path to the YAML config file
  GOSTREAM_DATA_DIR      Directory holding the database and config
  GOSTREAM_PROVIDERS     Provider order, comma separated
  GOSTREAM_QUALITY       Preferred quality (e.g. 1080p)
  TMDB_API_KEY           Enables the TMDB catalog
  SUBDL_API_KEY          Enables SubDL subtitles
  OPENSUBTITLES_API_KEY  Enables OpenSubtitles`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}

	flags := root.PersistentFlags()
	flags.BoolVar(&a.debug, "debug", false, "enable debug logging")
	flags.BoolVar(&a.perf, "perf", false, "print a timing report when the command ends")
	flags.StringVarP(&a.quality, "quality", "q", "", "preferred quality (2160p, 1080p, 720p, 480p)")
	flags.StringSliceVar(&a.providers, "providers", nil, "stream providers to try, in order")
	flags.StringSliceVar(&a.sources, "sources", nil, "catalog sources to query")
	flags.BoolVar(&a.asJSON, "json", false, "print results as JSON")

	root.SetVersionTemplate(versionLine() + "\n")
	root.SetHelpFunc(renderHelp)

	root.AddCommand(
		newSearchCmd(a),
		newLatestCmd(a),
		newInfoCmd(a),
		newResolveCmd(a),
		newSubsCmd(a),
		newPlayCmd(a),
		newDownloadCmd(a),
		newFavCmd(a),
		newHistoryCmd(a),
		newPlaylistCmd(a),
		newSkipCmd(a),
		newSectionsCmd(a),
		newVersionCmd(),
	)
	return root
}

// setup loads the configuration and applies the global flags
func (a *app) setup() error {
	if a.cfg == nil {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		a.cfg = cfg
	}

	if a.debug {
		a.cfg.Debug = true
	}
	util.SetDebugMode(a.cfg.Debug)
	util.InitLogger()
	if a.perf {
		util.PerfEnabled = true
		util.GetPerfTracker().Reset()
	}

	if a.quality != "" {
		a.cfg.PreferredQuality = a.quality
	}
	if len(a.providers) > 0 {
		a.cfg.Providers.Order = lowerAll(a.providers)
	}
	if len(a.sources) > 0 {
		a.cfg.Catalog.Sources = lowerAll(a.sources)
	}
	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	util.Debug("Gostream starting", "version", version.Version, "providers", a.cfg.Providers.Order)
	return nil
}

// open returns the client, building it on first use
func (a *app) open() (*gostream.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	timer := util.StartTimer("client_init")
	client, err := a.newClient(a.cfg)
	if err != nil {
		return nil, err
	}
	timer.StopAndLog()
	a.client = client
	return client, nil
}

// openStore returns the client after checking its local database or an error explaining why it is missing
func (a *app) openStore() (*gostream.Client, error) {
	client, err := a.open()
	if err != nil {
		return nil, err
	}
	if client.Store() == nil {
		return nil, fmt.Errorf("local state is unavailable in this build (SQLite needs CGO)")
	}
	return client, nil
}

func (a *app) close() {
	if a.client == nil {
		return
	}
	if err := a.client.Close(); err != nil {
		util.Debug("Close failed", "error", err)
	}
	a.client = nil
}

// report prints the timing table when --perf was given
func (a *app) report(w io.Writer) {
	if !a.perf {
		return
	}
	util.GetPerfTracker().WriteReport(w)
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

func out(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}
