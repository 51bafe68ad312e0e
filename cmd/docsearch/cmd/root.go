// Package cmd provides the CLI commands for docsearch.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dregistry/docsearch/internal/config"
	"github.com/dregistry/docsearch/internal/crawler"
	"github.com/dregistry/docsearch/internal/embed"
	"github.com/dregistry/docsearch/internal/fetch"
	"github.com/dregistry/docsearch/internal/logging"
	"github.com/dregistry/docsearch/internal/store"
)

var (
	dataDir       string
	debugMode     bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the docsearch CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "docsearch",
		Short: "Index and hybrid-search the package registry",
		Long: `docsearch crawls the package registry, parses each package's
exported API and documentation, and serves hybrid keyword+vector search
over the result.

It is a thin driver over the library packages that do the real work:
internal/crawler, internal/ingest, internal/store, and internal/search.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logCfg := logging.DefaultConfig()
			if debugMode {
				logCfg = logging.DebugConfig()
			}
			logCfg.WriteToStderr = false
			if logger, cleanup, err := logging.Setup(logCfg); err == nil {
				slog.SetDefault(logger)
				loggingCleanup = cleanup
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if loggingCleanup != nil {
				loggingCleanup()
				loggingCleanup = nil
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Override the configured data directory")
	root.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	root.AddCommand(newIngestCmd())
	root.AddCommand(newIngestAllCmd())
	root.AddCommand(newSearchCmd())
	root.AddCommand(newStatsCmd())
	root.AddCommand(newMinePatternsCmd())
	root.AddCommand(newTrainCmd())
	root.AddCommand(newConfigCmd())

	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// app bundles the library objects every data-touching subcommand needs.
// Close releases the store's connection; callers defer it immediately
// after construction.
type app struct {
	Config  *config.Config
	Store   store.Store
	Crawler *crawler.Crawler
	Embed   *embed.Manager
}

func (a *app) Close() error {
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}

// newApp loads the layered config, opens the metadata store, and
// constructs the crawler and embedding manager the subcommands share.
func newApp(cmd *cobra.Command) (*app, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getwd: %w", err)
	}

	cfg, err := config.Load(cwd)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if dataDir != "" {
		cfg.DataRoot = dataDir
	}

	if err := os.MkdirAll(cfg.DataRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create data root %s: %w", cfg.DataRoot, err)
	}

	dbPath := filepath.Join(cfg.DataRoot, "search.db")
	st, err := store.Open(dbPath, cfg.Embedding.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", dbPath, err)
	}

	client := fetch.New(fetch.Config{
		MinInterval: time.Duration(cfg.Fetch.MinIntervalMS) * time.Millisecond,
		MaxRetries:  cfg.Fetch.MaxRetries,
		Timeout:     fetch.DefaultConfig().Timeout,
	})

	cr, err := crawler.New(crawler.Config{
		CacheRoot:   filepath.Join(cfg.DataRoot, "cache"),
		APIBase:     cfg.Registry.APIBase,
		ArchiveBase: cfg.Registry.ArchiveBase,
	}, client)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("construct crawler: %w", err)
	}

	var modelDir string
	if cfg.Embedding.Backend == config.EmbedderNeural || cfg.Embedding.Backend == config.EmbedderAuto {
		modelDir = cfg.Embedding.ModelDir
	}
	em := embed.NewManager(cfg.Embedding.Dimensions, modelDir, nil)

	slog.Debug("app initialized", slog.String("data_root", cfg.DataRoot))

	return &app{Config: cfg, Store: st, Crawler: cr, Embed: em}, nil
}
