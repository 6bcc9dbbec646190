package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/star/sattrack/internal/config"
	"github.com/star/sattrack/internal/propagation"
	"github.com/star/sattrack/internal/tle"
)

// app carries the state shared by every subcommand once the root command
// has resolved configuration.
type app struct {
	configPath  string
	catalogPath string
	logLevel    string

	cfg    config.Config
	logger *slog.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "sattrack",
		Short:        "Satellite propagation and pass prediction from two-line element sets",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (TOML, YAML or JSON)")
	flags.StringVar(&a.catalogPath, "catalog", "", "element set catalog file (overrides catalog.path)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides log.level)")

	root.AddCommand(
		newPropagateCmd(a),
		newTrajectoryCmd(a),
		newPassesCmd(a),
		newServeCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	// Configuration warnings go to a bootstrap logger until the
	// configured level is known.
	boot := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg, err := config.Load(a.configPath, boot)
	if err != nil {
		return err
	}
	if a.catalogPath != "" {
		cfg.Catalog.Path = a.catalogPath
	}
	if a.logLevel != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(a.logLevel)); err != nil {
			return fmt.Errorf("invalid --log-level %q: %w", a.logLevel, err)
		}
	}
	a.cfg = cfg
	a.logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	return nil
}

// catalog loads the configured catalog file and returns a Catalog over it.
func (a *app) catalog(cache *tle.Cache) (*tle.Store, *propagation.Catalog, error) {
	store := tle.NewStore()
	if err := tle.NewLoader(store, a.cfg.Catalog.Path, cache, a.logger).Reload(); err != nil && store.Get() == nil {
		return nil, nil, err
	}
	pool := propagation.NewWorkerPool(a.cfg.Propagation.Workers, a.logger)
	return store, propagation.NewCatalog(store, pool, a.logger), nil
}
