// Command analyzer runs a UCI chess engine behind a live analysis service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jacokyle01/live-analysis/board"
	"github.com/jacokyle01/live-analysis/config"
	"github.com/jacokyle01/live-analysis/models"
	"github.com/jacokyle01/live-analysis/store"
	"github.com/jacokyle01/live-analysis/worker"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	ConfigPath string
	EnginePath string
	Verbose    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "analyzer",
		Short: "Live chess analysis with a UCI engine",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if opts.Verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config (defaults built in)")
	cmd.PersistentFlags().StringVar(&opts.EnginePath, "engine", "", "engine executable, overrides engine.path")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log engine traffic")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newAnalyzeCommand(opts))
	cmd.AddCommand(newBestMoveCommand(opts))

	return cmd
}

// loadConfig reads the config file, if any, and resolves the engine executable.
func (o *rootOptions) loadConfig() (config.Config, error) {
	cfg := config.Default()
	if o.ConfigPath != "" {
		var err error
		if cfg, err = config.Load(o.ConfigPath); err != nil {
			return cfg, err
		}
	}
	if o.EnginePath != "" {
		cfg.Engine.Path = o.EnginePath
	}
	path, err := config.ResolveEnginePath(cfg.Engine.Path)
	if err != nil {
		return cfg, fmt.Errorf("%w: %v", worker.ErrEngineUnavailable, err)
	}
	cfg.Engine.Path = path
	return cfg, nil
}

func sessionFactory(cfg config.Engine) func() (*worker.Session, error) {
	return func() (*worker.Session, error) {
		return worker.NewSession(cfg, worker.ExecLauncher(cfg.Path, cfg.Args...))
	}
}

func openCache(cfg config.Cache) (store.Cache, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	cache, err := store.Open(cfg.Path)
	if err != nil {
		return nil, err
	}
	slog.Info("analysis cache opened", "path", cfg.Path)
	return cache, nil
}

// boardFrom builds a board from fen, or the standard start, and plays moves.
func boardFrom(fen string, moves []string) (*board.Board, error) {
	b := board.New()
	if fen != "" {
		var err error
		if b, err = board.FromFEN(fen); err != nil {
			return nil, err
		}
	}
	for _, m := range moves {
		if err := b.Apply(models.Move(m)); err != nil {
			return nil, err
		}
	}
	return b, nil
}
