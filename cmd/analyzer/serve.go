package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jacokyle01/live-analysis/analysis"
	"github.com/jacokyle01/live-analysis/primaryserver"
)

type serveOptions struct {
	*rootOptions
	Addr         string
	FEN          string
	NoAutoStart  bool
	RespawnAfter time.Duration
}

func newServeCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &serveOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the board and its live analysis over HTTP",
		Long: `Start the engine, analyze the board continuously and serve it over HTTP.

Example:
  analyzer serve --addr :8080
  analyzer serve --config analyzer.yaml --fen "8/8/8/8/8/8/6k1/4K2R w K - 0 1"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address, overrides server.addr")
	cmd.Flags().StringVar(&opts.FEN, "fen", "", "starting position (standard start when empty)")
	cmd.Flags().BoolVar(&opts.NoAutoStart, "no-auto-start", false, "wait for POST /scheduler/start before analyzing")
	cmd.Flags().DurationVar(&opts.RespawnAfter, "respawn-after", 0, "restart a failed engine after this delay (0 disables)")

	return cmd
}

func runServe(ctx context.Context, opts *serveOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if opts.Addr != "" {
		cfg.Server.Addr = opts.Addr
	}

	b, err := boardFrom(opts.FEN, nil)
	if err != nil {
		return err
	}

	cache, err := openCache(cfg.Cache)
	if err != nil {
		return err
	}
	if cache != nil {
		defer cache.Close()
	}

	a := analysis.New(cfg, sessionFactory(cfg.Engine), cache, b.Position())
	defer a.Shutdown()
	if err := a.Open(ctx); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	srv := primaryserver.NewServer(ctx, a, b)
	if !opts.NoAutoStart {
		if err := a.Start(ctx); err != nil {
			return err
		}
	}

	g.Go(func() error {
		return srv.StartServer(ctx, cfg.Server.Addr)
	})

	// Engine failures halt analysis; report them and respawn if asked to.
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case err := <-a.Failures():
				slog.Error("engine failed", "error", err)
				if opts.RespawnAfter <= 0 {
					continue
				}
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(opts.RespawnAfter):
				}
				if err := a.Respawn(ctx); err != nil {
					slog.Error("respawn engine", "error", err)
				}
			}
		}
	})

	return g.Wait()
}
