package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jacokyle01/live-analysis/analysis"
	"github.com/jacokyle01/live-analysis/models"
)

type analyzeOptions struct {
	*rootOptions
	FEN   string
	Moves []string
	Depth int
	Lines int
	JSON  bool
}

func newAnalyzeCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &analyzeOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze one position and print the ranked lines",
		Long: `Analyze one position to the configured depth and print the ranked lines,
scores from white's point of view.

Example:
  analyzer analyze --moves e2e4,e7e5 --depth 18
  analyzer analyze --fen "8/8/8/8/8/8/6k1/4K2R w K - 0 1" --lines 1 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.FEN, "fen", "", "position to analyze (standard start when empty)")
	cmd.Flags().StringSliceVar(&opts.Moves, "moves", nil, "moves to play from the position first, in UCI notation")
	cmd.Flags().IntVar(&opts.Depth, "depth", 0, "search depth, overrides analysis.depth")
	cmd.Flags().IntVar(&opts.Lines, "lines", 0, "number of lines, overrides analysis.lines")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "print the snapshot as JSON")

	return cmd
}

func runAnalyze(cmd *cobra.Command, opts *analyzeOptions) error {
	ctx := cmd.Context()
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if opts.Depth > 0 {
		cfg.Analysis.Depth = opts.Depth
	}
	if opts.Lines > 0 {
		cfg.Analysis.Lines = opts.Lines
	}
	cfg.Analysis.Pacing = 0

	b, err := boardFrom(opts.FEN, opts.Moves)
	if err != nil {
		return err
	}
	pos := b.Position()

	cache, err := openCache(cfg.Cache)
	if err != nil {
		return err
	}
	if cache != nil {
		defer cache.Close()
	}

	a := analysis.New(cfg, sessionFactory(cfg.Engine), cache, pos)
	defer a.Shutdown()
	if err := a.Open(ctx); err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return err
	}

	snap, err := waitFinal(ctx, a)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}
	fmt.Fprintf(out, "%s (depth %d)\n%s\n", pos.FEN, snap.Depth, analysis.FormatText(snap))
	return nil
}

// waitFinal polls until the analyzer publishes its final result or fails.
func waitFinal(ctx context.Context, a *analysis.Analyzer) (models.AnalysisSnapshot, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if snap, ok := a.Latest(); ok && snap.Final {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return models.AnalysisSnapshot{}, ctx.Err()
		case err := <-a.Failures():
			return models.AnalysisSnapshot{}, err
		case <-ticker.C:
		}
	}
}
