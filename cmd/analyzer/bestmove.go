package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jacokyle01/live-analysis/models"
)

type bestMoveOptions struct {
	*rootOptions
	FEN   string
	Moves []string
	Depth int
}

func newBestMoveCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &bestMoveOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "bestmove",
		Short: "Print the engine's move for a position",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if opts.Depth < 1 {
				opts.Depth = cfg.Analysis.EngineMoveDepth
			}

			b, err := boardFrom(opts.FEN, opts.Moves)
			if err != nil {
				return err
			}

			session, err := sessionFactory(cfg.Engine)()
			if err != nil {
				return err
			}
			defer session.Shutdown()
			if err := session.Start(ctx); err != nil {
				return err
			}

			move, err := session.BestMove(ctx, b.Position(), models.SearchLimit{Depth: opts.Depth})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), move)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.FEN, "fen", "", "position (standard start when empty)")
	cmd.Flags().StringSliceVar(&opts.Moves, "moves", nil, "moves to play from the position first, in UCI notation")
	cmd.Flags().IntVar(&opts.Depth, "depth", 0, "search depth, overrides analysis.engine_move_depth")

	return cmd
}
