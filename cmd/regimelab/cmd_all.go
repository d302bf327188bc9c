package main

import (
	"context"

	"github.com/spf13/cobra"

	"regimelab/internal/pipeline"
)

func newAllCmd(a *app) *cobra.Command {
	var resume bool
	cmd := &cobra.Command{
		Use:   "all",
		Short: "Run the whole study: sweep, then figures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := pipeline.New(a.log,
				pipeline.Stage{
					Name: "simulate",
					Run: func(ctx context.Context) error {
						return runSimulate(ctx, a, resume)
					},
				},
				pipeline.Stage{
					Name: "figures",
					Run: func(ctx context.Context) error {
						return runFigures(ctx, a)
					},
				},
			)
			if err != nil {
				return err
			}
			return p.Run(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&resume, "resume", false,
		"skip pairs a previous identical sweep already completed")
	return cmd
}
