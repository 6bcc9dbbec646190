package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"
)

func newTrajectoryCmd(a *app) *cobra.Command {
	var (
		start    string
		duration time.Duration
		step     time.Duration
		norad    int
	)
	cmd := &cobra.Command{
		Use:   "trajectory",
		Short: "Print one object's states at a fixed step over a time span",
		RunE: func(cmd *cobra.Command, args []string) error {
			if norad <= 0 {
				return errors.New("--norad is required")
			}
			t0, err := parseInstant(start)
			if err != nil {
				return err
			}
			_, cat, err := a.catalog(nil)
			if err != nil {
				return err
			}
			positions, err := cat.Positions(cmd.Context(), norad, t0, t0.Add(duration), step)
			if werr := writePositions(cmd.OutOrStdout(), positions); werr != nil {
				return werr
			}
			return err
		},
	}
	cmd.Flags().IntVar(&norad, "norad", 0, "catalog number")
	cmd.Flags().StringVar(&start, "start", "", "first instant (RFC 3339, default now)")
	cmd.Flags().DurationVar(&duration, "duration", 90*time.Minute, "span to cover")
	cmd.Flags().DurationVar(&step, "step", time.Minute, "sample interval")
	return cmd
}
