package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/star/sattrack/internal/propagation"
	"github.com/star/sattrack/internal/sgp4"
)

// parseInstant parses an RFC 3339 flag value; empty means now.
func parseInstant(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: want RFC 3339", s)
	}
	return t, nil
}

func newPropagateCmd(a *app) *cobra.Command {
	var (
		at       string
		norad    int
		elements bool
	)
	cmd := &cobra.Command{
		Use:   "propagate",
		Short: "Print TEME, Earth-fixed and geodetic state of catalog objects at an instant",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parseInstant(at)
			if err != nil {
				return err
			}
			_, cat, err := a.catalog(nil)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if norad > 0 {
				pos, err := cat.Position(norad, t)
				if err != nil {
					return err
				}
				if elements {
					return writeElements(out, pos)
				}
				return writePositions(out, []propagation.Position{pos})
			}
			if elements {
				return fmt.Errorf("--elements requires --norad")
			}

			snap, err := cat.Snapshot(cmd.Context(), t)
			if err != nil {
				return err
			}
			if err := writePositions(out, snap.Positions); err != nil {
				return err
			}
			for id, ferr := range snap.Failed {
				fmt.Fprintf(cmd.ErrOrStderr(), "%d: %v\n", id, ferr)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "time", "", "instant (RFC 3339, default now)")
	cmd.Flags().IntVar(&norad, "norad", 0, "catalog number (default all objects)")
	cmd.Flags().BoolVar(&elements, "elements", false, "print osculating elements instead of the state (needs --norad)")
	return cmd
}

func writePositions(w io.Writer, positions []propagation.Position) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "NORAD\tTIME\tX_KM\tY_KM\tZ_KM\tVX_KM_S\tVY_KM_S\tVZ_KM_S\tLAT\tLON\tALT_KM\tNAME\t")
	for _, p := range positions {
		r, v := p.TEME.Position, p.TEME.Velocity
		fmt.Fprintf(tw, "%d\t%s\t%.3f\t%.3f\t%.3f\t%.6f\t%.6f\t%.6f\t%.4f\t%.4f\t%.3f\t%s\t\n",
			p.CatalogNumber, p.Time.UTC().Format(time.RFC3339),
			r.X, r.Y, r.Z, v.X, v.Y, v.Z,
			p.Geodetic.LatitudeDeg, p.Geodetic.LongitudeDeg, p.Geodetic.AltitudeKm,
			p.Name)
	}
	return tw.Flush()
}

func writeElements(w io.Writer, p propagation.Position) error {
	el := sgp4.Osculating(p.TEME)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "NORAD\tTIME\tA_KM\tECC\tINC\tRAAN\tARGP\tTA\tMA\t")
	fmt.Fprintf(tw, "%d\t%s\t%.3f\t%.7f\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\t\n",
		p.CatalogNumber, p.Time.UTC().Format(time.RFC3339),
		el.SemiMajorAxisKm, el.Eccentricity, el.Inclination,
		el.RAAN, el.ArgPerigee, el.TrueAnomaly, el.MeanAnomaly)
	return tw.Flush()
}
