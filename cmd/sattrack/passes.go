package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/star/sattrack/internal/passes"
	"github.com/star/sattrack/internal/transform"
)

func newPassesCmd(a *app) *cobra.Command {
	var (
		lat, lon, alt float64
		minEl         float64
		start         string
		hours         float64
		norad         int
		station       string
	)
	cmd := &cobra.Command{
		Use:   "passes",
		Short: "Predict rise, peak and set of passes over an observer",
		RunE: func(cmd *cobra.Command, args []string) error {
			t0, err := parseInstant(start)
			if err != nil {
				return err
			}
			obs, err := transform.NewObserver(lat, lon, alt)
			if err != nil {
				return err
			}
			gs := passes.NewGroundStation(station, obs)
			gs.MinElevation = a.cfg.Passes.MinElevation
			if cmd.Flags().Changed("min-el") {
				gs.MinElevation = minEl
			}

			_, cat, err := a.catalog(nil)
			if err != nil {
				return err
			}
			objects, err := cat.Objects()
			if err != nil {
				return err
			}

			req := passes.Request{
				Station: gs,
				Start:   t0,
				End:     t0.Add(time.Duration(hours * float64(time.Hour))),
				Options: []passes.Option{
					passes.WithCoarseStep(a.cfg.Passes.CoarseStep),
					passes.WithTolerance(a.cfg.Passes.Tolerance),
					passes.WithMaxPasses(a.cfg.Passes.MaxPasses),
					passes.WithLogger(a.logger),
				},
			}
			for _, obj := range objects {
				if norad > 0 && obj.Elements.CatalogNumber != norad {
					continue
				}
				req.Targets = append(req.Targets, passes.Target{
					CatalogNumber: obj.Elements.CatalogNumber,
					Name:          obj.Elements.Name,
					Propagator:    obj.Propagator,
				})
			}
			if norad > 0 && len(req.Targets) == 0 {
				_, err := cat.Lookup(norad)
				return err
			}

			writePasses(cmd.OutOrStdout(), passes.Predict(cmd.Context(), req))
			return nil
		},
	}
	f := cmd.Flags()
	f.Float64Var(&lat, "lat", 0, "observer latitude, degrees")
	f.Float64Var(&lon, "lon", 0, "observer longitude, degrees")
	f.Float64Var(&alt, "alt", 0, "observer altitude, km")
	f.Float64Var(&minEl, "min-el", passes.DefaultMinElevation, "minimum elevation, degrees (default passes.min_elevation)")
	f.StringVar(&start, "start", "", "window start (RFC 3339, default now)")
	f.Float64Var(&hours, "hours", 24, "window length, hours")
	f.IntVar(&norad, "norad", 0, "catalog number (default all objects)")
	f.StringVar(&station, "station", "observer", "ground station name")
	return cmd
}

func writePasses(w io.Writer, results []passes.Result) {
	total := 0
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(w, "  NORAD %d: ERROR %v\n", r.CatalogNumber, r.Err)
		}
		if len(r.Passes) == 0 {
			continue
		}
		fmt.Fprintf(w, "  NORAD %d %s: %d passes\n", r.CatalogNumber, r.Name, len(r.Passes))
		total += len(r.Passes)
		for j, p := range r.Passes {
			fmt.Fprintf(w, "    pass %d: aos=%s tca=%s los=%s maxEl=%.1f° az=%.0f°/%.0f°/%.0f° dur=%.0fs%s\n",
				j,
				p.AOS.UTC().Format(time.RFC3339),
				p.TCA.UTC().Format(time.RFC3339),
				p.LOS.UTC().Format(time.RFC3339),
				p.MaxElevation,
				p.AOSAzimuth, p.TCAAzimuth, p.LOSAzimuth,
				p.Duration.Seconds(),
				truncation(p))
		}
	}
	fmt.Fprintf(w, "\nTotal passes found: %d\n", total)
}

func truncation(p passes.Pass) string {
	switch {
	case p.AOSTruncated && p.LOSTruncated:
		return " (clipped at both ends)"
	case p.AOSTruncated:
		return " (in progress at start)"
	case p.LOSTruncated:
		return " (in progress at end)"
	}
	return ""
}
