package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/star/sattrack/internal/config"
	"github.com/star/sattrack/internal/httputil"
	"github.com/star/sattrack/internal/passes"
	"github.com/star/sattrack/internal/propagation"
	"github.com/star/sattrack/internal/sgp4"
	"github.com/star/sattrack/internal/transform"
)

const (
	// maxPositions bounds the samples of one propagation series.
	maxPositions = 10000
	// maxPassWindow bounds the span of one pass query.
	maxPassWindow = 7 * 24 * time.Hour

	defaultPassHours = 24
	groundTrackStep  = 10 * time.Second
)

// writeError maps an error to its response status. Caller input defects are
// 400, unknown objects 404 and propagation failures 422.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, propagation.ErrNoCatalog):
		httputil.WriteError(w, http.StatusServiceUnavailable, err.Error(), "")
	case errors.Is(err, propagation.ErrUnknownObject):
		httputil.WriteError(w, http.StatusNotFound, err.Error(), "")
	case errors.Is(err, propagation.ErrInvalidRange), errors.Is(err, passes.ErrInvalidElevation):
		httputil.WriteError(w, http.StatusBadRequest, err.Error(), "")
	case errors.Is(err, sgp4.ErrDecayedOrbit), errors.Is(err, sgp4.ErrInvalidDomain):
		httputil.WriteError(w, http.StatusUnprocessableEntity, err.Error(), propagation.Classify(err))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		httputil.WriteError(w, http.StatusServiceUnavailable, err.Error(), "")
	default:
		logger.Error("request failed", "component", "api", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "internal error", "")
	}
}

func badRequest(w http.ResponseWriter, format string, args ...any) {
	httputil.WriteError(w, http.StatusBadRequest, fmt.Sprintf(format, args...), "")
}

// parseTime reads an RFC 3339 query parameter, defaulting to now.
func parseTime(r *http.Request, key string, now func() time.Time) (time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be an RFC 3339 timestamp", key)
	}
	return t, nil
}

// parseFloat reads a float query parameter. A missing parameter yields def
// unless required is set.
func parseFloat(r *http.Request, key string, def float64, required bool) (float64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		if required {
			return 0, fmt.Errorf("%s is required", key)
		}
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%s must be a finite number", key)
	}
	return f, nil
}

func parseNoradID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(r.PathValue("norad_id"))
	if err != nil || id < 1 {
		return 0, errors.New("norad_id must be a positive integer")
	}
	return id, nil
}

func satellitesHandler(logger *slog.Logger, cat *propagation.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		objects, err := cat.Objects()
		if err != nil {
			writeError(w, logger, err)
			return
		}
		out := make([]satelliteJSON, len(objects))
		for i, obj := range objects {
			out[i] = newSatelliteJSON(obj.Elements, obj.Propagator)
		}
		httputil.WriteJSON(w, http.StatusOK, out)
	}
}

func snapshotHandler(logger *slog.Logger, cat *propagation.Catalog, now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		at, err := parseTime(r, "time", now)
		if err != nil {
			badRequest(w, "%v", err)
			return
		}

		snap, err := cat.Snapshot(r.Context(), at)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		out := snapshotJSON{
			Time:      at.UTC(),
			Count:     len(snap.Positions),
			Positions: make([]positionJSON, len(snap.Positions)),
			Failed:    make([]failureJSON, 0, len(snap.Failed)),
		}
		for i, p := range snap.Positions {
			out.Positions[i] = newPositionJSON(p)
		}
		for id, ferr := range snap.Failed {
			out.Failed = append(out.Failed, failureJSON{NoradID: id, Error: ferr.Error(), Kind: propagation.Classify(ferr)})
		}
		slices.SortFunc(out.Failed, func(a, b failureJSON) int { return a.NoradID - b.NoradID })
		httputil.WriteJSON(w, http.StatusOK, out)
	}
}

// propagateSingleHandler serves one object's position at ?time=, or a
// series from ?time= over ?horizon= seconds at ?step= seconds.
func propagateSingleHandler(logger *slog.Logger, cat *propagation.Catalog, now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseNoradID(r)
		if err != nil {
			badRequest(w, "%v", err)
			return
		}
		at, err := parseTime(r, "time", now)
		if err != nil {
			badRequest(w, "%v", err)
			return
		}
		horizon, err := parseFloat(r, "horizon", 0, false)
		if err != nil {
			badRequest(w, "%v", err)
			return
		}

		if horizon == 0 {
			pos, err := cat.Position(id, at)
			if err != nil {
				writeError(w, logger, err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, newPositionJSON(pos))
			return
		}

		step, err := parseFloat(r, "step", 60, false)
		if err != nil {
			badRequest(w, "%v", err)
			return
		}
		if horizon < 0 || step <= 0 {
			badRequest(w, "horizon and step must be positive")
			return
		}
		if n := int(horizon/step) + 1; n > maxPositions {
			httputil.WriteJSON(w, http.StatusBadRequest, map[string]any{
				"error":         fmt.Sprintf("request needs %d positions", n),
				"max_positions": maxPositions,
			})
			return
		}

		stepDur := time.Duration(step * float64(time.Second))
		end := at.Add(time.Duration(horizon * float64(time.Second)))
		positions, err := cat.Positions(r.Context(), id, at, end, stepDur)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		out := seriesJSON{NoradID: id, Step: step, Positions: make([]positionJSON, len(positions))}
		for i, p := range positions {
			out.Positions[i] = newPositionJSON(p)
		}
		if len(positions) > 0 {
			out.Name = positions[0].Name
		}
		httputil.WriteJSON(w, http.StatusOK, out)
	}
}

func passesHandler(logger *slog.Logger, cat *propagation.Catalog, defaults config.PassConfig, now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseNoradID(r)
		if err != nil {
			badRequest(w, "%v", err)
			return
		}
		lat, err := parseFloat(r, "lat", 0, true)
		if err != nil {
			badRequest(w, "%v", err)
			return
		}
		lon, err := parseFloat(r, "lon", 0, true)
		if err != nil {
			badRequest(w, "%v", err)
			return
		}
		alt, err := parseFloat(r, "alt", 0, false)
		if err != nil {
			badRequest(w, "%v", err)
			return
		}
		hours, err := parseFloat(r, "hours", defaultPassHours, false)
		if err != nil {
			badRequest(w, "%v", err)
			return
		}
		minEl, err := parseFloat(r, "min_el", defaults.MinElevation, false)
		if err != nil {
			badRequest(w, "%v", err)
			return
		}
		start, err := parseTime(r, "start", now)
		if err != nil {
			badRequest(w, "%v", err)
			return
		}

		window := time.Duration(hours * float64(time.Hour))
		if hours <= 0 || window > maxPassWindow {
			badRequest(w, "hours must be in (0, %g]", maxPassWindow.Hours())
			return
		}
		obs, err := transform.NewObserver(lat, lon, alt)
		if err != nil {
			badRequest(w, "%v", err)
			return
		}
		obj, err := cat.Lookup(id)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		end := start.Add(window)
		found, searchErr := passes.FindPasses(obj.Propagator, obs, start, end, minEl,
			passes.WithCoarseStep(defaults.CoarseStep),
			passes.WithTolerance(defaults.Tolerance),
			passes.WithMaxPasses(defaults.MaxPasses),
			passes.WithLogger(logger),
		)
		if searchErr != nil && found == nil && !isPropagationFailure(searchErr) {
			writeError(w, logger, searchErr)
			return
		}

		out := passesJSON{
			NoradID:      id,
			Name:         obj.Elements.Name,
			Observer:     observerJSON{Latitude: obs.LatitudeDeg, Longitude: obs.LongitudeDeg, Altitude: obs.AltitudeKm},
			Start:        start.UTC(),
			End:          end.UTC(),
			MinElevation: minEl,
			Passes:       make([]passJSON, 0, len(found)),
		}
		if searchErr != nil {
			out.Error = searchErr.Error()
			out.Kind = propagation.Classify(searchErr)
		}
		for _, p := range found {
			track, err := passes.GroundTrack(obj.Propagator, obs, p, groundTrackStep)
			if err != nil {
				logger.Warn("ground track failed", "norad_id", id, "error", err)
			}
			out.Passes = append(out.Passes, newPassJSON(p, track))
		}
		httputil.WriteJSON(w, http.StatusOK, out)
	}
}

func isPropagationFailure(err error) bool {
	return errors.Is(err, sgp4.ErrDecayedOrbit) || errors.Is(err, sgp4.ErrInvalidDomain)
}
