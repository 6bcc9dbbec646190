// Package stream implements Server-Sent Events (SSE) streaming of catalog
// positions. Clients connect via GET /api/v1/stream/positions and receive
// an Earth-fixed snapshot of the catalog every step seconds.
//
// SSE message format:
//
//	data: {"type":"snapshot","t":"2024-04-09T12:00:00Z","frame":"ECEF","sat":[...],"failed":0}\n\n
//
// First message is always metadata:
//
//	data: {"type":"metadata","source":"file:/data/catalog.tle","catalog_age_seconds":1800,"objects":3}\n\n
//
// Keep-alive comments (:\n\n) are sent every KeepaliveInterval without data.
// Reconnecting clients receive a fresh metadata message on each connection.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/star/sattrack/internal/httputil"
	"github.com/star/sattrack/internal/metrics"
	"github.com/star/sattrack/internal/propagation"
	"github.com/star/sattrack/internal/tle"
)

const (
	defaultStep = 5
	maxStep     = 60
	// maxFilterIDs bounds the ids= filter of one stream.
	maxFilterIDs = 1000
)

// Config holds streaming limits.
type Config struct {
	MaxConcurrentPerIP int           // default 10
	KeepaliveInterval  time.Duration // default 30s
	TrustProxy         bool
}

// Snapshotter produces catalog positions at an instant.
// *propagation.Catalog satisfies it.
type Snapshotter interface {
	Snapshot(ctx context.Context, at time.Time) (*propagation.Snapshot, error)
}

// Handler manages SSE streaming connections.
type Handler struct {
	source  Snapshotter
	store   *tle.Store
	config  Config
	limiter *streamLimiter
	logger  *slog.Logger
	now     func() time.Time
}

// NewHandler creates a streaming handler over source. store supplies the
// dataset metadata sent on connect.
func NewHandler(source Snapshotter, store *tle.Store, config Config, logger *slog.Logger) *Handler {
	if config.MaxConcurrentPerIP < 1 {
		config.MaxConcurrentPerIP = 10
	}
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = 30 * time.Second
	}
	return &Handler{
		source:  source,
		store:   store,
		config:  config,
		limiter: newStreamLimiter(config.MaxConcurrentPerIP),
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock replaces the time source used for snapshot instants and the
// catalog age.
func (h *Handler) WithClock(now func() time.Time) *Handler {
	h.now = now
	return h
}

// HandlePositions serves the SSE position stream.
// GET /api/v1/stream/positions?step=5&ids=25544,26038
func (h *Handler) HandlePositions(w http.ResponseWriter, r *http.Request) {
	step := defaultStep
	if v := r.URL.Query().Get("step"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxStep {
			httputil.WriteError(w, http.StatusBadRequest, "invalid step parameter, must be 1-60", "")
			return
		}
		step = n
	}

	filter, err := parseIDs(r.URL.Query().Get("ids"))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	ds := h.store.Get()
	if ds == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, propagation.ErrNoCatalog.Error(), "")
		return
	}

	// Rate limiting: enforce concurrent stream limit per IP.
	ip := httputil.ClientIP(r, h.config.TrustProxy)
	if !h.limiter.acquire(ip) {
		metrics.IncStreamErrors("rate_limit")
		h.logger.Warn("stream rate limit exceeded",
			"remote_ip", ip,
			"current_count", h.limiter.count(ip),
		)
		w.Header().Set("Retry-After", "30")
		httputil.WriteError(w, http.StatusTooManyRequests, "too many concurrent streams", "")
		return
	}

	metrics.IncStreamConnections("connect")
	metrics.IncStreamsActive()

	startTime := time.Now()
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
		"step", step,
		"filtered_ids", len(filter),
	)

	defer func() {
		h.limiter.release(ip)
		metrics.IncStreamConnections("disconnect")
		metrics.DecStreamsActive()
		h.logger.Info("stream disconnected",
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
		)
	}()

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, http.StatusInternalServerError, "streaming not supported", "")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Clear the server's WriteTimeout for this connection; each write
	// sets its own deadline.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	c := &client{
		w:       w,
		flusher: flusher,
		rc:      rc,
		ip:      ip,
		logger:  h.logger,
	}

	// Jittered retry interval (3-7s) spreads reconnects after a restart.
	if err := c.sendRetry(3000 + rand.IntN(4000)); err != nil {
		metrics.IncStreamErrors("send_error")
		return
	}

	meta := metadataMessage{
		Type:       "metadata",
		Source:     ds.Source,
		CatalogAge: int(h.now().Sub(ds.LoadedAt).Seconds()),
		Objects:    ds.Len(),
		Step:       step,
	}
	if err := c.sendJSON(meta); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
		return
	}

	ctx := r.Context()
	if !h.sendSnapshot(ctx, c, h.now(), filter) {
		return
	}

	ticker := time.NewTicker(time.Duration(step) * time.Second)
	defer ticker.Stop()

	keepaliveTicker := time.NewTicker(h.config.KeepaliveInterval)
	defer keepaliveTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if !h.sendSnapshot(ctx, c, h.now(), filter) {
				return
			}
			keepaliveTicker.Reset(h.config.KeepaliveInterval)

		case <-keepaliveTicker.C:
			if err := c.sendKeepalive(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}

// sendSnapshot propagates the catalog to at and sends one batch. It
// reports whether the stream should continue.
func (h *Handler) sendSnapshot(ctx context.Context, c *client, at time.Time, filter map[int]bool) bool {
	snap, err := h.source.Snapshot(ctx, at)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false
		}
		metrics.IncStreamErrors("snapshot_error")
		h.logger.Warn("stream snapshot failed", "remote_ip", c.ip, "error", err)
		return true
	}
	if err := c.sendJSON(buildBatchMessage(snap, filter)); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error", "remote_ip", c.ip, "error", err)
		return false
	}
	return true
}

// parseIDs reads a comma-separated catalog number filter. An empty value
// means no filter.
func parseIDs(v string) (map[int]bool, error) {
	if v == "" {
		return nil, nil
	}
	parts := strings.Split(v, ",")
	if len(parts) > maxFilterIDs {
		return nil, fmt.Errorf("ids accepts at most %d catalog numbers", maxFilterIDs)
	}
	ids := make(map[int]bool, len(parts))
	for _, p := range parts {
		id, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || id < 1 {
			return nil, fmt.Errorf("invalid ids parameter %q", p)
		}
		ids[id] = true
	}
	return ids, nil
}

// buildBatchMessage formats a snapshot into the SSE batch payload. A nil
// filter keeps every object.
func buildBatchMessage(snap *propagation.Snapshot, filter map[int]bool) snapshotMessage {
	sats := make([]satPayload, 0, len(snap.Positions))
	for _, p := range snap.Positions {
		if filter != nil && !filter[p.CatalogNumber] {
			continue
		}
		sats = append(sats, satPayload{
			ID:  p.CatalogNumber,
			P:   [3]float64{p.ECEF.Position.X, p.ECEF.Position.Y, p.ECEF.Position.Z},
			Lat: p.Geodetic.LatitudeDeg,
			Lon: p.Geodetic.LongitudeDeg,
			Alt: p.Geodetic.AltitudeKm,
		})
	}
	failed := 0
	for id := range snap.Failed {
		if filter == nil || filter[id] {
			failed++
		}
	}
	return snapshotMessage{
		Type:   "snapshot",
		T:      snap.Time.UTC().Format(time.RFC3339),
		Frame:  "ECEF",
		Sat:    sats,
		Failed: failed,
	}
}

// SSE message payload types.

type metadataMessage struct {
	Type       string `json:"type"`
	Source     string `json:"source"`
	CatalogAge int    `json:"catalog_age_seconds"`
	Objects    int    `json:"objects"`
	Step       int    `json:"step_seconds"`
}

type snapshotMessage struct {
	Type   string       `json:"type"`
	T      string       `json:"t"`
	Frame  string       `json:"frame"`
	Sat    []satPayload `json:"sat"`
	Failed int          `json:"failed"`
}

// satPayload carries an ECEF position in km and the sub-satellite point.
type satPayload struct {
	ID  int        `json:"id"`
	P   [3]float64 `json:"p"`
	Lat float64    `json:"lat"`
	Lon float64    `json:"lon"`
	Alt float64    `json:"alt"`
}
