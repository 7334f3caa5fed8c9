package reuse

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/waypoint-ai/waypoint/pkg/cache"
	"github.com/waypoint-ai/waypoint/pkg/geo"
	"github.com/waypoint-ai/waypoint/pkg/models"
)

// Refetch resolves destination, fetches directions and weather concurrently,
// and caches the assembled snapshot under a fresh id. Every mode's route is
// also cached as a segment. Nothing is cached when any upstream call fails or
// when no mode produced a route.
func (e *Engine) Refetch(ctx context.Context, origin models.Location, destination string) (*models.Snapshot, error) {
	if err := (geo.Point{Lat: origin.Lat, Lng: origin.Lng}).Validate(); err != nil {
		return nil, err
	}
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return nil, ErrNoDestination
	}

	destLoc, err := e.upstream.Geocoder.Geocode(ctx, destination)
	if err != nil {
		return nil, upstreamError("geocode", err)
	}

	var (
		routes  map[string]models.RouteInfo
		weather models.WeatherInfo
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := e.upstream.Maps.FetchDirections(gctx, origin.Lat, origin.Lng, destination, e.opts.Modes)
		if err != nil {
			return upstreamError("directions", err)
		}
		routes = r
		return nil
	})
	g.Go(func() error {
		w, err := e.weatherAt(gctx, destLoc)
		if err != nil {
			return err
		}
		weather = w
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if reason, ok := allModesFailed(routes, e.opts.Modes); ok {
		return nil, upstreamError("directions", fmt.Errorf("no route for any mode: %s", reason))
	}

	now := e.clock.Now()
	snap := &models.Snapshot{
		ID:          e.snapshotID(origin, destination, now.UnixNano()),
		Origin:      origin,
		Destination: models.Destination{Name: destination, Lat: destLoc.Lat, Lng: destLoc.Lng},
		FetchedAt:   now.UTC(),
		Routes:      routes,
		Weather:     weather,
	}
	if err := e.store.Put(ctx, cache.NamespaceSnapshot, snap.ID, snap); err != nil {
		return nil, fmt.Errorf("cache snapshot: %w", err)
	}
	e.cacheSegments(ctx, snap)

	slog.Info("snapshot fetched",
		"snapshot_id", snap.ID,
		"destination", destination,
		"modes", len(routes),
	)
	return snap, nil
}

// RouteInfo returns the snapshot cached for the origin/destination pair,
// fetching and caching a new one on a miss. The second result is "cache" or
// "api".
func (e *Engine) RouteInfo(ctx context.Context, origin models.Location, destination string) (*models.Snapshot, string, error) {
	if err := (geo.Point{Lat: origin.Lat, Lng: origin.Lng}).Validate(); err != nil {
		return nil, "", err
	}
	if strings.TrimSpace(destination) == "" {
		return nil, "", ErrNoDestination
	}

	key := RouteKey(origin, destination)
	var cached models.Snapshot
	if e.store.Get(ctx, cache.NamespaceSnapshot, key, &cached) {
		return &cached, "cache", nil
	}

	snap, err := e.Refetch(ctx, origin, destination)
	if err != nil {
		return nil, "", err
	}
	if err := e.store.Put(ctx, cache.NamespaceSnapshot, key, snap); err != nil {
		slog.Warn("caching route lookup failed", "key", key, "error", err)
	}
	return snap, "api", nil
}

// RouteKey is the cache key for a route lookup by origin and destination.
func RouteKey(origin models.Location, destination string) string {
	return strconv.FormatFloat(origin.Lat, 'f', -1, 64) + "," +
		strconv.FormatFloat(origin.Lng, 'f', -1, 64) + "->" +
		normalizeDestination(destination)
}

// Segment returns one cached segment of a route.
func (e *Engine) Segment(ctx context.Context, routeID string, index int) (models.RouteSegment, bool) {
	var seg models.RouteSegment
	if !e.store.Get(ctx, cache.NamespaceSegment, SegmentKey(routeID, index), &seg) {
		return models.RouteSegment{}, false
	}
	return seg, true
}

// SegmentKey is the cache key of segment index of routeID.
func SegmentKey(routeID string, index int) string {
	return routeID + "#" + strconv.Itoa(index)
}

func (e *Engine) cacheSegments(ctx context.Context, snap *models.Snapshot) {
	i := 0
	for _, mode := range e.opts.Modes {
		route, ok := snap.Routes[mode]
		if !ok || !route.OK() {
			continue
		}
		seg := models.RouteSegment{RouteID: snap.ID, SegmentIndex: i, Mode: mode, Payload: route}
		if err := e.store.Put(ctx, cache.NamespaceSegment, SegmentKey(snap.ID, i), seg); err != nil {
			slog.Warn("caching route segment failed", "route_id", snap.ID, "segment", i, "error", err)
		}
		i++
	}
}

// weatherAt returns the weather at loc, served from the weather namespace when
// a nearby point was observed recently.
func (e *Engine) weatherAt(ctx context.Context, loc models.Location) (models.WeatherInfo, error) {
	key := WeatherKey(loc)
	var wp models.WeatherPoint
	if e.store.Get(ctx, cache.NamespaceWeather, key, &wp) {
		return wp.Info(), nil
	}

	w, err := e.upstream.Weather.FetchWeather(ctx, loc.Lat, loc.Lng)
	if err != nil {
		return models.WeatherInfo{}, upstreamError("weather", err)
	}
	wp = models.WeatherPoint{
		Lat:          quantize(loc.Lat),
		Lng:          quantize(loc.Lng),
		Description:  w.Description,
		TemperatureC: w.TemperatureC,
		ObservedAt:   e.clock.Now().UTC(),
	}
	if err := e.store.Put(ctx, cache.NamespaceWeather, key, wp); err != nil {
		slog.Warn("caching weather failed", "key", key, "error", err)
	}
	return w, nil
}

// WeatherKey is the weather cache key for loc: the coordinate rounded to two
// decimals, roughly a 1 km cell.
func WeatherKey(loc models.Location) string {
	return strconv.FormatFloat(quantize(loc.Lat), 'f', 2, 64) + "," +
		strconv.FormatFloat(quantize(loc.Lng), 'f', 2, 64)
}

func quantize(v float64) float64 {
	q := math.Round(v*100) / 100
	if q == 0 {
		return 0 // drop negative zero
	}
	return q
}

func (e *Engine) snapshotID(origin models.Location, destination string, nanos int64) string {
	return fmt.Sprintf("%.5f,%.5f->%s:%d-%d",
		origin.Lat, origin.Lng, normalizeDestination(destination), nanos, e.seq.Add(1))
}

// allModesFailed reports whether no requested mode has a usable route, and
// if so the first upstream reason.
func allModesFailed(routes map[string]models.RouteInfo, modes []string) (string, bool) {
	reason := "no routes returned"
	first := true
	for _, mode := range modes {
		r, ok := routes[mode]
		if !ok {
			continue
		}
		if r.OK() {
			return "", false
		}
		if first {
			reason = mode + ": " + r.Error
			first = false
		}
	}
	return reason, true
}
