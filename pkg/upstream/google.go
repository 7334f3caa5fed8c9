package upstream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/waypoint-ai/waypoint/pkg/models"
)

const (
	googleBaseURL  = "https://maps.googleapis.com"
	directionsPath = "/maps/api/directions/json"
	geocodePath    = "/maps/api/geocode/json"
)

// ErrNotFound is returned when geocoding finds no match for an address.
var ErrNotFound = errors.New("no geocoding result")

// Google is a client for the Google Directions and Geocoding APIs.
type Google struct {
	apiKey string
	c      *client
}

// NewGoogle creates a Google client.
func NewGoogle(opts Options) *Google {
	return &Google{apiKey: opts.APIKey, c: newClient(opts, googleBaseURL)}
}

// FetchDirections requests a route for every mode in parallel. A mode that
// fails, whether the provider cannot route it or the request itself fails,
// is returned with a reason code in RouteInfo.Error so the other modes
// survive. Only cancellation of ctx fails the whole call.
func (g *Google) FetchDirections(ctx context.Context, originLat, originLng float64, destination string, modes []string) (map[string]models.RouteInfo, error) {
	var (
		mu     sync.Mutex
		routes = make(map[string]models.RouteInfo, len(modes))
		eg     errgroup.Group
	)
	for _, mode := range modes {
		eg.Go(func() error {
			q := url.Values{}
			q.Set("origin", formatLatLng(originLat, originLng))
			q.Set("destination", destination)
			q.Set("mode", mode)
			q.Set("alternatives", "true")
			q.Set("departure_time", "now")
			q.Set("key", g.apiKey)

			var info models.RouteInfo
			body, err := g.c.get(ctx, directionsPath, q)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				slog.Warn("directions request failed", "mode", mode, "error", err)
				info = models.RouteInfo{Error: failureCode(err)}
			} else {
				info = parseDirections(body, mode)
			}
			mu.Lock()
			routes[mode] = info
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("directions: %w", err)
	}
	return routes, nil
}

// failureCode turns a request failure into a per-mode reason code.
func failureCode(err error) string {
	var se *StatusError
	if errors.As(err, &se) {
		return "HTTP_" + strconv.Itoa(se.Code)
	}
	return "UNAVAILABLE"
}

// parseDirections extracts the main route of a Directions response. Only
// driving reports traffic-aware ETAs and alternates.
func parseDirections(body []byte, mode string) models.RouteInfo {
	res := gjson.ParseBytes(body)
	if status := res.Get("status").String(); status != "OK" {
		if status == "" {
			status = "INVALID_RESPONSE"
		}
		return models.RouteInfo{Error: status}
	}
	all := res.Get("routes").Array()
	if len(all) == 0 {
		return models.RouteInfo{Error: "ZERO_RESULTS"}
	}

	main := all[0]
	leg := main.Get("legs.0")
	info := models.RouteInfo{
		DistanceKm: leg.Get("distance.value").Float() / 1000,
		EtaMin:     int(leg.Get("duration.value").Int() / 60),
		Summary:    main.Get("summary").String(),
		Polyline:   main.Get("overview_polyline.points").String(),
		Alternates: []models.Alternate{},
	}
	if mode != models.ModeDriving {
		return info
	}

	if traffic := leg.Get("duration_in_traffic.value"); traffic.Exists() {
		info.EtaMin = int(traffic.Int() / 60)
		info.Traffic = true
	}
	for _, alt := range all[1:] {
		altLeg := alt.Get("legs.0")
		info.Alternates = append(info.Alternates, models.Alternate{
			Summary:    alt.Get("summary").String(),
			DistanceKm: altLeg.Get("distance.value").Float() / 1000,
			EtaMin:     int(altLeg.Get("duration.value").Int() / 60),
		})
	}
	return info
}

// Geocode resolves address to the coordinates of its first match.
func (g *Google) Geocode(ctx context.Context, address string) (models.Location, error) {
	q := url.Values{}
	q.Set("address", address)
	q.Set("key", g.apiKey)

	body, err := g.c.get(ctx, geocodePath, q)
	if err != nil {
		return models.Location{}, fmt.Errorf("geocode: %w", err)
	}

	res := gjson.ParseBytes(body)
	switch status := res.Get("status").String(); status {
	case "OK":
	case "ZERO_RESULTS":
		return models.Location{}, fmt.Errorf("%w: %q", ErrNotFound, address)
	default:
		return models.Location{}, fmt.Errorf("geocode %q: status %s", address, status)
	}

	loc := res.Get("results.0.geometry.location")
	if !loc.Get("lat").Exists() || !loc.Get("lng").Exists() {
		return models.Location{}, fmt.Errorf("%w: %q", ErrNotFound, address)
	}
	return models.Location{Lat: loc.Get("lat").Float(), Lng: loc.Get("lng").Float()}, nil
}

func formatLatLng(lat, lng float64) string {
	return strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lng, 'f', -1, 64)
}
